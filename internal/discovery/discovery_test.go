package discovery

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func writeHelper(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("helper scripts require sh")
	}
	path := filepath.Join(t.TempDir(), "helper.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatalf("write helper: %v", err)
	}
	return path
}

func TestDiscoverParsesEndpoint(t *testing.T) {
	helper := writeHelper(t, `echo 'relay helper starting'
echo '{"url":"http://127.0.0.1:9999","token":"tok-123"}'
exec sleep 30
`)
	start := time.Now()
	ep, err := Discover(context.Background(), helper, 5*time.Second)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if ep.URL != "http://127.0.0.1:9999" || ep.Token != "tok-123" {
		t.Fatalf("wrong endpoint: %+v", ep)
	}
	if time.Since(start) > 3*time.Second {
		t.Fatal("helper was not killed after the endpoint line")
	}
}

func TestDiscoverTimesOutOnSilentHelper(t *testing.T) {
	helper := writeHelper(t, "exec sleep 30\n")
	_, err := Discover(context.Background(), helper, 200*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestDiscoverRejectsIncompleteOutput(t *testing.T) {
	helper := writeHelper(t, `echo '{"url":"http://127.0.0.1:9999"}'
`)
	_, err := Discover(context.Background(), helper, 2*time.Second)
	if err == nil || !strings.Contains(err.Error(), "missing url or token") {
		t.Fatalf("expected missing-token error, got %v", err)
	}
}

func TestDiscoverReportsHelperExit(t *testing.T) {
	helper := writeHelper(t, `echo 'no endpoint here' >&2
exit 1
`)
	_, err := Discover(context.Background(), helper, 2*time.Second)
	if err == nil {
		t.Fatal("expected error for helper that exits without output")
	}
	if !strings.Contains(err.Error(), "no endpoint here") {
		t.Fatalf("stderr not surfaced: %v", err)
	}
}

func TestDiscoverMissingHelper(t *testing.T) {
	_, err := Discover(context.Background(), filepath.Join(t.TempDir(), "absent"), time.Second)
	if err == nil {
		t.Fatal("expected error for missing helper binary")
	}
}
