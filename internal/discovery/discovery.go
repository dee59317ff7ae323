// Package discovery obtains the relay endpoint by running the native helper
// named in the manifest. The helper is a long-lived stdio process that
// prints a single JSON line describing the endpoint; it is killed as soon as
// that line has been read.
package discovery

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"
)

// Endpoint describes the relay endpoint produced by the helper.
type Endpoint struct {
	URL       string     `json:"url"`
	Token     string     `json:"token"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Discover runs the helper at path and waits up to timeout for it to print
// an endpoint line on stdout. The helper process never exits on its own, so
// it is killed and reaped before Discover returns.
func Discover(ctx context.Context, path string, timeout time.Duration) (Endpoint, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, path)
	// Children spawned by the helper can inherit its pipes and keep them
	// open past the kill; WaitDelay keeps Wait from hanging on them.
	cmd.WaitDelay = 2 * time.Second
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Endpoint{}, fmt.Errorf("helper stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return Endpoint{}, fmt.Errorf("start helper %s: %w", path, err)
	}

	type parsed struct {
		ep  Endpoint
		err error
	}
	ch := make(chan parsed, 1)
	go func() {
		ep, err := readEndpoint(stdout)
		ch <- parsed{ep, err}
	}()

	var ep Endpoint
	select {
	case r := <-ch:
		ep, err = r.ep, r.err
	case <-runCtx.Done():
		err = fmt.Errorf("waiting for helper output: %w", runCtx.Err())
	}
	_ = cmd.Process.Kill()
	_ = cmd.Wait()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return Endpoint{}, fmt.Errorf("%w (helper stderr: %s)", err, msg)
		}
		return Endpoint{}, err
	}
	if ep.URL == "" || ep.Token == "" {
		return Endpoint{}, fmt.Errorf("helper output missing url or token")
	}
	return ep, nil
}

// readEndpoint scans stdout for the first line that parses as an endpoint.
// Banner lines and blank lines before it are skipped.
func readEndpoint(r io.Reader) (Endpoint, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var ep Endpoint
		if err := json.Unmarshal(line, &ep); err != nil {
			continue
		}
		return ep, nil
	}
	if err := sc.Err(); err != nil {
		return Endpoint{}, fmt.Errorf("reading helper output: %w", err)
	}
	return Endpoint{}, fmt.Errorf("helper exited without printing an endpoint")
}
