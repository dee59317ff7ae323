package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPromMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)
	SetBuildInfo("1.0.0", "abc", "2024-01-01")
	RecordCallStarted()
	RecordCallCompleted(true, 100*time.Millisecond)
	RecordCallCompleted(false, 10*time.Millisecond)
	RecordDuplicateCall()
	RecordStreamReconnect()
	SetToolsRegistered(3)

	if v := testutil.ToFloat64(callsStarted); v != 1 {
		t.Fatalf("calls started: %v", v)
	}
	if v := testutil.ToFloat64(callsCompleted.WithLabelValues("success")); v != 1 {
		t.Fatalf("calls succeeded: %v", v)
	}
	if v := testutil.ToFloat64(callsCompleted.WithLabelValues("error")); v != 1 {
		t.Fatalf("calls failed: %v", v)
	}
	if v := testutil.ToFloat64(duplicateCalls); v != 1 {
		t.Fatalf("duplicate calls: %v", v)
	}
	if v := testutil.ToFloat64(streamReconnects); v != 1 {
		t.Fatalf("stream reconnects: %v", v)
	}
	if v := testutil.ToFloat64(toolsRegistered); v != 3 {
		t.Fatalf("tools registered: %v", v)
	}
	if v := testutil.ToFloat64(buildInfo.WithLabelValues("2024-01-01", "abc", "1.0.0")); v != 1 {
		t.Fatalf("build info: %v", v)
	}
}

func TestSetConnectionModeClearsPrevious(t *testing.T) {
	SetConnectionMode("discovering")
	SetConnectionMode("reverse_relay")
	if v := testutil.ToFloat64(connectionMode.WithLabelValues("discovering")); v != 0 {
		t.Fatalf("previous mode still set: %v", v)
	}
	if v := testutil.ToFloat64(connectionMode.WithLabelValues("reverse_relay")); v != 1 {
		t.Fatalf("active mode not set: %v", v)
	}
}
