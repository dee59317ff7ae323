package legacy

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/mcplink/toolbridge/internal/gateway"
	"github.com/mcplink/toolbridge/internal/registry"
	"github.com/mcplink/toolbridge/internal/wire"
)

func startServer(t *testing.T) (string, context.CancelFunc) {
	t.Helper()
	reg := registry.New()
	err := reg.Add(registry.Tool{
		Name: "echo",
		Handler: func(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
			return input, nil
		},
	})
	if err != nil {
		t.Fatalf("add tool: %v", err)
	}
	_ = reg.Add(registry.Tool{
		Name: "explode",
		Handler: func(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
			return nil, fmt.Errorf("tool exploded")
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	gw := gateway.New(4, time.Second)
	go gw.Run(ctx)
	addr, err := New(reg, gw).Start(ctx, "127.0.0.1:0")
	if err != nil {
		cancel()
		t.Fatalf("start: %v", err)
	}
	return addr, cancel
}

func roundTrip(t *testing.T, conn net.Conn, r *bufio.Reader, cmd string) wire.Response {
	t.Helper()
	if _, err := conn.Write([]byte(cmd + "\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	line, err := r.ReadBytes('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var resp wire.Response
	if err := json.Unmarshal(line, &resp); err != nil {
		t.Fatalf("decode %q: %v", line, err)
	}
	return resp
}

func TestCommandRoundTrip(t *testing.T) {
	addr, cancel := startServer(t)
	defer cancel()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close() }()
	r := bufio.NewReader(conn)

	resp := roundTrip(t, conn, r, `{"type":"echo","params":{"message":"hi"}}`)
	if resp.Status != wire.StatusSuccess {
		t.Fatalf("status: %+v", resp)
	}
	if string(resp.Result) != `{"message":"hi"}` {
		t.Fatalf("result: %s", resp.Result)
	}
}

func TestCommandsAnsweredInOrder(t *testing.T) {
	addr, cancel := startServer(t)
	defer cancel()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close() }()
	r := bufio.NewReader(conn)

	for i := 0; i < 3; i++ {
		want := fmt.Sprintf(`{"n":%d}`, i)
		resp := roundTrip(t, conn, r, fmt.Sprintf(`{"type":"echo","params":%s}`, want))
		if resp.Status != wire.StatusSuccess || string(resp.Result) != want {
			t.Fatalf("command %d: %+v", i, resp)
		}
	}
}

func TestUnknownCommand(t *testing.T) {
	addr, cancel := startServer(t)
	defer cancel()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close() }()
	r := bufio.NewReader(conn)

	resp := roundTrip(t, conn, r, `{"type":"absent"}`)
	if resp.Status != wire.StatusError || !strings.Contains(resp.Error, "unknown command") {
		t.Fatalf("unexpected response: %+v", resp)
	}

	resp = roundTrip(t, conn, r, `{"params":{}}`)
	if resp.Status != wire.StatusError || !strings.Contains(resp.Error, "missing command type") {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestToolErrorReported(t *testing.T) {
	addr, cancel := startServer(t)
	defer cancel()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close() }()
	r := bufio.NewReader(conn)

	resp := roundTrip(t, conn, r, `{"type":"explode"}`)
	if resp.Status != wire.StatusError || !strings.Contains(resp.Error, "tool exploded") {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestShutdownClosesListener(t *testing.T) {
	addr, cancel := startServer(t)
	cancel()

	deadline := time.Now().Add(5 * time.Second)
	for {
		conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err != nil {
			return
		}
		_ = conn.Close()
		if time.Now().After(deadline) {
			t.Fatal("listener still accepting after shutdown")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestClosedConnectionsDoNotLeakGoroutines(t *testing.T) {
	addr, cancel := startServer(t)
	defer cancel()

	before := runtime.NumGoroutine()
	for i := 0; i < 40; i++ {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			t.Fatalf("dial %d: %v", i, err)
		}
		r := bufio.NewReader(conn)
		resp := roundTrip(t, conn, r, `{"type":"echo","params":{"n":1}}`)
		if resp.Status != wire.StatusSuccess {
			t.Fatalf("round trip %d: %+v", i, resp)
		}
		_ = conn.Close()
	}

	// The per-connection goroutines unwind once the client hangs up; poll
	// until the count is back near the baseline.
	deadline := time.Now().Add(5 * time.Second)
	for {
		if g := runtime.NumGoroutine(); g <= before+4 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("goroutines grew from %d to %d after clients disconnected", before, runtime.NumGoroutine())
		}
		time.Sleep(20 * time.Millisecond)
	}
}
