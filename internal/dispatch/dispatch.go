// Package dispatch consumes reverse tool calls from the relay stream and
// answers each one exactly once.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mcplink/toolbridge/internal/gateway"
	"github.com/mcplink/toolbridge/internal/logx"
	"github.com/mcplink/toolbridge/internal/metrics"
	"github.com/mcplink/toolbridge/internal/registry"
	"github.com/mcplink/toolbridge/internal/wire"
)

// ReplySender posts call outcomes back to the relay.
type ReplySender interface {
	PostReply(ctx context.Context, rep wire.Reply) error
}

// Dispatcher reads reverse calls from the stream queue, executes them
// through the gateway, and posts exactly one reply per call id. Duplicate
// call ids within a session are dropped without execution.
type Dispatcher struct {
	registry *registry.Registry
	gateway  *gateway.Gateway
	replies  ReplySender
	calls    <-chan wire.Event

	mu   sync.Mutex
	seen map[string]struct{}

	inFlight atomic.Int64
	wg       sync.WaitGroup
	draining func() bool
}

// New returns a dispatcher consuming from calls.
func New(reg *registry.Registry, gw *gateway.Gateway, replies ReplySender, calls <-chan wire.Event) *Dispatcher {
	return &Dispatcher{
		registry: reg,
		gateway:  gw,
		replies:  replies,
		calls:    calls,
		seen:     make(map[string]struct{}),
	}
}

// SetDraining installs the drain check consulted before each execution.
func (d *Dispatcher) SetDraining(fn func() bool) {
	d.draining = fn
}

// InFlight returns the number of calls currently executing.
func (d *Dispatcher) InFlight() int {
	return int(d.inFlight.Load())
}

// Run consumes the call queue until ctx is canceled. Calls are answered on
// their own goroutines so a slow tool never blocks the stream reader.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.logAbandoned()
			return
		case ev := <-d.calls:
			if !d.admit(ev.CallID) {
				metrics.RecordDuplicateCall()
				logx.Log.Debug().Str("call_id", ev.CallID).Str("tool", ev.Tool).Msg("dropping duplicate call")
				continue
			}
			d.wg.Add(1)
			go d.handle(ctx, ev)
		}
	}
}

// Wait blocks until all in-flight calls finish or the timeout elapses. It
// reports whether the dispatcher drained in time.
func (d *Dispatcher) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// admit records the call id and reports whether it was seen for the first
// time. Ids stay recorded for the life of the session.
func (d *Dispatcher) admit(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, dup := d.seen[id]; dup {
		return false
	}
	d.seen[id] = struct{}{}
	return true
}

func (d *Dispatcher) handle(ctx context.Context, ev wire.Event) {
	defer d.wg.Done()
	d.inFlight.Add(1)
	defer d.inFlight.Add(-1)
	metrics.RecordCallStarted()
	start := time.Now()

	if d.draining != nil && d.draining() {
		d.fail(ctx, ev, start, "bridge is shutting down")
		return
	}
	tool, ok := d.registry.Get(ev.Tool)
	if !ok {
		logx.Log.Warn().Str("call_id", ev.CallID).Str("tool", ev.Tool).Msg("call for unknown tool")
		d.fail(ctx, ev, start, fmt.Sprintf("unknown tool: %s", ev.Tool))
		return
	}
	if err := registry.ValidateInput(tool.Parameters, ev.Input); err != nil {
		d.fail(ctx, ev, start, fmt.Sprintf("invalid input: %v", err))
		return
	}

	out, err := d.gateway.Execute(ctx, gateway.Command{
		Tool: tool.Name,
		Run: func(hostCtx context.Context) (json.RawMessage, error) {
			return tool.Handler(hostCtx, ev.Input)
		},
	})
	if err != nil {
		d.fail(ctx, ev, start, err.Error())
		return
	}
	d.reply(ctx, wire.Reply{CallID: ev.CallID, Result: out})
	metrics.RecordCallCompleted(true, time.Since(start))
	logx.Log.Info().Str("call_id", ev.CallID).Str("tool", ev.Tool).Dur("duration", time.Since(start)).Msg("call completed")
}

func (d *Dispatcher) fail(ctx context.Context, ev wire.Event, start time.Time, msg string) {
	d.reply(ctx, wire.Reply{CallID: ev.CallID, Error: msg})
	metrics.RecordCallCompleted(false, time.Since(start))
	logx.Log.Warn().Str("call_id", ev.CallID).Str("tool", ev.Tool).Str("error", msg).Msg("call failed")
}

func (d *Dispatcher) reply(ctx context.Context, rep wire.Reply) {
	if err := d.replies.PostReply(ctx, rep); err != nil {
		logx.Log.Error().Err(err).Str("call_id", rep.CallID).Msg("abandoning call reply")
	}
}

// logAbandoned drains calls still queued at shutdown so none disappears
// silently.
func (d *Dispatcher) logAbandoned() {
	for {
		select {
		case ev := <-d.calls:
			logx.Log.Warn().Str("call_id", ev.CallID).Str("tool", ev.Tool).Msg("abandoning queued call at shutdown")
		default:
			return
		}
	}
}
