// Package gateway funnels tool calls from concurrent transports onto the
// host runtime, which drains them one at a time on its own tick.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrTimeout is returned when a call does not complete within the execution
// timeout. The command may still finish on the host later; its result is
// discarded.
var ErrTimeout = errors.New("execution timed out")

// Command is one unit of work scheduled onto the host tick.
type Command struct {
	Tool string
	Run  func(ctx context.Context) (json.RawMessage, error)
}

type result struct {
	data json.RawMessage
	err  error
}

type task struct {
	cmd Command
	// Buffered so a late completion never blocks the host loop when the
	// caller already gave up.
	done chan result
}

// Gateway owns the bounded queue between callers and the host loop.
type Gateway struct {
	tasks   chan *task
	timeout time.Duration
}

// New returns a gateway whose queue holds up to queueSize waiting commands.
// Calls that outlive timeout fail with ErrTimeout.
func New(queueSize int, timeout time.Duration) *Gateway {
	if queueSize <= 0 {
		queueSize = 32
	}
	return &Gateway{tasks: make(chan *task, queueSize), timeout: timeout}
}

// Execute schedules cmd and blocks until it completes, the execution
// timeout elapses, or ctx is canceled. Safe to call from any goroutine.
func (g *Gateway) Execute(ctx context.Context, cmd Command) (json.RawMessage, error) {
	t := &task{cmd: cmd, done: make(chan result, 1)}
	var expired <-chan time.Time
	if g.timeout > 0 {
		timer := time.NewTimer(g.timeout)
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case g.tasks <- t:
	case <-expired:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-t.done:
		return r.data, r.err
	case <-expired:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run drains the queue on the calling goroutine, which acts as the host
// runtime tick: commands execute strictly one at a time. Commands receive
// the run context, not the caller's, so a caller giving up does not abort
// work already handed to the host.
func (g *Gateway) Run(ctx context.Context) {
	for {
		select {
		case t := <-g.tasks:
			data, err := t.cmd.Run(ctx)
			t.done <- result{data: data, err: err}
		case <-ctx.Done():
			return
		}
	}
}
