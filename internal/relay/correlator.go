package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mcplink/toolbridge/internal/logx"
	"github.com/mcplink/toolbridge/internal/wire"
)

var (
	// ErrTimeout is returned when no reply arrives within the request
	// timeout.
	ErrTimeout = errors.New("timed out waiting for reply")
	// ErrCanceled is returned for requests resolved by CancelAll.
	ErrCanceled = errors.New("request canceled")
)

// Correlator matches replies arriving on the push stream to the requests
// waiting for them. Request ids are generated here and never reused.
type Correlator struct {
	client  *Client
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]chan wire.Event
}

// NewCorrelator returns a correlator that sends through client and waits up
// to timeout for each reply.
func NewCorrelator(client *Client, timeout time.Duration) *Correlator {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Correlator{
		client:  client,
		timeout: timeout,
		pending: make(map[string]chan wire.Event),
	}
}

// Send issues one correlated request and blocks until its reply arrives on
// the stream, the timeout elapses, or ctx is canceled.
func (c *Correlator) Send(ctx context.Context, method string, params any) (wire.Event, error) {
	id := uuid.NewString()
	ch := make(chan wire.Event, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.client.PostRequest(ctx, wire.Request{RequestID: id, Method: method, Params: params}); err != nil {
		return wire.Event{}, err
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case ev, ok := <-ch:
		if !ok {
			return wire.Event{}, ErrCanceled
		}
		return ev, nil
	case <-timer.C:
		return wire.Event{}, ErrTimeout
	case <-ctx.Done():
		return wire.Event{}, ctx.Err()
	}
}

// Resolve delivers a reply to the sender waiting on its request id. Replies
// for unknown or already resolved ids are logged and dropped.
func (c *Correlator) Resolve(ev wire.Event) {
	c.mu.Lock()
	ch, ok := c.pending[ev.RequestID]
	if ok {
		delete(c.pending, ev.RequestID)
	}
	c.mu.Unlock()
	if !ok {
		logx.Log.Debug().Str("request_id", ev.RequestID).Msg("discarding reply for unknown request")
		return
	}
	ch <- ev
}

// CancelAll resolves every outstanding request with ErrCanceled so no
// sender is left waiting after the session ends.
func (c *Correlator) CancelAll() {
	c.mu.Lock()
	for id, ch := range c.pending {
		delete(c.pending, id)
		close(ch)
	}
	c.mu.Unlock()
}
