package relay

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mcplink/toolbridge/internal/logx"
	"github.com/mcplink/toolbridge/internal/metrics"
	"github.com/mcplink/toolbridge/internal/reconnect"
	"github.com/mcplink/toolbridge/internal/wire"
)

// ErrSessionLost is returned by Run when the stream drops and every
// reconnect attempt fails.
var ErrSessionLost = errors.New("relay session lost")

// Session states.
const (
	StateConnecting = "connecting"
	StateOpen       = "open"
	StateClosed     = "closed"
)

// Session owns the long-lived push stream and routes its records: replies
// go to the correlator, reverse calls go to the dispatch queue.
type Session struct {
	baseURL string
	token   string
	httpc   *http.Client
	corr    *Correlator
	calls   chan<- wire.Event
	retries int

	mu    sync.Mutex
	id    string
	state string
	body  io.ReadCloser
}

// NewSession returns a session for the discovered endpoint. Reverse calls
// are delivered on calls in arrival order.
func NewSession(baseURL, token string, corr *Correlator, calls chan<- wire.Event, retries int) *Session {
	if retries < 0 {
		retries = 0
	}
	return &Session{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		// No client timeout: the stream stays open indefinitely.
		httpc:   &http.Client{},
		corr:    corr,
		calls:   calls,
		retries: retries,
		state:   StateConnecting,
	}
}

// SetID records the relay-assigned session id.
func (s *Session) SetID(id string) {
	s.mu.Lock()
	s.id = id
	s.mu.Unlock()
}

// ID returns the relay-assigned session id, if any.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// State returns the current session state.
func (s *Session) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state string) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Open dials the stream endpoint. It returns an error when the relay is
// unreachable or rejects the stream request.
func (s *Session) Open(ctx context.Context) error {
	body, err := s.dial(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.body = body
	s.state = StateOpen
	s.mu.Unlock()
	return nil
}

func (s *Session) dial(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/events", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Authorization", "Bearer "+s.token)
	resp, err := s.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("relay /events: status %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	return resp.Body, nil
}

func (s *Session) detachBody() io.ReadCloser {
	s.mu.Lock()
	defer s.mu.Unlock()
	body := s.body
	s.body = nil
	return body
}

// streamServedAge is how long a silent stream must stay up for its close
// to reset the retry budget the way a delivered record does.
const streamServedAge = 30 * time.Second

// Run consumes the stream until ctx is canceled or the reconnect attempts
// are exhausted. Every redial waits on the reconnect schedule, and the
// attempt counter resets only after a connection that served, so a relay
// that accepts streams and drops them unserved still runs out of retries.
func (s *Session) Run(ctx context.Context) error {
	defer s.setState(StateClosed)
	attempt := 0
	for {
		served, err := s.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if served {
			attempt = 0
		}
		if attempt >= s.retries {
			logx.Log.Error().Err(err).Int("attempts", attempt).Msg("relay stream reconnect attempts exhausted")
			return fmt.Errorf("%w: %v", ErrSessionLost, err)
		}
		delay := reconnect.Delay(attempt)
		attempt++
		metrics.RecordStreamReconnect()
		logx.Log.Warn().Err(err).Dur("backoff", delay).Msg("relay stream lost; retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// connectAndRead dials the stream endpoint when no connection is attached
// and consumes the stream until it drops. It reports whether the
// connection served: either a record was delivered or the stream outlived
// streamServedAge.
func (s *Session) connectAndRead(ctx context.Context) (bool, error) {
	body := s.detachBody()
	if body == nil {
		s.setState(StateConnecting)
		var err error
		body, err = s.dial(ctx)
		if err != nil {
			return false, err
		}
		s.setState(StateOpen)
		logx.Log.Info().Msg("relay stream reconnected")
	}
	start := time.Now()
	served, err := s.read(ctx, body)
	_ = body.Close()
	if time.Since(start) >= streamServedAge {
		served = true
	}
	return served, err
}

// read consumes one stream connection, reporting whether it delivered at
// least one routable record. Records are newline JSON; framing noise from
// event-stream style relays (event:/data: prefixes, ping comments, blank
// separators) is tolerated and stripped.
func (s *Session) read(ctx context.Context, body io.ReadCloser) (bool, error) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = body.Close()
		case <-done:
		}
	}()

	served := false
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, ":") || strings.HasPrefix(line, "event:") {
			continue
		}
		if strings.HasPrefix(line, "data:") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if line == "" {
				continue
			}
		}
		if line[0] != '{' {
			logx.Log.Debug().Str("line", line).Msg("skipping unrecognized stream line")
			continue
		}
		var ev wire.Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			logx.Log.Warn().Err(err).Msg("skipping unparseable stream record")
			continue
		}
		switch {
		case ev.IsReply():
			served = true
			s.corr.Resolve(ev)
		case ev.IsCall():
			served = true
			select {
			case s.calls <- ev:
			case <-ctx.Done():
				return served, ctx.Err()
			}
		default:
			logx.Log.Debug().Msg("ignoring stream record without correlation id")
		}
	}
	if err := sc.Err(); err != nil {
		return served, err
	}
	return served, io.EOF
}
