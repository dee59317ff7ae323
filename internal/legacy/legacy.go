// Package legacy implements the direct TCP transport used when the relay
// is unreachable: newline-delimited JSON commands answered synchronously,
// one at a time per connection.
package legacy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"github.com/google/uuid"

	"github.com/mcplink/toolbridge/internal/gateway"
	"github.com/mcplink/toolbridge/internal/logx"
	"github.com/mcplink/toolbridge/internal/registry"
	"github.com/mcplink/toolbridge/internal/wire"
)

// Server accepts local tool clients on a TCP listener. Commands address
// tools by name in the type field; there is no registration and no call
// bookkeeping.
type Server struct {
	registry *registry.Registry
	gateway  *gateway.Gateway
}

// New returns a server executing commands against reg through gw.
func New(reg *registry.Registry, gw *gateway.Gateway) *Server {
	return &Server{registry: reg, gateway: gw}
}

// Start listens on addr and serves connections until ctx is canceled. It
// returns the bound address, which differs from addr when a port of 0 was
// requested.
func (s *Server) Start(ctx context.Context, addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("legacy listen %s: %w", addr, err)
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	go s.acceptLoop(ctx, ln)
	return ln.Addr().String(), nil
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
				logx.Log.Error().Err(err).Msg("legacy accept failed")
			}
			return
		}
		connID := uuid.NewString()[:8]
		logx.Log.Debug().Str("conn", connID).Str("remote", conn.RemoteAddr().String()).Msg("legacy client connected")
		go s.serveConn(ctx, conn, connID)
	}
}

// serveConn decodes commands and answers them in order. The synchronous
// loop is the transport's contract: a client never sees replies out of
// order because the next command is not read until the current one is
// answered.
func (s *Server) serveConn(ctx context.Context, conn net.Conn, connID string) {
	defer func() { _ = conn.Close() }()
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)
	for {
		var cmd wire.Command
		if err := dec.Decode(&cmd); err != nil {
			if ctx.Err() == nil {
				logx.Log.Debug().Err(err).Str("conn", connID).Msg("legacy client disconnected")
			}
			return
		}
		resp := s.execute(ctx, cmd)
		if err := enc.Encode(resp); err != nil {
			logx.Log.Warn().Err(err).Str("conn", connID).Msg("legacy write failed")
			return
		}
	}
}

func (s *Server) execute(ctx context.Context, cmd wire.Command) wire.Response {
	if cmd.Type == "" {
		return wire.Response{Status: wire.StatusError, Error: "missing command type"}
	}
	tool, ok := s.registry.Get(cmd.Type)
	if !ok {
		return wire.Response{Status: wire.StatusError, Error: fmt.Sprintf("unknown command: %s", cmd.Type)}
	}
	out, err := s.gateway.Execute(ctx, gateway.Command{
		Tool: tool.Name,
		Run: func(hostCtx context.Context) (json.RawMessage, error) {
			return tool.Handler(hostCtx, cmd.Params)
		},
	})
	if err != nil {
		return wire.Response{Status: wire.StatusError, Error: err.Error()}
	}
	return wire.Response{Status: wire.StatusSuccess, Result: out}
}
