package bridge

import (
	"context"
	"fmt"

	"github.com/mcplink/toolbridge/internal/config"
	"github.com/mcplink/toolbridge/internal/discovery"
	"github.com/mcplink/toolbridge/internal/dispatch"
	"github.com/mcplink/toolbridge/internal/gateway"
	"github.com/mcplink/toolbridge/internal/legacy"
	"github.com/mcplink/toolbridge/internal/logx"
	"github.com/mcplink/toolbridge/internal/manifest"
	"github.com/mcplink/toolbridge/internal/registry"
	"github.com/mcplink/toolbridge/internal/relay"
	"github.com/mcplink/toolbridge/internal/secret"
	"github.com/mcplink/toolbridge/internal/wire"
)

// Supervisor drives one bridge activation: locate the helper manifest,
// discover the relay endpoint, register tools, and dispatch reverse calls.
// Any failure before registration completes falls back to the legacy
// direct transport instead of failing the activation.
type Supervisor struct {
	cfg      config.BridgeConfig
	registry *registry.Registry
	gateway  *gateway.Gateway
}

// NewSupervisor returns a supervisor serving reg through gw. The gateway's
// host loop is driven by the caller.
func NewSupervisor(cfg config.BridgeConfig, reg *registry.Registry, gw *gateway.Gateway) *Supervisor {
	return &Supervisor{cfg: cfg, registry: reg, gateway: gw}
}

// Run performs one activation and blocks until shutdown. It returns nil on
// clean shutdown, including runs that ended on the legacy transport, and an
// error when the relay session was lost or the legacy listener failed.
func (s *Supervisor) Run(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	// Join the diagnostic servers on the way out so their ports are free
	// by the time Run returns and a Restart can rebind them.
	var stopped []<-chan struct{}
	defer func() {
		for _, ch := range stopped {
			<-ch
		}
	}()
	defer cancel()

	if s.cfg.MetricsAddr != "" {
		addr, done, err := StartMetricsServer(ctx, s.cfg.MetricsAddr)
		if err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		stopped = append(stopped, done)
		logx.Log.Info().Str("addr", addr).Msg("metrics server listening")
	}
	if s.cfg.StatusAddr != "" {
		addr, done, err := StartStatusServer(ctx, s.cfg.StatusAddr, s.cfg.ConfigFile, s.cfg.AllowedOrigins, s.cfg.DrainTimeout, cancel)
		if err != nil {
			return fmt.Errorf("start status server: %w", err)
		}
		stopped = append(stopped, done)
		logx.Log.Info().Str("addr", addr).Msg("status server listening")
	}

	SetBridgeInfo(s.cfg.BridgeID, s.cfg.BridgeName)
	SetMode(ModeDiscovering, "locating relay endpoint")

	desc, err := manifest.Locate(s.cfg.ManifestName, s.cfg.ManifestDirs)
	if err != nil {
		return s.runLegacy(ctx, fmt.Sprintf("manifest: %v", err))
	}
	logx.Log.Info().Str("path", desc.Origin).Str("helper", desc.Path).Msg("helper manifest located")

	ep, err := discovery.Discover(ctx, desc.Path, s.cfg.HelperTimeout)
	if err != nil {
		return s.runLegacy(ctx, fmt.Sprintf("discovery: %v", err))
	}
	logx.Log.Info().Str("url", ep.URL).Str("token", secret.Mask(ep.Token)).Msg("relay endpoint discovered")

	return s.runRelay(ctx, ep)
}

// Restart begins a fresh activation after a lost relay session.
func (s *Supervisor) Restart(ctx context.Context) error {
	if m := GetMode(); m != ModeDisconnected {
		return fmt.Errorf("restart requires disconnected state, mode is %s", m)
	}
	resetForRestart()
	return s.Run(ctx)
}

func (s *Supervisor) runRelay(ctx context.Context, ep discovery.Endpoint) error {
	relayCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	qs := s.cfg.QueueSize
	if qs <= 0 {
		qs = 32
	}
	client := relay.NewClient(ep.URL, ep.Token)
	corr := relay.NewCorrelator(client, s.cfg.RequestTimeout)
	calls := make(chan wire.Event, qs)
	sess := relay.NewSession(ep.URL, ep.Token, corr, calls, s.cfg.StreamRetries)

	if err := sess.Open(relayCtx); err != nil {
		cancel()
		return s.runLegacy(ctx, fmt.Sprintf("relay connect: %v", err))
	}
	sessErr := make(chan error, 1)
	go func() { sessErr <- sess.Run(relayCtx) }()

	opts := relay.RegisterOptions{
		BridgeID:   s.cfg.BridgeID,
		BridgeName: s.cfg.BridgeName,
		Credential: s.cfg.Credential,
		Version:    GetVersionInfo().Version,
	}
	sessionID, err := relay.Hello(relayCtx, corr, opts)
	if err != nil {
		cancel()
		corr.CancelAll()
		return s.runLegacy(ctx, fmt.Sprintf("relay probe: %v", err))
	}
	if sessionID != "" {
		sess.SetID(sessionID)
		SetSessionID(sessionID)
	}
	SetMode(ModeRegistering, "relay session established")

	accepted := relay.RegisterAll(relayCtx, corr, s.registry, opts)
	if accepted == 0 {
		cancel()
		corr.CancelAll()
		return s.runLegacy(ctx, "relay accepted no tools")
	}
	SetToolsRegistered(accepted)

	disp := dispatch.New(s.registry, s.gateway, client, calls)
	disp.SetDraining(IsDraining)
	setInFlightFn(disp.InFlight)
	go disp.Run(relayCtx)
	SetMode(ModeReverseRelay, fmt.Sprintf("%d/%d tools registered", accepted, s.registry.Len()))

	select {
	case <-ctx.Done():
		s.drain(disp)
		corr.CancelAll()
		return nil
	case err := <-sessErr:
		SetLastError(err.Error())
		SetMode(ModeDisconnected, "relay session lost")
		corr.CancelAll()
		return err
	}
}

// runLegacy serves the direct transport until shutdown. The reason records
// why the relay path was not used.
func (s *Supervisor) runLegacy(ctx context.Context, reason string) error {
	srv := legacy.New(s.registry, s.gateway)
	addr, err := srv.Start(ctx, s.cfg.LegacyAddr)
	if err != nil {
		SetLastError(err.Error())
		SetMode(ModeDisconnected, "legacy transport failed")
		return err
	}
	setLegacyAddr(addr)
	SetMode(ModeLegacyDirect, reason)
	logx.Log.Info().Str("addr", addr).Msg("legacy direct transport listening")
	<-ctx.Done()
	return nil
}

// drain gives in-flight calls a bounded window to finish before the
// dispatcher stops.
func (s *Supervisor) drain(disp *dispatch.Dispatcher) {
	StartDrain()
	if s.cfg.DrainTimeout <= 0 {
		return
	}
	logx.Log.Info().Dur("timeout", s.cfg.DrainTimeout).Int("in_flight", disp.InFlight()).Msg("draining in-flight calls")
	if !disp.Wait(s.cfg.DrainTimeout) {
		logx.Log.Warn().Int("in_flight", disp.InFlight()).Msg("drain timed out; abandoning remaining calls")
	}
}
