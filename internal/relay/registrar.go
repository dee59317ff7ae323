package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mcplink/toolbridge/internal/logx"
	"github.com/mcplink/toolbridge/internal/registry"
	"github.com/mcplink/toolbridge/internal/wire"
)

// RegisterOptions carries the per-bridge fields sent with every
// registration.
type RegisterOptions struct {
	BridgeID   string
	BridgeName string
	Credential string
	Version    string
}

// Hello probes the relay with a correlated request, proving the stream and
// the rpc endpoint both work before any tool is registered. It returns the
// relay-assigned session id when the relay provides one.
func Hello(ctx context.Context, corr *Correlator, opts RegisterOptions) (string, error) {
	params := wire.HelloParams{BridgeID: opts.BridgeID, BridgeName: opts.BridgeName, Version: opts.Version}
	ev, err := corr.Send(ctx, wire.MethodHello, params)
	if err != nil {
		return "", err
	}
	if ev.Error != "" {
		return "", fmt.Errorf("relay rejected hello: %s", ev.Error)
	}
	var res wire.HelloResult
	if len(ev.Result) > 0 {
		_ = json.Unmarshal(ev.Result, &res)
	}
	return res.SessionID, nil
}

// RegisterAll declares every tool in reg to the relay, one correlated
// request per tool. Failures are logged and skipped so one bad tool cannot
// block the rest; the return value is how many tools the relay accepted.
func RegisterAll(ctx context.Context, corr *Correlator, reg *registry.Registry, opts RegisterOptions) int {
	accepted := 0
	for _, name := range reg.Names() {
		if ctx.Err() != nil {
			break
		}
		tool, ok := reg.Get(name)
		if !ok {
			continue
		}
		params := wire.Registration{
			ToolName:         tool.Name,
			Description:      tool.Description,
			Readme:           tool.Readme,
			Parameters:       tool.Parameters,
			CallbackEndpoint: fmt.Sprintf("bridge://%s/%s", opts.BridgeID, tool.Name),
			Credential:       opts.Credential,
			BridgeVersion:    opts.Version,
		}
		ev, err := corr.Send(ctx, wire.MethodRegister, params)
		if err != nil {
			logx.Log.Warn().Err(err).Str("tool", tool.Name).Msg("tool registration failed")
			continue
		}
		if ev.Error != "" {
			logx.Log.Warn().Str("tool", tool.Name).Str("error", ev.Error).Msg("relay rejected tool")
			continue
		}
		var res wire.RegistrationResult
		if len(ev.Result) > 0 {
			_ = json.Unmarshal(ev.Result, &res)
		}
		if res.Status == "error" {
			logx.Log.Warn().Str("tool", tool.Name).Str("message", res.Message).Msg("relay rejected tool")
			continue
		}
		logx.Log.Info().Str("tool", tool.Name).Msg("tool registered")
		accepted++
	}
	return accepted
}
