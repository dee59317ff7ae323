// Package tools provides the built-in tools every standalone bridge
// exposes. Results use the MCP content shape so callers on either
// transport see the same structure.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/mcplink/toolbridge/internal/logx"
	"github.com/mcplink/toolbridge/internal/registry"
)

func textResult(text string) (json.RawMessage, error) {
	return json.Marshal(mcp.NewToolResultText(text))
}

// Defaults returns the built-in tool set. The snapshot func supplies the
// bridge state reported by the bridge_status tool.
func Defaults(snapshot func() any) []registry.Tool {
	return []registry.Tool{Echo(), SystemInfo(), BridgeStatus(snapshot)}
}

type echoParams struct {
	Message string `json:"message,omitempty" jsonschema:"description=The message to echo back"`
}

// Echo returns the echo tool, the canonical round-trip check.
func Echo() registry.Tool {
	return registry.Tool{
		Name:        "echo",
		Description: "Echo a message back through the bridge.",
		Readme:      "Returns the given message prefixed with \"Echo: \". Use it to verify the bridge round trip end to end.",
		Parameters:  registry.SchemaFor[echoParams](),
		Handler: func(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
			var p echoParams
			if len(input) > 0 {
				if err := json.Unmarshal(input, &p); err != nil {
					return nil, fmt.Errorf("decode input: %w", err)
				}
			}
			if p.Message == "" {
				p.Message = "(no message provided)"
			}
			return textResult("Echo: " + p.Message)
		},
	}
}

type systemInfoParams struct{}

type systemReport struct {
	Hostname          string  `json:"hostname,omitempty"`
	OS                string  `json:"os,omitempty"`
	Platform          string  `json:"platform,omitempty"`
	PlatformVersion   string  `json:"platform_version,omitempty"`
	KernelArch        string  `json:"kernel_arch,omitempty"`
	UptimeSeconds     uint64  `json:"uptime_seconds,omitempty"`
	CPUCount          int     `json:"cpu_count"`
	CPUPercent        float64 `json:"cpu_percent"`
	MemoryTotal       uint64  `json:"memory_total_bytes"`
	MemoryAvailable   uint64  `json:"memory_available_bytes"`
	MemoryUsedPercent float64 `json:"memory_used_percent"`
}

// SystemInfo returns the host inspection tool. Probes that fail leave their
// fields zero instead of failing the call.
func SystemInfo() registry.Tool {
	return registry.Tool{
		Name:        "system_info",
		Description: "Report CPU, memory, and host details for the machine running the bridge.",
		Readme:      "Returns a JSON document with hostname, OS, CPU count and load, and memory usage.",
		Parameters:  registry.SchemaFor[systemInfoParams](),
		Handler: func(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
			var rep systemReport
			if info, err := host.InfoWithContext(ctx); err == nil {
				rep.Hostname = info.Hostname
				rep.OS = info.OS
				rep.Platform = info.Platform
				rep.PlatformVersion = info.PlatformVersion
				rep.KernelArch = info.KernelArch
				rep.UptimeSeconds = info.Uptime
			} else {
				logx.Log.Debug().Err(err).Msg("host info unavailable")
			}
			if n, err := cpu.CountsWithContext(ctx, true); err == nil {
				rep.CPUCount = n
			}
			if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
				rep.CPUPercent = pct[0]
			}
			if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
				rep.MemoryTotal = vm.Total
				rep.MemoryAvailable = vm.Available
				rep.MemoryUsedPercent = vm.UsedPercent
			}
			b, err := json.MarshalIndent(rep, "", "  ")
			if err != nil {
				return nil, err
			}
			return textResult(string(b))
		},
	}
}

type bridgeStatusParams struct{}

// BridgeStatus returns the introspection tool reporting the bridge's own
// connection state.
func BridgeStatus(snapshot func() any) registry.Tool {
	return registry.Tool{
		Name:        "bridge_status",
		Description: "Report the bridge's connection mode, session, and call counters.",
		Readme:      "Returns the same JSON document served on the local /status endpoint.",
		Parameters:  registry.SchemaFor[bridgeStatusParams](),
		Handler: func(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
			if snapshot == nil {
				return nil, fmt.Errorf("status unavailable")
			}
			b, err := json.MarshalIndent(snapshot(), "", "  ")
			if err != nil {
				return nil, err
			}
			return textResult(string(b))
		},
	}
}
