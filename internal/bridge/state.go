// Package bridge supervises the bridge lifecycle: endpoint discovery, tool
// registration, steady-state dispatch, and fallback to the legacy
// transport. It owns the process-wide connection state.
package bridge

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/mcplink/toolbridge/internal/logx"
	"github.com/mcplink/toolbridge/internal/metrics"
)

// Mode is the bridge connection mode. The supervisor is the only writer;
// everything else reads snapshots.
type Mode string

const (
	ModeUninitialized Mode = "uninitialized"
	ModeDiscovering   Mode = "discovering"
	ModeRegistering   Mode = "registering"
	ModeReverseRelay  Mode = "reverse_relay"
	ModeLegacyDirect  Mode = "legacy_direct"
	ModeDisconnected  Mode = "disconnected"
)

// State is a point-in-time snapshot of the bridge.
type State struct {
	Mode            Mode      `json:"mode"`
	Reason          string    `json:"reason,omitempty"`
	BridgeID        string    `json:"bridge_id"`
	BridgeName      string    `json:"bridge_name"`
	SessionID       string    `json:"session_id,omitempty"`
	ToolsRegistered int       `json:"tools_registered"`
	CallsInFlight   int       `json:"calls_in_flight"`
	Draining        bool      `json:"draining"`
	LegacyAddr      string    `json:"legacy_addr,omitempty"`
	LastError       string    `json:"last_error,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	Version         string    `json:"version"`
}

// VersionInfo describes the build.
type VersionInfo struct {
	Version   string `json:"version"`
	BuildSHA  string `json:"build_sha"`
	BuildDate string `json:"build_date"`
}

var (
	stateMu    sync.RWMutex
	stateData  = State{Mode: ModeUninitialized, StartedAt: time.Now()}
	buildInfo  = VersionInfo{Version: "dev", BuildSHA: "unknown", BuildDate: "unknown"}
	draining   atomic.Bool
	inFlightFn func() int
)

// resetForRestart clears per-activation fields so a new Run starts clean.
func resetForRestart() {
	stateMu.Lock()
	stateData.Mode = ModeUninitialized
	stateData.Reason = ""
	stateData.SessionID = ""
	stateData.ToolsRegistered = 0
	stateData.LegacyAddr = ""
	stateData.LastError = ""
	inFlightFn = nil
	stateMu.Unlock()
	draining.Store(false)
}

// SetBuildInfo records the build metadata stamped into the binary.
func SetBuildInfo(v, sha, date string) {
	buildInfo = VersionInfo{Version: v, BuildSHA: sha, BuildDate: date}
	stateMu.Lock()
	stateData.Version = v
	stateMu.Unlock()
	metrics.SetBuildInfo(v, sha, date)
}

// GetVersionInfo returns the build metadata.
func GetVersionInfo() VersionInfo {
	return buildInfo
}

// SetBridgeInfo records the bridge identity shown in status and sent with
// registrations.
func SetBridgeInfo(id, name string) {
	stateMu.Lock()
	stateData.BridgeID = id
	stateData.BridgeName = name
	stateMu.Unlock()
}

// SetMode records a mode transition and why it happened.
func SetMode(m Mode, reason string) {
	stateMu.Lock()
	stateData.Mode = m
	stateData.Reason = reason
	stateMu.Unlock()
	metrics.SetConnectionMode(string(m))
	logx.Log.Info().Str("mode", string(m)).Str("reason", reason).Msg("connection mode changed")
}

// GetMode returns the current connection mode.
func GetMode() Mode {
	stateMu.RLock()
	defer stateMu.RUnlock()
	return stateData.Mode
}

// SetSessionID records the relay-assigned session id.
func SetSessionID(id string) {
	stateMu.Lock()
	stateData.SessionID = id
	stateMu.Unlock()
}

// SetToolsRegistered records how many tools the relay accepted.
func SetToolsRegistered(n int) {
	stateMu.Lock()
	stateData.ToolsRegistered = n
	stateMu.Unlock()
	metrics.SetToolsRegistered(n)
}

// SetLastError records the most recent fatal error.
func SetLastError(msg string) {
	stateMu.Lock()
	stateData.LastError = msg
	stateMu.Unlock()
}

func setLegacyAddr(addr string) {
	stateMu.Lock()
	stateData.LegacyAddr = addr
	stateMu.Unlock()
}

func setInFlightFn(fn func() int) {
	stateMu.Lock()
	inFlightFn = fn
	stateMu.Unlock()
}

// StartDrain stops new tool calls from executing. In-flight calls finish.
func StartDrain() {
	draining.Store(true)
	logx.Log.Info().Msg("drain started")
}

// StopDrain resumes normal execution.
func StopDrain() {
	draining.Store(false)
	logx.Log.Info().Msg("drain stopped")
}

// IsDraining reports whether the bridge is refusing new tool calls.
func IsDraining() bool {
	return draining.Load()
}

// GetState returns a snapshot of the bridge state.
func GetState() State {
	stateMu.RLock()
	st := stateData
	fn := inFlightFn
	stateMu.RUnlock()
	if fn != nil {
		st.CallsInFlight = fn()
	}
	st.Draining = draining.Load()
	return st
}
