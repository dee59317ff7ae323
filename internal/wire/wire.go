// Package wire defines the JSON records exchanged with the relay push
// stream, the relay RPC endpoint, and the legacy direct transport.
package wire

import "encoding/json"

// Method names for bridge-initiated relay requests.
const (
	MethodHello    = "bridge/hello"
	MethodRegister = "tools/register"
)

// Legacy transport response statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Event is one record read from the relay push stream. A record carrying a
// request_id is the reply to an earlier bridge request; a record carrying a
// call_id is a reverse tool call initiated by the relay.
type Event struct {
	RequestID string          `json:"request_id,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CallID    string          `json:"call_id,omitempty"`
	Tool      string          `json:"tool,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
}

// IsReply reports whether the event answers a correlated request.
func (e Event) IsReply() bool { return e.RequestID != "" }

// IsCall reports whether the event is a reverse tool call.
func (e Event) IsCall() bool { return e.CallID != "" }

// Request is the body posted to the relay rpc endpoint. The reply arrives
// later on the push stream tagged with the same RequestID.
type Request struct {
	RequestID string `json:"request_id"`
	Method    string `json:"method"`
	Params    any    `json:"params,omitempty"`
}

// Registration is the params payload of a tools/register request.
type Registration struct {
	ToolName         string          `json:"tool_name"`
	Description      string          `json:"description,omitempty"`
	Readme           string          `json:"readme,omitempty"`
	Parameters       json.RawMessage `json:"parameters,omitempty"`
	CallbackEndpoint string          `json:"callback_endpoint"`
	Credential       string          `json:"credential,omitempty"`
	BridgeVersion    string          `json:"bridge_version,omitempty"`
}

// RegistrationResult is the result carried by a tools/register reply.
type RegistrationResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HelloParams is the params payload of a bridge/hello probe.
type HelloParams struct {
	BridgeID   string `json:"bridge_id"`
	BridgeName string `json:"bridge_name,omitempty"`
	Version    string `json:"version,omitempty"`
}

// HelloResult is the result carried by a bridge/hello reply.
type HelloResult struct {
	SessionID string `json:"session_id,omitempty"`
}

// Reply is posted to the relay reply endpoint to answer a reverse call.
// Exactly one of Result or Error is set.
type Reply struct {
	CallID string          `json:"call_id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Command is one request on the legacy direct transport.
type Command struct {
	Type   string          `json:"type"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response answers a legacy command. Status is "success" or "error".
type Response struct {
	Status string          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}
