package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mcplink/toolbridge/internal/registry"
)

type toolResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	IsError bool `json:"isError"`
}

func runTool(t *testing.T, tool registry.Tool, input string) toolResult {
	t.Helper()
	raw, err := tool.Handler(context.Background(), json.RawMessage(input))
	if err != nil {
		t.Fatalf("%s: %v", tool.Name, err)
	}
	var res toolResult
	if err := json.Unmarshal(raw, &res); err != nil {
		t.Fatalf("decode result %s: %v", raw, err)
	}
	if len(res.Content) == 0 || res.Content[0].Type != "text" {
		t.Fatalf("expected text content, got %s", raw)
	}
	return res
}

func TestEchoTool(t *testing.T) {
	res := runTool(t, Echo(), `{"message":"hi"}`)
	if res.Content[0].Text != "Echo: hi" {
		t.Fatalf("wrong text: %q", res.Content[0].Text)
	}
	if res.IsError {
		t.Fatal("unexpected error flag")
	}
}

func TestEchoToolDefaultMessage(t *testing.T) {
	res := runTool(t, Echo(), `{}`)
	if res.Content[0].Text != "Echo: (no message provided)" {
		t.Fatalf("wrong text: %q", res.Content[0].Text)
	}
}

func TestEchoToolSchemaAcceptsEmptyInput(t *testing.T) {
	if err := registry.ValidateInput(Echo().Parameters, json.RawMessage(`{}`)); err != nil {
		t.Fatalf("empty input rejected: %v", err)
	}
	if err := registry.ValidateInput(Echo().Parameters, json.RawMessage(`{"message":42}`)); err == nil {
		t.Fatal("expected type error")
	}
}

func TestSystemInfoTool(t *testing.T) {
	res := runTool(t, SystemInfo(), `{}`)
	var rep map[string]any
	if err := json.Unmarshal([]byte(res.Content[0].Text), &rep); err != nil {
		t.Fatalf("report is not JSON: %v", err)
	}
	if _, ok := rep["cpu_count"]; !ok {
		t.Fatalf("cpu_count missing: %v", rep)
	}
}

func TestBridgeStatusTool(t *testing.T) {
	tool := BridgeStatus(func() any {
		return struct {
			Mode string `json:"mode"`
		}{Mode: "legacy_direct"}
	})
	res := runTool(t, tool, `{}`)
	if !strings.Contains(res.Content[0].Text, "legacy_direct") {
		t.Fatalf("snapshot missing from text: %q", res.Content[0].Text)
	}
}

func TestDefaultsContainAllBuiltins(t *testing.T) {
	reg := registry.New()
	for _, tool := range Defaults(func() any { return nil }) {
		if err := reg.Add(tool); err != nil {
			t.Fatalf("add %s: %v", tool.Name, err)
		}
	}
	for _, name := range []string{"echo", "system_info", "bridge_status"} {
		if _, ok := reg.Get(name); !ok {
			t.Fatalf("missing builtin %s", name)
		}
	}
}
