package registry

import (
	"context"
	"encoding/json"
	"testing"
)

func nopHandler(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	return input, nil
}

func TestAddAndGet(t *testing.T) {
	r := New()
	if err := r.Add(Tool{Name: "echo", Handler: nopHandler}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := r.Add(Tool{Name: "system_info", Handler: nopHandler}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if r.Len() != 2 {
		t.Fatalf("len: %d", r.Len())
	}
	tool, ok := r.Get("echo")
	if !ok || tool.Name != "echo" {
		t.Fatalf("get echo: %v %v", tool, ok)
	}
	if _, ok := r.Get("absent"); ok {
		t.Fatal("unexpected tool")
	}
}

func TestAddRejectsIncompleteTool(t *testing.T) {
	r := New()
	if err := r.Add(Tool{Handler: nopHandler}); err == nil {
		t.Fatal("expected error for empty name")
	}
	if err := r.Add(Tool{Name: "broken"}); err == nil {
		t.Fatal("expected error for nil handler")
	}
}

func TestAddReplaceKeepsOrder(t *testing.T) {
	r := New()
	_ = r.Add(Tool{Name: "a", Description: "first", Handler: nopHandler})
	_ = r.Add(Tool{Name: "b", Handler: nopHandler})
	_ = r.Add(Tool{Name: "a", Description: "second", Handler: nopHandler})
	names := r.Names()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Fatalf("order changed: %v", names)
	}
	tool, _ := r.Get("a")
	if tool.Description != "second" {
		t.Fatalf("replacement not applied: %q", tool.Description)
	}
}

func TestSchemaForDescribesFields(t *testing.T) {
	type params struct {
		Message string `json:"message" jsonschema:"description=The message to echo back"`
		Count   int    `json:"count,omitempty"`
	}
	raw := SchemaFor[params]()
	var doc struct {
		Type       string                     `json:"type"`
		Properties map[string]json.RawMessage `json:"properties"`
		Required   []string                   `json:"required"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal schema: %v", err)
	}
	if doc.Type != "object" {
		t.Fatalf("root type: %q", doc.Type)
	}
	if _, ok := doc.Properties["message"]; !ok {
		t.Fatalf("message property missing: %s", raw)
	}
	if len(doc.Required) != 1 || doc.Required[0] != "message" {
		t.Fatalf("required: %v", doc.Required)
	}
}

func TestSchemaForEmptyStruct(t *testing.T) {
	type params struct{}
	raw := SchemaFor[params]()
	var doc struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal schema: %v", err)
	}
	if doc.Type != "object" {
		t.Fatalf("root type: %q", doc.Type)
	}
}

func TestValidateInput(t *testing.T) {
	type params struct {
		Message string `json:"message"`
	}
	schema := SchemaFor[params]()
	if err := ValidateInput(schema, json.RawMessage(`{"message":"hi"}`)); err != nil {
		t.Fatalf("valid input rejected: %v", err)
	}
	if err := ValidateInput(schema, json.RawMessage(`{"message":42}`)); err == nil {
		t.Fatal("expected type error")
	}
	if err := ValidateInput(schema, json.RawMessage(`{}`)); err == nil {
		t.Fatal("expected missing-field error")
	}
	if err := ValidateInput(nil, json.RawMessage(`{"anything":true}`)); err != nil {
		t.Fatalf("schemaless tool rejected input: %v", err)
	}
}
