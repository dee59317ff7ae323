package registry

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// SchemaFor derives the parameter schema for a tool input struct type T.
// Struct tags (json, jsonschema) drive the generated document, which always
// has the object type at its root so it can be sent as-is in a registration.
func SchemaFor[T any]() json.RawMessage {
	r := jsonschema.Reflector{
		Anonymous:                 true,
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: true,
	}
	var zero T
	s := r.Reflect(&zero)
	s.Version = ""
	b, err := json.Marshal(s)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return b
}
