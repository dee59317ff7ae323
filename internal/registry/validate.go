package registry

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ValidateInput checks a raw argument document against a tool's parameter
// schema. A tool without a schema accepts any input.
func ValidateInput(schema, input json.RawMessage) error {
	if len(schema) == 0 {
		return nil
	}
	if len(input) == 0 {
		input = json.RawMessage(`{}`)
	}
	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schema), gojsonschema.NewBytesLoader(input))
	if err != nil {
		return fmt.Errorf("validate input: %w", err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("input does not match schema: %s", strings.Join(msgs, "; "))
}
