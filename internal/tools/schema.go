package tools

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// schemaFor reflects a JSON Schema object from an argument struct. Field
// tags carry the type, format and description the model sees.
func schemaFor(args any) (map[string]any, error) {
	r := &jsonschema.Reflector{
		ExpandedStruct: true,
		DoNotReference: true,
	}
	s := r.Reflect(args)

	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	// Providers reject or ignore these; keep the object minimal.
	delete(out, "$schema")
	delete(out, "$id")
	if _, ok := out["properties"]; !ok {
		out["properties"] = map[string]any{}
	}
	if _, ok := out["required"]; !ok {
		out["required"] = []any{}
	}
	return out, nil
}

// mustSchema is schemaFor for argument types fixed at compile time.
func mustSchema(args any) map[string]any {
	s, err := schemaFor(args)
	if err != nil {
		panic(err)
	}
	return s
}
