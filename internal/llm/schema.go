package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// matchResponseSchema describes the semantic matcher reply. Either key is
// accepted for the ID list.
func matchResponseSchema() map[string]any {
	ids := map[string]any{
		"type":  "array",
		"items": map[string]any{"type": "string", "minLength": 1},
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"product_ids": ids,
			"produto_ids": ids,
		},
		"anyOf": []any{
			map[string]any{"required": []string{"product_ids"}},
			map[string]any{"required": []string{"produto_ids"}},
		},
	}
}

// receiptResponseSchema describes the extraction reply. Extraction is
// best-effort, so violations are logged rather than rejected.
func receiptResponseSchema() map[string]any {
	number := map[string]any{"type": []string{"number", "string", "null"}}
	text := map[string]any{"type": []string{"string", "null"}}
	item := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":        text,
			"quantity":    number,
			"unit":        text,
			"unit_price":  number,
			"total_price": number,
		},
		"required": []string{"name"},
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"supplier":       text,
			"invoice_number": map[string]any{"type": []string{"string", "number", "null"}},
			"date":           text,
			"total":          number,
			"items":          map[string]any{"type": "array", "items": item},
		},
		"required": []string{"items"},
	}
}

// compileSchema compiles a schema held as a generic map.
func compileSchema(name string, schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// validateAgainst decodes data and validates it against schema.
func validateAgainst(schema *jsonschema.Schema, data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
