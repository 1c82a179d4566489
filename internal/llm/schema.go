package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/YorickdeJong/energy-contracts/internal/common"
)

// BuildExtractionJSONSchema describes the structure of a sanitized extraction
// answer. Dates and money are checked by the Validator after coercion, so the
// schema only pins their JSON types.
func BuildExtractionJSONSchema() map[string]any {
	nullableString := map[string]any{"type": []string{"string", "null"}}
	renter := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"first_name":   nullableString,
			"last_name":    nullableString,
			"email":        nullableString,
			"phone_number": nullableString,
			"is_primary":   map[string]any{"type": []string{"boolean", "null"}},
		},
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"start_date":   nullableString,
			"end_date":     nullableString,
			"monthly_rent": map[string]any{"type": []string{"number", "null"}},
			"deposit":      map[string]any{"type": []string{"number", "null"}},
			"renters":      map[string]any{"type": []string{"array", "null"}, "items": renter},
			"first_name":   nullableString,
			"last_name":    nullableString,
			"email":        nullableString,
			"phone_number": nullableString,
		},
	}
}

// CompileSchema compiles schemaMap with the jsonschema compiler.
func CompileSchema(schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// ValidateJSONAgainstSchema validates "data" against "schemaMap".
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	schema, err := CompileSchema(schemaMap)
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}

// schemaFieldErrors flattens a jsonschema failure into per-field errors.
func schemaFieldErrors(err error) []common.ValidationError {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []common.ValidationError{{Field: "", Message: err.Error()}}
	}
	var out []common.ValidationError
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			out = append(out, common.ValidationError{Field: pointerToField(e.InstanceLocation), Message: e.Message})
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return out
}

// pointerToField turns "/renters/0/email" into "renters[0].email".
func pointerToField(ptr string) string {
	parts := strings.Split(strings.TrimPrefix(ptr, "/"), "/")
	var b strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		if isIndex(p) {
			b.WriteString("[" + p + "]")
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(p)
	}
	return b.String()
}

func isIndex(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
