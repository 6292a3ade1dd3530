// Package tools provides the declarative tool catalog: argument schemas,
// side-effect policy, the immutable registry, and the dispatch gate that
// stands between model output and real file or process mutation.
package tools

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Field declares one argument of a tool schema.
type Field struct {
	Type        string // string | integer | number | boolean | array | object
	Description string
	Required    bool
	Default     any
	Enum        []string
}

// Schema maps argument names to their declarations.
type Schema map[string]Field

// Property is the JSON-schema-shaped form of a field, exposed to providers.
type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// InputSchema is the JSON-schema object handed to model providers.
type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties,omitempty"`
	Required   []string            `json:"required,omitempty"`
}

// Definition is the model-facing description of a tool.
type Definition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"input_schema"`
}

// InputSchema derives the provider-facing schema from the field table.
func (s Schema) InputSchema() InputSchema {
	out := InputSchema{Type: "object", Properties: make(map[string]Property, len(s))}
	for name, f := range s {
		out.Properties[name] = Property{Type: f.Type, Description: f.Description, Enum: f.Enum}
		if f.Required {
			out.Required = append(out.Required, name)
		}
	}
	sort.Strings(out.Required)
	return out
}

// FieldError describes one argument validation failure.
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) String() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Validate checks raw arguments against the schema: unknown fields are
// rejected, required fields enforced, values coerced to their declared
// types, enum membership checked, and defaults applied for missing optional
// fields. On success the returned map is safe to hand to a handler.
func (s Schema) Validate(raw map[string]any) (map[string]any, []FieldError) {
	var errs []FieldError
	validated := make(map[string]any, len(s))

	// Unknown fields are a hard failure, not silently dropped.
	for name := range raw {
		if _, ok := s[name]; !ok {
			errs = append(errs, FieldError{Field: name, Reason: "unknown field"})
		}
	}

	for name, field := range s {
		value, present := raw[name]
		if !present || value == nil {
			if field.Required {
				errs = append(errs, FieldError{Field: name, Reason: "required field missing"})
				continue
			}
			if field.Default != nil {
				validated[name] = field.Default
			}
			continue
		}

		coerced, err := coerce(field.Type, value)
		if err != nil {
			errs = append(errs, FieldError{Field: name, Reason: err.Error()})
			continue
		}

		if len(field.Enum) > 0 {
			str, ok := coerced.(string)
			if !ok || !contains(field.Enum, str) {
				errs = append(errs, FieldError{
					Field:  name,
					Reason: fmt.Sprintf("must be one of [%s]", strings.Join(field.Enum, ", ")),
				})
				continue
			}
		}

		validated[name] = coerced
	}

	if len(errs) > 0 {
		sort.Slice(errs, func(i, j int) bool { return errs[i].Field < errs[j].Field })
		return nil, errs
	}
	return validated, nil
}

// coerce converts a JSON-decoded value into the declared type. JSON numbers
// arrive as float64; integer fields accept them only when integral.
func coerce(declaredType string, value any) (any, error) {
	switch declaredType {
	case "string":
		if s, ok := value.(string); ok {
			return s, nil
		}
		return nil, fmt.Errorf("expected string, got %T", value)
	case "integer":
		switch v := value.(type) {
		case int:
			return v, nil
		case int64:
			return int(v), nil
		case float64:
			if v != math.Trunc(v) {
				return nil, fmt.Errorf("expected integer, got fractional number %v", v)
			}
			return int(v), nil
		default:
			return nil, fmt.Errorf("expected integer, got %T", value)
		}
	case "number":
		switch v := value.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		default:
			return nil, fmt.Errorf("expected number, got %T", value)
		}
	case "boolean":
		if b, ok := value.(bool); ok {
			return b, nil
		}
		return nil, fmt.Errorf("expected boolean, got %T", value)
	case "array":
		if a, ok := value.([]any); ok {
			return a, nil
		}
		return nil, fmt.Errorf("expected array, got %T", value)
	case "object":
		if m, ok := value.(map[string]any); ok {
			return m, nil
		}
		return nil, fmt.Errorf("expected object, got %T", value)
	default:
		return nil, fmt.Errorf("schema declares unsupported type %q", declaredType)
	}
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// StringArg extracts a validated string argument.
func StringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

// IntArg extracts a validated integer argument with a fallback.
func IntArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return fallback
	}
}

// BoolArg extracts a validated boolean argument.
func BoolArg(args map[string]any, key string) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return false
}
