package tools

import (
	"testing"
)

func TestSchemaValidate(t *testing.T) {
	schema := Schema{
		"path":    {Type: "string", Required: true},
		"limit":   {Type: "integer", Default: 100},
		"ratio":   {Type: "number"},
		"force":   {Type: "boolean"},
		"mode":    {Type: "string", Enum: []string{"flat", "recursive"}},
		"entries": {Type: "array"},
	}

	t.Run("valid with defaults", func(t *testing.T) {
		args, errs := schema.Validate(map[string]any{"path": "a.go"})
		if len(errs) > 0 {
			t.Fatalf("errors: %v", errs)
		}
		if args["limit"] != 100 {
			t.Errorf("default not applied: %v", args["limit"])
		}
	})

	t.Run("json float to integer", func(t *testing.T) {
		args, errs := schema.Validate(map[string]any{"path": "a", "limit": float64(5)})
		if len(errs) > 0 {
			t.Fatalf("errors: %v", errs)
		}
		if args["limit"] != 5 {
			t.Errorf("limit = %v (%T)", args["limit"], args["limit"])
		}
	})

	t.Run("fractional number rejected for integer", func(t *testing.T) {
		_, errs := schema.Validate(map[string]any{"path": "a", "limit": 1.5})
		if len(errs) == 0 {
			t.Error("fractional integer accepted")
		}
	})

	t.Run("missing required", func(t *testing.T) {
		_, errs := schema.Validate(map[string]any{})
		if len(errs) != 1 || errs[0].Field != "path" {
			t.Errorf("errs = %v", errs)
		}
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		_, errs := schema.Validate(map[string]any{"path": "a", "wat": 1})
		if len(errs) == 0 {
			t.Error("unknown field accepted")
		}
	})

	t.Run("enum membership", func(t *testing.T) {
		if _, errs := schema.Validate(map[string]any{"path": "a", "mode": "flat"}); len(errs) > 0 {
			t.Errorf("valid enum value rejected: %v", errs)
		}
		if _, errs := schema.Validate(map[string]any{"path": "a", "mode": "sideways"}); len(errs) == 0 {
			t.Error("invalid enum value accepted")
		}
	})

	t.Run("type mismatches", func(t *testing.T) {
		_, errs := schema.Validate(map[string]any{"path": 3, "force": "yes", "entries": "nope"})
		if len(errs) != 3 {
			t.Errorf("got %d errors, want 3: %v", len(errs), errs)
		}
	})
}

func TestSchemaInputSchema(t *testing.T) {
	schema := Schema{
		"a": {Type: "string", Required: true, Description: "first"},
		"b": {Type: "integer"},
	}

	out := schema.InputSchema()
	if out.Type != "object" {
		t.Errorf("Type = %q", out.Type)
	}
	if len(out.Required) != 1 || out.Required[0] != "a" {
		t.Errorf("Required = %v", out.Required)
	}
	if out.Properties["a"].Description != "first" {
		t.Errorf("Properties = %v", out.Properties)
	}
}

func TestWorkspaceResolve(t *testing.T) {
	ws := NewWorkspace("/tmp/work")

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"simple relative", "src/main.go", false},
		{"dot segments collapsing inside", "src/../main.go", false},
		{"empty", "", true},
		{"absolute", "/etc/passwd", true},
		{"escape via dotdot", "../secrets", true},
		{"deep escape", "a/../../b", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ws.Resolve(tt.path)
			if (err != nil) != tt.wantErr {
				t.Errorf("Resolve(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
		})
	}
}
