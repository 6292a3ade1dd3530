package plan

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Parse failures are hard errors the planner retries against its budget.
var (
	ErrMalformed   = errors.New("plan is not valid JSON")
	ErrNoSteps     = errors.New("plan has no steps")
	ErrDuplicateID = errors.New("duplicate step id")
	ErrUnknownDep  = errors.New("dependency references unknown step id")
	ErrSelfDep     = errors.New("step depends on itself")
	ErrEmptyStepID = errors.New("step has empty id")
)

// Parse decodes a model reply into a validated Plan. The reply may wrap the
// JSON object in markdown fences or prose; the first balanced object is
// extracted. Duplicate step ids and broken dependency references are hard
// failures, never repaired. Plans longer than maxSteps are truncated, not
// rejected.
func Parse(raw string, maxSteps int) (*Plan, error) {
	jsonText := ExtractJSON(raw)
	if jsonText == "" {
		return nil, fmt.Errorf("%w: no JSON object found in reply", ErrMalformed)
	}

	var p Plan
	if err := json.Unmarshal([]byte(jsonText), &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(p.Steps) == 0 {
		return nil, ErrNoSteps
	}

	if maxSteps > 0 && len(p.Steps) > maxSteps {
		p.Steps = p.Steps[:maxSteps]
		p.Truncated = true
	}

	seen := make(map[string]bool, len(p.Steps))
	for _, s := range p.Steps {
		if strings.TrimSpace(s.ID) == "" {
			return nil, ErrEmptyStepID
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateID, s.ID)
		}
		seen[s.ID] = true
		s.Status = StatusPending
	}

	for _, s := range p.Steps {
		for _, dep := range s.Dependencies {
			if dep == s.ID {
				return nil, fmt.Errorf("%w: %q", ErrSelfDep, s.ID)
			}
			if !seen[dep] {
				// A dep pointing past a truncation cut is also unknown.
				return nil, fmt.Errorf("%w: step %q depends on %q", ErrUnknownDep, s.ID, dep)
			}
		}
	}

	if p.Title == "" {
		p.Title = "untitled plan"
	}
	return &p, nil
}

// ExtractJSON pulls the first balanced JSON object out of free text,
// tolerating markdown code fences and surrounding prose. Braces inside
// string literals are ignored.
func ExtractJSON(raw string) string {
	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return raw[start : i+1]
			}
		}
	}
	return ""
}

// SingleStep builds a one-step plan around a description. The planner uses
// this to recover when the model answers a planning prompt with a tool call
// instead of a plan.
func SingleStep(title, description string, toolsExpected []string) *Plan {
	return &Plan{
		Title: title,
		Steps: []*Step{{
			ID:            "step-1",
			Description:   description,
			ToolsExpected: toolsExpected,
			Status:        StatusPending,
		}},
	}
}
