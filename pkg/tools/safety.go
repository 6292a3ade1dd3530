package tools

import (
	"fmt"
	"regexp"
)

// CommandEvaluator screens shell commands against deny patterns before any
// exec-effect handler runs. It is independent of the human confirmation
// step: a denied pattern is rejected even if the user would have confirmed.
type CommandEvaluator struct {
	patterns []*regexp.Regexp
	sources  []string
}

// NewCommandEvaluator compiles the deny patterns. Invalid patterns are a
// construction error rather than silently skipped.
func NewCommandEvaluator(denyPatterns []string) (*CommandEvaluator, error) {
	e := &CommandEvaluator{}
	for _, p := range denyPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid deny pattern %q: %w", p, err)
		}
		e.patterns = append(e.patterns, re)
		e.sources = append(e.sources, p)
	}
	return e, nil
}

// Evaluate returns the matched deny pattern, or "" if the command is allowed.
func (e *CommandEvaluator) Evaluate(command string) string {
	for i, re := range e.patterns {
		if re.MatchString(command) {
			return e.sources[i]
		}
	}
	return ""
}
