package tools

import (
	"encoding/json"
	"fmt"
)

// Error codes carried by failed tool results. ok=false always carries one.
const (
	// CodeNoTool is returned for unknown or not-callable tool names.
	CodeNoTool = "E_NO_TOOL"
	// CodeInvalidArgs is returned when argument validation fails; the
	// handler is never reached.
	CodeInvalidArgs = "E_INVALID_ARGS"
	// CodeTool is returned when a handler fails or panics.
	CodeTool = "E_TOOL"
	// CodePolicy is returned when a tool is outside the allowed set.
	CodePolicy = "E_POLICY"
	// CodeDenied is returned when the confirmation predicate declines.
	CodeDenied = "E_DENIED"
	// CodeUnsafeCommand is returned by the command-safety evaluator.
	CodeUnsafeCommand = "E_UNSAFE_COMMAND"
)

// ToolError is the machine-readable error half of a Result.
type ToolError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Result is the uniform outcome of a tool dispatch. Payload and Err are
// mutually exclusive by convention; handlers may still attach a partial
// payload to a recoverable error.
type Result struct {
	OK      bool           `json:"ok"`
	Payload map[string]any `json:"payload,omitempty"`
	Err     *ToolError     `json:"error,omitempty"`
}

// Ok builds a successful result.
func Ok(payload map[string]any) *Result {
	return &Result{OK: true, Payload: payload}
}

// Fail builds a failed result with the given code.
func Fail(code, format string, args ...any) *Result {
	return &Result{OK: false, Err: &ToolError{Code: code, Message: fmt.Sprintf(format, args...)}}
}

// FailWithDetails builds a failed result carrying structured details.
func FailWithDetails(code, message string, details map[string]any) *Result {
	return &Result{OK: false, Err: &ToolError{Code: code, Message: message, Details: details}}
}

// Render serializes the result for feeding back into model context.
func (r *Result) Render() string {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf(`{"ok":false,"error":{"code":%q,"message":"unrenderable result"}}`, CodeTool)
	}
	return string(data)
}
