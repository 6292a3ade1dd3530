package tools

// Tool name constants - use these instead of magic strings to prevent typos
// and enable compile-time checking.
const (
	// Read tools.
	ToolReadFile    = "read_file"
	ToolListFiles   = "list_files"
	ToolSearchFiles = "search_files"

	// Mutating tools.
	ToolWriteFile = "write_file"
	ToolEditFile  = "edit_file"
	ToolShell     = "shell"

	// Network tools.
	ToolWebFetch = "web_fetch"

	// Signal tools: visible to the model but intercepted by the executor's
	// decision decode, never dispatched to a handler.
	ToolStepDone    = "step_done"
	ToolReplan      = "replan"
	ToolFinalAnswer = "final_answer"
)

// ReadOnlyTools is the allow-list for conversational and query intents.
//
//nolint:gochecknoglobals // Immutable allow-list shared across turns
var ReadOnlyTools = []string{
	ToolReadFile, ToolListFiles, ToolSearchFiles, ToolWebFetch,
	ToolStepDone, ToolReplan, ToolFinalAnswer,
}

// AllTools lists every dispatchable and signal tool name.
//
//nolint:gochecknoglobals // Immutable list shared across turns
var AllTools = []string{
	ToolReadFile, ToolListFiles, ToolSearchFiles,
	ToolWriteFile, ToolEditFile, ToolShell, ToolWebFetch,
	ToolStepDone, ToolReplan, ToolFinalAnswer,
}
