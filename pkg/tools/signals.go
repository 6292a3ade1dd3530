package tools

// Signal tool specs. These appear in the tool definitions sent to the model
// so it can declare step completion, request a replan, or deliver a final
// answer, but they carry no handlers: the executor intercepts them before
// dispatch. A call that reaches the dispatcher anyway gets E_NO_TOOL.

func StepDoneSpec() *Spec {
	return &Spec{
		Name:        ToolStepDone,
		Description: "Declare the current plan step complete. Include a short summary of what was accomplished.",
		Schema: Schema{
			"summary": {Type: "string", Description: "What was accomplished in this step", Required: true},
		},
		VisibleToModel: true,
		Callable:       false,
	}
}

func ReplanSpec() *Spec {
	return &Spec{
		Name:        ToolReplan,
		Description: "Request a new plan when the current plan cannot proceed. Explain what went wrong.",
		Schema: Schema{
			"reason": {Type: "string", Description: "Why the current plan cannot proceed", Required: true},
		},
		VisibleToModel: true,
		Callable:       false,
	}
}

func FinalAnswerSpec() *Spec {
	return &Spec{
		Name:        ToolFinalAnswer,
		Description: "Deliver the final answer to the user and end the turn.",
		Schema: Schema{
			"answer": {Type: "string", Description: "Final response for the user", Required: true},
		},
		VisibleToModel: true,
		Callable:       false,
	}
}

// DefaultSpecs assembles the full tool set for a workspace.
func DefaultSpecs(ws *Workspace) []*Spec {
	return []*Spec{
		ReadFileSpec(ws),
		ListFilesSpec(ws),
		SearchFilesSpec(ws),
		WriteFileSpec(ws),
		EditFileSpec(ws),
		ShellSpec(ws),
		WebFetchSpec(ws),
		StepDoneSpec(),
		ReplanSpec(),
		FinalAnswerSpec(),
	}
}
