package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

const (
	defaultShellTimeout = 120 * time.Second
	maxShellTimeout     = 600 * time.Second
	maxShellOutput      = 50 * 1024
)

// ShellSpec returns the shell tool. Commands run with the workspace root as
// the working directory. The command string is screened against the deny
// patterns before the handler is reached.
func ShellSpec(ws *Workspace) *Spec {
	return &Spec{
		Name:        ToolShell,
		Description: "Execute a shell command in the workspace. Output is combined stdout and stderr, truncated if large.",
		Schema: Schema{
			"command":    {Type: "string", Description: "Command to execute via sh -c", Required: true},
			"timeout_ms": {Type: "integer", Description: "Timeout in milliseconds", Default: int(defaultShellTimeout / time.Millisecond)},
		},
		Example:        map[string]any{"command": "go test ./...", "timeout_ms": 120000},
		Effects:        []Effect{EffectExec},
		VisibleToModel: true,
		Callable:       true,
		Handler: func(ctx context.Context, args map[string]any) *Result {
			if ws.ReadOnly {
				return Fail(CodePolicy, "workspace is read-only")
			}

			timeout := time.Duration(IntArg(args, "timeout_ms", int(defaultShellTimeout/time.Millisecond))) * time.Millisecond
			if timeout <= 0 || timeout > maxShellTimeout {
				timeout = defaultShellTimeout
			}
			cmdCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			command := StringArg(args, "command")
			cmd := exec.CommandContext(cmdCtx, "sh", "-c", command)
			cmd.Dir = ws.Root
			if ws.NetworkDisabled {
				cmd.Env = append(cmd.Environ(),
					"http_proxy=http://127.0.0.1:1",
					"https_proxy=http://127.0.0.1:1",
					"no_proxy=",
				)
			}

			var out bytes.Buffer
			cmd.Stdout = &out
			cmd.Stderr = &out

			start := time.Now()
			runErr := cmd.Run()
			elapsed := time.Since(start)

			output := out.String()
			truncated := false
			if len(output) > maxShellOutput {
				output = output[:maxShellOutput] + "\n…[output truncated]"
				truncated = true
			}

			exitCode := -1
			if cmd.ProcessState != nil {
				exitCode = cmd.ProcessState.ExitCode()
			}
			payload := map[string]any{
				"output":      output,
				"exit_code":   exitCode,
				"duration_ms": elapsed.Milliseconds(),
				"truncated":   truncated,
			}

			if cmdCtx.Err() == context.DeadlineExceeded {
				return FailWithDetails(CodeTool, fmt.Sprintf("command timed out after %s", timeout), payload)
			}
			if runErr != nil {
				var exitErr *exec.ExitError
				if errors.As(runErr, &exitErr) {
					// Nonzero exit is still a usable observation for the model.
					return Ok(payload)
				}
				return Fail(CodeTool, "command failed to start: %v", runErr)
			}
			return Ok(payload)
		},
	}
}
