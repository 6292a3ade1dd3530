// Package verify runs workspace self-checks after mutating actions and turns
// failures into corrective context for the model.
package verify

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"agentd/pkg/config"
	"agentd/pkg/logx"
)

const defaultTimeout = 2 * time.Minute

// Report is the outcome of one verification pass. A failing report is fed
// back into context; it never stops the turn by itself.
type Report struct {
	Passed  bool
	Checked []string
	Errors  []string
	Elided  int
}

// Summary renders the report for the model. Failures list the first N errors
// with their source locations as emitted by the check command.
func (r *Report) Summary() string {
	if r.Passed {
		return fmt.Sprintf("Verification passed (%d files checked).", len(r.Checked))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Verification FAILED (%d files checked):\n", len(r.Checked))
	for _, e := range r.Errors {
		fmt.Fprintf(&b, "  %s\n", e)
	}
	if r.Elided > 0 {
		fmt.Fprintf(&b, "  …and %d more errors\n", r.Elided)
	}
	b.WriteString("Fix these before declaring the step done.")
	return b.String()
}

// Verifier executes the configured check command against touched files.
type Verifier struct {
	cfg    config.Verify
	root   string
	logger *logx.Logger
}

func New(cfg config.Verify, workspaceRoot string) *Verifier {
	return &Verifier{
		cfg:    cfg,
		root:   workspaceRoot,
		logger: logx.NewLogger("verify"),
	}
}

// Check runs the check command scoped to the touched files that match the
// configured extensions. With no command configured, or no relevant files,
// the check passes vacuously.
func (v *Verifier) Check(ctx context.Context, touched []string) *Report {
	relevant := v.filterByExtension(touched)
	report := &Report{Passed: true, Checked: relevant}
	if v.cfg.Command == "" || len(relevant) == 0 {
		return report
	}

	timeout := v.cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// {files} expands to the touched file list; commands without the
	// placeholder run workspace-wide.
	command := v.cfg.Command
	if strings.Contains(command, "{files}") {
		command = strings.ReplaceAll(command, "{files}", shellQuoteAll(relevant))
	}

	cmd := exec.CommandContext(cmdCtx, "sh", "-c", command)
	cmd.Dir = v.root
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if err == nil {
		v.logger.Debug("verification passed for %d files", len(relevant))
		return report
	}

	report.Passed = false
	if cmdCtx.Err() == context.DeadlineExceeded {
		report.Errors = []string{fmt.Sprintf("verification command timed out after %s", timeout)}
		return report
	}

	report.Errors, report.Elided = collectErrors(out.String(), v.maxErrors())
	if len(report.Errors) == 0 {
		report.Errors = []string{fmt.Sprintf("verification command failed: %v", err)}
	}
	v.logger.Info("verification failed: %d errors (%d elided)", len(report.Errors), report.Elided)
	return report
}

func (v *Verifier) maxErrors() int {
	if v.cfg.MaxErrors > 0 {
		return v.cfg.MaxErrors
	}
	return 10
}

func (v *Verifier) filterByExtension(touched []string) []string {
	if len(v.cfg.Extensions) == 0 {
		return touched
	}
	var out []string
	for _, path := range touched {
		ext := filepath.Ext(path)
		for _, want := range v.cfg.Extensions {
			if ext == want {
				out = append(out, path)
				break
			}
		}
	}
	return out
}

// collectErrors keeps the first max non-empty output lines and counts the
// rest.
func collectErrors(output string, max int) ([]string, int) {
	var errs []string
	elided := 0
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if len(errs) < max {
			errs = append(errs, line)
		} else {
			elided++
		}
	}
	return errs, elided
}

func shellQuoteAll(paths []string) string {
	quoted := make([]string, 0, len(paths))
	for _, p := range paths {
		quoted = append(quoted, "'"+strings.ReplaceAll(p, "'", `'\''`)+"'")
	}
	return strings.Join(quoted, " ")
}
