package tools

import (
	"fmt"
	"path/filepath"
	"strings"

	"agentd/pkg/logx"
)

// UndoRecorder captures before/after snapshots of file mutations so they can
// be reversed later; pkg/undo implements it.
type UndoRecorder interface {
	Record(relPath string, before, after []byte) error
}

// Workspace carries the per-run context shared by tool handlers: the
// workspace root, mutation tracking, and the undo recorder. A sandboxed run
// gets a Workspace rooted at the sandbox copy.
type Workspace struct {
	Root            string
	ReadOnly        bool
	NetworkDisabled bool
	Touched         *TouchedSet
	Undo            UndoRecorder

	logger *logx.Logger
}

// NewWorkspace creates a tool workspace rooted at root.
func NewWorkspace(root string) *Workspace {
	return &Workspace{
		Root:    root,
		Touched: NewTouchedSet(),
		logger:  logx.NewLogger("tools"),
	}
}

// Resolve maps a workspace-relative path to an absolute path, rejecting
// escapes outside the root.
func (w *Workspace) Resolve(relPath string) (string, error) {
	if relPath == "" {
		return "", fmt.Errorf("path must not be empty")
	}
	if filepath.IsAbs(relPath) {
		return "", fmt.Errorf("path must be relative to the workspace")
	}

	cleaned := filepath.Clean(relPath)
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the workspace", relPath)
	}
	return filepath.Join(w.Root, cleaned), nil
}

// markTouched records a mutation and the undo snapshot for it.
func (w *Workspace) markTouched(relPath string, before, after []byte) {
	w.Touched.Add(relPath)
	if w.Undo == nil {
		return
	}
	if err := w.Undo.Record(relPath, before, after); err != nil {
		w.logger.Warn("failed to record undo metadata for %s: %v", relPath, err)
	}
}
