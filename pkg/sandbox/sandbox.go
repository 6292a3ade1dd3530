// Package sandbox provides an isolated workspace copy for critical-risk
// runs. Execution happens against the copy; only files the run actually
// touched are merged back, and only after verification succeeds.
package sandbox

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"agentd/pkg/logx"
)

// Sandbox is a private filesystem copy of the workspace. It shares no
// mutable state with the real workspace until Merge.
type Sandbox struct {
	realRoot string
	Root     string
	merged   bool
	logger   *logx.Logger
}

// New copies the workspace into a fresh temporary directory. The .agentd
// state directory is not copied; sandboxed runs get their own.
func New(workspaceRoot string) (*Sandbox, error) {
	absRoot, err := filepath.Abs(workspaceRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
	}

	tmpDir, err := os.MkdirTemp("", "agentd-sandbox-")
	if err != nil {
		return nil, fmt.Errorf("failed to create sandbox dir: %w", err)
	}

	sb := &Sandbox{
		realRoot: absRoot,
		Root:     tmpDir,
		logger:   logx.NewLogger("sandbox"),
	}
	if err := sb.copyTree(absRoot, tmpDir); err != nil {
		_ = os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("failed to copy workspace into sandbox: %w", err)
	}
	sb.logger.Info("sandbox created at %s", tmpDir)
	return sb, nil
}

// Merge copies the touched files from the sandbox back into the real
// workspace. Paths are relative to the workspace root; anything escaping the
// root is rejected. A partial merge failure leaves already-copied files in
// place and reports the error.
func (s *Sandbox) Merge(touched []string) error {
	if s.merged {
		return fmt.Errorf("sandbox already merged")
	}
	for _, rel := range touched {
		clean := filepath.Clean(rel)
		if filepath.IsAbs(clean) || clean == ".." || len(clean) >= 3 && clean[:3] == ".."+string(filepath.Separator) {
			return fmt.Errorf("refusing to merge path outside workspace: %s", rel)
		}

		src := filepath.Join(s.Root, clean)
		dst := filepath.Join(s.realRoot, clean)

		info, err := os.Stat(src)
		if err != nil {
			if os.IsNotExist(err) {
				// Touched then deleted inside the sandbox.
				if rmErr := os.Remove(dst); rmErr != nil && !os.IsNotExist(rmErr) {
					return fmt.Errorf("failed to remove %s during merge: %w", clean, rmErr)
				}
				continue
			}
			return fmt.Errorf("failed to stat sandbox file %s: %w", clean, err)
		}

		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("failed to create directories for %s: %w", clean, err)
		}
		if err := copyFile(src, dst, info.Mode()); err != nil {
			return fmt.Errorf("failed to merge %s: %w", clean, err)
		}
		s.logger.Debug("merged %s", clean)
	}
	s.merged = true
	s.logger.Info("merged %d files into workspace", len(touched))
	return nil
}

// Discard removes the sandbox copy. The real workspace is untouched.
func (s *Sandbox) Discard() {
	if err := os.RemoveAll(s.Root); err != nil {
		s.logger.Warn("failed to remove sandbox %s: %v", s.Root, err)
		return
	}
	s.logger.Info("sandbox discarded")
}

func (s *Sandbox) copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if d.IsDir() && d.Name() == ".agentd" {
			return filepath.SkipDir
		}

		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			// Symlinks and devices stay out of the sandbox.
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return copyFile(path, target, info.Mode())
	})
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
