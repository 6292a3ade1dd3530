// Package undo records hash-verified snapshots of file mutations so a change
// can be reversed safely later.
package undo

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"agentd/pkg/logx"
	"agentd/pkg/persistence"
)

// ErrConflict means the file changed since the recorded mutation. Undo
// refuses to restore over it unless forced.
var ErrConflict = errors.New("file content does not match recorded state")

// hashEmpty marks a file that did not exist at snapshot time.
const hashEmpty = "absent"

// Recorder captures before/after snapshots of file mutations. Backups live
// under backupDir; metadata goes to the store.
type Recorder struct {
	store     *persistence.Store
	root      string
	backupDir string
	traceID   string
	logger    *logx.Logger
}

func NewRecorder(store *persistence.Store, workspaceRoot, backupDir, traceID string) *Recorder {
	return &Recorder{
		store:     store,
		root:      workspaceRoot,
		backupDir: backupDir,
		traceID:   traceID,
		logger:    logx.NewLogger("undo"),
	}
}

// Record stores an undo record for one mutation of relPath. before is nil
// when the file did not previously exist.
func (r *Recorder) Record(relPath string, before, after []byte) error {
	id := uuid.New().String()

	backupPath := ""
	if before != nil {
		if err := os.MkdirAll(r.backupDir, 0o755); err != nil {
			return fmt.Errorf("failed to create backup dir: %w", err)
		}
		backupPath = filepath.Join(r.backupDir, id)
		if err := os.WriteFile(backupPath, before, 0o600); err != nil {
			return fmt.Errorf("failed to write backup for %s: %w", relPath, err)
		}
	}

	rec := &persistence.UndoRecord{
		ID:         id,
		TraceID:    r.traceID,
		Path:       relPath,
		BeforeHash: hashBytes(before),
		AfterHash:  hashBytes(after),
		BackupPath: backupPath,
	}
	if err := r.store.SaveUndo(rec); err != nil {
		return err
	}
	r.logger.Debug("recorded mutation of %s (undo id %s)", relPath, id)
	return nil
}

// Undo restores relPath to its pre-mutation content using the most recent
// record. The current file hash must match the recorded after-hash; a
// mismatch fails with ErrConflict unless force is set.
func (r *Recorder) Undo(relPath string, force bool) error {
	rec, err := r.store.LatestUndo(relPath)
	if err != nil {
		return err
	}

	absPath := filepath.Join(r.root, relPath)
	current, readErr := os.ReadFile(absPath)
	if readErr != nil && !os.IsNotExist(readErr) {
		return fmt.Errorf("failed to read %s: %w", relPath, readErr)
	}
	if os.IsNotExist(readErr) {
		current = nil
	}

	if !force && hashBytes(current) != rec.AfterHash {
		return fmt.Errorf("undo %s: %w", relPath, ErrConflict)
	}

	if rec.BackupPath == "" {
		// The mutation created the file; undo removes it.
		if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", relPath, err)
		}
		r.logger.Info("undid creation of %s", relPath)
		return nil
	}

	backup, err := os.ReadFile(rec.BackupPath)
	if err != nil {
		return fmt.Errorf("failed to read backup for %s: %w", relPath, err)
	}
	if hashBytes(backup) != rec.BeforeHash {
		return fmt.Errorf("backup for %s is corrupt: %w", relPath, ErrConflict)
	}

	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return fmt.Errorf("failed to create directories for %s: %w", relPath, err)
	}
	if err := os.WriteFile(absPath, backup, 0o644); err != nil {
		return fmt.Errorf("failed to restore %s: %w", relPath, err)
	}
	r.logger.Info("restored %s from backup", relPath)
	return nil
}

func hashBytes(data []byte) string {
	if data == nil {
		return hashEmpty
	}
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}
