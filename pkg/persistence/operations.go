package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// ApprovalRecord is the durable form of an approval request. The plan
// snapshot is stored verbatim so the turn can be resumed across restarts.
type ApprovalRecord struct {
	ID          string
	Intent      string
	Risk        string
	PlanSummary string
	PlanJSON    string
	Status      string
	CreatedAt   time.Time
	DecidedAt   *time.Time
}

// Approval request statuses.
const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
)

// SaveApproval inserts a new approval request.
func (s *Store) SaveApproval(rec *ApprovalRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO approval_requests (id, intent, risk, plan_summary, plan_json, status) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Intent, rec.Risk, rec.PlanSummary, rec.PlanJSON, rec.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to save approval request %s: %w", rec.ID, err)
	}
	return nil
}

// GetApproval loads an approval request by id.
func (s *Store) GetApproval(id string) (*ApprovalRecord, error) {
	row := s.db.QueryRow(
		`SELECT id, intent, risk, plan_summary, plan_json, status, created_at, decided_at FROM approval_requests WHERE id = ?`,
		id,
	)

	var rec ApprovalRecord
	var decidedAt sql.NullTime
	err := row.Scan(&rec.ID, &rec.Intent, &rec.Risk, &rec.PlanSummary, &rec.PlanJSON, &rec.Status, &rec.CreatedAt, &decidedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("approval request %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load approval request %s: %w", id, err)
	}
	if decidedAt.Valid {
		rec.DecidedAt = &decidedAt.Time
	}
	return &rec, nil
}

// DecideApproval resolves a pending request. Terminal statuses never change
// again; deciding an already-decided request is an error.
func (s *Store) DecideApproval(id, status string) error {
	if status != ApprovalApproved && status != ApprovalRejected {
		return fmt.Errorf("invalid approval status %q", status)
	}
	res, err := s.db.Exec(
		`UPDATE approval_requests SET status = ?, decided_at = CURRENT_TIMESTAMP WHERE id = ? AND status = ?`,
		status, id, ApprovalPending,
	)
	if err != nil {
		return fmt.Errorf("failed to decide approval request %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check approval update for %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("approval request %s is not pending", id)
	}
	return nil
}

// PendingApprovals lists all pending approval requests, oldest first.
func (s *Store) PendingApprovals() ([]*ApprovalRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, intent, risk, plan_summary, plan_json, status, created_at, decided_at FROM approval_requests WHERE status = ? ORDER BY created_at`,
		ApprovalPending,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending approvals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*ApprovalRecord
	for rows.Next() {
		var rec ApprovalRecord
		var decidedAt sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.Intent, &rec.Risk, &rec.PlanSummary, &rec.PlanJSON, &rec.Status, &rec.CreatedAt, &decidedAt); err != nil {
			return nil, fmt.Errorf("failed to scan approval row: %w", err)
		}
		if decidedAt.Valid {
			rec.DecidedAt = &decidedAt.Time
		}
		result = append(result, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate approvals: %w", err)
	}
	return result, nil
}

// TurnRecord captures the durable state of a turn.
type TurnRecord struct {
	TraceID    string
	State      string
	StopReason string
	Goal       string
	UpdatedAt  time.Time
}

// SaveTurn upserts a turn record.
func (s *Store) SaveTurn(rec *TurnRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO turns (trace_id, state, stop_reason, goal, updated_at) VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(trace_id) DO UPDATE SET state = excluded.state, stop_reason = excluded.stop_reason, goal = excluded.goal, updated_at = CURRENT_TIMESTAMP`,
		rec.TraceID, rec.State, rec.StopReason, rec.Goal,
	)
	if err != nil {
		return fmt.Errorf("failed to save turn %s: %w", rec.TraceID, err)
	}
	return nil
}

// GetTurn loads a turn record by trace id.
func (s *Store) GetTurn(traceID string) (*TurnRecord, error) {
	row := s.db.QueryRow(
		`SELECT trace_id, state, COALESCE(stop_reason, ''), goal, updated_at FROM turns WHERE trace_id = ?`,
		traceID,
	)

	var rec TurnRecord
	err := row.Scan(&rec.TraceID, &rec.State, &rec.StopReason, &rec.Goal, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("turn %s: %w", traceID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load turn %s: %w", traceID, err)
	}
	return &rec, nil
}

// UndoRecord is the durable metadata for one file mutation.
type UndoRecord struct {
	ID         string
	TraceID    string
	Path       string
	BeforeHash string
	AfterHash  string
	BackupPath string
	CreatedAt  time.Time
}

// SaveUndo inserts an undo record.
func (s *Store) SaveUndo(rec *UndoRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO undo_records (id, trace_id, path, before_hash, after_hash, backup_path) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.TraceID, rec.Path, rec.BeforeHash, rec.AfterHash, rec.BackupPath,
	)
	if err != nil {
		return fmt.Errorf("failed to save undo record for %s: %w", rec.Path, err)
	}
	return nil
}

// LatestUndo returns the most recent undo record for a path.
func (s *Store) LatestUndo(path string) (*UndoRecord, error) {
	row := s.db.QueryRow(
		`SELECT id, trace_id, path, before_hash, after_hash, backup_path, created_at
		 FROM undo_records WHERE path = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		path,
	)

	var rec UndoRecord
	err := row.Scan(&rec.ID, &rec.TraceID, &rec.Path, &rec.BeforeHash, &rec.AfterHash, &rec.BackupPath, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("undo record for %s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load undo record for %s: %w", path, err)
	}
	return &rec, nil
}

// RecordUsage appends one model-call usage row.
func (s *Store) RecordUsage(traceID, model string, promptTokens, completionTokens int64, costUSD float64) error {
	_, err := s.db.Exec(
		`INSERT INTO usage (trace_id, model, prompt_tokens, completion_tokens, cost_usd) VALUES (?, ?, ?, ?, ?)`,
		traceID, model, promptTokens, completionTokens, costUSD,
	)
	if err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}
	return nil
}

// UsageTotals aggregates usage for a trace.
type UsageTotals struct {
	PromptTokens     int64
	CompletionTokens int64
	CostUSD          float64
}

// TurnUsage returns aggregated usage for one trace id.
func (s *Store) TurnUsage(traceID string) (*UsageTotals, error) {
	row := s.db.QueryRow(
		`SELECT COALESCE(SUM(prompt_tokens), 0), COALESCE(SUM(completion_tokens), 0), COALESCE(SUM(cost_usd), 0)
		 FROM usage WHERE trace_id = ?`,
		traceID,
	)

	var totals UsageTotals
	if err := row.Scan(&totals.PromptTokens, &totals.CompletionTokens, &totals.CostUSD); err != nil {
		return nil, fmt.Errorf("failed to aggregate usage for %s: %w", traceID, err)
	}
	return &totals, nil
}
