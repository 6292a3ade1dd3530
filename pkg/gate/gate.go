// Package gate merges intent risk with plan risk and enforces the human
// approval checkpoint for high and critical risk turns.
package gate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"agentd/pkg/eventlog"
	"agentd/pkg/logx"
	"agentd/pkg/persistence"
	"agentd/pkg/plan"
	"agentd/pkg/proto"
	"agentd/pkg/tools"
)

// Thresholds for the plan-risk heuristic.
const (
	largePlanSteps = 8
)

var (
	// ErrPending means the approval request was persisted but not yet
	// decided. The turn ends and can resume later via the request id.
	ErrPending = errors.New("approval pending")
	// ErrRejected means a human rejected the request.
	ErrRejected = errors.New("approval rejected")
)

// Gate decides whether a turn may execute and under what containment.
type Gate struct {
	store    *persistence.Store
	registry *tools.Registry
	events   *eventlog.Stream
	logger   *logx.Logger
	waitPoll time.Duration
	waitMax  time.Duration
}

func New(store *persistence.Store, registry *tools.Registry, events *eventlog.Stream) *Gate {
	return &Gate{
		store:    store,
		registry: registry,
		events:   events,
		logger:   logx.NewLogger("gate"),
		waitPoll: 2 * time.Second,
		waitMax:  5 * time.Minute,
	}
}

// Assess computes the effective risk for the turn: the maximum of the
// intent's declared risk and a heuristic over the plan's shape.
func (g *Gate) Assess(intentRisk proto.RiskLevel, p *plan.Plan) proto.RiskLevel {
	return intentRisk.Max(g.planRisk(p))
}

// planRisk scores a plan by its expected tool side effects and size. Exec
// tools push to high, writes to medium; a very large plan bumps one level,
// never past high. Critical stays reserved for the intent classification.
func (g *Gate) planRisk(p *plan.Plan) proto.RiskLevel {
	if p == nil {
		return proto.RiskLow
	}

	risk := proto.RiskLow
	for _, step := range p.Steps {
		for _, toolName := range step.ToolsExpected {
			spec, ok := g.registry.Get(toolName)
			if !ok {
				continue
			}
			switch {
			case spec.HasEffect(tools.EffectExec):
				risk = risk.Max(proto.RiskHigh)
			case spec.HasEffect(tools.EffectWrite):
				risk = risk.Max(proto.RiskMedium)
			}
		}
	}

	if len(p.Steps) >= largePlanSteps && risk < proto.RiskHigh {
		risk++
	}
	return risk
}

// Request persists an approval request for the plan and emits the audit
// event. The returned id is stable across restarts.
func (g *Gate) Request(intentName string, risk proto.RiskLevel, p *plan.Plan) (string, error) {
	planJSON, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to snapshot plan: %w", err)
	}

	rec := &persistence.ApprovalRecord{
		ID:          uuid.New().String(),
		Intent:      intentName,
		Risk:        risk.String(),
		PlanSummary: p.Summary(),
		PlanJSON:    string(planJSON),
		Status:      persistence.ApprovalPending,
	}
	if err := g.store.SaveApproval(rec); err != nil {
		return "", err
	}

	if g.events != nil {
		g.events.Emit(proto.EventApprovalRequest, map[string]any{
			"request_id": rec.ID,
			"intent":     intentName,
			"risk":       risk.String(),
		})
	}
	g.logger.Info("approval requested: id=%s risk=%s intent=%s", rec.ID, risk, intentName)
	return rec.ID, nil
}

// AwaitDecision polls the store until the request is decided or the wait
// budget runs out. An undecided request returns ErrPending so the caller
// ends the turn resumably instead of proceeding on ambiguous input.
func (g *Gate) AwaitDecision(ctx context.Context, requestID string) error {
	deadline := time.Now().Add(g.waitMax)
	ticker := time.NewTicker(g.waitPoll)
	defer ticker.Stop()

	for {
		rec, err := g.store.GetApproval(requestID)
		if err != nil {
			return err
		}
		switch rec.Status {
		case persistence.ApprovalApproved:
			g.emitDecision(requestID, rec.Status)
			return nil
		case persistence.ApprovalRejected:
			g.emitDecision(requestID, rec.Status)
			return fmt.Errorf("request %s: %w", requestID, ErrRejected)
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("request %s: %w", requestID, ErrPending)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Resume loads a previously approved request and returns its plan snapshot.
// Pending and rejected requests return the corresponding sentinel.
func (g *Gate) Resume(requestID string) (*plan.Plan, error) {
	rec, err := g.store.GetApproval(requestID)
	if err != nil {
		return nil, err
	}
	switch rec.Status {
	case persistence.ApprovalPending:
		return nil, fmt.Errorf("request %s: %w", requestID, ErrPending)
	case persistence.ApprovalRejected:
		return nil, fmt.Errorf("request %s: %w", requestID, ErrRejected)
	}

	var p plan.Plan
	if err := json.Unmarshal([]byte(rec.PlanJSON), &p); err != nil {
		return nil, fmt.Errorf("failed to decode plan snapshot for %s: %w", requestID, err)
	}
	g.logger.Info("resuming approved request %s (%d steps)", requestID, len(p.Steps))
	return &p, nil
}

// Decide records a human decision on a pending request.
func (g *Gate) Decide(requestID string, approved bool) error {
	status := persistence.ApprovalRejected
	if approved {
		status = persistence.ApprovalApproved
	}
	if err := g.store.DecideApproval(requestID, status); err != nil {
		return err
	}
	g.emitDecision(requestID, status)
	return nil
}

func (g *Gate) emitDecision(requestID, status string) {
	if g.events != nil {
		g.events.Emit(proto.EventApprovalDecision, map[string]any{
			"request_id": requestID,
			"status":     status,
		})
	}
}
