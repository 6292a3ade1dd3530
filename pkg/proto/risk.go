package proto

// RiskLevel is an ordinal severity attached to intents and plans.
// Higher values drive approval and sandbox requirements.
type RiskLevel int

const (
	// RiskLow covers read-only, conversational, or trivially reversible work.
	RiskLow RiskLevel = iota
	// RiskMedium covers ordinary workspace mutation.
	RiskMedium
	// RiskHigh requires a recorded human decision before execution.
	RiskHigh
	// RiskCritical additionally routes execution through an isolated sandbox.
	RiskCritical
)

// String returns the canonical name of the risk level.
func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "LOW"
	case RiskMedium:
		return "MEDIUM"
	case RiskHigh:
		return "HIGH"
	case RiskCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// ParseRiskLevel maps a string to a RiskLevel, defaulting to RiskMedium.
func ParseRiskLevel(s string) RiskLevel {
	switch s {
	case "LOW", "low":
		return RiskLow
	case "MEDIUM", "medium":
		return RiskMedium
	case "HIGH", "high":
		return RiskHigh
	case "CRITICAL", "critical":
		return RiskCritical
	default:
		return RiskMedium
	}
}

// Max returns the higher of two risk levels.
func (r RiskLevel) Max(other RiskLevel) RiskLevel {
	if other > r {
		return other
	}
	return r
}

// RequiresApproval reports whether this risk level needs a human decision.
func (r RiskLevel) RequiresApproval() bool {
	return r >= RiskHigh
}

// RequiresSandbox reports whether this risk level must run in an isolated copy.
func (r RiskLevel) RequiresSandbox() bool {
	return r >= RiskCritical
}
