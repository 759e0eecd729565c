package domain

import "time"

// Verdict is the final launch classification.
type Verdict string

const (
	VerdictGo       Verdict = "GO"
	VerdictMarginal Verdict = "MARGINAL"
	VerdictNoGo     Verdict = "NO-GO"
	VerdictError    Verdict = "ERROR"
)

// Assessment is the aggregator's output, before the orchestrator attaches
// request and audit fields.
type Assessment struct {
	Verdict   Verdict
	RiskScore int
	Why       string
	Citations []string
}

// DecisionResult is the terminal artifact returned for one request. Each
// request builds its own result; it is never modified afterwards.
type DecisionResult struct {
	ID         string          `json:"id"`
	SiteCode   string          `json:"site_code"`
	LaunchTime time.Time       `json:"launch_time"`
	Verdict    Verdict         `json:"verdict"`
	RiskScore  int             `json:"risk_score"`
	Why        string          `json:"why"`
	Citations  []string        `json:"rule_citations"`
	Outcomes   []RuleOutcome   `json:"outcomes"`
	Data       ObservationData `json:"data"`
	DecidedAt  time.Time       `json:"decided_at"`
}
