package rules

import (
	"fmt"

	"github.com/couchcryptid/launch-advisor/internal/domain"
)

// Engine evaluates a rule table. Rules only read the already-fetched
// observations; they never call feeds.
type Engine struct {
	table *Table
}

// NewEngine creates an engine over t.
func NewEngine(t *Table) *Engine {
	return &Engine{table: t}
}

// Table returns the table the engine evaluates.
func (e *Engine) Table() *Table {
	return e.table
}

// Evaluate returns one outcome per rule, in table order. A rule whose feed
// failed hard is not run: it is UNKNOWN, and blocking when critical.
func (e *Engine) Evaluate(obs domain.Observations) ([]domain.RuleOutcome, error) {
	if e.table == nil || e.table.Len() == 0 {
		return nil, &domain.InternalError{Op: "evaluate rules", Err: fmt.Errorf("rule table is empty")}
	}

	outcomes := make([]domain.RuleOutcome, 0, e.table.Len())
	for _, rule := range e.table.rules {
		outcome, err := evaluate(rule, obs)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

func evaluate(rule domain.Rule, obs domain.Observations) (domain.RuleOutcome, error) {
	outcome := domain.RuleOutcome{RuleID: rule.ID, Severity: rule.Severity}

	for _, f := range rule.Feeds {
		if obs.Failed(f) {
			outcome.FailedFeeds = append(outcome.FailedFeeds, f)
		}
	}
	if len(outcome.FailedFeeds) > 0 {
		labels := make([]string, len(outcome.FailedFeeds))
		for i, f := range outcome.FailedFeeds {
			labels[i] = f.Label() + " feed"
		}
		finding := domain.Missing(labels...)
		outcome.Status = finding.Status
		outcome.Rationale = finding.Rationale
		outcome.Blocking = rule.Critical
		return outcome, nil
	}

	finding, err := runPredicate(rule, obs)
	if err != nil {
		return domain.RuleOutcome{}, err
	}
	switch finding.Status {
	case domain.StatusPass, domain.StatusFail, domain.StatusUnknown:
	default:
		return domain.RuleOutcome{}, &domain.InternalError{
			Op:  "evaluate rule " + rule.ID,
			Err: fmt.Errorf("predicate returned invalid status %q", finding.Status),
		}
	}
	outcome.Status = finding.Status
	outcome.Rationale = finding.Rationale
	return outcome, nil
}

func runPredicate(rule domain.Rule, obs domain.Observations) (finding domain.Finding, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &domain.InternalError{Op: "evaluate rule " + rule.ID, Err: fmt.Errorf("predicate panic: %v", r)}
		}
	}()
	return rule.Predicate(obs), nil
}
