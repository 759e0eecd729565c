// Package risk folds rule outcomes into a verdict, a risk score, citations and
// the rationale narrative.
package risk

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/couchcryptid/launch-advisor/internal/domain"
)

// Thresholds are the score boundaries between verdicts. A score below
// Marginal is GO, a score at or above NoGo is NO-GO.
type Thresholds struct {
	Marginal int
	NoGo     int
}

// DefaultThresholds returns the documented defaults (20 and 60).
func DefaultThresholds() Thresholds {
	return Thresholds{Marginal: 20, NoGo: 60}
}

// Validate checks that the thresholds split [0,100] into three non-empty bands.
func (t Thresholds) Validate() error {
	if t.Marginal <= 0 || t.Marginal >= t.NoGo || t.NoGo > 100 {
		return fmt.Errorf("invalid verdict thresholds: need 0 < marginal (%d) < nogo (%d) <= 100", t.Marginal, t.NoGo)
	}
	return nil
}

// Classify maps a risk score to a verdict.
func (t Thresholds) Classify(score int) domain.Verdict {
	switch {
	case score >= t.NoGo:
		return domain.VerdictNoGo
	case score >= t.Marginal:
		return domain.VerdictMarginal
	default:
		return domain.VerdictGo
	}
}

// Aggregator computes assessments. It holds no per-request state.
type Aggregator struct {
	thresholds Thresholds
}

// NewAggregator returns an aggregator using the given thresholds.
func NewAggregator(t Thresholds) (*Aggregator, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &Aggregator{thresholds: t}, nil
}

// Thresholds returns the aggregator's verdict thresholds.
func (a *Aggregator) Thresholds() Thresholds {
	return a.thresholds
}

// Aggregate folds outcomes into an assessment. totalSeverity is the sum of
// severities over the whole rule table, UNKNOWN rules included.
func (a *Aggregator) Aggregate(outcomes []domain.RuleOutcome, totalSeverity float64) (domain.Assessment, error) {
	if len(outcomes) == 0 || !(totalSeverity > 0) {
		return domain.Assessment{}, &domain.InternalError{
			Op:  "aggregate risk",
			Err: fmt.Errorf("no outcomes to aggregate (outcomes=%d, total severity=%v)", len(outcomes), totalSeverity),
		}
	}

	var blocking, failed, unknown []domain.RuleOutcome
	for _, o := range outcomes {
		switch {
		case o.Blocking:
			blocking = append(blocking, o)
		case o.Status == domain.StatusFail:
			failed = append(failed, o)
		case o.Status == domain.StatusUnknown:
			unknown = append(unknown, o)
		}
	}

	if len(blocking) > 0 {
		return a.blocked(blocking), nil
	}

	var failSum float64
	absolute := false
	for _, o := range failed {
		failSum += o.Severity
		if o.Severity == 1.0 {
			absolute = true
		}
	}
	score := clamp(int(math.Round(100 * failSum / totalSeverity)))
	verdict := a.thresholds.Classify(score)
	if absolute {
		verdict = domain.VerdictNoGo
		// Floor at the configured NO-GO threshold so score and verdict agree.
		score = max(score, a.thresholds.NoGo)
	}

	sortByCitationOrder(failed)

	sentences := make([]string, 0, 1+len(failed)+len(unknown))
	sentences = append(sentences, fmt.Sprintf("Verdict %s with risk score %d/100.", verdict, score))
	for _, o := range failed {
		sentences = append(sentences, sentence(o.Rationale))
	}
	for _, o := range unknown {
		sentences = append(sentences, fmt.Sprintf("%s: data unavailable for %s; rule not conclusively evaluated.", o.RuleID, o.Rationale))
	}

	return domain.Assessment{
		Verdict:   verdict,
		RiskScore: score,
		Why:       strings.Join(sentences, " "),
		Citations: ruleIDs(failed),
	}, nil
}

func (a *Aggregator) blocked(blocking []domain.RuleOutcome) domain.Assessment {
	sortByCitationOrder(blocking)

	var feeds []string
	for _, o := range blocking {
		for _, f := range o.FailedFeeds {
			if label := f.Label(); !slices.Contains(feeds, label) {
				feeds = append(feeds, label)
			}
		}
	}

	sentences := []string{"Verdict ERROR with risk score 100/100."}
	if len(feeds) > 0 {
		sentences = append(sentences, fmt.Sprintf("Required upstream data is unavailable: %s.", strings.Join(feeds, ", ")))
	}
	for _, o := range blocking {
		sentences = append(sentences, fmt.Sprintf("%s could not be assessed without %s data.", o.RuleID, feedList(o.FailedFeeds)))
	}

	return domain.Assessment{
		Verdict:   domain.VerdictError,
		RiskScore: 100,
		Why:       strings.Join(sentences, " "),
		Citations: ruleIDs(blocking),
	}
}

// Failure returns the fail-closed assessment used when evaluation itself
// broke. Details belong in the operator log, not the rationale.
func Failure() domain.Assessment {
	return domain.Assessment{
		Verdict:   domain.VerdictError,
		RiskScore: 100,
		Why:       "Verdict ERROR with risk score 100/100. The decision could not be computed due to an internal error.",
		Citations: []string{},
	}
}

func sortByCitationOrder(outcomes []domain.RuleOutcome) {
	slices.SortStableFunc(outcomes, func(a, b domain.RuleOutcome) int {
		if c := cmp.Compare(b.Severity, a.Severity); c != 0 {
			return c
		}
		return cmp.Compare(a.RuleID, b.RuleID)
	})
}

func ruleIDs(outcomes []domain.RuleOutcome) []string {
	ids := make([]string, len(outcomes))
	for i, o := range outcomes {
		ids[i] = o.RuleID
	}
	return ids
}

func feedList(feeds []domain.Feed) string {
	if len(feeds) == 0 {
		return "its required"
	}
	labels := make([]string, len(feeds))
	for i, f := range feeds {
		labels[i] = f.Label()
	}
	return strings.Join(labels, " and ")
}

func sentence(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasSuffix(s, ".") {
		return s
	}
	return s + "."
}

func clamp(score int) int {
	return min(max(score, 0), 100)
}
