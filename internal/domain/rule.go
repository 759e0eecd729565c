package domain

import (
	"errors"
	"fmt"
)

// Status is the result of evaluating one rule.
type Status string

const (
	StatusPass    Status = "PASS"
	StatusFail    Status = "FAIL"
	StatusUnknown Status = "UNKNOWN"
)

// Finding is what a predicate reports: a status and a one-sentence
// rationale. For UNKNOWN the rationale names the missing fields.
type Finding struct {
	Status    Status
	Rationale string
}

// Pass returns a passing finding.
func Pass(format string, args ...any) Finding {
	return Finding{Status: StatusPass, Rationale: fmt.Sprintf(format, args...)}
}

// Fail returns a failing finding.
func Fail(format string, args ...any) Finding {
	return Finding{Status: StatusFail, Rationale: fmt.Sprintf(format, args...)}
}

// Missing returns an UNKNOWN finding for the named fields.
func Missing(fields ...string) Finding {
	return Finding{Status: StatusUnknown, Rationale: joinFields(fields)}
}

// Predicate evaluates a rule against the observations. Predicates must be
// pure and must not retain the observations.
type Predicate func(obs Observations) Finding

// Rule is one entry of the launch-safety rule table.
type Rule struct {
	ID          string
	Description string
	Severity    float64
	// Critical rules force an ERROR verdict when one of their feeds could
	// not be retrieved.
	Critical  bool
	Feeds     []Feed
	Predicate Predicate
}

// AbsoluteBlocker reports whether a failure of this rule alone forces NO-GO.
func (r Rule) AbsoluteBlocker() bool {
	return r.Severity == 1.0
}

// Validate checks the rule's static shape.
func (r Rule) Validate() error {
	if r.ID == "" {
		return errors.New("rule id is required")
	}
	if !(r.Severity > 0 && r.Severity <= 1) {
		return fmt.Errorf("rule %s: severity %v outside (0,1]", r.ID, r.Severity)
	}
	if r.Predicate == nil {
		return fmt.Errorf("rule %s: predicate is required", r.ID)
	}
	if len(r.Feeds) == 0 {
		return fmt.Errorf("rule %s: at least one feed is required", r.ID)
	}
	for _, f := range r.Feeds {
		switch f {
		case FeedWeather, FeedSpaceWeather, FeedConjunction:
		default:
			return fmt.Errorf("rule %s: unknown feed %q", r.ID, f)
		}
	}
	return nil
}

// RuleOutcome is the per-request result of one rule.
type RuleOutcome struct {
	RuleID    string  `json:"rule_id"`
	Status    Status  `json:"status"`
	Severity  float64 `json:"severity"`
	Rationale string  `json:"rationale"`
	// Blocking marks a critical rule that could not be assessed because a
	// required feed failed hard.
	Blocking bool `json:"blocking,omitempty"`
	// FailedFeeds lists the hard-failed feeds behind an UNKNOWN outcome.
	FailedFeeds []Feed `json:"failed_feeds,omitempty"`
}

func joinFields(fields []string) string {
	switch len(fields) {
	case 0:
		return "required data"
	case 1:
		return fields[0]
	}
	out := fields[0]
	for i := 1; i < len(fields); i++ {
		if i == len(fields)-1 {
			out += " and " + fields[i]
		} else {
			out += ", " + fields[i]
		}
	}
	return out
}
