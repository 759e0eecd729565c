// Package rules holds the launch-safety rule table and the engine that
// evaluates it against normalized observations.
package rules

import (
	"errors"
	"fmt"
	"slices"

	"github.com/couchcryptid/launch-advisor/internal/domain"
)

// Table is an ordered, validated set of rules. A Table is immutable after
// construction and safe for concurrent readers.
type Table struct {
	rules         []domain.Rule
	byID          map[string]int
	totalSeverity float64
}

// NewTable validates rules and returns them as an immutable table.
func NewTable(rules ...domain.Rule) (*Table, error) {
	if len(rules) == 0 {
		return nil, errors.New("rule table is empty")
	}

	t := &Table{
		rules: make([]domain.Rule, len(rules)),
		byID:  make(map[string]int, len(rules)),
	}
	for i, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if _, dup := t.byID[r.ID]; dup {
			return nil, fmt.Errorf("duplicate rule id %q", r.ID)
		}
		r.Feeds = slices.Clone(r.Feeds)
		t.rules[i] = r
		t.byID[r.ID] = i
		t.totalSeverity += r.Severity
	}
	return t, nil
}

// MustNewTable is like NewTable but panics on an invalid rule set. It is
// meant for tables built at process start.
func MustNewTable(rules ...domain.Rule) *Table {
	t, err := NewTable(rules...)
	if err != nil {
		panic(err)
	}
	return t
}

// Len returns the number of rules.
func (t *Table) Len() int {
	return len(t.rules)
}

// TotalSeverity is the sum of every rule's severity, the risk denominator.
func (t *Table) TotalSeverity() float64 {
	return t.totalSeverity
}

// Lookup returns the rule with the given id.
func (t *Table) Lookup(id string) (domain.Rule, bool) {
	i, ok := t.byID[id]
	if !ok {
		return domain.Rule{}, false
	}
	return t.rules[i], true
}

// Rules returns the rules in table order.
func (t *Table) Rules() []domain.Rule {
	return slices.Clone(t.rules)
}

// IDs returns rule ids in table order.
func (t *Table) IDs() []string {
	ids := make([]string, len(t.rules))
	for i, r := range t.rules {
		ids[i] = r.ID
	}
	return ids
}
