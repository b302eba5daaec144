package synthesis

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/licenseiq/licenseiq/internal/formula"
	"github.com/licenseiq/licenseiq/internal/types"
)

// MappingSource provides the confirmed term mappings of a contract.
type MappingSource interface {
	ConfirmedTermMappings(ctx context.Context, contractID string) ([]types.TermMapping, error)
}

// Enricher attaches confirmed term mappings to rules whose formula or
// filters mention the mapped contract terms.
type Enricher struct {
	source   MappingSource
	maxDepth int
}

// NewEnricher creates an Enricher. maxDepth <= 0 selects formula.DefaultMaxDepth.
func NewEnricher(source MappingSource, maxDepth int) *Enricher {
	if maxDepth <= 0 {
		maxDepth = formula.DefaultMaxDepth
	}
	return &Enricher{source: source, maxDepth: maxDepth}
}

// Enrich returns rule with TermMappings set to the confirmed mappings its
// strings reference. With no confirmed mappings the rule is returned unchanged.
func (e *Enricher) Enrich(ctx context.Context, rule types.SynthesizedRule, contractID string) (types.SynthesizedRule, error) {
	mappings, err := e.source.ConfirmedTermMappings(ctx, contractID)
	if err != nil {
		return rule, fmt.Errorf("load confirmed term mappings: %w", err)
	}
	if len(mappings) == 0 {
		return rule, nil
	}

	rule.TermMappings = MatchTerms(rule, mappings, e.maxDepth)
	return rule, nil
}

// MatchTerms walks every string in the rule's formula and applicability
// filters and returns the mappings they reference, deduplicated by contract
// term in first-seen order. The result is never nil.
//
// For each string the longest matching contract term wins; equal lengths
// resolve to the earlier mapping in the list. Formula nodes below maxDepth
// and filter values nested deeper than maxDepth are not visited.
func MatchTerms(rule types.SynthesizedRule, mappings []types.TermMapping, maxDepth int) []types.TermMapping {
	m := newTermMatcher(mappings)
	if rule.Formula != nil {
		m.walkFormula(rule.Formula, 1, maxDepth)
	}
	m.walkValue(rule.ApplicabilityFilters, 1, maxDepth)
	return m.found
}

type termMatcher struct {
	mappings []types.TermMapping
	lowered  []string
	seen     map[string]bool
	found    []types.TermMapping
}

func newTermMatcher(mappings []types.TermMapping) *termMatcher {
	lowered := make([]string, len(mappings))
	for i, tm := range mappings {
		lowered[i] = strings.ToLower(tm.ContractTerm)
	}
	return &termMatcher{
		mappings: mappings,
		lowered:  lowered,
		seen:     make(map[string]bool),
		found:    []types.TermMapping{},
	}
}

// walkFormula visits the strings of n in the order of its encoded keys,
// counting depth the way formula.Decode does.
func (m *termMatcher) walkFormula(n formula.Node, depth, maxDepth int) {
	if depth > maxDepth {
		return
	}
	switch v := n.(type) {
	case formula.Percentage:
		m.match(v.Base)
	case formula.Fixed:
		m.match(v.Currency)
	case formula.Minimum:
		m.match(v.Currency)
	case formula.Maximum:
		m.match(v.Currency)
	case formula.Tiered:
		m.match(v.Base)
	case formula.Conditional:
		m.match(v.Condition)
		m.walkFormula(v.Else, depth+1, maxDepth)
		m.walkFormula(v.Then, depth+1, maxDepth)
	case formula.Arithmetic:
		for _, op := range v.Operands {
			m.walkFormula(op, depth+1, maxDepth)
		}
		m.match(v.Operator)
	}
}

// walkValue visits a decoded JSON value depth-first, object keys in sorted order.
func (m *termMatcher) walkValue(v any, depth, maxDepth int) {
	if depth > maxDepth {
		return
	}
	switch t := v.(type) {
	case string:
		m.match(t)
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			m.walkValue(t[k], depth+1, maxDepth)
		}
	case []any:
		for _, item := range t {
			m.walkValue(item, depth+1, maxDepth)
		}
	}
}

func (m *termMatcher) match(s string) {
	if s == "" {
		return
	}
	value := strings.ToLower(s)
	best := -1
	for i, term := range m.lowered {
		if term == "" || !strings.Contains(value, term) {
			continue
		}
		if best < 0 || len(term) > len(m.lowered[best]) {
			best = i
		}
	}
	if best < 0 {
		return
	}
	tm := m.mappings[best]
	if m.seen[tm.ContractTerm] {
		return
	}
	m.seen[tm.ContractTerm] = true
	m.found = append(m.found, tm)
}

// FormatDualTerminology renders term as "<term> (ERP: <field>)" when a
// mapping's contract term equals it case-insensitively, else returns term.
func FormatDualTerminology(term string, mappings []types.TermMapping) string {
	for _, tm := range mappings {
		if strings.EqualFold(tm.ContractTerm, term) {
			return fmt.Sprintf("%s (ERP: %s)", term, tm.ERPFieldName)
		}
	}
	return term
}
