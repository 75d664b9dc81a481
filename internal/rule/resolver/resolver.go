package resolver

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/commissionhub/internal/rule/domain"
)

// RuleSet is an immutable index over active rules. It is safe for concurrent use.
//
// Rules are ordered by ID ascending. Duplicate product_type values resolve to
// the first rule in that order. Tag rules with exactly equal percentages also
// resolve to the first in that order; callers must not depend on which one.
type RuleSet struct {
	byType   map[string]domain.Rule
	byTag    map[string][]domain.Rule
	defaults []domain.Rule
	skipped  int
}

// NewRuleSet indexes the active rules. Inactive rules, rules with a negative
// percentage and non-default rules without a match value are dropped.
func NewRuleSet(rules []domain.Rule) *RuleSet {
	ordered := make([]domain.Rule, len(rules))
	copy(ordered, rules)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	rs := &RuleSet{
		byType: make(map[string]domain.Rule),
		byTag:  make(map[string][]domain.Rule),
	}
	for _, rule := range ordered {
		if !rule.IsActive {
			continue
		}
		if rule.Percentage.IsNegative() {
			rs.skipped++
			continue
		}
		key := normalize(rule.MatchValue)
		switch rule.Type {
		case domain.RuleTypeProductType:
			if key == "" {
				rs.skipped++
				continue
			}
			if _, exists := rs.byType[key]; !exists {
				rs.byType[key] = rule
			}
		case domain.RuleTypeProductTag:
			if key == "" {
				rs.skipped++
				continue
			}
			rs.byTag[key] = append(rs.byTag[key], rule)
		case domain.RuleTypeDefault:
			rs.defaults = append(rs.defaults, rule)
		default:
			rs.skipped++
		}
	}
	return rs
}

// Resolve returns the winning rule for a classification. No match yields a
// zero percentage with rule type none.
func (rs *RuleSet) Resolve(c domain.Classification) domain.Resolution {
	if rs == nil {
		return noMatch()
	}

	if key := normalize(c.ProductType); key != "" {
		if rule, ok := rs.byType[key]; ok {
			return resolution(rule)
		}
	}

	var best *domain.Rule
	seen := make(map[string]struct{}, len(c.Tags))
	for _, tag := range c.Tags {
		key := normalize(tag)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		for i := range rs.byTag[key] {
			candidate := rs.byTag[key][i]
			if best == nil || beats(candidate, *best) {
				best = &candidate
			}
		}
	}
	if best != nil {
		return resolution(*best)
	}

	if len(rs.defaults) > 0 {
		return resolution(rs.defaults[0])
	}
	return noMatch()
}

// HasConflictingDefaults reports more than one active default rule.
func (rs *RuleSet) HasConflictingDefaults() bool {
	return rs != nil && len(rs.defaults) > 1
}

// Skipped is the number of active rules that could not be indexed.
func (rs *RuleSet) Skipped() int {
	if rs == nil {
		return 0
	}
	return rs.skipped
}

func beats(candidate, current domain.Rule) bool {
	switch candidate.Percentage.Cmp(current.Percentage) {
	case 1:
		return true
	case 0:
		return candidate.ID < current.ID
	default:
		return false
	}
}

func resolution(rule domain.Rule) domain.Resolution {
	return domain.Resolution{
		Percentage: rule.Percentage,
		RuleType:   rule.Type,
		RuleValue:  rule.MatchValue,
		RuleID:     rule.ID,
	}
}

func noMatch() domain.Resolution {
	return domain.Resolution{
		Percentage: decimal.Zero,
		RuleType:   domain.RuleTypeNone,
	}
}

func normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

var _ domain.Resolver = (*RuleSet)(nil)
