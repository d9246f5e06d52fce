package model

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// DefaultLimit caps list results when the caller does not ask for a limit.
const DefaultLimit = 100

// Filter narrows an opportunity listing.
type Filter struct {
	// Category matches case-insensitively. "" and "all" match everything.
	Category string
	// MinProfit, when set, excludes records with a lower estimated profit.
	MinProfit *float64
	// Limit truncates the result. 0 means DefaultLimit.
	Limit int
}

// Normalize validates f and fills in defaults.
func (f Filter) Normalize() (Filter, error) {
	if f.Limit < 0 {
		return f, fmt.Errorf("%w: limit must be positive", ErrInvalidArgument)
	}
	if f.Limit == 0 {
		f.Limit = DefaultLimit
	}
	if f.MinProfit != nil && (math.IsNaN(*f.MinProfit) || math.IsInf(*f.MinProfit, 0)) {
		return f, fmt.Errorf("%w: min_profit must be a finite number", ErrInvalidArgument)
	}
	f.Category = strings.TrimSpace(f.Category)
	if strings.EqualFold(f.Category, AllCategories) {
		f.Category = ""
	}
	return f, nil
}

// Matches reports whether o passes the category and profit predicates.
// The filter is expected to be normalized.
func (f Filter) Matches(o Opportunity) bool {
	if f.Category != "" && CategoryKey(o.Category) != CategoryKey(f.Category) {
		return false
	}
	if f.MinProfit != nil && o.EstimatedProfit < *f.MinProfit {
		return false
	}
	return true
}

// CategoryKey is the case-folded form categories are matched on. Stores
// persist it next to the category so that every backend folds the same way.
func CategoryKey(c string) string {
	return strings.ToLower(strings.TrimSpace(c))
}

// SortOpportunities orders by estimated profit descending, then newest first,
// then by id so that equal records always come back in the same order.
func SortOpportunities(opps []Opportunity) {
	sort.SliceStable(opps, func(i, j int) bool {
		a, b := opps[i], opps[j]
		if a.EstimatedProfit != b.EstimatedProfit {
			return a.EstimatedProfit > b.EstimatedProfit
		}
		if !a.DiscoveredAt.Equal(b.DiscoveredAt) {
			return a.DiscoveredAt.After(b.DiscoveredAt)
		}
		return a.ID < b.ID
	})
}

// ApplyFilter selects, orders and truncates opps. The input slice is not modified.
func ApplyFilter(opps []Opportunity, f Filter) ([]Opportunity, error) {
	f, err := f.Normalize()
	if err != nil {
		return nil, err
	}
	out := make([]Opportunity, 0, len(opps))
	for _, o := range opps {
		if f.Matches(o) {
			out = append(out, o)
		}
	}
	SortOpportunities(out)
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}
