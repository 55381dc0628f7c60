package rules

import "sort"

// Rule priority bounds and conventional levels.
const (
	MinPriority = 0
	MaxPriority = 1000

	// PriorityHigh is the floor for blocking rules.
	PriorityHigh = 100

	// PriorityDefault is used by presets that do not set one.
	PriorityDefault = 50
)

// SortByPriority returns a copy of rules ordered by descending priority. The
// sort is stable so rules with equal priority keep their insertion order.
func SortByPriority(rules []*Rule) []*Rule {
	sorted := make([]*Rule, len(rules))
	copy(sorted, rules)

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})

	return sorted
}
