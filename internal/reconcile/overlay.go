package reconcile

import (
	"fmt"

	"money/internal/core"
)

// OverrideMap is the immutable origin-to-override index for one run. Human
// edits accumulate as an append-only log; the map is rebuilt from it per run
// so no shared mutable state leaks across runs.
type OverrideMap map[core.Origin]core.MetadataOverride

// BuildOverrideMap indexes overrides by origin and validates them against
// the budget. An override naming a category the budget does not define (and
// which is not the exclude sentinel) aborts the run; so does more than one
// override for the same origin.
func BuildOverrideMap(overrides []core.MetadataOverride, budget core.Budget) (OverrideMap, error) {
	m := make(OverrideMap, len(overrides))
	for _, o := range overrides {
		if _, dup := m[o.Origin]; dup {
			return nil, fmt.Errorf("duplicate override for %s", o.Origin)
		}
		if o.Category != core.CategoryExclude && !budget.Contains(o.Category) {
			return nil, &core.UnknownCategoryError{Category: o.Category, Where: "override"}
		}
		m[o.Origin] = o
	}
	return m, nil
}

// Apply resolves the final category for a rule-categorized transaction. An
// override always replaces the rule result; the exclude sentinel marks the
// record for removal from the ledger, which is distinct from payment
// suppression and always human-directed.
func (m OverrideMap) Apply(t core.CategorizedTransaction) (resolved core.CategorizedTransaction, excluded bool) {
	o, ok := m[t.Origin]
	if !ok {
		return t, false
	}
	t.Confidence = core.ConfidenceOverride
	if o.Category == core.CategoryExclude {
		t.Category = core.CategoryExclude
		return t, true
	}
	t.Category = o.Category
	return t, false
}
