package reconcile

import (
	"sort"

	"money/internal/core"
)

// Result is the complete output of one reconciliation run. Ledger and
// ReviewQueue partition the non-suppressed, non-excluded canonical set
// exactly: no transaction appears in both and none is dropped silently.
// Suppressed and Excluded records are reported rather than discarded, and
// Skipped lists the raw rows that failed normalization.
type Result struct {
	Ledger      []core.CategorizedTransaction
	ReviewQueue []core.ReviewItem
	Suppressed  []core.CategorizedTransaction
	Excluded    []core.CategorizedTransaction
	Decisions   map[core.Origin]core.SuppressionDecision
	Skipped     []*core.SchemaError
}

// assemble partitions the categorized set using the suppression decisions
// and the override-driven exclusions. Output order is by date, ties broken
// by origin, so identical inputs always produce an identical ledger.
func assemble(
	txs []core.CategorizedTransaction,
	decisions map[core.Origin]core.SuppressionDecision,
	excluded map[core.Origin]bool,
) *Result {
	sorted := make([]core.CategorizedTransaction, len(txs))
	copy(sorted, txs)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].Date.Equal(sorted[j].Date) {
			return sorted[i].Date.Before(sorted[j].Date)
		}
		return sorted[i].Origin.Less(sorted[j].Origin)
	})

	res := &Result{Decisions: decisions}
	for _, t := range sorted {
		if excluded[t.Origin] {
			res.Excluded = append(res.Excluded, t)
			continue
		}
		d := decisions[t.Origin]
		switch {
		case d.Excluded:
			res.Suppressed = append(res.Suppressed, t)
		case d.Reason == core.SuppressionAmbiguous:
			res.ReviewQueue = append(res.ReviewQueue, core.ReviewItem{
				Transaction: t,
				Reason:      core.ReviewAmbiguousSuppression,
			})
		case t.Confidence == core.ConfidenceUnresolved:
			res.ReviewQueue = append(res.ReviewQueue, core.ReviewItem{
				Transaction: t,
				Reason:      core.ReviewUnresolvedCategory,
			})
		default:
			res.Ledger = append(res.Ledger, t)
		}
	}
	return res
}
