// Package report builds the weekly budget-vs-actual summary over an
// assembled ledger. It is pure: no I/O, no logging.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"money/internal/core"
)

// Line compares one budget item against the week's actuals. Amounts keep the
// ledger's sign convention: expenses negative, income positive. Remaining is
// Budgeted minus Actual, so an expense category with money left to spend has
// a negative Remaining.
type Line struct {
	Category  string
	Budgeted  decimal.Decimal
	Actual    decimal.Decimal
	Remaining decimal.Decimal
}

// Weekly is the summary for one reporting week. Other collects actuals in
// budget categories excluded from the weekly report, so the report's totals
// still reconcile against the full ledger.
type Weekly struct {
	WeekOf         time.Time
	Lines          []Line
	TotalBudgeted  decimal.Decimal
	TotalActual    decimal.Decimal
	TotalRemaining decimal.Decimal
	Other          decimal.Decimal
}

// BuildWeekly totals the ledger by category and pairs each reporting budget
// item with its weekly-normalized amount. Line order follows budget order.
func BuildWeekly(weekOf time.Time, budget core.Budget, ledger []core.CategorizedTransaction) Weekly {
	actuals := make(map[string]decimal.Decimal, len(budget))
	for _, e := range ledger {
		actuals[e.Category] = actuals[e.Category].Add(e.Amount)
	}

	w := Weekly{WeekOf: weekOf}
	for _, item := range budget {
		if !item.IncludeInWeeklyReport {
			w.Other = w.Other.Add(actuals[item.Name])
			continue
		}
		line := Line{
			Category: item.Name,
			Budgeted: item.WeeklyAmount(),
			Actual:   actuals[item.Name],
		}
		line.Remaining = line.Budgeted.Sub(line.Actual)
		w.Lines = append(w.Lines, line)
		w.TotalBudgeted = w.TotalBudgeted.Add(line.Budgeted)
		w.TotalActual = w.TotalActual.Add(line.Actual)
	}
	w.TotalRemaining = w.TotalBudgeted.Sub(w.TotalActual)
	return w
}

// Render formats the summary as a plain-text table for CLI output and logs.
func (w Weekly) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Week of %s\n", w.WeekOf.Format("2006-01-02"))
	fmt.Fprintf(&b, "%-24s %12s %12s %12s\n", "Category", "Budgeted", "Actual", "Remaining")
	for _, l := range w.Lines {
		fmt.Fprintf(&b, "%-24s %12s %12s %12s\n",
			l.Category, l.Budgeted.StringFixed(2), l.Actual.StringFixed(2), l.Remaining.StringFixed(2))
	}
	fmt.Fprintf(&b, "%-24s %12s %12s %12s\n",
		"TOTAL", w.TotalBudgeted.StringFixed(2), w.TotalActual.StringFixed(2), w.TotalRemaining.StringFixed(2))
	if !w.Other.IsZero() {
		fmt.Fprintf(&b, "%-24s %12s\n", "other (not reported)", w.Other.StringFixed(2))
	}
	return b.String()
}
