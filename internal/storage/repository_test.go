package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"money/internal/core"
	"money/internal/reconcile"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "money.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestBudgetRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	budget := core.Budget{
		{Name: "food", Frequency: core.Weekly, Amount: decimal.RequireFromString("-150.00"), IncludeInWeeklyReport: true},
		{Name: "rent", Frequency: core.Monthly, Amount: decimal.RequireFromString("-1300.00")},
		{Name: "salary", Frequency: core.Monthly, Amount: decimal.RequireFromString("4000.00")},
	}
	if err := repo.ReplaceBudget(ctx, budget); err != nil {
		t.Fatalf("ReplaceBudget() error = %v", err)
	}

	got, err := repo.LoadBudget(ctx)
	if err != nil {
		t.Fatalf("LoadBudget() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("budget items = %d, want 3", len(got))
	}
	// LoadBudget orders by name.
	if got[0].Name != "food" || !got[0].IncludeInWeeklyReport {
		t.Errorf("item 0 = %+v", got[0])
	}
	if got[1].Name != "rent" || !got[1].Amount.Equal(decimal.RequireFromString("-1300.00")) {
		t.Errorf("item 1 = %+v", got[1])
	}
	if got[1].IncludeInWeeklyReport {
		t.Error("rent should not be in the weekly report")
	}
}

func TestReplaceBudget_RejectsInvalid(t *testing.T) {
	repo := newTestRepo(t)
	err := repo.ReplaceBudget(context.Background(), core.Budget{})
	if err == nil {
		t.Fatal("expected error for empty budget")
	}
}

func TestRulesRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	min := decimal.RequireFromString("-100.00")
	rules := []reconcile.Rule{
		{Pattern: "GROCERY", Category: "food"},
		{Pattern: "STORE", MinAmount: &min, Source: core.SourceCreditCard, Category: "shopping"},
	}
	if err := repo.ReplaceRules(ctx, rules); err != nil {
		t.Fatalf("ReplaceRules() error = %v", err)
	}

	got, err := repo.LoadRules(ctx)
	if err != nil {
		t.Fatalf("LoadRules() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("rules = %d, want 2", len(got))
	}
	// Evaluation order must survive the round trip.
	if got[0].Pattern != "GROCERY" || got[0].MinAmount != nil || got[0].Source != "" {
		t.Errorf("rule 0 = %+v", got[0])
	}
	if got[1].MinAmount == nil || !got[1].MinAmount.Equal(min) {
		t.Errorf("rule 1 min amount = %v, want %s", got[1].MinAmount, min)
	}
	if got[1].Source != core.SourceCreditCard {
		t.Errorf("rule 1 source = %q", got[1].Source)
	}
}

func TestOverrides(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	origin := core.Origin{Dataset: "credit.csv", Row: 3}
	if err := repo.UpsertOverride(ctx, core.MetadataOverride{Origin: origin, Category: "gifts"}); err != nil {
		t.Fatalf("UpsertOverride() error = %v", err)
	}
	// A second decision for the same origin replaces the first.
	if err := repo.UpsertOverride(ctx, core.MetadataOverride{Origin: origin, Category: core.CategoryExclude}); err != nil {
		t.Fatalf("UpsertOverride() error = %v", err)
	}

	got, err := repo.LoadOverrides(ctx)
	if err != nil {
		t.Fatalf("LoadOverrides() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("overrides = %d, want 1", len(got))
	}
	if got[0].Origin != origin || got[0].Category != core.CategoryExclude {
		t.Errorf("override = %+v", got[0])
	}

	if err := repo.DeleteOverride(ctx, origin); err != nil {
		t.Fatalf("DeleteOverride() error = %v", err)
	}
	got, err = repo.LoadOverrides(ctx)
	if err != nil {
		t.Fatalf("LoadOverrides() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("overrides after delete = %d, want 0", len(got))
	}
}

func TestSaveRunAndLoadLedger(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	day := func(d string) time.Time {
		tm, err := time.Parse("2006-01-02", d)
		if err != nil {
			t.Fatalf("parse %q: %v", d, err)
		}
		return tm
	}

	ledgerOrigin := core.Origin{Dataset: "credit.csv", Row: 0}
	paymentOrigin := core.Origin{Dataset: "checking.csv", Row: 0}
	res := &reconcile.Result{
		Ledger: []core.CategorizedTransaction{
			{
				CanonicalTransaction: core.CanonicalTransaction{
					Origin:      ledgerOrigin,
					Date:        day("2024-03-02"),
					PostDate:    day("2024-03-04"),
					Description: "GROCERY STORE 001",
					Amount:      decimal.RequireFromString("-50.00"),
					Source:      core.SourceCreditCard,
				},
				Category:   "food",
				Confidence: core.ConfidenceRuleMatched,
			},
		},
		ReviewQueue: []core.ReviewItem{
			{
				Transaction: core.CategorizedTransaction{
					CanonicalTransaction: core.CanonicalTransaction{
						Origin:      core.Origin{Dataset: "credit.csv", Row: 1},
						Date:        day("2024-03-03"),
						PostDate:    day("2024-03-05"),
						Description: "MYSTERY MERCHANT",
						Amount:      decimal.RequireFromString("-12.00"),
						Source:      core.SourceCreditCard,
					},
					Confidence: core.ConfidenceUnresolved,
				},
				Reason: core.ReviewUnresolvedCategory,
			},
		},
		Decisions: map[core.Origin]core.SuppressionDecision{
			ledgerOrigin:  {Origin: ledgerOrigin, Reason: core.SuppressionNotApplicable},
			paymentOrigin: {Origin: paymentOrigin, Excluded: true, Reason: core.SuppressionMatchedPayment},
		},
		Skipped: []*core.SchemaError{
			{Origin: core.Origin{Dataset: "credit.csv", Row: 2}, Field: "Amount"},
		},
	}

	runID, err := repo.SaveRun(ctx, day("2024-03-08"), res)
	if err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}
	if runID == 0 {
		t.Fatal("run id = 0")
	}

	runs, err := repo.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}
	rs := runs[0]
	if rs.ID != runID || rs.LedgerCount != 1 || rs.ReviewCount != 1 || rs.SkippedCount != 1 {
		t.Errorf("run summary = %+v", rs)
	}

	ledger, err := repo.LoadLedger(ctx, runID)
	if err != nil {
		t.Fatalf("LoadLedger() error = %v", err)
	}
	if len(ledger) != 1 {
		t.Fatalf("ledger = %d, want 1", len(ledger))
	}
	e := ledger[0]
	if e.Origin != ledgerOrigin || e.Category != "food" || e.Confidence != core.ConfidenceRuleMatched {
		t.Errorf("entry = %+v", e)
	}
	if !e.Amount.Equal(decimal.RequireFromString("-50.00")) {
		t.Errorf("amount = %s", e.Amount)
	}
	if !e.Date.Equal(day("2024-03-02")) || !e.PostDate.Equal(day("2024-03-04")) {
		t.Errorf("dates = %s / %s", e.Date, e.PostDate)
	}
}
