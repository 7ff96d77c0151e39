package reconcile

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"money/internal/core"
)

func testConfig() Config {
	return Config{
		Signs: SignConventions{
			CreditCard: core.ExpensesNegative,
			Checking:   core.ExpensesNegative,
		},
		Suppression: SuppressionConfig{
			PayeePattern:    `(?i)PAYMENT TO .*VISA`,
			WindowDays:      3,
			AmountTolerance: decimal.Zero,
		},
	}
}

func testRules() []Rule {
	return []Rule{
		{Pattern: "GROCERY", Category: "food"},
		{Pattern: "STORE", Category: "shopping"},
		{Pattern: "RENT", Category: "rent"},
		{Pattern: "PAYROLL", Category: "salary"},
	}
}

func testInput() Input {
	return Input{
		Credit: []core.RawCreditRow{
			{
				Origin:          core.Origin{Dataset: "credit.csv", Row: 0},
				TransactionDate: "2024-03-02", PostDate: "2024-03-04",
				Description: "GROCERY STORE 001", Amount: "-300.00",
			},
			{
				Origin:          core.Origin{Dataset: "credit.csv", Row: 1},
				TransactionDate: "2024-03-03", PostDate: "2024-03-04",
				Description: "BOOK STORE", Amount: "-200.00",
			},
			// Dated outside the ±3-day window around the VISA payment so it
			// cannot disturb the window aggregate.
			{
				Origin:          core.Origin{Dataset: "credit.csv", Row: 2},
				TransactionDate: "2024-03-12", PostDate: "2024-03-13",
				Description: "MYSTERY MERCHANT", Amount: "-12.00",
			},
		},
		Checking: []core.RawCheckingRow{
			{
				Origin:      core.Origin{Dataset: "checking.csv", Row: 0},
				PostingDate: "2024-03-05", Description: "PAYMENT TO VISA", Amount: "-500.00",
			},
			{
				Origin:      core.Origin{Dataset: "checking.csv", Row: 1},
				PostingDate: "2024-03-01", Description: "EMPLOYER PAYROLL", Amount: "2000.00",
			},
			{
				Origin:      core.Origin{Dataset: "checking.csv", Row: 2},
				PostingDate: "2024-03-01", Description: "RENT CHECK", Amount: "-1300.00",
			},
		},
	}
}

func TestReconcile_EndToEnd(t *testing.T) {
	res, err := Reconcile(testBudget(), testRules(), testInput(), nil, testConfig())
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	// The VISA payment settles the two credit purchases (-300 + -200 within
	// ±3 days) and must be suppressed, not double counted.
	if len(res.Suppressed) != 1 {
		t.Fatalf("suppressed = %d, want 1", len(res.Suppressed))
	}
	if got := res.Suppressed[0].Origin; got != (core.Origin{Dataset: "checking.csv", Row: 0}) {
		t.Errorf("suppressed origin = %v", got)
	}
	d := res.Decisions[core.Origin{Dataset: "checking.csv", Row: 0}]
	if !d.Excluded || d.Reason != core.SuppressionMatchedPayment {
		t.Errorf("decision = %+v, want matched_credit_card_payment", d)
	}

	// MYSTERY MERCHANT matches no rule and lands in review.
	if len(res.ReviewQueue) != 1 {
		t.Fatalf("review queue = %d, want 1", len(res.ReviewQueue))
	}
	ri := res.ReviewQueue[0]
	if ri.Reason != core.ReviewUnresolvedCategory {
		t.Errorf("review reason = %q", ri.Reason)
	}
	if ri.Transaction.Origin != (core.Origin{Dataset: "credit.csv", Row: 2}) {
		t.Errorf("review origin = %v", ri.Transaction.Origin)
	}

	// The remaining four are confidently categorized.
	if len(res.Ledger) != 4 {
		t.Fatalf("ledger = %d entries, want 4", len(res.Ledger))
	}
	for _, e := range res.Ledger {
		if e.Confidence != core.ConfidenceRuleMatched {
			t.Errorf("%s: confidence = %q", e.Origin, e.Confidence)
		}
		if !testBudget().Contains(e.Category) {
			t.Errorf("%s: ledger category %q not in budget", e.Origin, e.Category)
		}
	}
}

func TestReconcile_LedgerOrderDeterministic(t *testing.T) {
	var firstOrder []core.Origin
	for i := 0; i < 5; i++ {
		res, err := Reconcile(testBudget(), testRules(), testInput(), nil, testConfig())
		if err != nil {
			t.Fatalf("Reconcile() error = %v", err)
		}
		order := make([]core.Origin, len(res.Ledger))
		for j, e := range res.Ledger {
			order[j] = e.Origin
		}
		if i == 0 {
			firstOrder = order
			// Sorted by date, ties broken by origin: the two 2024-03-01
			// checking rows come first, in row order.
			if order[0] != (core.Origin{Dataset: "checking.csv", Row: 1}) ||
				order[1] != (core.Origin{Dataset: "checking.csv", Row: 2}) {
				t.Errorf("unexpected head of ledger: %v", order[:2])
			}
			continue
		}
		for j := range order {
			if order[j] != firstOrder[j] {
				t.Fatalf("iteration %d: ledger order changed at %d: %v vs %v", i, j, order[j], firstOrder[j])
			}
		}
	}
}

func TestReconcile_PartitionProperty(t *testing.T) {
	overrides := []core.MetadataOverride{
		{Origin: core.Origin{Dataset: "credit.csv", Row: 1}, Category: core.CategoryExclude},
	}
	res, err := Reconcile(testBudget(), testRules(), testInput(), overrides, testConfig())
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	seen := make(map[core.Origin]int)
	for _, e := range res.Ledger {
		seen[e.Origin]++
	}
	for _, ri := range res.ReviewQueue {
		seen[ri.Transaction.Origin]++
	}
	for _, e := range res.Suppressed {
		seen[e.Origin]++
	}
	for _, e := range res.Excluded {
		seen[e.Origin]++
	}

	total := len(testInput().Credit) + len(testInput().Checking)
	if len(seen)+len(res.Skipped) != total {
		t.Errorf("partition covers %d origins (+%d skipped), want %d", len(seen), len(res.Skipped), total)
	}
	for origin, n := range seen {
		if n != 1 {
			t.Errorf("origin %s appears %d times across outputs, want exactly 1", origin, n)
		}
	}
}

func TestReconcile_ExcludeSentinelRemovesFromBothOutputs(t *testing.T) {
	// The mystery merchant would otherwise land in the review queue; an
	// explicit exclude removes it from ledger and review alike.
	origin := core.Origin{Dataset: "credit.csv", Row: 2}
	overrides := []core.MetadataOverride{{Origin: origin, Category: core.CategoryExclude}}
	res, err := Reconcile(testBudget(), testRules(), testInput(), overrides, testConfig())
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	for _, e := range res.Ledger {
		if e.Origin == origin {
			t.Error("excluded transaction found in ledger")
		}
	}
	for _, ri := range res.ReviewQueue {
		if ri.Transaction.Origin == origin {
			t.Error("excluded transaction found in review queue")
		}
	}
	if len(res.Excluded) != 1 || res.Excluded[0].Origin != origin {
		t.Errorf("excluded = %+v, want exactly the overridden origin", res.Excluded)
	}
}

func TestReconcile_OverrideWins(t *testing.T) {
	origin := core.Origin{Dataset: "credit.csv", Row: 1} // BOOK STORE, rule says shopping
	overrides := []core.MetadataOverride{{Origin: origin, Category: "gifts"}}
	res, err := Reconcile(testBudget(), testRules(), testInput(), overrides, testConfig())
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	var found bool
	for _, e := range res.Ledger {
		if e.Origin == origin {
			found = true
			if e.Category != "gifts" || e.Confidence != core.ConfidenceOverride {
				t.Errorf("entry = %q/%q, want gifts/override", e.Category, e.Confidence)
			}
		}
	}
	if !found {
		t.Error("overridden transaction missing from ledger")
	}
}

func TestReconcile_AmbiguousPaymentGoesToReview(t *testing.T) {
	in := testInput()
	// Shrink the credit batch so the aggregate no longer matches -500.
	in.Credit = in.Credit[:1] // only -300.00 in window
	res, err := Reconcile(testBudget(), testRules(), in, nil, testConfig())
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	paymentOrigin := core.Origin{Dataset: "checking.csv", Row: 0}
	if len(res.Suppressed) != 0 {
		t.Errorf("suppressed = %d, want 0 on amount mismatch", len(res.Suppressed))
	}
	var inReview bool
	for _, ri := range res.ReviewQueue {
		if ri.Transaction.Origin == paymentOrigin {
			inReview = true
			if ri.Reason != core.ReviewAmbiguousSuppression {
				t.Errorf("review reason = %q, want ambiguous_suppression", ri.Reason)
			}
		}
	}
	if !inReview {
		t.Error("ambiguous payment missing from review queue")
	}
	for _, e := range res.Ledger {
		if e.Origin == paymentOrigin {
			t.Error("ambiguous payment must not reach the ledger")
		}
	}
}

func TestReconcile_ExtraPurchaseInWindowMakesPaymentAmbiguous(t *testing.T) {
	// The window aggregate sums every credit transaction inside ±3 days of
	// the payment, so one more purchase there shifts the total off -500 and
	// the payment must fall back to review instead of being suppressed.
	in := testInput()
	in.Credit = append(in.Credit, core.RawCreditRow{
		Origin:          core.Origin{Dataset: "credit.csv", Row: 3},
		TransactionDate: "2024-03-04", PostDate: "2024-03-05",
		Description: "GROCERY STORE 002", Amount: "-12.00",
	})
	res, err := Reconcile(testBudget(), testRules(), in, nil, testConfig())
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	if len(res.Suppressed) != 0 {
		t.Errorf("suppressed = %d, want 0 when the window aggregate is -512.00", len(res.Suppressed))
	}
	paymentOrigin := core.Origin{Dataset: "checking.csv", Row: 0}
	d := res.Decisions[paymentOrigin]
	if d.Excluded || d.Reason != core.SuppressionAmbiguous {
		t.Errorf("decision = %+v, want ambiguous", d)
	}
	var inReview bool
	for _, ri := range res.ReviewQueue {
		if ri.Transaction.Origin == paymentOrigin && ri.Reason == core.ReviewAmbiguousSuppression {
			inReview = true
		}
	}
	if !inReview {
		t.Error("payment with unverifiable aggregate missing from review queue")
	}
}

func TestReconcile_SkipsMalformedRowsWithoutAborting(t *testing.T) {
	in := testInput()
	in.Credit[1].Amount = "twelve dollars"
	res, err := Reconcile(testBudget(), testRules(), in, nil, testConfig())
	if err != nil {
		t.Fatalf("Reconcile() error = %v; malformed rows must not abort the run", err)
	}
	if len(res.Skipped) != 1 {
		t.Fatalf("skipped = %d, want 1", len(res.Skipped))
	}
	se := res.Skipped[0]
	if se.Origin != (core.Origin{Dataset: "credit.csv", Row: 1}) || se.Field != "Amount" {
		t.Errorf("skipped = %+v", se)
	}
}

func TestReconcile_UnknownOverrideCategoryAborts(t *testing.T) {
	overrides := []core.MetadataOverride{
		{Origin: core.Origin{Dataset: "credit.csv", Row: 0}, Category: "not_a_real_category"},
	}
	res, err := Reconcile(testBudget(), testRules(), testInput(), overrides, testConfig())
	var uce *core.UnknownCategoryError
	if !errors.As(err, &uce) {
		t.Fatalf("error = %v, want *core.UnknownCategoryError", err)
	}
	if res != nil {
		t.Error("no partial result may be emitted on a configuration error")
	}
}

func TestReconcile_ConfigErrorsAbort(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing credit sign convention", func(c *Config) { c.Signs.CreditCard = "" }},
		{"missing checking sign convention", func(c *Config) { c.Signs.Checking = "" }},
		{"missing payee pattern", func(c *Config) { c.Suppression.PayeePattern = "" }},
		{"negative window", func(c *Config) { c.Suppression.WindowDays = -2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			if _, err := Reconcile(testBudget(), testRules(), testInput(), nil, cfg); err == nil {
				t.Error("expected configuration error")
			}
		})
	}
}

func TestReconcile_DuplicateOriginAborts(t *testing.T) {
	in := testInput()
	in.Credit = append(in.Credit, in.Credit[0])
	if _, err := Reconcile(testBudget(), testRules(), in, nil, testConfig()); err == nil {
		t.Error("expected error for duplicate origin")
	}
}
