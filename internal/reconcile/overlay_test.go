package reconcile

import (
	"errors"
	"testing"

	"money/internal/core"
)

func TestOverrideMap_OverrideAlwaysWins(t *testing.T) {
	origin := core.Origin{Dataset: "credit.csv", Row: 12}
	m, err := BuildOverrideMap([]core.MetadataOverride{
		{Origin: origin, Category: "gifts"},
	}, testBudget())
	if err != nil {
		t.Fatalf("BuildOverrideMap() error = %v", err)
	}

	ct := core.CategorizedTransaction{
		CanonicalTransaction: canonical("credit.csv", 12, "TARGET", "-30.00", core.SourceCreditCard),
		Category:             "shopping",
		Confidence:           core.ConfidenceRuleMatched,
	}
	resolved, excluded := m.Apply(ct)
	if excluded {
		t.Fatal("non-sentinel override must not exclude")
	}
	if resolved.Category != "gifts" {
		t.Errorf("category = %q, want %q", resolved.Category, "gifts")
	}
	if resolved.Confidence != core.ConfidenceOverride {
		t.Errorf("confidence = %q, want %q", resolved.Confidence, core.ConfidenceOverride)
	}
}

func TestOverrideMap_NoOverrideLeavesRuleResult(t *testing.T) {
	m, err := BuildOverrideMap(nil, testBudget())
	if err != nil {
		t.Fatalf("BuildOverrideMap() error = %v", err)
	}
	ct := core.CategorizedTransaction{
		CanonicalTransaction: canonical("credit.csv", 3, "KROGER", "-20.00", core.SourceCreditCard),
		Category:             "food",
		Confidence:           core.ConfidenceRuleMatched,
	}
	resolved, excluded := m.Apply(ct)
	if excluded || resolved.Category != "food" || resolved.Confidence != core.ConfidenceRuleMatched {
		t.Errorf("unexpected result: %+v excluded=%v", resolved, excluded)
	}
}

func TestOverrideMap_ExcludeSentinel(t *testing.T) {
	origin := core.Origin{Dataset: "checking.csv", Row: 8}
	m, err := BuildOverrideMap([]core.MetadataOverride{
		{Origin: origin, Category: core.CategoryExclude},
	}, testBudget())
	if err != nil {
		t.Fatalf("BuildOverrideMap() error = %v", err)
	}
	ct := core.CategorizedTransaction{
		CanonicalTransaction: canonical("checking.csv", 8, "VENMO CASHOUT", "25.00", core.SourceChecking),
		Confidence:           core.ConfidenceUnresolved,
	}
	resolved, excluded := m.Apply(ct)
	if !excluded {
		t.Fatal("exclude sentinel must mark the record for removal")
	}
	if resolved.Confidence != core.ConfidenceOverride {
		t.Errorf("confidence = %q, want %q", resolved.Confidence, core.ConfidenceOverride)
	}
}

func TestBuildOverrideMap_UnknownCategory(t *testing.T) {
	_, err := BuildOverrideMap([]core.MetadataOverride{
		{Origin: core.Origin{Dataset: "credit.csv", Row: 1}, Category: "not_a_real_category"},
	}, testBudget())
	var uce *core.UnknownCategoryError
	if !errors.As(err, &uce) {
		t.Fatalf("error = %v, want *core.UnknownCategoryError", err)
	}
	if uce.Where != "override" {
		t.Errorf("where = %q, want %q", uce.Where, "override")
	}
}

func TestBuildOverrideMap_DuplicateOrigin(t *testing.T) {
	origin := core.Origin{Dataset: "credit.csv", Row: 1}
	_, err := BuildOverrideMap([]core.MetadataOverride{
		{Origin: origin, Category: "food"},
		{Origin: origin, Category: "gifts"},
	}, testBudget())
	if err == nil {
		t.Error("expected error for duplicate override origin")
	}
}
