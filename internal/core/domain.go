package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Annual  Frequency = "annual"
)

const (
	SourceCreditCard SourceAccount = "credit_card"
	SourceChecking   SourceAccount = "checking"
)

const (
	// ExpensesNegative means the source file already records expenses as
	// negative amounts; normalization passes amounts through.
	ExpensesNegative SignConvention = "expenses_negative"
	// ExpensesPositive means the source file records expenses as positive
	// amounts; normalization flips the sign.
	ExpensesPositive SignConvention = "expenses_positive"
)

const (
	ConfidenceRuleMatched Confidence = "rule_matched"
	ConfidenceOverride    Confidence = "override"
	ConfidenceUnresolved  Confidence = "unresolved"
)

const (
	SuppressionNotApplicable  SuppressionReason = "not_applicable"
	SuppressionMatchedPayment SuppressionReason = "matched_credit_card_payment"
	SuppressionAmbiguous      SuppressionReason = "ambiguous"
)

const (
	ReviewUnresolvedCategory   ReviewReason = "unresolved_category"
	ReviewAmbiguousSuppression ReviewReason = "ambiguous_suppression"
)

// CategoryExclude is the override sentinel meaning "remove this transaction
// from the ledger entirely". It is the only way a transaction can be
// explicitly excluded rather than categorized.
const CategoryExclude = "exclude"

type (
	Frequency         string
	SourceAccount     string
	SignConvention    string
	Confidence        string
	SuppressionReason string
	ReviewReason      string

	// BudgetItem is one planned income or expense category. Amounts are
	// signed dollars: expenses negative, income positive.
	BudgetItem struct {
		Name                  string
		Frequency             Frequency
		Amount                decimal.Decimal
		IncludeInWeeklyReport bool
	}

	// Budget is the ordered set of budget items for one reporting run.
	// It is loaded once per run and never mutated afterwards.
	Budget []BudgetItem

	// Origin identifies a transaction by its source dataset and row index.
	// It is stable for the life of the source file and joins raw data to
	// metadata overrides.
	Origin struct {
		Dataset string
		Row     int
	}

	// RawCreditRow is one unparsed row from a credit-card export.
	RawCreditRow struct {
		Origin          Origin
		TransactionDate string
		PostDate        string
		Description     string
		BankCategory    string
		Type            string
		Amount          string
	}

	// RawCheckingRow is one unparsed row from a checking-account export.
	RawCheckingRow struct {
		Origin      Origin
		Details     string
		PostingDate string
		Description string
		Amount      string
		Type        string
		Balance     string
		CheckNumber string
	}

	// CanonicalTransaction is the schema-independent transaction record.
	// Date is the transaction-occurred date; PostDate is kept for audit
	// only and never drives categorization. Amount sign is normalized so
	// downstream stages never see the original schema's convention.
	CanonicalTransaction struct {
		Origin      Origin
		Date        time.Time
		PostDate    time.Time
		Description string
		Amount      decimal.Decimal
		Source      SourceAccount
	}

	// MetadataOverride is one human judgment call keyed by origin. The
	// category must name a budget item or be the CategoryExclude sentinel.
	MetadataOverride struct {
		Origin   Origin
		Category string
	}

	// CategorizedTransaction is a canonical transaction with its resolved
	// category. Never mutated after assembly.
	CategorizedTransaction struct {
		CanonicalTransaction
		Category   string
		Confidence Confidence
	}

	// SuppressionDecision records whether a checking transaction was
	// identified as a credit-card bill payment. Decisions are keyed by
	// origin and never mutate the underlying transaction.
	SuppressionDecision struct {
		Origin   Origin
		Excluded bool
		Reason   SuppressionReason
	}

	// ReviewItem is a transaction the engine could not confidently
	// categorize or suppress, surfaced for human judgment.
	ReviewItem struct {
		Transaction CategorizedTransaction
		Reason      ReviewReason
	}
)

var (
	ErrEmptyBudget       = errors.New("budget has no items")
	ErrDuplicateCategory = errors.New("duplicate budget category name")
)

// SchemaError reports a raw row that could not be normalized: a required
// field was missing or a date/amount failed to parse. It is unrecoverable
// for that record only; callers collect these per batch.
type SchemaError struct {
	Origin Origin
	Field  string
	Cause  error
}

func (e *SchemaError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s row %d: field %q: %v", e.Origin.Dataset, e.Origin.Row, e.Field, e.Cause)
	}
	return fmt.Sprintf("%s row %d: field %q missing", e.Origin.Dataset, e.Origin.Row, e.Field)
}

func (e *SchemaError) Unwrap() error { return e.Cause }

// UnknownCategoryError reports an override or rule naming a category that is
// absent from the budget. It is a configuration defect; the run aborts
// rather than producing a silently-incomplete ledger.
type UnknownCategoryError struct {
	Category string
	Where    string // "rule" or "override"
}

func (e *UnknownCategoryError) Error() string {
	return fmt.Sprintf("unknown category %q in %s: not defined in budget", e.Category, e.Where)
}

// Validate checks the sign convention value.
func (c SignConvention) Validate() error {
	switch c {
	case ExpensesNegative, ExpensesPositive:
		return nil
	default:
		return fmt.Errorf("invalid sign convention %q", string(c))
	}
}

// Validate checks the budget invariants: at least one item, non-empty unique
// names, and known frequencies.
func (b Budget) Validate() error {
	if len(b) == 0 {
		return ErrEmptyBudget
	}
	seen := make(map[string]struct{}, len(b))
	for _, item := range b {
		name := strings.TrimSpace(item.Name)
		if name == "" {
			return errors.New("budget item with empty name")
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateCategory, name)
		}
		seen[name] = struct{}{}
		switch item.Frequency {
		case Weekly, Monthly, Annual:
		default:
			return fmt.Errorf("budget item %q: invalid frequency %q", name, item.Frequency)
		}
	}
	return nil
}

// Contains reports whether the budget defines a category with the given name.
func (b Budget) Contains(name string) bool {
	for _, item := range b {
		if item.Name == name {
			return true
		}
	}
	return false
}

// WeeklyAmount converts the item's budgeted amount to a weekly figure:
// monthly amounts are annualized then divided by 52, annual amounts divided
// by 52 directly.
func (i BudgetItem) WeeklyAmount() decimal.Decimal {
	switch i.Frequency {
	case Monthly:
		return i.Amount.Mul(decimal.NewFromInt(12)).Div(decimal.NewFromInt(52)).Round(2)
	case Annual:
		return i.Amount.Div(decimal.NewFromInt(52)).Round(2)
	default:
		return i.Amount
	}
}

// Less orders origins by dataset, then row. Used as the deterministic
// tie-breaker when ledger entries share a date.
func (o Origin) Less(other Origin) bool {
	if o.Dataset != other.Dataset {
		return o.Dataset < other.Dataset
	}
	return o.Row < other.Row
}

func (o Origin) String() string {
	return fmt.Sprintf("%s:%d", o.Dataset, o.Row)
}
