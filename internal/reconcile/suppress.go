package reconcile

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/shopspring/decimal"

	"money/internal/core"
)

// SuppressionConfig controls how checking transactions are matched against
// the credit-card history. The whole suppression step hinges on these
// values, so all three are required configuration with no silent defaults.
//
// The matching rests on one accounting assumption: the card is paid in full
// (autopay, zero carried balance), so a bill payment's magnitude equals the
// sum of the card transactions it settles within the window. If that
// assumption ever changes, this is the logic to revisit.
type SuppressionConfig struct {
	// PayeePattern is a regex identifying credit-card payment descriptions
	// in the checking history, e.g. `(?i)PAYMENT TO .*VISA`.
	PayeePattern string
	// WindowDays is the half-width of the date window, in days, within
	// which credit-card transactions are aggregated around the payment.
	WindowDays int
	// AmountTolerance is the maximum absolute difference allowed between
	// the payment amount and the aggregated credit-card total.
	AmountTolerance decimal.Decimal
}

// Validate checks the configuration without compiling it.
func (c SuppressionConfig) Validate() error {
	if c.PayeePattern == "" {
		return errors.New("suppression: payee pattern is required")
	}
	if _, err := regexp.Compile(c.PayeePattern); err != nil {
		return fmt.Errorf("suppression: payee pattern: %w", err)
	}
	if c.WindowDays < 0 {
		return fmt.Errorf("suppression: window days must be >= 0, got %d", c.WindowDays)
	}
	if c.AmountTolerance.IsNegative() {
		return fmt.Errorf("suppression: amount tolerance must be >= 0, got %s", c.AmountTolerance)
	}
	return nil
}

// Suppressor decides which checking transactions are credit-card bill
// payments already represented by itemized credit-card transactions. It is
// built once per run over an immutable credit-card index and is safe for
// concurrent reads.
type Suppressor struct {
	re     *regexp.Regexp
	window int
	tol    decimal.Decimal
	byDay  map[string]decimal.Decimal // credit-card amount totals keyed by day
}

// NewSuppressor compiles the configuration and precomputes the per-day
// credit-card totals used by the window lookup. Non-credit transactions in
// the input are ignored.
func NewSuppressor(cfg SuppressionConfig, transactions []core.CanonicalTransaction) (*Suppressor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	re := regexp.MustCompile(cfg.PayeePattern)

	byDay := make(map[string]decimal.Decimal)
	for _, t := range transactions {
		if t.Source != core.SourceCreditCard {
			continue
		}
		key := dayKey(t.Date)
		byDay[key] = byDay[key].Add(t.Amount)
	}

	return &Suppressor{
		re:     re,
		window: cfg.WindowDays,
		tol:    cfg.AmountTolerance,
		byDay:  byDay,
	}, nil
}

// Decide emits the suppression decision for one transaction. Credit-card
// transactions are never suppressed; they are the itemized source of truth
// being protected from double counting. A checking transaction whose
// description matches the payee pattern is excluded only when the
// credit-card aggregate inside the window matches its magnitude; a payee
// match the aggregate cannot verify is ambiguous and must go to human
// review, never silently resolved either way.
func (s *Suppressor) Decide(t core.CanonicalTransaction) core.SuppressionDecision {
	d := core.SuppressionDecision{Origin: t.Origin, Reason: core.SuppressionNotApplicable}
	if t.Source != core.SourceChecking {
		return d
	}
	if !s.re.MatchString(t.Description) || !t.Amount.IsNegative() {
		return d
	}

	sum := s.windowSum(t.Date)
	if sum.Sub(t.Amount).Abs().LessThanOrEqual(s.tol) {
		d.Excluded = true
		d.Reason = core.SuppressionMatchedPayment
		return d
	}
	d.Reason = core.SuppressionAmbiguous
	return d
}

// windowSum aggregates credit-card amounts for dates within ±window days.
func (s *Suppressor) windowSum(date time.Time) decimal.Decimal {
	sum := decimal.Zero
	for offset := -s.window; offset <= s.window; offset++ {
		if v, ok := s.byDay[dayKey(date.AddDate(0, 0, offset))]; ok {
			sum = sum.Add(v)
		}
	}
	return sum
}

func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}
