package reconcile

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"money/internal/core"
)

// Bank exports disagree on date formats; these are the ones seen in the
// credit-card and checking downloads.
var dateLayouts = []string{"2006-01-02", "01/02/2006"}

// SignConventions names the amount sign convention of each source file.
// Neither schema documents its convention, so the caller must supply both;
// they are never inferred.
type SignConventions struct {
	CreditCard core.SignConvention
	Checking   core.SignConvention
}

// Validate checks both conventions are set to known values.
func (s SignConventions) Validate() error {
	if err := s.CreditCard.Validate(); err != nil {
		return err
	}
	return s.Checking.Validate()
}

// NormalizeCredit maps one credit-card row into a canonical transaction.
// The transaction date drives categorization; the post date is retained for
// audit. Returns a *core.SchemaError when a required field is missing or
// unparseable.
func NormalizeCredit(row core.RawCreditRow, conv core.SignConvention) (core.CanonicalTransaction, error) {
	date, err := parseDate(row.Origin, "Transaction Date", row.TransactionDate)
	if err != nil {
		return core.CanonicalTransaction{}, err
	}
	postDate, err := parseDate(row.Origin, "Post Date", row.PostDate)
	if err != nil {
		return core.CanonicalTransaction{}, err
	}
	desc := strings.TrimSpace(row.Description)
	if desc == "" {
		return core.CanonicalTransaction{}, &core.SchemaError{Origin: row.Origin, Field: "Description"}
	}
	amount, err := parseAmount(row.Origin, row.Amount, conv)
	if err != nil {
		return core.CanonicalTransaction{}, err
	}

	return core.CanonicalTransaction{
		Origin:      row.Origin,
		Date:        date,
		PostDate:    postDate,
		Description: desc,
		Amount:      amount,
		Source:      core.SourceCreditCard,
	}, nil
}

// NormalizeChecking maps one checking row into a canonical transaction. The
// checking schema carries only a posting date, so it serves as both the
// transaction date and the audit date.
func NormalizeChecking(row core.RawCheckingRow, conv core.SignConvention) (core.CanonicalTransaction, error) {
	date, err := parseDate(row.Origin, "Posting Date", row.PostingDate)
	if err != nil {
		return core.CanonicalTransaction{}, err
	}
	desc := strings.TrimSpace(row.Description)
	if desc == "" {
		return core.CanonicalTransaction{}, &core.SchemaError{Origin: row.Origin, Field: "Description"}
	}
	amount, err := parseAmount(row.Origin, row.Amount, conv)
	if err != nil {
		return core.CanonicalTransaction{}, err
	}

	return core.CanonicalTransaction{
		Origin:      row.Origin,
		Date:        date,
		PostDate:    date,
		Description: desc,
		Amount:      amount,
		Source:      core.SourceChecking,
	}, nil
}

func parseDate(origin core.Origin, field, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, &core.SchemaError{Origin: origin, Field: field}
	}
	var lastErr error
	for _, layout := range dateLayouts {
		d, err := time.Parse(layout, value)
		if err == nil {
			return d, nil
		}
		lastErr = err
	}
	return time.Time{}, &core.SchemaError{Origin: origin, Field: field, Cause: lastErr}
}

func parseAmount(origin core.Origin, value string, conv core.SignConvention) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Decimal{}, &core.SchemaError{Origin: origin, Field: "Amount"}
	}
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Decimal{}, &core.SchemaError{Origin: origin, Field: "Amount", Cause: err}
	}
	if conv == core.ExpensesPositive {
		amount = amount.Neg()
	}
	return amount, nil
}
