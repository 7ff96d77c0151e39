// Package reconcile implements the reconciliation and categorization engine:
// it normalizes the two bank export schemas into canonical transactions,
// assigns budget categories through an ordered rule set with a human override
// layer, suppresses checking-side credit-card bill payments that would double
// count itemized purchases, and assembles the final ledger plus a review
// queue for everything it could not decide confidently.
//
// Every stage is a pure function over immutable inputs. The only errors that
// abort a run are configuration defects (bad rules, unknown categories,
// invalid suppression settings); per-record problems are collected and
// reported alongside the result.
package reconcile

import (
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"

	"money/internal/core"
)

// Rule maps transactions to a budget category. A transaction matches when
// its description matches Pattern and every optional constraint holds. Rules
// are plain data so a rule set can be stored, reordered, and tested without
// code changes.
type Rule struct {
	Pattern   string             // regex matched anywhere in the description
	MinAmount *decimal.Decimal   // inclusive lower bound, nil = unbounded
	MaxAmount *decimal.Decimal   // inclusive upper bound, nil = unbounded
	Source    core.SourceAccount // restrict to one source, "" = any
	Category  string             // target budget category
}

type compiledRule struct {
	Rule
	re *regexp.Regexp
}

// RuleSet is an ordered list of compiled rules. Evaluation order is the
// caller-supplied order; the first matching rule wins.
type RuleSet struct {
	rules []compiledRule
}

// CompileRules validates and compiles an ordered rule list against the
// budget. A pattern that does not compile, or a rule naming a category the
// budget does not define, is a configuration defect and fails the whole set.
func CompileRules(rules []Rule, budget core.Budget) (*RuleSet, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for i, r := range rules {
		if r.Pattern == "" {
			return nil, fmt.Errorf("rule %d: empty pattern", i)
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %d (%q): %w", i, r.Pattern, err)
		}
		if r.Source != "" && r.Source != core.SourceCreditCard && r.Source != core.SourceChecking {
			return nil, fmt.Errorf("rule %d (%q): invalid source %q", i, r.Pattern, r.Source)
		}
		if !budget.Contains(r.Category) {
			return nil, &core.UnknownCategoryError{Category: r.Category, Where: "rule"}
		}
		compiled = append(compiled, compiledRule{Rule: r, re: re})
	}
	return &RuleSet{rules: compiled}, nil
}

// Len returns the number of rules in the set.
func (rs *RuleSet) Len() int { return len(rs.rules) }

// Categorize returns the category of the first matching rule. No match is a
// normal outcome, reported via ok=false, never an error.
func (rs *RuleSet) Categorize(t core.CanonicalTransaction) (category string, ok bool) {
	for _, r := range rs.rules {
		if r.matches(t) {
			return r.Category, true
		}
	}
	return "", false
}

// Candidates returns every category whose rule matches the transaction, in
// rule order. Ideally each transaction fits exactly one category; zero or
// multiple candidates are worth surfacing before trusting a report.
func (rs *RuleSet) Candidates(t core.CanonicalTransaction) []string {
	var out []string
	for _, r := range rs.rules {
		if r.matches(t) {
			out = append(out, r.Category)
		}
	}
	return out
}

func (r compiledRule) matches(t core.CanonicalTransaction) bool {
	if r.Source != "" && r.Source != t.Source {
		return false
	}
	if !r.re.MatchString(t.Description) {
		return false
	}
	if r.MinAmount != nil && t.Amount.LessThan(*r.MinAmount) {
		return false
	}
	if r.MaxAmount != nil && t.Amount.GreaterThan(*r.MaxAmount) {
		return false
	}
	return true
}
