package reconcile

import (
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"money/internal/core"
)

// Input holds the raw transaction batches for one run, one slice per source
// schema. Loaders own parsing and origin assignment; the engine never sees a
// file.
type Input struct {
	Credit   []core.RawCreditRow
	Checking []core.RawCheckingRow
}

// Config carries the explicit reconciliation settings a run cannot proceed
// without: the amount sign convention of each source file and the
// suppression matching parameters.
type Config struct {
	Signs       SignConventions
	Suppression SuppressionConfig
}

// Validate checks the configuration before any per-record work happens.
func (c Config) Validate() error {
	if err := c.Signs.Validate(); err != nil {
		return err
	}
	return c.Suppression.Validate()
}

// Reconcile is the engine entry point: budget, rules, raw batches, and
// overrides in; ledger and review queue out. It is deterministic and free of
// side effects. Configuration defects (unknown categories, invalid rules or
// suppression settings, duplicate origins) abort the run with a typed error;
// malformed rows are collected in Result.Skipped so one bad record never
// blocks the rest of the batch.
func Reconcile(budget core.Budget, rules []Rule, in Input, overrides []core.MetadataOverride, cfg Config) (*Result, error) {
	if err := budget.Validate(); err != nil {
		return nil, fmt.Errorf("budget: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ruleSet, err := CompileRules(rules, budget)
	if err != nil {
		return nil, err
	}
	overrideMap, err := BuildOverrideMap(overrides, budget)
	if err != nil {
		return nil, err
	}

	// The two batches have no cross-record dependencies, so they normalize
	// in parallel. Each goroutine owns its output slices; the merge below
	// re-establishes a deterministic order.
	var (
		g               errgroup.Group
		credit          []core.CanonicalTransaction
		checking        []core.CanonicalTransaction
		creditSkipped   []*core.SchemaError
		checkingSkipped []*core.SchemaError
	)
	g.Go(func() error {
		for _, row := range in.Credit {
			t, err := NormalizeCredit(row, cfg.Signs.CreditCard)
			if err != nil {
				se, ok := schemaError(err)
				if !ok {
					return err
				}
				creditSkipped = append(creditSkipped, se)
				continue
			}
			credit = append(credit, t)
		}
		return nil
	})
	g.Go(func() error {
		for _, row := range in.Checking {
			t, err := NormalizeChecking(row, cfg.Signs.Checking)
			if err != nil {
				se, ok := schemaError(err)
				if !ok {
					return err
				}
				checkingSkipped = append(checkingSkipped, se)
				continue
			}
			checking = append(checking, t)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	canonical := make([]core.CanonicalTransaction, 0, len(credit)+len(checking))
	canonical = append(canonical, credit...)
	canonical = append(canonical, checking...)

	seen := make(map[core.Origin]struct{}, len(canonical))
	for _, t := range canonical {
		if _, dup := seen[t.Origin]; dup {
			return nil, fmt.Errorf("duplicate origin %s in input batches", t.Origin)
		}
		seen[t.Origin] = struct{}{}
	}

	// The suppressor's credit index is built once and only read afterwards.
	suppressor, err := NewSuppressor(cfg.Suppression, canonical)
	if err != nil {
		return nil, err
	}

	categorized := make([]core.CategorizedTransaction, 0, len(canonical))
	excluded := make(map[core.Origin]bool)
	decisions := make(map[core.Origin]core.SuppressionDecision, len(canonical))
	for _, t := range canonical {
		ct := core.CategorizedTransaction{CanonicalTransaction: t, Confidence: core.ConfidenceUnresolved}
		if category, ok := ruleSet.Categorize(t); ok {
			ct.Category = category
			ct.Confidence = core.ConfidenceRuleMatched
		}
		ct, isExcluded := overrideMap.Apply(ct)
		if isExcluded {
			excluded[t.Origin] = true
		}
		decisions[t.Origin] = suppressor.Decide(t)
		categorized = append(categorized, ct)
	}

	res := assemble(categorized, decisions, excluded)
	res.Skipped = append(creditSkipped, checkingSkipped...)
	return res, nil
}

func schemaError(err error) (*core.SchemaError, bool) {
	var se *core.SchemaError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
