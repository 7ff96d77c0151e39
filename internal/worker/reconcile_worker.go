// Package worker drives one reconciliation run end to end: load
// configuration from storage, ingest the statement exports, run the engine,
// persist the result, and export when a spreadsheet is configured.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"money/internal/amqp"
	"money/internal/core"
	"money/internal/ingest"
	"money/internal/reconcile"
	"money/internal/report"
	"money/internal/sheets"
	"money/internal/storage"
)

// Batch names the export files for one reconciliation run.
type Batch struct {
	CreditPaths   []string
	CheckingPaths []string
	OverridesPath string
	WeekOf        time.Time
}

// Outcome is what one processed batch produced.
type Outcome struct {
	RunID   int64
	Result  *reconcile.Result
	Summary report.Weekly
}

type ReconcileWorker struct {
	storage  *storage.SQLiteRepository
	exporter sheets.Exporter // nil disables export
	cfg      reconcile.Config
}

func NewReconcileWorker(storage *storage.SQLiteRepository, exporter sheets.Exporter, cfg reconcile.Config) *ReconcileWorker {
	return &ReconcileWorker{
		storage:  storage,
		exporter: exporter,
		cfg:      cfg,
	}
}

// HandleBatchMessage processes one batch-ready message from AMQP. Errors
// propagate so the consumer can requeue the delivery.
func (w *ReconcileWorker) HandleBatchMessage(ctx context.Context, msg *amqp.BatchReadyMessage) error {
	_, err := w.Process(ctx, Batch{
		CreditPaths:   msg.CreditPaths,
		CheckingPaths: msg.CheckingPaths,
		OverridesPath: msg.OverridesPath,
		WeekOf:        msg.Week(),
	})
	return err
}

// Process runs the full pipeline for one batch.
func (w *ReconcileWorker) Process(ctx context.Context, batch Batch) (*Outcome, error) {
	startedAt := time.Now()

	budget, err := w.storage.LoadBudget(ctx)
	if err != nil {
		return nil, fmt.Errorf("load budget: %w", err)
	}
	rules, err := w.storage.LoadRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	overrides, err := w.loadOverrides(ctx, batch.OverridesPath)
	if err != nil {
		return nil, err
	}

	input, err := readBatch(batch)
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Starting reconciliation",
		"credit_rows", len(input.Credit),
		"checking_rows", len(input.Checking),
		"rules", len(rules),
		"overrides", len(overrides))

	res, err := reconcile.Reconcile(budget, rules, input, overrides, w.cfg)
	if err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}

	w.logDiagnostics(ctx, budget, rules, res)

	runID, err := w.storage.SaveRun(ctx, startedAt, res)
	if err != nil {
		return nil, fmt.Errorf("save run: %w", err)
	}

	weekOf := batch.WeekOf
	if weekOf.IsZero() {
		weekOf = startedAt
	}
	summary := report.BuildWeekly(weekOf, budget, res.Ledger)

	if w.exporter != nil {
		if err := w.exporter.AppendLedger(ctx, runID, res.Ledger); err != nil {
			return nil, fmt.Errorf("export ledger: %w", err)
		}
		if err := w.exporter.AppendSummary(ctx, summary); err != nil {
			return nil, fmt.Errorf("export summary: %w", err)
		}
	}

	slog.InfoContext(ctx, "Reconciliation complete",
		"run_id", runID,
		"ledger", len(res.Ledger),
		"review", len(res.ReviewQueue),
		"suppressed", len(res.Suppressed),
		"excluded", len(res.Excluded),
		"skipped", len(res.Skipped),
		"duration", time.Since(startedAt).Round(time.Millisecond))

	return &Outcome{RunID: runID, Result: res, Summary: summary}, nil
}

// loadOverrides merges stored overrides with the batch's override file.
// The file wins on origin conflicts: it is the fresher human judgment.
func (w *ReconcileWorker) loadOverrides(ctx context.Context, path string) ([]core.MetadataOverride, error) {
	stored, err := w.storage.LoadOverrides(ctx)
	if err != nil {
		return nil, fmt.Errorf("load overrides: %w", err)
	}
	if path == "" {
		return stored, nil
	}

	fromFile, err := ingest.ReadOverridesFile(path)
	if err != nil {
		return nil, fmt.Errorf("read overrides file: %w", err)
	}

	merged := make(map[core.Origin]core.MetadataOverride, len(stored)+len(fromFile))
	order := make([]core.Origin, 0, len(stored)+len(fromFile))
	for _, o := range stored {
		if _, ok := merged[o.Origin]; !ok {
			order = append(order, o.Origin)
		}
		merged[o.Origin] = o
	}
	for _, o := range fromFile {
		if _, ok := merged[o.Origin]; !ok {
			order = append(order, o.Origin)
		}
		merged[o.Origin] = o
	}

	out := make([]core.MetadataOverride, 0, len(order))
	for _, origin := range order {
		out = append(out, merged[origin])
	}
	return out, nil
}

func readBatch(batch Batch) (reconcile.Input, error) {
	var input reconcile.Input
	for _, path := range batch.CreditPaths {
		rows, err := ingest.ReadCreditFile(path)
		if err != nil {
			return input, fmt.Errorf("read credit export: %w", err)
		}
		input.Credit = append(input.Credit, rows...)
	}
	for _, path := range batch.CheckingPaths {
		rows, err := ingest.ReadCheckingFile(path)
		if err != nil {
			return input, fmt.Errorf("read checking export: %w", err)
		}
		input.Checking = append(input.Checking, rows...)
	}
	return input, nil
}

// logDiagnostics surfaces everything a human should look at: skipped rows,
// review items, and ledger entries matched by more than one rule.
func (w *ReconcileWorker) logDiagnostics(ctx context.Context, budget core.Budget, rules []reconcile.Rule, res *reconcile.Result) {
	for _, se := range res.Skipped {
		slog.WarnContext(ctx, "Skipped malformed row",
			"origin", se.Origin.String(),
			"field", se.Field,
			"error", se.Error())
	}
	for _, ri := range res.ReviewQueue {
		slog.WarnContext(ctx, "Transaction needs review",
			"origin", ri.Transaction.Origin.String(),
			"reason", string(ri.Reason),
			"description", ri.Transaction.Description,
			"amount", ri.Transaction.Amount.StringFixed(2))
	}

	// Rules already compiled once inside Reconcile; recompiling here keeps
	// the diagnostic out of the engine's hot path.
	ruleSet, err := reconcile.CompileRules(rules, budget)
	if err != nil {
		// Cannot happen: the same rules compiled inside Reconcile moments ago.
		slog.DebugContext(ctx, "Skipping rule-candidate diagnostics", "error", err)
		return
	}
	for _, e := range res.Ledger {
		if e.Confidence != core.ConfidenceRuleMatched {
			continue
		}
		if candidates := ruleSet.Candidates(e.CanonicalTransaction); len(candidates) > 1 {
			slog.DebugContext(ctx, "Transaction matches multiple rules",
				"origin", e.Origin.String(),
				"chosen", e.Category,
				"candidates", candidates)
		}
	}
}
