// Package storage persists the engine's configuration inputs (budget,
// rules, overrides) and the outputs of completed reconciliation runs in
// SQLite. Amounts are stored as decimal strings, never floats.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"money/internal/core"
	"money/internal/reconcile"
)

const dateLayout = "2006-01-02"

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// LoadBudget reads every budget item, ordered by name for stable output.
func (r *SQLiteRepository) LoadBudget(ctx context.Context) (core.Budget, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT name, frequency, amount, include_in_weekly_report
		 FROM budget_items ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query budget items: %w", err)
	}
	defer rows.Close()

	var budget core.Budget
	for rows.Next() {
		var (
			item      core.BudgetItem
			frequency string
			amount    string
			include   int
		)
		if err := rows.Scan(&item.Name, &frequency, &amount, &include); err != nil {
			return nil, fmt.Errorf("scan budget item: %w", err)
		}
		item.Frequency = core.Frequency(frequency)
		item.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("budget item %s: invalid amount %q: %w", item.Name, amount, err)
		}
		item.IncludeInWeeklyReport = include != 0
		budget = append(budget, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate budget items: %w", err)
	}
	return budget, nil
}

// ReplaceBudget swaps the whole budget in one transaction.
func (r *SQLiteRepository) ReplaceBudget(ctx context.Context, budget core.Budget) error {
	if err := budget.Validate(); err != nil {
		return err
	}
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM budget_items`); err != nil {
			return fmt.Errorf("clear budget items: %w", err)
		}
		for _, item := range budget {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO budget_items (name, frequency, amount, include_in_weekly_report)
				 VALUES (?, ?, ?, ?)`,
				item.Name, string(item.Frequency), item.Amount.String(), boolToInt(item.IncludeInWeeklyReport))
			if err != nil {
				return fmt.Errorf("insert budget item %s: %w", item.Name, err)
			}
		}
		return nil
	})
}

// LoadRules reads the rules in evaluation order.
func (r *SQLiteRepository) LoadRules(ctx context.Context) ([]reconcile.Rule, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT pattern, min_amount, max_amount, source, category
		 FROM rules ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	var rules []reconcile.Rule
	for rows.Next() {
		var (
			rule     reconcile.Rule
			minAmt   sql.NullString
			maxAmt   sql.NullString
			source   string
			position = len(rules)
		)
		if err := rows.Scan(&rule.Pattern, &minAmt, &maxAmt, &source, &rule.Category); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rule.Source = core.SourceAccount(source)
		if rule.MinAmount, err = nullDecimal(minAmt); err != nil {
			return nil, fmt.Errorf("rule %d: invalid min_amount: %w", position, err)
		}
		if rule.MaxAmount, err = nullDecimal(maxAmt); err != nil {
			return nil, fmt.Errorf("rule %d: invalid max_amount: %w", position, err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rules: %w", err)
	}
	return rules, nil
}

// ReplaceRules swaps the whole rule list in one transaction, assigning
// positions from slice order.
func (r *SQLiteRepository) ReplaceRules(ctx context.Context, rules []reconcile.Rule) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM rules`); err != nil {
			return fmt.Errorf("clear rules: %w", err)
		}
		for i, rule := range rules {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO rules (position, pattern, min_amount, max_amount, source, category)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				i, rule.Pattern, decimalNull(rule.MinAmount), decimalNull(rule.MaxAmount),
				string(rule.Source), rule.Category)
			if err != nil {
				return fmt.Errorf("insert rule %d: %w", i, err)
			}
		}
		return nil
	})
}

// LoadOverrides reads every stored override, ordered by origin.
func (r *SQLiteRepository) LoadOverrides(ctx context.Context) ([]core.MetadataOverride, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT dataset, row_index, category FROM overrides ORDER BY dataset, row_index`)
	if err != nil {
		return nil, fmt.Errorf("query overrides: %w", err)
	}
	defer rows.Close()

	var overrides []core.MetadataOverride
	for rows.Next() {
		var o core.MetadataOverride
		if err := rows.Scan(&o.Origin.Dataset, &o.Origin.Row, &o.Category); err != nil {
			return nil, fmt.Errorf("scan override: %w", err)
		}
		overrides = append(overrides, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate overrides: %w", err)
	}
	return overrides, nil
}

// UpsertOverride records a human decision for one origin, replacing any
// earlier decision for the same origin.
func (r *SQLiteRepository) UpsertOverride(ctx context.Context, o core.MetadataOverride) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO overrides (dataset, row_index, category) VALUES (?, ?, ?)
		 ON CONFLICT(dataset, row_index) DO UPDATE SET category = excluded.category`,
		o.Origin.Dataset, o.Origin.Row, o.Category)
	if err != nil {
		return fmt.Errorf("upsert override %s: %w", o.Origin, err)
	}
	return nil
}

// DeleteOverride removes the override for an origin, if any.
func (r *SQLiteRepository) DeleteOverride(ctx context.Context, origin core.Origin) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM overrides WHERE dataset = ? AND row_index = ?`,
		origin.Dataset, origin.Row)
	if err != nil {
		return fmt.Errorf("delete override %s: %w", origin, err)
	}
	return nil
}

// SaveRun persists a completed reconciliation result and returns the run id.
// All outputs are written in one transaction so a run is never half stored.
func (r *SQLiteRepository) SaveRun(ctx context.Context, startedAt time.Time, res *reconcile.Result) (int64, error) {
	var runID int64
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`INSERT INTO runs (started_at, ledger_count, review_count, suppressed_count, excluded_count, skipped_count)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			startedAt.UTC(), len(res.Ledger), len(res.ReviewQueue), len(res.Suppressed),
			len(res.Excluded), len(res.Skipped))
		if err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		runID, err = result.LastInsertId()
		if err != nil {
			return fmt.Errorf("run id: %w", err)
		}

		for _, e := range res.Ledger {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO ledger_entries (run_id, dataset, row_index, date, post_date, description, amount, source, category, confidence)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				runID, e.Origin.Dataset, e.Origin.Row,
				e.Date.Format(dateLayout), e.PostDate.Format(dateLayout),
				e.Description, e.Amount.String(), string(e.Source),
				e.Category, string(e.Confidence))
			if err != nil {
				return fmt.Errorf("insert ledger entry %s: %w", e.Origin, err)
			}
		}

		for _, ri := range res.ReviewQueue {
			t := ri.Transaction
			_, err := tx.ExecContext(ctx,
				`INSERT INTO review_items (run_id, dataset, row_index, date, description, amount, source, category, reason)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				runID, t.Origin.Dataset, t.Origin.Row,
				t.Date.Format(dateLayout), t.Description, t.Amount.String(),
				string(t.Source), t.Category, string(ri.Reason))
			if err != nil {
				return fmt.Errorf("insert review item %s: %w", t.Origin, err)
			}
		}

		for origin, d := range res.Decisions {
			if d.Reason == core.SuppressionNotApplicable {
				continue
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO suppression_decisions (run_id, dataset, row_index, excluded, reason)
				 VALUES (?, ?, ?, ?, ?)`,
				runID, origin.Dataset, origin.Row, boolToInt(d.Excluded), string(d.Reason))
			if err != nil {
				return fmt.Errorf("insert suppression decision %s: %w", origin, err)
			}
		}

		for _, se := range res.Skipped {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO skipped_rows (run_id, dataset, row_index, field, cause)
				 VALUES (?, ?, ?, ?, ?)`,
				runID, se.Origin.Dataset, se.Origin.Row, se.Field, se.Error())
			if err != nil {
				return fmt.Errorf("insert skipped row %s: %w", se.Origin, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	slog.InfoContext(ctx, "Reconciliation run saved",
		"run_id", runID,
		"ledger", len(res.Ledger),
		"review", len(res.ReviewQueue),
		"suppressed", len(res.Suppressed),
		"excluded", len(res.Excluded),
		"skipped", len(res.Skipped))
	return runID, nil
}

// RunSummary is the persisted header of one reconciliation run.
type RunSummary struct {
	ID              int64
	StartedAt       time.Time
	LedgerCount     int
	ReviewCount     int
	SuppressedCount int
	ExcludedCount   int
	SkippedCount    int
}

// ListRuns returns run headers, most recent first.
func (r *SQLiteRepository) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, started_at, ledger_count, review_count, suppressed_count, excluded_count, skipped_count
		 FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var rs RunSummary
		if err := rows.Scan(&rs.ID, &rs.StartedAt, &rs.LedgerCount, &rs.ReviewCount,
			&rs.SuppressedCount, &rs.ExcludedCount, &rs.SkippedCount); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, rs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// LoadLedger reads the persisted ledger of one run, in stored order.
func (r *SQLiteRepository) LoadLedger(ctx context.Context, runID int64) ([]core.CategorizedTransaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT dataset, row_index, date, post_date, description, amount, source, category, confidence
		 FROM ledger_entries WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query ledger entries: %w", err)
	}
	defer rows.Close()

	var ledger []core.CategorizedTransaction
	for rows.Next() {
		var (
			e          core.CategorizedTransaction
			date       string
			postDate   string
			amount     string
			source     string
			confidence string
		)
		if err := rows.Scan(&e.Origin.Dataset, &e.Origin.Row, &date, &postDate,
			&e.Description, &amount, &source, &e.Category, &confidence); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		if e.Date, err = time.Parse(dateLayout, date); err != nil {
			return nil, fmt.Errorf("ledger entry %s: invalid date %q: %w", e.Origin, date, err)
		}
		if e.PostDate, err = time.Parse(dateLayout, postDate); err != nil {
			return nil, fmt.Errorf("ledger entry %s: invalid post date %q: %w", e.Origin, postDate, err)
		}
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("ledger entry %s: invalid amount %q: %w", e.Origin, amount, err)
		}
		e.Source = core.SourceAccount(source)
		e.Confidence = core.Confidence(confidence)
		ledger = append(ledger, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}
	return ledger, nil
}

func (r *SQLiteRepository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func nullDecimal(s sql.NullString) (*decimal.Decimal, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func decimalNull(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
