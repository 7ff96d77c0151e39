// Package memory is an in-memory Exporter used in tests and when no
// spreadsheet is configured.
package memory

import (
	"context"
	"sync"

	"money/internal/core"
	"money/internal/report"
	ports "money/internal/sheets"
)

type AppendedLedger struct {
	RunID   int64
	Entries []core.CategorizedTransaction
}

type Store struct {
	mu        sync.Mutex
	ledgers   []AppendedLedger
	summaries []report.Weekly
}

var _ ports.Exporter = (*Store)(nil)

func New() *Store {
	return &Store{}
}

func (s *Store) AppendLedger(_ context.Context, runID int64, entries []core.CategorizedTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledgers = append(s.ledgers, AppendedLedger{
		RunID:   runID,
		Entries: append([]core.CategorizedTransaction(nil), entries...),
	})
	return nil
}

func (s *Store) AppendSummary(_ context.Context, summary report.Weekly) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries = append(s.summaries, summary)
	return nil
}

// Ledgers returns a copy of every appended ledger batch.
func (s *Store) Ledgers() []AppendedLedger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AppendedLedger(nil), s.ledgers...)
}

// Summaries returns a copy of every appended weekly summary.
func (s *Store) Summaries() []report.Weekly {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]report.Weekly(nil), s.summaries...)
}
