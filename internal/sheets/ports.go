package sheets

import (
	"context"

	"money/internal/core"
	"money/internal/report"
)

// Ports for outbound export adapters.
type (
	// LedgerWriter appends a run's assembled ledger to the household
	// spreadsheet (or another sink).
	LedgerWriter interface {
		AppendLedger(ctx context.Context, runID int64, entries []core.CategorizedTransaction) error
	}

	// SummaryWriter appends one weekly budget-vs-actual summary.
	SummaryWriter interface {
		AppendSummary(ctx context.Context, summary report.Weekly) error
	}

	// Exporter is the full export surface the worker drives.
	Exporter interface {
		LedgerWriter
		SummaryWriter
	}
)
