// Package ingest loads raw transaction exports and override files into the
// typed records the reconciliation engine consumes. It owns CSV mechanics
// and origin assignment; all semantic validation (dates, amounts, required
// fields) stays in the engine so one malformed row is skipped there instead
// of failing the whole file here.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"money/internal/core"
)

// Column headers of the two bank export schemas. Matching is
// case-insensitive and whitespace-tolerant because banks are neither.
const (
	hdrTransactionDate = "transaction date"
	hdrPostDate        = "post date"
	hdrDescription     = "description"
	hdrCategory        = "category"
	hdrType            = "type"
	hdrAmount          = "amount"

	hdrDetails     = "details"
	hdrPostingDate = "posting date"
	hdrBalance     = "balance"
	hdrCheckNumber = "check or slip #"

	hdrDataset = "dataset"
	hdrRow     = "row"
)

// ReadCreditCSV parses a credit-card export. Each data row gets an origin of
// (dataset, index) where index is the zero-based position below the header,
// stable for the life of the file.
func ReadCreditCSV(dataset string, r io.Reader) ([]core.RawCreditRow, error) {
	records, index, err := readAll(r)
	if err != nil {
		return nil, err
	}
	if err := requireColumns(index, hdrTransactionDate, hdrPostDate, hdrDescription, hdrAmount); err != nil {
		return nil, fmt.Errorf("credit export %s: %w", dataset, err)
	}

	rows := make([]core.RawCreditRow, 0, len(records))
	for i, rec := range records {
		rows = append(rows, core.RawCreditRow{
			Origin:          core.Origin{Dataset: dataset, Row: i},
			TransactionDate: field(rec, index, hdrTransactionDate),
			PostDate:        field(rec, index, hdrPostDate),
			Description:     field(rec, index, hdrDescription),
			BankCategory:    field(rec, index, hdrCategory),
			Type:            field(rec, index, hdrType),
			Amount:          field(rec, index, hdrAmount),
		})
	}
	return rows, nil
}

// ReadCheckingCSV parses a checking-account export; same origin scheme as
// ReadCreditCSV.
func ReadCheckingCSV(dataset string, r io.Reader) ([]core.RawCheckingRow, error) {
	records, index, err := readAll(r)
	if err != nil {
		return nil, err
	}
	if err := requireColumns(index, hdrDetails, hdrPostingDate, hdrDescription, hdrAmount); err != nil {
		return nil, fmt.Errorf("checking export %s: %w", dataset, err)
	}

	rows := make([]core.RawCheckingRow, 0, len(records))
	for i, rec := range records {
		rows = append(rows, core.RawCheckingRow{
			Origin:      core.Origin{Dataset: dataset, Row: i},
			Details:     field(rec, index, hdrDetails),
			PostingDate: field(rec, index, hdrPostingDate),
			Description: field(rec, index, hdrDescription),
			Amount:      field(rec, index, hdrAmount),
			Type:        field(rec, index, hdrType),
			Balance:     field(rec, index, hdrBalance),
			CheckNumber: field(rec, index, hdrCheckNumber),
		})
	}
	return rows, nil
}

// ReadOverridesCSV parses a human-curated override file with columns
// Dataset, Row, Category. Unlike bank exports these are hand-maintained
// configuration, so a bad row is an error, not a skip.
func ReadOverridesCSV(r io.Reader) ([]core.MetadataOverride, error) {
	records, index, err := readAll(r)
	if err != nil {
		return nil, err
	}
	if err := requireColumns(index, hdrDataset, hdrRow, hdrCategory); err != nil {
		return nil, fmt.Errorf("overrides: %w", err)
	}

	overrides := make([]core.MetadataOverride, 0, len(records))
	for i, rec := range records {
		rowStr := field(rec, index, hdrRow)
		row, err := strconv.Atoi(rowStr)
		if err != nil {
			return nil, fmt.Errorf("overrides row %d: invalid row index %q", i+2, rowStr)
		}
		ds := field(rec, index, hdrDataset)
		category := field(rec, index, hdrCategory)
		if ds == "" || category == "" {
			return nil, fmt.Errorf("overrides row %d: dataset and category are required", i+2)
		}
		overrides = append(overrides, core.MetadataOverride{
			Origin:   core.Origin{Dataset: ds, Row: row},
			Category: category,
		})
	}
	return overrides, nil
}

// ReadCreditFile opens and parses a credit-card export; the file's base name
// becomes the dataset identifier.
func ReadCreditFile(path string) ([]core.RawCreditRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open credit export: %w", err)
	}
	defer f.Close()
	return ReadCreditCSV(filepath.Base(path), f)
}

// ReadCheckingFile opens and parses a checking export; the file's base name
// becomes the dataset identifier.
func ReadCheckingFile(path string) ([]core.RawCheckingRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open checking export: %w", err)
	}
	defer f.Close()
	return ReadCheckingCSV(filepath.Base(path), f)
}

// ReadOverridesFile opens and parses an override file.
func ReadOverridesFile(path string) ([]core.MetadataOverride, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open overrides: %w", err)
	}
	defer f.Close()
	return ReadOverridesCSV(f)
}

// readAll reads the whole CSV and returns the data records plus a
// normalized-header to column-index map. Short rows are tolerated; absent
// cells read as empty strings and the engine decides their fate.
func readAll(r io.Reader) ([][]string, map[string]int, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("read csv: empty file")
	}

	index := make(map[string]int, len(records[0]))
	for i, h := range records[0] {
		index[normalizeHeader(h)] = i
	}
	return records[1:], index, nil
}

func requireColumns(index map[string]int, names ...string) error {
	var missing []string
	for _, n := range names {
		if _, ok := index[n]; !ok {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing columns: %s", strings.Join(missing, ", "))
	}
	return nil
}

func field(rec []string, index map[string]int, name string) string {
	i, ok := index[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func normalizeHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}
