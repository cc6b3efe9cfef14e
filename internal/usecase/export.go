package usecase

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/medicompare/backend/internal/domain"
)

const (
	exportNameHeader = "Analysis"
	exportTotalLabel = "TOTAL"
)

// ExportColumn is one (provider, tier) price column of the export
type ExportColumn struct {
	Provider string
	Tier     domain.PlanTier
}

// Header returns the column title, e.g. "medlife normal"
func (c ExportColumn) Header() string {
	return c.Provider + " " + string(c.Tier)
}

// ExportedTable is the parsed form of an export
type ExportedTable struct {
	Columns []ExportColumn
	Rows    []ExportedRow
	Totals  ExportedRow
}

// ExportedRow holds the literal cell values of one row; "" means not offered
type ExportedRow struct {
	Name  string
	Cells []string
}

// ExportColumns lists the (provider, tier) pairs that have data, providers sorted,
// tiers in display order
func ExportColumns(totals domain.Totals) []ExportColumn {
	var cols []ExportColumn
	for _, p := range sortedProviders(totals) {
		for _, tier := range domain.PlanTiers {
			if _, ok := totals.Amount(p, tier); ok {
				cols = append(cols, ExportColumn{Provider: p, Tier: tier})
			}
		}
	}
	return cols
}

// WriteExport serializes entries in insertion order plus a trailing totals row as CSV.
// The output depends only on the table state.
func WriteExport(w io.Writer, entries []domain.MatchedEntry, totals domain.Totals) error {
	cols := ExportColumns(totals)
	cw := csv.NewWriter(w)

	header := make([]string, 0, len(cols)+1)
	header = append(header, exportNameHeader)
	for _, c := range cols {
		header = append(header, c.Header())
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write export header: %w", err)
	}

	for _, e := range entries {
		row := make([]string, 0, len(cols)+1)
		row = append(row, e.Name)
		for _, c := range cols {
			cell := ""
			if sheet, ok := e.Prices[c.Provider]; ok {
				if q, ok := sheet.Quote(c.Tier); ok {
					cell = formatAmount(q.Amount)
				}
			}
			row = append(row, cell)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write export row %q: %w", e.Name, err)
		}
	}

	totalRow := make([]string, 0, len(cols)+1)
	totalRow = append(totalRow, exportTotalLabel)
	for _, c := range cols {
		v, _ := totals.Amount(c.Provider, c.Tier)
		totalRow = append(totalRow, formatAmount(v))
	}
	if err := cw.Write(totalRow); err != nil {
		return fmt.Errorf("write export totals: %w", err)
	}

	cw.Flush()
	return cw.Error()
}

// Export renders the current table state as CSV text
func (t *ComparisonTable) Export() (string, error) {
	t.mu.RLock()
	entries := make([]domain.MatchedEntry, len(t.entries))
	copy(entries, t.entries)
	totals := cloneTotals(t.totals)
	t.mu.RUnlock()

	var buf bytes.Buffer
	if err := WriteExport(&buf, entries, totals); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ParseExport reads CSV produced by WriteExport
func ParseExport(r io.Reader) (ExportedTable, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return ExportedTable{}, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if len(records) < 2 {
		return ExportedTable{}, fmt.Errorf("%w: export needs a header and a totals row", domain.ErrInvalidInput)
	}

	header := records[0]
	if len(header) == 0 || header[0] != exportNameHeader {
		return ExportedTable{}, fmt.Errorf("%w: unexpected header %v", domain.ErrInvalidInput, header)
	}

	var out ExportedTable
	for _, h := range header[1:] {
		idx := strings.LastIndex(h, " ")
		if idx <= 0 {
			return ExportedTable{}, fmt.Errorf("%w: bad column %q", domain.ErrInvalidInput, h)
		}
		tier, err := domain.ParsePlanTier(h[idx+1:])
		if err != nil {
			return ExportedTable{}, err
		}
		out.Columns = append(out.Columns, ExportColumn{Provider: h[:idx], Tier: tier})
	}

	body := records[1 : len(records)-1]
	for _, rec := range body {
		out.Rows = append(out.Rows, ExportedRow{Name: rec[0], Cells: rec[1:]})
	}

	last := records[len(records)-1]
	if last[0] != exportTotalLabel {
		return ExportedTable{}, fmt.Errorf("%w: missing %s row", domain.ErrInvalidInput, exportTotalLabel)
	}
	out.Totals = ExportedRow{Name: last[0], Cells: last[1:]}
	return out, nil
}

// Amount parses a cell; ok is false for an empty ("not offered") cell
func (r ExportedRow) Amount(col int) (float64, bool, error) {
	if col < 0 || col >= len(r.Cells) || r.Cells[col] == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(r.Cells[col], 64)
	if err != nil {
		return 0, false, fmt.Errorf("%w: amount %q", domain.ErrInvalidInput, r.Cells[col])
	}
	return v, true, nil
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
