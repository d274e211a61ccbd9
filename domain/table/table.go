// Package table is a rows x columns numeric table. It is both the result
// shape handed to export sinks and an assignment-row source for the
// evaluator (it satisfies eval.Rows).
package table

import (
	"fmt"
	"math"
)

// Table holds float values with optional row labels.
type Table struct {
	Title   string
	Index   string // header of the label column
	Columns []string
	Labels  []string
	Values  [][]float64
	Notes   []string
}

// New returns an empty table with the given column headers.
func New(title, index string, columns ...string) *Table {
	return &Table{
		Title:   title,
		Index:   index,
		Columns: append([]string(nil), columns...),
	}
}

// AddRow appends a labelled row. The row must have one value per column.
func (t *Table) AddRow(label string, values ...float64) error {
	if len(values) != len(t.Columns) {
		return fmt.Errorf("table %q: row %q has %d values, want %d", t.Title, label, len(values), len(t.Columns))
	}
	t.Labels = append(t.Labels, label)
	t.Values = append(t.Values, append([]float64(nil), values...))
	return nil
}

// Note attaches a free-text remark rendered under the table by sinks.
func (t *Table) Note(format string, args ...any) {
	t.Notes = append(t.Notes, fmt.Sprintf(format, args...))
}

// Dims returns the number of rows and columns.
func (t *Table) Dims() (r, c int) { return len(t.Values), len(t.Columns) }

// At returns the value at row i and column j.
func (t *Table) At(i, j int) float64 { return t.Values[i][j] }

// RawRowView returns row i without copying.
func (t *Table) RawRowView(i int) []float64 { return t.Values[i] }

// ColumnNames returns the headers; the evaluator binds parameters by them.
func (t *Table) ColumnNames() []string { return t.Columns }

// Label returns the label of row i, or its 1-based number when unlabelled.
func (t *Table) Label(i int) string {
	if i < len(t.Labels) && t.Labels[i] != "" {
		return t.Labels[i]
	}
	return fmt.Sprintf("%d", i+1)
}

// Column returns a copy of the named column.
func (t *Table) Column(name string) ([]float64, bool) {
	for j, c := range t.Columns {
		if c == name {
			out := make([]float64, len(t.Values))
			for i, row := range t.Values {
				out[i] = row[j]
			}
			return out, true
		}
	}
	return nil, false
}

// FormatCell renders a value the way every sink prints numbers. NaN is
// rendered empty.
func FormatCell(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return fmt.Sprintf("%.6g", v)
}
