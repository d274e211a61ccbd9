package export

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"

	"github.com/mijafro/fork-lca-algebraic/domain/table"
	apperrors "github.com/mijafro/fork-lca-algebraic/internal/errors"
)

// CSVSink writes one <slug>.csv file per table into Dir. Notes are not
// exported.
type CSVSink struct {
	Dir string
}

func NewCSVSink(dir string) *CSVSink { return &CSVSink{Dir: dir} }

func (s *CSVSink) Format() string { return "csv" }

func (s *CSVSink) Write(ctx context.Context, tables ...*table.Table) error {
	for _, t := range tables {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := filepath.Join(s.Dir, Slug(t.Title)+".csv")
		if err := writeCSV(path, t); err != nil {
			return apperrors.ExportError("csv", err)
		}
	}
	return nil
}

func writeCSV(path string, t *table.Table) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header(t)); err != nil {
		return err
	}
	rows, cols := t.Dims()
	for i := 0; i < rows; i++ {
		rec := make([]string, 0, cols+1)
		rec = append(rec, t.Label(i))
		for j := 0; j < cols; j++ {
			rec = append(rec, table.FormatCell(t.At(i, j)))
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}
