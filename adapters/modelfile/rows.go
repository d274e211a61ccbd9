package modelfile

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/mijafro/fork-lca-algebraic/domain/params"
	"github.com/mijafro/fork-lca-algebraic/domain/table"
	apperrors "github.com/mijafro/fork-lca-algebraic/internal/errors"
)

// LabelColumn is the optional column holding row labels.
const LabelColumn = "label"

// LoadRows reads parameter assignments from a .csv or .xlsx file. An xlsx
// workbook is read from its first sheet.
func LoadRows(path string, registry *params.Registry) (*table.Table, error) {
	var (
		t   *table.Table
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		t, err = readWorkbook(path, registry)
	default:
		var f *os.File
		if f, err = os.Open(path); err == nil {
			defer f.Close()
			t, err = ReadRows(f, registry)
		}
	}
	if err != nil {
		return nil, apperrors.WithCode(apperrors.CodeInvalidInput, fmt.Errorf("%s: %w", path, err))
	}
	return t, nil
}

// ReadRows reads CSV: a header of parameter names, optionally with a
// "label" column, then one assignment per line. Choice parameters take the
// choice name or its index.
func ReadRows(r io.Reader, registry *params.Registry) (*table.Table, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, err
	}
	return rowsTable(records, registry)
}

func readWorkbook(path string, registry *params.Registry) (*table.Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}
	return rowsTable(records, registry)
}

func rowsTable(records [][]string, registry *params.Registry) (*table.Table, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("empty file")
	}

	label := -1
	var cols []string
	var ps []*params.Parameter
	var index []int
	for j, h := range records[0] {
		h = strings.TrimSpace(h)
		if h == LabelColumn {
			label = j
			continue
		}
		p, ok := registry.Get(h)
		if !ok {
			return nil, fmt.Errorf("unknown parameter %q", h)
		}
		cols = append(cols, h)
		ps = append(ps, p)
		index = append(index, j)
	}

	t := table.New("rows", LabelColumn, cols...)
	for i, rec := range records[1:] {
		values := make([]float64, len(cols))
		for k, j := range index {
			if j >= len(rec) {
				return nil, fmt.Errorf("line %d: missing %s", i+2, cols[k])
			}
			v, err := cell(ps[k], strings.TrimSpace(rec[j]))
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", i+2, err)
			}
			values[k] = v
		}
		lbl := ""
		if label >= 0 && label < len(rec) {
			lbl = rec[label]
		}
		if err := t.AddRow(lbl, values...); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func cell(p *params.Parameter, s string) (float64, error) {
	if p.Kind() == params.Choice {
		if i, ok := p.ChoiceIndex(s); ok {
			return float64(i), nil
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a value", p.Name(), s)
	}
	if p.Kind() == params.Choice && !p.Contains(v) {
		return 0, fmt.Errorf("%s: no choice %q", p.Name(), s)
	}
	return v, nil
}
