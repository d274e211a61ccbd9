package export

import (
	"context"
	"math"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/mijafro/fork-lca-algebraic/domain/table"
	apperrors "github.com/mijafro/fork-lca-algebraic/internal/errors"
)

// maxSheetName is the sheet-name limit of the xlsx format.
const maxSheetName = 31

// XLSXSink writes every table to its own sheet of one workbook. Notes go
// below the data, one per row.
type XLSXSink struct {
	Path string
}

func NewXLSXSink(path string) *XLSXSink { return &XLSXSink{Path: path} }

func (s *XLSXSink) Format() string { return "xlsx" }

func (s *XLSXSink) Write(ctx context.Context, tables ...*table.Table) error {
	if err := s.write(ctx, tables); err != nil {
		return apperrors.ExportError("xlsx", err)
	}
	return nil
}

func (s *XLSXSink) write(ctx context.Context, tables []*table.Table) error {
	f := excelize.NewFile()
	defer f.Close()

	used := map[string]int{}
	for i, t := range tables {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := sheetName(t.Title, used)
		if i == 0 {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				return err
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return err
		}
		if err := writeSheet(f, name, t); err != nil {
			return err
		}
	}

	if err := ensureDir(s.Path); err != nil {
		return err
	}
	return f.SaveAs(s.Path)
}

func writeSheet(f *excelize.File, sheet string, t *table.Table) error {
	for j, h := range header(t) {
		cell, _ := excelize.CoordinatesToCellName(j+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}

	rows, cols := t.Dims()
	for i := 0; i < rows; i++ {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetCellValue(sheet, cell, t.Label(i)); err != nil {
			return err
		}
		for j := 0; j < cols; j++ {
			v := t.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(j+2, i+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}

	for k, note := range t.Notes {
		cell, _ := excelize.CoordinatesToCellName(1, rows+3+k)
		if err := f.SetCellValue(sheet, cell, note); err != nil {
			return err
		}
	}
	return nil
}

// sheetName shortens the slug of title to the sheet-name limit and makes it
// unique within the workbook.
func sheetName(title string, used map[string]int) string {
	name := Slug(title)
	if len(name) > maxSheetName {
		name = name[:maxSheetName]
	}
	used[name]++
	if n := used[name]; n > 1 {
		suffix := "-" + strconv.Itoa(n)
		if len(name)+len(suffix) > maxSheetName {
			name = name[:maxSheetName-len(suffix)]
		}
		name += suffix
	}
	return name
}
