// Package export writes result tables as CSV, XLSX, Markdown or HTML.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/mijafro/fork-lca-algebraic/domain/table"
	apperrors "github.com/mijafro/fork-lca-algebraic/internal/errors"
	"github.com/mijafro/fork-lca-algebraic/ports"
)

// Formats lists the names accepted by NewSink.
var Formats = []string{"csv", "xlsx", "md", "html"}

// NewSink creates the sink for format. File sinks write under dir; "md"
// writes to w when it is not nil.
func NewSink(format, dir string, w io.Writer) (ports.TableSink, error) {
	switch strings.ToLower(format) {
	case "csv":
		return NewCSVSink(dir), nil
	case "xlsx":
		return NewXLSXSink(filepath.Join(dir, "results.xlsx")), nil
	case "md", "markdown":
		if w != nil {
			return NewMarkdownSink(w), nil
		}
		return NewMarkdownFileSink(filepath.Join(dir, "results.md")), nil
	case "html":
		return NewHTMLSink(filepath.Join(dir, "results.html")), nil
	default:
		return nil, apperrors.InvalidInput(fmt.Sprintf("unknown export format %q (want one of %s)", format, strings.Join(Formats, ", ")))
	}
}

// Slug turns a table title into a file or sheet name.
func Slug(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	s := strings.TrimSuffix(b.String(), "-")
	if s == "" {
		return "table"
	}
	return s
}

// header is the first row of every export: the index name then columns.
func header(t *table.Table) []string {
	index := t.Index
	if index == "" {
		index = "#"
	}
	return append([]string{index}, t.Columns...)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
