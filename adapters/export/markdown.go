package export

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/mijafro/fork-lca-algebraic/domain/table"
	apperrors "github.com/mijafro/fork-lca-algebraic/internal/errors"
)

// Markdown renders tables as GitHub-flavored markdown: a heading, the
// table, then notes as a bullet list.
func Markdown(tables ...*table.Table) string {
	var b strings.Builder
	for i, t := range tables {
		if i > 0 {
			b.WriteString("\n")
		}
		writeMarkdown(&b, t)
	}
	return b.String()
}

func writeMarkdown(b *strings.Builder, t *table.Table) {
	if t.Title != "" {
		b.WriteString("## " + escapeCell(t.Title) + "\n\n")
	}

	h := header(t)
	for i := range h {
		h[i] = escapeCell(h[i])
	}
	b.WriteString("| " + strings.Join(h, " | ") + " |\n")
	b.WriteString("|---" + strings.Repeat("|--:", len(t.Columns)) + "|\n")

	rows, cols := t.Dims()
	cells := make([]string, cols+1)
	for i := 0; i < rows; i++ {
		cells[0] = escapeCell(t.Label(i))
		for j := 0; j < cols; j++ {
			cells[j+1] = table.FormatCell(t.At(i, j))
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}

	if len(t.Notes) > 0 {
		b.WriteString("\n")
		for _, n := range t.Notes {
			b.WriteString("- " + n + "\n")
		}
	}
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// MarkdownSink writes all tables to a writer, typically stdout.
type MarkdownSink struct {
	w    io.Writer
	path string
}

func NewMarkdownSink(w io.Writer) *MarkdownSink { return &MarkdownSink{w: w} }

// NewMarkdownFileSink writes all tables to one file at path.
func NewMarkdownFileSink(path string) *MarkdownSink { return &MarkdownSink{path: path} }

func (s *MarkdownSink) Format() string { return "md" }

func (s *MarkdownSink) Write(ctx context.Context, tables ...*table.Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc := Markdown(tables...)
	if s.w != nil {
		if _, err := io.WriteString(s.w, doc); err != nil {
			return apperrors.ExportError("md", err)
		}
		return nil
	}
	if err := ensureDir(s.path); err != nil {
		return apperrors.ExportError("md", err)
	}
	if err := os.WriteFile(s.path, []byte(doc), 0o644); err != nil {
		return apperrors.ExportError("md", err)
	}
	return nil
}
