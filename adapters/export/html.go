package export

import (
	"context"
	"os"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"github.com/mijafro/fork-lca-algebraic/domain/table"
	apperrors "github.com/mijafro/fork-lca-algebraic/internal/errors"
)

// HTMLSink renders the markdown report to a standalone HTML page.
type HTMLSink struct {
	Path  string
	Title string
}

func NewHTMLSink(path string) *HTMLSink { return &HTMLSink{Path: path, Title: "Sensitivity report"} }

func (s *HTMLSink) Format() string { return "html" }

func (s *HTMLSink) Write(ctx context.Context, tables ...*table.Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	page := RenderHTML(s.Title, tables...)
	if err := ensureDir(s.Path); err != nil {
		return apperrors.ExportError("html", err)
	}
	if err := os.WriteFile(s.Path, page, 0o644); err != nil {
		return apperrors.ExportError("html", err)
	}
	return nil
}

// RenderHTML converts tables to a complete HTML document.
func RenderHTML(title string, tables ...*table.Table) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	r := html.NewRenderer(html.RendererOptions{
		Title: title,
		Flags: html.CommonFlags | html.CompletePage,
	})
	return markdown.ToHTML([]byte(Markdown(tables...)), p, r)
}
