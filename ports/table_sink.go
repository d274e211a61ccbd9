package ports

import (
	"context"

	"github.com/mijafro/fork-lca-algebraic/domain/table"
)

// TableSink writes result tables somewhere: a file per table, a workbook,
// a report.
type TableSink interface {
	// Format names the output, e.g. "csv" or "xlsx".
	Format() string
	Write(ctx context.Context, tables ...*table.Table) error
}
