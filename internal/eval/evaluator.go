package eval

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/mijafro/fork-lca-algebraic/domain/core"
	"github.com/mijafro/fork-lca-algebraic/domain/expr"
	"github.com/mijafro/fork-lca-algebraic/domain/params"
	"github.com/mijafro/fork-lca-algebraic/internal"
)

// DefaultChunkSize is the number of rows one task evaluates.
const DefaultChunkSize = 1024

// Evaluator runs compiled programs over row batches. Rows are split into
// contiguous chunks; each chunk is one task and writes only its own slice
// of the pre-sized output, so results are in row order whatever the
// completion order. All tasks, across every concurrent call, share one
// semaphore sized to the worker count.
type Evaluator struct {
	workers   int
	chunkSize int
	sem       *semaphore.Weighted
	logger    *internal.Logger
}

// NewEvaluator creates an evaluator. workers <= 0 means runtime.NumCPU();
// chunkSize <= 0 means DefaultChunkSize. A nil logger discards output.
func NewEvaluator(workers, chunkSize int, logger *internal.Logger) *Evaluator {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	return &Evaluator{
		workers:   workers,
		chunkSize: chunkSize,
		sem:       semaphore.NewWeighted(int64(workers)),
		logger:    logger.WithComponent("Evaluator"),
	}
}

func (e *Evaluator) Workers() int { return e.workers }
func (e *Evaluator) ChunkSize() int { return e.chunkSize }

// Evaluate compiles tree against the columns of rows and returns one value
// per row.
func (e *Evaluator) Evaluate(ctx context.Context, tree expr.Expr, registry *params.Registry, rows Rows) ([]float64, error) {
	prog, err := Compile(tree, registry, rows.ColumnNames())
	if err != nil {
		return nil, err
	}
	return e.Run(ctx, prog, rows)
}

// Run evaluates a compiled program. The program's column layout must match
// rows, and every switched column must hold choice indices.
func (e *Evaluator) Run(ctx context.Context, prog *Program, rows Rows) ([]float64, error) {
	if err := checkLayout(prog, rows); err != nil {
		return nil, err
	}
	if err := checkChoices(prog, rows); err != nil {
		return nil, err
	}
	n, _ := rows.Dims()
	out := make([]float64, n)

	if e.workers == 1 || n <= e.chunkSize {
		return out, e.sequential(ctx, prog, rows, out)
	}

	g, gctx := errgroup.WithContext(ctx)
	e.schedule(gctx, g, prog, rows, out)
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// RunBatch evaluates prog over several independent row sets (for example
// the A, B and C_i sample matrices) in one pass; their chunks compete for
// the same workers. Results are indexed like batches.
func (e *Evaluator) RunBatch(ctx context.Context, prog *Program, batches []Rows) ([][]float64, error) {
	results := make([][]float64, len(batches))
	for i, rows := range batches {
		if err := checkLayout(prog, rows); err != nil {
			return nil, fmt.Errorf("batch %d: %w", i, err)
		}
		if err := checkChoices(prog, rows); err != nil {
			return nil, fmt.Errorf("batch %d: %w", i, err)
		}
		n, _ := rows.Dims()
		results[i] = make([]float64, n)
	}

	if e.workers == 1 {
		for i, rows := range batches {
			if err := e.sequential(ctx, prog, rows, results[i]); err != nil {
				return nil, err
			}
		}
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, rows := range batches {
		e.schedule(gctx, g, prog, rows, results[i])
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	e.logger.Debug("evaluated %d matrices with %d workers", len(batches), e.workers)
	return results, nil
}

// schedule adds one task per chunk of rows to g.
func (e *Evaluator) schedule(ctx context.Context, g *errgroup.Group, prog *Program, rows Rows, out []float64) {
	n := len(out)
	for lo := 0; lo < n; lo += e.chunkSize {
		lo, hi := lo, min(lo+e.chunkSize, n)
		g.Go(func() error {
			if err := e.sem.Acquire(ctx, 1); err != nil {
				return err
			}
			defer e.sem.Release(1)
			if err := ctx.Err(); err != nil {
				return err
			}
			evalRange(prog, rows, out, lo, hi)
			return nil
		})
	}
}

// sequential evaluates in the calling goroutine, checking ctx between
// chunks.
func (e *Evaluator) sequential(ctx context.Context, prog *Program, rows Rows, out []float64) error {
	n := len(out)
	for lo := 0; lo < n; lo += e.chunkSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		evalRange(prog, rows, out, lo, min(lo+e.chunkSize, n))
	}
	return nil
}

func evalRange(prog *Program, rows Rows, out []float64, lo, hi int) {
	if raw, ok := rows.(rawRower); ok {
		for i := lo; i < hi; i++ {
			out[i] = prog.fn(raw.RawRowView(i))
		}
		return
	}
	_, c := rows.Dims()
	scratch := make([]float64, c)
	for i := lo; i < hi; i++ {
		for j := range scratch {
			scratch[j] = rows.At(i, j)
		}
		out[i] = prog.fn(scratch)
	}
}

func checkLayout(prog *Program, rows Rows) error {
	cols := rows.ColumnNames()
	if len(cols) != len(prog.columns) {
		return fmt.Errorf("program compiled for %d columns, rows have %d", len(prog.columns), len(cols))
	}
	for i := range cols {
		if cols[i] != prog.columns[i] {
			return fmt.Errorf("column %d is %q, program expects %q", i, cols[i], prog.columns[i])
		}
	}
	return nil
}

// checkChoices rejects rows whose switched columns do not hold the index of
// a declared choice (fractional, out of range or NaN).
func checkChoices(prog *Program, rows Rows) error {
	n, _ := rows.Dims()
	for j, p := range prog.choices {
		for i := 0; i < n; i++ {
			if v := rows.At(i, j); !p.Contains(v) {
				return core.NewInvalidParameterError(p.Name(), fmt.Sprintf("row %d: %v is not a choice index in [0, %d)", i, v, len(p.Choices())))
			}
		}
	}
	return nil
}
