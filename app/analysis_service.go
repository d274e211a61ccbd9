package app

import (
	"context"
	"fmt"
	"time"

	"github.com/mijafro/fork-lca-algebraic/domain/core"
	"github.com/mijafro/fork-lca-algebraic/domain/expr"
	"github.com/mijafro/fork-lca-algebraic/domain/graph"
	"github.com/mijafro/fork-lca-algebraic/domain/params"
	"github.com/mijafro/fork-lca-algebraic/domain/run"
	"github.com/mijafro/fork-lca-algebraic/domain/table"
	"github.com/mijafro/fork-lca-algebraic/internal"
	"github.com/mijafro/fork-lca-algebraic/internal/builder"
	"github.com/mijafro/fork-lca-algebraic/internal/config"
	"github.com/mijafro/fork-lca-algebraic/internal/eval"
	"github.com/mijafro/fork-lca-algebraic/internal/sampler"
	"github.com/mijafro/fork-lca-algebraic/internal/sensitivity"
	"github.com/mijafro/fork-lca-algebraic/internal/simplify"
	"github.com/mijafro/fork-lca-algebraic/ports"
)

// CodeVersion is recorded in every run manifest.
const CodeVersion = "0.4.0"

// AnalysisService wires the builder, sampler, evaluator, analyzer and
// simplifier for one model, and records runs when a repository is set.
type AnalysisService struct {
	cfg        *config.Config
	root       core.ActivityID
	builder    *builder.Builder
	evaluator  *eval.Evaluator
	analyzer   *sensitivity.Analyzer
	simplifier *simplify.Simplifier
	repo       ports.RunRepository
	logger     *internal.Logger
}

// Request selects what a run covers. Empty Methods means every method of
// the graph; empty Params means every variable parameter the trees use.
type Request struct {
	Methods []core.MethodKey
	Params  []string
}

// Report is the outcome of one run.
type Report struct {
	Manifest   *run.RunManifest
	Results    []*sensitivity.Result
	Summaries  []run.SummaryRecord
	OAT        *sensitivity.OATResult
	Simplified []*simplify.SimplifiedModel
	Duration   time.Duration
}

// NewAnalysisService creates the service. repo may be nil.
func NewAnalysisService(cfg *config.Config, g *graph.Graph, registry *params.Registry, root core.ActivityID,
	repo ports.RunRepository, logger *internal.Logger) *AnalysisService {

	if logger == nil {
		logger = internal.NewNopLogger()
	}
	b := builder.New(g, registry, logger)
	ev := eval.NewEvaluator(cfg.Workers.Count, cfg.Workers.ChunkSize, logger)
	an := sensitivity.NewAnalyzer(sampler.New(cfg.Analysis.Seed), ev, logger)
	return &AnalysisService{
		cfg:        cfg,
		root:       root,
		builder:    b,
		evaluator:  ev,
		analyzer:   an,
		simplifier: simplify.New(b, an, logger),
		repo:       repo,
		logger:     logger.WithComponent("Service"),
	}
}

func (s *AnalysisService) Builder() *builder.Builder { return s.builder }

func (s *AnalysisService) methods(req Request) []core.MethodKey {
	if len(req.Methods) > 0 {
		return req.Methods
	}
	return s.builder.Graph().Methods()
}

// trees builds every method and resolves the analyzed parameters.
func (s *AnalysisService) trees(req Request) ([]core.MethodKey, map[core.MethodKey]expr.Expr, []*params.Parameter, error) {
	methods := s.methods(req)
	if len(methods) == 0 {
		return nil, nil, nil, core.NewInvalidModelError("graph has no impact methods")
	}
	trees, err := s.builder.BuildAll(s.root, methods)
	if err != nil {
		return nil, nil, nil, err
	}

	names := req.Params
	if len(names) == 0 {
		seen := map[string]bool{}
		for _, m := range methods {
			for _, p := range expr.Params(trees[m]) {
				if !seen[p] {
					seen[p] = true
					names = append(names, p)
				}
			}
		}
	}
	ps, err := s.builder.Registry().Select(names)
	if err != nil {
		return nil, nil, nil, err
	}
	return methods, trees, ps, nil
}

func (s *AnalysisService) manifest(kind run.Kind, methods []core.MethodKey, trees map[core.MethodKey]expr.Expr, ps []*params.Parameter, n int) *run.RunManifest {
	rendered := make(map[core.MethodKey]string, len(trees))
	for m, t := range trees {
		rendered[m] = expr.Format(t)
	}
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = p.Name()
	}
	return run.NewRunManifest(kind, s.builder.Graph().Name(s.root), methods, names, n,
		s.cfg.Analysis.Seed, s.evaluator.Workers(),
		s.builder.Registry().Hash(), core.ComputeModelHash(methods, rendered), CodeVersion)
}

// Analyze runs the Sobol analysis of every requested method on one sample
// set.
func (s *AnalysisService) Analyze(ctx context.Context, req Request) (*Report, error) {
	start := time.Now()
	methods, trees, ps, err := s.trees(req)
	if err != nil {
		return nil, err
	}
	if len(ps) == 0 {
		return nil, core.NewInvalidParameterError("", "the model has no variable parameters")
	}

	n := s.cfg.Analysis.N
	results, err := s.analyzer.AnalyzeMethods(ctx, trees, methods, s.builder.Registry(), ps, n)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Manifest: s.manifest(run.KindSobol, methods, trees, ps, n),
		Results:  results,
	}
	var indices []run.IndexRecord
	for _, r := range results {
		report.Summaries = append(report.Summaries, summaryRecord(r))
		indices = append(indices, indexRecords(r.Method, r.Indices)...)
	}
	report.Duration = time.Since(start)

	if err := s.persist(ctx, report.Manifest, indices, report.Summaries); err != nil {
		return nil, err
	}
	s.logger.Info("sobol run %s: %d methods, %d params, n=%d in %s",
		report.Manifest.RunID, len(methods), len(ps), n, report.Duration)
	return report, nil
}

// OAT runs the one-at-a-time variation with points steps per continuous
// parameter.
func (s *AnalysisService) OAT(ctx context.Context, req Request, points int) (*Report, error) {
	start := time.Now()
	methods, trees, ps, err := s.trees(req)
	if err != nil {
		return nil, err
	}
	res, err := s.analyzer.OAT(ctx, trees, methods, s.builder.Registry(), ps, points)
	if err != nil {
		return nil, err
	}
	report := &Report{
		Manifest: s.manifest(run.KindOAT, methods, trees, ps, points),
		OAT:      res,
		Duration: time.Since(start),
	}
	if err := s.persist(ctx, report.Manifest, nil, nil); err != nil {
		return nil, err
	}
	return report, nil
}

// Simplify reduces every requested method.
func (s *AnalysisService) Simplify(ctx context.Context, req Request) (*Report, error) {
	start := time.Now()
	methods, trees, ps, err := s.trees(req)
	if err != nil {
		return nil, err
	}
	opts := simplify.Options{
		N:              s.cfg.Analysis.N,
		KeepFraction:   s.cfg.Analysis.KeepFraction,
		IndexThreshold: s.cfg.Analysis.IndexThreshold,
		ValidationN:    s.cfg.Analysis.ValidationN,
	}
	models, err := s.simplifier.SimplifyMethods(ctx, s.root, methods, opts)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Manifest:   s.manifest(run.KindSimplify, methods, trees, ps, opts.N),
		Simplified: models,
		Duration:   time.Since(start),
	}
	var indices []run.IndexRecord
	for _, m := range models {
		indices = append(indices, indexRecords(m.Method, m.Indices)...)
	}
	if err := s.persist(ctx, report.Manifest, indices, nil); err != nil {
		return nil, err
	}
	return report, nil
}

// Evaluate computes every requested method on rows, or on the defaults
// when rows is nil. The result has one row per input row and one column
// per method.
func (s *AnalysisService) Evaluate(ctx context.Context, req Request, rows *table.Table) (*table.Table, error) {
	methods, trees, ps, err := s.trees(req)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		names := make([]string, len(ps))
		defaults := make([]float64, len(ps))
		for i, p := range ps {
			names[i], defaults[i] = p.Name(), p.Default()
		}
		rows = table.New("defaults", "", names...)
		if err := rows.AddRow("default", defaults...); err != nil {
			return nil, err
		}
	}

	cols := make([]string, len(methods))
	outs := make([][]float64, len(methods))
	for k, m := range methods {
		cols[k] = string(m)
		tree := bindMissing(trees[m], s.builder.Registry(), rows)
		if outs[k], err = s.evaluator.Evaluate(ctx, tree, s.builder.Registry(), rows); err != nil {
			return nil, fmt.Errorf("method %q: %w", m, err)
		}
	}

	out := table.New("Impacts", rows.Index, cols...)
	r, _ := rows.Dims()
	for i := 0; i < r; i++ {
		vals := make([]float64, len(methods))
		for k := range methods {
			vals[k] = outs[k][i]
		}
		if err := out.AddRow(rows.Label(i), vals...); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// bindMissing fixes at their defaults the parameters tree uses that rows
// has no column for.
func bindMissing(tree expr.Expr, registry *params.Registry, rows *table.Table) expr.Expr {
	var present []*params.Parameter
	for _, name := range rows.ColumnNames() {
		if p, ok := registry.Get(name); ok {
			present = append(present, p)
		}
	}
	return sensitivity.BindOthers(tree, registry, present)
}

// Render returns the folded expression of every requested method with the
// fix parameters at their defaults.
func (s *AnalysisService) Render(req Request, fix ...string) (map[core.MethodKey]string, []core.MethodKey, error) {
	methods := s.methods(req)
	trees, err := s.builder.BuildAll(s.root, methods, fix...)
	if err != nil {
		return nil, nil, err
	}
	out := make(map[core.MethodKey]string, len(trees))
	for m, t := range trees {
		out[m] = expr.Format(t)
	}
	return out, methods, nil
}

// Export writes tables to every sink.
func (s *AnalysisService) Export(ctx context.Context, sinks []ports.TableSink, tables ...*table.Table) error {
	for _, sink := range sinks {
		if err := sink.Write(ctx, tables...); err != nil {
			return err
		}
		s.logger.Debug("exported %d tables as %s", len(tables), sink.Format())
	}
	return nil
}

func (s *AnalysisService) persist(ctx context.Context, m *run.RunManifest, indices []run.IndexRecord, summaries []run.SummaryRecord) error {
	if s.repo == nil {
		return nil
	}
	if err := s.repo.SaveManifest(ctx, m); err != nil {
		return err
	}
	if len(indices) > 0 {
		if err := s.repo.SaveIndices(ctx, m.RunID, indices); err != nil {
			return err
		}
	}
	if len(summaries) > 0 {
		if err := s.repo.SaveSummaries(ctx, m.RunID, summaries); err != nil {
			return err
		}
	}
	s.logger.Debug("stored run %s", m.RunID)
	return nil
}
