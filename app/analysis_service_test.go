package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mijafro/fork-lca-algebraic/domain/core"
	"github.com/mijafro/fork-lca-algebraic/domain/expr"
	"github.com/mijafro/fork-lca-algebraic/domain/graph"
	"github.com/mijafro/fork-lca-algebraic/domain/params"
	"github.com/mijafro/fork-lca-algebraic/domain/run"
	"github.com/mijafro/fork-lca-algebraic/domain/table"
	"github.com/mijafro/fork-lca-algebraic/internal/config"
	"github.com/mijafro/fork-lca-algebraic/internal/simplify"
	"github.com/mijafro/fork-lca-algebraic/ports"
)

type MockRunRepository struct {
	mock.Mock
}

func (m *MockRunRepository) SaveManifest(ctx context.Context, manifest *run.RunManifest) error {
	return m.Called(ctx, manifest).Error(0)
}

func (m *MockRunRepository) SaveIndices(ctx context.Context, runID core.RunID, indices []run.IndexRecord) error {
	return m.Called(ctx, runID, indices).Error(0)
}

func (m *MockRunRepository) SaveSummaries(ctx context.Context, runID core.RunID, summaries []run.SummaryRecord) error {
	return m.Called(ctx, runID, summaries).Error(0)
}

func (m *MockRunRepository) GetManifest(ctx context.Context, runID core.RunID) (*run.RunManifest, error) {
	args := m.Called(ctx, runID)
	return args.Get(0).(*run.RunManifest), args.Error(1)
}

func (m *MockRunRepository) GetIndices(ctx context.Context, runID core.RunID) ([]run.IndexRecord, error) {
	args := m.Called(ctx, runID)
	return args.Get(0).([]run.IndexRecord), args.Error(1)
}

func (m *MockRunRepository) GetSummaries(ctx context.Context, runID core.RunID) ([]run.SummaryRecord, error) {
	args := m.Called(ctx, runID)
	return args.Get(0).([]run.SummaryRecord), args.Error(1)
}

func (m *MockRunRepository) ListRuns(ctx context.Context, limit int) ([]*run.RunManifest, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]*run.RunManifest), args.Error(1)
}

func (m *MockRunRepository) FindByFingerprint(ctx context.Context, fingerprint core.Hash) ([]*run.RunManifest, error) {
	args := m.Called(ctx, fingerprint)
	return args.Get(0).([]*run.RunManifest), args.Error(1)
}

func (m *MockRunRepository) Close() error { return m.Called().Error(0) }

type MockTableSink struct {
	mock.Mock
}

func (m *MockTableSink) Format() string { return "mock" }

func (m *MockTableSink) Write(ctx context.Context, tables ...*table.Table) error {
	return m.Called(ctx, len(tables)).Error(0)
}

func testConfig() *config.Config {
	return &config.Config{
		Analysis: config.AnalysisConfig{N: 256, IndexThreshold: 0.05, ValidationN: 64, Seed: 3},
		Workers:  config.WorkerConfig{Count: 4, ChunkSize: 64},
		Results:  config.ResultsConfig{Driver: "sqlite"},
	}
}

// chair: legs (mass) + seat switch on material + glue. Water only comes
// from the adhesive and does not vary.
func chair(t *testing.T) (*graph.Graph, *params.Registry, core.ActivityID) {
	t.Helper()
	reg := params.MustRegistry(
		params.MustFloat("mass", params.FloatSpec{Distribution: params.Uniform, Default: 6, Min: 2, Max: 10}),
		params.MustFloat("glue", params.FloatSpec{Distribution: params.Uniform, Default: 0.1, Min: 0.05, Max: 0.15}),
		params.MustFloat("waste", params.FloatSpec{Default: 0.1}),
		params.MustChoice("material", params.ChoiceSpec{Choices: []string{"wood", "steel"}}),
	)
	g := graph.New()
	wood, err := g.AddBackground("wood", map[core.MethodKey]float64{"climate": 0.5, "water": 0})
	require.NoError(t, err)
	steel, err := g.AddBackground("steel", map[core.MethodKey]float64{"climate": 2, "water": 0})
	require.NoError(t, err)
	seat, err := g.AddSwitch("seat", "material",
		graph.SwitchCase{Choice: "wood", Child: wood},
		graph.SwitchCase{Choice: "steel", Child: steel},
	)
	require.NoError(t, err)
	adhesive, err := g.AddParametricBackground("adhesive", map[core.MethodKey]expr.Expr{
		"climate": expr.Param("glue"),
		"water":   expr.Const(1),
	})
	require.NoError(t, err)

	root, err := g.AddForeground("chair")
	require.NoError(t, err)
	require.NoError(t, g.AddExchange(root, wood, expr.Add(expr.Param("mass"), expr.Param("waste"))))
	require.NoError(t, g.AddExchange(root, seat, nil))
	require.NoError(t, g.AddExchange(root, adhesive, nil))
	return g, reg, root
}

func TestAnalyze_PersistsRun(t *testing.T) {
	g, reg, root := chair(t)
	repo := new(MockRunRepository)
	repo.On("SaveManifest", mock.Anything, mock.AnythingOfType("*run.RunManifest")).Return(nil)
	repo.On("SaveIndices", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	repo.On("SaveSummaries", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	svc := NewAnalysisService(testConfig(), g, reg, root, repo, nil)
	report, err := svc.Analyze(context.Background(), Request{})
	require.NoError(t, err)

	assert.Equal(t, []core.MethodKey{"climate", "water"}, report.Manifest.Methods)
	assert.Equal(t, []string{"mass", "glue", "material"}, report.Manifest.Params)
	assert.Equal(t, "chair", report.Manifest.Root)
	assert.Equal(t, 4, report.Manifest.Workers)
	assert.NoError(t, report.Manifest.Validate())

	require.Len(t, report.Results, 2)
	require.NoError(t, report.Results[0].Err)
	assert.ErrorIs(t, report.Results[1].Err, core.ErrZeroVariance, "water is constant")
	assert.Equal(t, "mass", report.Results[0].Ranked()[0].Param)

	require.Len(t, report.Summaries, 2)
	assert.NotEmpty(t, report.Summaries[1].Error)

	repo.AssertCalled(t, "SaveIndices", mock.Anything, report.Manifest.RunID, mock.MatchedBy(func(ix []run.IndexRecord) bool {
		return len(ix) == 3
	}))
	repo.AssertExpectations(t)

	tables := report.Tables()
	require.Len(t, tables, 2)
	assert.NotEmpty(t, tables[0].Notes)
}

func TestAnalyze_SameSeedSameFingerprint(t *testing.T) {
	g, reg, root := chair(t)
	a, err := NewAnalysisService(testConfig(), g, reg, root, nil, nil).Analyze(context.Background(), Request{Methods: []core.MethodKey{"climate"}})
	require.NoError(t, err)

	cfg := testConfig()
	cfg.Workers.Count = 1
	b, err := NewAnalysisService(cfg, g, reg, root, nil, nil).Analyze(context.Background(), Request{Methods: []core.MethodKey{"climate"}})
	require.NoError(t, err)

	assert.Equal(t, a.Manifest.Fingerprint.Fingerprint, b.Manifest.Fingerprint.Fingerprint)
	assert.NotEqual(t, a.Manifest.RunID, b.Manifest.RunID)
	assert.Equal(t, a.Results[0].Indices, b.Results[0].Indices)
}

func TestAnalyze_StoreFailure(t *testing.T) {
	g, reg, root := chair(t)
	repo := new(MockRunRepository)
	repo.On("SaveManifest", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	_, err := NewAnalysisService(testConfig(), g, reg, root, repo, nil).Analyze(context.Background(), Request{})
	assert.EqualError(t, err, "disk full")
	repo.AssertNotCalled(t, "SaveIndices", mock.Anything, mock.Anything, mock.Anything)
}

func TestAnalyze_Errors(t *testing.T) {
	g, reg, root := chair(t)
	svc := NewAnalysisService(testConfig(), g, reg, root, nil, nil)
	ctx := context.Background()

	_, err := svc.Analyze(ctx, Request{Methods: []core.MethodKey{"land"}})
	assert.ErrorIs(t, err, core.ErrUnknownMethod)

	_, err = svc.Analyze(ctx, Request{Params: []string{"ghost"}})
	assert.ErrorIs(t, err, core.ErrUnboundParameter)
}

func TestSimplify(t *testing.T) {
	g, reg, root := chair(t)
	svc := NewAnalysisService(testConfig(), g, reg, root, nil, nil)

	report, err := svc.Simplify(context.Background(), Request{Methods: []core.MethodKey{"climate"}})
	require.NoError(t, err)
	require.Len(t, report.Simplified, 1)

	m := report.Simplified[0]
	assert.Contains(t, m.Retained, "mass")
	assert.Contains(t, m.Fixed, "glue")
	assert.True(t, m.Validated)
	assert.Less(t, m.Error, 0.05)

	tables := report.Tables()
	require.Len(t, tables, 1)
	r, c := tables[0].Dims()
	assert.Equal(t, 1, r)
	assert.Equal(t, 5, c)
}

func TestOAT(t *testing.T) {
	g, reg, root := chair(t)
	report, err := NewAnalysisService(testConfig(), g, reg, root, nil, nil).OAT(context.Background(), Request{}, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"mass", "glue", "material"}, report.OAT.Params)
	assert.Equal(t, run.KindOAT, report.Manifest.Kind)
}

func TestEvaluate(t *testing.T) {
	g, reg, root := chair(t)
	svc := NewAnalysisService(testConfig(), g, reg, root, nil, nil)
	ctx := context.Background()

	defaults, err := svc.Evaluate(ctx, Request{Methods: []core.MethodKey{"climate"}}, nil)
	require.NoError(t, err)
	// 0.5*(6+0.1) + 0.5 (wood seat) + 0.1 glue
	assert.InDelta(t, 3.65, defaults.At(0, 0), 1e-12)

	rows := table.New("rows", "case", "mass", "material")
	require.NoError(t, rows.AddRow("heavy steel", 6, 1))
	require.NoError(t, rows.AddRow("light wood", 2, 0))
	out, err := svc.Evaluate(ctx, Request{Methods: []core.MethodKey{"climate", "water"}}, rows)
	require.NoError(t, err)

	assert.Equal(t, []string{"climate", "water"}, out.Columns)
	assert.Equal(t, []string{"heavy steel", "light wood"}, out.Labels)
	assert.InDelta(t, 0.5*6.1+2+0.1, out.At(0, 0), 1e-12)
	assert.InDelta(t, 0.5*2.1+0.5+0.1, out.At(1, 0), 1e-12)
	assert.Equal(t, 1.0, out.At(0, 1))
}

func TestRenderAndExport(t *testing.T) {
	g, reg, root := chair(t)
	svc := NewAnalysisService(testConfig(), g, reg, root, nil, nil)

	rendered, methods, err := svc.Render(Request{}, "material")
	require.NoError(t, err)
	assert.Equal(t, []core.MethodKey{"climate", "water"}, methods)
	assert.NotContains(t, rendered["climate"], "material")
	assert.Contains(t, rendered["climate"], "mass")

	sink := new(MockTableSink)
	sink.On("Write", mock.Anything, 2).Return(nil)
	require.NoError(t, svc.Export(context.Background(), []ports.TableSink{sink}, table.New("a", ""), table.New("b", "")))
	sink.AssertExpectations(t)
}

func TestStoredTables(t *testing.T) {
	m := run.NewRunManifest(run.KindSobol, "chair", []core.MethodKey{"climate"}, []string{"mass"},
		64, 1, 2, "r", "m", CodeVersion)
	tables := StoredTables(m,
		[]run.IndexRecord{{Method: "climate", Param: "mass", S1: 0.9, ST: 0.95, S1Raw: 0.9, STRaw: 0.95}},
		[]run.SummaryRecord{{Method: "climate", Mean: 3, Variance: 0, Error: "zero variance"}})

	require.Len(t, tables, 2)
	assert.Equal(t, []string{"climate/mass"}, tables[0].Labels)
	assert.Equal(t, 0.95, tables[0].At(0, 1))
	assert.Contains(t, tables[1].Notes, "climate: zero variance")
	assert.Len(t, tables[1].Notes, 2)
}

func TestSimplifiedTable_FlagsUnreduced(t *testing.T) {
	tbl := SimplifiedTable([]*simplify.SimplifiedModel{
		{Method: "climate", Retained: []string{"mass"}, Tree: expr.Param("mass"), Nodes: 1, OriginalNodes: 3, Error: 0.01},
		{Method: "water", Retained: []string{"mass"}, Tree: expr.Const(1), Nodes: 1, OriginalNodes: 1,
			Err: &core.ZeroVarianceError{Method: "water"}},
	})
	r, _ := tbl.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, "climate keeps [mass]: mass", tbl.Notes[0])
	assert.Contains(t, tbl.Notes[1], "water not reduced")
}
