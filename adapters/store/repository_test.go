package store

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mijafro/fork-lca-algebraic/domain/core"
	"github.com/mijafro/fork-lca-algebraic/domain/run"
	apperrors "github.com/mijafro/fork-lca-algebraic/internal/errors"
)

func openMemory(t *testing.T) *RunRepository {
	t.Helper()
	repo, err := Open(context.Background(), "sqlite", ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func manifest(seed uint64) *run.RunManifest {
	return run.NewRunManifest(run.KindSobol, "bike",
		[]core.MethodKey{"climate", "water"}, []string{"mass", "eff"},
		1024, seed, 8, "reg-hash", "model-hash", "v1")
}

func TestOpen_MigratesOnce(t *testing.T) {
	repo := openMemory(t)

	var count int
	require.NoError(t, repo.db.Get(&count, `SELECT COUNT(*) FROM schema_migrations`))
	files, err := Migrations()
	require.NoError(t, err)
	assert.Equal(t, len(files), count)

	applied, err := NewMigrator(repo.db).Up(context.Background())
	require.NoError(t, err)
	assert.Empty(t, applied)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "oracle", "x", nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeConfigInvalid, apperrors.GetCode(err))
}

func TestManifestRoundTrip(t *testing.T) {
	repo := openMemory(t)
	ctx := context.Background()

	m := manifest(math.MaxUint64)
	require.NoError(t, repo.SaveManifest(ctx, m))

	got, err := repo.GetManifest(ctx, m.RunID)
	require.NoError(t, err)
	assert.Equal(t, m.RunID, got.RunID)
	assert.Equal(t, m.Methods, got.Methods)
	assert.Equal(t, m.Params, got.Params)
	assert.Equal(t, uint64(math.MaxUint64), got.Seed)
	assert.Equal(t, m.Fingerprint, got.Fingerprint)
	assert.True(t, m.CreatedAt.Equal(got.CreatedAt))

	_, err = repo.GetManifest(ctx, core.NewRunID())
	assert.Equal(t, apperrors.CodeNotFound, apperrors.GetCode(err))
}

func TestSaveManifest_RejectsInvalid(t *testing.T) {
	repo := openMemory(t)
	m := manifest(1)
	m.Methods = nil
	err := repo.SaveManifest(context.Background(), m)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeStoreError, apperrors.GetCode(err))
	assert.ErrorIs(t, err, core.ErrInvalidModel)
}

func TestIndicesAndSummaries(t *testing.T) {
	repo := openMemory(t)
	ctx := context.Background()
	m := manifest(0)
	require.NoError(t, repo.SaveManifest(ctx, m))

	indices := []run.IndexRecord{
		{Method: "water", Param: "mass", S1: 0.2, ST: 0.3, S1Raw: 0.2, STRaw: 0.3},
		{Method: "climate", Param: "mass", S1: 0, ST: 0.9, S1Raw: -0.01, STRaw: 0.9, Clipped: true},
		{Method: "climate", Param: "eff", S1: 0.05, ST: 0.1, S1Raw: 0.05, STRaw: 0.1},
	}
	require.NoError(t, repo.SaveIndices(ctx, m.RunID, indices))

	got, err := repo.GetIndices(ctx, m.RunID)
	require.NoError(t, err)
	assert.Equal(t, []run.IndexRecord{indices[2], indices[1], indices[0]}, got)

	summaries := []run.SummaryRecord{
		{Method: "climate", Mean: 12, Std: 2, Median: 11.5, P5: 9, P95: 15, Variance: 4},
		{Method: "water", Mean: 3, Std: math.NaN(), Median: math.NaN(), P5: math.NaN(), P95: math.NaN(), Variance: 0, Error: "zero variance"},
	}
	require.NoError(t, repo.SaveSummaries(ctx, m.RunID, summaries))

	sums, err := repo.GetSummaries(ctx, m.RunID)
	require.NoError(t, err)
	require.Len(t, sums, 2)
	assert.Equal(t, summaries[0], sums[0])
	assert.Equal(t, "zero variance", sums[1].Error)
	assert.True(t, math.IsNaN(sums[1].Std))
	assert.Equal(t, 3.0, sums[1].Mean)
}

func TestSaveIndices_DuplicateRollsBack(t *testing.T) {
	repo := openMemory(t)
	ctx := context.Background()
	m := manifest(0)
	require.NoError(t, repo.SaveManifest(ctx, m))

	dup := run.IndexRecord{Method: "climate", Param: "mass"}
	err := repo.SaveIndices(ctx, m.RunID, []run.IndexRecord{dup, dup})
	assert.Equal(t, apperrors.CodeStoreError, apperrors.GetCode(err))

	got, err := repo.GetIndices(ctx, m.RunID)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestListAndFind(t *testing.T) {
	repo := openMemory(t)
	ctx := context.Background()

	first := manifest(7)
	second := manifest(7)
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	other := manifest(8)
	other.CreatedAt = first.CreatedAt.Add(2 * time.Second)
	for _, m := range []*run.RunManifest{first, second, other} {
		require.NoError(t, repo.SaveManifest(ctx, m))
	}

	all, err := repo.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, other.RunID, all[0].RunID)

	top, err := repo.ListRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, top, 1)

	same, err := repo.FindByFingerprint(ctx, first.Fingerprint.Fingerprint)
	require.NoError(t, err)
	require.Len(t, same, 2)
	assert.Equal(t, second.RunID, same[0].RunID)
	assert.Equal(t, first.RunID, same[1].RunID)
}

func TestStatements(t *testing.T) {
	got := statements("CREATE TABLE a (x INT);\n\n CREATE INDEX i ON a (x) ;\n")
	assert.Equal(t, []string{"CREATE TABLE a (x INT)", "CREATE INDEX i ON a (x)"}, got)
}
