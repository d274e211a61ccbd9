package ports

import (
	"context"

	"github.com/mijafro/fork-lca-algebraic/domain/core"
	"github.com/mijafro/fork-lca-algebraic/domain/run"
)

// RunRepository persists analysis runs. The manifest is saved first; indices
// and summaries reference it by run id.
type RunRepository interface {
	SaveManifest(ctx context.Context, manifest *run.RunManifest) error
	SaveIndices(ctx context.Context, runID core.RunID, indices []run.IndexRecord) error
	SaveSummaries(ctx context.Context, runID core.RunID, summaries []run.SummaryRecord) error

	GetManifest(ctx context.Context, runID core.RunID) (*run.RunManifest, error)
	GetIndices(ctx context.Context, runID core.RunID) ([]run.IndexRecord, error)
	GetSummaries(ctx context.Context, runID core.RunID) ([]run.SummaryRecord, error)

	// ListRuns returns the most recent manifests first. limit <= 0 means all.
	ListRuns(ctx context.Context, limit int) ([]*run.RunManifest, error)
	// FindByFingerprint returns runs that would reproduce the same numbers.
	FindByFingerprint(ctx context.Context, fingerprint core.Hash) ([]*run.RunManifest, error)

	Close() error
}
