package config

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mijafro/fork-lca-algebraic/internal/errors"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"SOBOL_N", "KEEP_FRACTION", "INDEX_THRESHOLD", "VALIDATION_N",
		"SEQUENCE_SEED", "WORKER_COUNT", "CHUNK_SIZE", "RESULTS_DRIVER", "RESULTS_DSN", "EXPORT_DIR", "LOG_LEVEL"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 1024, cfg.Analysis.N)
	assert.Equal(t, 0.0, cfg.Analysis.KeepFraction)
	assert.Equal(t, 0.05, cfg.Analysis.IndexThreshold)
	assert.Equal(t, 512, cfg.Analysis.ValidationN)
	assert.Equal(t, uint64(0), cfg.Analysis.Seed)
	assert.Equal(t, runtime.NumCPU(), cfg.Workers.Count)
	assert.Equal(t, 1024, cfg.Workers.ChunkSize)
	assert.Equal(t, "sqlite", cfg.Results.Driver)
	assert.False(t, cfg.Persistence())
	assert.Equal(t, ".", cfg.Export.Dir)
	assert.Equal(t, "INFO", cfg.LogLevel)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SOBOL_N", "256")
	t.Setenv("KEEP_FRACTION", "0.5")
	t.Setenv("SEQUENCE_SEED", "99")
	t.Setenv("WORKER_COUNT", "3")
	t.Setenv("RESULTS_DRIVER", "postgres")
	t.Setenv("RESULTS_DSN", "postgres://localhost/lca")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 256, cfg.Analysis.N)
	assert.Equal(t, 0.5, cfg.Analysis.KeepFraction)
	assert.Equal(t, uint64(99), cfg.Analysis.Seed)
	assert.Equal(t, 3, cfg.Workers.Count)
	assert.True(t, cfg.Persistence())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"SOBOL_N", "0"},
		{"KEEP_FRACTION", "1.5"},
		{"WORKER_COUNT", "-1"},
		{"RESULTS_DRIVER", "mysql"},
		{"SEQUENCE_SEED", "-3"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
		})
	}
}
