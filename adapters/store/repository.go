// Package store persists analysis runs in sqlite or postgres through sqlx.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/mijafro/fork-lca-algebraic/domain/core"
	"github.com/mijafro/fork-lca-algebraic/domain/run"
	"github.com/mijafro/fork-lca-algebraic/internal"
	apperrors "github.com/mijafro/fork-lca-algebraic/internal/errors"
	"github.com/mijafro/fork-lca-algebraic/ports"
)

// timeLayout sorts lexically in the same order as time.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// driverNames maps configured drivers to database/sql driver names.
var driverNames = map[string]string{
	"sqlite":   "sqlite",
	"postgres": "postgres",
}

// RunRepository implements ports.RunRepository over sqlx.
type RunRepository struct {
	db     *sqlx.DB
	logger *internal.Logger
}

var _ ports.RunRepository = (*RunRepository)(nil)

// Open connects to the results database and applies pending migrations.
func Open(ctx context.Context, driver, dsn string, logger *internal.Logger) (*RunRepository, error) {
	name, ok := driverNames[driver]
	if !ok {
		return nil, apperrors.ConfigInvalid(fmt.Sprintf("unknown results driver %q", driver))
	}
	db, err := sqlx.Open(name, dsn)
	if err != nil {
		return nil, apperrors.StoreError("open", err)
	}
	if driver == "sqlite" {
		// every connection to ":memory:" is its own database
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, apperrors.StoreError("connect", err)
	}

	repo := New(db, logger)
	applied, err := NewMigrator(db).Up(ctx)
	if err != nil {
		db.Close()
		return nil, apperrors.StoreError("migrate", err)
	}
	for _, v := range applied {
		repo.logger.Info("applied migration %s", v)
	}
	return repo, nil
}

// New wraps an open, migrated database.
func New(db *sqlx.DB, logger *internal.Logger) *RunRepository {
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	return &RunRepository{db: db, logger: logger.WithComponent("Store")}
}

func (r *RunRepository) Close() error { return r.db.Close() }

type manifestRow struct {
	RunID        string `db:"run_id"`
	Kind         string `db:"kind"`
	Root         string `db:"root"`
	Methods      string `db:"methods"`
	Params       string `db:"params"`
	N            int    `db:"n"`
	Seed         string `db:"seed"`
	Workers      int    `db:"workers"`
	RegistryHash string `db:"registry_hash"`
	ModelHash    string `db:"model_hash"`
	CodeVersion  string `db:"code_version"`
	Fingerprint  string `db:"fingerprint"`
	CreatedAt    string `db:"created_at"`
}

const manifestColumns = `run_id, kind, root, methods, params, n, seed, workers,
	registry_hash, model_hash, code_version, fingerprint, created_at`

// Lists are stored newline-separated; method keys and parameter names never
// contain newlines.
func joinMethods(ms []core.MethodKey) string {
	names := make([]string, len(ms))
	for i, m := range ms {
		names[i] = string(m)
	}
	return strings.Join(names, "\n")
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func toRow(m *run.RunManifest) manifestRow {
	return manifestRow{
		RunID:        m.RunID.String(),
		Kind:         string(m.Kind),
		Root:         m.Root,
		Methods:      joinMethods(m.Methods),
		Params:       strings.Join(m.Params, "\n"),
		N:            m.N,
		Seed:         strconv.FormatUint(m.Seed, 10),
		Workers:      m.Workers,
		RegistryHash: string(m.RegistryHash),
		ModelHash:    string(m.ModelHash),
		CodeVersion:  m.CodeVersion,
		Fingerprint:  string(m.Fingerprint.Fingerprint),
		CreatedAt:    m.CreatedAt.UTC().Format(timeLayout),
	}
}

func (row manifestRow) manifest() (*run.RunManifest, error) {
	seed, err := strconv.ParseUint(row.Seed, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("run %s: seed: %w", row.RunID, err)
	}
	created, err := time.Parse(timeLayout, row.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("run %s: created_at: %w", row.RunID, err)
	}
	var methods []core.MethodKey
	for _, m := range splitList(row.Methods) {
		methods = append(methods, core.MethodKey(m))
	}

	m := &run.RunManifest{
		RunID:        core.RunID(row.RunID),
		Kind:         run.Kind(row.Kind),
		Root:         row.Root,
		Methods:      methods,
		Params:       splitList(row.Params),
		N:            row.N,
		Seed:         seed,
		Workers:      row.Workers,
		RegistryHash: core.RegistryHash(row.RegistryHash),
		ModelHash:    core.ModelHash(row.ModelHash),
		CodeVersion:  row.CodeVersion,
		CreatedAt:    created,
	}
	m.Fingerprint = run.NewRunFingerprint(m.RegistryHash, m.ModelHash, m.Methods, m.N, m.Seed, m.CodeVersion)
	if string(m.Fingerprint.Fingerprint) != row.Fingerprint {
		return nil, fmt.Errorf("run %s: stored fingerprint does not match its inputs", row.RunID)
	}
	return m, nil
}

// SaveManifest inserts a validated manifest.
func (r *RunRepository) SaveManifest(ctx context.Context, m *run.RunManifest) error {
	if err := m.Validate(); err != nil {
		return apperrors.StoreError("save manifest", err)
	}
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO runs (`+manifestColumns+`)
		VALUES (:run_id, :kind, :root, :methods, :params, :n, :seed, :workers,
			:registry_hash, :model_hash, :code_version, :fingerprint, :created_at)
	`, toRow(m))
	if err != nil {
		return apperrors.StoreError("save manifest", err)
	}
	r.logger.Debug("saved run %s (%s, fingerprint %s)", m.RunID, m.Kind, m.Fingerprint.Fingerprint.Short())
	return nil
}

type indexRow struct {
	RunID string `db:"run_id"`
	run.IndexRecord
}

// SaveIndices inserts the indices of a run in one transaction.
func (r *RunRepository) SaveIndices(ctx context.Context, runID core.RunID, indices []run.IndexRecord) error {
	err := r.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, ix := range indices {
			if _, err := tx.NamedExecContext(ctx, `
				INSERT INTO sensitivity_indices (run_id, method, param, s1, st, s1_raw, st_raw, clipped)
				VALUES (:run_id, :method, :param, :s1, :st, :s1_raw, :st_raw, :clipped)
			`, indexRow{RunID: runID.String(), IndexRecord: ix}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return apperrors.StoreError("save indices", err)
	}
	return nil
}

type summaryRow struct {
	RunID    string          `db:"run_id"`
	Method   string          `db:"method"`
	Mean     sql.NullFloat64 `db:"mean"`
	Std      sql.NullFloat64 `db:"std"`
	Median   sql.NullFloat64 `db:"median"`
	P5       sql.NullFloat64 `db:"p5"`
	P95      sql.NullFloat64 `db:"p95"`
	Variance sql.NullFloat64 `db:"variance"`
	Error    string          `db:"error"`
}

// nullable stores NaN as NULL; sqlite has no NaN.
func nullable(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: !math.IsNaN(v)}
}

func value(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

// SaveSummaries inserts the output summaries of a run in one transaction.
func (r *RunRepository) SaveSummaries(ctx context.Context, runID core.RunID, summaries []run.SummaryRecord) error {
	err := r.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, s := range summaries {
			row := summaryRow{
				RunID:    runID.String(),
				Method:   string(s.Method),
				Mean:     nullable(s.Mean),
				Std:      nullable(s.Std),
				Median:   nullable(s.Median),
				P5:       nullable(s.P5),
				P95:      nullable(s.P95),
				Variance: nullable(s.Variance),
				Error:    s.Error,
			}
			if _, err := tx.NamedExecContext(ctx, `
				INSERT INTO output_summaries (run_id, method, mean, std, median, p5, p95, variance, error)
				VALUES (:run_id, :method, :mean, :std, :median, :p5, :p95, :variance, :error)
			`, row); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return apperrors.StoreError("save summaries", err)
	}
	return nil
}

// GetManifest loads one run. A missing run is a NOT_FOUND error.
func (r *RunRepository) GetManifest(ctx context.Context, runID core.RunID) (*run.RunManifest, error) {
	var row manifestRow
	err := r.db.GetContext(ctx, &row,
		r.db.Rebind(`SELECT `+manifestColumns+` FROM runs WHERE run_id = ?`), runID.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("run " + runID.String())
	}
	if err != nil {
		return nil, apperrors.StoreError("get manifest", err)
	}
	m, err := row.manifest()
	if err != nil {
		return nil, apperrors.StoreError("get manifest", err)
	}
	return m, nil
}

// GetIndices returns the indices of a run by method then parameter.
func (r *RunRepository) GetIndices(ctx context.Context, runID core.RunID) ([]run.IndexRecord, error) {
	var out []run.IndexRecord
	err := r.db.SelectContext(ctx, &out, r.db.Rebind(`
		SELECT method, param, s1, st, s1_raw, st_raw, clipped
		FROM sensitivity_indices
		WHERE run_id = ?
		ORDER BY method, param
	`), runID.String())
	if err != nil {
		return nil, apperrors.StoreError("get indices", err)
	}
	return out, nil
}

// GetSummaries returns the output summaries of a run by method.
func (r *RunRepository) GetSummaries(ctx context.Context, runID core.RunID) ([]run.SummaryRecord, error) {
	var rows []summaryRow
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`
		SELECT run_id, method, mean, std, median, p5, p95, variance, error
		FROM output_summaries
		WHERE run_id = ?
		ORDER BY method
	`), runID.String())
	if err != nil {
		return nil, apperrors.StoreError("get summaries", err)
	}
	out := make([]run.SummaryRecord, len(rows))
	for i, row := range rows {
		out[i] = run.SummaryRecord{
			Method:   core.MethodKey(row.Method),
			Mean:     value(row.Mean),
			Std:      value(row.Std),
			Median:   value(row.Median),
			P5:       value(row.P5),
			P95:      value(row.P95),
			Variance: value(row.Variance),
			Error:    row.Error,
		}
	}
	return out, nil
}

// ListRuns returns manifests newest first.
func (r *RunRepository) ListRuns(ctx context.Context, limit int) ([]*run.RunManifest, error) {
	query := `SELECT ` + manifestColumns + ` FROM runs ORDER BY created_at DESC, run_id DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return r.selectManifests(ctx, "list runs", r.db.Rebind(query), args...)
}

// FindByFingerprint returns the runs sharing a fingerprint, newest first.
func (r *RunRepository) FindByFingerprint(ctx context.Context, fingerprint core.Hash) ([]*run.RunManifest, error) {
	return r.selectManifests(ctx, "find by fingerprint", r.db.Rebind(`
		SELECT `+manifestColumns+` FROM runs
		WHERE fingerprint = ?
		ORDER BY created_at DESC, run_id DESC
	`), string(fingerprint))
}

func (r *RunRepository) selectManifests(ctx context.Context, op, query string, args ...interface{}) ([]*run.RunManifest, error) {
	var rows []manifestRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, apperrors.StoreError(op, err)
	}
	out := make([]*run.RunManifest, 0, len(rows))
	for _, row := range rows {
		m, err := row.manifest()
		if err != nil {
			return nil, apperrors.StoreError(op, err)
		}
		out = append(out, m)
	}
	return out, nil
}

func (r *RunRepository) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
