package app

import (
	"math"
	"strings"

	"github.com/mijafro/fork-lca-algebraic/domain/core"
	"github.com/mijafro/fork-lca-algebraic/domain/run"
	"github.com/mijafro/fork-lca-algebraic/domain/table"
	"github.com/mijafro/fork-lca-algebraic/internal/sensitivity"
	"github.com/mijafro/fork-lca-algebraic/internal/simplify"
)

func indexRecords(method core.MethodKey, indices []sensitivity.Index) []run.IndexRecord {
	out := make([]run.IndexRecord, len(indices))
	for i, ix := range indices {
		out[i] = run.IndexRecord{
			Method:  method,
			Param:   ix.Param,
			S1:      ix.S1,
			ST:      ix.ST,
			S1Raw:   ix.S1Raw,
			STRaw:   ix.STRaw,
			Clipped: ix.Clipped,
		}
	}
	return out
}

func summaryRecord(r *sensitivity.Result) run.SummaryRecord {
	rec := run.SummaryRecord{Method: r.Method, Mean: r.Mean, Variance: r.Variance}
	if r.Err != nil {
		rec.Std, rec.Median, rec.P5, rec.P95 = math.NaN(), math.NaN(), math.NaN(), math.NaN()
		rec.Error = r.Err.Error()
		return rec
	}
	s, err := sensitivity.Summarize(r)
	if err != nil {
		rec.Error = err.Error()
		return rec
	}
	rec.Std, rec.Median, rec.P5, rec.P95 = s.Std, s.Median, s.P5, s.P95
	return rec
}

// Tables lays the report out for the export sinks.
func (r *Report) Tables() []*table.Table {
	var out []*table.Table
	if len(r.Results) > 0 {
		out = append(out, sensitivity.IndicesTable(r.Results), sensitivity.SummaryTable(r.Results))
	}
	if r.OAT != nil {
		out = append(out, r.OAT.Table())
	}
	if len(r.Simplified) > 0 {
		out = append(out, SimplifiedTable(r.Simplified))
	}
	for _, t := range out {
		if r.Manifest != nil {
			t.Note("run %s, n=%d, seed=%d", r.Manifest.RunID, r.Manifest.N, r.Manifest.Seed)
		}
	}
	return out
}

// SimplifiedTable has one row per method: how many parameters were kept,
// node counts before and after, and the validation error. The kept
// parameters and the reduced expressions go in the notes.
func SimplifiedTable(models []*simplify.SimplifiedModel) *table.Table {
	t := table.New("Simplified models", "method", "kept", "fixed", "nodes before", "nodes after", "error")
	for _, m := range models {
		_ = t.AddRow(string(m.Method),
			float64(len(m.Retained)), float64(len(m.Fixed)),
			float64(m.OriginalNodes), float64(m.Nodes), m.Error)
		if m.Err != nil {
			t.Note("%s not reduced: %v", m.Method, m.Err)
			continue
		}
		t.Note("%s keeps [%s]: %s", m.Method, strings.Join(m.Retained, ", "), m.Tree)
	}
	return t
}

// StoredTables lays out a run read back from the repository: one row per
// (method, parameter) index and one row per method summary.
func StoredTables(m *run.RunManifest, indices []run.IndexRecord, summaries []run.SummaryRecord) []*table.Table {
	ix := table.New("Sobol indices", "method/param", "S1", "ST", "S1 raw", "ST raw")
	for _, rec := range indices {
		_ = ix.AddRow(string(rec.Method)+"/"+rec.Param, rec.S1, rec.ST, rec.S1Raw, rec.STRaw)
	}
	sum := table.New("Stochastic summary", "method", "mean", "std", "median", "p5", "p95", "variance")
	for _, rec := range summaries {
		_ = sum.AddRow(string(rec.Method), rec.Mean, rec.Std, rec.Median, rec.P5, rec.P95, rec.Variance)
		if rec.Error != "" {
			sum.Note("%s: %s", rec.Method, rec.Error)
		}
	}
	out := []*table.Table{ix, sum}
	for _, t := range out {
		t.Note("run %s (%s on %s), n=%d, seed=%d", m.RunID, m.Kind, m.Root, m.N, m.Seed)
	}
	return out
}
