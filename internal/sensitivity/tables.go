package sensitivity

import (
	"math"

	"github.com/mijafro/fork-lca-algebraic/domain/table"
)

// IndicesTable lays results out with one row per parameter and an S1 and
// ST column per method. Methods that failed have empty cells and a note.
func IndicesTable(results []*Result) *table.Table {
	var params []string
	cols := make([]string, 0, 2*len(results))
	for _, r := range results {
		if params == nil {
			params = r.Params
		}
		cols = append(cols, string(r.Method)+" S1", string(r.Method)+" ST")
	}
	t := table.New("Sobol indices", "param", cols...)

	for _, name := range params {
		row := make([]float64, 0, len(cols))
		for _, r := range results {
			ix, ok := r.Index(name)
			if !ok {
				row = append(row, math.NaN(), math.NaN())
				continue
			}
			row = append(row, ix.S1, ix.ST)
		}
		_ = t.AddRow(name, row...)
	}
	for _, r := range results {
		if r.Err != nil {
			t.Note("%s: %v", r.Method, r.Err)
			continue
		}
		for _, ix := range r.Indices {
			if ix.Clipped {
				t.Note("%s/%s clipped from S1=%.4g ST=%.4g", r.Method, ix.Param, ix.S1Raw, ix.STRaw)
			}
		}
	}
	return t
}

// SummaryTable lays out the stochastic summary of every method.
func SummaryTable(results []*Result) *table.Table {
	t := table.New("Stochastic summary", "method", "mean", "std", "median", "p5", "p95", "var%")
	for _, r := range results {
		if r.Err != nil {
			_ = t.AddRow(string(r.Method), math.NaN(), math.NaN(), math.NaN(), math.NaN(), math.NaN(), math.NaN())
			t.Note("%s: %v", r.Method, r.Err)
			continue
		}
		s, err := Summarize(r)
		if err != nil {
			t.Note("%s: %v", r.Method, err)
			continue
		}
		_ = t.AddRow(string(r.Method), s.Mean, s.Std, s.Median, s.P5, s.P95, s.RelVar)
	}
	return t
}
