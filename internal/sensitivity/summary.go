package sensitivity

import (
	"math"

	"github.com/montanaflynn/stats"
)

// Summary describes the output distribution of one method over the Sobol
// samples.
type Summary struct {
	Mean   float64
	Std    float64
	Median float64
	P5     float64
	P95    float64
	// RelVar is var/mean^2 in percent.
	RelVar float64
	// Deviation is sqrt(ST_i * var)/|mean| in percent, per parameter in
	// Result.Params order.
	Deviation []float64
}

// Summarize computes the stochastic summary of a successful result.
func Summarize(r *Result) (Summary, error) {
	data := stats.Float64Data(r.Outputs)

	mean, err := data.Mean()
	if err != nil {
		return Summary{}, err
	}
	std, err := data.StandardDeviationPopulation()
	if err != nil {
		return Summary{}, err
	}
	variance, err := data.PopulationVariance()
	if err != nil {
		return Summary{}, err
	}
	median, err := data.Median()
	if err != nil {
		return Summary{}, err
	}
	p5, err := data.Percentile(5)
	if err != nil {
		return Summary{}, err
	}
	p95, err := data.Percentile(95)
	if err != nil {
		return Summary{}, err
	}

	s := Summary{
		Mean:      mean,
		Std:       std,
		Median:    median,
		P5:        p5,
		P95:       p95,
		RelVar:    math.NaN(),
		Deviation: make([]float64, len(r.Indices)),
	}
	if mean != 0 {
		s.RelVar = variance / (mean * mean) * 100
	}
	for i, ix := range r.Indices {
		if mean == 0 {
			s.Deviation[i] = math.NaN()
			continue
		}
		s.Deviation[i] = math.Sqrt(ix.ST*variance) / math.Abs(mean) * 100
	}
	return s, nil
}
