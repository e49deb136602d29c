package preprocessing

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"
)

// Quantile returns the p-quantile of the finite values in x using linear
// interpolation between order statistics (Hyndman-Fan type 7, the default
// of numpy and R). It returns NaN when x has no finite values.
func Quantile(x []float64, p float64) float64 {
	sorted := finiteSorted(x)
	return quantileSorted(sorted, p)
}

// Quantiles evaluates several probabilities with a single sort.
func Quantiles(x []float64, ps ...float64) []float64 {
	sorted := finiteSorted(x)
	out := make([]float64, len(ps))
	for i, p := range ps {
		out[i] = quantileSorted(sorted, p)
	}
	return out
}

func finiteSorted(x []float64) []float64 {
	sorted := make([]float64, 0, len(x))
	for _, v := range x {
		if isFinite(v) {
			sorted = append(sorted, v)
		}
	}
	sort.Float64s(sorted)
	return sorted
}

func quantileSorted(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 || math.IsNaN(p) {
		return math.NaN()
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}
	h := p * float64(n-1)
	lo := math.Floor(h)
	i := int(lo)
	if i+1 >= n {
		return sorted[n-1]
	}
	return sorted[i] + (h-lo)*(sorted[i+1]-sorted[i])
}

// LogOffset returns the additive offset for log10(x + offset):
// max(1e-6, 1e-3 × median of the positive finite values), or 1e-6 when
// there are none.
func LogOffset(x []float64) float64 {
	const floor = 1e-6
	positive := make(stats.Float64Data, 0, len(x))
	for _, v := range x {
		if isFinite(v) && v > 0 {
			positive = append(positive, v)
		}
	}
	if len(positive) == 0 {
		return floor
	}
	med, err := positive.Median()
	if err != nil || !isFinite(med) {
		return floor
	}
	return math.Max(floor, 1e-3*med)
}
