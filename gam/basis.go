package gam

import (
	"math"
	"sort"

	"github.com/jaredquekjz/plantguide-sub007/pkg/errors"
)

// NaturalSpline is a natural cubic regression spline basis in truncated
// power form. It is linear beyond the boundary knots, so predictions at
// test values outside the training range extrapolate linearly.
//
// Inputs are mapped to [0, 1] with the training range before the basis is
// evaluated to keep the cubic terms well scaled.
type NaturalSpline struct {
	Knots []float64 // on the unit scale
	Min   float64
	Max   float64
}

// NewNaturalSpline places k knots at evenly spaced quantiles of the
// distinct finite training values. k is reduced when there are fewer
// distinct values; fewer than three distinct values is an error.
func NewNaturalSpline(x []float64, k int) (*NaturalSpline, error) {
	uniq := distinctFinite(x)
	if len(uniq) < 3 {
		return nil, errors.NewValueError("NewNaturalSpline", "need at least 3 distinct values for a smooth")
	}
	if k > len(uniq) {
		k = len(uniq)
	}
	if k < 3 {
		k = 3
	}
	lo, hi := uniq[0], uniq[len(uniq)-1]
	ns := &NaturalSpline{Min: lo, Max: hi, Knots: make([]float64, k)}
	for i := 0; i < k; i++ {
		p := float64(i) / float64(k-1)
		ns.Knots[i] = ns.unit(quantileSorted(uniq, p))
	}
	return ns, nil
}

// Dim is the number of basis columns: one linear and k−2 curvature
// columns. There is no constant column.
func (ns *NaturalSpline) Dim() int { return len(ns.Knots) - 1 }

// Penalized returns the indices (within this basis) of the curvature
// columns.
func (ns *NaturalSpline) Penalized() []int {
	out := make([]int, 0, len(ns.Knots)-2)
	for j := 1; j < ns.Dim(); j++ {
		out = append(out, j)
	}
	return out
}

// Eval writes the basis row for one value into dst (length Dim). A NaN
// input produces a NaN row.
func (ns *NaturalSpline) Eval(v float64, dst []float64) {
	if math.IsNaN(v) {
		for j := range dst {
			dst[j] = math.NaN()
		}
		return
	}
	u := ns.unit(v)
	dst[0] = u
	K := len(ns.Knots)
	dLast := ns.d(u, K-2)
	for j := 0; j < K-2; j++ {
		dst[j+1] = ns.d(u, j) - dLast
	}
}

// d is the ESL d_k function for knot index j.
func (ns *NaturalSpline) d(u float64, j int) float64 {
	K := len(ns.Knots)
	xiK := ns.Knots[K-1]
	den := xiK - ns.Knots[j]
	if den == 0 {
		return 0
	}
	return (cube(u-ns.Knots[j]) - cube(u-xiK)) / den
}

func (ns *NaturalSpline) unit(v float64) float64 {
	span := ns.Max - ns.Min
	if span == 0 {
		return 0
	}
	return (v - ns.Min) / span
}

func cube(v float64) float64 {
	if v <= 0 {
		return 0
	}
	return v * v * v
}

func distinctFinite(x []float64) []float64 {
	seen := make(map[float64]struct{}, len(x))
	out := make([]float64, 0, len(x))
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Float64s(out)
	return out
}

func quantileSorted(sorted []float64, p float64) float64 {
	h := p * float64(len(sorted)-1)
	lo := math.Floor(h)
	i := int(lo)
	if i+1 >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	return sorted[i] + (h-lo)*(sorted[i+1]-sorted[i])
}
