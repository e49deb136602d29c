package composite

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/jaredquekjz/plantguide-sub007/dataset"
	"github.com/jaredquekjz/plantguide-sub007/pkg/errors"
)

var les = Spec{
	Name:      "LES",
	Inputs:    []Input{{Column: "LMA", Negate: true}, {Column: "Nmass"}},
	Reference: "Nmass",
}

// economicsTable draws scaled LMA and Nmass that are negatively
// correlated, the way the leaf economics spectrum behaves.
func economicsTable(t *testing.T, n int, seed uint64) *dataset.Table {
	t.Helper()
	rng := rand.New(rand.NewPCG(seed, 99))
	ids := make([]string, n)
	lma := make([]float64, n)
	nm := make([]float64, n)
	for i := range ids {
		ids[i] = string(rune('A' + i%26))
		z := rng.NormFloat64()
		lma[i] = -z + 0.3*rng.NormFloat64()
		nm[i] = z + 0.3*rng.NormFloat64()
	}
	tbl := dataset.NewTable(ids)
	require.NoError(t, tbl.SetNumeric("LMA", lma))
	require.NoError(t, tbl.SetNumeric("Nmass", nm))
	return tbl
}

func TestFitForFoldOrientation(t *testing.T) {
	train := economicsTable(t, 150, 1)
	b, err := NewBuilder([]Spec{les})
	require.NoError(t, err)

	set, err := b.FitForFold(train)
	require.NoError(t, err)
	c := set.Composites()[0]

	assert.InDelta(t, 1, floats.Norm(c.Loadings, 2), 1e-12)
	assert.GreaterOrEqual(t, c.Loadings[1], 0.0, "reference loading is non-negative")
	// negated LMA and Nmass move together so both loadings share a sign
	assert.Greater(t, c.Loadings[0], 0.0)
	assert.Greater(t, c.Explained, 0.8)
	assert.Equal(t, 150, c.NTrain)
}

func TestOrientationDeterministic(t *testing.T) {
	train := economicsTable(t, 80, 5)
	b, err := NewBuilder([]Spec{les})
	require.NoError(t, err)

	first, err := b.FitForFold(train)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := b.FitForFold(train)
		require.NoError(t, err)
		assert.Equal(t, first.Composites()[0].Loadings, again.Composites()[0].Loadings)
	}

	// flipping the reference makes the other input non-negative instead
	flipped := les
	flipped.Inputs = []Input{{Column: "LMA"}, {Column: "Nmass"}}
	flipped.Reference = "LMA"
	c, err := fit(flipped, train)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, c.Loadings[0], 0.0)
	assert.Less(t, c.Loadings[1], 0.0)
}

func TestApplyUsesTrainLoadings(t *testing.T) {
	full := economicsTable(t, 100, 3)
	train := full.Subset(seq(0, 80))
	test := full.Subset(seq(80, 100))

	b, err := NewBuilder([]Spec{les})
	require.NoError(t, err)
	set, err := b.FitForFold(train)
	require.NoError(t, err)

	// perturbing test rows changes scores but never loadings
	lma, _ := test.Numeric("LMA")
	bumped := append([]float64(nil), lma...)
	bumped[0] = 50
	require.NoError(t, test.SetNumeric("LMA", bumped))

	out, err := set.Apply(test)
	require.NoError(t, err)
	scores, ok := out.Numeric("LES")
	require.True(t, ok)

	nm, _ := test.Numeric("Nmass")
	l := set.Composites()[0].Loadings
	assert.InDelta(t, -50*l[0]+nm[0]*l[1], scores[0], 1e-12)

	again, err := b.FitForFold(train)
	require.NoError(t, err)
	assert.Equal(t, l, again.Composites()[0].Loadings)
}

func TestMissingInputs(t *testing.T) {
	tbl := economicsTable(t, 10, 2)
	nm, _ := tbl.Numeric("Nmass")
	nm2 := append([]float64(nil), nm...)
	nm2[4] = math.NaN()
	require.NoError(t, tbl.SetNumeric("Nmass", nm2))

	c, err := fit(les, tbl)
	require.NoError(t, err)
	assert.Equal(t, 9, c.NTrain)

	scores, err := c.Score(tbl)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(scores[4]))

	ok, col := Availability(les, tbl, seq(0, 10))
	assert.True(t, ok)
	assert.Empty(t, col)

	size := Spec{Name: "SIZE", Inputs: []Input{{Column: "H"}, {Column: "LMA"}}}
	ok, col = Availability(size, tbl, seq(0, 10))
	assert.False(t, ok)
	assert.Equal(t, "H", col)

	require.NoError(t, tbl.SetNumeric("H", nanSlice(10)))
	ok, col = Availability(size, tbl, seq(0, 10))
	assert.False(t, ok)
	assert.Equal(t, "H", col)
}

func TestReportingSet(t *testing.T) {
	full := economicsTable(t, 60, 9)
	b, err := NewBuilder([]Spec{les})
	require.NoError(t, err)

	rep, err := b.FitForReporting(full)
	require.NoError(t, err)
	assert.True(t, rep.ReportingOnly())

	fold, err := b.FitForFold(full)
	require.NoError(t, err)
	assert.Equal(t, fold.Composites()[0].Loadings, rep.Composites()[0].Loadings)

	out, err := rep.Apply(full)
	require.NoError(t, err)
	assert.True(t, out.HasColumn("LES"))
}

func TestSpecValidation(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
	}{
		{"no name", Spec{Inputs: les.Inputs}},
		{"one input", Spec{Name: "X", Inputs: les.Inputs[:1]}},
		{"duplicate input", Spec{Name: "X", Inputs: []Input{{Column: "a"}, {Column: "a"}}}},
		{"bad reference", Spec{Name: "X", Inputs: les.Inputs, Reference: "SLA"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var valErr *errors.ValidationError
			assert.True(t, errors.As(tt.spec.Validate(), &valErr))
		})
	}

	_, err := NewBuilder([]Spec{les, les})
	assert.Error(t, err)
}

func seq(from, to int) []int {
	out := make([]int, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, i)
	}
	return out
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
