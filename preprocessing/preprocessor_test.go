package preprocessing

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/jaredquekjz/plantguide-sub007/dataset"
	"github.com/jaredquekjz/plantguide-sub007/pkg/errors"
)

func traitTable(t *testing.T, n int, seed uint64) *dataset.Table {
	t.Helper()
	rng := rand.New(rand.NewPCG(seed, seed+1))
	ids := make([]string, n)
	la := make([]float64, n)
	ssd := make([]float64, n)
	for i := range ids {
		ids[i] = string(rune('a'+i%26)) + string(rune('a'+i/26))
		la[i] = math.Exp(rng.NormFloat64()*2 + 3)
		ssd[i] = 0.5 + 0.1*rng.NormFloat64()
	}
	la[0] = 0
	ssd[1] = math.NaN()
	tbl := dataset.NewTable(ids)
	require.NoError(t, tbl.SetNumeric("LA", la))
	require.NoError(t, tbl.SetNumeric("SSD", ssd))
	return tbl
}

func fullOptions() Options {
	return Options{
		Columns:     []string{"LA", "SSD"},
		LogColumns:  []string{"LA"},
		Winsorize:   true,
		WinsorP:     0.05,
		Standardize: true,
	}
}

func TestPreprocessorFitApply(t *testing.T) {
	tbl := traitTable(t, 120, 7)
	pre, err := NewPreprocessor(fullOptions())
	require.NoError(t, err)

	params, err := pre.Fit(tbl)
	require.NoError(t, err)

	la, ok := params.Column("LA")
	require.True(t, ok)
	assert.True(t, la.Logged)
	assert.Greater(t, la.Offset, 0.0)
	assert.True(t, la.Winsorized)
	assert.Less(t, la.Lower, la.Upper)

	out, err := params.Apply(tbl)
	require.NoError(t, err)

	for _, name := range []string{"LA", "SSD"} {
		col, _ := out.Numeric(name)
		var finite []float64
		for _, v := range col {
			if !math.IsNaN(v) {
				finite = append(finite, v)
			}
		}
		mean, sd := populationMeanSD(finite)
		assert.InDelta(t, 0, mean, 1e-9, name)
		assert.InDelta(t, 1, sd, 1e-9, name)
	}

	ssd, _ := out.Numeric("SSD")
	assert.True(t, math.IsNaN(ssd[1]), "missing values stay missing")

	raw, _ := tbl.Numeric("LA")
	assert.Equal(t, 0.0, raw[0], "input table is not modified")
}

func TestApplyClipsOutOfRangeTestRows(t *testing.T) {
	train := traitTable(t, 80, 3)
	pre, err := NewPreprocessor(Options{Columns: []string{"SSD"}, Winsorize: true, WinsorP: 0.01})
	require.NoError(t, err)
	params, err := pre.Fit(train)
	require.NoError(t, err)

	test := dataset.NewTable([]string{"x", "y"})
	require.NoError(t, test.SetNumeric("LA", []float64{1, 1}))
	require.NoError(t, test.SetNumeric("SSD", []float64{100, -100}))
	out, err := params.Apply(test)
	require.NoError(t, err)

	cp, _ := params.Column("SSD")
	got, _ := out.Numeric("SSD")
	assert.Equal(t, []float64{cp.Upper, cp.Lower}, got)
	assert.Equal(t, 2, out.Len())
}

// Test rows must never influence the fitted parameters: fitting on the
// training rows alone and fitting after the test rows were perturbed
// (then split off) must give identical results.
func TestNoLeakage(t *testing.T) {
	full := traitTable(t, 100, 11)
	trainIdx := make([]int, 0, 80)
	testIdx := make([]int, 0, 20)
	for i := 0; i < full.Len(); i++ {
		if i%5 == 0 {
			testIdx = append(testIdx, i)
		} else {
			trainIdx = append(trainIdx, i)
		}
	}

	pre, err := NewPreprocessor(fullOptions())
	require.NoError(t, err)

	before, err := pre.Fit(full.Subset(trainIdx))
	require.NoError(t, err)

	perturbed := full.Clone()
	la, _ := perturbed.Numeric("LA")
	mutated := append([]float64(nil), la...)
	for _, i := range testIdx {
		mutated[i] = 1e9
	}
	require.NoError(t, perturbed.SetNumeric("LA", mutated))

	after, err := pre.Fit(perturbed.Subset(trainIdx))
	require.NoError(t, err)

	assert.Equal(t, before.Columns(), after.Columns())
}

func TestPreprocessorErrors(t *testing.T) {
	_, err := NewPreprocessor(Options{Winsorize: true, WinsorP: 0.6})
	var valErr *errors.ValidationError
	assert.True(t, errors.As(err, &valErr))

	pre, err := NewPreprocessor(Options{Columns: []string{"missing"}})
	require.NoError(t, err)
	_, err = pre.Fit(traitTable(t, 10, 1))
	var dataErr *errors.DataError
	assert.True(t, errors.As(err, &dataErr))

	_, err = pre.Fit(dataset.NewTable(nil))
	assert.Error(t, err)
}

func TestNegativeLogValues(t *testing.T) {
	pre, err := NewPreprocessor(fullOptions())
	require.NoError(t, err)

	t.Run("training row", func(t *testing.T) {
		tbl := traitTable(t, 40, 5)
		la, _ := tbl.Numeric("LA")
		la[3] = -2
		_, err := pre.Fit(tbl)
		var dataErr *errors.DataError
		require.True(t, errors.As(err, &dataErr), "got %v", err)
		assert.Equal(t, "LA", dataErr.Column)
		assert.True(t, errors.IsFatal(err))
	})

	t.Run("held-out row", func(t *testing.T) {
		params, err := pre.Fit(traitTable(t, 40, 5))
		require.NoError(t, err)
		test := traitTable(t, 5, 6)
		la, _ := test.Numeric("LA")
		la[2] = -0.5
		_, err = params.Apply(test)
		var dataErr *errors.DataError
		require.True(t, errors.As(err, &dataErr), "got %v", err)
		assert.Equal(t, "LA", dataErr.Column)
	})

	t.Run("zero is allowed", func(t *testing.T) {
		tbl := traitTable(t, 40, 5)
		params, err := pre.Fit(tbl)
		require.NoError(t, err)
		out, err := params.Apply(tbl)
		require.NoError(t, err)
		la, _ := out.Numeric("LA")
		assert.False(t, math.IsNaN(la[0]) || math.IsInf(la[0], 0))
	})
}

func TestStandardScalerConstantColumn(t *testing.T) {
	X := mat.NewDense(3, 2, []float64{
		1, 5,
		2, 5,
		3, 5,
	})
	s := NewStandardScaler()
	out, err := s.FitTransform(X)
	require.NoError(t, err)

	assert.Equal(t, 1.0, s.Scale[1])
	assert.Equal(t, 0.0, out.At(0, 1))
	assert.InDelta(t, math.Sqrt(2.0/3.0), s.Scale[0], 1e-12)

	_, err = NewStandardScaler().Transform(X)
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))

	_, err = s.Transform(mat.NewDense(1, 3, nil))
	assert.Error(t, err)
}
