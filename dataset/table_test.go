package dataset

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaredquekjz/plantguide-sub007/pkg/errors"
)

func sampleTable(t *testing.T) *Table {
	t.Helper()
	tbl := NewTable([]string{"a", "b", "c", "d"})
	require.NoError(t, tbl.SetNumeric("x", []float64{1, math.NaN(), 3, 4}))
	require.NoError(t, tbl.SetNumeric("y", []float64{2, 2, math.Inf(1), 8}))
	require.NoError(t, tbl.SetNumeric("n", []float64{1, 10, math.NaN(), 3}))
	require.NoError(t, tbl.SetLabel("family", []string{"Poaceae", "Rosaceae", "", "Poaceae"}))
	return tbl
}

func TestCompleteCases(t *testing.T) {
	tbl := sampleTable(t)

	tests := []struct {
		name string
		cols []string
		want []int
	}{
		{"single numeric", []string{"x"}, []int{0, 2, 3}},
		{"numeric pair", []string{"x", "y"}, []int{0, 3}},
		{"label", []string{"family"}, []int{0, 1, 3}},
		{"no columns", nil, []int{0, 1, 2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tbl.CompleteCases(tt.cols...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := tbl.CompleteCases("missing")
	var dataErr *errors.DataError
	assert.True(t, errors.As(err, &dataErr))
}

func TestSubsetIsDeepCopy(t *testing.T) {
	tbl := sampleTable(t)
	sub := tbl.Subset([]int{3, 0})

	assert.Equal(t, []string{"d", "a"}, sub.IDs())
	x, _ := sub.Numeric("x")
	assert.Equal(t, []float64{4, 1}, x)

	x[0] = 100
	orig, _ := tbl.Numeric("x")
	assert.Equal(t, 4.0, orig[3])

	fam, _ := sub.Label("family")
	assert.Equal(t, []string{"Poaceae", "Poaceae"}, fam)
	assert.Equal(t, tbl.NumericNames(), sub.NumericNames())
}

func TestSetColumnLengthMismatch(t *testing.T) {
	tbl := NewTable([]string{"a", "b"})
	err := tbl.SetNumeric("x", []float64{1})
	var dimErr *errors.DimensionError
	require.True(t, errors.As(err, &dimErr))
	assert.Equal(t, 2, dimErr.Expected)
	assert.Error(t, tbl.SetLabel("g", []string{"a", "b", "c"}))
}

func TestMatrixAndLevels(t *testing.T) {
	tbl := sampleTable(t)
	sub := tbl.Subset([]int{0, 3})
	m, err := sub.Matrix([]string{"x", "y"})
	require.NoError(t, err)
	r, c := m.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 2, c)
	assert.Equal(t, 8.0, m.At(1, 1))

	assert.Equal(t, []string{"Poaceae", "Rosaceae"}, tbl.Levels("family"))
	assert.Equal(t, 3, tbl.FiniteCount("x"))
}

func TestFilterMinRecords(t *testing.T) {
	tbl := sampleTable(t)
	out, dropped, err := tbl.FilterMinRecords("n", 3)
	require.NoError(t, err)
	assert.Equal(t, 1, dropped)
	// NaN evidence count keeps the row
	assert.Equal(t, []string{"b", "c", "d"}, out.IDs())

	_, _, err = tbl.FilterMinRecords("nope", 3)
	assert.Error(t, err)
}
