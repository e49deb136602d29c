package linear

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/jaredquekjz/plantguide-sub007/pkg/errors"
)

func TestLinearRegressionRecoversCoefficients(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	n := 200
	X := mat.NewDense(n, 2, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		a, b := rng.NormFloat64(), rng.NormFloat64()
		X.Set(i, 0, a)
		X.Set(i, 1, b)
		y[i] = 3 + 2*a - 0.5*b + 0.01*rng.NormFloat64()
	}

	lr := NewLinearRegression()
	require.NoError(t, lr.Fit(X, y))

	assert.InDelta(t, 3, lr.Intercept, 1e-2)
	assert.InDeltaSlice(t, []float64{2, -0.5}, lr.GetWeights(), 1e-2)
	assert.Equal(t, 3.0, lr.EDF())
	assert.Equal(t, n, lr.N())
	assert.Greater(t, lr.R2(), 0.99)

	score, err := lr.Score(X, y)
	require.NoError(t, err)
	assert.InDelta(t, lr.R2(), score, 1e-12)

	pred, err := lr.Predict(mat.NewDense(1, 2, []float64{1, 2}))
	require.NoError(t, err)
	assert.InDelta(t, 4, pred[0], 0.05)
}

func TestLinearRegressionErrors(t *testing.T) {
	tests := []struct {
		name  string
		X     *mat.Dense
		y     []float64
		check func(t *testing.T, err error)
	}{
		{
			name: "collinear columns",
			X:    mat.NewDense(4, 2, []float64{1, 2, 2, 4, 3, 6, 4, 8}),
			y:    []float64{1, 2, 3, 4},
			check: func(t *testing.T, err error) {
				assert.True(t, errors.Is(err, errors.ErrSingularMatrix))
			},
		},
		{
			name: "row mismatch",
			X:    mat.NewDense(3, 1, []float64{1, 2, 3}),
			y:    []float64{1, 2},
			check: func(t *testing.T, err error) {
				var dimErr *errors.DimensionError
				assert.True(t, errors.As(err, &dimErr))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewLinearRegression().Fit(tt.X, tt.y)
			require.Error(t, err)
			tt.check(t, err)
		})
	}

	_, err := NewLinearRegression().Predict(mat.NewDense(1, 1, nil))
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))
}

func TestWithoutIntercept(t *testing.T) {
	X := mat.NewDense(3, 1, []float64{1, 2, 3})
	lr := NewLinearRegression(WithFitIntercept(false))
	require.NoError(t, lr.Fit(X, []float64{2, 4, 6}))
	assert.Equal(t, 0.0, lr.Intercept)
	assert.InDelta(t, 2, lr.GetWeights()[0], 1e-12)
	assert.Equal(t, 1.0, lr.EDF())
}

func TestInformationCriteria(t *testing.T) {
	n, rss, edf := 50, 12.5, 3.0
	aic := GaussianAIC(n, rss, edf)
	want := 50*math.Log(12.5/50) + 50*(1+math.Log(2*math.Pi)) + 2*4
	assert.InDelta(t, want, aic, 1e-12)

	aicc, err := AICc(n, aic, edf)
	require.NoError(t, err)
	assert.InDelta(t, want+2*4*5/45.0, aicc, 1e-12)

	_, err = AICc(5, aic, 3)
	assert.Error(t, err, "n-k-1 = 0 must fail")

	assert.True(t, math.IsNaN(RSquared([]float64{2, 2}, []float64{1, 3})))
}
