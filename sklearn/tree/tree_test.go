package tree

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/jaredquekjz/plantguide-sub007/pkg/errors"
)

func TestDecisionTreeRegressorStep(t *testing.T) {
	X := mat.NewDense(8, 2, []float64{
		0, 5,
		1, 3,
		2, 9,
		3, 1,
		4, 4,
		5, 8,
		6, 2,
		7, 6,
	})
	y := []float64{1, 1, 1, 1, 5, 5, 5, 5}

	dt := NewDecisionTreeRegressor(WithMaxDepth(3))
	require.NoError(t, dt.Fit(X, y))

	pred, err := dt.Predict(X)
	require.NoError(t, err)
	assert.InDeltaSlice(t, y, pred, 1e-9)

	root := dt.Tree.Nodes[0]
	assert.Equal(t, 0, root.Feature)
	assert.InDelta(t, 3.5, root.Threshold, 1e-12)

	imp, err := dt.FeatureImportances()
	require.NoError(t, err)
	// total SSE is 32 and the first split removes all of it
	assert.InDelta(t, 32, imp[0], 1e-9)
	assert.InDelta(t, 0, imp[1], 1e-9)
}

func TestDecisionTreeRegressorMinSamplesLeaf(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	n := 100
	X := mat.NewDense(n, 1, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		X.Set(i, 0, rng.Float64())
		y[i] = rng.NormFloat64()
	}
	dt := NewDecisionTreeRegressor(WithMinSamplesLeaf(10))
	require.NoError(t, dt.Fit(X, y))
	for _, node := range dt.Tree.Nodes {
		if node.IsLeaf() {
			assert.GreaterOrEqual(t, node.Samples, 10)
		}
	}
}

func TestDecisionTreeRegressorErrors(t *testing.T) {
	dt := NewDecisionTreeRegressor()
	_, err := dt.Predict(mat.NewDense(1, 1, nil))
	var nf *errors.NotFittedError
	assert.ErrorAs(t, err, &nf)

	err = dt.Fit(mat.NewDense(3, 1, []float64{1, 2, 3}), []float64{1, 2})
	var dim *errors.DimensionError
	assert.ErrorAs(t, err, &dim)

	require.NoError(t, dt.Fit(mat.NewDense(3, 1, []float64{1, 2, 3}), []float64{1, 2, 3}))
	_, err = dt.Predict(mat.NewDense(1, 2, nil))
	assert.ErrorAs(t, err, &dim)
}
