package tree

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/jaredquekjz/plantguide-sub007/core/model"
	"github.com/jaredquekjz/plantguide-sub007/pkg/errors"
)

// DecisionTreeRegressor is a squared-error CART regressor.
type DecisionTreeRegressor struct {
	model.BaseEstimator

	Tree      *Tree
	NFeatures int

	maxDepth       int
	minSamplesLeaf int
	maxFeatures    int
	seed           uint64
	importances    []float64
}

// Option configures a DecisionTreeRegressor.
type Option func(*DecisionTreeRegressor)

// WithMaxDepth limits the tree depth; 0 is unlimited.
func WithMaxDepth(d int) Option {
	return func(t *DecisionTreeRegressor) { t.maxDepth = d }
}

// WithMinSamplesLeaf sets the minimum number of rows in a leaf.
func WithMinSamplesLeaf(n int) Option {
	return func(t *DecisionTreeRegressor) { t.minSamplesLeaf = n }
}

// WithMaxFeatures draws this many candidate features per split.
func WithMaxFeatures(n int) Option {
	return func(t *DecisionTreeRegressor) { t.maxFeatures = n }
}

// WithRandomState seeds feature sampling.
func WithRandomState(seed uint64) Option {
	return func(t *DecisionTreeRegressor) { t.seed = seed }
}

// NewDecisionTreeRegressor returns an unfitted tree.
func NewDecisionTreeRegressor(opts ...Option) *DecisionTreeRegressor {
	t := &DecisionTreeRegressor{minSamplesLeaf: 1}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Fit grows the tree on all rows of X.
func (t *DecisionTreeRegressor) Fit(X mat.Matrix, y []float64) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("DecisionTreeRegressor.Fit", "empty data", errors.ErrEmptyData)
	}
	if len(y) != r {
		return errors.NewDimensionError("DecisionTreeRegressor.Fit", r, len(y), 0)
	}
	dense := mat.DenseCopyOf(X)
	grad := make([]float64, r)
	hess := make([]float64, r)
	rows := make([]int, r)
	for i := range grad {
		grad[i] = -y[i]
		hess[i] = 1
		rows[i] = i
	}
	features := make([]int, c)
	for j := range features {
		features[j] = j
	}
	rng := rand.New(rand.NewPCG(t.seed, 0x7ee))
	t.Tree = Grow(dense, grad, hess, rows, features, Params{
		MaxDepth:       t.maxDepth,
		MinSamplesLeaf: t.minSamplesLeaf,
		MaxFeatures:    t.maxFeatures,
	}, rng)
	t.NFeatures = c

	// gain with h = 1 and no penalty is half the drop in squared error
	t.importances = make([]float64, c)
	t.Tree.Gains(t.importances)
	for j := range t.importances {
		t.importances[j] *= 2
	}
	t.SetFitted()
	return nil
}

// Predict implements model.Predictor.
func (t *DecisionTreeRegressor) Predict(X mat.Matrix) ([]float64, error) {
	if !t.IsFitted() {
		return nil, errors.NewNotFittedError("DecisionTreeRegressor", "Predict")
	}
	return PredictAll(X, t.NFeatures, "DecisionTreeRegressor.Predict", func(row []float64) float64 {
		return t.Tree.PredictRow(row)
	})
}

// FeatureImportances returns the total decrease in squared error per
// feature.
func (t *DecisionTreeRegressor) FeatureImportances() ([]float64, error) {
	if !t.IsFitted() {
		return nil, errors.NewNotFittedError("DecisionTreeRegressor", "FeatureImportances")
	}
	return append([]float64(nil), t.importances...), nil
}

// PredictAll evaluates f on every row of X after checking the width.
func PredictAll(X mat.Matrix, nFeatures int, op string, f func(row []float64) float64) ([]float64, error) {
	r, c := X.Dims()
	if c != nFeatures {
		return nil, errors.NewDimensionError(op, nFeatures, c, 1)
	}
	out := make([]float64, r)
	row := make([]float64, c)
	for i := 0; i < r; i++ {
		mat.Row(row, i, X)
		out[i] = f(row)
	}
	return out, nil
}
