// Package ensemble provides bagged and boosted regression tree ensembles
// that report per-feature importances.
package ensemble

import (
	"context"
	"math"
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/jaredquekjz/plantguide-sub007/core/model"
	"github.com/jaredquekjz/plantguide-sub007/pkg/errors"
	"github.com/jaredquekjz/plantguide-sub007/sklearn/tree"
)

// RandomForestRegressor averages bootstrap-sampled CART trees with
// per-split feature sampling. Importance is the impurity decrease
// averaged over trees.
type RandomForestRegressor struct {
	model.BaseEstimator

	NEstimators    int
	MaxFeatures    int // 0 means floor(sqrt(p))
	MinSamplesLeaf int
	MaxDepth       int
	Seed           uint64
	Workers        int

	Trees     []*tree.Tree
	NFeatures int

	importances []float64
}

// NewRandomForestRegressor returns a forest with 500 trees and leaves of at
// least 5 rows.
func NewRandomForestRegressor(seed uint64) *RandomForestRegressor {
	return &RandomForestRegressor{
		NEstimators:    500,
		MinSamplesLeaf: 5,
		Seed:           seed,
	}
}

// Fit implements model.Fitter.
func (f *RandomForestRegressor) Fit(X mat.Matrix, y []float64) error {
	return f.FitContext(context.Background(), X, y)
}

// FitContext grows the trees concurrently. Each tree has its own RNG
// stream so the result does not depend on the worker count.
func (f *RandomForestRegressor) FitContext(ctx context.Context, X mat.Matrix, y []float64) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("RandomForestRegressor.Fit", "empty data", errors.ErrEmptyData)
	}
	if len(y) != r {
		return errors.NewDimensionError("RandomForestRegressor.Fit", r, len(y), 0)
	}
	if f.NEstimators < 1 {
		return errors.NewValidationError("n_estimators", "must be positive", f.NEstimators)
	}
	dense := mat.DenseCopyOf(X)
	grad := make([]float64, r)
	hess := make([]float64, r)
	for i := range grad {
		grad[i] = -y[i]
		hess[i] = 1
	}
	features := make([]int, c)
	for j := range features {
		features[j] = j
	}
	mtry := f.MaxFeatures
	if mtry <= 0 {
		mtry = int(math.Max(1, math.Floor(math.Sqrt(float64(c)))))
	}
	params := tree.Params{MaxDepth: f.MaxDepth, MinSamplesLeaf: f.MinSamplesLeaf, MaxFeatures: mtry}

	workers := f.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	trees := make([]*tree.Tree, f.NEstimators)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for k := range trees {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewPCG(f.Seed, uint64(k)))
			rows := make([]int, r)
			for i := range rows {
				rows[i] = rng.IntN(r)
			}
			trees[k] = tree.Grow(dense, grad, hess, rows, features, params, rng)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	imp := make([]float64, c)
	for _, t := range trees {
		t.Gains(imp)
	}
	for j := range imp {
		imp[j] = 2 * imp[j] / float64(len(trees))
	}
	f.Trees = trees
	f.NFeatures = c
	f.importances = imp
	f.SetFitted()
	return nil
}

// Predict averages the tree predictions.
func (f *RandomForestRegressor) Predict(X mat.Matrix) ([]float64, error) {
	if !f.IsFitted() {
		return nil, errors.NewNotFittedError("RandomForestRegressor", "Predict")
	}
	return tree.PredictAll(X, f.NFeatures, "RandomForestRegressor.Predict", func(row []float64) float64 {
		var s float64
		for _, t := range f.Trees {
			s += t.PredictRow(row)
		}
		return s / float64(len(f.Trees))
	})
}

// FeatureImportances implements model.FeatureImporter.
func (f *RandomForestRegressor) FeatureImportances() ([]float64, error) {
	if !f.IsFitted() {
		return nil, errors.NewNotFittedError("RandomForestRegressor", "FeatureImportances")
	}
	return append([]float64(nil), f.importances...), nil
}
