// Package lightgbm is a pure Go gradient boosted tree regressor that
// follows the LightGBM parameter names and leaf-wise limits. Only the
// squared-error objective is supported; the ranker uses it for the
// boosted half of predictor importance.
package lightgbm

import (
	"context"

	"gonum.org/v1/gonum/mat"

	"github.com/jaredquekjz/plantguide-sub007/core/model"
	"github.com/jaredquekjz/plantguide-sub007/pkg/errors"
	"github.com/jaredquekjz/plantguide-sub007/sklearn/tree"
)

// LGBMRegressor implements a LightGBM-style regressor with a
// scikit-learn like API.
type LGBMRegressor struct {
	model.BaseEstimator

	Model *Model

	NumLeaves       int     // maximum leaves per tree
	MaxDepth        int     // -1 for no limit
	LearningRate    float64 // shrinkage
	NumIterations   int     // boosting rounds
	MinChildSamples int     // minimum rows per leaf
	MinChildWeight  float64 // minimum hessian sum per leaf
	Subsample       float64 // bagging fraction
	SubsampleFreq   int     // bagging frequency, 0 disables bagging
	ColsampleBytree float64 // feature fraction per tree
	RegLambda       float64 // L2 regularization
	MinSplitGain    float64
	RandomState     uint64
	Verbosity       int

	nFeatures int
}

// NewLGBMRegressor returns a regressor with the LightGBM defaults.
func NewLGBMRegressor() *LGBMRegressor {
	return &LGBMRegressor{
		NumLeaves:       31,
		MaxDepth:        -1,
		LearningRate:    0.1,
		NumIterations:   100,
		MinChildSamples: 20,
		MinChildWeight:  1e-3,
		Subsample:       1,
		ColsampleBytree: 1,
		RandomState:     42,
		Verbosity:       -1,
	}
}

// WithNumLeaves sets the number of leaves.
func (lgb *LGBMRegressor) WithNumLeaves(n int) *LGBMRegressor {
	lgb.NumLeaves = n
	return lgb
}

// WithMaxDepth sets the maximum depth.
func (lgb *LGBMRegressor) WithMaxDepth(d int) *LGBMRegressor {
	lgb.MaxDepth = d
	return lgb
}

// WithLearningRate sets the learning rate.
func (lgb *LGBMRegressor) WithLearningRate(lr float64) *LGBMRegressor {
	lgb.LearningRate = lr
	return lgb
}

// WithNumIterations sets the number of boosting rounds.
func (lgb *LGBMRegressor) WithNumIterations(n int) *LGBMRegressor {
	lgb.NumIterations = n
	return lgb
}

// WithMinChildSamples sets the minimum number of rows in a leaf.
func (lgb *LGBMRegressor) WithMinChildSamples(n int) *LGBMRegressor {
	lgb.MinChildSamples = n
	return lgb
}

// WithMinChildWeight sets the minimum hessian sum in a leaf.
func (lgb *LGBMRegressor) WithMinChildWeight(w float64) *LGBMRegressor {
	lgb.MinChildWeight = w
	return lgb
}

// WithSubsample enables bagging of fraction rows every freq rounds.
func (lgb *LGBMRegressor) WithSubsample(fraction float64, freq int) *LGBMRegressor {
	lgb.Subsample = fraction
	lgb.SubsampleFreq = freq
	return lgb
}

// WithColsampleBytree sets the feature fraction drawn per tree.
func (lgb *LGBMRegressor) WithColsampleBytree(f float64) *LGBMRegressor {
	lgb.ColsampleBytree = f
	return lgb
}

// WithRegLambda sets the L2 penalty on leaf values.
func (lgb *LGBMRegressor) WithRegLambda(l float64) *LGBMRegressor {
	lgb.RegLambda = l
	return lgb
}

// WithRandomState sets the random seed.
func (lgb *LGBMRegressor) WithRandomState(seed uint64) *LGBMRegressor {
	lgb.RandomState = seed
	return lgb
}

// TrainingParams maps the regressor fields onto trainer parameters.
func (lgb *LGBMRegressor) TrainingParams() TrainingParams {
	return TrainingParams{
		NumIterations:       lgb.NumIterations,
		LearningRate:        lgb.LearningRate,
		NumLeaves:           lgb.NumLeaves,
		MaxDepth:            lgb.MaxDepth,
		MinDataInLeaf:       lgb.MinChildSamples,
		MinSumHessianInLeaf: lgb.MinChildWeight,
		Lambda:              lgb.RegLambda,
		MinGainToSplit:      lgb.MinSplitGain,
		BaggingFraction:     lgb.Subsample,
		BaggingFreq:         lgb.SubsampleFreq,
		FeatureFraction:     lgb.ColsampleBytree,
		Seed:                lgb.RandomState,
		Verbosity:           lgb.Verbosity,
	}
}

// Fit implements model.Fitter.
func (lgb *LGBMRegressor) Fit(X mat.Matrix, y []float64) error {
	return lgb.FitContext(context.Background(), X, y)
}

// FitContext trains the booster, checking ctx between rounds.
func (lgb *LGBMRegressor) FitContext(ctx context.Context, X mat.Matrix, y []float64) (err error) {
	defer errors.Recover(&err, "LGBMRegressor.Fit")

	trainer := NewTrainer(lgb.TrainingParams())
	if err := trainer.Fit(ctx, X, y); err != nil {
		return err
	}
	lgb.Model = trainer.GetModel()
	lgb.nFeatures = lgb.Model.NumFeatures
	lgb.SetFitted()
	return nil
}

// Predict implements model.Predictor.
func (lgb *LGBMRegressor) Predict(X mat.Matrix) ([]float64, error) {
	if !lgb.IsFitted() {
		return nil, errors.NewNotFittedError("LGBMRegressor", "Predict")
	}
	return tree.PredictAll(X, lgb.nFeatures, "LGBMRegressor.Predict", lgb.Model.PredictRow)
}

// GetFeatureImportance returns normalized "gain" or "split" importance.
func (lgb *LGBMRegressor) GetFeatureImportance(importanceType string) []float64 {
	if !lgb.IsFitted() || lgb.Model == nil {
		return nil
	}
	return lgb.Model.GetFeatureImportance(importanceType)
}

// FeatureImportances implements model.FeatureImporter with gain importance.
func (lgb *LGBMRegressor) FeatureImportances() ([]float64, error) {
	if !lgb.IsFitted() {
		return nil, errors.NewNotFittedError("LGBMRegressor", "FeatureImportances")
	}
	return lgb.GetFeatureImportance(ImportanceGain), nil
}
