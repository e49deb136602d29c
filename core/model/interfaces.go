// Package model defines the estimator interfaces shared by the regression
// engines and the tree ensembles.
package model

import (
	"gonum.org/v1/gonum/mat"
)

// Fitter is a supervised model trained on a row-major design matrix and a
// response vector.
type Fitter interface {
	Fit(X mat.Matrix, y []float64) error
}

// Predictor produces one prediction per row of X.
type Predictor interface {
	Predict(X mat.Matrix) ([]float64, error)
}

// Regressor combines Fitter and Predictor.
type Regressor interface {
	Fitter
	Predictor
}

// FeatureImporter is a fitted regressor that reports one non-negative
// importance per input column.
type FeatureImporter interface {
	Regressor
	FeatureImportances() ([]float64, error)
}

// InformationCriterion is implemented by likelihood-based fits.
type InformationCriterion interface {
	// EDF is the effective degrees of freedom of the mean model.
	EDF() float64
	// AIC is the Gaussian Akaike information criterion.
	AIC() float64
	// AICc is AIC with the small-sample correction.
	AICc() (float64, error)
}
