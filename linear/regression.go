// Package linear fits ordinary least squares models and provides the
// Gaussian information criteria shared by every regression engine.
package linear

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/jaredquekjz/plantguide-sub007/core/model"
	"github.com/jaredquekjz/plantguide-sub007/core/parallel"
	"github.com/jaredquekjz/plantguide-sub007/pkg/errors"
)

// LinearRegression is an OLS model solved through the normal equations
// with a Cholesky factorisation.
type LinearRegression struct {
	model.BaseEstimator
	Weights   *mat.VecDense
	Intercept float64
	NFeatures int

	n   int
	rss float64
	r2  float64

	fitIntercept bool
	tol          float64
}

// NewLinearRegression returns an unfitted model with an intercept.
func NewLinearRegression(opts ...Option) *LinearRegression {
	lr := &LinearRegression{fitIntercept: true, tol: 1e-12}
	for _, opt := range opts {
		opt(lr)
	}
	return lr
}

// Fit estimates w from (XᵀX) w = Xᵀy.
func (lr *LinearRegression) Fit(X mat.Matrix, y []float64) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("LinearRegression.Fit", "empty data", errors.ErrEmptyData)
	}
	if len(y) != r {
		return errors.NewDimensionError("LinearRegression.Fit", r, len(y), 0)
	}

	lr.NFeatures = c
	off := 0
	if lr.fitIntercept {
		off = 1
	}
	p := c + off

	design := mat.NewDense(r, p, nil)
	const parallelThreshold = 1000
	parallel.ParallelizeWithThreshold(r, parallelThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			if off == 1 {
				design.Set(i, 0, 1)
			}
			for j := 0; j < c; j++ {
				design.Set(i, j+off, X.At(i, j))
			}
		}
	})

	var xtx mat.SymDense
	xtx.SymOuterK(1, design.T())

	var chol mat.Cholesky
	if ok := chol.Factorize(&xtx); !ok {
		return errors.NewModelError("LinearRegression.Fit", "singular matrix", errors.ErrSingularMatrix)
	}
	if cond := chol.Cond(); math.IsInf(cond, 0) || 1/cond < lr.tol {
		return errors.NewModelError("LinearRegression.Fit", "ill-conditioned design", errors.ErrSingularMatrix)
	}

	yVec := mat.NewVecDense(r, y)
	var xty mat.VecDense
	xty.MulVec(design.T(), yVec)

	var w mat.VecDense
	if err := chol.SolveVecTo(&w, &xty); err != nil {
		return errors.NewModelError("LinearRegression.Fit", "solve failed", err)
	}

	if off == 1 {
		lr.Intercept = w.AtVec(0)
	} else {
		lr.Intercept = 0
	}
	lr.Weights = mat.NewVecDense(c, nil)
	for j := 0; j < c; j++ {
		lr.Weights.SetVec(j, w.AtVec(j+off))
	}

	var fitted mat.VecDense
	fitted.MulVec(design, &w)
	lr.rss = 0
	for i := 0; i < r; i++ {
		d := y[i] - fitted.AtVec(i)
		lr.rss += d * d
	}
	lr.n = r
	lr.r2 = RSquared(y, fitted.RawVector().Data)

	if err := errors.CheckScalar("LinearRegression.Fit", lr.rss, 0); err != nil {
		return err
	}
	lr.SetFitted()
	return nil
}

// Predict returns Xw + b.
func (lr *LinearRegression) Predict(X mat.Matrix) ([]float64, error) {
	if !lr.IsFitted() {
		return nil, errors.NewNotFittedError("LinearRegression", "Predict")
	}
	r, c := X.Dims()
	if c != lr.NFeatures {
		return nil, errors.NewDimensionError("LinearRegression.Predict", lr.NFeatures, c, 1)
	}
	out := make([]float64, r)
	for i := 0; i < r; i++ {
		pred := lr.Intercept
		for j := 0; j < c; j++ {
			pred += X.At(i, j) * lr.Weights.AtVec(j)
		}
		out[i] = pred
	}
	return out, nil
}

// GetWeights returns a copy of the coefficients.
func (lr *LinearRegression) GetWeights() []float64 {
	if lr.Weights == nil {
		return nil
	}
	out := make([]float64, lr.Weights.Len())
	for i := range out {
		out[i] = lr.Weights.AtVec(i)
	}
	return out
}

// EDF is the number of estimated coefficients including the intercept.
func (lr *LinearRegression) EDF() float64 {
	if lr.fitIntercept {
		return float64(lr.NFeatures + 1)
	}
	return float64(lr.NFeatures)
}

// RSS is the training residual sum of squares.
func (lr *LinearRegression) RSS() float64 { return lr.rss }

// N is the number of training rows.
func (lr *LinearRegression) N() int { return lr.n }

// R2 is the in-sample coefficient of determination.
func (lr *LinearRegression) R2() float64 { return lr.r2 }

// AIC implements model.InformationCriterion.
func (lr *LinearRegression) AIC() float64 {
	return GaussianAIC(lr.n, lr.rss, lr.EDF())
}

// AICc implements model.InformationCriterion.
func (lr *LinearRegression) AICc() (float64, error) {
	return AICc(lr.n, lr.AIC(), lr.EDF())
}

// Score returns R² of the model on (X, y).
func (lr *LinearRegression) Score(X mat.Matrix, y []float64) (float64, error) {
	pred, err := lr.Predict(X)
	if err != nil {
		return 0, err
	}
	if len(pred) != len(y) {
		return 0, errors.NewDimensionError("LinearRegression.Score", len(pred), len(y), 0)
	}
	r2 := RSquared(y, pred)
	if math.IsNaN(r2) {
		return 0, errors.Newf("total sum of squares is zero")
	}
	return r2, nil
}
