package preprocessing

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/jaredquekjz/plantguide-sub007/core/model"
	"github.com/jaredquekjz/plantguide-sub007/pkg/errors"
)

// StandardScaler z-scores each column with its population mean and SD
// (ddof = 0). Non-finite cells are ignored when fitting and pass through
// Transform unchanged. A column whose SD is zero or non-finite gets scale 1.
type StandardScaler struct {
	model.BaseEstimator

	// Mean is the per-column mean of the finite training values.
	Mean []float64

	// Scale is the per-column population SD, floored to 1.
	Scale []float64

	// NFeatures is the number of columns seen in Fit.
	NFeatures int
}

// NewStandardScaler returns an unfitted scaler.
//
//	scaler := preprocessing.NewStandardScaler()
//	err := scaler.Fit(Xtrain)
//	Xtest, err := scaler.Transform(Xtest)
func NewStandardScaler() *StandardScaler {
	return &StandardScaler{}
}

// Fit computes per-column statistics from X.
func (s *StandardScaler) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("StandardScaler.Fit", "empty data", errors.ErrEmptyData)
	}

	s.NFeatures = c
	s.Mean = make([]float64, c)
	s.Scale = make([]float64, c)

	col := make([]float64, 0, r)
	for j := 0; j < c; j++ {
		col = col[:0]
		for i := 0; i < r; i++ {
			if v := X.At(i, j); isFinite(v) {
				col = append(col, v)
			}
		}
		s.Mean[j], s.Scale[j] = populationMeanSD(col)
	}

	s.SetFitted()
	return nil
}

// Transform applies the fitted statistics to X.
func (s *StandardScaler) Transform(X mat.Matrix) (mat.Matrix, error) {
	if !s.IsFitted() {
		return nil, errors.NewNotFittedError("StandardScaler", "Transform")
	}
	r, c := X.Dims()
	if c != s.NFeatures {
		return nil, errors.NewDimensionError("StandardScaler.Transform", s.NFeatures, c, 1)
	}

	result := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			result.Set(i, j, (X.At(i, j)-s.Mean[j])/s.Scale[j])
		}
	}
	return result, nil
}

// FitTransform fits on X and transforms it.
func (s *StandardScaler) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

// populationMeanSD returns the mean and ddof=0 SD of finite values. An
// empty input gives mean 0; the SD falls back to 1 when it is zero or
// undefined.
func populationMeanSD(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 1
	}
	mean, sd := stat.PopMeanStdDev(values, nil)
	if !isFinite(mean) {
		mean = 0
	}
	if !isFinite(sd) || sd == 0 {
		sd = 1
	}
	return mean, sd
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
