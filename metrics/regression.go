// Package metrics scores out-of-sample predictions and aggregates them
// across folds and bootstrap resamples.
package metrics

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/jaredquekjz/plantguide-sub007/pkg/errors"
)

// MSE is the mean squared error.
func MSE(yTrue, yPred *mat.VecDense) (float64, error) {
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError("MSE", "empty vector")
	}
	if yPred.Len() != n {
		return 0, errors.NewDimensionError("MSE", n, yPred.Len(), 0)
	}

	var sum float64
	for i := 0; i < n; i++ {
		diff := yTrue.AtVec(i) - yPred.AtVec(i)
		sum += diff * diff
	}
	return sum / float64(n), nil
}

// RMSE is the root mean squared error.
func RMSE(yTrue, yPred *mat.VecDense) (float64, error) {
	mse, err := MSE(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mse), nil
}

// MAE is the mean absolute error.
func MAE(yTrue, yPred *mat.VecDense) (float64, error) {
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError("MAE", "empty vector")
	}
	if yPred.Len() != n {
		return 0, errors.NewDimensionError("MAE", n, yPred.Len(), 0)
	}

	var sum float64
	for i := 0; i < n; i++ {
		sum += math.Abs(yTrue.AtVec(i) - yPred.AtVec(i))
	}
	return sum / float64(n), nil
}

// R2Score is 1 − RSS/TSS. A target without variance is an error.
func R2Score(yTrue, yPred *mat.VecDense) (float64, error) {
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError("R2Score", "empty vector")
	}
	if yPred.Len() != n {
		return 0, errors.NewDimensionError("R2Score", n, yPred.Len(), 0)
	}

	var yMean float64
	for i := 0; i < n; i++ {
		yMean += yTrue.AtVec(i)
	}
	yMean /= float64(n)

	var tss, rss float64
	for i := 0; i < n; i++ {
		t, p := yTrue.AtVec(i), yPred.AtVec(i)
		tss += (t - yMean) * (t - yMean)
		rss += (t - p) * (t - p)
	}
	if tss == 0 {
		return 0, errors.Newf("R2Score: total sum of squares is zero (no variance in yTrue)")
	}
	return 1 - rss/tss, nil
}

// Score bundles the three reported regression metrics.
type Score struct {
	N    int     `yaml:"n" json:"n"`
	R2   float64 `yaml:"r2" json:"r2"`
	RMSE float64 `yaml:"rmse" json:"rmse"`
	MAE  float64 `yaml:"mae" json:"mae"`
}

// Evaluate scores predictions. R² of a constant target is reported as NaN
// with an UndefinedMetricWarning instead of failing.
func Evaluate(yTrue, yPred []float64) (Score, error) {
	if len(yTrue) != len(yPred) {
		return Score{}, errors.NewDimensionError("metrics.Evaluate", len(yTrue), len(yPred), 0)
	}
	if len(yTrue) == 0 {
		return Score{}, errors.NewValueError("metrics.Evaluate", "no predictions")
	}
	for i := range yTrue {
		if math.IsNaN(yTrue[i]) || math.IsNaN(yPred[i]) || math.IsInf(yPred[i], 0) {
			return Score{}, errors.NewValueError("metrics.Evaluate", "non-finite value in predictions")
		}
	}
	t := mat.NewVecDense(len(yTrue), yTrue)
	p := mat.NewVecDense(len(yPred), yPred)

	s := Score{N: len(yTrue)}
	var err error
	if s.RMSE, err = RMSE(t, p); err != nil {
		return Score{}, err
	}
	if s.MAE, err = MAE(t, p); err != nil {
		return Score{}, err
	}
	if s.R2, err = R2Score(t, p); err != nil {
		s.R2 = math.NaN()
		errors.Warn(errors.NewUndefinedMetricWarning("r2", "constant target", s.R2))
	}
	return s, nil
}
