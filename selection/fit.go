// Package selection fits a fixed set of candidate formulas on one training
// partition and ranks them by AICc with Akaike weights.
package selection

import (
	"context"
	"time"

	"github.com/jaredquekjz/plantguide-sub007/core/model"
	"github.com/jaredquekjz/plantguide-sub007/dataset"
	"github.com/jaredquekjz/plantguide-sub007/formula"
	"github.com/jaredquekjz/plantguide-sub007/gam"
	"github.com/jaredquekjz/plantguide-sub007/linear"
	"github.com/jaredquekjz/plantguide-sub007/pkg/errors"
)

// DefaultFitTimeout bounds a single candidate fit.
const DefaultFitTimeout = 30 * time.Second

// Model is a fitted regression engine.
type Model interface {
	model.Predictor
	model.InformationCriterion
	R2() float64
	N() int
}

// FitResult is one fitted candidate with its information criteria.
type FitResult struct {
	Candidate formula.Candidate
	Layout    *formula.Layout
	Model     Model

	AIC  float64
	AICc float64
	EDF  float64
	R2   float64
	N    int
	// Weight is the Akaike weight within the ranking; zero until ranked.
	Weight   float64
	Duration time.Duration
}

// Predict evaluates the fitted candidate on t. t must carry the same
// transformed and composite columns as the training partition.
func (r *FitResult) Predict(t *dataset.Table) ([]float64, error) {
	X, err := r.Layout.Matrix(t)
	if err != nil {
		return nil, err
	}
	return r.Model.Predict(X)
}

// FitCandidate fits one candidate on the complete training rows. Any
// failure, including a panic inside the solver, a timeout or an undefined
// AICc, comes back as a FitConvergenceError.
func FitCandidate(ctx context.Context, c formula.Candidate, train *dataset.Table, target string, timeout time.Duration) (*FitResult, error) {
	start := time.Now()
	if timeout <= 0 {
		timeout = DefaultFitTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	y, ok := train.Numeric(target)
	if !ok {
		return nil, errors.NewDataError("selection.FitCandidate", target, "target column not found")
	}

	var res *FitResult
	err := errors.SafeExecute("selection.FitCandidate", func() error {
		layout, err := formula.Learn(c, train)
		if err != nil {
			return err
		}
		X, err := layout.Matrix(train)
		if err != nil {
			return err
		}
		r, p := X.Dims()
		if err := errors.CheckMatrix("design "+c.Name, X, r, p, 0); err != nil {
			return err
		}

		var m Model
		switch c.Engine() {
		case formula.EngineAdditive:
			g := gam.New(layout.Blocks())
			if err := g.FitContext(ctx, X, y); err != nil {
				return err
			}
			m = g
		default:
			lr := linear.NewLinearRegression()
			if err := lr.Fit(X, y); err != nil {
				return err
			}
			m = lr
		}
		if err := ctx.Err(); err != nil {
			return errors.Wrap(errors.ErrFitTimeout, err.Error())
		}

		aicc, err := m.AICc()
		if err != nil {
			return err
		}
		res = &FitResult{
			Candidate: c,
			Layout:    layout,
			Model:     m,
			AIC:       m.AIC(),
			AICc:      aicc,
			EDF:       m.EDF(),
			R2:        m.R2(),
			N:         m.N(),
		}
		return nil
	})
	if err != nil {
		reason := "fit failed"
		switch {
		case errors.Is(err, errors.ErrFitTimeout):
			reason = "timed out"
		case errors.Is(err, errors.ErrSingularMatrix):
			reason = "singular design"
		}
		var panicErr *errors.PanicError
		if errors.As(err, &panicErr) {
			reason = "panic"
		}
		return nil, errors.NewFitConvergenceError(c.Name, reason, err)
	}
	res.Duration = time.Since(start)
	return res, nil
}
