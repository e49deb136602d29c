// Package gam fits penalized additive regression models.
//
// A design matrix is split into an unpenalized part and penalized blocks
// (spline curvature columns, tensor products, random effect indicators).
// Each block gets a ridge penalty λ·I whose strength is chosen by
// generalized cross-validation, one block at a time, over a fixed grid.
// The effective degrees of freedom trace((XᵀX+S)⁻¹XᵀX) feed the
// information criteria.
package gam

import (
	"context"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/jaredquekjz/plantguide-sub007/core/model"
	"github.com/jaredquekjz/plantguide-sub007/linear"
	"github.com/jaredquekjz/plantguide-sub007/pkg/errors"
)

// Block is a group of penalized columns sharing one smoothing parameter.
// Cols index the caller's X (without the intercept).
type Block struct {
	Name string
	Cols []int
}

// Model is a penalized least squares fit with an unpenalized intercept.
type Model struct {
	model.BaseEstimator

	Coef      []float64 // Coef[0] is the intercept
	Lambdas   []float64 // one per block
	NFeatures int

	blocks []Block
	n      int
	rss    float64
	edf    float64
	r2     float64
	gcv    float64
	passes int

	grid      []float64
	maxPasses int
}

// Option configures a Model.
type Option func(*Model)

// WithGrid replaces the log10 λ grid. Values are multiplied by the mean
// diagonal of XᵀX over the block, so the grid is scale free.
func WithGrid(log10 []float64) Option {
	return func(m *Model) {
		m.grid = append([]float64(nil), log10...)
	}
}

// WithMaxPasses bounds the coordinate search over blocks.
func WithMaxPasses(n int) Option {
	return func(m *Model) {
		m.maxPasses = n
	}
}

// DefaultGrid spans 10⁻⁴ … 10⁴ in half-decade steps.
func DefaultGrid() []float64 {
	out := make([]float64, 0, 17)
	for e := -4.0; e <= 4.0; e += 0.5 {
		out = append(out, e)
	}
	return out
}

// New returns an unfitted model for the given penalty blocks.
func New(blocks []Block, opts ...Option) *Model {
	m := &Model{
		blocks:    blocks,
		grid:      DefaultGrid(),
		maxPasses: 5,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Fit implements model.Fitter.
func (m *Model) Fit(X mat.Matrix, y []float64) error {
	return m.FitContext(context.Background(), X, y)
}

// FitContext fits the model, checking ctx between GCV evaluations.
func (m *Model) FitContext(ctx context.Context, X mat.Matrix, y []float64) (err error) {
	defer errors.Recover(&err, "gam.Model.Fit")

	r, c := X.Dims()
	if r == 0 {
		return errors.NewModelError("gam.Model.Fit", "empty data", errors.ErrEmptyData)
	}
	if len(y) != r {
		return errors.NewDimensionError("gam.Model.Fit", r, len(y), 0)
	}
	for _, b := range m.blocks {
		for _, j := range b.Cols {
			if j < 0 || j >= c {
				return errors.NewValueError("gam.Model.Fit", "block "+b.Name+" references a column outside X")
			}
		}
	}

	p := c + 1
	design := mat.NewDense(r, p, nil)
	for i := 0; i < r; i++ {
		design.Set(i, 0, 1)
		for j := 0; j < c; j++ {
			design.Set(i, j+1, X.At(i, j))
		}
	}

	s := newSystem(design, y)
	scales := make([]float64, len(m.blocks))
	for b, blk := range m.blocks {
		var sum float64
		for _, j := range blk.Cols {
			sum += s.xtx.At(j+1, j+1)
		}
		scales[b] = 1
		if len(blk.Cols) > 0 && sum > 0 {
			scales[b] = sum / float64(len(blk.Cols))
		}
	}

	idx := make([]int, len(m.blocks))
	for b := range idx {
		idx[b] = len(m.grid) / 2
	}
	lambdas := func() []float64 {
		out := make([]float64, len(m.blocks))
		for b := range out {
			out[b] = math.Pow(10, m.grid[idx[b]]) * scales[b]
		}
		return out
	}

	best, err := s.solve(m.blocks, lambdas())
	if err != nil {
		return err
	}

	m.passes = 0
	if len(m.blocks) > 0 && len(m.grid) > 1 {
		converged := false
		for pass := 0; pass < m.maxPasses; pass++ {
			m.passes = pass + 1
			changed := false
			for b := range m.blocks {
				keep := idx[b]
				for g := range m.grid {
					if g == keep {
						continue
					}
					if err := ctx.Err(); err != nil {
						return errors.Wrap(errors.ErrFitTimeout, err.Error())
					}
					idx[b] = g
					cand, err := s.solve(m.blocks, lambdas())
					if err != nil {
						continue
					}
					if cand.gcv < best.gcv {
						best = cand
						keep = g
						changed = true
					}
				}
				idx[b] = keep
			}
			if !changed {
				converged = true
				break
			}
		}
		if !converged {
			errors.Warn(errors.NewConvergenceWarning("gam GCV search", m.passes, "smoothing parameters still moving"))
		}
	}

	if err := errors.CheckNumericalStability("gam.Model.Fit", best.coef, m.passes); err != nil {
		return err
	}

	m.Coef = best.coef
	m.Lambdas = best.lambdas
	m.NFeatures = c
	m.n = r
	m.rss = best.rss
	m.edf = best.edf
	m.gcv = best.gcv
	m.r2 = linear.RSquared(y, best.fitted)
	m.SetFitted()
	return nil
}

// Predict implements model.Predictor.
func (m *Model) Predict(X mat.Matrix) ([]float64, error) {
	if !m.IsFitted() {
		return nil, errors.NewNotFittedError("gam.Model", "Predict")
	}
	r, c := X.Dims()
	if c != m.NFeatures {
		return nil, errors.NewDimensionError("gam.Model.Predict", m.NFeatures, c, 1)
	}
	out := make([]float64, r)
	for i := 0; i < r; i++ {
		v := m.Coef[0]
		for j := 0; j < c; j++ {
			v += X.At(i, j) * m.Coef[j+1]
		}
		out[i] = v
	}
	return out, nil
}

// EDF implements model.InformationCriterion. It includes the intercept.
func (m *Model) EDF() float64 { return m.edf }

// AIC implements model.InformationCriterion.
func (m *Model) AIC() float64 { return linear.GaussianAIC(m.n, m.rss, m.edf) }

// AICc implements model.InformationCriterion.
func (m *Model) AICc() (float64, error) { return linear.AICc(m.n, m.AIC(), m.edf) }

// R2 is the in-sample coefficient of determination.
func (m *Model) R2() float64 { return m.r2 }

// RSS is the training residual sum of squares.
func (m *Model) RSS() float64 { return m.rss }

// GCV is the score of the selected smoothing parameters.
func (m *Model) GCV() float64 { return m.gcv }

// N is the number of training rows.
func (m *Model) N() int { return m.n }

// system caches XᵀX and Xᵀy for repeated penalized solves.
type system struct {
	design *mat.Dense
	y      []float64
	xtx    *mat.SymDense
	xty    *mat.VecDense
	n      int
}

type solution struct {
	coef    []float64
	lambdas []float64
	fitted  []float64
	rss     float64
	edf     float64
	gcv     float64
}

func newSystem(design *mat.Dense, y []float64) *system {
	n, _ := design.Dims()
	xtx := &mat.SymDense{}
	xtx.SymOuterK(1, design.T())
	xty := &mat.VecDense{}
	xty.MulVec(design.T(), mat.NewVecDense(n, y))
	return &system{design: design, y: y, xtx: xtx, xty: xty, n: n}
}

func (s *system) solve(blocks []Block, lambdas []float64) (*solution, error) {
	p := s.xtx.SymmetricDim()
	A := mat.NewSymDense(p, nil)
	A.CopySym(s.xtx)
	for b, blk := range blocks {
		for _, j := range blk.Cols {
			A.SetSym(j+1, j+1, A.At(j+1, j+1)+lambdas[b])
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(A); !ok {
		return nil, errors.NewModelError("gam.solve", "penalized system is not positive definite", errors.ErrSingularMatrix)
	}
	if cond := chol.Cond(); math.IsInf(cond, 0) || cond > 1e13 {
		return nil, errors.NewModelError("gam.solve", "ill-conditioned penalized system", errors.ErrSingularMatrix)
	}

	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, s.xty); err != nil {
		return nil, errors.NewModelError("gam.solve", "solve failed", err)
	}

	// EDF = trace(A⁻¹XᵀX)
	var infl mat.Dense
	if err := chol.SolveTo(&infl, s.xtx); err != nil {
		return nil, errors.NewModelError("gam.solve", "influence trace failed", err)
	}
	edf := mat.Trace(&infl)

	var fitted mat.VecDense
	fitted.MulVec(s.design, &beta)
	var rss float64
	for i := 0; i < s.n; i++ {
		d := s.y[i] - fitted.AtVec(i)
		rss += d * d
	}

	gcv := math.Inf(1)
	if dof := float64(s.n) - edf; dof > 0 {
		gcv = float64(s.n) * rss / (dof * dof)
	}

	return &solution{
		coef:    mat.Col(nil, 0, &beta),
		lambdas: append([]float64(nil), lambdas...),
		fitted:  mat.Col(nil, 0, &fitted),
		rss:     rss,
		edf:     edf,
		gcv:     gcv,
	}, nil
}
