package selection

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/jaredquekjz/plantguide-sub007/dataset"
	"github.com/jaredquekjz/plantguide-sub007/formula"
	"github.com/jaredquekjz/plantguide-sub007/pkg/errors"
	"github.com/jaredquekjz/plantguide-sub007/pkg/log"
)

// Failure is a candidate that could not be fitted.
type Failure struct {
	Candidate string
	Err       error
}

// Ranking orders the fitted candidates by AICc ascending. Weights sum to
// one over Results; failed candidates never receive weight.
type Ranking struct {
	Results  []*FitResult
	Failures []Failure
}

// Best returns the lowest-AICc candidate.
func (r *Ranking) Best() *FitResult {
	if len(r.Results) == 0 {
		return nil
	}
	return r.Results[0]
}

// Selector fits every candidate of a plan on a training partition.
type Selector struct {
	candidates []formula.Candidate
	timeout    time.Duration
	logger     log.Logger
}

// Option configures a Selector.
type Option func(*Selector)

// WithFitTimeout sets the per-candidate time budget.
func WithFitTimeout(d time.Duration) Option {
	return func(s *Selector) {
		s.timeout = d
	}
}

// WithLogger replaces the component logger.
func WithLogger(l log.Logger) Option {
	return func(s *Selector) {
		s.logger = l
	}
}

// NewSelector returns a Selector for a fixed candidate list.
func NewSelector(candidates []formula.Candidate, opts ...Option) *Selector {
	s := &Selector{
		candidates: candidates,
		timeout:    DefaultFitTimeout,
		logger:     log.GetLoggerWithName("selection"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select fits all candidates on train and ranks them. repeat and fold only
// label logs and errors. When no candidate can be fitted the error is an
// AllCandidatesFailedError and the ranking still lists the failures.
func (s *Selector) Select(ctx context.Context, train *dataset.Table, target string, repeat, fold int) (*Ranking, error) {
	logger := s.logger.With(log.RepeatKey, repeat, log.FoldKey, fold)
	ranking := &Ranking{}
	for _, c := range s.candidates {
		if err := ctx.Err(); err != nil {
			return ranking, err
		}
		res, err := FitCandidate(ctx, c, train, target, s.timeout)
		if err != nil {
			if errors.IsFatal(err) {
				return ranking, err
			}
			logger.Warn("candidate dropped",
				log.CandidateKey, c.Name,
				log.ErrAttrKey, err,
			)
			ranking.Failures = append(ranking.Failures, Failure{Candidate: c.Name, Err: err})
			continue
		}
		logger.Debug("candidate fitted",
			log.CandidateKey, c.Name,
			log.EngineKey, c.Engine().String(),
			log.AICcKey, res.AICc,
			log.EDFKey, res.EDF,
			log.DurationMsKey, res.Duration.Milliseconds(),
		)
		ranking.Results = append(ranking.Results, res)
	}
	if len(ranking.Results) == 0 {
		return ranking, errors.NewAllCandidatesFailedError(repeat, fold, len(s.candidates))
	}

	sort.SliceStable(ranking.Results, func(i, j int) bool {
		return ranking.Results[i].AICc < ranking.Results[j].AICc
	})
	weights := AkaikeWeights(aiccs(ranking.Results))
	for i, w := range weights {
		ranking.Results[i].Weight = w
	}
	best := ranking.Best()
	logger.Info("model selected",
		log.CandidateKey, best.Candidate.Name,
		log.AICcKey, best.AICc,
		log.WeightKey, best.Weight,
		"failed", len(ranking.Failures),
	)
	return ranking, nil
}

// AkaikeWeights converts criteria values into weights exp(−Δ/2)/Σ where Δ
// is the distance to the minimum.
func AkaikeWeights(ic []float64) []float64 {
	if len(ic) == 0 {
		return nil
	}
	lo := math.Inf(1)
	for _, v := range ic {
		lo = math.Min(lo, v)
	}
	out := make([]float64, len(ic))
	var sum float64
	for i, v := range ic {
		out[i] = math.Exp(-(v - lo) / 2)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func aiccs(results []*FitResult) []float64 {
	out := make([]float64, len(results))
	for i, r := range results {
		out[i] = r.AICc
	}
	return out
}
