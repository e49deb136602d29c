// Package importance ranks candidate predictors for one target with a
// bagged and a boosted tree ensemble and prunes correlated duplicates.
// It runs on the full table once per target and only decides which
// columns are eligible; it is never used to report performance.
package importance

import (
	"context"
	"math"
	"path"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/jaredquekjz/plantguide-sub007/dataset"
	"github.com/jaredquekjz/plantguide-sub007/pkg/errors"
	"github.com/jaredquekjz/plantguide-sub007/pkg/log"
	"github.com/jaredquekjz/plantguide-sub007/sklearn/ensemble"
	"github.com/jaredquekjz/plantguide-sub007/sklearn/lightgbm"
)

// Combine modes.
const (
	CombineMean = "mean"
	CombineMax  = "max"
	CombineRank = "rank"
)

// MinRows is the smallest number of complete rows worth ranking.
const MinRows = 10

// Options configures a Ranker.
type Options struct {
	// Exclude holds column names or path.Match patterns.
	Exclude              []string
	CorrelationThreshold float64
	Combine              string
	OfferAll             bool

	Trees  int
	Rounds int
	Seed   uint64
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		Exclude:              []string{"EIVEres-*"},
		CorrelationThreshold: 0.8,
		Combine:              CombineMean,
		Trees:                500,
		Rounds:               500,
	}
}

// Row is one feature of the importance table.
type Row struct {
	Feature string  `json:"feature"`
	Forest  float64 `json:"forest"`
	Boosted float64 `json:"boosted"`
	Score   float64 `json:"score"`
	// Cluster numbers correlation clusters from 1 in score order.
	Cluster int  `json:"cluster"`
	Kept    bool `json:"kept"`
}

// Result is the ranked importance table for one target.
type Result struct {
	Target string `json:"target"`
	N      int    `json:"n"`
	Rows   []Row  `json:"rows"`
}

// Selected returns the kept features in descending score order.
func (r *Result) Selected() []string {
	var out []string
	for _, row := range r.Rows {
		if row.Kept {
			out = append(out, row.Feature)
		}
	}
	return out
}

// Pruned returns the ranked features that lost their correlation cluster
// to a higher-scoring member. Features never ranked are absent.
func (r *Result) Pruned() map[string]bool {
	out := make(map[string]bool)
	for _, row := range r.Rows {
		if !row.Kept {
			out[row.Feature] = true
		}
	}
	return out
}

// Ranker computes importance tables.
type Ranker struct {
	opts   Options
	logger log.Logger
}

// NewRanker validates opts and returns a Ranker.
func NewRanker(opts Options) (*Ranker, error) {
	switch opts.Combine {
	case "":
		opts.Combine = CombineMean
	case CombineMean, CombineMax, CombineRank:
	default:
		return nil, errors.NewValidationError("importance.combine", "must be mean, max or rank", opts.Combine)
	}
	if opts.CorrelationThreshold <= 0 || opts.CorrelationThreshold > 1 {
		return nil, errors.NewValidationError("correlation_threshold", "must be in (0, 1]", opts.CorrelationThreshold)
	}
	for _, p := range opts.Exclude {
		if _, err := path.Match(p, ""); err != nil {
			return nil, errors.NewValidationError("importance.exclude", "bad pattern", p)
		}
	}
	if opts.Trees <= 0 {
		opts.Trees = 500
	}
	if opts.Rounds <= 0 {
		opts.Rounds = 500
	}
	return &Ranker{opts: opts, logger: log.GetLoggerWithName("importance")}, nil
}

// Rank fits both ensembles concurrently on the complete rows of target
// and the eligible numeric columns. Fewer than MinRows complete rows gives
// an empty table and a warning.
func (r *Ranker) Rank(ctx context.Context, t *dataset.Table, target string) (*Result, error) {
	logger := r.logger.With(log.TargetKey, target, log.OperationKey, log.OperationRank)
	if _, ok := t.Numeric(target); !ok {
		return nil, errors.NewDataError("importance.Rank", target, "target column not found")
	}
	targetRows, err := t.CompleteCases(target)
	if err != nil {
		return nil, err
	}
	features := r.eligible(t, target, targetRows)
	res := &Result{Target: target}

	rows, err := t.CompleteCases(append([]string{target}, features...)...)
	if err != nil {
		return nil, err
	}
	if len(rows) < MinRows || len(features) == 0 {
		logger.Warn("too few complete rows for importance ranking",
			log.SamplesKey, len(rows),
			log.FeaturesKey, len(features),
		)
		return res, nil
	}
	res.N = len(rows)

	sub := t.Subset(rows)
	X, err := sub.Matrix(features)
	if err != nil {
		return nil, err
	}
	y, _ := sub.Numeric(target)

	forest := ensemble.NewRandomForestRegressor(r.opts.Seed)
	forest.NEstimators = r.opts.Trees
	boost := lightgbm.NewLGBMRegressor().
		WithNumIterations(r.opts.Rounds).
		WithLearningRate(0.1).
		WithMaxDepth(6).
		WithNumLeaves(64).
		WithMinChildSamples(1).
		WithMinChildWeight(1).
		WithRegLambda(1).
		WithSubsample(0.8, 1).
		WithColsampleBytree(0.8).
		WithRandomState(r.opts.Seed)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return forest.FitContext(gctx, X, y) })
	g.Go(func() error { return boost.FitContext(gctx, X, y) })
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "importance ensembles")
	}
	fi, err := forest.FeatureImportances()
	if err != nil {
		return nil, err
	}
	bi, err := boost.FeatureImportances()
	if err != nil {
		return nil, err
	}
	fi, bi = MinMax(fi), MinMax(bi)
	scores := Combine(r.opts.Combine, fi, bi)

	res.Rows = make([]Row, len(features))
	for j, f := range features {
		res.Rows[j] = Row{Feature: f, Forest: fi[j], Boosted: bi[j], Score: scores[j]}
	}
	order := make([]int, len(features))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ra, rb := res.Rows[order[a]], res.Rows[order[b]]
		if ra.Score != rb.Score {
			return ra.Score > rb.Score
		}
		return ra.Feature < rb.Feature
	})

	clusters := Cluster(sub, features, r.opts.CorrelationThreshold)
	sorted := make([]Row, len(order))
	label := make(map[int]int)
	for i, j := range order {
		row := res.Rows[j]
		root := clusters[j]
		id, seen := label[root]
		if !seen {
			id = len(label) + 1
			label[root] = id
		}
		row.Cluster = id
		row.Kept = r.opts.OfferAll || !seen
		sorted[i] = row
	}
	res.Rows = sorted

	logger.Info("importance ranked",
		log.SamplesKey, res.N,
		log.FeaturesKey, len(features),
		"kept", len(res.Selected()),
		"clusters", len(label),
	)
	return res, nil
}

func (r *Ranker) eligible(t *dataset.Table, target string, rows []int) []string {
	var out []string
	for _, name := range t.NumericNames() {
		if name == target || r.excluded(name) {
			continue
		}
		v, _ := t.Numeric(name)
		first := math.NaN()
		varies := false
		for _, i := range rows {
			x := v[i]
			if !dataset.IsFinite(x) {
				continue
			}
			if math.IsNaN(first) {
				first = x
			} else if x != first {
				varies = true
				break
			}
		}
		if varies {
			out = append(out, name)
		}
	}
	return out
}

func (r *Ranker) excluded(name string) bool {
	for _, p := range r.opts.Exclude {
		if ok, _ := path.Match(p, name); ok {
			return true
		}
	}
	return false
}

// MinMax rescales v to [0, 1]. A constant vector maps to zeros.
func MinMax(v []float64) []float64 {
	out := make([]float64, len(v))
	if len(v) == 0 {
		return out
	}
	lo, hi := v[0], v[0]
	for _, x := range v {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	if hi == lo {
		return out
	}
	for i, x := range v {
		out[i] = (x - lo) / (hi - lo)
	}
	return out
}

// Combine merges normalised importance vectors. Rank mode averages the
// per-method ranks (1 = most important, ties share the mean rank) and maps
// the average to a descending score in [0, 1].
func Combine(mode string, vs ...[]float64) []float64 {
	if len(vs) == 0 {
		return nil
	}
	p := len(vs[0])
	out := make([]float64, p)
	switch mode {
	case CombineMax:
		for j := range out {
			out[j] = math.Inf(-1)
			for _, v := range vs {
				out[j] = math.Max(out[j], v[j])
			}
		}
	case CombineRank:
		for _, v := range vs {
			for j, rk := range descendingRanks(v) {
				out[j] += rk / float64(len(vs))
			}
		}
		for j := range out {
			if p == 1 {
				out[j] = 1
				continue
			}
			out[j] = (float64(p) - out[j]) / float64(p-1)
		}
	default:
		for j := range out {
			for _, v := range vs {
				out[j] += v[j]
			}
			out[j] /= float64(len(vs))
		}
	}
	return out
}

func descendingRanks(v []float64) []float64 {
	neg := make([]float64, len(v))
	for i, x := range v {
		neg[i] = -x
	}
	idx := make([]int, len(v))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return neg[idx[a]] < neg[idx[b]] })
	ranks := make([]float64, len(v))
	for i := 0; i < len(idx); {
		j := i
		for j+1 < len(idx) && neg[idx[j+1]] == neg[idx[i]] {
			j++
		}
		mean := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[idx[k]] = mean
		}
		i = j + 1
	}
	return ranks
}

// Cluster groups features whose pairwise |Pearson r| on the rows of t
// reaches threshold, with single linkage. It returns a root index per
// feature; features in the same cluster share a root.
func Cluster(t *dataset.Table, features []string, threshold float64) []int {
	parent := make([]int, len(features))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	cols := make([][]float64, len(features))
	for j, f := range features {
		cols[j], _ = t.Numeric(f)
	}
	for a := 0; a < len(features); a++ {
		for b := a + 1; b < len(features); b++ {
			r := stat.Correlation(cols[a], cols[b], nil)
			if !math.IsNaN(r) && math.Abs(r) >= threshold {
				ra, rb := find(a), find(b)
				if ra != rb {
					parent[rb] = ra
				}
			}
		}
	}
	out := make([]int, len(features))
	for i := range out {
		out[i] = find(i)
	}
	return out
}
