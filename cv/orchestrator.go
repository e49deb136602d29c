package cv

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jaredquekjz/plantguide-sub007/composite"
	"github.com/jaredquekjz/plantguide-sub007/dataset"
	"github.com/jaredquekjz/plantguide-sub007/formula"
	"github.com/jaredquekjz/plantguide-sub007/metrics"
	"github.com/jaredquekjz/plantguide-sub007/pkg/errors"
	"github.com/jaredquekjz/plantguide-sub007/pkg/log"
	"github.com/jaredquekjz/plantguide-sub007/preprocessing"
	"github.com/jaredquekjz/plantguide-sub007/selection"
)

// Fold outcomes.
const (
	StatusOK         = "ok"
	StatusEmpty      = "empty"
	StatusDegenerate = "degenerate"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

// Options configures an Orchestrator.
type Options struct {
	Repeats int
	Seed    uint64
	Workers int

	MinTrainRows int
	MinTestRows  int
	FitTimeout   time.Duration

	// LogColumns, Winsorize, WinsorP and Standardize drive the fold-local
	// preprocessing of every predictor column the plan reads.
	LogColumns  []string
	Winsorize   bool
	WinsorP     float64
	Standardize bool

	BootstrapReps int
}

// DefaultOptions returns the orchestrator defaults.
func DefaultOptions() Options {
	return Options{
		Repeats:       1,
		Seed:          42,
		Workers:       1,
		MinTrainRows:  20,
		MinTestRows:   5,
		FitTimeout:    selection.DefaultFitTimeout,
		Standardize:   true,
		WinsorP:       preprocessing.DefaultWinsorP,
		BootstrapReps: metrics.DefaultBootstrapReps,
	}
}

// PredictionRecord is one out-of-sample prediction.
type PredictionRecord struct {
	ID        string  `yaml:"id" json:"id"`
	Repeat    int     `yaml:"repeat" json:"repeat"`
	Fold      int     `yaml:"fold" json:"fold"`
	True      float64 `yaml:"true" json:"true"`
	Predicted float64 `yaml:"predicted" json:"predicted"`
	Model     string  `yaml:"model" json:"model"`
}

// CandidateScore is one row of a fold's model ranking.
type CandidateScore struct {
	Candidate string  `yaml:"candidate" json:"candidate"`
	AIC       float64 `yaml:"aic" json:"aic"`
	AICc      float64 `yaml:"aicc" json:"aicc"`
	EDF       float64 `yaml:"edf" json:"edf"`
	R2        float64 `yaml:"r2" json:"r2"`
	Weight    float64 `yaml:"weight" json:"weight"`
	Error     string  `yaml:"error,omitempty" json:"error,omitempty"`
}

// FoldResult is the outcome of one (repeat, fold).
type FoldResult struct {
	Repeat   int              `yaml:"repeat" json:"repeat"`
	Fold     int              `yaml:"fold" json:"fold"`
	Status   string           `yaml:"status" json:"status"`
	NTrain   int              `yaml:"n_train" json:"n_train"`
	NTest    int              `yaml:"n_test" json:"n_test"`
	Selected string           `yaml:"selected,omitempty" json:"selected,omitempty"`
	Score    *metrics.Score   `yaml:"score,omitempty" json:"score,omitempty"`
	Ranking  []CandidateScore `yaml:"ranking,omitempty" json:"ranking,omitempty"`
	Error    string           `yaml:"error,omitempty" json:"error,omitempty"`

	records []PredictionRecord
}

// Result is a complete cross-validation run for one axis.
type Result struct {
	RunID        string             `yaml:"run_id" json:"run_id"`
	Axis         string             `yaml:"axis" json:"axis"`
	Target       string             `yaml:"target" json:"target"`
	Scheme       string             `yaml:"scheme" json:"scheme"`
	N            int                `yaml:"n" json:"n"`
	Records      []PredictionRecord `yaml:"-" json:"-"`
	Folds        []FoldResult       `yaml:"folds" json:"folds"`
	DroppedFolds int                `yaml:"dropped_folds" json:"dropped_folds"`
	Fingerprints []uint64           `yaml:"fingerprints" json:"fingerprints"`
	Fallbacks    []formula.Fallback `yaml:"fallbacks,omitempty" json:"fallbacks,omitempty"`
	Metrics      *metrics.Summary   `yaml:"metrics" json:"metrics"`
}

// Orchestrator runs repeats × folds for one candidate plan.
type Orchestrator struct {
	plan       *formula.Plan
	gen        Generator
	opts       Options
	logger     log.Logger
	collectors *Collectors
}

// New validates opts and returns an Orchestrator.
func New(plan *formula.Plan, gen Generator, opts Options) (*Orchestrator, error) {
	if plan == nil || len(plan.Candidates) == 0 {
		return nil, errors.NewValidationError("plan", "needs at least one candidate", nil)
	}
	if opts.Repeats < 1 {
		return nil, errors.NewValidationError("repeats", "must be at least 1", opts.Repeats)
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Winsorize && (opts.WinsorP <= 0 || opts.WinsorP >= 0.5) {
		return nil, errors.NewValidationError("winsor_p", "must be in (0, 0.5)", opts.WinsorP)
	}
	return &Orchestrator{
		plan:   plan,
		gen:    gen,
		opts:   opts,
		logger: log.GetLoggerWithName("cv").With(log.TargetKey, plan.Axis, log.SchemeKey, gen.Scheme()),
	}, nil
}

// WithCollectors attaches prometheus collectors.
func (o *Orchestrator) WithCollectors(c *Collectors) *Orchestrator {
	o.collectors = c
	return o
}

type job struct {
	repeat int
	fold   int
	a      *Assignment
}

// Run cross-validates the plan on the rows of t that are complete for the
// target, every predictor and every label the plan or generator needs.
// Folds run on up to Workers goroutines and are merged in (repeat, fold)
// order. On cancellation the folds finished so far are summarised and
// returned together with the context error.
func (o *Orchestrator) Run(ctx context.Context, t *dataset.Table) (*Result, error) {
	start := time.Now()
	runID := uuid.NewString()
	logger := o.logger.With(log.RunIDKey, runID)

	required := append(o.plan.RequiredColumns(), o.gen.Columns()...)
	rows, err := t.CompleteCases(required...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.NewDataError("cv.Run", o.plan.Target, "no complete rows for the plan")
	}
	data := t.Subset(rows)
	res := &Result{
		RunID:     runID,
		Axis:      o.plan.Axis,
		Target:    o.plan.Target,
		Scheme:    o.gen.Scheme(),
		N:         data.Len(),
		Fallbacks: o.plan.Fallbacks,
	}
	logger.Info("cross-validation started",
		log.SamplesKey, data.Len(),
		log.DroppedKey, t.Len()-data.Len(),
		"repeats", o.opts.Repeats,
		"candidates", len(o.plan.Candidates),
	)

	var jobs []job
	for r := 1; r <= o.opts.Repeats; r++ {
		a, err := o.gen.Assign(data, r, o.opts.Seed)
		if err != nil {
			return nil, err
		}
		res.Fingerprints = append(res.Fingerprints, a.Fingerprint())
		for f := 1; f <= a.K; f++ {
			jobs = append(jobs, job{repeat: r, fold: f, a: a})
		}
	}

	slots := make([]FoldResult, len(jobs))
	for i, j := range jobs {
		slots[i] = FoldResult{Repeat: j.repeat, Fold: j.fold, Status: StatusCancelled}
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Workers)
	for i, j := range jobs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return nil
			}
			fr, err := o.runFold(gctx, data, j)
			if err != nil {
				return err
			}
			slots[i] = fr
			return nil
		})
	}
	runErr := g.Wait()
	if runErr == nil {
		runErr = ctx.Err()
	}
	if runErr != nil && errors.IsFatal(runErr) {
		return nil, runErr
	}

	var yTrue, yPred []float64
	var scores []metrics.Score
	for _, fr := range slots {
		switch fr.Status {
		case StatusOK:
			scores = append(scores, *fr.Score)
		case StatusEmpty:
		default:
			res.DroppedFolds++
		}
		for _, rec := range fr.records {
			yTrue = append(yTrue, rec.True)
			yPred = append(yPred, rec.Predicted)
		}
		res.Records = append(res.Records, fr.records...)
		if o.collectors != nil {
			o.collectors.Folds.WithLabelValues(o.plan.Axis, fr.Status).Inc()
		}
	}
	res.Folds = slots

	summary, err := metrics.Summarize(yTrue, yPred, scores, res.DroppedFolds, o.opts.BootstrapReps, o.opts.Seed)
	if err != nil {
		return nil, err
	}
	res.Metrics = summary

	logger.Info("cross-validation finished",
		log.R2ScoreKey, summary.Pooled.R2,
		log.RMSEKey, summary.Pooled.RMSE,
		log.MAEKey, summary.Pooled.MAE,
		"dropped_folds", res.DroppedFolds,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return res, runErr
}

// runFold executes one fold. Only fatal errors are returned; every other
// failure is recorded in the FoldResult.
func (o *Orchestrator) runFold(ctx context.Context, data *dataset.Table, j job) (FoldResult, error) {
	start := time.Now()
	fr := FoldResult{Repeat: j.repeat, Fold: j.fold}
	logger := o.logger.With(log.RepeatKey, j.repeat, log.FoldKey, j.fold)
	defer func() {
		if o.collectors != nil {
			o.collectors.FoldDuration.Observe(time.Since(start).Seconds())
		}
	}()

	trainRows, testRows := j.a.Split(j.fold)
	fr.NTrain, fr.NTest = len(trainRows), len(testRows)
	if len(testRows) == 0 {
		fr.Status = StatusEmpty
		return fr, nil
	}
	if len(trainRows) < o.opts.MinTrainRows || len(testRows) < o.opts.MinTestRows {
		err := errors.NewFoldDegenerateError(j.repeat, j.fold, len(trainRows), len(testRows), o.opts.MinTrainRows, o.opts.MinTestRows)
		logger.Warn("fold skipped", log.ErrAttrKey, err)
		fr.Status = StatusDegenerate
		fr.Error = err.Error()
		return fr, nil
	}
	train := data.Subset(trainRows)
	test := data.Subset(testRows)

	// preprocessing: parameters come from train only
	pre, err := preprocessing.NewPreprocessor(preprocessing.Options{
		Columns:     o.plan.NumericColumns,
		LogColumns:  intersect(o.opts.LogColumns, o.plan.NumericColumns),
		Winsorize:   o.opts.Winsorize,
		WinsorP:     o.opts.WinsorP,
		Standardize: o.opts.Standardize,
	})
	if err != nil {
		return fr, err
	}
	params, err := pre.WithLogger(logger).Fit(train)
	if err != nil {
		return o.failed(fr, logger, err)
	}
	if train, err = params.Apply(train); err != nil {
		return o.failed(fr, logger, err)
	}
	if test, err = params.Apply(test); err != nil {
		return o.failed(fr, logger, err)
	}

	// composites: loadings come from train only
	if len(o.plan.Composites) > 0 {
		cb, err := composite.NewBuilder(o.plan.Composites)
		if err != nil {
			return fr, err
		}
		set, err := cb.FitForFold(train)
		if err != nil {
			return o.failed(fr, logger, err)
		}
		if train, err = set.Apply(train); err != nil {
			return o.failed(fr, logger, err)
		}
		if test, err = set.Apply(test); err != nil {
			return o.failed(fr, logger, err)
		}
	}

	sel := selection.NewSelector(o.plan.Candidates,
		selection.WithFitTimeout(o.opts.FitTimeout),
		selection.WithLogger(logger),
	)
	ranking, err := sel.Select(ctx, train, o.plan.Target, j.repeat, j.fold)
	if ranking != nil {
		fr.Ranking = rankingTable(ranking)
		if o.collectors != nil {
			for _, r := range ranking.Results {
				o.collectors.Candidates.WithLabelValues(o.plan.Axis, r.Candidate.Name, StatusOK).Inc()
			}
			for _, f := range ranking.Failures {
				o.collectors.Candidates.WithLabelValues(o.plan.Axis, f.Candidate, StatusFailed).Inc()
			}
		}
	}
	if err != nil {
		if errors.IsFatal(err) {
			return fr, err
		}
		if ctx.Err() != nil {
			fr.Status = StatusCancelled
			return fr, nil
		}
		return o.failed(fr, logger, err)
	}

	best := ranking.Best()
	pred, err := best.Predict(test)
	if err != nil {
		return o.failed(fr, logger, err)
	}
	y, _ := test.Numeric(o.plan.Target)
	score, err := metrics.Evaluate(y, pred)
	if err != nil {
		return o.failed(fr, logger, err)
	}

	fr.Status = StatusOK
	fr.Selected = best.Candidate.Name
	fr.Score = &score
	fr.records = make([]PredictionRecord, len(y))
	for i := range y {
		fr.records[i] = PredictionRecord{
			ID:        test.ID(i),
			Repeat:    j.repeat,
			Fold:      j.fold,
			True:      y[i],
			Predicted: pred[i],
			Model:     best.Candidate.Name,
		}
	}
	logger.Debug("fold finished",
		log.CandidateKey, best.Candidate.Name,
		log.TrainKey, fr.NTrain,
		log.TestKey, fr.NTest,
		log.R2ScoreKey, score.R2,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return fr, nil
}

func (o *Orchestrator) failed(fr FoldResult, logger log.Logger, err error) (FoldResult, error) {
	if errors.IsFatal(err) {
		return fr, err
	}
	logger.Warn("fold failed", log.ErrAttrKey, err)
	fr.Status = StatusFailed
	fr.Error = err.Error()
	return fr, nil
}

func rankingTable(r *selection.Ranking) []CandidateScore {
	out := make([]CandidateScore, 0, len(r.Results)+len(r.Failures))
	for _, res := range r.Results {
		out = append(out, CandidateScore{
			Candidate: res.Candidate.Name,
			AIC:       res.AIC,
			AICc:      res.AICc,
			EDF:       res.EDF,
			R2:        res.R2,
			Weight:    res.Weight,
		})
	}
	for _, f := range r.Failures {
		out = append(out, CandidateScore{Candidate: f.Candidate, Error: f.Err.Error()})
	}
	return out
}

func intersect(a, b []string) []string {
	in := make(map[string]bool, len(b))
	for _, x := range b {
		in[x] = true
	}
	var out []string
	for _, x := range a {
		if in[x] {
			out = append(out, x)
		}
	}
	return out
}
