package metrics

import (
	"math"
	"math/rand/v2"

	"github.com/montanaflynn/stats"
	gstat "gonum.org/v1/gonum/stat"

	"github.com/jaredquekjz/plantguide-sub007/pkg/errors"
	"github.com/jaredquekjz/plantguide-sub007/pkg/log"
)

// DefaultBootstrapReps is the default number of bootstrap resamples.
const DefaultBootstrapReps = 1000

// FoldStats summarises per-fold scores with population SDs. Folds whose R²
// is undefined are left out of the R² moments only.
type FoldStats struct {
	Folds    int     `yaml:"folds" json:"folds"`
	R2Mean   float64 `yaml:"r2_mean" json:"r2_mean"`
	R2SD     float64 `yaml:"r2_sd" json:"r2_sd"`
	RMSEMean float64 `yaml:"rmse_mean" json:"rmse_mean"`
	RMSESD   float64 `yaml:"rmse_sd" json:"rmse_sd"`
	MAEMean  float64 `yaml:"mae_mean" json:"mae_mean"`
	MAESD    float64 `yaml:"mae_sd" json:"mae_sd"`
}

// PerFold aggregates fold scores.
func PerFold(scores []Score) FoldStats {
	fs := FoldStats{Folds: len(scores)}
	if len(scores) == 0 {
		nan := math.NaN()
		fs.R2Mean, fs.R2SD, fs.RMSEMean, fs.RMSESD, fs.MAEMean, fs.MAESD = nan, nan, nan, nan, nan, nan
		return fs
	}
	var r2, rmse, mae []float64
	for _, s := range scores {
		if !math.IsNaN(s.R2) {
			r2 = append(r2, s.R2)
		}
		rmse = append(rmse, s.RMSE)
		mae = append(mae, s.MAE)
	}
	fs.R2Mean, fs.R2SD = popMeanSD(r2)
	fs.RMSEMean, fs.RMSESD = popMeanSD(rmse)
	fs.MAEMean, fs.MAESD = popMeanSD(mae)
	return fs
}

func popMeanSD(x []float64) (float64, float64) {
	if len(x) == 0 {
		return math.NaN(), math.NaN()
	}
	return gstat.PopMeanStdDev(x, nil)
}

// Interval is the bootstrap distribution summary of one metric.
type Interval struct {
	Mean  float64 `yaml:"mean" json:"mean"`
	SD    float64 `yaml:"sd" json:"sd"`
	Lower float64 `yaml:"p2_5" json:"p2_5"`
	Upper float64 `yaml:"p97_5" json:"p97_5"`
}

// BootstrapStats is the result of resampling prediction records.
type BootstrapStats struct {
	Reps     int      `yaml:"reps" json:"reps"`
	Attempts int      `yaml:"attempts" json:"attempts"`
	Skipped  int      `yaml:"skipped" json:"skipped"`
	R2       Interval `yaml:"r2" json:"r2"`
	RMSE     Interval `yaml:"rmse" json:"rmse"`
}

// Bootstrap resamples record indices with replacement reps times and
// summarises R² and RMSE. A resample whose target has zero variance is
// skipped without using up a slot; after 10·reps+100 attempts the
// resamples drawn so far are summarised.
func Bootstrap(yTrue, yPred []float64, reps int, seed uint64) (*BootstrapStats, error) {
	n := len(yTrue)
	if n != len(yPred) {
		return nil, errors.NewDimensionError("metrics.Bootstrap", n, len(yPred), 0)
	}
	if n < 2 {
		return nil, errors.NewValueError("metrics.Bootstrap", "need at least two records")
	}
	if reps <= 0 {
		return nil, errors.NewValidationError("bootstrap_reps", "must be positive", reps)
	}
	logger := log.GetLoggerWithName("metrics").With(log.OperationKey, log.OperationBootstrap)
	rng := rand.New(rand.NewPCG(seed, 0xb007))

	maxAttempts := 10*reps + 100
	r2s := make([]float64, 0, reps)
	rmses := make([]float64, 0, reps)
	bs := &BootstrapStats{}
	t := make([]float64, n)
	p := make([]float64, n)
	for len(r2s) < reps && bs.Attempts < maxAttempts {
		bs.Attempts++
		for i := range t {
			k := rng.IntN(n)
			t[i], p[i] = yTrue[k], yPred[k]
		}
		r2, rmse, ok := resampleScore(t, p)
		if !ok {
			bs.Skipped++
			logger.Debug("bootstrap resample skipped", log.ErrAttrKey, errors.NewBootstrapDegenerateSample(bs.Attempts))
			continue
		}
		r2s = append(r2s, r2)
		rmses = append(rmses, rmse)
	}
	bs.Reps = len(r2s)
	if bs.Reps == 0 {
		return nil, errors.NewValueError("metrics.Bootstrap", "every resample was degenerate")
	}
	if bs.Reps < reps {
		logger.Warn("bootstrap attempt cap reached", "requested", reps, "drawn", bs.Reps, log.AttemptsKey, bs.Attempts)
	}

	var err error
	if bs.R2, err = summarise(r2s); err != nil {
		return nil, err
	}
	if bs.RMSE, err = summarise(rmses); err != nil {
		return nil, err
	}
	return bs, nil
}

func resampleScore(t, p []float64) (float64, float64, bool) {
	var mean float64
	for _, v := range t {
		mean += v
	}
	mean /= float64(len(t))
	var tss, rss float64
	for i := range t {
		tss += (t[i] - mean) * (t[i] - mean)
		rss += (t[i] - p[i]) * (t[i] - p[i])
	}
	if tss == 0 {
		return 0, 0, false
	}
	return 1 - rss/tss, math.Sqrt(rss / float64(len(t))), true
}

func summarise(x []float64) (Interval, error) {
	data := stats.Float64Data(x)
	var iv Interval
	var err error
	if iv.Mean, err = data.Mean(); err != nil {
		return iv, errors.Wrap(err, "bootstrap mean")
	}
	if iv.SD, err = data.StandardDeviationPopulation(); err != nil {
		return iv, errors.Wrap(err, "bootstrap sd")
	}
	if iv.Lower, err = data.Percentile(2.5); err != nil {
		return iv, errors.Wrap(err, "bootstrap lower percentile")
	}
	if iv.Upper, err = data.Percentile(97.5); err != nil {
		return iv, errors.Wrap(err, "bootstrap upper percentile")
	}
	return iv, nil
}

// Summary is the complete metrics block of a run.
type Summary struct {
	N            int             `yaml:"n" json:"n"`
	Pooled       Score           `yaml:"pooled" json:"pooled"`
	PerFold      FoldStats       `yaml:"per_fold" json:"per_fold"`
	Bootstrap    *BootstrapStats `yaml:"bootstrap,omitempty" json:"bootstrap,omitempty"`
	DroppedFolds int             `yaml:"dropped_folds" json:"dropped_folds"`
}

// Summarize computes pooled, per-fold and bootstrap metrics. Bootstrap is
// skipped when reps is zero or there are fewer than two records.
func Summarize(yTrue, yPred []float64, folds []Score, dropped, reps int, seed uint64) (*Summary, error) {
	s := &Summary{N: len(yTrue), PerFold: PerFold(folds), DroppedFolds: dropped}
	if len(yTrue) == 0 {
		s.Pooled = Score{R2: math.NaN(), RMSE: math.NaN(), MAE: math.NaN()}
		return s, nil
	}
	pooled, err := Evaluate(yTrue, yPred)
	if err != nil {
		return nil, err
	}
	s.Pooled = pooled
	if reps > 0 && len(yTrue) >= 2 {
		bs, err := Bootstrap(yTrue, yPred, reps, seed)
		if err != nil {
			log.GetLoggerWithName("metrics").Warn("bootstrap unavailable", log.ErrAttrKey, err)
		} else {
			s.Bootstrap = bs
		}
	}
	return s, nil
}
