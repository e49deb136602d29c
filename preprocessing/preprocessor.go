// Package preprocessing learns per-column transforms from a training
// partition and applies them unchanged to any other partition.
//
// The transforms run in a fixed order: log10 with a positivity offset,
// winsorization to training quantiles, then z-scoring with training
// moments. Nothing is cached between calls, so every fold gets its own
// Params.
package preprocessing

import (
	"context"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/jaredquekjz/plantguide-sub007/dataset"
	"github.com/jaredquekjz/plantguide-sub007/pkg/errors"
	"github.com/jaredquekjz/plantguide-sub007/pkg/log"
)

// DefaultWinsorP is the default tail probability clipped on each side.
const DefaultWinsorP = 0.005

// Options selects the columns and transforms.
type Options struct {
	// Columns are the predictor columns to winsorize and standardize.
	Columns []string
	// LogColumns are log10-transformed first. A log column that is not
	// in Columns is only logged. Negative values are a DataError.
	LogColumns []string

	Winsorize   bool
	WinsorP     float64
	Standardize bool
}

// ColumnParams holds everything learned for one column.
type ColumnParams struct {
	Column string

	Logged bool
	Offset float64

	Winsorized bool
	Lower      float64
	Upper      float64

	Standardized bool
	Mean         float64
	SD           float64
}

// Apply transforms a single value.
func (c ColumnParams) Apply(v float64) float64 {
	if math.IsNaN(v) {
		return v
	}
	if c.Logged {
		v = math.Log10(v + c.Offset)
	}
	if c.Winsorized {
		if v < c.Lower {
			v = c.Lower
		} else if v > c.Upper {
			v = c.Upper
		}
	}
	if c.Standardized {
		v = (v - c.Mean) / c.SD
	}
	return v
}

// Params is the immutable parameter bundle for one training partition.
type Params struct {
	columns []ColumnParams
	index   map[string]int
}

// Columns returns a copy of the per-column parameters in fit order.
func (p *Params) Columns() []ColumnParams {
	out := make([]ColumnParams, len(p.columns))
	copy(out, p.columns)
	return out
}

// Column returns the parameters for one column.
func (p *Params) Column(name string) (ColumnParams, bool) {
	i, ok := p.index[name]
	if !ok {
		return ColumnParams{}, false
	}
	return p.columns[i], true
}

// Apply returns a copy of t with every fitted column transformed. Other
// columns are copied unchanged. Values outside the winsor bounds are
// clipped, never dropped.
func (p *Params) Apply(t *dataset.Table) (*dataset.Table, error) {
	out := t.Clone()
	for _, cp := range p.columns {
		src, ok := t.Numeric(cp.Column)
		if !ok {
			return nil, errors.NewDataError("Params.Apply", cp.Column, "numeric column not found")
		}
		dst := make([]float64, len(src))
		for i, v := range src {
			if cp.Logged && v < 0 {
				return nil, errors.NewDataError("Params.Apply", cp.Column, "negative value in a log-transformed column")
			}
			dst[i] = cp.Apply(v)
		}
		if err := out.SetNumeric(cp.Column, dst); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Preprocessor fits Params from a training table.
type Preprocessor struct {
	opts   Options
	logger log.Logger
}

// NewPreprocessor validates opts and returns a Preprocessor.
func NewPreprocessor(opts Options) (*Preprocessor, error) {
	if opts.WinsorP == 0 {
		opts.WinsorP = DefaultWinsorP
	}
	if opts.Winsorize && (opts.WinsorP <= 0 || opts.WinsorP >= 0.5) {
		return nil, errors.NewValidationError("winsor_p", "must be in (0, 0.5)", opts.WinsorP)
	}
	return &Preprocessor{
		opts:   opts,
		logger: log.GetLoggerWithName("preprocessing"),
	}, nil
}

// WithLogger replaces the logger.
func (p *Preprocessor) WithLogger(l log.Logger) *Preprocessor {
	p.logger = l
	return p
}

// Fit learns Params from train. Only train is read, so the result cannot
// depend on any other partition.
func (p *Preprocessor) Fit(train *dataset.Table) (*Params, error) {
	if train.Len() == 0 {
		return nil, errors.NewModelError("Preprocessor.Fit", "empty training partition", errors.ErrEmptyData)
	}

	names, logged, processed := p.columnPlan()
	params := &Params{
		columns: make([]ColumnParams, len(names)),
		index:   make(map[string]int, len(names)),
	}

	work := make([][]float64, len(names))
	for j, name := range names {
		src, ok := train.Numeric(name)
		if !ok {
			return nil, errors.NewDataError("Preprocessor.Fit", name, "numeric column not found")
		}
		cp := ColumnParams{Column: name}
		col := make([]float64, len(src))
		copy(col, src)

		if logged[name] {
			for _, v := range col {
				if v < 0 {
					return nil, errors.NewDataError("Preprocessor.Fit", name, "negative value in a log-transformed column")
				}
			}
			cp.Logged = true
			cp.Offset = LogOffset(col)
			for i, v := range col {
				if !math.IsNaN(v) {
					col[i] = math.Log10(v + cp.Offset)
				}
			}
		}

		if p.opts.Winsorize && processed[name] {
			bounds := Quantiles(col, p.opts.WinsorP, 1-p.opts.WinsorP)
			if isFinite(bounds[0]) && isFinite(bounds[1]) {
				cp.Winsorized = true
				cp.Lower, cp.Upper = bounds[0], bounds[1]
				for i, v := range col {
					if v < cp.Lower {
						col[i] = cp.Lower
					} else if v > cp.Upper {
						col[i] = cp.Upper
					}
				}
			}
		}

		params.columns[j] = cp
		params.index[name] = j
		work[j] = col
	}

	if p.opts.Standardize {
		if err := p.fitScale(params, work, processed); err != nil {
			return nil, err
		}
	}

	if p.logger.Enabled(context.Background(), log.LevelDebug) {
		for _, cp := range params.columns {
			p.logger.Debug("column parameters",
				log.ColumnKey, cp.Column,
				"offset", cp.Offset,
				"lower", cp.Lower,
				"upper", cp.Upper,
				"mean", cp.Mean,
				"sd", cp.SD,
			)
		}
	}
	return params, nil
}

// fitScale runs the StandardScaler over the columns after log and winsor.
func (p *Preprocessor) fitScale(params *Params, work [][]float64, processed map[string]bool) error {
	var idx []int
	for j, cp := range params.columns {
		if processed[cp.Column] {
			idx = append(idx, j)
		}
	}
	if len(idx) == 0 {
		return nil
	}
	n := len(work[idx[0]])
	X := mat.NewDense(n, len(idx), nil)
	for k, j := range idx {
		X.SetCol(k, work[j])
	}

	scaler := NewStandardScaler()
	if err := scaler.Fit(X); err != nil {
		return err
	}
	for k, j := range idx {
		params.columns[j].Standardized = true
		params.columns[j].Mean = scaler.Mean[k]
		params.columns[j].SD = scaler.Scale[k]
	}
	return nil
}

// columnPlan returns the ordered union of log and processed columns.
func (p *Preprocessor) columnPlan() ([]string, map[string]bool, map[string]bool) {
	logged := make(map[string]bool, len(p.opts.LogColumns))
	processed := make(map[string]bool, len(p.opts.Columns))
	var names []string
	seen := make(map[string]bool)
	for _, c := range p.opts.LogColumns {
		logged[c] = true
		if !seen[c] {
			seen[c] = true
			names = append(names, c)
		}
	}
	for _, c := range p.opts.Columns {
		processed[c] = true
		if !seen[c] {
			seen[c] = true
			names = append(names, c)
		}
	}
	return names, logged, processed
}
