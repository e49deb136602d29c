package config

import (
	"context"

	"github.com/jaredquekjz/plantguide-sub007/cv"
	"github.com/jaredquekjz/plantguide-sub007/dataset"
	"github.com/jaredquekjz/plantguide-sub007/formula"
	"github.com/jaredquekjz/plantguide-sub007/importance"
	"github.com/jaredquekjz/plantguide-sub007/pkg/errors"
	"github.com/jaredquekjz/plantguide-sub007/pkg/log"
)

// AxisSpec returns the built-in terms of the target axis with the
// configured overrides applied.
func (c *Config) AxisSpec() (formula.AxisSpec, error) {
	spec, err := formula.DefaultAxis(c.TargetAxis)
	if err != nil {
		return formula.AxisSpec{}, err
	}
	if ac, ok := c.Axes[c.TargetAxis]; ok {
		if len(ac.Env) > 0 {
			spec.Env = ac.Env
		}
		if len(ac.Interactions) > 0 {
			spec.Interactions = ac.Interactions
		}
		if ac.NonlinearEnv != nil {
			spec.NonlinearEnv = *ac.NonlinearEnv
		}
	}
	if len(c.ExtraTerms) > 0 {
		spec.Extra = c.ExtraTerms
	}
	if len(c.Interactions) > 0 {
		spec.Interactions = c.Interactions
	}
	if c.NonlinearEnv != nil {
		spec.NonlinearEnv = *c.NonlinearEnv
	}
	spec.SmoothInteractions = c.SmoothInteractions
	spec.Phylo = c.PhyloColumn
	if c.RandomEffect {
		spec.RandomEffect = c.GroupColumn
	}
	return spec, nil
}

const strategyReason = "must be stratified, leave-one-group-out or spatial-block"

// Generator returns the fold generator for the configured strategy.
func (c *Config) Generator(target string) (cv.Generator, error) {
	scheme, _ := cv.ParseScheme(c.CVStrategy)
	switch scheme {
	case cv.SchemeStratified:
		return cv.Stratified{K: c.Folds, Target: target, Stratify: c.Stratify}, nil
	case cv.SchemeGroup:
		return cv.Group{Column: c.GroupColumn, GroupFolds: c.GroupFolds}, nil
	case cv.SchemeSpatial:
		return cv.Spatial{
			Group:           c.GroupColumn,
			Lat:             c.LatColumn,
			Lon:             c.LonColumn,
			BlockSizeKm:     c.BlockSizeKm,
			BlockFolds:      c.BlockFolds,
			Climate:         c.ClimateColumn,
			ClimateOverride: c.ClimateOverride,
		}, nil
	default:
		return nil, errors.NewValidationError("cv_strategy", strategyReason, c.CVStrategy)
	}
}

// CVOptions returns the orchestrator options.
func (c *Config) CVOptions() cv.Options {
	return cv.Options{
		Repeats:       c.Repeats,
		Seed:          c.Seed,
		Workers:       c.Workers,
		MinTrainRows:  c.MinTrainRows,
		MinTestRows:   c.MinTestRows,
		FitTimeout:    c.FitTimeout,
		LogColumns:    c.LogColumns,
		Winsorize:     c.Winsorize,
		WinsorP:       c.WinsorP,
		Standardize:   c.Standardize,
		BootstrapReps: c.BootstrapReps,
	}
}

// ImportanceOptions returns the ranker options. Coordinates and the
// record count column describe sampling, not the niche, and are never
// ranked.
func (c *Config) ImportanceOptions() importance.Options {
	exclude := append([]string(nil), c.Importance.Exclude...)
	for _, col := range []string{c.LatColumn, c.LonColumn, c.MinRecordsColumn} {
		if col != "" {
			exclude = append(exclude, col)
		}
	}
	return importance.Options{
		Exclude:              exclude,
		CorrelationThreshold: c.CorrelationThreshold,
		Combine:              c.Importance.Combine,
		OfferAll:             c.Importance.OfferAll,
		Trees:                c.Importance.Trees,
		Rounds:               c.Importance.Rounds,
		Seed:                 c.Seed,
	}
}

// RankedAxisSpec ranks the predictors of the configured axis on t and
// removes the environment columns that lost their correlation cluster,
// together with their interactions. With importance.offer_all every
// column is kept and the spec is returned unchanged.
func (c *Config) RankedAxisSpec(ctx context.Context, t *dataset.Table) (formula.AxisSpec, *importance.Result, error) {
	spec, err := c.AxisSpec()
	if err != nil {
		return formula.AxisSpec{}, nil, err
	}
	ranker, err := importance.NewRanker(c.ImportanceOptions())
	if err != nil {
		return formula.AxisSpec{}, nil, err
	}
	res, err := ranker.Rank(ctx, t, spec.Target)
	if err != nil {
		return formula.AxisSpec{}, nil, err
	}
	pruned, removed := spec.WithoutEnv(res.Pruned())
	if len(removed) > 0 {
		log.GetLoggerWithName("config").Info("correlated environment columns pruned",
			log.TargetKey, spec.Axis,
			log.DroppedKey, removed,
			"selected", res.Selected(),
		)
	}
	return pruned, res, nil
}

// LoadOptions returns the table reader options. Group and climate columns
// are always read as labels.
func (c *Config) LoadOptions() dataset.LoadOptions {
	var labels []string
	for _, col := range []string{c.GroupColumn, c.ClimateColumn} {
		if col != "" {
			labels = append(labels, col)
		}
	}
	return dataset.LoadOptions{IDColumn: c.IDColumn, LabelColumns: labels}
}

// LoadTable reads path and applies the minimum-evidence filter.
func (c *Config) LoadTable(path string) (*dataset.Table, error) {
	t, err := dataset.Load(path, c.LoadOptions())
	if err != nil {
		return nil, err
	}
	if c.MinRecordsColumn == "" {
		return t, nil
	}
	filtered, dropped, err := t.FilterMinRecords(c.MinRecordsColumn, c.MinRecordsThreshold)
	if err != nil {
		return nil, err
	}
	log.GetLoggerWithName("config").Info("minimum-evidence filter applied",
		log.ColumnKey, c.MinRecordsColumn,
		"threshold", c.MinRecordsThreshold,
		log.DroppedKey, dropped,
	)
	return filtered, nil
}
