// Package config loads and validates the YAML configuration of a
// cross-validation run and converts it into the options of each stage.
package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jaredquekjz/plantguide-sub007/composite"
	"github.com/jaredquekjz/plantguide-sub007/cv"
	"github.com/jaredquekjz/plantguide-sub007/formula"
	"github.com/jaredquekjz/plantguide-sub007/importance"
	"github.com/jaredquekjz/plantguide-sub007/pkg/errors"
	"github.com/jaredquekjz/plantguide-sub007/preprocessing"
	"github.com/jaredquekjz/plantguide-sub007/selection"
)

// Config is the complete run configuration.
type Config struct {
	TargetAxis  string `yaml:"target_axis"`
	Seed        uint64 `yaml:"seed"`
	Repeats     int    `yaml:"repeats"`
	Folds       int    `yaml:"folds"`
	Stratify    bool   `yaml:"stratify"`
	Standardize bool   `yaml:"standardize"`

	Winsorize bool    `yaml:"winsorize"`
	WinsorP   float64 `yaml:"winsor_p"`

	// CVStrategy is stratified, leave-one-group-out (alias logo) or
	// spatial-block (alias spatial). Validate rewrites aliases.
	CVStrategy  string  `yaml:"cv_strategy"`
	BlockSizeKm float64 `yaml:"block_size_km"`
	GroupFolds  int     `yaml:"group_folds"`
	BlockFolds  int     `yaml:"block_folds"`

	CorrelationThreshold float64 `yaml:"correlation_threshold"`
	BootstrapReps        int     `yaml:"bootstrap_reps"`

	IDColumn        string `yaml:"id_column"`
	GroupColumn     string `yaml:"group_column"`
	LatColumn       string `yaml:"lat_column"`
	LonColumn       string `yaml:"lon_column"`
	ClimateColumn   string `yaml:"climate_column"`
	ClimateOverride bool   `yaml:"climate_override"`

	LogColumns []string         `yaml:"log_columns"`
	Composites []composite.Spec `yaml:"composites"`

	// Axes overrides the built-in environment terms per axis letter.
	Axes               map[string]AxisConfig `yaml:"axes,omitempty"`
	ExtraTerms         []string              `yaml:"extra_terms,omitempty"`
	Interactions       []formula.Interaction `yaml:"interactions,omitempty"`
	NonlinearEnv       *bool                 `yaml:"nonlinear_env,omitempty"`
	SmoothInteractions bool                  `yaml:"smooth_interactions"`
	PhyloColumn        string                `yaml:"phylo_column,omitempty"`
	// RandomEffect adds a random intercept per group_column level.
	RandomEffect bool `yaml:"random_effect"`

	MinTrainRows int           `yaml:"min_train_rows"`
	MinTestRows  int           `yaml:"min_test_rows"`
	FitTimeout   time.Duration `yaml:"fit_timeout"`
	Workers      int           `yaml:"workers"`

	Importance ImportanceConfig `yaml:"importance"`

	MinRecordsColumn    string  `yaml:"min_records_column,omitempty"`
	MinRecordsThreshold float64 `yaml:"min_records_threshold,omitempty"`
}

// AxisConfig replaces the environment terms of one axis.
type AxisConfig struct {
	Env          []string              `yaml:"env"`
	Interactions []formula.Interaction `yaml:"interactions,omitempty"`
	NonlinearEnv *bool                 `yaml:"nonlinear_env,omitempty"`
}

// ImportanceConfig configures the predictor ranking.
type ImportanceConfig struct {
	Trees    int      `yaml:"trees"`
	Rounds   int      `yaml:"rounds"`
	Combine  string   `yaml:"combine"`
	OfferAll bool     `yaml:"offer_all"`
	Exclude  []string `yaml:"exclude"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	imp := importance.DefaultOptions()
	return &Config{
		TargetAxis:           "T",
		Seed:                 42,
		Repeats:              1,
		Folds:                10,
		Stratify:             true,
		Standardize:          true,
		WinsorP:              preprocessing.DefaultWinsorP,
		CVStrategy:           cv.SchemeStratified,
		BlockSizeKm:          cv.DefaultBlockSizeKm,
		CorrelationThreshold: imp.CorrelationThreshold,
		BootstrapReps:        1000,
		IDColumn:             "wfo_accepted_name",
		GroupColumn:          "Family",
		LatColumn:            "lat",
		LonColumn:            "lon",
		LogColumns:           []string{"LA", "H", "SM", "SSD"},
		Composites: []composite.Spec{
			{
				Name:      "LES",
				Inputs:    []composite.Input{{Column: "LMA", Negate: true}, {Column: "Nmass"}},
				Reference: "Nmass",
			},
			{
				Name:      "SIZE",
				Inputs:    []composite.Input{{Column: "H"}, {Column: "SM"}},
				Reference: "H",
			},
		},
		SmoothInteractions: true,
		MinTrainRows:       20,
		MinTestRows:        5,
		FitTimeout:         selection.DefaultFitTimeout,
		Workers:            1,
		Importance: ImportanceConfig{
			Trees:   imp.Trees,
			Rounds:  imp.Rounds,
			Combine: imp.Combine,
			Exclude: imp.Exclude,
		},
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if _, err := formula.DefaultAxis(c.TargetAxis); err != nil {
		return err
	}
	if c.Repeats < 1 {
		return errors.NewValidationError("repeats", "must be at least 1", c.Repeats)
	}
	if c.Winsorize && (c.WinsorP <= 0 || c.WinsorP >= 0.5) {
		return errors.NewValidationError("winsor_p", "must be in (0, 0.5)", c.WinsorP)
	}
	if c.CorrelationThreshold <= 0 || c.CorrelationThreshold > 1 {
		return errors.NewValidationError("correlation_threshold", "must be in (0, 1]", c.CorrelationThreshold)
	}
	if c.BootstrapReps < 0 {
		return errors.NewValidationError("bootstrap_reps", "must not be negative", c.BootstrapReps)
	}
	if c.MinTrainRows < 1 || c.MinTestRows < 1 {
		return errors.NewValidationError("min_train_rows", "minimum fold sizes must be positive", [2]int{c.MinTrainRows, c.MinTestRows})
	}
	if c.Workers < 1 {
		return errors.NewValidationError("workers", "must be at least 1", c.Workers)
	}
	if c.FitTimeout <= 0 {
		return errors.NewValidationError("fit_timeout", "must be positive", c.FitTimeout)
	}

	scheme, ok := cv.ParseScheme(c.CVStrategy)
	if !ok {
		return errors.NewValidationError("cv_strategy", strategyReason, c.CVStrategy)
	}
	c.CVStrategy = scheme
	switch scheme {
	case cv.SchemeStratified:
		if c.Folds < 2 {
			return errors.NewValidationError("folds", "must be at least 2", c.Folds)
		}
	case cv.SchemeGroup:
		if c.GroupColumn == "" {
			return errors.NewValidationError("group_column", "required for leave-one-group-out", c.GroupColumn)
		}
		if c.GroupFolds == 1 || c.GroupFolds < 0 {
			return errors.NewValidationError("group_folds", "must be 0 or at least 2", c.GroupFolds)
		}
	case cv.SchemeSpatial:
		if c.LatColumn == "" || c.LonColumn == "" {
			return errors.NewValidationError("lat_column", "spatial folds need lat_column and lon_column", c.LatColumn)
		}
		if c.BlockSizeKm <= 0 {
			return errors.NewValidationError("block_size_km", "must be positive", c.BlockSizeKm)
		}
		if c.BlockFolds == 1 || c.BlockFolds < 0 {
			return errors.NewValidationError("block_folds", "must be 0 or at least 2", c.BlockFolds)
		}
		if c.ClimateOverride && c.ClimateColumn == "" {
			return errors.NewValidationError("climate_column", "required by climate_override", c.ClimateColumn)
		}
	}

	if c.RandomEffect && c.GroupColumn == "" {
		return errors.NewValidationError("group_column", "required by random_effect", c.GroupColumn)
	}
	if _, err := composite.NewBuilder(c.Composites); err != nil {
		return err
	}
	if _, err := importance.NewRanker(c.ImportanceOptions()); err != nil {
		return err
	}
	return nil
}

// LoadFromFile reads a YAML file on top of DefaultConfig.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}
	return cfg, nil
}

// SaveToFile writes the configuration as YAML, creating parent directories.
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to write config file")
	}
	return nil
}

// Merge copies the non-zero values of other into c. Booleans only switch
// on; use flags to switch a default off.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}
	mergeString(&c.TargetAxis, other.TargetAxis)
	if other.Seed != 0 {
		c.Seed = other.Seed
	}
	mergeInt(&c.Repeats, other.Repeats)
	mergeInt(&c.Folds, other.Folds)
	c.Stratify = c.Stratify || other.Stratify
	c.Standardize = c.Standardize || other.Standardize
	c.Winsorize = c.Winsorize || other.Winsorize
	mergeFloat(&c.WinsorP, other.WinsorP)

	mergeString(&c.CVStrategy, other.CVStrategy)
	mergeFloat(&c.BlockSizeKm, other.BlockSizeKm)
	mergeInt(&c.GroupFolds, other.GroupFolds)
	mergeInt(&c.BlockFolds, other.BlockFolds)
	mergeFloat(&c.CorrelationThreshold, other.CorrelationThreshold)
	mergeInt(&c.BootstrapReps, other.BootstrapReps)

	mergeString(&c.IDColumn, other.IDColumn)
	mergeString(&c.GroupColumn, other.GroupColumn)
	mergeString(&c.LatColumn, other.LatColumn)
	mergeString(&c.LonColumn, other.LonColumn)
	mergeString(&c.ClimateColumn, other.ClimateColumn)
	c.ClimateOverride = c.ClimateOverride || other.ClimateOverride

	if len(other.LogColumns) > 0 {
		c.LogColumns = other.LogColumns
	}
	if len(other.Composites) > 0 {
		c.Composites = other.Composites
	}
	for axis, ac := range other.Axes {
		if c.Axes == nil {
			c.Axes = make(map[string]AxisConfig)
		}
		c.Axes[axis] = ac
	}
	if len(other.ExtraTerms) > 0 {
		c.ExtraTerms = other.ExtraTerms
	}
	if len(other.Interactions) > 0 {
		c.Interactions = other.Interactions
	}
	if other.NonlinearEnv != nil {
		c.NonlinearEnv = other.NonlinearEnv
	}
	c.SmoothInteractions = c.SmoothInteractions || other.SmoothInteractions
	mergeString(&c.PhyloColumn, other.PhyloColumn)
	c.RandomEffect = c.RandomEffect || other.RandomEffect

	mergeInt(&c.MinTrainRows, other.MinTrainRows)
	mergeInt(&c.MinTestRows, other.MinTestRows)
	if other.FitTimeout != 0 {
		c.FitTimeout = other.FitTimeout
	}
	mergeInt(&c.Workers, other.Workers)

	mergeInt(&c.Importance.Trees, other.Importance.Trees)
	mergeInt(&c.Importance.Rounds, other.Importance.Rounds)
	mergeString(&c.Importance.Combine, other.Importance.Combine)
	c.Importance.OfferAll = c.Importance.OfferAll || other.Importance.OfferAll
	if len(other.Importance.Exclude) > 0 {
		c.Importance.Exclude = other.Importance.Exclude
	}

	mergeString(&c.MinRecordsColumn, other.MinRecordsColumn)
	mergeFloat(&c.MinRecordsThreshold, other.MinRecordsThreshold)
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func mergeInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func mergeFloat(dst *float64, v float64) {
	if v != 0 {
		*dst = v
	}
}
