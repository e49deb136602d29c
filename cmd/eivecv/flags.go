package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/jaredquekjz/plantguide-sub007/config"
	"github.com/jaredquekjz/plantguide-sub007/formula"
)

// overrides holds flag values that replace config keys when the flag is
// set on the command line.
type overrides struct {
	axis            string
	seed            uint64
	repeats         int
	folds           int
	strategy        string
	blockSizeKm     float64
	groupFolds      int
	blockFolds      int
	groupColumn     string
	idColumn        string
	workers         int
	bootstrapReps   int
	fitTimeout      time.Duration
	stratify        bool
	standardize     bool
	winsorize       bool
	climateOverride bool
	randomEffect    bool
}

func (o *overrides) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&o.axis, "axis", "", "target axis (L, T, M, R, N or all)")
	f.Uint64Var(&o.seed, "seed", 0, "random seed")
	f.IntVar(&o.repeats, "repeats", 0, "number of repeats")
	f.IntVar(&o.folds, "folds", 0, "number of stratified folds")
	f.StringVar(&o.strategy, "cv-strategy", "", "fold strategy (stratified, leave-one-group-out, spatial-block)")
	f.Float64Var(&o.blockSizeKm, "block-size-km", 0, "spatial block edge in km")
	f.IntVar(&o.groupFolds, "group-folds", 0, "deal groups into this many folds (0 = one per group)")
	f.IntVar(&o.blockFolds, "block-folds", 0, "deal spatial blocks into this many folds (0 = one per block)")
	f.StringVar(&o.groupColumn, "group-column", "", "group label column")
	f.StringVar(&o.idColumn, "id-column", "", "row id column")
	f.IntVar(&o.workers, "workers", 0, "concurrent folds")
	f.IntVar(&o.bootstrapReps, "bootstrap-reps", 0, "bootstrap resamples (0 disables)")
	f.DurationVar(&o.fitTimeout, "fit-timeout", 0, "per-candidate fit budget")
	f.BoolVar(&o.stratify, "stratify", true, "stratify folds by target deciles")
	f.BoolVar(&o.standardize, "standardize", true, "z-score predictors per fold")
	f.BoolVar(&o.winsorize, "winsorize", false, "clip predictors at fold quantiles")
	f.BoolVar(&o.climateOverride, "climate-override", false, "place unmapped groups by climate class")
	f.BoolVar(&o.randomEffect, "random-effect", false, "add the group random-intercept candidate")
}

func (o *overrides) apply(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("axis") && o.axis != "all" {
		cfg.TargetAxis = o.axis
	}
	if f.Changed("seed") {
		cfg.Seed = o.seed
	}
	if f.Changed("repeats") {
		cfg.Repeats = o.repeats
	}
	if f.Changed("folds") {
		cfg.Folds = o.folds
	}
	if f.Changed("cv-strategy") {
		cfg.CVStrategy = o.strategy
	}
	if f.Changed("block-size-km") {
		cfg.BlockSizeKm = o.blockSizeKm
	}
	if f.Changed("group-folds") {
		cfg.GroupFolds = o.groupFolds
	}
	if f.Changed("block-folds") {
		cfg.BlockFolds = o.blockFolds
	}
	if f.Changed("group-column") {
		cfg.GroupColumn = o.groupColumn
	}
	if f.Changed("id-column") {
		cfg.IDColumn = o.idColumn
	}
	if f.Changed("workers") {
		cfg.Workers = o.workers
	}
	if f.Changed("bootstrap-reps") {
		cfg.BootstrapReps = o.bootstrapReps
	}
	if f.Changed("fit-timeout") {
		cfg.FitTimeout = o.fitTimeout
	}
	if f.Changed("stratify") {
		cfg.Stratify = o.stratify
	}
	if f.Changed("standardize") {
		cfg.Standardize = o.standardize
	}
	if f.Changed("winsorize") {
		cfg.Winsorize = o.winsorize
	}
	if f.Changed("climate-override") {
		cfg.ClimateOverride = o.climateOverride
	}
	if f.Changed("random-effect") {
		cfg.RandomEffect = o.randomEffect
	}
}

// axes returns the axes to process: every axis for --axis all, otherwise
// the configured one.
func (o *overrides) axes(cfg *config.Config) []string {
	if o.axis == "all" {
		return formula.Axes
	}
	return []string{cfg.TargetAxis}
}
