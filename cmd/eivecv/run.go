package main

import (
	"context"
	"sort"

	"github.com/spf13/cobra"

	"github.com/jaredquekjz/plantguide-sub007/config"
	"github.com/jaredquekjz/plantguide-sub007/cv"
	"github.com/jaredquekjz/plantguide-sub007/dataset"
	"github.com/jaredquekjz/plantguide-sub007/formula"
	"github.com/jaredquekjz/plantguide-sub007/importance"
	"github.com/jaredquekjz/plantguide-sub007/output"
	"github.com/jaredquekjz/plantguide-sub007/pkg/errors"
	"github.com/jaredquekjz/plantguide-sub007/pkg/log"
)

func newRunCmd(g *globalFlags) *cobra.Command {
	ov := &overrides{}
	var compress bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Cross-validate the candidate ladder for one or all axes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, g, ov)
			if err != nil {
				return err
			}
			tbl, err := cfg.LoadTable(g.dataPath)
			if err != nil {
				return err
			}
			coll := cv.NewCollectors()
			for _, axis := range ov.axes(cfg) {
				axisCfg := *cfg
				axisCfg.TargetAxis = axis
				if err := runAxis(cmd.Context(), &axisCfg, tbl, coll, output.RunArtifacts(g.outDir, axis, compress)); err != nil {
					return err
				}
			}
			logCollectors(coll)
			return nil
		},
	}
	ov.register(cmd)
	cmd.Flags().BoolVar(&compress, "compress", false, "gzip the prediction table")
	return cmd
}

// buildPlan ranks the axis predictors once and builds the candidate
// ladder from the environment columns that survived pruning.
func buildPlan(ctx context.Context, cfg *config.Config, tbl *dataset.Table) (*formula.Plan, cv.Generator, *importance.Result, error) {
	spec, rank, err := cfg.RankedAxisSpec(ctx, tbl)
	if err != nil {
		return nil, nil, nil, err
	}
	plan, err := formula.NewBuilder(cfg.Composites).Build(spec, tbl)
	if err != nil {
		return nil, nil, nil, err
	}
	gen, err := cfg.Generator(plan.Target)
	if err != nil {
		return nil, nil, nil, err
	}
	return plan, gen, rank, nil
}

// runAxis ranks, cross-validates and writes the artifacts of one axis. A cancelled run still
// writes what it has before returning the context error.
func runAxis(ctx context.Context, cfg *config.Config, tbl *dataset.Table, coll *cv.Collectors, a output.Artifacts) error {
	plan, gen, rank, err := buildPlan(ctx, cfg, tbl)
	if err != nil {
		return err
	}
	if err := output.WriteImportanceFiles(a.Dir, rank); err != nil {
		return errors.Wrap(err, "write importance")
	}
	o, err := cv.New(plan, gen, cfg.CVOptions())
	if err != nil {
		return err
	}
	res, runErr := o.WithCollectors(coll).Run(ctx, tbl)
	if res == nil {
		return runErr
	}
	if err := output.WriteRun(a, res, cfg); err != nil {
		return errors.Wrap(err, "write artifacts")
	}
	return runErr
}

func logCollectors(coll *cv.Collectors) {
	snap, err := coll.Snapshot()
	logger := log.GetLoggerWithName("eivecv")
	if err != nil {
		logger.Warn("collectors unavailable", log.ErrAttrKey, err)
		return
	}
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		logger.Info("run counter", "metric", k, "value", snap[k])
	}
}
