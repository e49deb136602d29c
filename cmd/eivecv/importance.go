package main

import (
	"github.com/spf13/cobra"

	"github.com/jaredquekjz/plantguide-sub007/formula"
	"github.com/jaredquekjz/plantguide-sub007/importance"
	"github.com/jaredquekjz/plantguide-sub007/output"
	"github.com/jaredquekjz/plantguide-sub007/pkg/log"
)

func newImportanceCmd(g *globalFlags) *cobra.Command {
	ov := &overrides{}
	cmd := &cobra.Command{
		Use:   "importance",
		Short: "Rank candidate predictors with forest and boosted ensembles",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, g, ov)
			if err != nil {
				return err
			}
			tbl, err := cfg.LoadTable(g.dataPath)
			if err != nil {
				return err
			}
			ranker, err := importance.NewRanker(cfg.ImportanceOptions())
			if err != nil {
				return err
			}
			logger := log.GetLoggerWithName("eivecv")
			for _, axis := range ov.axes(cfg) {
				res, err := ranker.Rank(cmd.Context(), tbl, formula.TargetColumn(axis))
				if err != nil {
					return err
				}
				if err := output.WriteImportanceFiles(g.outDir, res); err != nil {
					return err
				}
				logger.Info("importance ranked",
					log.TargetKey, axis,
					log.SamplesKey, res.N,
					"selected", res.Selected(),
				)
			}
			return nil
		},
	}
	ov.register(cmd)
	return cmd
}
