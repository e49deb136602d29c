package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newFoldsCmd(g *globalFlags) *cobra.Command {
	ov := &overrides{}
	cmd := &cobra.Command{
		Use:   "folds",
		Short: "Print fold sizes and fingerprints without fitting",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, g, ov)
			if err != nil {
				return err
			}
			tbl, err := cfg.LoadTable(g.dataPath)
			if err != nil {
				return err
			}
			plan, gen, _, err := buildPlan(cmd.Context(), cfg, tbl)
			if err != nil {
				return err
			}
			rows, err := tbl.CompleteCases(append(plan.RequiredColumns(), gen.Columns()...)...)
			if err != nil {
				return err
			}
			data := tbl.Subset(rows)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "axis\tscheme\trepeat\tfold\tn_test\tfingerprint\n")
			for r := 1; r <= cfg.Repeats; r++ {
				a, err := gen.Assign(data, r, cfg.Seed)
				if err != nil {
					return err
				}
				sizes := a.Sizes()
				for f := 1; f <= a.K; f++ {
					fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%016x\n", plan.Axis, gen.Scheme(), r, f, sizes[f], a.Fingerprint())
				}
			}
			return w.Flush()
		},
	}
	ov.register(cmd)
	return cmd
}
