// Package eivecv cross-validates models that predict EIVE indicator values
// (light, temperature, moisture, reaction, nitrogen) from plant functional
// traits and climate or soil summaries.
//
// A run fixes a ladder of candidate formulas for one axis, splits the
// species into folds, and inside every fold:
//
//   - log-transforms, optionally winsorizes and standardizes the predictors
//     with parameters learned on the training rows only
//   - derives the LES and SIZE trait composites from a training-only PCA
//   - fits every candidate and keeps the one with the lowest AICc
//   - predicts the held-out rows with the selected model
//
// Out-of-sample predictions are pooled across folds and summarised as
// pooled, per-fold and bootstrap R², RMSE and MAE.
//
// # Quick Start
//
//	eivecv run --data traits.csv --axis T --folds 10 --out artifacts
//
// or from Go:
//
//	cfg := config.DefaultConfig()
//	tbl, err := cfg.LoadTable("traits.csv")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	spec, _ := cfg.AxisSpec()
//	plan, err := formula.NewBuilder(cfg.Composites).Build(spec, tbl)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	gen, _ := cfg.Generator(plan.Target)
//	o, err := cv.New(plan, gen, cfg.CVOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	res, err := o.Run(ctx, tbl)
//
// # Packages
//
//   - dataset: column tables read from CSV, gzip/zstd CSV or xlsx
//   - preprocessing: fold-local log, winsorizing and scaling
//   - composite: PCA trait composites with a fixed sign convention
//   - formula: candidate ladders and design matrices
//   - linear, gam: least squares and penalized additive engines
//   - selection: candidate fitting and AICc ranking
//   - cv: fold generators and the orchestrator
//   - metrics: scores, per-fold aggregation and the bootstrap
//   - importance: forest and boosted predictor ranking
//   - sklearn/tree, sklearn/ensemble, sklearn/lightgbm: regression trees,
//     bagged forest and boosted trees behind importance
//   - config, output, cmd/eivecv: configuration, artifacts and CLI
//   - pkg/log, pkg/errors: logging and error taxonomy
package eivecv
