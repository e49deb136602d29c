package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaredquekjz/plantguide-sub007/cv"
	"github.com/jaredquekjz/plantguide-sub007/formula"
	"github.com/jaredquekjz/plantguide-sub007/pkg/errors"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "T", cfg.TargetAxis)
	assert.Equal(t, uint64(42), cfg.Seed)
	assert.Equal(t, 10, cfg.Folds)
	assert.True(t, cfg.Stratify)
	assert.True(t, cfg.Standardize)
	assert.False(t, cfg.Winsorize)
	assert.Equal(t, cv.SchemeStratified, cfg.CVStrategy)
	assert.Equal(t, 0.8, cfg.CorrelationThreshold)
	assert.Equal(t, 1000, cfg.BootstrapReps)
	assert.Equal(t, []string{"LA", "H", "SM", "SSD"}, cfg.LogColumns)
	require.Len(t, cfg.Composites, 2)
	assert.Equal(t, "Nmass", cfg.Composites[0].Reference)
	assert.True(t, cfg.Composites[0].Inputs[0].Negate)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		param  string
	}{
		{"bad axis", func(c *Config) { c.TargetAxis = "X" }, "target_axis"},
		{"zero repeats", func(c *Config) { c.Repeats = 0 }, "repeats"},
		{"winsor p too large", func(c *Config) { c.Winsorize = true; c.WinsorP = 0.5 }, "winsor_p"},
		{"correlation threshold", func(c *Config) { c.CorrelationThreshold = 1.2 }, "correlation_threshold"},
		{"negative bootstrap", func(c *Config) { c.BootstrapReps = -1 }, "bootstrap_reps"},
		{"one fold", func(c *Config) { c.Folds = 1 }, "folds"},
		{"unknown strategy", func(c *Config) { c.CVStrategy = "random" }, "cv_strategy"},
		{"leave-one-group-out without groups", func(c *Config) { c.CVStrategy = "leave-one-group-out"; c.GroupColumn = "" }, "group_column"},
		{"spatial-block without coordinates", func(c *Config) { c.CVStrategy = "spatial-block"; c.LatColumn = "" }, "lat_column"},
		{"logo without groups", func(c *Config) { c.CVStrategy = cv.SchemeGroup; c.GroupColumn = "" }, "group_column"},
		{"one group fold", func(c *Config) { c.CVStrategy = cv.SchemeGroup; c.GroupFolds = 1 }, "group_folds"},
		{"spatial block size", func(c *Config) { c.CVStrategy = cv.SchemeSpatial; c.BlockSizeKm = 0 }, "block_size_km"},
		{"climate override without column", func(c *Config) {
			c.CVStrategy = cv.SchemeSpatial
			c.ClimateOverride = true
		}, "climate_column"},
		{"random effect without groups", func(c *Config) { c.RandomEffect = true; c.GroupColumn = "" }, "group_column"},
		{"combine mode", func(c *Config) { c.Importance.Combine = "median" }, "importance.combine"},
		{"zero workers", func(c *Config) { c.Workers = 0 }, "workers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			var ve *errors.ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, tt.param, ve.ParamName)
		})
	}
}

func TestConfigStrategies(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"stratified", cv.SchemeStratified},
		{"leave-one-group-out", cv.SchemeGroup},
		{"spatial-block", cv.SchemeSpatial},
		{"logo", cv.SchemeGroup},
		{"spatial", cv.SchemeSpatial},
		{"Spatial-Block", cv.SchemeSpatial},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.CVStrategy = tt.in
			require.NoError(t, cfg.Validate())
			assert.Equal(t, tt.want, cfg.CVStrategy)

			gen, err := cfg.Generator("EIVEres-T")
			require.NoError(t, err)
			assert.Equal(t, tt.want, gen.Scheme())
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.yaml")
	content := `
target_axis: M
folds: 5
cv_strategy: spatial
block_size_km: 250
climate_column: koppen
climate_override: true
fit_timeout: 45s
axes:
  M:
    env: [precip_mean, aridity]
    nonlinear_env: false
importance:
  combine: rank
  offer_all: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "M", cfg.TargetAxis)
	assert.Equal(t, 5, cfg.Folds)
	assert.Equal(t, 250.0, cfg.BlockSizeKm)
	assert.Equal(t, cv.SchemeSpatial, cfg.CVStrategy, "alias rewritten by Validate")
	assert.Equal(t, 45*time.Second, cfg.FitTimeout)
	assert.Equal(t, "rank", cfg.Importance.Combine)
	assert.True(t, cfg.Importance.OfferAll)
	// defaults survive keys the file leaves out
	assert.Equal(t, uint64(42), cfg.Seed)
	assert.Equal(t, 500, cfg.Importance.Trees)

	spec, err := cfg.AxisSpec()
	require.NoError(t, err)
	assert.Equal(t, []string{"precip_mean", "aridity"}, spec.Env)
	assert.False(t, spec.NonlinearEnv)
	assert.Equal(t, "EIVEres-M", spec.Target)

	gen, err := cfg.Generator(spec.Target)
	require.NoError(t, err)
	sp, ok := gen.(cv.Spatial)
	require.True(t, ok)
	assert.Equal(t, "koppen", sp.Climate)
	assert.True(t, sp.ClimateOverride)
	assert.Equal(t, []string{"Family", "koppen"}, cfg.LoadOptions().LabelColumns)
}

func TestLoadFromFileErrors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("folds: [1, 2"), 0o644))
	_, err = LoadFromFile(path)
	assert.Error(t, err)
}

func TestSaveToFileRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TargetAxis = "R"
	cfg.Interactions = []formula.Interaction{{A: "SSD", B: "phh2o_0_5cm_mean"}}
	cfg.FitTimeout = 90 * time.Second

	path := filepath.Join(t.TempDir(), "nested", "cfg.yaml")
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestMerge(t *testing.T) {
	cfg := DefaultConfig()
	nonlinear := true
	cfg.Merge(&Config{
		TargetAxis:   "N",
		Folds:        3,
		Winsorize:    true,
		PhyloColumn:  "p_phylo",
		NonlinearEnv: &nonlinear,
		Importance:   ImportanceConfig{Rounds: 50},
	})
	assert.Equal(t, "N", cfg.TargetAxis)
	assert.Equal(t, 3, cfg.Folds)
	assert.True(t, cfg.Winsorize)
	assert.Equal(t, 50, cfg.Importance.Rounds)
	assert.Equal(t, 500, cfg.Importance.Trees)
	assert.True(t, cfg.Stratify, "zero booleans do not switch defaults off")

	spec, err := cfg.AxisSpec()
	require.NoError(t, err)
	assert.Equal(t, "p_phylo", spec.Phylo)
	assert.True(t, spec.NonlinearEnv)

	cfg.Merge(nil)
	assert.Equal(t, "N", cfg.TargetAxis)
}

func TestAxisSpecRandomEffect(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RandomEffect = true
	cfg.ExtraTerms = []string{"LA", "logLDMC"}
	spec, err := cfg.AxisSpec()
	require.NoError(t, err)
	assert.Equal(t, "Family", spec.RandomEffect)
	assert.Equal(t, []string{"LA", "logLDMC"}, spec.Extra)
}

func TestLoadTableMinRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traits.csv")
	content := "wfo_accepted_name,n_records,EIVEres-T,Family\n" +
		"a,3,5.1,Poaceae\n" +
		"b,40,6.0,Poaceae\n" +
		"c,NA,4.2,Rosaceae\n" +
		"d,31,3.3,Rosaceae\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg := DefaultConfig()
	cfg.MinRecordsColumn = "n_records"
	cfg.MinRecordsThreshold = 30
	tbl, err := cfg.LoadTable(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "d"}, tbl.IDs())
	_, ok := tbl.Label("Family")
	assert.True(t, ok)
}
