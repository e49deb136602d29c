package importance

import (
	"context"
	"math/rand/v2"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaredquekjz/plantguide-sub007/dataset"
	"github.com/jaredquekjz/plantguide-sub007/pkg/errors"
)

func climateTable(t *testing.T, n int) *dataset.Table {
	t.Helper()
	rng := rand.New(rand.NewPCG(11, 12))
	ids := make([]string, n)
	cols := map[string][]float64{
		"mat_mean": make([]float64, n), "mat_q50": make([]float64, n),
		"precip_mean": make([]float64, n), "noise": make([]float64, n),
		"constant": make([]float64, n), "EIVEres-T": make([]float64, n),
		"EIVEres-M": make([]float64, n),
	}
	for i := range ids {
		ids[i] = "sp" + strconv.Itoa(i)
		mat := rng.NormFloat64()
		pr := rng.NormFloat64()
		cols["mat_mean"][i] = mat
		cols["mat_q50"][i] = mat + 0.05*rng.NormFloat64()
		cols["precip_mean"][i] = pr
		cols["noise"][i] = rng.NormFloat64()
		cols["constant"][i] = 3
		cols["EIVEres-T"][i] = 2*mat + 0.5*pr + 0.2*rng.NormFloat64()
		cols["EIVEres-M"][i] = cols["EIVEres-T"][i]
	}
	tbl := dataset.NewTable(ids)
	for name, v := range cols {
		require.NoError(t, tbl.SetNumeric(name, v))
	}
	return tbl
}

func fastOptions() Options {
	opts := DefaultOptions()
	opts.Trees = 40
	opts.Rounds = 40
	opts.Seed = 1
	return opts
}

func TestRankClustersCorrelatedClimate(t *testing.T) {
	tbl := climateTable(t, 150)
	r, err := NewRanker(fastOptions())
	require.NoError(t, err)

	res, err := r.Rank(context.Background(), tbl, "EIVEres-T")
	require.NoError(t, err)
	assert.Equal(t, 150, res.N)

	features := make([]string, len(res.Rows))
	for i, row := range res.Rows {
		features[i] = row.Feature
	}
	assert.ElementsMatch(t, []string{"mat_mean", "mat_q50", "precip_mean", "noise"}, features,
		"target, other targets and constant columns are not candidates")

	for i := 1; i < len(res.Rows); i++ {
		assert.GreaterOrEqual(t, res.Rows[i-1].Score, res.Rows[i].Score)
	}

	// mat_mean and mat_q50 share a cluster and only one of them is kept
	byName := map[string]Row{}
	for _, row := range res.Rows {
		byName[row.Feature] = row
	}
	assert.Equal(t, byName["mat_mean"].Cluster, byName["mat_q50"].Cluster)
	assert.NotEqual(t, byName["mat_mean"].Kept, byName["mat_q50"].Kept)
	assert.Len(t, res.Selected(), 3)
	assert.Contains(t, res.Selected(), "precip_mean")

	// both methods see precip_mean above pure noise
	assert.Greater(t, byName["precip_mean"].Boosted, byName["noise"].Boosted)
	assert.Greater(t, byName["precip_mean"].Forest, byName["noise"].Forest)

	pruned := res.Pruned()
	require.Len(t, pruned, 1)
	if byName["mat_mean"].Kept {
		assert.True(t, pruned["mat_q50"])
	} else {
		assert.True(t, pruned["mat_mean"])
	}
}

func TestRankOfferAll(t *testing.T) {
	opts := fastOptions()
	opts.OfferAll = true
	r, err := NewRanker(opts)
	require.NoError(t, err)
	res, err := r.Rank(context.Background(), climateTable(t, 80), "EIVEres-T")
	require.NoError(t, err)
	assert.Len(t, res.Selected(), 4)
	assert.Empty(t, res.Pruned())
}

func TestRankTooFewRows(t *testing.T) {
	r, err := NewRanker(fastOptions())
	require.NoError(t, err)
	res, err := r.Rank(context.Background(), climateTable(t, 9), "EIVEres-T")
	require.NoError(t, err)
	assert.Empty(t, res.Rows)
	assert.Zero(t, res.N)
}

func TestRankMissingTarget(t *testing.T) {
	r, err := NewRanker(fastOptions())
	require.NoError(t, err)
	_, err = r.Rank(context.Background(), climateTable(t, 20), "EIVEres-X")
	var dataErr *errors.DataError
	assert.ErrorAs(t, err, &dataErr)
}

func TestNewRankerValidation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Options)
	}{
		{"combine", func(o *Options) { o.Combine = "median" }},
		{"threshold", func(o *Options) { o.CorrelationThreshold = 1.5 }},
		{"pattern", func(o *Options) { o.Exclude = []string{"["} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.modify(&opts)
			_, err := NewRanker(opts)
			var vErr *errors.ValidationError
			assert.ErrorAs(t, err, &vErr)
		})
	}
}

func TestCombineModes(t *testing.T) {
	a := []float64{1, 0.5, 0}
	b := []float64{0, 1, 0.5}

	assert.InDeltaSlice(t, []float64{0.5, 0.75, 0.25}, Combine(CombineMean, a, b), 1e-12)
	assert.InDeltaSlice(t, []float64{1, 1, 0.5}, Combine(CombineMax, a, b), 1e-12)
	// ranks a: 1,2,3  b: 3,1,2  → mean 2, 1.5, 2.5
	assert.InDeltaSlice(t, []float64{0.5, 0.75, 0.25}, Combine(CombineRank, a, b), 1e-12)
}

func TestMinMax(t *testing.T) {
	assert.InDeltaSlice(t, []float64{0, 0.5, 1}, MinMax([]float64{2, 4, 6}), 1e-12)
	assert.Equal(t, []float64{0, 0}, MinMax([]float64{3, 3}))
}

func TestDescendingRanksTies(t *testing.T) {
	assert.Equal(t, []float64{1, 2.5, 2.5, 4}, descendingRanks([]float64{9, 5, 5, 1}))
}
