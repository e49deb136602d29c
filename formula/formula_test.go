package formula

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaredquekjz/plantguide-sub007/composite"
	"github.com/jaredquekjz/plantguide-sub007/dataset"
	"github.com/jaredquekjz/plantguide-sub007/pkg/errors"
)

var testComposites = []composite.Spec{
	{Name: "LES", Inputs: []composite.Input{{Column: "LMA", Negate: true}, {Column: "Nmass"}}, Reference: "Nmass"},
	{Name: "SIZE", Inputs: []composite.Input{{Column: "H"}, {Column: "SM"}}, Reference: "H"},
}

func traitTable(t *testing.T, n int) *dataset.Table {
	t.Helper()
	rng := rand.New(rand.NewPCG(3, 4))
	ids := make([]string, n)
	cols := map[string][]float64{}
	for _, c := range []string{"LMA", "Nmass", "H", "SM", "SSD", "LA", "mat_mean", "temp_seasonality", "tmin_q05", "precip_mean", "EIVEres-T"} {
		cols[c] = make([]float64, n)
	}
	family := make([]string, n)
	for i := range ids {
		ids[i] = "sp" + string(rune('a'+i%26)) + string(rune('a'+i/26))
		for c := range cols {
			cols[c][i] = rng.NormFloat64()
		}
		family[i] = []string{"Poaceae", "Rosaceae", "Fabaceae"}[i%3]
	}
	tbl := dataset.NewTable(ids)
	for c, v := range cols {
		require.NoError(t, tbl.SetNumeric(c, v))
	}
	require.NoError(t, tbl.SetLabel("family", family))
	return tbl
}

func names(p *Plan) []string {
	out := make([]string, len(p.Candidates))
	for i, c := range p.Candidates {
		out[i] = c.Name
	}
	return out
}

func TestBuildLadder(t *testing.T) {
	tbl := traitTable(t, 60)
	spec, err := DefaultAxis("T")
	require.NoError(t, err)
	spec.RandomEffect = "family"

	plan, err := NewBuilder(testComposites).Build(spec, tbl)
	require.NoError(t, err)

	assert.Equal(t, []string{"linear", "linear_int", "gam_smooth", "gam_tensor", "gam_tensor_re"}, names(plan))
	assert.Empty(t, plan.Fallbacks)
	assert.Len(t, plan.Composites, 2)

	engines := []Engine{EngineLinear, EngineLinear, EngineAdditive, EngineAdditive, EngineAdditive}
	for i, c := range plan.Candidates {
		assert.Equal(t, engines[i], c.Engine(), c.Name)
	}

	// composite names never leak into the raw column list
	assert.NotContains(t, plan.NumericColumns, "LES")
	assert.Contains(t, plan.NumericColumns, "LMA")
	assert.Contains(t, plan.NumericColumns, "tmin_q05")
	assert.NotContains(t, plan.NumericColumns, "EIVEres-T")
	assert.Equal(t, []string{"family"}, plan.LabelColumns)
	assert.Equal(t, "EIVEres-T", plan.RequiredColumns()[0])

	re, ok := plan.Candidate("gam_tensor_re")
	require.True(t, ok)
	assert.Equal(t, KindRandomEffect, re.Terms[len(re.Terms)-1].Kind)
}

func TestWithoutEnv(t *testing.T) {
	spec, err := DefaultAxis("T")
	require.NoError(t, err)

	pruned, removed := spec.WithoutEnv(map[string]bool{"tmin_q05": true, "LMA": true, "H": true})
	assert.Equal(t, []string{"tmin_q05"}, removed, "only environment columns are pruned")
	assert.Equal(t, []string{"mat_mean", "temp_seasonality", "precip_mean"}, pruned.Env)
	assert.Equal(t, []Interaction{{"SIZE", "mat_mean"}, {"LES", "temp_seasonality"}}, pruned.Interactions)
	assert.Equal(t, spec.Core, pruned.Core)
	assert.Len(t, spec.Env, 4, "receiver untouched")

	plan, err := NewBuilder(testComposites).Build(pruned, traitTable(t, 60))
	require.NoError(t, err)
	assert.NotContains(t, plan.NumericColumns, "tmin_q05")
	assert.Contains(t, plan.NumericColumns, "mat_mean")

	same, removed := spec.WithoutEnv(nil)
	assert.Empty(t, removed)
	assert.Equal(t, spec, same)
}

func TestBuildCompositeFallback(t *testing.T) {
	tbl := traitTable(t, 40)
	nan := make([]float64, tbl.Len())
	for i := range nan {
		nan[i] = math.NaN()
	}
	require.NoError(t, tbl.SetNumeric("Nmass", nan))

	spec, err := DefaultAxis("T")
	require.NoError(t, err)
	plan, err := NewBuilder(testComposites).Build(spec, tbl)
	require.NoError(t, err)

	require.Len(t, plan.Fallbacks, 1)
	fb := plan.Fallbacks[0]
	assert.Equal(t, "LES", fb.Composite)
	assert.Equal(t, "Nmass", fb.Missing)
	assert.Equal(t, []string{"LMA"}, fb.Replacement)

	lin := plan.Candidates[0]
	assert.Contains(t, lin.NumericColumns(), "LMA")
	assert.NotContains(t, lin.NumericColumns(), "LES")
	// interactions with LES now read the surviving raw input
	for _, c := range plan.Candidates {
		for _, term := range c.Terms {
			assert.NotContains(t, term.Cols, "LES")
		}
	}
}

func TestBuildErrors(t *testing.T) {
	tbl := traitTable(t, 30)

	spec, err := DefaultAxis("R")
	require.NoError(t, err)
	_, err = NewBuilder(testComposites).Build(spec, tbl)
	var dataErr *errors.DataError
	require.ErrorAs(t, err, &dataErr)
	assert.Equal(t, "phh2o_0_5cm_mean", dataErr.Column)

	_, err = DefaultAxis("X")
	var vErr *errors.ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestBuildDeduplicatesRungs(t *testing.T) {
	tbl := traitTable(t, 30)
	spec := AxisSpec{Axis: "T", Core: []string{"SSD"}, Env: []string{"mat_mean"}}
	plan, err := NewBuilder(nil).Build(spec, tbl)
	require.NoError(t, err)
	// no interactions: linear_int and gam_tensor repeat the rung before
	assert.Equal(t, []string{"linear", "gam_smooth"}, names(plan))
	assert.Equal(t, "EIVEres-T ~ s(SSD,k=5) + mat_mean", plan.Candidates[1].Formula(plan.Target))
}

func TestLayoutWidthsAndBlocks(t *testing.T) {
	tbl := traitTable(t, 50)
	c := Candidate{Name: "mixed", Terms: []Term{
		Linear("SSD"),
		Product("SSD", "LA"),
		Smooth("H", 5),
		Tensor("H", "mat_mean", 4),
		RandomEffect("family"),
	}}
	l, err := Learn(c, tbl)
	require.NoError(t, err)

	// 1 + 1 + (5-1) + (3*3) + 3
	assert.Equal(t, 18, l.NumColumns())
	require.Len(t, l.Blocks(), 3)
	assert.Equal(t, []int{3, 4, 5}, l.Blocks()[0].Cols)
	assert.Len(t, l.Blocks()[1].Cols, 8, "tensor leaves linear×linear unpenalized")
	assert.Equal(t, []int{15, 16, 17}, l.Blocks()[2].Cols)

	X, err := l.Matrix(tbl)
	require.NoError(t, err)
	r, cc := X.Dims()
	assert.Equal(t, 50, r)
	assert.Equal(t, 18, cc)

	ssd, _ := tbl.Numeric("SSD")
	la, _ := tbl.Numeric("LA")
	assert.InDelta(t, ssd[7]*la[7], X.At(7, 1), 1e-12)
	// one indicator per row
	for i := 0; i < r; i++ {
		assert.InDelta(t, 1, X.At(i, 15)+X.At(i, 16)+X.At(i, 17), 1e-12)
	}
}

func TestLayoutUnseenLevel(t *testing.T) {
	tbl := traitTable(t, 30)
	l, err := Learn(Candidate{Name: "re", Terms: []Term{Linear("SSD"), RandomEffect("family")}}, tbl)
	require.NoError(t, err)

	test := tbl.Subset([]int{0, 1})
	require.NoError(t, test.SetLabel("family", []string{"Orchidaceae", ""}))
	X, err := l.Matrix(test)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		for j := 1; j < l.NumColumns(); j++ {
			assert.Zero(t, X.At(i, j))
		}
	}
}

func TestLayoutSmoothDegradesToLinear(t *testing.T) {
	tbl := traitTable(t, 20)
	binary := make([]float64, tbl.Len())
	for i := range binary {
		binary[i] = float64(i % 2)
	}
	require.NoError(t, tbl.SetNumeric("woody", binary))

	l, err := Learn(Candidate{Name: "s", Terms: []Term{Smooth("woody", 5)}}, tbl)
	require.NoError(t, err)
	assert.Equal(t, 1, l.NumColumns())
	assert.Empty(t, l.Blocks())
}
