package cv

import (
	"fmt"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaredquekjz/plantguide-sub007/dataset"
	"github.com/jaredquekjz/plantguide-sub007/pkg/log"
)

func targetTable(t *testing.T, n int) *dataset.Table {
	t.Helper()
	rng := rand.New(rand.NewPCG(8, 9))
	ids := make([]string, n)
	y := make([]float64, n)
	fam := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("sp%03d", i)
		y[i] = 5 + 2*rng.NormFloat64()
		fam[i] = fmt.Sprintf("fam%02d", i%7)
	}
	tbl := dataset.NewTable(ids)
	require.NoError(t, tbl.SetNumeric("y", y))
	require.NoError(t, tbl.SetLabel("family", fam))
	return tbl
}

func TestStratifiedBalance(t *testing.T) {
	tbl := targetTable(t, 203)
	gen := Stratified{K: 5, Target: "y", Stratify: true}
	a, err := gen.Assign(tbl, 1, 42)
	require.NoError(t, err)

	y, _ := tbl.Numeric("y")
	breaks := DecileBreaks(y)
	perBucket := make(map[int][]int)
	for i, v := range y {
		b := Bucket(breaks, v)
		if perBucket[b] == nil {
			perBucket[b] = make([]int, 6)
		}
		perBucket[b][a.Fold[i]]++
	}
	for b, counts := range perBucket {
		lo, hi := math.MaxInt, 0
		for f := 1; f <= 5; f++ {
			lo = min(lo, counts[f])
			hi = max(hi, counts[f])
		}
		assert.LessOrEqual(t, hi-lo, 1, "bucket %d: %v", b, counts[1:])
	}

	sizes := a.Sizes()
	for f := 1; f <= 5; f++ {
		assert.InDelta(t, 203.0/5, float64(sizes[f]), 10)
	}
}

func TestStratifiedReproducible(t *testing.T) {
	tbl := targetTable(t, 100)
	for _, strat := range []bool{true, false} {
		gen := Stratified{K: 4, Target: "y", Stratify: strat}
		a1, err := gen.Assign(tbl, 2, 7)
		require.NoError(t, err)
		a2, err := gen.Assign(tbl, 2, 7)
		require.NoError(t, err)
		a3, err := gen.Assign(tbl, 3, 7)
		require.NoError(t, err)

		assert.Equal(t, a1.Fold, a2.Fold)
		assert.Equal(t, a1.Fingerprint(), a2.Fingerprint())
		assert.NotEqual(t, a1.Fingerprint(), a3.Fingerprint(), "repeats draw independent partitions")
	}
}

func TestStratifiedErrors(t *testing.T) {
	tbl := targetTable(t, 3)
	_, err := Stratified{K: 5, Target: "y", Stratify: true}.Assign(tbl, 1, 1)
	assert.Error(t, err)
	_, err = Stratified{K: 1, Target: "y"}.Assign(tbl, 1, 1)
	assert.Error(t, err)
	_, err = Stratified{K: 2, Target: "nope", Stratify: true}.Assign(targetTable(t, 10), 1, 1)
	assert.Error(t, err)
}

func TestDecileBreaksUnique(t *testing.T) {
	y := []float64{1, 1, 1, 1, 1, 1, 1, 1, 2, 3}
	breaks := DecileBreaks(y)
	for i := 1; i < len(breaks); i++ {
		assert.Greater(t, breaks[i], breaks[i-1])
	}
	assert.Equal(t, 0, Bucket(breaks, 1))
	assert.Equal(t, len(breaks), Bucket(breaks, 100))
}

func TestLeaveOneGroupOut(t *testing.T) {
	tbl := targetTable(t, 70)
	a, err := Group{Column: "family"}.Assign(tbl, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 7, a.K)

	fam, _ := tbl.Label("family")
	heldOut := map[string]int{}
	for f := 1; f <= a.K; f++ {
		train, test := a.Split(f)
		require.NotEmpty(t, test)
		g := fam[test[0]]
		for _, i := range test {
			assert.Equal(t, g, fam[i], "one group per fold")
		}
		for _, i := range train {
			assert.NotEqual(t, g, fam[i], "held-out group never trains")
		}
		heldOut[g]++
	}
	assert.Len(t, heldOut, 7)
	for g, n := range heldOut {
		assert.Equal(t, 1, n, g)
	}
	// sorted labels get ascending fold ids
	assert.Equal(t, 1, a.Fold[0])
}

func TestGroupKFold(t *testing.T) {
	tbl := targetTable(t, 70)
	a, err := Group{Column: "family", GroupFolds: 3}.Assign(tbl, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, a.K)

	fam, _ := tbl.Label("family")
	foldOf := map[string]int{}
	for i, g := range fam {
		if f, ok := foldOf[g]; ok {
			assert.Equal(t, f, a.Fold[i], "groups are never split")
		}
		foldOf[g] = a.Fold[i]
	}
	for _, n := range a.Sizes()[1:] {
		assert.Positive(t, n)
	}
}

// regionTable places ten groups in each of three regions thousands of km
// apart. Within a region the groups sit on a 0.3° lattice, more than
// 10 km from each other.
func regionTable(t *testing.T) *dataset.Table {
	t.Helper()
	rng := rand.New(rand.NewPCG(2, 3))
	centres := [][2]float64{{48, 10}, {0, 20}, {-15, -60}}
	var ids, groups []string
	var lat, lon []float64
	for g := 0; g < 30; g++ {
		c := centres[g%3]
		k := g / 3
		glat := c[0] + 0.3*float64(k/5)
		glon := c[1] + 0.3*float64(k%5)
		for k := 0; k < 4; k++ {
			ids = append(ids, fmt.Sprintf("g%02d_%d", g, k))
			groups = append(groups, fmt.Sprintf("g%02d", g))
			lat = append(lat, glat+0.01*rng.NormFloat64())
			lon = append(lon, glon+0.01*rng.NormFloat64())
		}
	}
	tbl := dataset.NewTable(ids)
	require.NoError(t, tbl.SetLabel("group", groups))
	require.NoError(t, tbl.SetNumeric("lat", lat))
	require.NoError(t, tbl.SetNumeric("lon", lon))
	return tbl
}

func TestSpatialBlockSizes(t *testing.T) {
	tbl := regionTable(t)

	fine, err := Spatial{Group: "group", Lat: "lat", Lon: "lon", BlockSizeKm: 10}.Assign(tbl, 1, 1)
	require.NoError(t, err)
	coarse, err := Spatial{Group: "group", Lat: "lat", Lon: "lon", BlockSizeKm: 2000}.Assign(tbl, 1, 1)
	require.NoError(t, err)

	// 10 km blocks isolate every group; 2000 km blocks pool each region
	assert.Equal(t, 30, fine.K)
	assert.Equal(t, 3, coarse.K)

	groups, _ := tbl.Label("group")
	for _, a := range []*Assignment{fine, coarse} {
		byGroup := map[string]int{}
		byKey := map[string]int{}
		for i, g := range groups {
			if f, ok := byGroup[g]; ok {
				assert.Equal(t, f, a.Fold[i])
			}
			byGroup[g] = a.Fold[i]
			if f, ok := byKey[a.Key[i]]; ok {
				assert.Equal(t, f, a.Fold[i])
			}
			byKey[a.Key[i]] = a.Fold[i]
		}
	}
}

func TestSpatialNearAndFarGroups(t *testing.T) {
	// near and near2 are 0.09° of latitude (about 10 km) apart and both
	// project into block 1:10, at least 100 km from any block edge. far is
	// 18° (about 2000 km) further south, in block 1:6.
	centres := map[string][2]float64{
		"near":  {46.00, 10},
		"near2": {46.09, 10},
		"far":   {28.00, 10},
	}
	var ids, groups []string
	var lat, lon []float64
	for _, g := range []string{"near", "near2", "far"} {
		for k := 0; k < 5; k++ {
			ids = append(ids, fmt.Sprintf("%s_%d", g, k))
			groups = append(groups, g)
			lat = append(lat, centres[g][0])
			lon = append(lon, centres[g][1])
		}
	}
	tbl := dataset.NewTable(ids)
	require.NoError(t, tbl.SetLabel("group", groups))
	require.NoError(t, tbl.SetNumeric("lat", lat))
	require.NoError(t, tbl.SetNumeric("lon", lon))

	x1, y1 := Project(46.00, 10)
	x2, y2 := Project(46.09, 10)
	assert.InDelta(t, 10, math.Hypot(x2-x1, y2-y1), 1)

	gen := Spatial{Group: "group", Lat: "lat", Lon: "lon", BlockSizeKm: 500}
	for repeat := 1; repeat <= 5; repeat++ {
		a, err := gen.Assign(tbl, repeat, 42)
		require.NoError(t, err)
		near, near2, far := a.Key[0], a.Key[5], a.Key[10]
		assert.Equal(t, "1:10", near)
		assert.Equal(t, near, near2)
		assert.Equal(t, a.Fold[0], a.Fold[5], "10 km apart share a fold")
		assert.Equal(t, "1:6", far)
		assert.NotEqual(t, a.Fold[0], a.Fold[10], "2000 km apart are held out separately")
	}
}

func TestSpatialBlockFolds(t *testing.T) {
	tbl := regionTable(t)
	a, err := Spatial{Group: "group", Lat: "lat", Lon: "lon", BlockSizeKm: 10, BlockFolds: 5}.Assign(tbl, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 5, a.K)
	for _, n := range a.Sizes()[1:] {
		assert.Equal(t, 24, n, "30 singleton blocks of 4 rows over 5 folds")
	}
}

func TestSpatialUnmappedAndClimateOverride(t *testing.T) {
	tbl := regionTable(t)
	lat, _ := tbl.Numeric("lat")
	lon, _ := tbl.Numeric("lon")
	// g00 lives in region 0 but has lost its coordinates
	for i := 0; i < 4; i++ {
		lat[i], lon[i] = math.NaN(), math.NaN()
	}
	climate := make([]string, tbl.Len())
	for i := range climate {
		climate[i] = []string{"Cfb", "Aw", "Af"}[(i/4)%3]
	}
	require.NoError(t, tbl.SetLabel("koppen", climate))

	logs := log.Capture(t, log.LevelDebug)
	gen := Spatial{Group: "group", Lat: "lat", Lon: "lon", BlockSizeKm: 2000}
	a, err := gen.Assign(tbl, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, "unmapped:g00", a.Key[0])
	require.Len(t, logs.Matching("group has no coordinates"), 1)
	assert.True(t, logs.ContainsField(log.GroupKey, "g00"))
	assert.True(t, logs.ContainsField(log.SchemeKey, SchemeSpatial))
	logs.Clear()

	gen.Climate = "koppen"
	gen.ClimateOverride = true
	b, err := gen.Assign(tbl, 1, 1)
	require.NoError(t, err)
	assert.NotEqual(t, "unmapped:g00", b.Key[0])
	assert.Equal(t, b.Key[4*3], b.Key[0], "joins the block of its climate class")
	assert.False(t, logs.ContainsMessage("group has no coordinates"))
	assert.True(t, logs.ContainsMessage("placed by climate class"))
}

func TestProject(t *testing.T) {
	x, y := Project(0, 1)
	assert.InDelta(t, EarthRadiusKm*math.Pi/180, x, 1e-9)
	assert.InDelta(t, 0, y, 1e-12)
	x, _ = Project(60, 1)
	assert.InDelta(t, EarthRadiusKm*math.Pi/360, x, 1e-9, "cos(60°) halves the longitude span")
	assert.Equal(t, "-1:0", BlockKey(-0.5, 10, 500))
}
