package cv

import (
	"fmt"
	"math"
	"sort"

	"github.com/jaredquekjz/plantguide-sub007/dataset"
	"github.com/jaredquekjz/plantguide-sub007/pkg/errors"
	"github.com/jaredquekjz/plantguide-sub007/pkg/log"
)

// EarthRadiusKm is the mean Earth radius used for the planar projection.
const EarthRadiusKm = 6371.0088

// DefaultBlockSizeKm is the default spatial block edge length.
const DefaultBlockSizeKm = 500

// Spatial holds out square blocks of an equirectangular projection. Each
// group (or each row when Group is empty) is placed by the centroid of its
// finite coordinates. Groups without coordinates become singleton
// "unmapped:<group>" blocks.
//
// With ClimateOverride, an unmapped group whose climate class matches the
// dominant class of a mapped block joins that block instead.
type Spatial struct {
	Group       string
	Lat         string
	Lon         string
	BlockSizeKm float64
	BlockFolds  int

	Climate         string
	ClimateOverride bool
}

func (s Spatial) Scheme() string { return SchemeSpatial }

func (s Spatial) Columns() []string {
	if s.Group == "" {
		return nil
	}
	return []string{s.Group}
}

// Project maps latitude and longitude in degrees to planar kilometres.
func Project(lat, lon float64) (x, y float64) {
	latRad := lat * math.Pi / 180
	lonRad := lon * math.Pi / 180
	return EarthRadiusKm * math.Cos(latRad) * lonRad, EarthRadiusKm * latRad
}

// BlockKey returns the block of a projected point.
func BlockKey(x, y, size float64) string {
	return fmt.Sprintf("%d:%d", int64(math.Floor(x/size)), int64(math.Floor(y/size)))
}

type centroid struct {
	lat, lon float64
	n        int
	climate  map[string]int
}

// Assign implements Generator.
func (s Spatial) Assign(t *dataset.Table, repeat int, seed uint64) (*Assignment, error) {
	size := s.BlockSizeKm
	if size <= 0 {
		return nil, errors.NewValidationError("block_size_km", "must be positive", size)
	}
	lat, ok := t.Numeric(s.Lat)
	if !ok {
		return nil, errors.NewDataError("Spatial.Assign", s.Lat, "latitude column not found")
	}
	lon, ok := t.Numeric(s.Lon)
	if !ok {
		return nil, errors.NewDataError("Spatial.Assign", s.Lon, "longitude column not found")
	}
	groups := t.IDs()
	if s.Group != "" {
		g, ok := t.Label(s.Group)
		if !ok {
			return nil, errors.NewDataError("Spatial.Assign", s.Group, "group label column not found")
		}
		groups = g
	}
	var climate []string
	if s.ClimateOverride {
		c, ok := t.Label(s.Climate)
		if !ok {
			return nil, errors.NewDataError("Spatial.Assign", s.Climate, "climate class column not found")
		}
		climate = c
	}

	cents := make(map[string]*centroid)
	for i, g := range groups {
		c := cents[g]
		if c == nil {
			c = &centroid{climate: make(map[string]int)}
			cents[g] = c
		}
		if dataset.IsFinite(lat[i]) && dataset.IsFinite(lon[i]) {
			c.lat += lat[i]
			c.lon += lon[i]
			c.n++
		}
		if climate != nil && climate[i] != "" {
			c.climate[climate[i]]++
		}
	}

	names := make([]string, 0, len(cents))
	for g := range cents {
		names = append(names, g)
	}
	sort.Strings(names)

	block := make(map[string]string, len(names))
	blockClimate := make(map[string]map[string]int)
	var unmapped []string
	for _, g := range names {
		c := cents[g]
		if c.n == 0 {
			unmapped = append(unmapped, g)
			continue
		}
		x, y := Project(c.lat/float64(c.n), c.lon/float64(c.n))
		b := BlockKey(x, y, size)
		block[g] = b
		if blockClimate[b] == nil {
			blockClimate[b] = make(map[string]int)
		}
		for cl, k := range c.climate {
			blockClimate[b][cl] += k
		}
	}

	dominant := make(map[string]string)
	if s.ClimateOverride {
		var keys []string
		for b := range blockClimate {
			keys = append(keys, b)
		}
		sort.Strings(keys)
		for _, b := range keys {
			if cl := majority(blockClimate[b]); cl != "" {
				if _, taken := dominant[cl]; !taken {
					dominant[cl] = b
				}
			}
		}
	}
	logger := log.GetLoggerWithName("cv").With(log.SchemeKey, SchemeSpatial, log.RepeatKey, repeat)
	for _, g := range unmapped {
		if s.ClimateOverride {
			if b, ok := dominant[majority(cents[g].climate)]; ok {
				block[g] = b
				logger.Debug("unmapped group placed by climate class", log.GroupKey, g, "block", b)
				continue
			}
		}
		block[g] = "unmapped:" + g
		logger.Info("group has no coordinates, using a singleton block", log.GroupKey, g)
	}

	keys := make([]string, 0, len(block))
	seen := make(map[string]bool)
	for _, b := range block {
		if !seen[b] {
			seen[b] = true
			keys = append(keys, b)
		}
	}
	sort.Strings(keys)
	if len(keys) < 2 {
		return nil, errors.NewValueError("Spatial.Assign", "all rows fall into a single block; reduce block_size_km")
	}
	fold := dealKeys(keys, s.BlockFolds, repeatRNG(seed, repeat))

	a := &Assignment{Repeat: repeat, Fold: make([]int, t.Len()), Key: make([]string, t.Len()), K: len(keys)}
	if s.BlockFolds > 0 && s.BlockFolds < len(keys) {
		a.K = s.BlockFolds
	}
	for i, g := range groups {
		b := block[g]
		a.Key[i] = b
		a.Fold[i] = fold[b]
	}
	return a, nil
}

// majority returns the most frequent class, ties broken by name.
func majority(counts map[string]int) string {
	best, bestN := "", 0
	for cl, n := range counts {
		if n > bestN || (n == bestN && cl < best) {
			best, bestN = cl, n
		}
	}
	return best
}
