package cv

import (
	"math"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"

	"github.com/jaredquekjz/plantguide-sub007/dataset"
	"github.com/jaredquekjz/plantguide-sub007/pkg/errors"
	"github.com/jaredquekjz/plantguide-sub007/preprocessing"
)

// Fold generation schemes.
const (
	SchemeStratified = "stratified"
	SchemeGroup      = "leave-one-group-out"
	SchemeSpatial    = "spatial-block"
)

var schemeAliases = map[string]string{
	SchemeStratified: SchemeStratified,
	SchemeGroup:      SchemeGroup,
	SchemeSpatial:    SchemeSpatial,
	"logo":           SchemeGroup,
	"spatial":        SchemeSpatial,
}

// ParseScheme returns the canonical scheme name for s. The short forms
// "logo" and "spatial" are accepted.
func ParseScheme(s string) (string, bool) {
	canonical, ok := schemeAliases[strings.ToLower(strings.TrimSpace(s))]
	return canonical, ok
}

// Generator assigns the rows of t to folds for one repeat. Every repeat
// draws from its own RNG seeded with seed + repeat.
type Generator interface {
	Assign(t *dataset.Table, repeat int, seed uint64) (*Assignment, error)
	// Columns lists the label columns every row must have.
	Columns() []string
	Scheme() string
}

func repeatRNG(seed uint64, repeat int) *rand.Rand {
	s := seed + uint64(repeat)
	return rand.New(rand.NewPCG(s, s^0x9e3779b97f4a7c15))
}

// Stratified deals fold ids 1..K within target deciles so every decile is
// spread as evenly as possible over the folds.
type Stratified struct {
	K        int
	Target   string
	Stratify bool
}

func (s Stratified) Scheme() string    { return SchemeStratified }
func (s Stratified) Columns() []string { return nil }

// Assign implements Generator.
func (s Stratified) Assign(t *dataset.Table, repeat int, seed uint64) (*Assignment, error) {
	n := t.Len()
	if s.K < 2 {
		return nil, errors.NewValidationError("folds", "must be at least 2", s.K)
	}
	if n < s.K {
		return nil, errors.NewValueError("Stratified.Assign", "fewer rows than folds")
	}
	rng := repeatRNG(seed, repeat)
	a := &Assignment{Repeat: repeat, Fold: make([]int, n), Key: make([]string, n), K: s.K}

	if !s.Stratify {
		order := rng.Perm(n)
		for k, i := range order {
			a.Fold[i] = k%s.K + 1
		}
	} else {
		y, ok := t.Numeric(s.Target)
		if !ok {
			return nil, errors.NewDataError("Stratified.Assign", s.Target, "target column not found")
		}
		buckets := make(map[int][]int)
		breaks := DecileBreaks(y)
		for i, v := range y {
			b := Bucket(breaks, v)
			buckets[b] = append(buckets[b], i)
		}
		ids := make([]int, 0, len(buckets))
		for b := range buckets {
			ids = append(ids, b)
		}
		sort.Ints(ids)
		for _, b := range ids {
			rows := buckets[b]
			start := rng.IntN(s.K)
			folds := make([]int, len(rows))
			for j := range folds {
				folds[j] = (start+j)%s.K + 1
			}
			rng.Shuffle(len(folds), func(x, y int) { folds[x], folds[y] = folds[y], folds[x] })
			for j, i := range rows {
				a.Fold[i] = folds[j]
			}
		}
	}
	for i, f := range a.Fold {
		a.Key[i] = strconv.Itoa(f)
	}
	return a, nil
}

// DecileBreaks returns the unique interior type-7 deciles of the finite
// values of y.
func DecileBreaks(y []float64) []float64 {
	ps := make([]float64, 9)
	for i := range ps {
		ps[i] = float64(i+1) / 10
	}
	qs := preprocessing.Quantiles(y, ps...)
	var out []float64
	for _, q := range qs {
		if math.IsNaN(q) {
			continue
		}
		if len(out) == 0 || q > out[len(out)-1] {
			out = append(out, q)
		}
	}
	return out
}

// Bucket returns the interval index of v among breaks with outer bounds at
// ±Inf. Intervals are closed on the right.
func Bucket(breaks []float64, v float64) int {
	return sort.SearchFloat64s(breaks, v)
}

// Group holds out whole groups. With GroupFolds == 0 every distinct label
// is its own fold (leave-one-group-out); otherwise the labels are dealt
// at random to GroupFolds folds.
type Group struct {
	Column     string
	GroupFolds int
}

func (g Group) Scheme() string    { return SchemeGroup }
func (g Group) Columns() []string { return []string{g.Column} }

// Assign implements Generator.
func (g Group) Assign(t *dataset.Table, repeat int, seed uint64) (*Assignment, error) {
	labels, ok := t.Label(g.Column)
	if !ok {
		return nil, errors.NewDataError("Group.Assign", g.Column, "group label column not found")
	}
	levels := t.Levels(g.Column)
	if len(levels) < 2 {
		return nil, errors.NewDataError("Group.Assign", g.Column, "need at least two groups")
	}
	fold := dealKeys(levels, g.GroupFolds, repeatRNG(seed, repeat))
	a := &Assignment{Repeat: repeat, Fold: make([]int, t.Len()), Key: make([]string, t.Len())}
	a.K = len(levels)
	if g.GroupFolds > 0 && g.GroupFolds < len(levels) {
		a.K = g.GroupFolds
	}
	for i, l := range labels {
		a.Fold[i] = fold[l]
		a.Key[i] = l
	}
	return a, nil
}

// dealKeys maps sorted keys to fold ids. With k <= 0 or k >= len(keys)
// each key gets its own fold in sorted order; otherwise keys are shuffled
// and dealt cyclically to k folds.
func dealKeys(keys []string, k int, rng *rand.Rand) map[string]int {
	out := make(map[string]int, len(keys))
	if k <= 0 || k >= len(keys) {
		for i, key := range keys {
			out[key] = i + 1
		}
		return out
	}
	for j, p := range rng.Perm(len(keys)) {
		out[keys[p]] = j%k + 1
	}
	return out
}
