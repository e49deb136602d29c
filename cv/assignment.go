// Package cv generates repeated fold assignments and runs the leakage-free
// per-fold pipeline: preprocess, build composites, select a model and
// predict the held-out rows.
package cv

import (
	"encoding/binary"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// Assignment maps every row of a table to a fold for one repeat. Fold ids
// start at 1; Key is the unit that was dealt (a stratified fold id, a
// group label or a spatial block).
type Assignment struct {
	Repeat int
	Fold   []int
	Key    []string
	K      int
}

// Folds returns the distinct non-empty fold ids in ascending order.
func (a *Assignment) Folds() []int {
	seen := make(map[int]bool)
	for _, f := range a.Fold {
		seen[f] = true
	}
	out := make([]int, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Ints(out)
	return out
}

// Split returns the training and test row indices of fold.
func (a *Assignment) Split(fold int) (train, test []int) {
	for i, f := range a.Fold {
		if f == fold {
			test = append(test, i)
		} else {
			train = append(train, i)
		}
	}
	return train, test
}

// Sizes counts rows per fold id; index 0 is unused.
func (a *Assignment) Sizes() []int {
	out := make([]int, a.K+1)
	for _, f := range a.Fold {
		if f > 0 && f <= a.K {
			out[f]++
		}
	}
	return out
}

// Fingerprint hashes the repeat and the per-row fold ids and keys, so two
// runs can be checked for identical partitions.
func (a *Assignment) Fingerprint() uint64 {
	d := xxhash.New()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(a.Repeat))
	_, _ = d.Write(buf[:])
	for i, f := range a.Fold {
		binary.LittleEndian.PutUint64(buf[:], uint64(f))
		_, _ = d.Write(buf[:])
		_, _ = d.WriteString(a.Key[i])
		_, _ = d.Write([]byte{0})
	}
	return d.Sum64()
}
