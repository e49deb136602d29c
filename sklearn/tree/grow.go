// Package tree grows regression trees from first and second order
// gradients. Squared-error CART is the special case g = −y, h = 1.
package tree

import (
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Node is one node of a fitted tree. Leaves have Left == Right == -1.
type Node struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Value     float64
	Gain      float64
	Samples   int
}

// IsLeaf reports whether the node has no children.
func (n Node) IsLeaf() bool { return n.Left < 0 }

// Tree is a binary regression tree stored as a flat node slice with the
// root at index 0.
type Tree struct {
	Nodes []Node
}

// PredictRow walks the tree for one feature row.
func (t *Tree) PredictRow(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.IsLeaf() {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Gains adds the split gain of every internal node to dst by feature.
func (t *Tree) Gains(dst []float64) {
	for _, n := range t.Nodes {
		if !n.IsLeaf() {
			dst[n.Feature] += n.Gain
		}
	}
}

// Params controls tree growth.
type Params struct {
	MaxDepth       int // 0 means unlimited
	MinSamplesLeaf int // minimum rows per leaf
	MinGain        float64
	// MaxFeatures is the number of candidate features drawn per split
	// from the allowed set; 0 uses all of them.
	MaxFeatures int
}

type split struct {
	feature   int
	threshold float64
	gain      float64
}

type grower struct {
	X        *mat.Dense
	grad     []float64
	hess     []float64
	features []int
	params   Params
	rng      *rand.Rand
	tree     *Tree
}

// Grow fits a tree on rows (which may repeat, for bootstrap samples) using
// only the allowed features. rng is used for per-split feature sampling
// and may be nil when MaxFeatures is 0.
func Grow(X *mat.Dense, grad, hess []float64, rows, features []int, p Params, rng *rand.Rand) *Tree {
	if p.MinSamplesLeaf < 1 {
		p.MinSamplesLeaf = 1
	}
	g := &grower{X: X, grad: grad, hess: hess, features: features, params: p, rng: rng, tree: &Tree{}}
	g.node(rows, 0)
	return g.tree
}

func (g *grower) leafValue(rows []int) float64 {
	var sg, sh float64
	for _, i := range rows {
		sg += g.grad[i]
		sh += g.hess[i]
	}
	return -sg / (sh + 1e-12)
}

func (g *grower) node(rows []int, depth int) int {
	idx := len(g.tree.Nodes)
	g.tree.Nodes = append(g.tree.Nodes, Node{Left: -1, Right: -1, Value: g.leafValue(rows), Samples: len(rows)})

	if (g.params.MaxDepth > 0 && depth >= g.params.MaxDepth) || len(rows) < 2*g.params.MinSamplesLeaf {
		return idx
	}
	best, ok := g.bestSplit(rows)
	if !ok || best.gain <= g.params.MinGain {
		return idx
	}

	var left, right []int
	for _, i := range rows {
		if g.X.At(i, best.feature) <= best.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	l := g.node(left, depth+1)
	r := g.node(right, depth+1)
	n := &g.tree.Nodes[idx]
	n.Feature = best.feature
	n.Threshold = best.threshold
	n.Gain = best.gain
	n.Left, n.Right = l, r
	return idx
}

func (g *grower) candidates() []int {
	m := g.params.MaxFeatures
	if m <= 0 || m >= len(g.features) || g.rng == nil {
		return g.features
	}
	perm := g.rng.Perm(len(g.features))
	out := make([]int, m)
	for i := range out {
		out[i] = g.features[perm[i]]
	}
	return out
}

func (g *grower) bestSplit(rows []int) (split, bool) {
	var totalG, totalH float64
	for _, i := range rows {
		totalG += g.grad[i]
		totalH += g.hess[i]
	}
	parent := totalG * totalG / totalH

	best := split{gain: math.Inf(-1)}
	found := false
	order := make([]int, len(rows))
	for _, f := range g.candidates() {
		copy(order, rows)
		sort.Slice(order, func(a, b int) bool {
			return g.X.At(order[a], f) < g.X.At(order[b], f)
		})
		var lg, lh float64
		for k := 0; k < len(order)-1; k++ {
			i := order[k]
			lg += g.grad[i]
			lh += g.hess[i]
			v, next := g.X.At(i, f), g.X.At(order[k+1], f)
			if v == next {
				continue
			}
			nl, nr := k+1, len(order)-k-1
			if nl < g.params.MinSamplesLeaf || nr < g.params.MinSamplesLeaf {
				continue
			}
			rg, rh := totalG-lg, totalH-lh
			gain := 0.5 * (lg*lg/lh + rg*rg/rh - parent)
			if gain > best.gain {
				best = split{feature: f, threshold: (v + next) / 2, gain: gain}
				found = true
			}
		}
	}
	return best, found
}
