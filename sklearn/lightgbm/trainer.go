package lightgbm

import (
	"context"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/jaredquekjz/plantguide-sub007/pkg/errors"
	"github.com/jaredquekjz/plantguide-sub007/pkg/log"
)

// TrainingParams holds the booster hyperparameters under their LightGBM
// names.
type TrainingParams struct {
	NumIterations int     `json:"num_iterations"`
	LearningRate  float64 `json:"learning_rate"`
	NumLeaves     int     `json:"num_leaves"`
	MaxDepth      int     `json:"max_depth"`
	MinDataInLeaf int     `json:"min_data_in_leaf"`

	// MinSumHessianInLeaf is min_child_weight.
	MinSumHessianInLeaf float64 `json:"min_sum_hessian_in_leaf"`
	Lambda              float64 `json:"lambda_l2"`
	MinGainToSplit      float64 `json:"min_gain_to_split"`

	// Rows are re-drawn every BaggingFreq iterations; 0 disables bagging.
	BaggingFraction float64 `json:"bagging_fraction"`
	BaggingFreq     int     `json:"bagging_freq"`
	// FeatureFraction is drawn once per tree.
	FeatureFraction float64 `json:"feature_fraction"`

	Seed      uint64 `json:"seed"`
	Verbosity int    `json:"verbosity"`
}

// Trainer grows squared-error trees with exact greedy splits.
type Trainer struct {
	params TrainingParams

	X *mat.Dense
	y []float64

	gradients []float64
	hessians  []float64
	// scores caches the ensemble prediction of every training row.
	scores []float64

	trees     []Tree
	initScore float64
	iteration int

	rng    *rand.Rand
	bagged []int
	logger log.Logger
}

// NewTrainer fills unset parameters with the LightGBM defaults.
func NewTrainer(params TrainingParams) *Trainer {
	if params.NumIterations == 0 {
		params.NumIterations = 100
	}
	if params.LearningRate == 0 {
		params.LearningRate = 0.1
	}
	if params.NumLeaves == 0 {
		params.NumLeaves = 31
	}
	if params.MinDataInLeaf == 0 {
		params.MinDataInLeaf = 20
	}
	if params.BaggingFraction == 0 {
		params.BaggingFraction = 1
	}
	if params.FeatureFraction == 0 {
		params.FeatureFraction = 1
	}
	return &Trainer{
		params: params,
		rng:    rand.New(rand.NewPCG(params.Seed, 0x19b3)),
		logger: log.GetLoggerWithName("lightgbm.trainer"),
	}
}

// Fit runs the boosting rounds, checking ctx between rounds.
func (t *Trainer) Fit(ctx context.Context, X mat.Matrix, y []float64) error {
	rows, cols := X.Dims()
	if rows == 0 || cols == 0 {
		return errors.NewModelError("Trainer.Fit", "empty data", errors.ErrEmptyData)
	}
	if len(y) != rows {
		return errors.NewDimensionError("Trainer.Fit", rows, len(y), 0)
	}
	if err := t.validate(); err != nil {
		return err
	}
	t.X = mat.DenseCopyOf(X)
	t.y = y
	t.initialize()

	for iter := 0; iter < t.params.NumIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		t.iteration = iter
		t.calculateGradients()
		tree := t.buildTree()
		t.trees = append(t.trees, tree)
		t.updatePredictions(&tree)

		if t.params.Verbosity > 0 && iter%50 == 0 {
			t.logger.Debug("training progress", "iteration", iter, "loss", t.calculateLoss())
		}
	}
	return nil
}

func (t *Trainer) validate() error {
	p := t.params
	if p.NumIterations < 1 {
		return errors.NewValidationError("num_iterations", "must be positive", p.NumIterations)
	}
	if p.BaggingFraction <= 0 || p.BaggingFraction > 1 {
		return errors.NewValidationError("bagging_fraction", "must be in (0, 1]", p.BaggingFraction)
	}
	if p.FeatureFraction <= 0 || p.FeatureFraction > 1 {
		return errors.NewValidationError("feature_fraction", "must be in (0, 1]", p.FeatureFraction)
	}
	if p.Lambda < 0 {
		return errors.NewValidationError("lambda_l2", "must be non-negative", p.Lambda)
	}
	return nil
}

// initialize starts every row at the mean target, the L2 initial score.
func (t *Trainer) initialize() {
	n := len(t.y)
	var sum float64
	for _, v := range t.y {
		sum += v
	}
	t.initScore = sum / float64(n)
	t.gradients = make([]float64, n)
	t.hessians = make([]float64, n)
	t.scores = make([]float64, n)
	for i := range t.scores {
		t.scores[i] = t.initScore
	}
	t.trees = t.trees[:0]
	t.bagged = nil
}

// calculateGradients sets the squared-error gradient and unit hessian.
func (t *Trainer) calculateGradients() {
	for i, target := range t.y {
		t.gradients[i] = t.scores[i] - target
		t.hessians[i] = 1
	}
}

func (t *Trainer) sampleRows() []int {
	n := len(t.y)
	p := t.params
	if p.BaggingFreq <= 0 || p.BaggingFraction >= 1 {
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		return all
	}
	if t.bagged == nil || t.iteration%p.BaggingFreq == 0 {
		k := max(1, int(math.Round(p.BaggingFraction*float64(n))))
		t.bagged = t.rng.Perm(n)[:k]
		sort.Ints(t.bagged)
	}
	return t.bagged
}

func (t *Trainer) sampleFeatures() []int {
	_, cols := t.X.Dims()
	k := max(1, int(math.Round(t.params.FeatureFraction*float64(cols))))
	if k >= cols {
		all := make([]int, cols)
		for j := range all {
			all[j] = j
		}
		return all
	}
	f := t.rng.Perm(cols)[:k]
	sort.Ints(f)
	return f
}

// treeBuilder carries the per-tree state of the depth-first growth.
type treeBuilder struct {
	t        *Trainer
	tree     *Tree
	features []int
	leaves   int
}

// buildTree grows one tree on the bagged rows and sampled features.
func (t *Trainer) buildTree() Tree {
	tree := Tree{TreeIndex: t.iteration, ShrinkageRate: t.params.LearningRate}
	b := &treeBuilder{t: t, tree: &tree, features: t.sampleFeatures(), leaves: 1}
	b.buildNode(t.sampleRows(), -1, 0)
	tree.NumLeaves = b.leaves
	return tree
}

// buildNode appends the node for indices and returns its id. A split
// turns one leaf into two, so the leaf budget is checked before splitting.
func (b *treeBuilder) buildNode(indices []int, parent, depth int) int {
	t := b.t
	id := len(b.tree.Nodes)
	b.tree.Nodes = append(b.tree.Nodes, Node{NodeID: id, ParentID: parent, LeftChild: -1, RightChild: -1})

	canSplit := (t.params.MaxDepth <= 0 || depth < t.params.MaxDepth) &&
		len(indices) >= 2*t.params.MinDataInLeaf &&
		(t.params.NumLeaves <= 0 || b.leaves < t.params.NumLeaves)
	var best SplitInfo
	if canSplit {
		best = t.findBestSplit(indices, b.features)
	}
	if !canSplit || best.Feature < 0 || best.Gain <= t.params.MinGainToSplit {
		n := &b.tree.Nodes[id]
		n.LeafValue = t.calculateLeafValue(indices)
		n.LeafCount = len(indices)
		return id
	}

	left, right := t.splitData(indices, best)
	b.leaves++
	b.tree.Nodes[id].SplitFeature = best.Feature
	b.tree.Nodes[id].Threshold = best.Threshold
	b.tree.Nodes[id].Gain = best.Gain
	b.tree.Nodes[id].InternalCount = len(indices)
	b.tree.Nodes[id].DefaultLeft = best.LeftCount >= best.RightCount
	l := b.buildNode(left, id, depth+1)
	r := b.buildNode(right, id, depth+1)
	b.tree.Nodes[id].LeftChild = l
	b.tree.Nodes[id].RightChild = r
	return id
}

// SplitInfo is a candidate split of one node.
type SplitInfo struct {
	Feature    int
	Threshold  float64
	Gain       float64
	LeftCount  int
	RightCount int
}

// findBestSplit scans the sampled features; ties keep the lower index.
func (t *Trainer) findBestSplit(indices, features []int) SplitInfo {
	best := SplitInfo{Feature: -1, Gain: math.Inf(-1)}
	for _, j := range features {
		if s := t.findBestSplitForFeature(indices, j); s.Gain > best.Gain {
			best = s
		}
	}
	return best
}

type sortedValue struct {
	value float64
	idx   int
}

// findBestSplitForFeature sorts the node rows on feature and scans every
// threshold between distinct values.
func (t *Trainer) findBestSplitForFeature(indices []int, feature int) SplitInfo {
	values := make([]sortedValue, len(indices))
	var totalGrad, totalHess float64
	for i, idx := range indices {
		values[i] = sortedValue{value: t.X.At(idx, feature), idx: idx}
		totalGrad += t.gradients[idx]
		totalHess += t.hessians[idx]
	}
	sort.Slice(values, func(a, b int) bool { return values[a].value < values[b].value })

	best := SplitInfo{Feature: -1, Gain: math.Inf(-1)}
	var leftGrad, leftHess float64
	for i := 0; i < len(values)-1; i++ {
		idx := values[i].idx
		leftGrad += t.gradients[idx]
		leftHess += t.hessians[idx]
		if values[i].value == values[i+1].value {
			continue
		}
		leftCount := i + 1
		rightCount := len(values) - leftCount
		if leftCount < t.params.MinDataInLeaf || rightCount < t.params.MinDataInLeaf {
			continue
		}
		rightHess := totalHess - leftHess
		if leftHess < t.params.MinSumHessianInLeaf || rightHess < t.params.MinSumHessianInLeaf {
			continue
		}
		gain := t.calculateSplitGain(leftGrad, leftHess, totalGrad-leftGrad, rightHess, totalGrad, totalHess)
		if gain > best.Gain {
			best = SplitInfo{
				Feature:    feature,
				Threshold:  (values[i].value + values[i+1].value) / 2,
				Gain:       gain,
				LeftCount:  leftCount,
				RightCount: rightCount,
			}
		}
	}
	return best
}

// calculateSplitGain is the L2-regularized loss reduction of a split.
func (t *Trainer) calculateSplitGain(leftGrad, leftHess, rightGrad, rightHess, totalGrad, totalHess float64) float64 {
	lambda := t.params.Lambda
	left := leftGrad * leftGrad / (leftHess + lambda)
	right := rightGrad * rightGrad / (rightHess + lambda)
	total := totalGrad * totalGrad / (totalHess + lambda)
	return 0.5 * (left + right - total)
}

func (t *Trainer) splitData(indices []int, split SplitInfo) ([]int, []int) {
	left := make([]int, 0, split.LeftCount)
	right := make([]int, 0, split.RightCount)
	for _, idx := range indices {
		if t.X.At(idx, split.Feature) <= split.Threshold {
			left = append(left, idx)
		} else {
			right = append(right, idx)
		}
	}
	return left, right
}

// calculateLeafValue is the Newton step −G/(H+λ).
func (t *Trainer) calculateLeafValue(indices []int) float64 {
	var g, h float64
	for _, idx := range indices {
		g += t.gradients[idx]
		h += t.hessians[idx]
	}
	const eps = 1e-10
	return -g / (h + t.params.Lambda + eps)
}

// updatePredictions adds the new tree to the cached scores of all rows,
// including the ones left out of the bag.
func (t *Trainer) updatePredictions(tree *Tree) {
	_, cols := t.X.Dims()
	row := make([]float64, cols)
	for i := range t.scores {
		mat.Row(row, i, t.X)
		t.scores[i] += tree.Predict(row)
	}
}

// calculateLoss is the mean squared training error.
func (t *Trainer) calculateLoss() float64 {
	var loss float64
	for i, target := range t.y {
		d := t.scores[i] - target
		loss += d * d
	}
	return loss / float64(len(t.y))
}

// GetModel returns the trained model.
func (t *Trainer) GetModel() *Model {
	_, cols := t.X.Dims()
	return &Model{
		Trees:        append([]Tree(nil), t.trees...),
		NumFeatures:  cols,
		InitScore:    t.initScore,
		LearningRate: t.params.LearningRate,
		NumLeaves:    t.params.NumLeaves,
		MaxDepth:     t.params.MaxDepth,
	}
}
