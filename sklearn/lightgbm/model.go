package lightgbm

// Node is one node of a boosted tree. Leaves have no children.
type Node struct {
	NodeID     int
	ParentID   int // -1 for the root
	LeftChild  int // -1 for a leaf
	RightChild int // -1 for a leaf

	// Split information for internal nodes.
	SplitFeature int
	Threshold    float64
	// DefaultLeft routes NaN feature values.
	DefaultLeft bool
	Gain        float64

	// LeafValue is the unshrunk Newton step of a leaf.
	LeafValue     float64
	LeafCount     int
	InternalCount int
}

// IsLeaf reports whether n is a terminal node.
func (n *Node) IsLeaf() bool {
	return n.LeftChild == -1 && n.RightChild == -1
}

// Tree is one boosting round. Node 0 is the root.
type Tree struct {
	TreeIndex     int
	NumLeaves     int
	ShrinkageRate float64
	Nodes         []Node
}

// Predict returns the shrunk contribution of t for one row.
func (t *Tree) Predict(features []float64) float64 {
	id := 0
	for id >= 0 && id < len(t.Nodes) {
		n := &t.Nodes[id]
		if n.IsLeaf() {
			return n.LeafValue * t.ShrinkageRate
		}
		v := features[n.SplitFeature]
		switch {
		case v != v:
			if n.DefaultLeft {
				id = n.LeftChild
			} else {
				id = n.RightChild
			}
		case v <= n.Threshold:
			id = n.LeftChild
		default:
			id = n.RightChild
		}
	}
	return 0
}

// Model is a trained squared-error booster.
type Model struct {
	Trees        []Tree
	NumFeatures  int
	InitScore    float64
	LearningRate float64
	NumLeaves    int
	MaxDepth     int
}

// PredictRow sums the initial score and every tree.
func (m *Model) PredictRow(features []float64) float64 {
	s := m.InitScore
	for i := range m.Trees {
		s += m.Trees[i].Predict(features)
	}
	return s
}

// Importance types accepted by GetFeatureImportance.
const (
	ImportanceGain  = "gain"
	ImportanceSplit = "split"
)

// GetFeatureImportance returns per-feature totals of split gain ("gain")
// or split counts ("split"), normalized to sum to one. An unknown type
// yields zeros.
func (m *Model) GetFeatureImportance(importanceType string) []float64 {
	imp := make([]float64, m.NumFeatures)
	for _, t := range m.Trees {
		for _, n := range t.Nodes {
			if n.IsLeaf() {
				continue
			}
			switch importanceType {
			case ImportanceSplit:
				imp[n.SplitFeature]++
			case ImportanceGain:
				imp[n.SplitFeature] += n.Gain
			}
		}
	}
	var total float64
	for _, v := range imp {
		total += v
	}
	if total > 0 {
		for i := range imp {
			imp[i] /= total
		}
	}
	return imp
}
