// Package gbt implements gradient-boosted decision trees for regression.
//
// The package backs Skiff's built-in "xgboost" algorithm container: the
// trainer consumes the hyperparameter contract of that container
// (max_depth, eta, gamma, min_child_weight, subsample, num_round, ...), and
// the resulting Model serializes to JSON as the training-job artifact format.
package gbt

import (
	"encoding/json"
	"math"
	"os"

	"gonum.org/v1/gonum/mat"

	"github.com/skiffml/skiff/pkg/errors"
)

// NodeType represents the type of a tree node.
type NodeType int

const (
	// LeafNode is a terminal node carrying a value.
	LeafNode NodeType = iota
	// SplitNode is an internal node with a numerical split.
	SplitNode
)

// Node is a single node in a regression tree. Children are addressed by
// index into the owning tree's Nodes slice, -1 meaning none.
type Node struct {
	NodeID     int      `json:"node_id"`
	ParentID   int      `json:"parent_id"`
	LeftChild  int      `json:"left_child"`
	RightChild int      `json:"right_child"`
	NodeType   NodeType `json:"node_type"`

	// Split information (internal nodes)
	SplitFeature int     `json:"split_feature"`
	Threshold    float64 `json:"threshold"`
	Gain         float64 `json:"gain"`

	// Leaf information
	LeafValue float64 `json:"leaf_value"`
	LeafCount int     `json:"leaf_count"`
}

// IsLeaf reports whether the node is a leaf.
func (n *Node) IsLeaf() bool {
	return n.LeftChild == -1 && n.RightChild == -1
}

// Tree is a single regression tree in the ensemble.
type Tree struct {
	TreeIndex     int     `json:"tree_index"`
	NumLeaves     int     `json:"num_leaves"`
	ShrinkageRate float64 `json:"shrinkage_rate"`
	Nodes         []Node  `json:"nodes"`
}

// Predict returns the shrunken prediction of this tree for one sample.
func (t *Tree) Predict(features []float64) float64 {
	nodeID := 0 // root
	for nodeID >= 0 && nodeID < len(t.Nodes) {
		node := &t.Nodes[nodeID]
		if node.IsLeaf() {
			return node.LeafValue * t.ShrinkageRate
		}

		value := features[node.SplitFeature]
		if math.IsNaN(value) || value <= node.Threshold {
			nodeID = node.LeftChild
		} else {
			nodeID = node.RightChild
		}
	}
	return 0.0
}

// ObjectiveType names the training objective.
type ObjectiveType string

const (
	// SquaredError is L2 regression (the xgboost reg:squarederror objective).
	SquaredError ObjectiveType = "reg:squarederror"
	// AbsoluteError is L1 regression.
	AbsoluteError ObjectiveType = "reg:absoluteerror"
	// Huber is Huber-loss regression.
	Huber ObjectiveType = "reg:pseudohubererror"
)

// Model is a complete boosted-tree ensemble.
type Model struct {
	Objective    ObjectiveType `json:"objective"`
	NumRounds    int           `json:"num_rounds"`
	LearningRate float64       `json:"learning_rate"`
	MaxDepth     int           `json:"max_depth"`

	Trees []Tree `json:"trees"`

	NumFeatures  int      `json:"num_features"`
	FeatureNames []string `json:"feature_names,omitempty"`

	// InitScore is the baseline prediction added before any tree.
	InitScore float64 `json:"init_score"`

	// BestIteration is set when early stopping truncated the ensemble (-1
	// when unused).
	BestIteration int `json:"best_iteration"`
}

// NewModel creates an empty model.
func NewModel() *Model {
	return &Model{
		Trees:         make([]Tree, 0),
		LearningRate:  0.3,
		MaxDepth:      6,
		BestIteration: -1,
	}
}

// PredictRow returns the ensemble prediction for a single feature row.
func (m *Model) PredictRow(features []float64) float64 {
	pred := m.InitScore
	for i := range m.Trees {
		pred += m.Trees[i].Predict(features)
	}
	return pred
}

// Predict returns predictions for a batch of samples as an n×1 matrix.
func (m *Model) Predict(X mat.Matrix) (mat.Matrix, error) {
	rows, cols := X.Dims()
	if cols != m.NumFeatures {
		return nil, errors.NewDimensionError("Model.Predict", m.NumFeatures, cols, 1)
	}

	out := mat.NewDense(rows, 1, nil)
	features := make([]float64, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			features[j] = X.At(i, j)
		}
		out.Set(i, 0, m.PredictRow(features))
	}
	return out, nil
}

// FeatureImportance returns per-feature total split gain.
func (m *Model) FeatureImportance() []float64 {
	importance := make([]float64, m.NumFeatures)
	for ti := range m.Trees {
		for ni := range m.Trees[ti].Nodes {
			node := &m.Trees[ti].Nodes[ni]
			if !node.IsLeaf() {
				importance[node.SplitFeature] += node.Gain
			}
		}
	}
	return importance
}

// ToJSON serializes the model to its artifact format.
func (m *Model) ToJSON() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "marshaling model")
	}
	return data, nil
}

// FromJSON deserializes a model from its artifact format.
func FromJSON(data []byte) (*Model, error) {
	m := NewModel()
	if err := json.Unmarshal(data, m); err != nil {
		return nil, errors.Wrap(err, "unmarshaling model")
	}
	if m.NumFeatures <= 0 {
		return nil, errors.NewValueError("FromJSON", "model has no feature count")
	}
	return m, nil
}

// SaveToFile writes the model artifact to a file.
func (m *Model) SaveToFile(path string) error {
	data, err := m.ToJSON()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, "writing model file")
	}
	return nil
}

// LoadFromFile reads a model artifact from a file.
func LoadFromFile(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading model file")
	}
	return FromJSON(data)
}
