package gbt

import (
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/skiffml/skiff/pkg/errors"
	"github.com/skiffml/skiff/pkg/log"
)

// TrainingParams contains the boosting hyperparameters. Field names mirror
// the xgboost container contract they are parsed from.
type TrainingParams struct {
	NumRounds      int     `json:"num_round"`
	LearningRate   float64 `json:"eta"`
	MaxDepth       int     `json:"max_depth"`
	MinChildWeight float64 `json:"min_child_weight"`
	Gamma          float64 `json:"gamma"`
	Lambda         float64 `json:"lambda"`
	Alpha          float64 `json:"alpha"`
	Subsample      float64 `json:"subsample"`
	MinSamplesLeaf int     `json:"min_samples_leaf"`
	Objective      string  `json:"objective"`
	HuberDelta     float64 `json:"huber_delta"`
	Seed           int64   `json:"seed"`
	EarlyStopping  int     `json:"early_stopping_rounds"`
	Verbosity      int     `json:"verbosity"`
}

// DefaultTrainingParams returns the defaults of the built-in container.
func DefaultTrainingParams() TrainingParams {
	return TrainingParams{
		NumRounds:      50,
		LearningRate:   0.3,
		MaxDepth:       6,
		MinChildWeight: 1.0,
		Gamma:          0.0,
		Lambda:         1.0,
		Alpha:          0.0,
		Subsample:      1.0,
		MinSamplesLeaf: 1,
		Objective:      string(SquaredError),
		Seed:           0,
	}
}

// splitInfo describes a candidate split.
type splitInfo struct {
	feature   int
	threshold float64
	gain      float64
	left      []int
	right     []int
}

// Trainer fits a boosted-tree ensemble by exact greedy split search.
type Trainer struct {
	params TrainingParams

	X *mat.Dense
	y []float64

	// Validation set for early stopping (optional)
	valX *mat.Dense
	valY []float64

	gradients   []float64
	hessians    []float64
	predictions []float64 // cached raw train predictions

	objective ObjectiveFunction
	initScore float64
	trees     []Tree

	// callback, when set, runs before every boosting round; a non-nil
	// return aborts training.
	callback func(iteration int) error

	rng    *rand.Rand
	logger log.Logger

	bestIteration int
	bestValScore  float64

	// ValidationHistory records the validation RMSE after each round.
	ValidationHistory []float64
}

// NewTrainer creates a trainer, filling unset parameters with the container
// defaults.
func NewTrainer(params TrainingParams) *Trainer {
	defaults := DefaultTrainingParams()
	if params.NumRounds <= 0 {
		params.NumRounds = defaults.NumRounds
	}
	if params.LearningRate <= 0 {
		params.LearningRate = defaults.LearningRate
	}
	if params.MaxDepth <= 0 {
		params.MaxDepth = defaults.MaxDepth
	}
	if params.MinChildWeight <= 0 {
		params.MinChildWeight = defaults.MinChildWeight
	}
	if params.Subsample <= 0 || params.Subsample > 1 {
		params.Subsample = defaults.Subsample
	}
	if params.MinSamplesLeaf <= 0 {
		params.MinSamplesLeaf = defaults.MinSamplesLeaf
	}
	if params.Lambda < 0 {
		params.Lambda = defaults.Lambda
	}
	if params.Objective == "" {
		params.Objective = defaults.Objective
	}

	return &Trainer{
		params:        params,
		rng:           rand.New(rand.NewSource(params.Seed)),
		logger:        log.GetLoggerWithName("gbt.trainer"),
		bestIteration: -1,
		bestValScore:  math.Inf(1),
	}
}

// SetValidation supplies a held-out set used for per-round evaluation and
// early stopping.
func (t *Trainer) SetValidation(X mat.Matrix, y mat.Matrix) error {
	xd, yd, err := toDense(X, y)
	if err != nil {
		return err
	}
	t.valX = xd
	t.valY = yd
	return nil
}

// SetIterationCallback installs a hook that runs before every boosting
// round. Returning an error aborts training with that error; callers use
// it to propagate cancellation into the boosting loop.
func (t *Trainer) SetIterationCallback(fn func(iteration int) error) {
	t.callback = fn
}

// Fit trains the ensemble.
func (t *Trainer) Fit(X, y mat.Matrix) error {
	xd, yd, err := toDense(X, y)
	if err != nil {
		return err
	}
	t.X = xd
	t.y = yd

	rows, cols := t.X.Dims()
	if rows == 0 || cols == 0 {
		return errors.NewModelError("Trainer.Fit", "empty data", errors.ErrEmptyData)
	}
	if t.valX != nil {
		_, valCols := t.valX.Dims()
		if valCols != cols {
			return errors.NewDimensionError("Trainer.Fit", cols, valCols, 1)
		}
	}

	objective, err := NewObjective(t.params.Objective, t.params.HuberDelta)
	if err != nil {
		return err
	}
	t.objective = objective

	t.gradients = make([]float64, rows)
	t.hessians = make([]float64, rows)
	t.initScore = t.objective.InitScore(t.y)
	t.predictions = make([]float64, rows)
	for i := range t.predictions {
		t.predictions[i] = t.initScore
	}
	t.trees = t.trees[:0]
	t.ValidationHistory = t.ValidationHistory[:0]

	if t.params.Verbosity > 0 {
		t.logger.Info("Boosting started",
			log.SamplesKey, rows,
			log.FeaturesKey, cols,
			"objective", t.params.Objective,
			"rounds", t.params.NumRounds)
	}

	roundsSinceImprovement := 0
	for iter := 0; iter < t.params.NumRounds; iter++ {
		if t.callback != nil {
			if err := t.callback(iter); err != nil {
				return errors.Wrapf(err, "boosting aborted at round %d", iter)
			}
		}

		t.computeGradients()

		indices := t.sampleIndices(rows)
		tree := t.buildTree(iter, indices)
		t.trees = append(t.trees, tree)
		t.updatePredictions(&tree)

		if t.valX != nil {
			score := t.validationRMSE()
			t.ValidationHistory = append(t.ValidationHistory, score)
			if score < t.bestValScore {
				t.bestValScore = score
				t.bestIteration = iter
				roundsSinceImprovement = 0
			} else {
				roundsSinceImprovement++
			}

			if t.params.Verbosity > 0 && iter%10 == 0 {
				t.logger.Debug("Boosting progress",
					log.IterationKey, iter,
					log.MetricNameKey, "validation:rmse",
					log.MetricValueKey, score)
			}

			if t.params.EarlyStopping > 0 && roundsSinceImprovement >= t.params.EarlyStopping {
				if t.params.Verbosity > 0 {
					t.logger.Info("Early stopping",
						log.IterationKey, iter,
						"best_iteration", t.bestIteration)
				}
				break
			}
		}
	}

	// Truncate to the best iteration when early stopping tracked one.
	if t.params.EarlyStopping > 0 && t.bestIteration >= 0 && t.bestIteration+1 < len(t.trees) {
		t.trees = t.trees[:t.bestIteration+1]
	}

	return nil
}

// GetModel returns the trained ensemble.
func (t *Trainer) GetModel() *Model {
	if t.X == nil || t.objective == nil {
		return NewModel()
	}
	_, cols := t.X.Dims()
	model := NewModel()
	model.Objective = t.objective.Name()
	model.NumRounds = len(t.trees)
	model.LearningRate = t.params.LearningRate
	model.MaxDepth = t.params.MaxDepth
	model.Trees = append(model.Trees[:0], t.trees...)
	model.NumFeatures = cols
	model.InitScore = t.initScore
	model.BestIteration = t.bestIteration
	return model
}

// BestValidationScore returns the lowest validation RMSE seen, or +Inf when
// no validation set was supplied.
func (t *Trainer) BestValidationScore() float64 {
	return t.bestValScore
}

func (t *Trainer) computeGradients() {
	for i := range t.y {
		t.gradients[i] = t.objective.Gradient(t.predictions[i], t.y[i])
		t.hessians[i] = t.objective.Hessian(t.predictions[i], t.y[i])
	}
}

// sampleIndices draws the bagging subsample for one round.
func (t *Trainer) sampleIndices(rows int) []int {
	if t.params.Subsample >= 1.0 {
		indices := make([]int, rows)
		for i := range indices {
			indices[i] = i
		}
		return indices
	}

	n := int(math.Ceil(t.params.Subsample * float64(rows)))
	perm := t.rng.Perm(rows)[:n]
	sort.Ints(perm)
	return perm
}

func (t *Trainer) buildTree(iteration int, indices []int) Tree {
	tree := Tree{
		TreeIndex:     iteration,
		ShrinkageRate: t.params.LearningRate,
		Nodes:         []Node{},
	}
	t.buildNode(&tree, indices, -1, 0)

	for i := range tree.Nodes {
		if tree.Nodes[i].IsLeaf() {
			tree.NumLeaves++
		}
	}
	return tree
}

// buildNode grows the tree depth-first and returns the new node's index.
func (t *Trainer) buildNode(tree *Tree, indices []int, parentID, depth int) int {
	nodeID := len(tree.Nodes)

	if depth >= t.params.MaxDepth || len(indices) < 2*t.params.MinSamplesLeaf {
		tree.Nodes = append(tree.Nodes, t.newLeaf(nodeID, parentID, indices))
		return nodeID
	}

	split := t.findBestSplit(indices)
	if split == nil || split.gain <= 0 {
		tree.Nodes = append(tree.Nodes, t.newLeaf(nodeID, parentID, indices))
		return nodeID
	}

	tree.Nodes = append(tree.Nodes, Node{
		NodeID:       nodeID,
		ParentID:     parentID,
		NodeType:     SplitNode,
		SplitFeature: split.feature,
		Threshold:    split.threshold,
		Gain:         split.gain,
		LeftChild:    -1,
		RightChild:   -1,
	})

	leftChild := t.buildNode(tree, split.left, nodeID, depth+1)
	rightChild := t.buildNode(tree, split.right, nodeID, depth+1)
	tree.Nodes[nodeID].LeftChild = leftChild
	tree.Nodes[nodeID].RightChild = rightChild
	return nodeID
}

func (t *Trainer) newLeaf(nodeID, parentID int, indices []int) Node {
	var gradSum, hessSum float64
	for _, idx := range indices {
		gradSum += t.gradients[idx]
		hessSum += t.hessians[idx]
	}
	return Node{
		NodeID:     nodeID,
		ParentID:   parentID,
		NodeType:   LeafNode,
		LeftChild:  -1,
		RightChild: -1,
		LeafValue:  t.leafWeight(gradSum, hessSum),
		LeafCount:  len(indices),
	}
}

// leafWeight is the regularized optimal leaf value -G/(H+lambda), with L1
// soft thresholding when alpha is set.
func (t *Trainer) leafWeight(gradSum, hessSum float64) float64 {
	g := gradSum
	if t.params.Alpha > 0 {
		switch {
		case g > t.params.Alpha:
			g -= t.params.Alpha
		case g < -t.params.Alpha:
			g += t.params.Alpha
		default:
			return 0
		}
	}
	return -g / (hessSum + t.params.Lambda)
}

// findBestSplit scans every feature with an exact greedy search over sorted
// values. Returns nil when no admissible split exists.
func (t *Trainer) findBestSplit(indices []int) *splitInfo {
	_, cols := t.X.Dims()

	var totalGrad, totalHess float64
	for _, idx := range indices {
		totalGrad += t.gradients[idx]
		totalHess += t.hessians[idx]
	}

	var best *splitInfo
	for feature := 0; feature < cols; feature++ {
		split := t.findBestSplitForFeature(indices, feature, totalGrad, totalHess)
		if split == nil {
			continue
		}
		if best == nil || split.gain > best.gain {
			best = split
		}
	}
	return best
}

func (t *Trainer) findBestSplitForFeature(indices []int, feature int, totalGrad, totalHess float64) *splitInfo {
	type entry struct {
		value float64
		idx   int
	}
	sorted := make([]entry, len(indices))
	for i, idx := range indices {
		sorted[i] = entry{value: t.X.At(idx, feature), idx: idx}
	}
	sort.Slice(sorted, func(a, b int) bool { return sorted[a].value < sorted[b].value })

	lambda := t.params.Lambda
	parentScore := totalGrad * totalGrad / (totalHess + lambda)

	var leftGrad, leftHess float64
	bestGain := 0.0
	bestPos := -1
	bestThreshold := 0.0

	for i := 0; i < len(sorted)-1; i++ {
		leftGrad += t.gradients[sorted[i].idx]
		leftHess += t.hessians[sorted[i].idx]

		// Cannot split between identical values.
		if sorted[i].value == sorted[i+1].value {
			continue
		}

		leftCount := i + 1
		rightCount := len(sorted) - leftCount
		if leftCount < t.params.MinSamplesLeaf || rightCount < t.params.MinSamplesLeaf {
			continue
		}

		rightGrad := totalGrad - leftGrad
		rightHess := totalHess - leftHess
		if leftHess < t.params.MinChildWeight || rightHess < t.params.MinChildWeight {
			continue
		}

		gain := 0.5*(leftGrad*leftGrad/(leftHess+lambda)+
			rightGrad*rightGrad/(rightHess+lambda)-
			parentScore) - t.params.Gamma
		if gain > bestGain {
			bestGain = gain
			bestPos = i
			bestThreshold = (sorted[i].value + sorted[i+1].value) / 2
		}
	}

	if bestPos < 0 {
		return nil
	}

	left := make([]int, 0, bestPos+1)
	right := make([]int, 0, len(sorted)-bestPos-1)
	for i, e := range sorted {
		if i <= bestPos {
			left = append(left, e.idx)
		} else {
			right = append(right, e.idx)
		}
	}

	return &splitInfo{
		feature:   feature,
		threshold: bestThreshold,
		gain:      bestGain,
		left:      left,
		right:     right,
	}
}

// updatePredictions adds the new tree's contribution to every cached train
// prediction.
func (t *Trainer) updatePredictions(tree *Tree) {
	rows, cols := t.X.Dims()
	features := make([]float64, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			features[j] = t.X.At(i, j)
		}
		t.predictions[i] += tree.Predict(features)
	}
}

func (t *Trainer) validationRMSE() float64 {
	rows, cols := t.valX.Dims()
	features := make([]float64, cols)
	var sum float64
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			features[j] = t.valX.At(i, j)
		}
		pred := t.initScore
		for ti := range t.trees {
			pred += t.trees[ti].Predict(features)
		}
		diff := pred - t.valY[i]
		sum += diff * diff
	}
	return math.Sqrt(sum / float64(rows))
}

// toDense converts the matrix pair into a dense feature matrix and a target
// slice, validating that shapes line up.
func toDense(X, y mat.Matrix) (*mat.Dense, []float64, error) {
	rows, cols := X.Dims()
	yRows, yCols := y.Dims()
	if rows != yRows {
		return nil, nil, errors.NewDimensionError("gbt", rows, yRows, 0)
	}
	if yCols != 1 {
		return nil, nil, errors.NewDimensionError("gbt", 1, yCols, 1)
	}

	xd, ok := X.(*mat.Dense)
	if !ok {
		xd = mat.NewDense(rows, cols, nil)
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				xd.Set(i, j, X.At(i, j))
			}
		}
	}

	yd := make([]float64, rows)
	for i := 0; i < rows; i++ {
		yd[i] = y.At(i, 0)
	}
	return xd, yd, nil
}
