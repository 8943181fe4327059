package gbt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestTrainerFitConstantTarget(t *testing.T) {
	// A constant target needs no trees beyond the baseline.
	X := mat.NewDense(50, 2, nil)
	y := mat.NewDense(50, 1, nil)
	for i := 0; i < 50; i++ {
		X.Set(i, 0, float64(i))
		X.Set(i, 1, float64(i%7))
		y.Set(i, 0, 3.5)
	}

	trainer := NewTrainer(TrainingParams{NumRounds: 5})
	require.NoError(t, trainer.Fit(X, y))

	model := trainer.GetModel()
	assert.InDelta(t, 3.5, model.InitScore, 1e-12)

	pred, err := model.Predict(X)
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		assert.InDelta(t, 3.5, pred.At(i, 0), 1e-9)
	}
}

func TestTrainerStepFunction(t *testing.T) {
	// y is a step on feature 0; one depth-1 tree should nail it.
	X := mat.NewDense(100, 1, nil)
	y := mat.NewDense(100, 1, nil)
	for i := 0; i < 100; i++ {
		X.Set(i, 0, float64(i))
		if i < 50 {
			y.Set(i, 0, 0)
		} else {
			y.Set(i, 0, 10)
		}
	}

	trainer := NewTrainer(TrainingParams{NumRounds: 30, MaxDepth: 1, LearningRate: 0.5})
	require.NoError(t, trainer.Fit(X, y))

	model := trainer.GetModel()
	pred, err := model.Predict(X)
	require.NoError(t, err)

	assert.InDelta(t, 0, pred.At(0, 0), 0.5)
	assert.InDelta(t, 10, pred.At(99, 0), 0.5)

	// Every split threshold must fall in the step gap.
	for _, tree := range model.Trees {
		for _, node := range tree.Nodes {
			if !node.IsLeaf() {
				assert.InDelta(t, 49.5, node.Threshold, 0.6)
			}
		}
	}
}

func TestTrainerGammaPrunesWeakSplits(t *testing.T) {
	X, y := makeRegressionData(200, 3, 8)

	loose := NewTrainer(TrainingParams{NumRounds: 5, MaxDepth: 4})
	require.NoError(t, loose.Fit(X, y))

	strict := NewTrainer(TrainingParams{NumRounds: 5, MaxDepth: 4, Gamma: 1e6})
	require.NoError(t, strict.Fit(X, y))

	looseLeaves := 0
	for _, tree := range loose.GetModel().Trees {
		looseLeaves += tree.NumLeaves
	}
	strictLeaves := 0
	for _, tree := range strict.GetModel().Trees {
		strictLeaves += tree.NumLeaves
	}

	// A huge gamma forbids every split, leaving root-only trees.
	assert.Equal(t, len(strict.GetModel().Trees), strictLeaves)
	assert.Greater(t, looseLeaves, strictLeaves)
}

func TestTrainerValidationHistory(t *testing.T) {
	X, y := makeRegressionData(300, 3, 15)
	valX, valY := makeRegressionData(80, 3, 16)

	trainer := NewTrainer(TrainingParams{NumRounds: 12, MaxDepth: 3})
	require.NoError(t, trainer.SetValidation(valX, valY))
	require.NoError(t, trainer.Fit(X, y))

	require.Len(t, trainer.ValidationHistory, 12)
	first := trainer.ValidationHistory[0]
	last := trainer.ValidationHistory[len(trainer.ValidationHistory)-1]
	assert.Less(t, last, first, "validation RMSE should improve over rounds")
	assert.Equal(t, trainer.BestValidationScore(), trainer.ValidationHistory[trainer.bestIteration])
}

func TestTrainerValidationFeatureMismatch(t *testing.T) {
	X, y := makeRegressionData(50, 3, 1)
	valX, valY := makeRegressionData(20, 2, 2)

	trainer := NewTrainer(TrainingParams{NumRounds: 3})
	require.NoError(t, trainer.SetValidation(valX, valY))
	err := trainer.Fit(X, y)
	require.Error(t, err)
}

func TestTrainerRowMismatch(t *testing.T) {
	trainer := NewTrainer(TrainingParams{})
	err := trainer.Fit(mat.NewDense(4, 2, nil), mat.NewDense(3, 1, nil))
	require.Error(t, err)
}

func TestObjectiveFactory(t *testing.T) {
	for _, name := range []string{"reg:squarederror", "reg:linear", "reg:absoluteerror", "reg:pseudohubererror", ""} {
		obj, err := NewObjective(name, 1.0)
		require.NoError(t, err, name)
		require.NotNil(t, obj)
	}

	_, err := NewObjective("multi:softmax", 0)
	require.Error(t, err)
}

func TestSquaredErrorObjective(t *testing.T) {
	obj, err := NewObjective("reg:squarederror", 0)
	require.NoError(t, err)

	assert.Equal(t, 2.0, obj.Gradient(5, 3))
	assert.Equal(t, 1.0, obj.Hessian(5, 3))
	assert.InDelta(t, 2.0, obj.InitScore([]float64{1, 2, 3}), 1e-15)
}

func TestAbsoluteErrorObjectiveMedianInit(t *testing.T) {
	obj, err := NewObjective("reg:absoluteerror", 0)
	require.NoError(t, err)

	assert.InDelta(t, 2.0, obj.InitScore([]float64{1, 2, 100}), 1e-15)
	assert.InDelta(t, 1.5, obj.InitScore([]float64{1, 2}), 1e-15)
	assert.Equal(t, 1.0, obj.Gradient(5, 3))
	assert.Equal(t, -1.0, obj.Gradient(3, 5))
}

func TestTrainerIterationCallbackAborts(t *testing.T) {
	X := mat.NewDense(60, 1, nil)
	y := mat.NewDense(60, 1, nil)
	for i := 0; i < 60; i++ {
		X.Set(i, 0, float64(i))
		y.Set(i, 0, float64(i)*0.1)
	}

	trainer := NewTrainer(TrainingParams{NumRounds: 20})
	trainer.SetIterationCallback(func(iteration int) error {
		if iteration >= 3 {
			return assert.AnError
		}
		return nil
	})

	err := trainer.Fit(X, y)
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}
