package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/skiffml/skiff/pkg/errors"
)

func vec(values ...float64) *mat.VecDense {
	return mat.NewVecDense(len(values), values)
}

func TestMSE(t *testing.T) {
	yTrue := vec(1, 2, 3, 4)
	yPred := vec(1, 2, 3, 4)

	mse, err := MSE(yTrue, yPred)
	require.NoError(t, err)
	assert.Equal(t, 0.0, mse)

	mse, err = MSE(vec(1, 2, 3), vec(2, 3, 4))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, mse, 1e-12)
}

func TestMSEEmptyVector(t *testing.T) {
	_, err := MSE(new(mat.VecDense), new(mat.VecDense))
	require.Error(t, err)
}

func TestMSEDimensionMismatch(t *testing.T) {
	_, err := MSE(vec(1, 2, 3), vec(1, 2))
	require.Error(t, err)

	var de *errors.DimensionError
	assert.True(t, errors.As(err, &de))
}

func TestRMSE(t *testing.T) {
	rmse, err := RMSE(vec(0, 0, 0, 0), vec(2, 2, 2, 2))
	require.NoError(t, err)
	assert.InDelta(t, 2.0, rmse, 1e-12)
}

func TestMAE(t *testing.T) {
	mae, err := MAE(vec(1, 2, 3), vec(2, 1, 5))
	require.NoError(t, err)
	assert.InDelta(t, 4.0/3.0, mae, 1e-12)
}

func TestR2ScorePerfect(t *testing.T) {
	r2, err := R2Score(vec(1, 2, 3, 4), vec(1, 2, 3, 4))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, r2, 1e-12)
}

func TestR2ScoreMeanPredictor(t *testing.T) {
	// Predicting the mean everywhere gives R² = 0.
	r2, err := R2Score(vec(1, 2, 3, 4, 5), vec(3, 3, 3, 3, 3))
	require.NoError(t, err)
	assert.InDelta(t, 0.0, r2, 1e-12)
}

func TestR2ScoreNoVariance(t *testing.T) {
	_, err := R2Score(vec(2, 2, 2), vec(1, 2, 3))
	require.Error(t, err)
}

func TestMAPE(t *testing.T) {
	mape, err := MAPE(vec(100, 200), vec(110, 180))
	require.NoError(t, err)
	assert.InDelta(t, 10.0, mape, 1e-9)
}

func TestMAPESkipsZeroTargets(t *testing.T) {
	mape, err := MAPE(vec(0, 100), vec(5, 110))
	require.NoError(t, err)
	assert.InDelta(t, 10.0, mape, 1e-9)

	_, err = MAPE(vec(0, 0), vec(1, 2))
	require.Error(t, err)
}

func TestRMSEMatchesSqrtMSE(t *testing.T) {
	yTrue := vec(1.5, 2.5, 3.5)
	yPred := vec(1.0, 3.0, 3.0)

	mse, err := MSE(yTrue, yPred)
	require.NoError(t, err)
	rmse, err := RMSE(yTrue, yPred)
	require.NoError(t, err)
	assert.InDelta(t, math.Sqrt(mse), rmse, 1e-15)
}
