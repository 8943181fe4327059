package linear

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// planeData samples y = 2*x0 - 3*x1 + 1.
func planeData(n int) (*mat.Dense, *mat.Dense) {
	X := mat.NewDense(n, 2, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		x0 := float64(i) * 0.1
		x1 := float64(i%13) * 0.5
		X.Set(i, 0, x0)
		X.Set(i, 1, x1)
		y.Set(i, 0, 2*x0-3*x1+1)
	}
	return X, y
}

func TestRegressorRecoversPlane(t *testing.T) {
	X, y := planeData(100)

	reg := NewRegressor().WithNormalize(false)
	require.NoError(t, reg.Fit(X, y))

	assert.InDelta(t, 2.0, reg.Model.Weights[0], 1e-8)
	assert.InDelta(t, -3.0, reg.Model.Weights[1], 1e-8)
	assert.InDelta(t, 1.0, reg.Model.Intercept, 1e-8)

	score, err := reg.Score(X, y)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, score, 1e-9)
}

func TestRegressorNormalizedMatchesPlane(t *testing.T) {
	X, y := planeData(100)

	reg := NewRegressor() // normalization on by default
	require.NoError(t, reg.Fit(X, y))

	pred, err := reg.Predict(X)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		assert.InDelta(t, y.At(i, 0), pred.At(i, 0), 1e-8)
	}
}

func TestRegressorWeightDecayShrinks(t *testing.T) {
	X, y := planeData(100)

	plain := NewRegressor().WithNormalize(false)
	require.NoError(t, plain.Fit(X, y))

	ridge := NewRegressor().WithNormalize(false).WithWeightDecay(100)
	require.NoError(t, ridge.Fit(X, y))

	for j := 0; j < 2; j++ {
		assert.Less(t, abs(ridge.Model.Weights[j]), abs(plain.Model.Weights[j]))
	}
}

func TestRegressorNotFitted(t *testing.T) {
	reg := NewRegressor()
	_, err := reg.Predict(mat.NewDense(1, 2, nil))
	assert.Error(t, err)
}

func TestRegressorDimensionMismatch(t *testing.T) {
	X, y := planeData(50)
	reg := NewRegressor()
	require.NoError(t, reg.Fit(X, y))

	_, err := reg.Predict(mat.NewDense(3, 5, nil))
	assert.Error(t, err)
}

func TestSetParamsContract(t *testing.T) {
	reg := NewRegressor()
	require.NoError(t, reg.SetParams(map[string]string{
		"wd":             "0.5",
		"normalize_data": "false",
		"predictor_type": "regressor",
	}))
	assert.Equal(t, 0.5, reg.WeightDecay)
	assert.False(t, reg.Normalize)

	assert.Error(t, reg.SetParams(map[string]string{"predictor_type": "classifier"}))
	assert.Error(t, reg.SetParams(map[string]string{"wd": "-1"}))
	assert.Error(t, reg.SetParams(map[string]string{"learning_rate": "0.1"}))
}

func TestModelJSONRoundTrip(t *testing.T) {
	X, y := planeData(100)
	reg := NewRegressor()
	require.NoError(t, reg.Fit(X, y))

	data, err := reg.Model.ToJSON()
	require.NoError(t, err)

	restored, err := FromJSON(data)
	require.NoError(t, err)

	loaded := NewRegressor()
	loaded.LoadModel(restored)

	want, err := reg.Predict(X)
	require.NoError(t, err)
	got, err := loaded.Predict(X)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		assert.Equal(t, want.At(i, 0), got.At(i, 0))
	}
}

func TestFromJSONRejectsInconsistent(t *testing.T) {
	_, err := FromJSON([]byte(`{"weights":[1,2],"num_features":3}`))
	assert.Error(t, err)

	_, err = FromJSON([]byte(`{"weights":[1,2],"num_features":2,"mean":[0]}`))
	assert.Error(t, err)

	_, err = FromJSON([]byte(`not json`))
	assert.Error(t, err)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
