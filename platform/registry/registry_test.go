package registry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/skiffml/skiff/blob"
	"github.com/skiffml/skiff/dataset"
)

func TestRetrieve(t *testing.T) {
	uri, err := Retrieve("xgboost", "us-east-1", "1.7-1")
	require.NoError(t, err)
	assert.Equal(t, "123456789012.dkr.skiff.us-east-1/xgboost:1.7-1", uri)

	latest, err := Retrieve("xgboost", "us-west-2", "latest")
	require.NoError(t, err)
	assert.Equal(t, "123456789012.dkr.skiff.us-west-2/xgboost:1.7-1", latest)
}

func TestRetrieveErrors(t *testing.T) {
	_, err := Retrieve("resnet", "us-east-1", "latest")
	assert.Error(t, err)

	_, err = Retrieve("xgboost", "mars-north-1", "latest")
	assert.Error(t, err)

	_, err = Retrieve("xgboost", "us-east-1", "9.9-9")
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	uri, err := Retrieve("xgboost", "eu-west-1", "")
	require.NoError(t, err)

	container, err := Resolve(uri)
	require.NoError(t, err)
	assert.NotNil(t, container)
}

func TestResolveErrors(t *testing.T) {
	for _, uri := range []string{
		"",
		"xgboost:1.7-1",
		"123456789012.dkr.skiff.us-east-1/xgboost",
		"999999999999.dkr.skiff.us-east-1/xgboost:1.7-1",
		"123456789012.dkr.skiff.us-east-1/resnet:1.0-0",
		"123456789012.dkr.skiff.us-east-1/xgboost:0.0-0",
	} {
		_, err := Resolve(uri)
		assert.Error(t, err, uri)
	}
}

// uploadChannel writes a table to the store in the container CSV contract.
func uploadChannel(t *testing.T, store blob.Store, key string, table *dataset.Table) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, dataset.WriteCSV(&buf, table))
	require.NoError(t, store.Put(context.Background(), key, &buf))
}

func TestXGBoostTrainAndPredict(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemoryStore()

	housing := dataset.LoadHousing()
	train, validation, test, err := dataset.Split(housing, dataset.DefaultSplit, 42)
	require.NoError(t, err)

	uploadChannel(t, store, "data/train/train.csv", train)
	uploadChannel(t, store, "data/validation/validation.csv", validation)

	container, err := Resolve("123456789012.dkr.skiff.us-east-1/xgboost:1.7-1")
	require.NoError(t, err)

	out, err := container.Train(ctx, TrainInput{
		HyperParameters: map[string]string{
			"max_depth":        "5",
			"eta":              "0.2",
			"gamma":            "4",
			"min_child_weight": "6",
			"subsample":        "0.7",
			"objective":        "reg:squarederror",
			"num_round":        "50",
			"seed":             "7",
		},
		Channels: map[string]string{
			"train":      "data/train/train.csv",
			"validation": "data/validation/validation.csv",
		},
		Blobs:       store,
		ArtifactKey: "output/housing/model.json",
	})
	require.NoError(t, err)
	assert.Equal(t, "output/housing/model.json", out.ArtifactKey)
	assert.Equal(t, "validation:rmse", out.MetricName)
	assert.Greater(t, out.FinalMetric, 0.0)
	assert.Less(t, out.FinalMetric, 1.0)

	artifact, err := blob.GetBytes(ctx, store, out.ArtifactKey)
	require.NoError(t, err)

	predictor, err := container.LoadPredictor(artifact)
	require.NoError(t, err)
	assert.Equal(t, train.NumFeatures(), predictor.NumFeatures())

	pred, err := predictor.Predict(test.X)
	require.NoError(t, err)
	rows, cols := pred.Dims()
	assert.Equal(t, test.NumRows(), rows)
	assert.Equal(t, 1, cols)
}

func TestXGBoostTrainMissingChannel(t *testing.T) {
	container, err := Resolve("123456789012.dkr.skiff.us-east-1/xgboost:1.7-1")
	require.NoError(t, err)

	_, err = container.Train(context.Background(), TrainInput{
		HyperParameters: map[string]string{},
		Channels:        map[string]string{},
		Blobs:           blob.NewMemoryStore(),
		ArtifactKey:     "output/model.json",
	})
	assert.Error(t, err)
}

func TestXGBoostTrainBadHyperparameter(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemoryStore()

	housing := dataset.LoadHousing()
	uploadChannel(t, store, "train.csv", housing)

	container, err := Resolve("123456789012.dkr.skiff.us-east-1/xgboost:1.7-1")
	require.NoError(t, err)

	_, err = container.Train(ctx, TrainInput{
		HyperParameters: map[string]string{"max_dpeth": "5"},
		Channels:        map[string]string{"train": "train.csv"},
		Blobs:           store,
		ArtifactKey:     "output/model.json",
	})
	assert.Error(t, err)
}

func TestXGBoostPredictorDimensionCheck(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemoryStore()

	housing := dataset.LoadHousing()
	uploadChannel(t, store, "train.csv", housing)

	container, err := Resolve("123456789012.dkr.skiff.us-east-1/xgboost:1.7-1")
	require.NoError(t, err)

	out, err := container.Train(ctx, TrainInput{
		HyperParameters: map[string]string{"num_round": "3", "max_depth": "3"},
		Channels:        map[string]string{"train": "train.csv"},
		Blobs:           store,
		ArtifactKey:     "output/model.json",
	})
	require.NoError(t, err)
	assert.Equal(t, "train:rmse", out.MetricName)

	artifact, err := blob.GetBytes(ctx, store, out.ArtifactKey)
	require.NoError(t, err)
	predictor, err := container.LoadPredictor(artifact)
	require.NoError(t, err)

	_, err = predictor.Predict(mat.NewDense(2, 3, nil))
	assert.Error(t, err)
}

func TestLinearLearnerTrainAndPredict(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemoryStore()

	housing := dataset.LoadHousing()
	train, validation, test, err := dataset.Split(housing, dataset.DefaultSplit, 42)
	require.NoError(t, err)

	uploadChannel(t, store, "data/train/train.csv", train)
	uploadChannel(t, store, "data/validation/validation.csv", validation)

	uri, err := Retrieve("linear-learner", "us-east-1", "latest")
	require.NoError(t, err)
	container, err := Resolve(uri)
	require.NoError(t, err)

	out, err := container.Train(ctx, TrainInput{
		HyperParameters: map[string]string{
			"wd":             "0.1",
			"predictor_type": "regressor",
		},
		Channels: map[string]string{
			"train":      "data/train/train.csv",
			"validation": "data/validation/validation.csv",
		},
		Blobs:       store,
		ArtifactKey: "output/linear/model.json",
	})
	require.NoError(t, err)
	assert.Equal(t, "validation:rmse", out.MetricName)
	assert.Greater(t, out.FinalMetric, 0.0)

	artifact, err := blob.GetBytes(ctx, store, out.ArtifactKey)
	require.NoError(t, err)
	predictor, err := container.LoadPredictor(artifact)
	require.NoError(t, err)

	pred, err := predictor.Predict(test.X)
	require.NoError(t, err)
	rows, _ := pred.Dims()
	assert.Equal(t, test.NumRows(), rows)
}
