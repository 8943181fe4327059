package sdk

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skiffml/skiff/dataset"
	"github.com/skiffml/skiff/metrics"
	"github.com/skiffml/skiff/pkg/errors"
	"github.com/skiffml/skiff/platform/serving"
	"github.com/skiffml/skiff/platform/training"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	sess, err := NewSession(Config{Region: "us-east-1", Bucket: "skiff-test"})
	require.NoError(t, err)
	t.Cleanup(func() { sess.Close() })
	return sess
}

func uploadSplit(t *testing.T, sess *Session) (channels map[string]string, test *dataset.Table) {
	t.Helper()
	ctx := context.Background()

	housing := dataset.LoadHousing()
	train, validation, test, err := dataset.Split(housing, dataset.DefaultSplit, 42)
	require.NoError(t, err)

	channels = make(map[string]string)
	for name, table := range map[string]*dataset.Table{
		"train": train, "validation": validation,
	} {
		var buf bytes.Buffer
		require.NoError(t, dataset.WriteCSV(&buf, table))
		key, err := sess.UploadData(ctx, "data/"+name, name+".csv", &buf)
		require.NoError(t, err)
		channels[name] = key
	}
	return channels, test
}

func TestSessionDefaults(t *testing.T) {
	sess, err := NewSession(Config{})
	require.NoError(t, err)
	defer sess.Close()

	assert.Equal(t, "us-east-1", sess.Region())
	assert.Equal(t, "skiff-us-east-1", sess.Bucket())

	uri, err := sess.RetrieveImage("xgboost", "1.7-1")
	require.NoError(t, err)
	assert.Equal(t, "123456789012.dkr.skiff.us-east-1/xgboost:1.7-1", uri)

	assert.Equal(t, "s3://skiff-us-east-1/data/train.csv",
		sess.StorageURI("data/train.csv"))
}

func TestUploadDownload(t *testing.T) {
	sess := newTestSession(t)
	ctx := context.Background()

	key, err := sess.UploadData(ctx, "data", "train.csv", bytes.NewBufferString("1,2\n"))
	require.NoError(t, err)
	assert.Equal(t, "data/train.csv", key)

	b, err := sess.Download(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "1,2\n", string(b))
}

func TestEstimatorEndToEnd(t *testing.T) {
	sess := newTestSession(t)
	ctx := context.Background()
	channels, test := uploadSplit(t, sess)

	uri, err := sess.RetrieveImage("xgboost", "latest")
	require.NoError(t, err)

	est := NewEstimator(sess, uri, WithPollInterval(20*time.Millisecond))
	est.SetHyperParameters(map[string]string{
		"max_depth":        "5",
		"eta":              "0.2",
		"gamma":            "4",
		"min_child_weight": "6",
		"subsample":        "0.7",
		"objective":        "reg:squarederror",
		"num_round":        "50",
		"seed":             "7",
	})

	var polls int
	require.NoError(t, est.Fit(ctx, channels,
		WithJobName("housing-e2e"),
		WithProgress(func(*training.JobDescription) { polls++ })))
	assert.Greater(t, polls, 0)

	job := est.LatestJob()
	require.NotNil(t, job)
	assert.Equal(t, training.StatusCompleted, job.Status)
	assert.Greater(t, job.FinalMetric, 0.0)

	artifact, err := est.ModelArtifact()
	require.NoError(t, err)
	assert.Equal(t, "output/housing-e2e/model.json", artifact)

	predictor, err := est.Deploy(ctx, "housing-e2e-endpoint")
	require.NoError(t, err)
	require.NoError(t, predictor.Ping(ctx))

	predictions, err := predictor.Predict(ctx, test.X)
	require.NoError(t, err)
	require.Equal(t, test.NumRows(), predictions.Len())

	rmse, err := metrics.RMSE(test.Y, predictions)
	require.NoError(t, err)
	assert.Less(t, rmse, 0.6)

	require.NoError(t, predictor.DeleteEndpoint(ctx))

	_, err = predictor.Predict(ctx, test.X)
	assert.True(t, errors.IsNotFound(err))

	err = predictor.DeleteEndpoint(ctx)
	assert.True(t, errors.IsNotFound(err))
}

func TestEstimatorFitFailureSurfaces(t *testing.T) {
	sess := newTestSession(t)
	ctx := context.Background()
	channels, _ := uploadSplit(t, sess)

	uri, err := sess.RetrieveImage("xgboost", "latest")
	require.NoError(t, err)

	est := NewEstimator(sess, uri, WithPollInterval(20*time.Millisecond))
	est.SetHyperParameters(map[string]string{"eta": "not-a-number"})

	err = est.Fit(ctx, channels, WithJobName("doomed-e2e"))
	require.Error(t, err)

	var jfe *errors.JobFailedError
	require.True(t, errors.As(err, &jfe))
	assert.Equal(t, "doomed-e2e", jfe.JobName)
	assert.Contains(t, jfe.FailureReason, "eta")
}

func TestDeployBeforeFit(t *testing.T) {
	sess := newTestSession(t)

	est := NewEstimator(sess, "123456789012.dkr.skiff.us-east-1/xgboost:1.7-1")
	_, err := est.Deploy(context.Background(), "premature")
	require.Error(t, err)

	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))
}

func TestPredictorNotReady(t *testing.T) {
	sess := newTestSession(t)
	ctx := context.Background()

	// An endpoint whose artifact is missing ends up Failed; a predictor
	// bound to it must refuse to invoke.
	_, err := sess.Serving().CreateEndpoint(ctx, "broken", serving.EndpointConfig{
		ImageURI:         "123456789012.dkr.skiff.us-east-1/xgboost:1.7-1",
		ModelArtifactKey: "output/ghost/model.json",
	})
	require.Error(t, err)

	p := newPredictor(sess, "broken")
	err = p.Ping(ctx)
	require.Error(t, err)

	var enr *errors.EndpointNotReadyError
	require.True(t, errors.As(err, &enr))
	assert.Equal(t, "Failed", enr.Status)
}

func TestHyperParametersCopied(t *testing.T) {
	sess := newTestSession(t)
	est := NewEstimator(sess, "123456789012.dkr.skiff.us-east-1/xgboost:1.7-1")

	params := map[string]string{"max_depth": "5"}
	est.SetHyperParameters(params)
	params["max_depth"] = "99"

	assert.Equal(t, "5", est.HyperParameters()["max_depth"])
}

func TestHyperParameterSingleKey(t *testing.T) {
	sess := newTestSession(t)
	est := NewEstimator(sess, "123456789012.dkr.skiff.us-east-1/xgboost:1.7-1")

	est.SetHyperParameters(map[string]string{"max_depth": "5"})
	est.HyperParameter("eta", "0.2")
	est.HyperParameter("max_depth", "3")

	got := est.HyperParameters()
	assert.Equal(t, "3", got["max_depth"])
	assert.Equal(t, "0.2", got["eta"])
}

func TestJobNamePrefix(t *testing.T) {
	sess := newTestSession(t)
	ctx := context.Background()

	table := dataset.LoadHousing()
	train, _, _, err := dataset.Split(table, dataset.DefaultSplit, 7)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, dataset.WriteCSV(&buf, train))
	trainKey, err := sess.UploadData(ctx, "data", "train.csv", &buf)
	require.NoError(t, err)

	est := NewEstimator(sess, "123456789012.dkr.skiff.us-east-1/xgboost:1.7-1",
		WithJobNamePrefix("housing-demo"))
	est.SetHyperParameters(map[string]string{"num_round": "3", "max_depth": "2"})
	require.NoError(t, est.Fit(ctx, map[string]string{"train": trainKey}))

	require.NotNil(t, est.LatestJob())
	assert.True(t, strings.HasPrefix(est.LatestJob().Name, "housing-demo-"))
}
