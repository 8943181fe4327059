package serving

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skiffml/skiff/blob"
	"github.com/skiffml/skiff/dataset"
	"github.com/skiffml/skiff/gbt"
	"github.com/skiffml/skiff/pkg/errors"
	"github.com/skiffml/skiff/platform/store"
)

const testImageURI = "123456789012.dkr.skiff.us-east-1/xgboost:1.7-1"
const testArtifactKey = "output/housing/model.json"

// trainArtifact fits a small model and stores its artifact, returning the
// table it was trained on.
func trainArtifact(t *testing.T, blobs blob.Store) *dataset.Table {
	t.Helper()

	housing := dataset.LoadHousing()
	reg := gbt.NewRegressor().WithNumRounds(5).WithMaxDepth(3)
	require.NoError(t, reg.Fit(housing.X, housing.YMatrix()))

	artifact, err := reg.Model.ToJSON()
	require.NoError(t, err)
	require.NoError(t, blob.PutBytes(context.Background(), blobs, testArtifactKey, artifact))
	return housing
}

func newTestService(t *testing.T) (*Service, blob.Store) {
	t.Helper()
	meta, err := store.Open(filepath.Join(t.TempDir(), "metadata.db"))
	require.NoError(t, err)
	t.Cleanup(func() { meta.Close() })

	blobs := blob.NewMemoryStore()
	svc, err := NewService(blobs, meta)
	require.NoError(t, err)
	t.Cleanup(svc.Shutdown)
	return svc, blobs
}

func TestEndpointServesPredictions(t *testing.T) {
	svc, blobs := newTestService(t)
	ctx := context.Background()
	housing := trainArtifact(t, blobs)

	desc, err := svc.CreateEndpoint(ctx, "housing-endpoint", EndpointConfig{
		ImageURI:         testImageURI,
		ModelArtifactKey: testArtifactKey,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusInService, desc.Status)
	require.NotEmpty(t, desc.URL)

	// Health check.
	resp, err := http.Get(desc.URL + "/ping")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Score the first 10 rows over the wire.
	sample, err := housing.Select(seq(10))
	require.NoError(t, err)
	var payload bytes.Buffer
	require.NoError(t, dataset.WriteFeaturesCSV(&payload, sample.X))

	resp, err = http.Post(desc.URL+"/invocations", "text/csv", &payload)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))

	predictions, err := dataset.ReadPredictions(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 10, predictions.Len())
}

func TestEndpointRejectsBadPayload(t *testing.T) {
	svc, blobs := newTestService(t)
	ctx := context.Background()
	trainArtifact(t, blobs)

	desc, err := svc.CreateEndpoint(ctx, "strict", EndpointConfig{
		ImageURI:         testImageURI,
		ModelArtifactKey: testArtifactKey,
	})
	require.NoError(t, err)

	// Wrong feature count.
	resp, err := http.Post(desc.URL+"/invocations", "text/csv",
		bytes.NewBufferString("1.0,2.0\n"))
	require.NoError(t, err)
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Non-numeric payload.
	resp, err = http.Post(desc.URL+"/invocations", "text/csv",
		bytes.NewBufferString("not,a,number\n"))
	require.NoError(t, err)
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateEndpointDuplicate(t *testing.T) {
	svc, blobs := newTestService(t)
	ctx := context.Background()
	trainArtifact(t, blobs)

	cfg := EndpointConfig{ImageURI: testImageURI, ModelArtifactKey: testArtifactKey}
	_, err := svc.CreateEndpoint(ctx, "dup", cfg)
	require.NoError(t, err)

	_, err = svc.CreateEndpoint(ctx, "dup", cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrEndpointAlreadyExists))
}

func TestCreateEndpointMissingArtifact(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateEndpoint(ctx, "no-model", EndpointConfig{
		ImageURI:         testImageURI,
		ModelArtifactKey: "output/ghost/model.json",
	})
	require.Error(t, err)

	desc, err := svc.DescribeEndpoint(ctx, "no-model")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, desc.Status)
	assert.NotEmpty(t, desc.FailureReason)
}

func TestDeleteEndpointTwice(t *testing.T) {
	svc, blobs := newTestService(t)
	ctx := context.Background()
	trainArtifact(t, blobs)

	desc, err := svc.CreateEndpoint(ctx, "ephemeral", EndpointConfig{
		ImageURI:         testImageURI,
		ModelArtifactKey: testArtifactKey,
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteEndpoint(ctx, "ephemeral"))

	// The server is gone with the endpoint.
	_, err = http.Get(desc.URL + "/ping")
	assert.Error(t, err)

	err = svc.DeleteEndpoint(ctx, "ephemeral")
	assert.True(t, errors.IsNotFound(err))

	_, err = svc.DescribeEndpoint(ctx, "ephemeral")
	assert.True(t, errors.IsNotFound(err))
}

func TestPredictorCacheReuse(t *testing.T) {
	svc, blobs := newTestService(t)
	ctx := context.Background()
	trainArtifact(t, blobs)

	cfg := EndpointConfig{ImageURI: testImageURI, ModelArtifactKey: testArtifactKey}
	_, err := svc.CreateEndpoint(ctx, "a", cfg)
	require.NoError(t, err)
	_, err = svc.CreateEndpoint(ctx, "b", cfg)
	require.NoError(t, err)

	// Both endpoints share one cached predictor for the artifact.
	assert.Equal(t, 1, svc.predictors.Len())
}

func seq(n int) []int {
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	return indices
}
