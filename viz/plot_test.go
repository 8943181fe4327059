package viz

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func vectors(n int) (*mat.VecDense, *mat.VecDense) {
	actual := mat.NewVecDense(n, nil)
	predicted := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		actual.SetVec(i, float64(i)*0.1)
		predicted.SetVec(i, float64(i)*0.1+0.05)
	}
	return actual, predicted
}

func TestPredictedVsActual(t *testing.T) {
	actual, predicted := vectors(50)
	pl, err := PredictedVsActual(actual, predicted, "predicted vs actual")
	require.NoError(t, err)
	assert.Equal(t, "predicted vs actual", pl.Title.Text)
}

func TestPredictedVsActualErrors(t *testing.T) {
	actual, _ := vectors(50)
	short := mat.NewVecDense(10, nil)

	_, err := PredictedVsActual(actual, short, "")
	assert.Error(t, err)

	empty := new(mat.VecDense)
	_, err = PredictedVsActual(empty, empty, "")
	assert.Error(t, err)
}

func TestSavePredictedVsActualPNG(t *testing.T) {
	actual, predicted := vectors(50)
	path := filepath.Join(t.TempDir(), "scatter.png")

	require.NoError(t, SavePredictedVsActual(actual, predicted, "housing", path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestWritePredictedVsActualPNG(t *testing.T) {
	actual, predicted := vectors(20)

	var buf bytes.Buffer
	require.NoError(t, WritePredictedVsActualPNG(&buf, actual, predicted, "housing"))

	// PNG magic bytes.
	require.Greater(t, buf.Len(), 8)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, buf.Bytes()[:4])
}
