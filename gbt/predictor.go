package gbt

import (
	"runtime"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/skiffml/skiff/pkg/errors"
)

// Predictor makes batch predictions with a trained model, splitting large
// batches across worker goroutines.
type Predictor struct {
	model      *Model
	numWorkers int
}

// NewPredictor creates a predictor for the model using all available cores.
func NewPredictor(model *Model) *Predictor {
	return &Predictor{
		model:      model,
		numWorkers: runtime.NumCPU(),
	}
}

// SetNumWorkers bounds the number of goroutines used per batch.
func (p *Predictor) SetNumWorkers(n int) {
	if n > 0 {
		p.numWorkers = n
	}
}

// minParallelRows is the batch size below which prediction stays sequential.
const minParallelRows = 256

// Predict returns predictions for a batch of samples as an n×1 matrix.
func (p *Predictor) Predict(X mat.Matrix) (mat.Matrix, error) {
	rows, cols := X.Dims()
	if cols != p.model.NumFeatures {
		return nil, errors.NewDimensionError("Predictor.Predict", p.model.NumFeatures, cols, 1)
	}

	out := mat.NewDense(rows, 1, nil)

	workers := p.numWorkers
	if rows < minParallelRows || workers <= 1 {
		p.predictRange(X, out, 0, rows)
		return out, nil
	}
	if workers > rows {
		workers = rows
	}

	chunk := (rows + workers - 1) / workers
	var wg sync.WaitGroup
	for start := 0; start < rows; start += chunk {
		end := start + chunk
		if end > rows {
			end = rows
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			p.predictRange(X, out, start, end)
		}(start, end)
	}
	wg.Wait()

	return out, nil
}

func (p *Predictor) predictRange(X mat.Matrix, out *mat.Dense, start, end int) {
	_, cols := X.Dims()
	features := make([]float64, cols)
	for i := start; i < end; i++ {
		for j := 0; j < cols; j++ {
			features[j] = X.At(i, j)
		}
		out.Set(i, 0, p.model.PredictRow(features))
	}
}
