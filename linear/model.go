// Package linear implements the ridge regression model behind the
// linear-learner built-in algorithm.
package linear

import (
	"encoding/json"

	"gonum.org/v1/gonum/mat"

	"github.com/skiffml/skiff/pkg/errors"
)

// Model is the serialized form of a trained linear regressor. When the
// regressor was trained with feature normalization, Mean and Scale carry
// the training statistics so inference applies the same transform.
type Model struct {
	Weights     []float64 `json:"weights"`
	Intercept   float64   `json:"intercept"`
	NumFeatures int       `json:"num_features"`
	Mean        []float64 `json:"mean,omitempty"`
	Scale       []float64 `json:"scale,omitempty"`
}

// PredictRow scores a single already-normalized feature row.
func (m *Model) PredictRow(features []float64) float64 {
	pred := m.Intercept
	for j, w := range m.Weights {
		pred += w * features[j]
	}
	return pred
}

// Predict scores feature rows, applying stored normalization if present.
func (m *Model) Predict(X mat.Matrix) (*mat.Dense, error) {
	rows, cols := X.Dims()
	if cols != m.NumFeatures {
		return nil, errors.NewDimensionError("linear.Predict", m.NumFeatures, cols, 1)
	}

	out := mat.NewDense(rows, 1, nil)
	row := make([]float64, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := X.At(i, j)
			if m.Mean != nil {
				v = (v - m.Mean[j]) / m.Scale[j]
			}
			row[j] = v
		}
		out.Set(i, 0, m.PredictRow(row))
	}
	return out, nil
}

// ToJSON serializes the model to its artifact format.
func (m *Model) ToJSON() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(err, "serializing linear model")
	}
	return data, nil
}

// FromJSON deserializes a model from its artifact format.
func FromJSON(data []byte) (*Model, error) {
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(err, "deserializing linear model")
	}
	if m.NumFeatures <= 0 || len(m.Weights) != m.NumFeatures {
		return nil, errors.NewValueError("linear.FromJSON", "model has inconsistent feature count")
	}
	if (m.Mean != nil || m.Scale != nil) && (len(m.Mean) != m.NumFeatures || len(m.Scale) != m.NumFeatures) {
		return nil, errors.NewValueError("linear.FromJSON", "model has inconsistent normalization statistics")
	}
	return &m, nil
}
