package model

import (
	"gonum.org/v1/gonum/mat"
)

// Fitter is the interface for trainable models.
type Fitter interface {
	// Fit trains the model on the given data.
	Fit(X, y mat.Matrix) error
}

// Predictor is the interface for models that can make predictions.
type Predictor interface {
	// Predict returns predictions for the input samples.
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// Scorer is the interface for models that can compute a score.
type Scorer interface {
	// Score returns the coefficient of determination R^2 of the prediction.
	Score(X mat.Matrix, y mat.Matrix) (float64, error)
}

// Regressor combines the interfaces every regression model satisfies.
type Regressor interface {
	Fitter
	Predictor
	Scorer
}

// ParameterSetter is the interface for models that accept hyperparameters
// from string maps, the format used by training-job specifications.
type ParameterSetter interface {
	// SetParams sets the model's hyperparameters.
	SetParams(params map[string]string) error
}
