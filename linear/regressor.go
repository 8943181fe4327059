package linear

import (
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/skiffml/skiff/core/model"
	"github.com/skiffml/skiff/metrics"
	"github.com/skiffml/skiff/pkg/errors"
	"github.com/skiffml/skiff/preprocessing"
)

// Regressor is a ridge regression estimator solved by the normal equations
// (X'X + wd*I)w = X'y, with the intercept left unpenalized.
type Regressor struct {
	model.BaseEstimator

	Model *Model

	// Hyperparameters (names follow the linear-learner container contract)
	WeightDecay float64 // wd (L2)
	Normalize   bool    // normalize_data

	nFeatures int
}

// NewRegressor creates a regressor with the container defaults.
func NewRegressor() *Regressor {
	return &Regressor{WeightDecay: 0, Normalize: true}
}

// WithWeightDecay sets the L2 penalty.
func (r *Regressor) WithWeightDecay(wd float64) *Regressor {
	r.WeightDecay = wd
	return r
}

// WithNormalize toggles feature standardization before the solve.
func (r *Regressor) WithNormalize(normalize bool) *Regressor {
	r.Normalize = normalize
	return r
}

// SetParams applies hyperparameters from the string map of a training-job
// specification. Unknown keys are rejected.
func (r *Regressor) SetParams(params map[string]string) error {
	for key, raw := range params {
		var err error
		switch key {
		case "wd", "l2":
			r.WeightDecay, err = strconv.ParseFloat(raw, 64)
			if err == nil && r.WeightDecay < 0 {
				return errors.NewValidationError(key, "must be non-negative", raw)
			}
		case "normalize_data":
			r.Normalize, err = strconv.ParseBool(raw)
		case "predictor_type":
			if raw != "regressor" {
				return errors.NewValidationError(key, "only \"regressor\" is supported", raw)
			}
		default:
			return errors.NewValidationError(key, "unknown hyperparameter", raw)
		}
		if err != nil {
			return errors.NewValidationError(key, "cannot parse value", raw)
		}
	}
	return nil
}

// GetParams returns the hyperparameters in the string-map contract format.
func (r *Regressor) GetParams() map[string]string {
	return map[string]string{
		"wd":             strconv.FormatFloat(r.WeightDecay, 'g', -1, 64),
		"normalize_data": strconv.FormatBool(r.Normalize),
		"predictor_type": "regressor",
	}
}

// Fit solves the (optionally normalized) ridge system.
func (r *Regressor) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "linear.Regressor.Fit")

	rows, cols := X.Dims()
	yRows, yCols := y.Dims()
	if rows == 0 || cols == 0 {
		return errors.NewModelError("linear.Fit", "empty data", errors.ErrEmptyData)
	}
	if rows != yRows {
		return errors.NewDimensionError("linear.Fit", rows, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewDimensionError("linear.Fit", 1, yCols, 1)
	}
	r.nFeatures = cols

	m := &Model{NumFeatures: cols}
	features := X
	if r.Normalize {
		scaler := preprocessing.NewStandardScaler()
		scaled, scaleErr := scaler.FitTransform(X)
		if scaleErr != nil {
			return scaleErr
		}
		features = scaled
		m.Mean = scaler.Mean
		m.Scale = scaler.Scale
	}

	// Augment with the intercept column.
	design := mat.NewDense(rows, cols+1, nil)
	for i := 0; i < rows; i++ {
		design.Set(i, 0, 1)
		for j := 0; j < cols; j++ {
			design.Set(i, j+1, features.At(i, j))
		}
	}

	var gram mat.Dense
	gram.Mul(design.T(), design)
	if r.WeightDecay > 0 {
		// Penalize weights only, never the intercept.
		for j := 1; j <= cols; j++ {
			gram.Set(j, j, gram.At(j, j)+r.WeightDecay)
		}
	}

	yVec := mat.NewVecDense(rows, nil)
	for i := 0; i < rows; i++ {
		yVec.SetVec(i, y.At(i, 0))
	}
	var rhs mat.VecDense
	rhs.MulVec(design.T(), yVec)

	var solution mat.VecDense
	if err := solution.SolveVec(&gram, &rhs); err != nil {
		return errors.NewModelError("linear.Fit", "singular system", err)
	}

	m.Intercept = solution.AtVec(0)
	m.Weights = make([]float64, cols)
	for j := 0; j < cols; j++ {
		m.Weights[j] = solution.AtVec(j + 1)
	}

	r.Model = m
	r.SetFitted()
	return nil
}

// Predict returns predictions for the input samples.
func (r *Regressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !r.IsFitted() {
		return nil, errors.NewNotFittedError("linear.Regressor", "Predict")
	}
	return r.Model.Predict(X)
}

// Score returns the coefficient of determination R² on the given data.
func (r *Regressor) Score(X, y mat.Matrix) (float64, error) {
	if !r.IsFitted() {
		return 0, errors.NewNotFittedError("linear.Regressor", "Score")
	}
	predictions, err := r.Predict(X)
	if err != nil {
		return 0, err
	}
	return metrics.R2Score(columnVec(y), columnVec(predictions))
}

// RMSE returns the root mean squared error on the given data.
func (r *Regressor) RMSE(X, y mat.Matrix) (float64, error) {
	if !r.IsFitted() {
		return 0, errors.NewNotFittedError("linear.Regressor", "RMSE")
	}
	predictions, err := r.Predict(X)
	if err != nil {
		return 0, err
	}
	return metrics.RMSE(columnVec(y), columnVec(predictions))
}

// LoadModel installs a deserialized model, marking the regressor fitted.
func (r *Regressor) LoadModel(m *Model) {
	r.Model = m
	r.nFeatures = m.NumFeatures
	r.SetFitted()
}

func columnVec(m mat.Matrix) *mat.VecDense {
	rows, _ := m.Dims()
	v := mat.NewVecDense(rows, nil)
	for i := 0; i < rows; i++ {
		v.SetVec(i, m.At(i, 0))
	}
	return v
}

var _ model.Regressor = (*Regressor)(nil)
var _ model.ParameterSetter = (*Regressor)(nil)
