package gbt

import (
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/skiffml/skiff/core/model"
	"github.com/skiffml/skiff/metrics"
	skifferrors "github.com/skiffml/skiff/pkg/errors"
	"github.com/skiffml/skiff/pkg/log"
)

// Regressor is a gradient-boosted-tree regression estimator with a
// scikit-learn style API. It is the model behind Skiff's built-in xgboost
// container.
type Regressor struct {
	model.BaseEstimator

	// Model and predictor, populated by Fit or LoadModel
	Model     *Model
	Predictor *Predictor

	// Hyperparameters (names follow the container contract)
	NumRounds      int     // num_round
	LearningRate   float64 // eta
	MaxDepth       int     // max_depth
	MinChildWeight float64 // min_child_weight
	Gamma          float64 // gamma
	Lambda         float64 // lambda (L2)
	Alpha          float64 // alpha (L1)
	Subsample      float64 // subsample
	Objective      string  // objective
	Seed           int64   // seed
	EarlyStopping  int     // early_stopping_rounds
	Verbosity      int     // verbosity

	// Validation set used for early stopping (optional)
	valX mat.Matrix
	valY mat.Matrix

	// Per-round hook, used to propagate cancellation into training
	callback func(iteration int) error

	nFeatures int
}

// NewRegressor creates a regressor with the container defaults.
func NewRegressor() *Regressor {
	defaults := DefaultTrainingParams()
	return &Regressor{
		NumRounds:      defaults.NumRounds,
		LearningRate:   defaults.LearningRate,
		MaxDepth:       defaults.MaxDepth,
		MinChildWeight: defaults.MinChildWeight,
		Gamma:          defaults.Gamma,
		Lambda:         defaults.Lambda,
		Alpha:          defaults.Alpha,
		Subsample:      defaults.Subsample,
		Objective:      defaults.Objective,
	}
}

// WithNumRounds sets the number of boosting rounds.
func (r *Regressor) WithNumRounds(n int) *Regressor {
	r.NumRounds = n
	return r
}

// WithLearningRate sets the shrinkage rate (eta).
func (r *Regressor) WithLearningRate(eta float64) *Regressor {
	r.LearningRate = eta
	return r
}

// WithMaxDepth sets the maximum tree depth.
func (r *Regressor) WithMaxDepth(d int) *Regressor {
	r.MaxDepth = d
	return r
}

// WithGamma sets the minimum loss reduction required for a split.
func (r *Regressor) WithGamma(g float64) *Regressor {
	r.Gamma = g
	return r
}

// WithMinChildWeight sets the minimum hessian sum required in a child.
func (r *Regressor) WithMinChildWeight(w float64) *Regressor {
	r.MinChildWeight = w
	return r
}

// WithSubsample sets the row subsampling fraction per round.
func (r *Regressor) WithSubsample(s float64) *Regressor {
	r.Subsample = s
	return r
}

// WithObjective sets the training objective.
func (r *Regressor) WithObjective(obj string) *Regressor {
	r.Objective = obj
	return r
}

// WithSeed sets the random seed for subsampling.
func (r *Regressor) WithSeed(seed int64) *Regressor {
	r.Seed = seed
	return r
}

// WithEarlyStopping sets the early stopping patience in rounds.
func (r *Regressor) WithEarlyStopping(rounds int) *Regressor {
	r.EarlyStopping = rounds
	return r
}

// WithValidation supplies a held-out set for per-round evaluation.
func (r *Regressor) WithValidation(X, y mat.Matrix) *Regressor {
	r.valX = X
	r.valY = y
	return r
}

// WithIterationCallback installs a hook that runs before every boosting
// round; a non-nil return aborts Fit with that error.
func (r *Regressor) WithIterationCallback(fn func(iteration int) error) *Regressor {
	r.callback = fn
	return r
}

// SetParams applies hyperparameters from the string map of a training-job
// specification. Unknown keys are rejected so misspelled hyperparameters
// fail the job instead of silently using defaults.
func (r *Regressor) SetParams(params map[string]string) error {
	for key, raw := range params {
		var err error
		switch key {
		case "num_round", "n_estimators":
			r.NumRounds, err = strconv.Atoi(raw)
		case "eta", "learning_rate":
			r.LearningRate, err = strconv.ParseFloat(raw, 64)
		case "max_depth":
			r.MaxDepth, err = strconv.Atoi(raw)
		case "min_child_weight":
			r.MinChildWeight, err = strconv.ParseFloat(raw, 64)
		case "gamma":
			r.Gamma, err = strconv.ParseFloat(raw, 64)
		case "lambda", "reg_lambda":
			r.Lambda, err = strconv.ParseFloat(raw, 64)
		case "alpha", "reg_alpha":
			r.Alpha, err = strconv.ParseFloat(raw, 64)
		case "subsample":
			r.Subsample, err = strconv.ParseFloat(raw, 64)
		case "objective":
			if _, objErr := NewObjective(raw, 0); objErr != nil {
				return objErr
			}
			r.Objective = raw
		case "seed", "random_state":
			r.Seed, err = strconv.ParseInt(raw, 10, 64)
		case "early_stopping_rounds":
			r.EarlyStopping, err = strconv.Atoi(raw)
		case "verbosity":
			r.Verbosity, err = strconv.Atoi(raw)
		default:
			return skifferrors.NewValidationError(key, "unknown hyperparameter", raw)
		}
		if err != nil {
			return skifferrors.NewValidationError(key, "cannot parse value", raw)
		}
	}
	return nil
}

// GetParams returns the hyperparameters in the string-map contract format.
func (r *Regressor) GetParams() map[string]string {
	return map[string]string{
		"num_round":             strconv.Itoa(r.NumRounds),
		"eta":                   strconv.FormatFloat(r.LearningRate, 'g', -1, 64),
		"max_depth":             strconv.Itoa(r.MaxDepth),
		"min_child_weight":      strconv.FormatFloat(r.MinChildWeight, 'g', -1, 64),
		"gamma":                 strconv.FormatFloat(r.Gamma, 'g', -1, 64),
		"lambda":                strconv.FormatFloat(r.Lambda, 'g', -1, 64),
		"alpha":                 strconv.FormatFloat(r.Alpha, 'g', -1, 64),
		"subsample":             strconv.FormatFloat(r.Subsample, 'g', -1, 64),
		"objective":             r.Objective,
		"seed":                  strconv.FormatInt(r.Seed, 10),
		"early_stopping_rounds": strconv.Itoa(r.EarlyStopping),
	}
}

// Fit trains the regressor.
func (r *Regressor) Fit(X, y mat.Matrix) (err error) {
	defer skifferrors.Recover(&err, "Regressor.Fit")

	rows, cols := X.Dims()
	yRows, yCols := y.Dims()
	if rows != yRows {
		return skifferrors.NewDimensionError("Fit", rows, yRows, 0)
	}
	if yCols != 1 {
		return skifferrors.NewDimensionError("Fit", 1, yCols, 1)
	}
	r.nFeatures = cols

	logger := log.GetLoggerWithName("gbt.regressor")
	if r.Verbosity > 0 {
		logger.Info("Training regressor",
			log.SamplesKey, rows,
			log.FeaturesKey, cols,
			"objective", r.Objective)
	}

	trainer := NewTrainer(TrainingParams{
		NumRounds:      r.NumRounds,
		LearningRate:   r.LearningRate,
		MaxDepth:       r.MaxDepth,
		MinChildWeight: r.MinChildWeight,
		Gamma:          r.Gamma,
		Lambda:         r.Lambda,
		Alpha:          r.Alpha,
		Subsample:      r.Subsample,
		Objective:      r.Objective,
		Seed:           r.Seed,
		EarlyStopping:  r.EarlyStopping,
		Verbosity:      r.Verbosity,
	})

	if r.valX != nil && r.valY != nil {
		if err := trainer.SetValidation(r.valX, r.valY); err != nil {
			return err
		}
	}
	if r.callback != nil {
		trainer.SetIterationCallback(r.callback)
	}

	if err := trainer.Fit(X, y); err != nil {
		return skifferrors.Wrap(err, "training failed")
	}

	r.Model = trainer.GetModel()
	r.Predictor = NewPredictor(r.Model)
	r.SetFitted()

	if r.Verbosity > 0 {
		logger.Info("Training completed", "trees", len(r.Model.Trees))
	}
	return nil
}

// Predict returns predictions for the input samples.
func (r *Regressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !r.IsFitted() {
		return nil, skifferrors.NewNotFittedError("Regressor", "Predict")
	}
	_, cols := X.Dims()
	if cols != r.nFeatures {
		return nil, skifferrors.NewDimensionError("Predict", r.nFeatures, cols, 1)
	}
	return r.Predictor.Predict(X)
}

// Score returns the coefficient of determination R² on the given data.
func (r *Regressor) Score(X, y mat.Matrix) (float64, error) {
	if !r.IsFitted() {
		return 0, skifferrors.NewNotFittedError("Regressor", "Score")
	}

	predictions, err := r.Predict(X)
	if err != nil {
		return 0, err
	}

	rows, _ := y.Dims()
	yVec := mat.NewVecDense(rows, nil)
	predVec := mat.NewVecDense(rows, nil)
	for i := 0; i < rows; i++ {
		yVec.SetVec(i, y.At(i, 0))
		predVec.SetVec(i, predictions.At(i, 0))
	}
	return metrics.R2Score(yVec, predVec)
}

// RMSE returns the root mean squared error on the given data.
func (r *Regressor) RMSE(X, y mat.Matrix) (float64, error) {
	if !r.IsFitted() {
		return 0, skifferrors.NewNotFittedError("Regressor", "RMSE")
	}

	predictions, err := r.Predict(X)
	if err != nil {
		return 0, err
	}

	rows, _ := y.Dims()
	yVec := mat.NewVecDense(rows, nil)
	predVec := mat.NewVecDense(rows, nil)
	for i := 0; i < rows; i++ {
		yVec.SetVec(i, y.At(i, 0))
		predVec.SetVec(i, predictions.At(i, 0))
	}
	return metrics.RMSE(yVec, predVec)
}

// LoadModel installs a deserialized model, marking the regressor fitted.
func (r *Regressor) LoadModel(m *Model) {
	r.Model = m
	r.Predictor = NewPredictor(m)
	r.nFeatures = m.NumFeatures
	r.SetFitted()
}

// FeatureImportance returns per-feature total split gain.
func (r *Regressor) FeatureImportance() []float64 {
	if !r.IsFitted() || r.Model == nil {
		return nil
	}
	return r.Model.FeatureImportance()
}

var _ model.Regressor = (*Regressor)(nil)
var _ model.ParameterSetter = (*Regressor)(nil)
