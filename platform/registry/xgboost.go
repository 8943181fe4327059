package registry

import (
	"context"

	"gonum.org/v1/gonum/mat"

	"github.com/skiffml/skiff/blob"
	"github.com/skiffml/skiff/dataset"
	"github.com/skiffml/skiff/gbt"
	"github.com/skiffml/skiff/pkg/errors"
	"github.com/skiffml/skiff/pkg/log"
)

// xgboostContainer binds the xgboost image to the gbt package. It speaks
// the built-in container channel contract: headerless CSV with the target
// in the first column, model artifact as JSON.
type xgboostContainer struct {
	version string
}

func (c *xgboostContainer) Train(ctx context.Context, in TrainInput) (*TrainOutput, error) {
	logger := in.Logger
	if logger == nil {
		logger = log.GetLoggerWithName("registry.xgboost")
	}

	train, err := readChannel(ctx, in, "train")
	if err != nil {
		return nil, err
	}
	logger.Info("Loaded train channel",
		log.SamplesKey, train.NumRows(),
		log.FeaturesKey, train.NumFeatures())

	reg := gbt.NewRegressor()
	if err := reg.SetParams(in.HyperParameters); err != nil {
		return nil, err
	}
	// Stop boosting promptly when the job is stopped or the service shuts
	// down.
	reg.WithIterationCallback(func(int) error { return ctx.Err() })

	metricName := "train:rmse"
	var validation *dataset.Table
	if _, ok := in.Channels["validation"]; ok {
		validation, err = readChannel(ctx, in, "validation")
		if err != nil {
			return nil, err
		}
		if validation.NumFeatures() != train.NumFeatures() {
			return nil, errors.NewDimensionError("xgboost.Train",
				train.NumFeatures(), validation.NumFeatures(), 1)
		}
		reg.WithValidation(validation.X, validation.YMatrix())
		metricName = "validation:rmse"
		logger.Info("Loaded validation channel",
			log.SamplesKey, validation.NumRows(),
			log.ChannelKey, "validation")
	}

	if err := reg.Fit(train.X, train.YMatrix()); err != nil {
		return nil, err
	}

	evalTable := train
	if validation != nil {
		evalTable = validation
	}
	metric, err := reg.RMSE(evalTable.X, evalTable.YMatrix())
	if err != nil {
		return nil, err
	}

	artifact, err := reg.Model.ToJSON()
	if err != nil {
		return nil, err
	}
	if err := blob.PutBytes(ctx, in.Blobs, in.ArtifactKey, artifact); err != nil {
		return nil, err
	}
	logger.Info("Wrote model artifact",
		log.StorageKeyKey, in.ArtifactKey,
		log.MetricNameKey, metricName,
		log.MetricValueKey, metric)

	return &TrainOutput{
		ArtifactKey: in.ArtifactKey,
		MetricName:  metricName,
		FinalMetric: metric,
	}, nil
}

// readChannel loads a blob-stored channel in the container CSV contract.
func readChannel(ctx context.Context, in TrainInput, name string) (*dataset.Table, error) {
	key, ok := in.Channels[name]
	if !ok {
		return nil, errors.NewValueError("registry.readChannel",
			"missing required channel \""+name+"\"")
	}
	rc, err := in.Blobs.Get(ctx, key)
	if err != nil {
		return nil, errors.Wrapf(err, "channel %q", name)
	}
	defer rc.Close()

	table, err := dataset.ReadCSV(rc)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing channel %q", name)
	}
	return table, nil
}

// LoadPredictor deserializes a model artifact produced by Train.
func (c *xgboostContainer) LoadPredictor(artifact []byte) (Predictor, error) {
	model, err := gbt.FromJSON(artifact)
	if err != nil {
		return nil, err
	}
	return &xgboostPredictor{model: model, predictor: gbt.NewPredictor(model)}, nil
}

type xgboostPredictor struct {
	model     *gbt.Model
	predictor *gbt.Predictor
}

func (p *xgboostPredictor) Predict(X *mat.Dense) (*mat.Dense, error) {
	_, cols := X.Dims()
	if cols != p.model.NumFeatures {
		return nil, errors.NewDimensionError("xgboost.Predict", p.model.NumFeatures, cols, 1)
	}
	out, err := p.predictor.Predict(X)
	if err != nil {
		return nil, err
	}
	dense, ok := out.(*mat.Dense)
	if !ok {
		rows, _ := out.Dims()
		dense = mat.NewDense(rows, 1, nil)
		dense.Copy(out)
	}
	return dense, nil
}

func (p *xgboostPredictor) NumFeatures() int {
	return p.model.NumFeatures
}
