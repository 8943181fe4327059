package registry

import (
	"context"

	"gonum.org/v1/gonum/mat"

	"github.com/skiffml/skiff/blob"
	"github.com/skiffml/skiff/linear"
	"github.com/skiffml/skiff/pkg/errors"
	"github.com/skiffml/skiff/pkg/log"
)

// linearLearnerContainer binds the linear-learner image to the linear
// package. Same channel and artifact contract as the xgboost container.
type linearLearnerContainer struct {
	version string
}

func (c *linearLearnerContainer) Train(ctx context.Context, in TrainInput) (*TrainOutput, error) {
	logger := in.Logger
	if logger == nil {
		logger = log.GetLoggerWithName("registry.linear-learner")
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.WithStack(err)
	}

	train, err := readChannel(ctx, in, "train")
	if err != nil {
		return nil, err
	}
	logger.Info("Loaded train channel",
		log.SamplesKey, train.NumRows(),
		log.FeaturesKey, train.NumFeatures())

	reg := linear.NewRegressor()
	if err := reg.SetParams(in.HyperParameters); err != nil {
		return nil, err
	}
	if err := reg.Fit(train.X, train.YMatrix()); err != nil {
		return nil, err
	}

	metricName := "train:rmse"
	evalTable := train
	if _, ok := in.Channels["validation"]; ok {
		validation, err := readChannel(ctx, in, "validation")
		if err != nil {
			return nil, err
		}
		metricName = "validation:rmse"
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

// LoadPredictor deserializes a model artifact produced by Train.
func (c *linearLearnerContainer) LoadPredictor(artifact []byte) (Predictor, error) {
	model, err := linear.FromJSON(artifact)
	if err != nil {
		return nil, err
	}
	return &linearPredictor{model: model}, nil
}

type linearPredictor struct {
	model *linear.Model
}

func (p *linearPredictor) Predict(X *mat.Dense) (*mat.Dense, error) {
	return p.model.Predict(X)
}

func (p *linearPredictor) NumFeatures() int {
	return p.model.NumFeatures
}
