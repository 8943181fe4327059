package sdk

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/skiffml/skiff/pkg/errors"
	"github.com/skiffml/skiff/pkg/log"
	"github.com/skiffml/skiff/platform/serving"
	"github.com/skiffml/skiff/platform/training"
)

// Estimator configures and runs managed training jobs for one algorithm
// image, mirroring the high-level estimator of cloud ML SDKs.
type Estimator struct {
	session  *Session
	imageURI string

	hyperParameters map[string]string
	instanceType    string
	instanceCount   int
	outputPrefix    string
	jobNamePrefix   string

	pollInterval time.Duration
	latestJob    *training.JobDescription
}

// EstimatorOption configures an Estimator.
type EstimatorOption func(*Estimator)

// WithInstanceType records the requested training instance type.
func WithInstanceType(instanceType string) EstimatorOption {
	return func(e *Estimator) { e.instanceType = instanceType }
}

// WithInstanceCount records the requested training instance count.
func WithInstanceCount(n int) EstimatorOption {
	return func(e *Estimator) { e.instanceCount = n }
}

// WithOutputPrefix sets the blob key prefix model artifacts are written
// under; defaults to "output".
func WithOutputPrefix(prefix string) EstimatorOption {
	return func(e *Estimator) { e.outputPrefix = prefix }
}

// WithJobNamePrefix sets the prefix used when Fit generates a job name.
// A random suffix keeps generated names unique across runs.
func WithJobNamePrefix(prefix string) EstimatorOption {
	return func(e *Estimator) { e.jobNamePrefix = prefix }
}

// WithPollInterval sets how often Fit polls the job status.
func WithPollInterval(d time.Duration) EstimatorOption {
	return func(e *Estimator) { e.pollInterval = d }
}

// NewEstimator creates an estimator for the given algorithm image.
func NewEstimator(session *Session, imageURI string, opts ...EstimatorOption) *Estimator {
	e := &Estimator{
		session:       session,
		imageURI:      imageURI,
		instanceType:  "ml.m5.xlarge",
		instanceCount: 1,
		outputPrefix:  "output",
		pollInterval:  200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetHyperParameters replaces the estimator's hyperparameter map. Values
// are validated by the container when the job runs.
func (e *Estimator) SetHyperParameters(params map[string]string) {
	e.hyperParameters = make(map[string]string, len(params))
	for k, v := range params {
		e.hyperParameters[k] = v
	}
}

// HyperParameter sets a single hyperparameter, keeping the rest of the
// map intact.
func (e *Estimator) HyperParameter(key, value string) {
	if e.hyperParameters == nil {
		e.hyperParameters = make(map[string]string)
	}
	e.hyperParameters[key] = value
}

// HyperParameters returns a copy of the current hyperparameter map.
func (e *Estimator) HyperParameters() map[string]string {
	out := make(map[string]string, len(e.hyperParameters))
	for k, v := range e.hyperParameters {
		out[k] = v
	}
	return out
}

// FitOption configures a single Fit call.
type FitOption func(*fitConfig)

type fitConfig struct {
	jobName  string
	progress func(*training.JobDescription)
}

// WithJobName fixes the training job name instead of generating one.
func WithJobName(name string) FitOption {
	return func(c *fitConfig) { c.jobName = name }
}

// WithProgress installs a callback fired after every status poll.
func WithProgress(fn func(*training.JobDescription)) FitOption {
	return func(c *fitConfig) { c.progress = fn }
}

// Fit runs a training job over the given input channels (channel name to
// blob key) and blocks until it reaches a terminal state. A Failed job
// surfaces as a JobFailedError carrying the failure reason.
func (e *Estimator) Fit(ctx context.Context, channels map[string]string, opts ...FitOption) error {
	var cfg fitConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.jobName == "" && e.jobNamePrefix != "" {
		cfg.jobName = e.jobNamePrefix + "-" + uuid.NewString()[:8]
	}

	desc, err := e.session.Training().CreateTrainingJob(ctx, training.JobSpec{
		Name:            cfg.jobName,
		ImageURI:        e.imageURI,
		HyperParameters: e.hyperParameters,
		InputChannels:   channels,
		OutputPrefix:    e.outputPrefix,
		InstanceType:    e.instanceType,
		InstanceCount:   e.instanceCount,
	})
	if err != nil {
		return err
	}
	e.latestJob = desc

	final, err := e.session.Training().WaitForCompletion(ctx, desc.Name, e.pollInterval, cfg.progress)
	if final != nil {
		e.latestJob = final
	}
	if err != nil {
		return err
	}
	if final.Status != training.StatusCompleted {
		return errors.NewJobFailedError(final.Name,
			"job ended as "+string(final.Status))
	}

	e.session.logger.Info("Estimator fit complete",
		log.JobNameKey, final.Name,
		log.MetricValueKey, final.FinalMetric,
		log.StorageKeyKey, final.ArtifactKey)
	return nil
}

// LatestJob returns the most recent job description, nil before Fit.
func (e *Estimator) LatestJob() *training.JobDescription {
	return e.latestJob
}

// ModelArtifact returns the blob key of the trained model artifact.
func (e *Estimator) ModelArtifact() (string, error) {
	if e.latestJob == nil || e.latestJob.Status != training.StatusCompleted {
		return "", errors.NewNotFittedError("Estimator", "ModelArtifact")
	}
	return e.latestJob.ArtifactKey, nil
}

// Deploy creates a hosted endpoint for the latest trained model and
// returns a Predictor bound to it.
func (e *Estimator) Deploy(ctx context.Context, endpointName string) (*Predictor, error) {
	artifactKey, err := e.ModelArtifact()
	if err != nil {
		return nil, err
	}

	desc, err := e.session.Serving().CreateEndpoint(ctx, endpointName, serving.EndpointConfig{
		ImageURI:         e.imageURI,
		ModelArtifactKey: artifactKey,
	})
	if err != nil {
		return nil, err
	}

	e.session.logger.Info("Model deployed",
		log.EndpointNameKey, endpointName, "url", desc.URL)
	return newPredictor(e.session, endpointName), nil
}
