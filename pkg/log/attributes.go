// Package log defines standard attribute keys for platform and model
// operations.
//
// Using these keys consistently enables filtering and analysis of structured
// logs across the training, serving and SDK layers. Keys follow a
// hierarchical naming convention ("job.name", "data.samples").

package log

// Model and operation context.
const (
	// ModelNameKey identifies the type of machine learning model.
	// Examples: "Regressor", "StandardScaler"
	ModelNameKey = "model.name"

	// OperationKey specifies the operation being performed.
	// Standard values: "fit", "predict", "deploy", "upload", "invoke"
	OperationKey = "ml.operation"

	// ComponentKey identifies which package performs the operation.
	// Examples: "gbt", "training", "serving", "sdk"
	ComponentKey = "ml.component"
)

// Data shape and characteristics.
const (
	// SamplesKey is the number of samples (rows) in the dataset.
	SamplesKey = "data.samples"

	// FeaturesKey is the number of features (columns) in the dataset.
	FeaturesKey = "data.features"

	// ChannelKey names a training input channel ("train", "validation").
	ChannelKey = "data.channel"
)

// Platform context.
const (
	// JobNameKey identifies a training job.
	JobNameKey = "job.name"

	// JobStatusKey is the lifecycle status of a training job.
	JobStatusKey = "job.status"

	// EndpointNameKey identifies a hosted inference endpoint.
	EndpointNameKey = "endpoint.name"

	// ImageURIKey is the algorithm container image URI.
	ImageURIKey = "image.uri"

	// StorageKeyKey is the object storage key involved in an operation.
	StorageKeyKey = "storage.key"
)

// Performance metrics.
const (
	// DurationMsKey is the elapsed wall time of an operation in milliseconds.
	DurationMsKey = "duration_ms"

	// MetricNameKey names an evaluation metric ("validation:rmse").
	MetricNameKey = "metric.name"

	// MetricValueKey is the value of the named evaluation metric.
	MetricValueKey = "metric.value"

	// IterationKey is the boosting iteration number.
	IterationKey = "iteration"
)

// Error context.
const (
	// ErrAttrKey is the key under which error values are logged.
	ErrAttrKey = "error"

	// StacktraceAttrKey is the key under which stack traces are logged.
	StacktraceAttrKey = "stacktrace"
)
