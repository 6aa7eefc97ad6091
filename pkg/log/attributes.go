// Standard attribute keys shared by the pipeline, the CLI and the inference service.
//
// Keys follow a hierarchical naming convention ("model.name", "data.samples") so that
// log lines from training runs and from the service can be filtered the same way.

package log

// Model and Operation Context
const (
	// ModelNameKey identifies the estimator kind.
	// Examples: "LogReg", "RandomForest", "HistBoosting"
	ModelNameKey = "model.name"

	// OperationKey specifies the operation being performed.
	// Standard values: "fit", "predict", "transform", "fit_transform", "score"
	OperationKey = "ml.operation"

	// ComponentKey identifies which package is logging.
	ComponentKey = "ml.component"

	// PhaseKey indicates the phase of the model lifecycle.
	PhaseKey = "ml.phase"

	// StepKey names the pipeline step ("preprocessor", "model", "numeric.scaler", ...).
	StepKey = "pipeline.step"

	// RunIDKey identifies a training run in the run store.
	RunIDKey = "run.id"
)

// Data Shape and Characteristics
const (
	// SamplesKey indicates the number of samples (rows).
	SamplesKey = "data.samples"

	// FeaturesKey indicates the number of features (columns).
	FeaturesKey = "data.features"

	// ClassesKey indicates the number of distinct target classes.
	ClassesKey = "data.classes"

	// DatasetPathKey is the local path of the dataset file.
	DatasetPathKey = "dataset.path"

	// DatasetURLKey is the remote source of the dataset.
	DatasetURLKey = "dataset.url"

	// BytesKey records a transferred or written size in bytes.
	BytesKey = "data.size_bytes"
)

// Performance Metrics
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// AccuracyKey records accuracy for evaluation operations.
	AccuracyKey = "metrics.accuracy"

	// F1Key records the F1 score for evaluation operations.
	F1Key = "metrics.f1"

	// LossKey records loss value during training.
	LossKey = "metrics.loss"

	// IterationKey records the current iteration number during iterative processes.
	IterationKey = "training.iteration"
)

// Prediction and Serving Context
const (
	// PredsKey indicates the number of predictions made.
	PredsKey = "preds.count"

	// RouteKey is the HTTP route being served.
	RouteKey = "http.route"

	// RequestIDKey is the per-request identifier assigned by the service.
	RequestIDKey = "request.id"

	// ValidationCheckKey names a validation check ("table_structure", "outliers").
	ValidationCheckKey = "validation.check"

	// ArtifactPathKey is the path of a serialized pipeline artifact.
	ArtifactPathKey = "artifact.path"

	// ServiceStateKey is the lifecycle state of the inference service.
	ServiceStateKey = "service.state"
)

// Error Context
const (
	// ErrorTypeKey categorizes the type of error encountered.
	ErrorTypeKey = "error.type"

	// ErrorKindKey is the taxonomy bucket of an error ("config", "data", "io").
	ErrorKindKey = "error.kind"
)

// Hyperparameters and Configuration
const (
	// HyperParamsKey contains model hyperparameters as a structured object.
	HyperParamsKey = "model.hyperparams"

	// RandomSeedKey records the random seed for reproducibility.
	RandomSeedKey = "config.random_seed"

	// ConfigPathKey is the path of the loaded configuration file.
	ConfigPathKey = "config.path"

	// WorkerIDKey identifies a worker goroutine in parallel fits.
	WorkerIDKey = "infra.worker_id"
)

// Standard attribute values.
const (
	OperationFit          = "fit"
	OperationPredict      = "predict"
	OperationTransform    = "transform"
	OperationFitTransform = "fit_transform"
	OperationScore        = "score"

	PhaseTraining      = "training"
	PhaseValidation    = "validation"
	PhaseInference     = "inference"
	PhasePreprocessing = "preprocessing"
)
