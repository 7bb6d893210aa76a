package log

// Model and operation context.
const (
	// ModelNameKey identifies the type of model, e.g. "LinearRegression".
	ModelNameKey = "model.name"

	// OperationKey is the operation being performed: "fit", "predict", "score".
	OperationKey = "ml.operation"

	// ComponentKey identifies the package emitting the record.
	ComponentKey = "ml.component"

	// PhaseKey is the lifecycle phase: "training", "testing", "inference".
	PhaseKey = "ml.phase"
)

// Data shape.
const (
	SamplesKey  = "data.samples"
	FeaturesKey = "data.features"
	ColumnsKey  = "data.columns"

	// TrainSizeKey and TestSizeKey record the sizes of a train/test split.
	TrainSizeKey = "data.train_size"
	TestSizeKey  = "data.test_size"
)

// Performance and evaluation.
const (
	DurationMsKey = "perf.duration_ms"
	MSEKey        = "metrics.mse"
	RMSEKey       = "metrics.rmse"
	MAEKey        = "metrics.mae"
	R2ScoreKey    = "metrics.r2_score"
)

// Prediction.
const (
	PredsKey = "preds.count"
)

// Fitted parameters and configuration.
const (
	SlopeKey      = "model.slope"
	InterceptKey  = "model.intercept"
	RandomSeedKey = "config.random_seed"
)

// Error context.
const (
	ErrorKey      = "error"
	StacktraceKey = "error.stacktrace"
)

// Storage and tracking.
const (
	PathKey         = "io.path"
	ExperimentIDKey = "tracking.experiment_id"
	RunIDKey        = "tracking.run_id"
	RunStatusKey    = "tracking.run_status"
	TrackingURIKey  = "tracking.uri"
)

// Standard attribute values.
const (
	OperationFit     = "fit"
	OperationPredict = "predict"
	OperationScore   = "score"
	OperationSplit   = "split"
	OperationLoad    = "load"
	OperationSave    = "save"

	PhaseTraining      = "training"
	PhaseTesting       = "testing"
	PhaseInference     = "inference"
	PhasePreprocessing = "preprocessing"
)
