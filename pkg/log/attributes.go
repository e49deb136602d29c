package log

// Standard attribute keys. Keys are hierarchical ("cv.fold", "data.samples")
// so records can be filtered by prefix.

// Run and component context.
const (
	// ComponentKey identifies the package emitting the record.
	ComponentKey = "ml.component"

	// OperationKey names the operation, see the Operation* values.
	OperationKey = "ml.operation"

	// PhaseKey is the stage of a run, see the Phase* values.
	PhaseKey = "ml.phase"

	// RunIDKey carries the UUID assigned to a cross-validation run.
	RunIDKey = "run.id"

	// TargetKey is the EIVE axis letter (L, T, M, R, N).
	TargetKey = "eive.target"
)

// Cross-validation context.
const (
	RepeatKey   = "cv.repeat"
	FoldKey     = "cv.fold"
	SchemeKey   = "cv.scheme"
	FoldsKey    = "cv.folds"
	GroupKey    = "cv.group"
	StatusKey   = "cv.status"
	AttemptsKey = "cv.attempts"
)

// Model context.
const (
	CandidateKey = "model.candidate"
	FormulaKey   = "model.formula"
	EngineKey    = "model.engine"
	AICcKey      = "model.aicc"
	EDFKey       = "model.edf"
	WeightKey    = "model.weight"
)

// Data shape.
const (
	SamplesKey  = "data.samples"
	FeaturesKey = "data.features"
	ColumnKey   = "data.column"
	TrainKey    = "data.n_train"
	TestKey     = "data.n_test"
	DroppedKey  = "data.dropped"
)

// Performance and metrics.
const (
	DurationMsKey = "perf.duration_ms"
	R2ScoreKey    = "metrics.r2_score"
	RMSEKey       = "metrics.rmse"
	MAEKey        = "metrics.mae"
	IterationKey  = "training.iteration"
	RandomSeedKey = "config.random_seed"
)

// Error context.
const (
	ErrorTypeKey  = "error.type"
	StacktraceKey = "error.stacktrace"
)

// Standard values.
const (
	OperationFit        = "fit"
	OperationPredict    = "predict"
	OperationTransform  = "transform"
	OperationSelect     = "select"
	OperationRank       = "rank"
	OperationAssign     = "assign"
	OperationAggregate  = "aggregate"
	OperationBootstrap  = "bootstrap"
	OperationPreprocess = "preprocess"

	PhasePreprocessing = "preprocessing"
	PhaseComposite     = "composite"
	PhaseSelection     = "selection"
	PhaseEvaluation    = "evaluation"
	PhaseReporting     = "reporting"
)
