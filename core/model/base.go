package model

// EstimatorState is the fit state of an estimator.
type EstimatorState int

const (
	// NotFitted is the initial state.
	NotFitted EstimatorState = iota
	// Fitted is set once Fit has succeeded.
	Fitted
)

// BaseEstimator is embedded by every estimator that has a fit state.
type BaseEstimator struct {
	state EstimatorState
}

// IsFitted reports whether Fit has succeeded.
func (e *BaseEstimator) IsFitted() bool {
	return e.state == Fitted
}

// SetFitted marks the estimator as fitted.
func (e *BaseEstimator) SetFitted() {
	e.state = Fitted
}

// Reset returns the estimator to NotFitted.
func (e *BaseEstimator) Reset() {
	e.state = NotFitted
}
