package errors

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	Cross-validation pipeline taxonomy
//
//	Only DataError aborts a run. Every other condition shrinks the
//	effective sample and is counted in the run summary.
//
// ===========================================================================

// DataError reports a required column that is missing or entirely
// non-finite for the active target. It aborts the run before any fold.
type DataError struct {
	Op     string
	Column string
	Reason string
}

func (e *DataError) Error() string {
	return fmt.Sprintf("eivecv: %s: column '%s': %s", e.Op, e.Column, e.Reason)
}

// MarshalZerologObject adds the error fields to a zerolog event.
func (e *DataError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("column", e.Column).
		Str("reason", e.Reason).
		Str("type", "DataError")
}

// NewDataError creates a DataError with a stack trace.
func NewDataError(op, column, reason string) error {
	return errors.WithStack(&DataError{Op: op, Column: column, Reason: reason})
}

// FoldDegenerateError reports a fold with too few rows on one side of the
// split. The fold is skipped.
type FoldDegenerateError struct {
	Repeat   int
	Fold     int
	NTrain   int
	NTest    int
	MinTrain int
	MinTest  int
}

func (e *FoldDegenerateError) Error() string {
	return fmt.Sprintf("eivecv: repeat %d fold %d is degenerate: %d train rows (min %d), %d test rows (min %d)",
		e.Repeat, e.Fold, e.NTrain, e.MinTrain, e.NTest, e.MinTest)
}

// MarshalZerologObject adds the error fields to a zerolog event.
func (e *FoldDegenerateError) MarshalZerologObject(event *zerolog.Event) {
	event.Int("repeat", e.Repeat).
		Int("fold", e.Fold).
		Int("n_train", e.NTrain).
		Int("n_test", e.NTest).
		Int("min_train", e.MinTrain).
		Int("min_test", e.MinTest).
		Str("type", "FoldDegenerateError")
}

// NewFoldDegenerateError creates a FoldDegenerateError with a stack trace.
func NewFoldDegenerateError(repeat, fold, nTrain, nTest, minTrain, minTest int) error {
	return errors.WithStack(&FoldDegenerateError{
		Repeat: repeat, Fold: fold,
		NTrain: nTrain, NTest: nTest,
		MinTrain: minTrain, MinTest: minTest,
	})
}

// FitConvergenceError reports a candidate model that could not be fitted.
// The candidate is dropped from that fold's ranking only.
type FitConvergenceError struct {
	Candidate string
	Reason    string
	Err       error
}

func (e *FitConvergenceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("eivecv: candidate '%s' failed to fit: %s: %v", e.Candidate, e.Reason, e.Err)
	}
	return fmt.Sprintf("eivecv: candidate '%s' failed to fit: %s", e.Candidate, e.Reason)
}

func (e *FitConvergenceError) Unwrap() error {
	return e.Err
}

// MarshalZerologObject adds the error fields to a zerolog event.
func (e *FitConvergenceError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("candidate", e.Candidate).
		Str("reason", e.Reason).
		Str("type", "FitConvergenceError")
	if e.Err != nil {
		event.Str("cause", e.Err.Error())
	}
}

// NewFitConvergenceError creates a FitConvergenceError with a stack trace.
func NewFitConvergenceError(candidate, reason string, err error) error {
	return errors.WithStack(&FitConvergenceError{Candidate: candidate, Reason: reason, Err: err})
}

// AllCandidatesFailedError reports a fold where no candidate could be fitted.
// The fold contributes no predictions.
type AllCandidatesFailedError struct {
	Repeat     int
	Fold       int
	Candidates int
}

func (e *AllCandidatesFailedError) Error() string {
	return fmt.Sprintf("eivecv: repeat %d fold %d: all %d candidates failed to fit", e.Repeat, e.Fold, e.Candidates)
}

// MarshalZerologObject adds the error fields to a zerolog event.
func (e *AllCandidatesFailedError) MarshalZerologObject(event *zerolog.Event) {
	event.Int("repeat", e.Repeat).
		Int("fold", e.Fold).
		Int("candidates", e.Candidates).
		Str("type", "AllCandidatesFailedError")
}

// NewAllCandidatesFailedError creates an AllCandidatesFailedError with a stack trace.
func NewAllCandidatesFailedError(repeat, fold, candidates int) error {
	return errors.WithStack(&AllCandidatesFailedError{Repeat: repeat, Fold: fold, Candidates: candidates})
}

// BootstrapDegenerateSample reports a resample whose target has zero
// variance. It is skipped and does not consume a resample slot.
type BootstrapDegenerateSample struct {
	Attempt int
}

func (e *BootstrapDegenerateSample) Error() string {
	return fmt.Sprintf("eivecv: bootstrap attempt %d drew a target with zero variance", e.Attempt)
}

// NewBootstrapDegenerateSample creates a BootstrapDegenerateSample.
func NewBootstrapDegenerateSample(attempt int) error {
	return errors.WithStack(&BootstrapDegenerateSample{Attempt: attempt})
}

// IsFatal reports whether err must abort a cross-validation run.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var dataErr *DataError
	if errors.As(err, &dataErr) {
		return true
	}
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}
