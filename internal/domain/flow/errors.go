package flow

import (
	"errors"
	"fmt"
)

// Contract violations. These are unreachable when callers follow the
// transition table and are reported loudly.
var (
	ErrInvalidTransition  = errors.New("invalid transition")
	ErrMissingCaptureData = errors.New("missing capture data")
)

// Analysis failure kinds. Every failed analysis wraps ErrAnalysisFailed and
// exactly one kind.
var (
	ErrAnalysisFailed      = errors.New("analysis failed")
	ErrImageEncodingFailed = errors.New("image encoding failed")
	ErrNetworkFailure      = errors.New("network failure")
	ErrServerError         = errors.New("server error")
	ErrDecodingFailure     = errors.New("decoding failure")
	ErrNotEntitled         = errors.New("not entitled")
	ErrGateUnavailable     = errors.New("entitlement gate unavailable")
)

var (
	// ErrStaleAnalysis is returned when an analysis finishes after the
	// coordinator has left the flow that started it.
	ErrStaleAnalysis = errors.New("stale analysis")
	// ErrPersistFlag is returned when the onboarding flag cannot be written.
	ErrPersistFlag = errors.New("persist onboarding flag")
)

// TransitionError reports an event issued from a screen that does not accept it.
type TransitionError struct {
	Event Event
	From  Screen
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s not allowed from %s", ErrInvalidTransition, e.Event, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// CaptureError reports an attempt to enter a screen without its required data.
type CaptureError struct {
	Event Event
	To    Screen
	What  string
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("%s: %s requires %s (event %s)", ErrMissingCaptureData, e.To, e.What, e.Event)
}

func (e *CaptureError) Unwrap() error { return ErrMissingCaptureData }

// AnalysisError carries the failure kind of an aborted analysis and its cause.
type AnalysisError struct {
	Kind error
	Err  error
}

func (e *AnalysisError) Error() string {
	if e.Err == nil || e.Err == e.Kind {
		return fmt.Sprintf("%s: %s", ErrAnalysisFailed, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %s", ErrAnalysisFailed, e.Kind, e.Err)
}

func (e *AnalysisError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrAnalysisFailed, e.Kind}
	}
	return []error{ErrAnalysisFailed, e.Kind, e.Err}
}

var failureKinds = []error{
	ErrImageEncodingFailed,
	ErrNetworkFailure,
	ErrServerError,
	ErrDecodingFailure,
	ErrNotEntitled,
	ErrGateUnavailable,
}

// NewAnalysisError classifies err into a failure kind. Errors that carry no
// known kind are treated as transport failures.
func NewAnalysisError(err error) *AnalysisError {
	var ae *AnalysisError
	if errors.As(err, &ae) {
		return ae
	}
	for _, kind := range failureKinds {
		if errors.Is(err, kind) {
			return &AnalysisError{Kind: kind, Err: err}
		}
	}
	return &AnalysisError{Kind: ErrNetworkFailure, Err: err}
}

// IsInvalidTransition reports whether err is an invalid transition.
func IsInvalidTransition(err error) bool { return errors.Is(err, ErrInvalidTransition) }

// IsMissingCaptureData reports whether err is a missing capture data violation.
func IsMissingCaptureData(err error) bool { return errors.Is(err, ErrMissingCaptureData) }

// IsContractViolation reports whether err is a programming-contract violation.
func IsContractViolation(err error) bool {
	return IsInvalidTransition(err) || IsMissingCaptureData(err)
}

// IsAnalysisFailed reports whether err is an aborted analysis.
func IsAnalysisFailed(err error) bool { return errors.Is(err, ErrAnalysisFailed) }
