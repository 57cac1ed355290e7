package flow

import (
	"context"
	"errors"
	"image"
	"time"
)

// OnboardingFlag is the persisted flag recording a finished onboarding.
const OnboardingFlag = "hasCompletedOnboarding"

// DefaultOnboardingSteps is the number of onboarding pages.
const DefaultOnboardingSteps = 4

// DefaultPlacement is the paywall placement shown before an analysis.
const DefaultPlacement = "StartAnalysis"

// Source tells which producer yielded a capture.
type Source string

const (
	SourceCamera  Source = "camera"
	SourceLibrary Source = "library"
)

// PendingCapture is the image captured during the current flow.
type PendingCapture struct {
	ID         string
	Source     Source
	Image      image.Image
	CapturedAt time.Time
}

// Outcome is a completed analysis.
type Outcome struct {
	ID         string    `json:"id" yaml:"id"`
	AnalyzedAt time.Time `json:"analyzed_at" yaml:"analyzed_at"`
	RiskLevel  string    `json:"risk_level" yaml:"risk_level"`
	Asymmetry  string    `json:"asymmetry" yaml:"asymmetry"`
	Border     string    `json:"border" yaml:"border"`
	Color      string    `json:"color" yaml:"color"`
	Notes      string    `json:"notes" yaml:"notes"`
	// Image is the analyzed image: the one echoed by the backend, or the
	// submitted capture when none was echoed.
	Image image.Image `json:"-" yaml:"-"`
}

// OnboardingProgress is the current onboarding page.
type OnboardingProgress struct {
	Step  int `json:"step"`
	Total int `json:"total"`
}

// Last returns the index of the final page.
func (p OnboardingProgress) Last() int { return p.Total - 1 }

// FailureKind names the cause of the last aborted analysis.
type FailureKind string

const (
	FailureImageEncoding   FailureKind = "image_encoding_failed"
	FailureNetwork         FailureKind = "network_failure"
	FailureServer          FailureKind = "server_error"
	FailureDecoding        FailureKind = "decoding_failure"
	FailureNotEntitled     FailureKind = "not_entitled"
	FailureGateUnavailable FailureKind = "gate_unavailable"
)

// KindOf maps an analysis error to its failure kind.
func KindOf(err error) FailureKind {
	var ae *AnalysisError
	if errors.As(err, &ae) {
		err = ae.Kind
	}
	switch {
	case errors.Is(err, ErrImageEncodingFailed):
		return FailureImageEncoding
	case errors.Is(err, ErrServerError):
		return FailureServer
	case errors.Is(err, ErrDecodingFailure):
		return FailureDecoding
	case errors.Is(err, ErrNotEntitled):
		return FailureNotEntitled
	case errors.Is(err, ErrGateUnavailable):
		return FailureGateUnavailable
	default:
		return FailureNetwork
	}
}

// Failure records the last aborted analysis.
type Failure struct {
	Kind FailureKind `json:"kind"`
	At   time.Time   `json:"at"`
}

// FlagStore persists named booleans.
type FlagStore interface {
	Load(ctx context.Context, name string) (bool, error)
	Store(ctx context.Context, name string, value bool) error
}

// EntitlementGate answers whether the user is entitled and can present a paywall.
type EntitlementGate interface {
	IsEntitled(ctx context.Context) (bool, error)
	// PresentGate blocks until the paywall is dismissed or a purchase completes.
	PresentGate(ctx context.Context, placementID string) error
}

// AnalysisBackend analyzes a single image.
type AnalysisBackend interface {
	Analyze(ctx context.Context, img image.Image) (Outcome, error)
}

// ResultSaver persists a shown outcome.
type ResultSaver interface {
	Save(ctx context.Context, outcome Outcome) error
}

// NopSaver discards saved outcomes.
type NopSaver struct{}

func (NopSaver) Save(context.Context, Outcome) error { return nil }
