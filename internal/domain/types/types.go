// Package types contains the read-only views served to clients.
package types

import (
	"time"

	"github.com/okian/skincheck/internal/domain/flow"
)

// StateView is the projection of the coordinator served on /state.
type StateView struct {
	Screen      string          `json:"screen" yaml:"screen"`
	Onboarding  *OnboardingView `json:"onboarding,omitempty" yaml:"onboarding,omitempty"`
	Capture     *CaptureView    `json:"capture,omitempty" yaml:"capture,omitempty"`
	Caption     string          `json:"caption,omitempty" yaml:"caption,omitempty"`
	Outcome     *OutcomeView    `json:"outcome,omitempty" yaml:"outcome,omitempty"`
	LastFailure *FailureView    `json:"last_failure,omitempty" yaml:"last_failure,omitempty"`
}

// OnboardingView is the current onboarding page.
type OnboardingView struct {
	Step  int `json:"step" yaml:"step"`
	Total int `json:"total" yaml:"total"`
}

// CaptureView describes the pending capture.
type CaptureView struct {
	ID         string    `json:"id" yaml:"id"`
	Source     string    `json:"source" yaml:"source"`
	CapturedAt time.Time `json:"captured_at" yaml:"captured_at"`
	Width      int       `json:"width" yaml:"width"`
	Height     int       `json:"height" yaml:"height"`
}

// OutcomeView is a completed analysis.
type OutcomeView struct {
	ID         string    `json:"id" yaml:"id"`
	AnalyzedAt time.Time `json:"analyzed_at" yaml:"analyzed_at"`
	RiskLevel  string    `json:"risk_level" yaml:"risk_level"`
	Asymmetry  string    `json:"asymmetry" yaml:"asymmetry"`
	Border     string    `json:"border" yaml:"border"`
	Color      string    `json:"color" yaml:"color"`
	Notes      string    `json:"notes" yaml:"notes"`
	HasImage   bool      `json:"has_image" yaml:"has_image"`
}

// FailureView is the last aborted analysis with a user-facing message.
type FailureView struct {
	Kind    string    `json:"kind" yaml:"kind"`
	Message string    `json:"message" yaml:"message"`
	At      time.Time `json:"at" yaml:"at"`
}

// ErrorResponse is the body of every non-2xx API reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Screen  string `json:"screen,omitempty"`
}

// NewOutcomeView converts a flow outcome.
func NewOutcomeView(o flow.Outcome) *OutcomeView {
	return &OutcomeView{
		ID:         o.ID,
		AnalyzedAt: o.AnalyzedAt,
		RiskLevel:  o.RiskLevel,
		Asymmetry:  o.Asymmetry,
		Border:     o.Border,
		Color:      o.Color,
		Notes:      o.Notes,
		HasImage:   o.Image != nil,
	}
}

// NewStateView builds the view of snap at now. message renders a failure
// kind for the reader; a nil message leaves the kind as the message.
func NewStateView(snap flow.Snapshot, now time.Time, message func(flow.FailureKind) string) StateView {
	v := StateView{
		Screen:  snap.Screen.String(),
		Caption: snap.Caption(now),
	}
	if snap.Onboarding != nil {
		v.Onboarding = &OnboardingView{Step: snap.Onboarding.Step, Total: snap.Onboarding.Total}
	}
	if snap.Capture != nil {
		v.Capture = &CaptureView{
			ID:         snap.Capture.ID,
			Source:     string(snap.Capture.Source),
			CapturedAt: snap.Capture.CapturedAt,
			Width:      snap.Capture.Width,
			Height:     snap.Capture.Height,
		}
	}
	if snap.Outcome != nil {
		v.Outcome = NewOutcomeView(*snap.Outcome)
	}
	if f := snap.LastFailure; f != nil {
		msg := string(f.Kind)
		if message != nil {
			msg = message(f.Kind)
		}
		v.LastFailure = &FailureView{Kind: string(f.Kind), Message: msg, At: f.At}
	}
	return v
}
