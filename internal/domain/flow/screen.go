// Package flow implements the screen-flow coordinator: a single-active-screen
// navigation state machine that owns the data captured during a scan and
// mediates the entitlement gate and the analysis backend.
package flow

import (
	"fmt"
	"slices"
)

// Screen identifies the single active screen.
type Screen int

const (
	Onboarding Screen = iota
	Home
	AcquiringImage
	CapturingPhoto
	ConfirmingPhoto
	Analyzing
	ShowingResults
)

var screenNames = [...]string{
	Onboarding:      "onboarding",
	Home:            "home",
	AcquiringImage:  "acquiring_image",
	CapturingPhoto:  "capturing_photo",
	ConfirmingPhoto: "confirming_photo",
	Analyzing:       "analyzing",
	ShowingResults:  "showing_results",
}

func (s Screen) String() string {
	if s < 0 || int(s) >= len(screenNames) {
		return fmt.Sprintf("screen(%d)", int(s))
	}
	return screenNames[s]
}

// MarshalText renders the screen by name.
func (s Screen) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// needsCapture reports whether the screen can only be entered with a pending capture.
func (s Screen) needsCapture() bool {
	return s == ConfirmingPhoto || s == Analyzing || s == ShowingResults
}

// Event names a coordinator transition.
type Event string

const (
	EventOnboardingAdvance       Event = "onboarding_advance"
	EventOnboardingBack          Event = "onboarding_back"
	EventOnboardingSkipToEnd     Event = "onboarding_skip_to_end"
	EventOnboardingComplete      Event = "onboarding_complete"
	EventRequestImageAcquisition Event = "request_image_acquisition"
	EventCancelImageAcquisition  Event = "cancel_image_acquisition"
	EventBeginCameraCapture      Event = "begin_camera_capture"
	EventPhotoCaptured           Event = "photo_captured"
	EventPhotoPicked             Event = "photo_picked"
	EventRetakeRequested         Event = "retake_requested"
	EventStartAnalysis           Event = "start_analysis"
	EventResultsAcknowledged     Event = "results_acknowledged"
	EventResultsSaveRequested    Event = "results_save_requested"

	// Completions of an in-flight analysis.
	EventAnalysisSucceeded Event = "analysis_succeeded"
	EventAnalysisFailed    Event = "analysis_failed"
)

// validFrom lists the screens each event may be issued from.
// Any pair not listed is an invalid transition.
var validFrom = map[Event][]Screen{
	EventOnboardingAdvance:       {Onboarding},
	EventOnboardingBack:          {Onboarding},
	EventOnboardingSkipToEnd:     {Onboarding},
	EventOnboardingComplete:      {Onboarding},
	EventRequestImageAcquisition: {Home},
	EventCancelImageAcquisition:  {AcquiringImage, CapturingPhoto},
	EventBeginCameraCapture:      {AcquiringImage},
	EventPhotoCaptured:           {CapturingPhoto},
	EventPhotoPicked:             {AcquiringImage},
	EventRetakeRequested:         {ConfirmingPhoto},
	EventStartAnalysis:           {ConfirmingPhoto},
	EventResultsAcknowledged:     {ShowingResults},
	EventResultsSaveRequested:    {ShowingResults},
	EventAnalysisSucceeded:       {Analyzing},
	EventAnalysisFailed:          {Analyzing},
}

// IsValid reports whether event may be issued while from is current.
func IsValid(event Event, from Screen) bool {
	return slices.Contains(validFrom[event], from)
}

// ValidFrom returns the screens event may be issued from.
func ValidFrom(event Event) []Screen {
	return slices.Clone(validFrom[event])
}

// Intents are the events a UI may issue without an argument.
var Intents = []Event{
	EventOnboardingAdvance,
	EventOnboardingBack,
	EventOnboardingSkipToEnd,
	EventOnboardingComplete,
	EventRequestImageAcquisition,
	EventCancelImageAcquisition,
	EventBeginCameraCapture,
	EventRetakeRequested,
	EventStartAnalysis,
	EventResultsAcknowledged,
	EventResultsSaveRequested,
}

// ParseIntent resolves an argument-less event by name.
func ParseIntent(name string) (Event, bool) {
	e := Event(name)
	return e, slices.Contains(Intents, e)
}
