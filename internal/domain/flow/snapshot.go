package flow

import "time"

// CaptureInfo describes the pending capture without exposing the image.
type CaptureInfo struct {
	ID         string    `json:"id"`
	Source     Source    `json:"source"`
	CapturedAt time.Time `json:"captured_at"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
}

// Snapshot is a read-only projection of the coordinator for UI layers.
// It shares no mutable state with the coordinator.
type Snapshot struct {
	Screen            Screen              `json:"screen"`
	Onboarding        *OnboardingProgress `json:"onboarding,omitempty"`
	Capture           *CaptureInfo        `json:"capture,omitempty"`
	Outcome           *Outcome            `json:"outcome,omitempty"`
	LastFailure       *Failure            `json:"last_failure,omitempty"`
	AnalysisStartedAt time.Time           `json:"-"`
}

// Caption returns the analyzing caption at now, or "" when not analyzing.
func (s Snapshot) Caption(now time.Time) string {
	if s.Screen != Analyzing || s.AnalysisStartedAt.IsZero() {
		return ""
	}
	return ProgressCaption(now.Sub(s.AnalysisStartedAt))
}

// Snapshot projects the current state.
func (c *Coordinator) Snapshot() Snapshot {
	s := Snapshot{
		Screen:            c.current,
		AnalysisStartedAt: c.analysisStarted,
	}
	if c.onboarding != nil {
		p := *c.onboarding
		s.Onboarding = &p
	}
	if c.capture != nil {
		info := &CaptureInfo{
			ID:         c.capture.ID,
			Source:     c.capture.Source,
			CapturedAt: c.capture.CapturedAt,
		}
		if c.capture.Image != nil {
			b := c.capture.Image.Bounds()
			info.Width, info.Height = b.Dx(), b.Dy()
		}
		s.Capture = info
	}
	if c.outcome != nil {
		o := *c.outcome
		s.Outcome = &o
	}
	if c.failure != nil {
		f := *c.failure
		s.LastFailure = &f
	}
	return s
}
