package flow

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/google/uuid"
	"github.com/okian/skincheck/pkg/logger"
	"github.com/okian/skincheck/pkg/metrics"
)

// GatePolicy decides what happens after the paywall resolves.
type GatePolicy string

const (
	// PolicyProceed analyzes whether the paywall was dismissed or purchased.
	PolicyProceed GatePolicy = "proceed"
	// PolicyRequire analyzes only when the user is entitled after the paywall.
	PolicyRequire GatePolicy = "require"
)

// Option applies a configuration option to the Coordinator.
type Option func(*Coordinator)

// WithOnboardingSteps sets the number of onboarding pages.
func WithOnboardingSteps(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.totalSteps = n
		}
	}
}

// WithPlacement sets the paywall placement presented before an analysis.
func WithPlacement(id string) Option {
	return func(c *Coordinator) {
		if id != "" {
			c.placement = id
		}
	}
}

// WithGatePolicy sets the policy applied after the paywall resolves.
func WithGatePolicy(p GatePolicy) Option {
	return func(c *Coordinator) {
		if p == PolicyProceed || p == PolicyRequire {
			c.policy = p
		}
	}
}

// WithResultSaver sets the collaborator that persists shown outcomes.
func WithResultSaver(s ResultSaver) Option {
	return func(c *Coordinator) {
		if s != nil {
			c.saver = s
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.log = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// Coordinator is the screen-flow state machine. It is not safe for
// concurrent use: every call must come from the single owning goroutine.
type Coordinator struct {
	flags   FlagStore
	gate    EntitlementGate
	backend AnalysisBackend
	saver   ResultSaver
	log     logger.Logger
	now     func() time.Time

	totalSteps int
	placement  string
	policy     GatePolicy

	current    Screen
	capture    *PendingCapture
	outcome    *Outcome
	onboarding *OnboardingProgress
	failure    *Failure

	// analysis is the token of the in-flight analysis, zero when none.
	analysis        uint64
	lastToken       uint64
	analysisStarted time.Time
}

// New reads the onboarding flag once and returns a coordinator on Home when
// onboarding was completed before, or on the first onboarding page otherwise.
func New(ctx context.Context, flags FlagStore, gate EntitlementGate, backend AnalysisBackend, opts ...Option) (*Coordinator, error) {
	c := &Coordinator{
		flags:      flags,
		gate:       gate,
		backend:    backend,
		saver:      NopSaver{},
		log:        logger.Nop(),
		now:        time.Now,
		totalSteps: DefaultOnboardingSteps,
		placement:  DefaultPlacement,
		policy:     PolicyProceed,
	}
	for _, opt := range opts {
		opt(c)
	}

	done, err := flags.Load(ctx, OnboardingFlag)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", OnboardingFlag, err)
	}

	if done {
		c.current = Home
	} else {
		c.current = Onboarding
		c.onboarding = &OnboardingProgress{Step: 0, Total: c.totalSteps}
	}
	metrics.UpdateCurrentScreen(c.current.String())
	metrics.RecordFlowStarted()
	c.log.Info(ctx, "coordinator ready", logger.String("screen", c.current.String()))
	return c, nil
}

// Current returns the active screen.
func (c *Coordinator) Current() Screen { return c.current }

// Capture returns the pending capture, or nil.
func (c *Coordinator) Capture() *PendingCapture { return c.capture }

// Outcome returns the completed analysis, or nil.
func (c *Coordinator) Outcome() *Outcome { return c.outcome }

// Onboarding returns the onboarding progress while onboarding, or nil.
func (c *Coordinator) Onboarding() *OnboardingProgress { return c.onboarding }

// LastFailure returns the cause of the last aborted analysis in this flow, or nil.
func (c *Coordinator) LastFailure() *Failure { return c.failure }

// OnboardingAdvance moves to the next page, completing onboarding from the last one.
func (c *Coordinator) OnboardingAdvance(ctx context.Context) error {
	if err := c.check(ctx, EventOnboardingAdvance); err != nil {
		return err
	}
	if c.onboarding.Step < c.onboarding.Last() {
		c.onboarding.Step++
		metrics.RecordOnboardingStep()
		return nil
	}
	return c.completeOnboarding(ctx, EventOnboardingAdvance)
}

// OnboardingBack moves to the previous page, staying on the first.
func (c *Coordinator) OnboardingBack(ctx context.Context) error {
	if err := c.check(ctx, EventOnboardingBack); err != nil {
		return err
	}
	c.onboarding.Step = max(0, c.onboarding.Step-1)
	return nil
}

// OnboardingSkipToEnd jumps to the last page.
func (c *Coordinator) OnboardingSkipToEnd(ctx context.Context) error {
	if err := c.check(ctx, EventOnboardingSkipToEnd); err != nil {
		return err
	}
	c.onboarding.Step = c.onboarding.Last()
	return nil
}

// OnboardingComplete persists completion and moves Home.
func (c *Coordinator) OnboardingComplete(ctx context.Context) error {
	if err := c.check(ctx, EventOnboardingComplete); err != nil {
		return err
	}
	return c.completeOnboarding(ctx, EventOnboardingComplete)
}

func (c *Coordinator) completeOnboarding(ctx context.Context, event Event) error {
	if err := c.flags.Store(ctx, OnboardingFlag, true); err != nil {
		c.log.Error(ctx, "onboarding flag not persisted", logger.Error(err))
		metrics.RecordErrorByComponent("flow", "persist_flag")
		return fmt.Errorf("%w: %w", ErrPersistFlag, err)
	}
	c.onboarding = nil
	return c.enter(ctx, event, Home)
}

// RequestImageAcquisition starts a new flow.
func (c *Coordinator) RequestImageAcquisition(ctx context.Context) error {
	if err := c.check(ctx, EventRequestImageAcquisition); err != nil {
		return err
	}
	c.capture = nil
	c.outcome = nil
	c.failure = nil
	return c.enter(ctx, EventRequestImageAcquisition, AcquiringImage)
}

// CancelImageAcquisition abandons acquisition and moves Home.
func (c *Coordinator) CancelImageAcquisition(ctx context.Context) error {
	if err := c.check(ctx, EventCancelImageAcquisition); err != nil {
		return err
	}
	c.capture = nil
	return c.enter(ctx, EventCancelImageAcquisition, Home)
}

// BeginCameraCapture opens the camera.
func (c *Coordinator) BeginCameraCapture(ctx context.Context) error {
	if err := c.check(ctx, EventBeginCameraCapture); err != nil {
		return err
	}
	return c.enter(ctx, EventBeginCameraCapture, CapturingPhoto)
}

// PhotoCaptured stores a camera image and asks for confirmation.
func (c *Coordinator) PhotoCaptured(ctx context.Context, img image.Image) error {
	return c.storeCapture(ctx, EventPhotoCaptured, SourceCamera, img)
}

// PhotoPicked stores a library image and asks for confirmation.
func (c *Coordinator) PhotoPicked(ctx context.Context, img image.Image) error {
	return c.storeCapture(ctx, EventPhotoPicked, SourceLibrary, img)
}

func (c *Coordinator) storeCapture(ctx context.Context, event Event, src Source, img image.Image) error {
	if err := c.check(ctx, event); err != nil {
		return err
	}
	if img == nil {
		return c.violation(ctx, &CaptureError{Event: event, To: ConfirmingPhoto, What: "an image"})
	}
	c.capture = &PendingCapture{
		ID:         uuid.NewString(),
		Source:     src,
		Image:      img,
		CapturedAt: c.now(),
	}
	return c.enter(ctx, event, ConfirmingPhoto)
}

// RetakeRequested discards the capture and reopens the camera.
func (c *Coordinator) RetakeRequested(ctx context.Context) error {
	if err := c.check(ctx, EventRetakeRequested); err != nil {
		return err
	}
	c.capture = nil
	return c.enter(ctx, EventRetakeRequested, CapturingPhoto)
}

// ResultsAcknowledged closes the results and moves Home.
func (c *Coordinator) ResultsAcknowledged(ctx context.Context) error {
	if err := c.check(ctx, EventResultsAcknowledged); err != nil {
		return err
	}
	c.capture = nil
	c.outcome = nil
	return c.enter(ctx, EventResultsAcknowledged, Home)
}

// ResultsSaveRequested hands the shown outcome to the ResultSaver.
// The screen does not change.
func (c *Coordinator) ResultsSaveRequested(ctx context.Context) error {
	if err := c.check(ctx, EventResultsSaveRequested); err != nil {
		return err
	}
	if c.outcome == nil {
		return c.violation(ctx, &CaptureError{Event: EventResultsSaveRequested, To: ShowingResults, What: "an outcome"})
	}
	if err := c.saver.Save(ctx, *c.outcome); err != nil {
		c.log.Warn(ctx, "save outcome failed", logger.String("outcome_id", c.outcome.ID), logger.Error(err))
		return fmt.Errorf("save outcome: %w", err)
	}
	return nil
}

// check rejects event when the current screen does not accept it.
func (c *Coordinator) check(ctx context.Context, event Event) error {
	if IsValid(event, c.current) {
		return nil
	}
	metrics.RecordInvalidTransition(string(event), c.current.String())
	return c.violation(ctx, &TransitionError{Event: event, From: c.current})
}

// enter switches to the target screen after verifying its data preconditions.
func (c *Coordinator) enter(ctx context.Context, event Event, to Screen) error {
	if to.needsCapture() && (c.capture == nil || c.capture.Image == nil) {
		return c.violation(ctx, &CaptureError{Event: event, To: to, What: "a captured image"})
	}
	if to == ShowingResults && c.outcome == nil {
		return c.violation(ctx, &CaptureError{Event: event, To: to, What: "an outcome"})
	}

	from := c.current
	c.current = to
	if to != Onboarding {
		c.onboarding = nil
	}
	metrics.RecordTransition(string(event), from.String(), to.String())
	c.log.Debug(ctx, "transition",
		logger.String("event", string(event)),
		logger.String("from", from.String()),
		logger.String("to", to.String()),
	)
	return nil
}

func (c *Coordinator) violation(ctx context.Context, err error) error {
	kind := "invalid_transition"
	if IsMissingCaptureData(err) {
		kind = "missing_capture_data"
	}
	metrics.RecordContractViolation(kind)
	c.log.Error(ctx, "flow contract violation",
		logger.String("kind", kind),
		logger.String("screen", c.current.String()),
		logger.Error(err),
	)
	return err
}
