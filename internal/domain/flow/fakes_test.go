package flow_test

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"

	"github.com/okian/skincheck/internal/domain/flow"
)

type memFlags struct {
	mu      sync.Mutex
	values  map[string]bool
	loadErr error
	saveErr error
}

func newMemFlags() *memFlags { return &memFlags{values: map[string]bool{}} }

func (m *memFlags) Load(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return false, m.loadErr
	}
	return m.values[name], nil
}

func (m *memFlags) Store(_ context.Context, name string, v bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.values[name] = v
	return nil
}

type fakeGate struct {
	entitled    bool
	checkErr    error
	presentErr  error
	grantOnShow bool
	presented   []string
	checks      int
}

func (g *fakeGate) IsEntitled(context.Context) (bool, error) {
	g.checks++
	return g.entitled, g.checkErr
}

func (g *fakeGate) PresentGate(_ context.Context, placement string) error {
	g.presented = append(g.presented, placement)
	if g.presentErr != nil {
		return g.presentErr
	}
	if g.grantOnShow {
		g.entitled = true
		g.checkErr = nil
	}
	return nil
}

type fakeBackend struct {
	outcome flow.Outcome
	err     error
	calls   int
	got     image.Image
}

func (b *fakeBackend) Analyze(_ context.Context, img image.Image) (flow.Outcome, error) {
	b.calls++
	b.got = img
	return b.outcome, b.err
}

type recordingSaver struct {
	saved []flow.Outcome
	err   error
}

func (s *recordingSaver) Save(_ context.Context, o flow.Outcome) error {
	s.saved = append(s.saved, o)
	return s.err
}

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})
	return img
}

func sampleOutcome() flow.Outcome {
	return flow.Outcome{
		RiskLevel: "Low Risk",
		Asymmetry: "Symmetrical",
		Border:    "Regular",
		Color:     "Uniform",
		Notes:     "No concerning features.",
	}
}

var errBoom = errors.New("boom")

// harness bundles a coordinator with its fakes.
type harness struct {
	flags   *memFlags
	gate    *fakeGate
	backend *fakeBackend
	c       *flow.Coordinator
}

func newHarness(onboarded bool, opts ...flow.Option) *harness {
	h := &harness{
		flags:   newMemFlags(),
		gate:    &fakeGate{entitled: true},
		backend: &fakeBackend{outcome: sampleOutcome()},
	}
	h.flags.values[flow.OnboardingFlag] = onboarded
	c, err := flow.New(context.Background(), h.flags, h.gate, h.backend, opts...)
	if err != nil {
		panic(err)
	}
	h.c = c
	return h
}

// driveTo walks a fresh, onboarded coordinator to screen using valid events.
func (h *harness) driveTo(ctx context.Context, screen flow.Screen) {
	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}
	switch screen {
	case flow.Home:
	case flow.AcquiringImage:
		must(h.c.RequestImageAcquisition(ctx))
	case flow.CapturingPhoto:
		must(h.c.RequestImageAcquisition(ctx))
		must(h.c.BeginCameraCapture(ctx))
	case flow.ConfirmingPhoto:
		must(h.c.RequestImageAcquisition(ctx))
		must(h.c.PhotoPicked(ctx, testImage()))
	case flow.Analyzing:
		h.driveTo(ctx, flow.ConfirmingPhoto)
		_, err := h.c.BeginAnalysis(ctx)
		must(err)
	case flow.ShowingResults:
		h.driveTo(ctx, flow.ConfirmingPhoto)
		must(h.c.StartAnalysisRequested(ctx))
	default:
		panic("cannot drive to " + screen.String())
	}
}

// dispatch issues event with a valid image argument where one is needed.
func dispatch(ctx context.Context, c *flow.Coordinator, event flow.Event) error {
	switch event {
	case flow.EventOnboardingAdvance:
		return c.OnboardingAdvance(ctx)
	case flow.EventOnboardingBack:
		return c.OnboardingBack(ctx)
	case flow.EventOnboardingSkipToEnd:
		return c.OnboardingSkipToEnd(ctx)
	case flow.EventOnboardingComplete:
		return c.OnboardingComplete(ctx)
	case flow.EventRequestImageAcquisition:
		return c.RequestImageAcquisition(ctx)
	case flow.EventCancelImageAcquisition:
		return c.CancelImageAcquisition(ctx)
	case flow.EventBeginCameraCapture:
		return c.BeginCameraCapture(ctx)
	case flow.EventPhotoCaptured:
		return c.PhotoCaptured(ctx, testImage())
	case flow.EventPhotoPicked:
		return c.PhotoPicked(ctx, testImage())
	case flow.EventRetakeRequested:
		return c.RetakeRequested(ctx)
	case flow.EventStartAnalysis:
		return c.StartAnalysisRequested(ctx)
	case flow.EventResultsAcknowledged:
		return c.ResultsAcknowledged(ctx)
	case flow.EventResultsSaveRequested:
		return c.ResultsSaveRequested(ctx)
	}
	panic("unknown event " + string(event))
}
