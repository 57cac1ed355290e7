package app_test

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/skincheck/internal/adapters/entitlement"
	"github.com/okian/skincheck/internal/adapters/flagstore"
	"github.com/okian/skincheck/internal/app"
	"github.com/okian/skincheck/internal/domain/flow"
	"github.com/okian/skincheck/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// heldBackend blocks every analysis until release is closed or ctx ends.
type heldBackend struct {
	release chan struct{}
	err     error
}

func newHeldBackend() *heldBackend { return &heldBackend{release: make(chan struct{})} }

func (b *heldBackend) Analyze(ctx context.Context, _ image.Image) (flow.Outcome, error) {
	select {
	case <-b.release:
	case <-ctx.Done():
		return flow.Outcome{}, ctx.Err()
	}
	if b.err != nil {
		return flow.Outcome{}, b.err
	}
	return flow.Outcome{RiskLevel: "Medium Risk", Asymmetry: "Asymmetrical", Border: "Regular", Color: "Uniform", Notes: "Monitor."}, nil
}

func photo() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.Set(2, 2, color.RGBA{G: 120, A: 255})
	return img
}

func newRunner(onboarded bool, backend flow.AnalysisBackend, opts ...app.Option) *app.Runner {
	ctx := context.Background()
	flags := flagstore.NewMemory()
	if onboarded {
		if err := flags.Store(ctx, flow.OnboardingFlag, true); err != nil {
			panic(err)
		}
	}
	coord, err := flow.New(ctx, flags, entitlement.NewStatic(true), backend, flow.WithOnboardingSteps(100))
	if err != nil {
		panic(err)
	}
	return app.New(coord, opts...)
}

func waitForScreen(r *app.Runner, screen flow.Screen) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r.Snapshot().Screen == screen {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func stop(r *app.Runner) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = r.Stop(ctx)
}

func TestRunner_Lifecycle(t *testing.T) {
	Convey("Given a runner that was not started", t, func() {
		ctx := context.Background()
		r := newRunner(true, newHeldBackend())

		Convey("Then commands are rejected", func() {
			So(errors.Is(r.RequestImageAcquisition(ctx), app.ErrStopped), ShouldBeTrue)
		})

		Convey("Then the initial projection is published", func() {
			So(r.Snapshot().Screen, ShouldEqual, flow.Home)
		})

		Convey("When it is stopped without starting", func() {
			So(r.Stop(ctx), ShouldBeNil)

			Convey("Then it cannot be started", func() {
				So(errors.Is(r.Start(ctx), app.ErrStopped), ShouldBeTrue)
			})
		})
	})

	Convey("Given a started runner", t, func() {
		ctx := context.Background()
		r := newRunner(true, newHeldBackend())
		So(r.Start(ctx), ShouldBeNil)

		Convey("Then starting again is a no-op", func() {
			So(r.Start(ctx), ShouldBeNil)
			stop(r)
		})

		Convey("When it is stopped", func() {
			So(r.Stop(ctx), ShouldBeNil)

			Convey("Then later commands fail with ErrStopped", func() {
				So(errors.Is(r.RequestImageAcquisition(ctx), app.ErrStopped), ShouldBeTrue)
			})

			Convey("Then stopping again is a no-op", func() {
				So(r.Stop(ctx), ShouldBeNil)
			})
		})
	})
}

func TestRunner_AnalysisFlow(t *testing.T) {
	Convey("Given a started runner on Home", t, func() {
		ctx := context.Background()
		backend := newHeldBackend()
		r := newRunner(true, backend)
		So(r.Start(ctx), ShouldBeNil)
		defer stop(r)

		So(r.RequestImageAcquisition(ctx), ShouldBeNil)
		So(r.PhotoPicked(ctx, photo()), ShouldBeNil)
		So(r.Snapshot().Screen, ShouldEqual, flow.ConfirmingPhoto)
		So(r.Snapshot().Capture.Width, ShouldEqual, 8)

		Convey("When an analysis is started", func() {
			So(r.StartAnalysis(ctx), ShouldBeNil)

			Convey("Then the runner reports Analyzing with a caption", func() {
				snap := r.Snapshot()
				So(snap.Screen, ShouldEqual, flow.Analyzing)
				So(snap.Caption(time.Now()), ShouldNotBeEmpty)
			})

			Convey("Then events are still served while the analysis runs", func() {
				err := r.StartAnalysis(ctx)
				So(flow.IsInvalidTransition(err), ShouldBeTrue)
				So(flow.IsInvalidTransition(r.OnboardingAdvance(ctx)), ShouldBeTrue)
			})

			Convey("And the backend answers", func() {
				close(backend.release)

				Convey("Then the results are shown with the capture kept", func() {
					So(waitForScreen(r, flow.ShowingResults), ShouldBeTrue)
					snap := r.Snapshot()
					So(snap.Outcome, ShouldNotBeNil)
					So(snap.Outcome.RiskLevel, ShouldEqual, "Medium Risk")
					So(snap.Outcome.ID, ShouldNotBeEmpty)
					So(snap.Capture, ShouldNotBeNil)

					So(r.ResultsSaveRequested(ctx), ShouldBeNil)
					So(r.ResultsAcknowledged(ctx), ShouldBeNil)
					So(r.Snapshot().Screen, ShouldEqual, flow.Home)
					So(r.Snapshot().Outcome, ShouldBeNil)
				})
			})
		})

		Convey("When the backend fails", func() {
			backend.err = flow.ErrServerError
			So(r.StartAnalysis(ctx), ShouldBeNil)
			close(backend.release)

			Convey("Then the runner goes Home and records the failure", func() {
				So(waitForScreen(r, flow.Home), ShouldBeTrue)
				snap := r.Snapshot()
				So(snap.Capture, ShouldBeNil)
				So(snap.LastFailure, ShouldNotBeNil)
				So(snap.LastFailure.Kind, ShouldEqual, flow.FailureServer)
			})
		})
	})
}

func TestRunner_StopAbandonsAnalysis(t *testing.T) {
	Convey("Given an analysis in flight", t, func() {
		ctx := context.Background()
		r := newRunner(true, newHeldBackend())
		So(r.Start(ctx), ShouldBeNil)
		So(r.RequestImageAcquisition(ctx), ShouldBeNil)
		So(r.BeginCameraCapture(ctx), ShouldBeNil)
		So(r.PhotoCaptured(ctx, photo()), ShouldBeNil)
		So(r.StartAnalysis(ctx), ShouldBeNil)
		So(r.Snapshot().Screen, ShouldEqual, flow.Analyzing)

		Convey("When the runner stops", func() {
			stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			So(r.Stop(stopCtx), ShouldBeNil)

			Convey("Then the result is dropped", func() {
				So(r.Snapshot().Screen, ShouldEqual, flow.Analyzing)
				So(r.Snapshot().LastFailure, ShouldBeNil)
			})

			Convey("Then later events are refused", func() {
				So(errors.Is(r.ResultsAcknowledged(ctx), app.ErrStopped), ShouldBeTrue)
			})
		})
	})
}

func TestRunner_Dispatch(t *testing.T) {
	Convey("Given a started runner in onboarding", t, func() {
		ctx := context.Background()
		r := newRunner(false, newHeldBackend())
		So(r.Start(ctx), ShouldBeNil)
		defer stop(r)

		Convey("When intents are dispatched by name", func() {
			So(r.Dispatch(ctx, flow.EventOnboardingAdvance), ShouldBeNil)
			So(r.Dispatch(ctx, flow.EventOnboardingSkipToEnd), ShouldBeNil)
			So(r.Snapshot().Onboarding.Step, ShouldEqual, 99)
			So(r.Dispatch(ctx, flow.EventOnboardingComplete), ShouldBeNil)

			Convey("Then the flow follows them", func() {
				So(r.Snapshot().Screen, ShouldEqual, flow.Home)
				So(r.Snapshot().Onboarding, ShouldBeNil)
			})
		})

		Convey("When an event needing an image is dispatched", func() {
			err := r.Dispatch(ctx, flow.EventPhotoPicked)

			Convey("Then it is refused", func() {
				So(errors.Is(err, app.ErrUnknownIntent), ShouldBeTrue)
			})
		})
	})
}

func TestRunner_SerializesCommands(t *testing.T) {
	Convey("Given many goroutines advancing onboarding at once", t, func() {
		ctx := context.Background()
		r := newRunner(false, newHeldBackend(), app.WithMailboxSize(64))
		So(r.Start(ctx), ShouldBeNil)
		defer stop(r)

		const n = 50
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- r.OnboardingAdvance(ctx)
			}()
		}
		wg.Wait()
		close(errs)

		Convey("Then every advance is applied exactly once", func() {
			for err := range errs {
				So(err, ShouldBeNil)
			}
			So(r.Snapshot().Onboarding.Step, ShouldEqual, n)
		})
	})
}

func TestRunner_MailboxFull(t *testing.T) {
	Convey("Given a runner whose loop is busy and whose mailbox is full", t, func() {
		ctx := context.Background()
		r := newRunner(true, newHeldBackend(), app.WithMailboxSize(1))
		So(r.Start(ctx), ShouldBeNil)
		defer stop(r)

		entered := make(chan struct{})
		release := make(chan struct{})
		busy := func(context.Context, *flow.Coordinator) error {
			close(entered)
			<-release
			return nil
		}
		noop := func(context.Context, *flow.Coordinator) error { return nil }

		So(r.Post(ctx, "busy", busy), ShouldBeNil)
		<-entered
		So(r.Post(ctx, "queued", noop), ShouldBeNil)

		Convey("When another command is submitted", func() {
			err := r.Post(ctx, "rejected", noop)
			close(release)

			Convey("Then it is rejected", func() {
				So(errors.Is(err, app.ErrMailboxFull), ShouldBeTrue)
			})
		})
	})
}

func TestRunner_CancelledCommand(t *testing.T) {
	Convey("Given a cancelled context", t, func() {
		r := newRunner(true, newHeldBackend())
		So(r.Start(context.Background()), ShouldBeNil)
		defer stop(r)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		Convey("Then the command is not applied", func() {
			err := r.RequestImageAcquisition(ctx)
			So(err, ShouldNotBeNil)
			So(r.Snapshot().Screen, ShouldEqual, flow.Home)
		})
	})
}
