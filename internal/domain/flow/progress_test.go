package flow_test

import (
	"context"
	"testing"
	"time"

	"github.com/okian/skincheck/internal/domain/flow"
	. "github.com/smartystreets/goconvey/convey"
)

func TestProgressCaption(t *testing.T) {
	Convey("Given the analyzing captions", t, func() {
		Convey("Then they should rotate every interval and wrap", func() {
			So(flow.ProgressCaption(0), ShouldEqual, "Analyzing Asymmetry...")
			So(flow.ProgressCaption(-time.Second), ShouldEqual, "Analyzing Asymmetry...")
			So(flow.ProgressCaption(flow.CaptionInterval), ShouldEqual, "Checking Border Irregularity...")
			So(flow.ProgressCaption(2*flow.CaptionInterval+time.Millisecond), ShouldEqual, "Assessing Color Variations...")
			So(flow.ProgressCaption(3*flow.CaptionInterval), ShouldEqual, "Compiling Report...")
			So(flow.ProgressCaption(4*flow.CaptionInterval), ShouldEqual, "Analyzing Asymmetry...")
		})
	})
}

func TestSnapshot(t *testing.T) {
	Convey("Given a coordinator with a fixed clock", t, func() {
		ctx := context.Background()
		start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
		h := newHarness(true, flow.WithClock(func() time.Time { return start }))

		Convey("When analyzing", func() {
			h.driveTo(ctx, flow.Analyzing)
			snap := h.c.Snapshot()

			Convey("Then the projection should describe the capture and caption", func() {
				So(snap.Screen, ShouldEqual, flow.Analyzing)
				So(snap.Capture, ShouldNotBeNil)
				So(snap.Capture.Width, ShouldEqual, 4)
				So(snap.Capture.Height, ShouldEqual, 3)
				So(snap.Capture.CapturedAt, ShouldEqual, start)
				So(snap.Caption(start.Add(1300*time.Millisecond)), ShouldEqual, "Checking Border Irregularity...")
			})
		})

		Convey("When onboarding", func() {
			h := newHarness(false)
			snap := h.c.Snapshot()
			snap.Onboarding.Step = 3

			Convey("Then mutating the projection should not touch the coordinator", func() {
				So(h.c.Onboarding().Step, ShouldEqual, 0)
				So(snap.Caption(time.Now()), ShouldEqual, "")
			})
		})

		Convey("When showing results", func() {
			h.driveTo(ctx, flow.ShowingResults)
			snap := h.c.Snapshot()

			Convey("Then the outcome should be a copy", func() {
				So(snap.Outcome, ShouldNotBeNil)
				So(snap.Outcome.AnalyzedAt, ShouldEqual, start)
				snap.Outcome.RiskLevel = "changed"
				So(h.c.Outcome().RiskLevel, ShouldEqual, "Low Risk")
			})
		})
	})
}
