// Package smoke drives a running service through one complete flow over its
// control API and reports what it saw.
package smoke

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/okian/skincheck/internal/domain/flow"
	"github.com/okian/skincheck/internal/domain/types"
	"github.com/okian/skincheck/pkg/logger"
)

// Defaults for Config fields left zero.
const (
	defaultTimeout      = 30 * time.Second
	defaultWait         = 2 * time.Minute
	defaultPollInterval = 250 * time.Millisecond
	syntheticSize       = 64
)

// Run walks the service from Home (completing onboarding when it is pending)
// through acquisition, upload and analysis, then acknowledges the results.
// A failed analysis yields the report and ErrAnalysisFailed.
func Run(ctx context.Context, cfg Config) (*Report, error) {
	cfg.withDefaults()
	log := logger.Get().Named("smoke")
	start := time.Now()
	rep := &Report{}
	c := newClient(cfg.BaseURL, cfg.Timeout)

	data, name, err := loadImage(cfg.Image)
	if err != nil {
		return nil, err
	}

	log.Info(ctx, "starting smoke run",
		logger.String("baseURL", cfg.BaseURL),
		logger.String("image", name),
		logger.Duration("timeout", cfg.Timeout),
		logger.Duration("wait", cfg.Wait),
	)

	// Step 1: Check service health
	r, err := c.do(ctx, http.MethodGet, "/healthz", nil, "", "")
	if err != nil {
		return rep, fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	rep.record("healthz", r, "")
	if r.status != http.StatusOK {
		return rep, fmt.Errorf("%w: status %d", ErrUnhealthy, r.status)
	}

	// Step 2: Reach Home
	v, r, err := c.state(ctx)
	if err != nil {
		return rep, err
	}
	rep.record("state", r, v.Screen)
	if v.Screen == flow.Onboarding.String() {
		for _, event := range []flow.Event{flow.EventOnboardingSkipToEnd, flow.EventOnboardingComplete} {
			if v, err = rep.intent(ctx, c, event, uuid.NewString(), http.StatusOK); err != nil {
				return rep, err
			}
		}
	}
	if v.Screen != flow.Home.String() {
		return rep, fmt.Errorf("%w: want %s, service is on %s", ErrUnexpectedScreen, flow.Home, v.Screen)
	}

	// Step 3: Start acquisition, then retry it under the same key
	key := uuid.NewString()
	if _, err = rep.intent(ctx, c, flow.EventRequestImageAcquisition, key, http.StatusOK); err != nil {
		return rep, err
	}
	_, r, err = c.intent(ctx, flow.EventRequestImageAcquisition, key)
	if err != nil {
		return rep, err
	}
	rep.record("retry "+string(flow.EventRequestImageAcquisition), r, "")
	if r.status != http.StatusOK || !r.replayed {
		return rep, fmt.Errorf("%w: status %d", ErrNoReplay, r.status)
	}
	rep.Replayed = true

	// Step 4: Upload the photo
	r, err = c.upload(ctx, name, data)
	if err != nil {
		return rep, err
	}
	rep.record("capture library", r, "")
	if err := expect(r, http.StatusOK, "capture library"); err != nil {
		return rep, err
	}

	// Step 5: Analyze and wait for the flow to leave Analyzing
	if _, err = rep.intent(ctx, c, flow.EventStartAnalysis, uuid.NewString(), http.StatusAccepted); err != nil {
		return rep, err
	}
	v, err = rep.await(ctx, c, cfg)
	if err != nil {
		return rep, err
	}

	// Step 6: Inspect the outcome
	switch v.Screen {
	case flow.ShowingResults.String():
		if v.Outcome == nil {
			return rep, fmt.Errorf("%w: %s without an outcome", ErrUnexpectedScreen, v.Screen)
		}
		rep.Outcome = v.Outcome
		r, err = c.do(ctx, http.MethodGet, "/outcome/image", nil, "", "")
		if err != nil {
			return rep, err
		}
		rep.record("outcome image", r, "")
		if err := expect(r, http.StatusOK, "outcome image"); err != nil {
			return rep, err
		}
		if ct := r.header.Get("Content-Type"); ct != "image/jpeg" {
			return rep, fmt.Errorf("%w: outcome image served as %q", ErrUnexpectedStatus, ct)
		}
		if _, err = rep.intent(ctx, c, flow.EventResultsAcknowledged, uuid.NewString(), http.StatusOK); err != nil {
			return rep, err
		}
	case flow.Home.String():
		rep.Failure = v.LastFailure
		rep.Duration = time.Since(start)
		kind := "unknown"
		if v.LastFailure != nil {
			kind = v.LastFailure.Kind
		}
		return rep, fmt.Errorf("%w: %s", ErrAnalysisFailed, kind)
	default:
		return rep, fmt.Errorf("%w: %s after analysis", ErrUnexpectedScreen, v.Screen)
	}

	rep.Duration = time.Since(start)
	log.Info(ctx, "smoke run completed",
		logger.Int("requests", len(rep.Steps)),
		logger.String("riskLevel", rep.Outcome.RiskLevel),
		logger.Duration("duration", rep.Duration),
	)
	return rep, nil
}

func (rep *Report) record(name string, r reply, screen string) {
	rep.Steps = append(rep.Steps, Step{Name: name, Status: r.status, Screen: screen, Elapsed: r.elapsed})
}

func (rep *Report) intent(ctx context.Context, c *client, event flow.Event, key string, want int) (types.StateView, error) {
	v, r, err := c.intent(ctx, event, key)
	if err != nil {
		return v, err
	}
	rep.record(string(event), r, v.Screen)
	return v, expect(r, want, string(event))
}

func (rep *Report) await(ctx context.Context, c *client, cfg Config) (types.StateView, error) {
	deadline := time.Now().Add(cfg.Wait)
	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	for {
		v, r, err := c.state(ctx)
		if err != nil {
			return v, err
		}
		if v.Screen != flow.Analyzing.String() {
			rep.record("state", r, v.Screen)
			return v, nil
		}
		if time.Now().After(deadline) {
			return v, fmt.Errorf("%w: still %s after %s", ErrAnalysisTimeout, v.Caption, cfg.Wait)
		}
		select {
		case <-ctx.Done():
			return v, ctx.Err()
		case <-ticker.C:
		}
	}
}

func expect(r reply, want int, step string) error {
	if r.status == want {
		return nil
	}
	return fmt.Errorf("%w: %s answered %d, want %d: %s",
		ErrUnexpectedStatus, step, r.status, want, strings.TrimSpace(string(r.body)))
}

// loadImage reads path, or draws a small synthetic lesion when path is empty.
func loadImage(path string) ([]byte, string, error) {
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, "", fmt.Errorf("read image: %w", err)
		}
		return b, filepath.Base(path), nil
	}

	img := image.NewRGBA(image.Rect(0, 0, syntheticSize, syntheticSize))
	skin := color.RGBA{R: 224, G: 172, B: 138, A: 255}
	lesion := color.RGBA{R: 92, G: 51, B: 23, A: 255}
	mid := syntheticSize / 2
	for x := range syntheticSize {
		for y := range syntheticSize {
			dx, dy := x-mid, y-mid
			if dx*dx+dy*dy < (mid/2)*(mid/2) {
				img.Set(x, y, lesion)
			} else {
				img.Set(x, y, skin)
			}
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), "synthetic.png", nil
}
