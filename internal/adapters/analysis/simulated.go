package analysis

import (
	"context"
	"fmt"
	"image"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/okian/skincheck/internal/domain/flow"
)

// Default simulation constants.
const (
	defaultMinLatency = 800 * time.Millisecond
	defaultMaxLatency = 2000 * time.Millisecond
	defaultRandomSeed = 42
	sampleGrid        = 32
)

// SimulatedOption applies a configuration option to the Simulated backend.
type SimulatedOption func(*Simulated)

// WithLatencyRange sets the simulated service latency.
func WithLatencyRange(minLatency, maxLatency time.Duration) SimulatedOption {
	return func(s *Simulated) {
		if minLatency >= 0 && maxLatency >= minLatency {
			s.minLatency = minLatency
			s.maxLatency = maxLatency
		}
	}
}

// WithFailureRate makes a share of requests fail as network failures.
func WithFailureRate(rate float64) SimulatedOption {
	return func(s *Simulated) {
		if rate >= 0 && rate <= 1 {
			s.failureRate = rate
		}
	}
}

// WithSeed reseeds the latency and failure generator.
func WithSeed(seed int64) SimulatedOption {
	return func(s *Simulated) {
		s.rng = rand.New(rand.NewSource(seed)) //nolint:gosec // simulation only
	}
}

// Simulated stands in for the remote service. Latency and failures are
// random; the outcome itself is a pure function of the image.
type Simulated struct {
	minLatency  time.Duration
	maxLatency  time.Duration
	failureRate float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulated creates a simulated backend with configuration options.
func NewSimulated(opts ...SimulatedOption) *Simulated {
	s := &Simulated{
		minLatency: defaultMinLatency,
		maxLatency: defaultMaxLatency,
		rng:        rand.New(rand.NewSource(defaultRandomSeed)), //nolint:gosec // deterministic seed for reproducible testing
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Analyze waits for the simulated latency and grades the image.
func (s *Simulated) Analyze(ctx context.Context, img image.Image) (flow.Outcome, error) {
	if img == nil || img.Bounds().Empty() {
		return flow.Outcome{}, fmt.Errorf("%w: empty image", flow.ErrImageEncodingFailed)
	}

	latency, fail := s.roll()
	select {
	case <-ctx.Done():
		return flow.Outcome{}, fmt.Errorf("%w: %w", flow.ErrNetworkFailure, ctx.Err())
	case <-time.After(latency):
	}
	if fail {
		return flow.Outcome{}, fmt.Errorf("%w: simulated outage", flow.ErrNetworkFailure)
	}
	return Grade(img), nil
}

func (s *Simulated) roll() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	latency := s.minLatency
	if span := s.maxLatency - s.minLatency; span > 0 {
		latency += time.Duration(s.rng.Int63n(int64(span)))
	}
	return latency, s.rng.Float64() < s.failureRate
}

// Grade derives a qualitative assessment from image statistics: left/right
// luminance balance for asymmetry, edge contrast for the border, and
// chroma spread for color.
func Grade(img image.Image) flow.Outcome {
	st := sample(img)

	var concerns int
	out := flow.Outcome{}

	switch {
	case st.asymmetry > 0.15:
		out.Asymmetry = "Asymmetrical"
		concerns++
	case st.asymmetry > 0.05:
		out.Asymmetry = "Slightly asymmetrical"
	default:
		out.Asymmetry = "Symmetrical"
	}

	switch {
	case st.edge > 0.25:
		out.Border = "Irregular"
		concerns++
	case st.edge > 0.1:
		out.Border = "Mostly regular"
	default:
		out.Border = "Regular"
	}

	switch {
	case st.chroma > 0.2:
		out.Color = "Multiple colors"
		concerns++
	case st.chroma > 0.08:
		out.Color = "Some variation"
	default:
		out.Color = "Uniform"
	}

	switch concerns {
	case 0:
		out.RiskLevel = "Low Risk"
		out.Notes = "No concerning features detected. Keep monitoring for changes."
	case 1:
		out.RiskLevel = "Medium Risk"
		out.Notes = "One feature warrants attention. Consider a follow-up photo in a few weeks."
	default:
		out.RiskLevel = "High Risk"
		out.Notes = "Several features warrant attention. Please consult a dermatologist."
	}
	return out
}

type stats struct {
	asymmetry float64 // |mean(left) - mean(right)| luminance in [0,1]
	edge      float64 // mean luminance step between neighbouring samples
	chroma    float64 // standard deviation of chroma
}

func sample(img image.Image) stats {
	b := img.Bounds()
	cols, rows := min(sampleGrid, b.Dx()), min(sampleGrid, b.Dy())

	lum := make([][]float64, rows)
	var chromaSum, chromaSq float64
	for y := 0; y < rows; y++ {
		lum[y] = make([]float64, cols)
		py := b.Min.Y + y*b.Dy()/rows
		for x := 0; x < cols; x++ {
			px := b.Min.X + x*b.Dx()/cols
			r, g, bl, _ := img.At(px, py).RGBA()
			rf, gf, bf := float64(r)/0xffff, float64(g)/0xffff, float64(bl)/0xffff
			lum[y][x] = 0.299*rf + 0.587*gf + 0.114*bf
			c := math.Max(rf, math.Max(gf, bf)) - math.Min(rf, math.Min(gf, bf))
			chromaSum += c
			chromaSq += c * c
		}
	}

	var left, right, edge float64
	var nl, nr, ne int
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			switch {
			case x < cols/2:
				left += lum[y][x]
				nl++
			case x >= (cols+1)/2:
				right += lum[y][x]
				nr++
			}
			if x+1 < cols {
				edge += math.Abs(lum[y][x+1] - lum[y][x])
				ne++
			}
		}
	}

	var st stats
	if nl > 0 && nr > 0 {
		st.asymmetry = math.Abs(left/float64(nl) - right/float64(nr))
	}
	if ne > 0 {
		st.edge = edge / float64(ne)
	}
	n := float64(rows * cols)
	mean := chromaSum / n
	st.chroma = math.Sqrt(math.Max(0, chromaSq/n-mean*mean))
	return st
}
