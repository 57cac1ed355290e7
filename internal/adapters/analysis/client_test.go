package analysis_test

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/okian/skincheck/internal/adapters/analysis"
	"github.com/okian/skincheck/internal/domain/flow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const okBody = `{"id":"srv-1","risk_level":"Low Risk","asymmetry":"Symmetrical","border":"Regular","color":"Uniform","notes":"Looks benign."}`

func solid(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestClientAnalyze(t *testing.T) {
	t.Run("uploads a jpeg part and decodes the reply", func(t *testing.T) {
		var (
			gotFilename, gotType, gotRequestID string
			gotBounds                          image.Rectangle
		)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			gotRequestID = r.Header.Get("X-Request-ID")

			file, hdr, err := r.FormFile("image")
			if !assert.NoError(t, err) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			defer file.Close()
			gotFilename = hdr.Filename
			gotType = hdr.Header.Get("Content-Type")
			img, err := jpeg.Decode(file)
			if assert.NoError(t, err) {
				gotBounds = img.Bounds()
			}

			w.Header().Set("Content-Type", "application/json")
			_, _ = fmt.Fprint(w, okBody)
		}))
		defer srv.Close()

		c := analysis.NewClient(srv.URL, analysis.WithJPEGQuality(60))
		out, err := c.Analyze(context.Background(), solid(8, 6, color.White))

		require.NoError(t, err)
		assert.Equal(t, "srv-1", out.ID)
		assert.Equal(t, "Low Risk", out.RiskLevel)
		assert.Equal(t, "Looks benign.", out.Notes)
		assert.Equal(t, "analysis.jpg", gotFilename)
		assert.Equal(t, "image/jpeg", gotType)
		assert.NotEmpty(t, gotRequestID)
		assert.Equal(t, image.Rect(0, 0, 8, 6), gotBounds)
	})

	t.Run("maps non-200 to server error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		_, err := analysis.NewClient(srv.URL).Analyze(context.Background(), solid(2, 2, color.Black))

		require.Error(t, err)
		assert.ErrorIs(t, err, flow.ErrServerError)
		var se *analysis.StatusError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, http.StatusServiceUnavailable, se.Code)
		assert.Equal(t, "overloaded", se.Body)
	})

	t.Run("treats other 2xx codes as server errors", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusAccepted)
			_, _ = fmt.Fprint(w, okBody)
		}))
		defer srv.Close()

		_, err := analysis.NewClient(srv.URL).Analyze(context.Background(), solid(2, 2, color.Black))
		assert.ErrorIs(t, err, flow.ErrServerError)
	})

	t.Run("maps malformed bodies to decoding failure", func(t *testing.T) {
		bodies := map[string]string{
			"not json":      "<html>oops</html>",
			"unknown field": `{"risk_level":"Low Risk","asymmetry":"a","border":"b","color":"c","notes":"n","score":3}`,
			"missing field": `{"risk_level":"Low Risk"}`,
			"bad image":     `{"risk_level":"Low Risk","asymmetry":"a","border":"b","color":"c","notes":"n","image":"bm90IGFuIGltYWdl"}`,
		}
		for name, body := range bodies {
			t.Run(name, func(t *testing.T) {
				srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
					_, _ = fmt.Fprint(w, body)
				}))
				defer srv.Close()

				_, err := analysis.NewClient(srv.URL).Analyze(context.Background(), solid(2, 2, color.Black))
				assert.ErrorIs(t, err, flow.ErrDecodingFailure)
			})
		}
	})

	t.Run("maps transport errors to network failure", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		url := srv.URL
		srv.Close()

		_, err := analysis.NewClient(url).Analyze(context.Background(), solid(2, 2, color.Black))
		assert.ErrorIs(t, err, flow.ErrNetworkFailure)
	})

	t.Run("enforces its own timeout", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)

		c := analysis.NewClient(srv.URL, analysis.WithTimeout(50*time.Millisecond))
		_, err := c.Analyze(context.Background(), solid(2, 2, color.Black))
		assert.ErrorIs(t, err, flow.ErrNetworkFailure)
	})

	t.Run("rejects images it cannot encode", func(t *testing.T) {
		c := analysis.NewClient("http://127.0.0.1:1")

		_, err := c.Analyze(context.Background(), nil)
		assert.ErrorIs(t, err, flow.ErrImageEncodingFailed)

		huge := image.NewGray(image.Rect(0, 0, 70000, 1))
		_, err = c.Analyze(context.Background(), huge)
		assert.ErrorIs(t, err, flow.ErrImageEncodingFailed)
	})
}
