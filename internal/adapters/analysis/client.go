// Package analysis provides the analysis backends: an HTTP client for the
// remote service and an in-process simulation.
package analysis

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/okian/skincheck/internal/domain/flow"
	"github.com/okian/skincheck/internal/domain/model"
	"github.com/okian/skincheck/pkg/logger"
	"github.com/okian/skincheck/pkg/metrics"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultJPEGQuality = 80

	formField     = "image"
	formFilename  = "analysis.jpg"
	maxReplyBytes = 16 << 20
	maxErrorBody  = 512
)

// ClientOption applies a configuration option to the Client.
type ClientOption func(*Client)

// WithTimeout bounds a whole request, including reading the reply.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithJPEGQuality sets the upload encoding quality in [1,100].
func WithJPEGQuality(q int) ClientOption {
	return func(c *Client) {
		if q >= 1 && q <= 100 {
			c.quality = q
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client. Its timeout is kept.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithClientLogger sets a custom logger.
func WithClientLogger(l logger.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// Client posts images to the remote analysis service.
type Client struct {
	url     string
	quality int
	http    *http.Client
	log     logger.Logger
}

// NewClient creates a client for the service at url.
func NewClient(url string, opts ...ClientOption) *Client {
	c := &Client{
		url:     url,
		quality: defaultJPEGQuality,
		http:    &http.Client{Timeout: defaultTimeout},
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Analyze uploads img as a multipart JPEG and decodes the reply.
func (c *Client) Analyze(ctx context.Context, img image.Image) (flow.Outcome, error) {
	requestID := uuid.NewString()

	body, contentType, err := c.encode(img)
	if err != nil {
		return flow.Outcome{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return flow.Outcome{}, fmt.Errorf("%w: build request: %w", flow.ErrNetworkFailure, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordBackendRequest("transport_error", float64(time.Since(start).Milliseconds()))
		return flow.Outcome{}, fmt.Errorf("%w: %w", flow.ErrNetworkFailure, err)
	}
	defer func() { _ = resp.Body.Close() }()
	metrics.RecordBackendRequest(strconv.Itoa(resp.StatusCode), float64(time.Since(start).Milliseconds()))

	c.log.Debug(ctx, "analysis service replied",
		logger.String("request_id", requestID),
		logger.Int("status", resp.StatusCode),
		logger.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return flow.Outcome{}, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	wire, err := model.DecodeAnalysisResponse(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return flow.Outcome{}, fmt.Errorf("%w: %w", flow.ErrDecodingFailure, err)
	}
	out, err := wire.Outcome()
	if err != nil {
		return flow.Outcome{}, fmt.Errorf("%w: %w", flow.ErrDecodingFailure, err)
	}
	return out, nil
}

// encode renders img as the multipart form the service expects.
func (c *Client) encode(img image.Image) (io.Reader, string, error) {
	if img == nil {
		return nil, "", fmt.Errorf("%w: no image", flow.ErrImageEncodingFailed)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.SetBoundary("skincheck-" + uuid.NewString()); err != nil {
		return nil, "", fmt.Errorf("%w: %w", flow.ErrImageEncodingFailed, err)
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, formField, formFilename))
	h.Set("Content-Type", "image/jpeg")
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", flow.ErrImageEncodingFailed, err)
	}
	if err := jpeg.Encode(part, img, &jpeg.Options{Quality: c.quality}); err != nil {
		return nil, "", fmt.Errorf("%w: %w", flow.ErrImageEncodingFailed, err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("%w: %w", flow.ErrImageEncodingFailed, err)
	}
	return &buf, w.FormDataContentType(), nil
}
