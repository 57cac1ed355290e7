// Package api exposes the screen flow over HTTP for UI shells and tooling.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/okian/skincheck/internal/adapters/imagesource"
	"github.com/okian/skincheck/internal/app"
	"github.com/okian/skincheck/internal/domain/dedupe"
	"github.com/okian/skincheck/internal/domain/flow"
	"github.com/okian/skincheck/internal/domain/types"
	"github.com/okian/skincheck/pkg/logger"
)

// Dependencies required by HTTP handlers. The runner in package app is the
// production implementation.
type Dependencies interface {
	Snapshot() flow.Snapshot
	Dispatch(ctx context.Context, event flow.Event) error
	PhotoCaptured(ctx context.Context, img image.Image) error
	PhotoPicked(ctx context.Context, img image.Image) error
	CancelImageAcquisition(ctx context.Context) error
}

// Messages renders failure kinds for the reader's Accept-Language.
type Messages interface {
	Renderer(accept ...string) func(flow.FailureKind) string
}

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithMaxUploadBytes limits uploaded images.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// WithMaxImagePixels limits the dimensions of uploaded images.
func WithMaxImagePixels(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxPixels = n
		}
	}
}

// WithIdempotencyCache enables Idempotency-Key replay on mutating routes.
func WithIdempotencyCache(c dedupe.Cache) Option {
	return func(s *Server) { s.cache = c }
}

// WithMessages sets the failure message catalog.
func WithMessages(m Messages) Option {
	return func(s *Server) { s.messages = m }
}

// WithJPEGQuality sets the quality of served outcome images.
func WithJPEGQuality(q int) Option {
	return func(s *Server) {
		if q >= 1 && q <= 100 {
			s.jpegQuality = q
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock overrides the time source used for captions.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// Server wires HTTP routes for the control API.
type Server struct {
	deps        Dependencies
	cache       dedupe.Cache
	messages    Messages
	maxUpload   int64
	maxPixels   int64
	jpegQuality int
	log         logger.Logger
	now         func() time.Time

	healthHandler  *HealthHandler
	stateHandler   *StateHandler
	intentHandler  *IntentHandler
	captureHandler *CaptureHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		deps:        deps,
		maxUpload:   imagesource.DefaultMaxBytes,
		maxPixels:   imagesource.DefaultMaxPixels,
		jpegQuality: 80,
		log:         logger.Nop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.healthHandler = NewHealthHandler(deps)
	s.stateHandler = NewStateHandler(s)
	s.intentHandler = NewIntentHandler(s)
	s.captureHandler = NewCaptureHandler(s)
	return s
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(_ context.Context, r *mux.Router) {
	if r == nil {
		panic("router is nil")
	}
	r.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz")).Methods(http.MethodGet)
	r.Handle("/metrics", s.healthHandler.MetricsHandler()).Methods(http.MethodGet)
	r.HandleFunc("/state", MetricsMiddleware(s.stateHandler.HandleState, "state")).Methods(http.MethodGet)
	r.HandleFunc("/outcome/image", MetricsMiddleware(s.stateHandler.HandleOutcomeImage, "outcome_image")).Methods(http.MethodGet)
	r.HandleFunc("/intents/{event}",
		MetricsMiddleware(IdempotencyMiddleware(s.intentHandler.HandleIntent, s.cache), "intents"),
	).Methods(http.MethodPost)
	r.HandleFunc("/capture/{source:camera|library}",
		MetricsMiddleware(IdempotencyMiddleware(s.captureHandler.HandleCapture, s.cache), "capture"),
	).Methods(http.MethodPost)
}

// Handler returns a router with every route registered.
func (s *Server) Handler(ctx context.Context) http.Handler {
	r := mux.NewRouter()
	s.Register(ctx, r)
	return r
}

// view projects the current state for the reader of r.
func (s *Server) view(r *http.Request) types.StateView {
	var render func(flow.FailureKind) string
	if s.messages != nil {
		render = s.messages.Renderer(r.Header.Get("Accept-Language"))
	}
	return types.NewStateView(s.deps.Snapshot(), s.now(), render)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, types.ErrorResponse{Error: code, Message: msg})
}

// writeFlowError maps a flow or runner error to its status and writes it
// along with the screen the flow is on.
func (s *Server) writeFlowError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		s.log.Error(r.Context(), "request failed", logger.String("op", op), logger.Error(err))
	}
	writeJSON(w, status, types.ErrorResponse{
		Error:   code,
		Message: err.Error(),
		Screen:  s.deps.Snapshot().Screen.String(),
	})
}

func classify(err error) (int, string) {
	switch {
	case flow.IsInvalidTransition(err):
		return http.StatusConflict, "invalid_transition"
	case flow.IsMissingCaptureData(err):
		return http.StatusUnprocessableEntity, "missing_capture_data"
	case errors.Is(err, app.ErrUnknownIntent), errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, app.ErrMailboxFull):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, app.ErrStopped):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, imagesource.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "image_too_large"
	case errors.Is(err, imagesource.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType, "unsupported_image"
	case errors.Is(err, imagesource.ErrEmpty), errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "timeout"
	case errors.Is(err, flow.ErrPersistFlag):
		return http.StatusInternalServerError, "persist_failed"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
