package entitlement

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	_ "github.com/BrandonKowalski/certifiable" // Add CA certificates to the default trust store

	"github.com/okian/skincheck/pkg/logger"
)

// Paywall results reported by the remote gate.
const (
	ResultPurchased = "purchased"
	ResultDismissed = "dismissed"
)

const defaultCheckTimeout = 10 * time.Second

// HTTPOption applies a configuration option to the HTTP gate.
type HTTPOption func(*HTTP)

// WithCheckTimeout bounds the entitlement check. Paywall presentation is
// not bounded: it lasts as long as the user keeps the paywall open.
func WithCheckTimeout(d time.Duration) HTTPOption {
	return func(g *HTTP) {
		if d > 0 {
			g.checkTimeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(g *HTTP) {
		if hc != nil {
			g.client = hc
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) HTTPOption {
	return func(g *HTTP) {
		if l != nil {
			g.log = l
		}
	}
}

// HTTP talks to a remote paywall service:
//
//	GET  {base}/v1/entitlement            -> {"active": bool}
//	POST {base}/v1/paywalls/{placement}   -> {"result": "purchased"|"dismissed"}
//
// The paywall call is a long poll that returns once the user resolves it.
type HTTP struct {
	base         string
	client       *http.Client
	checkTimeout time.Duration
	log          logger.Logger
}

// NewHTTP creates a gate for the service at baseURL.
func NewHTTP(baseURL string, opts ...HTTPOption) *HTTP {
	g := &HTTP{
		base:         strings.TrimSuffix(baseURL, "/"),
		client:       &http.Client{},
		checkTimeout: defaultCheckTimeout,
		log:          logger.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type entitlementReply struct {
	Active bool `json:"active"`
}

type paywallReply struct {
	Result string `json:"result"`
}

func (g *HTTP) IsEntitled(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, g.checkTimeout)
	defer cancel()

	var reply entitlementReply
	if err := g.do(ctx, http.MethodGet, "/v1/entitlement", &reply); err != nil {
		return false, &ServiceError{Op: "check", Err: err}
	}
	return reply.Active, nil
}

func (g *HTTP) PresentGate(ctx context.Context, placementID string) error {
	var reply paywallReply
	path := "/v1/paywalls/" + url.PathEscape(placementID)
	if err := g.do(ctx, http.MethodPost, path, &reply); err != nil {
		return &ServiceError{Op: "present", Err: err}
	}

	switch reply.Result {
	case ResultPurchased, ResultDismissed:
		g.log.Info(ctx, "paywall resolved",
			logger.String("placement", placementID),
			logger.String("result", reply.Result),
		)
		return nil
	default:
		return &ServiceError{Op: "present", Err: fmt.Errorf("%w: %q", ErrUnknownResult, reply.Result)}
	}
}

func (g *HTTP) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, g.base+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrBadResponse, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %w", ErrBadResponse, err)
	}
	return nil
}
