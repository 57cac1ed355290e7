package smoke

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/okian/skincheck/internal/adapters/http/api"
	"github.com/okian/skincheck/internal/domain/flow"
	"github.com/okian/skincheck/internal/domain/types"
)

// reply is a read and closed response.
type reply struct {
	status   int
	header   http.Header
	body     []byte
	elapsed  time.Duration
	replayed bool
}

// client wraps http.Client with the base URL of the service.
type client struct {
	http *http.Client
	base string
}

func newClient(base string, timeout time.Duration) *client {
	return &client{
		http: &http.Client{Timeout: timeout},
		base: strings.TrimRight(base, "/"),
	}
}

func (c *client) do(ctx context.Context, method, path string, body []byte, contentType, key string) (reply, error) {
	var r io.Reader = http.NoBody
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, r)
	if err != nil {
		return reply{}, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if key != "" {
		req.Header.Set(api.IdempotencyHeader, key)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return reply{}, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return reply{}, fmt.Errorf("%s %s: read body: %w", method, path, err)
	}
	return reply{
		status:   resp.StatusCode,
		header:   resp.Header,
		body:     b,
		elapsed:  time.Since(start),
		replayed: resp.Header.Get(api.ReplayHeader) == "true",
	}, nil
}

func (c *client) state(ctx context.Context) (types.StateView, reply, error) {
	rep, err := c.do(ctx, http.MethodGet, "/state", nil, "", "")
	if err != nil {
		return types.StateView{}, rep, err
	}
	var v types.StateView
	if err := json.Unmarshal(rep.body, &v); err != nil {
		return types.StateView{}, rep, fmt.Errorf("decode state: %w", err)
	}
	return v, rep, nil
}

// intent posts event under key and decodes the state it answers with.
func (c *client) intent(ctx context.Context, event flow.Event, key string) (types.StateView, reply, error) {
	rep, err := c.do(ctx, http.MethodPost, "/intents/"+string(event), nil, "", key)
	if err != nil {
		return types.StateView{}, rep, err
	}
	var v types.StateView
	if rep.status < http.StatusMultipleChoices {
		if err := json.Unmarshal(rep.body, &v); err != nil {
			return types.StateView{}, rep, fmt.Errorf("decode state: %w", err)
		}
	}
	return v, rep, nil
}

func (c *client) upload(ctx context.Context, name string, data []byte) (reply, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", name)
	if err != nil {
		return reply{}, err
	}
	if _, err := part.Write(data); err != nil {
		return reply{}, err
	}
	if err := mw.Close(); err != nil {
		return reply{}, err
	}
	return c.do(ctx, http.MethodPost, "/capture/library", buf.Bytes(), mw.FormDataContentType(), uuid.NewString())
}
