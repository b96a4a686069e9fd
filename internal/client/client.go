// Package client provides the authenticated HTTP client shared by all docchat backends.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/docchat/internal/metrics"
)

// Backend names one of the independently configured backend services.
type Backend string

const (
	BackendChat       Backend = "chat"
	BackendManagement Backend = "management"
	BackendIngestion  Backend = "ingestion"
)

// slowRequestThreshold is the duration above which calls are logged at WARN level.
const slowRequestThreshold = time.Second

var backendOps = map[Backend]string{
	BackendChat:       metrics.OpChatAPI,
	BackendManagement: metrics.OpManagementAPI,
	BackendIngestion:  metrics.OpIngestionAPI,
}

// ExpiryHandler is invoked when a backend rejects the session's credentials.
type ExpiryHandler func(ctx context.Context)

// Options configures a Client.
type Options struct {
	BaseURLs   map[Backend]string
	Timeout    time.Duration
	Tokens     TokenSource
	OnExpired  ExpiryHandler
	Metrics    *metrics.Collector
	Logger     *slog.Logger
	HTTPClient *http.Client
}

// Client issues calls against the docchat backends.
type Client struct {
	baseURLs   map[Backend]string
	httpClient *http.Client
	tokens     TokenSource
	onExpired  ExpiryHandler
	metrics    *metrics.Collector
	logger     *slog.Logger
}

// New creates a client. A zero Timeout falls back to 30s.
func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	baseURLs := make(map[Backend]string, len(opts.BaseURLs))
	for b, u := range opts.BaseURLs {
		baseURLs[b] = strings.TrimRight(u, "/")
	}

	return &Client{
		baseURLs:   baseURLs,
		httpClient: httpClient,
		tokens:     opts.Tokens,
		onExpired:  opts.OnExpired,
		metrics:    opts.Metrics,
		logger:     logger,
	}
}

// Params are query parameters. Nil values and nil pointers are skipped.
type Params map[string]any

// Request describes one backend call.
type Request struct {
	Backend Backend
	Method  string
	Path    string
	Body    any
	Params  Params
	Headers map[string]string

	// Public marks calls that do not require a bearer token.
	Public bool
}

// Response is the normalized result of a successful call.
type Response struct {
	Status      int
	OK          bool
	ContentType string

	// Data holds the raw body when the response is JSON; Text holds it otherwise.
	Data json.RawMessage
	Text string
}

// Decode unmarshals a JSON response into v.
func (r *Response) Decode(v any) error {
	if r.Data == nil {
		return fmt.Errorf("decode response: content type %q is not JSON", r.ContentType)
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Decode is the generic form of Response.Decode.
func Decode[T any](r *Response) (T, error) {
	var v T
	err := r.Decode(&v)
	return v, err
}

// Call issues req and returns the parsed response.
//
// Errors: ErrAuthenticationRequired when a token is needed but absent (no
// request is sent), ErrAuthenticationExpired on 401/403 (after running the
// expiry handler), *APIError for other non-2xx statuses and *NetworkError for
// transport failures. Call never retries.
func (c *Client) Call(ctx context.Context, req Request) (*Response, error) {
	base, ok := c.baseURLs[req.Backend]
	if !ok || base == "" {
		return nil, fmt.Errorf("backend %q is not configured", req.Backend)
	}

	u, err := buildURL(base, req.Path, req.Params)
	if err != nil {
		return nil, err
	}

	var token string
	if !req.Public {
		token, ok = c.accessToken(ctx)
		if !ok {
			return nil, ErrAuthenticationRequired
		}
	}

	var body io.Reader
	if req.Method != http.MethodGet && req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", uuid.NewString())
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.do(httpReq)
	duration := time.Since(start)
	c.metrics.Record(backendOps[req.Backend], duration, err)
	c.log(req, resp, duration, err)

	if err != nil {
		return nil, err
	}

	if resp.Status == http.StatusUnauthorized || resp.Status == http.StatusForbidden {
		if c.onExpired != nil {
			c.onExpired(ctx)
		}
		return nil, fmt.Errorf("%w (HTTP %d)", ErrAuthenticationExpired, resp.Status)
	}

	if !resp.OK {
		return nil, newAPIError(resp)
	}

	return resp, nil
}

func (c *Client) do(httpReq *http.Request) (*Response, error) {
	op := httpReq.Method + " " + httpReq.URL.Path

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}

	out := &Response{
		Status:      resp.StatusCode,
		OK:          resp.StatusCode >= 200 && resp.StatusCode < 300,
		ContentType: resp.Header.Get("Content-Type"),
	}
	if isJSON(out.ContentType) && len(bytes.TrimSpace(raw)) > 0 {
		out.Data = json.RawMessage(raw)
	} else {
		out.Text = string(raw)
	}
	return out, nil
}

func (c *Client) accessToken(ctx context.Context) (string, bool) {
	if token, ok := tokenFromContext(ctx); ok {
		return token, true
	}
	if c.tokens == nil {
		return "", false
	}
	token, ok := c.tokens.AccessToken()
	return token, ok && token != ""
}

func (c *Client) log(req Request, resp *Response, duration time.Duration, err error) {
	attrs := []any{
		"backend", string(req.Backend),
		"method", req.Method,
		"path", req.Path,
		"duration_ms", duration.Milliseconds(),
	}

	switch {
	case err != nil:
		attrs = append(attrs, "error", err.Error())
		c.logger.Warn("backend call failed", attrs...)
	case duration > slowRequestThreshold:
		attrs = append(attrs, "status", resp.Status)
		c.logger.Warn("slow backend call", attrs...)
	default:
		attrs = append(attrs, "status", resp.Status)
		c.logger.Debug("backend call completed", attrs...)
	}
}

func buildURL(base, path string, params Params) (string, error) {
	u, err := url.Parse(base + "/" + strings.TrimLeft(path, "/"))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	if len(params) > 0 {
		q := u.Query()
		for k, v := range params {
			if s, ok := paramValue(v); ok {
				q.Set(k, s)
			}
		}
		u.RawQuery = q.Encode()
	}

	return u.String(), nil
}

func paramValue(v any) (string, bool) {
	if v == nil {
		return "", false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return "", false
		}
		rv = rv.Elem()
	}
	return fmt.Sprint(rv.Interface()), true
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(contentType, "application/json")
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}
