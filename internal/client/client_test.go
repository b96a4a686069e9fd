package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/raphaelgruber/docchat/internal/client"
	"github.com/raphaelgruber/docchat/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, handler http.Handler, tokens client.TokenSource, onExpired client.ExpiryHandler) (*client.Client, *metrics.Collector) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	collector := metrics.NewCollector()
	c := client.New(client.Options{
		BaseURLs: map[client.Backend]string{
			client.BackendChat:       srv.URL + "/",
			client.BackendManagement: srv.URL,
		},
		Tokens:    tokens,
		OnExpired: onExpired,
		Metrics:   collector,
		Logger:    testLogger(),
	})
	return c, collector
}

func TestCallAttachesTokenAndParsesJSON(t *testing.T) {
	var gotAuth, gotQuery, gotRequestID string
	var gotBody map[string]any

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.RawQuery
		gotRequestID = r.Header.Get("X-Request-ID")
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&gotBody)
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write([]byte(`{"conversation":{"id":"c1","title":"T"}}`))
	})

	c, collector := newTestClient(t, handler, client.StaticToken("tok"), nil)

	var missing *string
	resp, err := c.Call(context.Background(), client.Request{
		Backend: client.BackendChat,
		Method:  http.MethodPost,
		Path:    "api/v1/conversation",
		Body:    map[string]string{"title": "T"},
		Params:  client.Params{"limit": 20, "title": missing, "skip": nil},
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "limit=20", gotQuery)
	assert.NotEmpty(t, gotRequestID)
	assert.Equal(t, "T", gotBody["title"])

	assert.True(t, resp.OK)
	assert.Equal(t, http.StatusOK, resp.Status)

	var out struct {
		Conversation struct {
			ID string `json:"id"`
		} `json:"conversation"`
	}
	require.NoError(t, resp.Decode(&out))
	assert.Equal(t, "c1", out.Conversation.ID)

	assert.Equal(t, int64(1), collector.Snapshot().Op(metrics.OpChatAPI).Count)
}

func TestCallParsesTextResponse(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok"))
	})
	c, _ := newTestClient(t, handler, client.StaticToken("tok"), nil)

	resp, err := c.Call(context.Background(), client.Request{Backend: client.BackendChat, Method: http.MethodGet, Path: "/health"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Nil(t, resp.Data)
	assert.Error(t, resp.Decode(&struct{}{}))
}

func TestCallGetOmitsBody(t *testing.T) {
	var gotLen int64 = -2
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLen = r.ContentLength
		w.WriteHeader(http.StatusNoContent)
	})
	c, _ := newTestClient(t, handler, client.StaticToken("tok"), nil)

	_, err := c.Call(context.Background(), client.Request{
		Backend: client.BackendChat,
		Method:  http.MethodGet,
		Path:    "x",
		Body:    map[string]string{"ignored": "yes"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), gotLen)
}

func TestCallWithoutTokenFailsBeforeNetwork(t *testing.T) {
	var hits atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	})
	c, _ := newTestClient(t, handler, nil, nil)

	_, err := c.Call(context.Background(), client.Request{Backend: client.BackendChat, Method: http.MethodGet, Path: "x"})
	require.ErrorIs(t, err, client.ErrAuthenticationRequired)
	assert.Equal(t, int32(0), hits.Load(), "no request may be sent without a token")

	_, err = c.Call(context.Background(), client.Request{Backend: client.BackendChat, Method: http.MethodGet, Path: "x", Public: true})
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestCallContextTokenOverridesSource(t *testing.T) {
	var gotAuth string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	})
	c, _ := newTestClient(t, handler, client.StaticToken("jar"), nil)

	ctx := client.WithToken(context.Background(), "cookie")
	_, err := c.Call(ctx, client.Request{Backend: client.BackendChat, Method: http.MethodGet, Path: "x"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer cookie", gotAuth)
}

func TestCallExpiredInvokesHandler(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
			})
			var expired atomic.Int32
			c, _ := newTestClient(t, handler, client.StaticToken("tok"), func(context.Context) {
				expired.Add(1)
			})

			_, err := c.Call(context.Background(), client.Request{Backend: client.BackendChat, Method: http.MethodGet, Path: "x"})
			require.ErrorIs(t, err, client.ErrAuthenticationExpired)
			assert.False(t, client.IsTransient(err))
			assert.Equal(t, int32(1), expired.Load())
		})
	}
}

func TestCallAPIError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail":[{"loc":["body","title"],"msg":"field required","type":"missing"}]}`))
	})
	c, _ := newTestClient(t, handler, client.StaticToken("tok"), nil)

	_, err := c.Call(context.Background(), client.Request{Backend: client.BackendManagement, Method: http.MethodPut, Path: "api/v1/items/1"})

	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	assert.Equal(t, http.StatusUnprocessableEntity, client.StatusOf(err))
	assert.False(t, client.IsTransient(err))

	detail, ok := apiErr.ValidationDetail()
	require.True(t, ok)
	assert.Equal(t, "body.title: field required", detail.Summary())
}

func TestCallNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := client.New(client.Options{
		BaseURLs: map[client.Backend]string{client.BackendIngestion: url},
		Tokens:   client.StaticToken("tok"),
		Timeout:  time.Second,
		Logger:   testLogger(),
	})

	_, err := c.Call(context.Background(), client.Request{Backend: client.BackendIngestion, Method: http.MethodPost, Path: "api/v1/upload"})

	var netErr *client.NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.True(t, client.IsTransient(err))
}

func TestCallUnknownBackend(t *testing.T) {
	c := client.New(client.Options{Tokens: client.StaticToken("tok"), Logger: testLogger()})
	_, err := c.Call(context.Background(), client.Request{Backend: client.BackendChat, Method: http.MethodGet, Path: "x"})
	assert.Error(t, err)
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"server error", &client.APIError{Status: 503}, true},
		{"rate limited", &client.APIError{Status: 429}, true},
		{"request timeout", &client.APIError{Status: 408}, true},
		{"not found", &client.APIError{Status: 404}, false},
		{"network", &client.NetworkError{Op: "GET /", Err: errors.New("refused")}, true},
		{"cancelled", &client.NetworkError{Op: "GET /", Err: context.Canceled}, false},
		{"required", client.ErrAuthenticationRequired, false},
		{"plain", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, client.IsTransient(tt.err))
		})
	}
}
