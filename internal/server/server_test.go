package server_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/raphaelgruber/docchat/internal/app"
	"github.com/raphaelgruber/docchat/internal/auth"
	"github.com/raphaelgruber/docchat/internal/client"
	"github.com/raphaelgruber/docchat/internal/fakeapi"
	"github.com/raphaelgruber/docchat/internal/models"
	"github.com/raphaelgruber/docchat/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var protected = []string{"/dashboard", "/profile", "/settings"}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeProvider struct {
	idToken string
}

func (p fakeProvider) SignIn(_ context.Context, username, password string) (auth.Credentials, error) {
	if err := auth.ValidateSignIn(username, password); err != nil {
		return auth.Credentials{}, err
	}
	if password != "secret" {
		return auth.Credentials{}, auth.ErrInvalidCredentials
	}
	return auth.Credentials{IDToken: p.idToken, AccessToken: "tok", RefreshToken: "refresh"}, nil
}

func (p fakeProvider) Refresh(context.Context, string) (auth.Credentials, error) {
	return auth.Credentials{}, auth.ErrInvalidCredentials
}

func idToken(t *testing.T) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"cognito:username": "ada",
		"email":            "ada@example.com",
		"exp":              time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("k"))
	require.NoError(t, err)
	return tok
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeapi.Backend) {
	t.Helper()
	backend := fakeapi.New("tok")
	api := httptest.NewServer(backend.Handler())
	t.Cleanup(api.Close)

	c := client.New(client.Options{
		BaseURLs: map[client.Backend]string{
			client.BackendChat:       api.URL,
			client.BackendManagement: api.URL,
			client.BackendIngestion:  api.URL,
		},
		Logger: testLogger(),
	})

	srv := server.New(server.Options{
		Services:          app.NewServices(c),
		Provider:          fakeProvider{idToken: idToken(t)},
		ProtectedPrefixes: protected,
		Logger:            testLogger(),
	})
	web := httptest.NewServer(srv.Handler())
	t.Cleanup(web.Close)
	return web, backend
}

func noRedirectClient() *http.Client {
	return &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
}

func withCookies(t *testing.T, method, target string, cookies ...*http.Cookie) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, target, nil)
	require.NoError(t, err)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return req
}

func TestGate(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := server.Gate(protected)(next)

	tests := []struct {
		name         string
		path         string
		cookie       bool
		wantStatus   int
		wantLocation string
	}{
		{name: "public", path: "/", wantStatus: http.StatusOK},
		{name: "sign-in page", path: "/auth/signin", wantStatus: http.StatusOK},
		{name: "protected root", path: "/dashboard", wantStatus: http.StatusTemporaryRedirect, wantLocation: "/auth/signin?callbackUrl=%2Fdashboard"},
		{name: "protected nested", path: "/settings/account", wantStatus: http.StatusTemporaryRedirect, wantLocation: "/auth/signin?callbackUrl=%2Fsettings%2Faccount"},
		{name: "prefix is segment aware", path: "/dashboards", wantStatus: http.StatusOK},
		{name: "with cookie", path: "/profile", cookie: true, wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.cookie {
				req.AddCookie(&http.Cookie{Name: auth.CookieIDToken, Value: "x"})
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantLocation, rec.Header().Get("Location"))
		})
	}
}

func TestSignInSetsCookiesAndRedirects(t *testing.T) {
	web, _ := newTestServer(t)

	form := url.Values{"username": {"ada"}, "password": {"secret"}, "callbackUrl": {"/dashboard/items"}}
	resp, err := noRedirectClient().PostForm(web.URL+"/auth/session", form)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/dashboard/items", resp.Header.Get("Location"))

	names := map[string]*http.Cookie{}
	for _, c := range resp.Cookies() {
		names[c.Name] = c
	}
	require.Contains(t, names, auth.CookieIDToken)
	require.Contains(t, names, auth.CookieAccessToken)
	require.Contains(t, names, auth.CookieRefreshToken)
	assert.Equal(t, http.SameSiteStrictMode, names[auth.CookieIDToken].SameSite)
}

func TestSignInRejectsOpenRedirect(t *testing.T) {
	web, _ := newTestServer(t)

	form := url.Values{"username": {"ada"}, "password": {"secret"}, "callbackUrl": {"//evil.example.com"}}
	resp, err := noRedirectClient().PostForm(web.URL+"/auth/session", form)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "/dashboard", resp.Header.Get("Location"))
}

func TestSignInFailures(t *testing.T) {
	web, _ := newTestServer(t)

	tests := []struct {
		name       string
		password   string
		wantStatus int
	}{
		{name: "wrong password", password: "nope", wantStatus: http.StatusUnauthorized},
		{name: "empty password", password: "", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := strings.NewReader(`{"username":"ada","password":"` + tt.password + `"}`)
			resp, err := http.Post(web.URL+"/auth/session", "application/json", body)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Empty(t, resp.Cookies())
		})
	}
}

func TestProtectedRoutesUseCookieToken(t *testing.T) {
	web, backend := newTestServer(t)
	backend.SeedConversation(models.Conversation{ID: "c1", Title: "Reports"})
	backend.SeedItem(models.Item{ID: "i1", FileName: "q1.pdf", ConversationID: "c1", Active: true})

	cookies := []*http.Cookie{
		{Name: auth.CookieIDToken, Value: idToken(t)},
		{Name: auth.CookieAccessToken, Value: "tok"},
	}

	resp, err := http.DefaultClient.Do(withCookies(t, http.MethodGet, web.URL+"/dashboard/conversations", cookies...))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var convs models.ConversationsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&convs))
	require.Len(t, convs.Conversations, 1)
	assert.Equal(t, "Reports", convs.Conversations[0].Title)

	resp, err = http.DefaultClient.Do(withCookies(t, http.MethodGet, web.URL+"/dashboard/items?conversation_id=c1&active_only=true", cookies...))
	require.NoError(t, err)
	defer resp.Body.Close()

	var items models.ItemsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&items))
	require.Len(t, items.Items, 1)

	resp, err = http.DefaultClient.Do(withCookies(t, http.MethodGet, web.URL+"/dashboard", cookies...))
	require.NoError(t, err)
	defer resp.Body.Close()

	var session models.Session
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&session))
	assert.True(t, session.IsAuthenticated)
	assert.Equal(t, "ada", session.User.Username)
}

func TestExpiredTokenClearsCookiesAndRedirects(t *testing.T) {
	web, backend := newTestServer(t)
	backend.SetRejectAuth(true)

	req := withCookies(t, http.MethodGet, web.URL+"/dashboard/chat/c1",
		&http.Cookie{Name: auth.CookieIDToken, Value: idToken(t)},
		&http.Cookie{Name: auth.CookieAccessToken, Value: "tok"},
	)
	resp, err := noRedirectClient().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
	assert.Equal(t, "/auth/signin?callbackUrl=%2Fdashboard%2Fchat%2Fc1", resp.Header.Get("Location"))
	for _, c := range resp.Cookies() {
		assert.Equal(t, -1, c.MaxAge, c.Name)
	}
	assert.Len(t, resp.Cookies(), 3)
}

func TestBackendErrorsPassThrough(t *testing.T) {
	web, backend := newTestServer(t)
	backend.FailNext(1)

	resp, err := http.DefaultClient.Do(withCookies(t, http.MethodGet, web.URL+"/dashboard/conversations",
		&http.Cookie{Name: auth.CookieIDToken, Value: idToken(t)},
		&http.Cookie{Name: auth.CookieAccessToken, Value: "tok"},
	))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	web, _ := newTestServer(t)

	resp, err := http.Get(web.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok\n", string(body))
}
