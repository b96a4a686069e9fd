package server

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/raphaelgruber/docchat/internal/auth"
	"github.com/raphaelgruber/docchat/internal/client"
	"github.com/raphaelgruber/docchat/internal/models"
	"github.com/raphaelgruber/docchat/internal/service"
)

const defaultCallback = "/dashboard"

var signInTemplate = template.Must(template.New("signin").Parse(`<!doctype html>
<html>
<head><title>Sign in · docchat</title></head>
<body>
<h1>Sign in</h1>
{{if .Error}}<p role="alert">{{.Error}}</p>{{end}}
<form method="post" action="/auth/session">
<input type="hidden" name="callbackUrl" value="{{.Callback}}">
<label>Username <input name="username" autocomplete="username" required></label>
<label>Password <input name="password" type="password" autocomplete="current-password" required></label>
<button type="submit">Sign in</button>
</form>
</body>
</html>
`))

type signInView struct {
	Callback string
	Error    string
}

func (s *Server) signInPage(w http.ResponseWriter, r *http.Request) {
	s.renderSignIn(w, http.StatusOK, signInView{Callback: safeCallback(r.URL.Query().Get("callbackUrl"))})
}

func (s *Server) renderSignIn(w http.ResponseWriter, status int, view signInView) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := signInTemplate.Execute(w, view); err != nil {
		s.logger.Warn("render sign-in page", "error", err)
	}
}

type sessionRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	CallbackURL string `json:"callbackUrl"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	isJSON := strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")

	var req sessionRequest
	if isJSON {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			s.renderSignIn(w, http.StatusBadRequest, signInView{Error: "invalid form"})
			return
		}
		req = sessionRequest{
			Username:    r.PostForm.Get("username"),
			Password:    r.PostForm.Get("password"),
			CallbackURL: r.PostForm.Get("callbackUrl"),
		}
	}
	callback := safeCallback(req.CallbackURL)

	creds, err := s.provider.SignIn(r.Context(), req.Username, req.Password)
	if err != nil {
		status := http.StatusBadGateway
		var verr *models.ValidationError
		switch {
		case errors.As(err, &verr):
			status = http.StatusBadRequest
		case errors.Is(err, auth.ErrInvalidCredentials):
			status = http.StatusUnauthorized
		}
		s.logger.Info("sign-in rejected", "username", req.Username, "error", err)
		if isJSON {
			writeJSON(w, status, errorBody{Error: err.Error()})
			return
		}
		s.renderSignIn(w, status, signInView{Callback: callback, Error: err.Error()})
		return
	}

	auth.SetCookies(w, creds, s.now())
	if isJSON {
		body := map[string]any{"callbackUrl": callback}
		if id, err := auth.ParseIdentity(creds.IDToken); err == nil {
			body["user"] = id.User
		}
		writeJSON(w, http.StatusOK, body)
		return
	}
	http.Redirect(w, r, callback, http.StatusSeeOther)
}

func (s *Server) signOut(w http.ResponseWriter, r *http.Request) {
	auth.ClearCookies(w)
	http.Redirect(w, r, SignInPath, http.StatusSeeOther)
}

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	creds, _ := auth.CredentialsFromRequest(r)
	id, err := auth.ParseIdentity(creds.IDToken)
	if err != nil {
		s.expired(w, r)
		return
	}
	writeJSON(w, http.StatusOK, models.Session{User: &id.User, IsAuthenticated: true})
}

func (s *Server) listConversations(w http.ResponseWriter, r *http.Request) {
	ctx, ok := s.authorize(w, r)
	if !ok {
		return
	}

	params := service.ListConversationsParams{}
	if title := r.URL.Query().Get("title"); title != "" {
		params.Title = &title
	}
	resp, err := s.services.Conversations.List(ctx, params)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) listItems(w http.ResponseWriter, r *http.Request) {
	ctx, ok := s.authorize(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	params := service.ListItemsParams{}
	if v := q.Get("conversation_id"); v != "" {
		params.ConversationID = &v
	}
	if v := q.Get("search"); v != "" {
		params.Search = &v
	}
	if v := q.Get("mime_type"); v != "" {
		params.MimeType = &v
	}
	if v, err := strconv.ParseBool(q.Get("active_only")); err == nil {
		params.ActiveOnly = &v
	}

	resp, err := s.services.Items.List(ctx, params)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) chatHistory(w http.ResponseWriter, r *http.Request) {
	ctx, ok := s.authorize(w, r)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	resp, err := s.services.Chat.History(ctx, chi.URLParam(r, "conversationID"), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// authorize puts the cookie's access token on the request context.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request) (context.Context, bool) {
	creds, _ := auth.CredentialsFromRequest(r)
	if creds.AccessToken == "" {
		s.expired(w, r)
		return nil, false
	}
	return client.WithToken(r.Context(), creds.AccessToken), true
}

// expired clears the credential cookies and sends the browser to sign-in.
func (s *Server) expired(w http.ResponseWriter, r *http.Request) {
	auth.ClearCookies(w)
	http.Redirect(w, r, signInURL(r.URL.Path), http.StatusTemporaryRedirect)
}

type errorBody struct {
	Error  string `json:"error"`
	Detail any    `json:"detail,omitempty"`
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *client.APIError
	var netErr *client.NetworkError
	switch {
	case errors.Is(err, client.ErrAuthenticationExpired), errors.Is(err, client.ErrAuthenticationRequired):
		s.expired(w, r)
	case errors.As(err, &apiErr):
		writeJSON(w, apiErr.Status, errorBody{Error: apiErr.Message, Detail: apiErr.Body})
	case errors.As(err, &netErr):
		s.logger.Warn("backend unreachable", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusBadGateway, errorBody{Error: "backend unreachable"})
	default:
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// safeCallback only accepts local absolute paths so the sign-in flow cannot
// be used as an open redirect.
func safeCallback(callback string) string {
	if !strings.HasPrefix(callback, "/") || strings.HasPrefix(callback, "//") || strings.HasPrefix(callback, "/\\") {
		return defaultCallback
	}
	return callback
}
