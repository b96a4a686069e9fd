// Package server is the local web front door: it applies the route
// protection rules to browser traffic and serves the signed-in user's
// conversations, items and chat history as JSON.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/raphaelgruber/docchat/internal/app"
	"github.com/raphaelgruber/docchat/internal/auth"
)

// Options configures a Server.
type Options struct {
	Services          app.Services
	Provider          auth.Provider
	ProtectedPrefixes []string
	Logger            *slog.Logger
}

// Server wraps the router with its dependencies and lifecycle management.
type Server struct {
	router    chi.Router
	services  app.Services
	provider  auth.Provider
	protected []string
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a server and registers its routes.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		services:  opts.Services,
		provider:  opts.Provider,
		protected: opts.ProtectedPrefixes,
		logger:    logger,
		now:       time.Now,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(LoggingMiddleware(s.logger))
	r.Use(Gate(s.protected))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	r.Route("/auth", func(r chi.Router) {
		r.Get("/signin", s.signInPage)
		r.Post("/session", s.createSession)
		r.Post("/signout", s.signOut)
	})

	r.Route("/dashboard", func(r chi.Router) {
		r.Get("/", s.dashboard)
		r.Get("/conversations", s.listConversations)
		r.Get("/items", s.listItems)
		r.Get("/chat/{conversationID}", s.chatHistory)
	})
	r.Get("/profile", s.dashboard)

	return r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("web gate listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down web gate")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
