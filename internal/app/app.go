// Package app is the data layer shared by the CLI and the web gate. An App
// owns the API client, the query cache, the stores and the reconciler for one
// signed-in user, and exposes the queries and mutations the views call.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/raphaelgruber/docchat/internal/auth"
	"github.com/raphaelgruber/docchat/internal/cache"
	"github.com/raphaelgruber/docchat/internal/client"
	"github.com/raphaelgruber/docchat/internal/config"
	"github.com/raphaelgruber/docchat/internal/metrics"
	"github.com/raphaelgruber/docchat/internal/models"
	"github.com/raphaelgruber/docchat/internal/reconcile"
	"github.com/raphaelgruber/docchat/internal/service"
	"github.com/raphaelgruber/docchat/internal/store"
)

// Policies are the cache policies per query family.
type Policies struct {
	Items         cache.Policy
	Conversations cache.Policy
	Chat          cache.Policy
}

// DefaultPolicies returns the production cache policies.
func DefaultPolicies() Policies {
	return Policies{
		Items:         cache.ItemsPolicy,
		Conversations: cache.ConversationsPolicy,
		Chat:          cache.ChatPolicy,
	}
}

// Schedules are the forced-refresh schedules.
type Schedules struct {
	AfterMutation reconcile.Schedule
	OnDialogClose reconcile.Schedule
}

// DefaultSchedules returns the production schedules.
func DefaultSchedules() Schedules {
	return Schedules{
		AfterMutation: reconcile.AfterMutation,
		OnDialogClose: reconcile.OnDialogClose,
	}
}

// Deps are the collaborators of an App. Zero fields get defaults.
type Deps struct {
	Logger     *slog.Logger
	Metrics    *metrics.Collector
	HTTPClient *http.Client
	Provider   auth.Provider
	Jar        *auth.Jar
	Session    *store.SessionStore

	// OnSignedOut runs once when the backend rejects the session, after
	// local state has been cleared. Views use it to send the user to sign-in.
	OnSignedOut func()

	Policies  *Policies
	Schedules *Schedules
}

// Services bundles the resource services, for callers that need raw access.
type Services struct {
	Conversations *service.ConversationService
	Items         *service.ItemService
	Chat          *service.ChatService
	Upload        *service.UploadService
}

// NewServices builds the resource services on top of c.
func NewServices(c service.Caller) Services {
	return Services{
		Conversations: service.NewConversationService(c),
		Items:         service.NewItemService(c),
		Chat:          service.NewChatService(c),
		Upload:        service.NewUploadService(c),
	}
}

// App is the data layer container.
type App struct {
	cfg     config.Config
	logger  *slog.Logger
	metrics *metrics.Collector

	client   *client.Client
	services Services
	cache    *cache.Cache

	reconciler *reconcile.Reconciler
	policies   Policies
	schedules  Schedules

	jar      *auth.Jar
	provider auth.Provider
	session  *store.SessionStore
	convs    *store.ConversationStore
	items    *store.ItemStore
	chat     *store.ChatStore

	onSignedOut func()
	expireMu    sync.Mutex
	signOuts    atomic.Int64
}

// New wires an App from configuration.
func New(cfg config.Config, deps Deps) (*App, error) {
	a := &App{
		cfg:         cfg,
		logger:      deps.Logger,
		metrics:     deps.Metrics,
		jar:         deps.Jar,
		provider:    deps.Provider,
		session:     deps.Session,
		onSignedOut: deps.OnSignedOut,
		policies:    DefaultPolicies(),
		schedules:   DefaultSchedules(),
		cache:       cache.New(),
		convs:       store.NewConversationStore(),
		items:       store.NewItemStore(),
		chat:        store.NewChatStore(),
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.metrics == nil {
		a.metrics = metrics.NewCollector()
	}
	if deps.Policies != nil {
		a.policies = *deps.Policies
	}
	if deps.Schedules != nil {
		a.schedules = *deps.Schedules
	}
	if a.jar == nil {
		jar, err := auth.NewJar(filepath.Join(cfg.StateDir, "credentials.yaml"))
		if err != nil {
			return nil, fmt.Errorf("open credential jar: %w", err)
		}
		a.jar = jar
	}
	if a.session == nil {
		a.session = store.NewSessionStore(filepath.Join(cfg.SessionDir(), "session.yaml"), a.logger)
	}
	if a.provider == nil {
		a.provider = auth.NewOAuthProvider(cfg.AuthTokenURL, cfg.AuthClientID, cfg.AuthClientSecret, cfg.AuthScopes, deps.HTTPClient)
	}

	a.client = client.New(client.Options{
		BaseURLs: map[client.Backend]string{
			client.BackendChat:       cfg.ChatServiceURL,
			client.BackendManagement: cfg.ManagementServiceURL,
			client.BackendIngestion:  cfg.IngestionServiceURL,
		},
		Timeout:    cfg.ClientTimeout,
		Tokens:     a.jar,
		OnExpired:  a.expire,
		Metrics:    a.metrics,
		Logger:     a.logger,
		HTTPClient: deps.HTTPClient,
	})
	a.services = NewServices(a.client)
	a.reconciler = reconcile.New(a.logger, a.metrics)
	a.restoreSession()

	return a, nil
}

// restoreSession rebuilds the identity from stored credentials when the
// session file is gone, e.g. after a reboot.
func (a *App) restoreSession() {
	if a.session.Snapshot().IsAuthenticated {
		return
	}
	creds, ok := a.jar.Credentials()
	if !ok || creds.IDToken == "" {
		return
	}
	id, err := auth.ParseIdentity(creds.IDToken)
	if err != nil {
		a.logger.Debug("stored id token unreadable", "error", err)
		return
	}
	if err := a.session.SignIn(id.User); err != nil {
		a.logger.Warn("failed to restore session", "error", err)
	}
}

// Close stops background refreshes.
func (a *App) Close() {
	a.reconciler.Close()
}

// Services returns the resource services.
func (a *App) Services() Services { return a.services }

// Metrics returns the collector backend calls are timed into.
func (a *App) Metrics() *metrics.Collector { return a.metrics }

// Cache returns the query cache.
func (a *App) Cache() *cache.Cache { return a.cache }

// ConversationStore returns the conversation mirror.
func (a *App) ConversationStore() *store.ConversationStore { return a.convs }

// ItemStore returns the item mirror.
func (a *App) ItemStore() *store.ItemStore { return a.items }

// ChatStore returns the active transcript.
func (a *App) ChatStore() *store.ChatStore { return a.chat }

// Session returns the current session.
func (a *App) Session() models.Session { return a.session.Snapshot() }

// SignOuts counts forced sign-outs since the App was created.
func (a *App) SignOuts() int64 { return a.signOuts.Load() }

// TakeNotice returns a pending background refresh failure, if any.
func (a *App) TakeNotice() (reconcile.Notice, bool) {
	return a.reconciler.TakeNotice()
}

// SignIn authenticates against the identity provider and opens a session.
func (a *App) SignIn(ctx context.Context, username, password string) (models.User, error) {
	creds, err := a.provider.SignIn(ctx, username, password)
	if err != nil {
		return models.User{}, fmt.Errorf("sign in: %w", err)
	}
	return a.open(creds, username)
}

// Refresh trades the stored refresh token for new credentials.
func (a *App) Refresh(ctx context.Context) (models.User, error) {
	current, ok := a.jar.Credentials()
	if !ok {
		return models.User{}, client.ErrAuthenticationRequired
	}
	creds, err := a.provider.Refresh(ctx, current.RefreshToken)
	if err != nil {
		return models.User{}, fmt.Errorf("refresh session: %w", err)
	}
	if creds.IDToken == "" {
		creds.IDToken = current.IDToken
	}
	fallback := ""
	if s := a.session.Snapshot(); s.User != nil {
		fallback = s.User.Username
	}
	return a.open(creds, fallback)
}

func (a *App) open(creds auth.Credentials, fallbackUsername string) (models.User, error) {
	user := models.User{Username: fallbackUsername}
	if creds.IDToken != "" {
		id, err := auth.ParseIdentity(creds.IDToken)
		if err != nil {
			a.logger.Warn("id token unreadable, using login name", "error", err)
		} else {
			user = id.User
		}
	}

	if err := a.jar.Store(creds); err != nil {
		return models.User{}, fmt.Errorf("store credentials: %w", err)
	}
	if err := a.session.SignIn(user); err != nil {
		return models.User{}, fmt.Errorf("store session: %w", err)
	}
	a.logger.Info("signed in", "username", user.Username)
	return user, nil
}

// SignOut ends the session and drops all cached state.
func (a *App) SignOut() error {
	a.teardown()
	if err := a.jar.Clear(); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	if err := a.session.SignOut(); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

// expire is the client's expiry handler. The first rejection of a session
// or of a stored token signs out; later concurrent rejections find both
// already gone.
func (a *App) expire(context.Context) {
	a.expireMu.Lock()
	ended := a.session.Expire()
	dropped, err := a.jar.Drop()
	a.expireMu.Unlock()

	if err != nil {
		a.logger.Warn("failed to clear credentials", "error", err)
	}
	if !ended && !dropped {
		return
	}
	a.signOuts.Add(1)
	a.logger.Warn("session expired, signing out", "session", ended, "credentials", dropped)

	a.teardown()
	if a.onSignedOut != nil {
		a.onSignedOut()
	}
}

func (a *App) teardown() {
	a.reconciler.CancelAll()
	a.cache.Clear()
	a.convs.Reset()
	a.items.Reset()
	a.chat.Clear()
}
