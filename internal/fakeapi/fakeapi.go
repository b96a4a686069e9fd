// Package fakeapi is an in-memory stand-in for the chat, management and
// ingestion backends. Tests run it behind httptest to exercise the client
// stack end to end.
package fakeapi

import (
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/raphaelgruber/docchat/internal/models"
)

// Call records one request seen by the backend.
type Call struct {
	Method string
	Path   string
	Query  string
	Body   map[string]any
}

// Backend holds the fake server state. Zero value is not usable; use New.
type Backend struct {
	mu sync.Mutex

	token         string
	rejectAuth    bool
	failNext      int
	failListings  int
	ingestLag     int
	conversations map[string]models.Conversation
	items         map[string]models.Item
	pending       []pendingItem
	messages      map[string][]models.Message
	calls         []Call
	holds         []*hold
	now           func() time.Time
}

type hold struct {
	method  string
	path    string
	ready   chan struct{}
	release chan struct{}
}

type pendingItem struct {
	item     models.Item
	listsTil int
}

// New creates a backend that accepts the bearer token.
func New(token string) *Backend {
	return &Backend{
		token:         token,
		conversations: make(map[string]models.Conversation),
		items:         make(map[string]models.Item),
		messages:      make(map[string][]models.Message),
		now:           time.Now,
	}
}

// Handler returns the HTTP handler serving all three backends.
func (b *Backend) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(b.record, b.authenticate, b.injectFailures, b.holdResponses)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/conversation", b.listConversations)
		r.Post("/conversation", b.createConversation)
		r.Get("/conversation/{id}", b.getConversation)
		r.Put("/conversation/{id}", b.updateConversation)
		r.Delete("/conversation/{id}", b.deleteConversation)

		r.Get("/items", b.listItems)
		r.Get("/items/{id}", b.getItem)
		r.Put("/items/{id}", b.updateItem)
		r.Delete("/items/{id}", b.deleteItem)
		r.Delete("/items/conversation/{id}", b.deleteConversationItems)

		r.Post("/upload", b.upload)

		r.Post("/chat", b.sendMessage)
		r.Get("/chat/history/{id}", b.history)
		r.Get("/chat/history/{id}/{messageID}", b.message)
	})
	return r
}

// SetRejectAuth makes every request answer 401 while on.
func (b *Backend) SetRejectAuth(on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rejectAuth = on
}

// FailNext makes the next n requests answer 503.
func (b *Backend) FailNext(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failNext = n
}

// FailListings makes the next n item listings answer 503.
func (b *Backend) FailListings(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failListings = n
}

// SetIngestLag hides uploaded items from the next n item listings.
func (b *Backend) SetIngestLag(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ingestLag = n
}

// Hold delays the response to the next request matching method and path
// until release is called. ready is closed once the response is computed.
func (b *Backend) Hold(method, path string) (ready <-chan struct{}, release func()) {
	h := &hold{method: method, path: path, ready: make(chan struct{}), release: make(chan struct{})}
	b.mu.Lock()
	b.holds = append(b.holds, h)
	b.mu.Unlock()

	var once sync.Once
	return h.ready, func() { once.Do(func() { close(h.release) }) }
}

// SeedConversation stores a conversation and returns it.
func (b *Backend) SeedConversation(c models.Conversation) models.Conversation {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt, c.UpdatedAt = b.now(), b.now()
	b.conversations[c.ID] = c
	return c
}

// SeedItem stores an item and returns it.
func (b *Backend) SeedItem(it models.Item) models.Item {
	b.mu.Lock()
	defer b.mu.Unlock()
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	it.CreatedAt, it.UpdatedAt = b.now(), b.now()
	b.items[it.ID] = it
	return it
}

// Items returns the confirmed items of a conversation sorted by id.
func (b *Backend) Items(conversationID string) []models.Item {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.itemsOf(conversationID)
}

// Calls returns the requests seen so far.
func (b *Backend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.calls)
}

// CountCalls counts requests with the method whose path starts with prefix.
func (b *Backend) CountCalls(method, prefix string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.calls {
		if c.Method == method && strings.HasPrefix(c.Path, prefix) {
			n++
		}
	}
	return n
}

func (b *Backend) itemsOf(conversationID string) []models.Item {
	var out []models.Item
	for _, it := range b.items {
		if conversationID == "" || it.ConversationID == conversationID {
			out = append(out, it)
		}
	}
	slices.SortFunc(out, func(x, y models.Item) int { return strings.Compare(x.ID, y.ID) })
	return out
}

func (b *Backend) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := Call{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery}
		if r.Body != nil && r.ContentLength != 0 {
			_ = json.NewDecoder(r.Body).Decode(&call.Body)
		}
		b.mu.Lock()
		b.calls = append(b.calls, call)
		b.mu.Unlock()

		// The body was consumed above; handlers read the recorded copy.
		next.ServeHTTP(w, r.WithContext(withBody(r.Context(), call.Body)))
	})
}

func (b *Backend) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		reject := b.rejectAuth
		b.mu.Unlock()

		if reject || r.Header.Get("Authorization") != "Bearer "+b.token {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "not authenticated"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) injectFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		fail := b.failNext > 0
		if fail {
			b.failNext--
		} else if b.failListings > 0 && r.Method == http.MethodGet && r.URL.Path == "/api/v1/items" {
			b.failListings--
			fail = true
		}
		b.mu.Unlock()

		if fail {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"detail": "unavailable"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) holdResponses(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		var h *hold
		for i, candidate := range b.holds {
			if candidate.method == r.Method && candidate.path == r.URL.Path {
				h = candidate
				b.holds = slices.Delete(b.holds, i, i+1)
				break
			}
		}
		b.mu.Unlock()

		if h == nil {
			next.ServeHTTP(w, r)
			return
		}

		rec := httptest.NewRecorder()
		next.ServeHTTP(rec, r)
		close(h.ready)
		<-h.release

		maps.Copy(w.Header(), rec.Header())
		w.WriteHeader(rec.Code)
		_, _ = w.Write(rec.Body.Bytes())
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func notFound(w http.ResponseWriter, what, id string) {
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": fmt.Sprintf("%s %s not found", what, id)})
}

func queryBool(r *http.Request, key string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return v
}
