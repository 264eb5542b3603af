// Package ingress exposes conversations, classification and the content
// library over HTTP.
package ingress

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/harunnryd/copydesk/internal/command"
	"github.com/harunnryd/copydesk/internal/content"
	"github.com/harunnryd/copydesk/internal/session"
	"github.com/harunnryd/copydesk/internal/vault"
)

type Sessions interface {
	Create(ctx context.Context, configure func(*session.Options)) (*session.Session, error)
	Get(ctx context.Context, id string) (*session.Session, error)
	Close(id string) error
	List() ([]session.Info, error)
}

type Classifier interface {
	Classify(text string) content.Tag
}

// Deduper remembers idempotency keys of submitted messages and the turn
// ids each one produced.
type Deduper interface {
	Remember(key, value string, ttl time.Duration) (string, bool)
	Settle(key, value string, ttl time.Duration)
	Forget(key string)
}

// HealthFunc reports component health for /health.
type HealthFunc func(ctx context.Context) map[string]error

type Options struct {
	AllowedOrigins []string
	IdempotencyTTL time.Duration
}

type API struct {
	sessions   Sessions
	commands   *command.Handler
	classifier Classifier
	library    vault.Library
	dedupe     Deduper
	health     HealthFunc
	opts       Options
}

// NewAPI wires the handlers. library, dedupe and health may be nil.
func NewAPI(sessions Sessions, classifier Classifier, library vault.Library, dedupe Deduper, health HealthFunc, opts Options) *API {
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &API{
		sessions:   sessions,
		commands:   command.NewHandler(),
		classifier: classifier,
		library:    library,
		dedupe:     dedupe,
		health:     health,
		opts:       opts,
	}
}

// Handler returns the routed API wrapped with CORS and panic recovery.
func (a *API) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", a.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/classify", a.handleClassify).Methods(http.MethodPost)
	api.HandleFunc("/content-types", a.handleContentTypes).Methods(http.MethodGet)

	api.HandleFunc("/sessions", a.handleCreateSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions", a.handleListSessions).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", a.handleGetSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", a.handleCloseSession).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}/messages", a.handleMessage).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/content-type", a.handleSetContentType).Methods(http.MethodPut)
	api.HandleFunc("/sessions/{id}/jobs", a.handleJobs).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/items/{itemID}/save", a.handleSaveItem).Methods(http.MethodPost)

	api.HandleFunc("/library", a.handleLibrary).Methods(http.MethodGet)

	r.Use(traceMiddleware)

	cors := handlers.CORS(
		handlers.AllowedOrigins(a.opts.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization", "Idempotency-Key", "X-Trace-ID"}),
	)
	return handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(cors(r))
}
