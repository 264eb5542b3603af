package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/harunnryd/copydesk/internal/backend/edge"
	"github.com/harunnryd/copydesk/internal/backend/gamma"
	"github.com/harunnryd/copydesk/internal/backend/vertex"
	"github.com/harunnryd/copydesk/internal/config"
	"github.com/harunnryd/copydesk/internal/content"
	"github.com/harunnryd/copydesk/internal/dispatch"
	"github.com/harunnryd/copydesk/internal/guide"
	"github.com/harunnryd/copydesk/internal/intent"
	"github.com/harunnryd/copydesk/internal/model"
	"github.com/harunnryd/copydesk/internal/poller"
	"github.com/harunnryd/copydesk/internal/session"
	"github.com/harunnryd/copydesk/internal/store"
	"github.com/harunnryd/copydesk/internal/vault"
)

// Backend names accepted in backends.routes.
const (
	BackendEdge   = "edge"
	BackendGamma  = "gamma"
	BackendVertex = "vertex"
)

// generator is what every named backend offers: generation plus job status.
type generator interface {
	dispatch.Backend
	poller.StatusSource
}

// Services are the shared, session-independent collaborators. Every
// session gets its own dispatcher and poller built from them.
type Services struct {
	Classifier      *intent.Classifier
	Router          model.ModelRouter
	Edge            *edge.Client
	Backends        map[content.Capability]dispatch.Backend
	Sources         map[content.Capability]poller.StatusSource
	DispatchTimeout time.Duration
	PollOptions     poller.Options
	Guide           guide.Guide
	Sink            vault.Sink
	Library         vault.Library
	Manager         session.ManagerOptions
}

// NewServices assembles the services from config. Backends whose settings
// are missing are skipped with a warning; their capabilities then fail per
// request instead of at startup.
func NewServices(ctx context.Context, cfg *config.Config, worker *store.Worker) (*Services, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	classifier, err := intent.FromConfig(cfg.Intent)
	if err != nil {
		return nil, err
	}
	dispatchTimeout, err := config.DurationOrDefault(cfg.Session.DispatchTimeout, config.DefaultSessionDispatchTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid session.dispatch_timeout: %w", err)
	}
	pollOpts, err := poller.OptionsFromConfig(cfg.Poller)
	if err != nil {
		return nil, err
	}
	managerOpts, err := session.ManagerOptionsFromConfig(cfg.Session)
	if err != nil {
		return nil, err
	}

	s := &Services{
		Classifier:      classifier,
		Backends:        make(map[content.Capability]dispatch.Backend),
		Sources:         make(map[content.Capability]poller.StatusSource),
		DispatchTimeout: dispatchTimeout,
		PollOptions:     pollOpts,
		Manager:         managerOpts,
	}

	if client, err := edge.NewClientFromConfig(cfg.Backends.Edge); err != nil {
		slog.Warn("Edge functions unavailable", "error", err)
	} else {
		s.Edge = client
	}

	if router, err := model.NewModelRouter(cfg.Models); err != nil {
		slog.Warn("Model router unavailable", "error", err)
	} else if len(router.Models()) > 0 {
		s.Router = router
	}

	if err := s.bindBackends(ctx, cfg); err != nil {
		return nil, err
	}
	s.Guide = s.buildGuide(cfg.Guide, cfg.Backends.Edge.Functions.Chat)
	s.Sink, s.Library = s.buildVault(cfg, worker)

	return s, nil
}

func (s *Services) bindBackends(ctx context.Context, cfg *config.Config) error {
	built := make(map[string]generator)
	build := func(name string) (generator, error) {
		if g, ok := built[name]; ok {
			return g, nil
		}
		var (
			g   generator
			err error
		)
		switch name {
		case BackendEdge:
			if s.Edge == nil {
				return nil, fmt.Errorf("backends.edge.base_url is not set")
			}
			g = edgeBackend{
				Generator:    edge.NewGenerator(s.Edge, cfg.Backends.Edge.Functions),
				StatusSource: edge.NewStatusSource(s.Edge, cfg.Backends.Edge.Functions.JobStatus),
			}
		case BackendGamma:
			g, err = gamma.New(cfg.Backends.Gamma, nil)
		case BackendVertex:
			g, err = vertex.New(ctx, cfg.Backends.Vertex)
		}
		if err != nil {
			return nil, err
		}
		built[name] = g
		return g, nil
	}

	capabilities := make([]string, 0, len(cfg.Backends.Routes))
	for c := range cfg.Backends.Routes {
		capabilities = append(capabilities, c)
	}
	sort.Strings(capabilities)

	for _, raw := range capabilities {
		capability := content.Capability(strings.ToLower(strings.TrimSpace(raw)))
		if !capability.Valid() {
			return fmt.Errorf("backends.routes: unknown capability %q", raw)
		}
		name := strings.ToLower(strings.TrimSpace(cfg.Backends.Routes[raw]))
		switch name {
		case "", "none":
			continue
		case BackendEdge, BackendGamma, BackendVertex:
		default:
			return fmt.Errorf("backends.routes.%s: unknown backend %q", raw, name)
		}
		g, err := build(name)
		if err != nil {
			slog.Warn("Capability has no backend", "capability", capability, "backend", name, "error", err)
			continue
		}
		s.Backends[capability] = g
		if dispatch.AsyncCapable(capability) {
			s.Sources[capability] = g
		}
		slog.Info("Capability bound", "capability", capability, "backend", name)
	}
	return nil
}

type edgeBackend struct {
	*edge.Generator
	*edge.StatusSource
}

func (s *Services) buildGuide(cfg config.GuideConfig, chatFunction string) guide.Guide {
	switch strings.ToLower(cfg.Backend) {
	case "", "model":
		if s.Router == nil {
			slog.Warn("Chat guide disabled: no model provider configured")
			return nil
		}
		return guide.NewModelGuide(s.Router, cfg.Model, cfg.System, cfg.HistoryLimit)
	case BackendEdge:
		if s.Edge == nil {
			slog.Warn("Chat guide disabled: edge functions unavailable")
			return nil
		}
		return guide.NewEdgeGuide(s.Edge, chatFunction)
	case "none":
		return nil
	default:
		slog.Warn("Unknown guide backend, guide disabled", "backend", cfg.Backend)
		return nil
	}
}

func (s *Services) buildVault(cfg *config.Config, worker *store.Worker) (vault.Sink, vault.Library) {
	switch strings.ToLower(cfg.Vault.Backend) {
	case BackendEdge:
		if s.Edge == nil {
			slog.Warn("Content library disabled: edge functions unavailable")
			return nil, nil
		}
		return vault.NewEdge(s.Edge, cfg.Backends.Edge.Functions.Library), nil
	case "none":
		return nil, nil
	}

	if worker == nil {
		return nil, nil
	}
	ttl, err := config.DurationOrDefault(cfg.Vault.IdempotencyTTL, config.DefaultVaultIdempotencyTTL)
	if err != nil {
		slog.Warn("Invalid vault.idempotency_ttl, using default", "error", err)
		ttl, _ = config.DurationOrDefault("", config.DefaultVaultIdempotencyTTL)
	}
	var embedder vault.Embedder
	if s.Router != nil && cfg.Models.Embedding != "" {
		embedder = vault.ModelEmbedder{Router: s.Router, Model: cfg.Models.Embedding}
	}
	local := vault.NewLocal(worker, embedder, vault.LocalOptions{
		Collection:  cfg.Vault.Collection,
		TTL:         ttl,
		SearchLimit: cfg.Vault.SearchLimit,
	})
	return local, local
}

// Factory builds per-session collaborators. Each session owns its poller so
// closing one session never stops another session's jobs.
func (s *Services) Factory() session.Factory {
	return func(sessionID string) (session.Deps, error) {
		return session.Deps{
			Classifier: s.Classifier,
			Dispatcher: dispatch.New(nil, s.Backends, s.DispatchTimeout),
			Poller:     poller.New(s.Sources, s.PollOptions),
			Guide:      s.Guide,
			Sink:       s.Sink,
		}, nil
	}
}

// NewManager returns a session manager persisting into worker.
func (s *Services) NewManager(worker *store.Worker) *session.Manager {
	var recorder *session.StoreRecorder
	if worker != nil {
		recorder = session.NewStoreRecorder(worker)
	}
	return session.NewManager(s.Factory(), recorder, s.Manager)
}
