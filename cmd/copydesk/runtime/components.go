package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/harunnryd/copydesk/internal/command"
	"github.com/harunnryd/copydesk/internal/config"
	"github.com/harunnryd/copydesk/internal/session"
	"github.com/harunnryd/copydesk/internal/store"
)

// RuntimeComponents is everything an interactive command needs: the open
// workspace store, the shared services and a session manager.
type RuntimeComponents struct {
	Ctx    context.Context
	Cancel context.CancelFunc

	Config      *config.Config
	WorkspaceID string

	StoreWorker *store.Worker
	Services    *Services
	Sessions    *session.Manager
	Commands    *command.Handler
}

func NewRuntimeComponents(ctx context.Context, cfg *config.Config, workspaceID string) (*RuntimeComponents, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)

	components := &RuntimeComponents{
		Ctx:         ctx,
		Cancel:      cancel,
		Config:      cfg,
		WorkspaceID: workspaceID,
		Commands:    command.NewHandler(),
	}

	worker, err := OpenStore(cfg, workspaceID)
	if err != nil {
		components.cleanup()
		return nil, fmt.Errorf("init store worker: %w", err)
	}
	components.StoreWorker = worker

	services, err := NewServices(ctx, cfg, worker)
	if err != nil {
		components.cleanup()
		return nil, fmt.Errorf("init services: %w", err)
	}
	components.Services = services
	components.Sessions = services.NewManager(worker)

	slog.Info("Runtime components initialized", "workspace", workspaceID, "capabilities", len(services.Backends))
	return components, nil
}

// OpenStore opens and starts the workspace store.
func OpenStore(cfg *config.Config, workspaceID string) (*store.Worker, error) {
	runtimeCfg, err := store.RuntimeConfigFromConfig(cfg.Store)
	if err != nil {
		return nil, err
	}
	worker, err := store.NewWorker(workspaceID, cfg.Store.WorkspacePath, runtimeCfg)
	if err != nil {
		return nil, err
	}
	worker.Start()
	return worker, nil
}

func (r *RuntimeComponents) Start() error {
	if r.Sessions == nil {
		return fmt.Errorf("session manager not initialized")
	}
	return r.Sessions.Start(r.Ctx)
}

func (r *RuntimeComponents) Stop() {
	r.Cancel()

	if r.Sessions != nil {
		if err := r.Sessions.Stop(context.Background()); err != nil {
			slog.Warn("Failed to stop sessions", "error", err)
		}
	}
	if r.StoreWorker != nil {
		r.StoreWorker.Stop()
	}
	slog.Debug("Runtime components stopped")
}

func (r *RuntimeComponents) cleanup() {
	r.Stop()
}
