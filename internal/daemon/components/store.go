package components

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/harunnryd/copydesk/internal/config"
	"github.com/harunnryd/copydesk/internal/daemon"
	"github.com/harunnryd/copydesk/internal/store"
)

const StoreComponentName = "Store"

// StoreComponent owns the workspace store worker: transcripts, the session
// index, the library and the idempotency keys.
type StoreComponent struct {
	workspaceID string
	cfg         config.StoreConfig
	worker      *store.Worker
	initialized bool
	started     bool
	mu          sync.RWMutex
}

func NewStoreComponent(workspaceID string, cfg config.StoreConfig) *StoreComponent {
	return &StoreComponent{workspaceID: workspaceID, cfg: cfg}
}

func (s *StoreComponent) Name() string {
	return StoreComponentName
}

func (s *StoreComponent) Dependencies() []string {
	return nil
}

func (s *StoreComponent) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-ctx.Done():
		return fmt.Errorf("store init cancelled: %w", ctx.Err())
	default:
	}

	runtimeCfg, err := store.RuntimeConfigFromConfig(s.cfg)
	if err != nil {
		return err
	}
	worker, err := store.NewWorker(s.workspaceID, s.cfg.WorkspacePath, runtimeCfg)
	if err != nil {
		return fmt.Errorf("init store worker for workspace %s: %w", s.workspaceID, err)
	}

	s.worker = worker
	s.initialized = true
	slog.Info("Store initialized", "component", s.Name(), "workspace", s.workspaceID, "path", worker.BasePath())
	return nil
}

func (s *StoreComponent) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return fmt.Errorf("store not initialized")
	}
	s.worker.Start()
	s.started = true
	return nil
}

// Stop releases the workspace lock even when Start never ran.
func (s *StoreComponent) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.worker == nil {
		return nil
	}
	s.worker.Stop()
	s.worker = nil
	s.initialized = false
	s.started = false
	return nil
}

func (s *StoreComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h := &daemon.ComponentHealth{Name: s.Name()}
	switch {
	case !s.initialized:
		h.Error = fmt.Errorf("not initialized")
	case !s.started:
		h.Error = fmt.Errorf("not started")
	case !s.worker.IsLockHeld():
		h.Error = fmt.Errorf("lock not held")
	case !s.worker.IsRunning():
		h.Error = fmt.Errorf("loop not running")
	default:
		h.Healthy = true
	}
	return h, nil
}

// Worker returns the store worker once Init has run.
func (s *StoreComponent) Worker() *store.Worker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.worker
}
