package components

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/harunnryd/copydesk/internal/daemon"
	"github.com/harunnryd/copydesk/internal/session"
	"github.com/harunnryd/copydesk/internal/store"
)

const SessionsComponentName = "Sessions"

// ManagerBuilder assembles the session manager once the store is open.
type ManagerBuilder func(ctx context.Context, worker *store.Worker) (*session.Manager, error)

// SessionsComponent runs the session registry and its idle sweep.
type SessionsComponent struct {
	store   *StoreComponent
	build   ManagerBuilder
	manager *session.Manager
	started bool
	mu      sync.RWMutex
}

func NewSessionsComponent(storeComp *StoreComponent, build ManagerBuilder) *SessionsComponent {
	return &SessionsComponent{store: storeComp, build: build}
}

func (c *SessionsComponent) Name() string {
	return SessionsComponentName
}

func (c *SessionsComponent) Dependencies() []string {
	return []string{StoreComponentName}
}

func (c *SessionsComponent) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.build == nil {
		return fmt.Errorf("session manager builder not provided")
	}
	worker := c.store.Worker()
	if worker == nil {
		return fmt.Errorf("store not initialized")
	}
	manager, err := c.build(ctx, worker)
	if err != nil {
		return fmt.Errorf("build session manager: %w", err)
	}
	c.manager = manager
	return nil
}

func (c *SessionsComponent) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.manager == nil {
		return fmt.Errorf("sessions not initialized")
	}
	if err := c.manager.Start(ctx); err != nil {
		return err
	}
	c.started = true
	return nil
}

func (c *SessionsComponent) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.manager == nil {
		return nil
	}
	if err := c.manager.Stop(ctx); err != nil {
		return err
	}
	slog.Info("Sessions stopped", "component", c.Name())
	c.started = false
	return nil
}

func (c *SessionsComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	h := &daemon.ComponentHealth{Name: c.Name()}
	switch {
	case c.manager == nil:
		h.Error = fmt.Errorf("not initialized")
	case !c.started:
		h.Error = fmt.Errorf("not started")
	default:
		h.Healthy = true
	}
	return h, nil
}

// Manager returns the session manager once Init has run.
func (c *SessionsComponent) Manager() *session.Manager {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.manager
}
