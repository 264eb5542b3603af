package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/harunnryd/copydesk/internal/config"
	"github.com/harunnryd/copydesk/internal/store"
)

// Daemon owns the lifecycle of the copydesk components for one workspace.
// Components are initialized and started in dependency order; whatever was
// initialized is stopped in the reverse of that order.
type Daemon struct {
	cfg         *config.Config
	workspaceID string

	mu         sync.RWMutex
	components []Component
	byName     map[string]Component
	status     HealthStatus
	ready      []Component
}

func NewDaemon(workspaceID string, cfg *config.Config) (*Daemon, error) {
	if workspaceID == "" {
		return nil, fmt.Errorf("workspace ID cannot be empty")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	return &Daemon{
		cfg:         cfg,
		workspaceID: workspaceID,
		byName:      make(map[string]Component),
		status:      StatusStarting,
	}, nil
}

// AddComponent registers comp. A later registration under the same name
// replaces the earlier one.
func (d *Daemon) AddComponent(comp Component) {
	d.mu.Lock()
	defer d.mu.Unlock()
	name := comp.Name()
	if _, dup := d.byName[name]; dup {
		for i, c := range d.components {
			if c.Name() == name {
				d.components[i] = comp
			}
		}
	} else {
		d.components = append(d.components, comp)
	}
	d.byName[name] = comp
	slog.Debug("Component registered", "component", name, "total_components", len(d.components))
}

// Start runs every component and blocks until ctx is cancelled or the
// process receives SIGINT or SIGTERM.
func (d *Daemon) Start(ctx context.Context) error {
	slog.Info("Copydesk daemon starting", "workspace", d.workspaceID)

	ctx, stopSignals := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	if err := d.validateConfig(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	plan, err := d.plan()
	if err != nil {
		return fmt.Errorf("component initialization failed: %w", err)
	}
	if err := d.initAll(ctx, plan); err != nil {
		d.rollback(context.Background())
		return fmt.Errorf("component initialization failed: %w", err)
	}
	if err := d.startAll(ctx, plan); err != nil {
		timeout, terr := config.DurationOrDefault(d.cfg.Daemon.StartupShutdownTimeout, config.DefaultDaemonStartupShutdownTimeout)
		if terr != nil {
			return fmt.Errorf("parse daemon startup shutdown timeout: %w", terr)
		}
		_ = d.stopWithin(timeout)
		return fmt.Errorf("component startup failed: %w", err)
	}

	d.setStatus(StatusRunning)
	slog.Info("Copydesk daemon is running", "workspace", d.workspaceID, "components", len(plan))

	monitorCtx, stopMonitor := context.WithCancel(ctx)
	go d.monitor(monitorCtx)

	<-ctx.Done()
	stopMonitor()
	slog.Info("Shutting down", "workspace", d.workspaceID, "reason", ctx.Err())
	d.setStatus(StatusStopping)

	timeout, err := config.DurationOrDefault(d.cfg.Daemon.ShutdownTimeout, config.DefaultDaemonShutdownTimeout)
	if err != nil {
		return fmt.Errorf("parse daemon shutdown timeout: %w", err)
	}
	if err := d.stopWithin(timeout); err != nil {
		return err
	}
	return ctx.Err()
}

// Health is the daemon's own lifecycle state.
func (d *Daemon) Health() HealthStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.status
}

// ComponentHealth polls every component. A component whose check errors is
// reported unhealthy.
func (d *Daemon) ComponentHealth(ctx context.Context) map[string]*ComponentHealth {
	d.mu.RLock()
	components := append([]Component(nil), d.components...)
	d.mu.RUnlock()

	out := make(map[string]*ComponentHealth, len(components))
	for _, comp := range components {
		h, err := comp.Health(ctx)
		if h == nil {
			h = &ComponentHealth{Name: comp.Name()}
		}
		if err != nil {
			h.Healthy, h.Error = false, err
		}
		out[comp.Name()] = h
	}
	return out
}

// HealthErrors is the /health view: one entry per component plus a
// "daemon" entry that is non-nil unless the daemon is running.
func (d *Daemon) HealthErrors(ctx context.Context) map[string]error {
	out := map[string]error{"daemon": nil}
	if status := d.Health(); status != StatusRunning {
		out["daemon"] = fmt.Errorf("daemon is %s", status)
	}
	for name, h := range d.ComponentHealth(ctx) {
		switch {
		case h.Healthy:
			out[name] = nil
		case h.Error != nil:
			out[name] = h.Error
		default:
			out[name] = errors.New("unhealthy")
		}
	}
	return out
}

func (d *Daemon) setStatus(status HealthStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status = status
}

func (d *Daemon) validateConfig() error {
	if port := d.cfg.Server.Port; port < 1 || port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", port)
	}
	path, err := store.GetWorkspacePath(d.workspaceID, d.cfg.Store.WorkspacePath)
	if err != nil {
		return fmt.Errorf("resolve workspace path: %w", err)
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create workspace directory: %w", err)
	}
	slog.Debug("Configuration validated", "workspace", d.workspaceID, "path", path, "port", d.cfg.Server.Port)
	return nil
}

// plan orders components so each one follows its dependencies. Each pass
// walks the registration order and places every component whose
// dependencies are already placed.
func (d *Daemon) plan() ([]Component, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	waiting := make(map[string]int, len(d.components))
	dependents := make(map[string][]string)
	for _, comp := range d.components {
		for _, dep := range comp.Dependencies() {
			if _, ok := d.byName[dep]; !ok {
				return nil, fmt.Errorf("component %s depends on %s which is not registered", comp.Name(), dep)
			}
			waiting[comp.Name()]++
			dependents[dep] = append(dependents[dep], comp.Name())
		}
	}

	placed := make(map[string]bool, len(d.components))
	order := make([]Component, 0, len(d.components))
	for len(order) < len(d.components) {
		progressed := false
		for _, comp := range d.components {
			name := comp.Name()
			if placed[name] || waiting[name] > 0 {
				continue
			}
			placed[name] = true
			order = append(order, comp)
			for _, next := range dependents[name] {
				waiting[next]--
			}
			progressed = true
		}
		if !progressed {
			var stuck []string
			for _, comp := range d.components {
				if !placed[comp.Name()] {
					stuck = append(stuck, comp.Name())
				}
			}
			return nil, fmt.Errorf("circular dependency among %s", strings.Join(stuck, ", "))
		}
	}
	return order, nil
}

func (d *Daemon) initAll(ctx context.Context, plan []Component) error {
	for _, comp := range plan {
		if err := comp.Init(ctx); err != nil {
			slog.Error("Component initialization failed", "component", comp.Name(), "error", err)
			return fmt.Errorf("component %s init failed: %w", comp.Name(), err)
		}
		d.mu.Lock()
		d.ready = append(d.ready, comp)
		d.mu.Unlock()
		slog.Info("Component initialized", "component", comp.Name())
	}
	return nil
}

func (d *Daemon) startAll(ctx context.Context, plan []Component) error {
	for _, comp := range plan {
		if err := comp.Start(ctx); err != nil {
			slog.Error("Component startup failed", "component", comp.Name(), "error", err)
			return fmt.Errorf("component %s startup failed: %w", comp.Name(), err)
		}
		slog.Info("Component started", "component", comp.Name())
	}
	return nil
}

// stopWithin stops the initialized components, giving up after timeout.
func (d *Daemon) stopWithin(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- d.stopAll(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			slog.Error("Shutdown completed with error", "workspace", d.workspaceID, "error", err)
		} else {
			slog.Info("Shutdown completed", "workspace", d.workspaceID)
		}
		return err
	case <-ctx.Done():
		slog.Error("Shutdown timeout exceeded", "workspace", d.workspaceID, "timeout", timeout)
		return fmt.Errorf("shutdown timeout after %v", timeout)
	}
}

// stopAll stops initialized components newest first. Every component gets
// its Stop call even when an earlier one fails.
func (d *Daemon) stopAll(ctx context.Context) error {
	d.mu.Lock()
	ready := d.ready
	d.ready = nil
	d.mu.Unlock()

	var errs []error
	for i := len(ready) - 1; i >= 0; i-- {
		comp := ready[i]
		if err := comp.Stop(ctx); err != nil {
			slog.Error("Component stop failed", "component", comp.Name(), "error", err)
			errs = append(errs, fmt.Errorf("stop %s: %w", comp.Name(), err))
			continue
		}
		slog.Info("Component stopped", "component", comp.Name())
	}
	d.setStatus(StatusStopped)
	return errors.Join(errs...)
}

// rollback undoes a partial initialization. Stop errors are logged only.
func (d *Daemon) rollback(ctx context.Context) {
	slog.Warn("Rolling back initialized components", "workspace", d.workspaceID)
	if err := d.stopAll(ctx); err != nil {
		slog.Error("Rollback incomplete", "workspace", d.workspaceID, "error", err)
	}
}

func (d *Daemon) monitor(ctx context.Context) {
	interval, err := config.DurationOrDefault(d.cfg.Daemon.HealthCheckInterval, config.DefaultDaemonHealthCheckInterval)
	if err != nil {
		slog.Error("Failed to parse daemon health check interval", "error", err)
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.logUnhealthy(ctx)
		}
	}
}

func (d *Daemon) logUnhealthy(ctx context.Context) {
	healths := d.ComponentHealth(ctx)
	unhealthy := 0
	for name, h := range healths {
		if !h.Healthy {
			unhealthy++
			slog.Warn("Component unhealthy", "component", name, "error", h.Error)
		}
	}
	if unhealthy > 0 {
		slog.Warn("Daemon has unhealthy components", "count", unhealthy, "total", len(healths))
	}
}
