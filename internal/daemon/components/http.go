package components

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/harunnryd/copydesk/internal/config"
	"github.com/harunnryd/copydesk/internal/daemon"
)

const HTTPServerComponentName = "HTTPServer"

// HandlerBuilder returns the API handler. It runs during Init, after every
// dependency is initialized.
type HandlerBuilder func() (http.Handler, error)

type HTTPServerComponent struct {
	cfg          *config.ServerConfig
	build        HandlerBuilder
	dependencies []string
	server       *http.Server
	listener     net.Listener
	shutdownTTL  time.Duration
	initialized  bool
	started      bool
	mu           sync.RWMutex
}

func NewHTTPServerComponent(cfg *config.ServerConfig, build HandlerBuilder) *HTTPServerComponent {
	return NewHTTPServerComponentWithDependencies(cfg, build, []string{StoreComponentName, SessionsComponentName})
}

func NewHTTPServerComponentWithDependencies(cfg *config.ServerConfig, build HandlerBuilder, dependencies []string) *HTTPServerComponent {
	deps := make([]string, len(dependencies))
	copy(deps, dependencies)
	return &HTTPServerComponent{cfg: cfg, build: build, dependencies: deps}
}

func (h *HTTPServerComponent) Name() string {
	return HTTPServerComponentName
}

func (h *HTTPServerComponent) Dependencies() []string {
	out := make([]string, len(h.dependencies))
	copy(out, h.dependencies)
	return out
}

func (h *HTTPServerComponent) Init(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cfg == nil {
		return fmt.Errorf("server config not provided")
	}
	if h.build == nil {
		return fmt.Errorf("handler builder not provided")
	}
	handler, err := h.build()
	if err != nil {
		return fmt.Errorf("build http handler: %w", err)
	}

	readTimeout, err := config.DurationOrDefault(h.cfg.ReadTimeout, config.DefaultServerReadTimeout)
	if err != nil {
		return fmt.Errorf("parse server read timeout: %w", err)
	}
	writeTimeout, err := config.DurationOrDefault(h.cfg.WriteTimeout, config.DefaultServerWriteTimeout)
	if err != nil {
		return fmt.Errorf("parse server write timeout: %w", err)
	}
	idleTimeout, err := config.DurationOrDefault(h.cfg.IdleTimeout, config.DefaultServerIdleTimeout)
	if err != nil {
		return fmt.Errorf("parse server idle timeout: %w", err)
	}
	shutdownTimeout, err := config.DurationOrDefault(h.cfg.ShutdownTimeout, config.DefaultServerShutdownTimeout)
	if err != nil {
		return fmt.Errorf("parse server shutdown timeout: %w", err)
	}

	h.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", h.cfg.Port),
		Handler:      handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
	h.shutdownTTL = shutdownTimeout
	h.initialized = true
	return nil
}

// Start binds the port before returning so address conflicts fail startup.
func (h *HTTPServerComponent) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.initialized {
		return fmt.Errorf("http server not initialized")
	}
	ln, err := net.Listen("tcp", h.server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", h.server.Addr, err)
	}
	h.listener = ln

	server := h.server
	go func() {
		slog.Info("HTTP server listening", "component", h.Name(), "addr", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "component", h.Name(), "error", err)
		}
	}()

	h.started = true
	return nil
}

func (h *HTTPServerComponent) Stop(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.started {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, h.shutdownTTL)
	defer cancel()

	if err := h.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	h.started = false
	return nil
}

func (h *HTTPServerComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	health := &daemon.ComponentHealth{Name: h.Name()}
	switch {
	case !h.initialized:
		health.Error = fmt.Errorf("not initialized")
	case !h.started:
		health.Error = fmt.Errorf("not started")
	default:
		health.Healthy = true
	}
	return health, nil
}

// Addr is the bound listen address, useful when the port is 0.
func (h *HTTPServerComponent) Addr() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.listener == nil {
		return ""
	}
	return h.listener.Addr().String()
}
