package components

import (
	"context"
	"net/http"
	"testing"

	"github.com/harunnryd/copydesk/internal/config"
)

func TestNewHTTPServerComponent_DefaultDependencies(t *testing.T) {
	comp := NewHTTPServerComponent(&config.ServerConfig{Port: 8080}, nil)
	deps := comp.Dependencies()

	want := []string{StoreComponentName, SessionsComponentName}
	if len(deps) != len(want) {
		t.Fatalf("dependencies length = %d, want %d", len(deps), len(want))
	}
	for i := range want {
		if deps[i] != want[i] {
			t.Fatalf("dependency[%d] = %s, want %s", i, deps[i], want[i])
		}
	}
}

func TestNewHTTPServerComponentWithDependencies_Copy(t *testing.T) {
	custom := []string{"Sessions"}
	comp := NewHTTPServerComponentWithDependencies(&config.ServerConfig{Port: 8080}, nil, custom)

	custom[0] = "Mutated"

	deps := comp.Dependencies()
	if len(deps) != 1 || deps[0] != "Sessions" {
		t.Fatalf("dependencies = %v, want [Sessions]", deps)
	}

	deps[0] = "MutatedAgain"
	if comp.Dependencies()[0] != "Sessions" {
		t.Fatal("Dependencies() must return a copy")
	}
}

func TestHTTPServerComponent_InitRequiresBuilder(t *testing.T) {
	comp := NewHTTPServerComponent(&config.ServerConfig{Port: 0}, nil)
	if err := comp.Init(context.Background()); err == nil {
		t.Fatal("expected error without a handler builder")
	}
	if err := comp.Start(context.Background()); err == nil {
		t.Fatal("expected error starting an uninitialized server")
	}
}

func TestHTTPServerComponent_ServesAndStops(t *testing.T) {
	comp := NewHTTPServerComponent(&config.ServerConfig{Port: 0}, func() (http.Handler, error) {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}), nil
	})
	ctx := context.Background()
	if err := comp.Init(ctx); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := comp.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	resp, err := http.Get("http://" + comp.Addr() + "/")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusTeapot {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusTeapot)
	}

	h, _ := comp.Health(ctx)
	if !h.Healthy {
		t.Fatalf("health = %+v, want healthy", h)
	}
	if err := comp.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	h, _ = comp.Health(ctx)
	if h.Healthy {
		t.Fatal("stopped server should be unhealthy")
	}
}
