package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harunnryd/copydesk/internal/config"
)

// calls records lifecycle calls across components in the order they happen.
type calls struct {
	mu  sync.Mutex
	log []string
}

func (c *calls) add(entry string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = append(c.log, entry)
}

func (c *calls) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.log...)
}

type fakeComponent struct {
	name      string
	deps      []string
	calls     *calls
	initErr   error
	startErr  error
	stopErr   error
	healthErr error
	health    *ComponentHealth
}

func newFake(c *calls, name string, deps ...string) *fakeComponent {
	return &fakeComponent{
		name:   name,
		deps:   deps,
		calls:  c,
		health: &ComponentHealth{Name: name, Healthy: true},
	}
}

func (f *fakeComponent) Name() string           { return f.name }
func (f *fakeComponent) Dependencies() []string { return f.deps }

func (f *fakeComponent) Init(ctx context.Context) error {
	f.calls.add("init:" + f.name)
	return f.initErr
}

func (f *fakeComponent) Start(ctx context.Context) error {
	f.calls.add("start:" + f.name)
	return f.startErr
}

func (f *fakeComponent) Stop(ctx context.Context) error {
	f.calls.add("stop:" + f.name)
	return f.stopErr
}

func (f *fakeComponent) Health(ctx context.Context) (*ComponentHealth, error) {
	return f.health, f.healthErr
}

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	d, err := NewDaemon("test", &config.Config{Server: config.ServerConfig{Port: 8080}})
	require.NoError(t, err)
	return d
}

func TestNewDaemon(t *testing.T) {
	tests := []struct {
		name        string
		workspaceID string
		cfg         *config.Config
		wantErr     bool
	}{
		{name: "valid", workspaceID: "ws", cfg: &config.Config{}},
		{name: "empty workspace ID", workspaceID: "", cfg: &config.Config{}, wantErr: true},
		{name: "nil config", workspaceID: "ws", cfg: nil, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewDaemon(tt.workspaceID, tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, StatusStarting, d.Health())
			assert.Empty(t, d.components)
		})
	}
}

func TestValidateConfig_ResolvesDefaultWorkspaceRoot(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	workspaceID := fmt.Sprintf("test-%d", time.Now().UnixNano())
	d, err := NewDaemon(workspaceID, &config.Config{Server: config.ServerConfig{Port: 8080}})
	require.NoError(t, err)
	require.NoError(t, d.validateConfig())

	_, err = os.Stat(filepath.Join(home, ".copydesk", "workspaces", workspaceID))
	assert.NoError(t, err)
	_, err = os.Stat(workspaceID)
	assert.True(t, os.IsNotExist(err), "workspace must not be created relative to the working directory")
}

func TestValidateConfig_RejectsBadPort(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	d, _ := NewDaemon("test", &config.Config{Server: config.ServerConfig{Port: 70000}})
	assert.Error(t, d.validateConfig())
}

func TestAddComponentReplacesSameName(t *testing.T) {
	d := newTestDaemon(t)
	c := &calls{}
	first := newFake(c, "Store")
	second := newFake(c, "Store")

	d.AddComponent(first)
	d.AddComponent(newFake(c, "Sessions", "Store"))
	d.AddComponent(second)

	require.Len(t, d.components, 2)
	assert.Same(t, second, d.components[0])
}

func TestPlanFollowsDependencies(t *testing.T) {
	d := newTestDaemon(t)
	c := &calls{}
	d.AddComponent(newFake(c, "HTTPServer", "Sessions"))
	d.AddComponent(newFake(c, "Store"))
	d.AddComponent(newFake(c, "Sessions", "Store"))
	d.AddComponent(newFake(c, "Poller"))

	plan, err := d.plan()
	require.NoError(t, err)

	var names []string
	for _, comp := range plan {
		names = append(names, comp.Name())
	}
	assert.Equal(t, []string{"Store", "Sessions", "Poller", "HTTPServer"}, names)
}

func TestPlanRejectsBadGraphs(t *testing.T) {
	t.Run("cycle", func(t *testing.T) {
		d := newTestDaemon(t)
		c := &calls{}
		d.AddComponent(newFake(c, "A", "B"))
		d.AddComponent(newFake(c, "B", "A"))
		d.AddComponent(newFake(c, "C"))

		_, err := d.plan()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "A, B")
	})

	t.Run("missing dependency", func(t *testing.T) {
		d := newTestDaemon(t)
		d.AddComponent(newFake(&calls{}, "A", "Nope"))

		_, err := d.plan()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Nope")
	})
}

func TestRollbackStopsOnlyInitializedComponents(t *testing.T) {
	d := newTestDaemon(t)
	c := &calls{}
	store := newFake(c, "Store")
	sessions := newFake(c, "Sessions", "Store")
	sessions.initErr = errors.New("init failed")
	d.AddComponent(store)
	d.AddComponent(sessions)
	d.AddComponent(newFake(c, "HTTPServer", "Sessions"))

	err := d.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "init failed")
	assert.Equal(t, []string{"init:Store", "init:Sessions", "stop:Store"}, c.snapshot())
	assert.Equal(t, StatusStopped, d.Health())
}

func TestStopAllRunsNewestFirstAndJoinsErrors(t *testing.T) {
	d := newTestDaemon(t)
	c := &calls{}
	store := newFake(c, "Store")
	sessions := newFake(c, "Sessions", "Store")
	sessions.stopErr = errors.New("boom")
	d.AddComponent(store)
	d.AddComponent(sessions)

	plan, err := d.plan()
	require.NoError(t, err)
	require.NoError(t, d.initAll(context.Background(), plan))

	err = d.stopAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, []string{"init:Store", "init:Sessions", "stop:Sessions", "stop:Store"}, c.snapshot())
	assert.Equal(t, StatusStopped, d.Health())

	assert.NoError(t, d.stopAll(context.Background()), "a second stop has nothing left to stop")
}

func TestComponentHealth(t *testing.T) {
	d := newTestDaemon(t)
	c := &calls{}
	ok := newFake(c, "Store")
	bad := newFake(c, "Sessions")
	bad.health.Healthy = false
	bad.health.Error = errors.New("actor stalled")
	failing := newFake(c, "HTTPServer")
	failing.health = nil
	failing.healthErr = errors.New("listener closed")
	d.AddComponent(ok)
	d.AddComponent(bad)
	d.AddComponent(failing)

	healths := d.ComponentHealth(context.Background())
	require.Len(t, healths, 3)
	assert.True(t, healths["Store"].Healthy)
	assert.False(t, healths["Sessions"].Healthy)
	assert.EqualError(t, healths["Sessions"].Error, "actor stalled")
	assert.Equal(t, "HTTPServer", healths["HTTPServer"].Name)
	assert.EqualError(t, healths["HTTPServer"].Error, "listener closed")
}

func TestHealthErrors(t *testing.T) {
	d := newTestDaemon(t)
	c := &calls{}
	bad := newFake(c, "Sessions")
	bad.health.Healthy = false
	d.AddComponent(newFake(c, "Store"))
	d.AddComponent(bad)

	errs := d.HealthErrors(context.Background())
	assert.NoError(t, errs["Store"])
	assert.EqualError(t, errs["Sessions"], "unhealthy")
	assert.EqualError(t, errs["daemon"], "daemon is starting")

	d.setStatus(StatusRunning)
	errs = d.HealthErrors(context.Background())
	assert.Contains(t, errs, "daemon")
	assert.NoError(t, errs["daemon"])
}

func TestStartStopsOnContextCancel(t *testing.T) {
	d := newTestDaemon(t)
	c := &calls{}
	d.AddComponent(newFake(c, "Sessions", "Store"))
	d.AddComponent(newFake(c, "Store"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	require.Eventually(t, func() bool { return d.Health() == StatusRunning }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
	assert.Equal(t, []string{
		"init:Store", "init:Sessions",
		"start:Store", "start:Sessions",
		"stop:Sessions", "stop:Store",
	}, c.snapshot())
	assert.Equal(t, StatusStopped, d.Health())
}

func TestStartStopsEverythingWhenAStartFails(t *testing.T) {
	d := newTestDaemon(t)
	c := &calls{}
	server := newFake(c, "HTTPServer", "Store")
	server.startErr = errors.New("address in use")
	d.AddComponent(newFake(c, "Store"))
	d.AddComponent(server)

	err := d.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address in use")
	assert.Equal(t, []string{
		"init:Store", "init:HTTPServer",
		"start:Store", "start:HTTPServer",
		"stop:HTTPServer", "stop:Store",
	}, c.snapshot())
}
