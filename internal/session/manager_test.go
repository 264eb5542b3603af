package session

import (
	"context"
	"testing"
	"time"

	"github.com/harunnryd/copydesk/internal/config"
	"github.com/harunnryd/copydesk/internal/content"
	"github.com/harunnryd/copydesk/internal/dispatch"
	copyErrors "github.com/harunnryd/copydesk/internal/errors"
	"github.com/harunnryd/copydesk/internal/intent"
	"github.com/harunnryd/copydesk/internal/poller"
	"github.com/harunnryd/copydesk/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, recorder *StoreRecorder, opts ManagerOptions) (*Manager, *scriptedBackend) {
	t.Helper()
	backend := &scriptedBackend{resp: []dispatch.Response{{"content": "Draft"}}}
	factory := func(string) (Deps, error) {
		return Deps{
			Classifier: intent.New(intent.DefaultRules(), content.TagPressRelease),
			Dispatcher: dispatch.New(nil, map[content.Capability]dispatch.Backend{content.CapabilityText: backend}, time.Second),
			Poller:     poller.New(nil, poller.Options{Interval: 10 * time.Millisecond, MaxAttempts: 3}),
		}, nil
	}
	m := NewManager(factory, recorder, opts)
	t.Cleanup(func() { _ = m.Stop(context.Background()) })
	return m, backend
}

func newStoreRecorder(t *testing.T) *StoreRecorder {
	t.Helper()
	w, err := store.NewWorker("test-ws", t.TempDir(), store.RuntimeConfig{})
	require.NoError(t, err)
	w.Start()
	t.Cleanup(w.Stop)
	return NewStoreRecorder(w)
}

func TestManagerCreateGetClose(t *testing.T) {
	m, _ := newTestManager(t, nil, ManagerOptions{})

	s, err := m.Create(context.Background(), nil)
	require.NoError(t, err)

	got, err := m.Get(context.Background(), s.ID())
	require.NoError(t, err)
	assert.Same(t, s, got)
	assert.Equal(t, 1, m.Live())

	require.NoError(t, m.Close(s.ID()))
	assert.Equal(t, 0, m.Live())

	_, err = m.Get(context.Background(), s.ID())
	assert.ErrorIs(t, err, copyErrors.ErrNotFound)
	assert.ErrorIs(t, m.Close(s.ID()), copyErrors.ErrNotFound)
}

func TestManagerSweepClosesIdleSessions(t *testing.T) {
	m, _ := newTestManager(t, nil, ManagerOptions{IdleTTL: time.Minute})

	s, err := m.Create(context.Background(), nil)
	require.NoError(t, err)

	assert.Empty(t, m.Sweep(time.Now()))
	swept := m.Sweep(time.Now().Add(2 * time.Minute))
	assert.Equal(t, []string{s.ID()}, swept)
	assert.Equal(t, 0, m.Live())

	_, err = s.HandleInput(context.Background(), "hello")
	assert.ErrorIs(t, err, copyErrors.ErrClosed)
}

func TestManagerRestoresPersistedSession(t *testing.T) {
	recorder := newStoreRecorder(t)
	m, _ := newTestManager(t, recorder, ManagerOptions{})

	s, err := m.Create(context.Background(), nil)
	require.NoError(t, err)
	turns, err := s.HandleInput(context.Background(), "Write a press release about our funding")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	require.NoError(t, s.SetContentType(context.Background(), content.TagEmail))
	require.NoError(t, m.Close(s.ID()))

	restored, err := m.Get(context.Background(), s.ID())
	require.NoError(t, err)
	snap, err := restored.Snapshot(context.Background())
	require.NoError(t, err)

	require.Len(t, snap.Transcript, 2)
	assert.Equal(t, turns[1].ID, snap.Transcript[1].ID)
	assert.Equal(t, content.TagEmail, snap.ContentType)
	require.Len(t, snap.Items, 1)
	assert.Equal(t, "Draft", snap.Items[0].Payload.Text)

	infos, err := m.List()
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.True(t, infos[0].Live)
	assert.Equal(t, "Write a press release about our funding", infos[0].Title)
}

func TestManagerResumeAppliesOptionsOnRestore(t *testing.T) {
	recorder := newStoreRecorder(t)
	m, _ := newTestManager(t, recorder, ManagerOptions{})

	s, err := m.Create(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, m.Close(s.ID()))

	var seen []Turn
	restored, err := m.Resume(context.Background(), s.ID(), func(o *Options) {
		o.OnTurn = func(t Turn) { seen = append(seen, t) }
	})
	require.NoError(t, err)

	_, err = restored.HandleInput(context.Background(), "Write an email to investors")
	require.NoError(t, err)
	snap, err := restored.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Len(t, seen, len(snap.Transcript))
}

func TestManagerStartRejectsBadSchedule(t *testing.T) {
	m, _ := newTestManager(t, nil, ManagerOptions{SweepSchedule: "not a schedule"})
	assert.Error(t, m.Start(context.Background()))
}

func TestManagerStopClosesSessions(t *testing.T) {
	m, _ := newTestManager(t, nil, ManagerOptions{SweepSchedule: "@every 1h"})
	require.NoError(t, m.Start(context.Background()))

	s, err := m.Create(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, m.Stop(context.Background()))

	_, err = s.HandleInput(context.Background(), "hi")
	assert.ErrorIs(t, err, copyErrors.ErrClosed)
	_, err = m.Create(context.Background(), nil)
	assert.ErrorIs(t, err, copyErrors.ErrClosed)
}

func TestManagerOptionsFromConfig(t *testing.T) {
	opts, err := ManagerOptionsFromConfig(config.SessionConfig{IdleTTL: "30m"})
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, opts.IdleTTL)
	assert.Equal(t, config.DefaultSessionSweepSchedule, opts.SweepSchedule)
	assert.Equal(t, config.DefaultSuggestions, opts.Session.Suggestions)
	assert.NotEmpty(t, opts.Session.Affirmations)

	_, err = ManagerOptionsFromConfig(config.SessionConfig{IdleTTL: "soon"})
	assert.Error(t, err)
}
