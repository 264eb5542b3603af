package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/harunnryd/copydesk/internal/config"
	copyErrors "github.com/harunnryd/copydesk/internal/errors"
	"github.com/oklog/ulid/v2"
	"github.com/robfig/cron/v3"
)

// Factory builds fresh collaborators for one session. Each session gets its
// own poller so teardown stops only that session's loops.
type Factory func(sessionID string) (Deps, error)

type ManagerOptions struct {
	Session       Options
	IdleTTL       time.Duration
	SweepSchedule string
	RestoreLimit  int
}

func ManagerOptionsFromConfig(cfg config.SessionConfig) (ManagerOptions, error) {
	idle, err := config.DurationOrDefault(cfg.IdleTTL, config.DefaultSessionIdleTTL)
	if err != nil {
		return ManagerOptions{}, fmt.Errorf("invalid session.idle_ttl: %w", err)
	}
	schedule := cfg.SweepSchedule
	if schedule == "" {
		schedule = config.DefaultSessionSweepSchedule
	}
	suggestions := cfg.Suggestions
	if len(suggestions) == 0 {
		suggestions = config.DefaultSuggestions
	}
	phrases := cfg.AffirmativePhrases
	if len(phrases) == 0 {
		phrases = config.DefaultAffirmativePhrases
	}
	inbox := cfg.InboxSize
	if inbox <= 0 {
		inbox = config.DefaultSessionInboxSize
	}
	return ManagerOptions{
		Session: Options{
			Suggestions:  append([]string(nil), suggestions...),
			Affirmations: append([]string(nil), phrases...),
			AutoSave:     cfg.AutoSave,
			InboxSize:    inbox,
		},
		IdleTTL:       idle,
		SweepSchedule: schedule,
	}, nil
}

// Info describes a live or persisted session.
type Info struct {
	ID          string    `json:"id"`
	Title       string    `json:"title,omitempty"`
	Mode        string    `json:"mode,omitempty"`
	Status      string    `json:"status"`
	Live        bool      `json:"live"`
	PendingJobs int       `json:"pending_jobs"`
	TurnCount   int       `json:"turn_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Manager is the registry of live sessions.
type Manager struct {
	factory  Factory
	recorder *StoreRecorder
	opts     ManagerOptions

	mu       sync.Mutex
	sessions map[string]*Session
	cron     *cron.Cron
	closed   bool
}

func NewManager(factory Factory, recorder *StoreRecorder, opts ManagerOptions) *Manager {
	return &Manager{
		factory:  factory,
		recorder: recorder,
		opts:     opts,
		sessions: make(map[string]*Session),
	}
}

// Create starts a new session. configure may adjust the per-session options.
func (m *Manager) Create(ctx context.Context, configure func(*Options)) (*Session, error) {
	return m.open(ulid.Make().String(), nil, configure)
}

// Get returns a live session, restoring it from the store when needed.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	return m.Resume(ctx, id, nil)
}

// Resume is Get with per-session options applied when the session has to be
// restored. A session that is already live keeps its options.
func (m *Manager) Resume(ctx context.Context, id string, configure func(*Options)) (*Session, error) {
	m.mu.Lock()
	if s, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	if m.recorder == nil {
		return nil, copyErrors.NotFound(fmt.Sprintf("session %s", id))
	}
	restore, err := m.recorder.Load(id, m.opts.RestoreLimit)
	if err != nil {
		return nil, err
	}
	return m.open(id, restore, configure)
}

func (m *Manager) open(id string, restore *Restore, configure func(*Options)) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, copyErrors.Closed("session manager closed")
	}
	if s, ok := m.sessions[id]; ok {
		return s, nil
	}

	deps, err := m.factory(id)
	if err != nil {
		return nil, fmt.Errorf("build session deps: %w", err)
	}
	if deps.Recorder == nil && m.recorder != nil {
		deps.Recorder = m.recorder
	}

	opts := m.opts.Session
	opts.Context = m.opts.Session.Context.Clone()
	opts.Restore = restore
	if configure != nil {
		configure(&opts)
	}

	s, err := New(id, deps, opts)
	if err != nil {
		deps.Poller.Close()
		return nil, err
	}
	m.sessions[id] = s
	slog.Info("Session opened", "session_id", id, "restored", restore != nil)
	return s, nil
}

// Close tears one session down.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return copyErrors.NotFound(fmt.Sprintf("session %s", id))
	}
	m.teardown(s)
	return nil
}

func (m *Manager) teardown(s *Session) {
	s.Close()
	if m.recorder != nil {
		if err := m.recorder.MarkClosed(s.ID()); err != nil {
			slog.Warn("Failed to mark session closed", "session_id", s.ID(), "error", err)
		}
	}
}

// List merges persisted sessions with the live ones.
func (m *Manager) List() ([]Info, error) {
	byID := map[string]Info{}
	if m.recorder != nil {
		metas, err := m.recorder.List()
		if err != nil {
			return nil, err
		}
		for _, meta := range metas {
			byID[meta.ID] = Info{
				ID:        meta.ID,
				Title:     meta.Title,
				Mode:      meta.Mode,
				Status:    meta.Status,
				TurnCount: meta.TurnCount,
				UpdatedAt: meta.UpdatedAt,
			}
		}
	}

	m.mu.Lock()
	for id, s := range m.sessions {
		info := byID[id]
		info.ID = id
		info.Live = true
		info.Status = "active"
		info.PendingJobs = s.PendingJobs()
		if last := s.LastActive(); last.After(info.UpdatedAt) {
			info.UpdatedAt = last
		}
		byID[id] = info
	}
	m.mu.Unlock()

	out := make([]Info, 0, len(byID))
	for _, info := range byID {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// Sweep closes sessions idle longer than the TTL with no job in flight.
func (m *Manager) Sweep(now time.Time) []string {
	if m.opts.IdleTTL <= 0 {
		return nil
	}
	var idle []*Session
	m.mu.Lock()
	for id, s := range m.sessions {
		if s.PendingJobs() == 0 && now.Sub(s.LastActive()) > m.opts.IdleTTL {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	ids := make([]string, 0, len(idle))
	for _, s := range idle {
		m.teardown(s)
		ids = append(ids, s.ID())
	}
	if len(ids) > 0 {
		slog.Info("Idle sessions swept", "count", len(ids))
	}
	return ids
}

// Start schedules the idle sweep.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cron != nil || m.opts.SweepSchedule == "" {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(m.opts.SweepSchedule, func() { m.Sweep(time.Now()) }); err != nil {
		return fmt.Errorf("invalid session.sweep_schedule %q: %w", m.opts.SweepSchedule, err)
	}
	c.Start()
	m.cron = c
	slog.Info("Session sweep scheduled", "schedule", m.opts.SweepSchedule, "idle_ttl", m.opts.IdleTTL)
	return nil
}

// Stop ends the sweep and closes every live session.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	c := m.cron
	m.cron = nil
	m.closed = true
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	for _, s := range sessions {
		m.teardown(s)
	}
	return nil
}

// Live counts open sessions.
func (m *Manager) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
