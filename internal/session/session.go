// Package session implements the conversation state machine. One loop
// goroutine per session owns the transcript, mode, jobs and items; the
// dispatcher, guide, poller and library run elsewhere and post their
// results back to that loop.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harunnryd/copydesk/internal/concurrency"
	"github.com/harunnryd/copydesk/internal/content"
	"github.com/harunnryd/copydesk/internal/dispatch"
	copyErrors "github.com/harunnryd/copydesk/internal/errors"
	"github.com/harunnryd/copydesk/internal/guide"
	"github.com/harunnryd/copydesk/internal/logger"
	"github.com/harunnryd/copydesk/internal/poller"
	"github.com/harunnryd/copydesk/internal/store"
	"github.com/harunnryd/copydesk/internal/vault"
	"github.com/oklog/ulid/v2"
)

type Classifier interface {
	Classify(text string) content.Tag
}

type Dispatcher interface {
	Route(tag content.Tag) dispatch.Route
	Dispatch(ctx context.Context, tag content.Tag, prompt string, bag dispatch.Context) dispatch.Result
}

// JobWatcher is owned by the session and closed with it.
type JobWatcher interface {
	Poll(job poller.Job, onTerminal func(poller.Outcome)) bool
	Close()
}

// Recorder persists turns and session metadata.
type Recorder interface {
	Record(sessionID string, turn Turn) error
	SaveMeta(meta store.SessionMeta) error
}

// Deps are the collaborators of one session. Guide, Sink and Recorder are
// optional.
type Deps struct {
	Classifier Classifier
	Dispatcher Dispatcher
	Poller     JobWatcher
	Guide      guide.Guide
	Sink       vault.Sink
	Recorder   Recorder
}

type Options struct {
	Context      dispatch.Context
	Suggestions  []string
	Affirmations []string
	AutoSave     bool
	InboxSize    int
	// OnTurn and OnContent run on the session loop and must not block.
	OnTurn    func(Turn)
	OnContent func(content.Item)
	// Restore seeds a session loaded from the store.
	Restore *Restore
}

type Restore struct {
	Meta       store.SessionMeta
	Transcript []Turn
}

// Input is one user message. ContentType, when set, bypasses the classifier.
type Input struct {
	Text        string
	ContentType content.Tag
}

type Session struct {
	id   string
	deps Deps
	opts Options

	affirm Affirmations

	ctx    context.Context
	cancel context.CancelFunc
	inbox  chan func()
	done   chan struct{}
	work   sync.WaitGroup

	closeOnce  sync.Once
	lastActive atomic.Int64
	pending    atomic.Int32

	// Loop-owned state. Never touched outside closures run by loop.
	state *state
}

type state struct {
	mode        Mode
	contentType content.Tag
	transcript  []Turn
	jobs        map[string]*Job
	jobOrder    []string
	items       map[string]*content.Item
	receipts    map[string]vault.Receipt
	staged      *guide.Plan
	guideTag    content.Tag
	brief       []string
	createdAt   time.Time
	updatedAt   time.Time
	title       string

	busy  bool
	queue []*pendingInput
}

type pendingInput struct {
	ctx   context.Context
	input Input
	turns []Turn
	reply chan []Turn
}

func New(id string, deps Deps, opts Options) (*Session, error) {
	if deps.Classifier == nil || deps.Dispatcher == nil || deps.Poller == nil {
		return nil, copyErrors.InvalidInput("session needs a classifier, dispatcher and poller")
	}
	if id == "" {
		id = ulid.Make().String()
	}
	if opts.InboxSize <= 0 {
		opts.InboxSize = 64
	}

	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()
	s := &Session{
		id:     id,
		deps:   deps,
		opts:   opts,
		affirm: NewAffirmations(opts.Affirmations),
		ctx:    logger.WithSessionID(ctx, id),
		cancel: cancel,
		inbox:  make(chan func(), opts.InboxSize),
		done:   make(chan struct{}),
		state: &state{
			mode:      ModeIdle,
			jobs:      make(map[string]*Job),
			items:     make(map[string]*content.Item),
			receipts:  make(map[string]vault.Receipt),
			createdAt: now,
			updatedAt: now,
		},
	}
	s.lastActive.Store(now.UnixNano())

	if opts.Restore != nil {
		s.restore(*opts.Restore)
	}

	go s.run()
	return s, nil
}

func (s *Session) ID() string { return s.id }

// LastActive is the time of the last input or state change.
func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

// PendingJobs counts async jobs still being watched.
func (s *Session) PendingJobs() int {
	return int(s.pending.Load())
}

func (s *Session) run() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case fn := <-s.inbox:
			fn()
		}
	}
}

// post queues fn for the loop. It fails once the session is closed.
func (s *Session) post(fn func()) error {
	select {
	case <-s.ctx.Done():
		return copyErrors.Closed("session closed")
	default:
	}
	select {
	case s.inbox <- fn:
		return nil
	case <-s.ctx.Done():
		return copyErrors.Closed("session closed")
	}
}

// call runs fn on the loop and waits for it.
func (s *Session) call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if err := s.post(func() { fn(); close(done) }); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return copyErrors.Closed("session closed")
	}
}

// HandleInput runs one user message through the state machine and returns
// the turns it produced: the user turn plus the assistant response. Async
// completions arrive later through OnTurn and the transcript.
func (s *Session) HandleInput(ctx context.Context, text string) ([]Turn, error) {
	return s.Submit(ctx, Input{Text: text})
}

func (s *Session) Submit(ctx context.Context, in Input) ([]Turn, error) {
	s.touch()
	p := &pendingInput{ctx: ctx, input: in, reply: make(chan []Turn, 1)}
	if err := s.post(func() { s.accept(p) }); err != nil {
		return nil, err
	}
	select {
	case turns := <-p.reply:
		return turns, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, copyErrors.Closed("session closed")
	}
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.call(ctx, func() { snap = s.snapshot() })
	return snap, err
}

// SetContentType makes tag the sticky selection; an empty tag clears it.
func (s *Session) SetContentType(ctx context.Context, tag content.Tag) error {
	return s.call(ctx, func() {
		s.state.contentType = tag
		s.saveMeta()
	})
}

// SetMode forces the conversation mode. Leaving an approval mode drops the
// staged plan.
func (s *Session) SetMode(ctx context.Context, mode Mode) error {
	return s.call(ctx, func() {
		s.setMode(mode)
		s.saveMeta()
	})
}

// Reset clears the in-memory transcript and returns to idle. Jobs keep
// running and land in the fresh transcript.
func (s *Session) Reset(ctx context.Context) error {
	return s.call(ctx, func() {
		s.state.transcript = nil
		s.setMode(ModeIdle)
		s.saveMeta()
	})
}

// Save stores a generated item in the library and marks it saved.
func (s *Session) Save(ctx context.Context, itemID string, meta vault.Metadata) (vault.Receipt, error) {
	if s.deps.Sink == nil {
		return vault.Receipt{}, copyErrors.InvalidInput("no content library configured")
	}

	type result struct {
		receipt vault.Receipt
		err     error
	}
	reply := make(chan result, 1)

	err := s.post(func() {
		item, ok := s.state.items[itemID]
		if !ok {
			reply <- result{err: copyErrors.NotFound(fmt.Sprintf("content item %s", itemID))}
			return
		}
		if r, ok := s.state.receipts[itemID]; ok {
			r.Duplicate = true
			reply <- result{receipt: r}
			return
		}
		s.saveAsync(item.Clone(), meta, func(r vault.Receipt, err error) {
			reply <- result{receipt: r, err: err}
		})
	})
	if err != nil {
		return vault.Receipt{}, err
	}

	select {
	case r := <-reply:
		return r.receipt, r.err
	case <-ctx.Done():
		return vault.Receipt{}, ctx.Err()
	case <-s.done:
		return vault.Receipt{}, copyErrors.Closed("session closed")
	}
}

// Close tears the session down: in-flight calls are cancelled, poll loops
// stop without delivering, and later calls fail with a closed error.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.deps.Poller.Close()
		<-s.done
		s.work.Wait()
		slog.Info("Session closed", logger.Attrs(s.ctx)...)
	})
}

func (s *Session) touch() {
	s.lastActive.Store(time.Now().UnixNano())
}

// goWork runs fn off the loop and posts its continuation back.
func (s *Session) goWork(ctx context.Context, name string, fn func(ctx context.Context) func(), onPanic func(err error) func()) {
	s.work.Add(1)
	concurrency.SafeGo(ctx, name, func(ctx context.Context) {
		defer s.work.Done()
		next := fn(ctx)
		if next != nil {
			_ = s.post(next)
		}
	}, func(err error) {
		if onPanic != nil {
			_ = s.post(onPanic(err))
		}
	})
}
