package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/copydesk/internal/config"
	"github.com/harunnryd/copydesk/internal/content"
	copyErrors "github.com/harunnryd/copydesk/internal/errors"
	"github.com/harunnryd/copydesk/internal/logger"
	"github.com/sourcegraph/conc"
)

// Job identifies an async generation to watch.
type Job struct {
	ID          string
	Capability  content.Capability
	ContentType content.Tag
	Prompt      string
}

// Outcome is delivered exactly once per watched job, unless the poller is
// closed first.
type Outcome struct {
	Job      Job
	State    State
	Item     *content.Item
	Err      error
	Attempts int
}

type Options struct {
	Interval       time.Duration
	MaxAttempts    int
	RequestTimeout time.Duration
}

func OptionsFromConfig(cfg config.PollerConfig) (Options, error) {
	interval, err := config.DurationOrDefault(cfg.Interval, config.DefaultPollerInterval)
	if err != nil {
		return Options{}, fmt.Errorf("invalid poller.interval: %w", err)
	}
	requestTimeout, err := config.DurationOrDefault(cfg.RequestTimeout, config.DefaultPollerRequestTimeout)
	if err != nil {
		return Options{}, fmt.Errorf("invalid poller.request_timeout: %w", err)
	}
	opts := Options{
		Interval:       interval,
		MaxAttempts:    cfg.MaxAttempts,
		RequestTimeout: requestTimeout,
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = config.DefaultPollerMaxAttempts
	}
	return opts, nil
}

// Poller runs one status loop per in-flight job id.
type Poller struct {
	opts    Options
	sources map[content.Capability]StatusSource

	ctx    context.Context
	cancel context.CancelFunc
	wg     conc.WaitGroup

	mu       sync.Mutex
	inflight map[string]*watch
	closed   bool
}

type watch struct {
	job Job
}

func New(sources map[content.Capability]StatusSource, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = 3 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = config.DefaultPollerMaxAttempts
	}
	copied := make(map[content.Capability]StatusSource, len(sources))
	for k, v := range sources {
		if v != nil {
			copied[k] = v
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Poller{
		opts:     opts,
		sources:  copied,
		ctx:      ctx,
		cancel:   cancel,
		inflight: make(map[string]*watch),
	}
}

// Poll starts watching job. It returns false without side effects when the
// job is already being watched, when the poller is closed, or when no source
// serves the job's capability.
func (p *Poller) Poll(job Job, onTerminal func(Outcome)) bool {
	source, ok := p.sources[job.Capability]
	if !ok {
		slog.Warn("No status source for capability", "capability", job.Capability, "job_id", job.ID)
		return false
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	if _, dup := p.inflight[job.ID]; dup {
		p.mu.Unlock()
		slog.Debug("Job already being polled", "job_id", job.ID)
		return false
	}
	ctx, cancel := context.WithCancel(p.ctx)
	w := &watch{job: job}
	p.inflight[job.ID] = w
	p.wg.Go(func() {
		defer cancel()
		p.loop(ctx, w, source, job, onTerminal)
	})
	p.mu.Unlock()

	slog.Info("Polling job", "job_id", job.ID, "capability", job.Capability, "interval", p.opts.Interval, "max_attempts", p.opts.MaxAttempts)
	return true
}

// Close cancels every loop and waits for them to exit. No callback runs
// after Close returns.
func (p *Poller) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	if r := p.wg.WaitAndRecover(); r != nil {
		slog.Error("Poll loop panicked", "error", r.AsError())
	}

	p.mu.Lock()
	p.inflight = make(map[string]*watch)
	p.mu.Unlock()
}

func (p *Poller) loop(ctx context.Context, w *watch, source StatusSource, job Job, onTerminal func(Outcome)) {
	ctx = logger.WithJobID(ctx, job.ID)
	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		attempts++
		status, err := p.check(ctx, source, job.ID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("Job status check failed", append([]any{"attempt", attempts, "error", err}, logger.Attrs(ctx)...)...)
		} else {
			switch status.State {
			case StateCompleted:
				p.deliver(ctx, w, onTerminal, completed(job, status, attempts))
				return
			case StateFailed:
				p.deliver(ctx, w, onTerminal, failed(job, status, attempts))
				return
			}
		}

		if attempts >= p.opts.MaxAttempts {
			p.deliver(ctx, w, onTerminal, Outcome{
				Job:      job,
				State:    StateTimedOut,
				Err:      fmt.Errorf("stopped polling after %d attempts: %w", attempts, copyErrors.ErrJobTimedOut),
				Attempts: attempts,
			})
			return
		}
	}
}

func (p *Poller) check(ctx context.Context, source StatusSource, jobID string) (JobStatus, error) {
	if p.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.RequestTimeout)
		defer cancel()
	}
	return source.Status(ctx, jobID)
}

func (p *Poller) deliver(ctx context.Context, w *watch, onTerminal func(Outcome), out Outcome) {
	p.mu.Lock()
	if p.inflight[out.Job.ID] == w {
		delete(p.inflight, out.Job.ID)
	}
	p.mu.Unlock()

	if ctx.Err() != nil {
		return
	}
	slog.Info("Job reached terminal state", append([]any{"state", out.State, "attempts", out.Attempts}, logger.Attrs(ctx)...)...)
	if onTerminal != nil {
		onTerminal(out)
	}
}

func completed(job Job, status JobStatus, attempts int) Outcome {
	if status.ArtifactURL == "" {
		return Outcome{
			Job:      job,
			State:    StateFailed,
			Err:      fmt.Errorf("job completed without an artifact: %w", copyErrors.ErrJobFailed),
			Attempts: attempts,
		}
	}
	item := content.NewItem(job.ContentType, content.Payload{
		Media: &content.Media{URL: status.ArtifactURL, Kind: mediaKind(job.Capability)},
	}, job.Prompt)
	return Outcome{Job: job, State: StateCompleted, Item: &item, Attempts: attempts}
}

func failed(job Job, status JobStatus, attempts int) Outcome {
	reason := status.Error
	if reason == "" {
		reason = "generation failed"
	}
	return Outcome{
		Job:      job,
		State:    StateFailed,
		Err:      fmt.Errorf("%s: %w", reason, copyErrors.ErrJobFailed),
		Attempts: attempts,
	}
}

func mediaKind(c content.Capability) content.MediaKind {
	switch c {
	case content.CapabilityVideo:
		return content.MediaVideo
	case content.CapabilityPresentation:
		return content.MediaPresentation
	default:
		return content.MediaImage
	}
}
