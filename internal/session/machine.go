package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

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

type step int

const (
	stepDispatch step = iota
	stepGuide
	stepExecutePlan
)

type decision struct {
	step   step
	tag    content.Tag
	prompt string
}

// accept queues p behind any input still being worked on, so each input
// sees the mode left by the one before it.
func (s *Session) accept(p *pendingInput) {
	if s.state.busy {
		s.state.queue = append(s.state.queue, p)
		return
	}
	s.start(p)
}

func (s *Session) start(p *pendingInput) {
	if p.ctx.Err() != nil {
		s.next()
		return
	}
	st := s.state
	st.busy = true

	text := strings.TrimSpace(p.input.Text)
	if st.title == "" && text != "" {
		st.title = truncate(text, 60)
	}
	// History is taken before the user turn lands.
	history := s.guideHistory()
	p.turns = append(p.turns, s.appendTurn(Turn{Role: RoleUser, Kind: KindMessage, Text: p.input.Text, ContentType: p.input.ContentType}))

	d := s.decide(p.input)
	ctx := s.ctx
	if id := logger.GetTraceID(p.ctx); id != "" {
		ctx = logger.WithTraceID(ctx, id)
	}
	slog.Info("Handling input", append([]any{"mode", st.mode, "content_type", d.tag, "step", d.step}, logger.Attrs(ctx)...)...)

	bag := s.opts.Context.Clone()
	switch d.step {
	case stepExecutePlan:
		if bag == nil {
			bag = dispatch.Context{}
		}
		bag["approved"] = true
		s.runDispatch(ctx, p, d, bag)
	case stepGuide:
		s.runGuide(ctx, p, d, history, bag)
	default:
		s.runDispatch(ctx, p, d, bag)
	}
}

// decide routes one input. Affirmations of a staged plan are checked first
// and never reach the classifier.
func (s *Session) decide(in Input) decision {
	st := s.state
	if st.mode.awaitingApproval() && s.affirm.Match(in.Text) {
		if plan := s.stagedPlan(); plan != nil {
			return decision{step: stepExecutePlan, tag: plan.ContentType, prompt: plan.Prompt}
		}
	}

	if st.mode == ModeAwaitingAnswer && s.deps.Guide != nil {
		tag := st.guideTag
		if tag == "" {
			tag = s.selectTag(in)
		}
		st.brief = append(st.brief, strings.TrimSpace(in.Text))
		return decision{step: stepGuide, tag: tag, prompt: in.Text}
	}

	tag := s.selectTag(in)
	if s.deps.Guide != nil && s.deps.Dispatcher.Route(tag).Guided {
		st.guideTag = tag
		st.brief = []string{strings.TrimSpace(in.Text)}
		return decision{step: stepGuide, tag: tag, prompt: in.Text}
	}
	return decision{step: stepDispatch, tag: tag, prompt: in.Text}
}

// selectTag prefers the per-input selection, then the sticky one, then the
// classifier.
func (s *Session) selectTag(in Input) content.Tag {
	if in.ContentType != "" {
		return in.ContentType
	}
	if s.state.contentType != "" {
		return s.state.contentType
	}
	return s.deps.Classifier.Classify(in.Text)
}

func (s *Session) stagedPlan() *guide.Plan {
	st := s.state
	if st.staged != nil && st.staged.Prompt != "" {
		plan := *st.staged
		return &plan
	}
	if st.guideTag != "" && len(st.brief) > 0 {
		return &guide.Plan{ContentType: st.guideTag, Prompt: strings.Join(st.brief, "\n")}
	}
	return nil
}

func (s *Session) runDispatch(ctx context.Context, p *pendingInput, d decision, bag dispatch.Context) {
	s.goWork(ctx, "dispatch", func(ctx context.Context) func() {
		res := s.deps.Dispatcher.Dispatch(ctx, d.tag, d.prompt, bag)
		return func() {
			p.turns = append(p.turns, s.applyResult(d.tag, d.prompt, res)...)
			s.complete(p)
		}
	}, func(err error) func() {
		return func() {
			p.turns = append(p.turns, s.applyResult(d.tag, d.prompt, dispatch.Result{
				Kind: dispatch.KindFailure,
				Err:  copyErrors.Internal(err.Error()),
			})...)
			s.complete(p)
		}
	})
}

func (s *Session) runGuide(ctx context.Context, p *pendingInput, d decision, history []guide.Turn, bag dispatch.Context) {
	req := guide.Request{ContentType: d.tag, Message: d.prompt, History: history, Context: bag}
	s.goWork(ctx, "guide", func(workCtx context.Context) func() {
		reply, err := s.deps.Guide.Converse(workCtx, req)
		var res *dispatch.Result
		tag := d.tag
		if err == nil && wantsGeneration(reply.Mode) && reply.Plan != nil && reply.Plan.Prompt != "" {
			if reply.Plan.ContentType != "" {
				tag = reply.Plan.ContentType
			}
			r := s.deps.Dispatcher.Dispatch(workCtx, tag, reply.Plan.Prompt, bag)
			res = &r
		}
		return func() {
			p.turns = append(p.turns, s.applyGuide(d.tag, reply, err)...)
			if res != nil {
				p.turns = append(p.turns, s.applyResult(tag, reply.Plan.Prompt, *res)...)
			}
			s.complete(p)
		}
	}, func(err error) func() {
		return func() {
			p.turns = append(p.turns, s.applyGuide(d.tag, guide.Reply{}, copyErrors.Internal(err.Error()))...)
			s.complete(p)
		}
	})
}

// complete answers the waiting caller and starts the next queued input.
func (s *Session) complete(p *pendingInput) {
	p.reply <- cloneTurns(p.turns)
	s.state.busy = false
	s.saveMeta()
	s.next()
}

func (s *Session) next() {
	st := s.state
	if st.busy || len(st.queue) == 0 {
		return
	}
	p := st.queue[0]
	st.queue = st.queue[1:]
	s.start(p)
}

// applyGuide appends the guide's reply and moves the mode. An explicit
// directive always wins; the "?" heuristic runs only without one.
func (s *Session) applyGuide(tag content.Tag, reply guide.Reply, err error) []Turn {
	if err != nil {
		slog.Error("Guide call failed", append([]any{"error", err, "category", copyErrors.Category(err)}, logger.Attrs(s.ctx)...)...)
		return []Turn{s.appendTurn(Turn{
			Role:        RoleAssistant,
			Kind:        KindError,
			Text:        failureText(tag, err),
			ContentType: tag,
		})}
	}

	turn := s.appendTurn(Turn{Role: RoleAssistant, Kind: KindMessage, Text: reply.Message, ContentType: tag})

	mode, explicit := modeFromDirective(reply.Mode)
	if !explicit {
		mode = modeFromText(reply.Message, reply.AwaitingResponse)
	}
	if wantsGeneration(reply.Mode) && reply.Plan != nil && reply.Plan.Prompt != "" {
		// The generation result decides the final mode.
		return []Turn{turn}
	}

	s.setMode(mode)
	if mode != ModeIdle && s.state.guideTag == "" {
		s.state.guideTag = tag
	}
	if mode.awaitingApproval() && reply.Plan != nil {
		plan := *reply.Plan
		if plan.ContentType == "" {
			plan.ContentType = tag
		}
		if plan.Prompt == "" {
			plan.Prompt = strings.Join(s.state.brief, "\n")
		}
		s.state.staged = &plan
	}
	return []Turn{turn}
}

// applyResult turns one dispatch result into exactly one assistant turn.
func (s *Session) applyResult(tag content.Tag, prompt string, res dispatch.Result) []Turn {
	switch res.Kind {
	case dispatch.KindSync:
		if res.Item == nil {
			return s.applyResult(tag, prompt, dispatch.Result{Kind: dispatch.KindFailure, Capability: res.Capability, Err: copyErrors.Backend("empty result")})
		}
		item := res.Item.Clone()
		s.state.items[item.ID] = &item
		turn := s.appendTurn(Turn{
			Role:        RoleAssistant,
			Kind:        KindContent,
			Text:        contentText(item, res.Message),
			Item:        &item,
			ContentType: item.ContentType,
			Caveat:      res.Caveat,
			Suggestions: append([]string(nil), s.opts.Suggestions...),
		})

		if mode, ok := modeFromDirective(res.Directive); ok && mode != ModeIdle {
			s.setMode(mode)
			if mode.awaitingApproval() {
				s.state.staged = &guide.Plan{ContentType: tag, Prompt: prompt}
			}
		} else {
			s.setMode(ModeIdle)
		}
		s.produced(item)
		return []Turn{turn}

	case dispatch.KindAsyncStarted:
		s.setMode(ModeIdle)
		return []Turn{s.startJob(tag, prompt, res)}

	default:
		err := res.Err
		if err == nil {
			err = copyErrors.Backend("generation failed")
		}
		slog.Error("Dispatch failed", append([]any{"content_type", tag, "error", err, "category", copyErrors.Category(err)}, logger.Attrs(s.ctx)...)...)
		return []Turn{s.appendTurn(Turn{
			Role:        RoleAssistant,
			Kind:        KindError,
			Text:        failureText(tag, err),
			ContentType: tag,
		})}
	}
}

func (s *Session) startJob(tag content.Tag, prompt string, res dispatch.Result) Turn {
	job := poller.Job{ID: res.JobID, Capability: res.Capability, ContentType: tag, Prompt: prompt}
	if _, known := s.state.jobs[job.ID]; known {
		return s.appendTurn(Turn{
			Role:        RoleAssistant,
			Kind:        KindGenerating,
			Text:        fmt.Sprintf("Your %s is already being generated.", tag.Label()),
			JobID:       job.ID,
			Capability:  job.Capability,
			ContentType: tag,
		})
	}

	if !s.watch(job) {
		return s.appendTurn(Turn{
			Role:        RoleAssistant,
			Kind:        KindAdvisory,
			Text:        fmt.Sprintf("Your %s generation has started, but I can't track its progress here. Check back in a few minutes.", tag.Label()),
			JobID:       job.ID,
			Capability:  job.Capability,
			ContentType: tag,
		})
	}

	text := res.Message
	if text == "" {
		text = fmt.Sprintf("Generating your %s. I'll post it here as soon as it's ready.", tag.Label())
	}
	return s.appendTurn(Turn{
		Role:        RoleAssistant,
		Kind:        KindGenerating,
		Text:        text,
		JobID:       job.ID,
		Capability:  job.Capability,
		ContentType: tag,
	})
}

// watch registers job and hands it to the poller. Terminal outcomes are
// posted back to the loop.
func (s *Session) watch(job poller.Job) bool {
	if !s.deps.Poller.Poll(job, s.onOutcome) {
		slog.Warn("Job not watched", append([]any{"job_id", job.ID, "capability", job.Capability}, logger.Attrs(s.ctx)...)...)
		return false
	}
	s.state.jobs[job.ID] = &Job{
		ID:          job.ID,
		Capability:  job.Capability,
		ContentType: job.ContentType,
		Prompt:      job.Prompt,
		State:       poller.StatePending,
		StartedAt:   time.Now(),
	}
	s.state.jobOrder = append(s.state.jobOrder, job.ID)
	s.pending.Add(1)
	return true
}

func (s *Session) onOutcome(out poller.Outcome) {
	if err := s.post(func() { s.applyOutcome(out) }); err != nil {
		slog.Debug("Dropping job outcome for closed session", "job_id", out.Job.ID)
	}
}

// applyOutcome appends the terminal turn for a job at the end of the
// transcript, at most once per job.
func (s *Session) applyOutcome(out poller.Outcome) {
	job, ok := s.state.jobs[out.Job.ID]
	if !ok || job.State != poller.StatePending {
		return
	}
	job.State = out.State
	job.FinishedAt = time.Now()
	s.pending.Add(-1)

	label := out.Job.ContentType.Label()
	switch out.State {
	case poller.StateCompleted:
		item := out.Item.Clone()
		s.state.items[item.ID] = &item
		s.appendTurn(Turn{
			Role:        RoleAssistant,
			Kind:        KindContent,
			Text:        fmt.Sprintf("Your %s is ready: %s", label, item.Summary()),
			Item:        &item,
			JobID:       job.ID,
			Capability:  job.Capability,
			ContentType: item.ContentType,
			Suggestions: append([]string(nil), s.opts.Suggestions...),
		})
		s.produced(item)

	case poller.StateTimedOut:
		s.appendTurn(Turn{
			Role:        RoleAssistant,
			Kind:        KindAdvisory,
			Text:        fmt.Sprintf("Your %s is still processing. I've stopped checking on it here, so check back in a few minutes.", label),
			JobID:       job.ID,
			Capability:  job.Capability,
			ContentType: job.ContentType,
		})

	default:
		s.appendTurn(Turn{
			Role:        RoleAssistant,
			Kind:        KindError,
			Text:        fmt.Sprintf("Sorry, the %s generation failed: %s", label, reason(out.Err)),
			JobID:       job.ID,
			Capability:  job.Capability,
			ContentType: job.ContentType,
		})
	}
	s.saveMeta()
}

func (s *Session) produced(item content.Item) {
	if s.opts.OnContent != nil {
		s.opts.OnContent(item.Clone())
	}
	if s.opts.AutoSave && s.deps.Sink != nil {
		s.saveAsync(item.Clone(), vault.Metadata{"auto_saved": "true"}, nil)
	}
}

func (s *Session) saveAsync(item content.Item, meta vault.Metadata, done func(vault.Receipt, error)) {
	md := vault.Metadata{"session_id": s.id}
	for k, v := range meta {
		md[k] = v
	}
	s.goWork(s.ctx, "vault.save", func(ctx context.Context) func() {
		receipt, err := s.deps.Sink.Save(ctx, item, md)
		return func() {
			if err == nil {
				receipt = s.applySaved(item, receipt)
			} else {
				slog.Warn("Library save failed", append([]any{"item_id", item.ID, "error", err}, logger.Attrs(s.ctx)...)...)
			}
			if done != nil {
				done(receipt, err)
			}
		}
	}, func(err error) func() {
		return func() {
			if done != nil {
				done(vault.Receipt{}, copyErrors.Internal(err.Error()))
			}
		}
	})
}

// applySaved flips the item to saved. Concurrent saves of one item settle
// on the first receipt.
func (s *Session) applySaved(item content.Item, receipt vault.Receipt) vault.Receipt {
	if existing, ok := s.state.receipts[item.ID]; ok {
		existing.Duplicate = true
		return existing
	}
	s.state.receipts[item.ID] = receipt
	saved := item
	if current, ok := s.state.items[item.ID]; ok {
		current.Status = content.StatusSaved
		saved = current.Clone()
	}
	saved.Status = content.StatusSaved
	s.appendTurn(Turn{
		Role:        RoleSystem,
		Kind:        KindSaved,
		Text:        fmt.Sprintf("Saved %q to the library.", vault.Title(saved)),
		Item:        &saved,
		ContentType: saved.ContentType,
		ReceiptID:   receipt.ID,
	})
	return receipt
}

func (s *Session) appendTurn(t Turn) Turn {
	t.ID = ulid.Make().String()
	t.CreatedAt = time.Now()
	s.state.transcript = append(s.state.transcript, t)
	s.state.updatedAt = t.CreatedAt
	s.touch()

	if s.deps.Recorder != nil {
		if err := s.deps.Recorder.Record(s.id, t); err != nil {
			slog.Warn("Failed to record turn", append([]any{"turn_id", t.ID, "error", err}, logger.Attrs(s.ctx)...)...)
		}
	}
	out := t.clone()
	if s.opts.OnTurn != nil {
		s.opts.OnTurn(t.clone())
	}
	return out
}

func (s *Session) setMode(m Mode) {
	st := s.state
	st.mode = m
	if !m.awaitingApproval() {
		st.staged = nil
	}
	if m == ModeIdle {
		st.guideTag = ""
		st.brief = nil
	}
}

func (s *Session) guideHistory() []guide.Turn {
	var out []guide.Turn
	for _, t := range s.state.transcript {
		if t.Kind != KindMessage && t.Kind != KindContent {
			continue
		}
		role := "assistant"
		if t.Role == RoleUser {
			role = "user"
		}
		out = append(out, guide.Turn{Role: role, Text: t.Text})
	}
	return out
}

func (s *Session) snapshot() Snapshot {
	st := s.state
	snap := Snapshot{
		ID:          s.id,
		Mode:        st.mode,
		ContentType: st.contentType,
		Transcript:  cloneTurns(st.transcript),
		Jobs:        make([]Job, 0, len(st.jobOrder)),
		Items:       make([]content.Item, 0, len(st.items)),
		CreatedAt:   st.createdAt,
		UpdatedAt:   st.updatedAt,
	}
	if plan := s.stagedPlan(); plan != nil && st.mode.awaitingApproval() {
		snap.Staged = plan
	}
	for _, id := range st.jobOrder {
		snap.Jobs = append(snap.Jobs, *st.jobs[id])
	}
	for _, t := range st.transcript {
		if t.Kind == KindContent && t.Item != nil {
			if item, ok := st.items[t.Item.ID]; ok {
				snap.Items = append(snap.Items, item.Clone())
			}
		}
	}
	return snap
}

func (s *Session) saveMeta() {
	if s.deps.Recorder == nil {
		return
	}
	st := s.state
	meta := store.SessionMeta{
		ID:          s.id,
		Title:       st.title,
		Status:      "active",
		Mode:        string(st.mode),
		ContentType: string(st.contentType),
		TurnCount:   len(st.transcript),
		CreatedAt:   st.createdAt,
		UpdatedAt:   st.updatedAt,
		Metadata:    map[string]string{},
	}
	if st.guideTag != "" {
		meta.Metadata["guide_type"] = string(st.guideTag)
	}
	if len(st.brief) > 0 {
		meta.Metadata["brief"] = strings.Join(st.brief, "\n")
	}
	if st.staged != nil {
		meta.Metadata["staged_type"] = string(st.staged.ContentType)
		meta.Metadata["staged_prompt"] = st.staged.Prompt
	}
	if err := s.deps.Recorder.SaveMeta(meta); err != nil {
		slog.Warn("Failed to save session meta", append([]any{"error", err}, logger.Attrs(s.ctx)...)...)
	}
}

// restore rebuilds state from a persisted transcript. Jobs without a
// terminal turn are watched again.
func (s *Session) restore(r Restore) {
	st := s.state
	st.title = r.Meta.Title
	if !r.Meta.CreatedAt.IsZero() {
		st.createdAt = r.Meta.CreatedAt
	}
	if !r.Meta.UpdatedAt.IsZero() {
		st.updatedAt = r.Meta.UpdatedAt
	}
	if tag, ok := content.ParseTag(r.Meta.ContentType); ok {
		st.contentType = tag
	}
	st.transcript = cloneTurns(r.Transcript)

	md := r.Meta.Metadata
	if tag, ok := content.ParseTag(md["guide_type"]); ok {
		st.guideTag = tag
	}
	if brief := md["brief"]; brief != "" {
		st.brief = strings.Split(brief, "\n")
	}
	if prompt := md["staged_prompt"]; prompt != "" {
		tag, _ := content.ParseTag(md["staged_type"])
		st.staged = &guide.Plan{ContentType: tag, Prompt: prompt}
	}
	if mode, ok := ParseMode(r.Meta.Mode); ok {
		st.mode = mode
	}
	if st.mode.awaitingApproval() && s.stagedPlan() == nil {
		st.mode = ModeIdle
	}

	started := map[string]Turn{}
	var order []string
	finished := map[string]bool{}
	for i := range st.transcript {
		t := &st.transcript[i]
		if t.Item != nil {
			switch t.Kind {
			case KindContent:
				st.items[t.Item.ID] = t.Item
			case KindSaved:
				if item, ok := st.items[t.Item.ID]; ok {
					item.Status = content.StatusSaved
				}
				st.receipts[t.Item.ID] = vault.Receipt{ID: t.ReceiptID, SavedAt: t.CreatedAt}
			}
		}
		if t.JobID == "" {
			continue
		}
		if t.Kind == KindGenerating {
			if _, seen := started[t.JobID]; !seen {
				order = append(order, t.JobID)
			}
			started[t.JobID] = *t
		} else {
			finished[t.JobID] = true
		}
	}
	for _, id := range order {
		if finished[id] {
			continue
		}
		t := started[id]
		s.watch(poller.Job{ID: id, Capability: t.Capability, ContentType: t.ContentType})
	}
}

func contentText(item content.Item, message string) string {
	if item.Payload.Media != nil {
		text := fmt.Sprintf("Here is your %s: %s", item.ContentType.Label(), item.Payload.Media.URL)
		if message != "" {
			text = message + "\n" + item.Payload.Media.URL
		}
		return text
	}
	return item.Body()
}

func failureText(tag content.Tag, err error) string {
	label := tag.Label()
	if label == "" {
		label = "content"
	}
	switch {
	case errors.Is(err, copyErrors.ErrTransient):
		return fmt.Sprintf("Sorry, I couldn't reach the %s generator. Please try again in a moment.", label)
	case errors.Is(err, copyErrors.ErrNotFound):
		return fmt.Sprintf("Sorry, %s generation isn't available right now.", label)
	case errors.Is(err, copyErrors.ErrPermissionDenied):
		return fmt.Sprintf("Sorry, the %s generator rejected our credentials.", label)
	default:
		return fmt.Sprintf("Sorry, something went wrong while generating your %s: %s", label, reason(err))
	}
}

func reason(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

func cloneTurns(turns []Turn) []Turn {
	out := make([]Turn, len(turns))
	for i, t := range turns {
		out[i] = t.clone()
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
