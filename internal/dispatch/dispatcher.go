package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/harunnryd/copydesk/internal/content"
	copyErrors "github.com/harunnryd/copydesk/internal/errors"
	"github.com/harunnryd/copydesk/internal/logger"
)

type Kind int

const (
	KindSync Kind = iota
	KindAsyncStarted
	KindFailure
)

func (k Kind) String() string {
	switch k {
	case KindSync:
		return "sync"
	case KindAsyncStarted:
		return "async_started"
	default:
		return "failure"
	}
}

// Result is the normalized outcome of one dispatch. Item is set for Sync,
// JobID for AsyncStarted and Err for Failure.
type Result struct {
	Kind       Kind
	Capability content.Capability
	Item       *content.Item
	JobID      string
	Err        error
	// Caveat is a user-visible note attached to degraded (fallback) output.
	Caveat string
	// Message is optional accompanying text from the backend.
	Message string
	// Directive is an explicit conversation mode declared by the backend.
	Directive string
}

// Dispatcher selects a backend per capability and issues a single call.
type Dispatcher struct {
	table    Table
	backends map[content.Capability]Backend
	mapper   copyErrors.ErrorMapper
	timeout  time.Duration
}

func New(table Table, backends map[content.Capability]Backend, timeout time.Duration) *Dispatcher {
	if table == nil {
		table = DefaultTable()
	}
	copied := make(map[content.Capability]Backend, len(backends))
	for k, v := range backends {
		if v != nil {
			copied[k] = v
		}
	}
	return &Dispatcher{
		table:    table,
		backends: copied,
		mapper:   copyErrors.NewDefaultErrorMapper(),
		timeout:  timeout,
	}
}

// Route returns the route for tag; unknown tags are generated as text.
func (d *Dispatcher) Route(tag content.Tag) Route {
	if r, ok := d.table[tag]; ok {
		return r
	}
	return Route{Capability: content.CapabilityText}
}

func (d *Dispatcher) Dispatch(ctx context.Context, tag content.Tag, prompt string, bag Context) Result {
	route := d.Route(tag)

	if strings.TrimSpace(prompt) == "" {
		prompt = DefaultPrompt(tag, bag)
		slog.Debug("Empty prompt replaced with default", append([]any{"content_type", tag}, logger.Attrs(ctx)...)...)
	}

	backend, ok := d.backends[route.Capability]
	if !ok {
		return failure(route.Capability, copyErrors.NotFound(fmt.Sprintf("no backend configured for %s", route.Capability)))
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	attrs := append([]any{"content_type", tag, "capability", route.Capability}, logger.Attrs(ctx)...)
	slog.Info("Dispatching generation", attrs...)

	start := time.Now()
	resp, err := backend.Generate(ctx, Request{
		ContentType: tag,
		Capability:  route.Capability,
		Prompt:      prompt,
		Context:     bag,
	})
	if err != nil {
		mapped := d.mapper.MapError(err)
		slog.Error("Generation request failed", append(attrs, "error", err, "category", d.mapper.Category(mapped))...)
		return failure(route.Capability, mapped)
	}

	res := Normalize(tag, route.Capability, prompt, resp)
	slog.Info("Generation dispatched", append(attrs, "result", res.Kind.String(), "duration_ms", time.Since(start).Milliseconds())...)
	return res
}
