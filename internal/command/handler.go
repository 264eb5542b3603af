// Package command implements the slash commands available in every
// conversation front end.
package command

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/shlex"

	"github.com/harunnryd/copydesk/internal/content"
	copyErrors "github.com/harunnryd/copydesk/internal/errors"
	"github.com/harunnryd/copydesk/internal/session"
	"github.com/harunnryd/copydesk/internal/vault"
)

// Conversation is the part of a session the commands drive.
type Conversation interface {
	ID() string
	Snapshot(ctx context.Context) (session.Snapshot, error)
	SetContentType(ctx context.Context, tag content.Tag) error
	SetMode(ctx context.Context, mode session.Mode) error
	Reset(ctx context.Context) error
	Save(ctx context.Context, itemID string, meta vault.Metadata) (vault.Receipt, error)
}

type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

func (h *Handler) CanHandle(input string) bool {
	return strings.HasPrefix(strings.TrimSpace(input), "/")
}

// Execute runs one command and returns the text to show. Failures are
// reported in the text; err is set only so callers can pick a status.
func (h *Handler) Execute(ctx context.Context, conv Conversation, input string) (string, error) {
	parts, parseErr := shlex.Split(strings.TrimSpace(input))
	if parseErr != nil {
		parts = strings.Fields(input)
	}
	if len(parts) == 0 {
		return "", nil
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	slog.Info("Executing slash command", "cmd", cmd, "session_id", conv.ID())

	var msg string
	var err error

	switch cmd {
	case "/help":
		msg = helpText()
	case "/type":
		msg, err = h.handleType(ctx, conv, args)
	case "/save":
		msg, err = h.handleSave(ctx, conv, args)
	case "/mode":
		msg, err = h.handleMode(ctx, conv, args)
	case "/jobs":
		msg, err = h.handleJobs(ctx, conv)
	case "/clear":
		if err = conv.Reset(ctx); err == nil {
			msg = "Conversation cleared."
		}
	default:
		msg = fmt.Sprintf("Unknown command: %s. Try /help.", cmd)
		err = copyErrors.InvalidInput("unknown command " + cmd)
	}

	if err != nil {
		if msg == "" {
			msg = fmt.Sprintf("Command failed: %v", err)
		}
		slog.Warn("Command execution failed", "cmd", cmd, "error", err)
	}
	return msg, err
}

func (h *Handler) handleType(ctx context.Context, conv Conversation, args []string) (string, error) {
	if len(args) == 0 {
		snap, err := conv.Snapshot(ctx)
		if err != nil {
			return "", err
		}
		if snap.ContentType == "" {
			return "Content type: auto (detected from each message).", nil
		}
		return fmt.Sprintf("Content type: %s.", snap.ContentType), nil
	}

	raw := strings.Join(args, " ")
	if strings.EqualFold(raw, "auto") {
		if err := conv.SetContentType(ctx, ""); err != nil {
			return "", err
		}
		return "Content type cleared; I'll detect it from each message.", nil
	}

	tag, ok := content.ParseTag(raw)
	if !ok {
		return fmt.Sprintf("Unknown content type %q. Choose one of: %s, or auto.", raw, tagList()),
			copyErrors.InvalidInput("unknown content type " + raw)
	}
	if err := conv.SetContentType(ctx, tag); err != nil {
		return "", err
	}
	return fmt.Sprintf("Content type set to %s.", tag), nil
}

// handleSave accepts "/save [item-id|last] [key=value ...]".
func (h *Handler) handleSave(ctx context.Context, conv Conversation, args []string) (string, error) {
	target := "last"
	meta := vault.Metadata{}
	for _, a := range args {
		if k, v, ok := strings.Cut(a, "="); ok {
			meta[k] = v
			continue
		}
		target = a
	}

	snap, err := conv.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	item, ok := findItem(snap, target)
	if !ok {
		if target == "last" {
			return "There is nothing to save yet.", copyErrors.InvalidInput("no content item")
		}
		return fmt.Sprintf("No content item %s in this conversation.", target), copyErrors.NotFound("content item " + target)
	}

	receipt, err := conv.Save(ctx, item.ID, meta)
	if err != nil {
		return "", err
	}
	if receipt.Duplicate {
		return fmt.Sprintf("%q is already in the library (%s).", vault.Title(item), receipt.ID), nil
	}
	return fmt.Sprintf("Saved %q to the library (%s).", vault.Title(item), receipt.ID), nil
}

func findItem(snap session.Snapshot, target string) (content.Item, bool) {
	if target == "last" {
		for i := len(snap.Items) - 1; i >= 0; i-- {
			if snap.Items[i].Status != content.StatusSaved {
				return snap.Items[i], true
			}
		}
		if len(snap.Items) > 0 {
			return snap.Items[len(snap.Items)-1], true
		}
		return content.Item{}, false
	}
	for _, item := range snap.Items {
		if item.ID == target {
			return item, true
		}
	}
	return content.Item{}, false
}

func (h *Handler) handleMode(ctx context.Context, conv Conversation, args []string) (string, error) {
	if len(args) > 0 {
		if !strings.EqualFold(args[0], "reset") {
			return "Usage: /mode [reset]", copyErrors.InvalidInput("bad /mode argument")
		}
		if err := conv.SetMode(ctx, session.ModeIdle); err != nil {
			return "", err
		}
		return "Mode reset to idle.", nil
	}
	snap, err := conv.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	msg := fmt.Sprintf("Mode: %s.", snap.Mode)
	if snap.Staged != nil {
		msg += fmt.Sprintf(" Waiting for approval to generate a %s: %s", snap.Staged.ContentType.Label(), snap.Staged.Prompt)
	}
	return msg, nil
}

func (h *Handler) handleJobs(ctx context.Context, conv Conversation) (string, error) {
	snap, err := conv.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	if len(snap.Jobs) == 0 {
		return "No generation jobs in this conversation.", nil
	}
	var b strings.Builder
	b.WriteString("Jobs:")
	for _, j := range snap.Jobs {
		fmt.Fprintf(&b, "\n- %s  %s  %s", j.ID, j.ContentType, j.State)
	}
	return b.String(), nil
}

func tagList() string {
	tags := content.Tags()
	names := make([]string, len(tags))
	for i, t := range tags {
		names[i] = string(t)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func helpText() string {
	return `Commands:
  /type [content-type|auto]   show or pin the content type
  /save [item-id|last] [k=v]  save generated content to the library
  /mode [reset]               show the conversation mode or reset it
  /jobs                       list generation jobs
  /clear                      clear the conversation
  /help                       show this help`
}
