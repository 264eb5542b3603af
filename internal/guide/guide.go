// Package guide holds the conversational strategist consulted before
// generation: it asks clarifying questions and proposes plans.
package guide

import (
	"context"
	"strings"

	"github.com/harunnryd/copydesk/internal/content"
	"github.com/harunnryd/copydesk/internal/dispatch"
)

// Mode directives a guide may attach to a reply.
const (
	DirectiveQuestion        = "question"
	DirectiveProposal        = "proposal"
	DirectiveStrategyOptions = "strategy_options"
	DirectiveGenerate        = "generate"
	DirectiveReady           = "ready"
	DirectiveChat            = "chat"
	DirectiveIdle            = "idle"
)

type Turn struct {
	Role string `json:"role"` // user | assistant
	Text string `json:"content"`
}

type Request struct {
	ContentType content.Tag
	Message     string
	History     []Turn
	Context     dispatch.Context
}

// Plan is what the guide proposes to generate once approved.
type Plan struct {
	ContentType content.Tag `json:"contentType"`
	Prompt      string      `json:"prompt"`
}

type Reply struct {
	Message string
	// Mode is the explicit directive, empty when the guide gave none.
	Mode             string
	AwaitingResponse bool
	Plan             *Plan
}

type Guide interface {
	Converse(ctx context.Context, req Request) (Reply, error)
}

// decodeReply reads the loose reply shapes guides produce.
func decodeReply(raw map[string]any) Reply {
	var r Reply
	for _, key := range []string{"message", "response", "reply", "content", "text"} {
		if s, ok := raw[key].(string); ok && strings.TrimSpace(s) != "" {
			r.Message = strings.TrimSpace(s)
			break
		}
	}
	if s, ok := raw["mode"].(string); ok {
		r.Mode = strings.ToLower(strings.TrimSpace(s))
	}
	for _, key := range []string{"awaitingResponse", "awaiting_response"} {
		if b, ok := raw[key].(bool); ok {
			r.AwaitingResponse = b
		}
	}

	if p, ok := raw["plan"].(map[string]any); ok {
		plan := &Plan{}
		if s, ok := p["contentType"].(string); ok {
			if tag, ok := content.ParseTag(s); ok {
				plan.ContentType = tag
			}
		}
		for _, key := range []string{"prompt", "brief"} {
			if s, ok := p[key].(string); ok && strings.TrimSpace(s) != "" {
				plan.Prompt = strings.TrimSpace(s)
				break
			}
		}
		if plan.Prompt != "" || plan.ContentType != "" {
			r.Plan = plan
		}
	}
	return r
}
