package guide

import (
	"context"

	copyErrors "github.com/harunnryd/copydesk/internal/errors"
)

// Invoker calls a named remote function with a JSON payload.
type Invoker interface {
	Invoke(ctx context.Context, function string, payload any) (map[string]any, error)
}

// EdgeGuide converses through the ai-content-assistant edge function.
type EdgeGuide struct {
	invoker  Invoker
	function string
}

func NewEdgeGuide(invoker Invoker, function string) *EdgeGuide {
	return &EdgeGuide{invoker: invoker, function: function}
}

func (g *EdgeGuide) Converse(ctx context.Context, req Request) (Reply, error) {
	payload := map[string]any{
		"message":             req.Message,
		"contentType":         req.ContentType,
		"conversationHistory": req.History,
	}
	if req.Context != nil {
		payload["context"] = req.Context
	}

	resp, err := g.invoker.Invoke(ctx, g.function, payload)
	if err != nil {
		return Reply{}, err
	}
	if ok, present := resp["success"].(bool); present && !ok {
		msg, _ := resp["error"].(string)
		if msg == "" {
			msg = "assistant reported failure"
		}
		return Reply{}, copyErrors.Backend(msg)
	}

	reply := decodeReply(resp)
	if reply.Message == "" {
		return Reply{}, copyErrors.Backend("assistant returned an empty reply")
	}
	if reply.Plan != nil && reply.Plan.ContentType == "" {
		reply.Plan.ContentType = req.ContentType
	}
	return reply, nil
}
