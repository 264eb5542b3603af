package guide

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/harunnryd/copydesk/internal/content"
	copyErrors "github.com/harunnryd/copydesk/internal/errors"
	"github.com/harunnryd/copydesk/internal/model"
	"github.com/harunnryd/copydesk/internal/model/contract"
)

const replyContract = `Reply with one JSON object:
{"message": "<what you say to the user>",
 "mode": "question" | "proposal" | "strategy_options" | "generate" | "chat",
 "awaitingResponse": true | false,
 "plan": {"contentType": "<content type>", "prompt": "<generation brief>"}}
Use "question" while you still need an answer, "proposal" or "strategy_options" when the plan needs the user's approval, and "generate" only when the user already approved. Include "plan" whenever you propose or generate.`

// ModelGuide converses through the model router.
type ModelGuide struct {
	router       model.ModelRouter
	model        string
	system       string
	historyLimit int
}

func NewModelGuide(router model.ModelRouter, modelName, system string, historyLimit int) *ModelGuide {
	return &ModelGuide{router: router, model: modelName, system: system, historyLimit: historyLimit}
}

func (g *ModelGuide) Converse(ctx context.Context, req Request) (Reply, error) {
	history := req.History
	if g.historyLimit > 0 && len(history) > g.historyLimit {
		history = history[len(history)-g.historyLimit:]
	}

	messages := make([]contract.Message, 0, len(history)+1)
	for _, t := range history {
		role := "user"
		if t.Role == "assistant" {
			role = "assistant"
		}
		messages = append(messages, contract.Message{Role: role, Content: t.Text})
	}
	messages = append(messages, contract.Message{Role: "user", Content: req.Message})

	resp, err := g.router.Route(ctx, g.model, contract.CompletionRequest{
		System:   g.systemPrompt(req),
		Messages: messages,
		JSON:     true,
	})
	if err != nil {
		return Reply{}, err
	}

	reply := parseModelReply(resp.Content)
	if reply.Message == "" {
		return Reply{}, copyErrors.Backend("guide returned an empty reply")
	}
	if reply.Plan != nil && reply.Plan.ContentType == "" {
		reply.Plan.ContentType = req.ContentType
	}
	return reply, nil
}

func (g *ModelGuide) systemPrompt(req Request) string {
	var b strings.Builder
	b.WriteString(g.system)
	b.WriteString("\n\n")
	if req.ContentType != "" {
		fmt.Fprintf(&b, "The user is working on: %s.\n", req.ContentType.Label())
	}
	if len(req.Context) > 0 {
		if raw, err := json.Marshal(req.Context); err == nil {
			fmt.Fprintf(&b, "Brand and organization context: %s\n", raw)
		}
	}
	fmt.Fprintf(&b, "Known content types: %s.\n\n", joinTags(content.Tags()))
	b.WriteString(replyContract)
	return b.String()
}

// parseModelReply accepts fenced or chatty JSON and degrades to plain text,
// in which case no directive is set.
func parseModelReply(raw string) Reply {
	cleaned := cleanModelJSON(raw)
	candidates := []string{cleaned}
	if start := strings.Index(cleaned, "{"); start >= 0 {
		if end := strings.LastIndex(cleaned, "}"); end > start {
			candidates = append(candidates, cleaned[start:end+1])
		}
	}
	for _, candidate := range candidates {
		var obj map[string]any
		if err := json.Unmarshal([]byte(candidate), &obj); err == nil {
			if r := decodeReply(obj); r.Message != "" {
				return r
			}
		}
	}
	slog.Debug("Guide reply was not JSON, using raw text")
	return Reply{Message: strings.TrimSpace(raw)}
}

func cleanModelJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func joinTags(tags []content.Tag) string {
	parts := make([]string, len(tags))
	for i, t := range tags {
		parts[i] = string(t)
	}
	return strings.Join(parts, ", ")
}
