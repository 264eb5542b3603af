package anthropic

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/harunnryd/copydesk/internal/model/contract"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type Provider struct {
	client anthropic.Client
}

func New(apiKey, baseURL string) *Provider {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Provider{client: anthropic.NewClient(opts...)}
}

func (p *Provider) Name() string {
	return "anthropic"
}

func (p *Provider) Generate(ctx context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error) {
	var messages []anthropic.MessageParam
	for _, m := range req.Messages {
		switch m.Role {
		case "assistant":
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	system := req.System
	if req.JSON {
		system = strings.TrimSpace(system + "\n\nRespond with a single JSON object and nothing else.")
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(req.MaxTokens),
		Messages:  messages,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic request failed: %w", err)
	}

	resp := &contract.CompletionResponse{Model: string(msg.Model)}
	for _, block := range msg.Content {
		if b, ok := block.AsAny().(anthropic.TextBlock); ok {
			resp.Content += b.Text
		}
	}
	return resp, nil
}

func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("anthropic: %w", contract.ErrEmbeddingUnsupported)
}
