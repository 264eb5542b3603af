package gemini

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/harunnryd/copydesk/internal/model/contract"

	"google.golang.org/genai"
)

type Provider struct {
	client *genai.Client
	model  string
}

const defaultEmbeddingModel = "text-embedding-004"

func New(ctx context.Context, apiKey, model string) (*Provider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	return &Provider{client: client, model: model}, nil
}

func (p *Provider) Name() string {
	return "gemini"
}

func (p *Provider) Generate(ctx context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error) {
	var contents []*genai.Content
	for _, m := range req.Messages {
		role := genai.RoleUser
		if m.Role == "assistant" {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, genai.Role(role)))
	}

	cfg := &genai.GenerateContentConfig{MaxOutputTokens: int32(req.MaxTokens)}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}

	resp, err := p.client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}

	out := &contract.CompletionResponse{}
	if resp == nil {
		return out, nil
	}
	out.Content = resp.Text()
	return out, nil
}

func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	model := defaultEmbeddingModel
	if strings.Contains(p.model, "embed") {
		model = p.model
	}
	resp, err := p.client.Models.EmbedContent(ctx, model, genai.Text(text), nil)
	if err != nil {
		return nil, fmt.Errorf("gemini embedding failed: %w", err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("gemini embedding returned empty result")
	}

	return resp.Embeddings[0].Values, nil
}
