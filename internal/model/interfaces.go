package model

import (
	"context"

	"github.com/harunnryd/copydesk/internal/model/contract"
)

// ModelRouter sends completions and embeddings to registry models by name.
type ModelRouter interface {
	Route(ctx context.Context, model string, req contract.CompletionRequest) (*contract.CompletionResponse, error)
	RouteEmbedding(ctx context.Context, model string, text string) ([]float32, error)
	Models() []string
}

// Provider is one registry entry bound to its vendor client.
type Provider interface {
	Generate(ctx context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error)
	Embed(ctx context.Context, text string) ([]float32, error)
	Name() string
	Type() string
}
