package model

import (
	"context"

	"github.com/harunnryd/copydesk/internal/model/contract"
)

// vendorProvider is what each package under providers/ implements.
type vendorProvider interface {
	Generate(ctx context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ProviderAdapter binds a vendor provider to a registry entry so requests
// always carry the entry's vendor model id.
type ProviderAdapter struct {
	provider     vendorProvider
	name         string
	model        string
	providerType string
}

func (a *ProviderAdapter) Generate(ctx context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error) {
	req.Model = a.model
	if req.MaxTokens <= 0 {
		req.MaxTokens = contract.DefaultMaxTokens
	}
	resp, err := a.provider.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Model == "" {
		resp.Model = a.model
	}
	return resp, nil
}

func (a *ProviderAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	return a.provider.Embed(ctx, text)
}

func (a *ProviderAdapter) Name() string {
	return a.name
}

func (a *ProviderAdapter) Type() string {
	return a.providerType
}
