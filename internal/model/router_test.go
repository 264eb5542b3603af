package model

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/harunnryd/copydesk/internal/config"
	copyErrors "github.com/harunnryd/copydesk/internal/errors"
	"github.com/harunnryd/copydesk/internal/model/contract"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubVendor struct {
	reply    string
	err      error
	embedErr error
	vector   []float32
	lastReq  contract.CompletionRequest
	calls    int
}

func (s *stubVendor) Generate(_ context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error) {
	s.calls++
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	return &contract.CompletionResponse{Content: s.reply}, nil
}

func (s *stubVendor) Embed(context.Context, string) ([]float32, error) {
	if s.embedErr != nil {
		return nil, s.embedErr
	}
	return s.vector, nil
}

func newTestRouter(t *testing.T, fallback string) *Router {
	t.Helper()
	r, err := NewModelRouter(config.ModelsConfig{Fallback: fallback, MaxFallbackAttempts: 2})
	require.NoError(t, err)
	return r
}

func register(r *Router, name, vendorModel string, v *stubVendor) {
	r.Register(name, &ProviderAdapter{provider: v, name: name, model: vendorModel, providerType: "stub"})
}

func TestRouteUsesVendorModel(t *testing.T) {
	r := newTestRouter(t, "")
	primary := &stubVendor{reply: "hello"}
	register(r, "claude-sonnet", "claude-sonnet-4-5", primary)

	resp, err := r.Route(context.Background(), "claude-sonnet", contract.CompletionRequest{
		Messages: []contract.Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)
	assert.Equal(t, "claude-sonnet-4-5", resp.Model)
	assert.Equal(t, "claude-sonnet-4-5", primary.lastReq.Model)
	assert.Equal(t, contract.DefaultMaxTokens, primary.lastReq.MaxTokens)
}

func TestRouteFallsBack(t *testing.T) {
	r := newTestRouter(t, "backup")
	primary := &stubVendor{err: errors.New("overloaded")}
	backup := &stubVendor{reply: "from backup"}
	register(r, "main", "m", primary)
	register(r, "backup", "b", backup)

	resp, err := r.Route(context.Background(), "main", contract.CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "from backup", resp.Content)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, backup.calls)
}

func TestRouteUnknownModelUsesFallback(t *testing.T) {
	r := newTestRouter(t, "backup")
	backup := &stubVendor{reply: "ok"}
	register(r, "backup", "b", backup)

	resp, err := r.Route(context.Background(), "missing", contract.CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
}

func TestRouteFailureIsBackendError(t *testing.T) {
	r := newTestRouter(t, "")
	register(r, "main", "m", &stubVendor{err: errors.New("boom")})

	_, err := r.Route(context.Background(), "main", contract.CompletionRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, copyErrors.ErrBackend))
}

func TestRouteEmbeddingSkipsUnsupported(t *testing.T) {
	r := newTestRouter(t, "")
	register(r, "a-chat", "c", &stubVendor{embedErr: fmt.Errorf("anthropic: %w", contract.ErrEmbeddingUnsupported)})
	register(r, "b-embed", "e", &stubVendor{vector: []float32{0.1, 0.2}})

	vec, err := r.RouteEmbedding(context.Background(), "a-chat", "text")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, vec)
}

func TestRouteEmbeddingNoProviders(t *testing.T) {
	r := newTestRouter(t, "")
	_, err := r.RouteEmbedding(context.Background(), "x", "text")
	assert.True(t, errors.Is(err, copyErrors.ErrNotFound))
}

func TestNewProviderRequiresKeys(t *testing.T) {
	_, err := newProvider(config.ModelRegistry{Name: "x", Provider: "anthropic"})
	assert.True(t, errors.Is(err, copyErrors.ErrInvalidInput))

	_, err = newProvider(config.ModelRegistry{Name: "x", Provider: "mystery", APIKey: "k"})
	assert.True(t, errors.Is(err, copyErrors.ErrInvalidInput))

	p, err := newProvider(config.ModelRegistry{Name: "gpt", Provider: "openai", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Type())
	assert.Equal(t, "gpt", p.Name())
}

func TestRouteStopsAfterMaxAttempts(t *testing.T) {
	r, err := NewModelRouter(config.ModelsConfig{Fallback: "backup", MaxFallbackAttempts: 1})
	require.NoError(t, err)
	primary := &stubVendor{err: errors.New("overloaded")}
	backup := &stubVendor{reply: "unused"}
	register(r, "main", "m", primary)
	register(r, "backup", "b", backup)

	_, err = r.Route(context.Background(), "main", contract.CompletionRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, copyErrors.ErrBackend))
	assert.Equal(t, 1, primary.calls)
	assert.Zero(t, backup.calls)
}

func TestRouteUnknownModelWithoutFallback(t *testing.T) {
	r := newTestRouter(t, "")
	_, err := r.Route(context.Background(), "missing", contract.CompletionRequest{})
	assert.True(t, errors.Is(err, copyErrors.ErrNotFound))
}

func TestRouteEmbeddingReportsRealFailures(t *testing.T) {
	r := newTestRouter(t, "")
	register(r, "a-chat", "c", &stubVendor{embedErr: fmt.Errorf("anthropic: %w", contract.ErrEmbeddingUnsupported)})
	register(r, "b-embed", "e", &stubVendor{embedErr: errors.New("quota exceeded")})

	_, err := r.RouteEmbedding(context.Background(), "a-chat", "text")
	require.Error(t, err)
	assert.True(t, errors.Is(err, copyErrors.ErrBackend))
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestModelsSorted(t *testing.T) {
	r := newTestRouter(t, "")
	register(r, "zeta", "z", &stubVendor{})
	register(r, "alpha", "a", &stubVendor{})
	assert.Equal(t, []string{"alpha", "zeta"}, r.Models())
}

func TestNewModelRouterSkipsBrokenEntries(t *testing.T) {
	r, err := NewModelRouter(config.ModelsConfig{Registry: []config.ModelRegistry{
		{Name: "gpt", Provider: "openai", APIKey: "k"},
		{Name: "claude", Provider: "anthropic"},
	}})
	require.NoError(t, err)
	assert.Equal(t, []string{"gpt"}, r.Models())

	_, err = NewModelRouter(config.ModelsConfig{Registry: []config.ModelRegistry{
		{Name: "claude", Provider: "anthropic"},
	}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, copyErrors.ErrInternal))
	assert.Contains(t, err.Error(), "claude")
}
