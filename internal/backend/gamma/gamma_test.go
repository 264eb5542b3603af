package gamma

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/harunnryd/copydesk/internal/config"
	"github.com/harunnryd/copydesk/internal/content"
	"github.com/harunnryd/copydesk/internal/dispatch"
	copyErrors "github.com/harunnryd/copydesk/internal/errors"
	"github.com/harunnryd/copydesk/internal/poller"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-KEY") != "sk-gamma" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/generations":
			var body generationRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "Quarterly investor deck", body.InputText)
			assert.Equal(t, "generate", body.TextMode)
			assert.Equal(t, 8, body.NumCards)
			w.Write([]byte(`{"generationId":"gen-1"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/generations/gen-1":
			w.Write([]byte(`{"generationId":"gen-1","status":"completed","gammaUrl":"https://gamma.app/docs/gen-1"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/generations/gen-2":
			w.Write([]byte(`{"generationId":"gen-2","status":"pending"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/generations/gen-3":
			w.Write([]byte(`{"generationId":"gen-3","status":"failed","error":{"message":"credits exhausted"}}`))
		default:
			http.NotFound(w, r)
		}
	}))
}

func newClient(t *testing.T, server *httptest.Server, key string) *Client {
	t.Helper()
	c, err := New(config.GammaConfig{BaseURL: server.URL, APIKey: key, NumCards: 8}, server.Client())
	require.NoError(t, err)
	return c
}

func TestGenerateStartsAsyncJob(t *testing.T) {
	server := newServer(t)
	defer server.Close()
	c := newClient(t, server, "sk-gamma")

	resp, err := c.Generate(context.Background(), dispatch.Request{
		ContentType: content.TagPresentation,
		Capability:  content.CapabilityPresentation,
		Prompt:      "Quarterly investor deck",
	})
	require.NoError(t, err)

	res := dispatch.Normalize(content.TagPresentation, content.CapabilityPresentation, "Quarterly investor deck", resp)
	require.Equal(t, dispatch.KindAsyncStarted, res.Kind)
	assert.Equal(t, "gen-1", res.JobID)
}

func TestGenerateForwardsContextBag(t *testing.T) {
	var got generationRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"generationId":"gen-9"}`))
	}))
	defer server.Close()
	c := newClient(t, server, "sk-gamma")

	_, err := c.Generate(context.Background(), dispatch.Request{
		ContentType: content.TagPresentation,
		Capability:  content.CapabilityPresentation,
		Prompt:      "Board update",
		Context: dispatch.Context{
			"tone":         "confident",
			"audience":     "investors",
			"organization": map[string]any{"name": "Acme"},
			"empty":        nil,
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "Board update", got.InputText)
	assert.Equal(t,
		"content type: presentation\naudience: investors\norganization: {\"name\":\"Acme\"}\ntone: confident",
		got.AdditionalInstructions)
}

func TestStatus(t *testing.T) {
	server := newServer(t)
	defer server.Close()
	c := newClient(t, server, "sk-gamma")

	st, err := c.Status(context.Background(), "gen-1")
	require.NoError(t, err)
	assert.Equal(t, poller.StateCompleted, st.State)
	assert.Equal(t, "https://gamma.app/docs/gen-1", st.ArtifactURL)

	st, err = c.Status(context.Background(), "gen-2")
	require.NoError(t, err)
	assert.Equal(t, poller.StatePending, st.State)

	st, err = c.Status(context.Background(), "gen-3")
	require.NoError(t, err)
	assert.Equal(t, poller.StateFailed, st.State)
	assert.Equal(t, "credits exhausted", st.Error)

	_, err = c.Status(context.Background(), "missing")
	assert.True(t, errors.Is(err, copyErrors.ErrNotFound))
}

func TestBadKey(t *testing.T) {
	server := newServer(t)
	defer server.Close()
	c := newClient(t, server, "wrong")

	_, err := c.Generate(context.Background(), dispatch.Request{Prompt: "x"})
	assert.True(t, errors.Is(err, copyErrors.ErrPermissionDenied))
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New(config.GammaConfig{}, nil)
	assert.True(t, errors.Is(err, copyErrors.ErrInvalidInput))
}
