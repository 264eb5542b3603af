package ingress

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/harunnryd/copydesk/internal/content"
	"github.com/harunnryd/copydesk/internal/dispatch"
	"github.com/harunnryd/copydesk/internal/intent"
	"github.com/harunnryd/copydesk/internal/poller"
	"github.com/harunnryd/copydesk/internal/session"
	"github.com/harunnryd/copydesk/internal/vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoBackend struct {
	mu   sync.Mutex
	reqs []dispatch.Request
}

func (b *echoBackend) Generate(_ context.Context, req dispatch.Request) (dispatch.Response, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reqs = append(b.reqs, req)
	return dispatch.Response{"content": "Generated " + string(req.ContentType)}, nil
}

type memoryLibrary struct {
	mu      sync.Mutex
	entries []vault.Entry
}

func (l *memoryLibrary) Save(_ context.Context, item content.Item, meta vault.Metadata) (vault.Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, vault.Entry{ID: "lib-" + item.ID, ItemID: item.ID, ContentType: item.ContentType, Body: item.Body(), Metadata: meta})
	return vault.Receipt{ID: "lib-" + item.ID, SavedAt: time.Now()}, nil
}

func (l *memoryLibrary) List(_ context.Context, tag content.Tag, limit int) ([]vault.Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []vault.Entry
	for _, e := range l.entries {
		if tag == "" || e.ContentType == tag {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l *memoryLibrary) Search(_ context.Context, query string, limit int) ([]vault.Entry, error) {
	return l.List(context.Background(), "", limit)
}

type memoryDeduper struct {
	mu   sync.Mutex
	seen map[string]string
}

func (d *memoryDeduper) Remember(key, value string, _ time.Duration) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if v, ok := d.seen[key]; ok {
		return v, true
	}
	d.seen[key] = value
	return value, false
}

func (d *memoryDeduper) Settle(key, value string, _ time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[key] = value
}

func (d *memoryDeduper) Forget(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, key)
}

type fixture struct {
	server  *httptest.Server
	backend *echoBackend
	library *memoryLibrary
	dedupe  *memoryDeduper
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{backend: &echoBackend{}, library: &memoryLibrary{}, dedupe: &memoryDeduper{seen: map[string]string{}}}
	classifier := intent.New(intent.DefaultRules(), content.TagPressRelease)

	manager := session.NewManager(func(string) (session.Deps, error) {
		return session.Deps{
			Classifier: classifier,
			Dispatcher: dispatch.New(nil, map[content.Capability]dispatch.Backend{content.CapabilityText: f.backend}, time.Second),
			Poller:     poller.New(nil, poller.Options{Interval: 10 * time.Millisecond, MaxAttempts: 3}),
			Sink:       f.library,
		}, nil
	}, nil, session.ManagerOptions{Session: session.Options{Affirmations: []string{"yes"}}})
	t.Cleanup(func() { _ = manager.Stop(context.Background()) })

	api := NewAPI(manager, classifier, f.library, f.dedupe, func(context.Context) map[string]error {
		return map[string]error{"store": nil}
	}, Options{})
	f.server = httptest.NewServer(api.Handler())
	t.Cleanup(f.server.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, resp.Header.Get(traceHeader))
}

func TestClassify(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodPost, "/api/v1/classify", map[string]string{"text": "Draft a crisis statement about the outage"}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "crisis-statement", body["contentType"])
}

func TestConversationFlow(t *testing.T) {
	f := newFixture(t)

	resp, created := f.do(t, http.MethodPost, "/api/v1/sessions", map[string]any{
		"context": map[string]any{"organizationName": "Acme"},
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "idle", created["mode"])

	resp, msg := f.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/messages", map[string]string{
		"text": "Write a press release announcing our product launch",
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	turns, _ := msg["turns"].([]any)
	require.Len(t, turns, 2)
	assistant := turns[1].(map[string]any)
	assert.Equal(t, "content", assistant["kind"])
	item := assistant["item"].(map[string]any)
	itemID := item["id"].(string)
	assert.Equal(t, "press-release", item["content_type"])

	f.backend.mu.Lock()
	require.Len(t, f.backend.reqs, 1)
	assert.Equal(t, "Acme", f.backend.reqs[0].Context["organizationName"])
	f.backend.mu.Unlock()

	resp, receipt := f.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/items/"+itemID+"/save", map[string]any{
		"metadata": map[string]string{"campaign": "launch"},
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "lib-"+itemID, receipt["id"])

	resp, _ = f.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/items/"+itemID+"/save", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, snap := f.do(t, http.MethodGet, "/api/v1/sessions/"+id, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	items := snap["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "saved", items[0].(map[string]any)["status"])

	resp, _ = f.do(t, http.MethodDelete, "/api/v1/sessions/"+id, nil, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = f.do(t, http.MethodGet, "/api/v1/sessions/"+id, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMessageIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	_, created := f.do(t, http.MethodPost, "/api/v1/sessions", nil, nil)
	id := created["id"].(string)

	headers := map[string]string{"Idempotency-Key": "k1"}
	resp, first := f.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/messages", map[string]string{"text": "Write an email"}, headers)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", first["status"])

	resp, second := f.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/messages", map[string]string{"text": "Write an email"}, headers)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "duplicate", second["status"])
	require.NotEmpty(t, first["turns"])
	assert.Equal(t, first["turns"], second["turns"], "a retry gets the original reply back")

	f.backend.mu.Lock()
	assert.Len(t, f.backend.reqs, 1)
	f.backend.mu.Unlock()
}

func TestMessageIdempotencyKeyStillPending(t *testing.T) {
	f := newFixture(t)
	_, created := f.do(t, http.MethodPost, "/api/v1/sessions", nil, nil)
	id := created["id"].(string)
	path := "/api/v1/sessions/" + id + "/messages"

	f.dedupe.Remember("message:"+id+":busy", pendingReply, 0)
	resp, _ := f.do(t, http.MethodPost, path, map[string]string{"text": "Write an email"}, map[string]string{"Idempotency-Key": "busy"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	f.backend.mu.Lock()
	assert.Empty(t, f.backend.reqs)
	f.backend.mu.Unlock()
}

func TestSlashCommandsAndContentType(t *testing.T) {
	f := newFixture(t)
	_, created := f.do(t, http.MethodPost, "/api/v1/sessions", map[string]string{"contentType": "media pitch"}, nil)
	id := created["id"].(string)
	assert.Equal(t, "media-pitch", created["content_type"])

	resp, out := f.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/messages", map[string]string{"text": "/type email"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "command", out["status"])
	assert.Contains(t, out["output"], "email")

	resp, _ = f.do(t, http.MethodPut, "/api/v1/sessions/"+id+"/content-type", map[string]string{"contentType": "podcast"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, out = f.do(t, http.MethodPut, "/api/v1/sessions/"+id+"/content-type", map[string]string{"contentType": "auto"}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "", out["contentType"])
}

func TestLibraryEndpoint(t *testing.T) {
	f := newFixture(t)
	f.library.entries = []vault.Entry{
		{ID: "1", ContentType: content.TagEmail, Body: "Hello"},
		{ID: "2", ContentType: content.TagBlogPost, Body: "Post"},
	}

	req, err := http.NewRequest(http.MethodGet, f.server.URL+"/api/v1/library?type=email", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var entries []vault.Entry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "1", entries[0].ID)

	resp2, _ := f.do(t, http.MethodGet, "/api/v1/library?limit=zero", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
}

func TestUnknownSession(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodPost, "/api/v1/sessions/nope/messages", map[string]string{"text": "hi"}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "ErrNotFound", body["category"])
}
