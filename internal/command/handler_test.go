package command

import (
	"context"
	"testing"

	"github.com/harunnryd/copydesk/internal/content"
	copyErrors "github.com/harunnryd/copydesk/internal/errors"
	"github.com/harunnryd/copydesk/internal/guide"
	"github.com/harunnryd/copydesk/internal/poller"
	"github.com/harunnryd/copydesk/internal/session"
	"github.com/harunnryd/copydesk/internal/vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConversation struct {
	snap      session.Snapshot
	tag       content.Tag
	mode      session.Mode
	reset     bool
	savedID   string
	savedMeta vault.Metadata
}

func (f *fakeConversation) ID() string { return "s1" }

func (f *fakeConversation) Snapshot(context.Context) (session.Snapshot, error) {
	return f.snap, nil
}

func (f *fakeConversation) SetContentType(_ context.Context, tag content.Tag) error {
	f.tag = tag
	return nil
}

func (f *fakeConversation) SetMode(_ context.Context, m session.Mode) error {
	f.mode = m
	return nil
}

func (f *fakeConversation) Reset(context.Context) error {
	f.reset = true
	return nil
}

func (f *fakeConversation) Save(_ context.Context, id string, meta vault.Metadata) (vault.Receipt, error) {
	f.savedID = id
	f.savedMeta = meta
	return vault.Receipt{ID: "lib-1"}, nil
}

func TestCanHandle(t *testing.T) {
	h := NewHandler()
	assert.True(t, h.CanHandle("/help"))
	assert.True(t, h.CanHandle("  /jobs"))
	assert.False(t, h.CanHandle("write a /press release"))
}

func TestTypeCommand(t *testing.T) {
	h := NewHandler()
	conv := &fakeConversation{}

	msg, err := h.Execute(context.Background(), conv, `/type "press release"`)
	require.NoError(t, err)
	assert.Equal(t, content.TagPressRelease, conv.tag)
	assert.Contains(t, msg, "press-release")

	_, err = h.Execute(context.Background(), conv, "/type social post")
	require.NoError(t, err)
	assert.Equal(t, content.TagSocialPost, conv.tag)

	_, err = h.Execute(context.Background(), conv, "/type auto")
	require.NoError(t, err)
	assert.Equal(t, content.Tag(""), conv.tag)

	msg, err = h.Execute(context.Background(), conv, "/type podcast")
	assert.ErrorIs(t, err, copyErrors.ErrInvalidInput)
	assert.Contains(t, msg, "Unknown content type")
}

func TestSaveCommandPicksLastUnsaved(t *testing.T) {
	h := NewHandler()
	conv := &fakeConversation{snap: session.Snapshot{Items: []content.Item{
		{ID: "a", ContentType: content.TagEmail, Status: content.StatusCompleted, Payload: content.Payload{Text: "Hello team"}},
		{ID: "b", ContentType: content.TagEmail, Status: content.StatusSaved, Payload: content.Payload{Text: "Saved one"}},
	}}}

	msg, err := h.Execute(context.Background(), conv, `/save note="launch week"`)
	require.NoError(t, err)
	assert.Equal(t, "a", conv.savedID)
	assert.Equal(t, "launch week", conv.savedMeta["note"])
	assert.Contains(t, msg, "lib-1")

	_, err = h.Execute(context.Background(), conv, "/save missing")
	assert.ErrorIs(t, err, copyErrors.ErrNotFound)
}

func TestSaveCommandWithNothingToSave(t *testing.T) {
	msg, err := NewHandler().Execute(context.Background(), &fakeConversation{}, "/save")
	assert.ErrorIs(t, err, copyErrors.ErrInvalidInput)
	assert.Equal(t, "There is nothing to save yet.", msg)
}

func TestModeJobsClearHelp(t *testing.T) {
	h := NewHandler()
	conv := &fakeConversation{snap: session.Snapshot{
		Mode:   session.ModeAwaitingApproval,
		Staged: &guide.Plan{ContentType: content.TagCampaign, Prompt: "Spring launch"},
		Jobs:   []session.Job{{ID: "job-1", ContentType: content.TagVideo, State: poller.StatePending}},
	}}

	msg, err := h.Execute(context.Background(), conv, "/mode")
	require.NoError(t, err)
	assert.Contains(t, msg, "awaiting-approval")
	assert.Contains(t, msg, "Spring launch")

	_, err = h.Execute(context.Background(), conv, "/mode reset")
	require.NoError(t, err)
	assert.Equal(t, session.ModeIdle, conv.mode)

	msg, err = h.Execute(context.Background(), conv, "/jobs")
	require.NoError(t, err)
	assert.Contains(t, msg, "job-1")
	assert.Contains(t, msg, "pending")

	_, err = h.Execute(context.Background(), conv, "/clear")
	require.NoError(t, err)
	assert.True(t, conv.reset)

	msg, err = h.Execute(context.Background(), conv, "/help")
	require.NoError(t, err)
	assert.Contains(t, msg, "/save")

	msg, err = h.Execute(context.Background(), conv, "/bogus")
	assert.Error(t, err)
	assert.Contains(t, msg, "Unknown command")
}
