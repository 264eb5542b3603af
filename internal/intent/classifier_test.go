package intent

import (
	"testing"

	"github.com/harunnryd/copydesk/internal/config"
	"github.com/harunnryd/copydesk/internal/content"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyDefaultRules(t *testing.T) {
	c := New(DefaultRules(), content.TagPressRelease)

	tests := []struct {
		text string
		want content.Tag
	}{
		{"Write a press release announcing our product launch", content.TagPressRelease},
		{"Quarterly investor deck", content.TagPresentation},
		{"Make a 15 second VIDEO teaser", content.TagVideo},
		{"A hero image for the homepage", content.TagImage},
		{"Plan a multi-channel campaign for the launch", content.TagCampaign},
		{"Draft a LinkedIn post about our award", content.TagSocialPost},
		{"Pitch this story to a tech journalist", content.TagMediaPitch},
		{"Customer newsletter for March", content.TagEmail},
		{"Thought leadership article on AI", content.TagBlogPost},
		{"Key messages for the CEO", content.TagMessaging},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.text))
		})
	}
}

func TestClassifyFirstMatchWins(t *testing.T) {
	c := New(DefaultRules(), content.TagPressRelease)
	// both the crisis and the press-release rule match; crisis is ordered first
	assert.Equal(t, content.TagCrisisStatement, c.Classify("press release about the data breach crisis"))

	reordered := New([]Rule{
		{Tag: content.TagPressRelease, Keywords: []string{"press release"}},
		{Tag: content.TagCrisisStatement, Keywords: []string{"crisis"}},
	}, content.TagMessaging)
	assert.Equal(t, content.TagPressRelease, reordered.Classify("press release about the data breach crisis"))
}

func TestClassifyIgnoresMatchLength(t *testing.T) {
	c := New([]Rule{
		{Tag: content.TagSocialPost, Keywords: []string{"post"}},
		{Tag: content.TagBlogPost, Keywords: []string{"blog post"}},
	}, content.TagMessaging)
	assert.Equal(t, content.TagSocialPost, c.Classify("a blog post"))
}

func TestClassifyDefaultIsDeterministic(t *testing.T) {
	c := New(DefaultRules(), content.TagMessaging)
	for i := 0; i < 3; i++ {
		assert.Equal(t, content.TagMessaging, c.Classify(""))
		assert.Equal(t, content.TagMessaging, c.Classify("   "))
		assert.Equal(t, content.TagMessaging, c.Classify("hello there"))
	}
}

func TestNewCopiesRules(t *testing.T) {
	rules := []Rule{{Tag: content.TagVideo, Keywords: []string{" Reel ", ""}}, {Tag: content.TagImage}}
	c := New(rules, content.TagPressRelease)
	rules[0].Keywords[0] = "changed"

	got := c.Rules()
	require.Len(t, got, 1)
	assert.Equal(t, []string{"reel"}, got[0].Keywords)
	assert.Equal(t, content.TagVideo, c.Classify("new REEL please"))
}

func TestFromConfig(t *testing.T) {
	c, err := FromConfig(config.IntentConfig{})
	require.NoError(t, err)
	assert.Equal(t, content.Tag(config.DefaultIntentTag), c.DefaultTag())
	assert.Len(t, c.Rules(), len(DefaultRules()))

	c, err = FromConfig(config.IntentConfig{
		DefaultTag: "social post",
		Rules:      []config.IntentRule{{Tag: "email", Keywords: []string{"memo"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, content.TagSocialPost, c.DefaultTag())
	assert.Equal(t, content.TagEmail, c.Classify("internal memo"))
	assert.Equal(t, content.TagSocialPost, c.Classify("press release"))

	_, err = FromConfig(config.IntentConfig{DefaultTag: "limerick"})
	assert.Error(t, err)

	_, err = FromConfig(config.IntentConfig{Rules: []config.IntentRule{{Tag: "sonnet", Keywords: []string{"x"}}}})
	assert.Error(t, err)
}
