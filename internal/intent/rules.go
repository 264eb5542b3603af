package intent

import "github.com/harunnryd/copydesk/internal/content"

// DefaultRules is the built-in keyword table. Media formats come first so
// "a video for our press release" produces a video; crisis precedes press
// release so incident statements are not filed as announcements.
func DefaultRules() []Rule {
	return []Rule{
		{Tag: content.TagPresentation, Keywords: []string{"presentation", "slide deck", "slides", "pitch deck", "deck", "keynote"}},
		{Tag: content.TagVideo, Keywords: []string{"video", "reel", "clip", "animation", "footage"}},
		{Tag: content.TagImage, Keywords: []string{"image", "picture", "photo", "graphic", "illustration", "visual", "banner"}},
		{Tag: content.TagCampaign, Keywords: []string{"campaign", "multi-channel", "multichannel", "content plan", "launch plan"}},
		{Tag: content.TagCrisisStatement, Keywords: []string{"crisis", "apology", "incident", "recall", "breach", "holding statement"}},
		{Tag: content.TagPressRelease, Keywords: []string{"press release", "news release", "announcement", "announce"}},
		{Tag: content.TagMediaPitch, Keywords: []string{"media pitch", "pitch", "journalist", "reporter", "media outreach"}},
		{Tag: content.TagEmail, Keywords: []string{"email", "e-mail", "newsletter"}},
		{Tag: content.TagSocialPost, Keywords: []string{"social", "tweet", "linkedin", "instagram", "facebook", "tiktok", "post"}},
		{Tag: content.TagBlogPost, Keywords: []string{"blog", "article", "op-ed", "thought leadership"}},
		{Tag: content.TagMessaging, Keywords: []string{"messaging", "key messages", "talking points", "positioning", "boilerplate"}},
	}
}
