// Package content holds the generated-material types shared by the
// dispatcher, the job poller, the conversation and the library.
package content

import (
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Tag is a content-type label from the fixed vocabulary below.
type Tag string

const (
	TagPressRelease    Tag = "press-release"
	TagSocialPost      Tag = "social-post"
	TagEmail           Tag = "email"
	TagBlogPost        Tag = "blog-post"
	TagMediaPitch      Tag = "media-pitch"
	TagCrisisStatement Tag = "crisis-statement"
	TagMessaging       Tag = "messaging"
	TagCampaign        Tag = "campaign"
	TagImage           Tag = "image"
	TagVideo           Tag = "video"
	TagPresentation    Tag = "presentation"
)

var knownTags = []Tag{
	TagPressRelease, TagSocialPost, TagEmail, TagBlogPost, TagMediaPitch,
	TagCrisisStatement, TagMessaging, TagCampaign, TagImage, TagVideo, TagPresentation,
}

// Tags returns the vocabulary in a stable order.
func Tags() []Tag {
	out := make([]Tag, len(knownTags))
	copy(out, knownTags)
	return out
}

// ParseTag normalizes user or config input ("Press Release", "press_release").
func ParseTag(s string) (Tag, bool) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "-", "_", "-").Replace(norm)
	for _, t := range knownTags {
		if string(t) == norm {
			return t, true
		}
	}
	return "", false
}

// Label is the human form used in prompts and chat turns.
func (t Tag) Label() string {
	return strings.ReplaceAll(string(t), "-", " ")
}

// Capability is a backend generation capability.
type Capability string

const (
	CapabilityText         Capability = "text"
	CapabilityImage        Capability = "image"
	CapabilityVideo        Capability = "video"
	CapabilityCampaign     Capability = "campaign"
	CapabilityPresentation Capability = "presentation"
)

func Capabilities() []Capability {
	return []Capability{CapabilityText, CapabilityImage, CapabilityVideo, CapabilityCampaign, CapabilityPresentation}
}

func (c Capability) Valid() bool {
	for _, known := range Capabilities() {
		if c == known {
			return true
		}
	}
	return false
}

// Status of a content item. Items only ever move draft/completed -> saved.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusCompleted Status = "completed"
	StatusSaved     Status = "saved"
)

// MediaKind classifies a URL payload.
type MediaKind string

const (
	MediaImage        MediaKind = "image"
	MediaVideo        MediaKind = "video"
	MediaPresentation MediaKind = "presentation"
)

// Media is a reference to a rendered artifact.
type Media struct {
	URL  string    `json:"url"`
	Kind MediaKind `json:"kind"`
}

// Payload carries exactly one of Text, Media or Variants.
type Payload struct {
	Text     string            `json:"text,omitempty"`
	Media    *Media            `json:"media,omitempty"`
	Variants map[string]string `json:"variants,omitempty"`
}

// Item is one piece of generated material.
type Item struct {
	ID           string    `json:"id"`
	ContentType  Tag       `json:"content_type"`
	Payload      Payload   `json:"payload"`
	Status       Status    `json:"status"`
	OriginPrompt string    `json:"origin_prompt"`
	Fallback     bool      `json:"fallback,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewItem builds a completed item with a fresh ULID.
func NewItem(tag Tag, payload Payload, prompt string) Item {
	return Item{
		ID:           ulid.Make().String(),
		ContentType:  tag,
		Payload:      payload,
		Status:       StatusCompleted,
		OriginPrompt: prompt,
		CreatedAt:    time.Now(),
	}
}

// Clone deep-copies the item.
func (i Item) Clone() Item {
	out := i
	if i.Payload.Media != nil {
		m := *i.Payload.Media
		out.Payload.Media = &m
	}
	if i.Payload.Variants != nil {
		out.Payload.Variants = make(map[string]string, len(i.Payload.Variants))
		for k, v := range i.Payload.Variants {
			out.Payload.Variants[k] = v
		}
	}
	return out
}

// Summary is a short single-line rendering of the payload.
func (i Item) Summary() string {
	switch {
	case i.Payload.Media != nil:
		return i.Payload.Media.URL
	case len(i.Payload.Variants) > 0:
		return strings.Join(i.VariantKeys(), ", ")
	default:
		text := strings.TrimSpace(i.Payload.Text)
		if idx := strings.IndexByte(text, '\n'); idx >= 0 {
			text = text[:idx]
		}
		if runes := []rune(text); len(runes) > 80 {
			text = string(runes[:77]) + "..."
		}
		return text
	}
}

// Body returns the full text form used for indexing and display.
func (i Item) Body() string {
	switch {
	case i.Payload.Media != nil:
		return i.Payload.Media.URL
	case len(i.Payload.Variants) > 0:
		var b strings.Builder
		for _, k := range i.VariantKeys() {
			b.WriteString(k)
			b.WriteString(":\n")
			b.WriteString(i.Payload.Variants[k])
			b.WriteString("\n\n")
		}
		return strings.TrimSpace(b.String())
	default:
		return i.Payload.Text
	}
}
