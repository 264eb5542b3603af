package dispatch

import "github.com/harunnryd/copydesk/internal/content"

// Route is the static capability entry for a content type. Guided routes are
// discussed with the chat guide and approved before they are dispatched.
type Route struct {
	Capability content.Capability
	Guided     bool
}

// Table maps content tags to routes. Treat it as read-only once built.
type Table map[content.Tag]Route

func DefaultTable() Table {
	return Table{
		content.TagPressRelease:    {Capability: content.CapabilityText},
		content.TagSocialPost:      {Capability: content.CapabilityText},
		content.TagEmail:           {Capability: content.CapabilityText},
		content.TagBlogPost:        {Capability: content.CapabilityText},
		content.TagMediaPitch:      {Capability: content.CapabilityText},
		content.TagCrisisStatement: {Capability: content.CapabilityText},
		content.TagMessaging:       {Capability: content.CapabilityText},
		content.TagCampaign:        {Capability: content.CapabilityCampaign, Guided: true},
		content.TagImage:           {Capability: content.CapabilityImage},
		content.TagVideo:           {Capability: content.CapabilityVideo},
		content.TagPresentation:    {Capability: content.CapabilityPresentation},
	}
}

// AsyncCapable reports whether a capability may answer with a job handle.
func AsyncCapable(c content.Capability) bool {
	return c == content.CapabilityVideo || c == content.CapabilityPresentation
}
