package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/harunnryd/copydesk/internal/content"
)

// Backend performs exactly one generation call and returns the raw decoded
// JSON body. Field naming differs wildly between backends; Normalize sorts
// it out.
type Backend interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

type Request struct {
	ContentType content.Tag        `json:"contentType"`
	Capability  content.Capability `json:"capability"`
	Prompt      string             `json:"prompt"`
	Context     Context            `json:"context,omitempty"`
}

// Response is a decoded JSON object.
type Response map[string]any

// Context is the opaque bag (organization, framework, tone, audience, ...)
// forwarded to backends verbatim.
type Context map[string]any

// OrganizationName reads organization.name or organizationName when present.
func (c Context) OrganizationName() string {
	if c == nil {
		return ""
	}
	if org, ok := c["organization"].(map[string]any); ok {
		if name, ok := org["name"].(string); ok && strings.TrimSpace(name) != "" {
			return strings.TrimSpace(name)
		}
	}
	if name, ok := c["organizationName"].(string); ok {
		return strings.TrimSpace(name)
	}
	return ""
}

// Clone copies the top level of the bag.
func (c Context) Clone() Context {
	if c == nil {
		return nil
	}
	out := make(Context, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// DefaultPrompt is substituted for an empty prompt.
func DefaultPrompt(tag content.Tag, bag Context) string {
	org := bag.OrganizationName()
	if org == "" {
		org = "our organization"
	}
	return fmt.Sprintf("Create a %s for %s.", tag.Label(), org)
}
