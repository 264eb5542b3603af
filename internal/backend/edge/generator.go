package edge

import (
	"context"

	"github.com/harunnryd/copydesk/internal/config"
	"github.com/harunnryd/copydesk/internal/content"
	"github.com/harunnryd/copydesk/internal/dispatch"
	copyErrors "github.com/harunnryd/copydesk/internal/errors"
)

// Generator is a dispatch.Backend that maps each capability to its own
// edge function.
type Generator struct {
	client    *Client
	functions map[content.Capability]string
}

func NewGenerator(client *Client, fns config.EdgeFunctions) *Generator {
	return &Generator{
		client: client,
		functions: map[content.Capability]string{
			content.CapabilityText:     fns.Generate,
			content.CapabilityCampaign: fns.Campaign,
			content.CapabilityImage:    fns.Image,
			content.CapabilityVideo:    fns.Video,
		},
	}
}

func (g *Generator) Generate(ctx context.Context, req dispatch.Request) (dispatch.Response, error) {
	fn := g.functions[req.Capability]
	if fn == "" {
		return nil, copyErrors.NotFound("no edge function for capability " + string(req.Capability))
	}

	body := map[string]any{
		"contentType": req.ContentType,
		"prompt":      req.Prompt,
	}
	if req.Context != nil {
		body["context"] = req.Context
	}

	resp, err := g.client.Invoke(ctx, fn, body)
	if err != nil {
		return nil, err
	}
	return dispatch.Response(resp), nil
}
