package vault

import (
	"context"

	"github.com/harunnryd/copydesk/internal/model"
)

// ModelEmbedder embeds through the model router.
type ModelEmbedder struct {
	Router model.ModelRouter
	Model  string
}

func (m ModelEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return m.Router.RouteEmbedding(ctx, m.Model, text)
}
