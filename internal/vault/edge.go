package vault

import (
	"context"
	"strings"
	"time"

	"github.com/harunnryd/copydesk/internal/content"
	copyErrors "github.com/harunnryd/copydesk/internal/errors"
)

// Invoker calls a named remote function with a JSON payload.
type Invoker interface {
	Invoke(ctx context.Context, function string, payload any) (map[string]any, error)
}

// Edge saves through the save-to-library edge function.
type Edge struct {
	invoker  Invoker
	function string
}

func NewEdge(invoker Invoker, function string) *Edge {
	return &Edge{invoker: invoker, function: function}
}

func (e *Edge) Save(ctx context.Context, item content.Item, meta Metadata) (Receipt, error) {
	if err := validate(item); err != nil {
		return Receipt{}, err
	}

	payload := map[string]any{
		"itemId":       item.ID,
		"contentType":  item.ContentType,
		"title":        Title(item),
		"content":      item.Body(),
		"originPrompt": item.OriginPrompt,
	}
	if url := mediaURL(item); url != "" {
		payload["mediaUrl"] = url
	}
	if len(item.Payload.Variants) > 0 {
		payload["variants"] = item.Payload.Variants
	}
	if len(meta) > 0 {
		payload["metadata"] = meta
	}

	resp, err := e.invoker.Invoke(ctx, e.function, payload)
	if err != nil {
		return Receipt{}, err
	}

	if ok, present := resp["success"].(bool); present && !ok {
		msg, _ := resp["error"].(string)
		if msg == "" {
			msg = "library rejected the item"
		}
		return Receipt{}, copyErrors.Backend(msg)
	}

	id, _ := resp["id"].(string)
	if strings.TrimSpace(id) == "" {
		return Receipt{}, copyErrors.Backend("library response carried no id")
	}
	return Receipt{ID: id, SavedAt: time.Now()}, nil
}
