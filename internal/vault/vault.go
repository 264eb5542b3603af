// Package vault saves finished content into the content library.
package vault

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/harunnryd/copydesk/internal/content"
	copyErrors "github.com/harunnryd/copydesk/internal/errors"
)

// Metadata is free-form context stored with a saved item (session id,
// campaign name, tags).
type Metadata map[string]string

type Receipt struct {
	ID      string    `json:"id"`
	SavedAt time.Time `json:"saved_at"`
	// Duplicate is set when the item had already been saved and the earlier
	// receipt is being returned.
	Duplicate bool `json:"duplicate,omitempty"`
}

// Sink persists content items.
type Sink interface {
	Save(ctx context.Context, item content.Item, meta Metadata) (Receipt, error)
}

// Entry is a library record as returned by List and Search.
type Entry struct {
	ID          string      `json:"id"`
	ItemID      string      `json:"item_id"`
	ContentType content.Tag `json:"content_type"`
	Title       string      `json:"title"`
	Body        string      `json:"body"`
	MediaURL    string      `json:"media_url,omitempty"`
	Metadata    Metadata    `json:"metadata,omitempty"`
	SavedAt     time.Time   `json:"saved_at"`
	Score       float32     `json:"score,omitempty"`
}

// Library is a Sink that can also be browsed.
type Library interface {
	Sink
	List(ctx context.Context, contentType content.Tag, limit int) ([]Entry, error)
	Search(ctx context.Context, query string, limit int) ([]Entry, error)
}

// Title derives a library title from the item.
func Title(item content.Item) string {
	label := item.ContentType.Label()
	if label == "" {
		label = "content"
	}
	if item.Payload.Text != "" {
		if summary := item.Summary(); summary != "" {
			return summary
		}
	}
	return fmt.Sprintf("%s (%s)", strings.ToUpper(label[:1])+label[1:], item.CreatedAt.Format("2006-01-02"))
}

func validate(item content.Item) error {
	if strings.TrimSpace(item.ID) == "" {
		return copyErrors.InvalidInput("content item has no id")
	}
	if strings.TrimSpace(item.Body()) == "" {
		return copyErrors.InvalidInput("content item is empty")
	}
	return nil
}

func mediaURL(item content.Item) string {
	if item.Payload.Media != nil {
		return item.Payload.Media.URL
	}
	return ""
}
