package vault

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/harunnryd/copydesk/internal/content"
	copyErrors "github.com/harunnryd/copydesk/internal/errors"
	"github.com/harunnryd/copydesk/internal/store"
	"github.com/oklog/ulid/v2"
)

// Embedder turns text into a vector for semantic search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Local keeps the library inside the workspace store. Saves are deduplicated
// per item id for the idempotency TTL.
type Local struct {
	store       *store.Worker
	embedder    Embedder
	collection  string
	ttl         time.Duration
	searchLimit int
}

type LocalOptions struct {
	Collection  string
	TTL         time.Duration
	SearchLimit int
}

func NewLocal(s *store.Worker, embedder Embedder, opts LocalOptions) *Local {
	if opts.Collection == "" {
		opts.Collection = "library"
	}
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = 5
	}
	return &Local{
		store:       s,
		embedder:    embedder,
		collection:  opts.Collection,
		ttl:         opts.TTL,
		searchLimit: opts.SearchLimit,
	}
}

func saveKey(itemID string) string {
	return "library:" + itemID
}

func (l *Local) Save(ctx context.Context, item content.Item, meta Metadata) (Receipt, error) {
	if err := validate(item); err != nil {
		return Receipt{}, err
	}

	recordID := ulid.Make().String()
	stored, existed := l.store.Remember(saveKey(item.ID), recordID, l.ttl)
	if existed {
		rec, err := l.store.GetLibraryRecord(stored)
		if err == nil && rec != nil {
			slog.Info("Library save deduplicated", "item_id", item.ID, "record_id", stored)
			return Receipt{ID: stored, SavedAt: rec.SavedAt, Duplicate: true}, nil
		}
		// Key outlived its record; save again under the remembered id.
		recordID = stored
	}

	rec := store.LibraryRecord{
		ID:           recordID,
		ItemID:       item.ID,
		SessionID:    meta["session_id"],
		ContentType:  string(item.ContentType),
		Title:        Title(item),
		Body:         item.Body(),
		MediaURL:     mediaURL(item),
		OriginPrompt: item.OriginPrompt,
		Fallback:     item.Fallback,
		Metadata:     meta,
		SavedAt:      time.Now(),
	}
	if err := l.store.SaveLibraryRecord(rec); err != nil {
		l.store.Forget(saveKey(item.ID))
		return Receipt{}, copyErrors.WrapWithCategory(err, "save library record", copyErrors.ErrInternal)
	}

	if l.embedder != nil {
		l.index(ctx, rec)
	}

	slog.Info("Saved to library", "item_id", item.ID, "record_id", rec.ID, "content_type", rec.ContentType)
	return Receipt{ID: rec.ID, SavedAt: rec.SavedAt}, nil
}

// index failures only cost search recall, so they are logged.
func (l *Local) index(ctx context.Context, rec store.LibraryRecord) {
	text := rec.Title + "\n\n" + rec.Body
	vec, err := l.embedder.Embed(ctx, text)
	if err != nil {
		slog.Warn("Library embedding failed", "record_id", rec.ID, "error", err)
		return
	}
	meta := map[string]string{"content_type": rec.ContentType, "item_id": rec.ItemID}
	if err := l.store.UpsertVector(l.collection, rec.ID, vec, meta, text); err != nil {
		slog.Warn("Library vector upsert failed", "record_id", rec.ID, "error", err)
	}
}

func (l *Local) List(ctx context.Context, contentType content.Tag, limit int) ([]Entry, error) {
	recs, err := l.store.ListLibrary(string(contentType), limit)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(recs))
	for _, r := range recs {
		out = append(out, toEntry(r, 0))
	}
	return out, nil
}

// Search ranks by embedding similarity, falling back to a substring scan
// when no embedder is configured or embedding fails.
func (l *Local) Search(ctx context.Context, query string, limit int) ([]Entry, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, copyErrors.InvalidInput("search query is empty")
	}
	if limit <= 0 {
		limit = l.searchLimit
	}

	if l.embedder != nil {
		vec, err := l.embedder.Embed(ctx, query)
		if err == nil {
			return l.searchVectors(vec, limit)
		}
		slog.Warn("Query embedding failed, using keyword search", "error", err)
	}
	return l.searchKeywords(query, limit)
}

func (l *Local) searchVectors(vec []float32, limit int) ([]Entry, error) {
	hits, err := l.store.SearchVectors(l.collection, vec, limit)
	if err != nil {
		return nil, copyErrors.WrapWithCategory(err, "vector search", copyErrors.ErrInternal)
	}
	out := make([]Entry, 0, len(hits))
	for _, hit := range hits {
		rec, err := l.store.GetLibraryRecord(hit.ID)
		if err != nil || rec == nil {
			continue
		}
		out = append(out, toEntry(*rec, hit.Score))
	}
	return out, nil
}

func (l *Local) searchKeywords(query string, limit int) ([]Entry, error) {
	recs, err := l.store.ListLibrary("", 0)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(query)
	var out []Entry
	for _, r := range recs {
		if strings.Contains(strings.ToLower(r.Title+" "+r.Body), needle) {
			out = append(out, toEntry(r, 0))
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func toEntry(r store.LibraryRecord, score float32) Entry {
	return Entry{
		ID:          r.ID,
		ItemID:      r.ItemID,
		ContentType: content.Tag(r.ContentType),
		Title:       r.Title,
		Body:        r.Body,
		MediaURL:    r.MediaURL,
		Metadata:    Metadata(r.Metadata),
		SavedAt:     r.SavedAt,
		Score:       score,
	}
}

var _ Library = (*Local)(nil)
