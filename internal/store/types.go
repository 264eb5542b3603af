package store

import "time"

// --- Session Index (sessions/index.json) ---

type SessionMeta struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Status      string            `json:"status"` // "active", "closed"
	Mode        string            `json:"mode"`
	ContentType string            `json:"content_type,omitempty"` // sticky selection
	TurnCount   int               `json:"turn_count"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type SessionIndex struct {
	Sessions map[string]SessionMeta `json:"sessions"`
}

// --- Transcript (sessions/<id>.jsonl) ---
// Lines are opaque JSON written by the session recorder.

// --- Library (library/index.json) ---

type LibraryRecord struct {
	ID           string            `json:"id"`
	ItemID       string            `json:"item_id"`
	SessionID    string            `json:"session_id,omitempty"`
	ContentType  string            `json:"content_type"`
	Title        string            `json:"title"`
	Body         string            `json:"body"`
	MediaURL     string            `json:"media_url,omitempty"`
	OriginPrompt string            `json:"origin_prompt,omitempty"`
	Fallback     bool              `json:"fallback,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	SavedAt      time.Time         `json:"saved_at"`
}

type LibraryIndex struct {
	Records map[string]LibraryRecord `json:"records"`
}

type VectorResult struct {
	ID       string
	Score    float32
	Metadata map[string]string
	Content  string
}
