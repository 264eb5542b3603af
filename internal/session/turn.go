package session

import (
	"time"

	"github.com/harunnryd/copydesk/internal/content"
	"github.com/harunnryd/copydesk/internal/guide"
	"github.com/harunnryd/copydesk/internal/poller"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Kind tells clients how to render a turn.
type Kind string

const (
	KindMessage    Kind = "message"
	KindContent    Kind = "content"
	KindGenerating Kind = "generating"
	KindError      Kind = "error"
	KindAdvisory   Kind = "advisory"
	KindSaved      Kind = "saved"
)

type Turn struct {
	ID          string             `json:"id"`
	Role        Role               `json:"role"`
	Kind        Kind               `json:"kind"`
	Text        string             `json:"text"`
	Item        *content.Item      `json:"item,omitempty"`
	JobID       string             `json:"job_id,omitempty"`
	Capability  content.Capability `json:"capability,omitempty"`
	ContentType content.Tag        `json:"content_type,omitempty"`
	Caveat      string             `json:"caveat,omitempty"`
	ReceiptID   string             `json:"receipt_id,omitempty"`
	Suggestions []string           `json:"suggestions,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}

func (t Turn) clone() Turn {
	out := t
	if t.Item != nil {
		item := t.Item.Clone()
		out.Item = &item
	}
	if t.Suggestions != nil {
		out.Suggestions = append([]string(nil), t.Suggestions...)
	}
	return out
}

// Job is the session's view of an async generation.
type Job struct {
	ID          string             `json:"id"`
	Capability  content.Capability `json:"capability"`
	ContentType content.Tag        `json:"content_type"`
	Prompt      string             `json:"prompt"`
	State       poller.State       `json:"state"`
	StartedAt   time.Time          `json:"started_at"`
	FinishedAt  time.Time          `json:"finished_at,omitempty"`
}

// Snapshot is a consistent copy of session state.
type Snapshot struct {
	ID          string         `json:"id"`
	Mode        Mode           `json:"mode"`
	ContentType content.Tag    `json:"content_type,omitempty"`
	Transcript  []Turn         `json:"transcript"`
	Jobs        []Job          `json:"jobs"`
	Items       []content.Item `json:"items"`
	Staged      *guide.Plan    `json:"staged,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}
