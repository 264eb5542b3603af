package session

import (
	"encoding/json"
	"fmt"
	"log/slog"

	copyErrors "github.com/harunnryd/copydesk/internal/errors"
	"github.com/harunnryd/copydesk/internal/store"
)

// StoreRecorder writes turns as JSONL transcript lines and keeps the session
// index current through the store worker.
type StoreRecorder struct {
	store *store.Worker
}

func NewStoreRecorder(s *store.Worker) *StoreRecorder {
	return &StoreRecorder{store: s}
}

func (r *StoreRecorder) Record(sessionID string, turn Turn) error {
	line, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("marshal turn: %w", err)
	}
	return r.store.AppendTranscript(sessionID, line)
}

func (r *StoreRecorder) SaveMeta(meta store.SessionMeta) error {
	return r.store.SaveSession(meta)
}

// Load reads a persisted session. Unparseable transcript lines are skipped.
func (r *StoreRecorder) Load(sessionID string, limit int) (*Restore, error) {
	meta, err := r.store.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, copyErrors.NotFound(fmt.Sprintf("session %s", sessionID))
	}

	lines, err := r.store.ReadTranscript(sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	turns := make([]Turn, 0, len(lines))
	for _, line := range lines {
		var t Turn
		if err := json.Unmarshal([]byte(line), &t); err != nil {
			slog.Warn("Skipping unreadable transcript line", "session_id", sessionID, "error", err)
			continue
		}
		turns = append(turns, t)
	}
	return &Restore{Meta: *meta, Transcript: turns}, nil
}

// List returns persisted session metadata, most recent first.
func (r *StoreRecorder) List() ([]store.SessionMeta, error) {
	return r.store.ListSessions()
}

func (r *StoreRecorder) Delete(sessionID string) error {
	return r.store.DeleteSession(sessionID)
}

// MarkClosed flags the index entry so listings show the session ended.
func (r *StoreRecorder) MarkClosed(sessionID string) error {
	meta, err := r.store.GetSession(sessionID)
	if err != nil || meta == nil {
		return err
	}
	meta.Status = "closed"
	return r.store.SaveSession(*meta)
}
