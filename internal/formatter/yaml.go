package formatter

import (
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/harunnryd/copydesk/internal/session"
	"github.com/harunnryd/copydesk/internal/vault"
)

type YAMLFormatter struct{}

func NewYAMLFormatter() *YAMLFormatter {
	return &YAMLFormatter{}
}

// yamlEntry mirrors vault.Entry with snake_case keys; yaml.v3 ignores json
// tags.
type yamlEntry struct {
	ID          string            `yaml:"id"`
	ContentType string            `yaml:"content_type"`
	Title       string            `yaml:"title"`
	Body        string            `yaml:"body"`
	MediaURL    string            `yaml:"media_url,omitempty"`
	Metadata    map[string]string `yaml:"metadata,omitempty"`
	SavedAt     string            `yaml:"saved_at"`
}

type yamlSession struct {
	ID          string `yaml:"id"`
	Title       string `yaml:"title"`
	Mode        string `yaml:"mode"`
	Status      string `yaml:"status"`
	Live        bool   `yaml:"live"`
	PendingJobs int    `yaml:"pending_jobs"`
	TurnCount   int    `yaml:"turn_count"`
	UpdatedAt   string `yaml:"updated_at"`
}

func (f *YAMLFormatter) FormatEntries(entries []vault.Entry) (string, error) {
	out := make([]yamlEntry, len(entries))
	for i, e := range entries {
		out[i] = yamlEntry{
			ID:          e.ID,
			ContentType: string(e.ContentType),
			Title:       e.Title,
			Body:        e.Body,
			MediaURL:    e.MediaURL,
			Metadata:    e.Metadata,
			SavedAt:     e.SavedAt.Format(timeLayout),
		}
	}
	return marshalYAML(out)
}

func (f *YAMLFormatter) FormatSessions(infos []session.Info) (string, error) {
	out := make([]yamlSession, len(infos))
	for i, s := range infos {
		out[i] = yamlSession{
			ID:          s.ID,
			Title:       s.Title,
			Mode:        s.Mode,
			Status:      s.Status,
			Live:        s.Live,
			PendingJobs: s.PendingJobs,
			TurnCount:   s.TurnCount,
			UpdatedAt:   s.UpdatedAt.Format(timeLayout),
		}
	}
	return marshalYAML(out)
}

func marshalYAML(v any) (string, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
