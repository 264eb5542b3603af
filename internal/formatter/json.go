package formatter

import (
	"encoding/json"

	"github.com/harunnryd/copydesk/internal/session"
	"github.com/harunnryd/copydesk/internal/vault"
)

type JSONFormatter struct{}

func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{}
}

func (f *JSONFormatter) FormatEntries(entries []vault.Entry) (string, error) {
	if entries == nil {
		entries = []vault.Entry{}
	}
	return marshalIndent(entries)
}

func (f *JSONFormatter) FormatSessions(infos []session.Info) (string, error) {
	if infos == nil {
		infos = []session.Info{}
	}
	return marshalIndent(infos)
}

func marshalIndent(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
