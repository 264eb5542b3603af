// Package formatter renders library entries and session listings for the
// CLI as a table, JSON or YAML.
package formatter

import (
	"fmt"
	"strings"

	"github.com/harunnryd/copydesk/internal/session"
	"github.com/harunnryd/copydesk/internal/vault"
)

type OutputFormat string

const (
	OutputFormatTable OutputFormat = "table"
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatYAML  OutputFormat = "yaml"
)

type Formatter interface {
	FormatEntries([]vault.Entry) (string, error)
	FormatSessions([]session.Info) (string, error)
}

type FormatterFactory struct{}

func NewFormatterFactory() *FormatterFactory {
	return &FormatterFactory{}
}

func (f *FormatterFactory) Create(format OutputFormat) (Formatter, error) {
	switch format {
	case OutputFormatTable:
		return NewTableFormatter(), nil
	case OutputFormatJSON:
		return NewJSONFormatter(), nil
	case OutputFormatYAML:
		return NewYAMLFormatter(), nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s (supported: table, json, yaml)", format)
	}
}

func ParseOutputFormat(s string) (OutputFormat, error) {
	format := OutputFormat(strings.ToLower(strings.TrimSpace(s)))
	switch format {
	case OutputFormatTable, OutputFormatJSON, OutputFormatYAML:
		return format, nil
	default:
		return "", fmt.Errorf("invalid output format: %s (supported: table, json, yaml)", s)
	}
}
