package formatter

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/harunnryd/copydesk/internal/content"
	"github.com/harunnryd/copydesk/internal/session"
	"github.com/harunnryd/copydesk/internal/vault"
)

func sampleEntries() []vault.Entry {
	return []vault.Entry{
		{ID: "lib-1", ContentType: content.TagPressRelease, Title: "Acme launches Rocket", Body: "FOR IMMEDIATE RELEASE", SavedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
		{ID: "lib-2", ContentType: content.TagImage, Body: "", MediaURL: "https://cdn.example/a.png", SavedAt: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)},
	}
}

func TestFormatterFactory_Create(t *testing.T) {
	factory := NewFormatterFactory()

	tests := []struct {
		name    string
		format  OutputFormat
		wantErr bool
	}{
		{name: "table format", format: OutputFormatTable},
		{name: "json format", format: OutputFormatJSON},
		{name: "yaml format", format: OutputFormatYAML},
		{name: "invalid format", format: OutputFormat("invalid"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := factory.Create(tt.format)
			if (err != nil) != tt.wantErr {
				t.Errorf("Create() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && f == nil {
				t.Error("Create() returned nil formatter for valid format")
			}
		})
	}
}

func TestParseOutputFormat(t *testing.T) {
	if got, err := ParseOutputFormat(" JSON "); err != nil || got != OutputFormatJSON {
		t.Fatalf("ParseOutputFormat() = %q, %v", got, err)
	}
	if _, err := ParseOutputFormat("xml"); err == nil {
		t.Fatal("expected error for xml")
	}
}

func TestTableFormatter_Entries(t *testing.T) {
	out, err := NewTableFormatter().FormatEntries(sampleEntries())
	if err != nil {
		t.Fatalf("FormatEntries() error = %v", err)
	}
	for _, want := range []string{"lib-1", "press release", "Acme launches Rocket", "lib-2", "image"} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q:\n%s", want, out)
		}
	}

	empty, _ := NewTableFormatter().FormatEntries(nil)
	if empty != "No saved content found" {
		t.Errorf("empty output = %q", empty)
	}
}

func TestTableFormatter_Sessions(t *testing.T) {
	out, err := NewTableFormatter().FormatSessions([]session.Info{
		{ID: "s1", Title: "Launch plan", Mode: "idle", Status: "active", Live: true, TurnCount: 4},
	})
	if err != nil {
		t.Fatalf("FormatSessions() error = %v", err)
	}
	if !strings.Contains(out, "active (live)") || !strings.Contains(out, "Launch plan") {
		t.Errorf("unexpected table:\n%s", out)
	}
}

func TestJSONFormatter_EmptyIsArray(t *testing.T) {
	out, err := NewJSONFormatter().FormatEntries(nil)
	if err != nil {
		t.Fatalf("FormatEntries() error = %v", err)
	}
	if out != "[]" {
		t.Fatalf("output = %q, want []", out)
	}

	out, err = NewJSONFormatter().FormatEntries(sampleEntries())
	if err != nil {
		t.Fatalf("FormatEntries() error = %v", err)
	}
	var decoded []vault.Entry
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if len(decoded) != 2 || decoded[1].MediaURL != "https://cdn.example/a.png" {
		t.Fatalf("decoded = %+v", decoded)
	}
}

func TestYAMLFormatter_UsesSnakeCaseKeys(t *testing.T) {
	out, err := NewYAMLFormatter().FormatEntries(sampleEntries())
	if err != nil {
		t.Fatalf("FormatEntries() error = %v", err)
	}
	if !strings.Contains(out, "content_type: press-release") {
		t.Errorf("yaml output missing content_type:\n%s", out)
	}
	if !strings.Contains(out, "media_url: https://cdn.example/a.png") {
		t.Errorf("yaml output missing media_url:\n%s", out)
	}
}

func TestTruncateString(t *testing.T) {
	if got := truncateString("short", 10); got != "short" {
		t.Errorf("truncateString() = %q", got)
	}
	if got := truncateString("a long title that keeps going", 10); got != "a long ..." {
		t.Errorf("truncateString() = %q", got)
	}
}
