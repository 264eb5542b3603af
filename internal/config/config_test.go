package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearVendorEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GEMINI_API_KEY",
		"SUPABASE_URL", "SUPABASE_ANON_KEY", "GAMMA_API_KEY",
		"GOOGLE_CLOUD_PROJECT", "GOOGLE_CLOUD_LOCATION",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(t.TempDir())
	clearVendorEnv(t)

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, DefaultPollerInterval, cfg.Poller.Interval)
	assert.Equal(t, DefaultPollerMaxAttempts, cfg.Poller.MaxAttempts)
	assert.Equal(t, DefaultIntentTag, cfg.Intent.DefaultTag)
	assert.Equal(t, "gamma", cfg.Backends.Routes["presentation"])
	assert.Equal(t, "vertex", cfg.Backends.Routes["video"])
	assert.Equal(t, DefaultEdgeJobStatusFunction, cfg.Backends.Edge.Functions.JobStatus)
	assert.Equal(t, DefaultSuggestions, cfg.Session.Suggestions)
	assert.Contains(t, cfg.Session.AffirmativePhrases, "go ahead")
	assert.Equal(t, filepath.Join(home, ".copydesk", "workspaces"), cfg.Store.WorkspacePath)
	require.Len(t, cfg.Models.Registry, 3)
	assert.Equal(t, "anthropic", cfg.Models.Registry[0].Provider)
}

func TestLoadFromFileAndEnvFallbacks(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
	clearVendorEnv(t)
	t.Setenv("SUPABASE_URL", "https://project.supabase.co")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
poller:
  interval: 4s
  max_attempts: 30
intent:
  default_tag: messaging
  rules:
    - tag: video
      keywords: [video, reel]
backends:
  gamma:
    api_key: gamma-key
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("config", "", "")
	require.NoError(t, cmd.Flags().Set("config", path))

	cfg, err := Load(cmd)
	require.NoError(t, err)

	assert.Equal(t, "4s", cfg.Poller.Interval)
	assert.Equal(t, 30, cfg.Poller.MaxAttempts)
	assert.Equal(t, "messaging", cfg.Intent.DefaultTag)
	require.Len(t, cfg.Intent.Rules, 1)
	assert.Equal(t, []string{"video", "reel"}, cfg.Intent.Rules[0].Keywords)
	assert.Equal(t, "gamma-key", cfg.Backends.Gamma.APIKey)
	assert.Equal(t, "https://project.supabase.co", cfg.Backends.Edge.BaseURL)
	assert.Equal(t, "sk-ant-test", cfg.Models.Registry[0].APIKey)
	assert.Empty(t, cfg.Models.Registry[1].APIKey)
}

func TestLoadDotEnv(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	t.Chdir(dir)
	clearVendorEnv(t)
	os.Unsetenv("GAMMA_API_KEY")
	t.Cleanup(func() { os.Unsetenv("GAMMA_API_KEY") })

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("GAMMA_API_KEY=from-dotenv\n"), 0644))

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Backends.Gamma.APIKey)
}

func TestDurationOrDefault(t *testing.T) {
	d, err := DurationOrDefault("", DefaultPollerInterval)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, d)

	d, err = DurationOrDefault(" 10ms ", DefaultPollerInterval)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Millisecond, d)

	_, err = DurationOrDefault("soon", "")
	assert.Error(t, err)

	_, err = DurationOrDefault("", "")
	assert.Error(t, err)
}

func TestExpandPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("COPYDESK_TEST_DIR", "data")

	got, err := ExpandPath("~/workspaces")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "workspaces"), got)

	got, err = ExpandPath("/tmp/$COPYDESK_TEST_DIR")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/data", got)

	got, err = ExpandPath("  ")
	require.NoError(t, err)
	assert.Empty(t, got)
}
