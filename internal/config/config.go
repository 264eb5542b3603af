package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
)

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Store    StoreConfig    `koanf:"store"`
	Session  SessionConfig  `koanf:"session"`
	Poller   PollerConfig   `koanf:"poller"`
	Intent   IntentConfig   `koanf:"intent"`
	Backends BackendsConfig `koanf:"backends"`
	Models   ModelsConfig   `koanf:"models"`
	Guide    GuideConfig    `koanf:"guide"`
	Vault    VaultConfig    `koanf:"vault"`
	Daemon   DaemonConfig   `koanf:"daemon"`
}

type ServerConfig struct {
	Port            int      `koanf:"port"`
	LogLevel        string   `koanf:"log_level"`
	ReadTimeout     string   `koanf:"read_timeout"`
	WriteTimeout    string   `koanf:"write_timeout"`
	IdleTimeout     string   `koanf:"idle_timeout"`
	ShutdownTimeout string   `koanf:"shutdown_timeout"`
	AllowedOrigins  []string `koanf:"allowed_origins"`
}

type StoreConfig struct {
	WorkspaceID              string `koanf:"workspace_id"`
	WorkspacePath            string `koanf:"workspace_path"`
	LockTimeout              string `koanf:"lock_timeout"`
	LockRetry                string `koanf:"lock_retry"`
	LockMaxRetry             int    `koanf:"lock_max_retry"`
	InboxSize                int    `koanf:"inbox_size"`
	TranscriptRotateMaxBytes int64  `koanf:"transcript_rotate_max_bytes"`
}

// SessionConfig controls the conversation state machine.
type SessionConfig struct {
	IdleTTL            string   `koanf:"idle_ttl"`
	SweepSchedule      string   `koanf:"sweep_schedule"`
	DispatchTimeout    string   `koanf:"dispatch_timeout"`
	InboxSize          int      `koanf:"inbox_size"`
	AutoSave           bool     `koanf:"auto_save"`
	Suggestions        []string `koanf:"suggestions"`
	AffirmativePhrases []string `koanf:"affirmative_phrases"`
}

type PollerConfig struct {
	Interval       string `koanf:"interval"`
	MaxAttempts    int    `koanf:"max_attempts"`
	RequestTimeout string `koanf:"request_timeout"`
}

type IntentConfig struct {
	DefaultTag string       `koanf:"default_tag"`
	Rules      []IntentRule `koanf:"rules"`
}

type IntentRule struct {
	Tag      string   `koanf:"tag"`
	Keywords []string `koanf:"keywords"`
}

// BackendsConfig describes the generation backends. Routes maps a capability
// (text, image, video, campaign, presentation) to a backend name.
type BackendsConfig struct {
	Routes map[string]string `koanf:"routes"`
	Edge   EdgeConfig        `koanf:"edge"`
	Gamma  GammaConfig       `koanf:"gamma"`
	Vertex VertexConfig      `koanf:"vertex"`
}

type EdgeConfig struct {
	BaseURL   string        `koanf:"base_url"`
	AnonKey   string        `koanf:"anon_key"`
	Timeout   string        `koanf:"timeout"`
	Functions EdgeFunctions `koanf:"functions"`
}

type EdgeFunctions struct {
	Generate  string `koanf:"generate"`
	Campaign  string `koanf:"campaign"`
	Image     string `koanf:"image"`
	Video     string `koanf:"video"`
	JobStatus string `koanf:"job_status"`
	Chat      string `koanf:"chat"`
	Library   string `koanf:"library"`
}

type GammaConfig struct {
	BaseURL   string `koanf:"base_url"`
	APIKey    string `koanf:"api_key"`
	Timeout   string `koanf:"timeout"`
	TextMode  string `koanf:"text_mode"`
	ThemeName string `koanf:"theme_name"`
	NumCards  int    `koanf:"num_cards"`
}

type VertexConfig struct {
	Project    string `koanf:"project"`
	Location   string `koanf:"location"`
	APIKey     string `koanf:"api_key"`
	ImageModel string `koanf:"image_model"`
	VideoModel string `koanf:"video_model"`
}

type ModelsConfig struct {
	Default             string          `koanf:"default"`
	Fallback            string          `koanf:"fallback"`
	Embedding           string          `koanf:"embedding"`
	MaxFallbackAttempts int             `koanf:"max_fallback_attempts"`
	Registry            []ModelRegistry `koanf:"registry"`
}

// ModelRegistry names a provider model. Model is the vendor model id and
// defaults to Name.
type ModelRegistry struct {
	Name     string `koanf:"name"`
	Provider string `koanf:"provider"`
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"`
	APIKey   string `koanf:"api_key"`
}

// GuideConfig selects the conversational backend used before generation.
type GuideConfig struct {
	Backend      string `koanf:"backend"`
	Model        string `koanf:"model"`
	System       string `koanf:"system"`
	HistoryLimit int    `koanf:"history_limit"`
}

type VaultConfig struct {
	Backend        string `koanf:"backend"`
	Collection     string `koanf:"collection"`
	SearchLimit    int    `koanf:"search_limit"`
	IdempotencyTTL string `koanf:"idempotency_ttl"`
}

type DaemonConfig struct {
	ShutdownTimeout        string `koanf:"shutdown_timeout"`
	StartupShutdownTimeout string `koanf:"startup_shutdown_timeout"`
	HealthCheckInterval    string `koanf:"health_check_interval"`
}

const (
	DefaultWorkspaceID                   = "default"
	DefaultServerPort                    = 8787
	DefaultServerLogLevel                = "info"
	DefaultServerReadTimeout             = "15s"
	DefaultServerWriteTimeout            = "120s"
	DefaultServerIdleTimeout             = "60s"
	DefaultServerShutdownTimeout         = "5s"
	DefaultStoreLockTimeout              = "30s"
	DefaultStoreLockRetry                = "100ms"
	DefaultStoreLockMaxRetry             = 300
	DefaultStoreInboxSize                = 100
	DefaultStoreTranscriptRotateMaxBytes = 10 * 1024 * 1024
	DefaultSessionIdleTTL                = "2h"
	DefaultSessionSweepSchedule          = "@every 5m"
	DefaultSessionDispatchTimeout        = "90s"
	DefaultSessionInboxSize              = 64
	DefaultPollerInterval                = "3s"
	DefaultPollerMaxAttempts             = 60
	DefaultPollerRequestTimeout          = "15s"
	DefaultIntentTag                     = "press-release"
	DefaultEdgeTimeout                   = "90s"
	DefaultEdgeGenerateFunction          = "generate-content"
	DefaultEdgeCampaignFunction          = "orchestrate-campaign"
	DefaultEdgeImageFunction             = "generate-image"
	DefaultEdgeVideoFunction             = "generate-video"
	DefaultEdgeJobStatusFunction         = "check-generation-status"
	DefaultEdgeChatFunction              = "ai-content-assistant"
	DefaultEdgeLibraryFunction           = "save-to-library"
	DefaultGammaBaseURL                  = "https://public-api.gamma.app/v0.2"
	DefaultGammaTimeout                  = "30s"
	DefaultGammaTextMode                 = "generate"
	DefaultVertexLocation                = "us-central1"
	DefaultVertexImageModel              = "imagen-3.0-generate-002"
	DefaultVertexVideoModel              = "veo-2.0-generate-001"
	DefaultModelDefault                  = "claude-sonnet"
	DefaultModelFallback                 = "gpt-4o-mini"
	DefaultModelEmbedding                = "gemini-embed"
	DefaultModelMaxFallbackAttempts      = 2
	DefaultOpenAIBaseURL                 = "https://api.openai.com/v1"
	DefaultAnthropicModel                = "claude-sonnet-4-5"
	DefaultGeminiEmbeddingModel          = "text-embedding-004"
	DefaultGuideBackend                  = "model"
	DefaultGuideHistoryLimit             = 20
	DefaultGuideSystemPrompt             = "You are a PR and marketing content strategist helping a communications team. Ask one clarifying question at a time when the brief is incomplete, propose a plan when you have enough to go on, and never write the final content yourself."
	DefaultVaultBackend                  = "local"
	DefaultVaultCollection               = "library"
	DefaultVaultSearchLimit              = 5
	DefaultVaultIdempotencyTTL           = "24h"
	DefaultDaemonShutdownTimeout         = "30s"
	DefaultDaemonStartupShutdownTimeout  = "10s"
	DefaultDaemonHealthCheckInterval     = "30s"
)

// DefaultSuggestions are offered after a piece of content is generated.
var DefaultSuggestions = []string{
	"Make it shorter",
	"Adjust the tone",
	"Turn this into social posts",
	"Save it to the library",
}

// DefaultAffirmativePhrases approve a staged plan.
var DefaultAffirmativePhrases = []string{
	"yes", "y", "yep", "yeah", "sure", "ok", "okay",
	"proceed", "go ahead", "go for it", "sounds good", "looks good",
	"do it", "let's do it", "lets do it", "approve", "approved", "confirm",
}

func Load(cmd *cobra.Command) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.port":                        DefaultServerPort,
		"server.log_level":                   DefaultServerLogLevel,
		"server.read_timeout":                DefaultServerReadTimeout,
		"server.write_timeout":               DefaultServerWriteTimeout,
		"server.idle_timeout":                DefaultServerIdleTimeout,
		"server.shutdown_timeout":            DefaultServerShutdownTimeout,
		"server.allowed_origins":             []string{"*"},
		"store.workspace_id":                 DefaultWorkspaceID,
		"store.workspace_path":               filepath.Join(os.Getenv("HOME"), ".copydesk", "workspaces"),
		"store.lock_timeout":                 DefaultStoreLockTimeout,
		"store.lock_retry":                   DefaultStoreLockRetry,
		"store.lock_max_retry":               DefaultStoreLockMaxRetry,
		"store.inbox_size":                   DefaultStoreInboxSize,
		"store.transcript_rotate_max_bytes":  DefaultStoreTranscriptRotateMaxBytes,
		"session.idle_ttl":                   DefaultSessionIdleTTL,
		"session.sweep_schedule":             DefaultSessionSweepSchedule,
		"session.dispatch_timeout":           DefaultSessionDispatchTimeout,
		"session.inbox_size":                 DefaultSessionInboxSize,
		"session.auto_save":                  false,
		"session.suggestions":                DefaultSuggestions,
		"session.affirmative_phrases":        DefaultAffirmativePhrases,
		"poller.interval":                    DefaultPollerInterval,
		"poller.max_attempts":                DefaultPollerMaxAttempts,
		"poller.request_timeout":             DefaultPollerRequestTimeout,
		"intent.default_tag":                 DefaultIntentTag,
		"backends.routes.text":               "edge",
		"backends.routes.campaign":           "edge",
		"backends.routes.image":              "vertex",
		"backends.routes.video":              "vertex",
		"backends.routes.presentation":       "gamma",
		"backends.edge.timeout":              DefaultEdgeTimeout,
		"backends.edge.functions.generate":   DefaultEdgeGenerateFunction,
		"backends.edge.functions.campaign":   DefaultEdgeCampaignFunction,
		"backends.edge.functions.image":      DefaultEdgeImageFunction,
		"backends.edge.functions.video":      DefaultEdgeVideoFunction,
		"backends.edge.functions.job_status": DefaultEdgeJobStatusFunction,
		"backends.edge.functions.chat":       DefaultEdgeChatFunction,
		"backends.edge.functions.library":    DefaultEdgeLibraryFunction,
		"backends.gamma.base_url":            DefaultGammaBaseURL,
		"backends.gamma.timeout":             DefaultGammaTimeout,
		"backends.gamma.text_mode":           DefaultGammaTextMode,
		"backends.vertex.location":           DefaultVertexLocation,
		"backends.vertex.image_model":        DefaultVertexImageModel,
		"backends.vertex.video_model":        DefaultVertexVideoModel,
		"models.default":                     DefaultModelDefault,
		"models.fallback":                    DefaultModelFallback,
		"models.embedding":                   DefaultModelEmbedding,
		"models.max_fallback_attempts":       DefaultModelMaxFallbackAttempts,
		"models.registry": []map[string]interface{}{
			{"name": DefaultModelDefault, "provider": "anthropic", "model": DefaultAnthropicModel},
			{"name": DefaultModelFallback, "provider": "openai", "model": DefaultModelFallback},
			{"name": DefaultModelEmbedding, "provider": "gemini", "model": DefaultGeminiEmbeddingModel},
		},
		"guide.backend":                   DefaultGuideBackend,
		"guide.model":                     DefaultModelDefault,
		"guide.system":                    DefaultGuideSystemPrompt,
		"guide.history_limit":             DefaultGuideHistoryLimit,
		"vault.backend":                   DefaultVaultBackend,
		"vault.collection":                DefaultVaultCollection,
		"vault.search_limit":              DefaultVaultSearchLimit,
		"vault.idempotency_ttl":           DefaultVaultIdempotencyTTL,
		"daemon.shutdown_timeout":         DefaultDaemonShutdownTimeout,
		"daemon.startup_shutdown_timeout": DefaultDaemonStartupShutdownTimeout,
		"daemon.health_check_interval":    DefaultDaemonHealthCheckInterval,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	configPath := ""
	if cmd != nil {
		if flag := cmd.Flags().Lookup("config"); flag != nil {
			configPath = strings.TrimSpace(flag.Value.String())
		}
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, err
		}
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			globalPath := filepath.Join(home, ".copydesk", "config.yaml")
			if err := k.Load(file.Provider(globalPath), yaml.Parser()); err != nil {
				slog.Debug("Global config not found or invalid", "path", globalPath, "error", err)
			}
		}
	}

	// .env only fills variables that are not already set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	k.Load(env.Provider("COPYDESK_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "COPYDESK_")), "_", ".", -1)
	}), nil)

	if cmd != nil {
		k.Load(posflag.Provider(cmd.Flags(), ".", k), nil)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	if err := normalizePathFields(&cfg); err != nil {
		return nil, err
	}
	applyEnvFallbacks(&cfg)

	return &cfg, nil
}

// applyEnvFallbacks injects the well-known vendor variables when the
// config leaves the matching field empty.
func applyEnvFallbacks(cfg *Config) {
	fill := func(dst *string, key string) {
		if strings.TrimSpace(*dst) != "" {
			return
		}
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	fill(&cfg.Backends.Edge.BaseURL, "SUPABASE_URL")
	fill(&cfg.Backends.Edge.AnonKey, "SUPABASE_ANON_KEY")
	fill(&cfg.Backends.Gamma.APIKey, "GAMMA_API_KEY")
	fill(&cfg.Backends.Vertex.Project, "GOOGLE_CLOUD_PROJECT")
	fill(&cfg.Backends.Vertex.Location, "GOOGLE_CLOUD_LOCATION")

	providerKeys := map[string]string{
		"openai":    "OPENAI_API_KEY",
		"anthropic": "ANTHROPIC_API_KEY",
		"gemini":    "GEMINI_API_KEY",
	}
	for i, m := range cfg.Models.Registry {
		if m.Provider == "" {
			cfg.Models.Registry[i].Provider = "anthropic"
		}
		if envKey, ok := providerKeys[cfg.Models.Registry[i].Provider]; ok {
			fill(&cfg.Models.Registry[i].APIKey, envKey)
		}
	}
}

func normalizePathFields(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	workspacePath, err := ExpandPath(cfg.Store.WorkspacePath)
	if err != nil {
		return err
	}
	if workspacePath != "" {
		cfg.Store.WorkspacePath = workspacePath
	}
	return nil
}
