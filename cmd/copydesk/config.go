package main

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/harunnryd/copydesk/internal/config"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

//go:embed templates/config.yaml
var embeddedDefaultConfig []byte

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `Manage Copydesk configuration file.`,
}

var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "Dump fully resolved configuration",
	Long:  `Display current configuration with all defaults applied and environment variables resolved.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		loadedCfg, err := loadConfigForCommand(cmd)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if loadedCfg == nil {
			return fmt.Errorf("config is not initialized; run 'copydesk config init' first")
		}

		redacted := redactConfigSecrets(loadedCfg)

		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(redacted); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize default configuration",
	Long:  `Create a default configuration file at $HOME/.copydesk/config.yaml if it doesn't exist.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}

		configDir := filepath.Join(home, ".copydesk")
		if err := os.MkdirAll(configDir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory %s: %w", configDir, err)
		}

		out := cmd.OutOrStdout()
		configPath := filepath.Join(configDir, "config.yaml")
		if _, err := os.Stat(configPath); err == nil {
			fmt.Fprintf(out, "Config already exists at %s\n", configPath)
			fmt.Fprintln(out, "Use 'copydesk config view' to see current configuration.")
			fmt.Fprintln(out, "To reinitialize, remove the existing config file first.")
			return nil
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("failed to check config file: %w", err)
		}

		defaultConfig := strings.TrimSpace(string(embeddedDefaultConfig)) + "\n"
		if err := os.WriteFile(configPath, []byte(defaultConfig), 0600); err != nil {
			return fmt.Errorf("failed to write config to %s: %w", configPath, err)
		}

		fmt.Fprintf(out, "✓ Initialized config at %s\n", configPath)
		fmt.Fprintln(out, "\nNext steps:")
		fmt.Fprintln(out, "1. Set SUPABASE_URL and SUPABASE_ANON_KEY for the edge functions")
		fmt.Fprintln(out, "2. Set ANTHROPIC_API_KEY (chat guide), GAMMA_API_KEY (decks) and GOOGLE_CLOUD_PROJECT (images, video) as needed")
		fmt.Fprintln(out, "3. Run 'copydesk config view' to verify your configuration")
		return nil
	},
}

func redactConfigSecrets(in *config.Config) *config.Config {
	if in == nil {
		return nil
	}

	out := *in

	if len(in.Models.Registry) > 0 {
		out.Models.Registry = make([]config.ModelRegistry, len(in.Models.Registry))
		copy(out.Models.Registry, in.Models.Registry)
		for i := range out.Models.Registry {
			out.Models.Registry[i].APIKey = maskSecret(out.Models.Registry[i].APIKey)
		}
	}

	out.Backends.Edge.AnonKey = maskSecret(out.Backends.Edge.AnonKey)
	out.Backends.Gamma.APIKey = maskSecret(out.Backends.Gamma.APIKey)
	out.Backends.Vertex.APIKey = maskSecret(out.Backends.Vertex.APIKey)

	return &out
}

func maskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return secret[:2] + strings.Repeat("*", len(secret)-4) + secret[len(secret)-2:]
}

func init() {
	configCmd.AddCommand(configViewCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
