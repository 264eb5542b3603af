package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ExpandPath resolves environment variables and a leading "~/".
func ExpandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}

	expanded := os.ExpandEnv(trimmed)
	if expanded == "~" || strings.HasPrefix(expanded, "~/") {
		home, err := os.UserHomeDir()
		if err != nil || strings.TrimSpace(home) == "" {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		expanded = filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(expanded, "~"), "/"))
	}

	return filepath.Clean(expanded), nil
}
