package store

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/harunnryd/copydesk/internal/config"
)

// ResolveWorkspaceRootPath resolves configured workspace root path.
// If empty, it falls back to ~/.copydesk/workspaces.
func ResolveWorkspaceRootPath(workspaceRootPath string) (string, error) {
	if trimmed := strings.TrimSpace(workspaceRootPath); trimmed != "" {
		return config.ExpandPath(trimmed)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".copydesk", "workspaces"), nil
}

// GetWorkspacePath returns the base path for a workspace.
func GetWorkspacePath(workspaceID string, workspaceRootPath string) (string, error) {
	root, err := ResolveWorkspaceRootPath(workspaceRootPath)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, workspaceID), nil
}

func sessionsDir(base string) string   { return filepath.Join(base, "sessions") }
func libraryDir(base string) string    { return filepath.Join(base, "library") }
func governanceDir(base string) string { return filepath.Join(base, "governance") }
func vectorsDir(base string) string    { return filepath.Join(base, "vectors") }

func transcriptPath(base, sessionID string) string {
	return filepath.Join(sessionsDir(base), sessionID+".jsonl")
}

func sessionIndexPath(base string) string { return filepath.Join(sessionsDir(base), "index.json") }
func libraryIndexPath(base string) string { return filepath.Join(libraryDir(base), "index.json") }
func idempotencyPath(base string) string {
	return filepath.Join(governanceDir(base), "processed_keys.json")
}
