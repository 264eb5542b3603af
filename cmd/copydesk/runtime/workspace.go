package runtime

import (
	"github.com/harunnryd/copydesk/internal/config"

	"github.com/spf13/cobra"
)

const DefaultWorkspaceID = config.DefaultWorkspaceID

// ResolveWorkspaceID prefers the --workspace flag, then store.workspace_id.
func ResolveWorkspaceID(cmd *cobra.Command, cfg *config.Config) string {
	if cmd != nil {
		if flag := cmd.Flags().Lookup("workspace"); flag != nil && flag.Value.String() != "" {
			return flag.Value.String()
		}
	}
	if cfg != nil && cfg.Store.WorkspaceID != "" {
		return cfg.Store.WorkspaceID
	}
	return config.DefaultWorkspaceID
}
