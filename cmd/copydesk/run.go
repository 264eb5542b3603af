package main

import (
	"fmt"
	"os"

	"github.com/harunnryd/copydesk/cmd/copydesk/runtime"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start an interactive content session",
	Long:  `Opens a chat session in the terminal. Describe what you need; slash commands (/type, /save, /jobs, /mode, /clear) adjust the session.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID, _ := cmd.Flags().GetString("session")

		return executeWithRuntime(cmd, func(r *runtime.RuntimeComponents) error {
			if err := r.Start(); err != nil {
				return fmt.Errorf("failed to start runtime components: %w", err)
			}

			repl := runtime.NewREPL(r, os.Stdin, os.Stdout)
			if err := repl.Open(r.Ctx, sessionID); err != nil {
				return fmt.Errorf("failed to open session: %w", err)
			}
			return repl.Start()
		})
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringP("workspace", "w", "", "Target workspace ID")
	runCmd.Flags().StringP("session", "s", "", "Resume an existing session by ID")
}
