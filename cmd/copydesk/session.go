package main

import (
	"errors"
	"fmt"

	"github.com/harunnryd/copydesk/cmd/copydesk/runtime"

	copyErrors "github.com/harunnryd/copydesk/internal/errors"
	"github.com/harunnryd/copydesk/internal/session"

	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage sessions",
	Long:  `List and remove conversation sessions in the workspace.`,
}

var sessionLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List sessions",
	Long:  `Display persisted sessions with their mode, status and turn count.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := outputFormatter(cmd)
		if err != nil {
			return err
		}

		return executeWithRuntime(cmd, func(r *runtime.RuntimeComponents) error {
			infos, err := r.Sessions.List()
			if err != nil {
				return fmt.Errorf("failed to list sessions: %w", err)
			}
			out, err := f.FormatSessions(infos)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		})
	},
}

var sessionRmCmd = &cobra.Command{
	Use:   "rm [id]",
	Short: "Delete a session transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID := args[0]

		return executeWithRuntime(cmd, func(r *runtime.RuntimeComponents) error {
			if err := r.Sessions.Close(sessionID); err != nil && !errors.Is(err, copyErrors.ErrNotFound) {
				return err
			}
			if err := session.NewStoreRecorder(r.StoreWorker).Delete(sessionID); err != nil {
				return fmt.Errorf("failed to delete session: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Session '%s' deleted.\n", sessionID)
			return nil
		})
	},
}

func init() {
	sessionCmd.AddCommand(sessionLsCmd)
	sessionCmd.AddCommand(sessionRmCmd)
	sessionCmd.PersistentFlags().StringP("workspace", "w", "", "Target workspace ID")
	sessionLsCmd.Flags().StringP("output", "o", "table", "Output format (table, json, yaml)")
	rootCmd.AddCommand(sessionCmd)
}
