package main

import (
	"fmt"
	"strings"

	"github.com/harunnryd/copydesk/internal/intent"

	"github.com/spf13/cobra"
)

var classifyCmd = &cobra.Command{
	Use:   "classify [text...]",
	Short: "Show which content type a request maps to",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		loadedCfg, err := loadConfigForCommand(cmd)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		classifier, err := intent.FromConfig(loadedCfg.Intent)
		if err != nil {
			return fmt.Errorf("invalid intent rules: %w", err)
		}

		tag := classifier.Classify(strings.Join(args, " "))
		fmt.Fprintln(cmd.OutOrStdout(), tag)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(classifyCmd)
}
