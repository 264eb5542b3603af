package main

import (
	"fmt"
	"strings"

	"github.com/harunnryd/copydesk/cmd/copydesk/runtime"

	"github.com/harunnryd/copydesk/internal/content"
	"github.com/harunnryd/copydesk/internal/formatter"
	"github.com/harunnryd/copydesk/internal/vault"

	"github.com/spf13/cobra"
)

var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "Browse the content library",
	Long:  `List and search content saved to the local library.`,
}

var libraryLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List saved content",
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := outputFormatter(cmd)
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")
		rawType, _ := cmd.Flags().GetString("type")

		var tag content.Tag
		if rawType != "" {
			parsed, ok := content.ParseTag(rawType)
			if !ok {
				return fmt.Errorf("unknown content type %q", rawType)
			}
			tag = parsed
		}

		return withLibrary(cmd, func(lib vault.Library, r *runtime.RuntimeComponents) error {
			entries, err := lib.List(r.Ctx, tag, limit)
			if err != nil {
				return fmt.Errorf("failed to list library: %w", err)
			}
			return printEntries(cmd, f, entries)
		})
	},
}

var librarySearchCmd = &cobra.Command{
	Use:   "search [query...]",
	Short: "Search saved content",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := outputFormatter(cmd)
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")
		query := strings.Join(args, " ")

		return withLibrary(cmd, func(lib vault.Library, r *runtime.RuntimeComponents) error {
			entries, err := lib.Search(r.Ctx, query, limit)
			if err != nil {
				return fmt.Errorf("failed to search library: %w", err)
			}
			return printEntries(cmd, f, entries)
		})
	},
}

func withLibrary(cmd *cobra.Command, fn func(vault.Library, *runtime.RuntimeComponents) error) error {
	return executeWithRuntime(cmd, func(r *runtime.RuntimeComponents) error {
		lib := r.Services.Library
		if lib == nil {
			return fmt.Errorf("no local content library (vault.backend is %q)", r.Config.Vault.Backend)
		}
		return fn(lib, r)
	})
}

func printEntries(cmd *cobra.Command, f formatter.Formatter, entries []vault.Entry) error {
	out, err := f.FormatEntries(entries)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}

func outputFormatter(cmd *cobra.Command) (formatter.Formatter, error) {
	raw := "table"
	if flag := cmd.Flags().Lookup("output"); flag != nil {
		raw = flag.Value.String()
	}
	format, err := formatter.ParseOutputFormat(raw)
	if err != nil {
		return nil, err
	}
	return formatter.NewFormatterFactory().Create(format)
}

func init() {
	libraryCmd.AddCommand(libraryLsCmd)
	libraryCmd.AddCommand(librarySearchCmd)
	libraryCmd.PersistentFlags().StringP("workspace", "w", "", "Target workspace ID")
	libraryCmd.PersistentFlags().StringP("output", "o", "table", "Output format (table, json, yaml)")
	libraryCmd.PersistentFlags().IntP("limit", "n", 20, "Maximum entries to show")
	libraryLsCmd.Flags().StringP("type", "t", "", "Only show one content type")
	rootCmd.AddCommand(libraryCmd)
}
