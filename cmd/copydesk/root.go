package main

import (
	"fmt"
	"os"

	"github.com/harunnryd/copydesk/internal/config"
	"github.com/harunnryd/copydesk/internal/logger"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "copydesk",
	Short: "Copydesk content assistant",
	Long:  `Copydesk turns chat requests into press releases, social posts, campaigns, images, videos and decks, and keeps what you like in a content library.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cmd)
		if err != nil {
			return err
		}

		logger.Setup(cfg.Server.LogLevel)
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.copydesk/config.yaml)")
	rootCmd.PersistentFlags().String("server.log_level", config.DefaultServerLogLevel, "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Int("server.port", config.DefaultServerPort, "server port")
}
