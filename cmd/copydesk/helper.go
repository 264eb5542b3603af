package main

import (
	"context"
	"fmt"

	"github.com/harunnryd/copydesk/cmd/copydesk/runtime"

	"github.com/harunnryd/copydesk/internal/config"

	"github.com/spf13/cobra"
)

func executeWithRuntime(cmd *cobra.Command, fn func(*runtime.RuntimeComponents) error) error {
	loadedCfg, err := loadConfigForCommand(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	workspaceID := runtime.ResolveWorkspaceID(cmd, loadedCfg)

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	signals := NewSignalHandler(parent)
	signals.Start()
	defer signals.Stop()

	builder := runtime.NewRuntimeBuilder().
		WithContext(signals.Context()).
		WithConfig(loadedCfg).
		WithWorkspace(workspaceID)

	components, err := builder.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize runtime: %w", err)
	}
	defer components.Stop()

	return fn(components)
}

func loadConfigForCommand(cmd *cobra.Command) (*config.Config, error) {
	if cfg != nil {
		return cfg, nil
	}
	return config.Load(cmd)
}
