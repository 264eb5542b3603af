package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/harunnryd/copydesk/cmd/copydesk/runtime"

	"github.com/harunnryd/copydesk/internal/config"
	"github.com/harunnryd/copydesk/internal/daemon"
	"github.com/harunnryd/copydesk/internal/daemon/components"
	"github.com/harunnryd/copydesk/internal/ingress"
	"github.com/harunnryd/copydesk/internal/session"
	"github.com/harunnryd/copydesk/internal/store"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the session HTTP API",
	Long:  `Starts Copydesk as a long-running service. It exposes the session, classify and library API plus a health endpoint, and sweeps idle sessions on a schedule.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			return fmt.Errorf("config not loaded")
		}
		workspaceID := runtime.ResolveWorkspaceID(cmd, cfg)

		daemonMgr, err := daemon.NewDaemon(workspaceID, cfg)
		if err != nil {
			return fmt.Errorf("failed to create daemon manager: %w", err)
		}

		var services *runtime.Services
		storeComp := components.NewStoreComponent(workspaceID, cfg.Store)
		sessionsComp := components.NewSessionsComponent(storeComp, func(ctx context.Context, worker *store.Worker) (*session.Manager, error) {
			s, err := runtime.NewServices(ctx, cfg, worker)
			if err != nil {
				return nil, err
			}
			services = s
			return s.NewManager(worker), nil
		})
		httpComp := components.NewHTTPServerComponent(&cfg.Server, func() (http.Handler, error) {
			if services == nil || sessionsComp.Manager() == nil {
				return nil, fmt.Errorf("sessions not initialized")
			}
			ttl, err := config.DurationOrDefault(cfg.Vault.IdempotencyTTL, config.DefaultVaultIdempotencyTTL)
			if err != nil {
				return nil, fmt.Errorf("parse vault.idempotency_ttl: %w", err)
			}
			api := ingress.NewAPI(sessionsComp.Manager(), services.Classifier, services.Library, storeComp.Worker(), daemonMgr.HealthErrors, ingress.Options{
				AllowedOrigins: cfg.Server.AllowedOrigins,
				IdempotencyTTL: ttl,
			})
			return api.Handler(), nil
		})

		daemonMgr.AddComponent(storeComp)
		daemonMgr.AddComponent(sessionsComp)
		daemonMgr.AddComponent(httpComp)

		slog.Info("Copydesk server starting up...", "port", cfg.Server.Port, "workspace", workspaceID)
		err = daemonMgr.Start(context.Background())
		if err != nil {
			// Cancellation via signal/context is a graceful shutdown case for CLI.
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				slog.Info("Copydesk server stopped gracefully", "workspace", workspaceID)
				return nil
			}
			return fmt.Errorf("server failed: %w", err)
		}

		slog.Info("Copydesk server stopped gracefully", "workspace", workspaceID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("workspace", "w", "", "Target workspace ID")
}
