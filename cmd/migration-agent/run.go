package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	v1 "github.com/kubev2v/esxi-migration-agent/api/v1"
	"github.com/kubev2v/esxi-migration-agent/internal/config"
	"github.com/kubev2v/esxi-migration-agent/internal/handlers"
	"github.com/kubev2v/esxi-migration-agent/internal/server"
)

const shutdownTimeout = 30 * time.Second

func newRunCommand(cfg *config.Configuration) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Serve the migration workflow over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			zap.S().Named("agent").Infow("starting migration agent", "version", version, "config", cfg.DebugMap())

			a, err := newAgent(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			h := handlers.New(ctx, a.registry, a.sessions, a.runs, a.store.Configuration())
			srv, err := server.NewServer(cfg, func(router *gin.RouterGroup) {
				v1.RegisterHandlers(router, h)
			})
			if err != nil {
				return err
			}

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start(ctx)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Stop(shutdownCtx)
		},
	}
}
