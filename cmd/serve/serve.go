package serve

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/secpipe-io/secpipe/internal/backend"
	"github.com/secpipe-io/secpipe/internal/pipeline"
	"github.com/secpipe-io/secpipe/internal/scanner"
	"github.com/secpipe-io/secpipe/internal/server"
	"github.com/secpipe-io/secpipe/pkg/shared/config"
	"github.com/secpipe-io/secpipe/pkg/shared/logger"
)

var AppConfig *config.Config

// Init initializes the global configuration variable.
func Init(cfg *config.Config) {
	AppConfig = cfg
}

// NewServeCmd creates a new cobra.Command for the serve command.
func NewServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:          "serve",
		SilenceUsage: true,
		Short:        "Run the analysis API server",
		Long: `Serve starts the HTTP API: one-shot analysis on /api/analyze and a
live event stream on /api/analyze/stream. Stops on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				AppConfig.Server.Addr = addr
			}

			log := logger.NewLogger(AppConfig, "serve")
			orchestrator := pipeline.NewOrchestrator(
				AppConfig,
				log,
				backend.NewClient(AppConfig, log),
				scanner.New(AppConfig, log),
			)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			err := server.New(AppConfig, log, orchestrator).ListenAndServe(ctx)
			if errors.Is(err, http.ErrServerClosed) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}
