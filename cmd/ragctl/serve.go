package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httpserver "github.com/samzhu/ragkit/server/http"
)

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API until interrupted.

The chat endpoints are enabled when an API key for the configured LLM
provider is available; otherwise /chat answers 503.

Examples:
  # Serve with defaults on :8080
  ragctl serve

  # Serve from a config file
  ragctl serve --config ragkit.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts)
		},
	}
}

func runServe(ctx context.Context, opts *options) error {
	cfg, logger := opts.cfg, opts.logger

	withChat := cfg.LLM.APIKey != ""
	if !withChat {
		logger.Warn("no llm api key configured, chat is disabled", zap.String("provider", cfg.LLM.Provider))
	}
	a, err := buildApp(ctx, cfg, logger, withChat)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.close(context.Background()); err != nil {
			logger.Error("shutdown", zap.Error(err))
		}
	}()

	srv, err := httpserver.NewServer(httpserver.Deps{
		Pipeline: a.pipeline,
		Chat:     a.chat,
		Sessions: a.sessions,
		Metrics:  a.metrics,
		Logger:   logger,
	}, httpserver.Config{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		SystemPrompt: cfg.Server.SystemPrompt,
		TopK:         cfg.Server.TopK,
		HistoryLimit: cfg.Session.Limit,
	})
	if err != nil {
		return err
	}
	return srv.ListenAndServe(ctx, cfg.Server.ShutdownTimeout)
}
