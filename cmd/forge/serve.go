package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httpserver "github.com/fyrsmithlabs/forge/internal/http"
	"github.com/fyrsmithlabs/forge/internal/services"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the run API over HTTP",
		Long: `Serve POST /api/v1/runs, GET /health and GET /metrics.

The listen address and per-run timeout come from the server section of the
configuration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), root, offline)
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "use the stub generator and skip scraping")
	return cmd
}

// runServe blocks until ctx is cancelled, then shuts down gracefully.
func runServe(ctx context.Context, root *rootOptions, offline bool) error {
	a, err := setup(ctx, root)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	svc, err := services.Build(ctx, a.cfg, a.logger, a.tel, services.BuildOptions{Offline: offline, PublicSourcesOnly: true})
	if err != nil {
		return err
	}
	defer svc.Close()

	srv, err := httpserver.NewServer(svc, a.logger.Named("http"), a.tel, &httpserver.Config{
		Host:       a.cfg.Server.Host,
		Port:       a.cfg.Server.Port,
		RunTimeout: a.cfg.Server.RunTimeout.Duration(),
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		a.logger.Info(ctx, "shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error(shutdownCtx, "graceful shutdown failed", zap.Error(err))
		return err
	}
	return nil
}
