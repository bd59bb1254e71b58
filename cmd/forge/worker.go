package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/forge/internal/services"
	"github.com/fyrsmithlabs/forge/internal/workflows"
)

func newWorkerCmd(root *rootOptions) *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run a Temporal worker for GenerateCodeWorkflow",
		Long: `Poll the configured Temporal task queue and execute forge runs.

Submit runs with "forge run --workflow".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorker(cmd.Context(), root, offline)
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "use the stub generator and skip scraping")
	return cmd
}

func runWorker(ctx context.Context, root *rootOptions, offline bool) error {
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

	c, err := client.Dial(client.Options{
		HostPort:  a.cfg.Temporal.HostPort,
		Namespace: a.cfg.Temporal.Namespace,
	})
	if err != nil {
		return fmt.Errorf("unable to create Temporal client: %w", err)
	}
	defer c.Close()

	a.logger.Info(ctx, "temporal client connected",
		zap.String("host", a.cfg.Temporal.HostPort),
		zap.String("namespace", a.cfg.Temporal.Namespace),
	)

	w := workflows.NewWorker(c, a.cfg.Temporal.TaskQueue, workflows.NewActivities(svc, a.logger.Named("workflows")))
	if err := w.Start(); err != nil {
		return fmt.Errorf("worker error: %w", err)
	}
	a.logger.Info(ctx, "worker started", zap.String("task_queue", a.cfg.Temporal.TaskQueue))

	<-ctx.Done()
	a.logger.Info(ctx, "shutdown signal received")
	w.Stop()
	a.logger.Info(ctx, "worker stopped gracefully")
	return nil
}
