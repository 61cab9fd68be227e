package main

import (
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"eviforge/internal/config"
	"eviforge/internal/queue"
)

func newWorkerCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume queued jobs from the broker and execute them",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := slog.Default().With("component", "worker")

			rt, err := openRuntime(cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			broker, err := queue.NewRedisBroker(cfg.RedisURL, cfg.QueueKey)
			if err != nil {
				return err
			}
			defer broker.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return queue.NewWorker(broker, rt.engine, logger).Run(ctx)
		},
	}
}
