package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"eviforge/internal/config"
	"eviforge/internal/dispatch"
	"eviforge/internal/models"
	"eviforge/internal/queue"
	"eviforge/internal/server"
)

func newServeCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the eviforge API server with the configured execution mode",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := slog.Default().With("component", "server")

			addr, err := server.ListenAddr(cfg.APIURL)
			if err != nil {
				return err
			}

			rt, err := openRuntime(cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			mode, err := rt.execMode()
			if err != nil {
				return err
			}

			var broker queue.Broker
			if mode != models.ModeInline {
				rb, err := queue.NewRedisBroker(cfg.RedisURL, cfg.QueueKey)
				switch {
				case err != nil && mode == models.ModeQueue:
					return err
				case err != nil:
					// Auto mode keeps serving without its broker; jobs
					// take the inline fallback path.
					logger.Warn("broker unavailable, inline fallback active", "error", err)
				default:
					broker = rb
					defer rb.Close()
				}
			}

			dispatcher := dispatch.New(dispatch.Options{
				Mode:                mode,
				Store:               rt.store,
				Registry:            rt.registry,
				Runner:              rt.engine,
				Broker:              broker,
				InlineWorkers:       cfg.InlineWorkers,
				QueueAttemptTimeout: cfg.QueueAttemptTimeout,
				Logger:              logger,
			})
			defer dispatcher.Pool().Wait()

			srv := server.New(server.Options{
				Addr:       addr,
				Store:      rt.store,
				Vault:      rt.vault,
				Ledger:     rt.ledger,
				Registry:   rt.registry,
				Service:    rt.service,
				Dispatcher: dispatcher,
				Actor:      cfg.Actor,
				Logger:     logger,
			})
			logger.Info("execution mode", "mode", mode)
			return srv.ListenAndServe()
		},
	}
}
