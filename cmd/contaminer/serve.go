package main

import (
	"contaminer/internal/httpapi"
	"contaminer/pkg/health"
	"contaminer/pkg/metrics"
	"contaminer/pkg/otelcol"
	"contaminer/pkg/profiling"
	"contaminer/pkg/redis"
	"contaminer/pkg/server"
	queue "contaminer/pkg/task"
	"contaminer/services/job"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the submission worker and the periodic updater",
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := []fx.Option{
				coreModules(cfg),
				otelcol.Module,
				profiling.Module,
				metrics.Module,
				queue.Client,
				queue.Server,
				job.Worker,
				health.Module,
				httpapi.Module,
				server.ProvideHTTPServer,
			}
			// the queue always needs redis, coreModules only adds it with an address
			if cfg.Redis.Addr == "" {
				opts = append(opts, redis.Module)
			}

			app := fx.New(opts...)
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}
}
