package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"contaminer/pkg/config"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var cfg *config.Config

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "contaminer",
		Short:         "ContaMiner job service",
		Long:          `Submits diffraction data to the ContaMiner cluster, follows the jobs and stores their results.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cfg, err = config.LoadConfig()
			return err
		},
	}

	root.AddCommand(
		newServeCmd(),
		newUpdateCmd(),
		newUpdateAllCmd(),
		newSyncCmd(),
		newRemoveOldJobsCmd(),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		zap.L().Error("command failed", zap.Error(err))
		os.Stderr.WriteString("Error: " + err.Error() + "\n")
		stop()
		os.Exit(1)
	}
}
