package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newUpdateCmd() *cobra.Command {
	var statusOnly, tasksOnly bool

	cmd := &cobra.Command{
		Use:   "update <job_id>",
		Short: "Update one job from the cluster",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if statusOnly && tasksOnly {
				return errors.New("--status and --tasks are exclusive")
			}
			return runOnce(cmd.Context(), func(ctx context.Context, svc services) error {
				j, err := svc.Jobs.Get(ctx, args[0])
				if err != nil {
					return err
				}
				if j.Archived {
					return fmt.Errorf("job %s is archived", j.ID)
				}

				switch {
				case statusOnly:
					err = svc.Jobs.UpdateStatus(ctx, j)
				case tasksOnly:
					err = svc.Jobs.UpdateTasks(ctx, j)
				default:
					err = svc.Jobs.Update(ctx, j)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n", j)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&statusOnly, "status", false, "only refresh the job status")
	cmd.Flags().BoolVar(&tasksOnly, "tasks", false, "only reconcile the results file")
	return cmd
}

func newUpdateAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update-all",
		Short: "Update every submitted job that is not archived",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOnce(cmd.Context(), func(ctx context.Context, svc services) error {
				report, err := svc.Jobs.UpdateAll(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "updated %d, skipped %d, failed %d, notified %d\n",
					len(report.Updated), len(report.Skipped), len(report.Failed), len(report.Notified))
				for id, err := range report.Failed {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s: %v\n", id, err)
				}
				return nil
			})
		},
	}
}

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Rebuild the ContaBase catalog from the cluster",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOnce(cmd.Context(), func(ctx context.Context, svc services) error {
				cb, err := svc.Catalog.Sync(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "catalog %d with %d categories\n", cb.ID, len(cb.Categories))
				return nil
			})
		},
	}
}

func newRemoveOldJobsCmd() *cobra.Command {
	var keepDays int

	cmd := &cobra.Command{
		Use:   "remove-old-jobs",
		Short: "Delete jobs submitted before the retention period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("keep-days") {
				keepDays = cfg.Updater.KeepDays
			}
			return runOnce(cmd.Context(), func(ctx context.Context, svc services) error {
				n, err := svc.Jobs.RemoveOldJobs(ctx, keepDays, time.Now())
				if err != nil {
					return err
				}
				zap.L().Info("old jobs removed", zap.Int("removed", n), zap.Int("keep_days", keepDays))
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d jobs\n", n)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&keepDays, "keep-days", 0, "retention in days (default UPDATER.KEEP_DAYS)")
	return cmd
}
