package job

import (
	"context"
	"fmt"
	"time"

	"contaminer/pkg/config"

	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Scheduler runs UpdateAll and the retention cleanup on cron schedules.
type Scheduler struct {
	service *Service
	cfg     *config.Config
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewScheduler(svc *Service, cfg *config.Config) (*Scheduler, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		service: svc,
		cfg:     cfg,
		cron: cron.New(
			cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow)),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger), cron.Recover(cron.DefaultLogger)),
		),
		ctx:    ctx,
		cancel: cancel,
	}

	if _, err := s.cron.AddFunc(cfg.Updater.Schedule, s.runUpdateAll); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid UPDATER.SCHEDULE %q: %w", cfg.Updater.Schedule, err)
	}
	if _, err := s.cron.AddFunc(cfg.Updater.CleanupSchedule, s.runCleanup); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid UPDATER.CLEANUP_SCHEDULE %q: %w", cfg.Updater.CleanupSchedule, err)
	}
	return s, nil
}

// StartScheduler is invoked by fx when the service starts.
func StartScheduler(lc fx.Lifecycle, s *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			s.cron.Start()
			zap.L().Info("[Scheduler] started",
				zap.String("schedule", s.cfg.Updater.Schedule),
				zap.String("cleanup_schedule", s.cfg.Updater.CleanupSchedule),
			)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			s.cancel()
			select {
			case <-s.cron.Stop().Done():
			case <-ctx.Done():
			}
			zap.L().Warn("[Scheduler] stopped")
			return nil
		},
	})
}

func (s *Scheduler) runUpdateAll() {
	start := time.Now()
	zap.L().Info("[Scheduler] Running update-all")

	report, err := s.service.UpdateAll(s.ctx)
	if err != nil {
		zap.L().Error("[Scheduler] update-all failed", zap.Error(err))
		return
	}

	zap.L().Info("[Scheduler] Finished update-all",
		zap.Int("failed", len(report.Failed)),
		zap.Duration("duration", time.Since(start)),
	)
}

func (s *Scheduler) runCleanup() {
	n, err := s.service.RemoveOldJobs(s.ctx, s.cfg.Updater.KeepDays, time.Now())
	if err != nil {
		zap.L().Error("[Scheduler] cleanup failed", zap.Error(err))
		return
	}
	zap.L().Info("[Scheduler] Finished cleanup", zap.Int("removed", n))
}
