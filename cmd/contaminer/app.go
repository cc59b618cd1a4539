package main

import (
	"context"
	"time"

	"contaminer/pkg/config"
	"contaminer/pkg/db"
	"contaminer/pkg/gen"
	"contaminer/pkg/lease"
	"contaminer/pkg/logger"
	"contaminer/pkg/mail"
	"contaminer/pkg/minio"
	"contaminer/pkg/redis"
	"contaminer/pkg/remote"
	"contaminer/services/contabase"
	"contaminer/services/job"
	"contaminer/services/task"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var fxLogger = fx.WithLogger(func(cfg *config.Config, log *zap.Logger) fxevent.Logger {
	if cfg.IsProduction() {
		return fxevent.NopLogger
	}
	return &fxevent.ZapLogger{Logger: log}
})

// coreModules wires the job and catalog services with their storage and
// cluster access.
func coreModules(cfg *config.Config) fx.Option {
	opts := []fx.Option{
		fx.Supply(cfg),
		logger.Module,
		db.Module,
		gen.Module,
		remote.Module,
		mail.Module,
		minio.Client,
		lease.Module,
		contabase.Module,
		task.Module,
		job.Module,
		fx.Invoke(migrate),
		fxLogger,
	}
	if cfg.Redis.Addr != "" {
		opts = append(opts, redis.Module)
	}
	return fx.Options(opts...)
}

func migrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&contabase.ContaBase{},
		&contabase.Category{},
		&contabase.Contaminant{},
		&contabase.Pack{},
		&contabase.Model{},
		&contabase.Reference{},
		&contabase.Suggestion{},
		&job.Job{},
		&task.Task{},
	)
}

type services struct {
	Jobs    *job.Service
	Catalog *contabase.Service
}

// runOnce starts the core modules, runs fn and stops them again.
func runOnce(ctx context.Context, fn func(context.Context, services) error) error {
	var svc services
	app := fx.New(
		coreModules(cfg),
		fx.Populate(&svc.Jobs, &svc.Catalog),
	)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(ctx, fx.DefaultTimeout)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := app.Stop(stopCtx); err != nil {
			zap.L().Warn("shutdown failed", zap.Error(err))
		}
	}()

	return fn(ctx, svc)
}
