package job

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"contaminer/services/task"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RemoveOldJobs deletes the jobs submitted more than keepDays before now,
// with their tasks, artifacts and uploads. Jobs never submitted age from
// their creation. It returns the number of deleted jobs.
func (s *Service) RemoveOldJobs(ctx context.Context, keepDays int, now time.Time) (int, error) {
	limit := now.AddDate(0, 0, -keepDays)

	var jobs []Job
	if err := s.db.WithContext(ctx).
		Where("submitted_at < ? OR (submitted_at IS NULL AND created_at < ?)", limit, limit).
		Find(&jobs).Error; err != nil {
		return 0, err
	}

	removed := 0
	for i := range jobs {
		j := &jobs[i]
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("job_id = ?", j.ID).Delete(&task.Task{}).Error; err != nil {
				return err
			}
			return tx.Delete(&Job{}, "id = ?", j.ID).Error
		})
		if err != nil {
			zap.L().Error("[Cleanup] failed to delete job", zap.String("job_id", j.ID), zap.Error(err))
			return removed, err
		}

		if err := s.reconciler.Artifacts().RemoveJob(ctx, j.ID); err != nil {
			zap.L().Warn("[Cleanup] failed to remove artifacts", zap.String("job_id", j.ID), zap.Error(err))
		}
		s.removeUploads(j)
		removed++
		zap.L().Info("[Cleanup] job removed", zap.String("job_id", j.ID), zap.Timep("submitted_at", j.SubmittedAt))
	}

	s.metrics.ObserveRemoved(removed)
	return removed, nil
}

// removeUploads deletes input files of j still waiting in the upload
// directory.
func (s *Service) removeUploads(j *Job) {
	dir := s.cfg.Local.UploadDirectory
	if dir == "" {
		return
	}
	matches, err := filepath.Glob(filepath.Join(dir, j.Filename("*")))
	if err != nil {
		return
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			zap.L().Warn("[Cleanup] failed to remove upload", zap.String("job_id", j.ID), zap.String("path", m), zap.Error(err))
		}
	}
}
