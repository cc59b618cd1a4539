package job

import (
	"cmp"
	"context"
	"slices"

	"contaminer/services/contabase"
	"contaminer/services/task"
)

// CompareTasks orders tasks best first: percent, q factor, pack coverage and
// pack identity all descending, then task id ascending. The order is total.
func CompareTasks(a, b *task.Task) int {
	if c := cmp.Compare(b.PercentValue(), a.PercentValue()); c != 0 {
		return c
	}
	if c := cmp.Compare(b.QFactorValue(), a.QFactorValue()); c != 0 {
		return c
	}
	if c := cmp.Compare(packCoverage(b), packCoverage(a)); c != 0 {
		return c
	}
	if c := cmp.Compare(packIdentity(b), packIdentity(a)); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

func packCoverage(t *task.Task) int {
	if t.Pack == nil {
		return 0
	}
	return t.Pack.Coverage()
}

func packIdentity(t *task.Task) int {
	if t.Pack == nil {
		return 0
	}
	return t.Pack.Identity()
}

// validTasks loads the complete, non error tasks of a job with their packs.
// A zero contaminantID loads every contaminant.
func (s *Service) validTasks(ctx context.Context, jobID string, contaminantID int64) ([]task.Task, error) {
	q := s.db.WithContext(ctx).
		Preload("Pack.Contaminant").
		Preload("Pack.Models").
		Where("tasks.job_id = ? AND tasks.status = ?", jobID, task.StatusComplete)
	if contaminantID != 0 {
		q = q.Joins("JOIN packs ON packs.id = tasks.pack_id").
			Where("packs.contaminant_id = ?", contaminantID)
	}

	var tasks []task.Task
	err := q.Order("tasks.id").Find(&tasks).Error
	return tasks, err
}

// GetBestTask returns the best valid task of the job for contaminant, or nil
// when the contaminant has none.
func (s *Service) GetBestTask(ctx context.Context, j *Job, contaminant *contabase.Contaminant) (*task.Task, error) {
	tasks, err := s.validTasks(ctx, j.ID, contaminant.ID)
	if err != nil {
		return nil, err
	}
	return best(tasks), nil
}

// snapshotOf is the ContaBase snapshot the results of j resolve in. Jobs
// created before snapshots were pinned use the current one.
func (s *Service) snapshotOf(ctx context.Context, j *Job) (int64, error) {
	if j.ContabaseID != 0 {
		return j.ContabaseID, nil
	}
	cb, err := s.catalog.Current(ctx)
	if err != nil {
		return 0, err
	}
	return cb.ID, nil
}

// GetBestTasks returns the best task of every contaminant of the job's
// catalog snapshot, ordered by uniprot id. Contaminants without a valid task
// are left out.
func (s *Service) GetBestTasks(ctx context.Context, j *Job) ([]task.Task, error) {
	contabaseID, err := s.snapshotOf(ctx, j)
	if err != nil {
		return nil, err
	}
	contaminants, err := s.catalog.Contaminants(ctx, contabaseID)
	if err != nil {
		return nil, err
	}
	tasks, err := s.validTasks(ctx, j.ID, 0)
	if err != nil {
		return nil, err
	}

	byContaminant := make(map[int64][]task.Task)
	for _, t := range tasks {
		if t.Pack == nil {
			continue
		}
		byContaminant[t.Pack.ContaminantID] = append(byContaminant[t.Pack.ContaminantID], t)
	}

	var result []task.Task
	for _, c := range contaminants {
		if b := best(byContaminant[c.ID]); b != nil {
			result = append(result, *b)
		}
	}
	return result, nil
}

func best(tasks []task.Task) *task.Task {
	if len(tasks) == 0 {
		return nil
	}
	b := slices.MinFunc(tasks, func(x, y task.Task) int { return CompareTasks(&x, &y) })
	return &b
}
