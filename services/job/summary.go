package job

import (
	"context"
	"time"

	"contaminer/pkg/db/pagination"
	"contaminer/pkg/errutil"
	"contaminer/services/task"
)

const publicationHint = "Your dataset gives a positive result for a contaminant for which no identical model is available in the PDB. You could deposit or publish this structure."

type SimpleDict struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

func (j *Job) ToSimpleDict() SimpleDict {
	return SimpleDict{ID: j.ID, Name: j.Name, Status: j.Status.Display()}
}

type DetailedDict struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Status      string        `json:"status"`
	SubmittedAt *time.Time    `json:"submitted_at"`
	Results     []task.Result `json:"results"`
}

// ToDetailedDict lists every task of the job.
func (s *Service) ToDetailedDict(ctx context.Context, j *Job) (*DetailedDict, error) {
	var tasks []task.Task
	if err := s.db.WithContext(ctx).
		Preload("Pack.Contaminant").
		Where("job_id = ?", j.ID).
		Order("id").
		Find(&tasks).Error; err != nil {
		return nil, err
	}

	d := &DetailedDict{
		ID:          j.ID,
		Name:        j.Name,
		Status:      j.Status.Display(),
		SubmittedAt: j.SubmittedAt,
		Results:     make([]task.Result, 0, len(tasks)),
	}
	for i := range tasks {
		d.Results = append(d.Results, tasks[i].ToDict(s.reconciler.Artifacts()))
	}
	return d, nil
}

type BestResult struct {
	UniprotID      string  `json:"uniprot_id"`
	Status         string  `json:"status"`
	Percent        int     `json:"percent"`
	QFactor        float64 `json:"q_factor"`
	PackNumber     int     `json:"pack_number"`
	SpaceGroup     string  `json:"space_group"`
	FilesAvailable bool    `json:"files_available"`
}

type SimpleResult struct {
	ID       string       `json:"id"`
	Results  []BestResult `json:"results"`
	Messages []string     `json:"messages,omitempty"`
}

// SimpleResult lists the best task per contaminant. A positive result on a
// pack far from any deposited model adds a publication hint.
func (s *Service) SimpleResult(ctx context.Context, j *Job) (*SimpleResult, error) {
	tasks, err := s.GetBestTasks(ctx, j)
	if err != nil {
		return nil, err
	}

	r := &SimpleResult{ID: j.ID, Results: make([]BestResult, 0, len(tasks))}
	hint := false
	for i := range tasks {
		t := &tasks[i]
		d := t.ToDict(s.reconciler.Artifacts())
		r.Results = append(r.Results, BestResult{
			UniprotID:      d.UniprotID,
			Status:         d.Status,
			Percent:        d.Percent,
			QFactor:        d.QFactor,
			PackNumber:     d.PackNumber,
			SpaceGroup:     d.SpaceGroup,
			FilesAvailable: d.FilesAvailable,
		})
		if t.PercentValue() > 97 && (packCoverage(t) < 85 || packIdentity(t) < 80) {
			hint = true
		}
	}
	if hint {
		r.Messages = []string{publicationHint}
	}
	return r, nil
}

// ListByAuthor pages through the jobs of author, newest first.
func (s *Service) ListByAuthor(ctx context.Context, author string, page pagination.Pagination) ([]Job, *pagination.PageInfo, error) {
	cursor, err := pagination.DecodeCursor(page.Cursor)
	if err != nil {
		return nil, nil, errutil.BadRequest("invalid cursor", err)
	}

	limit := page.PageSize()
	q := s.db.WithContext(ctx).Where("author = ?", author)
	if cursor != nil {
		q = q.Where("id < ?", cursor.ID)
	}

	var jobs []Job
	if err := q.Order("id DESC").Limit(limit + 1).Find(&jobs).Error; err != nil {
		return nil, nil, err
	}
	return pagination.BuildCursorPage(jobs, limit, func(j *Job) pagination.Cursor {
		return pagination.Cursor{ID: j.ID}
	})
}
