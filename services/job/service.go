package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"contaminer/pkg/config"
	"contaminer/pkg/errutil"
	"contaminer/pkg/lease"
	"contaminer/pkg/mail"
	"contaminer/pkg/metrics"
	"contaminer/pkg/rediskey"
	"contaminer/pkg/remote"
	queue "contaminer/pkg/task"
	"contaminer/services/contabase"
	"contaminer/services/task"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrBusy is returned by Update when another updater holds the job.
var ErrBusy = errors.New("job is being updated by another process")

var tracer = otel.Tracer("contaminer/services/job")

type Service struct {
	db         *gorm.DB
	cfg        *config.Config
	node       *snowflake.Node
	cluster    *remote.Cluster
	catalog    contabase.Repository
	reconciler *task.Reconciler
	locker     lease.Locker
	mailer     mail.Sender
	queue      queue.Enqueuer
	metrics    *metrics.Metrics
}

type ServiceParams struct {
	fx.In

	DB         *gorm.DB
	Config     *config.Config
	Node       *snowflake.Node
	Cluster    *remote.Cluster
	Reconciler *task.Reconciler
	Locker     lease.Locker
	Mailer     mail.Sender
	Queue      queue.Enqueuer   `optional:"true"`
	Metrics    *metrics.Metrics `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:         p.DB,
		cfg:        p.Config,
		node:       p.Node,
		cluster:    p.Cluster,
		catalog:    contabase.NewRepository(p.DB),
		reconciler: p.Reconciler,
		locker:     p.Locker,
		mailer:     p.Mailer,
		queue:      p.Queue,
		metrics:    p.Metrics,
	}
}

// Principal is the authenticated owner of a job.
type Principal struct {
	ID    string
	Email string
}

type CreateParams struct {
	Name         string
	Author       *Principal
	Email        string
	Confidential bool
	// Contaminants are uniprot ids. Empty selects the contaminants of the
	// categories selected by default.
	Contaminants []string
}

// Create stores a new job. The e-mail defaults to the author address and an
// explicit e-mail overrides it.
func (s *Service) Create(ctx context.Context, p CreateParams) (*Job, error) {
	cb, err := s.catalog.Current(ctx)
	if err != nil {
		return nil, err
	}
	selection, err := s.resolveSelection(ctx, cb.ID, p.Contaminants)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(selection)
	if err != nil {
		return nil, err
	}

	j := &Job{
		ID:           s.node.Generate().String(),
		Status:       StatusNew,
		Name:         p.Name,
		Confidential: p.Confidential,
		Contaminants: datatypes.JSON(raw),
		ContabaseID:  cb.ID,
	}
	if p.Author != nil {
		j.Author = &p.Author.ID
		j.Email = p.Author.Email
	}
	if p.Email != "" {
		j.Email = p.Email
	}

	if err := s.db.WithContext(ctx).Create(j).Error; err != nil {
		return nil, err
	}

	zap.L().Info("[Job] created",
		zap.String("job_id", j.ID),
		zap.Int64("contabase_id", j.ContabaseID),
		zap.Int("contaminants", len(selection)),
	)
	return j, nil
}

func (s *Service) resolveSelection(ctx context.Context, contabaseID int64, ids []string) ([]string, error) {
	categories, err := s.catalog.Catalog(ctx, contabaseID)
	if err != nil {
		return nil, err
	}

	known := make(map[string]bool)
	var defaults []string
	for _, c := range categories {
		for _, ct := range c.Contaminants {
			known[ct.UniprotID] = true
			if c.SelectedByDefault {
				defaults = append(defaults, ct.UniprotID)
			}
		}
	}

	if len(ids) == 0 {
		if len(defaults) == 0 {
			return nil, errutil.ValidationFailed("no contaminant selected", nil)
		}
		return defaults, nil
	}

	var details []errutil.Detail
	selection := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.ToUpper(strings.TrimSpace(id))
		if id == "" || slices.Contains(selection, id) {
			continue
		}
		if !known[id] {
			details = append(details, errutil.Detail{Field: "contaminants", Message: "unknown contaminant " + id})
			continue
		}
		selection = append(selection, id)
	}
	if len(details) > 0 {
		return nil, errutil.ValidationFailed("invalid contaminant selection", nil, errutil.WithDetails(details...))
	}
	return selection, nil
}

// Get loads a job by id.
func (s *Service) Get(ctx context.Context, id string) (*Job, error) {
	var j Job
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&j).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errutil.NotFound("job "+id+" not found", err)
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// Submit sends the input file and the contaminant list to the cluster and
// starts ContaMiner. On failure the job is left untouched.
func (s *Service) Submit(ctx context.Context, j *Job, localPath string) error {
	if j.Archived || j.Status != StatusNew {
		return errutil.Precondition(fmt.Sprintf("job %s is already %s", j.ID, j.Status), nil)
	}
	suffix := strings.TrimPrefix(filepath.Ext(localPath), ".")
	if !slices.Contains(InputSuffixes, suffix) || filepath.Base(localPath) != j.Filename(suffix) {
		return errutil.Precondition(fmt.Sprintf("input %s is not a %s file", localPath, j.Filename("mtz|cif")), nil)
	}

	selection, err := j.Selection()
	if err != nil {
		return errutil.Submission("read contaminant selection", err)
	}
	listName := j.Filename("txt")
	inputName := j.Filename(suffix)

	ctx, span := tracer.Start(ctx, "job.Submit")
	defer span.End()
	span.SetAttributes(attribute.String("job_id", j.ID))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		remotePath, err := s.cluster.UploadFile(gctx, localPath, s.cluster.WorkDir())
		if err == nil && path.Base(remotePath) != inputName {
			err = fmt.Errorf("uploaded as %s", remotePath)
		}
		return err
	})
	g.Go(func() error {
		list := strings.Join(selection, "\n") + "\n"
		return s.cluster.WriteFile(gctx, s.cluster.WorkPath(listName), []byte(list))
	})
	if err := g.Wait(); err != nil {
		s.metrics.ObserveSubmission("failed")
		return errutil.Submission("upload job files", err)
	}

	if _, err := s.cluster.Solve(ctx, inputName, listName); err != nil {
		s.metrics.ObserveSubmission("failed")
		return errutil.Submission("start contaminer", err)
	}

	if err := os.Remove(localPath); err != nil {
		zap.L().Warn("[Job] failed to remove local input", zap.String("job_id", j.ID), zap.Error(err))
	}

	now := time.Now()
	res := s.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", j.ID, StatusNew).
		Updates(map[string]any{
			"status":       StatusSubmitted,
			"submitted_at": now,
			"last_error":   "",
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errutil.Precondition("job "+j.ID+" changed during submission", nil)
	}

	j.Status = StatusSubmitted
	j.SubmittedAt = &now
	j.LastError = ""
	s.metrics.ObserveSubmission("submitted")
	zap.L().Info("[Job] submitted", zap.String("job_id", j.ID), zap.Int("contaminants", len(selection)))
	return nil
}

// hold leases the job for the duration of an update. The returned context
// is cancelled if the lease is lost, and release must always be called.
func (s *Service) hold(ctx context.Context, j *Job) (context.Context, func(), error) {
	l, err := s.locker.Acquire(ctx, rediskey.BuildJobKey(j.ID))
	if errors.Is(err, lease.ErrHeld) {
		return nil, nil, fmt.Errorf("job %s: %w", j.ID, ErrBusy)
	}
	if err != nil {
		return nil, nil, err
	}
	held, stop := lease.Keep(ctx, l)
	release := func() {
		stop()
		if err := l.Release(context.WithoutCancel(ctx)); err != nil {
			zap.L().Warn("[Job] lease lost during update", zap.String("job_id", j.ID), zap.Error(err))
		}
	}
	return held, release, nil
}

// refresh reloads j under the lease and reports whether it was archived in
// the meantime.
func (s *Service) refresh(ctx context.Context, j *Job) (bool, error) {
	fresh, err := s.Get(ctx, j.ID)
	if err != nil {
		return false, err
	}
	*j = *fresh
	if j.Archived {
		zap.L().Warn("[Job] archived while waiting, nothing to update", zap.String("job_id", j.ID))
		return true, nil
	}
	return false, nil
}

// UpdateStatus asks the cluster for the job status and stores it.
func (s *Service) UpdateStatus(ctx context.Context, j *Job) error {
	if j.Archived {
		zap.L().Warn("[Job] archived, status not updated", zap.String("job_id", j.ID))
		return nil
	}
	if !j.Submitted() {
		return errutil.Precondition("job "+j.ID+" is not submitted", nil)
	}

	ctx, release, err := s.hold(ctx, j)
	if err != nil {
		return err
	}
	defer release()
	if frozen, err := s.refresh(ctx, j); err != nil || frozen {
		return err
	}

	out, err := s.cluster.JobStatus(ctx, j.Dirname())
	if err != nil {
		return err
	}
	next, ok := ParseRemoteStatus(out)
	if !ok {
		zap.L().Warn("[Job] unknown remote status", zap.String("job_id", j.ID), zap.String("output", out))
		return nil
	}
	if !j.applyRemoteStatus(next) {
		return nil
	}
	return s.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND archived = ?", j.ID, false).
		Update("status", j.Status).Error
}

// UpdateTasks reconciles the whole results file of the job. The first
// failing line aborts the pass and nothing of the pass is stored.
func (s *Service) UpdateTasks(ctx context.Context, j *Job) error {
	if j.Archived {
		zap.L().Warn("[Job] archived, tasks not updated", zap.String("job_id", j.ID))
		return nil
	}
	if !j.Submitted() {
		return errutil.Precondition("job "+j.ID+" is not submitted", nil)
	}

	ctx, release, err := s.hold(ctx, j)
	if err != nil {
		return err
	}
	defer release()
	if frozen, err := s.refresh(ctx, j); err != nil || frozen {
		return err
	}

	lines, err := s.fetchResults(ctx, j)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.reconcile(ctx, tx, j, lines)
	})
}

func (s *Service) fetchResults(ctx context.Context, j *Job) ([]task.Line, error) {
	content, err := s.cluster.ReadFile(ctx, s.cluster.ResultsPath(j.Dirname()))
	if errors.Is(err, os.ErrNotExist) {
		zap.L().Debug("[Job] no results yet", zap.String("job_id", j.ID))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	lines, err := task.ParseResults(string(content))
	if err != nil {
		zap.L().Error("[Job] malformed results", zap.String("job_id", j.ID), zap.Error(err))
		return nil, err
	}
	return lines, nil
}

func (s *Service) reconcile(ctx context.Context, tx *gorm.DB, j *Job, lines []task.Line) error {
	rec := s.reconciler.WithTrx(tx).InSnapshot(j.ContabaseID)
	for _, l := range lines {
		if _, err := rec.Apply(ctx, j.ID, l); err != nil {
			zap.L().Error("[Job] reconciliation failed",
				zap.String("job_id", j.ID),
				zap.String("uniprot_id", l.UniprotID),
				zap.Int("pack_number", l.PackNumber),
				zap.String("space_group", l.SpaceGroup),
				zap.Error(err),
			)
			return err
		}
		s.metrics.ObserveReconciled(string(l.Outcome))
	}
	return nil
}

// Update refreshes the job from the cluster: status, tasks and archival are
// stored together. It is a no-op on archived jobs and can be called again
// after any failure.
func (s *Service) Update(ctx context.Context, j *Job) error {
	start := time.Now()
	if j.Archived {
		zap.L().Warn("[Job] archived, nothing to update", zap.String("job_id", j.ID))
		s.metrics.ObserveUpdate("noop", time.Since(start))
		return nil
	}

	ctx, release, err := s.hold(ctx, j)
	if errors.Is(err, ErrBusy) {
		s.metrics.ObserveUpdate("skipped", time.Since(start))
		return err
	}
	if err != nil {
		return err
	}
	defer release()

	ctx, span := tracer.Start(ctx, "job.Update")
	defer span.End()
	span.SetAttributes(attribute.String("job_id", j.ID))

	fresh, err := s.Get(ctx, j.ID)
	if err != nil {
		return err
	}
	if fresh.Archived {
		*j = *fresh
		s.metrics.ObserveUpdate("noop", time.Since(start))
		return nil
	}
	if !fresh.Submitted() {
		return errutil.Precondition("job "+j.ID+" is not submitted", nil)
	}

	out, err := s.cluster.JobStatus(ctx, fresh.Dirname())
	if err != nil {
		s.metrics.ObserveUpdate("failed", time.Since(start))
		return err
	}
	lines, err := s.fetchResults(ctx, fresh)
	if err != nil {
		s.metrics.ObserveUpdate("failed", time.Since(start))
		return err
	}

	next := *fresh
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if status, ok := ParseRemoteStatus(out); ok {
			next.applyRemoteStatus(status)
		} else {
			zap.L().Warn("[Job] unknown remote status", zap.String("job_id", j.ID), zap.String("output", out))
		}

		if err := s.reconcile(ctx, tx, &next, lines); err != nil {
			return err
		}

		if next.archiveIfComplete() {
			zap.L().Info("[Job] complete, archived", zap.String("job_id", j.ID))
		}
		return tx.Model(&next).Select("status", "archived").Updates(&next).Error
	})
	if err != nil {
		s.metrics.ObserveUpdate("failed", time.Since(start))
		return err
	}
	*j = next

	result := "updated"
	if j.Archived {
		result = "archived"
		if err := s.notifyCompletion(ctx, j); err != nil {
			zap.L().Warn("[Job] completion notification deferred", zap.String("job_id", j.ID), zap.Error(err))
		}
	}
	s.metrics.ObserveUpdate(result, time.Since(start))
	return nil
}

// Report summarizes one UpdateAll run.
type Report struct {
	Updated  []string
	Skipped  []string
	Failed   map[string]error
	Notified []string
}

// UpdateAll updates every submitted job that is not archived. A failing job
// is logged and reported to the operator and the others are still updated.
func (s *Service) UpdateAll(ctx context.Context) (*Report, error) {
	var jobs []Job
	if err := s.db.WithContext(ctx).
		Where("archived = ? AND status <> ?", false, StatusNew).
		Order("id").
		Find(&jobs).Error; err != nil {
		return nil, err
	}

	report := &Report{Failed: make(map[string]error)}
	for i := range jobs {
		j := &jobs[i]
		err := s.Update(ctx, j)
		switch {
		case err == nil:
			report.Updated = append(report.Updated, j.ID)
		case errors.Is(err, ErrBusy):
			zap.L().Info("[Job] skipped, update in progress elsewhere", zap.String("job_id", j.ID))
			report.Skipped = append(report.Skipped, j.ID)
		default:
			zap.L().Error("[Job] update failed",
				zap.String("job_id", j.ID),
				zap.String("code", codeOf(err)),
				zap.Bool("retryable", errutil.Retryable(err)),
				zap.Error(err),
			)
			report.Failed[j.ID] = err
			s.notifyOperator(ctx, j, err)
		}
	}

	var pending []Job
	if err := s.db.WithContext(ctx).
		Where("archived = ? AND status = ? AND notified_at IS NULL", true, StatusComplete).
		Order("id").
		Find(&pending).Error; err != nil {
		return report, err
	}
	for i := range pending {
		if err := s.notifyCompletion(ctx, &pending[i]); err != nil {
			continue
		}
		report.Notified = append(report.Notified, pending[i].ID)
	}

	zap.L().Info("[Job] update-all finished",
		zap.Int("updated", len(report.Updated)),
		zap.Int("skipped", len(report.Skipped)),
		zap.Int("failed", len(report.Failed)),
		zap.Int("notified", len(report.Notified)),
	)
	return report, nil
}

func codeOf(err error) string {
	return string(errutil.StatusOf(err))
}
