package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"contaminer/pkg/errutil"
	"contaminer/services/contabase"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Reconciler turns result lines into Task rows. Reconciling the same line
// again updates the same row.
type Reconciler struct {
	db        *gorm.DB
	catalog   contabase.Repository
	artifacts *Artifacts
	// contabaseID pins pack resolution to one snapshot. Zero resolves in the
	// current snapshot.
	contabaseID int64
}

type ReconcilerParams struct {
	fx.In

	DB        *gorm.DB
	Artifacts *Artifacts
}

func NewReconciler(p ReconcilerParams) *Reconciler {
	return &Reconciler{
		db:        p.DB,
		catalog:   contabase.NewRepository(p.DB),
		artifacts: p.Artifacts,
	}
}

// WithTrx returns a reconciler writing through tx.
func (r *Reconciler) WithTrx(tx *gorm.DB) *Reconciler {
	if tx == nil {
		return r
	}
	return &Reconciler{
		db:          tx,
		catalog:     r.catalog.WithTrx(tx),
		artifacts:   r.artifacts,
		contabaseID: r.contabaseID,
	}
}

// InSnapshot returns a reconciler resolving packs in the given ContaBase
// snapshot.
func (r *Reconciler) InSnapshot(contabaseID int64) *Reconciler {
	c := *r
	c.contabaseID = contabaseID
	return &c
}

func (r *Reconciler) Artifacts() *Artifacts { return r.artifacts }

// Reconcile parses raw and stores its outcome on the task of jobID.
func (r *Reconciler) Reconcile(ctx context.Context, jobID, raw string) (*Task, error) {
	l, err := ParseLine(raw)
	if err != nil {
		return nil, err
	}
	return r.Apply(ctx, jobID, l)
}

// Apply stores an already parsed line.
func (r *Reconciler) Apply(ctx context.Context, jobID string, l Line) (*Task, error) {
	pack, err := r.resolvePack(ctx, l)
	if err != nil {
		return nil, err
	}

	var t Task
	err = r.db.WithContext(ctx).
		Where("job_id = ? AND pack_id = ? AND space_group = ?", jobID, pack.ID, l.SpaceGroup).
		First(&t).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		t = Task{JobID: jobID, PackID: pack.ID, SpaceGroup: l.SpaceGroup, Status: StatusNew}
	case err != nil:
		return nil, err
	}

	switch l.Outcome {
	case OutcomeCancelled:
		t.Status = StatusNew
		t.Percent, t.QFactor = intPtr(0), floatPtr(0)
	case OutcomeError:
		t.Status = StatusError
	case OutcomeNoSolution:
		t.Status = StatusComplete
		t.Percent, t.QFactor = intPtr(0), floatPtr(0)
	case OutcomeScored:
		t.Status = StatusComplete
		t.Percent, t.QFactor = intPtr(l.Percent), floatPtr(l.QFactor)
		if l.Percent > finalFilesThreshold && !r.artifacts.Retrieved(jobID, l.Label()) {
			if err := r.artifacts.Retrieve(ctx, jobID, l); err != nil {
				zap.L().Error("[Reconciler] artifact retrieval failed",
					zap.String("job_id", jobID),
					zap.String("task", l.Label()),
					zap.Error(err),
				)
				return nil, err
			}
		}
	}
	t.ExecTime = time.Duration(l.ElapsedSeconds) * time.Second

	if err := r.db.WithContext(ctx).
		Omit(clause.Associations).
		Save(&t).Error; err != nil {
		return nil, err
	}
	t.Pack = pack

	zap.L().Debug("[Reconciler] task reconciled",
		zap.String("job_id", jobID),
		zap.String("uniprot_id", l.UniprotID),
		zap.Int("pack_number", l.PackNumber),
		zap.String("space_group", l.SpaceGroup),
		zap.String("status", t.Status.String()),
	)
	return &t, nil
}

func (r *Reconciler) resolvePack(ctx context.Context, l Line) (*contabase.Pack, error) {
	contabaseID := r.contabaseID
	if contabaseID == 0 {
		cb, err := r.catalog.Current(ctx)
		if err != nil {
			return nil, errutil.InconsistentCatalog("no current contabase to resolve "+l.Label(), err)
		}
		contabaseID = cb.ID
	}

	packs, err := r.catalog.FindPacks(ctx, contabaseID, l.UniprotID, l.PackNumber)
	if err != nil {
		return nil, err
	}
	if len(packs) != 1 {
		return nil, errutil.InconsistentCatalog(
			fmt.Sprintf("%d packs match %s pack %d", len(packs), l.UniprotID, l.PackNumber), nil,
			errutil.WithDetails(errutil.Detail{Field: "line", Message: l.String()}),
		)
	}
	return r.catalog.Pack(ctx, packs[0].ID)
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }
