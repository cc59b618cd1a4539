package job

import (
	"context"
	"errors"
	"slices"
	"strings"

	"contaminer/pkg/errutil"
	"contaminer/services/task"

	"gorm.io/gorm"
)

// FinalFormats are the downloadable final files of a task.
var FinalFormats = []string{"pdb", "mtz"}

// FinalFile returns the local path of the final pdb or mtz of the task
// testing pack packNumber of uniprotID in spaceGroup.
func (s *Service) FinalFile(ctx context.Context, j *Job, uniprotID string, packNumber int, spaceGroup, format string) (string, error) {
	if !slices.Contains(FinalFormats, format) {
		return "", errutil.BadRequest("unknown final file format "+format, nil)
	}
	contabaseID, err := s.snapshotOf(ctx, j)
	if err != nil {
		return "", err
	}
	uniprotID = strings.ToUpper(uniprotID)
	packs, err := s.catalog.FindPacks(ctx, contabaseID, uniprotID, packNumber)
	if err != nil {
		return "", err
	}
	if len(packs) != 1 {
		return "", errutil.NotFound("no pack "+uniprotID+" in the catalog", nil)
	}

	var t task.Task
	err = s.db.WithContext(ctx).
		Where("job_id = ? AND pack_id = ? AND space_group = ?", j.ID, packs[0].ID, spaceGroup).
		First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", errutil.NotFound("no task for "+task.Label(uniprotID, packNumber, spaceGroup), err)
	}
	if err != nil {
		return "", err
	}

	label := task.Label(uniprotID, packNumber, spaceGroup)
	artifacts := s.reconciler.Artifacts()
	if !t.HasFinalFiles() || !artifacts.Available(j.ID, label, format) {
		return "", errutil.NotFound("no final "+format+" for "+label, nil)
	}
	return artifacts.Path(j.ID, label, format), nil
}
