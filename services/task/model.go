package task

import (
	"fmt"
	"time"

	"contaminer/pkg/errutil"
	"contaminer/services/contabase"

	"gorm.io/gorm"
)

type Status string

const (
	StatusNew      Status = "new"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
)

func (s Status) String() string {
	switch s {
	case StatusNew, StatusComplete, StatusError:
		return string(s)
	default:
		return ""
	}
}

// Display is the label shown to users.
func (s Status) Display() string {
	switch s {
	case StatusError:
		return "Error"
	case StatusComplete:
		return "Complete"
	default:
		return "New"
	}
}

// Task is the test of one pack in one space group against a job's input.
type Task struct {
	ID         int64           `gorm:"column:id;primaryKey;autoIncrement"`
	JobID      string          `gorm:"column:job_id;type:varchar(20);uniqueIndex:idx_task_triple;not null"`
	PackID     int64           `gorm:"column:pack_id;uniqueIndex:idx_task_triple;not null"`
	Pack       *contabase.Pack `gorm:"foreignKey:PackID"`
	SpaceGroup string          `gorm:"column:space_group;type:varchar(15);uniqueIndex:idx_task_triple;not null"`
	Status     Status          `gorm:"column:status;type:varchar(10);not null;default:'new'"`
	Percent    *int            `gorm:"column:percent"`
	QFactor    *float64        `gorm:"column:q_factor"`
	ExecTime   time.Duration   `gorm:"column:exec_time;not null;default:0"`
	CreatedAt  time.Time       `gorm:"autoCreateTime"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime"`
}

// BeforeSave rejects out of range scores whatever built the task.
func (t *Task) BeforeSave(tx *gorm.DB) error {
	if t.Percent != nil && (*t.Percent < 0 || *t.Percent > 100) {
		return errutil.ValidationFailed(fmt.Sprintf("percent %d is out of [0,100]", *t.Percent), nil,
			errutil.WithDetails(errutil.Detail{Field: "percent", Message: "must be between 0 and 100"}))
	}
	if t.Status.String() == "" {
		return errutil.ValidationFailed(fmt.Sprintf("unknown task status %q", t.Status), nil)
	}
	return nil
}

// Complete reports whether the cluster reported this task, errors included.
func (t *Task) Complete() bool {
	return t.Status == StatusComplete || t.Status == StatusError
}

func (t *Task) Failed() bool {
	return t.Status == StatusError
}

// Valid reports whether the task can be a result: complete and not in error.
func (t *Task) Valid() bool {
	return t.Status == StatusComplete
}

func (t *Task) PercentValue() int {
	if t.Percent == nil {
		return 0
	}
	return *t.Percent
}

func (t *Task) QFactorValue() float64 {
	if t.QFactor == nil {
		return 0
	}
	return *t.QFactor
}

// HasFinalFiles reports whether final.pdb and final.mtz are expected for the task.
func (t *Task) HasFinalFiles() bool {
	return t.Valid() && t.PercentValue() > finalFilesThreshold
}

func (t *Task) String() string {
	if t.Pack != nil && t.Pack.Contaminant != nil {
		return fmt.Sprintf("%s_%d_%s", t.Pack.Contaminant.UniprotID, t.Pack.Number, t.SpaceGroup)
	}
	return fmt.Sprintf("task %d (pack %d, %s)", t.ID, t.PackID, t.SpaceGroup)
}
