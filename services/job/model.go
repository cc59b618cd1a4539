package job

import (
	"encoding/json"
	"time"

	"contaminer/services/task"

	"gorm.io/datatypes"
)

type Status string

const (
	StatusNew       Status = "new"
	StatusSubmitted Status = "submitted"
	StatusRunning   Status = "running"
	StatusComplete  Status = "complete"
	StatusError     Status = "error"
)

func (s Status) String() string {
	switch s {
	case StatusNew, StatusSubmitted, StatusRunning, StatusComplete, StatusError:
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
	case StatusRunning:
		return "Running"
	case StatusSubmitted:
		return "Submitted"
	default:
		return "New"
	}
}

// InputSuffixes are the accepted diffraction data formats.
var InputSuffixes = []string{"mtz", "cif"}

// Job is one diffraction data file tested against a contaminant selection.
type Job struct {
	ID           string         `gorm:"column:id;primaryKey;type:varchar(20)"`
	Status       Status         `gorm:"column:status;type:varchar(10);index;not null;default:'new'"`
	Archived     bool           `gorm:"column:archived;index;not null;default:false"`
	Name         string         `gorm:"column:name;type:varchar(50)"`
	Author       *string        `gorm:"column:author;type:varchar(150);index"`
	Email        string         `gorm:"column:email;type:varchar(254)"`
	Confidential bool           `gorm:"column:confidential;not null;default:false"`
	Contaminants datatypes.JSON `gorm:"column:contaminants"`
	// ContabaseID is the catalog snapshot current when the job was created.
	// Results of the job always resolve in this snapshot.
	ContabaseID int64       `gorm:"column:contabase_id;index"`
	SubmittedAt *time.Time  `gorm:"column:submitted_at;index"`
	NotifiedAt  *time.Time  `gorm:"column:notified_at"`
	LastError   string      `gorm:"column:last_error;type:text"`
	CreatedAt   time.Time   `gorm:"autoCreateTime"`
	UpdatedAt   time.Time   `gorm:"autoUpdateTime"`
	Tasks       []task.Task `gorm:"foreignKey:JobID;constraint:OnDelete:CASCADE"`
}

// Filename is the name of the job input on the cluster, or the job
// directory name when suffix is empty.
func (j *Job) Filename(suffix string) string {
	if suffix == "" {
		return task.JobDirname(j.ID)
	}
	return task.JobDirname(j.ID) + "." + suffix
}

// Dirname is the job directory on the cluster.
func (j *Job) Dirname() string {
	return j.Filename("")
}

func (j *Job) Submitted() bool { return j.Status != StatusNew }

func (j *Job) Running() bool { return j.Status == StatusRunning }

func (j *Job) Complete() bool { return j.Status == StatusComplete }

func (j *Job) Failed() bool { return j.Status == StatusError }

// Selection is the list of uniprot ids the job tests.
func (j *Job) Selection() ([]string, error) {
	var ids []string
	if len(j.Contaminants) == 0 {
		return ids, nil
	}
	err := json.Unmarshal(j.Contaminants, &ids)
	return ids, err
}

// ReadableBy reports whether principal may see the job results. An empty
// principal is an anonymous reader.
func (j *Job) ReadableBy(principal string) bool {
	if !j.Confidential {
		return true
	}
	return principal != "" && j.Author != nil && *j.Author == principal
}

func (j *Job) String() string {
	return j.Name + " - " + j.ID + " (" + j.Status.Display() + ")"
}
