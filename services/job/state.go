package job

import (
	"strings"

	"go.uber.org/zap"
)

// remoteTokens are checked in this order, the first one found wins.
var remoteTokens = []Status{StatusSubmitted, StatusRunning, StatusComplete, StatusError}

// ParseRemoteStatus finds the status reported by the job_status command.
func ParseRemoteStatus(out string) (Status, bool) {
	text := strings.ToLower(out)
	for _, s := range remoteTokens {
		if strings.Contains(text, string(s)) {
			return s, true
		}
	}
	return "", false
}

var transitions = map[Status][]Status{
	StatusNew:       {StatusSubmitted},
	StatusSubmitted: {StatusSubmitted, StatusRunning, StatusComplete, StatusError},
	StatusRunning:   {StatusRunning, StatusComplete, StatusError},
	StatusComplete:  {StatusComplete},
	StatusError:     {StatusError},
}

// CanTransition reports whether from -> to is an expected move.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// applyRemoteStatus moves the job to the status reported by the cluster.
// The cluster is authoritative: unexpected moves are logged and applied.
// Archived jobs never change.
func (j *Job) applyRemoteStatus(to Status) bool {
	if j.Archived {
		return false
	}
	if !CanTransition(j.Status, to) {
		zap.L().Warn("[Job] inconsistent remote status",
			zap.String("job_id", j.ID),
			zap.String("from", j.Status.String()),
			zap.String("to", to.String()),
		)
	}
	if j.Status == to {
		return false
	}
	zap.L().Info("[Job] status changed",
		zap.String("job_id", j.ID),
		zap.String("from", j.Status.String()),
		zap.String("to", to.String()),
	)
	j.Status = to
	return true
}

// archiveIfComplete freezes a complete job.
func (j *Job) archiveIfComplete() bool {
	if j.Archived || j.Status != StatusComplete {
		return false
	}
	j.Archived = true
	return true
}
