package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"contaminer/pkg/errutil"
	queue "contaminer/pkg/task"
	"contaminer/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

type submitPayload struct {
	JobID string `json:"job_id"`
	Path  string `json:"path"`
}

// EnqueueSubmit schedules the submission of a created job. Without a queue
// the submission runs inline and its error is returned.
func (s *Service) EnqueueSubmit(ctx context.Context, j *Job, localPath string) error {
	if s.queue == nil {
		return s.ProcessSubmission(ctx, j.ID, localPath)
	}

	payload, err := json.Marshal(submitPayload{JobID: j.ID, Path: localPath})
	if err != nil {
		return err
	}

	info, err := s.queue.Enqueue(ctx,
		asynq.NewTask(taskname.JobSubmit, payload),
		asynq.Queue(queue.QueueSubmit),
		asynq.TaskID("submit:"+j.ID),
		asynq.MaxRetry(5),
	)
	if err != nil {
		s.recordSubmissionError(ctx, j.ID, err)
		return err
	}

	zap.L().Info("enqueued submit job",
		zap.String("job_id", j.ID),
		zap.String("queue", info.Queue),
		zap.String("task_id", info.ID),
	)
	return nil
}

// HandleSubmitTask is the asynq handler of job:submit.
func (s *Service) HandleSubmitTask(ctx context.Context, t *asynq.Task) error {
	var payload submitPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		zap.L().Error("invalid submit payload", zap.Error(err))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	zap.L().Info("Processing submit task", zap.String("job_id", payload.JobID))

	err := s.ProcessSubmission(ctx, payload.JobID, payload.Path)
	if err == nil {
		return nil
	}
	if errutil.Retryable(err) {
		return err
	}
	return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
}

// ProcessSubmission submits the job if it is still new. Failures are stored
// in the job last_error column.
func (s *Service) ProcessSubmission(ctx context.Context, jobID, localPath string) error {
	j, err := s.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if j.Submitted() {
		zap.L().Info("job already submitted", zap.String("job_id", jobID))
		return nil
	}

	if err := s.Submit(ctx, j, localPath); err != nil {
		zap.L().Error("failed to submit job", zap.String("job_id", jobID), zap.Error(err))
		s.recordSubmissionError(ctx, jobID, err)
		return err
	}
	return nil
}

func (s *Service) recordSubmissionError(ctx context.Context, jobID string, cause error) {
	msg := cause.Error()
	var base errutil.BaseError
	if errors.As(cause, &base) {
		msg = fmt.Sprintf("%s: %s", base.Code, base.Error())
	}
	if err := s.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", jobID).
		Update("last_error", msg).Error; err != nil {
		zap.L().Error("failed to record submission error", zap.String("job_id", jobID), zap.Error(err))
	}
}

// RegisterHandlers binds the job tasks on mux.
func RegisterHandlers(mux *asynq.ServeMux, s *Service) {
	mux.HandleFunc(taskname.JobSubmit, s.HandleSubmitTask)
}
