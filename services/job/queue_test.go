package job

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"contaminer/pkg/config"
	"contaminer/pkg/remote/remotetest"
	"contaminer/pkg/taskname"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

func TestHandleSubmitTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.svc.HandleSubmitTask(ctx, asynq.NewTask(taskname.JobSubmit, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	j, err := f.svc.Create(ctx, CreateParams{Contaminants: []string{"P0ACJ8"}})
	require.NoError(t, err)
	input := filepath.Join(t.TempDir(), j.Filename("mtz"))
	require.NoError(t, os.WriteFile(input, []byte("MTZ"), 0o644))
	payload, err := json.Marshal(submitPayload{JobID: j.ID, Path: input})
	require.NoError(t, err)

	f.fake.Fail(workDir+"/"+j.Filename("mtz"), remotetest.ErrUnreachable)
	err = f.svc.HandleSubmitTask(ctx, asynq.NewTask(taskname.JobSubmit, payload))
	require.Error(t, err)
	require.NotErrorIs(t, err, asynq.SkipRetry)

	f.fake.Fail(workDir+"/"+j.Filename("mtz"), nil)
	require.NoError(t, f.svc.HandleSubmitTask(ctx, asynq.NewTask(taskname.JobSubmit, payload)))
	require.Equal(t, StatusSubmitted, f.reload(t, j).Status)

	missing, err := json.Marshal(submitPayload{JobID: "404", Path: input})
	require.NoError(t, err)
	require.ErrorIs(t, f.svc.HandleSubmitTask(ctx, asynq.NewTask(taskname.JobSubmit, missing)), asynq.SkipRetry)
}

func TestNewScheduler(t *testing.T) {
	f := newFixture(t)
	cfg := &config.Config{}
	cfg.Updater.Schedule = "*/5 * * * *"
	cfg.Updater.CleanupSchedule = "0 3 * * *"

	s, err := NewScheduler(f.svc, cfg)
	require.NoError(t, err)
	require.Len(t, s.cron.Entries(), 2)

	cfg.Updater.Schedule = "every now and then"
	_, err = NewScheduler(f.svc, cfg)
	require.Error(t, err)
}
