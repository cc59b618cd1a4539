package job

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRemoteStatus(t *testing.T) {
	tests := []struct {
		out  string
		want Status
		ok   bool
	}{
		{out: "submitted", want: StatusSubmitted, ok: true},
		{out: "Job is RUNNING\n", want: StatusRunning, ok: true},
		{out: "complete", want: StatusComplete, ok: true},
		{out: "error: no such job", want: StatusError, ok: true},
		{out: "running, previously submitted", want: StatusSubmitted, ok: true},
		{out: "complete with error", want: StatusComplete, ok: true},
		{out: "", ok: false},
		{out: "queued", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.out, func(t *testing.T) {
			got, ok := ParseRemoteStatus(tt.out)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestCanTransition(t *testing.T) {
	require.True(t, CanTransition(StatusNew, StatusSubmitted))
	require.True(t, CanTransition(StatusSubmitted, StatusComplete))
	require.True(t, CanTransition(StatusRunning, StatusError))
	require.False(t, CanTransition(StatusNew, StatusRunning))
	require.False(t, CanTransition(StatusRunning, StatusSubmitted))
	require.False(t, CanTransition(StatusComplete, StatusRunning))
}

func TestApplyRemoteStatus(t *testing.T) {
	j := &Job{ID: "1", Status: StatusRunning}
	require.True(t, j.applyRemoteStatus(StatusSubmitted), "inconsistent moves still apply")
	require.Equal(t, StatusSubmitted, j.Status)
	require.False(t, j.applyRemoteStatus(StatusSubmitted))

	require.True(t, j.applyRemoteStatus(StatusComplete))
	require.True(t, j.archiveIfComplete())
	require.False(t, j.archiveIfComplete())

	require.False(t, j.applyRemoteStatus(StatusError))
	require.Equal(t, StatusComplete, j.Status)
}

func TestJobHelpers(t *testing.T) {
	author := "spongebob"
	j := &Job{ID: "42", Name: "test", Author: &author, Confidential: true}

	require.Equal(t, "contaminer_42.mtz", j.Filename("mtz"))
	require.Equal(t, "contaminer_42", j.Dirname())
	require.True(t, j.ReadableBy("spongebob"))
	require.False(t, j.ReadableBy("patrick"))
	require.False(t, j.ReadableBy(""))

	j.Confidential = false
	require.True(t, j.ReadableBy(""))
	require.Equal(t, "test - 42 (New)", j.String())
}
