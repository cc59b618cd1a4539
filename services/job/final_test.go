package job

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"contaminer/pkg/errutil"
	"contaminer/services/task"

	"github.com/stretchr/testify/require"
)

func TestFinalFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j := f.submitted(t, "")

	f.addTask(t, j, "P0AA25", 1, "P 1 21 1", task.StatusComplete, 95, 0.8)
	f.addTask(t, j, "P0ACJ8", 1, "P 1 21 1", task.StatusComplete, 60, 0.4)
	dir := filepath.Join(f.artifacts, j.Dirname())
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "P0AA25_1_P-1-21-1.pdb"), []byte("ATOM"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "P0ACJ8_1_P-1-21-1.pdb"), []byte("ATOM"), 0o644))

	got, err := f.svc.FinalFile(ctx, j, "p0aa25", 1, "P 1 21 1", "pdb")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "P0AA25_1_P-1-21-1.pdb"), got)

	_, err = f.svc.FinalFile(ctx, j, "P0AA25", 1, "P 1 21 1", "mtz")
	require.ErrorIs(t, err, errutil.ErrNotFound)

	_, err = f.svc.FinalFile(ctx, j, "P0ACJ8", 1, "P 1 21 1", "pdb")
	require.ErrorIs(t, err, errutil.ErrNotFound, "score too low for final files")

	_, err = f.svc.FinalFile(ctx, j, "P0AA25", 1, "C 2", "pdb")
	require.ErrorIs(t, err, errutil.ErrNotFound)

	_, err = f.svc.FinalFile(ctx, j, "P0AA25", 7, "P 1 21 1", "pdb")
	require.ErrorIs(t, err, errutil.ErrNotFound)

	_, err = f.svc.FinalFile(ctx, j, "P0AA25", 1, "P 1 21 1", "cif")
	require.Equal(t, errutil.StatusBadRequest, errutil.StatusOf(err))
}
