package task

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"contaminer/pkg/config"
	"contaminer/pkg/minio"
	"contaminer/pkg/remote"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const finalFilesThreshold = 90

// FinalFiles maps the remote final file name to the local extension.
var FinalFiles = map[string]string{
	"final.pdb": "pdb",
	"final.mtz": "mtz",
}

// JobDirname is the directory of a job on the cluster and in the artifact
// directory.
func JobDirname(jobID string) string {
	return "contaminer_" + jobID
}

// Mirror copies retrieved artifacts to object storage.
type Mirror interface {
	Put(ctx context.Context, object, localPath string) error
	RemovePrefix(ctx context.Context, prefix string) error
}

// Artifacts downloads the final model and map of good solutions.
type Artifacts struct {
	cluster *remote.Cluster
	dir     string
	mirror  Mirror
}

type ArtifactsParams struct {
	fx.In

	Config  *config.Config
	Cluster *remote.Cluster
	Mirror  *minio.Mirror `optional:"true"`
}

func NewArtifacts(p ArtifactsParams) *Artifacts {
	a := NewArtifactsWith(p.Cluster, p.Config.Local.ArtifactDirectory, nil)
	if p.Mirror != nil {
		a.mirror = p.Mirror
	}
	return a
}

func NewArtifactsWith(cluster *remote.Cluster, dir string, mirror Mirror) *Artifacts {
	return &Artifacts{cluster: cluster, dir: dir, mirror: mirror}
}

// JobDir is the local directory holding the artifacts of a job.
func (a *Artifacts) JobDir(jobID string) string {
	return filepath.Join(a.dir, JobDirname(jobID))
}

// Path is the local file for ext ("pdb" or "mtz") of the task labelled label.
func (a *Artifacts) Path(jobID, label, ext string) string {
	return filepath.Join(a.JobDir(jobID), label+"."+ext)
}

// Available reports whether the local file exists.
func (a *Artifacts) Available(jobID, label, ext string) bool {
	_, err := os.Stat(a.Path(jobID, label, ext))
	return err == nil
}

// Retrieved reports whether every final file of the task is already stored
// locally.
func (a *Artifacts) Retrieved(jobID, label string) bool {
	for _, ext := range FinalFiles {
		if !a.Available(jobID, label, ext) {
			return false
		}
	}
	return true
}

// Retrieve downloads final.pdb and final.mtz of the task in l. An existing
// local directory is reused.
func (a *Artifacts) Retrieve(ctx context.Context, jobID string, l Line) error {
	label := l.Label()
	dir := a.JobDir(jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact directory %s: %w", dir, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for name, ext := range FinalFiles {
		remotePath := a.cluster.WorkPath(JobDirname(jobID), label, name)
		localPath := a.Path(jobID, label, ext)
		g.Go(func() error {
			if err := a.cluster.DownloadFile(gctx, remotePath, localPath); err != nil {
				return err
			}
			zap.L().Debug("[Artifacts] downloaded",
				zap.String("job_id", jobID),
				zap.String("remote_path", remotePath),
				zap.String("local_path", localPath),
			)
			if a.mirror == nil {
				return nil
			}
			return a.mirror.Put(gctx, JobDirname(jobID)+"/"+filepath.Base(localPath), localPath)
		})
	}
	return g.Wait()
}

// RemoveJob deletes every local and mirrored artifact of a job.
func (a *Artifacts) RemoveJob(ctx context.Context, jobID string) error {
	if err := os.RemoveAll(a.JobDir(jobID)); err != nil {
		return fmt.Errorf("remove artifacts of job %s: %w", jobID, err)
	}
	if a.mirror != nil {
		return a.mirror.RemovePrefix(ctx, JobDirname(jobID)+"/")
	}
	return nil
}
