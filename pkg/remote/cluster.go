package remote

import (
	"context"
	"path"
	"strings"

	"contaminer/pkg/config"
)

const resultsFile = "results.txt"

// Cluster knows where ContaMiner lives on the cluster and how to invoke it.
type Cluster struct {
	Channel
	binary  string
	workDir string
}

func NewCluster(ch Channel, cfg *config.Config) *Cluster {
	return NewClusterWith(ch, cfg.Cluster)
}

func NewClusterWith(ch Channel, cfg config.ClusterConfig) *Cluster {
	return &Cluster{
		Channel: ch,
		binary:  path.Join(cfg.ContaminerLocation, "contaminer"),
		workDir: cfg.WorkDirectory,
	}
}

// WorkDir is the remote directory where inputs are uploaded and jobs run.
func (c *Cluster) WorkDir() string { return c.workDir }

// WorkPath joins elem under the work directory.
func (c *Cluster) WorkPath(elem ...string) string {
	return path.Join(append([]string{c.workDir}, elem...)...)
}

// ResultsPath is the results stream of the job running in dirname.
func (c *Cluster) ResultsPath(dirname string) string {
	return c.WorkPath(dirname, resultsFile)
}

// Solve starts ContaMiner on an uploaded input and contaminant list.
func (c *Cluster) Solve(ctx context.Context, inputName, listName string) (string, error) {
	return c.Execute(ctx, c.inWorkDir("solve", inputName, listName))
}

// JobStatus asks ContaMiner for the state of the job in dirname.
func (c *Cluster) JobStatus(ctx context.Context, dirname string) (string, error) {
	return c.Execute(ctx, c.inWorkDir("job_status", dirname))
}

// Display exports the prepared catalog.
func (c *Cluster) Display(ctx context.Context) (string, error) {
	return c.Execute(ctx, "sh "+shellQuote(c.binary)+" display")
}

func (c *Cluster) inWorkDir(args ...string) string {
	quoted := make([]string, 0, len(args))
	for _, a := range args {
		quoted = append(quoted, shellQuote(a))
	}
	return "cd " + shellQuote(c.workDir) + " && sh " + shellQuote(c.binary) + " " + strings.Join(quoted, " ")
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
