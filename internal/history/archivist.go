// Package history notifies the job history service about finished jobs.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattjoyce/jobcluster/internal/execution"
)

// FSArchivist writes each archived graph to <dir>/<job_id>.json, where a
// history server can pick it up.
type FSArchivist struct {
	dir string
}

func NewFSArchivist(dir string) (*FSArchivist, error) {
	if dir == "" {
		return nil, fmt.Errorf("history archive directory is empty")
	}
	return &FSArchivist{dir: dir}, nil
}

// ArchiveExecutionGraph writes g atomically via a temp file and rename.
func (a *FSArchivist) ArchiveExecutionGraph(ctx context.Context, g *execution.ArchivedExecutionGraph) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if g == nil || g.JobID == "" {
		return fmt.Errorf("archived graph has no job id")
	}
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return fmt.Errorf("create history directory: %w", err)
	}

	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal archived graph: %w", err)
	}

	tmp, err := os.CreateTemp(a.dir, "."+g.JobID+"-*.json")
	if err != nil {
		return fmt.Errorf("create temp history file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write history file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close history file: %w", err)
	}
	if err := os.Rename(tmp.Name(), a.Path(g.JobID)); err != nil {
		return fmt.Errorf("publish history file: %w", err)
	}
	return nil
}

// Path returns where the archive for jobID is written.
func (a *FSArchivist) Path(jobID string) string {
	return filepath.Join(a.dir, filepath.Base(jobID)+".json")
}

// Void discards every notification. It is used when history.archive_dir is unset.
type Void struct{}

func (Void) ArchiveExecutionGraph(context.Context, *execution.ArchivedExecutionGraph) error {
	return nil
}
