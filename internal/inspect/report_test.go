package inspect

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mattjoyce/jobcluster/internal/archive"
	"github.com/mattjoyce/jobcluster/internal/execution"
	"github.com/mattjoyce/jobcluster/internal/storage"
)

func seededStore(t *testing.T) *archive.Store {
	t.Helper()

	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	submitted := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	started := submitted.Add(time.Second)
	finished := started.Add(1500 * time.Millisecond)

	store := archive.New(db)
	g := &execution.ArchivedExecutionGraph{
		JobID:        "J2",
		JobName:      "nightly",
		State:        execution.JobStatusFailed,
		SubmittedAt:  submitted,
		FinishedAt:   finished,
		FailureCause: `vertex "extract": exited with status 3`,
		Vertices: []execution.VertexResult{
			{Name: "extract", State: execution.JobStatusFailed, ExitCode: 3, StartedAt: &started, FinishedAt: &finished,
				Error: "exited with status 3", Stderr: "boom\nsecond line\n"},
			{Name: "load", State: execution.JobStatusCanceled},
		},
	}
	if err := store.Put(context.Background(), g); err != nil {
		t.Fatalf("Put: %v", err)
	}
	return store
}

func TestBuildReportRendersVerticesAndStderr(t *testing.T) {
	t.Parallel()
	store := seededStore(t)

	out, err := BuildReport(context.Background(), store, "J2")
	if err != nil {
		t.Fatalf("BuildReport: %v", err)
	}

	for _, want := range []string{
		"Job ID      : J2",
		"Status      : FAILED (FAILED, exit 1443)",
		"Duration    : 2.5s",
		"Archived    : 1 time(s)",
		"[1] extract",
		"    duration   : 1.5s",
		"      second line",
		"[2] load",
		"    duration   : <not run>",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in report:\n%s", want, out)
		}
	}
}

func TestBuildJSONReport(t *testing.T) {
	t.Parallel()
	store := seededStore(t)

	out, err := BuildJSONReport(context.Background(), store, "J2")
	if err != nil {
		t.Fatalf("BuildJSONReport: %v", err)
	}

	var report Report
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.ApplicationStatus != execution.ApplicationFailed || report.ExitCode != execution.ExitCodeFailed {
		t.Fatalf("unexpected application status %s/%d", report.ApplicationStatus, report.ExitCode)
	}
	if len(report.Steps) != 2 || report.Steps[1].Status != execution.JobStatusCanceled {
		t.Fatalf("unexpected steps: %+v", report.Steps)
	}
}

func TestBuildReportUnknownJob(t *testing.T) {
	t.Parallel()
	store := seededStore(t)

	_, err := BuildReport(context.Background(), store, "nope")
	if !errors.Is(err, archive.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := BuildReport(context.Background(), store, "  "); err == nil {
		t.Fatal("expected error for empty job id")
	}
}
