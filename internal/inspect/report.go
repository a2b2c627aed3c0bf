// Package inspect renders archived jobs for operators.
package inspect

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mattjoyce/jobcluster/internal/execution"
)

// Archive is the read side of the archived execution graph store.
type Archive interface {
	Get(ctx context.Context, jobID string) (*execution.ArchivedExecutionGraph, error)
	LogEntries(ctx context.Context, jobID string) (int, error)
}

// Report is the structured JSON representation of an archived job.
type Report struct {
	JobID             string                      `json:"job_id"`
	JobName           string                      `json:"job_name"`
	Status            execution.JobStatus         `json:"status"`
	ApplicationStatus execution.ApplicationStatus `json:"application_status"`
	ExitCode          int                         `json:"exit_code"`
	SubmittedAt       time.Time                   `json:"submitted_at"`
	FinishedAt        time.Time                   `json:"finished_at"`
	Duration          string                      `json:"duration"`
	FailureCause      string                      `json:"failure_cause,omitempty"`
	Archived          int                         `json:"archived"`
	Steps             []Step                      `json:"steps"`
}

// Step is one vertex of the archived job.
type Step struct {
	Index    int                 `json:"index"`
	Name     string              `json:"name"`
	Status   execution.JobStatus `json:"status"`
	ExitCode int                 `json:"exit_code"`
	Duration string              `json:"duration,omitempty"`
	Error    string              `json:"error,omitempty"`
	Stderr   string              `json:"stderr,omitempty"`
}

// BuildReport renders a terminal-friendly report for a job.
func BuildReport(ctx context.Context, archive Archive, jobID string) (string, error) {
	report, err := gatherReportData(ctx, archive, jobID)
	if err != nil {
		return "", err
	}

	var out strings.Builder
	fmt.Fprintf(&out, "Job Report\n")
	fmt.Fprintf(&out, "Job ID      : %s\n", report.JobID)
	fmt.Fprintf(&out, "Name        : %s\n", report.JobName)
	fmt.Fprintf(&out, "Status      : %s (%s, exit %d)\n", report.Status, report.ApplicationStatus, report.ExitCode)
	fmt.Fprintf(&out, "Submitted   : %s\n", report.SubmittedAt.Format(time.RFC3339))
	fmt.Fprintf(&out, "Finished    : %s\n", report.FinishedAt.Format(time.RFC3339))
	fmt.Fprintf(&out, "Duration    : %s\n", report.Duration)
	fmt.Fprintf(&out, "Archived    : %d time(s)\n", report.Archived)
	if report.FailureCause != "" {
		fmt.Fprintf(&out, "Cause       : %s\n", report.FailureCause)
	}
	fmt.Fprintf(&out, "\n")

	for _, step := range report.Steps {
		fmt.Fprintf(&out, "[%d] %s\n", step.Index, step.Name)
		fmt.Fprintf(&out, "    status     : %s\n", step.Status)
		fmt.Fprintf(&out, "    exit_code  : %d\n", step.ExitCode)
		if step.Duration != "" {
			fmt.Fprintf(&out, "    duration   : %s\n", step.Duration)
		} else {
			fmt.Fprintf(&out, "    duration   : <not run>\n")
		}
		if step.Error != "" {
			fmt.Fprintf(&out, "    error      : %s\n", step.Error)
		}
		if stderr := strings.TrimSpace(step.Stderr); stderr != "" {
			fmt.Fprintf(&out, "    stderr     :\n")
			for _, line := range strings.Split(stderr, "\n") {
				fmt.Fprintf(&out, "      %s\n", line)
			}
		}
		fmt.Fprintf(&out, "\n")
	}

	return strings.TrimRight(out.String(), "\n") + "\n", nil
}

// BuildJSONReport returns the machine-readable JSON report.
func BuildJSONReport(ctx context.Context, archive Archive, jobID string) (string, error) {
	report, err := gatherReportData(ctx, archive, jobID)
	if err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal json report: %w", err)
	}
	return string(data), nil
}

func gatherReportData(ctx context.Context, archive Archive, jobID string) (*Report, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, fmt.Errorf("job id is required")
	}

	g, err := archive.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	entries, err := archive.LogEntries(ctx, jobID)
	if err != nil {
		return nil, err
	}

	app := execution.ApplicationStatusFromJobStatus(g.State)
	report := &Report{
		JobID:             g.JobID,
		JobName:           g.JobName,
		Status:            g.State,
		ApplicationStatus: app,
		ExitCode:          app.ExitCode(),
		SubmittedAt:       g.SubmittedAt,
		FinishedAt:        g.FinishedAt,
		Duration:          formatDuration(g.FinishedAt.Sub(g.SubmittedAt)),
		FailureCause:      g.FailureCause,
		Archived:          entries,
		Steps:             make([]Step, 0, len(g.Vertices)),
	}

	for i, v := range g.Vertices {
		step := Step{
			Index:    i + 1,
			Name:     v.Name,
			Status:   v.State,
			ExitCode: v.ExitCode,
			Error:    v.Error,
			Stderr:   v.Stderr,
		}
		if v.StartedAt != nil && v.FinishedAt != nil {
			step.Duration = formatDuration(v.FinishedAt.Sub(*v.StartedAt))
		}
		report.Steps = append(report.Steps, step)
	}
	return report, nil
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return d.Round(time.Millisecond).String()
}
