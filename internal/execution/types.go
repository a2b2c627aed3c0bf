package execution

import (
	"context"
	"time"

	"github.com/mattjoyce/jobcluster/internal/jobgraph"
)

// JobStatus is the lifecycle status of the governed job as seen by the execution layer.
type JobStatus string

const (
	JobStatusCreated  JobStatus = "CREATED"
	JobStatusRunning  JobStatus = "RUNNING"
	JobStatusFinished JobStatus = "FINISHED"
	JobStatusFailed   JobStatus = "FAILED"
	JobStatusCanceled JobStatus = "CANCELED"
)

// IsGloballyTerminal reports whether the job will not transition any further.
func (s JobStatus) IsGloballyTerminal() bool {
	switch s {
	case JobStatusFinished, JobStatusFailed, JobStatusCanceled:
		return true
	default:
		return false
	}
}

// ApplicationStatus is the outcome the cluster reports when it shuts down.
type ApplicationStatus string

const (
	ApplicationSucceeded ApplicationStatus = "SUCCEEDED"
	ApplicationFailed    ApplicationStatus = "FAILED"
	ApplicationCanceled  ApplicationStatus = "CANCELED"
	ApplicationUnknown   ApplicationStatus = "UNKNOWN"
)

// ApplicationStatusFromJobStatus maps a terminal job status to an application status.
func ApplicationStatusFromJobStatus(s JobStatus) ApplicationStatus {
	switch s {
	case JobStatusFinished:
		return ApplicationSucceeded
	case JobStatusFailed:
		return ApplicationFailed
	case JobStatusCanceled:
		return ApplicationCanceled
	default:
		return ApplicationUnknown
	}
}

// Process exit codes of the application statuses. They stay clear of the
// small codes the entrypoint uses for bootstrap and fatal failures.
const (
	ExitCodeFailed  = 1443
	ExitCodeUnknown = 1445
)

// ExitCode returns the process exit code for the status.
func (s ApplicationStatus) ExitCode() int {
	switch s {
	case ApplicationSucceeded, ApplicationCanceled:
		return 0
	case ApplicationFailed:
		return ExitCodeFailed
	default:
		return ExitCodeUnknown
	}
}

// VertexResult records how one vertex ran.
type VertexResult struct {
	Name       string     `json:"name"`
	State      JobStatus  `json:"state"`
	ExitCode   int        `json:"exit_code"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
	Stderr     string     `json:"stderr,omitempty"`
}

// ArchivedExecutionGraph is the serializable snapshot of a job once it reached
// a terminal state.
type ArchivedExecutionGraph struct {
	JobID        string         `json:"job_id"`
	JobName      string         `json:"job_name"`
	State        JobStatus      `json:"state"`
	Vertices     []VertexResult `json:"vertices"`
	SubmittedAt  time.Time      `json:"submitted_at"`
	FinishedAt   time.Time      `json:"finished_at"`
	FailureCause string         `json:"failure_cause,omitempty"`
}

// FailedGraph builds an archived graph for a job that failed before any vertex ran.
func FailedGraph(g *jobgraph.JobGraph, submittedAt time.Time, cause error) *ArchivedExecutionGraph {
	vertices := make([]VertexResult, 0, len(g.Vertices))
	for _, v := range g.Vertices {
		vertices = append(vertices, VertexResult{Name: v.Name, State: JobStatusCanceled})
	}
	return &ArchivedExecutionGraph{
		JobID:        g.ID,
		JobName:      g.DisplayName(),
		State:        JobStatusFailed,
		Vertices:     vertices,
		SubmittedAt:  submittedAt,
		FinishedAt:   time.Now().UTC(),
		FailureCause: cause.Error(),
	}
}

// TerminalListener receives the archived graph once the job is globally terminal.
// It is called at most once per runner.
type TerminalListener func(*ArchivedExecutionGraph)

// HeartbeatTarget is what a runner reports liveness to while it runs.
type HeartbeatTarget interface {
	ReceiveHeartbeat(target string)
}

// RunnerContext carries everything a runner needs for one job attempt.
type RunnerContext struct {
	Graph        *jobgraph.JobGraph
	AttemptID    string
	AllocationID string
	// Artifacts maps the job's declared artifact paths to their local copies.
	Artifacts   map[string]string
	Heartbeat   HeartbeatTarget
	HeartbeatID string
	SubmittedAt time.Time
	OnTerminal  TerminalListener
}

// Runner executes one job attempt.
type Runner interface {
	// Start begins execution and returns without waiting for it to finish.
	Start(ctx context.Context) error
	// Cancel asks the job to stop; the terminal listener still fires with CANCELED.
	Cancel(ctx context.Context) error
}

// RunnerFactory creates runners. It is injected into the dispatcher explicitly.
type RunnerFactory interface {
	NewRunner(rc RunnerContext) (Runner, error)
}
