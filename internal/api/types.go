package api

import (
	"github.com/mattjoyce/jobcluster/internal/dispatch"
	"github.com/mattjoyce/jobcluster/internal/execution"
)

// JobStatusResponse is returned by GET /job/status
type JobStatusResponse struct {
	JobID  string              `json:"job_id"`
	Status execution.JobStatus `json:"status"`
}

// SubmitJobResponse is returned by POST /jobs
type SubmitJobResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// CancelJobResponse is returned by POST /job/cancel
type CancelJobResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string                 `json:"status"`
	UptimeSeconds int64                  `json:"uptime_seconds"`
	JobID         string                 `json:"job_id"`
	Mode          dispatch.ExecutionMode `json:"mode"`
}
