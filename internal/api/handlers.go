package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/mattjoyce/jobcluster/internal/dispatch"
	"github.com/mattjoyce/jobcluster/internal/jobgraph"
	"github.com/mattjoyce/jobcluster/internal/rpc"
)

// maxGraphBytes caps the size of a submitted job graph.
const maxGraphBytes = 1 << 20

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		JobID:         s.dispatcher.JobID(),
		Mode:          s.dispatcher.Mode(),
	})
}

// handleJobDetails handles GET /job
func (s *Server) handleJobDetails(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.askContext(r)
	defer cancel()

	details, err := s.dispatcher.RequestJobDetails(ctx)
	if err != nil {
		s.writeDispatchError(w, "request job details", err)
		return
	}
	respondJSON(w, http.StatusOK, details)
}

// handleJobStatus handles GET /job/status
func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.askContext(r)
	defer cancel()

	status, err := s.dispatcher.RequestJobStatus(ctx)
	if err != nil {
		s.writeDispatchError(w, "request job status", err)
		return
	}
	respondJSON(w, http.StatusOK, JobStatusResponse{JobID: s.dispatcher.JobID(), Status: status})
}

// handleJobResult handles GET /job/result. 409 until the job is terminal.
func (s *Server) handleJobResult(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.askContext(r)
	defer cancel()

	result, err := s.dispatcher.RequestJobResult(ctx)
	if err != nil {
		s.writeDispatchError(w, "request job result", err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// handleCancelJob handles POST /job/cancel
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.askContext(r)
	defer cancel()

	if err := s.dispatcher.CancelJob(ctx); err != nil {
		s.writeDispatchError(w, "cancel job", err)
		return
	}
	s.logger.Info("job cancellation requested", "job_id", s.dispatcher.JobID())
	respondJSON(w, http.StatusAccepted, CancelJobResponse{JobID: s.dispatcher.JobID(), Status: "cancel_requested"})
}

// handleSubmitJob handles POST /jobs. The body is a job graph in YAML or JSON.
func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxGraphBytes))
	if err != nil {
		s.writeError(w, http.StatusRequestEntityTooLarge, "job graph too large")
		return
	}

	g, err := jobgraph.Decode(body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := s.askContext(r)
	defer cancel()

	if err := s.dispatcher.SubmitJob(ctx, g); err != nil {
		s.writeDispatchError(w, "submit job", err)
		return
	}
	respondJSON(w, http.StatusAccepted, SubmitJobResponse{JobID: g.ID, Status: "accepted"})
}

func (s *Server) askContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.config.AskTimeout)
}

// writeDispatchError maps dispatcher errors to HTTP status codes.
func (s *Server) writeDispatchError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, dispatch.ErrJobNotFinished):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, dispatch.ErrJobSubmissionRejected):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, rpc.ErrEndpointStopped):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		s.writeError(w, http.StatusGatewayTimeout, "dispatcher did not answer in time")
	default:
		s.logger.Error("dispatcher request failed", "op", op, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to "+op)
	}
}

// respondJSON is a helper to write JSON responses
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
