package execution

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/mattjoyce/jobcluster/internal/jobgraph"
	"github.com/mattjoyce/jobcluster/internal/log"
)

const (
	// maxStderrBytes caps the amount of stderr captured per vertex.
	maxStderrBytes = 64 * 1024

	// terminationGracePeriod is the time we wait after SIGTERM before sending SIGKILL.
	terminationGracePeriod = 5 * time.Second
)

// ProcessRunnerFactory runs every vertex of the job graph, in order, as a
// local subprocess.
type ProcessRunnerFactory struct {
	heartbeatInterval time.Duration
	gracePeriod       time.Duration
	logger            *slog.Logger
}

var _ RunnerFactory = (*ProcessRunnerFactory)(nil)

// NewProcessRunnerFactory creates a factory whose runners report a heartbeat
// every heartbeatInterval while they run.
func NewProcessRunnerFactory(heartbeatInterval time.Duration) *ProcessRunnerFactory {
	return &ProcessRunnerFactory{
		heartbeatInterval: heartbeatInterval,
		gracePeriod:       terminationGracePeriod,
		logger:            log.WithComponent("runner"),
	}
}

// NewRunner implements RunnerFactory.
func (f *ProcessRunnerFactory) NewRunner(rc RunnerContext) (Runner, error) {
	if rc.Graph == nil {
		return nil, errors.New("runner context has no job graph")
	}
	if rc.OnTerminal == nil {
		return nil, errors.New("runner context has no terminal listener")
	}
	if rc.SubmittedAt.IsZero() {
		rc.SubmittedAt = time.Now().UTC()
	}
	return &processRunner{
		rc:       rc,
		interval: f.heartbeatInterval,
		grace:    f.gracePeriod,
		logger:   f.logger.With("job_id", rc.Graph.ID, "attempt_id", rc.AttemptID),
	}, nil
}

type processRunner struct {
	rc       RunnerContext
	interval time.Duration
	grace    time.Duration
	logger   *slog.Logger

	mu              sync.Mutex
	started         bool
	cancelRequested bool
	cancel          context.CancelFunc
}

func (r *processRunner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return errors.New("runner already started")
	}
	r.started = true

	// The runner outlives the call that started it.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = cancel
	if r.cancelRequested {
		cancel()
	}

	go r.run(runCtx)
	return nil
}

func (r *processRunner) Cancel(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cancelRequested = true
	if r.cancel != nil {
		r.cancel()
	}
	return nil
}

func (r *processRunner) run(ctx context.Context) {
	g := r.rc.Graph
	r.logger.Info("job execution started", "vertices", len(g.Vertices))

	stopHeartbeats := r.startHeartbeats(ctx)

	results := make([]VertexResult, len(g.Vertices))
	for i, v := range g.Vertices {
		results[i] = VertexResult{Name: v.Name, State: JobStatusCreated}
	}

	state := JobStatusFinished
	var cause string
	for i, v := range g.Vertices {
		if ctx.Err() != nil {
			state = JobStatusCanceled
			cause = "job canceled"
			break
		}
		results[i] = r.runVertex(ctx, v)
		if results[i].State != JobStatusFinished {
			state = results[i].State
			cause = fmt.Sprintf("vertex %q: %s", v.Name, results[i].Error)
			break
		}
	}
	for i := range results {
		if results[i].State == JobStatusCreated {
			results[i].State = JobStatusCanceled
		}
	}

	stopHeartbeats()
	if r.cancel != nil {
		r.cancel()
	}

	r.logger.Info("job execution finished", "state", state)
	r.rc.OnTerminal(&ArchivedExecutionGraph{
		JobID:        g.ID,
		JobName:      g.DisplayName(),
		State:        state,
		Vertices:     results,
		SubmittedAt:  r.rc.SubmittedAt,
		FinishedAt:   time.Now().UTC(),
		FailureCause: cause,
	})
}

func (r *processRunner) startHeartbeats(ctx context.Context) func() {
	if r.rc.Heartbeat == nil || r.interval <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		r.rc.Heartbeat.ReceiveHeartbeat(r.rc.HeartbeatID)
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.rc.Heartbeat.ReceiveHeartbeat(r.rc.HeartbeatID)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			<-stopped
		})
	}
}

func (r *processRunner) runVertex(ctx context.Context, v jobgraph.Vertex) VertexResult {
	logger := r.logger.With("vertex", v.Name)
	startedAt := time.Now().UTC()
	logger.Info("vertex started", "command", v.Command)

	exitCode, stderr, err := r.spawn(ctx, v, logger)

	finishedAt := time.Now().UTC()
	res := VertexResult{
		Name:       v.Name,
		ExitCode:   exitCode,
		StartedAt:  &startedAt,
		FinishedAt: &finishedAt,
		Stderr:     stderr,
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		res.State = JobStatusFailed
		res.Error = fmt.Sprintf("vertex timed out after %v", v.Timeout)
	case errors.Is(err, context.Canceled):
		res.State = JobStatusCanceled
		res.Error = "vertex canceled"
	case err != nil:
		res.State = JobStatusFailed
		res.Error = err.Error()
	case exitCode != 0:
		res.State = JobStatusFailed
		res.Error = fmt.Sprintf("exited with status %d", exitCode)
	default:
		res.State = JobStatusFinished
	}

	logger.Info("vertex finished", "state", res.State, "exit_code", exitCode)
	return res
}

// spawn runs one vertex command and returns its exit code and captured stderr.
// A timed out vertex yields context.DeadlineExceeded, a canceled one context.Canceled.
func (r *processRunner) spawn(ctx context.Context, v jobgraph.Vertex, logger *slog.Logger) (int, string, error) {
	var timeoutC <-chan time.Time
	if v.Timeout > 0 {
		timer := time.NewTimer(v.Timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	// Don't use CommandContext - we manage termination ourselves.
	cmd := exec.Command(v.Command, v.Args...)
	cmd.Env = r.environ(v)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return -1, "", fmt.Errorf("start process: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
	}()

	var reason error
	select {
	case err := <-waitErr:
		if out := stdout.String(); out != "" {
			logger.Debug("vertex output", "stdout", truncate(out))
		}
		code, err := exitStatus(err)
		return code, truncate(stderr.String()), err
	case <-timeoutC:
		logger.Warn("vertex timed out, sending SIGTERM")
		reason = context.DeadlineExceeded
	case <-ctx.Done():
		logger.Info("vertex canceled, sending SIGTERM")
		reason = context.Canceled
	}

	r.terminate(cmd, waitErr, logger)
	return -1, truncate(stderr.String()), reason
}

// terminate sends SIGTERM, waits for the grace period, then SIGKILL.
func (r *processRunner) terminate(cmd *exec.Cmd, waitErr <-chan error, logger *slog.Logger) {
	if cmd.Process != nil {
		if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
			logger.Error("failed to send SIGTERM", "error", err)
		}
	}

	grace := time.NewTimer(r.grace)
	defer grace.Stop()

	select {
	case <-waitErr:
		logger.Info("vertex exited after SIGTERM")
	case <-grace.C:
		logger.Warn("vertex did not exit after SIGTERM, sending SIGKILL")
		if cmd.Process != nil {
			if err := cmd.Process.Kill(); err != nil {
				logger.Error("failed to send SIGKILL", "error", err)
			}
		}
		<-waitErr
	}
}

func (r *processRunner) environ(v jobgraph.Vertex) []string {
	env := os.Environ()
	env = append(env,
		"JOBCLUSTER_JOB_ID="+r.rc.Graph.ID,
		"JOBCLUSTER_ATTEMPT_ID="+r.rc.AttemptID,
		"JOBCLUSTER_VERTEX="+v.Name,
	)

	if len(r.rc.Artifacts) > 0 {
		paths := make([]string, 0, len(r.rc.Artifacts))
		for _, p := range r.rc.Artifacts {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		env = append(env, "JOBCLUSTER_ARTIFACTS="+strings.Join(paths, string(os.PathListSeparator)))
	}

	keys := make([]string, 0, len(v.Env))
	for k := range v.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+v.Env[k])
	}
	return env
}

func exitStatus(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, fmt.Errorf("wait for process: %w", err)
}

func truncate(s string) string {
	if len(s) > maxStderrBytes {
		return s[:maxStderrBytes]
	}
	return s
}
