package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/jobcluster/internal/archive"
	"github.com/mattjoyce/jobcluster/internal/broker"
	"github.com/mattjoyce/jobcluster/internal/events"
	"github.com/mattjoyce/jobcluster/internal/execution"
	"github.com/mattjoyce/jobcluster/internal/ha"
	"github.com/mattjoyce/jobcluster/internal/heartbeat"
	"github.com/mattjoyce/jobcluster/internal/jobgraph"
	"github.com/mattjoyce/jobcluster/internal/log"
	"github.com/mattjoyce/jobcluster/internal/rpc"
)

// DispatcherName is the RPC endpoint name. Only one may be registered.
const DispatcherName = "dispatcher"

// archiveTimeout bounds the best-effort steps run after the job is terminal.
const archiveTimeout = 30 * time.Second

// defaultTerminalWait bounds how long Close waits for a cancelled runner to
// report its terminal state. It covers the runner's SIGTERM grace period.
const defaultTerminalWait = 10 * time.Second

// State is the dispatcher lifecycle state.
type State string

const (
	StateCreated  State = "CREATED"
	StateRunning  State = "RUNNING"
	StateTerminal State = "TERMINAL"
)

// JobDetails is the answer to a job details query.
type JobDetails struct {
	JobID           string                   `json:"job_id"`
	JobName         string                   `json:"job_name"`
	Mode            ExecutionMode            `json:"mode"`
	State           State                    `json:"state"`
	Status          execution.JobStatus      `json:"status"`
	Slots           int                      `json:"slots"`
	Vertices        []string                 `json:"vertices"`
	SubmittedAt     *time.Time               `json:"submitted_at,omitempty"`
	FinishedAt      *time.Time               `json:"finished_at,omitempty"`
	FailureCause    string                   `json:"failure_cause,omitempty"`
	MetricQueryPath string                   `json:"metric_query_path,omitempty"`
	Result          []execution.VertexResult `json:"result,omitempty"`
}

// Mailbox messages. Only the endpoint goroutine reads dispatcher state.
type (
	startJob            struct{}
	slotsAllocated      struct{ allocation *broker.Allocation }
	artifactsUploaded   struct{ paths map[string]string }
	jobTerminated       struct{ graph *execution.ArchivedExecutionGraph }
	infrastructureFault struct{ fault *InfrastructureFault }
	submitJob           struct{ graph *jobgraph.JobGraph }
	cancelJob           struct{}
	requestDetails      struct{}
	requestStatus       struct{}
	requestResult       struct{}
	closeJob            struct{}
)

// Dispatcher runs one job and decides, once it is terminal, whether the
// cluster shuts down.
type Dispatcher struct {
	graph    *jobgraph.JobGraph
	mode     ExecutionMode
	svc      Services
	endpoint *rpc.Endpoint
	logger   *slog.Logger

	// archival tracks the fire-and-forget work started on termination.
	archival     sync.WaitGroup
	// terminated is closed once the job is terminal and its archival is tracked.
	terminated   chan struct{}
	terminalWait time.Duration

	// Endpoint-owned state.
	state             State
	status            execution.JobStatus
	result            *execution.ArchivedExecutionGraph
	attemptID         string
	submittedAt       time.Time
	election          ha.LeaderElection
	monitor           *heartbeat.Monitor
	allocation        *broker.Allocation
	runner            execution.Runner
	cancelRequested   bool
	cancelSubmission  context.CancelFunc
	shutdownRequested bool
	closed            bool
}

func newDispatcher(g *jobgraph.JobGraph, mode ExecutionMode, svc Services) *Dispatcher {
	return &Dispatcher{
		graph:  g,
		mode:   mode,
		svc:    svc,
		logger: log.WithJob(g.ID).With("component", "dispatcher", "mode", string(mode)),
		state:  StateCreated,
		status: execution.JobStatusCreated,

		terminated:   make(chan struct{}),
		terminalWait: defaultTerminalWait,
	}
}

// JobID returns the id of the governed job.
func (d *Dispatcher) JobID() string { return d.graph.ID }

// Mode returns the execution mode the dispatcher was built with.
func (d *Dispatcher) Mode() ExecutionMode { return d.mode }

// Start submits the job. It returns once leadership is held and submission
// is under way; the job itself runs asynchronously.
func (d *Dispatcher) Start(ctx context.Context) error {
	_, err := d.endpoint.Ask(ctx, startJob{})
	return err
}

// SubmitJob accepts only the job the dispatcher was built for.
func (d *Dispatcher) SubmitJob(ctx context.Context, g *jobgraph.JobGraph) error {
	_, err := d.endpoint.Ask(ctx, submitJob{graph: g})
	return err
}

// CancelJob asks the runner to cancel the job. It is a no-op once the job is terminal.
func (d *Dispatcher) CancelJob(ctx context.Context) error {
	_, err := d.endpoint.Ask(ctx, cancelJob{})
	return err
}

func (d *Dispatcher) RequestJobDetails(ctx context.Context) (*JobDetails, error) {
	return ask[*JobDetails](ctx, d.endpoint, requestDetails{})
}

func (d *Dispatcher) RequestJobStatus(ctx context.Context) (execution.JobStatus, error) {
	return ask[execution.JobStatus](ctx, d.endpoint, requestStatus{})
}

// RequestJobResult returns the archived execution graph, or ErrJobNotFinished.
func (d *Dispatcher) RequestJobResult(ctx context.Context) (*execution.ArchivedExecutionGraph, error) {
	return ask[*execution.ArchivedExecutionGraph](ctx, d.endpoint, requestResult{})
}

// Close cancels whatever is still running, releases leadership, stops the
// endpoint and waits for archival to finish or ctx to expire.
func (d *Dispatcher) Close(ctx context.Context) error {
	awaitTerminal, err := ask[bool](ctx, d.endpoint, closeJob{})
	if err != nil && !errors.Is(err, rpc.ErrEndpointStopped) {
		d.logger.Warn("close dispatcher", "error", err)
	}
	if awaitTerminal {
		d.waitTerminated(ctx)
	}
	d.svc.RPC.Unregister(DispatcherName)

	done := make(chan struct{})
	go func() {
		d.archival.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for archival: %w", ctx.Err())
	}
}

// waitTerminated gives a cancelled runner time to report CANCELED so the job
// is still archived.
func (d *Dispatcher) waitTerminated(ctx context.Context) {
	timer := time.NewTimer(d.terminalWait)
	defer timer.Stop()
	select {
	case <-d.terminated:
	case <-timer.C:
		d.logger.Warn("runner did not report a terminal state before close", "waited", d.terminalWait)
	case <-ctx.Done():
	}
}

func ask[T any](ctx context.Context, ep *rpc.Endpoint, msg any) (T, error) {
	var zero T
	v, err := ep.Ask(ctx, msg)
	if err != nil {
		return zero, err
	}
	out, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("unexpected reply %T to %T", v, msg)
	}
	return out, nil
}

// HandleMessage implements rpc.Handler.
func (d *Dispatcher) HandleMessage(ctx context.Context, msg any) (any, error) {
	switch m := msg.(type) {
	case startJob:
		return nil, d.onStart(ctx)
	case slotsAllocated:
		d.onSlotsAllocated(ctx, m.allocation)
	case artifactsUploaded:
		d.onArtifactsUploaded(ctx, m.paths)
	case jobTerminated:
		d.onJobTerminated(m.graph)
	case infrastructureFault:
		d.reportFault(m.fault.Source, m.fault.Err)
	case submitJob:
		return nil, d.onSubmit(m.graph)
	case cancelJob:
		return nil, d.onCancel(ctx)
	case requestDetails:
		return d.details(), nil
	case requestStatus:
		return d.status, nil
	case requestResult:
		return d.onRequestResult(ctx)
	case closeJob:
		return d.onClose(ctx), nil
	default:
		return nil, fmt.Errorf("unknown message %T", msg)
	}
	return nil, nil
}

func (d *Dispatcher) onStart(ctx context.Context) error {
	if d.state != StateCreated || d.election != nil || d.closed {
		return ErrAlreadyStarted
	}

	election := d.svc.HighAvailability.LeaderElection(d.graph.ID)
	d.election = election
	if err := election.Acquire(ctx, func(err error) {
		d.tell(infrastructureFault{fault: &InfrastructureFault{Source: FaultLeadership, Err: err}})
	}); err != nil {
		return d.reportFault(FaultLeadership, err)
	}

	d.monitor = d.svc.Heartbeat.NewMonitor(func(target string) {
		d.tell(infrastructureFault{fault: &InfrastructureFault{
			Source: FaultHeartbeat,
			Err:    fmt.Errorf("heartbeat of %s timed out", target),
		}})
	})

	d.state = StateRunning
	d.status = execution.JobStatusRunning
	d.attemptID = uuid.NewString()
	d.submittedAt = time.Now().UTC()
	d.svc.Metrics.SetJobStatus(d.graph.ID, d.status)
	d.publish(events.JobSubmitted, map[string]any{"job_id": d.graph.ID, "attempt_id": d.attemptID, "mode": d.mode})
	d.logger.Info("job submitted", "attempt_id", d.attemptID, "vertices", len(d.graph.Vertices), "slots", d.graph.Slots)

	subCtx, cancel := context.WithCancel(context.Background())
	d.cancelSubmission = cancel
	go d.submit(subCtx, d.submittedAt)
	return nil
}

// submit runs off the endpoint. It reports each step back as a message.
func (d *Dispatcher) submit(ctx context.Context, submittedAt time.Time) {
	alloc, err := d.svc.ResourceManager.RequestSlots(ctx, broker.SlotRequest{JobID: d.graph.ID, Slots: d.graph.Slots})
	if err != nil {
		if ctx.Err() == nil {
			d.tell(infrastructureFault{fault: &InfrastructureFault{
				Source: FaultResourceManager,
				Err:    fmt.Errorf("request slots: %w", err),
			}})
		}
		return
	}
	if !d.tell(slotsAllocated{allocation: alloc}) {
		d.releaseSlots(context.Background(), alloc)
		return
	}

	paths := make(map[string]string, len(d.graph.Artifacts))
	for _, src := range d.graph.Artifacts {
		_, local, err := d.svc.Artifacts.PutFile(ctx, d.graph.ID, src)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.tell(jobTerminated{graph: execution.FailedGraph(d.graph, submittedAt, fmt.Errorf("upload artifact %s: %w", src, err))})
			return
		}
		paths[src] = local
	}
	d.tell(artifactsUploaded{paths: paths})
}

func (d *Dispatcher) onSlotsAllocated(ctx context.Context, alloc *broker.Allocation) {
	if d.state != StateRunning || d.closed {
		d.releaseSlots(ctx, alloc)
		return
	}
	d.allocation = alloc
}

func (d *Dispatcher) onArtifactsUploaded(ctx context.Context, paths map[string]string) {
	if d.state != StateRunning || d.closed || d.runner != nil {
		return
	}

	heartbeatID := "runner-" + d.attemptID
	rc := execution.RunnerContext{
		Graph:       d.graph,
		AttemptID:   d.attemptID,
		Artifacts:   paths,
		Heartbeat:   d.monitor,
		HeartbeatID: heartbeatID,
		SubmittedAt: d.submittedAt,
		OnTerminal: func(g *execution.ArchivedExecutionGraph) {
			d.tell(jobTerminated{graph: g})
		},
	}
	if d.allocation != nil {
		rc.AllocationID = d.allocation.ID
	}

	runner, err := d.svc.Runners.NewRunner(rc)
	if err != nil {
		d.reportFault(FaultRunner, fmt.Errorf("create runner: %w", err))
		return
	}
	d.monitor.Monitor(heartbeatID)
	if err := runner.Start(ctx); err != nil {
		d.monitor.Unmonitor(heartbeatID)
		d.reportFault(FaultRunner, fmt.Errorf("start runner: %w", err))
		return
	}
	d.runner = runner
	d.publish(events.JobRunning, map[string]any{"job_id": d.graph.ID, "attempt_id": d.attemptID})
	d.logger.Info("runner started", "attempt_id", d.attemptID, "artifacts", len(paths))

	if d.cancelRequested {
		if err := runner.Cancel(ctx); err != nil {
			d.logger.Warn("cancel runner", "error", err)
		}
	}
}

func (d *Dispatcher) onJobTerminated(g *execution.ArchivedExecutionGraph) {
	if g == nil {
		return
	}
	if d.state == StateTerminal {
		d.svc.Metrics.IncDuplicateTermination()
		d.logger.Info("ignoring duplicate terminal notification", "state", g.State)
		return
	}
	if !g.State.IsGloballyTerminal() {
		d.logger.Warn("ignoring non-terminal notification", "state", g.State)
		return
	}

	d.state = StateTerminal
	d.status = g.State
	d.result = g
	if d.monitor != nil {
		d.monitor.Stop()
	}
	alloc := d.allocation
	d.allocation = nil

	d.svc.Metrics.SetJobStatus(d.graph.ID, g.State)
	d.svc.Metrics.IncTerminal(g.State)
	d.publish(events.JobTerminal, map[string]any{"job_id": d.graph.ID, "status": g.State, "failure_cause": g.FailureCause})
	d.logger.Info("job reached terminal state", "status", g.State, "failure_cause", g.FailureCause)

	d.archival.Add(1)
	go d.archive(g, alloc)
	close(d.terminated)

	if d.mode != ModeNormal || d.shutdownRequested || d.closed {
		return
	}
	d.shutdownRequested = true
	status := execution.ApplicationStatusFromJobStatus(g.State)
	d.logger.Info("requesting cluster shutdown", "application_status", status)
	d.svc.Shutdown.RequestShutdown(status)
}

// archive releases the job's resources and archives its graph. Every step is
// best effort: failures are logged and counted, never escalated.
func (d *Dispatcher) archive(g *execution.ArchivedExecutionGraph, alloc *broker.Allocation) {
	defer d.archival.Done()

	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()

	d.releaseSlots(ctx, alloc)
	if err := d.svc.Artifacts.CleanupJob(ctx, d.graph.ID); err != nil {
		d.logger.Warn("failed to clean up job artifacts", "error", err)
	}

	if err := d.svc.ArchiveStore.Put(ctx, g); err != nil {
		d.svc.Metrics.IncNotificationFailure("store")
		d.logger.Error("failed to archive execution graph", "error", err)
	}
	if err := d.svc.History.ArchiveExecutionGraph(ctx, g); err != nil {
		d.svc.Metrics.IncNotificationFailure("history")
		d.logger.Error("failed to notify history server", "error", err)
	}
}

func (d *Dispatcher) releaseSlots(ctx context.Context, alloc *broker.Allocation) {
	if alloc == nil {
		return
	}
	if err := d.svc.ResourceManager.ReleaseSlots(ctx, alloc.ID); err != nil {
		d.logger.Warn("failed to release slots", "allocation_id", alloc.ID, "error", err)
	}
}

// reportFault delivers an infrastructure fault to the fatal error handler,
// whatever the mode and state.
func (d *Dispatcher) reportFault(source string, err error) error {
	fault := &InfrastructureFault{Source: source, Err: err}
	d.svc.Metrics.IncFault(source)
	d.publish(events.DispatcherFault, map[string]any{"job_id": d.graph.ID, "source": source, "error": err.Error()})
	d.logger.Error("infrastructure fault", "source", source, "error", err)
	d.svc.FatalErrors.OnFatalError(fault)
	return fault
}

func (d *Dispatcher) onSubmit(g *jobgraph.JobGraph) error {
	if g == nil {
		return fmt.Errorf("%w: no job graph", ErrJobSubmissionRejected)
	}
	if g.ID != d.graph.ID {
		d.logger.Warn("rejected job submission", "submitted_job_id", g.ID)
		return fmt.Errorf("%w: cannot accept job %s", ErrJobSubmissionRejected, g.ID)
	}
	d.logger.Info("job already submitted, ignoring resubmission")
	return nil
}

func (d *Dispatcher) onCancel(ctx context.Context) error {
	if d.state == StateTerminal {
		return nil
	}
	d.cancelRequested = true
	if d.runner == nil {
		d.logger.Info("cancel requested before runner started")
		return nil
	}
	d.logger.Info("canceling job")
	return d.runner.Cancel(ctx)
}

func (d *Dispatcher) onRequestResult(ctx context.Context) (*execution.ArchivedExecutionGraph, error) {
	if d.result != nil {
		return d.result, nil
	}
	g, err := d.svc.ArchiveStore.Get(ctx, d.graph.ID)
	if err == nil && g != nil {
		return g, nil
	}
	if err != nil && !errors.Is(err, archive.ErrNotFound) {
		d.logger.Warn("archived graph lookup failed", "error", err)
	}
	return nil, ErrJobNotFinished
}

func (d *Dispatcher) details() *JobDetails {
	out := &JobDetails{
		JobID:           d.graph.ID,
		JobName:         d.graph.DisplayName(),
		Mode:            d.mode,
		State:           d.state,
		Status:          d.status,
		Slots:           d.graph.Slots,
		Vertices:        make([]string, 0, len(d.graph.Vertices)),
		MetricQueryPath: d.svc.MetricQueryPath,
	}
	for _, v := range d.graph.Vertices {
		out.Vertices = append(out.Vertices, v.Name)
	}
	if !d.submittedAt.IsZero() {
		t := d.submittedAt
		out.SubmittedAt = &t
	}
	if d.result != nil {
		t := d.result.FinishedAt
		out.FinishedAt = &t
		out.FailureCause = d.result.FailureCause
		out.Result = d.result.Vertices
	}
	return out
}

// onClose stops the dispatcher. It reports whether a cancelled runner is
// still expected to deliver the terminal state.
func (d *Dispatcher) onClose(ctx context.Context) bool {
	if d.closed {
		return false
	}
	d.closed = true
	awaitTerminal := false

	if d.cancelSubmission != nil {
		d.cancelSubmission()
	}
	if d.state != StateTerminal {
		if d.runner != nil {
			if err := d.runner.Cancel(ctx); err != nil {
				d.logger.Warn("cancel runner on close", "error", err)
			} else {
				awaitTerminal = true
			}
		}
		d.releaseSlots(ctx, d.allocation)
		d.allocation = nil
	}
	if d.monitor != nil {
		d.monitor.Stop()
	}
	if d.election != nil {
		if err := d.election.Release(); err != nil {
			d.logger.Warn("failed to release leadership", "error", err)
		}
	}
	d.logger.Info("dispatcher closed", "state", d.state)
	return awaitTerminal
}

// tell enqueues msg on the dispatcher endpoint. It reports false once the
// endpoint has stopped.
func (d *Dispatcher) tell(msg any) bool {
	if err := d.endpoint.Tell(msg); err != nil {
		d.logger.Debug("dropped message for stopped endpoint", "message", fmt.Sprintf("%T", msg))
		return false
	}
	return true
}

func (d *Dispatcher) publish(eventType string, data any) {
	if d.svc.Events != nil {
		d.svc.Events.Publish(eventType, data)
	}
}
