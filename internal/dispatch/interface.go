package dispatch

import (
	"context"

	"github.com/mattjoyce/jobcluster/internal/broker"
	"github.com/mattjoyce/jobcluster/internal/events"
	"github.com/mattjoyce/jobcluster/internal/execution"
	"github.com/mattjoyce/jobcluster/internal/ha"
	"github.com/mattjoyce/jobcluster/internal/heartbeat"
	"github.com/mattjoyce/jobcluster/internal/rpc"
)

//go:generate mockgen -destination=mocks/mock_services.go -package=mocks github.com/mattjoyce/jobcluster/internal/dispatch ResourceManagerGateway,ArchivedExecutionGraphStore,HistoryServerArchivist,FatalErrorHandler,ShutdownRequester

// RPCService registers the dispatcher endpoint.
type RPCService interface {
	Register(name string, h rpc.Handler) (*rpc.Endpoint, error)
	Unregister(name string)
}

// HighAvailabilityServices grants leadership per job.
type HighAvailabilityServices interface {
	LeaderElection(jobID string) ha.LeaderElection
}

// ResourceManagerGateway hands out execution slots.
type ResourceManagerGateway interface {
	RequestSlots(ctx context.Context, req broker.SlotRequest) (*broker.Allocation, error)
	ReleaseSlots(ctx context.Context, allocationID string) error
}

// ArtifactServer stages job artifacts for the runner.
type ArtifactServer interface {
	PutFile(ctx context.Context, jobID, src string) (key string, path string, err error)
	CleanupJob(ctx context.Context, jobID string) error
}

// HeartbeatServices creates liveness monitors.
type HeartbeatServices interface {
	NewMonitor(onTimeout func(target string)) *heartbeat.Monitor
}

// MetricGroup is the job manager metric group.
type MetricGroup interface {
	SetJobStatus(jobID string, status execution.JobStatus)
	IncTerminal(status execution.JobStatus)
	IncFault(source string)
	IncNotificationFailure(target string)
	IncDuplicateTermination()
}

// ArchivedExecutionGraphStore keeps terminal job snapshots queryable.
type ArchivedExecutionGraphStore interface {
	Put(ctx context.Context, g *execution.ArchivedExecutionGraph) error
	Get(ctx context.Context, jobID string) (*execution.ArchivedExecutionGraph, error)
}

// HistoryServerArchivist notifies the job history service.
type HistoryServerArchivist interface {
	ArchiveExecutionGraph(ctx context.Context, g *execution.ArchivedExecutionGraph) error
}

// FatalErrorHandler receives infrastructure faults. It satisfies rpc.FailureHandler.
type FatalErrorHandler interface {
	OnFatalError(err error)
}

// ShutdownRequester is the cluster entrypoint's shutdown hook. It must not block.
type ShutdownRequester interface {
	RequestShutdown(status execution.ApplicationStatus)
}

// EventPublisher receives lifecycle events.
type EventPublisher interface {
	Publish(eventType string, data any) events.Event
}
