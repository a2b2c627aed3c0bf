package dispatch

import "github.com/mattjoyce/jobcluster/internal/execution"

// Services bundles the externally owned collaborators of a dispatcher. The
// dispatcher copies it at build time; none of them can be swapped later.
type Services struct {
	RPC              RPCService
	HighAvailability HighAvailabilityServices
	ResourceManager  ResourceManagerGateway
	Artifacts        ArtifactServer
	Heartbeat        HeartbeatServices
	Metrics          MetricGroup
	// MetricQueryPath is optional; it is reported in job details when set.
	MetricQueryPath string
	ArchiveStore    ArchivedExecutionGraphStore
	FatalErrors     FatalErrorHandler
	History         HistoryServerArchivist
	Shutdown        ShutdownRequester
	Runners         execution.RunnerFactory
	// Events is optional.
	Events EventPublisher
}

func (s *Services) missing() []string {
	var out []string
	check := func(name string, ok bool) {
		if !ok {
			out = append(out, name)
		}
	}
	check("rpc service", s.RPC != nil)
	check("high availability services", s.HighAvailability != nil)
	check("resource manager gateway", s.ResourceManager != nil)
	check("artifact server", s.Artifacts != nil)
	check("heartbeat services", s.Heartbeat != nil)
	check("metric group", s.Metrics != nil)
	check("archived execution graph store", s.ArchiveStore != nil)
	check("fatal error handler", s.FatalErrors != nil)
	check("history server archivist", s.History != nil)
	check("shutdown requester", s.Shutdown != nil)
	check("runner factory", s.Runners != nil)
	return out
}
