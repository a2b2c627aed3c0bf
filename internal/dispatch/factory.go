package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/mattjoyce/jobcluster/internal/config"
	"github.com/mattjoyce/jobcluster/internal/jobgraph"
)

// Build assembles a dispatcher for g. It registers and starts the dispatcher
// endpoint, so queries are served at once, but does not submit the job.
func Build(g *jobgraph.JobGraph, mode ExecutionMode, svc *Services) (*Dispatcher, error) {
	if svc == nil {
		return nil, &BuilderError{Missing: []string{"services"}}
	}
	if missing := svc.missing(); len(missing) > 0 {
		return nil, &BuilderError{Missing: missing}
	}
	if g == nil {
		return nil, errors.New("build dispatcher: job graph is nil")
	}
	if !mode.valid() {
		return nil, &ConfigurationError{Option: ExecutionModeOption, Value: string(mode)}
	}

	d := newDispatcher(g, mode, *svc)
	ep, err := svc.RPC.Register(DispatcherName, d)
	if err != nil {
		return nil, fmt.Errorf("register dispatcher endpoint: %w", err)
	}
	d.endpoint = ep
	ep.Start()
	return d, nil
}

// Factory runs the bootstrap sequence: retrieve the job graph, resolve the
// execution mode, build the dispatcher.
type Factory struct {
	source jobgraph.Source
}

func NewFactory(source jobgraph.Source) *Factory {
	return &Factory{source: source}
}

// CreateDispatcher retrieves the graph exactly once. Every failure aborts
// bootstrap; there is no fallback job and no default mode.
func (f *Factory) CreateDispatcher(ctx context.Context, cfg *config.Config, svc *Services) (*Dispatcher, error) {
	g, err := f.source.Retrieve(ctx, cfg)
	if err != nil {
		return nil, err
	}

	mode, err := ParseExecutionMode(cfg.Execution.Mode)
	if err != nil {
		return nil, err
	}

	return Build(g, mode, svc)
}
