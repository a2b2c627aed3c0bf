// Package entrypoint runs one job cluster process: it builds the cluster
// services from config, bootstraps the dispatcher and turns the way the
// process ends into an exit code.
package entrypoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mattjoyce/jobcluster/internal/api"
	"github.com/mattjoyce/jobcluster/internal/archive"
	"github.com/mattjoyce/jobcluster/internal/artifact"
	"github.com/mattjoyce/jobcluster/internal/broker"
	"github.com/mattjoyce/jobcluster/internal/config"
	"github.com/mattjoyce/jobcluster/internal/dispatch"
	"github.com/mattjoyce/jobcluster/internal/events"
	"github.com/mattjoyce/jobcluster/internal/execution"
	"github.com/mattjoyce/jobcluster/internal/ha"
	"github.com/mattjoyce/jobcluster/internal/heartbeat"
	"github.com/mattjoyce/jobcluster/internal/history"
	"github.com/mattjoyce/jobcluster/internal/jobgraph"
	"github.com/mattjoyce/jobcluster/internal/log"
	"github.com/mattjoyce/jobcluster/internal/metrics"
	"github.com/mattjoyce/jobcluster/internal/rpc"
	"github.com/mattjoyce/jobcluster/internal/storage"
)

// Process exit codes. A NORMAL job that ran to completion exits with its
// application status code instead.
const (
	ExitOK               = 0
	ExitBootstrapFailure = 1
	ExitFatal            = 2
)

// closeTimeout bounds the dispatcher shutdown, including pending archival.
const closeTimeout = 30 * time.Second

// Option customises an Entrypoint.
type Option func(*Entrypoint)

// WithSource replaces the job graph file source.
func WithSource(src jobgraph.Source) Option {
	return func(e *Entrypoint) { e.source = src }
}

// WithRunnerFactory replaces the subprocess runner factory.
func WithRunnerFactory(f execution.RunnerFactory) Option {
	return func(e *Entrypoint) { e.runners = f }
}

// Entrypoint is the fatal error handler and shutdown requester of the
// dispatcher it runs.
type Entrypoint struct {
	cfg     *config.Config
	source  jobgraph.Source
	runners execution.RunnerFactory
	logger  *slog.Logger

	fatal    chan error
	shutdown chan execution.ApplicationStatus
}

var (
	_ dispatch.FatalErrorHandler = (*Entrypoint)(nil)
	_ dispatch.ShutdownRequester = (*Entrypoint)(nil)
)

func New(cfg *config.Config, opts ...Option) *Entrypoint {
	e := &Entrypoint{
		cfg:      cfg,
		source:   jobgraph.FileSource{},
		logger:   log.WithComponent("entrypoint"),
		fatal:    make(chan error, 1),
		shutdown: make(chan execution.ApplicationStatus, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.runners == nil {
		e.runners = execution.NewProcessRunnerFactory(cfg.Heartbeat.Interval)
	}
	return e
}

// OnFatalError records the first fatal error. Later ones are only logged.
func (e *Entrypoint) OnFatalError(err error) {
	select {
	case e.fatal <- err:
		e.logger.Error("fatal error, terminating process", "error", err)
	default:
		e.logger.Error("additional fatal error", "error", err)
	}
}

// RequestShutdown records the application status to exit with.
func (e *Entrypoint) RequestShutdown(status execution.ApplicationStatus) {
	select {
	case e.shutdown <- status:
		e.logger.Info("shutdown requested", "application_status", status)
	default:
		e.logger.Warn("shutdown already requested", "application_status", status)
	}
}

// endpointFaults reports endpoint handler panics as infrastructure faults.
type endpointFaults struct{ fatal dispatch.FatalErrorHandler }

func (f endpointFaults) OnFatalError(err error) {
	f.fatal.OnFatalError(&dispatch.InfrastructureFault{Source: dispatch.FaultEndpoint, Err: err})
}

// cluster holds the services of one process and how to close them.
type cluster struct {
	services dispatch.Services
	rpc      *rpc.Service
	metrics  *metrics.Group
	events   *events.Hub
	db       *sql.DB
}

func (c *cluster) close() {
	if c.rpc != nil {
		_ = c.rpc.Close()
	}
	if c.db != nil {
		_ = c.db.Close()
	}
}

func (e *Entrypoint) buildCluster(ctx context.Context) (*cluster, error) {
	cfg := e.cfg
	c := &cluster{}
	ok := false
	defer func() {
		if !ok {
			c.close()
		}
	}()

	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}
	c.db = db
	e.logger.Info("database opened", "path", cfg.State.Path)

	haServices, err := ha.NewFileServices(cfg.HA.LockDir, cfg.HA.CheckInterval)
	if err != nil {
		return nil, fmt.Errorf("high availability services: %w", err)
	}
	heartbeats, err := heartbeat.NewServices(cfg.Heartbeat.Interval, cfg.Heartbeat.Timeout)
	if err != nil {
		return nil, fmt.Errorf("heartbeat services: %w", err)
	}
	slots, err := broker.NewLocalGateway(cfg.Resources.Slots)
	if err != nil {
		return nil, fmt.Errorf("resource manager: %w", err)
	}
	artifacts, err := artifact.NewServer(cfg.Artifacts.Dir)
	if err != nil {
		return nil, fmt.Errorf("artifact server: %w", err)
	}

	var archivist dispatch.HistoryServerArchivist = history.Void{}
	if cfg.History.ArchiveDir != "" {
		fs, err := history.NewFSArchivist(cfg.History.ArchiveDir)
		if err != nil {
			return nil, fmt.Errorf("history archivist: %w", err)
		}
		archivist = fs
	}

	c.metrics = metrics.NewGroup()
	c.events = events.NewHub(256)
	c.rpc = rpc.NewService(endpointFaults{fatal: e})

	c.services = dispatch.Services{
		RPC:              c.rpc,
		HighAvailability: haServices,
		ResourceManager:  slots,
		Artifacts:        artifacts,
		Heartbeat:        heartbeats,
		Metrics:          c.metrics,
		ArchiveStore:     archive.New(db),
		FatalErrors:      e,
		History:          archivist,
		Shutdown:         e,
		Runners:          e.runners,
		Events:           c.events,
	}
	if cfg.Metrics.Enabled {
		c.services.MetricQueryPath = cfg.Metrics.QueryPath
	}

	ok = true
	return c, nil
}

// Run bootstraps the dispatcher and blocks until the job ends the process,
// a fatal error occurs or ctx is canceled. It returns the exit code.
func (e *Entrypoint) Run(ctx context.Context) int {
	c, err := e.buildCluster(ctx)
	if err != nil {
		e.logger.Error("failed to build cluster services", "error", err)
		return ExitBootstrapFailure
	}
	defer c.close()

	d, err := dispatch.NewFactory(e.source).CreateDispatcher(ctx, e.cfg, &c.services)
	if err != nil {
		e.logger.Error("failed to create dispatcher", "error", err)
		return ExitBootstrapFailure
	}
	defer e.closeDispatcher(d)

	logger := e.logger.With("job_id", d.JobID(), "mode", d.Mode())
	if err := d.Start(ctx); err != nil {
		logger.Error("failed to start dispatcher", "error", err)
		return ExitBootstrapFailure
	}
	logger.Info("dispatcher started")

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	if e.cfg.RPC.Enabled {
		server := api.New(api.Config{
			Listen:      e.cfg.RPC.Listen,
			APIKey:      e.cfg.RPC.APIKey,
			MetricsPath: c.services.MetricQueryPath,
		}, d, c.events, c.metrics.Handler(), log.WithComponent("api"))

		g.Go(func() error {
			err := server.Start(gctx)
			if err == nil || errors.Is(err, context.Canceled) {
				return nil
			}
			e.OnFatalError(&dispatch.InfrastructureFault{Source: dispatch.FaultHTTP, Err: err})
			return err
		})
		logger.Info("API server enabled", "listen", e.cfg.RPC.Listen)
	}

	code := e.wait(ctx, logger)

	cancel()
	if err := g.Wait(); err != nil {
		logger.Debug("background services stopped", "error", err)
	}
	return code
}

func (e *Entrypoint) wait(ctx context.Context, logger *slog.Logger) int {
	select {
	case status := <-e.shutdown:
		logger.Info("job finished, shutting down", "application_status", status)
		return status.ExitCode()
	case err := <-e.fatal:
		logger.Error("terminating on fatal error", "error", err)
		return ExitFatal
	case <-ctx.Done():
		logger.Info("received shutdown signal")
		return ExitOK
	}
}

func (e *Entrypoint) closeDispatcher(d *dispatch.Dispatcher) {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		e.logger.Warn("dispatcher did not close cleanly", "job_id", d.JobID(), "error", err)
	}
}
