// Package metrics holds the job manager metric group and serves it in the
// Prometheus exposition format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mattjoyce/jobcluster/internal/execution"
)

const namespace = "jobcluster"

var statuses = []execution.JobStatus{
	execution.JobStatusCreated,
	execution.JobStatusRunning,
	execution.JobStatusFinished,
	execution.JobStatusFailed,
	execution.JobStatusCanceled,
}

// Group is the job manager metric group. Each Group owns its registry.
type Group struct {
	registry *prometheus.Registry

	jobStatus             *prometheus.GaugeVec
	terminal              *prometheus.CounterVec
	faults                *prometheus.CounterVec
	notificationFailures  *prometheus.CounterVec
	duplicateTerminations prometheus.Counter
}

func NewGroup() *Group {
	started := time.Now()
	g := &Group{
		registry: prometheus.NewRegistry(),
		jobStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "job_status",
			Help:      "1 for the current status of the governed job, 0 otherwise.",
		}, []string{"job_id", "status"}),
		terminal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_terminal_total",
			Help:      "Jobs that reached a globally terminal status.",
		}, []string{"status"}),
		faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "infrastructure_faults_total",
			Help:      "Infrastructure faults reported to the fatal error handler.",
		}, []string{"source"}),
		notificationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_failures_total",
			Help:      "Best-effort archival steps that failed.",
		}, []string{"target"}),
		duplicateTerminations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_terminations_total",
			Help:      "Terminal notifications ignored because the job was already terminal.",
		}),
	}

	uptime := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "uptime_seconds",
		Help:      "Seconds since the job manager metric group was created.",
	}, func() float64 { return time.Since(started).Seconds() })

	g.registry.MustRegister(
		g.jobStatus,
		g.terminal,
		g.faults,
		g.notificationFailures,
		g.duplicateTerminations,
		uptime,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return g
}

// Registry exposes the underlying registry, mainly for tests.
func (g *Group) Registry() *prometheus.Registry { return g.registry }

// Handler serves the group's metrics.
func (g *Group) Handler() http.Handler {
	return promhttp.HandlerFor(g.registry, promhttp.HandlerOpts{Registry: g.registry})
}

// SetJobStatus marks status as the job's current status.
func (g *Group) SetJobStatus(jobID string, status execution.JobStatus) {
	for _, s := range statuses {
		v := 0.0
		if s == status {
			v = 1
		}
		g.jobStatus.WithLabelValues(jobID, string(s)).Set(v)
	}
}

func (g *Group) IncTerminal(status execution.JobStatus) {
	g.terminal.WithLabelValues(string(status)).Inc()
}

func (g *Group) IncFault(source string) {
	g.faults.WithLabelValues(source).Inc()
}

// IncNotificationFailure counts a failed archive store write ("store") or
// history notification ("history").
func (g *Group) IncNotificationFailure(target string) {
	g.notificationFailures.WithLabelValues(target).Inc()
}

func (g *Group) IncDuplicateTermination() {
	g.duplicateTerminations.Inc()
}
