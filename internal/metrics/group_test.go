package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/jobcluster/internal/execution"
)

func TestSetJobStatusIsOneHot(t *testing.T) {
	g := NewGroup()

	g.SetJobStatus("J1", execution.JobStatusRunning)
	g.SetJobStatus("J1", execution.JobStatusFinished)

	assert.Equal(t, 0.0, testutil.ToFloat64(g.jobStatus.WithLabelValues("J1", "RUNNING")))
	assert.Equal(t, 1.0, testutil.ToFloat64(g.jobStatus.WithLabelValues("J1", "FINISHED")))
	assert.Equal(t, 5, testutil.CollectAndCount(g.jobStatus))
}

func TestCounters(t *testing.T) {
	g := NewGroup()

	g.IncTerminal(execution.JobStatusFailed)
	g.IncFault("heartbeat")
	g.IncFault("heartbeat")
	g.IncNotificationFailure("history")
	g.IncDuplicateTermination()

	assert.Equal(t, 1.0, testutil.ToFloat64(g.terminal.WithLabelValues("FAILED")))
	assert.Equal(t, 2.0, testutil.ToFloat64(g.faults.WithLabelValues("heartbeat")))
	assert.Equal(t, 1.0, testutil.ToFloat64(g.notificationFailures.WithLabelValues("history")))
	assert.Equal(t, 1.0, testutil.ToFloat64(g.duplicateTerminations))
}

func TestHandlerServesExposition(t *testing.T) {
	g := NewGroup()
	g.IncTerminal(execution.JobStatusFinished)

	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `jobcluster_job_terminal_total{status="FINISHED"} 1`)
	assert.Contains(t, string(body), "jobcluster_uptime_seconds")
}
