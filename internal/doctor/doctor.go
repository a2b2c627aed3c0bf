// Package doctor runs the bootstrap checks of a jobcluster configuration and
// its job graph without starting anything.
package doctor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/mattjoyce/jobcluster/internal/config"
	"github.com/mattjoyce/jobcluster/internal/dispatch"
	"github.com/mattjoyce/jobcluster/internal/jobgraph"
	"github.com/mattjoyce/jobcluster/internal/storage"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	JobID    string  `json:"job_id,omitempty"`
	Mode     string  `json:"mode,omitempty"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates a loaded config and the job graph it points at.
type Doctor struct {
	cfg      *config.Config
	source   jobgraph.Source
	lookPath func(string) (string, error)
	// requireLocal rejects lock-bearing paths on network filesystems.
	requireLocal func(setting, path string) error
}

// New creates a Doctor that retrieves the graph from source.
func New(cfg *config.Config, source jobgraph.Source) *Doctor {
	return &Doctor{cfg: cfg, source: source, lookPath: exec.LookPath, requireLocal: storage.RequireLocal}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate(ctx context.Context) *Result {
	r := &Result{Valid: true}

	d.validateMode(r)
	d.validateFilesystems(r)
	if g := d.validateGraph(ctx, r); g != nil {
		r.JobID = g.ID
		d.validateVertices(r, g)
		d.validateArtifacts(r, g)
		d.validateSlots(r, g)
	}
	d.warnHeartbeat(r)
	d.warnRPC(r)
	d.warnHistory(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) validateMode(r *Result) {
	mode, err := dispatch.ParseExecutionMode(d.cfg.Execution.Mode)
	if err != nil {
		d.addError(r, "execution", dispatch.ExecutionModeOption, err.Error())
		return
	}
	r.Mode = string(mode)
}

// validateFilesystems checks the paths that carry SQLite or flock locks.
func (d *Doctor) validateFilesystems(r *Result) {
	paths := []struct{ field, path string }{
		{"state.path", d.cfg.State.Path},
		{"high_availability.lock_dir", d.cfg.HA.LockDir},
		{"artifacts.dir", d.cfg.Artifacts.Dir},
	}
	for _, p := range paths {
		if err := d.requireLocal(p.field, p.path); err != nil {
			d.addError(r, "storage", p.field, err.Error())
		}
	}
}

func (d *Doctor) validateGraph(ctx context.Context, r *Result) *jobgraph.JobGraph {
	g, err := d.source.Retrieve(ctx, d.cfg)
	if err != nil {
		d.addError(r, "job_graph", "execution.job_graph", err.Error())
		return nil
	}
	return g
}

// validateVertices checks that every vertex command can be started.
func (d *Doctor) validateVertices(r *Result, g *jobgraph.JobGraph) {
	for _, v := range g.Vertices {
		field := fmt.Sprintf("vertices.%s.command", v.Name)
		if strings.ContainsRune(v.Command, filepath.Separator) {
			info, err := os.Stat(v.Command)
			switch {
			case err != nil:
				d.addError(r, "vertices", field, fmt.Sprintf("command %q not found", v.Command))
			case info.IsDir() || info.Mode()&0o111 == 0:
				d.addError(r, "vertices", field, fmt.Sprintf("command %q is not executable", v.Command))
			}
			continue
		}
		if _, err := d.lookPath(v.Command); err != nil {
			d.addError(r, "vertices", field, fmt.Sprintf("command %q not found on PATH", v.Command))
		}
	}
}

func (d *Doctor) validateArtifacts(r *Result, g *jobgraph.JobGraph) {
	for i, p := range g.Artifacts {
		info, err := os.Stat(p)
		if err != nil {
			d.addError(r, "artifacts", fmt.Sprintf("artifacts[%d]", i), fmt.Sprintf("artifact %q not readable: %v", p, err))
			continue
		}
		if info.IsDir() {
			d.addError(r, "artifacts", fmt.Sprintf("artifacts[%d]", i), fmt.Sprintf("artifact %q is a directory", p))
		}
	}
}

// validateSlots catches jobs the local broker can never serve; at runtime
// that is a fatal resource manager fault.
func (d *Doctor) validateSlots(r *Result, g *jobgraph.JobGraph) {
	if g.Slots > d.cfg.Resources.Slots {
		d.addError(r, "resources", "resources.slots",
			fmt.Sprintf("job %q asks for %d slots but the broker has %d", g.ID, g.Slots, d.cfg.Resources.Slots))
	}
}

func (d *Doctor) warnHeartbeat(r *Result) {
	hb := d.cfg.Heartbeat
	if hb.Interval > 0 && hb.Timeout < 3*hb.Interval {
		d.addWarning(r, "heartbeat", "heartbeat.timeout",
			fmt.Sprintf("timeout %s allows fewer than 3 missed heartbeats at interval %s", hb.Timeout, hb.Interval))
	}
}

func (d *Doctor) warnRPC(r *Result) {
	if !d.cfg.RPC.Enabled {
		if d.cfg.Metrics.Enabled && d.cfg.Metrics.QueryPath != "" {
			d.addWarning(r, "metrics", "metrics.query_path", "metrics are enabled but rpc is disabled, so nothing serves them")
		}
		if d.cfg.Execution.Mode == string(dispatch.ModeDetached) {
			d.addWarning(r, "rpc", "rpc.enabled", "DETACHED job without rpc cannot be queried after it finishes")
		}
		return
	}
	if d.cfg.RPC.APIKey == "" {
		d.addWarning(r, "rpc", "rpc.api_key", "rpc enabled without an api key; job routes are unauthenticated")
	}
}

func (d *Doctor) warnHistory(r *Result) {
	if d.cfg.History.ArchiveDir == "" {
		d.addWarning(r, "history", "history.archive_dir", "history archiving disabled")
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.JobID != "" {
		fmt.Fprintf(&b, "Job %s", r.JobID)
		if r.Mode != "" {
			fmt.Fprintf(&b, " (%s)", r.Mode)
		}
		b.WriteString("\n")
	}

	switch {
	case r.Valid && len(r.Warnings) == 0:
		b.WriteString("Configuration valid.\n")
		return b.String()
	case r.Valid:
		fmt.Fprintf(&b, "Configuration valid (%d warning(s))\n", len(r.Warnings))
	default:
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		writeIssue(&b, "ERROR", e)
	}
	for _, w := range r.Warnings {
		writeIssue(&b, "WARN ", w)
	}

	return b.String()
}

func writeIssue(b *strings.Builder, level string, i Issue) {
	if i.Field != "" {
		fmt.Fprintf(b, "  %s [%s] %s: %s\n", level, i.Category, i.Field, i.Message)
		return
	}
	fmt.Fprintf(b, "  %s [%s] %s\n", level, i.Category, i.Message)
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
