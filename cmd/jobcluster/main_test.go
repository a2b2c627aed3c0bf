package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mattjoyce/jobcluster/internal/execution"
)

func writeProject(t *testing.T, mode, script string) string {
	t.Helper()
	dir := t.TempDir()

	graph := fmt.Sprintf(`
id: J1
name: cli job
vertices:
  - name: main
    command: /bin/sh
    args: ["-c", %q]
`, script)
	if err := os.WriteFile(filepath.Join(dir, "job.yaml"), []byte(graph), 0o644); err != nil {
		t.Fatalf("write job graph: %v", err)
	}

	cfg := fmt.Sprintf(`
service:
  log_level: error
execution:
  mode: %s
  job_graph: job.yaml
state:
  path: data/state.db
high_availability:
  lock_dir: data/locks
heartbeat:
  interval: 50ms
  timeout: 5s
rpc:
  enabled: false
artifacts:
  dir: data/artifacts
`, mode)
	path := filepath.Join(dir, "jobcluster.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCLI(t *testing.T, args ...string) (int, string) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	code := execute(cmd, args)
	return code, out.String()
}

func TestVersionCommand(t *testing.T) {
	code, out := runCLI(t, "version")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.HasPrefix(out, "jobcluster ") {
		t.Fatalf("unexpected version output %q", out)
	}
}

func TestValidateCommand(t *testing.T) {
	cfgPath := writeProject(t, "DETACHED", "exit 0")

	code, out := runCLI(t, "validate", "--config", cfgPath)
	if code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	for _, want := range []string{"Job J1 (DETACHED)", "Configuration valid", "rpc.enabled"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestValidateCommandRejectsUnknownMode(t *testing.T) {
	cfgPath := writeProject(t, "BATCH", "exit 0")

	if code, _ := runCLI(t, "validate", "--config", cfgPath); code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
}

func TestValidateCommandJSON(t *testing.T) {
	cfgPath := writeProject(t, "NORMAL", "exit 0")

	code, out := runCLI(t, "validate", "--config", cfgPath, "--json")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.Contains(out, `"valid": true`) || !strings.Contains(out, `"job_id": "J1"`) {
		t.Fatalf("unexpected report:\n%s", out)
	}
}

func TestRunCommandExitCodes(t *testing.T) {
	cfgPath := writeProject(t, "NORMAL", "exit 0")
	if code, _ := runCLI(t, "run", "--config", cfgPath); code != 0 {
		t.Fatalf("finished job: expected exit 0, got %d", code)
	}

	code, out := runCLI(t, "history", "--config", cfgPath)
	if code != 0 {
		t.Fatalf("history: expected exit 0, got %d", code)
	}
	if !strings.Contains(out, "J1") || !strings.Contains(out, "FINISHED") {
		t.Fatalf("history output missing job:\n%s", out)
	}

	code, out = runCLI(t, "inspect", "J1", "--config", cfgPath)
	if code != 0 {
		t.Fatalf("inspect: expected exit 0, got %d", code)
	}
	if !strings.Contains(out, "Job ID      : J1") || !strings.Contains(out, "[1] main") {
		t.Fatalf("inspect output missing job:\n%s", out)
	}

	failing := writeProject(t, "NORMAL", "exit 7")
	if code, _ := runCLI(t, "run", "--config", failing); code != execution.ExitCodeFailed {
		t.Fatalf("failed job: expected exit %d, got %d", execution.ExitCodeFailed, code)
	}
}

func TestRunCommandModeOverride(t *testing.T) {
	cfgPath := writeProject(t, "DETACHED", "exit 0")

	if code, _ := runCLI(t, "run", "--config", cfgPath, "--execution-mode", "BATCH"); code != 1 {
		t.Fatalf("expected bootstrap failure exit 1, got %d", code)
	}
	if code, _ := runCLI(t, "run", "--config", cfgPath, "--execution-mode", "NORMAL"); code != 0 {
		t.Fatalf("expected exit 0 with NORMAL override, got %d", code)
	}
}

func TestRunCommandMissingConfig(t *testing.T) {
	code, _ := runCLI(t, "run", "--config", filepath.Join(t.TempDir(), "absent.yaml"))
	if code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
}
