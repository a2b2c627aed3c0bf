package jobgraph

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/blake3"

	"github.com/mattjoyce/jobcluster/internal/config"
)

const sampleGraph = `
id: J1
name: nightly-etl
slots: 2
artifacts: [etl.tar]
vertices:
  - name: extract
    command: /bin/echo
    args: [extract]
    timeout: 30s
  - name: load
    command: /bin/echo
    env:
      TARGET: warehouse
`

func writeGraph(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "job.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func cfgFor(path string) *config.Config {
	cfg := config.Defaults()
	cfg.Execution.JobGraph = path
	return cfg
}

func TestFileSourceRetrieve(t *testing.T) {
	g, err := FileSource{}.Retrieve(context.Background(), cfgFor(writeGraph(t, sampleGraph)))
	require.NoError(t, err)

	want := &JobGraph{
		ID:        "J1",
		Name:      "nightly-etl",
		Slots:     2,
		Artifacts: []string{"etl.tar"},
		Vertices: []Vertex{
			{Name: "extract", Command: "/bin/echo", Args: []string{"extract"}, Timeout: 30 * time.Second},
			{Name: "load", Command: "/bin/echo", Env: map[string]string{"TARGET": "warehouse"}},
		},
	}
	if diff := cmp.Diff(want, g); diff != "" {
		t.Errorf("job graph mismatch (-want +got):\n%s", diff)
	}
}

func TestFileSourceDefaults(t *testing.T) {
	g, err := FileSource{}.Retrieve(context.Background(), cfgFor(writeGraph(t, `
vertices:
  - name: only
    command: /bin/true
`)))
	require.NoError(t, err)

	_, err = uuid.Parse(g.ID)
	assert.NoError(t, err, "generated id should be a uuid")
	assert.Equal(t, 1, g.Slots)
	assert.Equal(t, g.ID, g.DisplayName())
}

func TestFileSourceJSON(t *testing.T) {
	g, err := FileSource{}.Retrieve(context.Background(), cfgFor(writeGraph(t,
		`{"id": "J2", "vertices": [{"name": "a", "command": "/bin/false"}]}`)))
	require.NoError(t, err)
	assert.Equal(t, "J2", g.ID)
}

func TestFileSourceChecksum(t *testing.T) {
	path := writeGraph(t, sampleGraph)
	sum := blake3.Sum256([]byte(sampleGraph))

	cfg := cfgFor(path)
	cfg.Execution.JobGraphChecksum = hex.EncodeToString(sum[:])
	_, err := FileSource{}.Retrieve(context.Background(), cfg)
	require.NoError(t, err)

	cfg.Execution.JobGraphChecksum = "deadbeef"
	_, err = FileSource{}.Retrieve(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRetrieval))
	assert.Contains(t, err.Error(), "checksum mismatch")
}

func TestFileSourceFailures(t *testing.T) {
	tests := []struct {
		name    string
		path    func(t *testing.T) string
		wantErr string
	}{
		{
			name:    "missing file",
			path:    func(t *testing.T) string { return filepath.Join(t.TempDir(), "missing.yaml") },
			wantErr: "read job graph",
		},
		{
			name:    "malformed yaml",
			path:    func(t *testing.T) string { return writeGraph(t, "vertices: [") },
			wantErr: "parse job graph",
		},
		{
			name:    "no vertices",
			path:    func(t *testing.T) string { return writeGraph(t, "id: J3\n") },
			wantErr: "has no vertices",
		},
		{
			name: "duplicate vertex",
			path: func(t *testing.T) string {
				return writeGraph(t, "vertices:\n  - {name: a, command: x}\n  - {name: a, command: y}\n")
			},
			wantErr: "duplicate name",
		},
		{
			name:    "job id with separator",
			path:    func(t *testing.T) string { return writeGraph(t, "id: a/b\nvertices:\n  - {name: a, command: x}\n") },
			wantErr: "path separators",
		},
		{
			name:    "job id escaping",
			path:    func(t *testing.T) string { return writeGraph(t, "id: ../x\nvertices:\n  - {name: a, command: x}\n") },
			wantErr: "path separators",
		},
		{
			name:    "job id dotdot",
			path:    func(t *testing.T) string { return writeGraph(t, "id: \"..\"\nvertices:\n  - {name: a, command: x}\n") },
			wantErr: "is invalid",
		},
		{
			name:    "empty command",
			path:    func(t *testing.T) string { return writeGraph(t, "vertices:\n  - {name: a}\n") },
			wantErr: "command is empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FileSource{}.Retrieve(context.Background(), cfgFor(tt.path(t)))
			require.Error(t, err)

			var rerr *RetrievalError
			require.True(t, errors.As(err, &rerr))
			assert.True(t, errors.Is(err, ErrRetrieval))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestStaticSource(t *testing.T) {
	g := &JobGraph{ID: "J1", Slots: 1, Vertices: []Vertex{{Name: "a", Command: "x"}}}

	got, err := StaticSource{Graph: g}.Retrieve(context.Background(), nil)
	require.NoError(t, err)
	assert.Same(t, g, got)

	_, err = StaticSource{}.Retrieve(context.Background(), nil)
	assert.ErrorIs(t, err, ErrRetrieval)
}

func TestDecodeRejectsUnsafeJobIDs(t *testing.T) {
	for _, id := range []string{"a/b", "..", "../escaped", `a\b`, ".", " J1"} {
		t.Run(id, func(t *testing.T) {
			_, err := Decode([]byte(fmt.Sprintf("id: %q\nvertices:\n  - {name: a, command: x}\n", id)))
			assert.Error(t, err)
		})
	}

	g, err := Decode([]byte("id: job-1.v2\nvertices:\n  - {name: a, command: x}\n"))
	require.NoError(t, err)
	assert.Equal(t, "job-1.v2", g.ID)
}

func TestStaticSourceRejectsUnsafeJobID(t *testing.T) {
	g := &JobGraph{ID: "../escaped", Slots: 1, Vertices: []Vertex{{Name: "a", Command: "x"}}}
	_, err := StaticSource{Graph: g}.Retrieve(context.Background(), nil)
	assert.ErrorIs(t, err, ErrRetrieval)
}
