package jobgraph

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/jobcluster/internal/config"
)

// ErrRetrieval matches every RetrievalError.
var ErrRetrieval = errors.New("job graph retrieval failed")

// RetrievalError reports why the job graph could not be retrieved. It aborts
// bootstrap: there is no fallback job.
type RetrievalError struct {
	Source string
	Err    error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieve job graph from %s: %v", e.Source, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

func (e *RetrievalError) Is(target error) bool { return target == ErrRetrieval }

// Source retrieves the job graph to run. It is called exactly once per process.
type Source interface {
	Retrieve(ctx context.Context, cfg *config.Config) (*JobGraph, error)
}

// FileSource reads the job graph from execution.job_graph. YAML and JSON are
// both accepted.
type FileSource struct{}

var _ Source = FileSource{}

// Retrieve implements Source.
func (FileSource) Retrieve(ctx context.Context, cfg *config.Config) (*JobGraph, error) {
	path := cfg.Execution.JobGraph
	fail := func(err error) (*JobGraph, error) {
		return nil, &RetrievalError{Source: path, Err: err}
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	if path == "" {
		return fail(errors.New("execution.job_graph is empty"))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fail(fmt.Errorf("read job graph: %w", err))
	}

	if want := strings.TrimSpace(cfg.Execution.JobGraphChecksum); want != "" {
		sum := blake3.Sum256(data)
		if got := hex.EncodeToString(sum[:]); !strings.EqualFold(got, want) {
			return fail(fmt.Errorf("checksum mismatch for %s: expected %s, got %s", filepath.Base(path), want, got))
		}
	}

	g, err := Decode(data)
	if err != nil {
		return fail(err)
	}
	return g, nil
}

// Decode parses, defaults and validates a job graph document.
func Decode(data []byte) (*JobGraph, error) {
	var g JobGraph
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parse job graph: %w", err)
	}
	applyDefaults(&g)
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid job graph: %w", err)
	}
	return &g, nil
}

func applyDefaults(g *JobGraph) {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.Slots == 0 {
		g.Slots = 1
	}
}

// StaticSource returns a job graph held in memory.
type StaticSource struct {
	Graph *JobGraph
}

var _ Source = StaticSource{}

// Retrieve implements Source.
func (s StaticSource) Retrieve(ctx context.Context, _ *config.Config) (*JobGraph, error) {
	if err := ctx.Err(); err != nil {
		return nil, &RetrievalError{Source: "static", Err: err}
	}
	if s.Graph == nil {
		return nil, &RetrievalError{Source: "static", Err: errors.New("no job graph configured")}
	}
	if err := s.Graph.Validate(); err != nil {
		return nil, &RetrievalError{Source: "static", Err: err}
	}
	return s.Graph, nil
}
