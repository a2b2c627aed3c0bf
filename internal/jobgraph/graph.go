// Package jobgraph describes the single unit of work a jobcluster runs and
// retrieves it at bootstrap.
package jobgraph

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// JobGraph is the immutable description of one job. It is built once by a
// Source and only read afterwards; callers must not mutate it.
type JobGraph struct {
	ID        string   `yaml:"id" json:"id"`
	Name      string   `yaml:"name" json:"name"`
	Vertices  []Vertex `yaml:"vertices" json:"vertices"`
	Artifacts []string `yaml:"artifacts,omitempty" json:"artifacts,omitempty"`
	// Slots is the number of execution slots the job asks the resource broker for.
	Slots int `yaml:"slots,omitempty" json:"slots,omitempty"`
}

// Vertex is one executable step of the job.
type Vertex struct {
	Name    string            `yaml:"name" json:"name"`
	Command string            `yaml:"command" json:"command"`
	Args    []string          `yaml:"args,omitempty" json:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	Timeout time.Duration     `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// Validate checks structural invariants of the graph.
func (g *JobGraph) Validate() error {
	if err := ValidateJobID(g.ID); err != nil {
		return err
	}
	if g.Slots <= 0 {
		return fmt.Errorf("job %q: slots must be positive (got %d)", g.ID, g.Slots)
	}
	if len(g.Vertices) == 0 {
		return fmt.Errorf("job %q has no vertices", g.ID)
	}

	seen := make(map[string]bool, len(g.Vertices))
	for i, v := range g.Vertices {
		if v.Name == "" {
			return fmt.Errorf("vertex[%d]: name is empty", i)
		}
		if seen[v.Name] {
			return fmt.Errorf("vertex[%d]: duplicate name %q", i, v.Name)
		}
		seen[v.Name] = true
		if v.Command == "" {
			return fmt.Errorf("vertex %q: command is empty", v.Name)
		}
		if v.Timeout < 0 {
			return fmt.Errorf("vertex %q: timeout must not be negative", v.Name)
		}
	}
	for i, a := range g.Artifacts {
		if a == "" {
			return fmt.Errorf("artifacts[%d]: path is empty", i)
		}
	}
	return nil
}

// ValidateJobID reports whether id is usable as a single path component.
// Lock files, history entries and artifact directories are named by it.
func ValidateJobID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("job id is empty")
	}
	if strings.TrimSpace(id) != id {
		return fmt.Errorf("job id %q has surrounding whitespace", id)
	}
	if id == "." || id == ".." {
		return fmt.Errorf("job id %q is invalid", id)
	}
	if strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("job id %q must not contain path separators", id)
	}
	if filepath.Clean(id) != id {
		return fmt.Errorf("job id %q is invalid", id)
	}
	return nil
}

// DisplayName returns the name, falling back to the ID.
func (g *JobGraph) DisplayName() string {
	if g.Name != "" {
		return g.Name
	}
	return g.ID
}
