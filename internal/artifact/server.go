// Package artifact stores job artifacts on local disk, one directory per job,
// each file named by the BLAKE3 hash of its content.
package artifact

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/mattjoyce/jobcluster/internal/jobgraph"
)

// ErrNotFound is returned by Path for keys that were never stored.
var ErrNotFound = errors.New("artifact not found")

// Server is a content-addressed artifact directory.
type Server struct {
	baseDir string
}

func NewServer(baseDir string) (*Server, error) {
	trimmed := strings.TrimSpace(baseDir)
	if trimmed == "" {
		return nil, fmt.Errorf("artifact base directory is empty")
	}
	return &Server{baseDir: filepath.Clean(trimmed)}, nil
}

// Key returns the content key for data.
func Key(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Put stores the content of r for jobID and returns its key and local path.
func (s *Server) Put(ctx context.Context, jobID string, r io.Reader) (string, string, error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}
	dir, err := s.jobDir(jobID)
	if err != nil {
		return "", "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create artifact directory for job %q: %w", jobID, err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", "", fmt.Errorf("create temp artifact: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	h := blake3.New()
	if _, err := io.Copy(io.MultiWriter(tmp, h), r); err != nil {
		_ = tmp.Close()
		return "", "", fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", "", fmt.Errorf("close artifact: %w", err)
	}

	key := hex.EncodeToString(h.Sum(nil))
	path := filepath.Join(dir, key)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", "", fmt.Errorf("store artifact %s: %w", key, err)
	}
	return key, path, nil
}

// PutFile stores the file at src for jobID.
func (s *Server) PutFile(ctx context.Context, jobID, src string) (string, string, error) {
	f, err := os.Open(src)
	if err != nil {
		return "", "", fmt.Errorf("open artifact %q: %w", src, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", "", fmt.Errorf("stat artifact %q: %w", src, err)
	}
	if !info.Mode().IsRegular() {
		return "", "", fmt.Errorf("artifact %q is not a regular file", src)
	}
	return s.Put(ctx, jobID, f)
}

// Path returns the local path of a stored artifact.
func (s *Server) Path(jobID, key string) (string, error) {
	dir, err := s.jobDir(jobID)
	if err != nil {
		return "", err
	}
	if _, err := hex.DecodeString(key); err != nil || key == "" {
		return "", fmt.Errorf("artifact key %q is invalid", key)
	}
	path := filepath.Join(dir, key)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: job %s key %s", ErrNotFound, jobID, key)
		}
		return "", fmt.Errorf("stat artifact: %w", err)
	}
	return path, nil
}

// CleanupJob removes every artifact stored for jobID.
func (s *Server) CleanupJob(ctx context.Context, jobID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, err := s.jobDir(jobID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove artifacts for job %q: %w", jobID, err)
	}
	return nil
}

func (s *Server) jobDir(jobID string) (string, error) {
	if err := validateJobID(jobID); err != nil {
		return "", err
	}
	return filepath.Join(s.baseDir, jobID), nil
}

func validateJobID(jobID string) error {
	return jobgraph.ValidateJobID(jobID)
}
