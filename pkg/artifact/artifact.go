// Package artifact archives final test-run reports outside the run
// store.
//
// Archiving is best-effort: the orchestrator records a warning when it
// fails and the run still terminates normally. Two backends are
// provided - a local directory and S3-compatible object storage.
package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Archiver stores a serialized report for a run and returns the
// location it was written to.
type Archiver interface {
	Store(ctx context.Context, runID string, report []byte) (string, error)
}

// DirArchiver writes reports under a local directory, one file per run.
type DirArchiver struct {
	root string
}

// NewDirArchiver creates a directory-backed archiver rooted at root.
func NewDirArchiver(root string) (*DirArchiver, error) {
	if root == "" {
		return nil, fmt.Errorf("artifact directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact directory: %w", err)
	}
	return &DirArchiver{root: root}, nil
}

// Store writes the report to <root>/<run_id>/report.json via a temp
// file and rename, so readers never observe a partial report.
func (a *DirArchiver) Store(_ context.Context, runID string, report []byte) (string, error) {
	dir := filepath.Join(a.root, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "report.json.tmp.*")
	if err != nil {
		return "", fmt.Errorf("create temp report file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(report); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write temp report file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp report file: %w", err)
	}

	finalPath := filepath.Join(dir, "report.json")
	if err := os.Rename(tmpName, finalPath); err != nil {
		return "", fmt.Errorf("rename report file: %w", err)
	}
	return finalPath, nil
}
