package scratch

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"photobox/internal/box"
)

// area implements box.ScratchArea using a pluggable artifactStore for the
// storage mechanics. Namespacing, naming rules and the size limit live here.
type area struct {
	store   artifactStore
	maxSize int64
	logger  box.Logger
	mu      sync.Mutex // serializes the size check with the commit it guards
}

var _ box.ScratchArea = (*area)(nil)

// Stage writes r as an artifact of the run.
func (a *area) Stage(runID, name string, r io.Reader) (*box.Artifact, error) {
	w, err := a.Create(runID, name)
	if err != nil {
		return nil, err
	}

	n, err := io.Copy(w, r)
	if err != nil {
		w.Abort()
		return nil, fmt.Errorf("writing %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	clean, _ := box.ArtifactName(name)
	return &box.Artifact{Name: clean, Size: n}, nil
}

// Create opens a writer for an artifact of the run.
func (a *area) Create(runID, name string) (box.ArtifactWriter, error) {
	if err := validateRunID(runID); err != nil {
		return nil, err
	}
	clean, err := box.ArtifactName(name)
	if err != nil {
		return nil, err
	}

	pending, err := a.store.Create(runID, clean)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", clean, err)
	}
	return &artifactWriter{area: a, pending: pending, name: clean}, nil
}

// Open returns a reader for an artifact of the run.
func (a *area) Open(runID, name string) (io.ReadCloser, error) {
	if err := validateRunID(runID); err != nil {
		return nil, err
	}
	clean, err := box.ArtifactName(name)
	if err != nil {
		return nil, err
	}
	return a.store.Open(runID, clean)
}

// List returns the artifacts of the run.
func (a *area) List(runID string) ([]*box.Artifact, error) {
	if err := validateRunID(runID); err != nil {
		return nil, err
	}
	return a.store.List(runID)
}

// Clear removes the run's artifacts except those named in except. When
// nothing is excepted the namespace itself is dropped as well.
func (a *area) Clear(runID string, except ...string) (int, error) {
	if err := validateRunID(runID); err != nil {
		return 0, err
	}

	artifacts, err := a.store.List(runID)
	if err != nil {
		return 0, fmt.Errorf("listing %s: %w", runID, err)
	}

	removed := 0
	var errs []error
	for _, art := range artifacts {
		if slices.Contains(except, art.Name) {
			continue
		}
		if err := a.store.Remove(runID, art.Name); err != nil {
			a.logger.Warn("scratch remove failed", "run", runID, "artifact", art.Name, "error", err)
			errs = append(errs, fmt.Errorf("removing %s: %w", art.Name, err))
			continue
		}
		a.logger.Debug("scratch artifact removed", "run", runID, "artifact", art.Name)
		removed++
	}

	if len(except) == 0 {
		if err := a.store.RemoveRun(runID); err != nil {
			a.logger.Warn("scratch namespace remove failed", "run", runID, "error", err)
			errs = append(errs, fmt.Errorf("removing namespace %s: %w", runID, err))
		}
	}

	return removed, errors.Join(errs...)
}

// Runs returns the IDs of all namespaces.
func (a *area) Runs() ([]string, error) {
	return a.store.Runs()
}

// IdleRuns returns the namespaces last written before since.
func (a *area) IdleRuns(since time.Time) ([]string, error) {
	runs, err := a.store.Runs()
	if err != nil {
		return nil, err
	}

	var idle []string
	for _, runID := range runs {
		last, err := a.store.LastWrite(runID)
		if err != nil {
			return nil, fmt.Errorf("checking %s: %w", runID, err)
		}
		if last.Before(since) {
			idle = append(idle, runID)
		}
	}
	return idle, nil
}

// Size returns the total size of committed artifacts in bytes.
func (a *area) Size() (int64, error) {
	return a.store.ContentSize()
}

// commit enforces the size limit and publishes a pending artifact.
func (a *area) commit(p pendingArtifact, size int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	current, err := a.store.ContentSize()
	if err != nil {
		p.Discard()
		return fmt.Errorf("getting current size: %w", err)
	}
	if current+size > a.maxSize {
		p.Discard()
		return fmt.Errorf("scratch area full: would exceed max size of %d bytes", a.maxSize)
	}
	return p.Commit()
}

// validateRunID rejects IDs that could not serve as a single path element.
func validateRunID(runID string) error {
	clean, err := box.ArtifactName(runID)
	if err != nil || clean != runID {
		return fmt.Errorf("invalid run id %q", runID)
	}
	return nil
}

// artifactWriter counts written bytes and commits through the area on Close.
type artifactWriter struct {
	area    *area
	pending pendingArtifact
	name    string
	size    int64
	done    bool
}

func (w *artifactWriter) Write(p []byte) (int, error) {
	if w.done {
		return 0, fmt.Errorf("write to closed artifact %s", w.name)
	}
	n, err := w.pending.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *artifactWriter) Close() error {
	if w.done {
		return nil
	}
	w.done = true
	if err := w.area.commit(w.pending, w.size); err != nil {
		return fmt.Errorf("committing %s: %w", w.name, err)
	}
	return nil
}

func (w *artifactWriter) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	return w.pending.Discard()
}
