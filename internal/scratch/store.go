package scratch

import (
	"io"
	"time"

	"photobox/internal/box"
)

// artifactStore abstracts the storage mechanics for a scratch area.
// Implementations must be safe for concurrent use across distinct runs.
type artifactStore interface {
	// Create returns a pending artifact. Nothing is visible until Commit.
	Create(runID, name string) (pendingArtifact, error)

	// Open returns a reader for a committed artifact.
	Open(runID, name string) (io.ReadCloser, error)

	// List returns the committed artifacts of a run. An unknown run is empty.
	List(runID string) ([]*box.Artifact, error)

	// Remove deletes one committed artifact. Removing a missing artifact is not an error.
	Remove(runID, name string) error

	// RemoveRun deletes the run's namespace and anything left in it.
	RemoveRun(runID string) error

	// Runs returns the IDs of all namespaces.
	Runs() ([]string, error)

	// LastWrite returns the time of the run's most recent write, pending
	// artifacts included. An unknown run returns the zero time.
	LastWrite(runID string) (time.Time, error)

	// ContentSize returns total bytes of all committed artifacts.
	ContentSize() (int64, error)
}

// pendingArtifact is an artifact being written.
type pendingArtifact interface {
	io.Writer
	Commit() error
	Discard() error
}
