package box

import (
	"io"
	"time"
)

// ScratchArea holds the transient artifacts of pipeline runs. Every operation
// is scoped to a run ID so concurrent runs never observe or remove each
// other's artifacts.
type ScratchArea interface {
	// Stage writes r as artifact name in the run's namespace, replacing any
	// artifact of the same name.
	Stage(runID, name string, r io.Reader) (*Artifact, error)

	// Create opens a writer for artifact name. The artifact becomes visible
	// only after Close succeeds; Abort discards it.
	Create(runID, name string) (ArtifactWriter, error)

	// Open returns a reader for an artifact in the run's namespace.
	Open(runID, name string) (io.ReadCloser, error)

	// List returns the artifacts in the run's namespace, in no particular order.
	List(runID string) ([]*Artifact, error)

	// Clear removes every artifact of the run not named in except.
	// Removal is best-effort: individual failures are logged and returned
	// joined, and do not stop the remaining removals.
	Clear(runID string, except ...string) (int, error)

	// Runs returns the IDs of all namespaces currently holding data.
	Runs() ([]string, error)

	// IdleRuns returns the IDs of namespaces with no write at or after since,
	// including writes still in progress.
	IdleRuns(since time.Time) ([]string, error)
}

// ArtifactWriter receives an artifact's content.
type ArtifactWriter interface {
	io.WriteCloser

	// Abort discards everything written so far. Calling Abort after a
	// successful Close is a no-op.
	Abort() error
}
