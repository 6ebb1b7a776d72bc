package box

import "context"

// RecordStore persists submission fingerprints as audit records.
// Writes must be parameter bound; a fingerprint is never spliced into SQL.
type RecordStore interface {
	// Persist appends one record for fingerprint. Duplicates are accepted.
	Persist(ctx context.Context, fingerprint string) (*Record, error)

	// FindByFingerprint returns every record with the given fingerprint, oldest first.
	FindByFingerprint(ctx context.Context, fingerprint string) ([]*Record, error)

	// ListRecords returns the most recent records, newest first.
	ListRecords(ctx context.Context, limit int) ([]*Record, error)

	// Close releases the underlying connection.
	Close() error
}

// RunJournal records the outcome of each pipeline run for operators.
// Journal failures never fail a run.
type RunJournal interface {
	StartRun(ctx context.Context, run *Run) error
	FinishRun(ctx context.Context, run *Run) error
	ListRuns(ctx context.Context, limit int) ([]*Run, error)
}
