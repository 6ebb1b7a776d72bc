package app

import "time"

// Operation identifies the CLI command an app was opened for. Its ID tags
// every log line written on the command's behalf.
type Operation struct {
	Name      string
	ID        string
	StartedAt time.Time
}

// NewOperation creates an operation started at the given time.
func NewOperation(name string, startedAt time.Time) *Operation {
	return &Operation{
		Name:      name,
		ID:        startedAt.UTC().Format("20060102T150405Z"),
		StartedAt: startedAt,
	}
}

// Elapsed returns how long the operation has been running at now.
func (op *Operation) Elapsed(now time.Time) time.Duration {
	return now.Sub(op.StartedAt).Truncate(time.Millisecond)
}
