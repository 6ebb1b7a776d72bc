package database

import "photobox/internal/box"

// Store is the persistence backend: submission records plus the run journal.
type Store interface {
	box.RecordStore
	box.RunJournal

	// CheckMigrations reports whether the schema is at the latest version.
	CheckMigrations() error
}
