package testutil

import (
	"photobox/internal/box"
	"photobox/internal/scratch"
)

const (
	// DefaultScratchMaxSize is the default max size for test scratch areas (10MB).
	DefaultScratchMaxSize = 10 * 1024 * 1024
)

// NewTestScratchArea creates a new in-memory scratch area for testing.
func NewTestScratchArea() box.ScratchArea {
	return scratch.NewMemoryScratchArea(DefaultScratchMaxSize, box.NewNopLogger())
}

// NewTestScratchAreaWithSize creates a new in-memory scratch area with a custom max size.
func NewTestScratchAreaWithSize(maxSize int64) box.ScratchArea {
	return scratch.NewMemoryScratchArea(maxSize, box.NewNopLogger())
}
