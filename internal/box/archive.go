package box

import (
	"context"
	"time"
)

// ArchiveBuilder packages the artifacts of one run into a single archive
// artifact named name, stored in the same namespace. builtAt stamps every
// entry.
type ArchiveBuilder interface {
	Build(ctx context.Context, area ScratchArea, runID, name string, builtAt time.Time) (*Archive, error)
}
