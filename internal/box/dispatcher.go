package box

import (
	"context"
	"io"
)

// Dispatcher transmits a finished archive to its recipient.
// A single attempt is made; callers must not assume retries.
type Dispatcher interface {
	Send(ctx context.Context, archive *Archive, content io.Reader) error
}
