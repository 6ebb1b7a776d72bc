package dispatch

import (
	"context"
	"fmt"
	"io"
	"sync"

	"photobox/internal/box"
)

// MemoryDispatcher records every message it is asked to send. Safe for
// concurrent use.
type MemoryDispatcher struct {
	tmpl     Template
	mu       sync.Mutex
	messages []*Message
}

var _ box.Dispatcher = (*MemoryDispatcher)(nil)

func NewMemoryDispatcher(tmpl Template) *MemoryDispatcher {
	return &MemoryDispatcher{tmpl: tmpl}
}

func (d *MemoryDispatcher) Send(ctx context.Context, archive *box.Archive, content io.Reader) error {
	m, err := d.tmpl.NewMessage(archive, content)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("sending %s: %w", archive.Name, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.messages = append(d.messages, m)
	return nil
}

// Messages returns a copy of the recorded messages in send order.
func (d *MemoryDispatcher) Messages() []*Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Message, len(d.messages))
	copy(out, d.messages)
	return out
}
