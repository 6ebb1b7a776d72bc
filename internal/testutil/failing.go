package testutil

import (
	"context"
	"io"
	"sync"
	"time"

	"photobox/internal/box"
)

// FailingRecordStore is a RecordStore whose writes always fail with Err.
type FailingRecordStore struct {
	Err error
}

var _ box.RecordStore = (*FailingRecordStore)(nil)

func (s *FailingRecordStore) Persist(ctx context.Context, fingerprint string) (*box.Record, error) {
	return nil, s.Err
}

func (s *FailingRecordStore) FindByFingerprint(ctx context.Context, fingerprint string) ([]*box.Record, error) {
	return nil, s.Err
}

func (s *FailingRecordStore) ListRecords(ctx context.Context, limit int) ([]*box.Record, error) {
	return nil, s.Err
}

func (s *FailingRecordStore) Close() error { return nil }

// SlowRecordStore blocks Persist until its context is done.
type SlowRecordStore struct {
	FailingRecordStore
}

func (s *SlowRecordStore) Persist(ctx context.Context, fingerprint string) (*box.Record, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// FailingDispatcher drains the archive and then fails every Send with Err.
type FailingDispatcher struct {
	Err error
}

var _ box.Dispatcher = (*FailingDispatcher)(nil)

func (d *FailingDispatcher) Send(ctx context.Context, archive *box.Archive, content io.Reader) error {
	io.Copy(io.Discard, content)
	return d.Err
}

// BlockingDispatcher waits for its context, or for Release, before returning.
type BlockingDispatcher struct {
	once        sync.Once
	enteredOnce sync.Once
	release     chan struct{}
	entered     chan struct{}
}

var _ box.Dispatcher = (*BlockingDispatcher)(nil)

func NewBlockingDispatcher() *BlockingDispatcher {
	return &BlockingDispatcher{release: make(chan struct{}), entered: make(chan struct{})}
}

func (d *BlockingDispatcher) Send(ctx context.Context, archive *box.Archive, content io.Reader) error {
	d.enteredOnce.Do(func() { close(d.entered) })
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-d.release:
		return nil
	}
}

// Entered is closed once the first Send has started.
func (d *BlockingDispatcher) Entered() <-chan struct{} {
	return d.entered
}

// Release lets every pending and future Send return successfully.
func (d *BlockingDispatcher) Release() {
	d.once.Do(func() { close(d.release) })
}

// FailingArchiveBuilder fails every Build with Err.
type FailingArchiveBuilder struct {
	Err error
}

var _ box.ArchiveBuilder = (*FailingArchiveBuilder)(nil)

func (b *FailingArchiveBuilder) Build(ctx context.Context, area box.ScratchArea, runID, name string, builtAt time.Time) (*box.Archive, error) {
	return nil, b.Err
}

// RecordingJournal is an in-memory RunJournal. Safe for concurrent use.
type RecordingJournal struct {
	mu   sync.Mutex
	runs []*box.Run
}

var _ box.RunJournal = (*RecordingJournal)(nil)

func (j *RecordingJournal) StartRun(ctx context.Context, run *box.Run) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	r := *run
	r.ID = int64(len(j.runs) + 1)
	j.runs = append(j.runs, &r)
	return nil
}

func (j *RecordingJournal) FinishRun(ctx context.Context, run *box.Run) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, r := range j.runs {
		if r.RunID == run.RunID {
			r.FinishedAt = run.FinishedAt
			r.State = run.State
			r.FailedStage = run.FailedStage
			r.Error = run.Error
			return nil
		}
	}
	return nil
}

func (j *RecordingJournal) ListRuns(ctx context.Context, limit int) ([]*box.Run, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []*box.Run
	for i := len(j.runs) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		r := *j.runs[i]
		out = append(out, &r)
	}
	return out, nil
}

// Finished reports whether every journaled run has a finish time.
func (j *RecordingJournal) Finished() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, r := range j.runs {
		if r.FinishedAt.Equal(time.Time{}) {
			return false
		}
	}
	return true
}

// StalledJournal is a RunJournal whose writes block until their context is
// done, like a database that stopped answering.
type StalledJournal struct {
	mu     sync.Mutex
	starts int
}

var _ box.RunJournal = (*StalledJournal)(nil)

func (j *StalledJournal) StartRun(ctx context.Context, run *box.Run) error {
	j.mu.Lock()
	j.starts++
	j.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

func (j *StalledJournal) FinishRun(ctx context.Context, run *box.Run) error {
	<-ctx.Done()
	return ctx.Err()
}

func (j *StalledJournal) ListRuns(ctx context.Context, limit int) ([]*box.Run, error) {
	return nil, nil
}

// Starts returns how many runs were started.
func (j *StalledJournal) Starts() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.starts
}
