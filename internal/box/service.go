package box

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Default bounds for the external round-trips of a run.
const (
	DefaultPersistTimeout  = 10 * time.Second
	DefaultDispatchTimeout = 60 * time.Second
)

// journalFinishTimeout bounds the final journal write when the persist
// bound is disabled.
const journalFinishTimeout = 5 * time.Second

// Timeouts bounds the persistence and dispatch round-trips. A zero value
// disables the bound for that stage.
type Timeouts struct {
	Persist  time.Duration
	Dispatch time.Duration
}

// Option configures an IntakeService.
type Option func(*IntakeService)

// WithJournal records every run in j.
func WithJournal(j RunJournal) Option {
	return func(s *IntakeService) { s.journal = j }
}

// WithTimeouts overrides the default stage timeouts.
func WithTimeouts(t Timeouts) Option {
	return func(s *IntakeService) { s.timeouts = t }
}

// IntakeService is the orchestration layer for submissions. Each call to
// Submit is one independent pipeline run with its own scratch namespace.
type IntakeService struct {
	records    RecordStore
	area       ScratchArea
	builder    ArchiveBuilder
	dispatcher Dispatcher
	retention  *Retention
	journal    RunJournal
	logger     Logger
	clock      Clock
	idgen      IDGenerator
	timeouts   Timeouts
	inflight   sync.WaitGroup
}

// NewIntakeService creates an IntakeService with the provided dependencies.
func NewIntakeService(records RecordStore, area ScratchArea, builder ArchiveBuilder, dispatcher Dispatcher, logger Logger, clock Clock, idgen IDGenerator, opts ...Option) *IntakeService {
	s := &IntakeService{
		records:    records,
		area:       area,
		builder:    builder,
		dispatcher: dispatcher,
		retention:  NewRetention(area, logger),
		logger:     logger,
		clock:      clock,
		idgen:      idgen,
		timeouts: Timeouts{
			Persist:  DefaultPersistTimeout,
			Dispatch: DefaultDispatchTimeout,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Retention exposes the service's reconciler, used for the startup sweep.
func (s *IntakeService) Retention() *Retention {
	return s.retention
}

// run tracks the state of one pipeline execution.
type run struct {
	id     string
	state  State
	logger Logger
}

func (r *run) advance(next State) {
	r.logger.Debug("run state", "run", r.id, "from", r.state.String(), "to", next.String())
	r.state = next
}

func (r *run) fail(stage State, kind, cause error) error {
	r.logger.Error("run failed", "run", r.id, "stage", stage.String(), "error", cause)
	r.state = StateFailed
	return &PipelineError{Stage: stage, Kind: kind, Err: cause}
}

// Submit runs one submission through the pipeline. On failure the returned
// error is a *PipelineError. Invalid submissions are rejected before any
// store is touched. Otherwise the run's scratch namespace is reconciled
// before Submit returns, whatever the outcome.
func (s *IntakeService) Submit(ctx context.Context, sub *Submission) (*Result, error) {
	s.inflight.Add(1)
	defer s.inflight.Done()

	r := &run{id: s.idgen.New(), state: StateReceived, logger: s.logger}
	uploadName, err := validate(sub)
	if err != nil {
		return nil, r.fail(StateReceived, ErrValidation, err)
	}

	started := s.clock.Now()
	s.startJournal(ctx, r, started)

	var result *Result
	func() {
		defer s.retention.Reconcile(r.id)
		result, err = s.execute(ctx, r, sub, uploadName)
	}()

	s.finishJournal(ctx, r, err)
	if err == nil {
		s.logger.Info("run completed", "run", r.id, "archive", result.ArchiveName,
			"duration", s.clock.Now().Sub(started).String())
	}
	return result, err
}

func (s *IntakeService) execute(ctx context.Context, r *run, sub *Submission, uploadName string) (*Result, error) {
	// Received -> Fingerprinted
	fp := Fingerprint(sub.AccountAddress, sub.Nickname, sub.Comment)
	r.advance(StateFingerprinted)

	// Fingerprinted -> Persisted
	if err := s.persist(ctx, fp); err != nil {
		return nil, r.fail(StatePersisted, ErrPersistence, err)
	}
	r.advance(StatePersisted)

	// Persisted -> Archived
	if err := s.stageArtifacts(r.id, sub, uploadName, fp); err != nil {
		return nil, r.fail(StateArchived, ErrArchive, err)
	}
	builtAt := s.clock.Now()
	archive, err := s.builder.Build(ctx, s.area, r.id, ArchiveName(builtAt), builtAt)
	if err != nil {
		return nil, r.fail(StateArchived, ErrArchive, err)
	}
	r.advance(StateArchived)

	// Archived -> Dispatched
	if err := s.dispatch(ctx, r.id, archive); err != nil {
		return nil, r.fail(StateDispatched, ErrDispatch, err)
	}
	r.advance(StateDispatched)

	r.advance(StateCompleted)
	return &Result{
		RunID:       r.id,
		Fingerprint: fp,
		Message:     CompletedMessage,
		ArchiveName: archive.Name,
		TokenID:     "",
	}, nil
}

func validate(sub *Submission) (string, error) {
	if sub == nil {
		return "", errors.New("submission is required")
	}
	if sub.Upload == nil || sub.Upload.Content == nil {
		return "", errors.New("file is required")
	}
	name, err := ArtifactName(sub.Upload.Name)
	if err != nil {
		return "", fmt.Errorf("file name: %w", err)
	}
	return name, nil
}

func (s *IntakeService) persist(ctx context.Context, fp string) error {
	ctx, cancel := withTimeout(ctx, s.timeouts.Persist)
	defer cancel()

	rec, err := s.records.Persist(ctx, fp)
	if err != nil {
		return err
	}
	s.logger.Debug("record persisted", "id", rec.ID, "fingerprint", fp)
	return nil
}

// stageArtifacts writes the uploaded file first and the generated text files
// after it, so a generated name always wins over an upload of the same name.
func (s *IntakeService) stageArtifacts(runID string, sub *Submission, uploadName, fp string) error {
	if _, err := s.area.Stage(runID, uploadName, sub.Upload.Content); err != nil {
		return fmt.Errorf("staging %s: %w", uploadName, err)
	}

	texts := []struct {
		name    string
		content string
	}{
		{NicknameArtifact, sub.Nickname},
		{CommentArtifact, sub.Comment},
		{HashArtifact, fp},
	}
	for _, t := range texts {
		if _, err := s.area.Stage(runID, t.name, strings.NewReader(t.content)); err != nil {
			return fmt.Errorf("staging %s: %w", t.name, err)
		}
	}
	return nil
}

func (s *IntakeService) dispatch(ctx context.Context, runID string, archive *Archive) error {
	content, err := s.area.Open(runID, archive.Name)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer content.Close()

	ctx, cancel := withTimeout(ctx, s.timeouts.Dispatch)
	defer cancel()

	return s.dispatcher.Send(ctx, archive, content)
}

func (s *IntakeService) startJournal(ctx context.Context, r *run, started time.Time) {
	if s.journal == nil {
		return
	}
	ctx, cancel := withTimeout(ctx, s.timeouts.Persist)
	defer cancel()

	err := s.journal.StartRun(ctx, &Run{RunID: r.id, StartedAt: started, State: r.state.String()})
	if err != nil {
		s.logger.Warn("journal start failed", "run", r.id, "error", err)
	}
}

func (s *IntakeService) finishJournal(ctx context.Context, r *run, runErr error) {
	if s.journal == nil {
		return
	}
	entry := &Run{RunID: r.id, FinishedAt: s.clock.Now(), State: r.state.String()}
	var perr *PipelineError
	if errors.As(runErr, &perr) {
		entry.FailedStage = perr.Stage.String()
		entry.Error = perr.Message()
	}

	// The caller may already be gone; the journal entry should still land.
	bound := s.timeouts.Persist
	if bound <= 0 {
		bound = journalFinishTimeout
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bound)
	defer cancel()
	if err := s.journal.FinishRun(ctx, entry); err != nil {
		s.logger.Warn("journal finish failed", "run", r.id, "error", err)
	}
}

// Drain blocks until every in-flight run has returned or ctx is done.
func (s *IntakeService) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("draining runs: %w", ctx.Err())
	}
}

// History returns the most recent runs recorded by the journal.
func (s *IntakeService) History(ctx context.Context, limit int) ([]*Run, error) {
	if s.journal == nil {
		return nil, errors.New("no run journal configured")
	}
	runs, err := s.journal.ListRuns(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
