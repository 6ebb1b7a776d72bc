package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"photobox/internal/archive"
	"photobox/internal/box"
	"photobox/internal/config"
	"photobox/internal/database"
	"photobox/internal/dispatch"
	"photobox/internal/encryption"
	"photobox/internal/httpapi"
	"photobox/internal/scratch"
)

// PhotoboxApp is the application layer between the CLI and IntakeService.
// It constructs all dependencies from config, exposes the operations the CLI
// needs, and manages the store lifecycle on Close.
type PhotoboxApp struct {
	cfg     *config.Config
	store   database.Store
	service *box.IntakeService
	clock   box.Clock
	op      *Operation
	logger  box.Logger
	logFile *os.File
}

// New creates a fully wired PhotoboxApp from the given config.
// operation identifies the CLI command being run (e.g. "serve", "history").
// The caller must call Close when done.
func New(ctx context.Context, cfg *config.Config, operation string) (*PhotoboxApp, error) {
	clock := box.RealClock{}
	op := NewOperation(operation, clock.Now())

	l, logFile, err := newLogger(cfg.LogDir, cfg.InstanceID+"/"+op.ID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: l.With("op", op.Name)}

	a, err := wire(ctx, cfg, clock, logger)
	if err != nil {
		logFile.Close()
		return nil, err
	}
	a.op = op
	a.logFile = logFile
	return a, nil
}

// wire builds every collaborator of the intake service. Nothing is leaked on error.
func wire(ctx context.Context, cfg *config.Config, clock box.Clock, logger box.Logger) (*PhotoboxApp, error) {
	store, err := database.NewStoreFromConfig(ctx, cfg.Database, cfg.InstanceID, clock)
	if err != nil {
		return nil, fmt.Errorf("creating store: %w", err)
	}

	if err := store.CheckMigrations(); err != nil {
		store.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	area, err := scratch.NewScratchAreaFromConfig(cfg.Scratch, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating scratch area: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Dispatch.Encryption)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	dispatcher, err := dispatch.NewDispatcherFromConfig(ctx, cfg.Dispatch, enc, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating dispatcher: %w", err)
	}

	svc := box.NewIntakeService(store, area, archive.NewZipBuilder(logger), dispatcher,
		logger, clock, box.UUIDGenerator{},
		box.WithJournal(store),
		box.WithTimeouts(box.Timeouts{
			Persist:  cfg.Timeouts.Persist.Duration,
			Dispatch: cfg.Timeouts.Dispatch.Duration,
		}),
	)

	return &PhotoboxApp{
		cfg:     cfg,
		store:   store,
		service: svc,
		clock:   clock,
		logger:  logger,
	}, nil
}

// Handler returns the HTTP surface backed by this app's intake service.
func (a *PhotoboxApp) Handler() http.Handler {
	return httpapi.NewRouter(a.service, a.logger, a.cfg.Server.MaxUploadBytes)
}

// Sweep clears the scratch namespaces left behind by an earlier process.
// Namespaces written within the last sweepGrace may belong to a live server
// sharing the scratch directory and are left alone. Returns the number of
// artifacts removed.
func (a *PhotoboxApp) Sweep() (int, error) {
	n, err := a.service.Retention().Sweep(a.clock.Now().Add(-a.sweepGrace()))
	if err != nil {
		return n, fmt.Errorf("sweeping scratch area: %w", err)
	}
	return n, nil
}

// FindRecords returns every record carrying fingerprint, oldest first.
func (a *PhotoboxApp) FindRecords(ctx context.Context, fingerprint string) ([]*box.Record, error) {
	return a.store.FindByFingerprint(ctx, fingerprint)
}

// ListRecords returns the most recent records. A non-positive limit returns all.
func (a *PhotoboxApp) ListRecords(ctx context.Context, limit int) ([]*box.Record, error) {
	return a.store.ListRecords(ctx, limit)
}

// GetHistory returns the most recent pipeline runs.
func (a *PhotoboxApp) GetHistory(ctx context.Context, limit int) ([]*box.Run, error) {
	return a.service.History(ctx, limit)
}

// Close waits for in-flight runs, then closes the store and the log file.
func (a *PhotoboxApp) Close() error {
	var errs []error

	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
	defer cancel()
	if err := a.service.Drain(ctx); err != nil {
		errs = append(errs, err)
	}

	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing store: %w", err))
	}

	if a.op != nil {
		a.logger.Debug("operation finished", "elapsed", a.op.Elapsed(a.clock.Now()).String())
	}
	if a.logFile != nil {
		a.logFile.Close()
	}

	return errors.Join(errs...)
}

// sweepGrace is the longest a run can go without writing to its namespace:
// both stage bounds plus the shutdown window. A disabled bound counts at its
// default.
func (a *PhotoboxApp) sweepGrace() time.Duration {
	persist := a.cfg.Timeouts.Persist.Duration
	if persist <= 0 {
		persist = box.DefaultPersistTimeout
	}
	dispatch := a.cfg.Timeouts.Dispatch.Duration
	if dispatch <= 0 {
		dispatch = box.DefaultDispatchTimeout
	}
	return persist + dispatch + a.shutdownTimeout()
}

func (a *PhotoboxApp) shutdownTimeout() time.Duration {
	if d := a.cfg.Server.ShutdownTimeout.Duration; d > 0 {
		return d
	}
	return 15 * time.Second
}
