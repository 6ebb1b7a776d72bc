package box

import (
	"errors"
	"fmt"
	"time"
)

// Retention returns scratch namespaces to empty. Cleanup is eventually
// consistent, not transactional: a failed removal is logged and left for the
// next sweep.
type Retention struct {
	area   ScratchArea
	logger Logger
}

// NewRetention creates a Retention over area.
func NewRetention(area ScratchArea, logger Logger) *Retention {
	return &Retention{area: area, logger: logger}
}

// Reconcile clears everything the run left in its namespace.
// It returns the number of artifacts removed.
func (r *Retention) Reconcile(runID string) int {
	removed, err := r.area.Clear(runID)
	if err != nil {
		r.logger.Warn("scratch reconcile incomplete", "run", runID, "removed", removed, "error", err)
		return removed
	}
	r.logger.Debug("scratch reconciled", "run", runID, "removed", removed)
	return removed
}

// Sweep clears every namespace that has seen no write since idleSince. It
// reclaims artifacts of runs that terminated abnormally without touching runs
// another process may still be executing.
func (r *Retention) Sweep(idleSince time.Time) (int, error) {
	runs, err := r.area.IdleRuns(idleSince)
	if err != nil {
		return 0, fmt.Errorf("listing scratch namespaces: %w", err)
	}

	total := 0
	var errs []error
	for _, runID := range runs {
		removed, err := r.area.Clear(runID)
		total += removed
		if err != nil {
			r.logger.Warn("scratch sweep incomplete", "run", runID, "error", err)
			errs = append(errs, err)
		}
	}

	r.logger.Info("scratch swept", "namespaces", len(runs), "removed", total)
	return total, errors.Join(errs...)
}
