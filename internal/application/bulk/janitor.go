package bulk

import (
	"context"
	"fmt"
	"time"
)

// EvictFinished drops terminal operations older than the retention window from
// memory. Archived copies stay readable through GetStatus.
func (s *Service) EvictFinished(maxAge time.Duration) int {
	removed := s.registry.Evict(maxAge)
	if removed > 0 {
		s.logger.Debug("evicted finished bulk operations", "removed", removed)
	}
	return removed
}

// MarkStaleOperationsAsFailed fails processing operations whose progress has
// not moved for staleThreshold. Their context is cancelled in case the
// goroutine is still alive.
func (s *Service) MarkStaleOperationsAsFailed(staleThreshold time.Duration) int {
	now := time.Now()
	var stale []State
	s.registry.Range(func(st State) bool {
		if st.Status == StatusProcessing && now.Sub(st.Progress.LastUpdate) > staleThreshold {
			stale = append(stale, st)
		}
		return true
	})

	marked := 0
	for _, st := range stale {
		v, ok := s.running.Load(st.OperationID)
		if !ok {
			continue
		}
		op := v.(*operation)
		op.cancel(ErrStale)

		reason := fmt.Sprintf("no progress for %v", now.Sub(st.Progress.LastUpdate).Round(time.Second))
		s.finalize(op, func(cur *State) {
			cur.Status = StatusFailed
			cur.Progress.CurrentPhase = PhaseFailed
			cur.Results.Summary = fmt.Sprintf("%s after %d of %d items (%s)", ErrStale, cur.Progress.Processed, cur.Progress.Total, reason)
		})

		s.logger.Warn("marked stale bulk operation as failed",
			"operation_id", st.OperationID,
			"reason", reason,
			"last_update", st.Progress.LastUpdate,
		)
		marked++
	}
	return marked
}

// purgeArchive expires archived operations for archives without native TTLs.
func (s *Service) purgeArchive(ctx context.Context) {
	purger, ok := s.archive.(ArchivePurger)
	if !ok {
		return
	}
	n, err := purger.Purge(ctx)
	if err != nil {
		s.logger.Error("failed to purge bulk archive", "error", err)
		return
	}
	if n > 0 {
		s.logger.Debug("purged archived bulk operations", "removed", n)
	}
}

// StartBackgroundCleanup starts a goroutine that periodically:
// 1. Marks stale operations as failed
// 2. Evicts finished operations past retention
// 3. Purges the archive when it has no native expiry
//
// Call StopBackgroundCleanup (or Shutdown) to stop it.
func (s *Service) StartBackgroundCleanup() {
	s.cleanupStop = make(chan struct{})
	s.cleanupDone = make(chan struct{})

	go func() {
		defer close(s.cleanupDone)

		ticker := time.NewTicker(s.opts.CleanupInterval)
		defer ticker.Stop()

		s.logger.Info("bulk cleanup started",
			"check_interval", s.opts.CleanupInterval,
			"stale_threshold", s.opts.StaleThreshold,
			"retention", s.opts.Retention,
		)

		for {
			select {
			case <-s.cleanupStop:
				s.logger.Info("bulk cleanup stopped")
				return
			case <-ticker.C:
				if n := s.MarkStaleOperationsAsFailed(s.opts.StaleThreshold); n > 0 {
					s.logger.Info("marked stale bulk operations as failed", "count", n)
				}
				s.EvictFinished(s.opts.Retention)

				ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
				s.purgeArchive(ctx)
				cancel()
			}
		}
	}()
}

// StopBackgroundCleanup stops the cleanup goroutine and waits for it to exit.
func (s *Service) StopBackgroundCleanup() {
	if s.cleanupStop == nil {
		return
	}
	select {
	case <-s.cleanupStop:
	default:
		close(s.cleanupStop)
	}
	<-s.cleanupDone
}
