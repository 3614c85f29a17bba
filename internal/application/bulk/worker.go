package bulk

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/eshaffer321/marketplace-backend/internal/domain/catalog"
)

// run drives one operation from pending to a terminal state.
func (s *Service) run(ctx context.Context, op *operation) {
	defer s.wg.Done()

	// Wait for a slot; the operation stays pending meanwhile
	if err := s.sem.Acquire(ctx, 1); err != nil {
		s.failInterrupted(ctx, op)
		return
	}
	defer s.sem.Release(1)

	ctx, cancelTimeout := context.WithTimeoutCause(ctx, s.opts.JobTimeout, ErrJobTimeout)
	defer cancelTimeout()

	if err := s.registry.Update(op.id, func(st *State) {
		st.Status = StatusProcessing
		st.Progress.CurrentPhase = op.kind.Phase()
		st.Progress.LastUpdate = time.Now()
	}); err != nil {
		s.running.Delete(op.id)
		return
	}

	logger := s.logger.With("operation_id", op.id, "vendor_id", op.vendorID, "operation", op.kind)
	logger.Info("bulk operation started", "targets", len(op.targetIDs))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("bulk operation panicked", "panic", r, "stack", string(debug.Stack()))
			s.fail(op, fmt.Sprintf("Operation aborted by an internal error: %v", r))
		}
	}()

	h, err := s.newHandler(op)
	if err != nil {
		s.fail(op, err.Error())
		return
	}
	if err := h.Prepare(ctx); err != nil {
		logger.Warn("bulk operation precondition failed", "error", err)
		s.fail(op, fmt.Sprintf("Operation failed before processing: %v", err))
		return
	}

	total := len(op.targetIDs)
	for start := 0; start < total; start += s.opts.BatchSize {
		end := min(start+s.opts.BatchSize, total)
		if !s.runBatch(ctx, op, h, op.targetIDs[start:end]) {
			s.failInterrupted(ctx, op)
			return
		}

		logger.Debug("batch processed", "batch_start", start, "batch_end", end, "total", total)

		if end < total && s.opts.BatchPause > 0 {
			select {
			case <-ctx.Done():
				s.failInterrupted(ctx, op)
				return
			case <-time.After(s.opts.BatchPause):
			}
		}
	}

	s.touch(op, PhaseFinishing)

	var finished State
	if st, ok := s.registry.Get(op.id); ok {
		finished = st
	}
	if err := h.Finish(ctx, &finished); err != nil {
		logger.Warn("bulk operation finish step failed", "error", err)
		s.fail(op, fmt.Sprintf("Operation failed after processing %d items: %v", total, err))
		return
	}

	s.finalize(op, func(st *State) {
		st.Status = StatusCompleted
		st.Progress.CurrentPhase = PhaseCompleted
		st.Results.Summary = h.Summary(st.Progress.Successful, st.Progress.Total)
		st.DownloadURL = finished.DownloadURL
	})
}

// runBatch applies the handler to each id in the batch. It returns false when
// the context ended before every item ran.
func (s *Service) runBatch(ctx context.Context, op *operation, h itemHandler, ids []int64) bool {
	if ctx.Err() != nil {
		return false
	}

	// Reload so each batch sees current data
	products, err := s.catalog.FindByIDsForVendor(ctx, ids, op.vendorID)
	if err != nil && ctx.Err() != nil {
		return false
	}
	byID := make(map[int64]*catalog.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			return false
		}

		p, ok := byID[id]
		var itemErr error
		switch {
		case err != nil:
			itemErr = fmt.Errorf("failed to load product: %w", err)
		case !ok:
			itemErr = errProductGone
		default:
			itemErr = h.Apply(ctx, p)
		}

		label := fmt.Sprintf("#%d", id)
		if ok {
			label = p.Label()
		}
		s.recordItem(op, id, label, h.ErrorCode(), itemErr)
	}
	return true
}

// recordItem updates counters and results for one item in a single registry
// write, so Processed always equals Successful + Failed.
func (s *Service) recordItem(op *operation, id int64, label, code string, itemErr error) {
	_ = s.registry.Update(op.id, func(st *State) {
		if itemErr == nil {
			st.Results.SuccessfulIDs = append(st.Results.SuccessfulIDs, id)
			st.Progress.Successful++
		} else {
			st.Results.FailedItems = append(st.Results.FailedItems, FailedItem{
				TargetID:     id,
				TargetLabel:  label,
				ErrorMessage: itemErr.Error(),
				ErrorCode:    code,
			})
			st.Progress.Failed++
		}
		st.Progress.Processed++
		st.Progress.recompute()
		st.Progress.LastUpdate = time.Now()
	})
}

func (s *Service) touch(op *operation, phase string) {
	_ = s.registry.Update(op.id, func(st *State) {
		st.Progress.CurrentPhase = phase
		st.Progress.LastUpdate = time.Now()
	})
}

func (s *Service) fail(op *operation, summary string) {
	s.finalize(op, func(st *State) {
		st.Status = StatusFailed
		st.Progress.CurrentPhase = PhaseFailed
		st.Results.Summary = summary
	})
}

// failInterrupted ends an operation whose context was cancelled, naming the cause.
func (s *Service) failInterrupted(ctx context.Context, op *operation) {
	cause := context.Cause(ctx)
	if cause == nil || errors.Is(cause, context.Canceled) {
		cause = ErrCancelled
	}
	if errors.Is(cause, context.DeadlineExceeded) {
		cause = ErrJobTimeout
	}

	s.finalize(op, func(st *State) {
		if st.Status == StatusPending {
			st.Results.Summary = fmt.Sprintf("%s before processing started", cause)
		} else {
			st.Results.Summary = fmt.Sprintf("%s after %d of %d items", cause, st.Progress.Processed, st.Progress.Total)
		}
		st.Status = StatusFailed
		st.Progress.CurrentPhase = PhaseFailed
	})
}
