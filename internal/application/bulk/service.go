// Package bulk implements the bulk operation engine: a dispatcher that
// validates vendor requests, a registry that tracks progress, and a bounded
// worker pool that applies one operation kind to many products in batches.
package bulk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/eshaffer321/marketplace-backend/internal/domain/catalog"
	"github.com/eshaffer321/marketplace-backend/internal/infrastructure/config"
	"github.com/eshaffer321/marketplace-backend/internal/infrastructure/export"
)

// Catalog is the product and category store the engine reads and mutates.
type Catalog interface {
	FindByIDsForVendor(ctx context.Context, ids []int64, vendorID int64) ([]*catalog.Product, error)
	SaveProduct(ctx context.Context, p *catalog.Product) error
	DeleteProduct(ctx context.Context, id int64) error
	FindCategoryByID(ctx context.Context, id int64) (*catalog.Category, error)
}

// Defaults used when Options leaves a field zero. BatchPause is the value
// config ships with; a zero pause in Options is honored.
const (
	DefaultBatchSize         = 50
	DefaultBatchPause        = 100 * time.Millisecond
	DefaultMaxConcurrentJobs = 4
	DefaultJobTimeout        = 30 * time.Minute
	DefaultRetention         = 24 * time.Hour
	DefaultStaleThreshold    = 30 * time.Minute
	DefaultCleanupInterval   = 5 * time.Minute

	archiveTimeout = 5 * time.Second
)

// Options tunes the engine.
type Options struct {
	BatchSize         int
	BatchPause        time.Duration // zero disables the pause
	MaxConcurrentJobs int
	JobTimeout        time.Duration
	Retention         time.Duration
	StaleThreshold    time.Duration
	CleanupInterval   time.Duration
}

// OptionsFromConfig maps the bulk config section to Options.
func OptionsFromConfig(cfg config.BulkConfig) Options {
	return Options{
		BatchSize:         cfg.BatchSize,
		BatchPause:        cfg.BatchPause.Duration,
		MaxConcurrentJobs: cfg.MaxConcurrentJobs,
		JobTimeout:        cfg.JobTimeout.Duration,
		Retention:         cfg.Retention.Duration,
		StaleThreshold:    cfg.StaleThreshold.Duration,
		CleanupInterval:   cfg.CleanupInterval.Duration,
	}
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.BatchPause < 0 {
		o.BatchPause = 0
	}
	if o.MaxConcurrentJobs <= 0 {
		o.MaxConcurrentJobs = DefaultMaxConcurrentJobs
	}
	if o.JobTimeout <= 0 {
		o.JobTimeout = DefaultJobTimeout
	}
	if o.Retention <= 0 {
		o.Retention = DefaultRetention
	}
	if o.StaleThreshold <= 0 {
		o.StaleThreshold = DefaultStaleThreshold
	}
	if o.CleanupInterval <= 0 {
		o.CleanupInterval = DefaultCleanupInterval
	}
	return o
}

// operation is the worker's private view of a submitted job.
type operation struct {
	id        string
	vendorID  int64
	kind      Kind
	targetIDs []int64
	params    Parameters
	cancel    context.CancelCauseFunc
}

// Service is the bulk operation engine.
type Service struct {
	catalog   Catalog
	artifacts export.ArtifactStore
	registry  Registry
	archive   Archive
	logger    *slog.Logger
	opts      Options

	sem *semaphore.Weighted
	wg  sync.WaitGroup

	// Root of every job context; cancelled by Shutdown
	ctx    context.Context
	cancel context.CancelCauseFunc

	// Cancel functions of non-terminal operations, keyed by id
	running sync.Map

	closeMu sync.RWMutex
	closed  bool

	// Background cleanup
	cleanupStop chan struct{}
	cleanupDone chan struct{}
}

// NewService creates the engine. archive and artifacts may be nil.
func NewService(
	cat Catalog,
	artifacts export.ArtifactStore,
	registry Registry,
	archive Archive,
	logger *slog.Logger,
	opts Options,
) *Service {
	if registry == nil {
		registry = NewMemoryRegistry()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	opts = opts.withDefaults()

	ctx, cancel := context.WithCancelCause(context.Background())
	return &Service{
		catalog:   cat,
		artifacts: artifacts,
		registry:  registry,
		archive:   archive,
		logger:    logger,
		opts:      opts,
		sem:       semaphore.NewWeighted(int64(opts.MaxConcurrentJobs)),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Submit validates req, resolves its targets for vendorID and queues the operation.
// It returns the pending state immediately; the work happens in the background.
// The passed context bounds validation only, never the job.
func (s *Service) Submit(ctx context.Context, vendorID int64, req Request) (State, error) {
	if _, err := ParseKind(string(req.Operation)); err != nil {
		return State{}, err
	}
	if len(req.TargetIDs) == 0 {
		return State{}, fmt.Errorf("%w: targetIds must not be empty", ErrMissingParameters)
	}
	if req.Params == nil {
		return State{}, fmt.Errorf("%w: %s requires parameters", ErrMissingParameters, req.Operation)
	}
	if req.Params.Kind() != req.Operation {
		return State{}, fmt.Errorf("%w: %s requires %s parameters, got %s",
			ErrMissingParameters, req.Operation, req.Operation, req.Params.Kind())
	}
	if err := req.Params.Validate(); err != nil {
		return State{}, err
	}

	ids := dedupeIDs(req.TargetIDs)
	found, err := s.catalog.FindByIDsForVendor(ctx, ids, vendorID)
	if err != nil {
		return State{}, fmt.Errorf("failed to resolve targets: %w", err)
	}
	if len(found) != len(ids) {
		return State{}, missingTargets(ids, found)
	}

	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed {
		return State{}, ErrServiceClosed
	}

	now := time.Now()
	st := State{
		OperationID: uuid.NewString(),
		VendorID:    vendorID,
		Operation:   req.Operation,
		Status:      StatusPending,
		StartTime:   now,
		Progress: Progress{
			Total:        len(ids),
			CurrentPhase: PhaseQueued,
			LastUpdate:   now,
		},
		Results: Results{
			SuccessfulIDs: []int64{},
			FailedItems:   []FailedItem{},
		},
	}
	if err := s.registry.Create(st); err != nil {
		return State{}, err
	}

	// Job contexts derive from the service, not the request
	jobCtx, cancel := context.WithCancelCause(s.ctx)
	op := &operation{
		id:        st.OperationID,
		vendorID:  vendorID,
		kind:      req.Operation,
		targetIDs: ids,
		params:    req.Params,
		cancel:    cancel,
	}
	s.running.Store(op.id, op)

	s.wg.Add(1)
	go s.run(jobCtx, op)

	s.logger.Info("bulk operation queued",
		"operation_id", op.id,
		"vendor_id", vendorID,
		"operation", op.kind,
		"targets", len(ids),
	)

	return st.Clone(), nil
}

func missingTargets(ids []int64, found []*catalog.Product) error {
	have := make(map[int64]struct{}, len(found))
	for _, p := range found {
		have[p.ID] = struct{}{}
	}
	var missing []int64
	for _, id := range ids {
		if _, ok := have[id]; !ok {
			missing = append(missing, id)
		}
	}
	return &MissingTargetsError{Missing: missing}
}

// GetStatus returns the current state of an operation, falling back to the
// archive once it has left memory.
func (s *Service) GetStatus(ctx context.Context, operationID string) (State, error) {
	if st, ok := s.registry.Get(operationID); ok {
		return st, nil
	}
	if s.archive != nil {
		st, err := s.archive.Load(ctx, operationID)
		if err == nil {
			return *st, nil
		}
		if !errors.Is(err, ErrOperationNotFound) {
			return State{}, fmt.Errorf("failed to load archived operation: %w", err)
		}
	}
	return State{}, fmt.Errorf("%w: %s", ErrOperationNotFound, operationID)
}

// List returns a vendor's operations, newest first. Archived operations are
// included when the archive can enumerate them.
func (s *Service) List(ctx context.Context, vendorID int64, limit int) ([]State, error) {
	states := s.registry.List(vendorID)

	if lister, ok := s.archive.(ArchiveLister); ok {
		archived, err := lister.ListByVendor(ctx, vendorID, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to list archived operations: %w", err)
		}
		seen := make(map[string]struct{}, len(states))
		for _, st := range states {
			seen[st.OperationID] = struct{}{}
		}
		for _, st := range archived {
			if _, dup := seen[st.OperationID]; !dup {
				states = append(states, st)
			}
		}
		sortNewestFirst(states)
	}

	if limit > 0 && len(states) > limit {
		states = states[:limit]
	}
	return states, nil
}

// Cancel stops a pending or processing operation. The worker notices between
// items and finishes the operation as failed.
func (s *Service) Cancel(ctx context.Context, operationID string) error {
	st, err := s.GetStatus(ctx, operationID)
	if err != nil {
		return err
	}
	if st.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrOperationFinalized, operationID, st.Status)
	}

	v, ok := s.running.Load(operationID)
	if !ok {
		// Finished between the read and now
		return fmt.Errorf("%w: %s", ErrOperationFinalized, operationID)
	}
	v.(*operation).cancel(ErrCancelled)

	s.logger.Info("bulk operation cancel requested", "operation_id", operationID)
	return nil
}

// Shutdown stops accepting work, interrupts running jobs and waits for them
// to record their final state, or for ctx to expire.
func (s *Service) Shutdown(ctx context.Context) error {
	s.closeMu.Lock()
	s.closed = true
	s.closeMu.Unlock()

	s.StopBackgroundCleanup()
	s.cancel(ErrShuttingDown)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("bulk shutdown: %w", ctx.Err())
	}
}

// finalize moves an operation to a terminal state exactly once and archives it.
func (s *Service) finalize(op *operation, fn func(*State)) {
	now := time.Now()
	err := s.registry.Update(op.id, func(st *State) {
		fn(st)
		st.EndTime = &now
		st.Progress.LastUpdate = now
	})
	s.running.Delete(op.id)
	op.cancel(nil)

	if err != nil {
		// Already finalized elsewhere (stale sweep)
		s.logger.Debug("operation already finalized", "operation_id", op.id, "error", err)
		return
	}

	st, ok := s.registry.Get(op.id)
	if !ok {
		return
	}

	level := slog.LevelInfo
	if st.Status == StatusFailed {
		level = slog.LevelWarn
	}
	s.logger.Log(context.Background(), level, "bulk operation finished",
		"operation_id", st.OperationID,
		"vendor_id", st.VendorID,
		"operation", st.Operation,
		"status", st.Status,
		"successful", st.Progress.Successful,
		"failed", st.Progress.Failed,
		"total", st.Progress.Total,
		"duration", now.Sub(st.StartTime).Round(time.Millisecond),
	)

	s.archiveState(st)
}

func (s *Service) archiveState(st State) {
	if s.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()
	if err := s.archive.Save(ctx, st); err != nil {
		s.logger.Error("failed to archive bulk operation", "operation_id", st.OperationID, "error", err)
	}
}
