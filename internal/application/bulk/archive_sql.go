package bulk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/eshaffer321/marketplace-backend/internal/infrastructure/storage"
)

// SQLArchive stores terminal states in the bulk_operations table and expires
// them after ttl. A zero ttl keeps them forever.
type SQLArchive struct {
	repo storage.BulkOperationRepository
	ttl  time.Duration
}

// Compile-time checks
var (
	_ Archive       = (*SQLArchive)(nil)
	_ ArchiveLister = (*SQLArchive)(nil)
	_ ArchivePurger = (*SQLArchive)(nil)
)

// NewSQLArchive wraps a bulk operation repository.
func NewSQLArchive(repo storage.BulkOperationRepository, ttl time.Duration) *SQLArchive {
	return &SQLArchive{repo: repo, ttl: ttl}
}

// Save upserts the state.
func (a *SQLArchive) Save(ctx context.Context, st State) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode operation %s: %w", st.OperationID, err)
	}
	return a.repo.SaveBulkOperation(ctx, &storage.BulkOperationRecord{
		ID:         st.OperationID,
		VendorID:   st.VendorID,
		Operation:  string(st.Operation),
		Status:     string(st.Status),
		Payload:    payload,
		CreatedAt:  st.StartTime,
		FinishedAt: st.EndTime,
	})
}

// Load returns the archived state or ErrOperationNotFound.
func (a *SQLArchive) Load(ctx context.Context, id string) (*State, error) {
	rec, err := a.repo.GetBulkOperation(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrOperationNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if a.expired(rec) {
		return nil, fmt.Errorf("%w: %s", ErrOperationNotFound, id)
	}
	return decodeRecord(rec)
}

// ListByVendor returns the vendor's unexpired archived states, newest first.
func (a *SQLArchive) ListByVendor(ctx context.Context, vendorID int64, limit int) ([]State, error) {
	recs, err := a.repo.ListBulkOperations(ctx, vendorID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]State, 0, len(recs))
	for _, rec := range recs {
		if a.expired(rec) {
			continue
		}
		st, err := decodeRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, nil
}

// Purge deletes records older than ttl.
func (a *SQLArchive) Purge(ctx context.Context) (int64, error) {
	if a.ttl <= 0 {
		return 0, nil
	}
	return a.repo.DeleteBulkOperationsBefore(ctx, time.Now().Add(-a.ttl))
}

func (a *SQLArchive) expired(rec *storage.BulkOperationRecord) bool {
	return a.ttl > 0 && rec.FinishedAt != nil && rec.FinishedAt.Before(time.Now().Add(-a.ttl))
}

func decodeRecord(rec *storage.BulkOperationRecord) (*State, error) {
	var st State
	if err := json.Unmarshal(rec.Payload, &st); err != nil {
		return nil, fmt.Errorf("failed to decode operation %s: %w", rec.ID, err)
	}
	return &st, nil
}
