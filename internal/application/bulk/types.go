package bulk

import (
	"fmt"
	"math"
	"time"
)

// Kind identifies one of the supported bulk operations.
type Kind string

const (
	KindStatusChange       Kind = "status_change"
	KindPriceUpdate        Kind = "price_update"
	KindStockUpdate        Kind = "stock_update"
	KindCategoryAssignment Kind = "category_assignment"
	KindTagManagement      Kind = "tag_management"
	KindExport             Kind = "export"
	KindDelete             Kind = "delete"
)

// Kinds lists every supported operation.
var Kinds = []Kind{
	KindStatusChange,
	KindPriceUpdate,
	KindStockUpdate,
	KindCategoryAssignment,
	KindTagManagement,
	KindExport,
	KindDelete,
}

// ParseKind validates an operation name.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownOperationType, s)
}

// Phase is the progress label shown while the operation runs.
func (k Kind) Phase() string {
	switch k {
	case KindStatusChange:
		return "Updating status"
	case KindPriceUpdate:
		return "Updating prices"
	case KindStockUpdate:
		return "Updating stock"
	case KindCategoryAssignment:
		return "Assigning category"
	case KindTagManagement:
		return "Updating tags"
	case KindExport:
		return "Exporting products"
	case KindDelete:
		return "Deleting products"
	default:
		return "Processing"
	}
}

// Status is the lifecycle state of an operation. Transitions only move forward.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Progress phases outside of the per-kind labels
const (
	PhaseQueued    = "queued"
	PhaseFinishing = "finishing"
	PhaseCompleted = "completed"
	PhaseFailed    = "failed"
)

// Request is a validated submission.
type Request struct {
	Operation Kind
	TargetIDs []int64
	Params    Parameters
}

// Progress tracks how far an operation has got.
type Progress struct {
	Total        int       `json:"total"`
	Processed    int       `json:"processed"`
	Successful   int       `json:"successful"`
	Failed       int       `json:"failed"`
	CurrentPhase string    `json:"currentPhase"`
	Percentage   float64   `json:"percentage"`
	LastUpdate   time.Time `json:"lastUpdate"`
}

func (p *Progress) recompute() {
	if p.Total == 0 {
		p.Percentage = 0
		return
	}
	p.Percentage = math.Round(float64(p.Processed)*10000/float64(p.Total)) / 100
}

// FailedItem records why a single target could not be processed.
type FailedItem struct {
	TargetID     int64  `json:"targetId"`
	TargetLabel  string `json:"targetLabel"`
	ErrorMessage string `json:"errorMessage"`
	ErrorCode    string `json:"errorCode"`
}

// Results accumulates per-item outcomes.
type Results struct {
	SuccessfulIDs []int64      `json:"successfulIds"`
	FailedItems   []FailedItem `json:"failedItems"`
	Summary       string       `json:"summary"`
}

// State is the registry entry for one operation.
type State struct {
	OperationID string     `json:"operationId"`
	VendorID    int64      `json:"vendorId"`
	Operation   Kind       `json:"operation"`
	Status      Status     `json:"status"`
	StartTime   time.Time  `json:"startTime"`
	EndTime     *time.Time `json:"endTime,omitempty"`
	Progress    Progress   `json:"progress"`
	Results     Results    `json:"results"`
	DownloadURL string     `json:"downloadUrl,omitempty"`
}

// Clone returns a deep copy that shares no slices with s.
func (s State) Clone() State {
	c := s
	if s.EndTime != nil {
		t := *s.EndTime
		c.EndTime = &t
	}
	c.Results.SuccessfulIDs = append([]int64{}, s.Results.SuccessfulIDs...)
	c.Results.FailedItems = append([]FailedItem{}, s.Results.FailedItems...)
	return c
}

// dedupeIDs drops repeated ids, keeping the first occurrence.
func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
