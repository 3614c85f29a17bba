package dto

import (
	"time"

	"github.com/eshaffer321/marketplace-backend/internal/application/bulk"
)

// ToBulkOperationResponse converts an engine state to its API representation.
func ToBulkOperationResponse(st bulk.State) BulkOperationResponse {
	resp := BulkOperationResponse{
		OperationID: st.OperationID,
		Operation:   string(st.Operation),
		Status:      string(st.Status),
		StartTime:   st.StartTime.UTC().Format(time.RFC3339),
		Progress: BulkProgressResponse{
			Total:        st.Progress.Total,
			Processed:    st.Progress.Processed,
			Successful:   st.Progress.Successful,
			Failed:       st.Progress.Failed,
			CurrentPhase: st.Progress.CurrentPhase,
			Percentage:   st.Progress.Percentage,
			LastUpdate:   st.Progress.LastUpdate.UTC().Format(time.RFC3339),
		},
		Results: BulkResultsResponse{
			SuccessfulIDs: make([]int64, 0, len(st.Results.SuccessfulIDs)),
			FailedItems:   make([]BulkFailedItemResponse, 0, len(st.Results.FailedItems)),
			Summary:       st.Results.Summary,
		},
		DownloadURL: st.DownloadURL,
	}

	if st.EndTime != nil {
		endTime := st.EndTime.UTC().Format(time.RFC3339)
		resp.EndTime = &endTime
	}

	resp.Results.SuccessfulIDs = append(resp.Results.SuccessfulIDs, st.Results.SuccessfulIDs...)
	for _, item := range st.Results.FailedItems {
		resp.Results.FailedItems = append(resp.Results.FailedItems, BulkFailedItemResponse{
			TargetID:     item.TargetID,
			TargetLabel:  item.TargetLabel,
			ErrorMessage: item.ErrorMessage,
			ErrorCode:    item.ErrorCode,
		})
	}

	return resp
}

// ToBulkOperationListResponse converts a list of states.
func ToBulkOperationListResponse(states []bulk.State) BulkOperationListResponse {
	resp := BulkOperationListResponse{
		Operations: make([]BulkOperationResponse, 0, len(states)),
		Count:      len(states),
	}
	for _, st := range states {
		resp.Operations = append(resp.Operations, ToBulkOperationResponse(st))
	}
	return resp
}
