package dto

import "time"

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// NewHealthResponse creates a healthy response stamped with the current time.
func NewHealthResponse() HealthResponse {
	return HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// MessageResponse is a generic message response.
type MessageResponse struct {
	Message string `json:"message"`
}

// BulkOperationResponse is the externally visible state of a bulk operation.
type BulkOperationResponse struct {
	OperationID string               `json:"operationId"`
	Operation   string               `json:"operation"`
	Status      string               `json:"status"`
	StartTime   string               `json:"startTime"`
	EndTime     *string              `json:"endTime,omitempty"`
	Progress    BulkProgressResponse `json:"progress"`
	Results     BulkResultsResponse  `json:"results"`
	DownloadURL string               `json:"downloadUrl,omitempty"`
}

// BulkProgressResponse reports how far an operation has come.
type BulkProgressResponse struct {
	Total        int     `json:"total"`
	Processed    int     `json:"processed"`
	Successful   int     `json:"successful"`
	Failed       int     `json:"failed"`
	CurrentPhase string  `json:"currentPhase"`
	Percentage   float64 `json:"percentage"`
	LastUpdate   string  `json:"lastUpdate"`
}

// BulkResultsResponse lists per-item outcomes.
type BulkResultsResponse struct {
	SuccessfulIDs []int64                  `json:"successfulIds"`
	FailedItems   []BulkFailedItemResponse `json:"failedItems"`
	Summary       string                   `json:"summary,omitempty"`
}

// BulkFailedItemResponse describes one item that could not be processed.
type BulkFailedItemResponse struct {
	TargetID     int64  `json:"targetId"`
	TargetLabel  string `json:"targetLabel"`
	ErrorMessage string `json:"errorMessage"`
	ErrorCode    string `json:"errorCode"`
}

// BulkOperationListResponse is returned by GET /api/bulk-operations.
type BulkOperationListResponse struct {
	Operations []BulkOperationResponse `json:"operations"`
	Count      int                     `json:"count"`
}
