package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eshaffer321/marketplace-backend/internal/api/dto"
	"github.com/eshaffer321/marketplace-backend/internal/api/middleware"
	"github.com/eshaffer321/marketplace-backend/internal/application/bulk"
)

const (
	defaultListLimit = 20
	maxListLimit     = 200
	maxBodyBytes     = 1 << 20
)

// BulkHandler handles bulk operation HTTP requests.
type BulkHandler struct {
	*Base
	service *bulk.Service
}

// NewBulkHandler creates a new bulk operation handler.
func NewBulkHandler(service *bulk.Service, logger *slog.Logger) *BulkHandler {
	return &BulkHandler{
		Base:    NewBase(logger),
		service: service,
	}
}

// Submit handles POST /api/bulk-operations - queues a new operation.
func (h *BulkHandler) Submit(w http.ResponseWriter, r *http.Request) {
	vendorID, ok := middleware.VendorID(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, dto.UnauthorizedError("vendor is required"))
		return
	}

	var body dto.CreateBulkOperationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid request body"))
		return
	}

	req, err := body.ToRequest()
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	st, err := h.service.Submit(r.Context(), vendorID, req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusAccepted, dto.ToBulkOperationResponse(st))
}

// List handles GET /api/bulk-operations - lists the vendor's operations.
func (h *BulkHandler) List(w http.ResponseWriter, r *http.Request) {
	vendorID, ok := middleware.VendorID(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, dto.UnauthorizedError("vendor is required"))
		return
	}

	limit := ParseIntParam(r, "limit", defaultListLimit)
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}

	states, err := h.service.List(r.Context(), vendorID, limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, dto.ToBulkOperationListResponse(states))
}

// GetStatus handles GET /api/bulk-operations/{operationId}.
func (h *BulkHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	st, ok := h.ownedOperation(w, r)
	if !ok {
		return
	}
	h.WriteJSON(w, http.StatusOK, dto.ToBulkOperationResponse(st))
}

// Cancel handles DELETE /api/bulk-operations/{operationId}.
func (h *BulkHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	st, ok := h.ownedOperation(w, r)
	if !ok {
		return
	}

	if err := h.service.Cancel(r.Context(), st.OperationID); err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, dto.MessageResponse{
		Message: "Bulk operation cancellation requested",
	})
}

// ownedOperation loads the operation named in the path. Operations of other
// vendors are reported as not found.
func (h *BulkHandler) ownedOperation(w http.ResponseWriter, r *http.Request) (bulk.State, bool) {
	vendorID, ok := middleware.VendorID(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, dto.UnauthorizedError("vendor is required"))
		return bulk.State{}, false
	}

	id := chi.URLParam(r, "operationId")
	if id == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("operation ID is required"))
		return bulk.State{}, false
	}

	st, err := h.service.GetStatus(r.Context(), id)
	if err == nil && st.VendorID != vendorID {
		err = bulk.ErrOperationNotFound
	}
	if err != nil {
		h.writeServiceError(w, err)
		return bulk.State{}, false
	}
	return st, true
}

// writeServiceError maps engine errors to HTTP responses.
func (h *BulkHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, bulk.ErrUnknownOperationType):
		h.WriteError(w, http.StatusBadRequest, dto.NewAPIError(dto.ErrCodeUnknownOperationType, err.Error()))
	case errors.Is(err, bulk.ErrMissingParameters):
		h.WriteError(w, http.StatusBadRequest, dto.NewAPIError(dto.ErrCodeMissingParameters, err.Error()))
	case errors.Is(err, bulk.ErrInvalidParameterValue):
		h.WriteError(w, http.StatusBadRequest, dto.NewAPIError(dto.ErrCodeInvalidParameterValue, err.Error()))
	case errors.Is(err, bulk.ErrTargetsNotFound):
		h.WriteError(w, http.StatusNotFound, dto.NewAPIError(dto.ErrCodeTargetsNotFound, err.Error()))
	case errors.Is(err, bulk.ErrOperationNotFound):
		h.WriteError(w, http.StatusNotFound, dto.NotFoundError("bulk operation"))
	case errors.Is(err, bulk.ErrOperationFinalized):
		h.WriteError(w, http.StatusConflict, dto.NewAPIError(dto.ErrCodeOperationFinalized, err.Error()))
	case errors.Is(err, bulk.ErrServiceClosed):
		h.WriteError(w, http.StatusServiceUnavailable, dto.NewAPIError(dto.ErrCodeUnavailable, err.Error()))
	default:
		h.logger.Error("bulk request failed", "error", err)
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
	}
}
