package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/your-org/itemservice/internal/domain"
	"github.com/your-org/itemservice/internal/middleware"
	"github.com/your-org/itemservice/internal/usecases"
)

// headerFailedItems carries the number of items a batch run left unprocessed
const headerFailedItems = "X-Failed-Items"

// ItemHandler handles HTTP requests for items
type ItemHandler struct {
	usecase *usecases.ItemUsecase
	logger  *zap.Logger
}

// NewItemHandler creates a new item handler
func NewItemHandler(usecase *usecases.ItemUsecase, logger *zap.Logger) *ItemHandler {
	return &ItemHandler{
		usecase: usecase,
		logger:  logger,
	}
}

// Routes mounts the CRUD endpoints
func (h *ItemHandler) Routes(r chi.Router) {
	r.Get("/api/items", h.ListItems)
	r.Post("/api/items", h.CreateItem)
	r.Get("/api/items/{id}", h.GetItem)
	r.Put("/api/items/{id}", h.UpdateItem)
	r.Delete("/api/items/{id}", h.DeleteItem)
}

// BatchRoutes mounts the batch endpoint. It belongs outside the request timeout:
// a run waits for every item.
func (h *ItemHandler) BatchRoutes(r chi.Router) {
	r.Get("/api/items/process", h.ProcessItems)
}

// ListItems handles GET /api/items
func (h *ItemHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	items, err := h.usecase.ListItems(r.Context())
	if err != nil {
		h.respondFailure(w, err, "failed to list items", requestID)
		return
	}

	h.respondJSON(w, http.StatusOK, items, requestID)
}

// CreateItem handles POST /api/items
func (h *ItemHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	var item domain.Item
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		h.logger.Warn("failed to decode request body",
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		h.respondError(w, http.StatusBadRequest, "invalid request body", requestID)
		return
	}

	saved, err := h.usecase.CreateItem(r.Context(), &item)
	if err != nil {
		h.respondFailure(w, err, "failed to create item", requestID)
		return
	}

	h.respondJSON(w, http.StatusCreated, saved, requestID)
}

// GetItem handles GET /api/items/{id}
func (h *ItemHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	id, ok := h.parseID(w, r, requestID)
	if !ok {
		return
	}

	item, err := h.usecase.GetItem(r.Context(), id)
	if err != nil {
		h.respondFailure(w, err, "failed to get item", requestID)
		return
	}

	h.respondJSON(w, http.StatusOK, item, requestID)
}

// UpdateItem handles PUT /api/items/{id}
func (h *ItemHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	id, ok := h.parseID(w, r, requestID)
	if !ok {
		return
	}

	var item domain.Item
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body", requestID)
		return
	}

	saved, err := h.usecase.UpdateItem(r.Context(), id, &item)
	if err != nil {
		h.respondFailure(w, err, "failed to update item", requestID)
		return
	}

	h.respondJSON(w, http.StatusOK, saved, requestID)
}

// DeleteItem handles DELETE /api/items/{id}
func (h *ItemHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	id, ok := h.parseID(w, r, requestID)
	if !ok {
		return
	}

	if err := h.usecase.DeleteItem(r.Context(), id); err != nil {
		h.respondFailure(w, err, "failed to delete item", requestID)
		return
	}

	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(http.StatusNoContent)
}

// ProcessItems handles GET /api/items/process.
// Responds with the processed items; a failed run yields 500 and an empty list.
func (h *ItemHandler) ProcessItems(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	result, err := h.usecase.ProcessItems(r.Context())
	if err != nil {
		h.logger.Error("failed to process items",
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		h.respondJSON(w, http.StatusInternalServerError, []*domain.Item{}, requestID)
		return
	}

	w.Header().Set(headerFailedItems, strconv.Itoa(len(result.Failures)))
	h.respondJSON(w, http.StatusOK, result.Items, requestID)
}

// parseID reads the {id} path parameter, answering 400 when it is not a positive integer
func (h *ItemHandler) parseID(w http.ResponseWriter, r *http.Request, requestID string) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		h.respondError(w, http.StatusBadRequest, "invalid id parameter: must be a positive integer", requestID)
		return 0, false
	}
	return id, true
}

// respondFailure maps a use case error to a status code
func (h *ItemHandler) respondFailure(w http.ResponseWriter, err error, message, requestID string) {
	switch {
	case domain.IsValidationError(err):
		h.respondError(w, http.StatusBadRequest, err.Error(), requestID)
	case errors.Is(err, domain.ErrItemNotFound):
		h.respondError(w, http.StatusNotFound, "item not found", requestID)
	case errors.Is(err, usecases.ErrTooManyRequests):
		h.respondError(w, http.StatusServiceUnavailable, "service busy", requestID)
	default:
		h.logger.Error(message,
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		h.respondError(w, http.StatusInternalServerError, message, requestID)
	}
}

// respondJSON sends a JSON response
func (h *ItemHandler) respondJSON(w http.ResponseWriter, status int, data interface{}, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response",
			zap.String("request_id", requestID),
			zap.Error(err),
		)
	}
}

// respondError sends an error response
func (h *ItemHandler) respondError(w http.ResponseWriter, status int, message, requestID string) {
	h.respondJSON(w, status, map[string]string{
		"error":      message,
		"request_id": requestID,
	}, requestID)
}
