package table

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"tableside/internal/apperrors"
	"tableside/internal/httputil"
	"tableside/internal/logger"
	"tableside/internal/models"
)

// Handler handles HTTP requests for tables
type Handler struct {
	service *Service
	logger  *logger.Logger
}

// NewHandler creates a new table handler
func NewHandler(service *Service, log *logger.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  log,
	}
}

// Routes mounts the table endpoints
func (h *Handler) Routes(r chi.Router) {
	r.Get("/tables", h.ListTables)
	r.Get("/tables/{tableID}", h.GetTable)
	r.Patch("/tables/{tableID}", h.SetStatus)
}

type setStatusRequest struct {
	Status models.TableStatus `json:"status"`
}

// ListTables handles GET /tables (staff session)
func (h *Handler) ListTables(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	restaurantID, err := httputil.RestaurantID(r)
	if err != nil {
		httputil.WriteError(w, err, requestID)
		return
	}

	tables, err := h.service.ListByRestaurant(r.Context(), restaurantID)
	if err != nil {
		httputil.WriteError(w, err, requestID)
		return
	}
	if tables == nil {
		tables = []models.Table{}
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"tables": tables})
}

// GetTable handles GET /tables/{tableID}
func (h *Handler) GetTable(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	restaurantID, err := httputil.RestaurantID(r)
	if err != nil {
		httputil.WriteError(w, err, requestID)
		return
	}

	tableID, err := uuid.Parse(chi.URLParam(r, "tableID"))
	if err != nil {
		httputil.WriteError(w, apperrors.Validation("invalid table id"), requestID)
		return
	}

	table, err := h.service.Get(r.Context(), tableID)
	if err != nil {
		httputil.WriteError(w, err, requestID)
		return
	}
	if table.RestaurantID != restaurantID {
		httputil.WriteError(w, apperrors.ErrForbidden, requestID)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, table)
}

// SetStatus handles PATCH /tables/{tableID} (staff session)
func (h *Handler) SetStatus(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	restaurantID, err := httputil.RestaurantID(r)
	if err != nil {
		httputil.WriteError(w, err, requestID)
		return
	}

	tableID, err := uuid.Parse(chi.URLParam(r, "tableID"))
	if err != nil {
		httputil.WriteError(w, apperrors.Validation("invalid table id"), requestID)
		return
	}

	var req setStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, apperrors.Validation("invalid JSON body"), requestID)
		return
	}
	if req.Status != models.TableFree && req.Status != models.TableOccupied {
		httputil.WriteError(w, apperrors.Validation("status must be one of: free, occupied"), requestID)
		return
	}

	if err := h.service.SetStatus(r.Context(), tableID, restaurantID, req.Status, requestID); err != nil {
		h.logger.Error("table_status_failed", "Failed to set table status", requestID, err, map[string]interface{}{
			"table_id": tableID,
			"status":   req.Status,
		})
		httputil.WriteError(w, err, requestID)
		return
	}

	table, err := h.service.Get(r.Context(), tableID)
	if err != nil {
		httputil.WriteError(w, err, requestID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, table)
}
