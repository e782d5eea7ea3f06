package admission

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"tableside/internal/apperrors"
	"tableside/internal/httputil"
	"tableside/internal/logger"
)

// Handler handles HTTP requests for admission and quota checks
type Handler struct {
	service *Service
	logger  *logger.Logger
}

// NewHandler creates a new admission handler
func NewHandler(service *Service, log *logger.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  log,
	}
}

// Routes mounts the admission endpoints
func (h *Handler) Routes(r chi.Router) {
	r.Post("/admissions", h.Admit)
	r.Post("/menu/items/{itemID}/activate", h.ActivateMenuItem)
	r.Post("/menu/categories/{categoryID}/activate", h.ActivateMenuCategory)
}

type admitRequest struct {
	VisitorID uuid.UUID `json:"visitor_id"`
}

// Admit handles POST /admissions
func (h *Handler) Admit(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	restaurantID, err := httputil.RestaurantID(r)
	if err != nil {
		httputil.WriteError(w, err, requestID)
		return
	}

	var req admitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, apperrors.Validation("invalid JSON body"), requestID)
		return
	}
	if req.VisitorID == uuid.Nil {
		httputil.WriteError(w, apperrors.Validation("visitor_id is required"), requestID)
		return
	}

	result, err := h.service.Admit(r.Context(), restaurantID, req.VisitorID, requestID)
	if err != nil {
		httputil.WriteError(w, err, requestID)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}

// ActivateMenuItem handles POST /menu/items/{itemID}/activate
func (h *Handler) ActivateMenuItem(w http.ResponseWriter, r *http.Request) {
	h.activate(w, r, "itemID", h.service.ActivateMenuItem)
}

// ActivateMenuCategory handles POST /menu/categories/{categoryID}/activate
func (h *Handler) ActivateMenuCategory(w http.ResponseWriter, r *http.Request) {
	h.activate(w, r, "categoryID", h.service.ActivateMenuCategory)
}

func (h *Handler) activate(w http.ResponseWriter, r *http.Request, param string, fn func(ctx context.Context, restaurantID, entityID uuid.UUID) error) {
	requestID := logger.GenerateRequestID()

	restaurantID, err := httputil.RestaurantID(r)
	if err != nil {
		httputil.WriteError(w, err, requestID)
		return
	}

	entityID, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		httputil.WriteError(w, apperrors.Validation("invalid %s", param), requestID)
		return
	}

	if err := fn(r.Context(), restaurantID, entityID); err != nil {
		httputil.WriteError(w, err, requestID)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"activated": true})
}
