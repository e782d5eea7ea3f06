package billing

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"tableside/internal/apperrors"
	"tableside/internal/httputil"
	"tableside/internal/logger"
	"tableside/internal/models"
)

// Handler handles HTTP requests for bills
type Handler struct {
	service *Service
	logger  *logger.Logger
}

// NewHandler creates a new billing handler
func NewHandler(service *Service, log *logger.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  log,
	}
}

// Routes mounts the billing endpoints
func (h *Handler) Routes(r chi.Router) {
	r.Post("/bills", h.GenerateBill)
	r.Get("/bills", h.ListBills)
	r.Get("/bills/{billID}", h.GetBill)
	r.Patch("/bills/{billID}/payment", h.UpdatePayment)
}

// GenerateBill handles POST /bills (staff session)
func (h *Handler) GenerateBill(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	restaurantID, err := httputil.RestaurantID(r)
	if err != nil {
		httputil.WriteError(w, err, requestID)
		return
	}

	var target models.BillTarget
	if err := json.NewDecoder(r.Body).Decode(&target); err != nil {
		httputil.WriteError(w, apperrors.Validation("invalid JSON body"), requestID)
		return
	}

	bill, err := h.service.GenerateBill(r.Context(), restaurantID, target, requestID)
	if err != nil {
		h.logger.Error("billing_failed", "Failed to generate bill", requestID, err, map[string]interface{}{
			"table_id":    target.TableID,
			"customer_id": target.CustomerID,
		})
		httputil.WriteError(w, err, requestID)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, bill)
}

// UpdatePayment handles PATCH /bills/{billID}/payment (staff session)
func (h *Handler) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	restaurantID, err := httputil.RestaurantID(r)
	if err != nil {
		httputil.WriteError(w, err, requestID)
		return
	}

	billID, err := uuid.Parse(chi.URLParam(r, "billID"))
	if err != nil {
		httputil.WriteError(w, apperrors.Validation("invalid bill id"), requestID)
		return
	}

	var req models.UpdatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, apperrors.Validation("invalid JSON body"), requestID)
		return
	}

	bill, err := h.service.SetPaymentStatus(r.Context(), restaurantID, billID, &req, requestID)
	if err != nil {
		httputil.WriteError(w, err, requestID)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, bill)
}

// GetBill handles GET /bills/{billID}
func (h *Handler) GetBill(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	restaurantID, err := httputil.RestaurantID(r)
	if err != nil {
		httputil.WriteError(w, err, requestID)
		return
	}

	billID, err := uuid.Parse(chi.URLParam(r, "billID"))
	if err != nil {
		httputil.WriteError(w, apperrors.Validation("invalid bill id"), requestID)
		return
	}

	bill, err := h.service.Get(r.Context(), restaurantID, billID)
	if err != nil {
		httputil.WriteError(w, err, requestID)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, bill)
}

// ListBills handles GET /bills?page=...&page_size=...
func (h *Handler) ListBills(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	restaurantID, err := httputil.RestaurantID(r)
	if err != nil {
		httputil.WriteError(w, err, requestID)
		return
	}

	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", 20)

	bills, err := h.service.List(r.Context(), restaurantID, page, pageSize)
	if err != nil {
		httputil.WriteError(w, err, requestID)
		return
	}
	if bills == nil {
		bills = []models.Bill{}
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"bills":     bills,
		"page":      page,
		"page_size": pageSize,
	})
}

func queryInt(r *http.Request, key string, fallback int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
