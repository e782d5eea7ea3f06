package order

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

// Handler handles HTTP requests for orders
type Handler struct {
	service *Service
	logger  *logger.Logger
}

// NewHandler creates a new order handler
func NewHandler(service *Service, log *logger.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  log,
	}
}

// Routes mounts the order endpoints
func (h *Handler) Routes(r chi.Router) {
	r.Post("/orders", h.CreateOrder)
	r.Get("/orders", h.ListOrders)
	r.Get("/orders/{orderID}", h.GetOrder)
	r.Patch("/orders/{orderID}", h.UpdateStatus)
	r.Put("/orders/{orderID}/items", h.AmendItems)
}

// CreateOrder handles POST /orders (customer session)
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	restaurantID, err := httputil.RestaurantID(r)
	if err != nil {
		httputil.WriteError(w, err, requestID)
		return
	}
	customerID, err := httputil.CustomerID(r)
	if err != nil {
		httputil.WriteError(w, err, requestID)
		return
	}

	var req models.CreateOrderRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		h.logger.Error("validation_failed", "Failed to parse request body", requestID, err, nil)
		httputil.WriteError(w, apperrors.Validation("invalid JSON body"), requestID)
		return
	}

	order, err := h.service.CreateOrder(r.Context(), restaurantID, customerID, &req, requestID)
	if err != nil {
		h.logger.Error("order_creation_failed", "Failed to create order", requestID, err, map[string]interface{}{
			"table_id": req.TableID,
		})
		httputil.WriteError(w, err, requestID)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, order)
}

// UpdateStatus handles PATCH /orders/{orderID} (staff session)
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	restaurantID, err := httputil.RestaurantID(r)
	if err != nil {
		httputil.WriteError(w, err, requestID)
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		httputil.WriteError(w, apperrors.Validation("invalid order id"), requestID)
		return
	}

	var req models.UpdateOrderStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, apperrors.Validation("invalid JSON body"), requestID)
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err, requestID)
		return
	}

	order, err := h.service.UpdateStatus(r.Context(), orderID, restaurantID, req.Status, requestID)
	if err != nil {
		httputil.WriteError(w, err, requestID)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, order)
}

// AmendItems handles PUT /orders/{orderID}/items (customer or staff)
func (h *Handler) AmendItems(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	restaurantID, err := httputil.RestaurantID(r)
	if err != nil {
		httputil.WriteError(w, err, requestID)
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		httputil.WriteError(w, apperrors.Validation("invalid order id"), requestID)
		return
	}

	var req models.AmendOrderItemsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, apperrors.Validation("invalid JSON body"), requestID)
		return
	}

	order, err := h.service.AmendItems(r.Context(), orderID, restaurantID, &req, requestID)
	if err != nil {
		httputil.WriteError(w, err, requestID)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, order)
}

// GetOrder handles GET /orders/{orderID}
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	restaurantID, err := httputil.RestaurantID(r)
	if err != nil {
		httputil.WriteError(w, err, requestID)
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		httputil.WriteError(w, apperrors.Validation("invalid order id"), requestID)
		return
	}

	order, err := h.service.Get(r.Context(), orderID, restaurantID)
	if err != nil {
		httputil.WriteError(w, err, requestID)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, order)
}

// ListOrders handles GET /orders?customer_id=... and
// GET /orders?restaurant_id=...&status=...&page=...
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", 20)

	if customerParam := r.URL.Query().Get("customer_id"); customerParam != "" {
		customerID, err := uuid.Parse(customerParam)
		if err != nil {
			httputil.WriteError(w, apperrors.Validation("invalid customer id"), requestID)
			return
		}
		orders, err := h.service.ListByCustomer(r.Context(), customerID, page, pageSize)
		if err != nil {
			httputil.WriteError(w, err, requestID)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, listResponse(orders, page, pageSize))
		return
	}

	restaurantID, err := httputil.RestaurantID(r)
	if err != nil {
		httputil.WriteError(w, err, requestID)
		return
	}

	var status *models.OrderStatus
	if statusParam := r.URL.Query().Get("status"); statusParam != "" {
		s := models.OrderStatus(statusParam)
		if !models.ValidOrderStatus(s) {
			httputil.WriteError(w, apperrors.Validation("unknown status filter"), requestID)
			return
		}
		status = &s
	}

	orders, err := h.service.ListByRestaurant(r.Context(), restaurantID, status, page, pageSize)
	if err != nil {
		httputil.WriteError(w, err, requestID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse(orders, page, pageSize))
}

func listResponse(orders []models.Order, page, pageSize int) map[string]interface{} {
	if orders == nil {
		orders = []models.Order{}
	}
	return map[string]interface{}{
		"orders":    orders,
		"page":      page,
		"page_size": pageSize,
	}
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
