package realtime

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"tableside/internal/apperrors"
	"tableside/internal/httputil"
	"tableside/internal/logger"
	"tableside/internal/models"
)

// heartbeatInterval keeps intermediaries from reaping idle SSE streams
const heartbeatInterval = 25 * time.Second

// Handler serves the SSE event stream
type Handler struct {
	hub    *Hub
	logger *logger.Logger
}

// NewHandler creates a new realtime handler
func NewHandler(hub *Hub, log *logger.Logger) *Handler {
	return &Handler{
		hub:    hub,
		logger: log,
	}
}

// Routes mounts the event stream endpoint
func (h *Handler) Routes(r chi.Router) {
	r.Get("/events", h.Stream)
}

// Stream handles GET /events as a server-sent-events stream. A staff
// session (restaurant header only) joins the restaurant room; a customer
// session joins its customer room, plus a table room when table_id is
// given. The first frame is always a connected event.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	restaurantID, err := httputil.RestaurantID(r)
	if err != nil {
		httputil.WriteError(w, err, requestID)
		return
	}

	rooms, err := sessionRooms(r, restaurantID)
	if err != nil {
		httputil.WriteError(w, err, requestID)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteError(w, fmt.Errorf("streaming unsupported"), requestID)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sub := h.hub.Subscribe(rooms)
	defer h.hub.Unsubscribe(sub)

	h.logger.Info("session_connected", "Event stream opened", requestID, map[string]interface{}{
		"subscription_id": sub.ID,
		"rooms":           rooms,
	})

	writeFrame(w, models.Event{
		Type:         models.EventConnected,
		EntityID:     sub.ID,
		RestaurantID: restaurantID,
		OccurredAt:   time.Now().UTC(),
	})
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.logger.Debug("session_disconnected", "Event stream closed", requestID, map[string]interface{}{
				"subscription_id": sub.ID,
			})
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case event, ok := <-sub.Events:
			if !ok {
				return
			}
			writeFrame(w, event)
			flusher.Flush()
		}
	}
}

// sessionRooms derives the rooms a session may join from its identity.
// Customers never see the staff-wide restaurant room.
func sessionRooms(r *http.Request, restaurantID uuid.UUID) ([]string, error) {
	customerHeader := r.Header.Get(httputil.HeaderCustomerID)
	if customerHeader == "" {
		return []string{models.RestaurantRoom(restaurantID)}, nil
	}

	customerID, err := uuid.Parse(customerHeader)
	if err != nil {
		return nil, apperrors.Validation("invalid %s header", httputil.HeaderCustomerID)
	}
	rooms := []string{models.CustomerRoom(restaurantID, customerID)}

	if tableParam := r.URL.Query().Get("table_id"); tableParam != "" {
		tableID, err := uuid.Parse(tableParam)
		if err != nil {
			return nil, apperrors.Validation("invalid table id")
		}
		rooms = append(rooms, models.TableRoom(restaurantID, tableID))
	}
	return rooms, nil
}

func writeFrame(w http.ResponseWriter, event models.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, payload)
}
