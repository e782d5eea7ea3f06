// Package httputil holds the response and identity helpers shared by the
// HTTP handlers. Caller identity comes from gateway-set headers; the engine
// does not issue or verify tokens.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"tableside/internal/apperrors"
)

const (
	// HeaderRestaurantID identifies the staff session's restaurant
	HeaderRestaurantID = "X-Restaurant-ID"
	// HeaderCustomerID identifies the customer session
	HeaderCustomerID = "X-Customer-ID"
)

// ErrorResponse is the JSON error envelope
type ErrorResponse struct {
	Error     string `json:"error"`
	Reason    string `json:"reason,omitempty"`
	RequestID string `json:"request_id"`
}

// RestaurantID extracts the caller's restaurant identity
func RestaurantID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.Header.Get(HeaderRestaurantID))
	if err != nil {
		return uuid.Nil, apperrors.Validation("missing or invalid %s header", HeaderRestaurantID)
	}
	return id, nil
}

// CustomerID extracts the caller's customer identity
func CustomerID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.Header.Get(HeaderCustomerID))
	if err != nil {
		return uuid.Nil, apperrors.Validation("missing or invalid %s header", HeaderCustomerID)
	}
	return id, nil
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps a service error to its HTTP status and writes the error
// envelope. Messages surface the typed outcome verbatim but never leak
// other restaurants' identifiers.
func WriteError(w http.ResponseWriter, err error, requestID string) {
	status := http.StatusInternalServerError
	message := "internal server error"

	switch {
	case errors.Is(err, apperrors.ErrValidation):
		status = http.StatusBadRequest
		message = err.Error()
	case errors.Is(err, apperrors.ErrNotFound):
		status = http.StatusNotFound
		message = err.Error()
	case errors.Is(err, apperrors.ErrNothingToBill):
		status = http.StatusNotFound
		message = err.Error()
	case errors.Is(err, apperrors.ErrForbidden):
		status = http.StatusForbidden
		message = err.Error()
	case errors.Is(err, apperrors.ErrInvalidTransition):
		status = http.StatusConflict
		message = err.Error()
	case errors.Is(err, apperrors.ErrConflict):
		status = http.StatusConflict
		message = err.Error()
	case apperrors.IsDenial(err):
		status = http.StatusForbidden
		message = err.Error()
	}

	WriteJSON(w, status, ErrorResponse{
		Error:     message,
		Reason:    apperrors.DenialReason(err),
		RequestID: requestID,
	})
}
