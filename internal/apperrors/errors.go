package apperrors

import (
	"errors"
	"fmt"
)

// Expected engine outcomes. Handlers map these to HTTP status codes with
// errors.Is; services surface them verbatim and never retry them (the only
// internal retries are the bounded optimistic-concurrency loops, which end
// in ErrConflict when exhausted).
var (
	ErrNotFound          = errors.New("referenced entity not found")
	ErrForbidden         = errors.New("access to another restaurant's data is forbidden")
	ErrInvalidTransition = errors.New("illegal status transition")
	ErrConflict          = errors.New("lost a concurrent update race, re-read and retry")

	ErrNoSubscription       = errors.New("restaurant has no active subscription")
	ErrDailyLimitExceeded   = errors.New("daily customer limit exceeded")
	ErrMonthlyLimitExceeded = errors.New("monthly customer limit exceeded")
	ErrMenuLimitExceeded    = errors.New("menu limit exceeded for subscription plan")

	ErrNothingToBill = errors.New("no billable orders for target")

	ErrValidation = errors.New("invalid request")
)

// InvalidTransition wraps ErrInvalidTransition naming the rejected edge so
// callers can display an actionable message.
func InvalidTransition(from, to string) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// Validation wraps ErrValidation with a field-level description
func Validation(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// IsDenial reports whether err is an admission denial
func IsDenial(err error) bool {
	return errors.Is(err, ErrNoSubscription) ||
		errors.Is(err, ErrDailyLimitExceeded) ||
		errors.Is(err, ErrMonthlyLimitExceeded) ||
		errors.Is(err, ErrMenuLimitExceeded)
}

// DenialReason returns the stable machine-readable reason for an admission
// denial, or an empty string for non-denials.
func DenialReason(err error) string {
	switch {
	case errors.Is(err, ErrNoSubscription):
		return "no_subscription"
	case errors.Is(err, ErrDailyLimitExceeded):
		return "daily_limit_exceeded"
	case errors.Is(err, ErrMonthlyLimitExceeded):
		return "monthly_limit_exceeded"
	case errors.Is(err, ErrMenuLimitExceeded):
		return "menu_limit_exceeded"
	default:
		return ""
	}
}
