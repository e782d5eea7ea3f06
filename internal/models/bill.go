package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tableside/internal/apperrors"
)

// PaymentStatus represents the settlement state of a bill
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

// Bill is the immutable consolidation of one billing run. Only
// payment_status and payment_method may change after creation.
type Bill struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	RestaurantID  uuid.UUID       `json:"restaurant_id" db:"restaurant_id"`
	TableID       *uuid.UUID      `json:"table_id,omitempty" db:"table_id"`
	Customers     []uuid.UUID     `json:"customers" db:"customer_ids"`
	Orders        []uuid.UUID     `json:"orders" db:"order_ids"`
	GrossTotal    decimal.Decimal `json:"gross_total" db:"gross_total"`
	ServiceCharge decimal.Decimal `json:"service_charge" db:"service_charge"`
	VATAlcohol    decimal.Decimal `json:"vat_alcohol" db:"vat_alcohol"`
	VATFood       decimal.Decimal `json:"vat_food" db:"vat_food"`
	ServiceTax    decimal.Decimal `json:"service_tax" db:"service_tax"`
	NetAmount     decimal.Decimal `json:"net_amount" db:"net_amount"`
	PaymentStatus PaymentStatus   `json:"payment_status" db:"payment_status"`
	PaymentMethod string          `json:"payment_method" db:"payment_method"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// BillTarget selects the orders a billing run consolidates: exactly one of
// TableID or CustomerID is set.
type BillTarget struct {
	TableID    *uuid.UUID `json:"table_id,omitempty"`
	CustomerID *uuid.UUID `json:"customer_id,omitempty"`
}

// Validate checks that exactly one target dimension is set
func (t *BillTarget) Validate() error {
	if (t.TableID == nil) == (t.CustomerID == nil) {
		return apperrors.Validation("exactly one of table_id or customer_id is required")
	}
	return nil
}

// UpdatePaymentRequest settles or fails a pending bill
type UpdatePaymentRequest struct {
	Status PaymentStatus `json:"status"`
	Method string        `json:"method"`
}

// Validate checks the requested payment status
func (req *UpdatePaymentRequest) Validate() error {
	switch req.Status {
	case PaymentPaid, PaymentFailed:
		return nil
	default:
		return apperrors.Validation("status must be one of: paid, failed")
	}
}
