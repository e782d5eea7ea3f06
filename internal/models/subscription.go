package models

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionPlan holds the per-restaurant quota limits
type SubscriptionPlan struct {
	RestaurantID         uuid.UUID `json:"restaurant_id" db:"restaurant_id"`
	DailyCustomerLimit   int       `json:"daily_customer_limit" db:"daily_customer_limit"`
	MonthlyCustomerLimit int       `json:"monthly_customer_limit" db:"monthly_customer_limit"`
	MenuCategoryLimit    int       `json:"menu_category_limit" db:"menu_category_limit"`
	MenuItemLimit        int       `json:"menu_item_limit" db:"menu_item_limit"`
	TableLimit           int       `json:"table_limit" db:"table_limit"`
	Active               bool      `json:"active" db:"active"`
	PeriodStart          time.Time `json:"period_start" db:"period_start"`
}

// VisitorLedger is the set of distinct visitor identities a restaurant has
// seen on one calendar day. The row is the serialization point for
// admission: membership check, limit check and append happen under one
// row lock.
type VisitorLedger struct {
	RestaurantID uuid.UUID   `json:"restaurant_id" db:"restaurant_id"`
	Day          time.Time   `json:"day" db:"day"`
	Visitors     []uuid.UUID `json:"visitors" db:"visitors"`
}

// AdmissionOutcome is the result of one admission attempt
type AdmissionOutcome string

const (
	AdmittedNew    AdmissionOutcome = "admitted_new"
	AdmittedRepeat AdmissionOutcome = "admitted_repeat"
	DeniedDaily    AdmissionOutcome = "denied_daily"
)

// MenuKind selects which menu quota a check gates
type MenuKind string

const (
	MenuKindItem     MenuKind = "item"
	MenuKindCategory MenuKind = "category"
)
