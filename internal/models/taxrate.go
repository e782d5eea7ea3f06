package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TaxName identifies one of the fixed, enum-indexed tax rates
type TaxName string

const (
	TaxServiceCharge   TaxName = "service_charge"
	TaxServiceTax      TaxName = "service_tax"
	TaxVATAlcoholic    TaxName = "vat_alcoholic"
	TaxVATNonAlcoholic TaxName = "vat_non_alcoholic"
)

// TaxRate is a per-restaurant named tax percentage (e.g. 10 = 10%)
type TaxRate struct {
	RestaurantID  uuid.UUID       `json:"restaurant_id" db:"restaurant_id"`
	TaxName       TaxName         `json:"tax_name" db:"tax_name"`
	TaxPercentage decimal.Decimal `json:"tax_percentage" db:"tax_percentage"`
}

// TaxTable is the resolved rate table for one billing run. Missing rates
// read as zero.
type TaxTable map[TaxName]decimal.Decimal

// Rate returns the fractional rate for name (10% -> 0.10); missing is 0
func (t TaxTable) Rate(name TaxName) decimal.Decimal {
	pct, ok := t[name]
	if !ok {
		return decimal.Zero
	}
	return pct.Div(decimal.NewFromInt(100))
}
