package invoice

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when an invoice does not exist.
	ErrNotFound = errors.New("purchase invoice not found")
	// ErrExists is returned when an invoice id is already taken.
	ErrExists = errors.New("purchase invoice already exists")
)

// Line is one purchased item. LineTotal is always in the primary currency.
type Line struct {
	ProductID   *string         `json:"product_id"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	Currency    string          `json:"currency"`
	Rate        decimal.Decimal `json:"rate"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// Cost is the line cost in the currency it was billed in.
func (l Line) Cost() decimal.Decimal {
	return l.Quantity.Mul(l.UnitCost)
}

// PurchaseInvoice is the aggregate root of a purchase on account from a wholesaler.
type PurchaseInvoice struct {
	ID           string
	WholesalerID string
	Number       string
	IssuedAt     time.Time
	Lines        []Line
	TotalPrimary decimal.Decimal
	// TotalSecondary is nil on invoices recorded before the field existed; use SecondaryTotal.
	TotalSecondary    *decimal.Decimal
	SecondaryCurrency string
	Note              string
	CreatedAt         time.Time
}
