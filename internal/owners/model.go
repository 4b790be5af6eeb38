package owners

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when an owner or product does not exist.
	ErrNotFound = errors.New("owner not found")
	// ErrExists is returned when creating a record whose id is already taken.
	ErrExists = errors.New("owner already exists")
)

// Customer carries the cached debt a customer owes the shop.
type Customer struct {
	ID        string
	Name      string
	Phone     string
	Balance   decimal.Decimal
	CreatedAt time.Time
}

// Wholesaler carries the cached debt the shop owes a supplier, in the primary
// currency and in the supplier's secondary currency.
type Wholesaler struct {
	ID                string
	Name              string
	Balance           decimal.Decimal
	SecondaryBalance  decimal.Decimal
	SecondaryCurrency string
	CreatedAt         time.Time
}

// Account is a cash drawer or bank account.
type Account struct {
	ID        string
	Name      string
	Balance   decimal.Decimal
	CreatedAt time.Time
}

// Product is a stock item.
type Product struct {
	ID        string
	Name      string
	Quantity  decimal.Decimal
	LastCost  LastCost
	CreatedAt time.Time
}

// LastCost remembers the most recent purchase price of a product.
type LastCost struct {
	Cost       decimal.Decimal
	Currency   string
	SupplierID string
}

// IsZero reports whether no purchase has been recorded yet.
func (c LastCost) IsZero() bool {
	return c.Currency == "" && c.SupplierID == "" && c.Cost.IsZero()
}
