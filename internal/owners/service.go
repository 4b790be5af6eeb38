package owners

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shopdesk/backoffice/internal/ledger"
)

// Service registers owners and products. Balances always start at zero; opening
// balances are posted as ledger adjustments so the ledger stays the source of truth.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService builds an owner service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// CreateInput captures the fields shared by every owner kind.
type CreateInput struct {
	Name string
	// Phone applies to customers only.
	Phone string
	// SecondaryCurrency applies to wholesalers only.
	SecondaryCurrency string
}

func (in CreateInput) name() (string, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return "", ledger.NewValidationError("name", "name is required")
	}
	return name, nil
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// CreateCustomer registers a customer with no debt.
func (s *Service) CreateCustomer(ctx context.Context, in CreateInput) (Customer, error) {
	name, err := in.name()
	if err != nil {
		return Customer{}, err
	}
	c := Customer{ID: newID(), Name: name, Phone: strings.TrimSpace(in.Phone), Balance: decimal.Zero, CreatedAt: s.now()}
	if err := s.repo.CreateCustomer(ctx, c); err != nil {
		return Customer{}, err
	}
	return c, nil
}

// CreateWholesaler registers a wholesaler with no debt.
func (s *Service) CreateWholesaler(ctx context.Context, in CreateInput) (Wholesaler, error) {
	name, err := in.name()
	if err != nil {
		return Wholesaler{}, err
	}
	w := Wholesaler{
		ID:                newID(),
		Name:              name,
		SecondaryCurrency: strings.ToUpper(strings.TrimSpace(in.SecondaryCurrency)),
		CreatedAt:         s.now(),
	}
	if err := s.repo.CreateWholesaler(ctx, w); err != nil {
		return Wholesaler{}, err
	}
	return w, nil
}

// CreateAccount registers an empty cash or bank account.
func (s *Service) CreateAccount(ctx context.Context, in CreateInput) (Account, error) {
	name, err := in.name()
	if err != nil {
		return Account{}, err
	}
	a := Account{ID: newID(), Name: name, CreatedAt: s.now()}
	if err := s.repo.CreateAccount(ctx, a); err != nil {
		return Account{}, err
	}
	return a, nil
}

// CreateProduct registers a product with no stock.
func (s *Service) CreateProduct(ctx context.Context, in CreateInput) (Product, error) {
	name, err := in.name()
	if err != nil {
		return Product{}, err
	}
	p := Product{ID: newID(), Name: name, CreatedAt: s.now()}
	if err := s.repo.CreateProduct(ctx, p); err != nil {
		return Product{}, err
	}
	return p, nil
}

// Customer returns a customer.
func (s *Service) Customer(ctx context.Context, id string) (Customer, error) {
	return s.repo.GetCustomer(ctx, id)
}

// Wholesaler returns a wholesaler.
func (s *Service) Wholesaler(ctx context.Context, id string) (Wholesaler, error) {
	return s.repo.GetWholesaler(ctx, id)
}

// Account returns an account.
func (s *Service) Account(ctx context.Context, id string) (Account, error) {
	return s.repo.GetAccount(ctx, id)
}

// Product returns a product.
func (s *Service) Product(ctx context.Context, id string) (Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// Balance returns the cached primary and secondary balance of any owner.
func (s *Service) Balance(ctx context.Context, book ledger.Book, id string) (decimal.Decimal, decimal.Decimal, error) {
	switch book {
	case ledger.BookCustomer:
		c, err := s.repo.GetCustomer(ctx, id)
		return c.Balance, decimal.Zero, err
	case ledger.BookWholesaler:
		w, err := s.repo.GetWholesaler(ctx, id)
		return w.Balance, w.SecondaryBalance, err
	case ledger.BookAccount:
		a, err := s.repo.GetAccount(ctx, id)
		return a.Balance, decimal.Zero, err
	default:
		_, err := ownerTable(book)
		return decimal.Zero, decimal.Zero, err
	}
}
