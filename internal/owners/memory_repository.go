package owners

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/shopdesk/backoffice/internal/ledger"
)

type memoryRepository struct {
	mu          sync.RWMutex
	customers   map[string]Customer
	wholesalers map[string]Wholesaler
	accounts    map[string]Account
	products    map[string]Product
}

// NewMemoryRepository constructs an in-memory repository for tests and development mode.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		customers:   make(map[string]Customer),
		wholesalers: make(map[string]Wholesaler),
		accounts:    make(map[string]Account),
		products:    make(map[string]Product),
	}
}

func (r *memoryRepository) CreateCustomer(_ context.Context, c Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.customers[c.ID]; exists {
		return ErrExists
	}
	r.customers[c.ID] = c
	return nil
}

func (r *memoryRepository) CreateWholesaler(_ context.Context, w Wholesaler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.wholesalers[w.ID]; exists {
		return ErrExists
	}
	r.wholesalers[w.ID] = w
	return nil
}

func (r *memoryRepository) CreateAccount(_ context.Context, a Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.accounts[a.ID]; exists {
		return ErrExists
	}
	r.accounts[a.ID] = a
	return nil
}

func (r *memoryRepository) CreateProduct(_ context.Context, p Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.products[p.ID]; exists {
		return ErrExists
	}
	r.products[p.ID] = p
	return nil
}

func (r *memoryRepository) GetCustomer(_ context.Context, id string) (Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.customers[id]
	if !ok {
		return Customer{}, ErrNotFound
	}
	return c, nil
}

func (r *memoryRepository) GetWholesaler(_ context.Context, id string) (Wholesaler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.wholesalers[id]
	if !ok {
		return Wholesaler{}, ErrNotFound
	}
	return w, nil
}

func (r *memoryRepository) GetAccount(_ context.Context, id string) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.accounts[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	return a, nil
}

func (r *memoryRepository) GetProduct(_ context.Context, id string) (Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.products[id]
	if !ok {
		return Product{}, ErrNotFound
	}
	return p, nil
}

func (r *memoryRepository) IncrementBalance(_ context.Context, book ledger.Book, id string, delta decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch book {
	case ledger.BookCustomer:
		c, ok := r.customers[id]
		if !ok {
			return ErrNotFound
		}
		c.Balance = c.Balance.Add(delta)
		r.customers[id] = c
	case ledger.BookWholesaler:
		w, ok := r.wholesalers[id]
		if !ok {
			return ErrNotFound
		}
		w.Balance = w.Balance.Add(delta)
		r.wholesalers[id] = w
	case ledger.BookAccount:
		a, ok := r.accounts[id]
		if !ok {
			return ErrNotFound
		}
		a.Balance = a.Balance.Add(delta)
		r.accounts[id] = a
	default:
		_, err := ownerTable(book)
		return err
	}
	return nil
}

func (r *memoryRepository) IncrementDebt(_ context.Context, wholesalerID string, primary, secondary decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wholesalers[wholesalerID]
	if !ok {
		return ErrNotFound
	}
	w.Balance = w.Balance.Add(primary)
	w.SecondaryBalance = w.SecondaryBalance.Add(secondary)
	r.wholesalers[wholesalerID] = w
	return nil
}

func (r *memoryRepository) IncrementQuantity(_ context.Context, productID string, delta decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[productID]
	if !ok {
		return ErrNotFound
	}
	p.Quantity = p.Quantity.Add(delta)
	r.products[productID] = p
	return nil
}

func (r *memoryRepository) SwapLastCost(_ context.Context, productID string, next LastCost) (LastCost, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[productID]
	if !ok {
		return LastCost{}, ErrNotFound
	}
	prev := p.LastCost
	p.LastCost = next
	r.products[productID] = p
	return prev, nil
}

func (r *memoryRepository) SetBalance(_ context.Context, book ledger.Book, id string, primary, secondary decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch book {
	case ledger.BookCustomer:
		c, ok := r.customers[id]
		if !ok {
			return ErrNotFound
		}
		c.Balance = primary
		r.customers[id] = c
	case ledger.BookWholesaler:
		w, ok := r.wholesalers[id]
		if !ok {
			return ErrNotFound
		}
		w.Balance = primary
		w.SecondaryBalance = secondary
		r.wholesalers[id] = w
	case ledger.BookAccount:
		a, ok := r.accounts[id]
		if !ok {
			return ErrNotFound
		}
		a.Balance = primary
		r.accounts[id] = a
	default:
		_, err := ownerTable(book)
		return err
	}
	return nil
}
