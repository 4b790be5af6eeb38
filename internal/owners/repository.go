package owners

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/shopdesk/backoffice/internal/ledger"
)

// Repository persists owner aggregates and products. Every balance mutation is an
// atomic server-side increment; there is no read-modify-write path.
type Repository interface {
	CreateCustomer(ctx context.Context, c Customer) error
	CreateWholesaler(ctx context.Context, w Wholesaler) error
	CreateAccount(ctx context.Context, a Account) error
	CreateProduct(ctx context.Context, p Product) error

	GetCustomer(ctx context.Context, id string) (Customer, error)
	GetWholesaler(ctx context.Context, id string) (Wholesaler, error)
	GetAccount(ctx context.Context, id string) (Account, error)
	GetProduct(ctx context.Context, id string) (Product, error)

	// IncrementBalance adds delta to the cached balance of a customer, wholesaler or account.
	IncrementBalance(ctx context.Context, book ledger.Book, id string, delta decimal.Decimal) error
	// IncrementDebt adds to both debt balances of a wholesaler in one statement.
	IncrementDebt(ctx context.Context, wholesalerID string, primary, secondary decimal.Decimal) error
	IncrementQuantity(ctx context.Context, productID string, delta decimal.Decimal) error
	// SwapLastCost stores next and returns the value it replaced.
	SwapLastCost(ctx context.Context, productID string, next LastCost) (LastCost, error)

	// SetBalance overwrites the cached balance with a recalculated ledger total.
	SetBalance(ctx context.Context, book ledger.Book, id string, primary, secondary decimal.Decimal) error
}

// PostgresRepository stores owners in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func ownerTable(book ledger.Book) (string, error) {
	switch book {
	case ledger.BookCustomer:
		return "customers", nil
	case ledger.BookWholesaler:
		return "wholesalers", nil
	case ledger.BookAccount:
		return "accounts", nil
	default:
		return "", ledger.NewValidationError("book", fmt.Sprintf("unknown ledger book %q", book))
	}
}

func insertErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrExists
	}
	return ledger.WrapStorage(op, err)
}

func getErr(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return ledger.WrapStorage(op, err)
}

// CreateCustomer inserts a customer record.
func (r *PostgresRepository) CreateCustomer(ctx context.Context, c Customer) error {
	_, err := r.db.Exec(ctx, `INSERT INTO customers (id, name, phone, balance, created_at)
        VALUES ($1::uuid, $2, $3, $4::numeric, $5)`, c.ID, c.Name, c.Phone, c.Balance, c.CreatedAt.UTC())
	if err != nil {
		return insertErr("insert customer", err)
	}
	return nil
}

// CreateWholesaler inserts a wholesaler record.
func (r *PostgresRepository) CreateWholesaler(ctx context.Context, w Wholesaler) error {
	_, err := r.db.Exec(ctx, `INSERT INTO wholesalers (id, name, balance, secondary_balance, secondary_currency, created_at)
        VALUES ($1::uuid, $2, $3::numeric, $4::numeric, $5, $6)`,
		w.ID, w.Name, w.Balance, w.SecondaryBalance, w.SecondaryCurrency, w.CreatedAt.UTC())
	if err != nil {
		return insertErr("insert wholesaler", err)
	}
	return nil
}

// CreateAccount inserts an account record.
func (r *PostgresRepository) CreateAccount(ctx context.Context, a Account) error {
	_, err := r.db.Exec(ctx, `INSERT INTO accounts (id, name, balance, created_at)
        VALUES ($1::uuid, $2, $3::numeric, $4)`, a.ID, a.Name, a.Balance, a.CreatedAt.UTC())
	if err != nil {
		return insertErr("insert account", err)
	}
	return nil
}

// CreateProduct inserts a product record.
func (r *PostgresRepository) CreateProduct(ctx context.Context, p Product) error {
	_, err := r.db.Exec(ctx, `INSERT INTO products (id, name, quantity, created_at)
        VALUES ($1::uuid, $2, $3::numeric, $4)`, p.ID, p.Name, p.Quantity, p.CreatedAt.UTC())
	if err != nil {
		return insertErr("insert product", err)
	}
	return nil
}

// GetCustomer fetches a customer by identifier.
func (r *PostgresRepository) GetCustomer(ctx context.Context, id string) (Customer, error) {
	var c Customer
	err := r.db.QueryRow(ctx, `SELECT id::text, name, phone, balance, created_at
        FROM customers WHERE id = $1::uuid`, id).Scan(&c.ID, &c.Name, &c.Phone, &c.Balance, &c.CreatedAt)
	if err != nil {
		return Customer{}, getErr("get customer", err)
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return c, nil
}

// GetWholesaler fetches a wholesaler by identifier.
func (r *PostgresRepository) GetWholesaler(ctx context.Context, id string) (Wholesaler, error) {
	var w Wholesaler
	err := r.db.QueryRow(ctx, `SELECT id::text, name, balance, secondary_balance, secondary_currency, created_at
        FROM wholesalers WHERE id = $1::uuid`, id).
		Scan(&w.ID, &w.Name, &w.Balance, &w.SecondaryBalance, &w.SecondaryCurrency, &w.CreatedAt)
	if err != nil {
		return Wholesaler{}, getErr("get wholesaler", err)
	}
	w.CreatedAt = w.CreatedAt.UTC()
	return w, nil
}

// GetAccount fetches an account by identifier.
func (r *PostgresRepository) GetAccount(ctx context.Context, id string) (Account, error) {
	var a Account
	err := r.db.QueryRow(ctx, `SELECT id::text, name, balance, created_at
        FROM accounts WHERE id = $1::uuid`, id).Scan(&a.ID, &a.Name, &a.Balance, &a.CreatedAt)
	if err != nil {
		return Account{}, getErr("get account", err)
	}
	a.CreatedAt = a.CreatedAt.UTC()
	return a, nil
}

// GetProduct fetches a product by identifier.
func (r *PostgresRepository) GetProduct(ctx context.Context, id string) (Product, error) {
	var (
		p        Product
		cost     *decimal.Decimal
		currency *string
		supplier *string
	)
	err := r.db.QueryRow(ctx, `SELECT id::text, name, quantity, last_cost, last_cost_currency, last_supplier_id::text, created_at
        FROM products WHERE id = $1::uuid`, id).
		Scan(&p.ID, &p.Name, &p.Quantity, &cost, &currency, &supplier, &p.CreatedAt)
	if err != nil {
		return Product{}, getErr("get product", err)
	}
	p.LastCost = lastCostFrom(cost, currency, supplier)
	p.CreatedAt = p.CreatedAt.UTC()
	return p, nil
}

// IncrementBalance atomically adds delta to an owner's cached balance.
func (r *PostgresRepository) IncrementBalance(ctx context.Context, book ledger.Book, id string, delta decimal.Decimal) error {
	table, err := ownerTable(book)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`UPDATE %s SET balance = balance + $2::numeric WHERE id = $1::uuid`, table)
	return r.execOne(ctx, "increment "+table, query, id, delta)
}

// IncrementDebt atomically adds to a wholesaler's primary and secondary debt.
func (r *PostgresRepository) IncrementDebt(ctx context.Context, wholesalerID string, primary, secondary decimal.Decimal) error {
	return r.execOne(ctx, "increment wholesaler debt",
		`UPDATE wholesalers SET balance = balance + $2::numeric, secondary_balance = secondary_balance + $3::numeric
        WHERE id = $1::uuid`, wholesalerID, primary, secondary)
}

// IncrementQuantity atomically adjusts stock on hand.
func (r *PostgresRepository) IncrementQuantity(ctx context.Context, productID string, delta decimal.Decimal) error {
	return r.execOne(ctx, "increment product quantity",
		`UPDATE products SET quantity = quantity + $2::numeric WHERE id = $1::uuid`, productID, delta)
}

// SwapLastCost writes the new last cost and returns the previous one. The
// self-join reads the pre-update row inside the same statement.
func (r *PostgresRepository) SwapLastCost(ctx context.Context, productID string, next LastCost) (LastCost, error) {
	var (
		cost     *decimal.Decimal
		currency *string
		supplier *string
	)
	err := r.db.QueryRow(ctx, `UPDATE products p
        SET last_cost = $2::numeric, last_cost_currency = $3, last_supplier_id = $4::uuid
        FROM products old WHERE p.id = old.id AND p.id = $1::uuid
        RETURNING old.last_cost, old.last_cost_currency, old.last_supplier_id::text`,
		productID, nullableCost(next), nullable(next.Currency), nullable(next.SupplierID)).
		Scan(&cost, &currency, &supplier)
	if err != nil {
		return LastCost{}, getErr("swap product last cost", err)
	}
	return lastCostFrom(cost, currency, supplier), nil
}

// SetBalance overwrites an owner's cached balances with recalculated totals.
func (r *PostgresRepository) SetBalance(ctx context.Context, book ledger.Book, id string, primary, secondary decimal.Decimal) error {
	if book == ledger.BookWholesaler {
		return r.execOne(ctx, "set wholesaler balance",
			`UPDATE wholesalers SET balance = $2::numeric, secondary_balance = $3::numeric WHERE id = $1::uuid`,
			id, primary, secondary)
	}
	table, err := ownerTable(book)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`UPDATE %s SET balance = $2::numeric WHERE id = $1::uuid`, table)
	return r.execOne(ctx, "set "+table+" balance", query, id, primary)
}

func (r *PostgresRepository) execOne(ctx context.Context, op, query string, args ...any) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return ledger.WrapStorage(op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func lastCostFrom(cost *decimal.Decimal, currency, supplier *string) LastCost {
	var lc LastCost
	if cost != nil {
		lc.Cost = *cost
	}
	if currency != nil {
		lc.Currency = *currency
	}
	if supplier != nil {
		lc.SupplierID = *supplier
	}
	return lc
}

func nullableCost(c LastCost) *decimal.Decimal {
	if c.IsZero() {
		return nil
	}
	return &c.Cost
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var (
	_ Repository         = (*PostgresRepository)(nil)
	_ ledger.BalanceSink = (*PostgresRepository)(nil)
)
