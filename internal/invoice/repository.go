package invoice

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/shopdesk/backoffice/internal/ledger"
)

// Repository persists purchase invoices.
type Repository interface {
	Insert(ctx context.Context, inv PurchaseInvoice) error
	Get(ctx context.Context, id string) (PurchaseInvoice, error)
	Delete(ctx context.Context, id string) error
	ListByWholesaler(ctx context.Context, wholesalerID string) ([]PurchaseInvoice, error)
}

// PostgresRepository stores invoices in the purchase_invoices table with lines as jsonb.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const invoiceColumns = `id::text, wholesaler_id::text, number, issued_at, lines, total_primary,
        total_secondary, secondary_currency, note, created_at`

// Insert stores a new invoice.
func (r *PostgresRepository) Insert(ctx context.Context, inv PurchaseInvoice) error {
	lines, err := json.Marshal(inv.Lines)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO purchase_invoices
        (id, wholesaler_id, number, issued_at, lines, total_primary, total_secondary, secondary_currency, note, created_at)
        VALUES ($1::uuid, $2::uuid, $3, $4, $5::jsonb, $6::numeric, $7::numeric, $8, $9, $10)`,
		inv.ID, inv.WholesalerID, inv.Number, inv.IssuedAt.UTC(), lines, inv.TotalPrimary,
		inv.TotalSecondary, inv.SecondaryCurrency, inv.Note, inv.CreatedAt.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrExists
		}
		return ledger.WrapStorage("insert purchase invoice", err)
	}
	return nil
}

// Get fetches one invoice with its lines.
func (r *PostgresRepository) Get(ctx context.Context, id string) (PurchaseInvoice, error) {
	inv, err := scanInvoice(r.db.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM purchase_invoices WHERE id = $1::uuid`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseInvoice{}, ErrNotFound
		}
		return PurchaseInvoice{}, ledger.WrapStorage("get purchase invoice", err)
	}
	return inv, nil
}

// Delete removes an invoice.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM purchase_invoices WHERE id = $1::uuid`, id)
	if err != nil {
		return ledger.WrapStorage("delete purchase invoice", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByWholesaler returns a wholesaler's invoices, oldest first.
func (r *PostgresRepository) ListByWholesaler(ctx context.Context, wholesalerID string) ([]PurchaseInvoice, error) {
	rows, err := r.db.Query(ctx, `SELECT `+invoiceColumns+` FROM purchase_invoices
        WHERE wholesaler_id = $1::uuid ORDER BY issued_at, id`, wholesalerID)
	if err != nil {
		return nil, ledger.WrapStorage("list purchase invoices", err)
	}
	defer rows.Close()
	var out []PurchaseInvoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, ledger.WrapStorage("scan purchase invoice", err)
		}
		out = append(out, inv)
	}
	return out, ledger.WrapStorage("list purchase invoices", rows.Err())
}

func scanInvoice(row pgx.Row) (PurchaseInvoice, error) {
	var (
		inv       PurchaseInvoice
		lines     []byte
		secondary *decimal.Decimal
	)
	if err := row.Scan(&inv.ID, &inv.WholesalerID, &inv.Number, &inv.IssuedAt, &lines, &inv.TotalPrimary,
		&secondary, &inv.SecondaryCurrency, &inv.Note, &inv.CreatedAt); err != nil {
		return PurchaseInvoice{}, err
	}
	if err := json.Unmarshal(lines, &inv.Lines); err != nil {
		return PurchaseInvoice{}, err
	}
	inv.TotalSecondary = secondary
	inv.IssuedAt = inv.IssuedAt.UTC()
	inv.CreatedAt = inv.CreatedAt.UTC()
	return inv, nil
}

type memoryRepository struct {
	mu      sync.RWMutex
	storage map[string]PurchaseInvoice
}

// NewMemoryRepository constructs an in-memory repository for tests and development mode.
func NewMemoryRepository() Repository {
	return &memoryRepository{storage: make(map[string]PurchaseInvoice)}
}

func (r *memoryRepository) Insert(_ context.Context, inv PurchaseInvoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.storage[inv.ID]; exists {
		return ErrExists
	}
	r.storage[inv.ID] = clone(inv)
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (PurchaseInvoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inv, ok := r.storage[id]
	if !ok {
		return PurchaseInvoice{}, ErrNotFound
	}
	return clone(inv), nil
}

func (r *memoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.storage[id]; !ok {
		return ErrNotFound
	}
	delete(r.storage, id)
	return nil
}

func (r *memoryRepository) ListByWholesaler(_ context.Context, wholesalerID string) ([]PurchaseInvoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []PurchaseInvoice
	for _, inv := range r.storage {
		if inv.WholesalerID == wholesalerID {
			out = append(out, clone(inv))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].IssuedAt.Equal(out[j].IssuedAt) {
			return out[i].IssuedAt.Before(out[j].IssuedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func clone(inv PurchaseInvoice) PurchaseInvoice {
	inv.Lines = append([]Line(nil), inv.Lines...)
	if inv.TotalSecondary != nil {
		v := *inv.TotalSecondary
		inv.TotalSecondary = &v
	}
	return inv
}

var _ Repository = (*PostgresRepository)(nil)
