package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const uniqueViolation = "23505"

// PostgresStore persists ledger entries in the customer_ledger, wholesaler_ledger
// and account_ledger tables.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed ledger store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// selectColumns yields the same column shape for every book so one scanner fits all.
func selectColumns(book Book) string {
	switch book {
	case BookWholesaler:
		return `id::text, owner_id::text, ts, kind, amount, secondary_amount, running_balance,
            invoice_id::text, NULL::text, NULL::text, note`
	case BookAccount:
		return `id::text, owner_id::text, ts, kind, amount, 0::numeric, running_balance,
            NULL::text, customer_entry_id::text, wholesaler_entry_id::text, note`
	default:
		return `id::text, owner_id::text, ts, kind, amount, 0::numeric, running_balance,
            NULL::text, NULL::text, NULL::text, note`
	}
}

func scanEntry(book Book, row pgx.Row) (Entry, error) {
	var (
		e                          Entry
		kind                       string
		invoiceID, custRef, whsRef *string
	)
	if err := row.Scan(&e.ID, &e.OwnerID, &e.Timestamp, &kind, &e.Amount, &e.SecondaryAmount,
		&e.RunningBalance, &invoiceID, &custRef, &whsRef, &e.Note); err != nil {
		return Entry{}, err
	}
	e.Book = book
	e.Kind = Kind(kind)
	e.Timestamp = e.Timestamp.UTC()
	if invoiceID != nil {
		e.InvoiceID = *invoiceID
	}
	switch {
	case custRef != nil:
		e.Counterpart = &Ref{Book: BookCustomer, ID: *custRef}
	case whsRef != nil:
		e.Counterpart = &Ref{Book: BookWholesaler, ID: *whsRef}
	}
	return e, nil
}

func counterpartColumns(ref *Ref) (customer, wholesaler *string) {
	if ref == nil {
		return nil, nil
	}
	id := ref.ID
	if ref.Book == BookCustomer {
		return &id, nil
	}
	return nil, &id
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Append inserts the entry and seeds its running balance from the owner's
// preceding entry in a single statement.
func (s *PostgresStore) Append(ctx context.Context, entry Entry) (Entry, error) {
	if err := entry.Validate(); err != nil {
		return Entry{}, err
	}
	entry.Timestamp = entry.Timestamp.UTC()

	table := entry.Book.Table()
	prev := fmt.Sprintf(`COALESCE((SELECT running_balance FROM %s
            WHERE owner_id = $2::uuid AND (ts, id) < ($3::timestamptz, $1::uuid)
            ORDER BY ts DESC, id DESC LIMIT 1), 0) + $5::numeric`, table)

	var (
		query string
		args  []any
	)
	switch entry.Book {
	case BookWholesaler:
		query = `INSERT INTO wholesaler_ledger (id, owner_id, ts, kind, amount, running_balance, secondary_amount, invoice_id, note)
            SELECT $1::uuid, $2::uuid, $3::timestamptz, $4, $5::numeric, ` + prev + `, $6::numeric, $7::uuid, $8
            RETURNING running_balance`
		args = []any{entry.ID, entry.OwnerID, entry.Timestamp, string(entry.Kind), entry.Amount,
			entry.SecondaryAmount, nullable(entry.InvoiceID), entry.Note}
	case BookAccount:
		cust, whs := counterpartColumns(entry.Counterpart)
		query = `INSERT INTO account_ledger (id, owner_id, ts, kind, amount, running_balance, customer_entry_id, wholesaler_entry_id, note)
            SELECT $1::uuid, $2::uuid, $3::timestamptz, $4, $5::numeric, ` + prev + `, $6::uuid, $7::uuid, $8
            RETURNING running_balance`
		args = []any{entry.ID, entry.OwnerID, entry.Timestamp, string(entry.Kind), entry.Amount, cust, whs, entry.Note}
	default:
		query = `INSERT INTO customer_ledger (id, owner_id, ts, kind, amount, running_balance, note)
            SELECT $1::uuid, $2::uuid, $3::timestamptz, $4, $5::numeric, ` + prev + `, $6
            RETURNING running_balance`
		args = []any{entry.ID, entry.OwnerID, entry.Timestamp, string(entry.Kind), entry.Amount, entry.Note}
	}

	if err := s.db.QueryRow(ctx, query, args...).Scan(&entry.RunningBalance); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Entry{}, ErrDuplicateEntry
		}
		return Entry{}, WrapStorage("append "+table, err)
	}
	return entry, nil
}

// Get fetches a single entry.
func (s *PostgresStore) Get(ctx context.Context, book Book, id string) (Entry, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1::uuid`, selectColumns(book), book.Table())
	e, err := scanEntry(book, s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, WrapStorage("get "+book.Table(), err)
	}
	return e, nil
}

// ListByOwner returns the owner's entries in replay order.
func (s *PostgresStore) ListByOwner(ctx context.Context, book Book, ownerID string) ([]Entry, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE owner_id = $1::uuid ORDER BY ts, id`, selectColumns(book), book.Table())
	rows, err := s.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, WrapStorage("list "+book.Table(), err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(book, rows)
		if err != nil {
			return nil, WrapStorage("scan "+book.Table(), err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, WrapStorage("list "+book.Table(), err)
	}
	SortEntries(entries)
	return entries, nil
}

// UpdateAmount rewrites the amount of one entry.
func (s *PostgresStore) UpdateAmount(ctx context.Context, book Book, id string, amount decimal.Decimal) error {
	query := fmt.Sprintf(`UPDATE %s SET amount = $2::numeric WHERE id = $1::uuid`, book.Table())
	return s.execOne(ctx, "update "+book.Table(), query, id, amount)
}

// Delete removes one entry.
func (s *PostgresStore) Delete(ctx context.Context, book Book, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1::uuid`, book.Table())
	return s.execOne(ctx, "delete "+book.Table(), query, id)
}

// Restore re-inserts an entry verbatim, including its running balance.
func (s *PostgresStore) Restore(ctx context.Context, e Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	var (
		query string
		args  []any
	)
	switch e.Book {
	case BookWholesaler:
		query = `INSERT INTO wholesaler_ledger (id, owner_id, ts, kind, amount, running_balance, secondary_amount, invoice_id, note)
            VALUES ($1::uuid, $2::uuid, $3, $4, $5::numeric, $6::numeric, $7::numeric, $8::uuid, $9)`
		args = []any{e.ID, e.OwnerID, e.Timestamp.UTC(), string(e.Kind), e.Amount, e.RunningBalance,
			e.SecondaryAmount, nullable(e.InvoiceID), e.Note}
	case BookAccount:
		cust, whs := counterpartColumns(e.Counterpart)
		query = `INSERT INTO account_ledger (id, owner_id, ts, kind, amount, running_balance, customer_entry_id, wholesaler_entry_id, note)
            VALUES ($1::uuid, $2::uuid, $3, $4, $5::numeric, $6::numeric, $7::uuid, $8::uuid, $9)`
		args = []any{e.ID, e.OwnerID, e.Timestamp.UTC(), string(e.Kind), e.Amount, e.RunningBalance, cust, whs, e.Note}
	default:
		query = `INSERT INTO customer_ledger (id, owner_id, ts, kind, amount, running_balance, note)
            VALUES ($1::uuid, $2::uuid, $3, $4, $5::numeric, $6::numeric, $7)`
		args = []any{e.ID, e.OwnerID, e.Timestamp.UTC(), string(e.Kind), e.Amount, e.RunningBalance, e.Note}
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateEntry
		}
		return WrapStorage("restore "+e.Book.Table(), err)
	}
	return nil
}

// SetRunningBalances writes all balances inside one transaction so a recalculation
// is never half applied.
func (s *PostgresStore) SetRunningBalances(ctx context.Context, book Book, balances map[string]decimal.Decimal) error {
	if len(balances) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return WrapStorage("begin recalculation", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	query := fmt.Sprintf(`UPDATE %s SET running_balance = $2::numeric WHERE id = $1::uuid`, book.Table())
	batch := &pgx.Batch{}
	for id, bal := range balances {
		batch.Queue(query, id, bal)
	}
	results := tx.SendBatch(ctx, batch)
	for range balances {
		tag, err := results.Exec()
		if err != nil {
			results.Close()
			return WrapStorage("write running balance", err)
		}
		if tag.RowsAffected() == 0 {
			results.Close()
			return ErrNotFound
		}
	}
	if err := results.Close(); err != nil {
		return WrapStorage("write running balance", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return WrapStorage("commit recalculation", err)
	}
	return nil
}

// SetCounterpart records the link between an account entry and its owner entry.
func (s *PostgresStore) SetCounterpart(ctx context.Context, accountEntryID string, counterpart *Ref) error {
	if counterpart != nil && counterpart.Book == BookAccount {
		return NewValidationError("counterpart", "account entries link to customer or wholesaler entries")
	}
	cust, whs := counterpartColumns(counterpart)
	return s.execOne(ctx, "link account_ledger",
		`UPDATE account_ledger SET customer_entry_id = $2::uuid, wholesaler_entry_id = $3::uuid WHERE id = $1::uuid`,
		accountEntryID, cust, whs)
}

// FindByCounterpart returns the account entry linked to ref.
func (s *PostgresStore) FindByCounterpart(ctx context.Context, ref Ref) (Entry, error) {
	column := "customer_entry_id"
	if ref.Book == BookWholesaler {
		column = "wholesaler_entry_id"
	}
	query := fmt.Sprintf(`SELECT %s FROM account_ledger WHERE %s = $1::uuid LIMIT 1`, selectColumns(BookAccount), column)
	e, err := scanEntry(BookAccount, s.db.QueryRow(ctx, query, ref.ID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, WrapStorage("find linked account entry", err)
	}
	return e, nil
}

// FindByInvoice returns the wholesaler entry created for a purchase invoice.
func (s *PostgresStore) FindByInvoice(ctx context.Context, invoiceID string) (Entry, error) {
	query := fmt.Sprintf(`SELECT %s FROM wholesaler_ledger WHERE invoice_id = $1::uuid LIMIT 1`, selectColumns(BookWholesaler))
	e, err := scanEntry(BookWholesaler, s.db.QueryRow(ctx, query, invoiceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, WrapStorage("find invoice entry", err)
	}
	return e, nil
}

func (s *PostgresStore) execOne(ctx context.Context, op, query string, args ...any) error {
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return WrapStorage(op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
