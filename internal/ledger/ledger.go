package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when an entry does not exist in the requested book.
	ErrNotFound = errors.New("ledger entry not found")

	// ErrDuplicateEntry indicates an entry with the same identifier was already appended.
	ErrDuplicateEntry = errors.New("duplicate ledger entry")
)

// Book identifies one of the running-balance ledgers kept by the back office.
type Book string

const (
	BookCustomer   Book = "customer"
	BookWholesaler Book = "wholesaler"
	BookAccount    Book = "account"
)

// Books lists every ledger book.
var Books = []Book{BookCustomer, BookWholesaler, BookAccount}

// ParseBook converts a path or query value into a Book.
func ParseBook(v string) (Book, error) {
	switch b := Book(strings.ToLower(strings.TrimSpace(v))); b {
	case BookCustomer, BookWholesaler, BookAccount:
		return b, nil
	default:
		return "", NewValidationError("book", fmt.Sprintf("unknown ledger book %q", v))
	}
}

// Table returns the relational table holding the book's entries.
func (b Book) Table() string {
	return string(b) + "_ledger"
}

// Kind tags the business meaning of an entry.
type Kind string

const (
	KindCharge      Kind = "charge"
	KindPayment     Kind = "payment"
	KindPurchase    Kind = "purchase"
	KindReturn      Kind = "return"
	KindAdjustment  Kind = "adjustment"
	KindInflow      Kind = "inflow"
	KindOutflow     Kind = "outflow"
	KindTransferIn  Kind = "transfer_in"
	KindTransferOut Kind = "transfer_out"
)

// ValidFor reports whether the kind may be recorded in the given book.
func (k Kind) ValidFor(b Book) bool {
	switch b {
	case BookCustomer:
		switch k {
		case KindCharge, KindPayment, KindReturn, KindAdjustment:
			return true
		}
	case BookWholesaler:
		switch k {
		case KindPurchase, KindPayment, KindReturn, KindAdjustment:
			return true
		}
	case BookAccount:
		switch k {
		case KindInflow, KindOutflow, KindTransferIn, KindTransferOut, KindAdjustment:
			return true
		}
	}
	return false
}

// Sign is the required sign of an amount of this kind: 1, -1, or 0 when any
// sign (including zero) is accepted.
func (k Kind) Sign() int {
	switch k {
	case KindCharge, KindPurchase, KindInflow, KindTransferIn:
		return 1
	case KindPayment, KindReturn, KindOutflow, KindTransferOut:
		return -1
	default:
		return 0
	}
}

// Ref points at an entry in a specific book.
type Ref struct {
	Book Book
	ID   string
}

// Entry is one row of a running-balance ledger.
type Entry struct {
	ID        string
	Book      Book
	OwnerID   string
	Timestamp time.Time
	Kind      Kind
	// Amount is signed: debt-increasing entries are positive in the customer and
	// wholesaler books, inflows are positive in the account book.
	Amount decimal.Decimal
	// SecondaryAmount is the change applied to a wholesaler's secondary-currency debt.
	SecondaryAmount decimal.Decimal
	RunningBalance  decimal.Decimal
	InvoiceID       string
	// Counterpart links an account entry to the customer or wholesaler entry
	// created by the same posting.
	Counterpart *Ref
	Note        string
}

// Ref returns a reference to the entry.
func (e Entry) Ref() Ref {
	return Ref{Book: e.Book, ID: e.ID}
}

// Before reports whether e precedes o in replay order.
func (e Entry) Before(o Entry) bool {
	if !e.Timestamp.Equal(o.Timestamp) {
		return e.Timestamp.Before(o.Timestamp)
	}
	return e.ID < o.ID
}

// Validate checks the structural rules every stored entry must satisfy.
func (e Entry) Validate() error {
	if e.ID == "" {
		return NewValidationError("id", "entry id is required")
	}
	if e.OwnerID == "" {
		return NewValidationError("owner_id", "owner id is required")
	}
	if e.Timestamp.IsZero() {
		return NewValidationError("timestamp", "timestamp is required")
	}
	if !e.Kind.ValidFor(e.Book) {
		return NewValidationError("kind", fmt.Sprintf("kind %q is not allowed in the %s book", e.Kind, e.Book))
	}
	if sign := e.Kind.Sign(); sign != 0 && e.Amount.Sign() != sign {
		return NewValidationError("amount", fmt.Sprintf("amount %s has the wrong sign for a %s entry", e.Amount, e.Kind))
	}
	if e.InvoiceID != "" && e.Book != BookWholesaler {
		return NewValidationError("invoice_id", "only wholesaler entries reference invoices")
	}
	if !e.SecondaryAmount.IsZero() && e.Book != BookWholesaler {
		return NewValidationError("secondary_amount", "only wholesaler entries carry a secondary amount")
	}
	if e.Counterpart != nil {
		if e.Book != BookAccount {
			return NewValidationError("counterpart", "only account entries carry a counterpart")
		}
		if e.Counterpart.Book == BookAccount {
			return NewValidationError("counterpart", "account entries link to customer or wholesaler entries")
		}
	}
	return nil
}

// SortEntries orders entries by (timestamp, id) ascending.
func SortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Before(entries[j]) })
}

// Replay folds entries in replay order and returns the running balance each
// entry should carry together with the final primary and secondary sums.
func Replay(entries []Entry) (balances map[string]decimal.Decimal, primary, secondary decimal.Decimal) {
	ordered := append([]Entry(nil), entries...)
	SortEntries(ordered)
	balances = make(map[string]decimal.Decimal, len(ordered))
	for _, e := range ordered {
		primary = primary.Add(e.Amount)
		secondary = secondary.Add(e.SecondaryAmount)
		balances[e.ID] = primary
	}
	return balances, primary, secondary
}

// VerifyRunningBalances checks that every entry's running balance equals the
// prefix sum of amounts in replay order.
func VerifyRunningBalances(entries []Entry) error {
	expected, _, _ := Replay(entries)
	for _, e := range entries {
		if want := expected[e.ID]; !want.Equal(e.RunningBalance) {
			return fmt.Errorf("entry %s: running balance %s, expected %s", e.ID, e.RunningBalance, want)
		}
	}
	return nil
}

// Store persists ledger entries. None of its methods recompute balances other
// than seeding the running balance of an appended entry.
type Store interface {
	Append(ctx context.Context, entry Entry) (Entry, error)
	Get(ctx context.Context, book Book, id string) (Entry, error)
	ListByOwner(ctx context.Context, book Book, ownerID string) ([]Entry, error)
	UpdateAmount(ctx context.Context, book Book, id string, amount decimal.Decimal) error
	Delete(ctx context.Context, book Book, id string) error
	// Restore re-inserts a previously deleted entry exactly as it was.
	Restore(ctx context.Context, entry Entry) error
	SetRunningBalances(ctx context.Context, book Book, balances map[string]decimal.Decimal) error
	SetCounterpart(ctx context.Context, accountEntryID string, counterpart *Ref) error
	FindByCounterpart(ctx context.Context, ref Ref) (Entry, error)
	FindByInvoice(ctx context.Context, invoiceID string) (Entry, error)
}
