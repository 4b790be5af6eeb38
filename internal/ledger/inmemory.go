package ledger

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
)

type inMemoryStore struct {
	mu    sync.RWMutex
	books map[Book]map[string]Entry
}

// NewInMemory creates a concurrency-safe in-memory ledger store useful for unit tests
// and development mode.
func NewInMemory() Store {
	books := make(map[Book]map[string]Entry, len(Books))
	for _, b := range Books {
		books[b] = make(map[string]Entry)
	}
	return &inMemoryStore{books: books}
}

func (s *inMemoryStore) Append(_ context.Context, entry Entry) (Entry, error) {
	if err := entry.Validate(); err != nil {
		return Entry{}, err
	}
	entry.Timestamp = entry.Timestamp.UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	book := s.books[entry.Book]
	if _, exists := book[entry.ID]; exists {
		return Entry{}, ErrDuplicateEntry
	}

	var (
		prev  Entry
		found bool
	)
	for _, e := range book {
		if e.OwnerID != entry.OwnerID || !e.Before(entry) {
			continue
		}
		if !found || prev.Before(e) {
			prev, found = e, true
		}
	}
	entry.RunningBalance = entry.Amount
	if found {
		entry.RunningBalance = prev.RunningBalance.Add(entry.Amount)
	}

	book[entry.ID] = cloneEntry(entry)
	return entry, nil
}

func (s *inMemoryStore) Get(_ context.Context, book Book, id string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.books[book][id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return cloneEntry(e), nil
}

func (s *inMemoryStore) ListByOwner(_ context.Context, book Book, ownerID string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entry
	for _, e := range s.books[book] {
		if e.OwnerID == ownerID {
			out = append(out, cloneEntry(e))
		}
	}
	SortEntries(out)
	return out, nil
}

func (s *inMemoryStore) UpdateAmount(_ context.Context, book Book, id string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.books[book][id]
	if !ok {
		return ErrNotFound
	}
	e.Amount = amount
	s.books[book][id] = e
	return nil
}

func (s *inMemoryStore) Delete(_ context.Context, book Book, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.books[book][id]; !ok {
		return ErrNotFound
	}
	delete(s.books[book], id)
	return nil
}

func (s *inMemoryStore) Restore(_ context.Context, entry Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.books[entry.Book][entry.ID]; exists {
		return ErrDuplicateEntry
	}
	s.books[entry.Book][entry.ID] = cloneEntry(entry)
	return nil
}

func (s *inMemoryStore) SetRunningBalances(_ context.Context, book Book, balances map[string]decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range balances {
		if _, ok := s.books[book][id]; !ok {
			return ErrNotFound
		}
	}
	for id, bal := range balances {
		e := s.books[book][id]
		e.RunningBalance = bal
		s.books[book][id] = e
	}
	return nil
}

func (s *inMemoryStore) SetCounterpart(_ context.Context, accountEntryID string, counterpart *Ref) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.books[BookAccount][accountEntryID]
	if !ok {
		return ErrNotFound
	}
	if counterpart != nil {
		if _, ok := s.books[counterpart.Book][counterpart.ID]; !ok {
			return ErrNotFound
		}
	}
	e.Counterpart = cloneRef(counterpart)
	if err := e.Validate(); err != nil {
		return err
	}
	s.books[BookAccount][accountEntryID] = e
	return nil
}

func (s *inMemoryStore) FindByCounterpart(_ context.Context, ref Ref) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.books[BookAccount] {
		if e.Counterpart != nil && *e.Counterpart == ref {
			return cloneEntry(e), nil
		}
	}
	return Entry{}, ErrNotFound
}

func (s *inMemoryStore) FindByInvoice(_ context.Context, invoiceID string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.books[BookWholesaler] {
		if e.InvoiceID == invoiceID {
			return cloneEntry(e), nil
		}
	}
	return Entry{}, ErrNotFound
}

func cloneEntry(e Entry) Entry {
	e.Counterpart = cloneRef(e.Counterpart)
	return e
}

func cloneRef(r *Ref) *Ref {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
