package backup

import (
	"context"
	"sync"
)

// tracedStore records mutating calls on a MemoryStore and can fail inserts.
type tracedStore struct {
	*MemoryStore

	mu sync.Mutex
	// failInsert, when set, is consulted before every insert request with the
	// table's 1-based insert count.
	failInsert func(table string, call int) error
	calls      map[string]int
	ops        []string
}

func newTracedStore(tables ...string) *tracedStore {
	return &tracedStore{MemoryStore: NewMemoryStore(tables...), calls: make(map[string]int)}
}

// Ops returns the mutating calls made so far, as "delete <table>" or "insert <table>".
func (s *tracedStore) Ops() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ops...)
}

func (s *tracedStore) DeleteAll(ctx context.Context, table string) (int64, error) {
	s.mu.Lock()
	s.ops = append(s.ops, "delete "+table)
	s.mu.Unlock()
	return s.MemoryStore.DeleteAll(ctx, table)
}

func (s *tracedStore) Insert(ctx context.Context, table string, rows []Row) error {
	s.mu.Lock()
	s.calls[table]++
	call := s.calls[table]
	s.ops = append(s.ops, "insert "+table)
	fail := s.failInsert
	s.mu.Unlock()
	if fail != nil {
		if err := fail(table, call); err != nil {
			return err
		}
	}
	return s.MemoryStore.Insert(ctx, table, rows)
}
