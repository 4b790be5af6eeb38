package backup

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownTable is returned for tables outside the catalogue.
var ErrUnknownTable = errors.New("unknown table")

// TableStore gives the restore direct access to whole tables.
type TableStore interface {
	// Exists reports whether the live schema has the table.
	Exists(ctx context.Context, table string) (bool, error)
	Fetch(ctx context.Context, table string) ([]Row, error)
	DeleteAll(ctx context.Context, table string) (int64, error)
	// Insert writes rows in one request; either all rows land or none.
	Insert(ctx context.Context, table string, rows []Row) error
}

// MemoryStore is a TableStore that enforces the catalogue's foreign keys.
type MemoryStore struct {
	mu     sync.Mutex
	tables map[string][]Row
}

// NewMemoryStore creates a store whose live schema holds the given tables, or
// the whole catalogue when none are given.
func NewMemoryStore(tables ...string) *MemoryStore {
	if len(tables) == 0 {
		tables = TableNames()
	}
	s := &MemoryStore{tables: make(map[string][]Row, len(tables))}
	for _, t := range tables {
		s.tables[t] = []Row{}
	}
	return s
}

func (s *MemoryStore) Exists(_ context.Context, table string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tables[table]
	return ok, nil
}

func (s *MemoryStore) Fetch(_ context.Context, table string) ([]Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.tables[table]
	if !ok {
		return nil, fmt.Errorf("fetch %s: %w", table, ErrUnknownTable)
	}
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = cloneRow(r)
	}
	return out, nil
}

func (s *MemoryStore) DeleteAll(_ context.Context, table string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.tables[table]
	if !ok {
		return 0, fmt.Errorf("delete %s: %w", table, ErrUnknownTable)
	}
	for _, dep := range Tables {
		live, ok := s.tables[dep.Name]
		if !ok || len(live) == 0 {
			continue
		}
		for _, fk := range dep.ForeignKeys {
			if fk.References != table {
				continue
			}
			for _, r := range live {
				if _, set := refKey(r[fk.Field]); set {
					return 0, fmt.Errorf("delete %s: rows in %s still reference it", table, dep.Name)
				}
			}
		}
	}
	s.tables[table] = []Row{}
	return int64(len(rows)), nil
}

func (s *MemoryStore) Insert(_ context.Context, table string, rows []Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	live, ok := s.tables[table]
	if !ok {
		return fmt.Errorf("insert %s: %w", table, ErrUnknownTable)
	}
	def, _ := Lookup(table)
	seen := make(map[string]bool, len(live)+len(rows))
	for _, r := range live {
		id, _ := r.ID()
		seen[id] = true
	}
	for _, r := range rows {
		id, ok := r.ID()
		if !ok {
			return fmt.Errorf("insert %s: row without id", table)
		}
		if seen[id] {
			return fmt.Errorf("insert %s: duplicate id %s", table, id)
		}
		seen[id] = true
		for _, fk := range def.ForeignKeys {
			ref, set := refKey(r[fk.Field])
			if !set {
				continue
			}
			target, exists := s.tables[fk.References]
			if !exists {
				continue
			}
			if !containsID(target, ref) && !(fk.References == table && seen[ref]) {
				return fmt.Errorf("insert %s: %s=%s violates foreign key to %s", table, fk.Field, ref, fk.References)
			}
		}
	}
	for _, r := range rows {
		live = append(live, cloneRow(r))
	}
	s.tables[table] = live
	return nil
}

func containsID(rows []Row, id string) bool {
	for _, r := range rows {
		if rid, _ := r.ID(); rid == id {
			return true
		}
	}
	return false
}

func cloneRow(r Row) Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
