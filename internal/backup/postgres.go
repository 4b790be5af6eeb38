package backup

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore moves whole tables in and out of Postgres as JSON documents.
type PostgresStore struct {
	db     *pgxpool.Pool
	schema string
}

// NewPostgresStore constructs a table store over the public schema.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db, schema: "public"}
}

// ident quotes a catalogue table name. Anything else is refused so table
// names never reach SQL from snapshot input.
func (s *PostgresStore) ident(table string) (string, error) {
	if _, ok := Lookup(table); !ok {
		return "", fmt.Errorf("%s: %w", table, ErrUnknownTable)
	}
	return pgx.Identifier{s.schema, table}.Sanitize(), nil
}

func (s *PostgresStore) Exists(ctx context.Context, table string) (bool, error) {
	if _, ok := Lookup(table); !ok {
		return false, nil
	}
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, s.schema+"."+table).Scan(&exists)
	return exists, err
}

func (s *PostgresStore) Fetch(ctx context.Context, table string) ([]Row, error) {
	name, err := s.ident(table)
	if err != nil {
		return nil, err
	}
	var raw []byte
	query := fmt.Sprintf(`SELECT COALESCE(jsonb_agg(to_jsonb(t)), '[]'::jsonb) FROM %s t`, name)
	if err := s.db.QueryRow(ctx, query).Scan(&raw); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", table, err)
	}
	rows, err := decodeRows(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", table, err)
	}
	return rows, nil
}

func (s *PostgresStore) DeleteAll(ctx context.Context, table string) (int64, error) {
	name, err := s.ident(table)
	if err != nil {
		return 0, err
	}
	tag, err := s.db.Exec(ctx, `DELETE FROM `+name)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", table, err)
	}
	return tag.RowsAffected(), nil
}

// Insert writes one chunk with a single statement; columns the live table
// does not have are ignored and missing ones are written as null.
func (s *PostgresStore) Insert(ctx context.Context, table string, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	name, err := s.ident(table)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("encode %s chunk: %w", table, err)
	}
	query := fmt.Sprintf(`INSERT INTO %[1]s SELECT * FROM jsonb_populate_recordset(NULL::%[1]s, $1::jsonb)`, name)
	if _, err := s.db.Exec(ctx, query, string(payload)); err != nil {
		return fmt.Errorf("insert %s chunk: %w", table, err)
	}
	return nil
}
