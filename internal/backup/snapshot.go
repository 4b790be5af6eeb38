package backup

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// SnapshotVersion is written into every export.
const SnapshotVersion = 1

// Row is one table row keyed by column name. Numbers decode as json.Number so
// decimal columns keep their exact text.
type Row map[string]any

// ID returns the row's primary key.
func (r Row) ID() (string, bool) {
	return refKey(r["id"])
}

// Snapshot is a whole-system export. A table missing from Tables was not part
// of the export; a present table with no rows was exported empty.
type Snapshot struct {
	Version   int
	Timestamp time.Time
	Tables    map[string][]Row
}

// Has reports whether the snapshot carries table.
func (s Snapshot) Has(table string) bool {
	_, ok := s.Tables[table]
	return ok
}

// Rows returns the rows of table and whether the table is present.
func (s Snapshot) Rows(table string) ([]Row, bool) {
	rows, ok := s.Tables[table]
	return rows, ok
}

// Set marks table present with rows.
func (s *Snapshot) Set(table string, rows []Row) {
	if s.Tables == nil {
		s.Tables = make(map[string][]Row)
	}
	if rows == nil {
		rows = []Row{}
	}
	s.Tables[table] = rows
}

// names returns the present tables, catalogue tables first in insert order.
func (s Snapshot) names() []string {
	out := make([]string, 0, len(s.Tables))
	for _, t := range Tables {
		if s.Has(t.Name) {
			out = append(out, t.Name)
		}
	}
	var extra []string
	for name := range s.Tables {
		if _, ok := Lookup(name); !ok {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}

// MarshalJSON writes version and timestamp followed by one array per present table.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"version":`)
	fmt.Fprintf(&buf, "%d", s.Version)
	ts, err := json.Marshal(s.Timestamp.UTC())
	if err != nil {
		return nil, err
	}
	buf.WriteString(`,"timestamp":`)
	buf.Write(ts)
	for _, name := range s.names() {
		rows := s.Tables[name]
		if rows == nil {
			rows = []Row{}
		}
		raw, err := json.Marshal(rows)
		if err != nil {
			return nil, fmt.Errorf("encode table %s: %w", name, err)
		}
		key, _ := json.Marshal(name)
		buf.WriteByte(',')
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(raw)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a snapshot. A null table field counts as absent.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	out := Snapshot{Tables: make(map[string][]Row)}
	for key, raw := range fields {
		switch key {
		case "version":
			if err := json.Unmarshal(raw, &out.Version); err != nil {
				return fmt.Errorf("decode version: %w", err)
			}
		case "timestamp":
			if err := json.Unmarshal(raw, &out.Timestamp); err != nil {
				return fmt.Errorf("decode timestamp: %w", err)
			}
		default:
			if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
				continue
			}
			rows, err := decodeRows(raw)
			if err != nil {
				return fmt.Errorf("decode table %s: %w", key, err)
			}
			out.Set(key, rows)
		}
	}
	*s = out
	return nil
}

func decodeRows(raw []byte) ([]Row, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var rows []Row
	if err := dec.Decode(&rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// refKey normalises an id or foreign-key value. Null and empty values are not references.
func refKey(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, x != ""
	case json.Number:
		return x.String(), true
	default:
		return fmt.Sprint(x), true
	}
}

func stripTransient(t Table, rows []Row) []Row {
	if len(t.Transient) == 0 {
		return rows
	}
	out := make([]Row, len(rows))
	for i, r := range rows {
		clean := make(Row, len(r))
		for k, v := range r {
			clean[k] = v
		}
		for _, f := range t.Transient {
			delete(clean, f)
		}
		out[i] = clean
	}
	return out
}
