package backup

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotDistinguishesAbsentFromEmpty(t *testing.T) {
	raw := `{"version":1,"timestamp":"2026-01-02T03:04:05Z","customers":[],"accounts":null,"sales":[{"id":"s1","total":12.50}]}`

	var snap Snapshot
	require.NoError(t, json.Unmarshal([]byte(raw), &snap))

	assert.Equal(t, 1, snap.Version)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), snap.Timestamp)
	assert.True(t, snap.Has("customers"))
	rows, ok := snap.Rows("customers")
	assert.True(t, ok)
	assert.Empty(t, rows)
	assert.False(t, snap.Has("accounts"), "null means absent")
	assert.False(t, snap.Has("products"), "missing means absent")

	sales, _ := snap.Rows("sales")
	require.Len(t, sales, 1)
	assert.Equal(t, json.Number("12.50"), sales[0]["total"])
}

func TestSnapshotMarshalOrdersTables(t *testing.T) {
	snap := Snapshot{Version: SnapshotVersion, Timestamp: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)}
	snap.Set("account_ledger", nil)
	snap.Set("customers", []Row{{"id": "c1", "balance": json.Number("10.00")}})

	raw, err := json.Marshal(snap)
	require.NoError(t, err)
	out := string(raw)

	assert.True(t, strings.HasPrefix(out, `{"version":1,"timestamp":"2026-01-02T00:00:00Z","customers":`), out)
	assert.Contains(t, out, `"balance":10.00`)
	assert.Contains(t, out, `"account_ledger":[]`)
	assert.NotContains(t, out, `"accounts"`)
	assert.Less(t, strings.Index(out, `"customers"`), strings.Index(out, `"account_ledger"`))
}

func TestSnapshotRejectsMalformedTable(t *testing.T) {
	var snap Snapshot
	err := json.Unmarshal([]byte(`{"version":1,"customers":{"id":"c1"}}`), &snap)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "customers")
}
