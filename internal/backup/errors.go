package backup

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSnapshotVersion rejects snapshots written by a format this build does not read.
var ErrSnapshotVersion = errors.New("unsupported snapshot version")

func checkVersion(snap Snapshot) error {
	if snap.Version != SnapshotVersion {
		return fmt.Errorf("%w %d, want %d", ErrSnapshotVersion, snap.Version, SnapshotVersion)
	}
	return nil
}

// Violation is one reference that does not resolve.
type Violation struct {
	Table      string `json:"table"`
	RowID      string `json:"row_id"`
	Field      string `json:"field"`
	Value      string `json:"value"`
	References string `json:"references"`
	Reason     string `json:"reason,omitempty"`
}

func (v Violation) String() string {
	if v.Reason != "" {
		return fmt.Sprintf("%s[%s]: %s", v.Table, v.RowID, v.Reason)
	}
	return fmt.Sprintf("%s[%s].%s=%s not found in %s", v.Table, v.RowID, v.Field, v.Value, v.References)
}

// ReferentialIntegrityError aborts a restore before anything was deleted.
type ReferentialIntegrityError struct {
	Violations []Violation
}

func (e *ReferentialIntegrityError) Error() string {
	const shown = 5
	parts := make([]string, 0, shown)
	for i, v := range e.Violations {
		if i == shown {
			break
		}
		parts = append(parts, v.String())
	}
	msg := fmt.Sprintf("snapshot failed referential pre-check: %d violation(s): %s", len(e.Violations), strings.Join(parts, "; "))
	if len(e.Violations) > shown {
		msg += "; ..."
	}
	return msg
}

// PartialRestoreError reports a restore that stopped after the delete phase.
// Tables listed in Completed were fully restored; Table holds Inserted rows.
type PartialRestoreError struct {
	Table     string
	Inserted  int
	Completed []string
	Err       error
}

func (e *PartialRestoreError) Error() string {
	return fmt.Sprintf("restore stopped in table %s after %d row(s) (completed: %s): %v",
		e.Table, e.Inserted, strings.Join(e.Completed, ", "), e.Err)
}

func (e *PartialRestoreError) Unwrap() error { return e.Err }
