package backup

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// Exporter reads every catalogue table into a snapshot.
type Exporter struct {
	store       TableStore
	concurrency int
	now         func() time.Time
}

// NewExporter builds an exporter reading up to four tables at a time.
func NewExporter(store TableStore) *Exporter {
	return &Exporter{store: store, concurrency: 4, now: time.Now}
}

// Export fetches all live tables. Tables missing from the live schema are
// left out of the snapshot.
func (e *Exporter) Export(ctx context.Context) (Snapshot, error) {
	results := make([][]Row, len(Tables))
	present := make([]bool, len(Tables))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, t := range Tables {
		i, t := i, t
		g.Go(func() error {
			ok, err := e.store.Exists(gctx, t.Name)
			if err != nil {
				return fmt.Errorf("check table %s: %w", t.Name, err)
			}
			if !ok {
				return nil
			}
			rows, err := e.store.Fetch(gctx, t.Name)
			if err != nil {
				return fmt.Errorf("export table %s: %w", t.Name, err)
			}
			results[i] = stripTransient(t, rows)
			present[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{Version: SnapshotVersion, Timestamp: e.now().UTC()}
	for i, t := range Tables {
		if present[i] {
			snap.Set(t.Name, results[i])
		}
	}
	return snap, nil
}
