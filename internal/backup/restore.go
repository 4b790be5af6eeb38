package backup

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopdesk/backoffice/internal/logging"
)

// DefaultChunkSize bounds the rows sent in one insert request.
const DefaultChunkSize = 500

// TableReport summarises what a restore did to one table.
type TableReport struct {
	Table    string `json:"table"`
	Deleted  int64  `json:"deleted"`
	Inserted int    `json:"inserted"`
	Dropped  int    `json:"dropped"`
}

// Report describes a finished or checked restore.
type Report struct {
	DryRun bool          `json:"dry_run"`
	Tables []TableReport `json:"tables"`
	// Skipped lists snapshot tables that are unknown or missing from the live schema.
	Skipped []string `json:"skipped,omitempty"`
	// Untouched lists live tables the snapshot does not carry.
	Untouched []string      `json:"untouched,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// RestoreConfig tunes a Restorer.
type RestoreConfig struct {
	ChunkSize int
	Logger    *slog.Logger
	Metrics   *Metrics
}

// Restorer replaces live tables with the contents of a snapshot.
type Restorer struct {
	store   TableStore
	chunk   int
	logger  *slog.Logger
	metrics *Metrics
}

// NewRestorer builds a restorer over store.
func NewRestorer(store TableStore, cfg RestoreConfig) *Restorer {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	return &Restorer{store: store, chunk: cfg.ChunkSize, logger: cfg.Logger, metrics: cfg.Metrics}
}

type plan struct {
	replaced  map[string]bool
	untouched map[string][]Row
	skipped   []string
}

func (r *Restorer) prepare(ctx context.Context, snap Snapshot) (*plan, error) {
	p := &plan{replaced: map[string]bool{}, untouched: map[string][]Row{}}
	for _, t := range Tables {
		live, err := r.store.Exists(ctx, t.Name)
		if err != nil {
			return nil, fmt.Errorf("check table %s: %w", t.Name, err)
		}
		switch {
		case live && snap.Has(t.Name):
			p.replaced[t.Name] = true
		case live:
			rows, err := r.store.Fetch(ctx, t.Name)
			if err != nil {
				return nil, fmt.Errorf("read table %s: %w", t.Name, err)
			}
			p.untouched[t.Name] = rows
		case snap.Has(t.Name):
			p.skipped = append(p.skipped, t.Name)
		}
	}
	for name := range snap.Tables {
		if _, ok := Lookup(name); !ok {
			p.skipped = append(p.skipped, name)
		}
	}
	sort.Strings(p.skipped)
	return p, nil
}

// precheck validates every reference against the state the restore would
// produce: snapshot rows for tables it carries, live rows for the rest.
func precheck(snap Snapshot, p *plan) []Violation {
	final := make(map[string]map[string]bool, len(Tables))
	var out []Violation
	for _, t := range Tables {
		rows, ok := snap.Rows(t.Name)
		if !ok {
			rows = p.untouched[t.Name]
		}
		ids := make(map[string]bool, len(rows))
		for i, row := range rows {
			id, ok := row.ID()
			switch {
			case !ok:
				out = append(out, Violation{Table: t.Name, RowID: fmt.Sprintf("#%d", i), Reason: "row has no id"})
			case ids[id]:
				out = append(out, Violation{Table: t.Name, RowID: id, Reason: "duplicate id"})
			default:
				ids[id] = true
			}
		}
		final[t.Name] = ids
	}

	for _, t := range Tables {
		rows, inSnapshot := snap.Rows(t.Name)
		if !inSnapshot {
			rows = p.untouched[t.Name]
		}
		for _, row := range rows {
			id, _ := row.ID()
			for _, fk := range t.ForeignKeys {
				ref, set := refKey(row[fk.Field])
				if !set {
					continue
				}
				if !inSnapshot && p.replaced[fk.References] {
					out = append(out, Violation{
						Table: t.Name, RowID: id, Field: fk.Field, Value: ref, References: fk.References,
						Reason: fmt.Sprintf("live row references %s, which the snapshot replaces", fk.References),
					})
					continue
				}
				if !final[fk.References][ref] {
					out = append(out, Violation{Table: t.Name, RowID: id, Field: fk.Field, Value: ref, References: fk.References})
				}
			}
		}
	}
	return out
}

// Check runs the referential pre-check without touching any table.
func (r *Restorer) Check(ctx context.Context, snap Snapshot) (Report, error) {
	start := time.Now()
	if err := checkVersion(snap); err != nil {
		return Report{}, err
	}
	p, err := r.prepare(ctx, snap)
	if err != nil {
		return Report{}, err
	}
	report := r.baseReport(p)
	report.DryRun = true
	if v := precheck(snap, p); len(v) > 0 {
		return report, &ReferentialIntegrityError{Violations: v}
	}
	for _, t := range Tables {
		if !p.replaced[t.Name] {
			continue
		}
		rows, _ := snap.Rows(t.Name)
		report.Tables = append(report.Tables, TableReport{Table: t.Name, Inserted: len(rows)})
	}
	report.Duration = time.Since(start)
	return report, nil
}

// Restore deletes every table the snapshot carries, most dependent first, and
// inserts the snapshot rows back in dependency order with their original ids.
// It runs to completion even if ctx is cancelled.
func (r *Restorer) Restore(ctx context.Context, snap Snapshot) (Report, error) {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()

	if err := checkVersion(snap); err != nil {
		r.metrics.run("rejected")
		return Report{}, err
	}
	p, err := r.prepare(ctx, snap)
	if err != nil {
		r.metrics.run("failed")
		return Report{}, err
	}
	report := r.baseReport(p)
	if v := precheck(snap, p); len(v) > 0 {
		r.metrics.run("rejected")
		r.logger.Warn("restore rejected by referential pre-check", slog.Int("violations", len(v)))
		return report, &ReferentialIntegrityError{Violations: v}
	}

	tableReports := make(map[string]*TableReport, len(p.replaced))
	for _, t := range DeleteOrder() {
		if !p.replaced[t.Name] {
			continue
		}
		n, err := r.store.DeleteAll(ctx, t.Name)
		if err != nil {
			r.metrics.run("partial")
			r.logger.Error("restore failed during delete phase",
				slog.String("table", t.Name), slog.Bool("critical", true), slog.Any("error", err))
			return report, &PartialRestoreError{Table: t.Name, Err: fmt.Errorf("delete: %w", err)}
		}
		tableReports[t.Name] = &TableReport{Table: t.Name, Deleted: n}
		r.metrics.rowsTouched(t.Name, "deleted", int(n))
	}
	r.logger.Info("restore delete phase finished", slog.Int("tables", len(tableReports)))

	known := make(map[string]map[string]bool, len(Tables))
	for name, rows := range p.untouched {
		known[name] = idSet(rows)
	}
	var completed []string
	for _, t := range Tables {
		if !p.replaced[t.Name] {
			continue
		}
		tr := tableReports[t.Name]
		rows, _ := snap.Rows(t.Name)
		keep, dropped := resolvable(t, stripTransient(t, rows), known)
		tr.Dropped = dropped
		if dropped > 0 {
			r.logger.Warn("dropped rows with unresolved references", slog.String("table", t.Name), slog.Int("rows", dropped))
		}

		for from := 0; from < len(keep); from += r.chunk {
			to := min(from+r.chunk, len(keep))
			if err := r.store.Insert(ctx, t.Name, keep[from:to]); err != nil {
				r.metrics.run("partial")
				r.logger.Error("restore failed during insert phase",
					slog.String("table", t.Name), slog.Int("inserted", tr.Inserted),
					slog.Bool("critical", true), slog.Any("error", err))
				report.Tables = collect(tableReports)
				return report, &PartialRestoreError{Table: t.Name, Inserted: tr.Inserted, Completed: completed, Err: err}
			}
			tr.Inserted += to - from
		}
		known[t.Name] = idSet(keep)
		completed = append(completed, t.Name)
		r.metrics.rowsTouched(t.Name, "inserted", tr.Inserted)
		r.metrics.rowsTouched(t.Name, "dropped", tr.Dropped)
	}

	report.Tables = collect(tableReports)
	report.Duration = time.Since(start)
	r.metrics.run("ok")
	r.logger.Info("restore finished", slog.Int("tables", len(completed)), slog.Duration("duration", report.Duration))
	return report, nil
}

func (r *Restorer) baseReport(p *plan) Report {
	report := Report{Skipped: p.skipped}
	for _, t := range Tables {
		if _, ok := p.untouched[t.Name]; ok {
			report.Untouched = append(report.Untouched, t.Name)
		}
	}
	return report
}

// resolvable drops rows whose references point at ids that were not restored.
// References into tables missing from the live schema are not checked.
func resolvable(t Table, rows []Row, known map[string]map[string]bool) ([]Row, int) {
	keep := make([]Row, 0, len(rows))
	dropped := 0
	for _, row := range rows {
		ok := true
		for _, fk := range t.ForeignKeys {
			ref, set := refKey(row[fk.Field])
			if !set {
				continue
			}
			ids, tracked := known[fk.References]
			if tracked && !ids[ref] {
				ok = false
				break
			}
		}
		if ok {
			keep = append(keep, row)
		} else {
			dropped++
		}
	}
	return keep, dropped
}

func idSet(rows []Row) map[string]bool {
	ids := make(map[string]bool, len(rows))
	for _, row := range rows {
		if id, ok := row.ID(); ok {
			ids[id] = true
		}
	}
	return ids
}

func collect(m map[string]*TableReport) []TableReport {
	out := make([]TableReport, 0, len(m))
	for _, t := range Tables {
		if tr, ok := m[t.Name]; ok {
			out = append(out, *tr)
		}
	}
	return out
}
