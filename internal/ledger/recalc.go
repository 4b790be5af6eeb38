package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// BalanceSink receives the owner aggregate balance produced by a recalculation.
// For wholesalers secondary is the replayed secondary-currency debt; other books ignore it.
type BalanceSink interface {
	SetBalance(ctx context.Context, book Book, ownerID string, primary, secondary decimal.Decimal) error
}

// Recalculator replays an owner's ledger and rewrites every running balance plus
// the owner's cached balance. It must run after any edit or delete.
type Recalculator struct {
	store  Store
	sink   BalanceSink
	locker Locker
}

// NewRecalculator wires a recalculator. A nil locker falls back to an in-process lock.
func NewRecalculator(store Store, sink BalanceSink, locker Locker) *Recalculator {
	if locker == nil {
		locker = NewLocalLocker()
	}
	return &Recalculator{store: store, sink: sink, locker: locker}
}

// Result summarises one recalculation.
type Result struct {
	Entries   int
	Rewritten int
	Balance   decimal.Decimal
	Secondary decimal.Decimal
}

// Recalculate rebuilds the running balances of one owner's ledger while holding
// the owner lock.
func (r *Recalculator) Recalculate(ctx context.Context, book Book, ownerID string) (Result, error) {
	var res Result
	err := r.locker.WithLock(ctx, LockKey(book, ownerID), func(ctx context.Context) error {
		entries, err := r.store.ListByOwner(ctx, book, ownerID)
		if err != nil {
			return err
		}
		balances, primary, secondary := Replay(entries)

		changed := make(map[string]decimal.Decimal)
		for _, e := range entries {
			if want := balances[e.ID]; !want.Equal(e.RunningBalance) {
				changed[e.ID] = want
			}
		}
		if len(changed) > 0 {
			if err := r.store.SetRunningBalances(ctx, book, changed); err != nil {
				return err
			}
		}
		if err := r.sink.SetBalance(ctx, book, ownerID, primary, secondary); err != nil {
			return err
		}
		res = Result{Entries: len(entries), Rewritten: len(changed), Balance: primary, Secondary: secondary}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("recalculate %s ledger of %s: %w", book, ownerID, err)
	}
	return res, nil
}

// LockKey is the lock name guarding one owner's ledger history.
func LockKey(book Book, ownerID string) string {
	return "lock:ledger:" + string(book) + ":" + ownerID
}
