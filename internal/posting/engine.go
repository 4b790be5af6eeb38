package posting

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shopdesk/backoffice/internal/debt"
	"github.com/shopdesk/backoffice/internal/invoice"
	"github.com/shopdesk/backoffice/internal/ledger"
	"github.com/shopdesk/backoffice/internal/logging"
	"github.com/shopdesk/backoffice/internal/notification"
	"github.com/shopdesk/backoffice/internal/owners"
)

var (
	// ErrLinkedEntry rejects edits of entries that belong to a multi-ledger operation.
	ErrLinkedEntry = &ledger.ValidationError{Field: "id", Message: "entry is linked to another record; use the operation that created it"}
	// ErrNotLinkedPayment is returned when a payment entry has no account counterpart.
	ErrNotLinkedPayment = &ledger.ValidationError{Field: "id", Message: "entry is not a linked payment"}
)

// Deps groups the collaborators of an Engine.
type Deps struct {
	Ledger          ledger.Store
	Owners          owners.Repository
	Invoices        invoice.Repository
	Locker          ledger.Locker
	Policy          debt.Policy
	Publisher       notification.Publisher
	Logger          *slog.Logger
	Metrics         *Metrics
	PrimaryCurrency string
}

// Engine executes business operations as sagas across the ledgers, the owner
// aggregates and the invoice store.
type Engine struct {
	ledger    ledger.Store
	owners    owners.Repository
	invoices  invoice.Repository
	locker    ledger.Locker
	recalc    *ledger.Recalculator
	policy    debt.Policy
	publisher notification.Publisher
	logger    *slog.Logger
	metrics   *Metrics
	currency  string
	now       func() time.Time
}

// NewEngine wires an engine. Missing optional dependencies fall back to
// in-process defaults.
func NewEngine(d Deps) *Engine {
	if d.Locker == nil {
		d.Locker = ledger.NewLocalLocker()
	}
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}
	if d.Metrics == nil {
		d.Metrics = NewMetrics(nil)
	}
	if d.PrimaryCurrency == "" {
		d.PrimaryCurrency = "XAF"
	}
	return &Engine{
		ledger:    d.Ledger,
		owners:    d.Owners,
		invoices:  d.Invoices,
		locker:    d.Locker,
		recalc:    ledger.NewRecalculator(d.Ledger, d.Owners, d.Locker),
		policy:    d.Policy,
		publisher: d.Publisher,
		logger:    d.Logger,
		metrics:   d.Metrics,
		currency:  d.PrimaryCurrency,
		now:       func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// Result describes the entries written or removed by an operation.
type Result struct {
	Operation string
	Entries   []ledger.Entry
	InvoiceID string
}

type ownerRef struct {
	book ledger.Book
	id   string
}

// appendStep appends *entry under the owner's lock. Id and timestamp are
// assigned inside the lock so replay order matches append order.
func (e *Engine) appendStep(s *Saga, name string, entry *ledger.Entry) {
	s.Add(name, func(ctx context.Context) error {
		return e.locker.WithLock(ctx, ledger.LockKey(entry.Book, entry.OwnerID), func(ctx context.Context) error {
			entry.ID = uuid.Must(uuid.NewV7()).String()
			entry.Timestamp = e.now()
			stored, err := e.ledger.Append(ctx, *entry)
			if err != nil {
				return err
			}
			*entry = stored
			return nil
		})
	}, func(ctx context.Context) error {
		return e.ledger.Delete(ctx, entry.Book, entry.ID)
	})
}

func (e *Engine) deleteStep(s *Saga, name string, entry ledger.Entry) {
	s.Add(name, func(ctx context.Context) error {
		return e.ledger.Delete(ctx, entry.Book, entry.ID)
	}, func(ctx context.Context) error {
		return e.ledger.Restore(ctx, entry)
	})
}

func (e *Engine) recalcStep(s *Saga, book ledger.Book, ownerID string) {
	s.Add("recalculate "+string(book)+" ledger", func(ctx context.Context) error {
		_, err := e.recalc.Recalculate(ctx, book, ownerID)
		return err
	}, nil)
}

func (e *Engine) balanceStep(s *Saga, name string, book ledger.Book, ownerID string, delta decimal.Decimal) {
	s.Add(name, func(ctx context.Context) error {
		return e.owners.IncrementBalance(ctx, book, ownerID, delta)
	}, func(ctx context.Context) error {
		return e.owners.IncrementBalance(ctx, book, ownerID, delta.Neg())
	})
}

func (e *Engine) debtStep(s *Saga, name, wholesalerID string, primary, secondary func() decimal.Decimal) {
	s.Add(name, func(ctx context.Context) error {
		return e.owners.IncrementDebt(ctx, wholesalerID, primary(), secondary())
	}, func(ctx context.Context) error {
		return e.owners.IncrementDebt(ctx, wholesalerID, primary().Neg(), secondary().Neg())
	})
}

func (e *Engine) linkStep(s *Saga, account *ledger.Entry, owner *ledger.Entry) {
	s.Add("link account entry", func(ctx context.Context) error {
		ref := owner.Ref()
		if err := e.ledger.SetCounterpart(ctx, account.ID, &ref); err != nil {
			return err
		}
		account.Counterpart = &ref
		return nil
	}, func(ctx context.Context) error {
		return e.ledger.SetCounterpart(ctx, account.ID, nil)
	})
}

// run executes the saga detached from the caller's cancellation so an abandoned
// request still completes or compensates.
func (e *Engine) run(ctx context.Context, s *Saga, touched ...ownerRef) error {
	ctx = context.WithoutCancel(ctx)
	s.OnCompensated = func(ctx context.Context) error {
		var errs []error
		for _, o := range touched {
			if _, err := e.recalc.Recalculate(ctx, o.book, o.id); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	start := time.Now()
	err := s.Run(ctx)
	elapsed := time.Since(start).Seconds()

	var (
		verr    *ledger.ValidationError
		compErr *CompensationError
	)
	switch {
	case err == nil:
		e.metrics.observe(s.Name, resultOK, elapsed)
	case errors.As(err, &compErr):
		e.metrics.observe(s.Name, resultCritical, elapsed)
		e.logger.Error("posting left ledgers inconsistent",
			slog.String("operation", s.Name),
			slog.Bool("critical", true),
			slog.Any("error", err),
		)
		e.publish(ctx, notification.Event{
			Kind:      notification.KindCriticalInconsistency,
			Operation: s.Name,
			OwnerID:   firstOwner(touched),
			Detail:    err.Error(),
		})
	case errors.As(err, &verr):
		e.metrics.observe(s.Name, resultRejected, elapsed)
	default:
		e.metrics.observe(s.Name, resultRolledBack, elapsed)
		e.logger.Warn("posting rolled back", slog.String("operation", s.Name), slog.Any("error", err))
	}
	return err
}

// reject records an operation refused before any write.
func (e *Engine) reject(operation string, err error) error {
	e.metrics.observe(operation, resultRejected, 0)
	return err
}

func (e *Engine) publish(ctx context.Context, ev notification.Event) {
	if e.publisher == nil {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = e.now()
	}
	if err := e.publisher.Publish(ctx, ev); err != nil {
		e.logger.Warn("publish event failed", slog.String("kind", ev.Kind), slog.Any("error", err))
	}
}

func firstOwner(refs []ownerRef) string {
	if len(refs) == 0 {
		return ""
	}
	return refs[0].id
}

func entryIDs(entries ...ledger.Entry) []string {
	ids := make([]string, 0, len(entries))
	for _, en := range entries {
		ids = append(ids, en.ID)
	}
	return ids
}

func requirePositive(field string, v decimal.Decimal) error {
	if !v.IsPositive() {
		return ledger.NewValidationError(field, "amount must be positive")
	}
	return nil
}

// Entries lists an owner's ledger in replay order.
func (e *Engine) Entries(ctx context.Context, book ledger.Book, ownerID string) ([]ledger.Entry, error) {
	return e.ledger.ListByOwner(ctx, book, ownerID)
}

// Recalculate rebuilds one owner's running balances on demand.
func (e *Engine) Recalculate(ctx context.Context, book ledger.Book, ownerID string) (ledger.Result, error) {
	return e.recalc.Recalculate(context.WithoutCancel(ctx), book, ownerID)
}
