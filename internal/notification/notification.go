package notification

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// KindCustomerCharge is emitted after a customer is charged.
	KindCustomerCharge = "customer_charge"
	// KindCustomerPayment is emitted after a customer payment lands in an account.
	KindCustomerPayment = "customer_payment"
	// KindWholesalerPayment is emitted after a wholesaler is paid from an account.
	KindWholesalerPayment = "wholesaler_payment"
	// KindInvoiceCommitted is emitted after a purchase invoice is booked.
	KindInvoiceCommitted = "invoice_committed"
	// KindInvoiceDeleted is emitted after a purchase invoice is reversed.
	KindInvoiceDeleted = "invoice_deleted"
	// KindPaymentDeleted is emitted after a linked payment pair is removed.
	KindPaymentDeleted = "payment_deleted"
	// KindLedgerAdjusted covers manual edits, deletes and adjustments.
	KindLedgerAdjusted = "ledger_adjusted"
	// KindAccountTransfer is emitted after cash moves between two accounts.
	KindAccountTransfer = "account_transfer"
	// KindCriticalInconsistency is emitted when a compensation could not restore consistency.
	KindCriticalInconsistency = "critical_inconsistency"
	// KindRestoreCompleted is emitted after a snapshot restore.
	KindRestoreCompleted = "restore_completed"
)

// Event describes one posting outcome for downstream consumers.
type Event struct {
	Kind       string          `json:"kind"`
	Operation  string          `json:"operation"`
	OwnerID    string          `json:"owner_id,omitempty"`
	AccountID  string          `json:"account_id,omitempty"`
	EntryIDs   []string        `json:"entry_ids,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	Detail     string          `json:"detail,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Publisher delivers events to downstream systems.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// LoggerPublisher writes events to the structured logger.
type LoggerPublisher struct {
	logger *slog.Logger
}

// NewLoggerPublisher constructs a logging publisher.
func NewLoggerPublisher(logger *slog.Logger) *LoggerPublisher {
	return &LoggerPublisher{logger: logger}
}

// Publish writes the event to the structured logger.
func (n *LoggerPublisher) Publish(_ context.Context, event Event) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("event",
		slog.String("kind", event.Kind),
		slog.String("operation", event.Operation),
		slog.String("owner_id", event.OwnerID),
		slog.String("amount", event.Amount.String()),
		slog.Any("entry_ids", event.EntryIDs),
	)
	return nil
}

// Fanout publishes to every publisher and returns the first error.
type Fanout []Publisher

// Publish sends the event to all publishers.
func (f Fanout) Publish(ctx context.Context, event Event) error {
	var first error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}
