package posting

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/shopdesk/backoffice/internal/invoice"
	"github.com/shopdesk/backoffice/internal/ledger"
	"github.com/shopdesk/backoffice/internal/notification"
	"github.com/shopdesk/backoffice/internal/owners"
)

// Operation names as they appear in metrics, logs and events.
const (
	OpCustomerCharge     = "customer_charge"
	OpCustomerPayment    = "customer_payment"
	OpWholesalerPayment  = "wholesaler_payment"
	OpCommitInvoice      = "commit_purchase_invoice"
	OpDeleteInvoice      = "delete_invoice"
	OpDeletePayment      = "delete_payment_entry"
	OpClearSecondaryDebt = "clear_secondary_debt"
	OpEditEntry          = "edit_entry"
	OpDeleteEntry        = "delete_entry"
	OpAccountTransfer    = "account_transfer"
	OpAdjust             = "adjust_balance"
)

// ChargeInput charges a customer on account.
type ChargeInput struct {
	CustomerID string
	Amount     decimal.Decimal
	Note       string
}

// CustomerCharge records goods or services sold on credit.
func (e *Engine) CustomerCharge(ctx context.Context, in ChargeInput) (Result, error) {
	if err := requirePositive("amount", in.Amount); err != nil {
		return Result{}, e.reject(OpCustomerCharge, err)
	}
	if _, err := e.owners.GetCustomer(ctx, in.CustomerID); err != nil {
		return Result{}, e.reject(OpCustomerCharge, err)
	}

	entry := &ledger.Entry{Book: ledger.BookCustomer, OwnerID: in.CustomerID, Kind: ledger.KindCharge, Amount: in.Amount, Note: in.Note}
	s := &Saga{Name: OpCustomerCharge}
	e.appendStep(s, "append customer charge", entry)
	e.recalcStep(s, ledger.BookCustomer, in.CustomerID)

	if err := e.run(ctx, s, ownerRef{ledger.BookCustomer, in.CustomerID}); err != nil {
		return Result{}, err
	}
	e.publish(ctx, notification.Event{
		Kind: notification.KindCustomerCharge, Operation: OpCustomerCharge,
		OwnerID: in.CustomerID, EntryIDs: entryIDs(*entry), Amount: in.Amount,
	})
	return Result{Operation: OpCustomerCharge, Entries: []ledger.Entry{*entry}}, nil
}

// PaymentInput moves money between an owner and an account.
type PaymentInput struct {
	OwnerID   string
	AccountID string
	Amount    decimal.Decimal
	Note      string
}

// CustomerPayment records a customer settling debt into an account.
func (e *Engine) CustomerPayment(ctx context.Context, in PaymentInput) (Result, error) {
	if err := requirePositive("amount", in.Amount); err != nil {
		return Result{}, e.reject(OpCustomerPayment, err)
	}
	if _, err := e.owners.GetCustomer(ctx, in.OwnerID); err != nil {
		return Result{}, e.reject(OpCustomerPayment, err)
	}
	if _, err := e.owners.GetAccount(ctx, in.AccountID); err != nil {
		return Result{}, e.reject(OpCustomerPayment, err)
	}

	custEntry := &ledger.Entry{Book: ledger.BookCustomer, OwnerID: in.OwnerID, Kind: ledger.KindPayment, Amount: in.Amount.Neg(), Note: in.Note}
	acctEntry := &ledger.Entry{Book: ledger.BookAccount, OwnerID: in.AccountID, Kind: ledger.KindInflow, Amount: in.Amount, Note: in.Note}

	s := &Saga{Name: OpCustomerPayment}
	e.appendStep(s, "append customer payment", custEntry)
	e.recalcStep(s, ledger.BookCustomer, in.OwnerID)
	e.appendStep(s, "append account inflow", acctEntry)
	e.balanceStep(s, "increment account balance", ledger.BookAccount, in.AccountID, in.Amount)
	e.linkStep(s, acctEntry, custEntry)

	if err := e.run(ctx, s,
		ownerRef{ledger.BookCustomer, in.OwnerID},
		ownerRef{ledger.BookAccount, in.AccountID},
	); err != nil {
		return Result{}, err
	}
	e.publish(ctx, notification.Event{
		Kind: notification.KindCustomerPayment, Operation: OpCustomerPayment,
		OwnerID: in.OwnerID, AccountID: in.AccountID, EntryIDs: entryIDs(*custEntry, *acctEntry), Amount: in.Amount,
	})
	return Result{Operation: OpCustomerPayment, Entries: []ledger.Entry{*custEntry, *acctEntry}}, nil
}

// WholesalerPayment pays a wholesaler from an account, reducing the secondary
// debt according to the debt policy.
func (e *Engine) WholesalerPayment(ctx context.Context, in PaymentInput) (Result, error) {
	if err := requirePositive("amount", in.Amount); err != nil {
		return Result{}, e.reject(OpWholesalerPayment, err)
	}
	w, err := e.owners.GetWholesaler(ctx, in.OwnerID)
	if err != nil {
		return Result{}, e.reject(OpWholesalerPayment, err)
	}
	if _, err := e.owners.GetAccount(ctx, in.AccountID); err != nil {
		return Result{}, e.reject(OpWholesalerPayment, err)
	}

	var reduction decimal.Decimal
	whsEntry := &ledger.Entry{Book: ledger.BookWholesaler, OwnerID: in.OwnerID, Kind: ledger.KindPayment, Amount: in.Amount.Neg(), Note: in.Note}
	acctEntry := &ledger.Entry{Book: ledger.BookAccount, OwnerID: in.AccountID, Kind: ledger.KindOutflow, Amount: in.Amount.Neg(), Note: in.Note}

	s := &Saga{Name: OpWholesalerPayment}
	s.Add("apply debt policy", func(context.Context) error {
		r, err := e.policy.SecondaryReduction(in.Amount, w.Balance, w.SecondaryBalance)
		if err != nil {
			return err
		}
		reduction = r
		whsEntry.SecondaryAmount = r.Neg()
		return nil
	}, nil)
	e.debtStep(s, "increment wholesaler debt", in.OwnerID,
		func() decimal.Decimal { return in.Amount.Neg() },
		func() decimal.Decimal { return reduction.Neg() })
	e.balanceStep(s, "increment account balance", ledger.BookAccount, in.AccountID, in.Amount.Neg())
	e.appendStep(s, "append wholesaler payment", whsEntry)
	e.appendStep(s, "append account outflow", acctEntry)
	e.linkStep(s, acctEntry, whsEntry)

	if err := e.run(ctx, s,
		ownerRef{ledger.BookWholesaler, in.OwnerID},
		ownerRef{ledger.BookAccount, in.AccountID},
	); err != nil {
		return Result{}, err
	}
	e.publish(ctx, notification.Event{
		Kind: notification.KindWholesalerPayment, Operation: OpWholesalerPayment,
		OwnerID: in.OwnerID, AccountID: in.AccountID, EntryIDs: entryIDs(*whsEntry, *acctEntry), Amount: in.Amount,
		Detail: "secondary reduction " + reduction.String(),
	})
	return Result{Operation: OpWholesalerPayment, Entries: []ledger.Entry{*whsEntry, *acctEntry}}, nil
}

// CommitPurchaseInvoice books a purchase on account: the invoice, the
// wholesaler debt, its ledger entry and the stock movements.
func (e *Engine) CommitPurchaseInvoice(ctx context.Context, draft invoice.Draft) (invoice.PurchaseInvoice, Result, error) {
	w, err := e.owners.GetWholesaler(ctx, draft.WholesalerID)
	if err != nil {
		return invoice.PurchaseInvoice{}, Result{}, e.reject(OpCommitInvoice, err)
	}
	if draft.SecondaryCurrency == "" {
		draft.SecondaryCurrency = w.SecondaryCurrency
	}
	inv, err := invoice.Build(draft, e.currency, e.now())
	if err != nil {
		return invoice.PurchaseInvoice{}, Result{}, e.reject(OpCommitInvoice, err)
	}
	for i, line := range inv.Lines {
		if line.ProductID == nil {
			continue
		}
		if _, err := e.owners.GetProduct(ctx, *line.ProductID); err != nil {
			if errors.Is(err, owners.ErrNotFound) {
				err = ledger.NewValidationError(fmt.Sprintf("lines[%d].product_id", i), "unknown product")
			}
			return invoice.PurchaseInvoice{}, Result{}, e.reject(OpCommitInvoice, err)
		}
	}

	secondary := invoice.SecondaryTotal(inv)
	entry := &ledger.Entry{
		Book:            ledger.BookWholesaler,
		OwnerID:         inv.WholesalerID,
		Kind:            ledger.KindPurchase,
		Amount:          inv.TotalPrimary,
		SecondaryAmount: secondary,
		InvoiceID:       inv.ID,
		Note:            inv.Number,
	}

	s := &Saga{Name: OpCommitInvoice}
	s.Add("insert invoice", func(ctx context.Context) error {
		return e.invoices.Insert(ctx, inv)
	}, func(ctx context.Context) error {
		return e.invoices.Delete(ctx, inv.ID)
	})
	e.debtStep(s, "increment wholesaler debt", inv.WholesalerID,
		func() decimal.Decimal { return inv.TotalPrimary },
		func() decimal.Decimal { return secondary })
	e.appendStep(s, "append wholesaler purchase", entry)
	for i, line := range inv.Lines {
		if line.ProductID == nil {
			continue
		}
		productID, qty := *line.ProductID, line.Quantity
		s.Add(fmt.Sprintf("increment stock line %d", i), func(ctx context.Context) error {
			return e.owners.IncrementQuantity(ctx, productID, qty)
		}, func(ctx context.Context) error {
			return e.owners.IncrementQuantity(ctx, productID, qty.Neg())
		})
		next := owners.LastCost{Cost: line.UnitCost, Currency: line.Currency, SupplierID: inv.WholesalerID}
		var prev owners.LastCost
		s.Add(fmt.Sprintf("update last cost line %d", i), func(ctx context.Context) error {
			old, err := e.owners.SwapLastCost(ctx, productID, next)
			prev = old
			return err
		}, func(ctx context.Context) error {
			_, err := e.owners.SwapLastCost(ctx, productID, prev)
			return err
		})
	}

	if err := e.run(ctx, s, ownerRef{ledger.BookWholesaler, inv.WholesalerID}); err != nil {
		return invoice.PurchaseInvoice{}, Result{}, err
	}
	e.publish(ctx, notification.Event{
		Kind: notification.KindInvoiceCommitted, Operation: OpCommitInvoice,
		OwnerID: inv.WholesalerID, EntryIDs: entryIDs(*entry), Amount: inv.TotalPrimary,
		Detail: "invoice " + inv.ID,
	})
	return inv, Result{Operation: OpCommitInvoice, Entries: []ledger.Entry{*entry}, InvoiceID: inv.ID}, nil
}

// DeleteInvoice reverses a committed purchase invoice.
func (e *Engine) DeleteInvoice(ctx context.Context, invoiceID string) (Result, error) {
	inv, err := e.invoices.Get(ctx, invoiceID)
	if err != nil {
		return Result{}, e.reject(OpDeleteInvoice, err)
	}
	entry, err := e.ledger.FindByInvoice(ctx, invoiceID)
	if err != nil {
		return Result{}, e.reject(OpDeleteInvoice, err)
	}
	secondary := invoice.SecondaryTotal(inv)

	s := &Saga{Name: OpDeleteInvoice}
	e.deleteStep(s, "delete wholesaler purchase", entry)
	s.Add("delete invoice", func(ctx context.Context) error {
		return e.invoices.Delete(ctx, inv.ID)
	}, func(ctx context.Context) error {
		return e.invoices.Insert(ctx, inv)
	})
	e.debtStep(s, "decrement wholesaler debt", inv.WholesalerID,
		func() decimal.Decimal { return inv.TotalPrimary.Neg() },
		func() decimal.Decimal { return secondary.Neg() })
	for i, line := range inv.Lines {
		if line.ProductID == nil {
			continue
		}
		productID, qty := *line.ProductID, line.Quantity
		s.Add(fmt.Sprintf("decrement stock line %d", i), func(ctx context.Context) error {
			return e.owners.IncrementQuantity(ctx, productID, qty.Neg())
		}, func(ctx context.Context) error {
			return e.owners.IncrementQuantity(ctx, productID, qty)
		})
	}
	e.recalcStep(s, ledger.BookWholesaler, inv.WholesalerID)

	if err := e.run(ctx, s, ownerRef{ledger.BookWholesaler, inv.WholesalerID}); err != nil {
		return Result{}, err
	}
	e.publish(ctx, notification.Event{
		Kind: notification.KindInvoiceDeleted, Operation: OpDeleteInvoice,
		OwnerID: inv.WholesalerID, EntryIDs: entryIDs(entry), Amount: inv.TotalPrimary,
		Detail: "invoice " + inv.ID,
	})
	return Result{Operation: OpDeleteInvoice, Entries: []ledger.Entry{entry}, InvoiceID: inv.ID}, nil
}

// DeletePaymentEntry removes a linked payment pair from an owner ledger and the
// account ledger and reverses both aggregates.
func (e *Engine) DeletePaymentEntry(ctx context.Context, book ledger.Book, entryID string) (Result, error) {
	if book != ledger.BookCustomer && book != ledger.BookWholesaler {
		return Result{}, e.reject(OpDeletePayment, ledger.NewValidationError("book", "payments belong to customer or wholesaler ledgers"))
	}
	ownerEntry, err := e.ledger.Get(ctx, book, entryID)
	if err != nil {
		return Result{}, e.reject(OpDeletePayment, err)
	}
	acctEntry, err := e.ledger.FindByCounterpart(ctx, ownerEntry.Ref())
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			err = ErrNotLinkedPayment
		}
		return Result{}, e.reject(OpDeletePayment, err)
	}

	s := &Saga{Name: OpDeletePayment}
	e.deleteStep(s, "delete account entry", acctEntry)
	e.deleteStep(s, "delete "+string(book)+" entry", ownerEntry)
	e.balanceStep(s, "increment account balance", ledger.BookAccount, acctEntry.OwnerID, acctEntry.Amount.Neg())
	if book == ledger.BookWholesaler {
		e.debtStep(s, "increment wholesaler debt", ownerEntry.OwnerID,
			func() decimal.Decimal { return ownerEntry.Amount.Neg() },
			func() decimal.Decimal { return ownerEntry.SecondaryAmount.Neg() })
	} else {
		e.balanceStep(s, "increment customer debt", book, ownerEntry.OwnerID, ownerEntry.Amount.Neg())
	}
	e.recalcStep(s, book, ownerEntry.OwnerID)
	e.recalcStep(s, ledger.BookAccount, acctEntry.OwnerID)

	if err := e.run(ctx, s,
		ownerRef{book, ownerEntry.OwnerID},
		ownerRef{ledger.BookAccount, acctEntry.OwnerID},
	); err != nil {
		return Result{}, err
	}
	e.publish(ctx, notification.Event{
		Kind: notification.KindPaymentDeleted, Operation: OpDeletePayment,
		OwnerID: ownerEntry.OwnerID, AccountID: acctEntry.OwnerID,
		EntryIDs: entryIDs(ownerEntry, acctEntry), Amount: ownerEntry.Amount.Neg(),
	})
	return Result{Operation: OpDeletePayment, Entries: []ledger.Entry{ownerEntry, acctEntry}}, nil
}

// ClearSecondaryDebt zeroes a wholesaler's secondary debt with an adjustment
// entry that carries no primary amount.
func (e *Engine) ClearSecondaryDebt(ctx context.Context, wholesalerID, note string) (Result, error) {
	w, err := e.owners.GetWholesaler(ctx, wholesalerID)
	if err != nil {
		return Result{}, e.reject(OpClearSecondaryDebt, err)
	}
	if w.SecondaryBalance.IsZero() {
		return Result{}, e.reject(OpClearSecondaryDebt, ledger.NewValidationError("secondary_balance", "no secondary debt to clear"))
	}
	delta := w.SecondaryBalance.Neg()
	entry := &ledger.Entry{Book: ledger.BookWholesaler, OwnerID: wholesalerID, Kind: ledger.KindAdjustment, SecondaryAmount: delta, Note: note}

	s := &Saga{Name: OpClearSecondaryDebt}
	e.debtStep(s, "clear secondary debt", wholesalerID,
		func() decimal.Decimal { return decimal.Zero },
		func() decimal.Decimal { return delta })
	e.appendStep(s, "append wholesaler adjustment", entry)

	if err := e.run(ctx, s, ownerRef{ledger.BookWholesaler, wholesalerID}); err != nil {
		return Result{}, err
	}
	e.publish(ctx, notification.Event{
		Kind: notification.KindLedgerAdjusted, Operation: OpClearSecondaryDebt,
		OwnerID: wholesalerID, EntryIDs: entryIDs(*entry), Detail: "secondary " + delta.String(),
	})
	return Result{Operation: OpClearSecondaryDebt, Entries: []ledger.Entry{*entry}}, nil
}

// AdjustInput records an opening balance or a manual correction.
type AdjustInput struct {
	Book            ledger.Book
	OwnerID         string
	Amount          decimal.Decimal
	SecondaryAmount decimal.Decimal
	Note            string
}

// Adjust appends an adjustment entry and moves the owner aggregate by the same amount.
func (e *Engine) Adjust(ctx context.Context, in AdjustInput) (Result, error) {
	if in.Amount.IsZero() && in.SecondaryAmount.IsZero() {
		return Result{}, e.reject(OpAdjust, ledger.NewValidationError("amount", "adjustment must change a balance"))
	}
	if !in.SecondaryAmount.IsZero() && in.Book != ledger.BookWholesaler {
		return Result{}, e.reject(OpAdjust, ledger.NewValidationError("secondary_amount", "only wholesalers carry a secondary balance"))
	}
	if err := e.ownerExists(ctx, in.Book, in.OwnerID); err != nil {
		return Result{}, e.reject(OpAdjust, err)
	}

	entry := &ledger.Entry{Book: in.Book, OwnerID: in.OwnerID, Kind: ledger.KindAdjustment,
		Amount: in.Amount, SecondaryAmount: in.SecondaryAmount, Note: in.Note}
	s := &Saga{Name: OpAdjust}
	e.appendStep(s, "append adjustment", entry)
	e.aggregateStep(s, *entry, decimal.NewFromInt(1))

	if err := e.run(ctx, s, ownerRef{in.Book, in.OwnerID}); err != nil {
		return Result{}, err
	}
	e.publish(ctx, notification.Event{
		Kind: notification.KindLedgerAdjusted, Operation: OpAdjust,
		OwnerID: in.OwnerID, EntryIDs: entryIDs(*entry), Amount: in.Amount,
	})
	return Result{Operation: OpAdjust, Entries: []ledger.Entry{*entry}}, nil
}

// EditEntry changes the amount of an unlinked entry and replays the ledger.
func (e *Engine) EditEntry(ctx context.Context, book ledger.Book, entryID string, amount decimal.Decimal) (Result, error) {
	entry, err := e.ledger.Get(ctx, book, entryID)
	if err != nil {
		return Result{}, e.reject(OpEditEntry, err)
	}
	if err := e.ensureUnlinked(ctx, entry); err != nil {
		return Result{}, e.reject(OpEditEntry, err)
	}
	edited := entry
	edited.Amount = amount
	if err := edited.Validate(); err != nil {
		return Result{}, e.reject(OpEditEntry, err)
	}
	delta := amount.Sub(entry.Amount)

	s := &Saga{Name: OpEditEntry}
	s.Add("update entry amount", func(ctx context.Context) error {
		return e.ledger.UpdateAmount(ctx, book, entryID, amount)
	}, func(ctx context.Context) error {
		return e.ledger.UpdateAmount(ctx, book, entryID, entry.Amount)
	})
	e.balanceStep(s, "increment "+string(book)+" balance", book, entry.OwnerID, delta)
	e.recalcStep(s, book, entry.OwnerID)

	if err := e.run(ctx, s, ownerRef{book, entry.OwnerID}); err != nil {
		return Result{}, err
	}
	e.publish(ctx, notification.Event{
		Kind: notification.KindLedgerAdjusted, Operation: OpEditEntry,
		OwnerID: entry.OwnerID, EntryIDs: entryIDs(entry), Amount: delta,
	})
	return Result{Operation: OpEditEntry, Entries: []ledger.Entry{edited}}, nil
}

// DeleteEntry removes an unlinked entry and replays the ledger.
func (e *Engine) DeleteEntry(ctx context.Context, book ledger.Book, entryID string) (Result, error) {
	entry, err := e.ledger.Get(ctx, book, entryID)
	if err != nil {
		return Result{}, e.reject(OpDeleteEntry, err)
	}
	if err := e.ensureUnlinked(ctx, entry); err != nil {
		return Result{}, e.reject(OpDeleteEntry, err)
	}

	s := &Saga{Name: OpDeleteEntry}
	e.deleteStep(s, "delete entry", entry)
	e.aggregateStep(s, entry, decimal.NewFromInt(-1))
	e.recalcStep(s, book, entry.OwnerID)

	if err := e.run(ctx, s, ownerRef{book, entry.OwnerID}); err != nil {
		return Result{}, err
	}
	e.publish(ctx, notification.Event{
		Kind: notification.KindLedgerAdjusted, Operation: OpDeleteEntry,
		OwnerID: entry.OwnerID, EntryIDs: entryIDs(entry), Amount: entry.Amount.Neg(),
	})
	return Result{Operation: OpDeleteEntry, Entries: []ledger.Entry{entry}}, nil
}

// TransferInput moves cash between two accounts.
type TransferInput struct {
	FromAccountID string
	ToAccountID   string
	Amount        decimal.Decimal
	Note          string
}

// AccountTransfer moves cash from one account to another.
func (e *Engine) AccountTransfer(ctx context.Context, in TransferInput) (Result, error) {
	if err := requirePositive("amount", in.Amount); err != nil {
		return Result{}, e.reject(OpAccountTransfer, err)
	}
	if in.FromAccountID == in.ToAccountID {
		return Result{}, e.reject(OpAccountTransfer, ledger.NewValidationError("to_account_id", "source and destination must differ"))
	}
	for _, id := range []string{in.FromAccountID, in.ToAccountID} {
		if _, err := e.owners.GetAccount(ctx, id); err != nil {
			return Result{}, e.reject(OpAccountTransfer, err)
		}
	}

	out := &ledger.Entry{Book: ledger.BookAccount, OwnerID: in.FromAccountID, Kind: ledger.KindTransferOut, Amount: in.Amount.Neg(), Note: in.Note}
	inEntry := &ledger.Entry{Book: ledger.BookAccount, OwnerID: in.ToAccountID, Kind: ledger.KindTransferIn, Amount: in.Amount, Note: in.Note}

	s := &Saga{Name: OpAccountTransfer}
	e.balanceStep(s, "decrement source account", ledger.BookAccount, in.FromAccountID, in.Amount.Neg())
	e.appendStep(s, "append transfer out", out)
	e.balanceStep(s, "increment destination account", ledger.BookAccount, in.ToAccountID, in.Amount)
	e.appendStep(s, "append transfer in", inEntry)

	if err := e.run(ctx, s,
		ownerRef{ledger.BookAccount, in.FromAccountID},
		ownerRef{ledger.BookAccount, in.ToAccountID},
	); err != nil {
		return Result{}, err
	}
	e.publish(ctx, notification.Event{
		Kind: notification.KindAccountTransfer, Operation: OpAccountTransfer,
		OwnerID: in.FromAccountID, AccountID: in.ToAccountID, EntryIDs: entryIDs(*out, *inEntry), Amount: in.Amount,
	})
	return Result{Operation: OpAccountTransfer, Entries: []ledger.Entry{*out, *inEntry}}, nil
}

// aggregateStep moves the owner aggregate by sign × the entry's amounts.
func (e *Engine) aggregateStep(s *Saga, entry ledger.Entry, sign decimal.Decimal) {
	if entry.Book == ledger.BookWholesaler {
		e.debtStep(s, "increment wholesaler debt", entry.OwnerID,
			func() decimal.Decimal { return entry.Amount.Mul(sign) },
			func() decimal.Decimal { return entry.SecondaryAmount.Mul(sign) })
		return
	}
	e.balanceStep(s, "increment "+string(entry.Book)+" balance", entry.Book, entry.OwnerID, entry.Amount.Mul(sign))
}

func (e *Engine) ownerExists(ctx context.Context, book ledger.Book, id string) error {
	var err error
	switch book {
	case ledger.BookCustomer:
		_, err = e.owners.GetCustomer(ctx, id)
	case ledger.BookWholesaler:
		_, err = e.owners.GetWholesaler(ctx, id)
	case ledger.BookAccount:
		_, err = e.owners.GetAccount(ctx, id)
	default:
		err = ledger.NewValidationError("book", fmt.Sprintf("unknown ledger book %q", book))
	}
	return err
}

// ensureUnlinked rejects entries that another record depends on: account
// entries with a counterpart, transfers, invoice purchases and owner entries
// referenced from the account ledger.
func (e *Engine) ensureUnlinked(ctx context.Context, entry ledger.Entry) error {
	switch entry.Book {
	case ledger.BookAccount:
		if entry.Counterpart != nil || entry.Kind == ledger.KindTransferIn || entry.Kind == ledger.KindTransferOut {
			return ErrLinkedEntry
		}
		return nil
	case ledger.BookWholesaler:
		if entry.InvoiceID != "" {
			return ErrLinkedEntry
		}
	}
	_, err := e.ledger.FindByCounterpart(ctx, entry.Ref())
	switch {
	case err == nil:
		return ErrLinkedEntry
	case errors.Is(err, ledger.ErrNotFound):
		return nil
	default:
		return err
	}
}
