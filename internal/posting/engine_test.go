package posting

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopdesk/backoffice/internal/debt"
	"github.com/shopdesk/backoffice/internal/invoice"
	"github.com/shopdesk/backoffice/internal/ledger"
	"github.com/shopdesk/backoffice/internal/notification"
	"github.com/shopdesk/backoffice/internal/owners"
)

var errInjected = errors.New("injected failure")

// faults fails an operation once it has been called more than skip times.
type faults struct {
	mu    sync.Mutex
	skip  map[string]int
	calls map[string]int
}

func newFaults() *faults {
	return &faults{skip: map[string]int{}, calls: map[string]int{}}
}

func (f *faults) arm(op string, skip int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.skip[op] = skip
	f.calls[op] = 0
}

func (f *faults) check(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	skip, armed := f.skip[op]
	if !armed {
		return nil
	}
	f.calls[op]++
	if f.calls[op] > skip {
		return errInjected
	}
	return nil
}

type faultyLedger struct {
	ledger.Store
	f *faults
}

func (s faultyLedger) Append(ctx context.Context, e ledger.Entry) (ledger.Entry, error) {
	if err := s.f.check("append:" + string(e.Book)); err != nil {
		return ledger.Entry{}, err
	}
	return s.Store.Append(ctx, e)
}

func (s faultyLedger) Delete(ctx context.Context, book ledger.Book, id string) error {
	if err := s.f.check("delete:" + string(book)); err != nil {
		return err
	}
	return s.Store.Delete(ctx, book, id)
}

func (s faultyLedger) SetCounterpart(ctx context.Context, id string, ref *ledger.Ref) error {
	if err := s.f.check("link"); err != nil {
		return err
	}
	return s.Store.SetCounterpart(ctx, id, ref)
}

type faultyOwners struct {
	owners.Repository
	f *faults
}

func (r faultyOwners) IncrementBalance(ctx context.Context, book ledger.Book, id string, delta decimal.Decimal) error {
	if err := r.f.check("increment_balance:" + string(book)); err != nil {
		return err
	}
	return r.Repository.IncrementBalance(ctx, book, id, delta)
}

func (r faultyOwners) IncrementDebt(ctx context.Context, id string, primary, secondary decimal.Decimal) error {
	if err := r.f.check("increment_debt"); err != nil {
		return err
	}
	return r.Repository.IncrementDebt(ctx, id, primary, secondary)
}

func (r faultyOwners) IncrementQuantity(ctx context.Context, id string, delta decimal.Decimal) error {
	if err := r.f.check("increment_quantity"); err != nil {
		return err
	}
	return r.Repository.IncrementQuantity(ctx, id, delta)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []notification.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev notification.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) kinds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Kind)
	}
	return out
}

type fixture struct {
	t        *testing.T
	ctx      context.Context
	engine   *Engine
	ledger   ledger.Store
	owners   owners.Repository
	invoices invoice.Repository
	svc      *owners.Service
	faults   *faults
	events   *recordingPublisher
	metrics  *Metrics
}

func newFixture(t *testing.T, mode debt.Mode) *fixture {
	t.Helper()
	f := newFaults()
	fx := &fixture{
		t:        t,
		ctx:      context.Background(),
		ledger:   faultyLedger{Store: ledger.NewInMemory(), f: f},
		invoices: invoice.NewMemoryRepository(),
		faults:   f,
		events:   &recordingPublisher{},
		metrics:  NewMetrics(nil),
	}
	fx.owners = faultyOwners{Repository: owners.NewMemoryRepository(), f: f}
	fx.svc = owners.NewService(fx.owners)
	fx.engine = NewEngine(Deps{
		Ledger:          fx.ledger,
		Owners:          fx.owners,
		Invoices:        fx.invoices,
		Policy:          debt.NewPolicy(mode),
		Publisher:       fx.events,
		Metrics:         fx.metrics,
		PrimaryCurrency: "XAF",
	})
	return fx
}

func (fx *fixture) customer(opening int64) string {
	c, err := fx.svc.CreateCustomer(fx.ctx, owners.CreateInput{Name: "customer"})
	require.NoError(fx.t, err)
	if opening != 0 {
		_, err = fx.engine.CustomerCharge(fx.ctx, ChargeInput{CustomerID: c.ID, Amount: decimal.NewFromInt(opening)})
		require.NoError(fx.t, err)
	}
	return c.ID
}

func (fx *fixture) account(opening int64) string {
	a, err := fx.svc.CreateAccount(fx.ctx, owners.CreateInput{Name: "till"})
	require.NoError(fx.t, err)
	if opening != 0 {
		_, err = fx.engine.Adjust(fx.ctx, AdjustInput{Book: ledger.BookAccount, OwnerID: a.ID, Amount: decimal.NewFromInt(opening)})
		require.NoError(fx.t, err)
	}
	return a.ID
}

func (fx *fixture) wholesaler(primary, secondary int64) string {
	w, err := fx.svc.CreateWholesaler(fx.ctx, owners.CreateInput{Name: "supplier", SecondaryCurrency: "USD"})
	require.NoError(fx.t, err)
	if primary != 0 || secondary != 0 {
		_, err = fx.engine.Adjust(fx.ctx, AdjustInput{
			Book: ledger.BookWholesaler, OwnerID: w.ID,
			Amount: decimal.NewFromInt(primary), SecondaryAmount: decimal.NewFromInt(secondary),
		})
		require.NoError(fx.t, err)
	}
	return w.ID
}

func (fx *fixture) balance(book ledger.Book, id string) (decimal.Decimal, decimal.Decimal) {
	p, s, err := fx.svc.Balance(fx.ctx, book, id)
	require.NoError(fx.t, err)
	return p, s
}

func (fx *fixture) entries(book ledger.Book, id string) []ledger.Entry {
	entries, err := fx.ledger.ListByOwner(fx.ctx, book, id)
	require.NoError(fx.t, err)
	return entries
}

// assertConsistent checks the prefix-sum invariant and owner agreement.
func (fx *fixture) assertConsistent(book ledger.Book, id string) {
	fx.t.Helper()
	entries := fx.entries(book, id)
	require.NoError(fx.t, ledger.VerifyRunningBalances(entries))
	_, wantPrimary, wantSecondary := ledger.Replay(entries)
	primary, secondary := fx.balance(book, id)
	assert.True(fx.t, primary.Equal(wantPrimary), "%s %s: aggregate %s, ledger %s", book, id, primary, wantPrimary)
	if book == ledger.BookWholesaler {
		assert.True(fx.t, secondary.Equal(wantSecondary), "secondary aggregate %s, ledger %s", secondary, wantSecondary)
	}
	if len(entries) > 0 {
		assert.True(fx.t, primary.Equal(entries[len(entries)-1].RunningBalance))
	}
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestCustomerPaymentAndDeletionEndToEnd(t *testing.T) {
	fx := newFixture(t, debt.ModeReject)
	cust := fx.customer(500)
	acct := fx.account(1000)

	res, err := fx.engine.CustomerPayment(fx.ctx, PaymentInput{OwnerID: cust, AccountID: acct, Amount: dec(200)})
	require.NoError(t, err)
	require.Len(t, res.Entries, 2)

	debtNow, _ := fx.balance(ledger.BookCustomer, cust)
	cash, _ := fx.balance(ledger.BookAccount, acct)
	assert.True(t, debtNow.Equal(dec(300)), "customer debt %s", debtNow)
	assert.True(t, cash.Equal(dec(1200)), "account balance %s", cash)

	custPayment, acctInflow := res.Entries[0], res.Entries[1]
	linked, err := fx.ledger.FindByCounterpart(fx.ctx, custPayment.Ref())
	require.NoError(t, err)
	assert.Equal(t, acctInflow.ID, linked.ID)
	fx.assertConsistent(ledger.BookCustomer, cust)
	fx.assertConsistent(ledger.BookAccount, acct)

	_, err = fx.engine.DeletePaymentEntry(fx.ctx, ledger.BookCustomer, custPayment.ID)
	require.NoError(t, err)

	debtNow, _ = fx.balance(ledger.BookCustomer, cust)
	cash, _ = fx.balance(ledger.BookAccount, acct)
	assert.True(t, debtNow.Equal(dec(500)), "customer debt %s", debtNow)
	assert.True(t, cash.Equal(dec(1000)), "account balance %s", cash)

	_, err = fx.ledger.Get(fx.ctx, ledger.BookCustomer, custPayment.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	_, err = fx.ledger.Get(fx.ctx, ledger.BookAccount, acctInflow.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	fx.assertConsistent(ledger.BookCustomer, cust)
	fx.assertConsistent(ledger.BookAccount, acct)

	assert.Contains(t, fx.events.kinds(), notification.KindPaymentDeleted)
}

func TestWholesalerPaymentAppliesDebtPolicy(t *testing.T) {
	fx := newFixture(t, debt.ModeReject)
	whs := fx.wholesaler(100, 40)
	acct := fx.account(1000)

	res, err := fx.engine.WholesalerPayment(fx.ctx, PaymentInput{OwnerID: whs, AccountID: acct, Amount: dec(25)})
	require.NoError(t, err)

	primary, secondary := fx.balance(ledger.BookWholesaler, whs)
	assert.True(t, primary.Equal(dec(75)))
	assert.True(t, secondary.Equal(dec(30)))
	cash, _ := fx.balance(ledger.BookAccount, acct)
	assert.True(t, cash.Equal(dec(975)))

	assert.True(t, res.Entries[0].SecondaryAmount.Equal(dec(-10)))
	require.NotNil(t, res.Entries[1].Counterpart)
	assert.Equal(t, res.Entries[0].Ref(), *res.Entries[1].Counterpart)
	fx.assertConsistent(ledger.BookWholesaler, whs)
	fx.assertConsistent(ledger.BookAccount, acct)

	_, err = fx.engine.WholesalerPayment(fx.ctx, PaymentInput{OwnerID: whs, AccountID: acct, Amount: dec(75)})
	require.NoError(t, err)
	primary, secondary = fx.balance(ledger.BookWholesaler, whs)
	assert.True(t, primary.IsZero())
	assert.True(t, secondary.IsZero())
}

type snapshot struct {
	whsPrimary, whsSecondary, cash decimal.Decimal
	whsEntries, acctEntries        []ledger.Entry
}

func takeSnapshot(fx *fixture, whs, acct string) snapshot {
	p, s := fx.balance(ledger.BookWholesaler, whs)
	c, _ := fx.balance(ledger.BookAccount, acct)
	return snapshot{
		whsPrimary: p, whsSecondary: s, cash: c,
		whsEntries:  fx.entries(ledger.BookWholesaler, whs),
		acctEntries: fx.entries(ledger.BookAccount, acct),
	}
}

func assertSameSnapshot(t *testing.T, want, got snapshot) {
	t.Helper()
	assert.True(t, want.whsPrimary.Equal(got.whsPrimary), "wholesaler debt %s -> %s", want.whsPrimary, got.whsPrimary)
	assert.True(t, want.whsSecondary.Equal(got.whsSecondary), "secondary debt %s -> %s", want.whsSecondary, got.whsSecondary)
	assert.True(t, want.cash.Equal(got.cash), "account %s -> %s", want.cash, got.cash)
	assert.Equal(t, summarize(want.whsEntries), summarize(got.whsEntries))
	assert.Equal(t, summarize(want.acctEntries), summarize(got.acctEntries))
}

func summarize(entries []ledger.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ID+" "+e.Amount.String()+" "+e.SecondaryAmount.String()+" "+e.RunningBalance.String())
	}
	return out
}

func TestWholesalerPaymentCompensatesAtEveryStep(t *testing.T) {
	steps := []struct {
		step string
		op   string
	}{
		{step: "increment wholesaler debt", op: "increment_debt"},
		{step: "increment account balance", op: "increment_balance:account"},
		{step: "append wholesaler payment", op: "append:wholesaler"},
		{step: "append account outflow", op: "append:account"},
		{step: "link account entry", op: "link"},
	}
	for _, tc := range steps {
		t.Run(tc.step, func(t *testing.T) {
			fx := newFixture(t, debt.ModeReject)
			whs := fx.wholesaler(100, 40)
			acct := fx.account(1000)
			before := takeSnapshot(fx, whs, acct)

			fx.faults.arm(tc.op, 0)
			_, err := fx.engine.WholesalerPayment(fx.ctx, PaymentInput{OwnerID: whs, AccountID: acct, Amount: dec(25)})

			require.ErrorIs(t, err, errInjected)
			assert.False(t, errors.Is(err, ErrCriticalInconsistency))
			var stepErr *StepError
			require.ErrorAs(t, err, &stepErr)
			assert.Equal(t, tc.step, stepErr.Step)

			assertSameSnapshot(t, before, takeSnapshot(fx, whs, acct))
			fx.assertConsistent(ledger.BookWholesaler, whs)
			fx.assertConsistent(ledger.BookAccount, acct)
			assert.Equal(t, 1.0, testutil.ToFloat64(fx.metrics.compensations.WithLabelValues(OpWholesalerPayment, resultRolledBack)))
		})
	}
}

func TestWholesalerPaymentPolicyRejectionWritesNothing(t *testing.T) {
	fx := newFixture(t, debt.ModeReject)
	whs := fx.wholesaler(0, 40)
	acct := fx.account(1000)
	before := takeSnapshot(fx, whs, acct)

	_, err := fx.engine.WholesalerPayment(fx.ctx, PaymentInput{OwnerID: whs, AccountID: acct, Amount: dec(25)})
	require.ErrorIs(t, err, debt.ErrAnomalousDebt)
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "apply debt policy", stepErr.Step)
	assertSameSnapshot(t, before, takeSnapshot(fx, whs, acct))

	fxClear := newFixture(t, debt.ModeClear)
	whs = fxClear.wholesaler(0, 40)
	acct = fxClear.account(1000)
	_, err = fxClear.engine.WholesalerPayment(fxClear.ctx, PaymentInput{OwnerID: whs, AccountID: acct, Amount: dec(25)})
	require.NoError(t, err)
	primary, secondary := fxClear.balance(ledger.BookWholesaler, whs)
	assert.True(t, primary.Equal(dec(-25)))
	assert.True(t, secondary.IsZero())
}

func TestFailedUndoIsCriticalInconsistency(t *testing.T) {
	fx := newFixture(t, debt.ModeReject)
	whs := fx.wholesaler(100, 40)
	acct := fx.account(1000)

	fx.faults.arm("link", 0)
	// the account increment succeeds once and then its undo fails
	fx.faults.arm("increment_balance:account", 1)

	_, err := fx.engine.WholesalerPayment(fx.ctx, PaymentInput{OwnerID: whs, AccountID: acct, Amount: dec(25)})
	require.ErrorIs(t, err, ErrCriticalInconsistency)

	var compErr *CompensationError
	require.ErrorAs(t, err, &compErr)
	require.Len(t, compErr.Failed, 1)
	assert.Equal(t, "increment account balance", compErr.Failed[0].Step)
	assert.ErrorIs(t, compErr.Cause, errInjected)

	// every other undo still ran
	primary, secondary := fx.balance(ledger.BookWholesaler, whs)
	assert.True(t, primary.Equal(dec(100)))
	assert.True(t, secondary.Equal(dec(40)))
	assert.Len(t, fx.entries(ledger.BookWholesaler, whs), 1)
	assert.Len(t, fx.entries(ledger.BookAccount, acct), 1)

	assert.Contains(t, fx.events.kinds(), notification.KindCriticalInconsistency)
	assert.Equal(t, 1.0, testutil.ToFloat64(fx.metrics.compensations.WithLabelValues(OpWholesalerPayment, resultCritical)))
}

func TestCustomerPaymentCompensationRecalculates(t *testing.T) {
	fx := newFixture(t, debt.ModeReject)
	cust := fx.customer(500)
	acct := fx.account(1000)

	fx.faults.arm("increment_balance:account", 0)
	_, err := fx.engine.CustomerPayment(fx.ctx, PaymentInput{OwnerID: cust, AccountID: acct, Amount: dec(200)})
	require.ErrorIs(t, err, errInjected)

	debtNow, _ := fx.balance(ledger.BookCustomer, cust)
	assert.True(t, debtNow.Equal(dec(500)))
	assert.Len(t, fx.entries(ledger.BookCustomer, cust), 1)
	fx.assertConsistent(ledger.BookCustomer, cust)
	fx.assertConsistent(ledger.BookAccount, acct)
}

func TestCommitAndDeleteInvoice(t *testing.T) {
	fx := newFixture(t, debt.ModeReject)
	whs := fx.wholesaler(0, 0)
	rice, err := fx.svc.CreateProduct(fx.ctx, owners.CreateInput{Name: "rice"})
	require.NoError(t, err)
	oil, err := fx.svc.CreateProduct(fx.ctx, owners.CreateInput{Name: "oil"})
	require.NoError(t, err)

	inv, res, err := fx.engine.CommitPurchaseInvoice(fx.ctx, invoice.Draft{
		WholesalerID: whs,
		Number:       "INV-1",
		Lines: []invoice.DraftLine{
			{ProductID: rice.ID, Quantity: dec(10), UnitCost: dec(1500)},
			{ProductID: oil.ID, Quantity: dec(4), UnitCost: decimal.RequireFromString("2.5"), Currency: "USD", Rate: dec(600)},
			{Description: "freight", Quantity: dec(1), UnitCost: dec(500)},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, inv.ID, res.InvoiceID)
	assert.Equal(t, "USD", inv.SecondaryCurrency)

	primary, secondary := fx.balance(ledger.BookWholesaler, whs)
	assert.True(t, primary.Equal(dec(21500)), "primary %s", primary)
	assert.True(t, secondary.Equal(dec(10)), "secondary %s", secondary)
	fx.assertConsistent(ledger.BookWholesaler, whs)

	p, err := fx.svc.Product(fx.ctx, oil.ID)
	require.NoError(t, err)
	assert.True(t, p.Quantity.Equal(dec(4)))
	assert.Equal(t, "USD", p.LastCost.Currency)
	assert.Equal(t, whs, p.LastCost.SupplierID)

	// an invoice stored without the secondary field or note token
	legacy := inv
	legacy.TotalSecondary = nil
	legacy.Note = ""
	require.NoError(t, fx.invoices.Delete(fx.ctx, inv.ID))
	require.NoError(t, fx.invoices.Insert(fx.ctx, legacy))

	_, err = fx.engine.DeleteInvoice(fx.ctx, inv.ID)
	require.NoError(t, err)

	primary, secondary = fx.balance(ledger.BookWholesaler, whs)
	assert.True(t, primary.IsZero(), "primary %s", primary)
	assert.True(t, secondary.IsZero(), "secondary %s", secondary)
	assert.Empty(t, fx.entries(ledger.BookWholesaler, whs))
	for _, id := range []string{rice.ID, oil.ID} {
		p, err := fx.svc.Product(fx.ctx, id)
		require.NoError(t, err)
		assert.True(t, p.Quantity.IsZero())
	}
	_, err = fx.invoices.Get(fx.ctx, inv.ID)
	assert.ErrorIs(t, err, invoice.ErrNotFound)
}

func TestCommitInvoiceAttemptsEveryUndo(t *testing.T) {
	fx := newFixture(t, debt.ModeReject)
	whs := fx.wholesaler(0, 0)
	rice, err := fx.svc.CreateProduct(fx.ctx, owners.CreateInput{Name: "rice"})
	require.NoError(t, err)
	oil, err := fx.svc.CreateProduct(fx.ctx, owners.CreateInput{Name: "oil"})
	require.NoError(t, err)

	fx.faults.arm("increment_quantity", 1)
	_, _, err = fx.engine.CommitPurchaseInvoice(fx.ctx, invoice.Draft{
		WholesalerID: whs,
		Lines: []invoice.DraftLine{
			{ProductID: rice.ID, Quantity: dec(10), UnitCost: dec(1500)},
			{ProductID: oil.ID, Quantity: dec(4), UnitCost: dec(900)},
		},
	})
	require.Error(t, err)
	// the undo of the first stock increment fails too
	require.ErrorIs(t, err, ErrCriticalInconsistency)

	primary, _ := fx.balance(ledger.BookWholesaler, whs)
	assert.True(t, primary.IsZero())
	assert.Empty(t, fx.entries(ledger.BookWholesaler, whs))
	list, err := fx.invoices.ListByWholesaler(fx.ctx, whs)
	require.NoError(t, err)
	assert.Empty(t, list)
	p, err := fx.svc.Product(fx.ctx, rice.ID)
	require.NoError(t, err)
	assert.True(t, p.LastCost.IsZero(), "last cost restored")
}

func TestCommitInvoiceRejectsUnknownProduct(t *testing.T) {
	fx := newFixture(t, debt.ModeReject)
	whs := fx.wholesaler(0, 0)
	_, _, err := fx.engine.CommitPurchaseInvoice(fx.ctx, invoice.Draft{
		WholesalerID: whs,
		Lines:        []invoice.DraftLine{{ProductID: "nope", Quantity: dec(1), UnitCost: dec(1)}},
	})
	var verr *ledger.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "lines[0].product_id", verr.Field)
}

func TestEditAndDeleteEntryKeepPrefixSums(t *testing.T) {
	fx := newFixture(t, debt.ModeReject)
	cust := fx.customer(0)
	var ids []string
	for _, amt := range []int64{100, 200, 300, 400} {
		res, err := fx.engine.CustomerCharge(fx.ctx, ChargeInput{CustomerID: cust, Amount: dec(amt)})
		require.NoError(t, err)
		ids = append(ids, res.Entries[0].ID)
	}

	_, err := fx.engine.EditEntry(fx.ctx, ledger.BookCustomer, ids[1], dec(50))
	require.NoError(t, err)
	fx.assertConsistent(ledger.BookCustomer, cust)
	bal, _ := fx.balance(ledger.BookCustomer, cust)
	assert.True(t, bal.Equal(dec(850)))

	_, err = fx.engine.DeleteEntry(fx.ctx, ledger.BookCustomer, ids[0])
	require.NoError(t, err)
	fx.assertConsistent(ledger.BookCustomer, cust)
	bal, _ = fx.balance(ledger.BookCustomer, cust)
	assert.True(t, bal.Equal(dec(750)))

	_, err = fx.engine.DeleteEntry(fx.ctx, ledger.BookCustomer, ids[3])
	require.NoError(t, err)
	fx.assertConsistent(ledger.BookCustomer, cust)

	_, err = fx.engine.EditEntry(fx.ctx, ledger.BookCustomer, ids[2], dec(-5))
	var verr *ledger.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "amount", verr.Field)
}

func TestLinkedEntriesCannotBeEditedDirectly(t *testing.T) {
	fx := newFixture(t, debt.ModeReject)
	cust := fx.customer(500)
	acct := fx.account(1000)
	res, err := fx.engine.CustomerPayment(fx.ctx, PaymentInput{OwnerID: cust, AccountID: acct, Amount: dec(200)})
	require.NoError(t, err)

	_, err = fx.engine.EditEntry(fx.ctx, ledger.BookCustomer, res.Entries[0].ID, dec(-100))
	assert.ErrorIs(t, err, ErrLinkedEntry)
	_, err = fx.engine.DeleteEntry(fx.ctx, ledger.BookAccount, res.Entries[1].ID)
	assert.ErrorIs(t, err, ErrLinkedEntry)

	charge := fx.entries(ledger.BookCustomer, cust)[0]
	_, err = fx.engine.DeletePaymentEntry(fx.ctx, ledger.BookCustomer, charge.ID)
	assert.ErrorIs(t, err, ErrNotLinkedPayment)
}

func TestAccountTransfer(t *testing.T) {
	fx := newFixture(t, debt.ModeReject)
	from := fx.account(1000)
	to := fx.account(0)

	_, err := fx.engine.AccountTransfer(fx.ctx, TransferInput{FromAccountID: from, ToAccountID: to, Amount: dec(300)})
	require.NoError(t, err)

	a, _ := fx.balance(ledger.BookAccount, from)
	b, _ := fx.balance(ledger.BookAccount, to)
	assert.True(t, a.Equal(dec(700)))
	assert.True(t, b.Equal(dec(300)))
	fx.assertConsistent(ledger.BookAccount, from)
	fx.assertConsistent(ledger.BookAccount, to)

	_, err = fx.engine.AccountTransfer(fx.ctx, TransferInput{FromAccountID: from, ToAccountID: from, Amount: dec(1)})
	var verr *ledger.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestClearSecondaryDebt(t *testing.T) {
	fx := newFixture(t, debt.ModeReject)
	whs := fx.wholesaler(100, 40)

	res, err := fx.engine.ClearSecondaryDebt(fx.ctx, whs, "reconciled by phone")
	require.NoError(t, err)
	assert.True(t, res.Entries[0].Amount.IsZero())
	assert.True(t, res.Entries[0].SecondaryAmount.Equal(dec(-40)))

	primary, secondary := fx.balance(ledger.BookWholesaler, whs)
	assert.True(t, primary.Equal(dec(100)))
	assert.True(t, secondary.IsZero())
	fx.assertConsistent(ledger.BookWholesaler, whs)

	_, err = fx.engine.ClearSecondaryDebt(fx.ctx, whs, "")
	var verr *ledger.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestOperationSurvivesCancelledContext(t *testing.T) {
	fx := newFixture(t, debt.ModeReject)
	cust := fx.customer(0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := fx.engine.CustomerCharge(ctx, ChargeInput{CustomerID: cust, Amount: dec(10)})
	require.NoError(t, err)
	fx.assertConsistent(ledger.BookCustomer, cust)
}
