package posting

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/shopdesk/backoffice/internal/invoice"
	"github.com/shopdesk/backoffice/internal/ledger"
	"github.com/shopdesk/backoffice/internal/owners"
)

// Handler exposes posting endpoints.
type Handler struct {
	engine *Engine
	logger *slog.Logger
}

// NewHandler constructs a posting handler.
func NewHandler(engine *Engine, logger *slog.Logger) *Handler {
	return &Handler{engine: engine, logger: logger}
}

// EntryResponse is the wire shape of a ledger entry.
type EntryResponse struct {
	ID              string          `json:"id"`
	Book            ledger.Book     `json:"book"`
	OwnerID         string          `json:"owner_id"`
	Timestamp       time.Time       `json:"timestamp"`
	Kind            ledger.Kind     `json:"kind"`
	Amount          decimal.Decimal `json:"amount"`
	SecondaryAmount decimal.Decimal `json:"secondary_amount"`
	RunningBalance  decimal.Decimal `json:"running_balance"`
	InvoiceID       string          `json:"invoice_id,omitempty"`
	CounterpartBook ledger.Book     `json:"counterpart_book,omitempty"`
	CounterpartID   string          `json:"counterpart_id,omitempty"`
	Note            string          `json:"note,omitempty"`
}

func toEntryResponse(e ledger.Entry) EntryResponse {
	out := EntryResponse{
		ID:              e.ID,
		Book:            e.Book,
		OwnerID:         e.OwnerID,
		Timestamp:       e.Timestamp,
		Kind:            e.Kind,
		Amount:          e.Amount,
		SecondaryAmount: e.SecondaryAmount,
		RunningBalance:  e.RunningBalance,
		InvoiceID:       e.InvoiceID,
		Note:            e.Note,
	}
	if e.Counterpart != nil {
		out.CounterpartBook = e.Counterpart.Book
		out.CounterpartID = e.Counterpart.ID
	}
	return out
}

func toEntries(entries []ledger.Entry) []EntryResponse {
	out := make([]EntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryResponse(e))
	}
	return out
}

func (h *Handler) result(c *fiber.Ctx, status int, res Result) error {
	body := fiber.Map{"operation": res.Operation, "entries": toEntries(res.Entries)}
	if res.InvoiceID != "" {
		body["invoice_id"] = res.InvoiceID
	}
	return c.Status(status).JSON(body)
}

type chargeRequest struct {
	CustomerID string          `json:"customer_id"`
	Amount     decimal.Decimal `json:"amount"`
	Note       string          `json:"note"`
}

// CustomerCharge records a sale on credit.
func (h *Handler) CustomerCharge(c *fiber.Ctx) error {
	var req chargeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	res, err := h.engine.CustomerCharge(c.UserContext(), ChargeInput{CustomerID: req.CustomerID, Amount: req.Amount, Note: req.Note})
	if err != nil {
		return h.httpError(c, err)
	}
	return h.result(c, http.StatusCreated, res)
}

type paymentRequest struct {
	OwnerID   string          `json:"owner_id"`
	AccountID string          `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
	Note      string          `json:"note"`
}

func (r paymentRequest) input() PaymentInput {
	return PaymentInput{OwnerID: r.OwnerID, AccountID: r.AccountID, Amount: r.Amount, Note: r.Note}
}

// CustomerPayment records a customer paying into an account.
func (h *Handler) CustomerPayment(c *fiber.Ctx) error {
	var req paymentRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	res, err := h.engine.CustomerPayment(c.UserContext(), req.input())
	if err != nil {
		return h.httpError(c, err)
	}
	return h.result(c, http.StatusCreated, res)
}

// WholesalerPayment records an account paying a wholesaler.
func (h *Handler) WholesalerPayment(c *fiber.Ctx) error {
	var req paymentRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	res, err := h.engine.WholesalerPayment(c.UserContext(), req.input())
	if err != nil {
		return h.httpError(c, err)
	}
	return h.result(c, http.StatusCreated, res)
}

type invoiceLineRequest struct {
	ProductID   string          `json:"product_id"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	Currency    string          `json:"currency"`
	Rate        decimal.Decimal `json:"rate"`
}

type invoiceRequest struct {
	WholesalerID      string               `json:"wholesaler_id"`
	Number            string               `json:"number"`
	IssuedAt          time.Time            `json:"issued_at"`
	SecondaryCurrency string               `json:"secondary_currency"`
	Note              string               `json:"note"`
	Lines             []invoiceLineRequest `json:"lines"`
}

// CommitInvoice books a purchase invoice.
func (h *Handler) CommitInvoice(c *fiber.Ctx) error {
	var req invoiceRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	draft := invoice.Draft{
		WholesalerID:      req.WholesalerID,
		Number:            req.Number,
		IssuedAt:          req.IssuedAt,
		SecondaryCurrency: req.SecondaryCurrency,
		Note:              req.Note,
	}
	for _, l := range req.Lines {
		draft.Lines = append(draft.Lines, invoice.DraftLine{
			ProductID:   l.ProductID,
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitCost:    l.UnitCost,
			Currency:    l.Currency,
			Rate:        l.Rate,
		})
	}
	inv, res, err := h.engine.CommitPurchaseInvoice(c.UserContext(), draft)
	if err != nil {
		return h.httpError(c, err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"operation": res.Operation,
		"invoice":   invoice.ToResponse(inv),
		"entries":   toEntries(res.Entries),
	})
}

// DeleteInvoice reverses a purchase invoice.
func (h *Handler) DeleteInvoice(c *fiber.Ctx) error {
	res, err := h.engine.DeleteInvoice(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.httpError(c, err)
	}
	return h.result(c, http.StatusOK, res)
}

// DeletePayment removes a linked payment pair.
func (h *Handler) DeletePayment(c *fiber.Ctx) error {
	book, err := ledger.ParseBook(c.Params("book"))
	if err != nil {
		return h.httpError(c, err)
	}
	res, err := h.engine.DeletePaymentEntry(c.UserContext(), book, c.Params("id"))
	if err != nil {
		return h.httpError(c, err)
	}
	return h.result(c, http.StatusOK, res)
}

type clearRequest struct {
	Note string `json:"note"`
}

// ClearSecondaryDebt zeroes a wholesaler's secondary debt.
func (h *Handler) ClearSecondaryDebt(c *fiber.Ctx) error {
	var req clearRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}
	res, err := h.engine.ClearSecondaryDebt(c.UserContext(), c.Params("id"), req.Note)
	if err != nil {
		return h.httpError(c, err)
	}
	return h.result(c, http.StatusCreated, res)
}

type adjustRequest struct {
	Amount          decimal.Decimal `json:"amount"`
	SecondaryAmount decimal.Decimal `json:"secondary_amount"`
	Note            string          `json:"note"`
}

// Adjust posts a manual adjustment to /:book/:id.
func (h *Handler) Adjust(c *fiber.Ctx) error {
	book, err := ledger.ParseBook(c.Params("book"))
	if err != nil {
		return h.httpError(c, err)
	}
	var req adjustRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	res, err := h.engine.Adjust(c.UserContext(), AdjustInput{
		Book: book, OwnerID: c.Params("id"),
		Amount: req.Amount, SecondaryAmount: req.SecondaryAmount, Note: req.Note,
	})
	if err != nil {
		return h.httpError(c, err)
	}
	return h.result(c, http.StatusCreated, res)
}

type editRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// EditEntry changes the amount of an unlinked entry.
func (h *Handler) EditEntry(c *fiber.Ctx) error {
	book, err := ledger.ParseBook(c.Params("book"))
	if err != nil {
		return h.httpError(c, err)
	}
	var req editRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	res, err := h.engine.EditEntry(c.UserContext(), book, c.Params("id"), req.Amount)
	if err != nil {
		return h.httpError(c, err)
	}
	return h.result(c, http.StatusOK, res)
}

// DeleteEntry removes an unlinked entry.
func (h *Handler) DeleteEntry(c *fiber.Ctx) error {
	book, err := ledger.ParseBook(c.Params("book"))
	if err != nil {
		return h.httpError(c, err)
	}
	res, err := h.engine.DeleteEntry(c.UserContext(), book, c.Params("id"))
	if err != nil {
		return h.httpError(c, err)
	}
	return h.result(c, http.StatusOK, res)
}

type transferRequest struct {
	FromAccountID string          `json:"from_account_id"`
	ToAccountID   string          `json:"to_account_id"`
	Amount        decimal.Decimal `json:"amount"`
	Note          string          `json:"note"`
}

// AccountTransfer moves cash between accounts.
func (h *Handler) AccountTransfer(c *fiber.Ctx) error {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	res, err := h.engine.AccountTransfer(c.UserContext(), TransferInput{
		FromAccountID: req.FromAccountID, ToAccountID: req.ToAccountID, Amount: req.Amount, Note: req.Note,
	})
	if err != nil {
		return h.httpError(c, err)
	}
	return h.result(c, http.StatusCreated, res)
}

// Ledger lists one owner's entries in replay order.
func (h *Handler) Ledger(c *fiber.Ctx) error {
	book, err := ledger.ParseBook(c.Params("book"))
	if err != nil {
		return h.httpError(c, err)
	}
	entries, err := h.engine.Entries(c.UserContext(), book, c.Params("id"))
	if err != nil {
		return h.httpError(c, err)
	}
	return c.Status(http.StatusOK).JSON(toEntries(entries))
}

// Recalculate rebuilds one owner's running balances.
func (h *Handler) Recalculate(c *fiber.Ctx) error {
	book, err := ledger.ParseBook(c.Params("book"))
	if err != nil {
		return h.httpError(c, err)
	}
	res, err := h.engine.Recalculate(c.UserContext(), book, c.Params("id"))
	if err != nil {
		return h.httpError(c, err)
	}
	body := fiber.Map{"book": book, "id": c.Params("id"), "entries": res.Entries, "rewritten": res.Rewritten, "balance": res.Balance}
	if book == ledger.BookWholesaler {
		body["secondary_balance"] = res.Secondary
	}
	return c.Status(http.StatusOK).JSON(body)
}

func (h *Handler) httpError(c *fiber.Ctx, err error) error {
	var (
		verr    *ledger.ValidationError
		storage *ledger.StorageError
	)
	switch {
	case errors.Is(err, ErrCriticalInconsistency):
		reqID, _ := c.Locals("X-Request-ID").(string)
		h.logger.Error("critical inconsistency returned to client",
			slog.String("request_id", reqID),
			slog.String("path", c.Path()),
			slog.Any("error", err),
		)
		return fiber.NewError(http.StatusInternalServerError, "operation failed and could not be fully reversed; ledgers need reconciliation")
	case errors.As(err, &verr):
		return fiber.NewError(http.StatusBadRequest, verr.Error())
	case errors.Is(err, owners.ErrNotFound), errors.Is(err, ledger.ErrNotFound), errors.Is(err, invoice.ErrNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, invoice.ErrExists), errors.Is(err, ledger.ErrDuplicateEntry):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.As(err, &storage):
		return fiber.NewError(http.StatusServiceUnavailable, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
