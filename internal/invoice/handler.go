package invoice

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// Handler exposes read-only invoice endpoints. Commit and deletion go through
// the posting engine.
type Handler struct {
	repo Repository
}

// NewHandler builds an invoice HTTP handler.
func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

// Response is the wire shape of a purchase invoice.
type Response struct {
	ID                string          `json:"id"`
	WholesalerID      string          `json:"wholesaler_id"`
	Number            string          `json:"number"`
	IssuedAt          time.Time       `json:"issued_at"`
	Lines             []Line          `json:"lines"`
	TotalPrimary      decimal.Decimal `json:"total_primary"`
	TotalSecondary    decimal.Decimal `json:"total_secondary"`
	SecondaryCurrency string          `json:"secondary_currency,omitempty"`
	Note              string          `json:"note,omitempty"`
}

// ToResponse renders an invoice, reconstructing the secondary total when it was not stored.
func ToResponse(inv PurchaseInvoice) Response {
	return Response{
		ID:                inv.ID,
		WholesalerID:      inv.WholesalerID,
		Number:            inv.Number,
		IssuedAt:          inv.IssuedAt,
		Lines:             inv.Lines,
		TotalPrimary:      inv.TotalPrimary,
		TotalSecondary:    SecondaryTotal(inv),
		SecondaryCurrency: inv.SecondaryCurrency,
		Note:              inv.Note,
	}
}

// Get returns one invoice.
func (h *Handler) Get(c *fiber.Ctx) error {
	inv, err := h.repo.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(ToResponse(inv))
}

// ListByWholesaler returns every invoice of one wholesaler.
func (h *Handler) ListByWholesaler(c *fiber.Ctx) error {
	invoices, err := h.repo.ListByWholesaler(c.UserContext(), c.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	out := make([]Response, 0, len(invoices))
	for _, inv := range invoices {
		out = append(out, ToResponse(inv))
	}
	return c.Status(http.StatusOK).JSON(out)
}
