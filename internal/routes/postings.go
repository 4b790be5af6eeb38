package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/shopdesk/backoffice/internal/invoice"
	"github.com/shopdesk/backoffice/internal/posting"
)

// RegisterPostingRoutes wires ledger postings and invoices. Corrections that
// rewrite history sit behind guard.
func RegisterPostingRoutes(r fiber.Router, h *posting.Handler, invoices *invoice.Handler, guard []fiber.Handler) {
	guarded := func(fn fiber.Handler) []fiber.Handler {
		return append(append([]fiber.Handler{}, guard...), fn)
	}

	r.Post("/charges", h.CustomerCharge)
	r.Post("/payments/customer", h.CustomerPayment)
	r.Post("/payments/wholesaler", h.WholesalerPayment)
	r.Delete("/payments/:book/:id", guarded(h.DeletePayment)...)
	r.Post("/transfers", h.AccountTransfer)

	r.Post("/invoices", h.CommitInvoice)
	r.Get("/invoices/:id", invoices.Get)
	r.Delete("/invoices/:id", guarded(h.DeleteInvoice)...)
	r.Get("/wholesalers/:id/invoices", invoices.ListByWholesaler)
	r.Post("/wholesalers/:id/clear-secondary", guarded(h.ClearSecondaryDebt)...)

	r.Get("/ledgers/:book/:id", h.Ledger)
	r.Post("/ledgers/:book/:id/recalculate", h.Recalculate)
	r.Post("/ledgers/:book/:id/adjustments", guarded(h.Adjust)...)
	r.Put("/ledgers/:book/entries/:id", guarded(h.EditEntry)...)
	r.Delete("/ledgers/:book/entries/:id", guarded(h.DeleteEntry)...)
}
