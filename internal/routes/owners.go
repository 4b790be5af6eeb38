package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/shopdesk/backoffice/internal/owners"
)

// RegisterOwnerRoutes wires customer, wholesaler, account and product endpoints.
func RegisterOwnerRoutes(r fiber.Router, h *owners.Handler) {
	r.Post("/customers", h.CreateCustomer)
	r.Post("/wholesalers", h.CreateWholesaler)
	r.Post("/accounts", h.CreateAccount)
	r.Post("/products", h.CreateProduct)
	r.Get("/products/:id", h.Product)
	r.Get("/balances/:book/:id", h.Balance)
}
