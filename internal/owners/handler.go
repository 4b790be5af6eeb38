package owners

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/shopdesk/backoffice/internal/ledger"
)

// Handler exposes owner HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds an owner HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	Name              string `json:"name"`
	Phone             string `json:"phone"`
	SecondaryCurrency string `json:"secondary_currency"`
}

func (h *Handler) parse(c *fiber.Ctx) (CreateInput, error) {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return CreateInput{}, fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return CreateInput{Name: req.Name, Phone: req.Phone, SecondaryCurrency: req.SecondaryCurrency}, nil
}

// CreateCustomer registers a customer.
func (h *Handler) CreateCustomer(c *fiber.Ctx) error {
	in, err := h.parse(c)
	if err != nil {
		return err
	}
	cust, err := h.service.CreateCustomer(c.UserContext(), in)
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"id": cust.ID, "name": cust.Name, "phone": cust.Phone, "balance": cust.Balance,
	})
}

// CreateWholesaler registers a wholesaler.
func (h *Handler) CreateWholesaler(c *fiber.Ctx) error {
	in, err := h.parse(c)
	if err != nil {
		return err
	}
	w, err := h.service.CreateWholesaler(c.UserContext(), in)
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"id": w.ID, "name": w.Name, "balance": w.Balance,
		"secondary_balance": w.SecondaryBalance, "secondary_currency": w.SecondaryCurrency,
	})
}

// CreateAccount registers an account.
func (h *Handler) CreateAccount(c *fiber.Ctx) error {
	in, err := h.parse(c)
	if err != nil {
		return err
	}
	a, err := h.service.CreateAccount(c.UserContext(), in)
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"id": a.ID, "name": a.Name, "balance": a.Balance})
}

// CreateProduct registers a product.
func (h *Handler) CreateProduct(c *fiber.Ctx) error {
	in, err := h.parse(c)
	if err != nil {
		return err
	}
	p, err := h.service.CreateProduct(c.UserContext(), in)
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"id": p.ID, "name": p.Name, "quantity": p.Quantity})
}

// Product returns stock and last purchase cost of a product.
func (h *Handler) Product(c *fiber.Ctx) error {
	p, err := h.service.Product(c.UserContext(), c.Params("id"))
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"id":                 p.ID,
		"name":               p.Name,
		"quantity":           p.Quantity,
		"last_cost":          p.LastCost.Cost,
		"last_cost_currency": p.LastCost.Currency,
		"last_supplier_id":   p.LastCost.SupplierID,
	})
}

// Balance returns the cached balance of a customer, wholesaler or account.
func (h *Handler) Balance(c *fiber.Ctx) error {
	book, err := ledger.ParseBook(c.Params("book"))
	if err != nil {
		return httpError(err)
	}
	id := c.Params("id")
	primary, secondary, err := h.service.Balance(c.UserContext(), book, id)
	if err != nil {
		return httpError(err)
	}
	body := fiber.Map{"book": book, "id": id, "balance": primary}
	if book == ledger.BookWholesaler {
		body["secondary_balance"] = secondary
	}
	return c.Status(http.StatusOK).JSON(body)
}

func httpError(err error) error {
	var verr *ledger.ValidationError
	switch {
	case errors.As(err, &verr):
		return fiber.NewError(http.StatusBadRequest, verr.Error())
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrExists):
		return fiber.NewError(http.StatusConflict, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
