package posting

import (
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/shopdesk/backoffice/internal/debt"
	"github.com/shopdesk/backoffice/internal/logging"
)

func setupHandlerApp(t *testing.T) (*fiber.App, *fixture) {
	t.Helper()
	fx := newFixture(t, debt.ModeReject)
	h := NewHandler(fx.engine, logging.Discard())
	app := fiber.New()
	app.Post("/charges", h.CustomerCharge)
	app.Post("/payments/customer", h.CustomerPayment)
	app.Get("/ledgers/:book/:id", h.Ledger)
	app.Post("/ledgers/:book/:id/recalculate", h.Recalculate)
	app.Delete("/ledgers/:book/entries/:id", h.DeleteEntry)
	return app, fx
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) (int, []byte) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, raw
}

func TestHandlerChargeAndLedger(t *testing.T) {
	app, fx := setupHandlerApp(t)
	cust := fx.customer(0)

	status, _ := doJSON(t, app, fiber.MethodPost, "/charges", `{"customer_id":"`+cust+`","amount":"125.50"}`)
	if status != fiber.StatusCreated {
		t.Fatalf("expected %d got %d", fiber.StatusCreated, status)
	}

	status, raw := doJSON(t, app, fiber.MethodGet, "/ledgers/customer/"+cust, "")
	if status != fiber.StatusOK {
		t.Fatalf("expected %d got %d", fiber.StatusOK, status)
	}
	var entries []EntryResponse
	if err := json.Unmarshal(raw, &entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 1 || entries[0].RunningBalance.String() != "125.5" {
		t.Fatalf("unexpected ledger %s", raw)
	}
}

func TestHandlerErrorMapping(t *testing.T) {
	app, fx := setupHandlerApp(t)
	cust := fx.customer(500)
	acct := fx.account(1000)

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"negative amount", fiber.MethodPost, "/charges", `{"customer_id":"` + cust + `","amount":"-1"}`, fiber.StatusBadRequest},
		{"unknown customer", fiber.MethodPost, "/charges", `{"customer_id":"missing","amount":"1"}`, fiber.StatusNotFound},
		{"unknown book", fiber.MethodGet, "/ledgers/supplier/" + cust, "", fiber.StatusBadRequest},
		{"missing entry", fiber.MethodDelete, "/ledgers/customer/entries/missing", "", fiber.StatusNotFound},
		{"malformed body", fiber.MethodPost, "/payments/customer", `{"amount":`, fiber.StatusBadRequest},
		{"payment", fiber.MethodPost, "/payments/customer", `{"owner_id":"` + cust + `","account_id":"` + acct + `","amount":50}`, fiber.StatusCreated},
		{"recalculate", fiber.MethodPost, "/ledgers/account/" + acct + "/recalculate", "", fiber.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, raw := doJSON(t, app, tc.method, tc.path, tc.body)
			if status != tc.want {
				t.Fatalf("expected %d got %d: %s", tc.want, status, raw)
			}
		})
	}
}

func TestHandlerCriticalInconsistencyIs500(t *testing.T) {
	app, fx := setupHandlerApp(t)
	cust := fx.customer(500)
	acct := fx.account(1000)

	fx.faults.arm("link", 0)
	fx.faults.arm("delete:account", 0)

	status, raw := doJSON(t, app, fiber.MethodPost, "/payments/customer",
		`{"owner_id":"`+cust+`","account_id":"`+acct+`","amount":"50"}`)
	if status != fiber.StatusInternalServerError {
		t.Fatalf("expected %d got %d: %s", fiber.StatusInternalServerError, status, raw)
	}
	if !strings.Contains(string(raw), "reconciliation") {
		t.Fatalf("unexpected body %s", raw)
	}
}

func TestHandlerCriticalWinsOverValidationCause(t *testing.T) {
	fx := newFixture(t, debt.ModeReject)
	h := NewHandler(fx.engine, logging.Discard())
	app := fiber.New()
	app.Post("/fail", func(c *fiber.Ctx) error {
		return h.httpError(c, &CompensationError{
			Operation: OpWholesalerPayment,
			Cause:     &StepError{Operation: OpWholesalerPayment, Step: "apply debt policy", Err: debt.ErrAnomalousDebt},
			Failed:    []UndoFailure{{Step: "resynchronise balances", Err: errors.New("db down")}},
		})
	})

	status, raw := doJSON(t, app, fiber.MethodPost, "/fail", "{}")
	if status != fiber.StatusInternalServerError {
		t.Fatalf("expected %d got %d: %s", fiber.StatusInternalServerError, status, raw)
	}
	if !strings.Contains(string(raw), "reconciliation") {
		t.Fatalf("expected reconciliation message, got %s", raw)
	}
}

func TestHandlerPolicyRejectionIs400(t *testing.T) {
	fx := newFixture(t, debt.ModeReject)
	h := NewHandler(fx.engine, logging.Discard())
	app := fiber.New()
	app.Post("/payments/wholesaler", h.WholesalerPayment)

	whs := fx.wholesaler(0, 40)
	acct := fx.account(1000)
	status, raw := doJSON(t, app, fiber.MethodPost, "/payments/wholesaler",
		`{"owner_id":"`+whs+`","account_id":"`+acct+`","amount":"10"}`)
	if status != fiber.StatusBadRequest {
		t.Fatalf("expected %d got %d: %s", fiber.StatusBadRequest, status, raw)
	}
}
