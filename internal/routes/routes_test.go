package routes

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/shopdesk/backoffice/internal/config"
	"github.com/shopdesk/backoffice/internal/logging"
)

func newTestApp(t *testing.T, cfg config.Config) *fiber.App {
	t.Helper()
	if cfg.AppEnv == "" {
		cfg.AppEnv = "test"
	}
	cfg.PrimaryCurrency = "XAF"
	app := fiber.New()
	require.NoError(t, Setup(app, Deps{Cfg: cfg, Logger: logging.Discard()}))
	return app
}

func call(t *testing.T, app *fiber.App, method, path, body string, headers ...string) (int, map[string]any, string) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var decoded map[string]any
	_ = json.Unmarshal(raw, &decoded)
	return resp.StatusCode, decoded, string(raw)
}

func create(t *testing.T, app *fiber.App, path, name string) string {
	t.Helper()
	status, body, raw := call(t, app, fiber.MethodPost, path, `{"name":"`+name+`"}`)
	require.Equal(t, fiber.StatusCreated, status, raw)
	id, _ := body["id"].(string)
	require.NotEmpty(t, id)
	return id
}

func TestSetupRejectsMissingBackendsOutsideDevelopment(t *testing.T) {
	err := Setup(fiber.New(), Deps{Cfg: config.Config{AppEnv: "production"}, Logger: logging.Discard()})
	assert.ErrorContains(t, err, "database is required")
}

func TestSetupRejectsUnknownDebtMode(t *testing.T) {
	err := Setup(fiber.New(), Deps{Cfg: config.Config{AppEnv: "test", DebtAnomalyMode: "ignore"}, Logger: logging.Discard()})
	assert.ErrorContains(t, err, "debt anomaly mode")
}

func TestChargeAndPaymentThroughTheAPI(t *testing.T) {
	app := newTestApp(t, config.Config{})
	customer := create(t, app, "/api/v1/customers", "Awa")
	account := create(t, app, "/api/v1/accounts", "Till")

	status, _, raw := call(t, app, fiber.MethodPost, "/api/v1/charges", `{"customer_id":"`+customer+`","amount":"300"}`)
	require.Equal(t, fiber.StatusCreated, status, raw)
	status, _, raw = call(t, app, fiber.MethodPost, "/api/v1/payments/customer",
		`{"owner_id":"`+customer+`","account_id":"`+account+`","amount":"100"}`)
	require.Equal(t, fiber.StatusCreated, status, raw)

	status, body, raw := call(t, app, fiber.MethodGet, "/api/v1/balances/customer/"+customer, "")
	require.Equal(t, fiber.StatusOK, status, raw)
	balance, _ := body["balance"].(string)
	assert.True(t, decimal.RequireFromString("200").Equal(decimal.RequireFromString(balance)), raw)

	status, body, raw = call(t, app, fiber.MethodGet, "/api/v1/balances/account/"+account, "")
	require.Equal(t, fiber.StatusOK, status, raw)
	balance, _ = body["balance"].(string)
	assert.True(t, decimal.RequireFromString("100").Equal(decimal.RequireFromString(balance)), raw)

	_, _, metrics := call(t, app, fiber.MethodGet, "/metrics", "")
	assert.Contains(t, metrics, `backoffice_postings_total{operation="customer_payment",result="ok"} 1`)
}

func TestCorrectionsRequireOperatorPassphrase(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)
	app := newTestApp(t, config.Config{OperatorPassphraseHash: string(hash)})
	customer := create(t, app, "/api/v1/customers", "Awa")

	status, body, raw := call(t, app, fiber.MethodPost, "/api/v1/charges", `{"customer_id":"`+customer+`","amount":"50"}`)
	require.Equal(t, fiber.StatusCreated, status, raw)
	entries, _ := body["entries"].([]any)
	require.Len(t, entries, 1)
	entryID, _ := entries[0].(map[string]any)["id"].(string)

	path := "/api/v1/ledgers/customer/entries/" + entryID
	status, _, _ = call(t, app, fiber.MethodDelete, path, "")
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, _, raw = call(t, app, fiber.MethodDelete, path, "", "X-Operator-Passphrase", "correct horse")
	assert.Equal(t, fiber.StatusOK, status, raw)
}

func TestHealthWithoutBackends(t *testing.T) {
	app := newTestApp(t, config.Config{})
	status, body, _ := call(t, app, fiber.MethodGet, "/healthz", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, map[string]any{"postgres": "disabled", "redis": "disabled"}, body["status"])
}
