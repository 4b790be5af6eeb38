package backup

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopdesk/backoffice/internal/logging"
	"github.com/shopdesk/backoffice/internal/notification"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []notification.Event
}

func (p *capturePublisher) Publish(_ context.Context, e notification.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func handlerApp(t *testing.T, store TableStore, pub notification.Publisher) *fiber.App {
	t.Helper()
	h := NewHandler(NewExporter(store), NewRestorer(store, RestoreConfig{}), pub, logging.Discard())
	app := fiber.New()
	app.Get("/backup/export", h.Export)
	app.Post("/backup/restore", h.Restore)
	return app
}

func doRequest(t *testing.T, app *fiber.App, method, path, body string) (int, string) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(method, path, strings.NewReader(body)))
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(raw)
}

func TestHandlerExportThenRestore(t *testing.T) {
	store := newSeeded(t)
	pub := &capturePublisher{}
	app := handlerApp(t, store, pub)

	status, snapshot := doRequest(t, app, fiber.MethodGet, "/backup/export", "")
	require.Equal(t, fiber.StatusOK, status)

	status, raw := doRequest(t, app, fiber.MethodPost, "/backup/restore?dry_run=true", snapshot)
	require.Equal(t, fiber.StatusOK, status, raw)
	assert.Empty(t, pub.events)

	status, raw = doRequest(t, app, fiber.MethodPost, "/backup/restore", snapshot)
	require.Equal(t, fiber.StatusOK, status, raw)
	var report Report
	require.NoError(t, json.Unmarshal([]byte(raw), &report))
	assert.False(t, report.DryRun)
	require.Len(t, pub.events, 1)
	assert.Equal(t, notification.KindRestoreCompleted, pub.events[0].Kind)
}

func TestHandlerRejectsDanglingSnapshot(t *testing.T) {
	store := newSeeded(t)
	app := handlerApp(t, store, nil)
	before := len(store.Ops())

	body := `{"version":1,"customers":[],"customer_ledger":[{"id":"ce1","owner_id":"c1"}]}`
	status, raw := doRequest(t, app, fiber.MethodPost, "/backup/restore", body)
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.Contains(t, raw, "violations")
	assert.Len(t, store.Ops(), before)

	status, _ = doRequest(t, app, fiber.MethodPost, "/backup/restore", "{not json")
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestHandlerRejectsUnknownVersion(t *testing.T) {
	store := newSeeded(t)
	app := handlerApp(t, store, nil)
	before := len(store.Ops())

	status, raw := doRequest(t, app, fiber.MethodPost, "/backup/restore", `{"customers":[]}`)
	assert.Equal(t, fiber.StatusBadRequest, status, raw)
	assert.Contains(t, raw, "unsupported snapshot version")
	assert.Len(t, store.Ops(), before)
}
