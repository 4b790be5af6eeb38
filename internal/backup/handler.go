package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/shopdesk/backoffice/internal/notification"
)

// Handler exposes export and restore over HTTP.
type Handler struct {
	exporter  *Exporter
	restorer  *Restorer
	publisher notification.Publisher
	logger    *slog.Logger
}

// NewHandler constructs a backup handler. publisher may be nil.
func NewHandler(exporter *Exporter, restorer *Restorer, publisher notification.Publisher, logger *slog.Logger) *Handler {
	return &Handler{exporter: exporter, restorer: restorer, publisher: publisher, logger: logger}
}

// Export streams a full snapshot.
func (h *Handler) Export(c *fiber.Ctx) error {
	snap, err := h.exporter.Export(c.UserContext())
	if err != nil {
		return fiber.NewError(http.StatusServiceUnavailable, err.Error())
	}
	return c.Status(http.StatusOK).JSON(snap)
}

// Restore replaces the live tables with the posted snapshot. ?dry_run=true
// only runs the referential pre-check.
func (h *Handler) Restore(c *fiber.Ctx) error {
	var snap Snapshot
	if err := json.Unmarshal(c.Body(), &snap); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid snapshot: "+err.Error())
	}

	var (
		report Report
		err    error
	)
	dryRun := c.QueryBool("dry_run")
	if dryRun {
		report, err = h.restorer.Check(c.UserContext(), snap)
	} else {
		report, err = h.restorer.Restore(c.UserContext(), snap)
	}

	var (
		rie     *ReferentialIntegrityError
		partial *PartialRestoreError
	)
	switch {
	case err == nil:
		if !dryRun {
			h.announce(c, report)
		}
		return c.Status(http.StatusOK).JSON(report)
	case errors.Is(err, ErrSnapshotVersion):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.As(err, &rie):
		return c.Status(http.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":      "snapshot failed referential pre-check",
			"violations": rie.Violations,
		})
	case errors.As(err, &partial):
		h.logger.Error("restore left database partially restored",
			slog.String("table", partial.Table),
			slog.Any("completed", partial.Completed),
			slog.Bool("critical", true),
			slog.Any("error", err),
		)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"error":     "restore stopped part way; restore the same snapshot again to finish",
			"table":     partial.Table,
			"inserted":  partial.Inserted,
			"completed": partial.Completed,
			"report":    report,
		})
	default:
		return fiber.NewError(http.StatusServiceUnavailable, err.Error())
	}
}

func (h *Handler) announce(c *fiber.Ctx, report Report) {
	if h.publisher == nil {
		return
	}
	var rows int
	for _, t := range report.Tables {
		rows += t.Inserted
	}
	event := notification.Event{
		Kind:       notification.KindRestoreCompleted,
		Operation:  "restore",
		Detail:     fmt.Sprintf("%d tables, %d rows", len(report.Tables), rows),
		OccurredAt: time.Now().UTC(),
	}
	if err := h.publisher.Publish(c.UserContext(), event); err != nil {
		h.logger.Warn("publish restore event", slog.Any("error", err))
	}
}
