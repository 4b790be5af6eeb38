package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/shopdesk/backoffice/internal/backup"
)

// RegisterBackupRoutes wires snapshot export and restore. Both expose or
// replace the whole database, so both are guarded.
func RegisterBackupRoutes(r fiber.Router, h *backup.Handler, guard []fiber.Handler) {
	group := r.Group("/backup", guard...)
	group.Get("/export", h.Export)
	group.Post("/restore", h.Restore)
}
