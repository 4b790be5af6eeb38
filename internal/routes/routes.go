package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/shopdesk/backoffice/internal/backup"
	"github.com/shopdesk/backoffice/internal/config"
	"github.com/shopdesk/backoffice/internal/debt"
	"github.com/shopdesk/backoffice/internal/invoice"
	"github.com/shopdesk/backoffice/internal/ledger"
	"github.com/shopdesk/backoffice/internal/middleware"
	"github.com/shopdesk/backoffice/internal/notification"
	"github.com/shopdesk/backoffice/internal/owners"
	"github.com/shopdesk/backoffice/internal/posting"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
	// Events overrides the publisher built from the Kafka settings.
	Events notification.Publisher
	// Registry receives the application collectors; nil builds a fresh one.
	Registry *prometheus.Registry
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// main checks this too; tests call Setup directly
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	mode, err := debt.ParseMode(d.Cfg.DebtAnomalyMode)
	if err != nil {
		return err
	}
	if d.Registry == nil {
		d.Registry = prometheus.NewRegistry()
		d.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	RegisterHealthRoutes(app, d)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{})))

	var (
		ledgerStore ledger.Store
		ownerRepo   owners.Repository
		invoiceRepo invoice.Repository
		locker      ledger.Locker
	)
	if d.DB != nil {
		ledgerStore = ledger.NewPostgresStore(d.DB)
		ownerRepo = owners.NewPostgresRepository(d.DB)
		invoiceRepo = invoice.NewPostgresRepository(d.DB)
	} else {
		ledgerStore = ledger.NewInMemory()
		ownerRepo = owners.NewMemoryRepository()
		invoiceRepo = invoice.NewMemoryRepository()
	}
	if d.Cache != nil {
		locker = ledger.NewRedisLocker(d.Cache, d.Cfg.LockExpiry)
	} else {
		locker = ledger.NewLocalLocker()
	}

	events := d.Events
	if events == nil {
		events = buildPublisher(d)
	}

	engine := posting.NewEngine(posting.Deps{
		Ledger:          ledgerStore,
		Owners:          ownerRepo,
		Invoices:        invoiceRepo,
		Locker:          locker,
		Policy:          debt.NewPolicy(mode),
		Publisher:       events,
		Logger:          d.Logger,
		Metrics:         posting.NewMetrics(d.Registry),
		PrimaryCurrency: d.Cfg.PrimaryCurrency,
	})

	guard := []fiber.Handler{
		middleware.OperatorRateLimit(d.Cache, 10),
		middleware.OperatorGuard(d.Cfg.OperatorPassphraseHash, d.Cfg.IsDev(), d.Logger),
	}

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterOwnerRoutes(api, owners.NewHandler(owners.NewService(ownerRepo)))
	RegisterPostingRoutes(api, posting.NewHandler(engine, d.Logger), invoice.NewHandler(invoiceRepo), guard)

	if d.DB != nil {
		store := backup.NewPostgresStore(d.DB)
		restorer := backup.NewRestorer(store, backup.RestoreConfig{
			ChunkSize: d.Cfg.RestoreChunkSize,
			Logger:    d.Logger,
			Metrics:   backup.NewMetrics(d.Registry),
		})
		RegisterBackupRoutes(api, backup.NewHandler(backup.NewExporter(store), restorer, events, d.Logger), guard)
	} else {
		d.Logger.Info("backup endpoints disabled without postgres")
	}

	return nil
}

func buildPublisher(d Deps) notification.Publisher {
	events := notification.Fanout{notification.NewLoggerPublisher(d.Logger)}
	if len(d.Cfg.KafkaBrokers) > 0 {
		writer := notification.NewKafkaWriter(d.Cfg.KafkaBrokers, d.Cfg.KafkaTopic)
		events = append(events, notification.NewKafkaPublisher(writer))
	}
	return events
}
