package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/vault-pay/vault_pay/internal/asset"
	"github.com/vault-pay/vault_pay/internal/config"
	"github.com/vault-pay/vault_pay/internal/identity"
	"github.com/vault-pay/vault_pay/internal/ledger"
	"github.com/vault-pay/vault_pay/internal/middleware"
	"github.com/vault-pay/vault_pay/internal/notification"
	"github.com/vault-pay/vault_pay/internal/storage"
	"github.com/vault-pay/vault_pay/internal/transactions"
	"github.com/vault-pay/vault_pay/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Services bundles the constructed application services so the caller (main)
// can reuse them, e.g. for seeding.
type Services struct {
	Transactions *transactions.Service
	Identity     *identity.Service
	Assets       asset.Repository
	Wallets      wallet.Directory
}

// Setup configures middlewares and all application routes, returning the
// wired services.
func Setup(app *fiber.App, d Deps) (Services, error) {
	// Enforce DB/Redis presence outside of dev, even though config also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return Services{}, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.Env)
		}
		if d.Cache == nil {
			return Services{}, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.Env)
		}
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	// Health
	RegisterHealthRoutes(app, d)

	// Storage backends. Without a database everything runs on the shared
	// in-memory store (development mode).
	var (
		walletDir wallet.Directory
		store     ledger.Store
		runner    storage.Runner
		assetRepo asset.Repository
		userRepo  identity.Repository
	)
	if d.DB != nil {
		walletDir = wallet.NewPostgresDirectory(d.DB)
		store = ledger.NewPostgresStore(d.DB)
		runner = storage.NewPgRunner(d.DB)
		assetRepo = asset.NewPostgresRepository(d.DB)
		userRepo = identity.NewPostgresRepository(d.DB)
	} else {
		mem := storage.NewMemory()
		walletDir = mem
		store = mem
		runner = mem
		assetRepo = asset.NewMemoryRepository()
		userRepo = identity.NewMemoryRepository()
	}

	notifier := notification.NewLoggerNotifier(d.Logger)
	txSvc := transactions.NewService(walletDir, store, runner, assetRepo, notifier)
	identitySvc := identity.NewService(userRepo)

	txHandler := transactions.NewHandler(txSvc)
	identityHandler := identity.NewHandler(identitySvc)

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals(middleware.LocalsRequestID).(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterIdentityRoutes(api, identityHandler)
	RegisterAssetRoutes(api, assetRepo)

	rateLimiter := middleware.TxRateLimit(d.Cache, d.Cfg.TxRatePerMin)
	RegisterWalletRoutes(api, txHandler, rateLimiter)

	return Services{
		Transactions: txSvc,
		Identity:     identitySvc,
		Assets:       assetRepo,
		Wallets:      walletDir,
	}, nil
}
