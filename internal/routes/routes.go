package routes

import (
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/wallet_ledger/internal/apikey"
	"github.com/congo-pay/wallet_ledger/internal/auth"
	"github.com/congo-pay/wallet_ledger/internal/config"
	"github.com/congo-pay/wallet_ledger/internal/funding"
	"github.com/congo-pay/wallet_ledger/internal/identity"
	"github.com/congo-pay/wallet_ledger/internal/ledger"
	"github.com/congo-pay/wallet_ledger/internal/metrics"
	"github.com/congo-pay/wallet_ledger/internal/middleware"
	"github.com/congo-pay/wallet_ledger/internal/notification"
	"github.com/congo-pay/wallet_ledger/internal/payments"
	"github.com/congo-pay/wallet_ledger/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes. DB and Cache
// may be nil in development, in which case in-memory stores are used.
type Deps struct {
	Cfg      config.Config
	DB       *pgxpool.Pool
	Cache    *redis.Client
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer

	// Optional overrides, mostly for tests.
	Gateway  funding.Gateway
	Google   identity.Provider
	Notifier notification.Notifier
}

// Runtime exposes the background workers built alongside the routes.
type Runtime struct {
	Reconciler *funding.Reconciler
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) (*Runtime, error) {
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return nil, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.Env)
		}
		if d.Cache == nil {
			return nil, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.Env)
		}
		if d.Gateway == nil && d.Cfg.PaystackSecretKey == "" {
			return nil, fmt.Errorf("PAYSTACK_SECRET_KEY is required when APP_ENV=%s", d.Cfg.Env)
		}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger, d.Metrics))

	RegisterHealthRoutes(app, d)
	RegisterMetricsRoute(app, d.Gatherer)

	var (
		store      ledger.Store
		userRepo   identity.Repository
		keyRepo    apikey.Repository
		stateStore auth.StateStore
	)
	if d.DB != nil {
		store = ledger.NewPostgresStore(d.DB, d.Cfg.LockTimeout)
		userRepo = identity.NewPostgresRepository(d.DB)
		keyRepo = apikey.NewPostgresRepository(d.DB)
	} else {
		mem := ledger.NewInMemory(d.Cfg.LockTimeout)
		store = mem
		userRepo = identity.NewMemoryRepository(mem)
		keyRepo = apikey.NewMemoryRepository()
		d.Logger.Warn("no database configured, using in-memory stores")
	}
	if d.Cache != nil {
		stateStore = auth.NewRedisStateStore(d.Cache)
	} else {
		stateStore = auth.NewMemoryStateStore()
	}

	gateway := d.Gateway
	if gateway == nil {
		if d.Cfg.PaystackSecretKey != "" {
			gateway = funding.NewPaystackClient(d.Cfg.PaystackBaseURL, d.Cfg.PaystackSecretKey, d.Cfg.GatewayTimeout)
		} else {
			d.Logger.Warn("no paystack key configured, deposits use a static checkout")
			gateway = funding.StaticGateway{}
		}
	}
	provider := d.Google
	if provider == nil && d.Cfg.GoogleEnabled() {
		provider = identity.NewGoogleProvider(d.Cfg.GoogleClientID, d.Cfg.GoogleClientSecret, d.Cfg.GoogleRedirectURI)
	}
	notifier := d.Notifier
	if notifier == nil {
		notifier = notification.NewLoggerNotifier(d.Logger)
	}

	engine := ledger.NewEngine(store, d.Logger, d.Metrics)
	identitySvc := identity.NewService(userRepo, d.Logger)
	tokens := auth.NewTokenManager(d.Cfg.JWTSecret, d.Cfg.AccessTokenTTL, d.Cfg.AppName)
	authSvc := auth.NewService(tokens, userRepo, d.Logger)
	keySvc := apikey.NewService(keyRepo, d.Cfg, d.Logger)
	walletSvc := wallet.NewService(store, d.Cfg.Currency)
	paymentSvc := payments.NewService(engine, notifier, d.Cfg.Currency, d.Logger)
	fundingSvc, err := funding.NewService(engine, userRepo, gateway, notifier, d.Cfg, d.Logger, d.Metrics)
	if err != nil {
		return nil, err
	}

	authHandler := auth.NewHandler(identitySvc, provider, stateStore, authSvc, store)
	keyHandler := apikey.NewHandler(keySvc)
	walletHandler := wallet.NewHandler(walletSvc)
	paymentHandler := payments.NewHandler(paymentSvc)
	fundingHandler := funding.NewHandler(fundingSvc, d.Cfg.PaystackWebhookSecret)

	// Public routes
	RegisterAuthRoutes(app, authHandler)
	RegisterWebhookRoutes(app, fundingHandler)

	// Protected routes. Authentication is attached per route so unknown
	// paths still fall through to 404.
	limiter := middleware.NewFailureLimiter(d.Cache, d.Cfg.AuthFailuresPerMinute)
	authn := middleware.Authenticate(authSvc, keySvc, limiter, d.Metrics)
	RegisterSessionRoutes(app, authn, authHandler)
	RegisterKeyRoutes(app, authn, keyHandler)
	RegisterWalletRoutes(app, authn, walletHandler)
	RegisterFundingRoutes(app, authn, fundingHandler)
	var idempotency fiber.Handler
	if d.Cache != nil {
		idempotency = middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger)
	}
	RegisterPaymentRoutes(app, authn, paymentHandler, idempotency)

	rt := &Runtime{}
	if d.Cfg.ReconcileInterval > 0 {
		rt.Reconciler = funding.NewReconciler(fundingSvc, d.Cfg.ReconcileInterval, d.Cfg.ReconcileAfter, d.Logger, d.Metrics)
	}
	return rt, nil
}
