package app

import (
	"context"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/cache"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/pipeline"
	"github.com/vladislavdragonenkov/storefront/internal/service/cart"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
	"github.com/vladislavdragonenkov/storefront/internal/service/fulfillment"
	"github.com/vladislavdragonenkov/storefront/internal/service/inventory"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
	"github.com/vladislavdragonenkov/storefront/internal/transport/httpapi"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// Repositories — хранилища выбранного драйвера.
type Repositories struct {
	Orders   domain.OrderRepository
	Payments domain.PaymentRepository
	Products domain.ProductRepository
	Carts    domain.CartRepository
	Timeline domain.TimelineRepository
	Users    domain.UserRepository
	Checkout domain.CheckoutStore
}

// runtimeDependencies — внешние ресурсы процесса: хранилище, кэш, провайдер платежей.
type runtimeDependencies struct {
	repos    Repositories
	cache    cache.Store
	provider domain.PaymentProvider
	checkers map[string]healthcheck.Checker
	closers  []io.Closer
}

// initRuntimeDependencies открывает хранилище и кэш по конфигурации.
// При ошибке уже открытые ресурсы закрываются.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	deps := &runtimeDependencies{checkers: make(map[string]healthcheck.Checker)}

	if err := deps.initStorage(ctx, cfg, logger); err != nil {
		deps.close(logger)
		return nil, err
	}
	deps.initCache(ctx, cfg.Redis, logger)

	provider, err := newPaymentProvider(cfg.Payment)
	if err != nil {
		deps.close(logger)
		return nil, err
	}
	deps.provider = provider
	return deps, nil
}

func (d *runtimeDependencies) initStorage(ctx context.Context, cfg Config, logger *log.Entry) error {
	switch cfg.Storage.Driver {
	case StorageDriverMemory:
		orders := memory.NewOrderRepository()
		payments := memory.NewPaymentRepository()
		d.repos = Repositories{
			Orders:   orders,
			Payments: payments,
			Products: memory.NewProductRepository(),
			Carts:    memory.NewCartRepository(),
			Timeline: memory.NewTimelineRepository(),
			Users:    memory.NewUserRepository(),
			Checkout: memory.NewCheckoutStore(orders, payments),
		}
		logger.Info("using in-memory storage")
		return nil

	case StorageDriverPostgres:
		if cfg.Postgres.DSN == "" {
			return fmt.Errorf("postgres dsn is required for storage driver %q", StorageDriverPostgres)
		}
		store, err := postgres.Open(ctx, cfg.Postgres.DSN, cfg.Postgres.PoolOptions()...)
		if err != nil {
			return err
		}
		d.closers = append(d.closers, store)

		if cfg.Postgres.AutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				return fmt.Errorf("apply postgres migrations: %w", err)
			}
		}

		d.repos = Repositories{
			Orders:   postgres.NewOrderRepository(store),
			Payments: postgres.NewPaymentRepository(store),
			Products: postgres.NewProductRepository(store),
			Carts:    postgres.NewCartRepository(store),
			Timeline: postgres.NewTimelineRepository(store),
			Users:    postgres.NewUserRepository(store),
			Checkout: postgres.NewCheckoutStore(store),
		}
		d.checkers["postgres"] = healthcheck.NewPingChecker("postgres", store.Ping)
		logger.WithField("auto_migrate", cfg.Postgres.AutoMigrate).Info("using postgres storage")
		return nil
	}
	return fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
}

// initCache подключает Redis; при недоступности работает с кэшем в памяти,
// потому что кэш не является источником истины.
func (d *runtimeDependencies) initCache(ctx context.Context, cfg RedisConfig, logger *log.Entry) {
	if cfg.Addr == "" {
		d.cache = cache.NewMemoryStore()
		return
	}

	store, err := cache.OpenRedis(ctx, cfg.Addr, cfg.Password, cfg.DB)
	if err != nil {
		logger.WithError(err).Warn("redis unavailable, falling back to in-memory cache")
		d.cache = cache.NewMemoryStore()
		return
	}
	d.cache = store
	d.closers = append(d.closers, store)
	d.checkers["redis"] = healthcheck.NewPingChecker("redis", store.Ping, healthcheck.NonCritical())
	logger.WithField("addr", cfg.Addr).Info("redis cache connected")
}

func newPaymentProvider(cfg PaymentConfig) (domain.PaymentProvider, error) {
	switch cfg.Provider {
	case PaymentProviderRazorpay:
		return payment.NewRazorpayProvider(cfg.KeyID, cfg.KeySecret), nil
	case PaymentProviderFake, "":
		return payment.NewFakeProvider(), nil
	}
	return nil, fmt.Errorf("unsupported payment provider %q", cfg.Provider)
}

// close освобождает ресурсы в обратном порядке открытия.
func (d *runtimeDependencies) close(logger *log.Entry) {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i].Close(); err != nil {
			logger.WithError(err).Warn("failed to close dependency")
		}
	}
	d.closers = nil
}

// services — прикладные сервисы поверх хранилищ, кэша и конвейера команд.
type services struct {
	checkout *checkout.Service
	orders   *fulfillment.Service
	carts    *cart.Service
	catalog  *inventory.Catalog
	payments *payment.Reconciler
}

func newServices(cfg Config, deps *runtimeDependencies, publisher pipeline.Publisher, m *metrics.OrderMetrics, logger *log.Entry) *services {
	repos := deps.repos
	ttls := cfg.Cache.TTLs()
	component := func(name string) *log.Entry { return logger.WithField("component", name) }

	ledger := inventory.NewLedger(repos.Products, deps.cache, component("inventory"), m)
	return &services{
		checkout: checkout.NewService(checkout.Dependencies{
			Carts:    repos.Carts,
			Products: repos.Products,
			Payments: repos.Payments,
			Orders:   repos.Orders,
			Store:    repos.Checkout,
			Timeline: repos.Timeline,
		}, deps.cache, cache.NewIdempotencyStore(deps.cache, cfg.Idempotency.TTL, component("idempotency")), component("checkout"), m),
		orders: fulfillment.NewService(repos.Orders, repos.Timeline, repos.Users, ledger, publisher, component("fulfillment"),
			fulfillment.WithMetrics(m),
			fulfillment.WithOrderListCache(deps.cache, ttls.OrderList),
		),
		carts:   cart.NewService(repos.Carts, repos.Products, publisher, deps.cache, ttls.Cart, component("cart"), m),
		catalog: inventory.NewCatalog(repos.Products, deps.cache, ttls.Product, component("catalog"), m),
		payments: payment.NewReconciler(repos.Payments, deps.provider, payment.Secrets{
			KeySecret:     cfg.Payment.KeySecret,
			WebhookSecret: cfg.Payment.WebhookSecret,
		}, component("payment")),
	}
}

func (s *services) http(paymentKeyID string) httpapi.Services {
	return httpapi.Services{
		Checkout:     s.checkout,
		Orders:       s.orders,
		Carts:        s.carts,
		Catalog:      s.catalog,
		Payments:     s.payments,
		PaymentKeyID: paymentKeyID,
	}
}

// commandRouter направляет команды конвейера в сервис-владелец агрегата.
type commandRouter struct {
	orders *fulfillment.Service
	carts  *cart.Service
}

func (r commandRouter) VisitOrder(ctx context.Context, cmd domain.OrderCommand) error {
	return r.orders.Apply(ctx, cmd)
}

func (r commandRouter) VisitCart(ctx context.Context, cmd domain.CartCommand) error {
	return r.carts.Apply(ctx, cmd)
}

var _ domain.CommandVisitor = commandRouter{}
