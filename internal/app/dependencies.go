package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/gateway"
	"github.com/vladislavdragonenkov/checkout/internal/metrics"
	"github.com/vladislavdragonenkov/checkout/internal/service/checkout"
	"github.com/vladislavdragonenkov/checkout/internal/service/confirm"
	"github.com/vladislavdragonenkov/checkout/internal/service/notify"
	"github.com/vladislavdragonenkov/checkout/internal/service/pricing"
	"github.com/vladislavdragonenkov/checkout/internal/service/shipping"
	"github.com/vladislavdragonenkov/checkout/internal/storage/memory"
	"github.com/vladislavdragonenkov/checkout/internal/storage/postgres"
)

// Dependencies содержит все зависимости приложения.
type Dependencies struct {
	Intents     domain.IntentRepository
	Orders      domain.OrderRepository
	Catalog     domain.CatalogRepository
	Coupons     domain.CouponRepository
	Timeline    domain.TimelineRepository
	Outbox      domain.OutboxRepository
	Idempotency domain.IdempotencyRepository

	// Store не nil только для PostgreSQL-хранилища.
	Store *postgres.Store

	Gateways     []domain.GatewayAdapter
	Calculator   *pricing.Calculator
	Checkout     *checkout.Service
	Confirm      *confirm.Router
	Materializer *confirm.Materializer
	Metrics      *metrics.CheckoutMetrics
	Logger       *log.Entry
}

// NewDependencies создаёт и связывает все зависимости приложения. Пустой
// PostgresDSN переключает хранилище на in-memory реализацию.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	d := &Dependencies{
		Logger:  logger,
		Metrics: metrics.NewCheckoutMetrics(),
	}

	if cfg.PostgresDSN == "" {
		logger.Info("postgres dsn is empty, using in-memory storage")
		d.Intents = memory.NewIntentRepository()
		d.Orders = memory.NewOrderRepository()
		d.Catalog = memory.NewCatalogRepository()
		d.Coupons = memory.NewCouponRepository()
		d.Timeline = memory.NewTimelineRepository()
		d.Outbox = memory.NewOutboxRepository()
		d.Idempotency = memory.NewIdempotencyRepository()
	} else {
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := store.MigrateUp(ctx, 0); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		logger.Info("postgres storage initialized")

		d.Store = store
		d.Intents = postgres.NewIntentRepository(store)
		d.Orders = postgres.NewOrderRepository(store)
		d.Catalog = postgres.NewCatalogRepository(store)
		d.Coupons = postgres.NewCouponRepository(store)
		d.Timeline = postgres.NewTimelineRepository(store)
		d.Outbox = postgres.NewOutboxRepository(store)
		d.Idempotency = postgres.NewIdempotencyRepository(store)
	}

	d.Gateways = buildGateways(cfg, logger)

	d.Calculator = pricing.NewCalculator(d.Catalog, d.Coupons, pricing.DefaultConfig(), logger.WithField("component", "pricing"))

	var shippingPusher domain.ShippingPusher
	if cfg.Shipping.BaseURL != "" {
		shippingPusher = shipping.NewPusher(shipping.Config{
			BaseURL: cfg.Shipping.BaseURL,
			APIKey:  cfg.Shipping.APIKey,
		})
	} else {
		logger.Info("shipping base url is empty, orders will not be pushed to delivery")
	}

	var notifier domain.Notifier
	if cfg.SMTP.Host != "" {
		notifier = notify.NewNotifier(notify.Config{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
	} else {
		logger.Info("smtp host is empty, confirmation emails disabled")
	}

	d.Materializer = confirm.NewMaterializer(
		d.Intents,
		d.Orders,
		d.Catalog,
		d.Outbox,
		d.Timeline,
		shippingPusher,
		notifier,
		logger.WithField("component", "materializer"),
		confirm.WithMaterializerMetrics(d.Metrics),
	)

	d.Confirm = confirm.NewRouter(
		d.Intents,
		d.Orders,
		d.Calculator,
		d.Materializer,
		d.Gateways,
		logger.WithField("component", "confirm-router"),
		confirm.WithRouterMetrics(d.Metrics),
		confirm.WithRouterOutbox(d.Outbox),
	)

	providers := make([]string, 0, len(d.Gateways))
	for _, g := range d.Gateways {
		providers = append(providers, g.Provider())
	}
	d.Checkout = checkout.NewService(
		d.Intents,
		d.Calculator,
		d.Timeline,
		providers,
		logger.WithField("component", "checkout"),
		checkout.WithServiceMetrics(d.Metrics),
		checkout.WithServiceOutbox(d.Outbox),
	)

	return d, nil
}

// Close освобождает ресурсы хранилища.
func (d *Dependencies) Close() {
	if d.Store != nil {
		if err := d.Store.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close postgres store")
		}
	}
}

// buildGateways регистрирует адаптеры провайдеров. COD доступен всегда,
// cardpay и upi — только при заданном base URL.
func buildGateways(cfg Config, logger *log.Entry) []domain.GatewayAdapter {
	gateways := []domain.GatewayAdapter{gateway.NewCOD()}

	if cfg.Cardpay.BaseURL != "" {
		gateways = append(gateways, gateway.NewCardpay(gateway.CardpayConfig{
			BaseURL:       cfg.Cardpay.BaseURL,
			APIKey:        cfg.Cardpay.APIKey,
			APISecret:     cfg.Cardpay.APISecret,
			WebhookSecret: cfg.Cardpay.WebhookSecret,
		}))
	} else {
		logger.Info("cardpay base url is empty, provider disabled")
	}

	if cfg.UPI.BaseURL != "" {
		gateways = append(gateways, gateway.NewUPI(gateway.UPIConfig{
			BaseURL:      cfg.UPI.BaseURL,
			ClientID:     cfg.UPI.ClientID,
			ClientSecret: cfg.UPI.ClientSecret,
		}))
	} else {
		logger.Info("upi base url is empty, provider disabled")
	}

	return gateways
}
