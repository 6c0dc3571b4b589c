package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/scm/internal/domain"
	"github.com/vladislavdragonenkov/scm/internal/health"
	"github.com/vladislavdragonenkov/scm/internal/metrics"
	"github.com/vladislavdragonenkov/scm/internal/service/procurement"
	"github.com/vladislavdragonenkov/scm/internal/service/reporting"
	"github.com/vladislavdragonenkov/scm/internal/storage/postgres"
	"github.com/vladislavdragonenkov/scm/internal/version"
)

// Dependencies содержит все зависимости команд scm.
type Dependencies struct {
	Config Config
	Logger *log.Entry

	Store      *postgres.Store
	Engine     *procurement.Engine
	Orders     *OrderService
	Dashboards *reporting.DashboardService
	Suppliers  *reporting.SupplierService
	OutboxRepo domain.OutboxRepository

	Registry      *prometheus.Registry
	OrderMetrics  *metrics.OrderMetrics
	OutboxMetrics *metrics.OutboxMetrics
	Health        *health.Handler
}

// NewDependencies открывает пул БД, при необходимости накатывает миграции и собирает сервисы.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	store, err := postgres.Open(ctx, cfg.Postgres.PostgresDSN())
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if cfg.Postgres.AutoMigrate {
		if err := store.MigrateUp(ctx, 0); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("auto migrate: %w", err)
		}
		logger.Info("миграции схемы применены")
	}

	return newDependencies(cfg, store, logger), nil
}

func newDependencies(cfg Config, store *postgres.Store, logger *log.Entry) *Dependencies {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	orderMetrics := metrics.NewOrderMetricsWithRegisterer(registry)
	outboxMetrics := metrics.NewOutboxMetricsWithRegisterer(registry)

	engine := procurement.NewEngine(
		procurement.WithLogger(logger.WithField("component", "order-engine")),
		procurement.WithRetryConfig(procurement.RetryConfig{
			MaxAttempts: cfg.Order.MaxAttempts,
			Backoff:     cfg.Order.Backoff,
		}),
		procurement.WithOutbox(cfg.Order.OutboxEnabled),
		procurement.WithMetrics(orderMetrics),
	)

	outboxRepo := postgres.NewOutboxRepository(store)

	healthHandler := health.NewHandler(version.GetVersion())
	healthHandler.RegisterChecker("postgres", health.NewDatabaseChecker(store))
	if cfg.Order.OutboxEnabled {
		healthHandler.RegisterChecker("outbox", health.NewOutboxChecker(outboxRepo, cfg.Outbox.MaxPendingAge))
	}

	return &Dependencies{
		Config:        cfg,
		Logger:        logger,
		Store:         store,
		Engine:        engine,
		Orders:        NewOrderService(store, engine),
		Dashboards:    reporting.NewDashboardService(postgres.NewDashboardRepository(store), logger.WithField("component", "dashboard")),
		Suppliers:     reporting.NewSupplierService(postgres.NewSupplierRepository(store), logger.WithField("component", "supplier-report")),
		OutboxRepo:    outboxRepo,
		Registry:      registry,
		OrderMetrics:  orderMetrics,
		OutboxMetrics: outboxMetrics,
		Health:        healthHandler,
	}
}

// Close освобождает пул соединений.
func (d *Dependencies) Close() error {
	if d == nil || d.Store == nil {
		return nil
	}
	return d.Store.Close()
}

// HandleOpener выдаёт выделенное соединение под одну заявку; *postgres.Store удовлетворяет интерфейсу.
type HandleOpener interface {
	Handle(ctx context.Context) (*postgres.Handle, error)
}

// OrderService связывает консоль с движком: каждая заявка идёт на своём соединении.
type OrderService struct {
	handles HandleOpener
	engine  *procurement.Engine
}

func NewOrderService(handles HandleOpener, engine *procurement.Engine) *OrderService {
	return &OrderService{handles: handles, engine: engine}
}

// Submit берёт соединение из пула, выполняет транзакцию и возвращает соединение.
func (s *OrderService) Submit(ctx context.Context, req domain.OrderSubmission) (domain.OrderResult, error) {
	// Невалидная заявка не должна занимать соединение.
	if err := req.Validate(); err != nil {
		return s.engine.Submit(ctx, req, nil)
	}

	handle, err := s.handles.Handle(ctx)
	if err != nil {
		return domain.OrderResult{}, postgres.ClassifyError(err)
	}

	result, err := s.engine.Submit(ctx, req, handle)
	// После коммита ошибка закрытия соединения на результат не влияет.
	if closeErr := handle.Close(); closeErr != nil && err != nil {
		err = errors.Join(err, closeErr)
	}
	return result, err
}
