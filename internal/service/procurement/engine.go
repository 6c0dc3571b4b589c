package procurement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/scm/internal/domain"
	"github.com/vladislavdragonenkov/scm/internal/metrics"
)

// Engine регистрирует заказ поставщику одной транзакцией:
// заказ, первичная поставка, позиции, приёмка по позициям и остатки склада.
type Engine struct {
	retry   RetryConfig
	outbox  bool
	logger  *log.Entry
	metrics *metrics.OrderMetrics
	now     func() time.Time
	sleep   Sleeper
	newID   func() string
}

// Option настраивает Engine.
type Option func(*Engine)

// WithLogger задаёт logger движка.
func WithLogger(logger *log.Entry) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithRetryConfig задаёт число попыток и паузу между ними.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(e *Engine) {
		e.retry = cfg
	}
}

// WithOutbox включает запись события purchase_order.registered в той же транзакции.
func WithOutbox(enabled bool) Option {
	return func(e *Engine) {
		e.outbox = enabled
	}
}

// WithMetrics подключает prometheus-метрики.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithClock подменяет источник текущего времени (даты заказа и поставки).
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithSleeper подменяет ожидание между попытками.
func WithSleeper(sleep Sleeper) Option {
	return func(e *Engine) {
		e.sleep = sleep
	}
}

// NewEngine создаёт движок регистрации заказов.
func NewEngine(options ...Option) *Engine {
	e := &Engine{
		retry: DefaultRetryConfig(),
		now:   time.Now,
		sleep: SleepContext,
		newID: uuid.NewString,
	}
	for _, option := range options {
		option(e)
	}

	if e.logger == nil {
		e.logger = log.WithField("component", "order-engine")
	}
	if e.retry.MaxAttempts < 1 {
		e.retry.MaxAttempts = 1
	}
	if e.retry.Backoff < 0 {
		e.retry.Backoff = 0
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.sleep == nil {
		e.sleep = SleepContext
	}

	return e
}

// Submit валидирует заявку и выполняет транзакцию с повтором на transient conflict.
//
// Наружу выходят только терминальные исходы: результат, *domain.ValidationError,
// *domain.PersistenceError или *domain.RetryExhaustedError (через errors.As / domain.KindOf).
func (e *Engine) Submit(ctx context.Context, req domain.OrderSubmission, handle domain.StorageHandle) (domain.OrderResult, error) {
	logger := e.logger.WithFields(log.Fields{
		"project_id":   req.ProjectID,
		"supplier_id":  req.SupplierID,
		"warehouse_id": req.WarehouseID,
		"lines":        len(req.Items),
	})

	if err := req.Validate(); err != nil {
		logger.WithError(err).Error("заявка отклонена валидацией")
		if e.metrics != nil {
			e.metrics.RecordSubmissionStarted()
			e.metrics.RecordSubmissionFinished(string(domain.KindValidation), 0, 0)
		}
		return domain.OrderResult{}, err
	}
	if handle == nil {
		return domain.OrderResult{}, &domain.PersistenceError{Err: errors.New("storage handle is nil")}
	}

	logger = logger.WithField("submission_id", e.newID())
	start := time.Now()
	if e.metrics != nil {
		e.metrics.RecordSubmissionStarted()
	}

	var result domain.OrderResult
	attempts, err := WithRetry(ctx, RetryPolicy{
		MaxAttempts: e.retry.MaxAttempts,
		Backoff:     e.retry.Backoff,
		IsTransient: domain.IsTransient,
		Sleep:       e.sleep,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			logger.WithError(err).WithFields(log.Fields{
				"attempt": attempt,
				"delay":   delay,
			}).Warn("конфликт транзакции, повторяем")
			if e.metrics != nil {
				e.metrics.RecordRetry()
			}
		},
	}, func(ctx context.Context, attempt int) error {
		res, err := e.runAttempt(ctx, logger.WithField("attempt", attempt), handle, req)
		if err != nil {
			return err
		}
		result = res
		return nil
	})

	if err != nil {
		err = terminalError(err)
		logger.WithError(err).WithFields(log.Fields{
			"attempts": attempts,
			"kind":     domain.KindOf(err),
		}).Error("регистрация заказа не выполнена")
		if e.metrics != nil {
			e.metrics.RecordSubmissionFinished(string(domain.KindOf(err)), attempts, time.Since(start))
		}
		return domain.OrderResult{}, err
	}

	result.Attempts = attempts
	if e.metrics != nil {
		e.metrics.RecordSubmissionFinished(metrics.OutcomeCommitted, attempts, time.Since(start))
	}
	return result, nil
}

// terminalError гарантирует, что неклассифицированная ошибка выйдет как PersistenceError.
func terminalError(err error) error {
	switch domain.KindOf(err) {
	case domain.KindRetryExhausted, domain.KindValidation:
		return err
	}
	var persistence *domain.PersistenceError
	if errors.As(err, &persistence) {
		return err
	}
	return &domain.PersistenceError{Err: err}
}

// runAttempt — одна попытка: Begin → записи → Commit. На любом выходе соединение
// возвращается в autocommit, незакоммиченная транзакция откатывается.
func (e *Engine) runAttempt(ctx context.Context, logger *log.Entry, handle domain.StorageHandle, req domain.OrderSubmission) (res domain.OrderResult, err error) {
	defer func() {
		if resetErr := handle.SetAutoCommit(true); resetErr != nil {
			logger.WithError(resetErr).Warn("не удалось вернуть соединение в autocommit")
		}
	}()

	if e.metrics != nil {
		e.metrics.RecordAttempt()
	}
	logger.Info("попытка транзакции регистрации заказа")

	if err = handle.Begin(ctx); err != nil {
		logger.WithError(err).Error("не удалось открыть транзакцию")
		return domain.OrderResult{}, fmt.Errorf("begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := handle.Rollback(); rbErr != nil {
			logger.WithError(rbErr).Warn("rollback завершился с ошибкой")
		}
		logger.WithError(err).Error("транзакция откатана")
	}()

	res, received, err := e.writeOrder(ctx, handle, req)
	if err != nil {
		return domain.OrderResult{}, err
	}

	if err = handle.Commit(); err != nil {
		return domain.OrderResult{}, fmt.Errorf("commit: %w", err)
	}
	committed = true

	if e.metrics != nil {
		e.metrics.RecordReceivedUnits(received)
	}
	logger.WithFields(log.Fields{
		"purchase_order_id": res.OrderID,
		"delivery_id":       res.DeliveryID,
	}).Info("транзакция заказа закоммичена")

	return res, nil
}

// writeOrder выполняет записи в фиксированном порядке: следующие шаги ссылаются
// на сгенерированные id заказа и поставки. Возвращает и сумму принятых единиц.
func (e *Engine) writeOrder(ctx context.Context, handle domain.StorageHandle, req domain.OrderSubmission) (domain.OrderResult, int64, error) {
	now := e.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	dueDate := today.AddDate(0, 0, domain.DefaultDueDays)

	orderID, err := handle.InsertReturningID(ctx, insertPurchaseOrderSQL,
		req.ProjectID, req.SupplierID, req.UserID, string(domain.PurchaseOrderStatusOrdered), today,
	)
	if err != nil {
		return domain.OrderResult{}, 0, fmt.Errorf("insert purchase order: %w", err)
	}

	deliveryID, err := handle.InsertReturningID(ctx, insertDeliverySQL,
		orderID, today, string(domain.TransportModeTruck), 0.0, string(domain.DeliveryStatusNormal),
	)
	if err != nil {
		return domain.OrderResult{}, 0, fmt.Errorf("insert delivery: %w", err)
	}

	var received int64
	for i, item := range req.Items {
		lineNo := i + 1

		if _, err := handle.Exec(ctx, insertPurchaseOrderLineSQL,
			orderID, lineNo, item.PartID, item.Qty, item.UnitPrice, dueDate,
		); err != nil {
			return domain.OrderResult{}, 0, fmt.Errorf("insert purchase order line %d: %w", lineNo, err)
		}

		receivedQty := domain.InitialReceiptQty(item.Qty)
		if _, err := handle.Exec(ctx, insertDeliveryInclusionSQL,
			deliveryID, orderID, lineNo, receivedQty, domain.InitialInspectionNote,
		); err != nil {
			return domain.OrderResult{}, 0, fmt.Errorf("insert delivery inclusion %d: %w", lineNo, err)
		}

		if _, err := handle.Exec(ctx, upsertInventorySQL, req.WarehouseID, item.PartID, receivedQty); err != nil {
			return domain.OrderResult{}, 0, fmt.Errorf("upsert inventory part %d: %w", item.PartID, err)
		}
		received += receivedQty
	}

	result := domain.OrderResult{OrderID: orderID, DeliveryID: deliveryID}

	if e.outbox {
		if err := e.enqueueRegistered(ctx, handle, req, result, received, now); err != nil {
			return domain.OrderResult{}, 0, err
		}
	}

	return result, received, nil
}

func (e *Engine) enqueueRegistered(
	ctx context.Context,
	handle domain.StorageHandle,
	req domain.OrderSubmission,
	result domain.OrderResult,
	received int64,
	now time.Time,
) error {
	payload, err := json.Marshal(domain.PurchaseOrderRegistered{
		OrderID:       result.OrderID,
		DeliveryID:    result.DeliveryID,
		ProjectID:     req.ProjectID,
		SupplierID:    req.SupplierID,
		WarehouseID:   req.WarehouseID,
		UserID:        req.UserID,
		LineCount:     len(req.Items),
		TotalAmount:   req.TotalAmount(),
		ReceivedUnits: received,
	})
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}

	if _, err := handle.Exec(ctx, insertOutboxMessageSQL,
		e.newID(),
		domain.AggregatePurchaseOrder,
		strconv.FormatInt(result.OrderID, 10),
		domain.EventPurchaseOrderRegistered,
		payload,
		now.UTC(),
	); err != nil {
		return fmt.Errorf("insert outbox message: %w", err)
	}
	return nil
}
