package domain

import (
	"context"
	"time"
)

// Rows реализуется *sql.Rows.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// StorageHandle — одно открытое соединение с транзакционным хранилищем.
// Ошибки, которые возвращает реализация, уже классифицированы:
// *TransientConflictError для deadlock/serialization/lock timeout, иначе *PersistenceError.
type StorageHandle interface {
	// Begin открывает явную транзакцию (autocommit выключается).
	Begin(ctx context.Context) error
	// Exec выполняет оператор и возвращает число затронутых строк.
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	// InsertReturningID выполняет INSERT ... RETURNING и возвращает сгенерированный ключ.
	InsertReturningID(ctx context.Context, query string, args ...any) (int64, error)
	Query(ctx context.Context, query string, args ...any) (Rows, error)
	Commit() error
	Rollback() error
	// SetAutoCommit(true) возвращает соединение в режим по умолчанию, закрывая открытую транзакцию.
	SetAutoCommit(enabled bool) error
}

// DashboardRepository — read-only агрегаты для дашборда проекта.
type DashboardRepository interface {
	FindProject(ctx context.Context, idOrShipName string) (Project, error)
	TotalOrderAmount(ctx context.Context, projectID int64) (int64, error)
	CarbonEmissions(ctx context.Context, projectID int64) (CarbonBreakdown, error)
	TopSuppliers(ctx context.Context, projectID int64, limit int) ([]SupplierSpend, error)
}

// SupplierRepository — read-only отчёты по поставщикам.
type SupplierRepository interface {
	Report(ctx context.Context, filter SupplierReportFilter) ([]SupplierReportRow, error)
	RecentOrders(ctx context.Context, supplierID int64, limit int) ([]SupplierOrderDetail, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository — сторона чтения outbox для relay-воркера.
// Запись сообщений выполняется движком заказов внутри его транзакции.
type OutboxRepository interface {
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

const (
		AggregatePurchaseOrder = "purchase_order"
	// EventPurchaseOrderRegistered публикуется после коммита регистрации заказа.
	EventPurchaseOrderRegistered = "purchase_order.registered"
)

// Payload события purchase_order.registered.
type PurchaseOrderRegistered struct {
	OrderID       int64  `json:"order_id"`
	DeliveryID    int64  `json:"delivery_id"`
	ProjectID     int64  `json:"project_id"`
	SupplierID    int64  `json:"supplier_id"`
	WarehouseID   int64  `json:"warehouse_id"`
	UserID        string `json:"user_id"`
	LineCount     int    `json:"line_count"`
	TotalAmount   int64  `json:"total_amount"`
	ReceivedUnits int64  `json:"received_units"`
}
