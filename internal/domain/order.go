package domain

import (
	"math"
	"time"
)

// PurchaseOrderStatus описывает статус заказа поставщику.
type PurchaseOrderStatus string

const (
	// Статус фиксируется при создании заказа.
	PurchaseOrderStatusOrdered PurchaseOrderStatus = "ordered"
)

// DeliveryStatus описывает состояние поставки.
type DeliveryStatus string

const (
	DeliveryStatusNormal  DeliveryStatus = "normal"
	DeliveryStatusDelayed DeliveryStatus = "delayed"
)

// TransportMode описывает способ доставки партии на склад.
type TransportMode string

const (
	TransportModeTruck TransportMode = "truck"
)

const (
	// InitialInspectionNote пишется во все позиции первичной приёмки.
	InitialInspectionNote = "initial receipt"
	// Срок поставки позиции в днях от даты заказа.
	DefaultDueDays = 30
)

// OrderItem представляет одну позицию заявки в порядке ввода оператором.
type OrderItem struct {
	PartID int64
	// Qty строго больше нуля.
	Qty int64
	// UnitPrice в целых денежных единицах, не меньше нуля.
	UnitPrice int64
}

// OrderSubmission — неизменяемая заявка на регистрацию заказа поставщику.
type OrderSubmission struct {
	ProjectID   int64
	SupplierID  int64
	UserID      string
	WarehouseID int64
	Items       []OrderItem
}

// Validate проверяет заявку до открытия транзакции.
// Все найденные нарушения собираются в один ValidationError.
func (s OrderSubmission) Validate() error {
	var reasons []error

	if s.ProjectID <= 0 {
		reasons = append(reasons, ErrProjectRequired)
	}
	if s.SupplierID <= 0 {
		reasons = append(reasons, ErrSupplierRequired)
	}
	if s.WarehouseID <= 0 {
		reasons = append(reasons, ErrWarehouseRequired)
	}
	if s.UserID == "" {
		reasons = append(reasons, ErrUserRequired)
	}
	if len(s.Items) == 0 {
		reasons = append(reasons, ErrItemsRequired)
	}
	var (
		total    int64
		overflow bool
	)
	for _, item := range s.Items {
		if item.PartID <= 0 {
			reasons = append(reasons, ErrItemPartRequired)
		}
		if item.Qty <= 0 {
			reasons = append(reasons, ErrItemQtyInvalid)
		}
		if item.UnitPrice < 0 {
			reasons = append(reasons, ErrItemPriceInvalid)
		}
		if item.Qty > 0 && item.UnitPrice > 0 && !overflow {
			amount, ok := lineAmount(item.Qty, item.UnitPrice)
			if !ok || total > math.MaxInt64-amount {
				overflow = true
				reasons = append(reasons, ErrItemAmountOverflow)
			} else {
				total += amount
			}
		}
	}

	if len(reasons) == 0 {
		return nil
	}
	return NewValidationError(reasons...)
}

// lineAmount умножает qty на price; ok=false при переполнении int64.
// Оба аргумента положительные.
func lineAmount(qty, price int64) (int64, bool) {
	if qty > math.MaxInt64/price {
		return 0, false
	}
	return qty * price, true
}

// TotalAmount возвращает сумму заявки: qty * price по всем позициям.
// Без переполнения только для заявки, прошедшей Validate.
func (s OrderSubmission) TotalAmount() int64 {
	var total int64
	for _, item := range s.Items {
		total += item.Qty * item.UnitPrice
	}
	return total
}

// InitialReceiptQty — количество, принятое первой поставкой: половина заказанного с округлением вниз.
// Для qty=1 результат 0, это допустимо.
func InitialReceiptQty(qty int64) int64 {
	return qty / 2
}

// PurchaseOrder хранит заголовок заказа.
type PurchaseOrder struct {
	ID         int64
	ProjectID  int64
	SupplierID int64
	UserID     string
	Status     PurchaseOrderStatus
	OrderDate  time.Time
}

// PurchaseOrderLine — позиция заказа; LineNo начинается с 1 и совпадает с порядком ввода.
type PurchaseOrderLine struct {
	OrderID   int64
	LineNo    int
	PartID    int64
	Qty       int64
	UnitPrice int64
	DueDate   time.Time
}

type Delivery struct {
	ID          int64
	OrderID     int64
	ArrivalDate time.Time
	Transport   TransportMode
	DistanceKm  float64
	Status      DeliveryStatus
}

// DeliveryInclusion связывает поставку с конкретной позицией заказа.
type DeliveryInclusion struct {
	DeliveryID   int64
	OrderID      int64
	LineNo       int
	DeliveredQty int64
	Inspection   string
}

// InventoryRecord — остаток детали на складе; количество только накапливается.
type InventoryRecord struct {
	WarehouseID int64
	PartID      int64
	Quantity    int64
}

// OrderResult возвращается после коммита.
type OrderResult struct {
	OrderID    int64
	DeliveryID int64
	// Число транзакций до коммита.
	Attempts int
}
