package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// Ошибка отсутствия хотя бы одной позиции в заявке.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка при некорректном количестве (<= 0).
	ErrItemQtyInvalid = errors.New("item qty must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Сумма позиции или заявки не помещается в int64.
	ErrItemAmountOverflow = errors.New("order amount overflows int64")
	// Ошибка отсутствующего идентификатора детали.
	ErrItemPartRequired = errors.New("item part_id is required")
	// Ошибки отсутствующих ссылок заголовка заказа.
	ErrProjectRequired   = errors.New("project_id is required")
	ErrSupplierRequired  = errors.New("supplier_id is required")
	ErrWarehouseRequired = errors.New("warehouse_id is required")
	ErrUserRequired      = errors.New("user_id is required")
	// ErrProjectNotFound возвращается дашбордом, если проект не найден.
	ErrProjectNotFound = errors.New("project not found")
	// ErrOutboxPublish возвращается, если outbox-сообщение уже не в статусе pending.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// ErrorKind классифицирует отказ регистрации заказа.
type ErrorKind string

const (
	KindValidation     ErrorKind = "validation"
	KindPersistence    ErrorKind = "persistence"
	KindTransient      ErrorKind = "transient_conflict"
	KindRetryExhausted ErrorKind = "retry_exhausted"
)

// ValidationError — заявка некорректна, до хранилища дело не доходит.
type ValidationError struct {
	Reasons []error
}

// NewValidationError собирает причины отказа валидации.
func NewValidationError(reasons ...error) *ValidationError {
	return &ValidationError{Reasons: reasons}
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Reasons))
	for _, reason := range e.Reasons {
		parts = append(parts, reason.Error())
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() []error { return e.Reasons }

func (e *ValidationError) Kind() ErrorKind { return KindValidation }

// PersistenceError — неустранимый отказ хранилища (constraint, соединение, SQL).
type PersistenceError struct {
	Code string
	Err  error
}

func (e *PersistenceError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("persistence failure (sqlstate %s): %v", e.Code, e.Err)
	}
	return fmt.Sprintf("persistence failure: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Kind() ErrorKind { return KindPersistence }

// TransientConflictError — deadlock, serialization failure или lock timeout; повтор имеет смысл.
type TransientConflictError struct {
	Code string
	Err  error
}

func (e *TransientConflictError) Error() string {
	return fmt.Sprintf("transient conflict (sqlstate %s): %v", e.Code, e.Err)
}

func (e *TransientConflictError) Unwrap() error { return e.Err }

func (e *TransientConflictError) Kind() ErrorKind { return KindTransient }

// RetryExhaustedError — все попытки израсходованы без коммита.
type RetryExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Last }

func (e *RetryExhaustedError) Kind() ErrorKind { return KindRetryExhausted }

// IsTransient сообщает, можно ли повторить операцию после этой ошибки.
func IsTransient(err error) bool {
	var conflict *TransientConflictError
	return errors.As(err, &conflict)
}

// KindOf возвращает класс ошибки; неклассифицированные ошибки считаются persistence.
func KindOf(err error) ErrorKind {
	var kinded interface{ Kind() ErrorKind }
	if errors.As(err, &kinded) {
		return kinded.Kind()
	}
	return KindPersistence
}
