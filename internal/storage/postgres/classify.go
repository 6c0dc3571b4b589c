package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/scm/internal/domain"
)

// SQLSTATE-коды, после которых транзакцию можно повторить целиком.
const (
	sqlStateDeadlockDetected     = "40P01"
	sqlStateSerializationFailure = "40001"
	sqlStateLockNotAvailable     = "55P03" // в том числе lock_timeout
)

// ClassifyError переводит ошибку драйвера в доменную таксономию.
// Уже классифицированные ошибки возвращаются как есть, nil остаётся nil.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}

	var transient *domain.TransientConflictError
	if errors.As(err, &transient) {
		return err
	}
	var persistence *domain.PersistenceError
	if errors.As(err, &persistence) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if isTransientCode(pgErr.Code) {
			return &domain.TransientConflictError{Code: pgErr.Code, Err: err}
		}
		return &domain.PersistenceError{Code: pgErr.Code, Err: err}
	}

	return &domain.PersistenceError{Err: err}
}

func isTransientCode(code string) bool {
	switch code {
	case sqlStateDeadlockDetected, sqlStateSerializationFailure, sqlStateLockNotAvailable:
		return true
	default:
		return false
	}
}
