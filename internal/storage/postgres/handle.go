package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/scm/internal/domain"
)

// Handle — domain.StorageHandle поверх одного выделенного соединения пула.
// Не предназначен для одновременного использования из нескольких горутин.
type Handle struct {
	conn *sql.Conn
	tx   *sql.Tx
	opts *sql.TxOptions
}

// Handle берёт соединение из пула. Вызывающий обязан закрыть его через Close.
func (s *Store) Handle(ctx context.Context) (*Handle, error) {
	if s == nil || s.db == nil {
		return nil, &domain.PersistenceError{Err: errors.New("postgres store is not initialized")}
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, ClassifyError(fmt.Errorf("acquire connection: %w", err))
	}

	return &Handle{
		conn: conn,
		opts: &sql.TxOptions{Isolation: sql.LevelReadCommitted},
	}, nil
}

// Begin открывает транзакцию READ COMMITTED.
func (h *Handle) Begin(ctx context.Context) error {
	if h.tx != nil {
		return &domain.PersistenceError{Err: errors.New("transaction already open")}
	}

	tx, err := h.conn.BeginTx(ctx, h.opts)
	if err != nil {
		return ClassifyError(err)
	}
	h.tx = tx
	return nil
}

func (h *Handle) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if h.tx != nil {
		res, err = h.tx.ExecContext(ctx, query, args...)
	} else {
		res, err = h.conn.ExecContext(ctx, query, args...)
	}
	if err != nil {
		return 0, ClassifyError(err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, ClassifyError(fmt.Errorf("rows affected: %w", err))
	}
	return affected, nil
}

func (h *Handle) InsertReturningID(ctx context.Context, query string, args ...any) (int64, error) {
	var row *sql.Row
	if h.tx != nil {
		row = h.tx.QueryRowContext(ctx, query, args...)
	} else {
		row = h.conn.QueryRowContext(ctx, query, args...)
	}

	var id int64
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, &domain.PersistenceError{Err: errors.New("insert returned no generated key")}
		}
		return 0, ClassifyError(err)
	}
	return id, nil
}

func (h *Handle) Query(ctx context.Context, query string, args ...any) (domain.Rows, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if h.tx != nil {
		rows, err = h.tx.QueryContext(ctx, query, args...)
	} else {
		rows, err = h.conn.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, ClassifyError(err)
	}
	return rows, nil
}

func (h *Handle) Commit() error {
	if h.tx == nil {
		return &domain.PersistenceError{Err: errors.New("commit without open transaction")}
	}

	tx := h.tx
	h.tx = nil
	return ClassifyError(tx.Commit())
}

// Rollback без открытой транзакции ничего не делает.
func (h *Handle) Rollback() error {
	if h.tx == nil {
		return nil
	}

	tx := h.tx
	h.tx = nil
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return ClassifyError(err)
	}
	return nil
}

// SetAutoCommit(true) откатывает незавершённую транзакцию,
// SetAutoCommit(false) открывает новую, если её ещё нет.
func (h *Handle) SetAutoCommit(enabled bool) error {
	if enabled {
		return h.Rollback()
	}
	if h.tx != nil {
		return nil
	}
	return h.Begin(context.Background())
}

// InTransaction сообщает, открыта ли транзакция.
func (h *Handle) InTransaction() bool {
	return h.tx != nil
}

// Close откатывает открытую транзакцию и возвращает соединение в пул.
func (h *Handle) Close() error {
	rbErr := h.Rollback()
	if err := h.conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		return ClassifyError(err)
	}
	return rbErr
}

var _ domain.StorageHandle = (*Handle)(nil)
