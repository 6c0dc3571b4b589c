package procurement_test

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/vladislavdragonenkov/scm/internal/domain"
)

type execCall struct {
	query string
	args  []any
}

type inventoryKey struct {
	warehouseID int64
	partID      int64
}

// fakeHandle моделирует транзакционное хранилище: записи попытки видны
// в committed только после Commit, Rollback их отбрасывает.
type fakeHandle struct {
	mu sync.Mutex

	// fail вызывается перед каждым оператором; attempt — номер Begin.
	fail func(attempt int, query string) error
	// panicOn — подстрока оператора, на котором fake паникует.
	panicOn string

	nextID     int64
	begins     int
	commits    int
	rollbacks  int
	autoResets int
	inTx       bool

	pending   []execCall
	committed []execCall
	inventory map[inventoryKey]int64
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{inventory: make(map[inventoryKey]int64)}
}

func (h *fakeHandle) Begin(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.begins++
	if h.fail != nil {
		if err := h.fail(h.begins, "BEGIN"); err != nil {
			return err
		}
	}
	h.inTx = true
	h.pending = nil
	return nil
}

func (h *fakeHandle) record(query string, args []any) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.panicOn != "" && strings.Contains(query, h.panicOn) {
		panic("fake storage panic")
	}
	if !h.inTx {
		return errors.New("statement outside transaction")
	}
	if h.fail != nil {
		if err := h.fail(h.begins, query); err != nil {
			return err
		}
	}
	h.pending = append(h.pending, execCall{query: query, args: args})
	return nil
}

func (h *fakeHandle) Exec(_ context.Context, query string, args ...any) (int64, error) {
	if err := h.record(query, args); err != nil {
		return 0, err
	}
	return 1, nil
}

func (h *fakeHandle) InsertReturningID(_ context.Context, query string, args ...any) (int64, error) {
	if err := h.record(query, args); err != nil {
		return 0, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	return h.nextID, nil
}

func (h *fakeHandle) Query(context.Context, string, ...any) (domain.Rows, error) {
	return nil, errors.New("not supported by fake")
}

func (h *fakeHandle) Commit() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.inTx {
		return errors.New("commit without transaction")
	}
	if h.fail != nil {
		if err := h.fail(h.begins, "COMMIT"); err != nil {
			return err
		}
	}
	for _, call := range h.pending {
		if strings.Contains(call.query, "INSERT INTO inventory") {
			key := inventoryKey{warehouseID: call.args[0].(int64), partID: call.args[1].(int64)}
			h.inventory[key] += call.args[2].(int64)
		}
	}
	h.committed = append(h.committed, h.pending...)
	h.pending = nil
	h.inTx = false
	h.commits++
	return nil
}

func (h *fakeHandle) Rollback() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.inTx {
		return nil
	}
	h.pending = nil
	h.inTx = false
	h.rollbacks++
	return nil
}

func (h *fakeHandle) SetAutoCommit(enabled bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if enabled {
		h.autoResets++
		h.pending = nil
		h.inTx = false
	}
	return nil
}

// committedCalls возвращает закоммиченные операторы, содержащие table.
func (h *fakeHandle) committedCalls(table string) []execCall {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []execCall
	for _, call := range h.committed {
		if strings.Contains(call.query, "INSERT INTO "+table+" ") {
			out = append(out, call)
		}
	}
	return out
}

func transientConflict() error {
	return &domain.TransientConflictError{Code: "40P01", Err: errors.New("deadlock detected")}
}
