package pool

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/puddle/v2"

	"github.com/litesql/dbmcp/internal/dberr"
)

type State string

const (
	StateIdle   State = "idle"
	StateInUse  State = "in_use"
	StateBroken State = "broken"
)

// Handle is one pinned database session. It is owned by the pool while idle
// and by exactly one invocation while borrowed.
type Handle struct {
	id   string
	conn *sql.Conn

	mu       sync.Mutex
	state    State
	lastUsed time.Time
	lastErr  error
	res      *puddle.Resource[*Handle]
}

func newHandle(conn *sql.Conn) *Handle {
	return &Handle{
		id:       uuid.NewString(),
		conn:     conn,
		state:    StateIdle,
		lastUsed: time.Now(),
	}
}

func (h *Handle) ID() string { return h.id }

func (h *Handle) Conn() *sql.Conn { return h.conn }

func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *Handle) LastUsed() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastUsed
}

func (h *Handle) LastError() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastErr
}

// Observe records the outcome of an operation run on the handle. Transport
// failures mark it broken so Release discards it.
func (h *Handle) Observe(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastUsed = time.Now()
	if err == nil {
		return
	}
	h.lastErr = err
	if dberr.IsConnectionError(err) || dberr.KindOf(err) == dberr.ConnectionBroken {
		h.state = StateBroken
	}
}

// MarkBroken forces the handle out of the pool on release, e.g. after an
// abandoned transaction left the session in an unknown state.
func (h *Handle) MarkBroken(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = StateBroken
	if err != nil {
		h.lastErr = err
	}
}

func (h *Handle) broken() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state == StateBroken
}

// checkout moves an idle handle to in_use. It reports false for a handle
// that is not idle.
func (h *Handle) checkout(res *puddle.Resource[*Handle]) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != StateIdle {
		return false
	}
	h.state = StateInUse
	h.res = res
	h.lastErr = nil
	return true
}

// checkin clears the resource reference so a second Release is a no-op.
func (h *Handle) checkin() (*puddle.Resource[*Handle], bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	res := h.res
	h.res = nil
	if res == nil {
		return nil, false
	}
	broken := h.state == StateBroken
	if !broken {
		h.state = StateIdle
		h.lastUsed = time.Now()
	}
	return res, broken
}

func (h *Handle) close() error {
	err := h.conn.Close()
	if errors.Is(err, sql.ErrConnDone) {
		return nil
	}
	return err
}

// discard drops the driver session instead of handing it back to the
// database/sql free list.
func (h *Handle) discard() {
	_ = h.conn.Raw(func(any) error { return driver.ErrBadConn })
	_ = h.close()
}

func (h *Handle) ping(ctx context.Context, stmt string) error {
	var one int
	err := h.conn.QueryRowContext(ctx, stmt).Scan(&one)
	h.Observe(err)
	return err
}
