package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"postengine/internal/metrics"
)

// Beginner opens database transactions. *sql.DB implements it.
type Beginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Tx is a transaction handle. An owned Tx was opened by the Coordinator and
// its Commit and Rollback act on the database. A borrowed Tx wraps a
// transaction someone else opened; its Commit and Rollback do nothing, so
// the opener keeps the boundary.
type Tx struct {
	*sql.Tx
	owned bool
	hooks *commitHooks
}

// commitHooks is shared by an owned Tx and every handle borrowed from it.
type commitHooks struct {
	mu  sync.Mutex
	fns []func()
}

func (h *commitHooks) add(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fns = append(h.fns, fn)
}

func (h *commitHooks) take() []func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	fns := h.fns
	h.fns = nil
	return fns
}

// AfterCommit registers fn to run once the owner of the transaction has
// committed it. Hooks are discarded on rollback.
func (t *Tx) AfterCommit(fn func()) {
	t.hooks.add(fn)
}

// Owned reports whether this handle controls the transaction boundary.
func (t *Tx) Owned() bool {
	return t.owned
}

// Commit commits an owned transaction and then runs its AfterCommit
// hooks in registration order. It is a no-op on a borrowed handle.
func (t *Tx) Commit() error {
	if !t.owned {
		return nil
	}
	if err := t.Tx.Commit(); err != nil {
		t.hooks.take()
		return err
	}
	for _, fn := range t.hooks.take() {
		fn()
	}
	return nil
}

// Rollback rolls back an owned transaction. It is a no-op on a borrowed handle.
func (t *Tx) Rollback() error {
	if !t.owned {
		return nil
	}
	t.hooks.take()
	return t.Tx.Rollback()
}

// Coordinator runs units of work in exactly one transaction, opening one
// when the caller has none and joining the caller's otherwise.
type Coordinator struct {
	db     Beginner
	opened atomic.Int64
	joined atomic.Int64
}

// NewCoordinator creates a Coordinator over db.
func NewCoordinator(db Beginner) *Coordinator {
	return &Coordinator{db: db}
}

// TxStats counts transactions handed out by a Coordinator.
type TxStats struct {
	Opened int64
	Joined int64
}

// Stats returns how many transactions were opened and joined.
func (c *Coordinator) Stats() TxStats {
	return TxStats{Opened: c.opened.Load(), Joined: c.joined.Load()}
}

// Begin returns a borrowed handle on existing, or opens a new owned
// transaction when existing is nil.
func (c *Coordinator) Begin(ctx context.Context, existing *Tx) (*Tx, error) {
	if existing != nil {
		c.joined.Add(1)
		metrics.Transactions.WithLabelValues("joined").Inc()
		return &Tx{Tx: existing.Tx, owned: false, hooks: existing.hooks}, nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	c.opened.Add(1)
	metrics.Transactions.WithLabelValues("opened").Inc()
	return &Tx{Tx: tx, owned: true, hooks: &commitHooks{}}, nil
}

// WithTx runs fn in a transaction. With existing == nil a transaction is
// opened, committed when fn succeeds and rolled back when fn fails or
// panics. Otherwise fn joins existing and the boundary is left alone.
func (c *Coordinator) WithTx(ctx context.Context, existing *Tx, fn func(tx *Tx) error) error {
	tx, err := c.Begin(ctx, existing)
	if err != nil {
		return err
	}
	if !tx.Owned() {
		return fn(tx)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			slog.Warn("transaction rollback failed", "error", rbErr)
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	committed = true
	return nil
}

// Run is WithTx for units of work that return a value.
func Run[T any](ctx context.Context, c *Coordinator, existing *Tx, fn func(tx *Tx) (T, error)) (T, error) {
	var out T
	err := c.WithTx(ctx, existing, func(tx *Tx) error {
		var err error
		out, err = fn(tx)
		return err
	})
	return out, err
}
