// Package batch wraps a graph store transaction with unit-of-work counting
// and periodic commit rotation, so arbitrarily large imports never hold one
// transaction open end to end.
package batch

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/hexfury/graphport/api/schemas"
)

// Tx is a rotating transaction over a graph store. Increment counts one
// unit of work and commits plus reopens the underlying transaction each
// time the granularity is reached. Not safe for concurrent use.
type Tx struct {
	store       schemas.GraphStore
	tx          schemas.GraphTx
	granularity int
	pending     int
	commits     int
	finished    bool
	log         *zap.Logger
}

// Begin opens the first underlying transaction. granularity is the number
// of units of work per commit.
func Begin(ctx context.Context, store schemas.GraphStore, granularity int, log *zap.Logger) (*Tx, error) {
	if granularity <= 0 {
		return nil, errors.New("batch: granularity must be positive")
	}
	if log == nil {
		log = zap.NewNop()
	}
	tx, err := store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &Tx{store: store, tx: tx, granularity: granularity, log: log.Named("batch")}, nil
}

// Graph exposes the current underlying transaction. The returned value is
// only valid until the next Increment call.
func (t *Tx) Graph() schemas.GraphTx {
	return t.tx
}

// Increment records one unit of work. The threshold check runs before the
// unit is counted, so N units produce exactly ceil(N/granularity) commits,
// counting the final Commit.
func (t *Tx) Increment(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.finished {
		return schemas.ErrTxClosed
	}
	if t.pending >= t.granularity {
		if err := t.tx.Commit(ctx); err != nil {
			return err
		}
		t.commits++
		t.pending = 0
		t.log.Debug("batch committed", zap.Int("commits", t.commits))
		next, err := t.store.Begin(ctx)
		if err != nil {
			return err
		}
		t.tx = next
	}
	t.pending++
	return nil
}

// Commit finalizes the transaction, committing pending work.
func (t *Tx) Commit(ctx context.Context) error {
	if t.finished {
		return schemas.ErrTxClosed
	}
	if err := t.tx.Commit(ctx); err != nil {
		return err
	}
	t.finished = true
	if t.pending > 0 {
		t.commits++
		t.pending = 0
	}
	return nil
}

// Close rolls back uncommitted work. After a successful Commit it is a
// no-op, which makes it safe to defer; a rollback that finds the driver
// transaction already closed is tolerated for the same reason.
func (t *Tx) Close(ctx context.Context) error {
	if t.finished {
		return nil
	}
	t.finished = true
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, schemas.ErrTxClosed) {
		t.log.Warn("rollback failed", zap.Error(err))
		return err
	}
	return nil
}

// Commits reports how many commits carrying work have completed.
func (t *Tx) Commits() int {
	return t.commits
}
