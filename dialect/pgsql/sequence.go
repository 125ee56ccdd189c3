package pgsql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/syssam/pgadapt"
	"github.com/syssam/pgadapt/dialect"
	"github.com/syssam/pgadapt/dialect/sql"
)

const (
	sqlAdvisoryLock   = "SELECT pg_advisory_lock($1)"
	sqlAdvisoryUnlock = "SELECT pg_advisory_unlock($1)"
)

// NextID returns an identifier for the given table and column that is
// strictly greater than floor, from the sequence named by SequenceName.
//
// The fast path fetches the next sequence value and returns it when it
// already exceeds floor. Otherwise the sequence has fallen behind, for
// example after a bulk import assigned keys outside its range, and NextID
// repairs it: it takes the configured advisory lock, re-checks the sequence
// in case another caller repaired it first, restarts it at floor+1 when
// still behind, and returns the next value. One lock key serializes repairs
// for all tables.
//
// The lock and the repair statements run on a single pinned session, and
// the lock is released on every exit path. Acquisition blocks until the
// engine grants the lock or ctx is done; cancellation closes the pinned
// session, which releases the lock on the engine side.
//
// Engine failures propagate as *pgadapt.ExecutionError and are never
// swallowed.
func (a *Adapter) NextID(ctx context.Context, table, column string, floor int64) (_ int64, rerr error) {
	seq := a.SequenceName(table, column)
	if !sql.ValidIdentifier(seq) {
		return 0, fmt.Errorf("pgsql: invalid sequence name %q", seq)
	}
	next, err := a.nextval(ctx, a.conn, seq)
	if err != nil {
		return 0, err
	}
	if next > floor {
		return next, nil
	}
	sess, release, err := a.session(ctx)
	if err != nil {
		return 0, pgadapt.NewExecutionError(sqlAdvisoryLock, []any{a.lockKey}, err)
	}
	if release != nil {
		defer func() { rerr = errors.Join(rerr, release()) }()
	}
	if err := a.advisory(ctx, sess, sqlAdvisoryLock); err != nil {
		return 0, err
	}
	defer func() { rerr = errors.Join(rerr, a.unlock(sess)) }()
	next, err = a.nextval(ctx, sess, seq)
	if err != nil {
		return 0, err
	}
	if next > floor {
		return next, nil
	}
	if err := a.restart(ctx, sess, seq, floor+1); err != nil {
		return 0, err
	}
	return a.nextval(ctx, sess, seq)
}

// nextval fetches the next value of the sequence.
func (a *Adapter) nextval(ctx context.Context, conn dialect.ExecQuerier, seq string) (int64, error) {
	return queryInt64(ctx, conn, fmt.Sprintf("SELECT nextval('%s')", seq), nil)
}

// restart moves the sequence so its next value is start.
func (a *Adapter) restart(ctx context.Context, conn dialect.ExecQuerier, seq string, start int64) error {
	query := fmt.Sprintf("ALTER SEQUENCE %s RESTART WITH %d", seq, start)
	if err := conn.Exec(ctx, query, []any{}, nil); err != nil {
		return pgadapt.NewExecutionError(query, nil, err)
	}
	return nil
}

// advisory runs an advisory lock statement with the configured key.
func (a *Adapter) advisory(ctx context.Context, conn dialect.ExecQuerier, query string) error {
	args := []any{a.lockKey}
	if err := conn.Exec(ctx, query, args, nil); err != nil {
		return pgadapt.NewExecutionError(query, args, err)
	}
	return nil
}

// unlock releases the advisory lock with a fresh context, so cancellation
// of the caller's context cannot leave the lock held for the remaining
// lifetime of a pooled session.
func (a *Adapter) unlock(conn dialect.ExecQuerier) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return a.advisory(ctx, conn, sqlAdvisoryUnlock)
}
