package pgsql

import (
	"context"
	stdsql "database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"github.com/syssam/pgadapt"
	"github.com/syssam/pgadapt/dialect"
	"github.com/syssam/pgadapt/dialect/sql"
)

// Adapter translates dialect-neutral queries into PostgreSQL syntax and
// executes them over a driver connection. All state besides the connection
// itself is fixed at construction, so an Adapter is safe for concurrent use.
type Adapter struct {
	conn        dialect.ExecQuerier
	operators   map[string]string
	tablePrefix string
	tmpPrefix   string
	lockKey     int64

	slowThreshold time.Duration
	debug         bool
	stats         *sql.QueryStats

	mu       sync.Mutex
	stmts    map[string]*Statement
	drvClose func() error
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithConfig applies the non-zero fields of cfg to the adapter.
func WithConfig(cfg pgadapt.Config) Option {
	return func(a *Adapter) {
		if cfg.TablePrefix != "" {
			a.tablePrefix = cfg.TablePrefix
		}
		if cfg.TempTablePrefix != "" {
			a.tmpPrefix = cfg.TempTablePrefix
		}
		if cfg.AdvisoryLockKey != 0 {
			a.lockKey = cfg.AdvisoryLockKey
		}
		if cfg.SlowQueryThreshold > 0 {
			a.slowThreshold = time.Duration(cfg.SlowQueryThreshold)
		}
		if cfg.Debug {
			a.debug = true
		}
	}
}

// WithTablePrefix sets the prefix prepended to table names when deriving
// sequence names.
func WithTablePrefix(prefix string) Option {
	return func(a *Adapter) { a.tablePrefix = prefix }
}

// WithTempTablePrefix sets the prefix of generated temporary table names.
func WithTempTablePrefix(prefix string) Option {
	return func(a *Adapter) { a.tmpPrefix = prefix }
}

// WithAdvisoryLockKey sets the advisory lock key that serializes sequence
// repairs. All processes sharing a database must agree on it.
func WithAdvisoryLockKey(key int64) Option {
	return func(a *Adapter) { a.lockKey = key }
}

// New returns an Adapter over the given connection. The connection may be
// a *sql.Driver, a transaction, or any other dialect.ExecQuerier
// implementation, such as the statistics and debug wrappers in dialect/sql.
func New(conn dialect.ExecQuerier, opts ...Option) *Adapter {
	a := &Adapter{
		conn:      conn,
		operators: newOperatorTable(),
		tmpPrefix: "tmp_",
		lockKey:   pgadapt.DefaultAdvisoryLockKey,
		stmts:     make(map[string]*Statement),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Open opens a PostgreSQL connection pool and returns an Adapter over it.
// Closing the adapter closes the pool.
func Open(source string, opts ...Option) (*Adapter, error) {
	drv, err := sql.Open(dialect.Postgres, source)
	if err != nil {
		return nil, err
	}
	a := New(drv, opts...)
	a.drvClose = drv.Close
	a.observe(drv)
	return a, nil
}

// OpenDB wraps an existing database/sql pool. The caller keeps ownership
// of the pool; closing the adapter does not close it.
func OpenDB(db *stdsql.DB, opts ...Option) *Adapter {
	drv := sql.OpenDB(dialect.Postgres, db)
	a := New(drv, opts...)
	a.observe(drv)
	return a
}

// observe wraps the driver per the configured observability settings.
// Debug logging takes precedence over statistics collection when both
// are enabled.
func (a *Adapter) observe(drv *sql.Driver) {
	switch {
	case a.debug:
		a.conn = sql.NewDebugDriver(drv)
	case a.slowThreshold > 0:
		sdrv := sql.NewStatsDriver(drv,
			sql.WithSlowThreshold(a.slowThreshold),
			sql.WithSlowQueryLog(),
		)
		a.conn = sdrv
		a.stats = sdrv.QueryStats()
	}
}

// Dialect returns the dialect name of the adapter.
func (a *Adapter) Dialect() string {
	return dialect.Postgres
}

// QueryStats returns the collected query statistics, or nil when the
// adapter was constructed without a slow query threshold.
func (a *Adapter) QueryStats() *sql.QueryStats {
	return a.stats
}

// SequenceName returns the name of the sequence backing the given table
// and column, honoring the configured table prefix.
func (a *Adapter) SequenceName(table, column string) string {
	return fmt.Sprintf("%s%s_%s_seq", a.tablePrefix, table, column)
}

// CreateDatabase reports that database creation is not available over an
// established PostgreSQL connection.
func (a *Adapter) CreateDatabase(name string) error {
	return pgadapt.NewUnsupportedOperationError(fmt.Sprintf("create database %q", name))
}

// Close releases the cached prepared statements and, when the adapter was
// created with Open, the underlying connection pool.
func (a *Adapter) Close() error {
	a.mu.Lock()
	stmts := a.stmts
	a.stmts = make(map[string]*Statement)
	a.mu.Unlock()
	var err error
	for _, s := range stmts {
		err = errors.Join(err, s.stmt.Close())
	}
	if a.drvClose != nil {
		err = errors.Join(err, a.drvClose())
	}
	return err
}

// Statement is a prepared statement together with its resolved text.
type Statement struct {
	stmt *stdsql.Stmt
	text string
}

// Text returns the statement text as sent to the engine.
func (s *Statement) Text() string {
	return s.text
}

// Stmt returns the underlying prepared statement.
func (s *Statement) Stmt() *stdsql.Stmt {
	return s.stmt
}

// preparer is implemented by connections able to create prepared statements.
type preparer interface {
	Prepare(ctx context.Context, query string) (*stdsql.Stmt, error)
}

// Prepare runs the query text through the rewriter, prepares it, and caches
// the handle for reuse by later calls with the same text. The adapter owns
// the returned statement and closes it with Close.
func (a *Adapter) Prepare(ctx context.Context, query string) (*Statement, error) {
	text := Rewrite(query)
	a.mu.Lock()
	if s, ok := a.stmts[text]; ok {
		a.mu.Unlock()
		return s, nil
	}
	a.mu.Unlock()
	p, ok := a.conn.(preparer)
	if !ok {
		return nil, fmt.Errorf("pgsql: connection %T does not support prepared statements", a.conn)
	}
	stmt, err := p.Prepare(ctx, text)
	if err != nil {
		return nil, pgadapt.NewExecutionError(text, nil, err)
	}
	s := &Statement{stmt: stmt, text: text}
	a.mu.Lock()
	defer a.mu.Unlock()
	if cached, ok := a.stmts[text]; ok {
		// Lost the race to a concurrent Prepare with the same text.
		_ = stmt.Close()
		return cached, nil
	}
	a.stmts[text] = s
	return s, nil
}

// sessionAcquirer is implemented by connections that can pin a single
// database session.
type sessionAcquirer interface {
	Acquire(ctx context.Context) (sql.Conn, func() error, error)
}

// session returns a connection bound to a single database session when the
// underlying connection supports pinning, or the connection itself
// otherwise. Transactions are already session-scoped.
func (a *Adapter) session(ctx context.Context) (dialect.ExecQuerier, func() error, error) {
	if aq, ok := a.conn.(sessionAcquirer); ok {
		conn, release, err := aq.Acquire(ctx)
		if err != nil {
			return nil, nil, err
		}
		return conn, release, nil
	}
	return a.conn, nil, nil
}

// queryInt64 runs a single-value query and scans its result, wrapping any
// failure in an ExecutionError.
func queryInt64(ctx context.Context, conn dialect.ExecQuerier, query string, args []any) (int64, error) {
	if args == nil {
		args = []any{}
	}
	rows := &sql.Rows{}
	if err := conn.Query(ctx, query, args, rows); err != nil {
		return 0, pgadapt.NewExecutionError(query, args, err)
	}
	defer rows.Close()
	if !rows.Next() {
		err := rows.Err()
		if err == nil {
			err = stdsql.ErrNoRows
		}
		return 0, pgadapt.NewExecutionError(query, args, err)
	}
	var v int64
	if err := rows.Scan(&v); err != nil {
		return 0, pgadapt.NewExecutionError(query, args, err)
	}
	return v, nil
}

// escapeLiteral doubles single quotes so s can be embedded in a quoted
// SQL literal.
func escapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
