// Package dialect provides the database dialect abstraction used by
// the PostgreSQL adaptation layer.
//
// This package defines the interfaces and types for database-specific
// operations, decoupling the higher layers from any concrete driver or
// engine.
//
// # Dialect Constants
//
// Each dialect is identified by a constant string:
//
//	dialect.Postgres = "postgres"
//	dialect.MySQL    = "mysql"
//	dialect.SQLite   = "sqlite"
//
// Postgres is the primary dialect. MySQL and SQLite are recognized so
// that shared tooling, such as failure classification, can tell engines
// apart.
//
// # Driver Interface
//
// The package defines the Driver interface for database operations:
//
//	type Driver interface {
//	    Exec(ctx context.Context, query string, args, v any) error
//	    Query(ctx context.Context, query string, args, v any) error
//	    Tx(ctx context.Context) (Tx, error)
//	    Close() error
//	    Dialect() string
//	}
//
// # Transaction Interface
//
// The Tx interface wraps the Exec and Query operations in a transaction:
//
//	type Tx interface {
//	    ExecQuerier
//	    Commit() error
//	    Rollback() error
//	}
//
// # ExecQuerier Interface
//
// The ExecQuerier interface is implemented by both Driver and Tx:
//
//	type ExecQuerier interface {
//	    Exec(ctx context.Context, query string, args, v any) error
//	    Query(ctx context.Context, query string, args, v any) error
//	}
//
// # Usage
//
// Opening a database connection:
//
//	import (
//	    "github.com/syssam/pgadapt/dialect"
//	    "github.com/syssam/pgadapt/dialect/sql"
//	)
//
//	db, err := sql.Open(dialect.Postgres, "postgres://...")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
// # Sub-packages
//
// The dialect package contains two sub-packages:
//
//   - dialect/sql: generic driver, connection and transaction wrappers
//   - dialect/pgsql: the PostgreSQL adapter built on top of dialect/sql
package dialect
