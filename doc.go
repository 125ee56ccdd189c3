// Package pgadapt provides the shared contract of a PostgreSQL adaptation
// layer: configuration, error kinds and engine failure classification.
//
// The layer lets callers written against a generic SQL surface run
// unchanged on PostgreSQL. The dialect/pgsql package does the actual
// work of rewriting and executing queries; this package defines what
// the pieces agree on.
//
// # Errors
//
// Statement failures are reported as *ExecutionError values carrying the
// statement text and its bound arguments:
//
//	if _, err := db.Exec(ctx, query, args); err != nil {
//	    var ee *pgadapt.ExecutionError
//	    if errors.As(err, &ee) {
//	        log.Printf("failed query: %s", ee.Query)
//	    }
//	}
//
// Constraint violations can be classified without importing any driver:
//
//	if pgadapt.IsUniqueConstraintError(err) {
//	    return ErrAlreadyExists
//	}
//
// # Configuration
//
// Config carries the layer tunables and can be loaded from YAML:
//
//	cfg, err := pgadapt.LoadConfig("pgadapt.yml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	db, err := pgsql.Open(dsn, pgsql.WithConfig(cfg))
//
// A configuration file looks like:
//
//	table_prefix: app_
//	temp_table_prefix: tmp_
//	advisory_lock_key: 779530
//	slow_query_threshold: 250ms
//	debug: false
package pgadapt
