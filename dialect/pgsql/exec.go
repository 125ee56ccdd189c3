package pgsql

import (
	"context"
	stdsql "database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/syssam/pgadapt"
	"github.com/syssam/pgadapt/dialect"
	"github.com/syssam/pgadapt/dialect/sql"
)

// ReturnMode determines what Exec returns on success.
type ReturnMode uint8

const (
	// ReturnRows yields the row iterator of the executed query.
	ReturnRows ReturnMode = iota
	// ReturnRowsAffected yields the number of rows touched.
	ReturnRowsAffected
	// ReturnLastInsertID yields the most recently generated identifier.
	ReturnLastInsertID
	// ReturnNone discards the result.
	ReturnNone
)

// String returns the mode name.
func (m ReturnMode) String() string {
	switch m {
	case ReturnRows:
		return "rows"
	case ReturnRowsAffected:
		return "rows_affected"
	case ReturnLastInsertID:
		return "last_insert_id"
	case ReturnNone:
		return "none"
	default:
		return fmt.Sprintf("ReturnMode(%d)", uint8(m))
	}
}

type execOptions struct {
	mode     ReturnMode
	swallow  bool
	sequence string
}

// ExecOption configures a single execution.
type ExecOption func(*execOptions)

// WithReturnMode sets what Exec returns on success. The default is
// ReturnRows.
func WithReturnMode(m ReturnMode) ExecOption {
	return func(o *execOptions) { o.mode = m }
}

// WithSequence names the sequence consulted by ReturnLastInsertID. Without
// it, the session's most recently assigned value is used.
func WithSequence(name string) ExecOption {
	return func(o *execOptions) { o.sequence = name }
}

// SwallowErrors makes execution failures return a nil result instead of an
// error. A nil result then means the operation did not complete, not that
// it returned an empty result. Programming errors, such as an invalid
// return mode, are surfaced regardless.
func SwallowErrors() ExecOption {
	return func(o *execOptions) { o.swallow = true }
}

// Exec executes a dialect-neutral query and dispatches the result by the
// requested return mode:
//
//   - ReturnRows: *sql.Rows for the caller to iterate and close.
//   - ReturnRowsAffected: int64 count of rows touched.
//   - ReturnLastInsertID: int64 identifier, read from the sequence named
//     with WithSequence or from the session's last assigned value.
//   - ReturnNone: nil.
//
// query is either a string or a *Statement obtained from Prepare. Boolean
// arguments bind as 0/1 integers and slice-valued arguments expand into
// consecutive placeholders before the text is rewritten.
//
// On engine failure Exec returns a *pgadapt.ExecutionError carrying the
// resolved text and arguments, or a nil result when SwallowErrors is set.
//
// For string queries with ReturnLastInsertID, the statement and the
// identifier fetch run on one pinned session. Prepared statements execute
// on whatever session the pool assigns, so their identifier fetch is only
// session-accurate when the adapter wraps a transaction or a single
// connection.
func (a *Adapter) Exec(ctx context.Context, query any, args []any, opts ...ExecOption) (any, error) {
	var o execOptions
	for _, opt := range opts {
		opt(&o)
	}
	v, err := a.exec(ctx, query, args, o)
	if err != nil && o.swallow && pgadapt.IsExecutionError(err) {
		return nil, nil
	}
	return v, err
}

func (a *Adapter) exec(ctx context.Context, query any, args []any, o execOptions) (any, error) {
	if o.mode > ReturnNone {
		return nil, fmt.Errorf("pgsql: unknown return mode %s: %w", o.mode, pgadapt.ErrInvalidReturnMode)
	}
	args = normalizeArgs(args)
	switch q := query.(type) {
	case string:
		text, xargs, err := expandArgs(q, args)
		if err != nil {
			return nil, err
		}
		return a.run(ctx, Rewrite(text), xargs, o)
	case *Statement:
		return a.runStmt(ctx, q, args, o)
	default:
		return nil, fmt.Errorf("pgsql: invalid query type %T. expect string or *pgsql.Statement", query)
	}
}

// run executes rewritten query text through the driver connection.
func (a *Adapter) run(ctx context.Context, text string, args []any, o execOptions) (any, error) {
	switch o.mode {
	case ReturnRows:
		rows := &sql.Rows{}
		if err := a.conn.Query(ctx, text, args, rows); err != nil {
			return nil, pgadapt.NewExecutionError(text, args, err)
		}
		return rows, nil
	case ReturnRowsAffected:
		var res stdsql.Result
		if err := a.conn.Exec(ctx, text, args, &res); err != nil {
			return nil, pgadapt.NewExecutionError(text, args, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, pgadapt.NewExecutionError(text, args, err)
		}
		return affected, nil
	case ReturnLastInsertID:
		return a.runLastID(ctx, text, args, o)
	default:
		if err := a.conn.Exec(ctx, text, args, nil); err != nil {
			return nil, pgadapt.NewExecutionError(text, args, err)
		}
		return nil, nil
	}
}

// runLastID executes text and reads the generated identifier on a single
// pinned session, so the fetch observes the statement's effect even over
// a connection pool.
func (a *Adapter) runLastID(ctx context.Context, text string, args []any, o execOptions) (_ any, rerr error) {
	sess, release, err := a.session(ctx)
	if err != nil {
		return nil, pgadapt.NewExecutionError(text, args, err)
	}
	if release != nil {
		defer func() { rerr = errors.Join(rerr, release()) }()
	}
	if err := sess.Exec(ctx, text, args, nil); err != nil {
		return nil, pgadapt.NewExecutionError(text, args, err)
	}
	return a.lastInsertID(ctx, sess, o.sequence)
}

// runStmt executes a prepared statement.
func (a *Adapter) runStmt(ctx context.Context, s *Statement, args []any, o execOptions) (any, error) {
	switch o.mode {
	case ReturnRows:
		rows, err := s.stmt.QueryContext(ctx, args...)
		if err != nil {
			return nil, pgadapt.NewExecutionError(s.text, args, err)
		}
		return &sql.Rows{ColumnScanner: rows}, nil
	case ReturnRowsAffected:
		res, err := s.stmt.ExecContext(ctx, args...)
		if err != nil {
			return nil, pgadapt.NewExecutionError(s.text, args, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, pgadapt.NewExecutionError(s.text, args, err)
		}
		return affected, nil
	case ReturnLastInsertID:
		if _, err := s.stmt.ExecContext(ctx, args...); err != nil {
			return nil, pgadapt.NewExecutionError(s.text, args, err)
		}
		return a.lastInsertID(ctx, a.conn, o.sequence)
	default:
		if _, err := s.stmt.ExecContext(ctx, args...); err != nil {
			return nil, pgadapt.NewExecutionError(s.text, args, err)
		}
		return nil, nil
	}
}

// lastInsertID reads the most recently generated identifier, from the given
// sequence or from the session's last assigned value.
func (a *Adapter) lastInsertID(ctx context.Context, conn dialect.ExecQuerier, sequence string) (int64, error) {
	query := "SELECT lastval()"
	if sequence != "" {
		if !sql.ValidIdentifier(sequence) {
			return 0, fmt.Errorf("pgsql: invalid sequence name %q", sequence)
		}
		query = fmt.Sprintf("SELECT currval('%s')", sequence)
	}
	return queryInt64(ctx, conn, query, nil)
}

// QueryRange executes query with a row window appended, limiting the result
// to limit rows starting at offset. Offset and limit are coerced to
// integers, so numeric-looking strings cannot smuggle SQL text into the
// window clause. Negative values are treated as zero.
func (a *Adapter) QueryRange(ctx context.Context, query string, offset, limit any, args []any, opts ...ExecOption) (any, error) {
	off, lim := coerceInt64(offset), coerceInt64(limit)
	if off < 0 {
		off = 0
	}
	if lim < 0 {
		lim = 0
	}
	return a.Exec(ctx, fmt.Sprintf("%s LIMIT %d OFFSET %d", query, lim, off), args, opts...)
}

// QueryTemporary materializes the result of query into a fresh temporary
// table and returns the generated table name. The table lives for the rest
// of the session; dropping it is up to the caller. A failure to materialize
// reports like any other execution failure, yielding an empty name when
// SwallowErrors is set.
func (a *Adapter) QueryTemporary(ctx context.Context, query string, args []any, opts ...ExecOption) (string, error) {
	var o execOptions
	for _, opt := range opts {
		opt(&o)
	}
	name := a.tempTableName()
	text := fmt.Sprintf("CREATE TEMPORARY TABLE %s AS (%s)", name, query)
	if _, err := a.exec(ctx, text, args, execOptions{mode: ReturnNone}); err != nil {
		if o.swallow && pgadapt.IsExecutionError(err) {
			return "", nil
		}
		return "", err
	}
	return name, nil
}

// tempTableName generates a table name unique within the connection's
// lifetime.
func (a *Adapter) tempTableName() string {
	return a.tmpPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// normalizeArgs maps boolean arguments to their 0/1 integer form before
// binding. Other values pass through unchanged.
func normalizeArgs(args []any) []any {
	if len(args) == 0 {
		return []any{}
	}
	out := make([]any, len(args))
	for i, arg := range args {
		out[i] = normalizeValue(arg)
	}
	return out
}

func normalizeValue(v any) any {
	if b, ok := v.(bool); ok {
		if b {
			return int64(1)
		}
		return int64(0)
	}
	return v
}

var placeholderRe = regexp.MustCompile(`\$(\d+)`)

// expandArgs widens slice-valued arguments into runs of consecutive
// placeholders and renumbers the remaining placeholders accordingly.
// Byte slices and driver.Valuer implementations bind as single values.
func expandArgs(query string, args []any) (string, []any, error) {
	expand := false
	for _, arg := range args {
		if _, ok := sliceValues(arg); ok {
			expand = true
			break
		}
	}
	if !expand {
		return query, args, nil
	}
	var (
		flat   = make([]any, 0, len(args))
		starts = make([]int, len(args))
		widths = make([]int, len(args))
		next   = 1
	)
	for i, arg := range args {
		vs, ok := sliceValues(arg)
		if !ok {
			starts[i], widths[i] = next, 1
			flat = append(flat, arg)
			next++
			continue
		}
		if len(vs) == 0 {
			return "", nil, fmt.Errorf("pgsql: empty slice bound to placeholder $%d", i+1)
		}
		starts[i], widths[i] = next, len(vs)
		for _, v := range vs {
			flat = append(flat, normalizeValue(v))
		}
		next += len(vs)
	}
	var rangeErr error
	text := placeholderRe.ReplaceAllStringFunc(query, func(m string) string {
		idx, err := strconv.Atoi(m[1:])
		if err != nil || idx < 1 || idx > len(args) {
			rangeErr = fmt.Errorf("pgsql: placeholder %s out of range for %d arguments", m, len(args))
			return m
		}
		i := idx - 1
		if widths[i] == 1 {
			return "$" + strconv.Itoa(starts[i])
		}
		parts := make([]string, widths[i])
		for k := range parts {
			parts[k] = "$" + strconv.Itoa(starts[i]+k)
		}
		return strings.Join(parts, ", ")
	})
	if rangeErr != nil {
		return "", nil, rangeErr
	}
	return text, flat, nil
}

// sliceValues returns the elements of arg when it is a slice that should
// expand into multiple placeholders.
func sliceValues(arg any) ([]any, bool) {
	switch vs := arg.(type) {
	case nil:
		return nil, false
	case []byte:
		return nil, false
	case []any:
		return vs, true
	}
	if _, ok := arg.(driver.Valuer); ok {
		return nil, false
	}
	rv := reflect.ValueOf(arg)
	if rv.Kind() != reflect.Slice {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// coerceInt64 converts v to an integer for inlining into a window clause.
// Numeric types truncate, strings parse up to the first non-digit
// character, anything else yields zero.
func coerceInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case uint:
		return int64(n)
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		return int64(n)
	case float32:
		return int64(n)
	case float64:
		return int64(n)
	case string:
		return parseLeadingInt(n)
	default:
		return 0
	}
}

// parseLeadingInt parses the leading integer of s, ignoring whatever
// follows it.
func parseLeadingInt(s string) int64 {
	s = strings.TrimSpace(s)
	i := 0
	if i < len(s) && (s[i] == '-' || s[i] == '+') {
		i++
	}
	j := i
	for j < len(s) && s[j] >= '0' && s[j] <= '9' {
		j++
	}
	if j == i {
		return 0
	}
	n, err := strconv.ParseInt(s[:j], 10, 64)
	if err != nil {
		return 0
	}
	return n
}
