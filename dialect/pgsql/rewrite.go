package pgsql

import (
	"regexp"
	"strings"
)

// likeOperandRe captures the left operand of a LIKE-family comparison: a
// possibly qualified identifier with an optional leading bound-parameter
// marker and optional call parentheses, followed by LIKE, NOT LIKE, ILIKE
// or NOT ILIKE in any casing. The operand must follow the start of the
// text, whitespace, "(" or ",". An operand already carrying a "::" cast
// is never preceded by one of those, which keeps the rewrite idempotent.
var likeOperandRe = regexp.MustCompile(
	`(?i)(^|[\s(,])(:?[a-zA-Z_][a-zA-Z0-9_]*(?:\.[a-zA-Z_][a-zA-Z0-9_]*)?(?:\(\))?)(\s+)((?:NOT\s+)?I?LIKE)([\s(])`,
)

// Rewrite translates dialect-neutral query text into PostgreSQL syntax.
// The left operand of every LIKE-family comparison is cast to text: ILIKE
// is not defined on bytea operands and column types are unknown at this
// layer, so the cast is applied unconditionally. The rewrite only runs on
// text containing WHERE (checked as a case-insensitive substring), so DDL
// such as CREATE TABLE ... (LIKE ...) passes through unchanged.
//
// Rewrite is a pure function and idempotent: applying it twice yields the
// same text as applying it once.
func Rewrite(query string) string {
	if !strings.Contains(strings.ToUpper(query), "WHERE") {
		return query
	}
	return likeOperandRe.ReplaceAllString(query, "${1}${2}::text${3}${4}${5}")
}
