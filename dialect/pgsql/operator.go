package pgsql

import (
	"strings"
)

// newOperatorTable builds the translation table for abstract comparison
// operators. LIKE maps to ILIKE, preserving the case-insensitive matching
// semantics the upper layer assumes, and the REGEXP family maps to the
// native regex operators.
func newOperatorTable() map[string]string {
	return map[string]string{
		"LIKE":              "ILIKE",
		"NOT LIKE":          "NOT ILIKE",
		"REGEXP":            "~*",
		"NOT REGEXP":        "!~*",
		"REGEXP BINARY":     "~",
		"NOT REGEXP BINARY": "!~",
	}
}

// MapOperator translates an abstract comparison operator into its
// PostgreSQL form. The boolean result reports whether a translation
// exists; callers keep the operator they already have when it does not.
// Lookup is case-insensitive and tolerant of extra whitespace.
func (a *Adapter) MapOperator(op string) (string, bool) {
	key := strings.Join(strings.Fields(strings.ToUpper(op)), " ")
	native, ok := a.operators[key]
	return native, ok
}
