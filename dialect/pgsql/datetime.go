package pgsql

import (
	"fmt"
	"strings"
)

// TimestampKind declares how a temporal field is stored.
type TimestampKind uint8

const (
	// TimestampUnix marks integer seconds since the Unix epoch.
	TimestampUnix TimestampKind = iota
	// TimestampText marks ISO-8601 text.
	TimestampText
	// TimestampNative marks a native timestamp column.
	TimestampNative
)

// TimestampExpr returns the expression reading field as a native timestamp,
// branching on the declared storage representation.
func TimestampExpr(field string, kind TimestampKind) string {
	switch kind {
	case TimestampUnix:
		return fmt.Sprintf("TO_TIMESTAMP(%s)", field)
	case TimestampText:
		return fmt.Sprintf("%s::timestamp", field)
	default:
		return field
	}
}

// IntervalOp is the direction of a date arithmetic expression.
type IntervalOp uint8

const (
	// IntervalAdd adds the interval to the field.
	IntervalAdd IntervalOp = iota
	// IntervalSub subtracts the interval from the field.
	IntervalSub
)

// IntervalUnit is the granularity of a date arithmetic expression.
type IntervalUnit string

// Interval units accepted by DateArithExpr.
const (
	UnitSecond IntervalUnit = "SECOND"
	UnitMinute IntervalUnit = "MINUTE"
	UnitHour   IntervalUnit = "HOUR"
	UnitDay    IntervalUnit = "DAY"
	UnitWeek   IntervalUnit = "WEEK"
	UnitMonth  IntervalUnit = "MONTH"
	UnitYear   IntervalUnit = "YEAR"
)

// DateArithExpr returns the interval arithmetic expression applying count
// units to field in the given direction.
func DateArithExpr(field string, op IntervalOp, count int, unit IntervalUnit) string {
	sign := "+"
	if op == IntervalSub {
		sign = "-"
	}
	return fmt.Sprintf("(%s %s INTERVAL '%d %s')", field, sign, count, unit)
}

// formatTokens maps abstract format tokens to native TO_CHAR patterns.
var formatTokens = map[byte]string{
	'Y': "YYYY",
	'y': "YY",
	'M': "FMMonth",
	'b': "Mon",
	'm': "MM",
	'c': "FMMM",
	'd': "DD",
	'e': "FMDD",
	'j': "DDD",
	'H': "HH24",
	'h': "HH12",
	'I': "HH12",
	'i': "MI",
	's': "SS",
	'S': "SS",
	'p': "AM",
	'a': "Dy",
	'W': "FMDay",
	'w': "D",
	'u': "IW",
	'%': "%",
}

// DateFormatExpr wraps field in the native format-as-text call, translating
// the abstract %-prefixed format tokens into their TO_CHAR equivalents.
// Unrecognized tokens keep their character without the marker.
func DateFormatExpr(field, format string) string {
	var sb strings.Builder
	for i := 0; i < len(format); i++ {
		ch := format[i]
		if ch != '%' || i+1 >= len(format) {
			sb.WriteByte(ch)
			continue
		}
		i++
		if native, ok := formatTokens[format[i]]; ok {
			sb.WriteString(native)
		} else {
			sb.WriteByte(format[i])
		}
	}
	return fmt.Sprintf("TO_CHAR(%s, '%s')", field, escapeLiteral(sb.String()))
}

// DatePartExpr returns the expression extracting the named part from field.
// The boolean result reports whether the part has a native mapping, letting
// callers probe for support. DATE is the identity mapping and returns the
// field unchanged.
func DatePartExpr(field, part string) (string, bool) {
	switch strings.ToUpper(strings.TrimSpace(part)) {
	case "YEAR":
		return fmt.Sprintf("EXTRACT(YEAR FROM %s)", field), true
	case "MONTH":
		return fmt.Sprintf("EXTRACT(MONTH FROM %s)", field), true
	case "DAY":
		return fmt.Sprintf("EXTRACT(DAY FROM %s)", field), true
	case "HOUR":
		return fmt.Sprintf("EXTRACT(HOUR FROM %s)", field), true
	case "MINUTE":
		return fmt.Sprintf("EXTRACT(MINUTE FROM %s)", field), true
	case "SECOND":
		return fmt.Sprintf("EXTRACT(SECOND FROM %s)", field), true
	case "WEEK":
		return fmt.Sprintf("EXTRACT(WEEK FROM %s)", field), true
	case "DAYOFWEEK":
		return fmt.Sprintf("EXTRACT(DOW FROM %s)", field), true
	case "DAYOFYEAR":
		return fmt.Sprintf("EXTRACT(DOY FROM %s)", field), true
	case "DATE":
		return field, true
	default:
		return "", false
	}
}

// TimezoneExpr returns the expression interpreting field in the given
// timezone.
func TimezoneExpr(field, tz string) string {
	return fmt.Sprintf("%s AT TIME ZONE '%s'", field, escapeLiteral(tz))
}
