package session

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// bindingTimeLayout is the quoted literal form for date/time bindings.
const bindingTimeLayout = "2006-01-02 15:04:05.000"

// coerceBinding renders one binding value as SQL text the way the remote
// Spark driver can load it: numeric types become floating-point text,
// date/time values become a quoted timestamp literal with millisecond
// precision, everything else is quoted as-is. Substitution is plain text
// formatting, so callers must not pass untrusted input as SQL.
func coerceBinding(value any) string {
	switch v := value.(type) {
	case time.Time:
		return "'" + v.Format(bindingTimeLayout) + "'"
	case float64:
		return formatNumber(v)
	case float32:
		return formatNumber(float64(v))
	case int:
		return formatNumber(float64(v))
	case int8:
		return formatNumber(float64(v))
	case int16:
		return formatNumber(float64(v))
	case int32:
		return formatNumber(float64(v))
	case int64:
		return formatNumber(float64(v))
	case uint:
		return formatNumber(float64(v))
	case uint8:
		return formatNumber(float64(v))
	case uint16:
		return formatNumber(float64(v))
	case uint32:
		return formatNumber(float64(v))
	case uint64:
		return formatNumber(float64(v))
	default:
		return "'" + fmt.Sprintf("%v", v) + "'"
	}
}

// formatNumber renders a number as floating-point text, keeping an explicit
// decimal for integral values (3 renders as "3.0", not "3").
func formatNumber(f float64) string {
	if !math.IsInf(f, 0) && !math.IsNaN(f) && math.Trunc(f) == f {
		return strconv.FormatFloat(f, 'f', 1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// substituteBindings applies coerced binding values to the SQL text via
// printf-style placeholders.
func substituteBindings(sql string, bindings []any) string {
	if len(bindings) == 0 {
		return sql
	}
	args := make([]any, len(bindings))
	for i, b := range bindings {
		args[i] = coerceBinding(b)
	}
	return fmt.Sprintf(sql, args...)
}
