package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCoerceBinding(t *testing.T) {
	t.Run("integral_numbers_keep_a_decimal", func(t *testing.T) {
		assert.Equal(t, "3.0", coerceBinding(3))
		assert.Equal(t, "3.0", coerceBinding(3.0))
		assert.Equal(t, "3.0", coerceBinding(int64(3)))
		assert.Equal(t, "0.0", coerceBinding(uint8(0)))
	})

	t.Run("fractional_numbers_unchanged", func(t *testing.T) {
		assert.Equal(t, "3.14", coerceBinding(3.14))
		assert.Equal(t, "-0.5", coerceBinding(-0.5))
	})

	t.Run("datetime_becomes_quoted_literal", func(t *testing.T) {
		ts := time.Date(2022, 8, 9, 13, 14, 15, 678_000_000, time.UTC)
		assert.Equal(t, "'2022-08-09 13:14:15.678'", coerceBinding(ts))
	})

	t.Run("text_is_quoted_verbatim", func(t *testing.T) {
		assert.Equal(t, "'hello'", coerceBinding("hello"))
		// A boolean-looking token gets no special treatment.
		assert.Equal(t, "'true'", coerceBinding("true"))
		assert.Equal(t, "'true'", coerceBinding(true))
	})
}

func TestSubstituteBindings(t *testing.T) {
	t.Run("positional_substitution", func(t *testing.T) {
		sql := substituteBindings("SELECT * FROM t WHERE a = %s AND b = %s", []any{3, "x"})
		assert.Equal(t, "SELECT * FROM t WHERE a = 3.0 AND b = 'x'", sql)
	})

	t.Run("no_bindings_leaves_sql_alone", func(t *testing.T) {
		sql := substituteBindings("SELECT '100%s' FROM t", nil)
		assert.Equal(t, "SELECT '100%s' FROM t", sql)
	})
}
