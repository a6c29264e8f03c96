package output_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cde-sql/internal/output"
)

func TestParseTable(t *testing.T) {
	t.Run("typed_columns_from_first_row", func(t *testing.T) {
		lines := output.SplitLines(
			"+---+-----+---+\n" +
				"|  A|    B|  C|\n" +
				"+---+-----+---+\n" +
				"|  1| true|  x|\n" +
				"|  2|false|  y|\n" +
				"+---+-----+---+\n")

		schema, rows, err := output.ParseTable(lines)
		require.NoError(t, err)

		require.Len(t, schema, 3)
		assert.Equal(t, output.Column{Name: "A", Type: output.TypeNumber}, schema[0])
		assert.Equal(t, output.Column{Name: "B", Type: output.TypeBoolean}, schema[1])
		assert.Equal(t, output.Column{Name: "C", Type: output.TypeString}, schema[2])

		require.Len(t, rows, 2)
		assert.Equal(t, output.Row{1.0, true, "x"}, rows[0])
		assert.Equal(t, output.Row{2.0, false, "y"}, rows[1])
	})

	t.Run("no_separator_is_empty_result", func(t *testing.T) {
		lines := output.SplitLines("some spark banner\nno table here\n")
		schema, rows, err := output.ParseTable(lines)
		require.NoError(t, err)
		assert.Empty(t, schema)
		assert.Empty(t, rows)
	})

	t.Run("header_without_rows_keeps_string_types", func(t *testing.T) {
		lines := output.SplitLines(
			"+----+-----+\n" +
				"|name|count|\n" +
				"+----+-----+\n" +
				"+----+-----+\n")

		schema, rows, err := output.ParseTable(lines)
		require.NoError(t, err)
		require.Len(t, schema, 2)
		for _, col := range schema {
			assert.Equal(t, output.TypeString, col.Type)
		}
		assert.Empty(t, rows)
	})

	t.Run("noise_before_table_is_skipped", func(t *testing.T) {
		lines := output.SplitLines(
			"Setting default log level to WARN\n" +
				"+---+\n" +
				"| id|\n" +
				"+---+\n" +
				"|  7|\n" +
				"+---+\n" +
				"trailing driver output\n")

		schema, rows, err := output.ParseTable(lines)
		require.NoError(t, err)
		require.Len(t, schema, 1)
		assert.Equal(t, "id", schema[0].Name)
		require.Len(t, rows, 1)
		assert.Equal(t, output.Row{7.0}, rows[0])
	})

	t.Run("separator_on_last_line_is_empty_result", func(t *testing.T) {
		lines := output.SplitLines("driver output\n+---+")
		schema, rows, err := output.ParseTable(lines)
		require.NoError(t, err)
		assert.Empty(t, schema)
		assert.Empty(t, rows)
	})

	t.Run("decimal_and_signed_values_stay_text", func(t *testing.T) {
		lines := output.SplitLines(
			"+----+----+\n" +
				"|   a|   b|\n" +
				"+----+----+\n" +
				"|3.14|  -2|\n" +
				"+----+----+\n")

		schema, rows, err := output.ParseTable(lines)
		require.NoError(t, err)
		assert.Equal(t, output.TypeString, schema[0].Type)
		assert.Equal(t, output.TypeString, schema[1].Type)
		assert.Equal(t, output.Row{"3.14", "-2"}, rows[0])
	})

	t.Run("later_row_conversion_failure_is_fatal", func(t *testing.T) {
		lines := output.SplitLines(
			"+---+\n" +
				"|  n|\n" +
				"+---+\n" +
				"|  1|\n" +
				"|oops|\n" +
				"+---+\n")

		_, _, err := output.ParseTable(lines)
		require.Error(t, err)
		var convErr *output.ConversionError
		require.True(t, errors.As(err, &convErr))
		assert.Equal(t, "n", convErr.Column)
		assert.Equal(t, 2, convErr.Row)
		assert.Equal(t, "oops", convErr.Value)
	})

	t.Run("ragged_first_row_skips_inference", func(t *testing.T) {
		lines := output.SplitLines(
			"+---+---+\n" +
				"|  a|  b|\n" +
				"+---+---+\n" +
				"|  1|\n" +
				"|  2|  3|\n" +
				"+---+---+\n")

		schema, rows, err := output.ParseTable(lines)
		require.NoError(t, err)
		assert.Equal(t, output.TypeString, schema[0].Type)
		assert.Equal(t, output.TypeString, schema[1].Type)
		require.Len(t, rows, 2)
		assert.Equal(t, output.Row{"1"}, rows[0])
		assert.Equal(t, output.Row{"2", "3"}, rows[1])
	})
}

func TestInferTypes(t *testing.T) {
	t.Run("mixed_case_boolean_tokens", func(t *testing.T) {
		schema := output.Schema{{Name: "flag", Type: output.TypeString}}
		schema, rows, err := output.InferTypes(schema, [][]string{{"True"}, {"FALSE"}})
		require.NoError(t, err)
		assert.Equal(t, output.TypeBoolean, schema[0].Type)
		assert.Equal(t, output.Row{true}, rows[0])
		assert.Equal(t, output.Row{false}, rows[1])
	})

	t.Run("non_token_in_boolean_column_converts_to_false", func(t *testing.T) {
		schema := output.Schema{{Name: "flag", Type: output.TypeString}}
		_, rows, err := output.InferTypes(schema, [][]string{{"true"}, {"yes"}})
		require.NoError(t, err)
		assert.Equal(t, output.Row{false}, rows[1])
	})
}
