package output_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cde-sql/internal/output"
)

func TestParseEvents(t *testing.T) {
	t.Run("keeps_timestamped_records", func(t *testing.T) {
		lines := output.SplitLines(
			`{"Event":"SparkListenerApplicationStart","Timestamp":1660000000000}` + "\n" +
				"\n" +
				`{"Event":"SparkListenerBlockManagerAdded","time":1660000001000}` + "\n" +
				`{"Event":"NoClock"}` + "\n")

		events, err := output.ParseEvents(lines)
		require.NoError(t, err)
		require.Len(t, events, 2)

		assert.Equal(t, "SparkListenerApplicationStart", events[0].Name())
		ts, ok := events[0].Time()
		require.True(t, ok)
		assert.Equal(t, time.UnixMilli(1660000000000).UTC(), ts)

		assert.Equal(t, "SparkListenerBlockManagerAdded", events[1].Name())
		ts, ok = events[1].Time()
		require.True(t, ok)
		assert.Equal(t, time.UnixMilli(1660000001000).UTC(), ts)
	})

	t.Run("malformed_line_is_parse_error", func(t *testing.T) {
		lines := []string{`{"Event":"ok","time":1}`, `{not json`}
		_, err := output.ParseEvents(lines)
		require.Error(t, err)
		var parseErr *output.ParseError
		require.True(t, errors.As(err, &parseErr))
		assert.Equal(t, 2, parseErr.Line)
	})

	t.Run("record_without_timestamp_has_no_time", func(t *testing.T) {
		events, err := output.ParseEvents([]string{`{"Event":"x","Timestamp":5}`})
		require.NoError(t, err)
		require.Len(t, events, 1)
		_, ok := events[0].Time()
		assert.True(t, ok)

		_, ok = output.Event{"Event": "y"}.Time()
		assert.False(t, ok)
	})
}
