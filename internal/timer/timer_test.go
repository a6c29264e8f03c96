package timer_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cde-sql/internal/timer"
)

func TestRegistry_StartEnd(t *testing.T) {
	t.Run("elapsed_after_end", func(t *testing.T) {
		r := timer.NewRegistry(nil)
		r.Start("upload")
		time.Sleep(5 * time.Millisecond)
		elapsed := r.End("upload")
		assert.Greater(t, elapsed, time.Duration(0))
		assert.Equal(t, elapsed, r.Elapsed("upload"))
	})

	t.Run("restart_resets", func(t *testing.T) {
		r := timer.NewRegistry(nil)
		r.Start("poll")
		time.Sleep(5 * time.Millisecond)
		r.End("poll")
		first := r.Elapsed("poll")
		require.Greater(t, first, time.Duration(0))

		r.Start("poll")
		assert.Equal(t, time.Duration(0), r.Elapsed("poll"))
	})

	t.Run("end_without_start_is_noop", func(t *testing.T) {
		r := timer.NewRegistry(nil)
		assert.Equal(t, time.Duration(0), r.End("never-started"))
	})

	t.Run("names_in_first_start_order", func(t *testing.T) {
		r := timer.NewRegistry(nil)
		r.Start("b")
		r.Start("a")
		r.Start("b") // restart must not reorder
		assert.Equal(t, []string{"b", "a"}, r.Names())
	})

	t.Run("unknown_elapsed_is_zero", func(t *testing.T) {
		r := timer.NewRegistry(nil)
		assert.Equal(t, time.Duration(0), r.Elapsed("nope"))
	})
}
