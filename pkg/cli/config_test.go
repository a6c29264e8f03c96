package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActiveProfile(t *testing.T) {
	cfg := &UserConfig{
		CurrentProfile: "dev",
		Profiles: map[string]Profile{
			"dev":  {APIURL: "https://dev.example.com/api/v1"},
			"prod": {APIURL: "https://prod.example.com/api/v1"},
		},
	}

	t.Run("uses_current_profile_by_default", func(t *testing.T) {
		p := cfg.ActiveProfile("")
		assert.Equal(t, "https://dev.example.com/api/v1", p.APIURL)
	})

	t.Run("override_wins", func(t *testing.T) {
		p := cfg.ActiveProfile("prod")
		assert.Equal(t, "https://prod.example.com/api/v1", p.APIURL)
	})

	t.Run("unknown_profile_is_empty", func(t *testing.T) {
		p := cfg.ActiveProfile("staging")
		assert.Equal(t, Profile{}, p)
	})
}
