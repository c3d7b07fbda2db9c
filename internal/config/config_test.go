package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "weft.db", cfg.DBPath)
	assert.Equal(t, 10*time.Minute, cfg.MatchTTL)
	assert.Equal(t, 5*time.Second, cfg.QueryTimeout)
	assert.Equal(t, 1000, cfg.MaxSteps)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("WEFT_DB", ":memory:")
	t.Setenv("WEFT_MATCH_TTL", "30s")
	t.Setenv("WEFT_QUERY_TIMEOUT", "250ms")
	t.Setenv("WEFT_MAX_STEPS", "50")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":memory:", cfg.DBPath)
	assert.Equal(t, 30*time.Second, cfg.MatchTTL)
	assert.Equal(t, 250*time.Millisecond, cfg.QueryTimeout)
	assert.Equal(t, 50, cfg.MaxSteps)
}

func TestLoad_RejectsNonPositive(t *testing.T) {
	t.Setenv("WEFT_MAX_STEPS", "0")
	_, err := Load()
	require.Error(t, err)
}
