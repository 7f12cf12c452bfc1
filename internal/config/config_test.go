package config

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(nil))
	require.NoError(t, err)

	assert.Equal(t, DefaultAppName, cfg.AppName)
	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, DefaultModel, cfg.ModelChat)
	assert.Empty(t, cfg.APIKey)
	assert.Equal(t, 50, cfg.ReactionCacheSize)
	assert.Equal(t, 60, cfg.RequestRateLimitPerMinute)
	assert.Equal(t, DefaultCORSOrigins, cfg.CORSOrigins)
	assert.Equal(t, ":memory:", cfg.DSN)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Nil(t, cfg.StatSeed)
	assert.Equal(t, 5.0, cfg.InboundRPS)
	assert.Equal(t, 10, cfg.InboundBurst)
}

func TestOverrides(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(map[string]string{
		"PORT":                          "9090",
		"MODEL_CHAT":                    "claude-sonnet-4-5",
		"ANTHROPIC_API_KEY":             " sk-test ",
		"REACTION_CACHE_SIZE":           "5",
		"REQUEST_RATE_LIMIT_PER_MINUTE": "12",
		"CORS_ORIGINS":                  "https://a.example, ,https://b.example",
		"LOG_LEVEL":                     "DEBUG",
		"LOG_FORMAT":                    "json",
		"STAT_SEED":                     "42",
		"INBOUND_RPS":                   "0.5",
	}))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "claude-sonnet-4-5", cfg.ModelChat)
	assert.Equal(t, "sk-test", cfg.APIKey)
	assert.Equal(t, 5, cfg.ReactionCacheSize)
	assert.Equal(t, 12, cfg.RequestRateLimitPerMinute)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, slog.LevelDebug, cfg.Log.SlogLevel())
	assert.Equal(t, "json", cfg.Log.Format)
	require.NotNil(t, cfg.StatSeed)
	assert.Equal(t, uint64(42), *cfg.StatSeed)
	assert.Equal(t, 0.5, cfg.InboundRPS)
}

func TestInvalidNumbers(t *testing.T) {
	for _, kv := range [][2]string{
		{"PORT", "eighty"},
		{"REACTION_CACHE_SIZE", "0"},
		{"REQUEST_RATE_LIMIT_PER_MINUTE", "-3"},
		{"STAT_SEED", "-1"},
		{"INBOUND_RPS", "fast"},
		{"INBOUND_BURST", "1.5"},
	} {
		_, err := FromLookup(lookupFrom(map[string]string{kv[0]: kv[1]}))
		assert.Error(t, err, kv[0])
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("APP_NAME", "ideafit-test")
	t.Setenv("PORT", "8123")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "ideafit-test", cfg.AppName)
	assert.Equal(t, 8123, cfg.Port)
}

func TestSlogLevelUnknownIsInfo(t *testing.T) {
	assert.Equal(t, slog.LevelInfo, LogConfig{Level: "verbose"}.SlogLevel())
	assert.Equal(t, slog.LevelWarn, LogConfig{Level: "warn"}.SlogLevel())
}
