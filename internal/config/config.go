// Package config reads process settings from the environment and an optional .env file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	DefaultAppName    = "AI Wrapper API"
	DefaultPort       = 8000
	DefaultModel      = "claude-3-5-haiku-latest"
	DefaultCacheSize  = 50
	DefaultRateLimit  = 60
	DefaultDSN        = ":memory:"
	DefaultInboundRPS = 5.0
	DefaultBurst      = 10
)

var DefaultCORSOrigins = []string{"http://localhost:3000", "http://127.0.0.1:3000"}

type Config struct {
	AppName   string
	Port      int
	ModelChat string
	// APIKey is empty when no credential is configured; the service then runs on fallbacks.
	APIKey                    string
	ReactionCacheSize         int
	RequestRateLimitPerMinute int
	CORSOrigins               []string
	DSN                       string
	Log                       LogConfig
	StatSeed                  *uint64
	InboundRPS                float64
	InboundBurst              int
	OTLPEndpoint              string
}

type LogConfig struct {
	Level  string // debug | info | warn | error
	Format string // text | json
}

// Load applies .env (if present) and then reads the environment. Malformed
// numeric values are errors; unset values take defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from an arbitrary variable source.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}
	cfg := &Config{
		AppName:      orDefault(get("APP_NAME"), DefaultAppName),
		ModelChat:    orDefault(get("MODEL_CHAT"), DefaultModel),
		APIKey:       get("ANTHROPIC_API_KEY"),
		DSN:          orDefault(get("DB_DSN"), DefaultDSN),
		CORSOrigins:  splitList(get("CORS_ORIGINS")),
		OTLPEndpoint: get("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Log: LogConfig{
			Level:  strings.ToLower(orDefault(get("LOG_LEVEL"), "info")),
			Format: strings.ToLower(orDefault(get("LOG_FORMAT"), "text")),
		},
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = append([]string(nil), DefaultCORSOrigins...)
	}

	var err error
	if cfg.Port, err = intVar(get, "PORT", DefaultPort); err != nil {
		return nil, err
	}
	if cfg.ReactionCacheSize, err = intVar(get, "REACTION_CACHE_SIZE", DefaultCacheSize); err != nil {
		return nil, err
	}
	if cfg.RequestRateLimitPerMinute, err = intVar(get, "REQUEST_RATE_LIMIT_PER_MINUTE", DefaultRateLimit); err != nil {
		return nil, err
	}
	if cfg.InboundBurst, err = intVar(get, "INBOUND_BURST", DefaultBurst); err != nil {
		return nil, err
	}
	cfg.InboundRPS = DefaultInboundRPS
	if v := get("INBOUND_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return nil, fmt.Errorf("config: INBOUND_RPS must be a positive number, got %q", v)
		}
		cfg.InboundRPS = f
	}
	if v := get("STAT_SEED"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("config: STAT_SEED must be an unsigned integer, got %q", v)
		}
		cfg.StatSeed = &seed
	}
	return cfg, nil
}

// SlogLevel maps Log.Level to a slog level; unknown values mean info.
func (l LogConfig) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func intVar(get func(string) string, key string, def int) (int, error) {
	v := get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("config: %s must be a positive integer, got %q", key, v)
	}
	return n, nil
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
