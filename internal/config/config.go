// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults applied by LoadFromEnv.
const (
	DefaultDriver          = "duckdb"
	DefaultStatsProvider   = "cached-sql"
	DefaultQueryTimeout    = 30 * time.Second
	DefaultPassSize        = 200
	DefaultMinimumSurprise = 0.3
	DefaultTablePrefix     = "m"
	DefaultListenAddr      = ":8080"
	DefaultRateLimitRPS    = 100
	DefaultRateLimitBurst  = 200
)

// Config holds the database, statistics and materialization settings.
type Config struct {
	DBDriver string // database/sql driver: duckdb (default) or sqlite3
	DBDSN    string // data source name; empty opens an in-memory database
	LogLevel string // log level: debug, info, warn, error (default "info")

	// Statistics
	StatsProvider     string        // sql, profile, cached-sql (default), cached-profile
	StatsQueryTimeout time.Duration // bound on each statistics query (default 30s)
	StatsQueryRPS     float64       // statistics queries per second; 0 disables limiting
	StatsQueryBurst   int           // burst capacity (default 1 when RPS is set)

	// Profiler
	ProfilePassSize        int     // candidate groups per pass (default 200)
	ProfileMinimumSurprise float64 // retention threshold (default 0.3)

	// Materialization
	TablePrefix string // backing table name prefix (default "m")

	// HTTP service
	ListenAddr         string   // HTTP listen address (default ":8080")
	RateLimitRPS       float64  // sustained requests per second per client (default 100)
	RateLimitBurst     int      // burst capacity (default 200)
	CORSAllowedOrigins []string // allowed origins for CORS (default: ["*"])

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LoadFromEnv loads configuration from environment variables. Malformed
// numbers fall back to their defaults with a warning.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		DBDriver:      strings.ToLower(strings.TrimSpace(os.Getenv("LATTICE_DB_DRIVER"))),
		DBDSN:         os.Getenv("LATTICE_DB_DSN"),
		LogLevel:      os.Getenv("LOG_LEVEL"),
		StatsProvider: strings.ToLower(strings.TrimSpace(os.Getenv("STATS_PROVIDER"))),
		TablePrefix:   strings.TrimSpace(os.Getenv("MATERIALIZE_TABLE_PREFIX")),
		ListenAddr:    os.Getenv("LISTEN_ADDR"),
	}

	if v := os.Getenv("STATS_QUERY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.StatsQueryTimeout = d
		} else {
			cfg.warnf("STATS_QUERY_TIMEOUT=%q is not a duration, using %s", v, DefaultQueryTimeout)
		}
	}
	if v := os.Getenv("STATS_QUERY_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.StatsQueryRPS = f
		} else {
			cfg.warnf("STATS_QUERY_RPS=%q is not a number, rate limiting disabled", v)
		}
	}
	if v := os.Getenv("STATS_QUERY_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.StatsQueryBurst = n
		} else {
			cfg.warnf("STATS_QUERY_BURST=%q is not an integer", v)
		}
	}
	if v := os.Getenv("PROFILE_PASS_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ProfilePassSize = n
		} else {
			cfg.warnf("PROFILE_PASS_SIZE=%q is not an integer, using %d", v, DefaultPassSize)
		}
	}
	if v := os.Getenv("PROFILE_MIN_SURPRISE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.ProfileMinimumSurprise = f
		} else {
			cfg.warnf("PROFILE_MIN_SURPRISE=%q is not a number, using %g", v, DefaultMinimumSurprise)
		}
	}

	// HTTP service
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimitRPS = f
		} else {
			cfg.warnf("RATE_LIMIT_RPS=%q is not a number, using %d", v, DefaultRateLimitRPS)
		}
	}
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitBurst = n
		} else {
			cfg.warnf("RATE_LIMIT_BURST=%q is not an integer, using %d", v, DefaultRateLimitBurst)
		}
	}
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		origins := strings.Split(v, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		cfg.CORSAllowedOrigins = compactNonEmpty(origins)
	}

	// Defaults
	if cfg.DBDriver == "" {
		cfg.DBDriver = DefaultDriver
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.StatsProvider == "" {
		cfg.StatsProvider = DefaultStatsProvider
	}
	if cfg.StatsQueryTimeout == 0 {
		cfg.StatsQueryTimeout = DefaultQueryTimeout
	}
	if cfg.StatsQueryRPS > 0 && cfg.StatsQueryBurst == 0 {
		cfg.StatsQueryBurst = 1
	}
	if cfg.ProfilePassSize == 0 {
		cfg.ProfilePassSize = DefaultPassSize
	}
	if cfg.ProfileMinimumSurprise == 0 {
		cfg.ProfileMinimumSurprise = DefaultMinimumSurprise
	}
	if cfg.TablePrefix == "" {
		cfg.TablePrefix = DefaultTablePrefix
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	if cfg.RateLimitRPS == 0 {
		cfg.RateLimitRPS = DefaultRateLimitRPS
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = DefaultRateLimitBurst
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}
	if cfg.DBDSN == "" {
		cfg.Warnings = append(cfg.Warnings, "LATTICE_DB_DSN not set, using an in-memory database")
	}

	if cfg.StatsQueryTimeout < 0 {
		return nil, fmt.Errorf("STATS_QUERY_TIMEOUT must not be negative")
	}
	if cfg.StatsQueryRPS < 0 || cfg.StatsQueryBurst < 0 {
		return nil, fmt.Errorf("STATS_QUERY_RPS and STATS_QUERY_BURST must not be negative")
	}
	if cfg.ProfilePassSize < 0 {
		return nil, fmt.Errorf("PROFILE_PASS_SIZE must be positive")
	}
	if cfg.ProfileMinimumSurprise < 0 || cfg.ProfileMinimumSurprise > 1 {
		return nil, fmt.Errorf("PROFILE_MIN_SURPRISE must be between 0 and 1")
	}
	if cfg.RateLimitRPS < 0 || cfg.RateLimitBurst < 0 {
		return nil, fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must not be negative")
	}

	return cfg, nil
}

func compactNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (c *Config) warnf(format string, args ...any) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}

// LoadDotEnv reads a .env file and sets any variables not already in the environment.
// Lines must be in KEY=VALUE format. Comments (#) and blank lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = stripQuotes(strings.TrimSpace(value))
		// Environment wins over the file.
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes matching surrounding double or single quotes.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
