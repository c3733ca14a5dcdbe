package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable LoadFromEnv reads.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"LATTICE_DB_DRIVER", "LATTICE_DB_DSN", "LOG_LEVEL",
		"STATS_PROVIDER", "STATS_QUERY_TIMEOUT", "STATS_QUERY_RPS", "STATS_QUERY_BURST",
		"PROFILE_PASS_SIZE", "PROFILE_MIN_SURPRISE", "MATERIALIZE_TABLE_PREFIX",
		"LISTEN_ADDR", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "CORS_ALLOWED_ORIGINS",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "duckdb", cfg.DBDriver)
	assert.Empty(t, cfg.DBDSN)
	assert.Equal(t, "cached-sql", cfg.StatsProvider)
	assert.Equal(t, 30*time.Second, cfg.StatsQueryTimeout)
	assert.Zero(t, cfg.StatsQueryRPS)
	assert.Zero(t, cfg.StatsQueryBurst)
	assert.Equal(t, 200, cfg.ProfilePassSize)
	assert.InDelta(t, 0.3, cfg.ProfileMinimumSurprise, 1e-9)
	assert.Equal(t, "m", cfg.TablePrefix)
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.InDelta(t, 100.0, cfg.RateLimitRPS, 1e-9)
	assert.Equal(t, 200, cfg.RateLimitBurst)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.Contains(t, cfg.Warnings, "LATTICE_DB_DSN not set, using an in-memory database")
}

func TestLoadFromEnv_AllVarsSet(t *testing.T) {
	clearEnv(t)
	t.Setenv("LATTICE_DB_DRIVER", "SQLite3")
	t.Setenv("LATTICE_DB_DSN", "/tmp/sales.db")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("STATS_PROVIDER", "cached-profile")
	t.Setenv("STATS_QUERY_TIMEOUT", "5s")
	t.Setenv("STATS_QUERY_RPS", "20")
	t.Setenv("STATS_QUERY_BURST", "4")
	t.Setenv("PROFILE_PASS_SIZE", "50")
	t.Setenv("PROFILE_MIN_SURPRISE", "0.5")
	t.Setenv("MATERIALIZE_TABLE_PREFIX", "tile")
	t.Setenv("LISTEN_ADDR", "127.0.0.1:9000")
	t.Setenv("RATE_LIMIT_RPS", "5")
	t.Setenv("RATE_LIMIT_BURST", "10")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "sqlite3", cfg.DBDriver)
	assert.Equal(t, "/tmp/sales.db", cfg.DBDSN)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	assert.Equal(t, "cached-profile", cfg.StatsProvider)
	assert.Equal(t, 5*time.Second, cfg.StatsQueryTimeout)
	assert.InDelta(t, 20.0, cfg.StatsQueryRPS, 1e-9)
	assert.Equal(t, 4, cfg.StatsQueryBurst)
	assert.Equal(t, 50, cfg.ProfilePassSize)
	assert.InDelta(t, 0.5, cfg.ProfileMinimumSurprise, 1e-9)
	assert.Equal(t, "tile", cfg.TablePrefix)
	assert.Equal(t, "127.0.0.1:9000", cfg.ListenAddr)
	assert.InDelta(t, 5.0, cfg.RateLimitRPS, 1e-9)
	assert.Equal(t, 10, cfg.RateLimitBurst)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	assert.Empty(t, cfg.Warnings)
}

func TestLoadFromEnv_RateWithoutBurst(t *testing.T) {
	clearEnv(t)
	t.Setenv("STATS_QUERY_RPS", "2.5")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.StatsQueryBurst)
}

func TestLoadFromEnv_MalformedValuesWarn(t *testing.T) {
	clearEnv(t)
	t.Setenv("STATS_QUERY_TIMEOUT", "soon")
	t.Setenv("PROFILE_PASS_SIZE", "many")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.StatsQueryTimeout)
	assert.Equal(t, 200, cfg.ProfilePassSize)
	assert.Len(t, cfg.Warnings, 3)
}

func TestLoadFromEnv_InvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"STATS_QUERY_TIMEOUT", "-1s"},
		{"STATS_QUERY_RPS", "-3"},
		{"PROFILE_PASS_SIZE", "-1"},
		{"PROFILE_MIN_SURPRISE", "1.5"},
		{"RATE_LIMIT_BURST", "-2"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)
			_, err := LoadFromEnv()
			require.Error(t, err)
		})
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		cfg := &Config{LogLevel: tt.in}
		assert.Equal(t, tt.want, cfg.SlogLevel(), tt.in)
	}
}

func TestLoadDotEnv_FileNotFound(t *testing.T) {
	err := LoadDotEnv("/nonexistent/.env")
	if err != nil {
		t.Errorf("expected no error for missing .env, got: %v", err)
	}
}

func TestLoadDotEnv_ParsesKeyValue(t *testing.T) {
	tmpDir := t.TempDir()
	envFile := filepath.Join(tmpDir, ".env")

	err := os.WriteFile(envFile, []byte("TEST_KEY=test_value\n"), 0644)
	if err != nil {
		t.Fatalf("write .env: %v", err)
	}

	if err := LoadDotEnv(envFile); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}

	if val := os.Getenv("TEST_KEY"); val != "test_value" {
		t.Errorf("TEST_KEY = %q, want %q", val, "test_value")
	}
	_ = os.Unsetenv("TEST_KEY")
}

func TestLoadDotEnv_SkipsComments(t *testing.T) {
	tmpDir := t.TempDir()
	envFile := filepath.Join(tmpDir, ".env")

	err := os.WriteFile(envFile, []byte("# comment\nTEST_COMMENT_KEY=value\n"), 0644)
	if err != nil {
		t.Fatalf("write .env: %v", err)
	}

	if err := LoadDotEnv(envFile); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}

	if val := os.Getenv("TEST_COMMENT_KEY"); val != "value" {
		t.Errorf("TEST_COMMENT_KEY = %q, want %q", val, "value")
	}
	_ = os.Unsetenv("TEST_COMMENT_KEY")
}

func TestLoadDotEnv_EnvVarPrecedence(t *testing.T) {
	t.Setenv("TEST_PRECEDENCE_KEY", "from_env")

	tmpDir := t.TempDir()
	envFile := filepath.Join(tmpDir, ".env")

	err := os.WriteFile(envFile, []byte("TEST_PRECEDENCE_KEY=from_file\n"), 0644)
	if err != nil {
		t.Fatalf("write .env: %v", err)
	}

	if err := LoadDotEnv(envFile); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}

	if val := os.Getenv("TEST_PRECEDENCE_KEY"); val != "from_env" {
		t.Errorf("TEST_PRECEDENCE_KEY = %q, want %q (env precedence)", val, "from_env")
	}
}

func TestLoadDotEnv_StripsQuotes(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("TEST_QUOTED_KEY=\"main.fact\"\nnot a pair\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("TEST_QUOTED_KEY") })

	require.NoError(t, LoadDotEnv(envFile))
	assert.Equal(t, "main.fact", os.Getenv("TEST_QUOTED_KEY"))
}
