package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnvFile(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SHELLY_WORKER_ID", "w1")

	cfg, err := Load(noEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store)
	assert.Equal(t, 8080, cfg.APIPort)
	assert.Equal(t, BatchModeLocal, cfg.BatchMode)
	assert.Equal(t, 3, cfg.BatchConcurrency)
	assert.Equal(t, "anthropic", cfg.DefaultProvider)
	assert.Equal(t, time.Minute, cfg.ScheduleTick)
	assert.Equal(t, "w1", cfg.WorkerID)
	assert.Equal(t, ":8080", Addr(cfg.APIPort))
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("SHELLY_STORE", "sqlite")
	t.Setenv("SHELLY_SQLITE_PATH", "/tmp/x.db")
	t.Setenv("SHELLY_BATCH_CONCURRENCY", "5")
	t.Setenv("SHELLY_PROVIDER_BASE_URLS", "openai:http://localhost:1234/v1")
	t.Setenv("SHELLY_SCHEDULE_TICK", "30s")

	cfg, err := Load(noEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.BatchConcurrency)
	assert.Equal(t, BaseURLs{"openai": "http://localhost:1234/v1"}, cfg.ProviderBaseURLs)
	assert.Equal(t, 30*time.Second, cfg.ScheduleTick)

	opts := cfg.StoreOptions()
	assert.Equal(t, "sqlite", opts.Driver)
	assert.Equal(t, "/tmp/x.db", opts.SQLitePath)
}

func TestBaseURLs_Decode(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  BaseURLs
	}{
		{"colon separator", "openai:http://localhost:1234/v1", BaseURLs{"openai": "http://localhost:1234/v1"}},
		{"equals separator", "openai=https://proxy.local/v1?key=a", BaseURLs{"openai": "https://proxy.local/v1?key=a"}},
		{
			"several providers",
			" openai=http://a:8080/v1 , google-vertex:https://b/v1beta/openai ,",
			BaseURLs{"openai": "http://a:8080/v1", "google-vertex": "https://b/v1beta/openai"},
		},
		{"empty", "", BaseURLs{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got BaseURLs
			require.NoError(t, got.Decode(tt.value))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("SHELLY_API_PORT=9090\nSHELLY_REDIS_URL=redis://cache:6379/1\n"), 0o600))
	// godotenv не перезаписывает уже заданные переменные; t.Setenv
	// вернёт исходные значения после теста.
	t.Setenv("SHELLY_API_PORT", "")
	t.Setenv("SHELLY_REDIS_URL", "")
	os.Unsetenv("SHELLY_API_PORT")
	os.Unsetenv("SHELLY_REDIS_URL")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.APIPort)
	assert.Equal(t, "redis://cache:6379/1", cfg.RedisURL)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unknown store", "SHELLY_STORE", "mongo"},
		{"bad port", "SHELLY_API_PORT", "70000"},
		{"zero concurrency", "SHELLY_BATCH_CONCURRENCY", "0"},
		{"not a number", "SHELLY_WORKER_PORT", "abc"},
		{"queue without broker", "SHELLY_BATCH_MODE", "queue"},
		{"base url without provider", "SHELLY_PROVIDER_BASE_URLS", "http://localhost:1234/v1"},
		{"relative base url", "SHELLY_PROVIDER_BASE_URLS", "openai=/v1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load(noEnvFile(t))
			assert.Error(t, err)
		})
	}
}
