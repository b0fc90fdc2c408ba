package platform

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONFIG_FILE", "PORT", "APP_ENV", "LOG_PATH", "API_URL", "API_TIMEOUT",
		"REQUEST_INTERVAL", "TRANSPORT", "LLM_BASE_URL", "LLM_API_KEY", "LLM_MODEL",
		"STORAGE", "SQLITE_PATH", "SQL_HOST", "SQL_PORT", "SQL_USER", "SQL_PASSWORD",
		"SQL_DBNAME", "CORS_ORIGIN", "HOUSEKEEPING_CRON", "CONVERSATION_TTL", "SEND_INTERVAL",
	} {
		if v, ok := os.LookupEnv(key); ok {
			t.Setenv(key, v)
			os.Unsetenv(key)
		}
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, TransportHTTP, cfg.Transport)
	assert.Equal(t, StorageMemory, cfg.Storage)
	assert.Equal(t, time.Second, cfg.SendInterval)
	assert.Equal(t, 100*time.Millisecond, cfg.RequestInterval)
	assert.Equal(t, 24*time.Hour, cfg.ConversationTTL)
	assert.Equal(t, "@every 10m", cfg.HousekeepingCron)
	assert.False(t, cfg.Production())
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	clearConfigEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "finchat.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
port = "9000"
storage = "sqlite"
sqlite_path = "chat.db"
send_interval = "2s"
api_url = "http://backend:3000/api/v1"
`), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "9100")
	t.Setenv("CONVERSATION_TTL", "0")

	cfg, err := LoadConfig(filepath.Join(dir, "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "9100", cfg.Port)
	assert.Equal(t, StorageSQLite, cfg.Storage)
	assert.Equal(t, "chat.db", cfg.SQLitePath)
	assert.Equal(t, 2*time.Second, cfg.SendInterval)
	assert.Equal(t, "http://backend:3000/api/v1", cfg.APIURL)
	assert.Zero(t, cfg.ConversationTTL)
}

func TestLoadConfigEnvFile(t *testing.T) {
	clearConfigEnv(t)
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("STORAGE=sqlite\nSEND_INTERVAL=1500ms\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("STORAGE")
		os.Unsetenv("SEND_INTERVAL")
	})

	cfg, err := LoadConfig(envFile)
	require.NoError(t, err)
	assert.Equal(t, StorageSQLite, cfg.Storage)
	assert.Equal(t, 1500*time.Millisecond, cfg.SendInterval)
}

func TestLoadConfigRejects(t *testing.T) {
	cases := map[string]map[string]string{
		"http in production": {"APP_ENV": "production", "API_URL": "http://backend/api"},
		"bad transport":      {"TRANSPORT": "carrier-pigeon"},
		"bad storage":        {"STORAGE": "floppy"},
		"mysql without host": {"STORAGE": "mysql"},
		"bad duration":       {"SEND_INTERVAL": "soon"},
		"negative duration":  {"REQUEST_INTERVAL": "-1s"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			clearConfigEnv(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig("")
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigProductionHTTPS(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("API_URL", "https://backend.example.com/api/v1")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.True(t, cfg.Production())
}
