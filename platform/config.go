package platform

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config holds every runtime setting. Values come from an optional TOML file
// (CONFIG_FILE) and are overridden by the environment, .env included.
type Config struct {
	Port    string `toml:"port"`
	AppEnv  string `toml:"app_env"`
	LogPath string `toml:"log_path"`

	APIURL          string        `toml:"api_url"`
	APITimeout      time.Duration `toml:"api_timeout"`
	RequestInterval time.Duration `toml:"request_interval"`
	Transport       string        `toml:"transport"`

	LLMBaseURL string `toml:"llm_base_url"`
	LLMAPIKey  string `toml:"llm_api_key"`
	LLMModel   string `toml:"llm_model"`

	Storage     string `toml:"storage"`
	SQLitePath  string `toml:"sqlite_path"`
	SQLHost     string `toml:"sql_host"`
	SQLPort     string `toml:"sql_port"`
	SQLUser     string `toml:"sql_user"`
	SQLPassword string `toml:"sql_password"`
	SQLDBName   string `toml:"sql_dbname"`

	CORSOrigin       string        `toml:"cors_origin"`
	HousekeepingCron string        `toml:"housekeeping_cron"`
	ConversationTTL  time.Duration `toml:"conversation_ttl"`
	SendInterval     time.Duration `toml:"send_interval"`
}

const (
	TransportHTTP = "http"
	TransportLLM  = "llm"

	StorageMemory = "memory"
	StorageSQLite = "sqlite"
	StorageMySQL  = "mysql"
)

func DefaultConfig() *Config {
	return &Config{
		Port:             "8080",
		AppEnv:           "development",
		LogPath:          "./log",
		APIURL:           "http://localhost:3000/api/v1",
		APITimeout:       10 * time.Second,
		RequestInterval:  100 * time.Millisecond,
		Transport:        TransportHTTP,
		LLMModel:         "gpt-4o-mini",
		Storage:          StorageMemory,
		SQLitePath:       "finchat.db",
		SQLPort:          "3306",
		CORSOrigin:       "http://localhost",
		HousekeepingCron: "@every 10m",
		ConversationTTL:  24 * time.Hour,
		SendInterval:     time.Second,
	}
}

func (c *Config) Production() bool {
	return c.AppEnv == "production"
}

// LoadConfig reads envFile (a missing file is fine), then CONFIG_FILE, then
// applies the environment on top.
func LoadConfig(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	cfg := DefaultConfig()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
	}

	strs := map[string]*string{
		"PORT":              &cfg.Port,
		"APP_ENV":           &cfg.AppEnv,
		"LOG_PATH":          &cfg.LogPath,
		"API_URL":           &cfg.APIURL,
		"TRANSPORT":         &cfg.Transport,
		"LLM_BASE_URL":      &cfg.LLMBaseURL,
		"LLM_API_KEY":       &cfg.LLMAPIKey,
		"LLM_MODEL":         &cfg.LLMModel,
		"STORAGE":           &cfg.Storage,
		"SQLITE_PATH":       &cfg.SQLitePath,
		"SQL_HOST":          &cfg.SQLHost,
		"SQL_PORT":          &cfg.SQLPort,
		"SQL_USER":          &cfg.SQLUser,
		"SQL_PASSWORD":      &cfg.SQLPassword,
		"SQL_DBNAME":        &cfg.SQLDBName,
		"CORS_ORIGIN":       &cfg.CORSOrigin,
		"HOUSEKEEPING_CRON": &cfg.HousekeepingCron,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	durations := map[string]*time.Duration{
		"API_TIMEOUT":      &cfg.APITimeout,
		"REQUEST_INTERVAL": &cfg.RequestInterval,
		"CONVERSATION_TTL": &cfg.ConversationTTL,
		"SEND_INTERVAL":    &cfg.SendInterval,
	}
	for key, dst := range durations {
		v, ok := os.LookupEnv(key)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = d
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Transport {
	case TransportHTTP:
		u, err := url.Parse(c.APIURL)
		if err != nil || u.Host == "" {
			return fmt.Errorf("API_URL %q is not a valid url", c.APIURL)
		}
		if c.Production() && u.Scheme != "https" {
			return fmt.Errorf("API_URL must use https in production")
		}
	case TransportLLM:
		if c.LLMModel == "" {
			return fmt.Errorf("LLM_MODEL is required for the llm transport")
		}
	default:
		return fmt.Errorf("unknown TRANSPORT %q", c.Transport)
	}

	switch c.Storage {
	case StorageMemory, StorageSQLite:
	case StorageMySQL:
		if c.SQLHost == "" || c.SQLDBName == "" {
			return fmt.Errorf("SQL_HOST and SQL_DBNAME are required for mysql storage")
		}
	default:
		return fmt.Errorf("unknown STORAGE %q", c.Storage)
	}

	if c.SendInterval < 0 || c.RequestInterval < 0 || c.APITimeout < 0 || c.ConversationTTL < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	return nil
}
