package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"nl2sql-tool/internal/model"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Ollama   OllamaConfig   `mapstructure:"ollama"`
	Query    QueryConfig    `mapstructure:"query"`
	Schema   SchemaConfig   `mapstructure:"schema"`
	Security SecurityConfig `mapstructure:"security"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns host:port for the HTTP listener.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

type DatabaseConfig struct {
	Type            string        `mapstructure:"type"`
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	HealthTimeout   time.Duration `mapstructure:"health_timeout"`
}

type OllamaConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	Model        string        `mapstructure:"model"`
	Timeout      time.Duration `mapstructure:"timeout"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
	Temperature  float64       `mapstructure:"temperature"`
	TopP         float64       `mapstructure:"top_p"`
	Explain      bool          `mapstructure:"explain"`
}

type QueryConfig struct {
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxLimit       int           `mapstructure:"max_limit"`
	MaxQueryLength int           `mapstructure:"max_query_length"`
}

type SchemaConfig struct {
	SampleRows int `mapstructure:"sample_rows"`
}

type SecurityConfig struct {
	JWTSecret          string        `mapstructure:"jwt_secret"`
	JWTExpiration      time.Duration `mapstructure:"jwt_expiration"`
	RateLimitPerMinute int           `mapstructure:"rate_limit_per_minute"`
	RateLimitBurst     int           `mapstructure:"rate_limit_burst"`
	EnableAuth         bool          `mapstructure:"enable_auth"`
	EnableRateLimit    bool          `mapstructure:"enable_rate_limit"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MaxSampleRows bounds schema.sample_rows.
const MaxSampleRows = 5

// envBindings maps config keys to the flat environment names operators use.
var envBindings = map[string][]string{
	"server.host":                    {"API_HOST"},
	"server.port":                    {"API_PORT"},
	"server.mode":                    {"SERVER_MODE"},
	"database.type":                  {"DATABASE_TYPE"},
	"database.url":                   {"DATABASE_URL"},
	"ollama.base_url":                {"OLLAMA_BASE_URL"},
	"ollama.model":                   {"OLLAMA_MODEL"},
	"ollama.timeout":                 {"OLLAMA_TIMEOUT"},
	"ollama.explain":                 {"OLLAMA_EXPLAIN"},
	"query.timeout":                  {"QUERY_TIMEOUT"},
	"query.max_limit":                {"QUERY_MAX_LIMIT"},
	"schema.sample_rows":             {"SCHEMA_SAMPLE_ROWS"},
	"logging.level":                  {"LOG_LEVEL"},
	"logging.format":                 {"LOG_FORMAT"},
	"security.enable_rate_limit":     {"RATE_LIMIT_ENABLED"},
	"security.rate_limit_per_minute": {"RATE_LIMIT_PER_MINUTE"},
	"security.rate_limit_burst":      {"RATE_LIMIT_BURST"},
	"security.enable_auth":           {"AUTH_ENABLED"},
	"security.jwt_secret":            {"AUTH_JWT_SECRET"},
}

// Load reads configs/config.yaml when present, then the environment.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envBindings {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, fmt.Errorf("error binding env for %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	config.Database.Type = strings.ToLower(strings.TrimSpace(config.Database.Type))
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.shutdown_timeout", "10s")

	// Database defaults
	v.SetDefault("database.type", string(model.DatabaseTypeSQLite))
	v.SetDefault("database.url", "sqlite:///./data/sample.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 0)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.conn_max_idle_time", "30s")
	v.SetDefault("database.health_timeout", "5s")

	// Model server defaults
	v.SetDefault("ollama.base_url", "http://localhost:11434")
	v.SetDefault("ollama.model", "llama2")
	v.SetDefault("ollama.timeout", "30s")
	v.SetDefault("ollama.probe_timeout", "5s")
	v.SetDefault("ollama.temperature", 0.1)
	v.SetDefault("ollama.top_p", 0.9)
	v.SetDefault("ollama.explain", true)

	// Query defaults
	v.SetDefault("query.timeout", "30s")
	v.SetDefault("query.max_limit", model.MaxResultLimit)
	v.SetDefault("query.max_query_length", 10000)

	v.SetDefault("schema.sample_rows", 3)

	// Security defaults
	v.SetDefault("security.jwt_secret", "")
	v.SetDefault("security.jwt_expiration", "24h")
	v.SetDefault("security.rate_limit_per_minute", 60)
	v.SetDefault("security.rate_limit_burst", 10)
	v.SetDefault("security.enable_auth", false)
	v.SetDefault("security.enable_rate_limit", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if !model.DatabaseType(c.Database.Type).IsSupported() {
		return fmt.Errorf("unsupported DATABASE_TYPE %q (expected one of sqlite, postgresql, mysql)", c.Database.Type)
	}
	if strings.TrimSpace(c.Database.URL) == "" {
		return errors.New("DATABASE_URL is required")
	}
	if strings.TrimSpace(c.Ollama.BaseURL) == "" {
		return errors.New("OLLAMA_BASE_URL is required")
	}
	if strings.TrimSpace(c.Ollama.Model) == "" {
		return errors.New("OLLAMA_MODEL is required")
	}
	if c.Ollama.Timeout <= 0 || c.Ollama.ProbeTimeout <= 0 {
		return errors.New("ollama timeouts must be positive")
	}
	if c.Query.Timeout <= 0 {
		return errors.New("query timeout must be positive")
	}
	if c.Query.MaxLimit <= 0 || c.Query.MaxLimit > model.MaxResultLimit {
		return fmt.Errorf("query max_limit must be between 1 and %d", model.MaxResultLimit)
	}
	if c.Schema.SampleRows < 0 || c.Schema.SampleRows > MaxSampleRows {
		return fmt.Errorf("schema sample_rows must be between 0 and %d", MaxSampleRows)
	}
	if c.Server.Port == "" {
		return errors.New("API_PORT is required")
	}
	if c.Security.EnableAuth && c.Security.JWTSecret == "" {
		return errors.New("AUTH_JWT_SECRET is required when auth is enabled")
	}
	return nil
}
