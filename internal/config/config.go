package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Store modes
const (
	StoreModeLocal  = "local"
	StoreModeRemote = "remote"
	StoreModeNone   = "none"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Store    StoreConfig    `mapstructure:"store"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Forms    FormsConfig    `mapstructure:"forms"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// StoreConfig selects and configures the bill store
type StoreConfig struct {
	Mode      string        `mapstructure:"mode"`
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit"`
	Burst     int           `mapstructure:"burst"`
	Breaker   BreakerConfig `mapstructure:"breaker"`
}

// BreakerConfig holds circuit breaker settings for the remote store
type BreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	MinRequests      uint32        `mapstructure:"min_requests"`
	FailureRatio     float64       `mapstructure:"failure_ratio"`
	OpenTimeout      time.Duration `mapstructure:"open_timeout"`
	HalfOpenMaxCalls uint32        `mapstructure:"half_open_max_calls"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// StorageConfig holds receipt storage configuration
type StorageConfig struct {
	ReceiptsDir   string `mapstructure:"receipts_dir"`
	PublicBaseURL string `mapstructure:"public_base_url"`
	MaxUploadSize int64  `mapstructure:"max_upload_size"`
}

// NATSConfig holds event forwarding configuration. An empty URL disables it.
type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	SubjectPrefix string        `mapstructure:"subject_prefix"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
}

// FormsConfig holds new-bill form registry configuration
type FormsConfig struct {
	IdleTTL       time.Duration `mapstructure:"idle_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load reads configuration from configPath, a .env file and the environment.
// A missing config file falls back to defaults.
func Load(configPath string) (*Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("BILLED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:8080"})

	v.SetDefault("store.mode", StoreModeLocal)
	v.SetDefault("store.timeout", 10*time.Second)
	v.SetDefault("store.rate_limit", 20)
	v.SetDefault("store.burst", 5)
	v.SetDefault("store.breaker.enabled", true)
	v.SetDefault("store.breaker.min_requests", 5)
	v.SetDefault("store.breaker.failure_ratio", 0.5)
	v.SetDefault("store.breaker.open_timeout", 30*time.Second)
	v.SetDefault("store.breaker.half_open_max_calls", 1)

	v.SetDefault("database.path", "data/billed.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("storage.receipts_dir", "data/receipts")
	v.SetDefault("storage.public_base_url", "http://localhost:8080")
	v.SetDefault("storage.max_upload_size", 10<<20)

	v.SetDefault("nats.subject_prefix", "billed")
	v.SetDefault("nats.reconnect_wait", 2*time.Second)
	v.SetDefault("nats.max_reconnects", 60)

	v.SetDefault("forms.idle_ttl", 30*time.Minute)
	v.SetDefault("forms.sweep_interval", time.Minute)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}

	switch c.Store.Mode {
	case StoreModeLocal:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required in local store mode")
		}
		if c.Storage.ReceiptsDir == "" {
			return fmt.Errorf("storage.receipts_dir is required in local store mode")
		}
		if _, err := url.ParseRequestURI(c.Storage.PublicBaseURL); err != nil {
			return fmt.Errorf("storage.public_base_url is invalid: %w", err)
		}
	case StoreModeRemote:
		u, err := url.Parse(c.Store.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("store.base_url must be an absolute URL in remote store mode")
		}
	case StoreModeNone:
	default:
		return fmt.Errorf("store.mode must be one of local, remote, none: %q", c.Store.Mode)
	}

	if c.Store.RateLimit < 0 {
		return fmt.Errorf("store.rate_limit must not be negative")
	}
	if c.Store.Breaker.FailureRatio < 0 || c.Store.Breaker.FailureRatio > 1 {
		return fmt.Errorf("store.breaker.failure_ratio must be within [0, 1]")
	}
	if c.Forms.IdleTTL <= 0 || c.Forms.SweepInterval <= 0 {
		return fmt.Errorf("forms.idle_ttl and forms.sweep_interval must be positive")
	}

	return nil
}

// Addr returns the listen address
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
