// Package config manages legacyvault configuration
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	apperrors "github.com/lcrostarosa/legacyvault/internal/errors"
	"github.com/lcrostarosa/legacyvault/internal/logging"
	"github.com/lcrostarosa/legacyvault/internal/scheduler"
)

// EnvPrefix prefixes every environment override, e.g. LEGACYVAULT_STORE_DSN.
const EnvPrefix = "LEGACYVAULT"

// Accepted enumerations.
var (
	StoreDrivers = []string{"memory", "sqlite", "mysql"}
	NotifyKinds  = []string{"log", "shoutrrr", "webhook", "failover"}
	LockKinds    = []string{"none", "file", "redis"}
)

// DefaultSchedule scans daily at midnight.
const DefaultSchedule = "0 0 * * *"

// AppConfig holds product-wide settings
type AppConfig struct {
	// BaseURL prefixes the check-in and access links in messages
	BaseURL string `mapstructure:"base_url"`
	// Product names the service in message subjects
	Product string `mapstructure:"product"`
}

// LogConfig mirrors logging.Config
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
	JSON        bool   `mapstructure:"json"`
	File        string `mapstructure:"file"`
	MaxSizeMB   int    `mapstructure:"max_size_mb"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAgeDays  int    `mapstructure:"max_age_days"`
}

// ServerConfig holds API server settings
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	APIKey          string        `mapstructure:"api_key"`
	DevMode         bool          `mapstructure:"dev_mode"`
	CORSOrigin      string        `mapstructure:"cors_origin"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// Per-IP limits on the nominee access routes
	AccessRatePerSecond float64 `mapstructure:"access_rate_per_second"`
	AccessBurst         int     `mapstructure:"access_burst"`
	TrustProxy          bool    `mapstructure:"trust_proxy"`
}

// StoreConfig selects the persistence backend
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// ScanConfig controls scheduled scans
type ScanConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Schedule    string `mapstructure:"schedule"`
	Concurrency int    `mapstructure:"concurrency"`
	MaxRetries  int    `mapstructure:"max_retries"`
}

// LockConfig selects the cross-process scan lock
type LockConfig struct {
	Kind          string        `mapstructure:"kind"`
	Path          string        `mapstructure:"path"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	TTL           time.Duration `mapstructure:"ttl"`
}

// NotifyConfig selects the delivery channel
type NotifyConfig struct {
	Channel        string        `mapstructure:"channel"`
	URLs           []string      `mapstructure:"urls"`
	RecipientParam string        `mapstructure:"recipient_param"`
	WebhookURL     string        `mapstructure:"webhook_url"`
	WebhookRetries int           `mapstructure:"webhook_retries"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// DirectoryConfig tunes owner lookups
type DirectoryConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// Config represents the legacyvault configuration
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Log       LogConfig       `mapstructure:"log"`
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	Scan      ScanConfig      `mapstructure:"scan"`
	Lock      LockConfig      `mapstructure:"lock"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Directory DirectoryConfig `mapstructure:"directory"`

	// ConfigFile is the file that was read, empty when none was found.
	ConfigFile string `mapstructure:"-"`
}

// DefaultConfigDir returns the default config directory
func DefaultConfigDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".legacyvault")
}

func setDefaults(v *viper.Viper) {
	dir := DefaultConfigDir()

	v.SetDefault("app.base_url", "http://localhost:8420")
	v.SetDefault("app.product", "LegacyVault")

	def := logging.DefaultConfig()
	v.SetDefault("log.level", def.Level)
	v.SetDefault("log.development", false)
	v.SetDefault("log.json", false)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", def.MaxSizeMB)
	v.SetDefault("log.max_backups", def.MaxBackups)
	v.SetDefault("log.max_age_days", def.MaxAgeDays)

	v.SetDefault("server.addr", ":8420")
	v.SetDefault("server.api_key", "")
	v.SetDefault("server.dev_mode", false)
	v.SetDefault("server.cors_origin", "")
	v.SetDefault("server.shutdown_timeout", "5s")
	v.SetDefault("server.access_rate_per_second", 1.0)
	v.SetDefault("server.access_burst", 5)
	v.SetDefault("server.trust_proxy", false)

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", filepath.Join(dir, "legacyvault.db"))

	v.SetDefault("scan.enabled", true)
	v.SetDefault("scan.schedule", DefaultSchedule)
	v.SetDefault("scan.concurrency", 4)
	v.SetDefault("scan.max_retries", 3)

	v.SetDefault("lock.kind", "file")
	v.SetDefault("lock.path", filepath.Join(dir, "scan.lock"))
	v.SetDefault("lock.redis_addr", "")
	v.SetDefault("lock.redis_password", "")
	v.SetDefault("lock.redis_db", 0)
	v.SetDefault("lock.ttl", "30m")

	v.SetDefault("notify.channel", "log")
	v.SetDefault("notify.urls", []string{})
	v.SetDefault("notify.recipient_param", "toaddresses")
	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("notify.webhook_retries", 2)
	v.SetDefault("notify.timeout", "15s")

	v.SetDefault("directory.cache_ttl", "10m")
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configuration from path, or from config.yaml in the default
// directory when path is empty. A missing default file is not an error;
// defaults and environment variables apply. The result is validated.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(DefaultConfigDir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.ConfigFile = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// WriteDefault writes a config file holding the defaults. It refuses to
// overwrite an existing file.
func WriteDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	v := viper.New()
	setDefaults(v)
	if err := v.SafeWriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return os.Chmod(path, 0600)
}

// Validate rejects unknown enumerations, malformed URLs and schedules, and
// missing settings the selected backends need.
func (c *Config) Validate() error {
	u, err := url.Parse(c.App.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid("app.base_url must be an absolute http(s) URL")
	}

	if !slices.Contains(StoreDrivers, c.Store.Driver) {
		return invalid(fmt.Sprintf("store.driver must be one of %v, got %q", StoreDrivers, c.Store.Driver))
	}
	if c.Store.Driver != "memory" && c.Store.DSN == "" {
		return invalid("store.dsn is required for driver " + c.Store.Driver)
	}

	if _, err := scheduler.ParseSchedule(c.Scan.Schedule); err != nil {
		return invalid(fmt.Sprintf("scan.schedule: %v", err))
	}
	if c.Scan.Concurrency < 1 {
		return invalid("scan.concurrency must be at least 1")
	}
	if c.Scan.MaxRetries < 0 {
		return invalid("scan.max_retries must not be negative")
	}

	if !slices.Contains(LockKinds, c.Lock.Kind) {
		return invalid(fmt.Sprintf("lock.kind must be one of %v, got %q", LockKinds, c.Lock.Kind))
	}
	if c.Lock.Kind == "file" && c.Lock.Path == "" {
		return invalid("lock.path is required for a file lock")
	}
	if c.Lock.Kind == "redis" && c.Lock.RedisAddr == "" {
		return invalid("lock.redis_addr is required for a redis lock")
	}

	if !slices.Contains(NotifyKinds, c.Notify.Channel) {
		return invalid(fmt.Sprintf("notify.channel must be one of %v, got %q", NotifyKinds, c.Notify.Channel))
	}
	usesShoutrrr := c.Notify.Channel == "shoutrrr" || c.Notify.Channel == "failover"
	usesWebhook := c.Notify.Channel == "webhook" || c.Notify.Channel == "failover"
	if usesShoutrrr && len(c.Notify.URLs) == 0 {
		return invalid("notify.urls is required for the " + c.Notify.Channel + " channel")
	}
	if usesWebhook && c.Notify.WebhookURL == "" {
		return invalid("notify.webhook_url is required for the " + c.Notify.Channel + " channel")
	}

	if c.Server.AccessRatePerSecond <= 0 || c.Server.AccessBurst < 1 {
		return invalid("server.access_rate_per_second and server.access_burst must be positive")
	}
	return nil
}

// Logging converts the log section for logging.Init.
func (c *Config) Logging() logging.Config {
	return logging.Config{
		Level:       c.Log.Level,
		Development: c.Log.Development,
		JSON:        c.Log.JSON,
		File:        c.Log.File,
		MaxSizeMB:   c.Log.MaxSizeMB,
		MaxBackups:  c.Log.MaxBackups,
		MaxAgeDays:  c.Log.MaxAgeDays,
	}
}

func invalid(reason string) error {
	return apperrors.Configuration("config", reason)
}

