package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"dentalvoice/internal/models"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment overrides, e.g. DENTALVOICE_ACCESS_TOKEN.
const EnvPrefix = "dentalvoice"

type Config struct {
	App        AppConfig        `yaml:"app"`
	Upload     UploadConfig     `yaml:"upload"`
	Retry      RetryConfig      `yaml:"retry"`
	Queue      QueueConfig      `yaml:"queue"`
	Store      StoreConfig      `yaml:"store"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Relay      RelayConfig      `yaml:"relay"`
	API        APIConfig        `yaml:"api"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

// UploadConfig configures the client side of the relay contract.
type UploadConfig struct {
	RelayURL      string        `yaml:"relay_url" envconfig:"RELAY_URL"`
	AccessToken   string        `yaml:"access_token" envconfig:"ACCESS_TOKEN"`
	Timeout       time.Duration `yaml:"timeout" envconfig:"UPLOAD_TIMEOUT"`
	SlowThreshold time.Duration `yaml:"slow_threshold" envconfig:"SLOW_THRESHOLD"`
	Source        string        `yaml:"source" envconfig:"SOURCE"`
}

type RetryConfig struct {
	MaxAttempts int             `yaml:"max_attempts"`
	Delays      []time.Duration `yaml:"delays"`
}

type QueueConfig struct {
	DrainInterval time.Duration `yaml:"drain_interval"`
	// MaxAttempts abandons a queued recording once it reaches this many attempts; 0 keeps it forever.
	MaxAttempts int `yaml:"max_attempts"`
	// RefreshInterval re-reads the store so recordings queued by another process get drained.
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

type StoreConfig struct {
	Driver   string `yaml:"driver"`
	Fallback string `yaml:"fallback"`
	FilePath string `yaml:"file_path"`
	Key      string `yaml:"key"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// RelayConfig configures the relay service in front of the webhook.
type RelayConfig struct {
	WebhookURL   string        `yaml:"webhook_url" envconfig:"WEBHOOK_URL"`
	Timeout      time.Duration `yaml:"timeout" envconfig:"WEBHOOK_TIMEOUT"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
	HTTP         HTTPConfig    `yaml:"http"`
	Auth         AuthConfig    `yaml:"auth"`
	RateLimit    RateLimit     `yaml:"rate_limit"`
}

// APIConfig configures the local agent API.
type APIConfig struct {
	Enabled   bool       `yaml:"enabled"`
	HTTP      HTTPConfig `yaml:"http"`
	Auth      AuthConfig `yaml:"auth"`
	RateLimit RateLimit  `yaml:"rate_limit"`
}

type HTTPConfig struct {
	Port int `yaml:"port"`
}

type AuthConfig struct {
	Enabled bool          `yaml:"enabled"`
	Tokens  []ClientToken `yaml:"tokens"`
}

type ClientToken struct {
	Token string `yaml:"token"`
	Name  string `yaml:"name"`
}

type RateLimit struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

// Store drivers.
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

func Load(configPath string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	if err := config.applyEnv(); err != nil {
		return nil, fmt.Errorf("apply env overrides: %w", err)
	}
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) applyEnv() error {
	if err := envconfig.Process(EnvPrefix, &c.Upload); err != nil {
		return err
	}
	return envconfig.Process(EnvPrefix, &c.Relay)
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Upload),
		validation.Field(&c.Retry),
		validation.Field(&c.Store),
		validation.Field(&c.Relay),
	)
}

func (u UploadConfig) Validate() error {
	return validation.ValidateStruct(&u,
		validation.Field(&u.RelayURL, is.URL),
		validation.Field(&u.Timeout, validation.Min(time.Duration(0))),
	)
}

func (r RetryConfig) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.MaxAttempts, validation.Required, validation.Min(1)),
		validation.Field(&r.Delays, validation.By(func(value interface{}) error {
			if len(r.Delays) < r.MaxAttempts-1 {
				return fmt.Errorf("need at least %d delays for %d attempts", r.MaxAttempts-1, r.MaxAttempts)
			}
			for _, d := range r.Delays {
				if d < 0 {
					return errors.New("delays must not be negative")
				}
			}
			return nil
		})),
	)
}

func (s StoreConfig) Validate() error {
	drivers := []interface{}{DriverFile, DriverSQLite, DriverRedis, DriverMemory}
	return validation.ValidateStruct(&s,
		validation.Field(&s.Driver, validation.Required, validation.In(drivers...)),
		validation.Field(&s.Fallback, validation.In(drivers...)),
		validation.Field(&s.Key, validation.Required),
	)
}

func (r RelayConfig) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.WebhookURL, is.URL),
	)
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "dentalvoice"
	}
	if c.Upload.Timeout == 0 {
		c.Upload.Timeout = models.UploadTimeout
	}
	if c.Upload.SlowThreshold == 0 {
		c.Upload.SlowThreshold = models.SlowThreshold
	}
	if c.Upload.Source == "" {
		c.Upload.Source = models.RelaySource
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = models.MaxAttempts
	}
	if len(c.Retry.Delays) == 0 {
		c.Retry.Delays = append([]time.Duration(nil), models.RetryDelays...)
	}
	if c.Queue.DrainInterval == 0 {
		c.Queue.DrainInterval = models.DrainInterval
	}
	if c.Queue.RefreshInterval == 0 {
		c.Queue.RefreshInterval = 30 * time.Second
	}
	if c.Store.Driver == "" {
		c.Store.Driver = DriverFile
	}
	if c.Store.FilePath == "" {
		c.Store.FilePath = "data/failed_recordings.json"
	}
	if c.Store.Key == "" {
		c.Store.Key = models.DefaultStoreKey
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/dentalvoice.db"
	}
	if c.Relay.Timeout == 0 {
		c.Relay.Timeout = models.UploadTimeout
	}
	if c.Relay.MaxBodyBytes == 0 {
		c.Relay.MaxBodyBytes = 50 << 20
	}
	if c.Relay.HTTP.Port == 0 {
		c.Relay.HTTP.Port = 8090
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
}
