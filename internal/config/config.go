package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"staybook/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Booking    BookingConfig    `yaml:"booking"`
	Payment    PaymentConfig    `yaml:"payment"`
	Events     EventsConfig     `yaml:"events"`
	Exports    ExportConfig     `yaml:"exports"`
	Catalog    CatalogConfig    `yaml:"catalog"`
}

type BookingConfig struct {
	TaxRate              float64       `yaml:"tax_rate"` // percent, flat
	PendingTimeout       time.Duration `yaml:"pending_timeout"`
	ReaperInterval       time.Duration `yaml:"reaper_interval"`
	ReaperBatchSize      int           `yaml:"reaper_batch_size"`
	MaxBookingDays       int           `yaml:"max_booking_days"`
	AvailabilityCacheTTL time.Duration `yaml:"availability_cache_ttl"`
	HourlyOpenHour       int           `yaml:"hourly_open_hour"`
	HourlyCloseHour      int           `yaml:"hourly_close_hour"`
}

type PaymentConfig struct {
	Gateway   string        `yaml:"gateway"` // demo, signature
	KeyID     string        `yaml:"key_id"`
	KeySecret string        `yaml:"key_secret"`
	BaseURL   string        `yaml:"base_url"`
	Currency  string        `yaml:"currency"`
	Timeout   time.Duration `yaml:"timeout"`
}

type EventsConfig struct {
	AMQPURL         string        `yaml:"amqp_url"`
	Exchange        string        `yaml:"exchange"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	BatchSize       int           `yaml:"batch_size"`
	MaxRetries      int           `yaml:"max_retries"`
	DeadLetterQueue string        `yaml:"dead_letter_queue"`
}

type CatalogConfig struct {
	Path string `yaml:"path"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIGRPCConfig struct {
	Enabled    bool `yaml:"enabled"`
	Port       int  `yaml:"port"`
	Reflection bool `yaml:"reflection"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path          string `yaml:"path"`
	BusyTimeoutMs int    `yaml:"busy_timeout_ms"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// BackupConfig controls snapshots of the store. The newest KeepLast
// snapshots survive retention however old they are; Prefix defaults to the
// database file name.
type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	KeepLast      int    `yaml:"keep_last"`
	StoragePath   string `yaml:"storage_path"`
	Prefix        string `yaml:"prefix"`
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

func Load(configPath string) (*Config, error) {
	// Загружаем .env файл если существует
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if c.Booking.TaxRate < 0 || c.Booking.TaxRate > 100 {
		return fmt.Errorf("booking tax_rate %.2f must be between 0 and 100", c.Booking.TaxRate)
	}
	if c.Booking.HourlyOpenHour < 0 || c.Booking.HourlyCloseHour > 24 || c.Booking.HourlyOpenHour >= c.Booking.HourlyCloseHour {
		return fmt.Errorf("invalid hourly window %d-%d", c.Booking.HourlyOpenHour, c.Booking.HourlyCloseHour)
	}

	switch c.Payment.Gateway {
	case "demo":
	case "signature":
		if c.Payment.KeyID == "" || c.Payment.KeySecret == "" {
			return errors.New("payment key_id and key_secret are required for the signature gateway")
		}
	default:
		return fmt.Errorf("unknown payment gateway %q", c.Payment.Gateway)
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "staybook"
	}
	if c.Database.BusyTimeoutMs == 0 {
		c.Database.BusyTimeoutMs = 5000
	}
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	// auth enabled by default when API is enabled
	if !c.API.Auth.Enabled {
		c.API.Auth.Enabled = true
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}

	// Booking defaults
	if c.Booking.PendingTimeout == 0 {
		c.Booking.PendingTimeout = models.DefaultPendingTimeoutMinutes * time.Minute
	}
	if c.Booking.ReaperInterval == 0 {
		c.Booking.ReaperInterval = time.Minute
	}
	if c.Booking.ReaperBatchSize == 0 {
		c.Booking.ReaperBatchSize = 100
	}
	if c.Booking.MaxBookingDays == 0 {
		c.Booking.MaxBookingDays = models.DefaultMaxBookingDays
	}
	if c.Booking.AvailabilityCacheTTL == 0 {
		c.Booking.AvailabilityCacheTTL = 30 * time.Second
	}
	if c.Booking.HourlyOpenHour == 0 && c.Booking.HourlyCloseHour == 0 {
		c.Booking.HourlyOpenHour = models.DefaultHourlyOpenHour
		c.Booking.HourlyCloseHour = models.DefaultHourlyCloseHour
	}

	if c.Payment.Gateway == "" {
		c.Payment.Gateway = "demo"
	}
	if c.Payment.Currency == "" {
		c.Payment.Currency = "INR"
	}
	if c.Payment.Timeout == 0 {
		c.Payment.Timeout = 10 * time.Second
	}

	if c.Events.Exchange == "" {
		c.Events.Exchange = "staybook.events"
	}
	if c.Events.PollInterval == 0 {
		c.Events.PollInterval = 2 * time.Second
	}
	if c.Events.BatchSize == 0 {
		c.Events.BatchSize = 50
	}
	if c.Events.MaxRetries == 0 {
		c.Events.MaxRetries = models.DefaultRelayMaxRetries
	}
	if c.Events.DeadLetterQueue == "" {
		c.Events.DeadLetterQueue = "staybook:events:dead"
	}

	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
	if c.Catalog.Path == "" {
		c.Catalog.Path = "configs/catalog.yaml"
	}
}
