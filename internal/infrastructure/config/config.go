package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Environment    string               `mapstructure:"environment"`
	LogLevel       string               `mapstructure:"log_level"`
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Redis          RedisConfig          `mapstructure:"redis"`
	JWT            JWTConfig            `mapstructure:"jwt"`
	Settlement     SettlementConfig     `mapstructure:"settlement"`
	Vendors        VendorsConfig        `mapstructure:"vendors"`
	Notification   NotificationConfig   `mapstructure:"notification"`
	Reconciliation ReconciliationConfig `mapstructure:"reconciliation"`
	Tracing        TracingConfig        `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	Host           string   `mapstructure:"host"`
	ReadTimeout    int      `mapstructure:"read_timeout"`
	WriteTimeout   int      `mapstructure:"write_timeout"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	URL             string `mapstructure:"url"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

// SettlementConfig tunes the settlement orchestrator
type SettlementConfig struct {
	VendorTimeout      int  `mapstructure:"vendor_timeout"`       // seconds; vendor call deadline
	DuplicateWindow    int  `mapstructure:"duplicate_window"`     // seconds; duplicate-guard cooldown
	RequeryOnAmbiguous bool `mapstructure:"requery_on_ambiguous"` // one synchronous requery before leaving pending
}

// VendorTimeoutDuration returns the vendor call deadline as a duration
func (c SettlementConfig) VendorTimeoutDuration() time.Duration {
	return time.Duration(c.VendorTimeout) * time.Second
}

// DuplicateWindowDuration returns the duplicate-guard cooldown as a duration
func (c SettlementConfig) DuplicateWindowDuration() time.Duration {
	return time.Duration(c.DuplicateWindow) * time.Second
}

// VendorsConfig carries per-vendor API credentials and endpoints
type VendorsConfig struct {
	VTPass  VTPassConfig  `mapstructure:"vtpass"`
	Monnify MonnifyConfig `mapstructure:"monnify"`
}

// VTPassConfig contains VTpass API configuration
type VTPassConfig struct {
	APIKey        string `mapstructure:"api_key"`
	SecretKey     string `mapstructure:"secret_key"`
	PublicKey     string `mapstructure:"public_key"`
	BaseURL       string `mapstructure:"base_url"`
	Timeout       int    `mapstructure:"timeout"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

// MonnifyConfig contains Monnify payment gateway configuration
type MonnifyConfig struct {
	APIKey         string `mapstructure:"api_key"`
	SecretKey      string `mapstructure:"secret_key"`
	ContractCode   string `mapstructure:"contract_code"`
	BaseURL        string `mapstructure:"base_url"`
	Timeout        int    `mapstructure:"timeout"`
	WebhookSecret  string `mapstructure:"webhook_secret"`
	TokenGraceSecs int    `mapstructure:"token_grace_secs"`
}

// NotificationConfig configures the best-effort notification dispatcher
type NotificationConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	QueueSize   int    `mapstructure:"queue_size"`
	SendGridKey string `mapstructure:"sendgrid_key"`
	FromEmail   string `mapstructure:"from_email"`
	FromName    string `mapstructure:"from_name"`
}

// ReconciliationConfig configures the background sweep over unsettled orders
type ReconciliationConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Schedule     string `mapstructure:"schedule"`      // cron expression
	GraceMinutes int    `mapstructure:"grace_minutes"` // leave fresh ambiguous orders alone
	GiveUpHours  int    `mapstructure:"give_up_hours"` // flag for manual review past this
	BatchSize    int    `mapstructure:"batch_size"`
}

type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	CollectorURL string  `mapstructure:"collector_url"`
	SampleRate   float64 `mapstructure:"sample_rate"`
	Insecure     bool    `mapstructure:"insecure"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	// Load .env file if it exists (ignore errors if file doesn't exist)
	godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Build database URL if not provided
	if config.Database.URL == "" {
		config.Database.URL = fmt.Sprintf(
			"postgres://%s:%s@%s:%d/%s?sslmode=%s",
			config.Database.User,
			config.Database.Password,
			config.Database.Host,
			config.Database.Port,
			config.Database.Name,
			config.Database.SSLMode,
		)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", 30)
	viper.SetDefault("server.write_timeout", 30)

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "paygo_service")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 300)

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.pool_size", 10)

	viper.SetDefault("jwt.issuer", "paygo_service")

	// Vendor timeout is deliberately generous: a timeout is treated as an
	// ambiguous outcome, not a failure, so quick timeouts only create more
	// pending orders for the reconciliation sweep.
	viper.SetDefault("settlement.vendor_timeout", 30)
	viper.SetDefault("settlement.duplicate_window", 90)
	viper.SetDefault("settlement.requery_on_ambiguous", true)

	viper.SetDefault("vendors.vtpass.base_url", "https://vtpass.com/api")
	viper.SetDefault("vendors.vtpass.timeout", 30)
	viper.SetDefault("vendors.monnify.base_url", "https://api.monnify.com")
	viper.SetDefault("vendors.monnify.timeout", 30)
	viper.SetDefault("vendors.monnify.token_grace_secs", 60)

	viper.SetDefault("notification.enabled", true)
	viper.SetDefault("notification.queue_size", 1024)

	viper.SetDefault("reconciliation.enabled", true)
	viper.SetDefault("reconciliation.schedule", "@every 5m")
	viper.SetDefault("reconciliation.grace_minutes", 5)
	viper.SetDefault("reconciliation.give_up_hours", 24)
	viper.SetDefault("reconciliation.batch_size", 100)

	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.collector_url", "localhost:4317")
	viper.SetDefault("tracing.sample_rate", 1.0)
}

func validate(cfg *Config) error {
	if cfg.Environment == "production" {
		if cfg.JWT.Secret == "" {
			return fmt.Errorf("jwt.secret is required in production")
		}
		if cfg.Vendors.VTPass.WebhookSecret == "" && cfg.Vendors.Monnify.WebhookSecret == "" {
			return fmt.Errorf("at least one vendor webhook secret is required in production")
		}
	}
	if cfg.Settlement.VendorTimeout <= 0 {
		return fmt.Errorf("settlement.vendor_timeout must be positive")
	}
	if cfg.Settlement.DuplicateWindow <= 0 {
		return fmt.Errorf("settlement.duplicate_window must be positive")
	}
	return nil
}
