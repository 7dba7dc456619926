package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Environment string            `mapstructure:"environment"`
	LogLevel    string            `mapstructure:"log_level"`
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Telegram    TelegramConfig    `mapstructure:"telegram"`
	Forecasting ForecastingConfig `mapstructure:"forecasting"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Security    SecurityConfig    `mapstructure:"security"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	DBName      string `mapstructure:"dbname"`
	SSLMode     string `mapstructure:"sslmode"`
	DatabaseURL string `mapstructure:"database_url"`
	MaxConns    int32  `mapstructure:"max_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type TelegramConfig struct {
	BotToken      string   `mapstructure:"bot_token"`
	AlertChatIDs  []string `mapstructure:"alert_chat_ids"`
	RatePerSecond float64  `mapstructure:"rate_per_second"`
}

// ForecastingConfig drives the forecast pipeline and its batch runs.
type ForecastingConfig struct {
	DefaultHorizonDays int           `mapstructure:"default_horizon_days"`
	MinHistoryDays     int           `mapstructure:"min_history_days"`
	CacheTTL           time.Duration `mapstructure:"cache_ttl"`
	LocalCacheSize     int           `mapstructure:"local_cache_size"`
	DefaultAlgorithm   string        `mapstructure:"default_algorithm"`
	ScopeTimeout       time.Duration `mapstructure:"scope_timeout"`
	MaxWorkers         int           `mapstructure:"max_workers"`
	RetentionDays      int           `mapstructure:"retention_days"`
}

// MonitoringConfig holds the thresholds of the three monitor checks.
type MonitoringConfig struct {
	AccuracyWindowDays int     `mapstructure:"accuracy_window_days"`
	AccuracyThreshold  float64 `mapstructure:"accuracy_threshold"`
	AnomalyWindowDays  int     `mapstructure:"anomaly_window_days"`
	AnomalyZ           float64 `mapstructure:"anomaly_z"`
	ComparisonRatio    float64 `mapstructure:"comparison_ratio"`
}

// SchedulerConfig sets how often background jobs run. A zero interval disables the job.
type SchedulerConfig struct {
	ForecastInterval time.Duration `mapstructure:"forecast_interval"`
	MonitorInterval  time.Duration `mapstructure:"monitor_interval"`
	CleanupInterval  time.Duration `mapstructure:"cleanup_interval"`
}

type SecurityConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" json:"-" yaml:"-"`
	JWTExpiry string `mapstructure:"jwt_expiry"`

	// AdminAPIKey guards the batch and cleanup endpoints. Empty disables key access.
	AdminAPIKey string `mapstructure:"admin_api_key" json:"-" yaml:"-"`
}

type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name"`
	LogExport    bool   `mapstructure:"log_export"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	// Set default values
	setDefaults()

	// Enable environment variable support
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Bind specific environment variables
	bindings := map[string]string{
		"security.jwt_secret":    "JWT_SECRET",
		"database.database_url":  "DATABASE_URL",
		"telegram.bot_token":     "TELEGRAM_BOT_TOKEN",
		"security.admin_api_key": "ADMIN_API_KEY",
	}
	for key, env := range bindings {
		if err := viper.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s environment variable: %w", env, err)
		}
	}

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	// Normalize environment to lowercase for consistent comparison
	config.Environment = strings.ToLower(config.Environment)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks the loaded configuration for values the service cannot run with.
func (c *Config) Validate() error {
	// Validate JWT secret in non-development environments
	if c.Environment != "development" && c.Security.JWTSecret == "" {
		return errors.New("JWT_SECRET environment variable is required in non-development environments")
	}

	if c.Security.JWTExpiry != "" {
		if _, err := time.ParseDuration(c.Security.JWTExpiry); err != nil {
			return fmt.Errorf("invalid JWT expiry duration: %w", err)
		}
	}

	f := c.Forecasting
	switch {
	case f.DefaultHorizonDays <= 0:
		return fmt.Errorf("forecasting.default_horizon_days must be positive, got %d", f.DefaultHorizonDays)
	case f.MinHistoryDays <= 0:
		return fmt.Errorf("forecasting.min_history_days must be positive, got %d", f.MinHistoryDays)
	case f.CacheTTL <= 0:
		return fmt.Errorf("forecasting.cache_ttl must be positive, got %s", f.CacheTTL)
	case f.ScopeTimeout <= 0:
		return fmt.Errorf("forecasting.scope_timeout must be positive, got %s", f.ScopeTimeout)
	case f.RetentionDays <= 0:
		return fmt.Errorf("forecasting.retention_days must be positive, got %d", f.RetentionDays)
	case f.LocalCacheSize < 0:
		return fmt.Errorf("forecasting.local_cache_size must not be negative, got %d", f.LocalCacheSize)
	}

	m := c.Monitoring
	switch {
	case m.AccuracyWindowDays <= 0 || m.AnomalyWindowDays <= 0:
		return errors.New("monitoring windows must be positive")
	case m.AccuracyThreshold <= 0:
		return fmt.Errorf("monitoring.accuracy_threshold must be positive, got %v", m.AccuracyThreshold)
	case m.AnomalyZ <= 0:
		return fmt.Errorf("monitoring.anomaly_z must be positive, got %v", m.AnomalyZ)
	case m.ComparisonRatio <= 1:
		return fmt.Errorf("monitoring.comparison_ratio must exceed 1, got %v", m.ComparisonRatio)
	}

	if c.Telegram.RatePerSecond < 0 {
		return fmt.Errorf("telegram.rate_per_second must not be negative, got %v", c.Telegram.RatePerSecond)
	}

	return nil
}

func setDefaults() {
	// Environment
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	// Server
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	// Set database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.dbname", "commerce")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.database_url", "")
	viper.SetDefault("database.max_conns", 10)

	// Redis
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// Telegram
	viper.SetDefault("telegram.bot_token", "")
	viper.SetDefault("telegram.alert_chat_ids", []string{})
	viper.SetDefault("telegram.rate_per_second", 1.0)

	// Forecasting
	viper.SetDefault("forecasting.default_horizon_days", 30)
	viper.SetDefault("forecasting.min_history_days", 30)
	viper.SetDefault("forecasting.cache_ttl", "1h")
	viper.SetDefault("forecasting.local_cache_size", 512)
	viper.SetDefault("forecasting.default_algorithm", "exponential_smoothing")
	viper.SetDefault("forecasting.scope_timeout", "2m")
	viper.SetDefault("forecasting.max_workers", 0)
	viper.SetDefault("forecasting.retention_days", 90)

	// Monitoring
	viper.SetDefault("monitoring.accuracy_window_days", 7)
	viper.SetDefault("monitoring.accuracy_threshold", 50.0)
	viper.SetDefault("monitoring.anomaly_window_days", 30)
	viper.SetDefault("monitoring.anomaly_z", 3.0)
	viper.SetDefault("monitoring.comparison_ratio", 1.5)

	// Scheduler
	viper.SetDefault("scheduler.forecast_interval", "24h")
	viper.SetDefault("scheduler.monitor_interval", "1h")
	viper.SetDefault("scheduler.cleanup_interval", "24h")

	// Security
	viper.SetDefault("security.jwt_secret", "")
	viper.SetDefault("security.jwt_expiry", "24h")
	viper.SetDefault("security.admin_api_key", "")

	// Telemetry
	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.otlp_endpoint", "")
	viper.SetDefault("telemetry.service_name", "commerce-forecast")
	viper.SetDefault("telemetry.log_export", false)
}
