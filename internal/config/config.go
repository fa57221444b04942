package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

const envPrefix = "CONSULT"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Lock      LockConfig      `mapstructure:"lock"`
	Directory DirectoryConfig `mapstructure:"directory"`
	Outbox    OutboxConfig    `mapstructure:"outbox"`
	Scanner   ScannerConfig   `mapstructure:"scanner"`
	Email     EmailConfig     `mapstructure:"email"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	HealthPort     int           `mapstructure:"health_port"`
}

type DatabaseConfig struct {
	URL          string `mapstructure:"url"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Name         string `mapstructure:"name"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	AutoMigrate  bool   `mapstructure:"auto_migrate"`
}

// DSN prefers an explicit URL over the discrete fields.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

type RedisConfig struct {
	URL            string        `mapstructure:"url"`
	PoolSize       int           `mapstructure:"pool_size"`
	MinIdleConns   int           `mapstructure:"min_idle_conns"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryBackoff   time.Duration `mapstructure:"retry_backoff"`
	PublishEvents  bool          `mapstructure:"publish_events"`
	EventChannel   string        `mapstructure:"event_channel"`
	BreakerFailMax int           `mapstructure:"breaker_fail_max"`
	BreakerReset   time.Duration `mapstructure:"breaker_reset"`
}

const (
	LockDriverLocal = "local"
	LockDriverRedis = "redis"
)

type LockConfig struct {
	Driver        string        `mapstructure:"driver"`
	TTL           time.Duration `mapstructure:"ttl"`
	Wait          time.Duration `mapstructure:"wait"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

type DirectoryConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type OutboxConfig struct {
	BatchSize     int           `mapstructure:"batch_size"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	Retention     time.Duration `mapstructure:"retention"`
}

type ScannerConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	Timezone string        `mapstructure:"timezone"`
}

// Location resolves the timezone that defines "today" for scans.
func (c ScannerConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid scanner timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

const (
	EmailDriverSMTP     = "smtp"
	EmailDriverSES      = "ses"
	EmailDriverSendGrid = "sendgrid"
	EmailDriverStub     = "stub"
)

type EmailConfig struct {
	Driver   string         `mapstructure:"driver"`
	From     string         `mapstructure:"from"`
	FromName string         `mapstructure:"from_name"`
	SMTP     SMTPConfig     `mapstructure:"smtp"`
	SendGrid SendGridConfig `mapstructure:"sendgrid"`
	SES      SESConfig      `mapstructure:"ses"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type SendGridConfig struct {
	APIKey string `mapstructure:"api_key"`
}

type SESConfig struct {
	Region string `mapstructure:"region"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// envOverrides are the CONSULT_* variables applied on top of the file.
// Empty values leave the file setting alone.
type envOverrides struct {
	DatabaseURL      string `envconfig:"DATABASE_URL"`
	DatabasePassword string `envconfig:"DB_PASSWORD"`
	StorageDriver    string `envconfig:"STORAGE_DRIVER"`
	RedisURL         string `envconfig:"REDIS_URL"`
	LockDriver       string `envconfig:"LOCK_DRIVER"`
	JWTSecret        string `envconfig:"JWT_SECRET"`
	EmailDriver      string `envconfig:"EMAIL_DRIVER"`
	SMTPPassword     string `envconfig:"SMTP_PASSWORD"`
	SendGridAPIKey   string `envconfig:"SENDGRID_API_KEY"`
	SESRegion        string `envconfig:"SES_REGION"`
	ServerPort       int    `envconfig:"PORT"`
	LogLevel         string `envconfig:"LOG_LEVEL"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.request_timeout", 10*time.Second)
	v.SetDefault("server.health_port", 8081)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "consult")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.auto_migrate", false)

	v.SetDefault("storage.driver", StorageDriverPostgres)

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", 100*time.Millisecond)
	v.SetDefault("redis.publish_events", false)
	v.SetDefault("redis.event_channel", "consultation-events")
	v.SetDefault("redis.breaker_fail_max", 5)
	v.SetDefault("redis.breaker_reset", 30*time.Second)

	v.SetDefault("lock.driver", LockDriverLocal)
	v.SetDefault("lock.ttl", 10*time.Second)
	v.SetDefault("lock.wait", 3*time.Second)
	v.SetDefault("lock.retry_interval", 25*time.Millisecond)

	v.SetDefault("directory.cache_ttl", 30*time.Second)

	v.SetDefault("outbox.batch_size", 50)
	v.SetDefault("outbox.poll_interval", 2*time.Second)
	v.SetDefault("outbox.retry_attempts", 5)
	v.SetDefault("outbox.retry_delay", 30*time.Second)
	v.SetDefault("outbox.retention", 7*24*time.Hour)

	v.SetDefault("scanner.enabled", true)
	v.SetDefault("scanner.interval", time.Hour)
	v.SetDefault("scanner.timezone", "UTC")

	v.SetDefault("email.driver", EmailDriverStub)
	v.SetDefault("email.from", "no-reply@consult.local")
	v.SetDefault("email.from_name", "Consultations")
	v.SetDefault("email.smtp.port", 587)
	v.SetDefault("email.ses.region", "us-east-1")

	v.SetDefault("auth.issuer", "consult-api")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 20.0)
	v.SetDefault("rate_limit.burst", 40)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Load reads the configuration. path names an explicit file; when empty the
// usual search paths are tried and a missing file falls back to defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app/config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process(envPrefix, &env); err != nil {
		return fmt.Errorf("failed to process environment: %w", err)
	}

	override(&cfg.Database.URL, env.DatabaseURL)
	override(&cfg.Database.Password, env.DatabasePassword)
	override(&cfg.Storage.Driver, env.StorageDriver)
	override(&cfg.Redis.URL, env.RedisURL)
	override(&cfg.Lock.Driver, env.LockDriver)
	override(&cfg.Auth.JWTSecret, env.JWTSecret)
	override(&cfg.Email.Driver, env.EmailDriver)
	override(&cfg.Email.SMTP.Password, env.SMTPPassword)
	override(&cfg.Email.SendGrid.APIKey, env.SendGridAPIKey)
	override(&cfg.Email.SES.Region, env.SESRegion)
	override(&cfg.Log.Level, env.LogLevel)
	if env.ServerPort != 0 {
		cfg.Server.Port = env.ServerPort
	}
	return nil
}

func override(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StorageDriverPostgres, StorageDriverMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	switch c.Lock.Driver {
	case LockDriverLocal:
	case LockDriverRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("lock driver redis requires redis.url")
		}
	default:
		return fmt.Errorf("unknown lock driver %q", c.Lock.Driver)
	}

	switch c.Email.Driver {
	case EmailDriverStub:
	case EmailDriverSMTP:
		if c.Email.SMTP.Host == "" {
			return fmt.Errorf("email driver smtp requires email.smtp.host")
		}
	case EmailDriverSendGrid:
		if c.Email.SendGrid.APIKey == "" {
			return fmt.Errorf("email driver sendgrid requires an api key")
		}
	case EmailDriverSES:
		if c.Email.SES.Region == "" {
			return fmt.Errorf("email driver ses requires email.ses.region")
		}
	default:
		return fmt.Errorf("unknown email driver %q", c.Email.Driver)
	}

	if c.Lock.TTL <= 0 {
		return fmt.Errorf("lock.ttl must be positive")
	}
	if c.Outbox.BatchSize <= 0 {
		return fmt.Errorf("outbox.batch_size must be positive")
	}
	if c.Outbox.PollInterval <= 0 {
		return fmt.Errorf("outbox.poll_interval must be positive")
	}
	if c.Outbox.RetryAttempts <= 0 {
		return fmt.Errorf("outbox.retry_attempts must be positive")
	}
	if c.Outbox.RetryDelay <= 0 {
		return fmt.Errorf("outbox.retry_delay must be positive")
	}
	if c.Scanner.Enabled && c.Scanner.Interval <= 0 {
		return fmt.Errorf("scanner.interval must be positive when the scanner is enabled")
	}
	if c.Directory.CacheTTL < 0 {
		return fmt.Errorf("directory.cache_ttl cannot be negative")
	}
	if _, err := c.Scanner.Location(); err != nil {
		return err
	}
	return nil
}
