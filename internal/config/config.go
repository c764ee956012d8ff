package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // library time zones must resolve in minimal images

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. LIBRARY_HTTP_PORT.
const EnvPrefix = "LIBRARY"

// Config is the complete process configuration.
type Config struct {
	HTTP      HTTPConfig      `mapstructure:"http"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Loans     LoansConfig     `mapstructure:"loans"`
	Delivery  DeliveryConfig  `mapstructure:"delivery"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Directory DirectoryConfig `mapstructure:"directory"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Sentry    SentryConfig    `mapstructure:"sentry"`
	Log       LogConfig       `mapstructure:"log"`
}

type HTTPConfig struct {
	Port          int           `mapstructure:"port"`
	BaseURL       string        `mapstructure:"base_url"`
	TriggerSecret string        `mapstructure:"trigger_secret"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Path         string        `mapstructure:"path"`
	BusyTimeout  time.Duration `mapstructure:"busy_timeout"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
}

type LoansConfig struct {
	PeriodDays  int    `mapstructure:"period_days"`
	UnitPenalty string `mapstructure:"unit_penalty"`
	Currency    string `mapstructure:"currency"`
	Timezone    string `mapstructure:"timezone"`
}

// DeliveryConfig configures the mail channel. An empty URL selects log-only mode.
type DeliveryConfig struct {
	URL           string        `mapstructure:"url"`
	From          string        `mapstructure:"from"`
	LibraryName   string        `mapstructure:"library_name"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Burst         int           `mapstructure:"burst"`
	Retry         RetryConfig   `mapstructure:"retry"`
}

type RetryConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	Multiplier     float64       `mapstructure:"multiplier"`
}

type QueueConfig struct {
	URL        string        `mapstructure:"url"`
	Token      string        `mapstructure:"token"`
	BatchSize  int           `mapstructure:"batch_size"`
	SigningKey string        `mapstructure:"signing_key"`
	WorkerPath string        `mapstructure:"worker_path"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type SchedulerConfig struct {
	LockTTL        time.Duration `mapstructure:"lock_ttl"`
	InactivityDays int           `mapstructure:"inactivity_days"`
}

type DirectoryConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type WorkerConfig struct {
	Concurrency     int           `mapstructure:"concurrency"`
	QueueSize       int           `mapstructure:"queue_size"`
	MaxRetained     int           `mapstructure:"max_retained"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type SentryConfig struct {
	DSN         string `mapstructure:"dsn"`
	Environment string `mapstructure:"environment"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Location resolves the library time zone.
func (c LoansConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// WorkerURL is the absolute URL the queue calls back with batches.
func (c Config) WorkerURL() string {
	return strings.TrimRight(c.HTTP.BaseURL, "/") + c.Queue.WorkerPath
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.base_url", "")
	v.SetDefault("http.trigger_secret", "")
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 5*time.Minute)

	v.SetDefault("database.path", "library.db")
	v.SetDefault("database.busy_timeout", 5*time.Second)
	v.SetDefault("database.max_open_conns", 4)

	v.SetDefault("loans.period_days", 7)
	v.SetDefault("loans.unit_penalty", "0.50")
	v.SetDefault("loans.currency", "")
	v.SetDefault("loans.timezone", "UTC")

	v.SetDefault("delivery.url", "")
	v.SetDefault("delivery.from", "")
	v.SetDefault("delivery.library_name", "School Library")
	v.SetDefault("delivery.timeout", 30*time.Second)
	v.SetDefault("delivery.rate_per_second", 5.0)
	v.SetDefault("delivery.burst", 5)
	v.SetDefault("delivery.retry.max_attempts", 3)
	v.SetDefault("delivery.retry.initial_backoff", time.Second)
	v.SetDefault("delivery.retry.max_backoff", 30*time.Second)
	v.SetDefault("delivery.retry.multiplier", 2.0)

	v.SetDefault("queue.url", "")
	v.SetDefault("queue.token", "")
	v.SetDefault("queue.batch_size", 100)
	v.SetDefault("queue.signing_key", "")
	v.SetDefault("queue.worker_path", "/api/notifications/worker")
	v.SetDefault("queue.timeout", 10*time.Second)

	v.SetDefault("scheduler.lock_ttl", 15*time.Minute)
	v.SetDefault("scheduler.inactivity_days", 30)

	v.SetDefault("directory.cache_ttl", time.Minute)

	v.SetDefault("worker.concurrency", 2)
	v.SetDefault("worker.queue_size", 64)
	v.SetDefault("worker.max_retained", 256)
	v.SetDefault("worker.shutdown_timeout", 30*time.Second)

	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "production")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads defaults, the optional YAML file at path and LIBRARY_* environment
// overrides, then validates the result. Every invalid key is reported at once.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ErrInvalid is matched by every validation failure returned from Load.
var ErrInvalid = errors.New("config: invalid configuration")

// Validate checks the loaded values.
func (c Config) Validate() error {
	missing := make([]string, 0, 2)
	invalid := make([]string, 0, 4)

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		invalid = append(invalid, "http.port")
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		missing = append(missing, "database.path")
	}
	if c.Database.BusyTimeout < 0 {
		invalid = append(invalid, "database.busy_timeout")
	}
	if c.Loans.PeriodDays <= 0 {
		invalid = append(invalid, "loans.period_days")
	}
	if _, err := c.Loans.Location(); err != nil {
		invalid = append(invalid, "loans.timezone")
	}
	if c.Delivery.URL != "" && strings.TrimSpace(c.Delivery.From) == "" && !strings.HasPrefix(c.Delivery.URL, "logger://") {
		missing = append(missing, "delivery.from")
	}
	if c.Delivery.RatePerSecond < 0 {
		invalid = append(invalid, "delivery.rate_per_second")
	}
	if c.Delivery.Retry.MaxAttempts < 1 {
		invalid = append(invalid, "delivery.retry.max_attempts")
	}
	if c.Queue.URL != "" {
		if n := len(c.Queue.SigningKey); n == 0 {
			missing = append(missing, "queue.signing_key")
		} else if n > 64 {
			invalid = append(invalid, "queue.signing_key")
		}
	}
	if c.Queue.BatchSize <= 0 {
		invalid = append(invalid, "queue.batch_size")
	}
	if !strings.HasPrefix(c.Queue.WorkerPath, "/") {
		invalid = append(invalid, "queue.worker_path")
	}
	if c.Scheduler.LockTTL <= 0 {
		invalid = append(invalid, "scheduler.lock_ttl")
	}
	if c.Worker.Concurrency <= 0 {
		invalid = append(invalid, "worker.concurrency")
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		invalid = append(invalid, "log.format")
	}

	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing: "+strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		parts = append(parts, "invalid: "+strings.Join(invalid, ", "))
	}
	if len(parts) > 0 {
		return fmt.Errorf("%w (%s)", ErrInvalid, strings.Join(parts, "; "))
	}
	return nil
}
