package infra

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	FailurePolicyBestEffort = "best_effort" // ошибка webhook только логируется и пишется в lastError
	FailurePolicyStrict     = "strict"      // Submit возвращает ошибку (запись все равно создана)

	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config - корневая структура конфигурации ретранслятора.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Journal  JournalConfig  `mapstructure:"journal"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP-сервера.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig описывает подключение к PostgreSQL.
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"` // postgres | memory
	URL             string `mapstructure:"url"`
	MaxConns        int32  `mapstructure:"max_conns"`
	MinConns        int32  `mapstructure:"min_conns"`
	ConnectAttempts uint   `mapstructure:"connect_attempts"`
	Migrate         bool   `mapstructure:"migrate"`
}

// RedisConfig описывает подключение к Redis (Pub/Sub решений и блокировки пересылки).
// Пустой Addr отключает сигналы.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// WebhookConfig - внешний workflow endpoint. Читается один раз при старте
// и явно передается в webhook.New.
type WebhookConfig struct {
	URL           string        `mapstructure:"url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	FailurePolicy string        `mapstructure:"failure_policy"`
	MarkForwarded bool          `mapstructure:"mark_forwarded"`
	RateLimit     float64       `mapstructure:"rate_limit"` // запросов в секунду, 0 - без лимита
	Burst         int           `mapstructure:"burst"`
	Breaker       BreakerConfig `mapstructure:"breaker"`
}

// BreakerConfig - настройки Circuit Breaker для webhook.
type BreakerConfig struct {
	MaxRequests         uint32        `mapstructure:"max_requests"`
	Interval            time.Duration `mapstructure:"interval"`
	Timeout             time.Duration `mapstructure:"timeout"`
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures"`
}

// JournalConfig настраивает асинхронный журнал событий жизненного цикла.
type JournalConfig struct {
	BufferSize    int           `mapstructure:"buffer_size"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
func LoadConfig() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	// WEBHOOK_URL=... перекроет webhook.url
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет - работаем на ENV и дефолтах
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate ловит ошибки конфигурации до старта сервера.
func (c *Config) Validate() error {
	if c.Webhook.URL == "" {
		return errors.New("config: webhook.url is required")
	}
	switch c.Webhook.FailurePolicy {
	case FailurePolicyBestEffort, FailurePolicyStrict:
	default:
		return fmt.Errorf("config: unknown webhook.failure_policy %q", c.Webhook.FailurePolicy)
	}
	switch c.Database.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Database.URL == "" {
			return errors.New("config: database.url is required for postgres driver")
		}
	default:
		return fmt.Errorf("config: unknown database.driver %q", c.Database.Driver)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Ключи без значения тоже регистрируем: иначе AutomaticEnv не увидит их при Unmarshal
	v.SetDefault("server.host", "")
	v.SetDefault("database.url", "")
	v.SetDefault("webhook.url", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second) // больше таймаута webhook
	v.SetDefault("server.shutdown_timeout", 5*time.Second)

	v.SetDefault("database.driver", DriverPostgres)
	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.connect_attempts", 5)
	v.SetDefault("database.migrate", true)

	v.SetDefault("webhook.timeout", 15*time.Second)
	v.SetDefault("webhook.failure_policy", FailurePolicyBestEffort)
	v.SetDefault("webhook.mark_forwarded", false)
	v.SetDefault("webhook.rate_limit", 20.0)
	v.SetDefault("webhook.burst", 5)
	v.SetDefault("webhook.breaker.max_requests", 1)
	v.SetDefault("webhook.breaker.interval", 60*time.Second)
	v.SetDefault("webhook.breaker.timeout", 30*time.Second)
	v.SetDefault("webhook.breaker.consecutive_failures", 5)

	v.SetDefault("journal.buffer_size", 1000)
	v.SetDefault("journal.batch_size", 100)
	v.SetDefault("journal.flush_interval", 1*time.Second)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
}
