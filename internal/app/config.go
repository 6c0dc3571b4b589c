package app

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/vladislavdragonenkov/scm/internal/messaging/kafka"
)

// EnvPrefix — префикс переменных окружения: SCM_POSTGRES_DSN, SCM_ORDER_MAX_ATTEMPTS и т.д.
const EnvPrefix = "SCM"

// Config описывает настройки консоли и фоновых команд.
type Config struct {
	Postgres    PostgresConfig
	Order       OrderConfig
	Log         LogConfig
	Kafka       KafkaConfig
	Outbox      OutboxConfig
	MetricsAddr string
}

// PostgresConfig — подключение к БД. DSN собирается из частей, если не задан явно.
type PostgresConfig struct {
	DSN         string
	Host        string
	Port        int
	Name        string
	User        string
	Password    string
	SSLMode     string
	AutoMigrate bool
}

// OrderConfig — политика транзакции регистрации заказа.
type OrderConfig struct {
	MaxAttempts   int
	Backoff       time.Duration
	UserID        string
	OutboxEnabled bool
}

type LogConfig struct {
	Level string
	File  string
}

type KafkaConfig struct {
	Brokers  []string
	Topic    string
	DLQTopic string
}

type OutboxConfig struct {
	PollInterval   time.Duration
	BatchSize      int
	MaxAttempts    int
	RetryBaseDelay time.Duration
	MaxPendingAge  time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.name", "scm")
	v.SetDefault("postgres.user", "scm")
	v.SetDefault("postgres.password", "scm")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.auto_migrate", false)

	v.SetDefault("order.max_attempts", 3)
	v.SetDefault("order.backoff", time.Second)
	v.SetDefault("order.user_id", "jack01")
	v.SetDefault("order.outbox_enabled", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "scm_system.log")

	v.SetDefault("metrics.addr", "")

	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.topic", kafka.TopicPurchaseOrderEvents)
	v.SetDefault("kafka.dlq_topic", kafka.TopicDeadLetterQueue)

	v.SetDefault("outbox.poll_interval", time.Second)
	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.max_attempts", 3)
	v.SetDefault("outbox.retry_base_delay", 100*time.Millisecond)
	v.SetDefault("outbox.max_pending_age", 5*time.Minute)
}

// DefaultConfig возвращает настройки без файла и переменных окружения.
func DefaultConfig() Config {
	v := viper.New()
	setDefaults(v)
	return fromViper(v)
}

// LoadConfig читает настройки: значения по умолчанию, затем файл, затем SCM_* из окружения.
// Пустой path означает поиск scm.yaml в текущем каталоге и ./config; отсутствие файла не ошибка.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("scm")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func fromViper(v *viper.Viper) Config {
	return Config{
		Postgres: PostgresConfig{
			DSN:         v.GetString("postgres.dsn"),
			Host:        v.GetString("postgres.host"),
			Port:        v.GetInt("postgres.port"),
			Name:        v.GetString("postgres.name"),
			User:        v.GetString("postgres.user"),
			Password:    v.GetString("postgres.password"),
			SSLMode:     v.GetString("postgres.sslmode"),
			AutoMigrate: v.GetBool("postgres.auto_migrate"),
		},
		Order: OrderConfig{
			MaxAttempts:   v.GetInt("order.max_attempts"),
			Backoff:       v.GetDuration("order.backoff"),
			UserID:        v.GetString("order.user_id"),
			OutboxEnabled: v.GetBool("order.outbox_enabled"),
		},
		Log: LogConfig{
			Level: v.GetString("log.level"),
			File:  v.GetString("log.file"),
		},
		Kafka: KafkaConfig{
			Brokers:  splitList(v.GetStringSlice("kafka.brokers")),
			Topic:    v.GetString("kafka.topic"),
			DLQTopic: v.GetString("kafka.dlq_topic"),
		},
		Outbox: OutboxConfig{
			PollInterval:   v.GetDuration("outbox.poll_interval"),
			BatchSize:      v.GetInt("outbox.batch_size"),
			MaxAttempts:    v.GetInt("outbox.max_attempts"),
			RetryBaseDelay: v.GetDuration("outbox.retry_base_delay"),
			MaxPendingAge:  v.GetDuration("outbox.max_pending_age"),
		},
		MetricsAddr: v.GetString("metrics.addr"),
	}
}

// splitList принимает и YAML-список, и строку из окружения вида "a:9092, b:9092".
func splitList(raw []string) []string {
	var out []string
	for _, item := range raw {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate отклоняет настройки, с которыми движок или relay работать не смогут.
func (c Config) Validate() error {
	var errs []error
	if c.Order.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("order.max_attempts must be >= 1, got %d", c.Order.MaxAttempts))
	}
	if c.Order.Backoff < 0 {
		errs = append(errs, fmt.Errorf("order.backoff must not be negative, got %s", c.Order.Backoff))
	}
	if strings.TrimSpace(c.Order.UserID) == "" {
		errs = append(errs, errors.New("order.user_id is required"))
	}
	if c.Postgres.DSN == "" && (c.Postgres.Host == "" || c.Postgres.Name == "") {
		errs = append(errs, errors.New("postgres.dsn or postgres.host and postgres.name are required"))
	}
	if c.Outbox.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("outbox.poll_interval must be positive, got %s", c.Outbox.PollInterval))
	}
	if c.Outbox.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("outbox.batch_size must be positive, got %d", c.Outbox.BatchSize))
	}
	if c.Outbox.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("outbox.max_attempts must be >= 1, got %d", c.Outbox.MaxAttempts))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("kafka.topic is required when kafka.brokers is set"))
	}
	return errors.Join(errs...)
}

// PostgresDSN возвращает явный DSN или собирает его из host/port/name/user/password.
func (c PostgresConfig) PostgresDSN() string {
	if c.DSN != "" {
		return c.DSN
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Name,
	}
	if c.User != "" {
		u.User = url.UserPassword(c.User, c.Password)
	}
	if c.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": []string{c.SSLMode}}.Encode()
	}
	return u.String()
}
