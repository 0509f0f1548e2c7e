package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"hermes/pkg/errors"
)

type Config struct {
	App           AppConfig
	Menu          MenuConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Queue         QueueConfig
	Telegram      TelegramConfig
	Gateway       GatewayConfig
	ErrorTracking ErrorTrackingConfig
	Metrics       MetricsConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"hermes"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Debug    bool   `envconfig:"DEBUG" default:"false"`
}

type MenuConfig struct {
	ActionPrefix     string  `envconfig:"MENU_ACTION_PREFIX" default:"menu"`
	PreloadAll       bool    `envconfig:"MENU_PRELOAD_ALL" default:"false"`
	DefaultColor     int     `envconfig:"MENU_DEFAULT_COLOR" default:"5793266"`
	ActionsPerSecond float64 `envconfig:"MENU_ACTIONS_PER_SECOND" default:"5"`
	ActionBurst      int     `envconfig:"MENU_ACTION_BURST" default:"10"`
}

type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type KafkaConfig struct {
	Brokers []string `envconfig:"KAFKA_BROKERS"`
	GroupID string   `envconfig:"KAFKA_GROUP_ID" default:"hermes"`
}

// QueueConfig selects the update-queue transport: memory, redis or kafka.
type QueueConfig struct {
	Driver string `envconfig:"QUEUE_DRIVER" default:"memory"`
}

type TelegramConfig struct {
	BotToken string `envconfig:"TELEGRAM_BOT_TOKEN" required:"true"`
	Debug    bool   `envconfig:"TELEGRAM_DEBUG" default:"false"`

	// Bot API hard-limits edits to ~30 messages/sec globally.
	SendsPerSecond float64 `envconfig:"TELEGRAM_SENDS_PER_SECOND" default:"25"`
	SendBurst      int     `envconfig:"TELEGRAM_SEND_BURST" default:"5"`
}

type GatewayConfig struct {
	Enabled bool   `envconfig:"GATEWAY_ENABLED" default:"false"`
	URL     string `envconfig:"GATEWAY_URL"`
	Token   string `envconfig:"GATEWAY_TOKEN"`
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"true"`
	Provider    string `envconfig:"ERROR_TRACKING_PROVIDER" default:"sentry"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

type MetricsConfig struct {
	Enabled bool `envconfig:"METRICS_ENABLED" default:"true"`
	Port    int  `envconfig:"METRICS_PORT" default:"9090"`
}

// Load reads configuration from environment variables
// It first tries to load .env file (useful for local development)
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not exists)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	return &cfg, nil
}
