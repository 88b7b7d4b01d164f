package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервиса.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	Port   int    `envconfig:"PORT" default:"8080"`

	Anthropic struct {
		APIKey  string        `envconfig:"ANTHROPIC_API_KEY"`
		BaseURL string        `envconfig:"ANTHROPIC_BASE_URL"`
		Model   string        `envconfig:"ANTHROPIC_MODEL" default:"claude-sonnet-4-20250514"`
		Timeout time.Duration `envconfig:"ANTHROPIC_TIMEOUT" default:"30s"`
	} `envconfig:""`

	Auth struct {
		JWTSecret string `envconfig:"AUTH_JWT_SECRET"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	Limits struct {
		GeneratePerHour int `envconfig:"GENERATE_LIMIT_PER_HOUR" default:"20"`
		LearnItemsMax   int `envconfig:"LEARN_ITEMS_LIST_MAX" default:"100"`
	} `envconfig:""`

	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	if cfg.AppEnv == "dev" && cfg.Limits.GeneratePerHour == 20 {
		cfg.Limits.GeneratePerHour = 100
	}
	return cfg
}
