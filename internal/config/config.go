package config

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
)

type Environment string

const (
	EnvLocal      Environment = "local"
	EnvDev        Environment = "dev"
	EnvStage      Environment = "stage"
	EnvProduction Environment = "production"
)

type StoreMode string

const (
	// Собственное in-memory хранилище, для локальной работы и тестов
	StoreModeMemory StoreMode = "memory"
	// Бэкенд клиники по REST
	StoreModeAPI StoreMode = "api"
)

type ConfigBasicClient struct {
	Username string
	Password string
	Role     string
}

type Config struct {
	App struct {
		Version  string      `env:"APP_VERSION" envDefault:"local"`
		Env      Environment `env:"APP_ENV" envDefault:"local"`
		Timezone string      `env:"APP_TIMEZONE" envDefault:"Europe/Moscow"`
	}

	HTTP struct {
		Port string `env:"HTTP_SERVER_PORT" envDefault:"8080"`
		Host string `env:"HTTP_SERVER_HOST" envDefault:"localhost"`
	}

	Store struct {
		Mode StoreMode `env:"STORE_MODE" envDefault:"memory"`
	}

	ClinicAPI struct {
		URL      string `env:"CLINIC_API_URL"`
		Username string `env:"CLINIC_API_USERNAME"`
		Password string `env:"CLINIC_API_PASSWORD"`
	}

	Auth struct {
		// Список клиентов вида user:pass:role через запятую
		BasicClientsString string `env:"AUTH_BASIC_CLIENTS" envDefault:"reception:reception:staff"`
		BasicClients       []ConfigBasicClient
	}

	RabbitMQ struct {
		Enabled  bool   `env:"RABBITMQ_ENABLED"`
		URL      string `env:"RABBITMQ_URL"`
		Queue    string `env:"RABBITMQ_QUEUE" envDefault:"clinic.appointment.events"`
		Exchange string `env:"RABBITMQ_EXCHANGE" envDefault:"clinic.events"`
		Bind     string `env:"RABBITMQ_BIND" envDefault:"appointment.#"`
	}

	Cache struct {
		Enabled       bool          `env:"CACHE_ENABLED"`
		DayQueueSize  int           `env:"CACHE_DAY_QUEUE_SIZE" envDefault:"500"`
		FeeCatalogTTL time.Duration `env:"CACHE_FEE_CATALOG_TTL" envDefault:"30m"`
	}

	Sweeper struct {
		Enabled  bool          `env:"SWEEPER_ENABLED" envDefault:"true"`
		Interval time.Duration `env:"SWEEPER_INTERVAL" envDefault:"5m"`
		// Дополнительный проход при каждом обновлении очереди
		OnRefresh bool `env:"SWEEPER_ON_REFRESH" envDefault:"true"`
		// Как далеко назад искать опоздавшие записи
		Lookback time.Duration `env:"SWEEPER_LOOKBACK" envDefault:"720h"`
	}
}

func NewConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Приведение окружения к нижнему регистру для унификации
	cfg.App.Env = Environment(strings.ToLower(string(cfg.App.Env)))

	// Разбор клиентов basic-auth
	if cfg.Auth.BasicClients == nil {
		cfg.Auth.BasicClients = []ConfigBasicClient{}
	}
	clientTriples := strings.Split(cfg.Auth.BasicClientsString, ",")
	for _, triple := range clientTriples {
		parts := strings.Split(triple, ":")
		if len(parts) == 3 {
			cfg.Auth.BasicClients = append(cfg.Auth.BasicClients, ConfigBasicClient{
				Username: parts[0],
				Password: parts[1],
				Role:     parts[2],
			})
		}
	}

	return cfg, nil
}

func (c *Config) IsLocal() bool {
	return c.App.Env == EnvLocal
}

func (c *Config) IsNotLocal() bool {
	return c.App.Env == EnvDev || c.App.Env == EnvStage || c.App.Env == EnvProduction
}

// Локация приложения; при некорректной таймзоне откатываемся на UTC
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
