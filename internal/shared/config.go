package shared

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

const envPrefix = "HOTELOPS"

type Config struct {
	AppEnv      string        `envconfig:"APP_ENV" default:"prod"`
	LogLevel    string        `envconfig:"LOG_LEVEL" default:"info"`
	HTTPAddr    string        `envconfig:"HTTP_ADDR" default:":8080"`
	HTTPTimeout time.Duration `envconfig:"HTTP_TIMEOUT" default:"15s"`
	MetricsAddr string        `envconfig:"METRICS_ADDR" default:":9100"`

	StoreDriver string `envconfig:"STORE_DRIVER" default:"redis"`

	RedisAddr   string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPass   string `envconfig:"REDIS_PASSWORD"`
	RedisDB     int    `envconfig:"REDIS_DB" default:"0"`
	RedisPrefix string `envconfig:"REDIS_PREFIX" default:"hotelops"`

	MySQLDSN          string        `envconfig:"MYSQL_DSN" default:"root:root@tcp(localhost:3306)/hotelops?parseTime=true&charset=utf8mb4,utf8&loc=UTC"`
	MySQLPollInterval time.Duration `envconfig:"MYSQL_POLL_INTERVAL" default:"500ms"`

	ReconcileTimeout time.Duration `envconfig:"RECONCILE_TIMEOUT" default:"10s"`
	WriteTimeout     time.Duration `envconfig:"WRITE_TIMEOUT" default:"15s"`
	StartTimeout     time.Duration `envconfig:"START_TIMEOUT" default:"30s"`
	MutationRPS      int           `envconfig:"MUTATION_RPS" default:"0"`

	RevenuePolicy  string        `envconfig:"REVENUE_POLICY" default:"all"`
	UpcomingWindow time.Duration `envconfig:"UPCOMING_WINDOW" default:"168h"`

	SeedFile    string `envconfig:"SEED_FILE" default:"seed.json"`
	SeedWorkers int    `envconfig:"SEED_WORKERS" default:"4"`
}

// Load reads an optional .env file, then HOTELOPS_* variables.
func Load() (Config, error) {
	if err := godotenv.Load(".env"); err == nil {
		log.Info().Msg("loaded variables from .env")
	}
	var c Config
	if err := envconfig.Process(envPrefix, &c); err != nil {
		return c, fmt.Errorf("process environment: %w", err)
	}
	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
	return c, c.Validate()
}

func (c Config) Validate() error {
	switch c.StoreDriver {
	case "redis", "mysql", "memory":
	default:
		return fmt.Errorf("%s_STORE_DRIVER: unknown driver %q (want redis, mysql or memory)", envPrefix, c.StoreDriver)
	}
	if c.ReconcileTimeout <= 0 || c.WriteTimeout <= 0 || c.StartTimeout <= 0 {
		return fmt.Errorf("%s: timeouts must be positive", envPrefix)
	}
	if c.MutationRPS < 0 {
		return fmt.Errorf("%s_MUTATION_RPS must not be negative", envPrefix)
	}
	if c.UpcomingWindow <= 0 {
		return fmt.Errorf("%s_UPCOMING_WINDOW must be positive", envPrefix)
	}
	return nil
}
