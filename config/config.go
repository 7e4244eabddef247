package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port               string        `env:"PORT" envDefault:"8080"`
	DBDriver           string        `env:"DB_DRIVER" envDefault:"mysql"`
	MysqlDSN           string        `env:"MYSQL_DSN" envDefault:"root:root@tcp(localhost:3306)/kinship?charset=utf8mb4"`
	SQLitePath         string        `env:"SQLITE_PATH" envDefault:"./kinship.db"`
	JWTSecret          string        `env:"JWT_SECRET" envDefault:"kinship-secret-key-change-in-production"`
	JWTTTL             time.Duration `env:"JWT_TTL" envDefault:"72h"`
	CORSAllowedOrigins string        `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:5173,http://localhost:3000"`
	RedisAddr          string        `env:"REDIS_ADDR"`
	RedisPassword      string        `env:"REDIS_PASSWORD"`
	RedisDB            int           `env:"REDIS_DB" envDefault:"0"`
	WSEventsPerSecond  float64       `env:"WS_EVENTS_PER_SECOND" envDefault:"10"`
	WSEventBurst       int           `env:"WS_EVENT_BURST" envDefault:"20"`
	LogDev             bool          `env:"LOG_DEV" envDefault:"false"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	if cfg.DBDriver != "mysql" && cfg.DBDriver != "sqlite" {
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
	if cfg.WSEventsPerSecond <= 0 {
		return nil, fmt.Errorf("WS_EVENTS_PER_SECOND must be positive")
	}
	return cfg, nil
}

func (c *Config) ServerAddr() string {
	return ":" + c.Port
}

// DSN returns the data source name for the configured driver.
func (c *Config) DSN() string {
	if c.DBDriver == "sqlite" {
		return c.SQLitePath
	}
	return c.MysqlDSN
}

func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, origin := range strings.Split(c.CORSAllowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}
