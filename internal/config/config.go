package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds all runtime settings, parsed from the environment.
type Config struct {
	Port       string   `env:"PORT" envDefault:"8080"`
	GinMode    string   `env:"GIN_MODE" envDefault:"debug"`
	CORSOrigin []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173"`

	DBHost     string `env:"DB_HOST" envDefault:"localhost"`
	DBPort     string `env:"DB_PORT" envDefault:"5432"`
	DBUser     string `env:"DB_USER" envDefault:"postgres"`
	DBPassword string `env:"DB_PASSWORD" envDefault:"postgres"`
	DBName     string `env:"DB_NAME" envDefault:"pmo"`
	DBSSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`

	// DecisionColumns lists the optional change_requests columns this deployment
	// carries for the terminal approval write. Older schemas may lack some of
	// them; the guarded update only writes columns declared here.
	DecisionColumns []string `env:"DECISION_COLUMNS" envSeparator:"," envDefault:"decision_by,decision_at,decision_note"`
}

// Load parses the environment into a Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	return cfg, nil
}

// DSN assembles the postgres connection string.
func (c *Config) DSN() string {
	return "postgres://" + c.DBUser + ":" + c.DBPassword + "@" + c.DBHost + ":" + c.DBPort +
		"/" + c.DBName + "?sslmode=" + c.DBSSLMode
}
