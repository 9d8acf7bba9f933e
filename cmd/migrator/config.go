package main

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/dcsp-io/dcsp/internal/config"
)

// ErrDatabaseURLEmpty is returned when DATABASE_URL is unset.
var ErrDatabaseURLEmpty = errors.New("DATABASE_URL cannot be empty")

// Config holds the migrator CLI's configuration.
type Config struct {
	DatabaseURL    string
	MigrationTable string
}

// LoadConfig reads the migrator's configuration from the environment.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		DatabaseURL:    config.GetEnvStr("DATABASE_URL", ""),
		MigrationTable: config.GetEnvStr("MIGRATION_TABLE", "schema_migrations"),
	}

	if cfg.DatabaseURL == "" {
		return nil, ErrDatabaseURLEmpty
	}

	return cfg, nil
}

// String masks the password component of DatabaseURL for safe logging.
func (c *Config) String() string {
	return fmt.Sprintf("Config{DatabaseURL: %s, MigrationTable: %s}", maskDatabaseURL(c.DatabaseURL), c.MigrationTable)
}

func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}

	if _, hasPassword := u.User.Password(); !hasPassword {
		return raw
	}

	u.User = url.UserPassword(u.User.Username(), "***")
	masked := u.String()

	return strings.Replace(masked, "%2A%2A%2A", "***", 1)
}
