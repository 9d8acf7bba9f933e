package kv

import "github.com/dcsp-io/dcsp/internal/config"

// Config is the env-driven configuration for RedisClient.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// LoadConfig reads Redis connection settings from the environment.
func LoadConfig() Config {
	return Config{
		Addr:     config.GetEnvStr("DCSP_KV_ADDR", "localhost:6379"),
		Password: config.GetEnvStr("DCSP_KV_PASSWORD", ""),
		DB:       config.GetEnvInt("DCSP_KV_DB", 0),
	}
}
