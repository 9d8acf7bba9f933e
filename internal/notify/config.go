package notify

import "github.com/dcsp-io/dcsp/internal/config"

// Config is the env-driven configuration for Producer.
type Config struct {
	Brokers []string
	Topic   string
}

// LoadConfig reads Kafka connection settings from the environment.
func LoadConfig() Config {
	return Config{
		Brokers: config.ParseCommaSeparatedList(config.GetEnvStr("DCSP_KAFKA_BROKERS", "localhost:9092")),
		Topic:   config.GetEnvStr("DCSP_KAFKA_SNAPSHOTS_TOPIC", "dataset.snapshots"),
	}
}
