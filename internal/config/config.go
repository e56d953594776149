package config

import (
	"fmt"
	"os"
	"strings"
)

const ServiceName = "allocation-service"

// Config is read from the environment. An empty DatabaseURL selects the
// in-memory event store and empty KafkaBrokers selects in-process projection.
type Config struct {
	HTTPAddr     string
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string
	DatabaseURL  string
	LogLevel     string
}

func Load() (*Config, error) {
	cfg := &Config{
		HTTPAddr:     getEnv("HTTP_ADDR", ":8080"),
		KafkaBrokers: splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "allocation-events"),
		KafkaGroupID: getEnv("KAFKA_GROUP_ID", "allocation-projector"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
	}

	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		return nil, fmt.Errorf("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	if cfg.HTTPAddr == "" {
		return nil, fmt.Errorf("HTTP_ADDR must not be empty")
	}

	return cfg, nil
}

// UseKafka reports whether events go through Kafka
func (c *Config) UseKafka() bool {
	return len(c.KafkaBrokers) > 0
}

// UsePostgres reports whether events are stored in PostgreSQL
func (c *Config) UsePostgres() bool {
	return c.DatabaseURL != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
