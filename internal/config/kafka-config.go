package config

import "time"

type KafkaConfig struct {
	Enabled       bool
	Host          string
	Topic         string
	RelayInterval time.Duration
	RelayBatch    int
}

func NewKafkaConfig() *KafkaConfig {
	return &KafkaConfig{
		Enabled:       GetEnvBool("KAFKA_ENABLED", false),
		Host:          GetEnv("KAFKA_HOST", "localhost"),
		Topic:         GetEnv("KAFKA_PROCESSED_TOPIC", "webhook_events_processed"),
		RelayInterval: GetEnvDuration("KAFKA_RELAY_INTERVAL", 2*time.Second),
		RelayBatch:    100,
	}
}
