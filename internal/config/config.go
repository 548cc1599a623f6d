package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	HTTPPort        string
	SignatureHeader string
	WebhookSecret   string

	SignatureTolerance time.Duration
	VerifyTimeout      time.Duration
	NotifyTimeout      time.Duration
	ClaimLease         time.Duration

	SMTPAddr string
	SMTPFrom string
	SMTPUser string
	SMTPPass string

	Postgres *PostgresConfig
	Kafka    *KafkaConfig
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		logrus.Info("no .env file found, using environment variables")
	}

	cfg := &Config{
		HTTPPort:        GetEnv("HTTP_PORT", "7580"),
		SignatureHeader: GetEnv("WEBHOOK_SIGNATURE_HEADER", "Stripe-Signature"),
		WebhookSecret:   GetEnv("WEBHOOK_SECRET", ""),

		SignatureTolerance: GetEnvDuration("WEBHOOK_SIGNATURE_TOLERANCE", 5*time.Minute),
		VerifyTimeout:      GetEnvDuration("WEBHOOK_VERIFY_TIMEOUT", 2*time.Second),
		NotifyTimeout:      GetEnvDuration("NOTIFY_TIMEOUT", 10*time.Second),
		ClaimLease:         GetEnvDuration("LEDGER_CLAIM_LEASE", 60*time.Second),

		SMTPAddr: GetEnv("SMTP_ADDR", ""),
		SMTPFrom: GetEnv("SMTP_FROM", "tickets@localhost"),
		SMTPUser: GetEnv("SMTP_USER", ""),
		SMTPPass: GetEnv("SMTP_PASS", ""),

		Postgres: NewPostgresConfig(),
		Kafka:    NewKafkaConfig(),
	}

	if cfg.WebhookSecret == "" {
		logrus.Warn("WEBHOOK_SECRET is not configured, all webhook deliveries will be rejected")
	} else {
		// Never log the secret itself.
		logrus.WithField("webhook_secret", "configured").Info("loaded webhook config")
	}
	return cfg
}

func GetEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func GetEnvDuration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		logrus.Warnf("invalid duration for %s = %q, using default %s", k, v, def)
		return def
	}
	return d
}

func GetEnvBool(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
