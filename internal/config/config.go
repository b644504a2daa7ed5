package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type KafkaConfig struct {
	Enabled           bool
	Brokers           []string
	StatusTopic       string
	NotificationTopic string
	NotificationDLQ   string
	NotificationGroup string
	DLQReplay         bool
}

type BreakerConfig struct {
	MaxFailures int
	Timeout     time.Duration
	MaxRequests int
}

type Config struct {
	Port             string
	StoreDriver      string
	Database         DatabaseConfig
	Kafka            KafkaConfig
	SMSGatewayURL    string
	DocumentStoreURL string
	TrackingURL      string
	LogLevel         string
	LogFile          string
	DocumentRetry    string
	CapabilitiesFile string
	AllowedOrigins   []string
	Breaker          BreakerConfig
}

// Load reads an optional .env file and then the process environment.
// Values already present in the environment win over the file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("CARGO_SERVICE_PORT", "8080"),
		StoreDriver: getEnv("STORE_DRIVER", "postgres"),
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "cargo"),
			Password: getEnv("DB_PASSWORD", "cargo"),
			Name:     getEnv("DB_NAME", "cargo"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Kafka: KafkaConfig{
			Enabled:           getEnvBool("KAFKA_ENABLED", true),
			Brokers:           strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			StatusTopic:       getEnv("KAFKA_STATUS_TOPIC", "cargo.status-changed"),
			NotificationTopic: getEnv("KAFKA_NOTIFICATION_TOPIC", "cargo.notifications"),
			NotificationDLQ:   getEnv("KAFKA_NOTIFICATION_DLQ", "cargo.notifications.dlq"),
			NotificationGroup: getEnv("KAFKA_NOTIFICATION_GROUP", "notification-worker"),
			DLQReplay:         getEnvBool("DLQ_REPLAY", false),
		},
		SMSGatewayURL:    getEnv("SMS_GATEWAY_URL", "http://localhost:8090"),
		DocumentStoreURL: getEnv("DOCUMENT_STORE_URL", "http://localhost:8091"),
		TrackingURL:      getEnv("TRACKING_URL", "https://cargo.example.kz/track"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFile:          getEnv("LOG_FILE", ""),
		DocumentRetry:    getEnv("DOCUMENT_RETRY_SCHEDULE", "@every 1m"),
		CapabilitiesFile: getEnv("CAPABILITIES_FILE", ""),
		AllowedOrigins:   getEnvList("WS_ALLOWED_ORIGINS"),
		Breaker: BreakerConfig{
			MaxFailures: getEnvInt("BREAKER_MAX_FAILURES", 5),
			Timeout:     getEnvDuration("BREAKER_TIMEOUT", 30*time.Second),
			MaxRequests: getEnvInt("BREAKER_MAX_REQUESTS", 1),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("CARGO_SERVICE_PORT is required")
	}
	switch c.StoreDriver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Brokers[0] == "") {
		return fmt.Errorf("KAFKA_BROKERS is required when Kafka is enabled")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnvInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return defaultValue
}
