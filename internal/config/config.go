// Package config loads service configuration from environment variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Transport providers.
const (
	TransportMemory = "memory"
	TransportKafka  = "kafka"
)

// Config holds all service configuration.
type Config struct {
	Service       ServiceConfig
	Transport     TransportConfig
	Kafka         KafkaConfig
	API           APIConfig
	Chat          ChatConfig
	Observability ObservabilityConfig
}

// ServiceConfig holds service identity and listener configuration.
type ServiceConfig struct {
	Principal   string
	HTTPPort    string
	GRPCPort    string
	Environment string
}

// TransportConfig selects the real-time transport.
type TransportConfig struct {
	Provider string // memory, kafka
}

// KafkaConfig holds Kafka configuration for the kafka transport.
type KafkaConfig struct {
	Enabled        bool
	Brokers        []string
	TopicOutbound  string
	TopicSnapshots string
	GroupID        string
	Principal      string
}

// APIConfig holds the conversation REST service configuration.
type APIConfig struct {
	BaseURL string
	Timeout time.Duration
	Token   string
}

// ChatConfig holds chat defaults.
type ChatConfig struct {
	DefaultModel string
}

// ObservabilityConfig holds logging and metrics configuration.
type ObservabilityConfig struct {
	LogLevel    string
	LogFormat   string
	MetricsAddr string
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-chat-transcript")

	return &Config{
		Service: ServiceConfig{
			Principal:   principal,
			HTTPPort:    envOrDefault("HTTP_PORT", "8080"),
			GRPCPort:    envOrDefault("GRPC_PORT", "50051"),
			Environment: envOrDefault("ENV", "prod"),
		},
		Transport: TransportConfig{
			Provider: strings.ToLower(envOrDefault("TRANSPORT_PROVIDER", TransportMemory)),
		},
		Kafka: KafkaConfig{
			Enabled:        envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:        envOrDefaultList("KAFKA_BROKERS", []string{"localhost:9092"}),
			TopicOutbound:  envOrDefault("KAFKA_TOPIC_OUTBOUND", "chat.step.outbound"),
			TopicSnapshots: envOrDefault("KAFKA_TOPIC_SNAPSHOTS", "chat.step.snapshots"),
			GroupID:        envOrDefault("KAFKA_GROUP_ID", "chat-transcript"),
			Principal:      envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		API: APIConfig{
			BaseURL: envOrDefault("API_BASE_URL", "http://localhost:8000"),
			Timeout: envOrDefaultDuration("API_TIMEOUT", 10*time.Second),
			Token:   os.Getenv("API_TOKEN"),
		},
		Chat: ChatConfig{
			DefaultModel: envOrDefault("DEFAULT_MODEL", "gemini-2.0-flash"),
		},
		Observability: ObservabilityConfig{
			LogLevel:    envOrDefault("LOG_LEVEL", "info"),
			LogFormat:   envOrDefault("LOG_FORMAT", "json"),
			MetricsAddr: envOrDefault("METRICS_ADDR", ":9090"),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
