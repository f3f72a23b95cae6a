package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ModelEndpoint describes one language-model backend: the classifier and the
// agent model are configured independently.
type ModelEndpoint struct {
	Provider string // "openai" (any OpenAI-compatible server) or "bedrock"
	Name     string
	BaseURL  string
	APIKey   string
}

type Config struct {
	Addr     string
	LogLevel string

	// Inbound model id allow-list.
	AvailableModels []string

	RouteModel ModelEndpoint
	AgentModel ModelEndpoint

	// Scientific backend base URLs. Empty disables the backend.
	AlphaFoldURL string
	ESM3URL      string
	Evo2URL      string
	MatterGenURL string
	SpectrumURL  string
	FieldURL     string

	BackendTimeout time.Duration
	FieldTimeout   time.Duration
	MaxAgentSteps  int

	RateLimitRPM int
	RedisURL     string
	DatabaseURL  string
	OTLPEndpoint string

	AWSRegion           string
	SNSTopicARN         string
	UsageQueueURL       string
	ModelKeysSecretName string

	// Comma-separated inbound API keys (plaintext or bcrypt hashes).
	// Empty disables auth.
	APIKeys []string

	ShutdownTimeout time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Addr:            getEnv("ADDR", ":8080"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		AvailableModels: getListEnv("AVAILABLE_MODELS", []string{"S1-Base"}),
		RouteModel: ModelEndpoint{
			Provider: getEnv("ROUTE_MODEL_PROVIDER", "openai"),
			Name:     getEnv("ROUTE_MODEL_NAME", ""),
			BaseURL:  getEnv("ROUTE_MODEL_BASE_URL", ""),
			APIKey:   getEnv("ROUTE_MODEL_API_KEY", ""),
		},
		AgentModel: ModelEndpoint{
			Provider: getEnv("BASE_MODEL_PROVIDER", "openai"),
			Name:     getEnv("BASE_MODEL_NAME", ""),
			BaseURL:  getEnv("BASE_MODEL_BASE_URL", ""),
			APIKey:   getEnv("BASE_MODEL_API_KEY", ""),
		},
		AlphaFoldURL:        getEnv("ALPHAFOLD2_URL", "http://alphafold2-multimer:8000"),
		ESM3URL:             getEnv("ESM3_URL", "http://esm3:8000"),
		Evo2URL:             getEnv("EVO2_URL", "http://evo2:8000"),
		MatterGenURL:        getEnv("MATTERGEN_URL", "http://mattergen:8000"),
		SpectrumURL:         getEnv("SPECTRUM_URL", "http://spectrum-service:5002"),
		FieldURL:            getEnv("FIELD_URL", "http://field:8000"),
		BackendTimeout:      getDurationEnv("BACKEND_TIMEOUT", 300*time.Second),
		FieldTimeout:        getDurationEnv("FIELD_TIMEOUT", 600*time.Second),
		MaxAgentSteps:       getIntEnv("MAX_AGENT_STEPS", 8),
		RateLimitRPM:        getIntEnv("RATE_LIMIT_RPM", 0),
		RedisURL:            getEnv("REDIS_URL", ""),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		OTLPEndpoint:        getEnv("OTLP_ENDPOINT", ""),
		AWSRegion:           getEnv("AWS_REGION", ""),
		SNSTopicARN:         getEnv("SNS_TOPIC_ARN", ""),
		UsageQueueURL:       getEnv("USAGE_QUEUE_URL", ""),
		ModelKeysSecretName: getEnv("MODEL_KEYS_SECRET_NAME", ""),
		APIKeys:             getListEnv("API_KEYS", nil),
		ShutdownTimeout:     getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
