package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server
	ServerPort     string
	ServerHost     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64

	// Record store (FHIR API)
	FHIRAPIURL string

	// Project / platform API (identity, roles, object store control plane)
	ProjectAPIURL string
	ProjectID     string

	// Machine-to-machine auth
	AuthTokenURL     string
	AuthClientID     string
	AuthClientSecret string
	AuthAudience     string

	// Application the invited portal users sign in to
	AppClientID string

	// Deployment
	Environment string
	SentryDSN   string

	// Document metadata defaults (optional YAML file)
	DocDefaultsPath string

	// Outbound gateway behaviour
	GatewayRequestTimeout time.Duration
}

func Load() *Config {
	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 60*time.Second),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 16*1024*1024)),

		FHIRAPIURL: getEnv("FHIR_API_URL", "http://localhost:9001/fhir"),

		ProjectAPIURL: getEnv("PROJECT_API_URL", "http://localhost:9002"),
		ProjectID:     getEnv("PROJECT_ID", ""),

		AuthTokenURL:     getEnv("AUTH_TOKEN_URL", ""),
		AuthClientID:     getEnv("AUTH_CLIENT_ID", ""),
		AuthClientSecret: getEnv("AUTH_CLIENT_SECRET", ""),
		AuthAudience:     getEnv("AUTH_AUDIENCE", ""),

		AppClientID: getEnv("APP_CLIENT_ID", ""),

		Environment: getEnv("ENVIRONMENT", "local"),
		SentryDSN:   getEnv("SENTRY_DSN", ""),

		DocDefaultsPath: getEnv("DOC_DEFAULTS_PATH", ""),

		GatewayRequestTimeout: getDuration("GATEWAY_REQUEST_TIMEOUT", 30*time.Second),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
