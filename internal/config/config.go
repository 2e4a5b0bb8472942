package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Default endpoints and models for each provider. Base URLs are overridable
// via environment so requests can be pointed at proxies or compatible APIs.
const (
	DefaultOpenAIBaseURL    = "https://api.openai.com/v1"
	DefaultOpenAIModel      = "gpt-4o-mini"
	DefaultAnthropicBaseURL = "https://api.anthropic.com"
	DefaultAnthropicModel   = "claude-3-5-sonnet-20241022"
	DefaultGeminiModel      = "gemini-1.5-flash"
)

// Config holds all process-wide settings. It is constructed once at startup
// and treated as read-only afterwards; provider credentials are checked in
// one place (provider construction) rather than scattered through handlers.
type Config struct {
	Host               string
	Port               string
	RequestTimeout     time.Duration
	MaxRequestBodySize int64
	UploadTempDir      string

	// Optional static API key for inbound requests. Empty disables the check.
	ServiceAPIKey string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	AnthropicAPIKey    string
	AnthropicBaseURL   string
	AnthropicModel     string
	AnthropicMaxTokens int

	GeminiAPIKey string
	// Empty means the native generativelanguage.googleapis.com endpoint,
	// which authenticates with the key as a query parameter. A custom base
	// URL switches authentication to a Bearer header.
	GeminiBaseURL string
	GeminiModel   string
}

func (c *Config) ServerAddress() string {
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Host:               getEnvOrDefault("HOST", "0.0.0.0"),
		Port:               getEnvOrDefault("PORT", "8080"),
		RequestTimeout:     parseDurationOrDefault("REQUEST_TIMEOUT", 60*time.Second),
		MaxRequestBodySize: parseIntOrDefault("MAX_REQUEST_BODY_SIZE", 10*1024*1024), // 10MB
		UploadTempDir:      getEnvOrDefault("UPLOAD_TEMP_DIR", filepath.Join(os.TempDir(), "crop-uploads")),

		ServiceAPIKey: os.Getenv("SERVICE_API_KEY"),

		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL: getEnvOrDefault("OPENAI_BASE_URL", DefaultOpenAIBaseURL),
		OpenAIModel:   getEnvOrDefault("OPENAI_MODEL", DefaultOpenAIModel),

		AnthropicAPIKey:    os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicBaseURL:   getEnvOrDefault("ANTHROPIC_BASE_URL", DefaultAnthropicBaseURL),
		AnthropicModel:     getEnvOrDefault("ANTHROPIC_MODEL", DefaultAnthropicModel),
		AnthropicMaxTokens: int(parseIntOrDefault("ANTHROPIC_MAX_TOKENS", 1024)),

		GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),
		GeminiBaseURL: os.Getenv("GEMINI_BASE_URL"),
		GeminiModel:   getEnvOrDefault("GEMINI_MODEL", DefaultGeminiModel),
	}

	// Validate port is numeric and in range
	p, err := strconv.Atoi(strings.TrimSpace(cfg.Port))
	if err != nil || p < 1 || p > 65535 {
		return nil, fmt.Errorf("invalid PORT: %q", cfg.Port)
	}
	if cfg.MaxRequestBodySize <= 0 {
		return nil, fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0 (got %d)", cfg.MaxRequestBodySize)
	}
	if cfg.RequestTimeout <= 0 {
		return nil, fmt.Errorf("REQUEST_TIMEOUT must be > 0 (got %s)", cfg.RequestTimeout)
	}
	if cfg.AnthropicMaxTokens <= 0 {
		return nil, fmt.Errorf("ANTHROPIC_MAX_TOKENS must be > 0 (got %d)", cfg.AnthropicMaxTokens)
	}
	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && duration > 0 {
			return duration
		}
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}
