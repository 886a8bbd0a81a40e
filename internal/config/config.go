package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

// Config contains all runtime settings for the diary service.
type Config struct {
	BindAddr                 string        `yaml:"bind_addr" validate:"required"`
	ShutdownTimeout          time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
	SessionInactivityTimeout time.Duration `yaml:"session_inactivity_timeout"`
	MetricsNamespace         string        `yaml:"metrics_namespace" validate:"required"`
	AllowedOrigins           []string      `yaml:"allowed_origins"`
	AllowAnyOrigin           bool          `yaml:"allow_any_origin"`
	LogLevel                 string        `yaml:"log_level" validate:"oneof=debug info warn error"`

	Telegram TelegramLog `yaml:"telegram"`

	// LatencyTargets sets the p95 budget per stage shown by /v1/perf/latency.
	LatencyTargets map[string]time.Duration `yaml:"latency_targets" validate:"dive,gt=0"`

	MemoryWindow int `yaml:"memory_window" validate:"gte=1"`

	CompletionMode       string        `yaml:"completion_mode" validate:"oneof=auto openai anthropic http mock"`
	CompletionTimeout    time.Duration `yaml:"completion_timeout" validate:"gte=0"`
	CompletionMaxRetries int           `yaml:"completion_max_retries" validate:"gte=0,lte=5"`
	OpenAIAPIKey         string        `yaml:"openai_api_key"`
	OpenAIBaseURL        string        `yaml:"openai_base_url" validate:"omitempty,url"`
	OpenAIModel          string        `yaml:"openai_model"`
	AnthropicAPIKey      string        `yaml:"anthropic_api_key"`
	AnthropicBaseURL     string        `yaml:"anthropic_base_url" validate:"omitempty,url"`
	AnthropicModel       string        `yaml:"anthropic_model"`
	CompletionHTTPURL    string        `yaml:"completion_http_url" validate:"omitempty,url"`

	DatabaseURL     string        `yaml:"database_url"`
	SQLitePath      string        `yaml:"sqlite_path"`
	RedisURL        string        `yaml:"redis_url"`
	SummaryCacheTTL time.Duration `yaml:"summary_cache_ttl" validate:"gte=0"`
}

// TelegramLog forwards error logs to a Telegram chat when Token is set.
type TelegramLog struct {
	Token  string `yaml:"token"`
	ChatID string `yaml:"chat_id" validate:"required_with=Token"`
}

// Load applies safe defaults, then the optional YAML file named by
// APP_CONFIG_FILE, then environment variables.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:                 ":8080",
		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 30 * time.Minute,
		MetricsNamespace:         "audiodiary",
		// The web client runs on the Next.js dev server by default.
		AllowedOrigins:    []string{"http://localhost:3000"},
		LogLevel:          "info",
		MemoryWindow:      5,
		CompletionMode:    "auto",
		CompletionTimeout: 60 * time.Second,
		OpenAIModel:       "gpt-4",
		SummaryCacheTTL:   24 * time.Hour,
	}

	if path := stringsTrimSpace("APP_CONFIG_FILE"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	cfg.BindAddr = envOrDefault("APP_BIND_ADDR", cfg.BindAddr)
	cfg.MetricsNamespace = envOrDefault("APP_METRICS_NAMESPACE", cfg.MetricsNamespace)
	cfg.LogLevel = strings.ToLower(envOrDefault("APP_LOG_LEVEL", cfg.LogLevel))
	if v := stringsTrimSpace("APP_ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitList(v)
	}
	cfg.Telegram.Token = envOrDefault("LOG_TELEGRAM_TOKEN", cfg.Telegram.Token)
	cfg.Telegram.ChatID = envOrDefault("LOG_TELEGRAM_CHAT_ID", cfg.Telegram.ChatID)
	cfg.CompletionMode = strings.ToLower(envOrDefault("COMPLETION_MODE", cfg.CompletionMode))
	cfg.OpenAIAPIKey = envOrDefault("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.OpenAIBaseURL = envOrDefault("OPENAI_BASE_URL", cfg.OpenAIBaseURL)
	cfg.OpenAIModel = envOrDefault("OPENAI_MODEL", cfg.OpenAIModel)
	cfg.AnthropicAPIKey = envOrDefault("ANTHROPIC_API_KEY", cfg.AnthropicAPIKey)
	cfg.AnthropicBaseURL = envOrDefault("ANTHROPIC_BASE_URL", cfg.AnthropicBaseURL)
	cfg.AnthropicModel = envOrDefault("ANTHROPIC_MODEL", cfg.AnthropicModel)
	cfg.CompletionHTTPURL = envOrDefault("COMPLETION_HTTP_URL", cfg.CompletionHTTPURL)
	cfg.DatabaseURL = envOrDefault("DATABASE_URL", cfg.DatabaseURL)
	cfg.SQLitePath = envOrDefault("DIARY_SQLITE_PATH", cfg.SQLitePath)
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.CompletionTimeout, err = durationFromEnv("COMPLETION_TIMEOUT", cfg.CompletionTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SummaryCacheTTL, err = durationFromEnv("SUMMARY_CACHE_TTL", cfg.SummaryCacheTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.MemoryWindow, err = intFromEnv("CHAT_MEMORY_WINDOW", cfg.MemoryWindow)
	if err != nil {
		return Config{}, err
	}
	cfg.CompletionMaxRetries, err = intFromEnv("COMPLETION_MAX_RETRIES", cfg.CompletionMaxRetries)
	if err != nil {
		return Config{}, err
	}
	cfg.LatencyTargets, err = durationMapFromEnv("APP_LATENCY_TARGETS", cfg.LatencyTargets)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return oops.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return oops.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

func validate(cfg Config) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(cfg); err != nil {
		return oops.Errorf("failed to validate config: %w", err)
	}
	if cfg.SessionInactivityTimeout < 5*time.Second {
		return fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.CompletionMode == "openai" && cfg.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when COMPLETION_MODE=openai")
	}
	if cfg.CompletionMode == "anthropic" && cfg.AnthropicAPIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required when COMPLETION_MODE=anthropic")
	}
	if cfg.CompletionMode == "http" && cfg.CompletionHTTPURL == "" {
		return fmt.Errorf("COMPLETION_HTTP_URL is required when COMPLETION_MODE=http")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

// durationMapFromEnv parses "stage=duration" pairs separated by commas and
// merges them over fallback.
func durationMapFromEnv(key string, fallback map[string]time.Duration) (map[string]time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	out := make(map[string]time.Duration, len(fallback))
	for k, d := range fallback {
		out[k] = d
	}
	for _, pair := range splitList(v) {
		name, raw, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("%s parse error: expected stage=duration, got %q", key, pair)
		}
		d, err := time.ParseDuration(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("%s parse error: %w", key, err)
		}
		out[name] = d
	}
	return out, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
