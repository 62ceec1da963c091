// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port          string
	AllowedOrigin string
	DBPath        string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SessionTTL    time.Duration

	AuthURL string

	OpenAI OpenAIConfig
	Yandex YandexConfig

	Dialog DialogConfig
}

// OpenAIConfig configures the conversational engine adapter.
type OpenAIConfig struct {
	APIKey              string
	OnboardingAssistant string
	SurveyAssistant     string
	PollInterval        time.Duration
	RunTimeout          time.Duration
}

// YandexConfig configures the speech and translation adapter.
type YandexConfig struct {
	OAuthToken string
	FolderID   string
}

// DialogConfig carries orchestrator behavior flags.
type DialogConfig struct {
	// SynthesizeReplies stores an audio rendering alongside every bot reply.
	SynthesizeReplies bool
	// DuplicateAudioReply persists an extra audio-bearing reply when the
	// inbound message was audio.
	DuplicateAudioReply bool
	// LockWait bounds how long a turn waits for the per-user lease.
	LockWait time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		AllowedOrigin: getEnv("ALLOWED_ORIGIN", ""),
		DBPath:        getEnv("DB_PATH", "./data/emguide.db"),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		SessionTTL:    getEnvDuration("SESSION_TTL", 24*time.Hour),
		AuthURL:       getEnv("AUTH_URL", "https://backoffice.daribar.com/api/v1/users"),
		OpenAI: OpenAIConfig{
			APIKey:              getEnv("OPENAI_API_KEY", ""),
			OnboardingAssistant: getEnv("ASSISTANT2_ID", ""),
			SurveyAssistant:     getEnv("ASSISTANT_ID", ""),
			PollInterval:        getEnvDuration("OPENAI_POLL_INTERVAL", time.Second),
			RunTimeout:          getEnvDuration("OPENAI_RUN_TIMEOUT", 90*time.Second),
		},
		Yandex: YandexConfig{
			OAuthToken: getEnv("YANDEX_OAUTH_TOKEN", ""),
			FolderID:   getEnv("YANDEX_FOLDER_ID", ""),
		},
		Dialog: DialogConfig{
			SynthesizeReplies:   getEnvBool("DIALOG_SYNTHESIZE_REPLIES", true),
			DuplicateAudioReply: getEnvBool("DIALOG_DUPLICATE_AUDIO_REPLY", true),
			LockWait:            getEnvDuration("DIALOG_LOCK_WAIT", 10*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	if c.OpenAI.PollInterval <= 0 {
		return fmt.Errorf("OPENAI_POLL_INTERVAL must be > 0")
	}
	if c.OpenAI.RunTimeout <= 0 {
		return fmt.Errorf("OPENAI_RUN_TIMEOUT must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AllowedOrigin == "" ||
		strings.Contains(c.AllowedOrigin, "localhost") ||
		strings.Contains(c.AllowedOrigin, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
