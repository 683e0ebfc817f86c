// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Groq defaults apply when only GROQ_API_KEY is set.
const (
	GroqBaseURL = "https://api.groq.com/openai/v1"
	GroqModel   = "llama3-70b-8192"
)

// Config holds all application configuration.
type Config struct {
	Port           string
	FrontendURL    string
	DBDSN          string
	LogLevel       slog.Level
	AllowedOrigins []string
	PromptsFile    string

	LLM      LLMConfig
	Image    ImageConfig
	Facebook FacebookConfig
	Session  SessionConfig
}

// LLMConfig configures the text completion endpoint.
type LLMConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// ImageConfig configures image generation and storage.
type ImageConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Dir     string
	TTL     time.Duration
}

// FacebookConfig holds Graph API and token encryption settings.
type FacebookConfig struct {
	AppID         string
	AppSecret     string
	RedirectURI   string
	PageID        string
	PageToken     string
	EncryptionKey string
	// FallbackKeys are previous encryption keys accepted for decryption.
	FallbackKeys []string
}

// SessionConfig controls live session behaviour.
type SessionConfig struct {
	InboxSize int
	RedisURL  string
	LockTTL   time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	frontend := getEnv("FRONTEND_URL", "")
	defaultOrigins := "http://localhost:5173"
	if frontend != "" {
		defaultOrigins = frontend
	}

	cfg := &Config{
		Port:           getEnv("PORT", "8000"),
		FrontendURL:    frontend,
		DBDSN:          getEnv("DB_DSN", "./data/estatepost.db"),
		LogLevel:       getEnvLevel("LOG_LEVEL", slog.LevelInfo),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", defaultOrigins),
		PromptsFile:    getEnv("PROMPTS_FILE", ""),
		LLM: LLMConfig{
			APIKey:      getEnv("LLM_API_KEY", ""),
			BaseURL:     getEnv("LLM_BASE_URL", ""),
			Model:       getEnv("LLM_MODEL", ""),
			Temperature: getEnvFloat("LLM_TEMPERATURE", 0.4),
			Timeout:     getEnvDuration("LLM_TIMEOUT", 60*time.Second),
		},
		Image: ImageConfig{
			APIKey:  getEnv("IMAGE_API_KEY", ""),
			BaseURL: getEnv("IMAGE_BASE_URL", ""),
			Model:   getEnv("IMAGE_MODEL", ""),
			Dir:     getEnv("IMAGE_DIR", "generated_images"),
			TTL:     getEnvDuration("IMAGE_TTL", 24*time.Hour),
		},
		Facebook: FacebookConfig{
			AppID:         getEnv("FB_APP_ID", ""),
			AppSecret:     getEnv("FB_APP_SECRET", ""),
			RedirectURI:   getEnv("FB_REDIRECT_URI", ""),
			PageID:        getEnv("FB_PAGE_ID", ""),
			PageToken:     getEnv("FB_PAGE_ACCESS_TOKEN", ""),
			EncryptionKey: getEnv("ENCRYPTION_KEY", ""),
			FallbackKeys:  getEnvList("ENCRYPTION_KEY_FALLBACKS", ""),
		},
		Session: SessionConfig{
			InboxSize: getEnvInt("SESSION_INBOX_SIZE", 8),
			RedisURL:  getEnv("REDIS_URL", ""),
			LockTTL:   getEnvDuration("SESSION_LOCK_TTL", 5*time.Minute),
		},
	}

	// Groq keys and endpoint are used when no generic LLM key is given.
	if cfg.LLM.APIKey == "" {
		if groq := getEnv("GROQ_API_KEY", ""); groq != "" {
			cfg.LLM.APIKey = groq
			if cfg.LLM.BaseURL == "" {
				cfg.LLM.BaseURL = GroqBaseURL
			}
			if cfg.LLM.Model == "" {
				cfg.LLM.Model = GroqModel
			}
		} else {
			cfg.LLM.APIKey = getEnv("OPENAI_API_KEY", "")
		}
	}
	if cfg.Image.APIKey == "" {
		cfg.Image.APIKey = getEnv("OPENAI_API_KEY", "")
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
	if c.DBDSN == "" {
		return fmt.Errorf("DB_DSN cannot be empty")
	}
	if c.Image.Dir == "" {
		return fmt.Errorf("IMAGE_DIR cannot be empty")
	}
	if c.Session.InboxSize <= 0 {
		return fmt.Errorf("SESSION_INBOX_SIZE must be > 0")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("LLM_TEMPERATURE must be between 0 and 2")
	}
	if c.Session.LockTTL <= 0 {
		return fmt.Errorf("SESSION_LOCK_TTL must be > 0")
	}
	return nil
}

// OAuthEnabled reports whether the agent OAuth endpoints can be served.
func (c *Config) OAuthEnabled() bool {
	return c.Facebook.AppID != "" && c.Facebook.AppSecret != "" && c.Facebook.EncryptionKey != ""
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	if env := os.Getenv("APP_ENV"); env != "" {
		return env == "development"
	}
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
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

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
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

func getEnvLevel(key string, fallback slog.Level) slog.Level {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return fallback
	}
	return level
}

// getEnvList splits a comma-separated value, dropping blanks.
func getEnvList(key, fallback string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, fallback), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
