// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/nutribot/internal/domain"
	"github.com/ashureev/nutribot/internal/voice"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string
	LogLevel    slog.Level
	Backend     BackendConfig
	Session     SessionConfig
	Voice       VoiceConfig
}

// BackendConfig controls the assistant backend client.
type BackendConfig struct {
	URL           string
	Timeout       time.Duration
	RateLimit     float64 // requests per second, 0 = unlimited
	RateBurst     int
	FoodCacheSize int
	FoodCacheTTL  time.Duration
}

// SessionConfig controls session defaults and sampling.
type SessionConfig struct {
	DefaultPrepTime int
	SensorInterval  time.Duration
	AutoSample      bool
}

// VoiceConfig controls speech capture.
type VoiceConfig struct {
	Enabled  bool
	Language string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/nutribot.db"),
		LogLevel:    parseLevel(getEnv("LOG_LEVEL", "info")),
		Backend: BackendConfig{
			URL:           getEnv("BACKEND_URL", "http://localhost:8000"),
			Timeout:       getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
			RateLimit:     getEnvFloat("BACKEND_RATE_LIMIT", 5),
			RateBurst:     getEnvInt("BACKEND_RATE_BURST", 5),
			FoodCacheSize: getEnvInt("FOOD_CACHE_SIZE", 128),
			FoodCacheTTL:  getEnvDuration("FOOD_CACHE_TTL", 10*time.Minute),
		},
		Session: SessionConfig{
			DefaultPrepTime: getEnvInt("DEFAULT_PREP_TIME", domain.DefaultPrepTime),
			SensorInterval:  getEnvDuration("SENSOR_INTERVAL", 5*time.Second),
			AutoSample:      getEnvBool("AUTO_SAMPLE", false),
		},
		Voice: VoiceConfig{
			Enabled:  getEnvBool("VOICE_ENABLED", true),
			Language: getEnv("VOICE_LANGUAGE", voice.DefaultLanguage),
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
	u, err := url.Parse(c.Backend.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("BACKEND_URL must be an absolute URL, got %q", c.Backend.URL)
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be > 0")
	}
	if c.Backend.RateLimit < 0 {
		return fmt.Errorf("BACKEND_RATE_LIMIT must be >= 0")
	}
	if c.Backend.RateLimit > 0 && c.Backend.RateBurst <= 0 {
		return fmt.Errorf("BACKEND_RATE_BURST must be > 0 when rate limiting")
	}
	if c.Backend.FoodCacheSize <= 0 {
		return fmt.Errorf("FOOD_CACHE_SIZE must be > 0")
	}
	if c.Session.DefaultPrepTime <= 0 {
		return fmt.Errorf("DEFAULT_PREP_TIME must be > 0")
	}
	if c.Session.SensorInterval <= 0 {
		return fmt.Errorf("SENSOR_INTERVAL must be > 0")
	}
	if c.Voice.Language == "" {
		return fmt.Errorf("VOICE_LANGUAGE cannot be empty")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the origins permitted to reach the local API.
func (c *Config) AllowedOrigins() []string {
	if c.IsDevelopment() {
		return []string{"*"}
	}
	return []string{c.FrontendURL}
}

// OriginPatterns returns host patterns for WebSocket origin checks.
func (c *Config) OriginPatterns() []string {
	if c.IsDevelopment() {
		return []string{"*"}
	}
	u, err := url.Parse(c.FrontendURL)
	if err != nil || u.Host == "" {
		return []string{c.FrontendURL}
	}
	return []string{u.Host}
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return level
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
