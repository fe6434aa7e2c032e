package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/subosito/gotenv"
)

const (
	ArchiveNone  = "none"
	ArchiveFile  = "file"
	ArchiveRedis = "redis"
)

// Config holds every runtime setting of the chat server.
type Config struct {
	Addr string

	// Gemini
	GeminiAPIKey     string
	GeminiModel      string
	GeminiAPIVersion string
	GeminiBaseURL    string

	// Auth
	JWTSecret string
	JWTExpiry time.Duration
	APIKey    string
	APISecret string

	// Limits
	RateLimit     float64
	MaxConcurrent int
	BodyLimit     string

	// Sessions with no turn for SessionIdleTTL are evicted. Zero keeps them.
	SessionIdleTTL time.Duration

	// Transcript archive
	Archive    string
	ArchiveDir string
	RedisAddr  string
	RedisTTL   time.Duration

	// Voice
	VoiceEnabled  bool
	VoiceLanguage string

	Debug bool
}

// Load reads the given env files (.env when none, skipped when missing) and
// the environment. Variables already set win over the files.
func Load(filenames ...string) (Config, error) {
	_ = gotenv.Load(filenames...)
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() (Config, error) {
	cfg := Config{
		Addr:             getEnv("ADDR", ":8080"),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		GeminiModel:      getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		GeminiAPIVersion: getEnv("GEMINI_API_VERSION", "v1beta"),
		GeminiBaseURL:    os.Getenv("GEMINI_BASE_URL"),
		JWTSecret:        getEnv("JWT_SECRET", "change-me-in-production"),
		APIKey:           getEnv("API_KEY", "John"),
		APISecret:        getEnv("API_SECRET", "Doe"),
		BodyLimit:        getEnv("BODY_LIMIT", "10MB"),
		Archive:          strings.ToLower(getEnv("ARCHIVE", ArchiveNone)),
		ArchiveDir:       getEnv("ARCHIVE_DIR", "transcripts"),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		VoiceEnabled:     getEnv("VOICE_ENABLED", "false") == "true",
		VoiceLanguage:    getEnv("VOICE_LANGUAGE", "en-US"),
		Debug:            getEnv("DEBUG", "false") == "true",
	}

	var err error
	if cfg.JWTExpiry, err = time.ParseDuration(getEnv("JWT_EXPIRY", "24h")); err != nil {
		return Config{}, fmt.Errorf("parsing JWT_EXPIRY: %w", err)
	}
	if cfg.RedisTTL, err = time.ParseDuration(getEnv("REDIS_TTL", "0s")); err != nil {
		return Config{}, fmt.Errorf("parsing REDIS_TTL: %w", err)
	}
	if cfg.SessionIdleTTL, err = time.ParseDuration(getEnv("SESSION_IDLE_TTL", "30m")); err != nil {
		return Config{}, fmt.Errorf("parsing SESSION_IDLE_TTL: %w", err)
	}
	if cfg.RateLimit, err = strconv.ParseFloat(getEnv("RATE_LIMIT", "20"), 64); err != nil {
		return Config{}, fmt.Errorf("parsing RATE_LIMIT: %w", err)
	}
	if cfg.MaxConcurrent, err = strconv.Atoi(getEnv("MAX_CONCURRENT", "10")); err != nil {
		return Config{}, fmt.Errorf("parsing MAX_CONCURRENT: %w", err)
	}

	switch cfg.Archive {
	case ArchiveNone, ArchiveFile, ArchiveRedis:
	default:
		return Config{}, fmt.Errorf("unknown ARCHIVE %q", cfg.Archive)
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
