package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Config struct {
	BackendURL    string
	StateDir      string
	StoreBackend  string
	RedisURL      string
	DatabaseURL   string
	NatsURL       string
	NatsToken     string
	LogLevel      string
	Port          int
	APIToken      string
	CatalogPath   string
	FrameInterval int
	DefaultJob    string
	SessionTTL    time.Duration
	PageSize      int
	HTTPTimeout   time.Duration
	CaptureCmd    string
}

func Load() Config {
	return Config{
		BackendURL:    envStr("REHEARSE_BACKEND_URL", "http://localhost:8000"),
		StateDir:      expandHome(envStr("REHEARSE_STATE_DIR", "~/.rehearse")),
		StoreBackend:  envStr("REHEARSE_STORE", "file"),
		RedisURL:      envStr("REDIS_URL", ""),
		DatabaseURL:   envStr("DATABASE_URL", ""),
		NatsURL:       envStr("NATS_URL", ""),
		NatsToken:     envStr("NATS_TOKEN", ""),
		LogLevel:      envStr("LOG_LEVEL", "info"),
		Port:          envInt("REHEARSE_PORT", 8760),
		APIToken:      envStr("REHEARSE_API_TOKEN", ""),
		CatalogPath:   envStr("REHEARSE_CATALOG", ""),
		FrameInterval: envInt("REHEARSE_FRAME_INTERVAL", 8),
		DefaultJob:    envStr("REHEARSE_DEFAULT_JOB", "python_engineer"),
		SessionTTL:    envDuration("REHEARSE_SESSION_TTL", time.Hour),
		PageSize:      envInt("REHEARSE_PAGE_SIZE", 5),
		HTTPTimeout:   envDuration("REHEARSE_HTTP_TIMEOUT", 0),
		CaptureCmd:    envStr("REHEARSE_CAPTURE_CMD", "ffmpeg"),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func expandHome(path string) string {
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
