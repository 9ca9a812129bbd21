package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries every runtime setting of the admin gateway. Values come from
// the environment; a local .env file is honored when present.
type Config struct {
	HTTP     HTTPConfig
	Upstream UpstreamConfig
	Session  SessionConfig
	Rate     RateConfig
}

type HTTPConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// UpstreamConfig points the gateway at the ReportMitra backend.
type UpstreamConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
}

type SessionConfig struct {
	// Secret signs the session cookie JWTs. Mandatory.
	Secret       string
	TTL          time.Duration
	CookieName   string
	CookieSecure bool
	// PostgresDSN, when set, persists sessions across gateway restarts.
	PostgresDSN string
}

type RateConfig struct {
	Burst  int
	PerSec int
}

// Load reads configuration from the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		HTTP: HTTPConfig{
			Addr:            getEnv("RM_ADDR", ":8080"),
			ReadTimeout:     time.Duration(getEnvInt("RM_HTTP_READ_TIMEOUT_SEC", 15)) * time.Second,
			WriteTimeout:    time.Duration(getEnvInt("RM_HTTP_WRITE_TIMEOUT_SEC", 30)) * time.Second,
			IdleTimeout:     time.Duration(getEnvInt("RM_HTTP_IDLE_TIMEOUT_SEC", 60)) * time.Second,
			ShutdownTimeout: time.Duration(getEnvInt("RM_HTTP_SHUTDOWN_TIMEOUT_SEC", 10)) * time.Second,
		},
		Upstream: UpstreamConfig{
			BaseURL:        getEnv("RM_UPSTREAM_URL", "http://localhost:8000"),
			RequestTimeout: time.Duration(getEnvInt("RM_UPSTREAM_TIMEOUT_SEC", 30)) * time.Second,
		},
		Session: SessionConfig{
			Secret:       os.Getenv("RM_SESSION_SECRET"),
			TTL:          time.Duration(getEnvInt("RM_SESSION_TTL_SEC", 43200)) * time.Second,
			CookieName:   getEnv("RM_SESSION_COOKIE", "rm_session"),
			CookieSecure: getEnvBool("RM_SESSION_COOKIE_SECURE", false),
			PostgresDSN:  os.Getenv("RM_PG_DSN"),
		},
		Rate: RateConfig{
			Burst:  getEnvInt("RM_RATE_BURST", 20),
			PerSec: getEnvInt("RM_RATE_PER_SEC", 10),
		},
	}

	if cfg.Session.Secret == "" {
		return Config{}, fmt.Errorf("RM_SESSION_SECRET is required")
	}
	if cfg.Session.TTL <= 0 {
		return Config{}, fmt.Errorf("RM_SESSION_TTL_SEC must be > 0")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return b
}
