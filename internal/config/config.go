package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	ListenAddr  string

	OTLPEndpoint string

	// Google Solar / Geocoding (tier 1, instant estimates)
	GoogleAPIKey     string
	GoogleTimeout    time.Duration
	EstimateCacheTTL time.Duration // 0 = cached estimates never expire

	// EagleView (tier 2, verified reports — real money)
	EagleViewMode         string // disabled | mock | live
	EagleViewClientID     string
	EagleViewClientSecret string
	EagleViewBaseURL      string
	EagleViewAuthURL      string
	EagleViewDailyLimit   int

	// Reconciler
	ReconcileInterval time.Duration
	OrderTimeout      time.Duration

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
}

// EagleView provider modes. Mock is the default so a fresh checkout can
// never place a paid order by accident.
const (
	ModeDisabled = "disabled"
	ModeMock     = "mock"
	ModeLive     = "live"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "rooflens"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		ListenAddr:  getenv("LISTEN_ADDR", ":8080"),

		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		GoogleAPIKey:     strings.TrimSpace(getenv("GOOGLE_API_KEY", "")),
		GoogleTimeout:    getenvDuration("GOOGLE_TIMEOUT", 30*time.Second),
		EstimateCacheTTL: getenvDuration("ESTIMATE_CACHE_TTL", 0),

		EagleViewMode:         normalizeMode(getenv("EAGLEVIEW_MODE", ModeMock)),
		EagleViewClientID:     strings.TrimSpace(getenv("EAGLEVIEW_CLIENT_ID", "")),
		EagleViewClientSecret: strings.TrimSpace(getenv("EAGLEVIEW_CLIENT_SECRET", "")),
		EagleViewBaseURL:      getenv("EAGLEVIEW_BASE_URL", "https://api.eagleview.com"),
		EagleViewAuthURL:      getenv("EAGLEVIEW_AUTH_URL", "https://apicenter.eagleview.com/oauth2/v1/token"),
		EagleViewDailyLimit:   getenvInt("EAGLEVIEW_DAILY_ORDER_LIMIT", 5),

		ReconcileInterval: getenvDuration("RECONCILE_INTERVAL", 30*time.Minute),
		OrderTimeout:      getenvDuration("ORDER_TIMEOUT", 72*time.Hour),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "rooflens"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 600),
	}

	return cfg
}

func (c Config) IsLive() bool     { return c.EagleViewMode == ModeLive }
func (c Config) IsMock() bool     { return c.EagleViewMode == ModeMock }
func (c Config) IsDisabled() bool { return c.EagleViewMode == ModeDisabled }

func (c Config) GoogleConfigured() bool { return c.GoogleAPIKey != "" }

func normalizeMode(raw string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case ModeLive:
		return ModeLive
	case ModeDisabled:
		return ModeDisabled
	case ModeMock:
		return ModeMock
	default:
		return ModeMock
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	// Bare numbers are seconds, matching the original deployment envs.
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}
