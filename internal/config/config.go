package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/i474232898/weather-query-service/internal/cache"
)

type AppConfig struct {
	Port  string
	Debug bool

	// Per-request budget for upstream HTTP calls.
	HTTPTimeout time.Duration

	// Upstream credentials. A missing key disables that provider; the
	// keyless Open-Meteo endpoints are always available.
	OpenWeatherAPIKey    string
	WeatherAPIKey        string
	GoogleGeocoderAPIKey string

	// LLM fallback for query parsing. An empty GeminiAPIKey runs the
	// service on rules alone.
	GeminiAPIKey    string
	GeminiModel     string
	FallbackTimeout time.Duration

	// Query validation limits.
	QueryMaxLength     int
	QueryMaxWordLength int

	// Cache sizing and per-class retention.
	CacheMaxEntries    int
	CacheSweepInterval time.Duration
	CacheTTL           cache.TTLPolicy

	// Upstream budget: RateLimit calls per RateWindow.
	RateLimit  int
	RateWindow time.Duration

	// RegistryPath points at a YAML endpoint registry. Empty uses the
	// built-in registry.
	RegistryPath string

	DefaultUnits string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}

	cfg.Port = getenvDefault("PORT", "8080")
	cfg.Debug = getenvBool("DEBUG", false)

	cfg.OpenWeatherAPIKey = os.Getenv("OPENWEATHER_API_KEY")
	cfg.WeatherAPIKey = os.Getenv("WEATHERAPI_API_KEY")
	cfg.GoogleGeocoderAPIKey = os.Getenv("GOOGLE_GEOCODER_API_KEY")

	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	cfg.GeminiModel = getenvDefault("GEMINI_MODEL", "gemini-2.0-flash")

	var err error
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", "10s"); err != nil {
		return nil, err
	}
	if cfg.FallbackTimeout, err = getenvDuration("FALLBACK_TIMEOUT", "2s"); err != nil {
		return nil, err
	}

	cfg.QueryMaxLength = getenvInt("QUERY_MAX_LENGTH", 500)
	cfg.QueryMaxWordLength = getenvInt("QUERY_MAX_WORD_LENGTH", 100)

	cfg.CacheMaxEntries = getenvInt("CACHE_MAX_ENTRIES", 1000)
	if cfg.CacheSweepInterval, err = getenvDuration("CACHE_SWEEP_INTERVAL", "1m"); err != nil {
		return nil, err
	}
	if cfg.CacheTTL.Current, err = getenvDuration("CACHE_TTL_CURRENT", "5m"); err != nil {
		return nil, err
	}
	if cfg.CacheTTL.Forecast, err = getenvDuration("CACHE_TTL_FORECAST", "30m"); err != nil {
		return nil, err
	}
	if cfg.CacheTTL.Historical, err = getenvDuration("CACHE_TTL_HISTORICAL", "24h"); err != nil {
		return nil, err
	}
	if cfg.CacheTTL.Location, err = getenvDuration("CACHE_TTL_LOCATION", "168h"); err != nil {
		return nil, err
	}

	cfg.RateLimit = getenvInt("RATE_LIMIT", 60)
	if cfg.RateWindow, err = getenvDuration("RATE_WINDOW", "1m"); err != nil {
		return nil, err
	}

	cfg.RegistryPath = os.Getenv("REGISTRY_PATH")
	cfg.DefaultUnits = getenvDefault("DEFAULT_UNITS", "metric")

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
