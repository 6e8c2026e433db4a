package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	httpapi "github.com/i474232898/weather-query-service/internal/api/http"
	"github.com/i474232898/weather-query-service/internal/cache"
	"github.com/i474232898/weather-query-service/internal/config"
	"github.com/i474232898/weather-query-service/internal/llm"
	"github.com/i474232898/weather-query-service/internal/logging"
	"github.com/i474232898/weather-query-service/internal/query"
	"github.com/i474232898/weather-query-service/internal/ratelimit"
	"github.com/i474232898/weather-query-service/internal/scheduler"
	"github.com/i474232898/weather-query-service/internal/selector"
	"github.com/i474232898/weather-query-service/internal/weather"
	"github.com/i474232898/weather-query-service/internal/weather/providers"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zlog, err := logging.NewLogger(cfg.Debug)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zlog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	// Query parser, with the Gemini fallback when a key is configured.
	parserCfg := query.ParserConfig{
		FallbackTimeout: cfg.FallbackTimeout,
		MaxLength:       cfg.QueryMaxLength,
		MaxWordLength:   cfg.QueryMaxWordLength,
		Logger:          zlog,
	}
	if cfg.GeminiAPIKey != "" {
		gemini, err := llm.NewGeminiParser(ctx, llm.GeminiConfig{
			APIKey: cfg.GeminiAPIKey,
			Model:  cfg.GeminiModel,
			Logger: zlog,
		})
		if err != nil {
			zlog.Fatal("failed to build gemini fallback", zap.Error(err))
		}
		parserCfg.Fallback = gemini
	}
	parser := query.NewParser(parserCfg)

	// Endpoint registry. Endpoints whose provider has no key are dropped.
	keys := selector.ProviderKeys{
		OpenWeather: cfg.OpenWeatherAPIKey,
		WeatherAPI:  cfg.WeatherAPIKey,
		Google:      cfg.GoogleGeocoderAPIKey,
	}
	var registry *selector.Registry
	if cfg.RegistryPath != "" {
		registry, err = selector.LoadRegistry(cfg.RegistryPath, keys)
		if err != nil {
			zlog.Fatal("failed to load endpoint registry", zap.Error(err))
		}
	} else {
		registry = selector.DefaultRegistry(keys)
	}

	// Providers with resilience (backoff + circuit breaker). Open-Meteo
	// needs no key and also serves geocoding.
	openMeteo := providers.NewOpenMeteoProvider(httpClient)
	provs := []weather.Provider{openMeteo}
	geocoders := []weather.Geocoder{openMeteo}
	if cfg.WeatherAPIKey != "" {
		provs = append(provs, providers.NewWeatherAPIProvider(httpClient, cfg.WeatherAPIKey))
	}
	if cfg.OpenWeatherAPIKey != "" {
		provs = append(provs, providers.NewOpenWeatherProvider(httpClient, cfg.OpenWeatherAPIKey))
	}
	if cfg.GoogleGeocoderAPIKey != "" {
		geocoders = append(geocoders, providers.NewGoogleGeocoder(cfg.GoogleGeocoderAPIKey))
	}

	store := cache.New(cfg.CacheMaxEntries)
	limiter := ratelimit.New(cfg.RateLimit, cfg.RateWindow)

	// Core service orchestrating parsing, selection, fetching and caching.
	service, err := weather.NewService(weather.ServiceConfig{
		Parser:       parser,
		Registry:     registry,
		Cache:        store,
		TTL:          cfg.CacheTTL,
		Limiter:      limiter,
		Providers:    provs,
		Geocoders:    geocoders,
		DefaultUnits: weather.Units(cfg.DefaultUnits),
		Logger:       zlog,
	})
	if err != nil {
		zlog.Fatal("failed to build service", zap.Error(err))
	}

	// Scheduler that periodically sweeps expired cache entries.
	sched := scheduler.New(store, cfg.CacheSweepInterval, zlog)
	if err := sched.Start(); err != nil {
		zlog.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	// Basic app configuration. Handler time counts against WriteTimeout,
	// and a query may ride out upstream retries.
	app := fiber.New(fiber.Config{
		AppName:               "weather-query-service",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          60 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "weather-query-service",
		})
	})

	// API routes.
	httpapi.RegisterRoutes(app, service)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			zlog.Error("fiber server stopped", zap.Error(err))
		}
	}()
	zlog.Info("listening", zap.String("port", cfg.Port))

	// Wait for termination signal
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		zlog.Error("error during shutdown", zap.Error(err))
	}
}
