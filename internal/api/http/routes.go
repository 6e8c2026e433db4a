package httpapi

import (
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/weather-query-service/internal/query"
	"github.com/i474232898/weather-query-service/internal/weather"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *weather.Service) {
	v1 := app.Group("/api/v1")

	v1.Post("/query", func(c *fiber.Ctx) error {
		var req queryRequest
		if err := c.BodyParser(&req); err != nil {
			return respondError(c, fiber.StatusBadRequest, &weather.QueryError{
				Code:        weather.CodeValidation,
				Message:     "request body is not valid JSON",
				Suggestions: []string{`send {"text": "weather in Taipei"}`},
				Details:     err.Error(),
			})
		}
		if err := validate.Struct(req); err != nil {
			return respondError(c, fiber.StatusBadRequest, &weather.QueryError{
				Code:        weather.CodeValidation,
				Message:     "request validation failed",
				Suggestions: []string{"text is required; days 1-16; hours 1-48; units metric or imperial"},
				Details:     err.Error(),
			})
		}

		result, err := service.Query(c.Context(), req.Text, req.Context, req.Options.toOptions())
		if err != nil {
			return respondQueryError(c, err)
		}
		return c.JSON(result)
	})

	v1.Get("/endpoints", func(c *fiber.Ctx) error {
		intent := query.Intent(c.Query("intent", string(query.IntentCurrent)))
		if !intent.Valid() {
			return respondError(c, fiber.StatusBadRequest, &weather.QueryError{
				Code:        weather.CodeValidation,
				Message:     "unknown intent",
				Suggestions: []string{"use one of current, forecast, historical, advice, location_search"},
			})
		}
		return c.JSON(fiber.Map{
			"intent":    intent,
			"endpoints": service.Endpoints(intent),
		})
	})

	v1.Get("/cache/stats", func(c *fiber.Ctx) error {
		return c.JSON(service.CacheStats())
	})
}

// queryRequest is the POST /api/v1/query body.
type queryRequest struct {
	Text    string       `json:"text" validate:"required"`
	Context string       `json:"context"`
	Options queryOptions `json:"options"`
}

type queryOptions struct {
	Units         string `json:"units" validate:"omitempty,oneof=metric imperial"`
	Language      string `json:"language"`
	Days          int    `json:"days" validate:"omitempty,min=1,max=16"`
	Hours         int    `json:"hours" validate:"omitempty,min=1,max=48"`
	IncludeHourly bool   `json:"include_hourly"`
	IncludeDaily  bool   `json:"include_daily"`
}

func (o queryOptions) toOptions() weather.Options {
	return weather.Options{
		Units:         o.Units,
		Language:      o.Language,
		Days:          o.Days,
		Hours:         o.Hours,
		IncludeHourly: o.IncludeHourly,
		IncludeDaily:  o.IncludeDaily,
	}
}

// respondQueryError maps a service error onto the HTTP status taxonomy.
func respondQueryError(c *fiber.Ctx, err error) error {
	var qe *weather.QueryError
	if !errors.As(err, &qe) {
		return fiber.NewError(fiber.StatusInternalServerError, "internal error")
	}
	return respondError(c, statusFor(qe.Code), qe)
}

func respondError(c *fiber.Ctx, status int, qe *weather.QueryError) error {
	if qe.RetryAfter > 0 {
		secs := int(qe.RetryAfter.Round(time.Second) / time.Second)
		if secs < 1 {
			secs = 1
		}
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(secs))
	}
	return c.Status(status).JSON(fiber.Map{"error": qe})
}

func statusFor(code weather.ErrorCode) int {
	switch code {
	case weather.CodeValidation, weather.CodeLocationNotSpecified:
		return fiber.StatusBadRequest
	case weather.CodeLocationNotFound:
		return fiber.StatusNotFound
	case weather.CodeNoSuitableAPI:
		return fiber.StatusServiceUnavailable
	case weather.CodeRateLimitExceeded:
		return fiber.StatusTooManyRequests
	case weather.CodeUpstream:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}
