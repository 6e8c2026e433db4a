package weather

import (
	"context"
	"time"
)

// Provider abstracts an upstream weather data source. Every provider serves
// current conditions; further capabilities are optional interfaces asserted
// at the call site.
type Provider interface {
	Name() string
	Current(ctx context.Context, loc Location, opts FetchOptions) (*CurrentConditions, error)
}

// ForecastProvider is implemented by providers that serve daily forecasts.
type ForecastProvider interface {
	Provider
	Forecast(ctx context.Context, loc Location, days int, opts FetchOptions) ([]DailyForecast, error)
}

// HourlyProvider is implemented by providers that serve hourly series.
type HourlyProvider interface {
	Provider
	Hourly(ctx context.Context, loc Location, hours int, opts FetchOptions) ([]HourlyConditions, error)
}

// HistoricalProvider is implemented by providers that serve observed days.
// From and to are inclusive dates.
type HistoricalProvider interface {
	Provider
	Historical(ctx context.Context, loc Location, from, to time.Time, opts FetchOptions) ([]DailyForecast, error)
}

// Geocoder resolves a free-text place name into candidate places, best
// match first. An empty slice means the name matched nothing.
type Geocoder interface {
	Name() string
	Geocode(ctx context.Context, name, language string) ([]Place, error)
}
