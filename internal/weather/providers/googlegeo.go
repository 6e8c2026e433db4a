package providers

import (
	"context"
	"strings"

	"github.com/kelvins/geocoder"

	"github.com/i474232898/weather-query-service/internal/weather"
)

// GoogleGeocoder resolves place names through the Google Maps geocoding API
// using the kelvins/geocoder package. That package keeps its API key in a
// package-level variable, so one GoogleGeocoder per process.
type GoogleGeocoder struct {
	name string
}

func NewGoogleGeocoder(apiKey string) *GoogleGeocoder {
	geocoder.ApiKey = apiKey
	return &GoogleGeocoder{name: "google"}
}

func (g *GoogleGeocoder) Name() string {
	return g.name
}

// Geocode resolves one place name. The underlying client has no context
// support; cancellation abandons the in-flight call. Google reports
// zero matches as a status error, which is a successful empty answer here.
// The language hint is not supported by the client and is ignored.
func (g *GoogleGeocoder) Geocode(ctx context.Context, name, _ string) ([]weather.Place, error) {
	type answer struct {
		loc geocoder.Location
		err error
	}
	ch := make(chan answer, 1)
	go func() {
		loc, err := geocoder.Geocoding(geocoder.Address{City: name})
		ch <- answer{loc: loc, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case a := <-ch:
		if a.err != nil {
			if isNoMatch(a.err) {
				return []weather.Place{}, nil
			}
			return nil, g.mapError(a.err)
		}
		return []weather.Place{{
			Name: name,
			Lat:  a.loc.Latitude,
			Lon:  a.loc.Longitude,
		}}, nil
	}
}

func isNoMatch(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "zero_results") || strings.Contains(msg, "no results")
}

func (g *GoogleGeocoder) mapError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "request_denied") || strings.Contains(msg, "invalid key"):
		return &weather.UpstreamError{Provider: g.name, Code: weather.UpstreamUnauthorized, Err: err}
	case strings.Contains(msg, "over_query_limit") || strings.Contains(msg, "over_daily_limit"):
		return &weather.UpstreamError{Provider: g.name, Code: weather.UpstreamQuota, Err: err}
	default:
		return &weather.UpstreamError{Provider: g.name, Code: weather.UpstreamServerError, Retryable: true, Err: err}
	}
}
