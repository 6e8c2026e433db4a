package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-query-service/internal/weather"
)

// OpenWeatherProvider fetches current conditions from OpenWeatherMap.
// Requires an API key.
type OpenWeatherProvider struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewOpenWeatherProvider(client *http.Client, apiKey string) *OpenWeatherProvider {
	const name = "openweather"
	return &OpenWeatherProvider{
		name:    name,
		apiKey:  apiKey,
		baseURL: "https://api.openweathermap.org/data/2.5/weather",
		httpCfg: defaultHTTPConfig(name, client),
		circuit: newBreaker(name),
	}
}

func (p *OpenWeatherProvider) Name() string {
	return p.name
}

func (p *OpenWeatherProvider) Current(ctx context.Context, loc weather.Location, opts weather.FetchOptions) (*weather.CurrentConditions, error) {
	if p.apiKey == "" {
		return nil, &weather.UpstreamError{
			Provider: p.name,
			Code:     weather.UpstreamUnauthorized,
			Err:      errMissingKey,
		}
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("appid", p.apiKey)
		values.Set("lat", formatCoord(loc.Lat))
		values.Set("lon", formatCoord(loc.Lon))
		values.Set("units", openWeatherUnits(opts.Units))
		if lang := openWeatherLang(opts.Language); lang != "" {
			values.Set("lang", lang)
		}
		return http.NewRequest(http.MethodGet, p.baseURL+"?"+values.Encode(), nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		Dt   int64 `json:"dt"`
		Main struct {
			Temp      float64 `json:"temp"`
			FeelsLike float64 `json:"feels_like"`
			Humidity  float64 `json:"humidity"`
			Pressure  float64 `json:"pressure"`
		} `json:"main"`
		Wind struct {
			Speed float64 `json:"speed"`
			Deg   float64 `json:"deg"`
		} `json:"wind"`
		Visibility float64 `json:"visibility"`
		Rain       struct {
			OneH   float64 `json:"1h"`
			ThreeH float64 `json:"3h"`
		} `json:"rain"`
		Weather []struct {
			Main string `json:"main"`
		} `json:"weather"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, decodeError(p.name, err)
	}

	ts := time.Unix(payload.Dt, 0).UTC()
	if payload.Dt == 0 {
		ts = time.Now().UTC()
	}

	precip := payload.Rain.OneH
	if precip == 0 {
		precip = payload.Rain.ThreeH
	}

	return &weather.CurrentConditions{
		Time:          ts,
		Temperature:   payload.Main.Temp,
		FeelsLike:     payload.Main.FeelsLike,
		Humidity:      payload.Main.Humidity,
		WindSpeed:     payload.Wind.Speed,
		WindDirection: payload.Wind.Deg,
		Pressure:      payload.Main.Pressure,
		Precipitation: precip,
		Visibility:    payload.Visibility,
		Condition:     mapOpenWeatherCondition(payload.Weather),
	}, nil
}

func openWeatherUnits(units weather.Units) string {
	if units == weather.UnitsImperial {
		return "imperial"
	}
	return "metric"
}

// openWeatherLang converts a BCP 47 tag to the underscore form the API
// expects, e.g. "zh-TW" to "zh_tw".
func openWeatherLang(lang string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(lang), "-", "_"))
}

func mapOpenWeatherCondition(items []struct {
	Main string `json:"main"`
}) weather.Condition {
	if len(items) == 0 {
		return weather.ConditionUnknown
	}
	switch items[0].Main {
	case "Clear":
		return weather.ConditionClear
	case "Clouds":
		return weather.ConditionCloudy
	case "Mist", "Fog", "Haze":
		return weather.ConditionMist
	case "Rain", "Drizzle":
		return weather.ConditionRain
	case "Snow":
		return weather.ConditionSnow
	case "Thunderstorm":
		return weather.ConditionStorm
	default:
		return weather.ConditionUnknown
	}
}
