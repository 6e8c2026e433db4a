package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-query-service/internal/common"
	"github.com/i474232898/weather-query-service/internal/weather"
)

// WeatherAPIProvider talks to WeatherAPI.com: current.json for conditions,
// forecast.json for daily and hourly data, history.json for past days.
// Requires an API key. The API reports both metric and imperial values in
// every response; the requested units pick which side is read.
type WeatherAPIProvider struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewWeatherAPIProvider(client *http.Client, apiKey string) *WeatherAPIProvider {
	const name = "weatherapi"
	return &WeatherAPIProvider{
		name:    name,
		apiKey:  apiKey,
		baseURL: "https://api.weatherapi.com/v1",
		httpCfg: defaultHTTPConfig(name, client),
		circuit: newBreaker(name),
	}
}

func (p *WeatherAPIProvider) Name() string {
	return p.name
}

func (p *WeatherAPIProvider) Current(ctx context.Context, loc weather.Location, opts weather.FetchOptions) (*weather.CurrentConditions, error) {
	values, err := p.baseValues(loc, opts)
	if err != nil {
		return nil, err
	}

	resp, err := p.get(ctx, "/current.json", values)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		Current weatherAPICurrent `json:"current"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, decodeError(p.name, err)
	}
	cur := payload.Current.conditions(opts.Units)
	return &cur, nil
}

func (p *WeatherAPIProvider) Forecast(ctx context.Context, loc weather.Location, days int, opts weather.FetchOptions) ([]weather.DailyForecast, error) {
	if days < 1 {
		days = 1
	}
	// WeatherAPI caps forecast.json at 14 days.
	if days > 14 {
		days = 14
	}
	values, err := p.baseValues(loc, opts)
	if err != nil {
		return nil, err
	}
	values.Set("days", strconv.Itoa(days))

	resp, err := p.get(ctx, "/forecast.json", values)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		Forecast struct {
			ForecastDay []weatherAPIDay `json:"forecastday"`
		} `json:"forecast"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, decodeError(p.name, err)
	}

	out := make([]weather.DailyForecast, 0, len(payload.Forecast.ForecastDay))
	for _, d := range payload.Forecast.ForecastDay {
		out = append(out, d.daily(opts.Units))
	}
	return out, nil
}

// Hourly reads the hour arrays of forecast.json, trimmed to the requested
// span starting from the present hour.
func (p *WeatherAPIProvider) Hourly(ctx context.Context, loc weather.Location, hours int, opts weather.FetchOptions) ([]weather.HourlyConditions, error) {
	if hours < 1 {
		hours = 1
	}
	days := (hours+23)/24 + 1
	if days > 14 {
		days = 14
	}
	values, err := p.baseValues(loc, opts)
	if err != nil {
		return nil, err
	}
	values.Set("days", strconv.Itoa(days))

	resp, err := p.get(ctx, "/forecast.json", values)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		Forecast struct {
			ForecastDay []struct {
				Hour []weatherAPIHour `json:"hour"`
			} `json:"forecastday"`
		} `json:"forecast"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, decodeError(p.name, err)
	}

	cutoff := time.Now().UTC().Truncate(time.Hour)
	out := make([]weather.HourlyConditions, 0, hours)
	for _, day := range payload.Forecast.ForecastDay {
		for _, h := range day.Hour {
			ts := time.Unix(h.TimeEpoch, 0).UTC()
			if ts.Before(cutoff) {
				continue
			}
			out = append(out, h.hourly(opts.Units))
			if len(out) >= hours {
				return out, nil
			}
		}
	}
	return out, nil
}

// Historical issues one history.json call per day of the inclusive range.
func (p *WeatherAPIProvider) Historical(ctx context.Context, loc weather.Location, from, to time.Time, opts weather.FetchOptions) ([]weather.DailyForecast, error) {
	var out []weather.DailyForecast
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		values, err := p.baseValues(loc, opts)
		if err != nil {
			return nil, err
		}
		values.Set("dt", day.Format("2006-01-02"))

		resp, err := p.get(ctx, "/history.json", values)
		if err != nil {
			return nil, err
		}

		var payload struct {
			Forecast struct {
				ForecastDay []weatherAPIDay `json:"forecastday"`
			} `json:"forecast"`
		}
		decErr := json.NewDecoder(resp.Body).Decode(&payload)
		resp.Body.Close()
		if decErr != nil {
			return nil, decodeError(p.name, decErr)
		}
		for _, d := range payload.Forecast.ForecastDay {
			out = append(out, d.daily(opts.Units))
		}
	}
	return out, nil
}

func (p *WeatherAPIProvider) baseValues(loc weather.Location, opts weather.FetchOptions) (url.Values, error) {
	if p.apiKey == "" {
		return nil, &weather.UpstreamError{
			Provider: p.name,
			Code:     weather.UpstreamUnauthorized,
			Err:      errMissingKey,
		}
	}
	values := url.Values{}
	values.Set("key", p.apiKey)
	values.Set("q", formatCoord(loc.Lat)+","+formatCoord(loc.Lon))
	if lang := languageParam(opts.Language); lang != "" {
		values.Set("lang", lang)
	}
	return values, nil
}

func (p *WeatherAPIProvider) get(ctx context.Context, path string, values url.Values) (*http.Response, error) {
	buildRequest := func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, p.baseURL+path+"?"+values.Encode(), nil)
	}
	return doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
}

type weatherAPICurrent struct {
	LastUpdatedEpoch int64   `json:"last_updated_epoch"`
	TempC            float64 `json:"temp_c"`
	TempF            float64 `json:"temp_f"`
	FeelsLikeC       float64 `json:"feelslike_c"`
	FeelsLikeF       float64 `json:"feelslike_f"`
	Humidity         float64 `json:"humidity"`
	WindKph          float64 `json:"wind_kph"`
	WindMph          float64 `json:"wind_mph"`
	WindDegree       float64 `json:"wind_degree"`
	PressureMb       float64 `json:"pressure_mb"`
	PrecipMm         float64 `json:"precip_mm"`
	PrecipIn         float64 `json:"precip_in"`
	VisKm            float64 `json:"vis_km"`
	VisMiles         float64 `json:"vis_miles"`
	UV               float64 `json:"uv"`
	Condition        struct {
		Text string `json:"text"`
	} `json:"condition"`
}

func (c weatherAPICurrent) conditions(units weather.Units) weather.CurrentConditions {
	ts := time.Unix(c.LastUpdatedEpoch, 0).UTC()
	if c.LastUpdatedEpoch == 0 {
		ts = time.Now().UTC()
	}
	out := weather.CurrentConditions{
		Time:          ts,
		Temperature:   c.TempC,
		FeelsLike:     c.FeelsLikeC,
		Humidity:      c.Humidity,
		WindSpeed:     kphToMS(c.WindKph),
		WindDirection: c.WindDegree,
		Pressure:      c.PressureMb,
		Precipitation: c.PrecipMm,
		Visibility:    c.VisKm,
		UVIndex:       c.UV,
		Condition:     mapWeatherAPICondition(c.Condition.Text),
	}
	if units == weather.UnitsImperial {
		out.Temperature = c.TempF
		out.FeelsLike = c.FeelsLikeF
		out.WindSpeed = c.WindMph
		out.Precipitation = c.PrecipIn
		out.Visibility = c.VisMiles
	}
	return out
}

type weatherAPIDay struct {
	Date string `json:"date"`
	Day  struct {
		MaxTempC      float64 `json:"maxtemp_c"`
		MaxTempF      float64 `json:"maxtemp_f"`
		MinTempC      float64 `json:"mintemp_c"`
		MinTempF      float64 `json:"mintemp_f"`
		TotalPrecipMm float64 `json:"totalprecip_mm"`
		TotalPrecipIn float64 `json:"totalprecip_in"`
		MaxWindKph    float64 `json:"maxwind_kph"`
		MaxWindMph    float64 `json:"maxwind_mph"`
		RainChance    float64 `json:"daily_chance_of_rain"`
		UV            float64 `json:"uv"`
		Condition     struct {
			Text string `json:"text"`
		} `json:"condition"`
	} `json:"day"`
}

func (d weatherAPIDay) daily(units weather.Units) weather.DailyForecast {
	out := weather.DailyForecast{
		Date:          d.Date,
		TempMin:       d.Day.MinTempC,
		TempMax:       d.Day.MaxTempC,
		Precipitation: d.Day.TotalPrecipMm,
		PrecipChance:  d.Day.RainChance,
		WindSpeed:     kphToMS(d.Day.MaxWindKph),
		UVIndex:       d.Day.UV,
		Condition:     mapWeatherAPICondition(d.Day.Condition.Text),
	}
	if units == weather.UnitsImperial {
		out.TempMin = d.Day.MinTempF
		out.TempMax = d.Day.MaxTempF
		out.Precipitation = d.Day.TotalPrecipIn
		out.WindSpeed = d.Day.MaxWindMph
	}
	return out
}

type weatherAPIHour struct {
	TimeEpoch  int64   `json:"time_epoch"`
	TempC      float64 `json:"temp_c"`
	TempF      float64 `json:"temp_f"`
	Humidity   float64 `json:"humidity"`
	WindKph    float64 `json:"wind_kph"`
	WindMph    float64 `json:"wind_mph"`
	PrecipMm   float64 `json:"precip_mm"`
	PrecipIn   float64 `json:"precip_in"`
	RainChance float64 `json:"chance_of_rain"`
	Condition  struct {
		Text string `json:"text"`
	} `json:"condition"`
}

func (h weatherAPIHour) hourly(units weather.Units) weather.HourlyConditions {
	out := weather.HourlyConditions{
		Time:          time.Unix(h.TimeEpoch, 0).UTC(),
		Temperature:   h.TempC,
		Humidity:      h.Humidity,
		WindSpeed:     kphToMS(h.WindKph),
		Precipitation: h.PrecipMm,
		PrecipChance:  h.RainChance,
		Condition:     mapWeatherAPICondition(h.Condition.Text),
	}
	if units == weather.UnitsImperial {
		out.Temperature = h.TempF
		out.WindSpeed = h.WindMph
		out.Precipitation = h.PrecipIn
	}
	return out
}

func kphToMS(kph float64) float64 {
	return kph / 3.6
}

func mapWeatherAPICondition(text string) weather.Condition {
	lower := strings.ToLower(text)
	switch {
	case lower == "":
		return weather.ConditionUnknown
	case common.HasAny(lower, "thunder", "storm"):
		return weather.ConditionStorm
	case common.HasAny(lower, "snow", "sleet", "blizzard", "ice"):
		return weather.ConditionSnow
	case common.HasAny(lower, "rain", "shower", "drizzle"):
		return weather.ConditionRain
	case common.HasAny(lower, "mist", "fog"):
		return weather.ConditionMist
	case common.HasAny(lower, "cloud", "overcast"):
		return weather.ConditionCloudy
	case common.HasAny(lower, "sunny", "clear"):
		return weather.ConditionClear
	default:
		return weather.ConditionUnknown
	}
}
