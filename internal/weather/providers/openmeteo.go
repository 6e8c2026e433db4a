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

	"github.com/i474232898/weather-query-service/internal/weather"
)

// OpenMeteoProvider talks to the keyless Open-Meteo APIs: the forecast API
// for current, daily and hourly data, the archive API for history, and the
// geocoding API for place search. Each host gets its own circuit breaker
// since they fail independently.
type OpenMeteoProvider struct {
	name        string
	forecastURL string
	archiveURL  string
	geocodeURL  string
	httpCfg     HTTPClientConfig
	forecastCB  *gobreaker.CircuitBreaker
	archiveCB   *gobreaker.CircuitBreaker
	geocodeCB   *gobreaker.CircuitBreaker
}

func NewOpenMeteoProvider(client *http.Client) *OpenMeteoProvider {
	const name = "open-meteo"
	return &OpenMeteoProvider{
		name:        name,
		forecastURL: "https://api.open-meteo.com/v1/forecast",
		archiveURL:  "https://archive-api.open-meteo.com/v1/archive",
		geocodeURL:  "https://geocoding-api.open-meteo.com/v1/search",
		httpCfg:     defaultHTTPConfig(name, client),
		forecastCB:  newBreaker(name + "-forecast"),
		archiveCB:   newBreaker(name + "-archive"),
		geocodeCB:   newBreaker(name + "-geocoding"),
	}
}

func (p *OpenMeteoProvider) Name() string {
	return p.name
}

func (p *OpenMeteoProvider) Current(ctx context.Context, loc weather.Location, opts weather.FetchOptions) (*weather.CurrentConditions, error) {
	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", formatCoord(loc.Lat))
		values.Set("longitude", formatCoord(loc.Lon))
		values.Set("current", "temperature_2m,relative_humidity_2m,apparent_temperature,precipitation,weather_code,surface_pressure,wind_speed_10m,wind_direction_10m")
		values.Set("timezone", "auto")
		applyOpenMeteoUnits(values, opts.Units)
		return http.NewRequest(http.MethodGet, p.forecastURL+"?"+values.Encode(), nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.forecastCB, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		Current struct {
			Time          string  `json:"time"`
			Temperature   float64 `json:"temperature_2m"`
			Humidity      float64 `json:"relative_humidity_2m"`
			FeelsLike     float64 `json:"apparent_temperature"`
			Precipitation float64 `json:"precipitation"`
			WeatherCode   int     `json:"weather_code"`
			Pressure      float64 `json:"surface_pressure"`
			WindSpeed     float64 `json:"wind_speed_10m"`
			WindDirection float64 `json:"wind_direction_10m"`
		} `json:"current"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, decodeError(p.name, err)
	}

	c := payload.Current
	return &weather.CurrentConditions{
		Time:          parseObservationTime(c.Time),
		Temperature:   c.Temperature,
		FeelsLike:     c.FeelsLike,
		Humidity:      c.Humidity,
		WindSpeed:     c.WindSpeed,
		WindDirection: c.WindDirection,
		Pressure:      c.Pressure,
		Precipitation: c.Precipitation,
		Condition:     mapOpenMeteoCondition(c.WeatherCode),
	}, nil
}

func (p *OpenMeteoProvider) Forecast(ctx context.Context, loc weather.Location, days int, opts weather.FetchOptions) ([]weather.DailyForecast, error) {
	if days < 1 {
		days = 1
	}
	if days > 16 {
		days = 16
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", formatCoord(loc.Lat))
		values.Set("longitude", formatCoord(loc.Lon))
		values.Set("daily", "weather_code,temperature_2m_max,temperature_2m_min,precipitation_sum,precipitation_probability_max,wind_speed_10m_max,uv_index_max")
		values.Set("forecast_days", strconv.Itoa(days))
		values.Set("timezone", "auto")
		applyOpenMeteoUnits(values, opts.Units)
		return http.NewRequest(http.MethodGet, p.forecastURL+"?"+values.Encode(), nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.forecastCB, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		Daily openMeteoDaily `json:"daily"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, decodeError(p.name, err)
	}
	return payload.Daily.forecasts(), nil
}

func (p *OpenMeteoProvider) Hourly(ctx context.Context, loc weather.Location, hours int, opts weather.FetchOptions) ([]weather.HourlyConditions, error) {
	if hours < 1 {
		hours = 1
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", formatCoord(loc.Lat))
		values.Set("longitude", formatCoord(loc.Lon))
		values.Set("hourly", "temperature_2m,relative_humidity_2m,precipitation,precipitation_probability,weather_code,wind_speed_10m")
		values.Set("forecast_hours", strconv.Itoa(hours))
		values.Set("timezone", "auto")
		applyOpenMeteoUnits(values, opts.Units)
		return http.NewRequest(http.MethodGet, p.forecastURL+"?"+values.Encode(), nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.forecastCB, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		Hourly struct {
			Time        []string  `json:"time"`
			Temperature []float64 `json:"temperature_2m"`
			Humidity    []float64 `json:"relative_humidity_2m"`
			Precip      []float64 `json:"precipitation"`
			PrecipProb  []float64 `json:"precipitation_probability"`
			WeatherCode []int     `json:"weather_code"`
			WindSpeed   []float64 `json:"wind_speed_10m"`
		} `json:"hourly"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, decodeError(p.name, err)
	}

	h := payload.Hourly
	out := make([]weather.HourlyConditions, 0, len(h.Time))
	for i, ts := range h.Time {
		out = append(out, weather.HourlyConditions{
			Time:          parseObservationTime(ts),
			Temperature:   floatAt(h.Temperature, i),
			Humidity:      floatAt(h.Humidity, i),
			WindSpeed:     floatAt(h.WindSpeed, i),
			Precipitation: floatAt(h.Precip, i),
			PrecipChance:  floatAt(h.PrecipProb, i),
			Condition:     mapOpenMeteoCondition(intAt(h.WeatherCode, i)),
		})
	}
	return out, nil
}

// Historical fetches daily aggregates for an inclusive date range from the
// archive API. The archive carries no precipitation probability or UV data.
func (p *OpenMeteoProvider) Historical(ctx context.Context, loc weather.Location, from, to time.Time, opts weather.FetchOptions) ([]weather.DailyForecast, error) {
	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", formatCoord(loc.Lat))
		values.Set("longitude", formatCoord(loc.Lon))
		values.Set("start_date", from.Format("2006-01-02"))
		values.Set("end_date", to.Format("2006-01-02"))
		values.Set("daily", "weather_code,temperature_2m_max,temperature_2m_min,precipitation_sum,wind_speed_10m_max")
		values.Set("timezone", "auto")
		applyOpenMeteoUnits(values, opts.Units)
		return http.NewRequest(http.MethodGet, p.archiveURL+"?"+values.Encode(), nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.archiveCB, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		Daily openMeteoDaily `json:"daily"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, decodeError(p.name, err)
	}
	return payload.Daily.forecasts(), nil
}

// Geocode searches place names. A missing results field means no match,
// which is a successful empty answer, not an error.
func (p *OpenMeteoProvider) Geocode(ctx context.Context, name, language string) ([]weather.Place, error) {
	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("name", name)
		values.Set("count", "5")
		values.Set("format", "json")
		if lang := languageParam(language); lang != "" {
			values.Set("language", lang)
		}
		return http.NewRequest(http.MethodGet, p.geocodeURL+"?"+values.Encode(), nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.geocodeCB, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		Results []struct {
			Name        string  `json:"name"`
			Latitude    float64 `json:"latitude"`
			Longitude   float64 `json:"longitude"`
			Country     string  `json:"country"`
			CountryCode string  `json:"country_code"`
			Admin1      string  `json:"admin1"`
			Timezone    string  `json:"timezone"`
			Population  int     `json:"population"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, decodeError(p.name, err)
	}

	out := make([]weather.Place, 0, len(payload.Results))
	for _, r := range payload.Results {
		country := r.CountryCode
		if country == "" {
			country = r.Country
		}
		out = append(out, weather.Place{
			Name:       r.Name,
			Country:    country,
			Admin:      r.Admin1,
			Timezone:   r.Timezone,
			Lat:        r.Latitude,
			Lon:        r.Longitude,
			Population: r.Population,
		})
	}
	return out, nil
}

// openMeteoDaily is the parallel-array daily block shared by the forecast
// and archive APIs.
type openMeteoDaily struct {
	Time        []string  `json:"time"`
	WeatherCode []int     `json:"weather_code"`
	TempMax     []float64 `json:"temperature_2m_max"`
	TempMin     []float64 `json:"temperature_2m_min"`
	PrecipSum   []float64 `json:"precipitation_sum"`
	PrecipProb  []float64 `json:"precipitation_probability_max"`
	WindMax     []float64 `json:"wind_speed_10m_max"`
	UVMax       []float64 `json:"uv_index_max"`
}

func (d openMeteoDaily) forecasts() []weather.DailyForecast {
	out := make([]weather.DailyForecast, 0, len(d.Time))
	for i, date := range d.Time {
		out = append(out, weather.DailyForecast{
			Date:          date,
			TempMin:       floatAt(d.TempMin, i),
			TempMax:       floatAt(d.TempMax, i),
			Precipitation: floatAt(d.PrecipSum, i),
			PrecipChance:  floatAt(d.PrecipProb, i),
			WindSpeed:     floatAt(d.WindMax, i),
			UVIndex:       floatAt(d.UVMax, i),
			Condition:     mapOpenMeteoCondition(intAt(d.WeatherCode, i)),
		})
	}
	return out
}

func applyOpenMeteoUnits(values url.Values, units weather.Units) {
	if units == weather.UnitsImperial {
		values.Set("temperature_unit", "fahrenheit")
		values.Set("wind_speed_unit", "mph")
		values.Set("precipitation_unit", "inch")
		return
	}
	// Metric default is km/h for wind; m/s keeps all providers comparable.
	values.Set("wind_speed_unit", "ms")
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// languageParam reduces a BCP 47 tag to the primary subtag the upstream
// APIs accept, e.g. "zh-TW" to "zh".
func languageParam(lang string) string {
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	return strings.ToLower(strings.TrimSpace(lang))
}

// parseObservationTime handles Open-Meteo timestamps, which omit the zone
// suffix when timezone=auto is in play.
func parseObservationTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC()
		}
	}
	return time.Now().UTC()
}

// floatAt and intAt guard against ragged parallel arrays in upstream
// payloads.
func floatAt(values []float64, i int) float64 {
	if i < len(values) {
		return values[i]
	}
	return 0
}

func intAt(values []int, i int) int {
	if i < len(values) {
		return values[i]
	}
	return 0
}

// mapOpenMeteoCondition reduces WMO weather codes to the shared condition
// vocabulary.
func mapOpenMeteoCondition(code int) weather.Condition {
	switch {
	case code == 0:
		return weather.ConditionClear
	case code >= 1 && code <= 3:
		return weather.ConditionCloudy
	case code == 45 || code == 48:
		return weather.ConditionMist
	case (code >= 51 && code <= 67) || (code >= 80 && code <= 82):
		return weather.ConditionRain
	case code >= 71 && code <= 77 || code == 85 || code == 86:
		return weather.ConditionSnow
	case code >= 95:
		return weather.ConditionStorm
	default:
		return weather.ConditionUnknown
	}
}
