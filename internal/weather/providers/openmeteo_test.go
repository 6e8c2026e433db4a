package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/i474232898/weather-query-service/internal/weather"
)

func newTestOpenMeteo(srv *httptest.Server) *OpenMeteoProvider {
	p := NewOpenMeteoProvider(srv.Client())
	p.forecastURL = srv.URL
	p.archiveURL = srv.URL
	p.geocodeURL = srv.URL
	p.httpCfg.Backoff = BackoffConfig{MaxRetries: 0, InitialInterval: time.Millisecond}
	return p
}

func TestOpenMeteoCurrentDecode(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"current":{"time":"2026-08-25T10:00","temperature_2m":28.5,` +
			`"relative_humidity_2m":70,"apparent_temperature":33.1,"precipitation":0.2,` +
			`"weather_code":61,"surface_pressure":1005.5,"wind_speed_10m":3.4,` +
			`"wind_direction_10m":120}}`))
	}))
	defer srv.Close()

	p := newTestOpenMeteo(srv)
	cur, err := p.Current(context.Background(), weather.Location{Lat: 25.033, Lon: 121.565}, weather.FetchOptions{Units: weather.UnitsMetric})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cur.Temperature != 28.5 {
		t.Errorf("temperature = %v, want 28.5", cur.Temperature)
	}
	if cur.FeelsLike != 33.1 {
		t.Errorf("feels like = %v, want 33.1", cur.FeelsLike)
	}
	if cur.Humidity != 70 {
		t.Errorf("humidity = %v, want 70", cur.Humidity)
	}
	if cur.Pressure != 1005.5 {
		t.Errorf("pressure = %v, want 1005.5", cur.Pressure)
	}
	if cur.Condition != weather.ConditionRain {
		t.Errorf("condition = %s, want rain (WMO 61)", cur.Condition)
	}
	if got := cur.Time.Format("2006-01-02T15:04"); got != "2026-08-25T10:00" {
		t.Errorf("time = %s, want 2026-08-25T10:00", got)
	}

	if got := gotQuery.Get("latitude"); got != "25.0330" {
		t.Errorf("latitude param = %q, want 25.0330", got)
	}
	if got := gotQuery.Get("wind_speed_unit"); got != "ms" {
		t.Errorf("wind_speed_unit = %q, want ms", got)
	}
	if gotQuery.Get("current") == "" {
		t.Errorf("current parameter missing")
	}
}

func TestOpenMeteoCurrentImperialParams(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(`{"current":{"time":"2026-08-25T10:00","temperature_2m":82.4}}`))
	}))
	defer srv.Close()

	p := newTestOpenMeteo(srv)
	if _, err := p.Current(context.Background(), weather.Location{Lat: 40.7, Lon: -74.0}, weather.FetchOptions{Units: weather.UnitsImperial}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := gotQuery.Get("temperature_unit"); got != "fahrenheit" {
		t.Errorf("temperature_unit = %q, want fahrenheit", got)
	}
	if got := gotQuery.Get("wind_speed_unit"); got != "mph" {
		t.Errorf("wind_speed_unit = %q, want mph", got)
	}
	if got := gotQuery.Get("precipitation_unit"); got != "inch" {
		t.Errorf("precipitation_unit = %q, want inch", got)
	}
}

func TestOpenMeteoForecastDecode(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(`{"daily":{"time":["2026-08-25","2026-08-26","2026-08-27"],` +
			`"weather_code":[0,71,95],` +
			`"temperature_2m_max":[31.0,12.5,28.0],` +
			`"temperature_2m_min":[24.0,3.5,22.0],` +
			`"precipitation_sum":[0.0,8.2,14.5],` +
			`"precipitation_probability_max":[5,80,95],` +
			`"wind_speed_10m_max":[4.2,9.1,12.0],` +
			`"uv_index_max":[8.5,2.0,4.5]}}`))
	}))
	defer srv.Close()

	p := newTestOpenMeteo(srv)
	days, err := p.Forecast(context.Background(), weather.Location{Lat: 25.03, Lon: 121.56}, 3, weather.FetchOptions{Units: weather.UnitsMetric})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(days) != 3 {
		t.Fatalf("days = %d, want 3", len(days))
	}
	if gotQuery.Get("forecast_days") != "3" {
		t.Errorf("forecast_days param = %q, want 3", gotQuery.Get("forecast_days"))
	}

	second := days[1]
	if second.Date != "2026-08-26" {
		t.Errorf("date = %s, want 2026-08-26", second.Date)
	}
	if second.TempMin != 3.5 || second.TempMax != 12.5 {
		t.Errorf("temps = %v/%v, want 3.5/12.5", second.TempMin, second.TempMax)
	}
	if second.PrecipChance != 80 {
		t.Errorf("precip chance = %v, want 80", second.PrecipChance)
	}
	if second.Condition != weather.ConditionSnow {
		t.Errorf("condition = %s, want snow (WMO 71)", second.Condition)
	}
	if days[2].Condition != weather.ConditionStorm {
		t.Errorf("condition = %s, want storm (WMO 95)", days[2].Condition)
	}
}

func TestOpenMeteoForecastDayClamp(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(`{"daily":{"time":[]}}`))
	}))
	defer srv.Close()

	p := newTestOpenMeteo(srv)
	if _, err := p.Forecast(context.Background(), weather.Location{}, 40, weather.FetchOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotQuery.Get("forecast_days") != "16" {
		t.Errorf("forecast_days = %q, want 16 (clamped)", gotQuery.Get("forecast_days"))
	}
}

func TestOpenMeteoHourlyDecode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"hourly":{"time":["2026-08-25T10:00","2026-08-25T11:00"],` +
			`"temperature_2m":[28.0,29.5],` +
			`"relative_humidity_2m":[70,65],` +
			`"precipitation":[0.0,0.4],` +
			`"precipitation_probability":[10,45],` +
			`"weather_code":[1,61],` +
			`"wind_speed_10m":[3.0,4.4]}}`))
	}))
	defer srv.Close()

	p := newTestOpenMeteo(srv)
	hours, err := p.Hourly(context.Background(), weather.Location{Lat: 25.03, Lon: 121.56}, 2, weather.FetchOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hours) != 2 {
		t.Fatalf("hours = %d, want 2", len(hours))
	}
	if hours[1].Temperature != 29.5 {
		t.Errorf("temperature = %v, want 29.5", hours[1].Temperature)
	}
	if hours[1].PrecipChance != 45 {
		t.Errorf("precip chance = %v, want 45", hours[1].PrecipChance)
	}
	if hours[1].Condition != weather.ConditionRain {
		t.Errorf("condition = %s, want rain", hours[1].Condition)
	}
}

func TestOpenMeteoArchiveDateWindow(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(`{"daily":{"time":["2026-08-18","2026-08-19"],` +
			`"weather_code":[3,45],` +
			`"temperature_2m_max":[30.0,27.5],` +
			`"temperature_2m_min":[23.0,21.0],` +
			`"precipitation_sum":[0.0,1.2],` +
			`"wind_speed_10m_max":[5.5,7.0]}}`))
	}))
	defer srv.Close()

	from := time.Date(2026, 8, 18, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 8, 19, 0, 0, 0, 0, time.UTC)

	p := newTestOpenMeteo(srv)
	days, err := p.Historical(context.Background(), weather.Location{Lat: 25.03, Lon: 121.56}, from, to, weather.FetchOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotQuery.Get("start_date") != "2026-08-18" {
		t.Errorf("start_date = %q, want 2026-08-18", gotQuery.Get("start_date"))
	}
	if gotQuery.Get("end_date") != "2026-08-19" {
		t.Errorf("end_date = %q, want 2026-08-19", gotQuery.Get("end_date"))
	}
	if len(days) != 2 {
		t.Fatalf("days = %d, want 2", len(days))
	}
	if days[1].Condition != weather.ConditionMist {
		t.Errorf("condition = %s, want mist (WMO 45)", days[1].Condition)
	}
	if days[1].Date != "2026-08-19" {
		t.Errorf("date = %s, want 2026-08-19", days[1].Date)
	}
}

func TestOpenMeteoGeocodeDecode(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(`{"results":[` +
			`{"name":"Kyoto","latitude":35.02107,"longitude":135.75385,"country":"Japan",` +
			`"country_code":"JP","admin1":"Kyoto","timezone":"Asia/Tokyo","population":1463723},` +
			`{"name":"Kyotango","latitude":35.62,"longitude":135.06,"country":"Japan",` +
			`"country_code":"JP","admin1":"Kyoto","timezone":"Asia/Tokyo","population":50000}]}`))
	}))
	defer srv.Close()

	p := newTestOpenMeteo(srv)
	places, err := p.Geocode(context.Background(), "Kyoto", "zh-TW")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(places) != 2 {
		t.Fatalf("places = %d, want 2", len(places))
	}
	first := places[0]
	if first.Name != "Kyoto" || first.Country != "JP" || first.Admin != "Kyoto" {
		t.Errorf("place = %+v, want Kyoto/JP/Kyoto", first)
	}
	if first.Lat != 35.02107 || first.Lon != 135.75385 {
		t.Errorf("coords = %v,%v, want 35.02107,135.75385", first.Lat, first.Lon)
	}
	if first.Population != 1463723 {
		t.Errorf("population = %d, want 1463723", first.Population)
	}

	if gotQuery.Get("name") != "Kyoto" {
		t.Errorf("name param = %q, want Kyoto", gotQuery.Get("name"))
	}
	if gotQuery.Get("language") != "zh" {
		t.Errorf("language param = %q, want zh (primary subtag)", gotQuery.Get("language"))
	}
}

func TestOpenMeteoGeocodeNoMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Open-Meteo omits the results field entirely when nothing matches.
		w.Write([]byte(`{"generationtime_ms":0.5}`))
	}))
	defer srv.Close()

	p := newTestOpenMeteo(srv)
	places, err := p.Geocode(context.Background(), "Atlantis", "en")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(places) != 0 {
		t.Errorf("places = %d, want 0", len(places))
	}
}

func TestOpenMeteoServerErrorTyped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := newTestOpenMeteo(srv)
	_, err := p.Current(context.Background(), weather.Location{Lat: 1, Lon: 1}, weather.FetchOptions{})
	var ue *weather.UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("expected *weather.UpstreamError, got %T: %v", err, err)
	}
	if ue.Code != weather.UpstreamServerError {
		t.Errorf("code = %s, want %s", ue.Code, weather.UpstreamServerError)
	}
	if ue.Provider != "open-meteo" {
		t.Errorf("provider = %q, want open-meteo", ue.Provider)
	}
}
