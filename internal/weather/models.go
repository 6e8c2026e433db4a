package weather

import (
	"time"

	"github.com/i474232898/weather-query-service/internal/query"
)

// Units selects the measurement system of a response: Celsius and m/s for
// metric, Fahrenheit and mph for imperial.
type Units string

const (
	UnitsMetric   Units = "metric"
	UnitsImperial Units = "imperial"
)

func (u Units) Valid() bool {
	switch u {
	case UnitsMetric, UnitsImperial:
		return true
	}
	return false
}

// Condition represents a normalized high-level weather condition.
type Condition string

const (
	ConditionUnknown Condition = "unknown"
	ConditionClear   Condition = "clear"
	ConditionCloudy  Condition = "cloudy"
	ConditionMist    Condition = "mist"
	ConditionRain    Condition = "rain"
	ConditionSnow    Condition = "snow"
	ConditionStorm   Condition = "storm"
)

// Location is a resolved place.
type Location struct {
	Name     string  `json:"name"`
	Country  string  `json:"country,omitempty"`
	Timezone string  `json:"timezone,omitempty"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
}

// Place is one geocoding match.
type Place struct {
	Name       string  `json:"name"`
	Country    string  `json:"country,omitempty"`
	Admin      string  `json:"admin,omitempty"`
	Timezone   string  `json:"timezone,omitempty"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	Population int     `json:"population,omitempty"`
}

// FetchOptions carries the per-call parameters every provider needs.
type FetchOptions struct {
	Units    Units
	Language string
}

// CurrentConditions is the normalized now-cast section. Temperature and wind
// follow the requested unit system; pressure is hPa, precipitation mm,
// humidity percent, visibility km.
type CurrentConditions struct {
	Time          time.Time `json:"time"`
	Temperature   float64   `json:"temperature"`
	FeelsLike     float64   `json:"feels_like,omitempty"`
	Humidity      float64   `json:"humidity"`
	WindSpeed     float64   `json:"wind_speed"`
	WindDirection float64   `json:"wind_direction,omitempty"`
	Pressure      float64   `json:"pressure"`
	Precipitation float64   `json:"precipitation"`
	Visibility    float64   `json:"visibility,omitempty"`
	UVIndex       float64   `json:"uv_index,omitempty"`
	Condition     Condition `json:"condition"`
}

// DailyForecast is one normalized day. Historical queries reuse this shape
// for observed days.
type DailyForecast struct {
	Date          string    `json:"date"`
	TempMin       float64   `json:"temp_min"`
	TempMax       float64   `json:"temp_max"`
	Precipitation float64   `json:"precipitation"`
	PrecipChance  float64   `json:"precip_chance,omitempty"`
	WindSpeed     float64   `json:"wind_speed"`
	UVIndex       float64   `json:"uv_index,omitempty"`
	Condition     Condition `json:"condition"`
}

// HourlyConditions is one normalized hour.
type HourlyConditions struct {
	Time          time.Time `json:"time"`
	Temperature   float64   `json:"temperature"`
	Humidity      float64   `json:"humidity,omitempty"`
	WindSpeed     float64   `json:"wind_speed"`
	Precipitation float64   `json:"precipitation"`
	PrecipChance  float64   `json:"precip_chance,omitempty"`
	Condition     Condition `json:"condition"`
}

// Metadata describes how a result was produced.
type Metadata struct {
	RequestID     string              `json:"request_id"`
	Sources       []string            `json:"sources,omitempty"`
	Confidence    float64             `json:"confidence"`
	Cached        bool                `json:"cached"`
	ParsingSource query.ParsingSource `json:"parsing_source"`
	Degraded      bool                `json:"degraded,omitempty"`
	Language      string              `json:"language,omitempty"`
	Intent        query.Intent        `json:"intent"`
}

// QueryResult is the caller-facing answer. Sections are independent: any of
// Current, Daily, Hourly may be absent when its fetch failed or was not
// requested. Places is set only for location-search queries.
type QueryResult struct {
	Location Location           `json:"location"`
	Current  *CurrentConditions `json:"current,omitempty"`
	Daily    []DailyForecast    `json:"daily,omitempty"`
	Hourly   []HourlyConditions `json:"hourly,omitempty"`
	Places   []Place            `json:"places,omitempty"`
	Metadata Metadata           `json:"metadata"`
}
