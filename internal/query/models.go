// Package query turns free-text weather questions into structured queries.
// A deterministic rule classifier runs first; a configurable language-model
// parser is consulted only when rule confidence is too low.
package query

import (
	"context"
	"time"
)

// Intent is the primary thing the caller wants to know.
type Intent string

const (
	IntentCurrent        Intent = "current"
	IntentForecast       Intent = "forecast"
	IntentHistorical     Intent = "historical"
	IntentAdvice         Intent = "advice"
	IntentLocationSearch Intent = "location_search"
)

// Valid reports whether i is one of the defined intents. Results arriving
// from the external parser are filtered through this.
func (i Intent) Valid() bool {
	switch i {
	case IntentCurrent, IntentForecast, IntentHistorical, IntentAdvice, IntentLocationSearch:
		return true
	}
	return false
}

// TimeKind classifies the time window a query refers to.
type TimeKind string

const (
	TimeCurrent    TimeKind = "current"
	TimeForecast   TimeKind = "forecast"
	TimeHistorical TimeKind = "historical"
)

func (k TimeKind) Valid() bool {
	switch k {
	case TimeCurrent, TimeForecast, TimeHistorical:
		return true
	}
	return false
}

// Metric is a weather quantity the caller asked about.
type Metric string

const (
	MetricTemperature   Metric = "temperature"
	MetricHumidity      Metric = "humidity"
	MetricWind          Metric = "wind"
	MetricPressure      Metric = "pressure"
	MetricVisibility    Metric = "visibility"
	MetricUVIndex       Metric = "uv_index"
	MetricAirQuality    Metric = "air_quality"
	MetricPrecipitation Metric = "precipitation"
)

func (m Metric) Valid() bool {
	switch m {
	case MetricTemperature, MetricHumidity, MetricWind, MetricPressure,
		MetricVisibility, MetricUVIndex, MetricAirQuality, MetricPrecipitation:
		return true
	}
	return false
}

// ParsingSource records which path produced a ParsedQuery. It must truthfully
// reflect whether the external parser was invoked and whether it succeeded.
type ParsingSource string

const (
	// SourceRulesOnly: rule confidence met the threshold; the external
	// parser was configured but not needed.
	SourceRulesOnly ParsingSource = "rules_only"
	// SourceRulesFallback: no external parser is configured; the service is
	// running in rules-fallback mode and the caller is told so explicitly.
	SourceRulesFallback ParsingSource = "rules_fallback"
	// SourceRulesWithFallback: the external parser was invoked and its
	// result was merged with the rule result.
	SourceRulesWithFallback ParsingSource = "rules_with_fallback"
	// SourceFallbackOnly: the rules found nothing usable and the external
	// parser supplied the whole result.
	SourceFallbackOnly ParsingSource = "fallback_only"
	// SourceRulesFallbackOnError: the external parser was invoked but failed
	// (timeout, transport error, malformed response); the rule result stands.
	SourceRulesFallbackOnError ParsingSource = "rules_fallback_on_error"
)

// LocationGuess is the classifier's best location candidate.
type LocationGuess struct {
	Name       string   `json:"name,omitempty"`
	Lat        *float64 `json:"lat,omitempty"`
	Lon        *float64 `json:"lon,omitempty"`
	Confidence float64  `json:"confidence"`
}

// Found reports whether any location was extracted.
func (l LocationGuess) Found() bool {
	return l.Name != "" || (l.Lat != nil && l.Lon != nil)
}

// IntentGuess carries the classified intent and its confidence.
type IntentGuess struct {
	Primary    Intent  `json:"primary"`
	Confidence float64 `json:"confidence"`
}

// TimeScope describes the time window the query targets. Duration is a
// human-oriented hint like "24h" or "72h"; Start/End are set only when the
// parser produced explicit bounds.
type TimeScope struct {
	Kind     TimeKind   `json:"kind"`
	Duration string     `json:"duration,omitempty"`
	Start    *time.Time `json:"start,omitempty"`
	End      *time.Time `json:"end,omitempty"`
}

// ParsedQuery is the immutable result of classifying one query text.
type ParsedQuery struct {
	OriginalText string        `json:"original_text"`
	Location     LocationGuess `json:"location"`
	Intent       IntentGuess   `json:"intent"`
	TimeScope    TimeScope     `json:"time_scope"`
	Metrics      []Metric      `json:"metrics,omitempty"`
	Language     string        `json:"language"`
	Confidence   float64       `json:"confidence"`
	Source       ParsingSource `json:"parsing_source"`
}

// FallbackResult is the structured output of the external language-model
// parser. Field shapes mirror ParsedQuery so results can be merged.
type FallbackResult struct {
	Location   LocationGuess `json:"location"`
	Intent     IntentGuess   `json:"intent"`
	TimeScope  TimeScope     `json:"time_scope"`
	Metrics    []Metric      `json:"weather_metrics"`
	Language   string        `json:"language"`
	Confidence float64       `json:"confidence"`
}

// FallbackParser is the boundary to the external language-model parser. It is
// best-effort and advisory: implementations may fail, time out, or be absent
// entirely, and the orchestrator must keep working either way.
type FallbackParser interface {
	ParseQuery(ctx context.Context, text, freeContext string) (*FallbackResult, error)
}
