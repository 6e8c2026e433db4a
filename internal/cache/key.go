package cache

import (
	"fmt"
	"strings"
)

// DataClass labels what kind of answer an entry holds. It selects the TTL
// class and keeps differently shaped payloads from colliding under one key.
type DataClass string

const (
	ClassCurrent    DataClass = "current"
	ClassForecast   DataClass = "forecast"
	ClassHistorical DataClass = "historical"
	ClassLocation   DataClass = "location"
)

// Key carries every request parameter that affects a cached payload.
// Two logically identical requests must produce the same key; two requests
// that can differ in content must not.
type Key struct {
	Lat      float64
	Lon      float64
	Units    string
	Language string
	Class    DataClass
	Hourly   bool
	Daily    bool
	// Range is the historical span, e.g. "2024-01-01/2024-01-07".
	// Empty for non-historical classes.
	Range string
}

// String renders the canonical cache key. Coordinates are rounded to two
// decimals, roughly a kilometer, so near-identical lookups share an entry.
func (k Key) String() string {
	return fmt.Sprintf("%s:%.2f,%.2f:%s:%s:h=%t:d=%t:r=%s",
		k.Class, k.Lat, k.Lon, k.Units, k.Language, k.Hourly, k.Daily, k.Range)
}

// LocationKey is the cache key for a geocoding lookup, which is keyed by the
// queried name rather than by coordinates.
func LocationKey(name, language string) string {
	return fmt.Sprintf("%s:%s:%s", ClassLocation, strings.ToLower(strings.TrimSpace(name)), language)
}
