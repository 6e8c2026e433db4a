// Package selector scores the registered upstream endpoints against a parsed
// query and picks a primary plus ranked fallbacks.
package selector

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/i474232898/weather-query-service/internal/query"
)

// Endpoint is a static registry entry describing one upstream capability.
// Latency, reliability and cost are nominal figures used until live health
// observations replace them.
type Endpoint struct {
	ID       string         `yaml:"id" json:"id"`
	Provider string         `yaml:"provider" json:"provider"`
	Intents  []query.Intent `yaml:"intents" json:"intents"`
	// TimeKinds lists the time windows the endpoint can answer; a mismatch
	// with the query's time scope costs freshness score.
	TimeKinds []query.TimeKind `yaml:"time_kinds" json:"time_kinds"`
	// Global marks worldwide coverage; regional endpoints score lower.
	Global      bool    `yaml:"global" json:"global"`
	LatencyMS   int     `yaml:"latency_ms" json:"latency_ms"`
	Reliability float64 `yaml:"reliability" json:"reliability"`
	CostPerCall float64 `yaml:"cost_per_call" json:"cost_per_call"`
	RateCeiling int     `yaml:"rate_ceiling,omitempty" json:"rate_ceiling,omitempty"`
	// Requires names the credential an endpoint needs ("openweather",
	// "weatherapi", "google"); endpoints whose credential is missing are
	// dropped at registry build time.
	Requires string `yaml:"requires,omitempty" json:"-"`
}

func (e Endpoint) supports(intent query.Intent) bool {
	for _, i := range e.Intents {
		if i == intent {
			return true
		}
	}
	return false
}

func (e Endpoint) servesKind(kind query.TimeKind) bool {
	for _, k := range e.TimeKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// ProviderKeys holds the upstream credentials available to this deployment.
// Empty fields disable the endpoints that require them.
type ProviderKeys struct {
	OpenWeather string
	WeatherAPI  string
	Google      string
}

func (k ProviderKeys) has(requirement string) bool {
	switch requirement {
	case "":
		return true
	case "openweather":
		return k.OpenWeather != ""
	case "weatherapi":
		return k.WeatherAPI != ""
	case "google":
		return k.Google != ""
	}
	return false
}

// Registry is an ordered, immutable set of endpoints. Declaration order
// matters: it breaks scoring ties deterministically.
type Registry struct {
	endpoints []Endpoint
	index     map[string]int
}

func NewRegistry(endpoints []Endpoint) (*Registry, error) {
	r := &Registry{
		endpoints: make([]Endpoint, 0, len(endpoints)),
		index:     make(map[string]int, len(endpoints)),
	}
	for _, ep := range endpoints {
		if ep.ID == "" {
			return nil, fmt.Errorf("registry: endpoint with empty id")
		}
		if _, dup := r.index[ep.ID]; dup {
			return nil, fmt.Errorf("registry: duplicate endpoint id %q", ep.ID)
		}
		if len(ep.Intents) == 0 {
			return nil, fmt.Errorf("registry: endpoint %q declares no intents", ep.ID)
		}
		r.index[ep.ID] = len(r.endpoints)
		r.endpoints = append(r.endpoints, ep)
	}
	if len(r.endpoints) == 0 {
		return nil, fmt.Errorf("registry: no endpoints")
	}
	return r, nil
}

// Endpoints returns the registry entries in declaration order.
func (r *Registry) Endpoints() []Endpoint {
	out := make([]Endpoint, len(r.endpoints))
	copy(out, r.endpoints)
	return out
}

func (r *Registry) Get(id string) (Endpoint, bool) {
	i, ok := r.index[id]
	if !ok {
		return Endpoint{}, false
	}
	return r.endpoints[i], true
}

func (r *Registry) Len() int {
	return len(r.endpoints)
}

// DefaultRegistry builds the built-in endpoint set. Open-Meteo endpoints are
// keyless and always present; the paid providers appear only when their
// credential is configured.
func DefaultRegistry(keys ProviderKeys) *Registry {
	all := []Endpoint{
		{
			ID:        "open-meteo-current",
			Provider:  "open-meteo",
			Intents:   []query.Intent{query.IntentCurrent, query.IntentAdvice},
			TimeKinds: []query.TimeKind{query.TimeCurrent},
			Global:    true, LatencyMS: 300, Reliability: 0.97,
		},
		{
			ID:        "open-meteo-forecast",
			Provider:  "open-meteo",
			Intents:   []query.Intent{query.IntentForecast, query.IntentAdvice},
			TimeKinds: []query.TimeKind{query.TimeForecast, query.TimeCurrent},
			Global:    true, LatencyMS: 450, Reliability: 0.97,
		},
		{
			ID:        "open-meteo-archive",
			Provider:  "open-meteo",
			Intents:   []query.Intent{query.IntentHistorical},
			TimeKinds: []query.TimeKind{query.TimeHistorical},
			Global:    true, LatencyMS: 800, Reliability: 0.95,
		},
		{
			ID:        "open-meteo-geocoding",
			Provider:  "open-meteo",
			Intents:   []query.Intent{query.IntentLocationSearch},
			TimeKinds: []query.TimeKind{query.TimeCurrent},
			Global:    true, LatencyMS: 250, Reliability: 0.96,
		},
		{
			ID:        "weatherapi-current",
			Provider:  "weatherapi",
			Intents:   []query.Intent{query.IntentCurrent, query.IntentAdvice},
			TimeKinds: []query.TimeKind{query.TimeCurrent},
			Global:    true, LatencyMS: 280, Reliability: 0.96,
			CostPerCall: 0.0002, RateCeiling: 1000000, Requires: "weatherapi",
		},
		{
			ID:        "weatherapi-forecast",
			Provider:  "weatherapi",
			Intents:   []query.Intent{query.IntentForecast, query.IntentAdvice},
			TimeKinds: []query.TimeKind{query.TimeForecast, query.TimeCurrent},
			Global:    true, LatencyMS: 400, Reliability: 0.96,
			CostPerCall: 0.0002, RateCeiling: 1000000, Requires: "weatherapi",
		},
		{
			ID:        "weatherapi-history",
			Provider:  "weatherapi",
			Intents:   []query.Intent{query.IntentHistorical},
			TimeKinds: []query.TimeKind{query.TimeHistorical},
			Global:    true, LatencyMS: 600, Reliability: 0.94,
			CostPerCall: 0.0005, RateCeiling: 1000000, Requires: "weatherapi",
		},
		{
			ID:        "openweather-current",
			Provider:  "openweather",
			Intents:   []query.Intent{query.IntentCurrent},
			TimeKinds: []query.TimeKind{query.TimeCurrent},
			Global:    true, LatencyMS: 350, Reliability: 0.95,
			CostPerCall: 0.0004, RateCeiling: 60, Requires: "openweather",
		},
		{
			ID:        "google-geocoding",
			Provider:  "google",
			Intents:   []query.Intent{query.IntentLocationSearch},
			TimeKinds: []query.TimeKind{query.TimeCurrent},
			Global:    true, LatencyMS: 200, Reliability: 0.99,
			CostPerCall: 0.005, RateCeiling: 3000, Requires: "google",
		},
	}

	kept := make([]Endpoint, 0, len(all))
	for _, ep := range all {
		if keys.has(ep.Requires) {
			kept = append(kept, ep)
		}
	}
	r, err := NewRegistry(kept)
	if err != nil {
		// The built-in table is static and always valid; the keyless subset
		// is never empty.
		panic(err)
	}
	return r
}

type registryFile struct {
	Endpoints []Endpoint `yaml:"endpoints"`
}

// LoadRegistry reads an endpoint registry from a YAML file, applying the same
// credential gating as DefaultRegistry. File order is preserved.
func LoadRegistry(path string, keys ProviderKeys) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("registry: read %s: %w", path, err)
	}
	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("registry: parse %s: %w", path, err)
	}
	kept := make([]Endpoint, 0, len(f.Endpoints))
	for _, ep := range f.Endpoints {
		if keys.has(ep.Requires) {
			kept = append(kept, ep)
		}
	}
	r, err := NewRegistry(kept)
	if err != nil {
		return nil, fmt.Errorf("registry: %s: %w", path, err)
	}
	return r, nil
}
