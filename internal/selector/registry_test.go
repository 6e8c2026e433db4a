package selector

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/i474232898/weather-query-service/internal/query"
)

func TestDefaultRegistryKeyGating(t *testing.T) {
	keyless := DefaultRegistry(ProviderKeys{})
	if keyless.Len() != 4 {
		t.Fatalf("keyless registry has %d endpoints, want 4", keyless.Len())
	}
	for _, ep := range keyless.Endpoints() {
		if ep.Provider != "open-meteo" {
			t.Errorf("keyless registry contains %q, want open-meteo endpoints only", ep.ID)
		}
	}

	full := DefaultRegistry(ProviderKeys{OpenWeather: "a", WeatherAPI: "b", Google: "c"})
	if full.Len() != 9 {
		t.Fatalf("fully keyed registry has %d endpoints, want 9", full.Len())
	}

	partial := DefaultRegistry(ProviderKeys{WeatherAPI: "b"})
	if partial.Len() != 7 {
		t.Fatalf("weatherapi-only registry has %d endpoints, want 7", partial.Len())
	}
	if _, ok := partial.Get("google-geocoding"); ok {
		t.Errorf("google-geocoding present without a google key")
	}
	if _, ok := partial.Get("weatherapi-forecast"); !ok {
		t.Errorf("weatherapi-forecast missing despite its key being set")
	}
}

func TestNewRegistryValidation(t *testing.T) {
	valid := Endpoint{
		ID: "a", Provider: "p",
		Intents:   []query.Intent{query.IntentCurrent},
		TimeKinds: []query.TimeKind{query.TimeCurrent},
	}

	if _, err := NewRegistry(nil); err == nil {
		t.Errorf("empty registry accepted")
	}
	if _, err := NewRegistry([]Endpoint{valid, valid}); err == nil {
		t.Errorf("duplicate endpoint id accepted")
	}

	noID := valid
	noID.ID = ""
	if _, err := NewRegistry([]Endpoint{noID}); err == nil {
		t.Errorf("empty endpoint id accepted")
	}

	noIntents := valid
	noIntents.Intents = nil
	if _, err := NewRegistry([]Endpoint{noIntents}); err == nil {
		t.Errorf("endpoint without intents accepted")
	}
}

func TestRegistryEndpointsReturnsCopy(t *testing.T) {
	r := DefaultRegistry(ProviderKeys{})
	eps := r.Endpoints()
	eps[0].ID = "mutated"
	if got := r.Endpoints()[0].ID; got == "mutated" {
		t.Fatalf("mutating the returned slice changed the registry")
	}
}

func TestLoadRegistry(t *testing.T) {
	doc := `endpoints:
  - id: alpha-current
    provider: alpha
    intents: [current]
    time_kinds: [current]
    global: true
    latency_ms: 150
    reliability: 0.99
  - id: beta-forecast
    provider: beta
    intents: [forecast]
    time_kinds: [forecast]
    global: true
    latency_ms: 300
    reliability: 0.95
    cost_per_call: 0.001
    requires: weatherapi
`
	path := filepath.Join(t.TempDir(), "registry.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write registry file: %v", err)
	}

	keyless, err := LoadRegistry(path, ProviderKeys{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if keyless.Len() != 1 {
		t.Fatalf("keyless load kept %d endpoints, want 1", keyless.Len())
	}
	if _, ok := keyless.Get("beta-forecast"); ok {
		t.Errorf("credential-gated endpoint kept without its key")
	}

	keyed, err := LoadRegistry(path, ProviderKeys{WeatherAPI: "k"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if keyed.Len() != 2 {
		t.Fatalf("keyed load kept %d endpoints, want 2", keyed.Len())
	}
	eps := keyed.Endpoints()
	if eps[0].ID != "alpha-current" || eps[1].ID != "beta-forecast" {
		t.Errorf("file order not preserved: %q, %q", eps[0].ID, eps[1].ID)
	}
	if eps[1].CostPerCall != 0.001 {
		t.Errorf("cost_per_call = %v, want 0.001", eps[1].CostPerCall)
	}
	if !eps[0].servesKind(query.TimeCurrent) {
		t.Errorf("time_kinds not parsed: %+v", eps[0].TimeKinds)
	}
}

func TestLoadRegistryErrors(t *testing.T) {
	if _, err := LoadRegistry(filepath.Join(t.TempDir(), "missing.yaml"), ProviderKeys{}); err == nil {
		t.Errorf("missing file accepted")
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("endpoints: [not: {valid"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := LoadRegistry(bad, ProviderKeys{}); err == nil {
		t.Errorf("malformed yaml accepted")
	}
}
