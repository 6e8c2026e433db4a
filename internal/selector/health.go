package selector

import (
	"sync"
	"time"
)

// EndpointHealth is a point-in-time view of one endpoint's observed behavior.
// A zero Latency means no latency observation exists yet.
type EndpointHealth struct {
	Available bool          `json:"available"`
	ErrorRate float64       `json:"error_rate"`
	Latency   time.Duration `json:"latency"`
	Samples   int           `json:"samples"`
}

// SelectionContext carries the live signals folded into one selection.
// NearRateLimit is the caller telling the scorer to weigh cost more heavily.
type SelectionContext struct {
	Health        map[string]EndpointHealth
	NearRateLimit bool
}

const (
	// ewmaAlpha is the weight of the newest observation.
	ewmaAlpha = 0.3
	// downAfterFailures marks an endpoint unavailable after this many
	// consecutive failures; any success clears the streak.
	downAfterFailures = 3
)

// HealthTracker keeps exponentially weighted error-rate and latency figures
// per endpoint, fed by the fetch path and read by the scorer.
type HealthTracker struct {
	mu      sync.Mutex
	entries map[string]*healthEntry
}

type healthEntry struct {
	errorRate  float64
	latencyMS  float64
	samples    int
	failStreak int
}

func NewHealthTracker() *HealthTracker {
	return &HealthTracker{entries: make(map[string]*healthEntry)}
}

// Observe records the outcome of one upstream call. A zero latency is kept
// out of the latency average so connect-refused failures do not masquerade as
// fast responses.
func (t *HealthTracker) Observe(endpointID string, latency time.Duration, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.entries[endpointID]
	if e == nil {
		e = &healthEntry{}
		t.entries[endpointID] = e
	}

	failure := 0.0
	if err != nil {
		failure = 1.0
		e.failStreak++
	} else {
		e.failStreak = 0
	}

	if e.samples == 0 {
		e.errorRate = failure
	} else {
		e.errorRate = ewmaAlpha*failure + (1-ewmaAlpha)*e.errorRate
	}
	if ms := float64(latency.Milliseconds()); ms > 0 {
		if e.latencyMS == 0 {
			e.latencyMS = ms
		} else {
			e.latencyMS = ewmaAlpha*ms + (1-ewmaAlpha)*e.latencyMS
		}
	}
	e.samples++
}

// Snapshot copies the tracked state for use in one selection. The returned
// map is owned by the caller.
func (t *HealthTracker) Snapshot() map[string]EndpointHealth {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]EndpointHealth, len(t.entries))
	for id, e := range t.entries {
		out[id] = EndpointHealth{
			Available: e.failStreak < downAfterFailures,
			ErrorRate: e.errorRate,
			Latency:   time.Duration(e.latencyMS) * time.Millisecond,
			Samples:   e.samples,
		}
	}
	return out
}
