package cache

import (
	"fmt"
	"testing"
	"time"
)

type payload struct {
	Name string  `json:"name"`
	Temp float64 `json:"temp"`
}

func TestStoreRoundTrip(t *testing.T) {
	s := New(10)
	in := payload{Name: "taipei", Temp: 28.5}
	if err := s.Set("k", in, time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var out payload
	if !s.Get("k", &out) {
		t.Fatalf("expected hit, got miss")
	}
	if out != in {
		t.Fatalf("expected %+v, got %+v", in, out)
	}

	if s.Get("absent", &out) {
		t.Errorf("expected miss for unknown key")
	}
}

func TestStoreExpiry(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)
	s := New(10)
	s.now = func() time.Time { return now }

	if err := s.Set("k", payload{Name: "x"}, 5*time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var out payload
	now = now.Add(5*time.Minute - time.Second)
	if !s.Get("k", &out) {
		t.Fatalf("entry expired before its ttl")
	}

	now = now.Add(time.Second)
	if s.Get("k", &out) {
		t.Fatalf("entry still live past its ttl")
	}
	if got := s.Stats().Expirations; got != 1 {
		t.Errorf("expirations = %d, want 1", got)
	}
	if s.Len() != 0 {
		t.Errorf("expired entry not removed on read")
	}
}

func TestStoreCorruptEntryIsMiss(t *testing.T) {
	s := New(10)
	if err := s.Set("k", payload{Name: "x"}, time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s.mu.Lock()
	s.entries["k"].data = []byte("{corrupt")
	s.mu.Unlock()

	var out payload
	if s.Get("k", &out) {
		t.Fatalf("undecodable entry reported as hit")
	}
	if s.Len() != 0 {
		t.Errorf("undecodable entry not purged")
	}
}

func TestStoreSizeCeiling(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)
	s := New(10)
	s.now = func() time.Time { return now }

	for i := 0; i < 11; i++ {
		now = now.Add(time.Second)
		if err := s.Set(fmt.Sprintf("k%d", i), payload{Temp: float64(i)}, time.Hour); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if got := s.Len(); got > 10 {
		t.Fatalf("store above ceiling after cleanup: %d entries", got)
	}
	if got := s.Len(); got != 9 {
		t.Errorf("store size = %d, want cleanup threshold 9", got)
	}

	// Oldest entries go first.
	var out payload
	if s.Get("k0", &out) || s.Get("k1", &out) {
		t.Errorf("oldest entries survived eviction")
	}
	if !s.Get("k10", &out) {
		t.Errorf("newest entry evicted")
	}
	if got := s.Stats().Evictions; got != 2 {
		t.Errorf("evictions = %d, want 2", got)
	}
}

func TestStoreCleanupPrefersExpired(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)
	s := New(10)
	s.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		if err := s.Set(fmt.Sprintf("stale%d", i), payload{}, time.Second); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	now = now.Add(2 * time.Second)
	for i := 0; i < 6; i++ {
		now = now.Add(time.Second)
		if err := s.Set(fmt.Sprintf("fresh%d", i), payload{}, time.Hour); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if got := s.Len(); got != 6 {
		t.Fatalf("store size = %d, want the 6 fresh entries", got)
	}
	st := s.Stats()
	if st.Expirations != 5 {
		t.Errorf("expirations = %d, want 5", st.Expirations)
	}
	if st.Evictions != 0 {
		t.Errorf("evictions = %d, want 0 when sweeping was enough", st.Evictions)
	}
}

func TestStoreSweep(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)
	s := New(10)
	s.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if err := s.Set(fmt.Sprintf("short%d", i), payload{}, time.Minute); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	for i := 0; i < 2; i++ {
		if err := s.Set(fmt.Sprintf("long%d", i), payload{}, time.Hour); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	now = now.Add(10 * time.Minute)
	if got := s.Sweep(); got != 3 {
		t.Fatalf("sweep removed %d entries, want 3", got)
	}
	if got := s.Len(); got != 2 {
		t.Errorf("store size after sweep = %d, want 2", got)
	}
	if got := s.Sweep(); got != 0 {
		t.Errorf("second sweep removed %d entries, want 0", got)
	}
}

func TestStoreStats(t *testing.T) {
	s := New(10)
	var out payload
	s.Get("k", &out)
	if err := s.Set("k", payload{Name: "x"}, time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.Get("k", &out)

	st := s.Stats()
	if st.Entries != 1 || st.Hits != 1 || st.Misses != 1 {
		t.Errorf("stats = %+v, want entries 1, hits 1, misses 1", st)
	}
	if st.MaxEntries != 10 {
		t.Errorf("max entries = %d, want 10", st.MaxEntries)
	}
}

func TestKeyCanonicalForm(t *testing.T) {
	a := Key{Lat: 25.0339, Lon: 121.5645, Units: "metric", Language: "en", Class: ClassCurrent}
	b := Key{Lat: 25.0341, Lon: 121.5649, Units: "metric", Language: "en", Class: ClassCurrent}
	if a.String() != b.String() {
		t.Errorf("near-identical coordinates map to different keys:\n%s\n%s", a, b)
	}

	c := a
	c.Lat = 25.0351
	if a.String() == c.String() {
		t.Errorf("distinct coordinates share a key: %s", a)
	}

	d := a
	d.Units = "imperial"
	if a.String() == d.String() {
		t.Errorf("unit systems share a key: %s", a)
	}

	e := a
	e.Hourly = true
	if a.String() == e.String() {
		t.Errorf("hourly flag does not change the key: %s", a)
	}

	f := a
	f.Class = ClassForecast
	if a.String() == f.String() {
		t.Errorf("data classes share a key: %s", a)
	}

	g := a
	g.Range = "2024-01-01/2024-01-07"
	if a.String() == g.String() {
		t.Errorf("historical range does not change the key: %s", a)
	}
}

func TestLocationKeyNormalization(t *testing.T) {
	if LocationKey("  Taipei ", "en") != LocationKey("taipei", "en") {
		t.Errorf("location key not normalized for case and spacing")
	}
	if LocationKey("taipei", "en") == LocationKey("taipei", "ja") {
		t.Errorf("languages share a location key")
	}
}

func TestTTLPolicyFor(t *testing.T) {
	p := DefaultTTLPolicy()
	cases := []struct {
		class DataClass
		want  time.Duration
	}{
		{ClassCurrent, 5 * time.Minute},
		{ClassForecast, 30 * time.Minute},
		{ClassHistorical, 24 * time.Hour},
		{ClassLocation, 7 * 24 * time.Hour},
		{DataClass("unknown"), 5 * time.Minute},
	}
	for _, c := range cases {
		if got := p.For(c.class); got != c.want {
			t.Errorf("ttl for %s = %v, want %v", c.class, got, c.want)
		}
	}

	var partial TTLPolicy
	partial.Forecast = time.Hour
	partial.ApplyDefaults()
	if partial.Forecast != time.Hour {
		t.Errorf("explicit forecast ttl overwritten: %v", partial.Forecast)
	}
	if partial.Current != 5*time.Minute {
		t.Errorf("zero current ttl not defaulted: %v", partial.Current)
	}
}
