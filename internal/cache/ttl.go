package cache

import "time"

// TTLPolicy fixes how long each data class stays fresh. Lifetime is inverse
// to update frequency: history never changes, current conditions change
// constantly.
type TTLPolicy struct {
	Current    time.Duration
	Forecast   time.Duration
	Historical time.Duration
	Location   time.Duration
}

func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		Current:    5 * time.Minute,
		Forecast:   30 * time.Minute,
		Historical: 24 * time.Hour,
		Location:   7 * 24 * time.Hour,
	}
}

// ApplyDefaults fills in zero values with defaults.
func (p *TTLPolicy) ApplyDefaults() {
	d := DefaultTTLPolicy()
	if p.Current == 0 {
		p.Current = d.Current
	}
	if p.Forecast == 0 {
		p.Forecast = d.Forecast
	}
	if p.Historical == 0 {
		p.Historical = d.Historical
	}
	if p.Location == 0 {
		p.Location = d.Location
	}
}

// For returns the lifetime for a data class. Unknown classes get the
// shortest lifetime.
func (p TTLPolicy) For(class DataClass) time.Duration {
	switch class {
	case ClassForecast:
		return p.Forecast
	case ClassHistorical:
		return p.Historical
	case ClassLocation:
		return p.Location
	default:
		return p.Current
	}
}
