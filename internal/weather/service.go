package weather

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/i474232898/weather-query-service/internal/cache"
	"github.com/i474232898/weather-query-service/internal/logging"
	"github.com/i474232898/weather-query-service/internal/query"
	"github.com/i474232898/weather-query-service/internal/ratelimit"
	"github.com/i474232898/weather-query-service/internal/selector"
)

const (
	// maxSectionAttempts bounds how many ranked endpoints one section tries.
	maxSectionAttempts = 3
	// nearLimitShare is the window usage at which selection starts favoring
	// cheap endpoints.
	nearLimitShare = 0.8

	defaultDays  = 7
	defaultHours = 24
	maxDays      = 16
	maxHours     = 48
)

// errNoCapability marks a candidate whose provider cannot serve the section.
// Skipped without spending an attempt.
var errNoCapability = errors.New("provider does not serve this section")

// errNoProvider means no registered candidate had a configured provider for
// the section.
var errNoProvider = errors.New("no configured provider can serve this section")

// Options are the caller's knobs for one query. Zero values fall back to the
// parsed query and service defaults.
type Options struct {
	Units         string
	Language      string
	Days          int
	Hours         int
	IncludeHourly bool
	IncludeDaily  bool
}

// ServiceConfig bundles the collaborators of a Service. Parser, Registry,
// Cache and Limiter are required.
type ServiceConfig struct {
	Parser       *query.Parser
	Registry     *selector.Registry
	Health       *selector.HealthTracker
	Weights      selector.Weights
	Cache        *cache.Store
	TTL          cache.TTLPolicy
	Limiter      *ratelimit.Limiter
	Providers    []Provider
	Geocoders    []Geocoder
	DefaultUnits Units
	Logger       *zap.Logger
}

// Service is the orchestration facade: parse the query, resolve the
// location, check the cache, pick an endpoint, fetch, cache, answer.
type Service struct {
	parser    *query.Parser
	registry  *selector.Registry
	scorer    *selector.Scorer
	health    *selector.HealthTracker
	cache     *cache.Store
	ttl       cache.TTLPolicy
	limiter   *ratelimit.Limiter
	providers map[string]Provider
	geocoders map[string]Geocoder
	units     Units
	log       *zap.Logger
	now       func() time.Time
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Parser == nil {
		return nil, fmt.Errorf("weather: parser is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("weather: endpoint registry is required")
	}
	if cfg.Cache == nil {
		return nil, fmt.Errorf("weather: cache store is required")
	}
	if cfg.Limiter == nil {
		return nil, fmt.Errorf("weather: rate limiter is required")
	}
	if cfg.Health == nil {
		cfg.Health = selector.NewHealthTracker()
	}
	cfg.TTL.ApplyDefaults()
	if cfg.DefaultUnits == "" {
		cfg.DefaultUnits = UnitsMetric
	}

	providers := make(map[string]Provider, len(cfg.Providers))
	for _, p := range cfg.Providers {
		providers[p.Name()] = p
	}
	geocoders := make(map[string]Geocoder, len(cfg.Geocoders))
	for _, g := range cfg.Geocoders {
		geocoders[g.Name()] = g
	}

	return &Service{
		parser:    cfg.Parser,
		registry:  cfg.Registry,
		scorer:    selector.NewScorer(cfg.Registry, cfg.Weights, cfg.Logger),
		health:    cfg.Health,
		cache:     cfg.Cache,
		ttl:       cfg.TTL,
		limiter:   cfg.Limiter,
		providers: providers,
		geocoders: geocoders,
		units:     cfg.DefaultUnits,
		log:       logging.OrNop(cfg.Logger),
		now:       time.Now,
	}, nil
}

// Query answers one natural-language weather question. All failures come
// back as *QueryError.
func (s *Service) Query(ctx context.Context, text, freeContext string, opts Options) (*QueryResult, error) {
	requestID := uuid.NewString()

	parsed, err := s.parser.Parse(ctx, text, freeContext)
	if err != nil {
		var verr *query.ValidationError
		if errors.As(err, &verr) {
			return nil, newQueryError(CodeValidation, verr.Message, err,
				"send a non-empty query of at most 500 characters")
		}
		return nil, newQueryError(CodeValidation, "query could not be parsed", err,
			"rephrase the query")
	}

	opts = s.normalizeOptions(opts, parsed)
	meta := Metadata{
		RequestID:     requestID,
		Confidence:    parsed.Confidence,
		ParsingSource: parsed.Source,
		Degraded:      s.parser.Degraded(parsed),
		Language:      effectiveLanguage(opts, parsed),
		Intent:        parsed.Intent.Primary,
	}

	log := s.log.With(zap.String("request_id", requestID))
	log.Debug("query parsed",
		zap.String("intent", string(parsed.Intent.Primary)),
		zap.String("location", parsed.Location.Name),
		zap.Float64("confidence", parsed.Confidence),
		zap.String("parsing_source", string(parsed.Source)))

	if parsed.Intent.Primary == query.IntentLocationSearch {
		return s.locationSearch(ctx, parsed, meta)
	}

	loc, qerr := s.resolveLocation(ctx, parsed, meta.Language)
	if qerr != nil {
		return nil, qerr
	}

	key := s.cacheKey(loc, parsed, opts, meta.Language)
	var hit QueryResult
	if s.cache.Get(key.String(), &hit) {
		sources := hit.Metadata.Sources
		hit.Metadata = meta
		hit.Metadata.Sources = sources
		hit.Metadata.Cached = true
		return &hit, nil
	}

	if !s.limiter.TryAcquire() {
		return nil, s.rateLimitError()
	}

	sel, err := s.scorer.Select(parsed, s.selectionContext())
	if err != nil {
		return nil, newQueryError(CodeNoSuitableAPI,
			fmt.Sprintf("no upstream endpoint can answer a %s query", parsed.Intent.Primary), err,
			"check the endpoint registry and configured provider keys")
	}

	result, qerr := s.fetchSections(ctx, sel, loc, parsed, opts, meta)
	if qerr != nil {
		return nil, qerr
	}

	if err := s.cache.Set(key.String(), result, s.ttl.For(key.Class)); err != nil {
		log.Warn("cache write failed", zap.Error(err))
	}
	return result, nil
}

// Endpoints scores every registered endpoint for an intent against live
// health, for the inspection API. An empty intent means current.
func (s *Service) Endpoints(intent query.Intent) []selector.Candidate {
	q := query.ParsedQuery{Intent: query.IntentGuess{Primary: intent, Confidence: 1}}
	return s.scorer.ScoreAll(q, s.selectionContext())
}

// CacheStats exposes the cache counters.
func (s *Service) CacheStats() cache.Stats {
	return s.cache.Stats()
}

func (s *Service) normalizeOptions(opts Options, parsed query.ParsedQuery) Options {
	if !Units(opts.Units).Valid() {
		opts.Units = string(s.units)
	}
	if opts.Days <= 0 {
		opts.Days = daysFromScope(parsed.TimeScope, defaultDays)
	}
	if opts.Days > maxDays {
		opts.Days = maxDays
	}
	if opts.Hours <= 0 {
		opts.Hours = defaultHours
	}
	if opts.Hours > maxHours {
		opts.Hours = maxHours
	}
	switch parsed.Intent.Primary {
	case query.IntentForecast, query.IntentAdvice:
		// Forecast answers are daily by nature; advice leans on them.
		opts.IncludeDaily = true
	}
	return opts
}

// daysFromScope derives a day count from the parsed duration, e.g. "72h"
// asks for a three-day forecast.
func daysFromScope(scope query.TimeScope, fallback int) int {
	if scope.Duration == "" {
		return fallback
	}
	d, err := time.ParseDuration(scope.Duration)
	if err != nil || d <= 0 {
		return fallback
	}
	days := int((d + 23*time.Hour) / (24 * time.Hour))
	if days < 1 {
		days = 1
	}
	if days > maxDays {
		days = maxDays
	}
	return days
}

func effectiveLanguage(opts Options, parsed query.ParsedQuery) string {
	if opts.Language != "" {
		return opts.Language
	}
	return parsed.Language
}

func (s *Service) cacheKey(loc Location, parsed query.ParsedQuery, opts Options, language string) cache.Key {
	k := cache.Key{
		Lat:      loc.Lat,
		Lon:      loc.Lon,
		Units:    opts.Units,
		Language: language,
		Class:    classFor(parsed.Intent.Primary),
		Hourly:   opts.IncludeHourly,
		Daily:    opts.IncludeDaily,
	}
	if k.Class == cache.ClassHistorical {
		from, to := s.historicalRange(parsed.TimeScope)
		k.Range = from.Format("2006-01-02") + "/" + to.Format("2006-01-02")
		return k
	}
	// Day and hour spans change the payload, so they are part of the key.
	days, hours := 0, 0
	if opts.IncludeDaily {
		days = opts.Days
	}
	if opts.IncludeHourly {
		hours = opts.Hours
	}
	k.Range = fmt.Sprintf("%dd/%dh", days, hours)
	return k
}

func classFor(intent query.Intent) cache.DataClass {
	switch intent {
	case query.IntentForecast:
		return cache.ClassForecast
	case query.IntentHistorical:
		return cache.ClassHistorical
	case query.IntentLocationSearch:
		return cache.ClassLocation
	default:
		return cache.ClassCurrent
	}
}

// historicalRange converts the parsed time scope into an inclusive date
// range ending yesterday, the newest complete archive day.
func (s *Service) historicalRange(scope query.TimeScope) (time.Time, time.Time) {
	if scope.Start != nil && scope.End != nil {
		return scope.Start.UTC(), scope.End.UTC()
	}
	d := 24 * time.Hour
	if scope.Duration != "" {
		if parsed, err := time.ParseDuration(scope.Duration); err == nil && parsed > 0 {
			d = parsed
		}
	}
	days := int(d / (24 * time.Hour))
	if days < 1 {
		days = 1
	}
	end := s.now().UTC().AddDate(0, 0, -1)
	start := end.AddDate(0, 0, -(days - 1))
	return start, end
}

func (s *Service) resolveLocation(ctx context.Context, parsed query.ParsedQuery, language string) (Location, *QueryError) {
	guess := parsed.Location
	if guess.Lat != nil && guess.Lon != nil {
		return Location{Name: guess.Name, Lat: *guess.Lat, Lon: *guess.Lon}, nil
	}

	name := strings.TrimSpace(guess.Name)
	if name == "" {
		return Location{}, newQueryError(CodeLocationNotSpecified,
			"the query does not name a place", nil,
			`name a city or place, e.g. "weather in Taipei"`)
	}

	places, _, qerr := s.geocode(ctx, name, language)
	if qerr != nil {
		return Location{}, qerr
	}
	best := places[0]
	return Location{
		Name:     best.Name,
		Country:  best.Country,
		Timezone: best.Timezone,
		Lat:      best.Lat,
		Lon:      best.Lon,
	}, nil
}

// geocode resolves a place name, through the cache first. The returned
// provider name is empty on a cache hit. A successful lookup with zero
// matches is a definitive LOCATION_NOT_FOUND, not an upstream failure.
func (s *Service) geocode(ctx context.Context, name, language string) ([]Place, string, *QueryError) {
	key := cache.LocationKey(name, language)
	var places []Place
	if s.cache.Get(key, &places) && len(places) > 0 {
		return places, "", nil
	}

	if !s.limiter.TryAcquire() {
		return nil, "", s.rateLimitError()
	}

	geoQuery := query.ParsedQuery{Intent: query.IntentGuess{Primary: query.IntentLocationSearch, Confidence: 1}}
	sel, err := s.scorer.Select(geoQuery, s.selectionContext())
	if err != nil {
		return nil, "", newQueryError(CodeNoSuitableAPI,
			"no geocoding endpoint is registered", err,
			"register a geocoding endpoint or include coordinates in the query")
	}

	var lastErr error
	tries := 0
	for _, c := range candidateList(sel) {
		if tries >= maxSectionAttempts {
			break
		}
		g, ok := s.geocoders[c.Endpoint.Provider]
		if !ok {
			continue
		}
		start := time.Now()
		got, gerr := g.Geocode(ctx, name, language)
		s.health.Observe(c.Endpoint.ID, time.Since(start), gerr)
		tries++
		if gerr != nil {
			lastErr = gerr
			s.log.Warn("geocoding failed",
				zap.String("endpoint", c.Endpoint.ID),
				zap.String("name", name),
				zap.Error(gerr))
			continue
		}
		if len(got) == 0 {
			return nil, "", newQueryError(CodeLocationNotFound,
				fmt.Sprintf("no place matches %q", name), nil,
				"check the spelling or use a larger nearby city")
		}
		if err := s.cache.Set(key, got, s.ttl.For(cache.ClassLocation)); err != nil {
			s.log.Warn("cache write failed", zap.Error(err))
		}
		return got, c.Endpoint.Provider, nil
	}

	if lastErr != nil {
		return nil, "", s.upstreamQueryError(lastErr)
	}
	return nil, "", newQueryError(CodeNoSuitableAPI,
		"no geocoding provider is configured", nil,
		"configure a geocoding provider")
}

func (s *Service) locationSearch(ctx context.Context, parsed query.ParsedQuery, meta Metadata) (*QueryResult, error) {
	name := strings.TrimSpace(parsed.Location.Name)
	if name == "" {
		return nil, newQueryError(CodeLocationNotSpecified,
			"the query does not name a place to look up", nil,
			`name the place to find, e.g. "find Kyoto"`)
	}

	places, provider, qerr := s.geocode(ctx, name, meta.Language)
	if qerr != nil {
		return nil, qerr
	}
	meta.Cached = provider == ""
	if provider != "" {
		meta.Sources = []string{provider}
	}
	return &QueryResult{
		Location: placeLocation(places[0]),
		Places:   places,
		Metadata: meta,
	}, nil
}

// fetchSections fans out the requested sections concurrently. Each section
// writes a distinct result field; sections fail independently and partial
// results are success. Only all sections failing is an error.
func (s *Service) fetchSections(ctx context.Context, sel selector.Selection, loc Location, parsed query.ParsedQuery, opts Options, meta Metadata) (*QueryResult, *QueryError) {
	fo := FetchOptions{Units: Units(opts.Units), Language: meta.Language}
	cands := candidateList(sel)
	result := &QueryResult{Location: loc, Metadata: meta}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		sources []string
		lastErr error
	)

	section := func(fetch func() (string, error)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			src, err := fetch()
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				lastErr = err
				return
			}
			sources = append(sources, src)
		}()
	}

	if parsed.Intent.Primary == query.IntentHistorical {
		from, to := s.historicalRange(parsed.TimeScope)
		section(func() (string, error) {
			return s.attempt(cands, func(p Provider) error {
				hp, ok := p.(HistoricalProvider)
				if !ok {
					return errNoCapability
				}
				days, err := hp.Historical(ctx, loc, from, to, fo)
				if err != nil {
					return err
				}
				result.Daily = days
				return nil
			})
		})
	} else {
		section(func() (string, error) {
			return s.attempt(cands, func(p Provider) error {
				cur, err := p.Current(ctx, loc, fo)
				if err != nil {
					return err
				}
				result.Current = cur
				return nil
			})
		})
		if opts.IncludeDaily {
			section(func() (string, error) {
				return s.attempt(cands, func(p Provider) error {
					fp, ok := p.(ForecastProvider)
					if !ok {
						return errNoCapability
					}
					days, err := fp.Forecast(ctx, loc, opts.Days, fo)
					if err != nil {
						return err
					}
					result.Daily = days
					return nil
				})
			})
		}
		if opts.IncludeHourly {
			section(func() (string, error) {
				return s.attempt(cands, func(p Provider) error {
					hp, ok := p.(HourlyProvider)
					if !ok {
						return errNoCapability
					}
					hours, err := hp.Hourly(ctx, loc, opts.Hours, fo)
					if err != nil {
						return err
					}
					result.Hourly = hours
					return nil
				})
			})
		}
	}

	wg.Wait()

	if result.Current == nil && len(result.Daily) == 0 && len(result.Hourly) == 0 {
		return nil, s.upstreamQueryError(lastErr)
	}

	sort.Strings(sources)
	result.Metadata.Sources = dedupe(sources)
	return result, nil
}

// attempt walks the ranked candidates for one section, spending at most
// three attempts, and records every outcome in the health tracker. A
// candidate whose provider lacks the capability does not spend an attempt.
func (s *Service) attempt(cands []selector.Candidate, call func(Provider) error) (string, error) {
	var lastErr error
	tries := 0
	for _, c := range cands {
		if tries >= maxSectionAttempts {
			break
		}
		p, ok := s.providers[c.Endpoint.Provider]
		if !ok {
			continue
		}
		start := time.Now()
		err := call(p)
		if errors.Is(err, errNoCapability) {
			continue
		}
		tries++
		s.health.Observe(c.Endpoint.ID, time.Since(start), err)
		if err == nil {
			return c.Endpoint.Provider, nil
		}
		lastErr = err
		s.log.Warn("section fetch failed",
			zap.String("endpoint", c.Endpoint.ID),
			zap.Error(err))
	}
	if lastErr == nil {
		lastErr = errNoProvider
	}
	return "", lastErr
}

func (s *Service) selectionContext() selector.SelectionContext {
	count, limit := s.limiter.Usage()
	return selector.SelectionContext{
		Health:        s.health.Snapshot(),
		NearRateLimit: limit > 0 && float64(count) >= nearLimitShare*float64(limit),
	}
}

func (s *Service) rateLimitError() *QueryError {
	qe := newQueryError(CodeRateLimitExceeded,
		"request budget exhausted for the current window", nil,
		"retry after the indicated delay")
	qe.RetryAfter = s.limiter.RetryAfter()
	return qe
}

// upstreamQueryError converts the last section failure into the caller
// facing error.
func (s *Service) upstreamQueryError(err error) *QueryError {
	if err == nil || errors.Is(err, errNoProvider) {
		return newQueryError(CodeNoSuitableAPI,
			"no configured provider can serve this query", err,
			"configure a provider for this data type")
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		msg := fmt.Sprintf("weather data is unavailable (%s)", ue.Code)
		switch ue.Code {
		case UpstreamUnauthorized:
			return newQueryError(CodeUpstream, msg, err,
				"check the provider API key configuration")
		default:
			return newQueryError(CodeUpstream, msg, err,
				"retry in a little while", "try a different location")
		}
	}
	return newQueryError(CodeUpstream, "weather data is unavailable", err,
		"retry in a little while")
}

func candidateList(sel selector.Selection) []selector.Candidate {
	return append([]selector.Candidate{sel.Primary}, sel.Fallbacks...)
}

func placeLocation(p Place) Location {
	return Location{Name: p.Name, Country: p.Country, Timezone: p.Timezone, Lat: p.Lat, Lon: p.Lon}
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	var prev string
	for i, v := range sorted {
		if i == 0 || v != prev {
			out = append(out, v)
		}
		prev = v
	}
	return out
}
