package selector

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/i474232898/weather-query-service/internal/common"
	"github.com/i474232898/weather-query-service/internal/logging"
	"github.com/i474232898/weather-query-service/internal/query"
)

// ErrNoSuitableAPI means no registered endpoint supports the query's intent,
// not even through the related-intent map. A coverage gap, not a transient.
var ErrNoSuitableAPI = errors.New("no registered endpoint supports the requested intent")

// Weights control the scoring rubric. They are normalized to sum to 1 before
// use, so callers can express ratios rather than exact shares.
type Weights struct {
	Intent      float64 `yaml:"intent"`      // default: 0.35
	Coverage    float64 `yaml:"coverage"`    // default: 0.15, split between geography and freshness
	Reliability float64 `yaml:"reliability"` // default: 0.25
	Latency     float64 `yaml:"latency"`     // default: 0.15
	Cost        float64 `yaml:"cost"`        // default: 0.10, doubled near the rate limit
}

func DefaultWeights() Weights {
	return Weights{
		Intent:      0.35,
		Coverage:    0.15,
		Reliability: 0.25,
		Latency:     0.15,
		Cost:        0.10,
	}
}

// ApplyDefaults fills in zero values with defaults.
func (w *Weights) ApplyDefaults() {
	d := DefaultWeights()
	if w.Intent == 0 {
		w.Intent = d.Intent
	}
	if w.Coverage == 0 {
		w.Coverage = d.Coverage
	}
	if w.Reliability == 0 {
		w.Reliability = d.Reliability
	}
	if w.Latency == 0 {
		w.Latency = d.Latency
	}
	if w.Cost == 0 {
		w.Cost = d.Cost
	}
}

func (w Weights) normalized() Weights {
	sum := w.Intent + w.Coverage + w.Reliability + w.Latency + w.Cost
	if sum <= 0 {
		return DefaultWeights()
	}
	return Weights{
		Intent:      w.Intent / sum,
		Coverage:    w.Coverage / sum,
		Reliability: w.Reliability / sum,
		Latency:     w.Latency / sum,
		Cost:        w.Cost / sum,
	}
}

// Intent credit per match tier. Related-intent candidates are consulted only
// when no endpoint matches the intent exactly.
const (
	intentExact   = 1.0
	intentRelated = 0.55
	intentFloor   = 0.1

	coverageGeoShare   = 0.5
	coverageFreshShare = 0.5

	maxFallbacks = 3
)

// relatedIntents maps an intent to acceptable substitutes: a forecast
// endpoint can answer a current-conditions question tolerably, and advice
// questions lean on forecast data.
var relatedIntents = map[query.Intent][]query.Intent{
	query.IntentCurrent:    {query.IntentForecast},
	query.IntentForecast:   {query.IntentCurrent, query.IntentAdvice},
	query.IntentAdvice:     {query.IntentForecast, query.IntentCurrent},
	query.IntentHistorical: {query.IntentForecast},
}

// Breakdown itemizes one candidate's component scores, each in [0,1] before
// weighting. Kept per candidate so callers can render a comparison table.
type Breakdown struct {
	IntentMatch float64 `json:"intent_match"`
	Coverage    float64 `json:"coverage"`
	Freshness   float64 `json:"freshness"`
	Reliability float64 `json:"reliability"`
	Latency     float64 `json:"latency"`
	Cost        float64 `json:"cost"`
}

// Candidate is one scored endpoint. Unavailable endpoints keep a zero total
// score and stay in the list so callers see the full table.
type Candidate struct {
	Endpoint  Endpoint  `json:"endpoint"`
	Available bool      `json:"available"`
	Score     float64   `json:"score"`
	Breakdown Breakdown `json:"breakdown"`
	Reasoning string    `json:"reasoning"`
}

// Selection is the scorer's answer: one primary endpoint and up to three
// ranked fallbacks.
type Selection struct {
	Primary    Candidate   `json:"primary"`
	Fallbacks  []Candidate `json:"fallbacks"`
	Confidence float64     `json:"confidence"`
	Reasoning  string      `json:"reasoning"`
}

// Scorer ranks registry endpoints for a parsed query. It holds no mutable
// state: identical inputs always produce identical selections.
type Scorer struct {
	registry *Registry
	weights  Weights
	log      *zap.Logger
}

func NewScorer(registry *Registry, weights Weights, logger *zap.Logger) *Scorer {
	weights.ApplyDefaults()
	return &Scorer{
		registry: registry,
		weights:  weights,
		log:      logging.OrNop(logger),
	}
}

// Select picks a primary endpoint and ranked fallbacks for the query.
// Ties are broken by registry declaration order. An unavailable endpoint is
// never primary while an available one exists.
func (s *Scorer) Select(q query.ParsedQuery, sctx SelectionContext) (Selection, error) {
	intent := q.Intent.Primary
	if intent == "" {
		intent = query.IntentCurrent
	}

	pool, intentScore := s.candidatePool(intent)
	if len(pool) == 0 {
		return Selection{}, fmt.Errorf("%w: %s", ErrNoSuitableAPI, intent)
	}

	w := s.effectiveWeights(sctx)
	cands := make([]Candidate, 0, len(pool))
	for _, ep := range pool {
		cands = append(cands, s.score(ep, q, sctx, intentScore, w))
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].Score > cands[j].Score })

	primaryIdx := 0
	for i, c := range cands {
		if c.Available {
			primaryIdx = i
			break
		}
	}

	fallbacks := make([]Candidate, 0, maxFallbacks)
	for i, c := range cands {
		if i == primaryIdx || len(fallbacks) == maxFallbacks {
			continue
		}
		fallbacks = append(fallbacks, c)
	}

	primary := cands[primaryIdx]
	s.log.Debug("endpoint selected",
		zap.String("endpoint", primary.Endpoint.ID),
		zap.Float64("score", primary.Score),
		zap.Int("candidates", len(cands)))

	return Selection{
		Primary:    primary,
		Fallbacks:  fallbacks,
		Confidence: common.Clamp01(primary.Score),
		Reasoning:  primary.Reasoning,
	}, nil
}

// ScoreAll scores every registry endpoint against the query, including the
// ones outside the candidate pool (those get the intent floor). Used by the
// inspection API to render the full table.
func (s *Scorer) ScoreAll(q query.ParsedQuery, sctx SelectionContext) []Candidate {
	intent := q.Intent.Primary
	if intent == "" {
		intent = query.IntentCurrent
	}
	w := s.effectiveWeights(sctx)
	cands := make([]Candidate, 0, s.registry.Len())
	for _, ep := range s.registry.endpoints {
		cands = append(cands, s.score(ep, q, sctx, intentCredit(ep, intent), w))
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].Score > cands[j].Score })
	return cands
}

// candidatePool returns the endpoints eligible for the intent: exact matches
// when any exist, otherwise related-intent matches at reduced credit.
func (s *Scorer) candidatePool(intent query.Intent) ([]Endpoint, float64) {
	exact := make([]Endpoint, 0, s.registry.Len())
	for _, ep := range s.registry.endpoints {
		if ep.supports(intent) {
			exact = append(exact, ep)
		}
	}
	if len(exact) > 0 {
		return exact, intentExact
	}

	related := make([]Endpoint, 0, s.registry.Len())
	for _, ep := range s.registry.endpoints {
		for _, rel := range relatedIntents[intent] {
			if ep.supports(rel) {
				related = append(related, ep)
				break
			}
		}
	}
	return related, intentRelated
}

func intentCredit(ep Endpoint, intent query.Intent) float64 {
	if ep.supports(intent) {
		return intentExact
	}
	for _, rel := range relatedIntents[intent] {
		if ep.supports(rel) {
			return intentRelated
		}
	}
	return intentFloor
}

func (s *Scorer) effectiveWeights(sctx SelectionContext) Weights {
	w := s.weights
	if sctx.NearRateLimit {
		w.Cost *= 2
	}
	return w.normalized()
}

func (s *Scorer) score(ep Endpoint, q query.ParsedQuery, sctx SelectionContext, intentScore float64, w Weights) Candidate {
	h, tracked := sctx.Health[ep.ID]
	available := !tracked || h.Available

	br := Breakdown{
		IntentMatch: intentScore,
		Coverage:    coverageScore(ep),
		Freshness:   freshnessScore(ep, q.TimeScope.Kind),
		Reliability: reliabilityScore(ep, h, tracked),
		Latency:     latencyScore(effectiveLatencyMS(ep, h)),
		Cost:        costScore(ep.CostPerCall),
	}

	total := w.Intent*br.IntentMatch +
		w.Coverage*(coverageGeoShare*br.Coverage+coverageFreshShare*br.Freshness) +
		w.Reliability*br.Reliability +
		w.Latency*br.Latency +
		w.Cost*br.Cost

	if !available {
		br.Reliability = 0
		total = 0
	}

	return Candidate{
		Endpoint:  ep,
		Available: available,
		Score:     common.Clamp01(total),
		Breakdown: br,
		Reasoning: reasoning(ep, br, w, available),
	}
}

func coverageScore(ep Endpoint) float64 {
	if ep.Global {
		return 1.0
	}
	return 0.6
}

// freshnessScore penalizes endpoints whose data windows miss the query's time
// scope, e.g. a current-conditions endpoint asked about a forecast. Endpoints
// declaring no time kinds (geocoders) are treated as universal.
func freshnessScore(ep Endpoint, kind query.TimeKind) float64 {
	if kind == "" || len(ep.TimeKinds) == 0 || ep.servesKind(kind) {
		return 1.0
	}
	return 0.3
}

func reliabilityScore(ep Endpoint, h EndpointHealth, tracked bool) float64 {
	if tracked && h.Samples > 0 {
		return common.Clamp01(1 - h.ErrorRate)
	}
	return common.Clamp01(ep.Reliability)
}

func effectiveLatencyMS(ep Endpoint, h EndpointHealth) float64 {
	if h.Latency > 0 {
		return float64(h.Latency.Milliseconds())
	}
	return float64(ep.LatencyMS)
}

func latencyScore(ms float64) float64 {
	switch {
	case ms < 200:
		return 1.0
	case ms < 500:
		return 0.8
	case ms < 1000:
		return 0.6
	case ms < 2000:
		return 0.3
	default:
		return 0.1
	}
}

func costScore(cost float64) float64 {
	switch {
	case cost <= 0:
		return 1.0
	case cost <= 0.0001:
		return 0.9
	case cost <= 0.001:
		return 0.7
	case cost <= 0.01:
		return 0.4
	default:
		return 0.2
	}
}

// reasoning names the two factors contributing most to the weighted total.
func reasoning(ep Endpoint, br Breakdown, w Weights, available bool) string {
	if !available {
		return fmt.Sprintf("%s is unavailable after repeated failures", ep.ID)
	}
	factors := []struct {
		name  string
		value float64
	}{
		{"intent match", w.Intent * br.IntentMatch},
		{"coverage", w.Coverage * coverageGeoShare * br.Coverage},
		{"freshness", w.Coverage * coverageFreshShare * br.Freshness},
		{"reliability", w.Reliability * br.Reliability},
		{"latency", w.Latency * br.Latency},
		{"cost", w.Cost * br.Cost},
	}
	sort.SliceStable(factors, func(i, j int) bool { return factors[i].value > factors[j].value })
	return fmt.Sprintf("%s leads on %s (%.2f) and %s (%.2f)",
		ep.ID, factors[0].name, factors[0].value, factors[1].name, factors[1].value)
}
