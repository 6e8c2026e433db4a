package query

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/i474232898/weather-query-service/internal/logging"
)

// Confidence thresholds. With an external parser configured, rule results
// below thresholdWithFallback trigger a fallback call; without one, results
// below thresholdRulesOnly are merely flagged as degraded, since there is
// nothing to fall back to.
const (
	thresholdWithFallback = 0.5
	thresholdRulesOnly    = 0.3

	defaultMaxLength       = 500
	defaultMaxWordLength   = 100
	defaultFallbackTimeout = 2 * time.Second
)

// ParserConfig wires a Parser. Every field is optional: the zero value yields
// a rules-only parser with default limits.
type ParserConfig struct {
	// Fallback is the external language-model parser. Nil puts the parser
	// into rules-fallback mode, which every result truthfully reports.
	Fallback FallbackParser
	// FallbackTimeout bounds a single fallback call.
	FallbackTimeout time.Duration
	// MaxLength and MaxWordLength limit query text, in runes.
	MaxLength     int
	MaxWordLength int
	Logger        *zap.Logger
}

// Parser validates raw query text, runs the rule classifier, and consults the
// external fallback parser when rule confidence is too low.
type Parser struct {
	fallback        FallbackParser
	fallbackTimeout time.Duration
	maxLength       int
	maxWordLength   int
	log             *zap.Logger
}

func NewParser(cfg ParserConfig) *Parser {
	p := &Parser{
		fallback:        cfg.Fallback,
		fallbackTimeout: cfg.FallbackTimeout,
		maxLength:       cfg.MaxLength,
		maxWordLength:   cfg.MaxWordLength,
		log:             logging.OrNop(cfg.Logger),
	}
	if p.fallbackTimeout <= 0 {
		p.fallbackTimeout = defaultFallbackTimeout
	}
	if p.maxLength <= 0 {
		p.maxLength = defaultMaxLength
	}
	if p.maxWordLength <= 0 {
		p.maxWordLength = defaultMaxWordLength
	}
	return p
}

// Threshold returns the confidence bar currently in effect, which depends on
// whether an external fallback parser is configured.
func (p *Parser) Threshold() float64 {
	if p.fallback != nil {
		return thresholdWithFallback
	}
	return thresholdRulesOnly
}

// Degraded reports whether a parse result fell short of the active threshold.
func (p *Parser) Degraded(q ParsedQuery) bool {
	return q.Confidence < p.Threshold()
}

// Parse turns free text into a ParsedQuery. The only error it returns is
// *ValidationError: fallback failures are absorbed and recorded in the
// result's Source so the caller can still serve the request.
func (p *Parser) Parse(ctx context.Context, text, freeContext string) (ParsedQuery, error) {
	if err := p.validate(text); err != nil {
		return ParsedQuery{}, err
	}

	rule := Classify(text, freeContext)

	if p.fallback == nil {
		rule.Source = SourceRulesFallback
		return rule, nil
	}

	if rule.Confidence >= thresholdWithFallback {
		rule.Source = SourceRulesOnly
		return rule, nil
	}

	fbCtx, cancel := context.WithTimeout(ctx, p.fallbackTimeout)
	defer cancel()

	res, err := p.fallback.ParseQuery(fbCtx, text, freeContext)
	if err != nil {
		p.log.Warn("fallback parser failed, keeping rule result",
			zap.Error(err),
			zap.Float64("rule_confidence", rule.Confidence))
		rule.Source = SourceRulesFallbackOnError
		return rule, nil
	}

	ruleHadSignal := rule.Location.Found() || rule.Intent.Confidence > intentConfDefault
	if !ruleHadSignal {
		return fallbackOnly(rule, res), nil
	}
	return mergeFallback(rule, res), nil
}

func (p *Parser) validate(text string) error {
	if strings.TrimSpace(text) == "" {
		return &ValidationError{Field: "text", Message: "query text is empty"}
	}
	if utf8.RuneCountInString(text) > p.maxLength {
		return &ValidationError{Field: "text", Message: "query text exceeds maximum length"}
	}
	for _, w := range strings.Fields(text) {
		if utf8.RuneCountInString(w) > p.maxWordLength {
			return &ValidationError{Field: "text", Message: "query contains an overlong word"}
		}
	}
	return nil
}

// mergeFallback folds a fallback result into the rule result field by field:
// each side keeps the sub-results it is more confident about, metric lists
// are unioned, and overall confidence is the larger of the two.
func mergeFallback(rule ParsedQuery, fb *FallbackResult) ParsedQuery {
	out := rule
	if fb.Location.Found() && fb.Location.Confidence > rule.Location.Confidence {
		out.Location = fb.Location
	}
	if fb.Intent.Primary != "" && fb.Intent.Confidence > rule.Intent.Confidence {
		out.Intent = fb.Intent
		if fb.TimeScope.Kind != "" {
			out.TimeScope = fb.TimeScope
		}
	}
	out.Metrics = unionMetrics(rule.Metrics, fb.Metrics)
	if fb.Language != "" && rule.Language == "en" {
		out.Language = fb.Language
	}
	if fb.Confidence > out.Confidence {
		out.Confidence = fb.Confidence
	}
	out.Source = SourceRulesWithFallback
	return out
}

// fallbackOnly adopts the fallback result wholesale when the rules found
// neither a location nor an intent keyword.
func fallbackOnly(rule ParsedQuery, fb *FallbackResult) ParsedQuery {
	out := ParsedQuery{
		OriginalText: rule.OriginalText,
		Location:     fb.Location,
		Intent:       fb.Intent,
		TimeScope:    fb.TimeScope,
		Metrics:      unionMetrics(nil, fb.Metrics),
		Language:     rule.Language,
		Confidence:   fb.Confidence,
		Source:       SourceFallbackOnly,
	}
	if out.Intent.Primary == "" {
		out.Intent = rule.Intent
	}
	if out.TimeScope.Kind == "" {
		out.TimeScope = rule.TimeScope
	}
	if fb.Language != "" {
		out.Language = fb.Language
	}
	if out.Confidence < rule.Confidence {
		out.Confidence = rule.Confidence
	}
	return out
}

func unionMetrics(a, b []Metric) []Metric {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	seen := make(map[Metric]bool, len(a)+len(b))
	out := make([]Metric, 0, len(a)+len(b))
	for _, m := range append(append([]Metric{}, a...), b...) {
		if m != "" && !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}
