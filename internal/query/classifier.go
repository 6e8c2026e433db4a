package query

import (
	"strconv"
	"strings"

	"github.com/i474232898/weather-query-service/internal/common"
)

// Confidence contributions of the rule classifier. A location hit only counts
// toward overall confidence when its own rule confidence reaches
// strongLocation; last-resort remaining-text guesses stay below it so that
// hard queries still reach the external parser.
const (
	baseConfidence  = 0.4
	locationBonus   = 0.3
	intentBonus     = 0.2
	blankConfidence = 0.05

	strongLocation     = 0.5
	contextLocationCap = 0.5

	intentConfMatched = 0.85
	intentConfDefault = 0.5
)

// Classify runs the deterministic rule classifier over one query text. It
// never does I/O and never fails; low confidence is reported, not returned as
// an error. freeContext is scanned for a location only when the query itself
// carries none, and context hits are capped at contextLocationCap.
func Classify(text, freeContext string) ParsedQuery {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ParsedQuery{
			OriginalText: text,
			Intent:       IntentGuess{Primary: IntentCurrent, Confidence: blankConfidence},
			TimeScope:    TimeScope{Kind: TimeCurrent},
			Language:     "en",
			Confidence:   blankConfidence,
		}
	}

	lower := strings.ToLower(trimmed)
	intent, intentMatched := classifyIntent(lower)

	loc := extractLocation(trimmed)
	if !loc.Found() && strings.TrimSpace(freeContext) != "" {
		loc = extractLocation(freeContext)
		if loc.Confidence > contextLocationCap {
			loc.Confidence = contextLocationCap
		}
	}

	conf := baseConfidence
	if loc.Found() && loc.Confidence >= strongLocation {
		conf += locationBonus
	}
	if intentMatched {
		conf += intentBonus
	}

	intentConf := intentConfDefault
	if intentMatched {
		intentConf = intentConfMatched
	}

	return ParsedQuery{
		OriginalText: text,
		Location:     loc,
		Intent:       IntentGuess{Primary: intent, Confidence: intentConf},
		TimeScope:    timeScopeFor(intent, lower),
		Metrics:      matchMetrics(lower),
		Language:     detectLanguage(trimmed),
		Confidence:   common.Clamp01(conf),
	}
}

func extractLocation(text string) LocationGuess {
	for _, rule := range locationRules {
		if name := rule.extract(text); name != "" {
			return LocationGuess{Name: name, Confidence: rule.confidence}
		}
	}
	return LocationGuess{}
}

func classifyIntent(lower string) (Intent, bool) {
	for _, fam := range intentKeywords {
		for _, k := range fam.keywords {
			if strings.Contains(lower, k) {
				return fam.intent, true
			}
		}
	}
	return IntentCurrent, false
}

func matchMetrics(lower string) []Metric {
	var out []Metric
	seen := make(map[Metric]bool)
	add := func(m Metric) {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	for _, fam := range metricKeywords {
		for _, k := range fam.keywords {
			if strings.Contains(lower, k) {
				add(fam.metric)
				break
			}
		}
	}
	for _, a := range activityMetrics {
		for _, k := range a.keywords {
			if strings.Contains(lower, k) {
				for _, m := range a.metrics {
					add(m)
				}
				break
			}
		}
	}
	return out
}

// timeScopeFor derives the time window from the classified intent plus any
// explicit duration vocabulary. Durations are left empty when the text gives
// no hint; downstream code applies its own horizon defaults.
func timeScopeFor(intent Intent, lower string) TimeScope {
	kind := TimeCurrent
	switch intent {
	case IntentForecast:
		kind = TimeForecast
	case IntentHistorical:
		kind = TimeHistorical
	}
	scope := TimeScope{Kind: kind}
	if kind == TimeCurrent {
		return scope
	}
	if m := numericDaysRe.FindStringSubmatch(lower); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 && n <= 30 {
			scope.Duration = strconv.Itoa(n*24) + "h"
			return scope
		}
	}
	if m := numericHoursRe.FindStringSubmatch(lower); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 && n <= 720 {
			scope.Duration = strconv.Itoa(n) + "h"
			return scope
		}
	}
	for _, h := range durationHints {
		for _, k := range h.keywords {
			if strings.Contains(lower, k) {
				scope.Duration = h.duration
				return scope
			}
		}
	}
	return scope
}
