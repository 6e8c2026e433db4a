// Package llm implements the external query parser on top of the Gemini API.
// It is an optional dependency of the query parser: when no API key is
// configured the rest of the service runs without it.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/i474232898/weather-query-service/internal/common"
	"github.com/i474232898/weather-query-service/internal/logging"
	"github.com/i474232898/weather-query-service/internal/query"
)

const defaultModel = "gemini-2.0-flash"

// The model must answer with a bare JSON object matching
// query.FallbackResult; anything else is treated as a parse failure and the
// caller falls back to the rule result.
const promptTemplate = `You are a weather query parser. Analyze the user's question and respond with ONLY a JSON object, no explanations and no markdown fences, in exactly this shape:

{
  "location": {"name": "<place name or empty>", "lat": <number or omit>, "lon": <number or omit>, "confidence": <0..1>},
  "intent": {"primary": "<current|forecast|historical|advice|location_search>", "confidence": <0..1>},
  "time_scope": {"kind": "<current|forecast|historical>", "duration": "<like 24h, or empty>"},
  "weather_metrics": ["<temperature|humidity|wind|pressure|visibility|uv_index|air_quality|precipitation>", ...],
  "language": "<BCP 47 tag of the question, like en, ja, zh-TW>",
  "confidence": <0..1 overall>
}

Keep the location name in its original script. Omit lat/lon unless you are certain.`

// GeminiConfig wires a GeminiParser.
type GeminiConfig struct {
	APIKey string
	// Model defaults to gemini-2.0-flash.
	Model  string
	Logger *zap.Logger
}

// GeminiParser implements query.FallbackParser.
type GeminiParser struct {
	client *genai.Client
	model  string
	log    *zap.Logger
}

func NewGeminiParser(ctx context.Context, cfg GeminiConfig) (*GeminiParser, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	return &GeminiParser{
		client: client,
		model:  model,
		log:    logging.OrNop(cfg.Logger),
	}, nil
}

// ParseQuery sends the query text to the model and decodes its JSON answer.
// The caller bounds the call with a context deadline.
func (g *GeminiParser) ParseQuery(ctx context.Context, text, freeContext string) (*query.FallbackResult, error) {
	content := genai.NewContentFromText(buildPrompt(text, freeContext), genai.RoleUser)

	resp, err := g.client.Models.GenerateContent(ctx, g.model, []*genai.Content{content}, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini: generate content: %w", err)
	}

	raw, err := firstCandidateText(resp)
	if err != nil {
		return nil, err
	}

	res, err := decodeResult(raw)
	if err != nil {
		g.log.Debug("gemini returned undecodable payload", zap.String("raw", truncate(raw, 200)))
		return nil, err
	}
	return res, nil
}

func buildPrompt(text, freeContext string) string {
	var b strings.Builder
	b.WriteString(promptTemplate)
	b.WriteString("\n\nQuestion: ")
	b.WriteString(text)
	if strings.TrimSpace(freeContext) != "" {
		b.WriteString("\nAdditional context: ")
		b.WriteString(freeContext)
	}
	return b.String()
}

func firstCandidateText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini: empty response")
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			b.WriteString(part.Text)
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", fmt.Errorf("gemini: response carries no text parts")
	}
	return out, nil
}

// decodeResult extracts the first JSON object from a model answer and decodes
// it, tolerating markdown fences and prose around the object. The decoded
// result is normalized so garbage values never leave this package.
func decodeResult(raw string) (*query.FallbackResult, error) {
	cleaned := extractJSON(raw)
	if cleaned == "" {
		return nil, fmt.Errorf("gemini: no JSON object in response")
	}
	var res query.FallbackResult
	if err := json.Unmarshal([]byte(cleaned), &res); err != nil {
		return nil, fmt.Errorf("gemini: decode response: %w", err)
	}
	normalize(&res)
	return &res, nil
}

// extractJSON strips markdown code fences and returns the first decodable
// JSON value found in s. Scanning with a real decoder keeps braces inside
// JSON strings from confusing the extraction.
func extractJSON(s string) string {
	s = stripCodeFences(s)
	for i := 0; i < len(s); i++ {
		if s[i] != '{' && s[i] != '[' {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(s[i:]))
		var raw json.RawMessage
		if err := dec.Decode(&raw); err == nil {
			return strings.TrimSpace(string(raw))
		}
	}
	return ""
}

func stripCodeFences(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, ln := range lines {
		if strings.HasPrefix(strings.TrimSpace(ln), "```") {
			continue
		}
		out = append(out, ln)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// normalize clamps confidences, drops unknown enum values and out-of-range
// coordinates, and filters the metric list down to known metrics.
func normalize(res *query.FallbackResult) {
	res.Confidence = common.Clamp01(res.Confidence)
	res.Location.Confidence = common.Clamp01(res.Location.Confidence)
	res.Intent.Confidence = common.Clamp01(res.Intent.Confidence)

	if !res.Intent.Primary.Valid() {
		res.Intent = query.IntentGuess{}
	}
	if !res.TimeScope.Kind.Valid() {
		res.TimeScope = query.TimeScope{}
	}

	if res.Location.Lat != nil && (*res.Location.Lat < -90 || *res.Location.Lat > 90) {
		res.Location.Lat, res.Location.Lon = nil, nil
	}
	if res.Location.Lon != nil && (*res.Location.Lon < -180 || *res.Location.Lon > 180) {
		res.Location.Lat, res.Location.Lon = nil, nil
	}

	if len(res.Metrics) > 0 {
		kept := res.Metrics[:0]
		for _, m := range res.Metrics {
			if m.Valid() {
				kept = append(kept, m)
			}
		}
		res.Metrics = kept
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
