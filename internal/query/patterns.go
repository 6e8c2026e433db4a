package query

import (
	"regexp"
	"strings"
)

// Location extraction is table-driven: an ordered list of rules, each owning
// one pattern family and a fixed confidence. Rules run in declaration order
// and the first hit wins, so precedence is explicit rather than emergent.
type locationRule struct {
	name       string
	confidence float64
	extract    func(text string) string
}

var locationRules = []locationRule{
	{name: "prepositional", confidence: 0.9, extract: extractPrepositional},
	{name: "geo_suffix", confidence: 0.85, extract: extractGeoSuffix},
	{name: "script_run", confidence: 0.7, extract: extractScriptRun},
	{name: "remaining_text", confidence: 0.4, extract: extractRemainingText},
}

var (
	// "weather in Tokyo", "forecast for New York City", "conditions at Lake Tahoe"
	prepositionalRe = regexp.MustCompile(`\b(?i:in|at|for|near)\s+((?:\p{Lu}[\p{L}'’.-]*)(?:\s+\p{Lu}[\p{L}'’.-]*){0,3})`)

	// Latin names carrying an administrative suffix keep the suffix:
	// "Quebec City", "Chiba Prefecture", "Hualien County".
	latinGeoSuffixRe = regexp.MustCompile(`\b((?:\p{Lu}[\p{L}'’.-]*\s+){1,3}(?:City|Prefecture|Province|County|Island|District))\b`)

	// CJK names ending in an administrative marker: 台北市, 千葉県, 廣東省.
	cjkGeoSuffixRe = regexp.MustCompile(`([\p{Han}]{1,6}[市縣県省州區区郡町村])`)

	latinRunRe      = regexp.MustCompile(`\b\p{Lu}[\p{L}'’.-]+(?:\s+\p{Lu}[\p{L}'’.-]+){0,3}`)
	hanRunRe        = regexp.MustCompile(`[\p{Han}]{2,}`)
	kanaRunRe       = regexp.MustCompile(`[\p{Han}\p{Hiragana}\p{Katakana}ー]{2,}`)
	arabicRunRe     = regexp.MustCompile(`[\p{Arabic}]{2,}`)
	devanagariRunRe = regexp.MustCompile(`[\p{Devanagari}]{2,}`)

	hanCharRe  = regexp.MustCompile(`\p{Han}`)
	kanaCharRe = regexp.MustCompile(`[\p{Hiragana}\p{Katakana}]`)

	numericDaysRe  = regexp.MustCompile(`(\d+)\s*(?:days?|天|日間)`)
	numericHoursRe = regexp.MustCompile(`(\d+)\s*(?:hours?|小時|小时|時間)`)
)

// durationHints maps relative time vocabulary to a window size. Longer
// phrases come first so "day after tomorrow" wins over "tomorrow".
var durationHints = []struct {
	keywords []string
	duration string
}{
	{[]string{"day after tomorrow", "後天", "后天", "前天"}, "48h"},
	{[]string{"tomorrow", "yesterday", "tonight", "明天", "明日", "昨天", "昨日", "あした", "きのう"}, "24h"},
	{[]string{"next week", "this week", "last week", "下週", "這週", "上週", "下周", "这周", "上周", "来週", "先週"}, "168h"},
	{[]string{"weekend", "週末", "周末"}, "48h"},
	{[]string{"last month", "上個月", "上个月", "先月"}, "720h"},
}

// denylist holds temporal, weather, metric, and qualifier vocabulary that must
// never be mistaken for a location, per supported language. Matching is
// case-insensitive for Latin entries and substring-based for CJK entries.
var denylist = []string{
	// English: temporal.
	"today", "tonight", "tomorrow", "yesterday", "now", "currently", "week",
	"weekend", "morning", "afternoon", "evening", "later", "hourly", "daily",
	// English: weather and metrics.
	"weather", "forecast", "temperature", "humidity", "wind", "windy", "rain",
	"raining", "rainy", "snow", "snowing", "sunny", "cloudy", "storm", "fog",
	"foggy", "pressure", "visibility", "uv", "ultraviolet", "air", "quality",
	"precipitation", "conditions", "condition", "climate", "degrees", "hot",
	"cold", "warm", "humid",
	// English: question scaffolding that leaks into capitalized runs.
	"what", "whats", "what's", "how", "hows", "how's", "where", "wheres",
	"where's", "when", "why", "who", "which", "will", "is", "are",
	"was", "were", "should", "can", "could", "would", "do", "does", "did",
	"the", "a", "an", "it", "its", "it's", "there", "this", "that", "please",
	"tell", "show", "give", "me", "my", "about", "like", "and", "or", "of",
	"to", "be", "going", "get", "check", "report", "update", "info", "in",
	"at", "on", "for", "from", "near",

	// Traditional Chinese.
	"今天", "明天", "昨天", "後天", "前天", "現在", "目前", "今晚", "週末",
	"天氣", "天候", "氣象", "預報", "氣溫", "溫度", "濕度", "風速", "風向",
	"氣壓", "降雨", "降水", "下雨", "下雪", "紫外線", "能見度", "空氣品質",
	"空氣", "品質", "條件", "狀況", "情況", "如何", "怎麼樣", "怎樣", "請問",
	"高度", "海浪", "未來", "上週", "下週", "這週", "歷史", "過去",

	// Simplified Chinese.
	"后天", "现在", "天气", "预报", "气温", "温度", "湿度", "风速", "风向",
	"气压", "紫外线", "能见度", "空气质量", "空气", "质量", "条件", "状况",
	"情况", "怎么样", "怎样", "请问", "未来", "上周", "下周", "这周", "历史",
	"过去",

	// Japanese.
	"今日", "明日", "昨日", "あした", "きのう", "きょう", "来週", "先週",
	"天気", "予報", "気温", "湿度", "風速", "気圧", "降水", "紫外線",
	"どう", "ですか", "教えて", "の天気",
}

// activity vocabulary is also stripped from location candidates; the
// activities map below routes each family to the metrics it implies.
var activityMetrics = []struct {
	name     string
	keywords []string
	metrics  []Metric
}{
	{"surfing", []string{"surf", "surfing", "衝浪", "冲浪", "サーフィン", "海浪", "波浪"},
		[]Metric{MetricWind, MetricPrecipitation, MetricVisibility}},
	{"hiking", []string{"hike", "hiking", "trek", "登山", "健行", "爬山", "ハイキング"},
		[]Metric{MetricTemperature, MetricPrecipitation, MetricUVIndex, MetricWind}},
	{"wedding", []string{"wedding", "婚禮", "婚礼", "結婚式"},
		[]Metric{MetricPrecipitation, MetricTemperature, MetricWind}},
	{"running", []string{"running", "jogging", "跑步", "晨跑", "ジョギング"},
		[]Metric{MetricTemperature, MetricHumidity, MetricAirQuality}},
	{"cycling", []string{"cycling", "biking", "騎車", "骑车", "自行車", "サイクリング"},
		[]Metric{MetricWind, MetricPrecipitation, MetricTemperature}},
	{"skiing", []string{"ski", "skiing", "滑雪", "スキー"},
		[]Metric{MetricTemperature, MetricPrecipitation, MetricWind}},
	{"fishing", []string{"fishing", "釣魚", "钓鱼", "釣り"},
		[]Metric{MetricWind, MetricPressure, MetricPrecipitation}},
	{"camping", []string{"camping", "露營", "露营", "キャンプ"},
		[]Metric{MetricTemperature, MetricPrecipitation, MetricWind}},
	{"picnic", []string{"picnic", "野餐", "ピクニック"},
		[]Metric{MetricPrecipitation, MetricTemperature, MetricUVIndex}},
}

// Intent keyword families. Checked in the fixed precedence order
// forecast > historical > advice > location_search; anything else is current.
var intentKeywords = []struct {
	intent   Intent
	keywords []string
}{
	{IntentForecast, []string{
		"forecast", "tomorrow", "tonight", "next week", "this week", "will it",
		"going to", "later",
		"預報", "明天", "明日", "後天", "未來", "下週", "這週",
		"预报", "后天", "未来", "下周", "这周",
		"予報", "あした", "来週", "これから",
	}},
	{IntentHistorical, []string{
		"yesterday", "last week", "last month", "history", "historical",
		"was it", "past",
		"昨天", "前天", "歷史", "上週", "過去",
		"历史", "上周", "过去",
		"昨日", "きのう", "先週",
	}},
	{IntentAdvice, []string{
		"should i", "should we", "recommend", "advice", "suggest", "suitable",
		"good for", "okay to", "ok to",
		"適合", "建議", "推薦", "好嗎", "可以嗎",
		"适合", "建议", "推荐", "好吗", "可以吗",
		"すべき", "おすすめ", "大丈夫",
	}},
	{IntentLocationSearch, []string{
		"where is", "where's", "locate", "location of",
		"在哪", "哪裡", "哪里", "位置",
		"どこ",
	}},
}

// Metric keyword tables, all languages flattened per metric.
var metricKeywords = []struct {
	metric   Metric
	keywords []string
}{
	{MetricTemperature, []string{"temperature", "temp ", "hot", "cold", "warm", "氣溫", "温度", "气温", "気温", "溫度"}},
	{MetricHumidity, []string{"humidity", "humid", "muggy", "濕度", "湿度"}},
	{MetricWind, []string{"wind", "breeze", "gust", "風速", "风速", "風向", "风向", "強風", "强风", "風", "风"}},
	{MetricPressure, []string{"pressure", "barometric", "氣壓", "气压", "気圧"}},
	{MetricVisibility, []string{"visibility", "fog", "haze", "能見度", "能见度", "視程", "霧", "雾"}},
	{MetricUVIndex, []string{"uv", "ultraviolet", "sunscreen", "紫外線", "紫外线"}},
	{MetricAirQuality, []string{"air quality", "aqi", "pollution", "smog", "pm2.5", "空氣品質", "空气质量", "大気汚染"}},
	{MetricPrecipitation, []string{"rain", "precipitation", "snow", "drizzle", "shower", "umbrella", "雨", "降水", "降雨", "下雨", "下雪", "雪", "傘"}},
}

// Traditional/simplified character evidence for Chinese variant detection.
var (
	traditionalEvidence = "氣預報溫濕風壓雲歷週適當臺灣繩東廣縣"
	simplifiedEvidence  = "气预报温湿风压云历周适当台湾绳东广县"
)

func extractPrepositional(text string) string {
	m := prepositionalRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return cleanLatinCandidate(m[1])
}

func extractGeoSuffix(text string) string {
	if m := cjkGeoSuffixRe.FindStringSubmatch(text); m != nil {
		if c := cleanHanCandidate(m[1]); c != "" {
			return c
		}
	}
	if m := latinGeoSuffixRe.FindStringSubmatch(text); m != nil {
		if c := cleanLatinCandidate(m[1]); c != "" {
			return c
		}
	}
	return ""
}

// extractScriptRun scans script-specific runs of characters: Han runs are
// cleansed by substring stripping (CJK queries carry no whitespace between
// the location and the surrounding vocabulary), other scripts word-wise.
func extractScriptRun(text string) string {
	if kanaCharRe.MatchString(text) {
		for _, run := range kanaRunRe.FindAllString(text, -1) {
			if c := cleanJapaneseCandidate(run); c != "" {
				return c
			}
		}
	}
	for _, run := range hanRunRe.FindAllString(text, -1) {
		if c := cleanHanCandidate(run); c != "" {
			return c
		}
	}
	for _, re := range []*regexp.Regexp{arabicRunRe, devanagariRunRe} {
		for _, run := range re.FindAllString(text, -1) {
			if !isDenylisted(run) {
				return run
			}
		}
	}
	for _, run := range latinRunRe.FindAllString(text, -1) {
		if c := cleanLatinCandidate(run); c != "" {
			return c
		}
	}
	return ""
}

// extractRemainingText is the last resort: strip every known vocabulary word
// and accept a short remainder as a low-confidence location guess.
func extractRemainingText(text string) string {
	words := strings.Fields(text)
	kept := make([]string, 0, len(words))
	for _, w := range words {
		trimmed := strings.Trim(w, ".,!?;:\"'()[]｡、。？！")
		if trimmed == "" || isDenylisted(trimmed) {
			continue
		}
		if c := cleanHanCandidate(trimmed); hanCharRe.MatchString(trimmed) {
			if c == "" {
				continue
			}
			trimmed = c
		}
		kept = append(kept, trimmed)
	}
	if len(kept) == 0 || len(kept) > 4 {
		return ""
	}
	candidate := strings.Join(kept, " ")
	if len([]rune(candidate)) < 2 || len([]rune(candidate)) > 40 {
		return ""
	}
	return candidate
}

// cleanLatinCandidate trims denylisted words from both edges of a candidate
// run and rejects candidates that end up empty or denylisted as a whole.
func cleanLatinCandidate(s string) string {
	words := strings.Fields(s)
	for len(words) > 0 && isDenylisted(words[0]) {
		words = words[1:]
	}
	for len(words) > 0 && isDenylisted(words[len(words)-1]) {
		words = words[:len(words)-1]
	}
	if len(words) == 0 {
		return ""
	}
	out := strings.Join(words, " ")
	if len([]rune(out)) < 2 || isDenylisted(out) {
		return ""
	}
	return out
}

// cleanHanCandidate removes every denylisted and activity substring from a
// Han run; what survives is the location candidate (沖繩明天天氣預報 → 沖繩).
func cleanHanCandidate(run string) string {
	out := run
	for _, w := range denylist {
		if !hanCharRe.MatchString(w) && !kanaCharRe.MatchString(w) {
			continue
		}
		out = strings.ReplaceAll(out, w, "")
	}
	for _, a := range activityMetrics {
		for _, w := range a.keywords {
			if hanCharRe.MatchString(w) || kanaCharRe.MatchString(w) {
				out = strings.ReplaceAll(out, w, "")
			}
		}
	}
	out = strings.TrimSpace(out)
	if len([]rune(out)) < 2 {
		return ""
	}
	return out
}

// cleanJapaneseCandidate additionally trims particles left at the run edges
// after vocabulary stripping (東京の天気 → 東京の → 東京).
func cleanJapaneseCandidate(run string) string {
	out := cleanHanCandidate(run)
	out = strings.Trim(out, "のはがをにでへとも")
	if len([]rune(out)) < 2 {
		return ""
	}
	return out
}

func isDenylisted(word string) bool {
	lower := strings.ToLower(word)
	for _, d := range denylist {
		if hanCharRe.MatchString(d) || kanaCharRe.MatchString(d) {
			if strings.Contains(word, d) {
				return true
			}
			continue
		}
		if lower == d {
			return true
		}
	}
	for _, a := range activityMetrics {
		for _, k := range a.keywords {
			if hanCharRe.MatchString(k) || kanaCharRe.MatchString(k) {
				if strings.Contains(word, k) {
					return true
				}
				continue
			}
			if lower == k {
				return true
			}
		}
	}
	return false
}

// detectLanguage uses script evidence: kana means Japanese, Han means Chinese
// (traditional vs simplified decided by character evidence, traditional on a
// tie), anything else defaults to English.
func detectLanguage(text string) string {
	if kanaCharRe.MatchString(text) {
		return "ja"
	}
	if hanCharRe.MatchString(text) {
		trad, simp := 0, 0
		for _, r := range text {
			if strings.ContainsRune(traditionalEvidence, r) {
				trad++
			}
			if strings.ContainsRune(simplifiedEvidence, r) {
				simp++
			}
		}
		if simp > trad {
			return "zh-CN"
		}
		return "zh-TW"
	}
	if arabicRunRe.MatchString(text) {
		return "ar"
	}
	if devanagariRunRe.MatchString(text) {
		return "hi"
	}
	return "en"
}
