package feedback

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"coach-backend/internal/llm"
)

// ErrParse is returned when a reply holds no decodable JSON object.
var ErrParse = errors.New("analysis parse error")

var (
	fencePattern  = regexp.MustCompile("(?i)```(?:json)?")
	objectPattern = regexp.MustCompile(`\{[\s\S]*\}`)
)

// Parse decodes a model reply without lens-specific filtering.
func Parse(raw string) (Result, error) {
	return ParseForLens(raw, llm.Lens{})
}

// ParseForLens decodes a model reply leniently. Missing or wrong-typed keys get defaults,
// scores are clamped, and when the lens defines allow-lists, missed questions outside it are
// dropped and unknown timeline types become "other".
func ParseForLens(raw string, lens llm.Lens) (Result, error) {
	body, err := ExtractJSON(raw)
	if err != nil {
		return Result{}, err
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(body), &data); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrParse, err)
	}

	res := Result{
		Summary:         asString(data["summary"]),
		Topics:          asStrings(data["topics"]),
		Strengths:       asStrings(data["strengths"]),
		Improvements:    asStrings(data["improvements"]),
		CoachingTips:    asStrings(data["coaching_tips"]),
		ClientIntent:    clientIntent(data["client_intent"]),
		Scorecard:       scorecard(data["consult_scorecard"], lens.Scorecard),
		ConversionRisks: risks(data["conversion_risks"]),
		MicroScripts:    microScripts(data["recommended_micro_scripts"]),
		Timeline:        timeline(data["timeline"], lens),
	}
	if v, ok := asInt(data["sentiment_score"]); ok {
		v = clamp(v, 0, MaxSentiment)
		res.SentimentScore = &v
	}
	for _, q := range asStrings(data["missed_questions"]) {
		if len(lens.MissedQuestions) > 0 && !lens.AllowsMissedQuestion(q) {
			continue
		}
		res.MissedQuestions = append(res.MissedQuestions, strings.ToLower(q))
	}
	if res.MissedQuestions == nil {
		res.MissedQuestions = []string{}
	}
	return res, nil
}

// ExtractJSON strips code fences and returns the first {...} span.
func ExtractJSON(raw string) (string, error) {
	cleaned := strings.TrimSpace(fencePattern.ReplaceAllString(raw, ""))
	match := objectPattern.FindString(cleaned)
	if match == "" {
		return "", fmt.Errorf("%w: no JSON object in reply", ErrParse)
	}
	return strings.TrimSpace(match), nil
}

func clientIntent(v any) ClientIntent {
	m, _ := v.(map[string]any)
	dates := asStrings(m["date_mentions"])
	return ClientIntent{
		Occasion:          asString(m["occasion"]),
		DateMentions:      dates,
		DecisionTiming:    asString(m["decision_timing"]),
		PrimaryMotivation: asString(m["primary_motivation"]),
	}
}

func scorecard(v any, dims []string) map[string]int {
	m, _ := v.(map[string]any)
	out := make(map[string]int, len(dims))
	if len(dims) == 0 {
		for k, raw := range m {
			if n, ok := asInt(raw); ok {
				out[k] = clamp(n, 0, MaxScore)
			}
		}
		return out
	}
	for _, dim := range dims {
		n, _ := asInt(m[dim])
		out[dim] = clamp(n, 0, MaxScore)
	}
	return out
}

func risks(v any) []ConversionRisk {
	out := []ConversionRisk{}
	for _, item := range asObjects(v) {
		r := ConversionRisk{
			Label:    asString(item["label"]),
			Severity: severity(asString(item["severity"])),
			Evidence: asString(item["evidence"]),
		}
		if r.Label == "" && r.Evidence == "" {
			continue
		}
		if ts := asString(item["timestamp"]); ts != "" && !strings.EqualFold(ts, "null") {
			r.Timestamp = &ts
		}
		out = append(out, r)
	}
	return out
}

func severity(s string) string {
	switch strings.ToLower(s) {
	case SeverityLow:
		return SeverityLow
	case SeverityHigh:
		return SeverityHigh
	default:
		return SeverityMedium
	}
}

func microScripts(v any) []MicroScript {
	out := []MicroScript{}
	for _, item := range asObjects(v) {
		s := MicroScript{Moment: asString(item["moment"]), Script: asString(item["script"])}
		if s.Script == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

func timeline(v any, lens llm.Lens) []TimelineEvent {
	out := []TimelineEvent{}
	for _, item := range asObjects(v) {
		ev := TimelineEvent{
			Timestamp:   asString(item["timestamp"]),
			Type:        strings.ToLower(asString(item["type"])),
			Description: asString(item["description"]),
		}
		if ev.Description == "" {
			continue
		}
		if len(lens.TimelineTypes) > 0 && !lens.AllowsTimelineType(ev.Type) {
			ev.Type = TimelineOther
		}
		out = append(out, ev)
	}
	return out
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

func asStrings(v any) []string {
	out := []string{}
	list, _ := v.([]any)
	for _, item := range list {
		if s := asString(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func asObjects(v any) []map[string]any {
	list, _ := v.([]any)
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		return int(math.Round(t)), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return int(math.Round(f)), true
	default:
		return 0, false
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
