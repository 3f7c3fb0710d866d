// Package feedback decodes model replies into the structured coaching Result.
package feedback

import (
	"math"
	"sort"
)

const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"

	// TimelineOther replaces timeline types outside the lens's list.
	TimelineOther = "other"

	MaxSentiment = 100
	MaxScore     = 10
)

// Result is the structured coaching analysis of one transcript.
type Result struct {
	Summary         string           `json:"summary"`
	Topics          []string         `json:"topics"`
	SentimentScore  *int             `json:"sentiment_score"`
	Strengths       []string         `json:"strengths"`
	Improvements    []string         `json:"improvements"`
	CoachingTips    []string         `json:"coaching_tips"`
	ClientIntent    ClientIntent     `json:"client_intent"`
	Scorecard       map[string]int   `json:"consult_scorecard"`
	ConversionRisks []ConversionRisk `json:"conversion_risks"`
	MissedQuestions []string         `json:"missed_questions"`
	MicroScripts    []MicroScript    `json:"recommended_micro_scripts"`
	Timeline        []TimelineEvent  `json:"timeline"`
}

type ClientIntent struct {
	Occasion          string   `json:"occasion"`
	DateMentions      []string `json:"date_mentions"`
	DecisionTiming    string   `json:"decision_timing"`
	PrimaryMotivation string   `json:"primary_motivation"`
}

type ConversionRisk struct {
	Label     string  `json:"label"`
	Severity  string  `json:"severity"`
	Evidence  string  `json:"evidence"`
	Timestamp *string `json:"timestamp"`
}

type MicroScript struct {
	Moment string `json:"moment"`
	Script string `json:"script"`
}

type TimelineEvent struct {
	Timestamp   string `json:"timestamp"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// ScoreItem is one scorecard dimension in display order.
type ScoreItem struct {
	Dimension string `json:"dimension"`
	Score     int    `json:"score"`
}

// ScorecardItems orders the scorecard by order first, then any remaining dimensions alphabetically.
func (r Result) ScorecardItems(order []string) []ScoreItem {
	items := make([]ScoreItem, 0, len(r.Scorecard))
	seen := make(map[string]bool, len(order))
	for _, dim := range order {
		if score, ok := r.Scorecard[dim]; ok {
			items = append(items, ScoreItem{Dimension: dim, Score: score})
			seen[dim] = true
		}
	}
	var rest []string
	for dim := range r.Scorecard {
		if !seen[dim] {
			rest = append(rest, dim)
		}
	}
	sort.Strings(rest)
	for _, dim := range rest {
		items = append(items, ScoreItem{Dimension: dim, Score: r.Scorecard[dim]})
	}
	return items
}

// ScorecardAverage is the mean score rounded to two decimals, zero for an empty scorecard.
func (r Result) ScorecardAverage() float64 {
	if len(r.Scorecard) == 0 {
		return 0
	}
	total := 0
	for _, v := range r.Scorecard {
		total += v
	}
	return math.Round(float64(total)/float64(len(r.Scorecard))*100) / 100
}

// TimelineByType groups timeline events by type, keeping their order.
func (r Result) TimelineByType() map[string][]TimelineEvent {
	out := make(map[string][]TimelineEvent)
	for _, ev := range r.Timeline {
		out[ev.Type] = append(out[ev.Type], ev)
	}
	return out
}
