// Package textstats computes word count, speaking duration and sentiment for transcript text.
package textstats

import (
	"math"
	"strings"
)

// DefaultWordsPerMinute is the conversational speaking rate used to estimate duration.
const DefaultWordsPerMinute = 140

const (
	LabelPositive = "positive"
	LabelNeutral  = "neutral"
	LabelNegative = "negative"
)

// Metrics is the derived summary of one transcript.
type Metrics struct {
	WordCount             int     `json:"wordCount"`
	EstimatedDurationMins float64 `json:"estimatedDurationMins"`
	SentimentScore        int     `json:"sentimentScore"`
	SentimentLabel        string  `json:"sentimentLabel"`
}

// SentimentScorer scores text on a 0-100 scale where 50 is neutral.
type SentimentScorer interface {
	Score(text string) int
}

// Extractor computes Metrics. The zero value uses DefaultWordsPerMinute and the lexicon scorer.
type Extractor struct {
	WordsPerMinute int
	Scorer         SentimentScorer
}

// New returns an Extractor with the given speaking rate; non-positive rates fall back to the default.
func New(wordsPerMinute int) Extractor {
	return Extractor{WordsPerMinute: wordsPerMinute}
}

// Compute derives metrics from text. The same text always yields the same Metrics.
func (e Extractor) Compute(text string) Metrics {
	wc := WordCount(text)
	scorer := e.Scorer
	if scorer == nil {
		scorer = LexiconScorer{}
	}
	score := clampScore(scorer.Score(text))
	return Metrics{
		WordCount:             wc,
		EstimatedDurationMins: EstimateDurationMins(wc, e.WordsPerMinute),
		SentimentScore:        score,
		SentimentLabel:        Label(score),
	}
}

// Compute uses the default Extractor.
func Compute(text string) Metrics {
	return Extractor{}.Compute(text)
}

// WordCount counts whitespace-delimited tokens.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// EstimateDurationMins is wordCount / wpm rounded to two decimals.
func EstimateDurationMins(wordCount, wpm int) float64 {
	if wpm <= 0 {
		wpm = DefaultWordsPerMinute
	}
	return Round2(float64(wordCount) / float64(wpm))
}

// Round2 rounds half away from zero to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Label maps a 0-100 score to positive, neutral or negative.
func Label(score int) string {
	switch {
	case score >= 60:
		return LabelPositive
	case score <= 40:
		return LabelNegative
	default:
		return LabelNeutral
	}
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
