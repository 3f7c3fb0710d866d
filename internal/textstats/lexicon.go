package textstats

import (
	"math"
	"regexp"
	"strings"
)

var tokenPattern = regexp.MustCompile(`[a-z']+`)

var positiveWords = toSet(
	"amazing", "appreciate", "awesome", "beautiful", "best", "comfortable", "confident", "definitely",
	"delighted", "easy", "excellent", "excited", "fantastic", "glad", "good", "gorgeous", "great", "happy",
	"helpful", "incredible", "love", "loved", "lovely", "nice", "perfect", "pleased", "ready", "relaxed",
	"stunning", "sure", "thank", "thanks", "wonderful", "yes",
)

var negativeWords = toSet(
	"afraid", "annoyed", "anxious", "awful", "bad", "concern", "concerned", "confused", "disappointed",
	"difficult", "expensive", "frustrated", "hate", "hesitant", "horrible", "nervous", "overwhelmed",
	"pricey", "problem", "sad", "stressed", "stressful", "terrible", "unfortunately", "unhappy", "unsure",
	"upset", "worried", "worry", "wrong",
)

var negators = toSet("not", "no", "never", "don't", "didn't", "isn't", "wasn't", "can't", "won't", "without")

// LexiconScorer counts positive and negative words, flipping a word's polarity when
// one of the two preceding tokens is a negator.
type LexiconScorer struct{}

// Score returns 50 for text with no sentiment words.
func (LexiconScorer) Score(text string) int {
	tokens := tokenPattern.FindAllString(strings.ToLower(text), -1)
	var pos, neg float64
	for i, tok := range tokens {
		polarity := 0.0
		switch {
		case positiveWords[tok]:
			polarity = 1
		case negativeWords[tok]:
			polarity = -1
		default:
			continue
		}
		if negated(tokens, i) {
			polarity = -polarity
		}
		if polarity > 0 {
			pos++
		} else {
			neg++
		}
	}
	if pos+neg == 0 {
		return 50
	}
	// +2 damps small samples toward neutral.
	return int(math.Round(50 + 50*(pos-neg)/(pos+neg+2)))
}

func negated(tokens []string, i int) bool {
	for j := i - 1; j >= 0 && j >= i-2; j-- {
		if negators[tokens[j]] {
			return true
		}
	}
	return false
}

func toSet(words ...string) map[string]bool {
	out := make(map[string]bool, len(words))
	for _, w := range words {
		out[w] = true
	}
	return out
}
