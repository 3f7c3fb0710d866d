package coach

import (
	"regexp"
	"strings"
)

var tokenPattern = regexp.MustCompile(`[a-z0-9']+`)

var stopwords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`a an and are as at be but by did do does for from had has have he her hers
		him his i if in is it its me my not of on or our she so that the their them they this to was we were
		what when where who why will with you your`) {
		stopwords[w] = struct{}{}
	}
}

// Keywords returns the lowercase tokens of question longer than two characters that are not stopwords.
func Keywords(question string) []string {
	var out []string
	for _, w := range tokenPattern.FindAllString(strings.ToLower(question), -1) {
		if len(w) <= 2 {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		out = append(out, w)
	}
	return out
}

// Supported reports whether question plausibly concerns transcript: some keyword appears in it
// as a substring. A question with no keywords is let through; an empty transcript or question is not.
func Supported(transcript, question string) bool {
	if strings.TrimSpace(transcript) == "" || strings.TrimSpace(question) == "" {
		return false
	}
	keywords := Keywords(question)
	if len(keywords) == 0 {
		return true
	}
	lower := strings.ToLower(transcript)
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}
