package ingest

import (
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	tagPattern      = regexp.MustCompile(`<[^>]*>`)
	overridePattern = regexp.MustCompile(`\{\\[^}]*\}`)
)

// parseCues walks the file line by line. A timing line opens a cue and the following non-blank lines are
// its text. The line right before a timing line is the cue identifier only when it starts a block, comes
// before the first cue, or is a bare number; otherwise it is text of the open cue. A "-->" line whose left
// side is not a timestamp is text when a cue is open. Text that shows up after a blank line without new
// timing belongs to the previous cue.
func parseCues(format Format, raw string) ([]Cue, error) {
	lines := strings.Split(raw, "\n")
	var (
		cues      []Cue
		skipBlock bool
		seenText  bool
	)

	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			skipBlock = false
			continue
		}
		if skipBlock {
			continue
		}
		if !seenText && strings.HasPrefix(line, "WEBVTT") {
			skipBlock = true
			seenText = true
			continue
		}
		seenText = true
		if format == FormatVTT && startsBlock(lines, i) && isVTTMetaBlock(line) {
			skipBlock = true
			continue
		}

		if strings.Contains(line, "-->") && (len(cues) == 0 || isTimingLine(format, line)) {
			start, end, err := parseTiming(format, line)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedSubtitle, i+1, err)
			}
			cues = append(cues, Cue{Index: cueIndex(lines, i, len(cues)+1), Start: start, End: end})
			continue
		}

		if isIdentifier(format, lines, i, len(cues) > 0) {
			continue
		}
		if len(cues) == 0 {
			continue
		}
		if text := cleanLine(line); text != "" {
			last := &cues[len(cues)-1]
			last.Lines = append(last.Lines, text)
		}
	}

	if len(cues) == 0 {
		return nil, fmt.Errorf("%w: no cue timing lines found in .%s file", ErrMalformedSubtitle, format)
	}

	out := cues[:0]
	for _, cue := range cues {
		if len(cue.Lines) > 0 {
			out = append(out, cue)
		}
	}
	return out, nil
}

// isTimingLine reports whether the text left of "-->" is a timestamp.
func isTimingLine(format Format, line string) bool {
	left, _, ok := strings.Cut(line, "-->")
	if !ok {
		return false
	}
	_, err := ParseTimestamp(format, strings.TrimSpace(left))
	return err == nil
}

// isIdentifier reports whether lines[i] names the cue whose timing line follows it.
func isIdentifier(format Format, lines []string, i int, cueOpen bool) bool {
	if i+1 >= len(lines) || !isTimingLine(format, strings.TrimSpace(lines[i+1])) {
		return false
	}
	return !cueOpen || startsBlock(lines, i) || allDigits(strings.TrimSpace(lines[i]))
}

func startsBlock(lines []string, i int) bool {
	return i == 0 || strings.TrimSpace(lines[i-1]) == ""
}

func isVTTMetaBlock(line string) bool {
	for _, kw := range []string{"NOTE", "STYLE", "REGION"} {
		if line == kw || strings.HasPrefix(line, kw+" ") || strings.HasPrefix(line, kw+"\t") {
			return true
		}
	}
	return false
}

func cueIndex(lines []string, timingLine, fallback int) int {
	if timingLine == 0 {
		return fallback
	}
	prev := strings.TrimSpace(lines[timingLine-1])
	if n, err := strconv.Atoi(prev); err == nil && n >= 0 {
		return n
	}
	return fallback
}

func cleanLine(line string) string {
	line = tagPattern.ReplaceAllString(line, "")
	line = overridePattern.ReplaceAllString(line, "")
	line = html.UnescapeString(line)
	return strings.Join(strings.Fields(line), " ")
}

func parseTiming(format Format, line string) (time.Duration, time.Duration, error) {
	left, right, _ := strings.Cut(line, "-->")
	rightFields := strings.Fields(right)
	if len(rightFields) == 0 {
		return 0, 0, fmt.Errorf("missing end timestamp")
	}
	start, err := ParseTimestamp(format, strings.TrimSpace(left))
	if err != nil {
		return 0, 0, err
	}
	end, err := ParseTimestamp(format, rightFields[0])
	if err != nil {
		return 0, 0, err
	}
	if end < start {
		return 0, 0, fmt.Errorf("cue ends at %s before it starts at %s", FormatTimestamp(end), FormatTimestamp(start))
	}
	return start, end, nil
}

// ParseTimestamp parses hh:mm:ss.mmm or mm:ss.mmm. SRT files use a comma before the
// milliseconds; both separators are accepted for either format.
func ParseTimestamp(format Format, s string) (time.Duration, error) {
	clock, frac, hasFrac := strings.Cut(strings.ReplaceAll(s, ",", "."), ".")
	if !hasFrac || frac == "" || len(frac) > 3 || !allDigits(frac) {
		return 0, fmt.Errorf("invalid %s timestamp %q", format, s)
	}
	parts := strings.Split(clock, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid %s timestamp %q", format, s)
	}
	for _, p := range parts {
		if p == "" || !allDigits(p) {
			return 0, fmt.Errorf("invalid %s timestamp %q", format, s)
		}
	}

	var hours int
	if len(parts) == 3 {
		hours, _ = strconv.Atoi(parts[0])
		parts = parts[1:]
	}
	minutes, _ := strconv.Atoi(parts[0])
	seconds, _ := strconv.Atoi(parts[1])
	if minutes > 59 || seconds > 59 {
		return 0, fmt.Errorf("invalid %s timestamp %q", format, s)
	}
	millis, _ := strconv.Atoi((frac + "00")[:3])

	return time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second +
		time.Duration(millis)*time.Millisecond, nil
}

// FormatTimestamp renders d as HH:MM:SS, dropping milliseconds.
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
