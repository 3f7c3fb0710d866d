// Package ingest turns uploaded transcript files into plain spoken text.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"coach-backend/internal/shared/storage/object"
)

// Format identifies a supported transcript file type.
type Format string

const (
	FormatTXT Format = "txt"
	FormatVTT Format = "vtt"
	FormatSRT Format = "srt"
)

// SupportedFormats lists the accepted extensions in display order.
var SupportedFormats = []Format{FormatTXT, FormatVTT, FormatSRT}

var (
	// ErrUnsupportedFormat is returned for any extension other than .txt, .vtt or .srt.
	ErrUnsupportedFormat = errors.New("unsupported transcript format")
	// ErrMalformedSubtitle is returned when a .vtt/.srt file has no usable cue timing structure.
	ErrMalformedSubtitle = errors.New("malformed subtitle file")
	// ErrEmptyTranscript is returned when no spoken text remains after parsing.
	ErrEmptyTranscript = errors.New("transcript contains no text")
)

// Cue is one timed caption block.
type Cue struct {
	Index int           `json:"index"`
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
	Lines []string      `json:"lines"`
}

// Text returns the cue's lines joined with spaces.
func (c Cue) Text() string {
	return strings.Join(c.Lines, " ")
}

// Transcript is the parsed form of an upload. It is never mutated after Parse returns.
type Transcript struct {
	Format Format `json:"format"`
	Raw    string `json:"-"`
	Text   string `json:"text"`
	Cues   []Cue  `json:"cues,omitempty"`
}

// Timed renders the transcript with a [HH:MM:SS] marker per cue so an analysis can cite moments.
// Plain text transcripts have no timing and return Text.
func (t Transcript) Timed() string {
	if len(t.Cues) == 0 {
		return t.Text
	}
	var b strings.Builder
	for i, cue := range t.Cues {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("[")
		b.WriteString(FormatTimestamp(cue.Start))
		b.WriteString("] ")
		b.WriteString(cue.Text())
	}
	return b.String()
}

// Span is the time between the first cue start and the last cue end, zero without cues.
func (t Transcript) Span() time.Duration {
	if len(t.Cues) == 0 {
		return 0
	}
	span := t.Cues[len(t.Cues)-1].End - t.Cues[0].Start
	if span < 0 {
		return 0
	}
	return span
}

// DetectFormat maps a file name to its Format by extension, ignoring case.
func DetectFormat(fileName string) (Format, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(strings.TrimSpace(fileName)), "."))
	for _, f := range SupportedFormats {
		if ext == string(f) {
			return f, nil
		}
	}
	if ext == "" {
		return "", fmt.Errorf("%w: %q has no extension", ErrUnsupportedFormat, fileName)
	}
	return "", fmt.Errorf("%w: .%s", ErrUnsupportedFormat, ext)
}

// Parse detects the format from fileName and extracts the spoken text from data.
func Parse(fileName string, data []byte) (Transcript, error) {
	format, err := DetectFormat(fileName)
	if err != nil {
		return Transcript{}, err
	}
	return ParseFormat(format, data)
}

// ParseFormat extracts spoken text from data already known to be in format.
func ParseFormat(format Format, data []byte) (Transcript, error) {
	raw := decode(data)
	switch format {
	case FormatTXT:
		text := normalizeText(raw)
		if strings.TrimSpace(text) == "" {
			return Transcript{}, ErrEmptyTranscript
		}
		return Transcript{Format: format, Raw: raw, Text: text}, nil
	case FormatVTT, FormatSRT:
		cues, err := parseCues(format, raw)
		if err != nil {
			return Transcript{}, err
		}
		parts := make([]string, 0, len(cues))
		for _, cue := range cues {
			parts = append(parts, cue.Text())
		}
		text := strings.Join(parts, " ")
		if strings.TrimSpace(text) == "" {
			return Transcript{}, ErrEmptyTranscript
		}
		return Transcript{Format: format, Raw: raw, Text: text, Cues: cues}, nil
	default:
		return Transcript{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// ParseObject reads a stored upload and parses it, capping reads at maxBytes when positive.
func ParseObject(ctx context.Context, store object.Store, key, fileName string, maxBytes int64) (Transcript, error) {
	if err := ctx.Err(); err != nil {
		return Transcript{}, err
	}
	data, err := object.ReadAll(ctx, store, key, maxBytes)
	if err != nil {
		return Transcript{}, fmt.Errorf("read transcript key=%s: %w", key, err)
	}
	return Parse(fileName, data)
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decode strips a BOM, repairs invalid UTF-8 and normalizes line endings to \n.
func decode(data []byte) string {
	data = bytes.TrimPrefix(data, utf8BOM)
	s := string(data)
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "�")
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// normalizeText trims trailing whitespace on each line and drops trailing blank lines.
func normalizeText(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRightFunc(line, unicode.IsSpace)
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}
