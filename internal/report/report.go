// Package report renders a completed analysis as a DOCX coaching report.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gomutex/godocx"
	"github.com/gomutex/godocx/docx"

	"coach-backend/internal/feedback"
	"coach-backend/internal/llm"
	"coach-backend/internal/textstats"
)

const (
	ContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

	fontName    = "Helvetica"
	titleSize   = 16
	headingSize = 14
	bodySize    = 11

	colorBlack  = "000000"
	colorGreen  = "009600"
	colorOrange = "C86400"
	colorBlue   = "000096"
)

// Input is what one report is built from.
type Input struct {
	Lens     llm.Lens
	FileName string
	Metrics  textstats.Metrics
	Result   feedback.Result
}

// Section is one heading with its paragraphs or bullets.
type Section struct {
	Heading string
	Color   string
	Lines   []string
	Bullets bool
}

// Title is the lens's report title, falling back to the generic one.
func Title(l llm.Lens) string {
	if strings.TrimSpace(l.ReportTitle) != "" {
		return l.ReportTitle
	}
	return "Consultation Coaching Report"
}

// FileName derives the download name from the transcript file name.
func FileName(transcriptName string) string {
	base := strings.TrimSuffix(filepath.Base(transcriptName), filepath.Ext(transcriptName))
	if base == "" || base == "." {
		base = "transcript"
	}
	return base + ".report.docx"
}

// Sections lays out the report content in reading order. Empty optional sections are omitted.
func Sections(in Input) []Section {
	r := in.Result
	summary := strings.TrimSpace(r.Summary)
	if summary == "" {
		summary = "No summary available."
	}
	sentiment := "N/A"
	if r.SentimentScore != nil {
		sentiment = strconv.Itoa(*r.SentimentScore)
	}

	sections := []Section{
		{Heading: "Executive Summary", Color: colorBlack, Lines: []string{summary}},
		{Heading: "Key Metrics", Color: colorBlack, Lines: []string{
			fmt.Sprintf("Sentiment Score: %s/100", sentiment),
			fmt.Sprintf("Word Count: %d", in.Metrics.WordCount),
			fmt.Sprintf("Estimated Duration: %s mins", strconv.FormatFloat(in.Metrics.EstimatedDurationMins, 'f', -1, 64)),
		}},
		{Heading: "What Went Well", Color: colorGreen, Lines: r.Strengths, Bullets: true},
		{Heading: "Areas for Improvement", Color: colorOrange, Lines: r.Improvements, Bullets: true},
		{Heading: "Coaching Tips", Color: colorBlue, Lines: r.CoachingTips, Bullets: true},
	}
	if len(r.Topics) > 0 {
		sections = append(sections, Section{Heading: "Topics", Color: colorBlack, Lines: r.Topics, Bullets: true})
	}
	if items := r.ScorecardItems(in.Lens.Scorecard); len(items) > 0 {
		lines := make([]string, 0, len(items)+1)
		for _, it := range items {
			lines = append(lines, fmt.Sprintf("%s: %d/10", humanize(it.Dimension), it.Score))
		}
		lines = append(lines, fmt.Sprintf("Average: %.2f/10", r.ScorecardAverage()))
		sections = append(sections, Section{Heading: "Scorecard", Color: colorBlack, Lines: lines, Bullets: true})
	}
	if len(r.ConversionRisks) > 0 {
		lines := make([]string, 0, len(r.ConversionRisks))
		for _, risk := range r.ConversionRisks {
			line := fmt.Sprintf("[%s] %s", strings.ToUpper(risk.Severity), risk.Label)
			if risk.Evidence != "" {
				line += ": " + risk.Evidence
			}
			if risk.Timestamp != nil && *risk.Timestamp != "" {
				line += " (" + *risk.Timestamp + ")"
			}
			lines = append(lines, line)
		}
		sections = append(sections, Section{Heading: "Conversion Risks", Color: colorOrange, Lines: lines, Bullets: true})
	}
	if len(r.MissedQuestions) > 0 {
		sections = append(sections, Section{Heading: "Missed Questions", Color: colorOrange, Lines: r.MissedQuestions, Bullets: true})
	}
	if len(r.MicroScripts) > 0 {
		lines := make([]string, 0, len(r.MicroScripts))
		for _, ms := range r.MicroScripts {
			if ms.Moment != "" {
				lines = append(lines, ms.Moment+": "+ms.Script)
			} else {
				lines = append(lines, ms.Script)
			}
		}
		sections = append(sections, Section{Heading: "Micro-Scripts", Color: colorBlue, Lines: lines, Bullets: true})
	}
	if len(r.Timeline) > 0 {
		lines := make([]string, 0, len(r.Timeline))
		for _, ev := range r.Timeline {
			lines = append(lines, fmt.Sprintf("%s [%s] %s", ev.Timestamp, ev.Type, ev.Description))
		}
		sections = append(sections, Section{Heading: "Timeline", Color: colorBlack, Lines: lines, Bullets: true})
	}
	return sections
}

// Build assembles the document.
func Build(in Input) (*docx.RootDoc, error) {
	doc, err := godocx.NewDocument()
	if err != nil {
		return nil, err
	}
	addRun(doc.AddParagraph(""), Title(in.Lens), colorBlack, titleSize, true)
	if in.FileName != "" {
		addRun(doc.AddParagraph(""), "Transcript: "+in.FileName, colorBlack, bodySize, false)
	}
	for _, s := range Sections(in) {
		addRun(doc.AddParagraph(""), s.Heading, s.Color, headingSize, true)
		for _, line := range s.Lines {
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			if s.Bullets {
				text = "- " + text
			}
			addRun(doc.AddParagraph(""), text, colorBlack, bodySize, false)
		}
	}
	return doc, nil
}

// SaveTo writes the report to path.
func SaveTo(in Input, path string) error {
	doc, err := Build(in)
	if err != nil {
		return err
	}
	return doc.SaveTo(path)
}

// Render returns the report as DOCX bytes.
func Render(in Input) ([]byte, error) {
	dir, err := os.MkdirTemp("", "coach-report-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "report.docx")
	if err := SaveTo(in, path); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	return os.ReadFile(path)
}

func addRun(p *docx.Paragraph, text, color string, size uint64, bold bool) {
	run := p.AddText(text).Font(fontName).Size(size).Color(color)
	if bold {
		run.Bold(true)
	}
}

func humanize(key string) string {
	words := strings.Fields(strings.ReplaceAll(key, "_", " "))
	for i, w := range words {
		if w == "and" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
