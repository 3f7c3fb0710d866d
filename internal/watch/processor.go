package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"coach-backend/internal/feedback"
	"coach-backend/internal/pipeline"
	"coach-backend/internal/report"
	"coach-backend/internal/textstats"
)

// Processor runs the pipeline for one inbox file and writes its outputs to Outbox:
// <name>.analysis.json and <name>.report.docx, or <name>.error.json when the run fails.
type Processor struct {
	Runner *pipeline.Runner
	Outbox string
	Lens   string
	Model  string
	Now    func() time.Time
}

// AnalysisFile is the JSON written next to each report.
type AnalysisFile struct {
	FileName        string            `json:"fileName"`
	Lens            string            `json:"lens"`
	Model           string            `json:"model,omitempty"`
	PromptHash      string            `json:"promptHash,omitempty"`
	Metrics         textstats.Metrics `json:"metrics"`
	SentimentScore  int               `json:"sentimentScore"`
	SentimentSource string            `json:"sentimentSource"`
	Result          feedback.Result   `json:"result"`
	AnalyzedAt      time.Time         `json:"analyzedAt"`
}

type errorFile struct {
	FileName string    `json:"fileName"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failedAt"`
}

// Handle is a HandlerFunc.
func (p *Processor) Handle(ctx context.Context, path string) error {
	base := baseName(path)
	out, err := p.Runner.RunFile(ctx, path, p.Lens, p.Model)
	if err != nil {
		if werr := writeJSON(filepath.Join(p.Outbox, base+".error.json"), errorFile{
			FileName: filepath.Base(path),
			Error:    err.Error(),
			FailedAt: p.now(),
		}); werr != nil {
			return fmt.Errorf("%w (writing error file: %v)", err, werr)
		}
		return err
	}

	score, source := pipeline.SentimentScore(out.Metrics, &out.Result)
	doc := AnalysisFile{
		FileName:        out.FileName,
		Lens:            out.Lens.Name,
		Model:           out.Model,
		PromptHash:      out.PromptHash,
		Metrics:         out.Metrics,
		SentimentScore:  score,
		SentimentSource: source,
		Result:          out.Result,
		AnalyzedAt:      p.now(),
	}
	if err := writeJSON(filepath.Join(p.Outbox, base+".analysis.json"), doc); err != nil {
		return fmt.Errorf("write analysis: %w", err)
	}
	in := report.Input{Lens: out.Lens, FileName: out.FileName, Metrics: out.Metrics, Result: out.Result}
	if err := report.SaveTo(in, filepath.Join(p.Outbox, report.FileName(out.FileName))); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func (p *Processor) now() time.Time {
	if p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

func baseName(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// writeJSON writes through a temp file so readers never see a partial document.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
