package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"coach-backend/internal/pipeline"
	"coach-backend/internal/report"
	"coach-backend/internal/shared/config"
	"coach-backend/internal/shared/telemetry"
	"coach-backend/internal/watch"
)

func newAnalyzeCmd(cfg config.Config) *cobra.Command {
	var (
		lens       string
		model      string
		reportPath string
	)
	cmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Analyze a transcript under a coaching lens and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, err := newRunner(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			out, err := runner.RunFile(cmd.Context(), args[0], lens, model)
			if err != nil {
				return err
			}
			if reportPath != "" {
				if err := report.SaveTo(report.Input{
					Lens:     out.Lens,
					FileName: out.FileName,
					Metrics:  out.Metrics,
					Result:   out.Result,
				}, reportPath); err != nil {
					return fmt.Errorf("write report: %w", err)
				}
				telemetry.Info("coachctl.report_written", map[string]any{"path": reportPath})
			}
			score, source := pipeline.SentimentScore(out.Metrics, &out.Result)
			return printJSON(cmd, watch.AnalysisFile{
				FileName:        out.FileName,
				Lens:            out.Lens.Name,
				Model:           out.Model,
				PromptHash:      out.PromptHash,
				Metrics:         out.Metrics,
				SentimentScore:  score,
				SentimentSource: source,
				Result:          out.Result,
				AnalyzedAt:      now().UTC(),
			})
		},
	}
	cmd.Flags().StringVar(&lens, "lens", cfg.DefaultLens, "coaching lens")
	cmd.Flags().StringVar(&model, "model", cfg.LLMModel, "model override")
	cmd.Flags().StringVar(&reportPath, "report", "", "also write a DOCX report to this path")
	return cmd
}
