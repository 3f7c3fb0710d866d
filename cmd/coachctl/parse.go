package main

import (
	"encoding/json"
	"path/filepath"

	"github.com/spf13/cobra"

	"coach-backend/internal/ingest"
	"coach-backend/internal/pipeline"
	"coach-backend/internal/shared/config"
	"coach-backend/internal/textstats"
)

type parseOutput struct {
	FileName string            `json:"fileName"`
	Format   ingest.Format     `json:"format"`
	Cues     int               `json:"cues"`
	Metrics  textstats.Metrics `json:"metrics"`
	Text     string            `json:"text,omitempty"`
}

func newParseCmd(cfg config.Config) *cobra.Command {
	var withText bool
	cmd := &cobra.Command{
		Use:   "parse <file>",
		Short: "Parse a transcript and print its metrics without calling the model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runner := &pipeline.Runner{Stats: textstats.New(cfg.SpeakingRateWPM), MaxBytes: cfg.MaxUploadBytes}
			data, err := pipeline.ReadFile(args[0], cfg.MaxUploadBytes)
			if err != nil {
				return err
			}
			name := filepath.Base(args[0])
			tr, stats, err := runner.Ingest(name, data)
			if err != nil {
				return err
			}
			out := parseOutput{FileName: name, Format: tr.Format, Cues: len(tr.Cues), Metrics: stats}
			if withText {
				out.Text = tr.Text
			}
			return printJSON(cmd, out)
		},
	}
	cmd.Flags().BoolVar(&withText, "text", false, "include the extracted spoken text")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
