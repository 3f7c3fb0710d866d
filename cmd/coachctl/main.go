// Command coachctl runs the transcript pipeline from a terminal: parse a file, analyze it,
// or watch an inbox directory and write reports to an outbox.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"coach-backend/internal/bootstrap"
	"coach-backend/internal/llm"
	"coach-backend/internal/pipeline"
	"coach-backend/internal/shared/config"
	"coach-backend/internal/shared/telemetry"
	"coach-backend/internal/textstats"
)

// newLLM is swapped in tests.
var newLLM = bootstrap.BuildLLM

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(config.Load()).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd(cfg config.Config) *cobra.Command {
	var logLevel string
	root := &cobra.Command{
		Use:           "coachctl",
		Short:         "Parse, analyze and watch consultation transcripts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			telemetry.SetOutput(cmd.ErrOrStderr())
			telemetry.SetLevel(logLevel)
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", firstSet(cfg.LogLevel, "warn"), "log level (debug, info, warn, error)")

	root.AddCommand(
		newParseCmd(cfg),
		newAnalyzeCmd(cfg),
		newWatchCmd(cfg),
		newLensesCmd(),
	)
	return root
}

func newRunner(ctx context.Context, cfg config.Config) (*pipeline.Runner, error) {
	client, err := newLLM(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &pipeline.Runner{
		LLM:      llm.WithRetry(client, map[string]any{"source": "coachctl"}),
		Stats:    textstats.New(cfg.SpeakingRateWPM),
		MaxBytes: cfg.MaxUploadBytes,
	}, nil
}

func firstSet(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
