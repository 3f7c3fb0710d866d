package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/spf13/cobra"

	"coach-backend/internal/shared/config"
	"coach-backend/internal/shared/telemetry"
	"coach-backend/internal/watch"
)

var now = time.Now

func newWatchCmd(cfg config.Config) *cobra.Command {
	var (
		lens        string
		model       string
		concurrency int
		backlog     bool
	)
	cmd := &cobra.Command{
		Use:   "watch [inbox] [outbox]",
		Short: "Analyze every transcript dropped into inbox and write results to outbox",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			inbox, outbox := cfg.WatchInboxDir, cfg.WatchOutboxDir
			if len(args) > 0 {
				inbox = args[0]
			}
			if len(args) > 1 {
				outbox = args[1]
			}
			if inbox == "" || outbox == "" {
				return errors.New("inbox and outbox directories are required")
			}
			if err := os.MkdirAll(outbox, 0o755); err != nil {
				return err
			}

			runner, err := newRunner(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			proc := &watch.Processor{Runner: runner, Outbox: outbox, Lens: lens, Model: model, Now: now}
			w, err := watch.New(inbox, proc.Handle, concurrency)
			if err != nil {
				return err
			}
			defer w.Close()
			w.Backlog = backlog

			telemetry.Info("coachctl.watch_started", map[string]any{"inbox": inbox, "outbox": outbox, "lens": lens})
			if err := w.Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&lens, "lens", cfg.DefaultLens, "coaching lens")
	cmd.Flags().StringVar(&model, "model", cfg.LLMModel, "model override")
	cmd.Flags().IntVar(&concurrency, "concurrency", cfg.WatchConcurrency, "files analyzed at once")
	cmd.Flags().BoolVar(&backlog, "backlog", true, "process files already in the inbox at startup")
	return cmd
}
