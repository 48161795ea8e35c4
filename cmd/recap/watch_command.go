package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"recap/internal/config"
	"recap/internal/orchestrator"
	"recap/internal/watch"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var settle time.Duration

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Transcribe recordings as they appear in a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			runner, _, err := ctx.runner(nil)
			if err != nil {
				return err
			}
			defer runner.Close()
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			watcher, err := watch.New(dir, func(runCtx context.Context, path string) error {
				summary, err := runner.Process(runCtx, path, orchestrator.Resume{})
				if summary != nil {
					printSummary(out, summary)
				}
				return err
			}, watch.Options{Settle: settle, Logger: logger})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Watching %s (Ctrl+C to stop)\n", dir)
			return watcher.Run(cmd.Context())
		},
	}

	cmd.Flags().DurationVar(&settle, "settle", 5*time.Second, "How long a file must stop changing before it is transcribed")
	return cmd
}
