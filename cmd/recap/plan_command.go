package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"recap/internal/config"
	"recap/internal/media"
	"recap/internal/media/segment"
	"recap/internal/pipeline"
	"recap/internal/transcript"
)

func newPlanCommand(ctx *commandContext) *cobra.Command {
	var chunkSeconds float64
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "plan <file>",
		Short: "Show how a recording would be split into chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			threshold := cfg.Media.ChunkSeconds
			if chunkSeconds > 0 {
				threshold = chunkSeconds
			}

			file, err := pipeline.NewProber(cfg, logger).Probe(cmd.Context(), path)
			if err != nil {
				return err
			}
			spans, err := segment.Plan(file.Duration, threshold)
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd, struct {
					File         media.File   `json:"file"`
					ChunkSeconds float64      `json:"chunk_seconds"`
					NeedsSplit   bool         `json:"needs_split"`
					Spans        []media.Span `json:"spans"`
				}{file, threshold, file.NeedsSplit(threshold), spans})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %s, %s\n", path, file.Kind, formatSeconds(file.Duration))
			if !file.NeedsSplit(threshold) {
				fmt.Fprintf(out, "Within the %s threshold; transcribed as a single unit.\n", formatSeconds(threshold))
				return nil
			}
			rows := make([][]string, 0, len(spans))
			for i, span := range spans {
				rows = append(rows, []string{
					strconv.Itoa(i),
					transcript.FormatTimestamp(span.Start),
					transcript.FormatTimestamp(span.End),
					formatSeconds(span.Length()),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Chunk", "Start", "End", "Length"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight},
				"", "", "Total", formatSeconds(file.Duration),
			))
			return nil
		},
	}

	cmd.Flags().Float64Var(&chunkSeconds, "chunk-seconds", 0, "Override media.chunk_seconds")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the plan as JSON")
	return cmd
}
