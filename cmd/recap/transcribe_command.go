package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"recap/internal/config"
	"recap/internal/orchestrator"
	"recap/internal/pipeline"
)

type transcribeOptions struct {
	startFile  int
	startTime  string
	backend    string
	language   string
	partial    bool
	noAudit    bool
	keepChunks bool
	serial     bool
	jsonOutput bool
}

func newTranscribeCommand(ctx *commandContext) *cobra.Command {
	var opts transcribeOptions

	cmd := &cobra.Command{
		Use:   "transcribe <file|dir>",
		Short: "Transcribe a recording, or every recording in a folder",
		Long: "Transcribe a recording into <output_dir>/<name>_transcript.txt and audit it for hallucinations.\n" +
			"Recordings longer than media.chunk_seconds are split into equal chunks. After a partial\n" +
			"failure, rerun with --start-file set to the first missing chunk to resume.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			info, err := os.Stat(target)
			if err != nil {
				return fmt.Errorf("inspect %q: %w", target, err)
			}

			startTime, err := parseOffset(opts.startTime)
			if err != nil {
				return err
			}
			resume := orchestrator.Resume{StartFile: opts.startFile, StartTime: startTime}
			if info.IsDir() && resume != (orchestrator.Resume{}) {
				return errors.New("--start-file and --start-time apply to a single file, not a folder")
			}

			runner, _, err := ctx.runner(opts.apply)
			if err != nil {
				return err
			}
			defer runner.Close()

			out := cmd.OutOrStdout()
			if info.IsDir() {
				summaries, runErr := runner.ProcessDir(cmd.Context(), target)
				if opts.jsonOutput {
					if err := writeJSON(cmd, summaryViews(summaries)); err != nil {
						return err
					}
					return runErr
				}
				for _, summary := range summaries {
					printSummary(out, summary)
				}
				return runErr
			}

			summary, runErr := runner.Process(cmd.Context(), target, resume)
			if opts.jsonOutput && summary != nil {
				if err := writeJSON(cmd, newSummaryView(summary)); err != nil {
					return err
				}
				return runErr
			}
			if summary != nil {
				printSummary(out, summary)
			}
			if partial, ok := orchestrator.AsPartial(runErr); ok {
				if first, ok := partial.FirstMissing(); ok {
					fmt.Fprintf(out, "Resume with: recap transcribe %q --start-file %d\n", target, first)
				}
			}
			return runErr
		},
	}

	cmd.Flags().IntVar(&opts.startFile, "start-file", 0, "Chunk index to start transcribing from")
	cmd.Flags().StringVar(&opts.startTime, "start-time", "", "Offset within the start chunk (seconds or HH:MM:SS)")
	cmd.Flags().StringVar(&opts.backend, "backend", "", "Override transcription.backend (gemini, openai, whisperx, server)")
	cmd.Flags().StringVar(&opts.language, "language", "", "Language hint, e.g. en or de-DE")
	cmd.Flags().BoolVar(&opts.partial, "partial", false, "Write a transcript even when some chunks fail")
	cmd.Flags().BoolVar(&opts.noAudit, "no-audit", false, "Skip the hallucination audit")
	cmd.Flags().BoolVar(&opts.keepChunks, "keep-chunks", false, "Keep chunk files after the run")
	cmd.Flags().BoolVar(&opts.serial, "serial", false, "Transcribe chunks one at a time")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Print the run summary as JSON")
	return cmd
}

func (o transcribeOptions) apply(cfg *config.Config) {
	if backend := strings.ToLower(strings.TrimSpace(o.backend)); backend != "" {
		cfg.Transcription.Backend = backend
	}
	if lang := strings.TrimSpace(o.language); lang != "" {
		cfg.Transcription.Language = lang
	}
	if o.partial {
		cfg.Transcription.PartialResults = true
	}
	if o.noAudit {
		cfg.Audit.Enabled = false
	}
	if o.keepChunks {
		cfg.Media.KeepChunks = true
	}
	if o.serial {
		cfg.Transcription.Parallel = false
	}
}

type summaryView struct {
	RunID     string           `json:"run_id"`
	Source    string           `json:"source"`
	Status    string           `json:"status"`
	Chunks    int              `json:"chunks"`
	Missing   []int            `json:"missing,omitempty"`
	Findings  int              `json:"findings"`
	Outputs   pipeline.Outputs `json:"outputs"`
	ElapsedMS int64            `json:"elapsed_ms"`
}

func newSummaryView(s *pipeline.Summary) summaryView {
	view := summaryView{
		RunID:     s.RunID,
		Source:    s.Source,
		Status:    string(s.Status),
		Outputs:   s.Outputs,
		ElapsedMS: s.Elapsed.Milliseconds(),
	}
	if s.Output != nil {
		view.Chunks = len(s.Output.Outcomes)
		for _, missing := range s.Output.Missing {
			view.Missing = append(view.Missing, missing.Index)
		}
	}
	if s.Report != nil {
		view.Findings = s.Report.Issues()
	}
	return view
}

func summaryViews(summaries []*pipeline.Summary) []summaryView {
	views := make([]summaryView, 0, len(summaries))
	for _, s := range summaries {
		views = append(views, newSummaryView(s))
	}
	return views
}

func printSummary(out io.Writer, s *pipeline.Summary) {
	view := newSummaryView(s)
	fmt.Fprintf(out, "%s: %s", s.Source, view.Status)
	if view.Chunks > 1 {
		fmt.Fprintf(out, " (%d chunks", view.Chunks)
		if len(view.Missing) > 0 {
			fmt.Fprintf(out, ", missing %v", view.Missing)
		}
		fmt.Fprint(out, ")")
	}
	fmt.Fprintf(out, " in %s\n", s.Elapsed.Round(10*time.Millisecond))
	if s.Outputs.Transcript != "" {
		fmt.Fprintf(out, "  transcript: %s\n", s.Outputs.Transcript)
	}
	if s.Outputs.Report != "" {
		fmt.Fprintf(out, "  audit:      %s (%d finding(s), max %s)\n", s.Outputs.Report, view.Findings, s.Report.Max())
	}
}
