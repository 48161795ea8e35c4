package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"recap/internal/audit"
	"recap/internal/config"
	"recap/internal/pipeline"
)

func newAuditCommand(ctx *commandContext) *cobra.Command {
	var transcriptPath string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "audit <file>",
		Short: "Re-run the hallucination audit on an existing transcript",
		Long: "Audit the transcript previously written for <file> against its media. The transcript\n" +
			"defaults to <output_dir>/<name>_transcript.json; the report files are rewritten.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			runner, cfg, err := ctx.runner(func(cfg *config.Config) {
				cfg.Audit.Enabled = true
			})
			if err != nil {
				return err
			}
			defer runner.Close()

			path := transcriptPath
			if path == "" {
				path = pipeline.OutputPaths(cfg.Paths.OutputDir, source).TranscriptJSON
			} else if path, err = config.ExpandPath(path); err != nil {
				return err
			}

			report, outputs, err := runner.Reaudit(cmd.Context(), source, path)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, report)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d finding(s), max %s\n", source, report.Issues(), report.Max())
			for _, sev := range []audit.Severity{audit.SeverityHigh, audit.SeverityMedium, audit.SeverityLow} {
				if n := report.Count(sev); n > 0 {
					fmt.Fprintf(out, "  %-6s %d\n", sev, n)
				}
			}
			if report.Unavailable > 0 {
				fmt.Fprintf(out, "  %d unit(s) could not be audited\n", report.Unavailable)
			}
			fmt.Fprintf(out, "  report: %s\n", outputs.Report)
			return nil
		},
	}

	cmd.Flags().StringVar(&transcriptPath, "transcript", "", "Transcript JSON to audit")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the report as JSON")
	return cmd
}
