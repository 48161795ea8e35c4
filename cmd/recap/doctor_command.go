package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"recap/internal/media/command"
	"recap/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check external tools, directories and backend credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			failed := 0

			fmt.Fprintln(out, renderSectionHeader("Dependencies", colorize))
			for _, status := range preflight.CheckSystemDeps(cmd.Context(), cfg, command.Exec) {
				kind, detail := statusOK, status.Command
				if status.Version != "" {
					detail = status.Version
				}
				switch {
				case !status.Available && status.Optional:
					kind, detail = statusWarn, status.Detail
				case !status.Available:
					kind, detail = statusError, status.Detail+" ("+status.Description+")"
					failed++
				}
				fmt.Fprintln(out, renderStatusLine(status.Name, kind, detail, colorize))
			}

			fmt.Fprintln(out)
			fmt.Fprintln(out, renderSectionHeader("Configuration", colorize))
			fmt.Fprintln(out, renderStatusLine("Backend", statusInfo, cfg.Transcription.Backend, colorize))
			fmt.Fprintln(out, renderStatusLine("Audit", statusInfo, yesNo(cfg.Audit.Enabled), colorize))
			for _, result := range preflight.RunAll(cmd.Context(), cfg) {
				kind := statusOK
				if !result.Passed {
					kind = statusError
					failed++
				}
				fmt.Fprintln(out, renderStatusLine(result.Name, kind, result.Detail, colorize))
			}

			if failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, "All checks passed")
			return nil
		},
	}
}
