package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"recap/internal/config"
	"recap/internal/media"
	"recap/internal/pipeline"
)

func newProbeCommand(ctx *commandContext) *cobra.Command {
	var checkDark bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "probe <file>",
		Short: "Report the kind and duration of a recording",
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

			prober := pipeline.NewProber(cfg, logger)
			file, err := prober.Probe(cmd.Context(), path)
			if err != nil {
				return err
			}
			darkChecked := false
			if checkDark && file.Kind == media.KindVideo {
				dark, err := prober.IsDarkVideo(cmd.Context(), file)
				if err != nil {
					return err
				}
				file.Dark = dark
				darkChecked = true
			}

			if jsonOutput {
				return writeJSON(cmd, struct {
					media.File
					NeedsSplit bool `json:"needs_split"`
				}{file, file.NeedsSplit(cfg.Media.ChunkSeconds)})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Path:        %s\n", file.Path)
			fmt.Fprintf(out, "Kind:        %s\n", strings.ToLower(string(file.Kind)))
			fmt.Fprintf(out, "Duration:    %s\n", formatSeconds(file.Duration))
			fmt.Fprintf(out, "Needs split: %s (threshold %s)\n", yesNo(file.NeedsSplit(cfg.Media.ChunkSeconds)), formatSeconds(cfg.Media.ChunkSeconds))
			if darkChecked {
				fmt.Fprintf(out, "Dark video:  %s\n", yesNo(file.Dark))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&checkDark, "dark", false, "Sample video frames to detect a dark video")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the probe result as JSON")
	return cmd
}
