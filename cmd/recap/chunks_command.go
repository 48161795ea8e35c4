package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"recap/internal/chunkstore"
	"recap/internal/config"
	"recap/internal/media"
	"recap/internal/transcript"
)

func newChunksCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chunks",
		Short: "Inspect and clear stored chunk results",
	}
	cmd.AddCommand(newChunksListCommand(ctx))
	cmd.AddCommand(newChunksClearCommand(ctx))
	cmd.AddCommand(newChunksRunsCommand(ctx))
	return cmd
}

func openStore(ctx *commandContext) (*chunkstore.Store, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	return chunkstore.Open(cfg.StatePath())
}

// fingerprintArg resolves the optional file argument to a fingerprint.
func fingerprintArg(args []string) (string, error) {
	if len(args) == 0 {
		return "", nil
	}
	path, err := config.ExpandPath(args[0])
	if err != nil {
		return "", err
	}
	return media.Fingerprint(path)
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}

func newChunksListCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "list [file]",
		Short: "List stored chunk results, optionally for one file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fp, err := fingerprintArg(args)
			if err != nil {
				return err
			}
			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.List(cmd.Context(), fp)
			if err != nil {
				return err
			}
			if jsonOutput {
				if records == nil {
					records = []chunkstore.Record{}
				}
				return writeJSON(cmd, records)
			}
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No stored chunks")
				return nil
			}
			rows := make([][]string, 0, len(records))
			for _, rec := range records {
				detail := fmt.Sprintf("%d segment(s)", len(rec.Result.Segments))
				if rec.Status == chunkstore.StatusFailed {
					detail = rec.Error
				}
				rows = append(rows, []string{
					shortFingerprint(rec.Fingerprint),
					strconv.Itoa(rec.Index),
					transcript.FormatTimestamp(rec.Start) + " - " + transcript.FormatTimestamp(rec.End),
					rec.Backend,
					string(rec.Status),
					strconv.Itoa(rec.Attempts),
					detail,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"File", "Chunk", "Span", "Backend", "Status", "Attempts", "Detail"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print records as JSON")
	return cmd
}

func newChunksClearCommand(ctx *commandContext) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "clear [file]",
		Short: "Forget stored chunk results so the next run transcribes again",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !all {
				return errors.New("specify a file or pass --all")
			}
			fp, err := fingerprintArg(args)
			if err != nil {
				return err
			}
			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			removed, err := store.Clear(cmd.Context(), fp)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d stored chunk(s)\n", removed)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Clear results for every file")
	return cmd
}

func newChunksRunsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent transcription runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.Runs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				elapsed := "-"
				if !run.FinishedAt.IsZero() {
					elapsed = run.FinishedAt.Sub(run.StartedAt).Round(time.Second).String()
				}
				rows = append(rows, []string{
					run.StartedAt.Local().Format("2006-01-02 15:04"),
					media.Stem(run.Source),
					run.Backend,
					string(run.Status),
					fmt.Sprintf("%d/%d", run.Chunks-run.Failed, run.Chunks),
					elapsed,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Started", "Source", "Backend", "Status", "Chunks", "Elapsed"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight},
			))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to show")
	return cmd
}
