package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kosha-fin/kosha/internal/cli"
	"github.com/kosha-fin/kosha/internal/model"
	syncer "github.com/kosha-fin/kosha/internal/sync"
)

func syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Flush the pending queue and backfill recent alerts",
		Long: `Sync reconciles local state with the backend: pending queue entries
are submitted first, then recent alerts the listener may have missed are
re-examined against a fresh backend snapshot. Backfill is capped per run;
anything over the cap stays eligible for the next sync.`,
		RunE: runSync,
	}

	cmd.Flags().Int("days", 0, "how many days of recent messages to examine (default 7)")
	cmd.Flags().Int("max", 0, "cap on backfill candidates per run (default 30)")
	cmd.Flags().Bool("no-progress", false, "disable the progress bar")

	return cmd
}

func runSync(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Error("failed to close storage", "error", err)
		}
	}()

	_, dedupEngine, classifier, apiClient, err := createPipeline(store)
	if err != nil {
		return err
	}

	source, err := createMessageSource()
	if err != nil {
		return err
	}

	days, _ := cmd.Flags().GetInt("days")
	maxPerRun, _ := cmd.Flags().GetInt("max")
	noProgress, _ := cmd.Flags().GetBool("no-progress")

	opts := syncer.Options{
		DaysBack:  days,
		MaxPerRun: maxPerRun,
	}

	var bar *progressbar.ProgressBar
	if !noProgress {
		opts.Progress = func(done, total int) {
			if bar == nil {
				bar = newSyncBar(total)
			}
			_ = bar.Set(done)
		}
	}

	fmt.Println(cli.FormatTitle("Syncing"))

	s := syncer.New(store, dedupEngine, classifier, apiClient, source, opts, slog.Default())
	run, err := s.Run(ctx)
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}
	if err != nil {
		fmt.Println(cli.FormatError("sync did not complete: " + err.Error()))
	}

	fmt.Println(renderSyncSummary(run))
	return nil
}

func newSyncBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]Examining alerts...[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

func renderSyncSummary(run model.SyncRun) string {
	lines := []string{
		cli.FormatCount("Flushed from queue", run.Flushed),
		cli.FormatCount("Alerts examined", run.Examined),
		cli.FormatCount("Transactions created", run.Created),
		cli.FormatCount("Skipped", run.Skipped),
		cli.FormatCount("Queued for later", run.Queued),
		cli.SubtleStyle.Render(fmt.Sprintf("Took %s", run.Duration.Round(time.Millisecond))),
	}
	return cli.RenderBox("Sync complete", strings.Join(lines, "\n"))
}
