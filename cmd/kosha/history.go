package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/kosha-fin/kosha/internal/cli"
)

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent sync runs",
		RunE:  runHistory,
	}

	cmd.Flags().Int("limit", 10, "how many runs to show")

	return cmd
}

func runHistory(cmd *cobra.Command, _ []string) error {
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

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := store.ListSyncRuns(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to read sync history: %w", err)
	}

	if len(runs) == 0 {
		fmt.Println(cli.SubtleStyle.Render("No sync runs recorded yet."))
		return nil
	}

	fmt.Println(cli.FormatTitle("Sync history"))
	for _, run := range runs {
		fmt.Printf("  %s  examined %-3d created %-3d skipped %-3d queued %-3d flushed %-3d  %s\n",
			run.StartedAt.Format("2006-01-02 15:04"),
			run.Examined,
			run.Created,
			run.Skipped,
			run.Queued,
			run.Flushed,
			cli.SubtleStyle.Render(run.Duration.Round(time.Millisecond).String()))
	}
	return nil
}
