package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/kosha-fin/kosha/internal/cli"
	syncer "github.com/kosha-fin/kosha/internal/sync"
)

func queueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect or flush the offline pending queue",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List transactions waiting for submission",
		RunE:  runQueueList,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "flush",
		Short: "Submit all pending transactions now",
		RunE:  runQueueFlush,
	})

	return cmd
}

func runQueueList(cmd *cobra.Command, _ []string) error {
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

	entries, err := store.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("failed to read pending queue: %w", err)
	}

	if len(entries) == 0 {
		fmt.Println(cli.SubtleStyle.Render("Pending queue is empty."))
		return nil
	}

	fmt.Println(cli.FormatTitle(fmt.Sprintf("Pending queue (%d)", len(entries))))
	for _, entry := range entries {
		p := entry.Payload
		ref := p.ReferenceID
		if ref == "" {
			ref = "-"
		}
		fmt.Printf("  %s  %s  %-20s  %-12s  ref=%s  queued %s\n",
			cli.AmountStyle.Render(p.Amount.StringFixed(2)),
			p.Direction,
			p.Name,
			p.Category,
			ref,
			entry.QueuedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func runQueueFlush(cmd *cobra.Command, _ []string) error {
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

	tokens, err := createTokenSource()
	if err != nil {
		return err
	}
	apiClient, err := createAPIClient(tokens)
	if err != nil {
		return err
	}

	// Flush needs no classifier or message source; nil collaborators are
	// never reached on this path.
	s := syncer.New(store, nil, nil, apiClient, nil, syncer.Options{}, slog.Default())
	flushed := s.Flush(ctx)

	remaining, err := store.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("failed to re-read pending queue: %w", err)
	}

	fmt.Println(cli.FormatSuccess(fmt.Sprintf("Flushed %d, %d still pending", flushed, len(remaining))))
	return nil
}
