package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/kosha-fin/kosha/internal/cli"
	"github.com/kosha-fin/kosha/internal/model"
	"github.com/kosha-fin/kosha/internal/pipeline"
)

func listenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Watch for new bank alerts and ingest them live",
		Long: `Listen watches the message spool directory and runs every new
alert through the ingestion pipeline as it arrives. Runs until interrupted.`,
		RunE: runListen,
	}
}

func runListen(cmd *cobra.Command, _ []string) error {
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

	pipe, _, _, _, err := createPipeline(store)
	if err != nil {
		return err
	}

	source, err := createMessageSource()
	if err != nil {
		return err
	}

	messages, err := source.Watch(ctx)
	if err != nil {
		return fmt.Errorf("failed to watch for messages: %w", err)
	}

	fmt.Println(cli.FormatTitle("Listening for bank alerts"))

	for msg := range messages {
		outcome := pipe.HandleRawMessage(ctx, msg)
		printOutcome(outcome)
	}

	fmt.Println(cli.SubtleStyle.Render("Listener stopped."))
	return nil
}

func printOutcome(outcome pipeline.Outcome) {
	switch outcome.Status {
	case pipeline.StatusSubmitted:
		fmt.Println(cli.FormatSuccess(describeCandidate(outcome)))
	case pipeline.StatusQueued:
		fmt.Println(cli.FormatQueued(describeCandidate(outcome) + " (queued for sync)"))
	case pipeline.StatusDuplicate:
		fmt.Println(cli.SubtleStyle.Render("duplicate message skipped"))
	case pipeline.StatusAlreadyRecorded:
		fmt.Println(cli.SubtleStyle.Render("already recorded: " + describeCandidate(outcome)))
	case pipeline.StatusNotTransaction:
		if outcome.Err != nil {
			fmt.Println(cli.FormatWarning("extraction failed, message skipped"))
		} else {
			fmt.Println(cli.SubtleStyle.Render("not a transaction"))
		}
	case pipeline.StatusFailed:
		fmt.Println(cli.FormatError("could not record " + describeCandidate(outcome) + ", will retry on redelivery"))
	}
}

func describeCandidate(outcome pipeline.Outcome) string {
	c := outcome.Candidate
	if c == nil {
		return "transaction"
	}
	verb := "paid to"
	if c.Direction == model.DirectionCredit {
		verb = "received from"
	}
	return fmt.Sprintf("%s %s %s [%s]", c.Amount.StringFixed(2), verb, c.Name, c.Category)
}
