package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kosha-fin/kosha/internal/model"
	"github.com/kosha-fin/kosha/internal/pipeline"
)

func ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest a single bank alert and exit",
		Long: `Ingest runs one message through the full pipeline in a fresh process.
This is the headless entry point: the platform bridge invokes it for
alerts that arrive while no listener is running.

The message is read as JSON from --file, or from stdin when no flags are
given. With --sender and --body the message is built from flags instead.`,
		RunE: runIngest,
	}

	cmd.Flags().String("file", "", "path to a JSON message file")
	cmd.Flags().String("sender", "", "message sender")
	cmd.Flags().String("body", "", "message body")
	cmd.Flags().String("received-at", "", "receipt time (RFC 3339, default now)")

	return cmd
}

func runIngest(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	msg, err := readIngestMessage(cmd)
	if err != nil {
		return err
	}

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

	outcome := pipe.HandleRawMessage(ctx, msg)
	printOutcome(outcome)

	// A failed extraction is terminal for the message but still an error
	// worth surfacing to the invoking bridge.
	if outcome.Status == pipeline.StatusNotTransaction && outcome.Err != nil {
		return fmt.Errorf("extraction failed: %w", outcome.Err)
	}
	// A failed queue write left the message unconsumed; the bridge should
	// redeliver.
	if outcome.Status == pipeline.StatusFailed {
		return fmt.Errorf("failed to record transaction: %w", outcome.Err)
	}
	return nil
}

func readIngestMessage(cmd *cobra.Command) (model.RawMessage, error) {
	sender, _ := cmd.Flags().GetString("sender")
	body, _ := cmd.Flags().GetString("body")
	file, _ := cmd.Flags().GetString("file")

	if sender != "" || body != "" {
		if sender == "" || body == "" {
			return model.RawMessage{}, fmt.Errorf("--sender and --body must be given together")
		}
		receivedAt := time.Now()
		if raw, _ := cmd.Flags().GetString("received-at"); raw != "" {
			parsed, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return model.RawMessage{}, fmt.Errorf("invalid --received-at: %w", err)
			}
			receivedAt = parsed
		}
		return model.RawMessage{ReceivedAt: receivedAt, Sender: sender, Body: body}, nil
	}

	var data []byte
	var err error
	if file != "" {
		data, err = os.ReadFile(file)
		if err != nil {
			return model.RawMessage{}, fmt.Errorf("failed to read message file: %w", err)
		}
	} else {
		data, err = io.ReadAll(os.Stdin)
		if err != nil {
			return model.RawMessage{}, fmt.Errorf("failed to read message from stdin: %w", err)
		}
	}

	var msg model.RawMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return model.RawMessage{}, fmt.Errorf("failed to parse message JSON: %w", err)
	}
	if msg.Sender == "" || msg.Body == "" {
		return model.RawMessage{}, fmt.Errorf("message must have sender and body")
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now()
	}
	return msg, nil
}
