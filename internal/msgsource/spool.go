// Package msgsource adapts the host messaging subsystem to the ingestion
// pipeline. Messages arrive as JSON files dropped into a spool directory
// by the platform bridge; this package watches the directory for live
// delivery and scans it for sync backfill.
package msgsource

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kosha-fin/kosha/internal/model"
)

// settleDelay gives the writer time to finish a file after the create
// event fires. Spool files are small, so one short wait is enough.
const settleDelay = 50 * time.Millisecond

// Spool reads raw messages from a directory of JSON files.
type Spool struct {
	dir    string
	logger *slog.Logger
	settle time.Duration
}

// NewSpool creates a spool source over dir, creating it if needed.
func NewSpool(dir string, logger *slog.Logger) (*Spool, error) {
	if dir == "" {
		return nil, fmt.Errorf("spool directory not configured")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create spool directory: %w", err)
	}
	return &Spool{dir: dir, logger: logger, settle: settleDelay}, nil
}

// Watch emits a message for every JSON file created in the spool directory
// until ctx is canceled. Malformed files are logged and skipped; the
// returned channel is closed when the watcher shuts down.
func (s *Spool) Watch(ctx context.Context) (<-chan model.RawMessage, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create spool watcher: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch spool directory: %w", err)
	}

	out := make(chan model.RawMessage)
	go func() {
		defer close(out)
		defer func() { _ = watcher.Close() }()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Create) || !isSpoolFile(event.Name) {
					continue
				}
				time.Sleep(s.settle)
				msg, err := readSpoolFile(event.Name)
				if err != nil {
					s.logger.Warn("skipping unreadable spool file",
						"file", filepath.Base(event.Name),
						"error", err)
					continue
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("spool watcher error", "error", err)
			}
		}
	}()
	return out, nil
}

// Recent returns spool messages received within the last daysBack days,
// oldest first. Malformed files are skipped.
func (s *Spool) Recent(ctx context.Context, daysBack int) ([]model.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read spool directory: %w", err)
	}

	cutoff := time.Now().AddDate(0, 0, -daysBack)
	var messages []model.RawMessage
	for _, entry := range entries {
		if entry.IsDir() || !isSpoolFile(entry.Name()) {
			continue
		}
		msg, err := readSpoolFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			s.logger.Warn("skipping unreadable spool file",
				"file", entry.Name(),
				"error", err)
			continue
		}
		if msg.ReceivedAt.Before(cutoff) {
			continue
		}
		messages = append(messages, msg)
	}

	sort.Slice(messages, func(i, j int) bool {
		return messages[i].ReceivedAt.Before(messages[j].ReceivedAt)
	})
	return messages, nil
}

func isSpoolFile(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".json")
}

func readSpoolFile(path string) (model.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.RawMessage{}, fmt.Errorf("failed to read message file: %w", err)
	}

	var msg model.RawMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return model.RawMessage{}, fmt.Errorf("failed to parse message file: %w", err)
	}
	if msg.Sender == "" || msg.Body == "" {
		return model.RawMessage{}, fmt.Errorf("message file missing sender or body")
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now()
	}
	return msg, nil
}
