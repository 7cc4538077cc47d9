// Package trigger watches a drop file: writing a command phrase into it
// fires that phrase as if spoken, at full confidence. Scripts and
// hardware buttons use this to reach the dispatcher without a microphone.
package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/voxdeck/voxdeck/internal/config"
	"github.com/voxdeck/voxdeck/internal/log"
	"github.com/voxdeck/voxdeck/internal/speech"
)

// Watcher consumes the drop file. The file's first line is submitted and
// the file removed; one file, one firing.
type Watcher struct {
	path   string
	poll   time.Duration
	submit func(speech.Utterance) (int64, bool)
	logger *slog.Logger
}

// New creates a watcher for cfg.Path.
func New(cfg config.TriggerConfig, submit func(speech.Utterance) (int64, bool)) *Watcher {
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = time.Second
	}
	return &Watcher{
		path:   cfg.Path,
		poll:   poll,
		submit: submit,
		logger: log.WithComponent("trigger"),
	}
}

// Run watches until ctx is cancelled. Inotify events drive the fast path
// and a poll ticker catches anything the watch misses (network mounts,
// replaced directories).
func (w *Watcher) Run(ctx context.Context) error {
	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create trigger directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	w.logger.Info("trigger file armed", "path", w.path)

	// The file may predate this process.
	w.consume()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			// Give the writer a moment to finish the line.
			time.Sleep(20 * time.Millisecond)
			w.consume()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		case <-ticker.C:
			w.consume()
		}
	}
}

// consume reads and removes the drop file, submitting its first line.
func (w *Watcher) consume() {
	data, err := os.ReadFile(w.path)
	if err != nil {
		if !os.IsNotExist(err) {
			w.logger.Warn("failed to read trigger file", "error", err)
		}
		return
	}
	if err := os.Remove(w.path); err != nil {
		w.logger.Warn("failed to remove trigger file", "error", err)
	}

	line, _, _ := strings.Cut(string(data), "\n")
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	seq, ok := w.submit(speech.Utterance{
		At:         time.Now(),
		Text:       line,
		Confidence: 1.0,
		Source:     "trigger",
	})
	if !ok {
		w.logger.Warn("intake queue full, trigger dropped", "text", line)
		return
	}
	w.logger.Info("trigger fired", "text", line, "seq", seq)
}
