package telemetry

import (
	"fmt"
	"io"
	"time"
)

// WriteReport renders the session as markdown: header, per-category
// counts, then the full chronological trace. Written once at shutdown.
func (b *Bus) WriteReport(w io.Writer, sessionID string) error {
	b.mu.Lock()
	events := make([]Event, len(b.events))
	copy(events, b.events)
	started := b.started
	b.mu.Unlock()

	ended := time.Now()

	fmt.Fprintf(w, "# Voxdeck session report\n\n")
	fmt.Fprintf(w, "- Session: %s\n", sessionID)
	fmt.Fprintf(w, "- Started: %s\n", started.Format(time.RFC3339))
	fmt.Fprintf(w, "- Ended: %s\n", ended.Format(time.RFC3339))
	fmt.Fprintf(w, "- Duration: %s\n", ended.Sub(started).Round(time.Second))
	fmt.Fprintf(w, "- Events: %d\n\n", len(events))

	counts := make(map[Category]int)
	var order []Category
	for _, ev := range events {
		if counts[ev.Category] == 0 {
			order = append(order, ev.Category)
		}
		counts[ev.Category]++
	}

	fmt.Fprintf(w, "## Event counts\n\n")
	for _, cat := range order {
		fmt.Fprintf(w, "- %s: %d\n", cat, counts[cat])
	}
	fmt.Fprintf(w, "\n## Trace\n\n```\n")
	for _, ev := range events {
		fmt.Fprintf(w, "[%s] [%-8s] %s\n",
			ev.At.Format("15:04:05.000"), ev.Category, ev.Message)
	}
	_, err := fmt.Fprintf(w, "```\n")
	return err
}
