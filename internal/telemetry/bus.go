// Package telemetry is the ordered record of everything the dispatch
// pipeline does: one global sequence, a durable session file, and a
// cursor-based live tail.
package telemetry

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/voxdeck/voxdeck/internal/metrics"
)

// Category tags every event with the stage that emitted it.
type Category string

const (
	CategorySystem   Category = "system"
	CategorySpeech   Category = "speech"
	CategoryMatch    Category = "match"
	CategoryDispatch Category = "dispatch"
	CategoryOSC      Category = "osc"
	CategoryFeedback Category = "feedback"
	CategoryError    Category = "error"
)

// Event is one telemetry record. Seq is assigned at emission under the bus
// lock, so log order is emission order.
type Event struct {
	Seq      int64     `json:"seq"`
	At       time.Time `json:"at"`
	Category Category  `json:"category"`
	Message  string    `json:"message"`
}

// Bus is the append-only session log. The full log is kept in memory for
// the life of the process (it feeds cursor replay and the shutdown report;
// sessions are human-scale) and mirrored line-by-line to the session file.
// Emission never blocks the caller: file errors after open are swallowed,
// slow subscribers miss pushes and catch up via Since.
type Bus struct {
	mu      sync.Mutex
	events  []Event
	file    *os.File
	started time.Time

	subs      map[int]chan Event
	nextSubID int
}

// Open creates a bus backed by a session file, truncating any previous
// session at that path. A file that cannot be opened is a fatal condition
// for the process, so the error is returned rather than swallowed.
func Open(path string) (*Bus, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open telemetry log: %w", err)
	}
	b := NewMemory()
	b.file = f
	return b, nil
}

// NewMemory creates a bus with no file sink.
func NewMemory() *Bus {
	return &Bus{
		started: time.Now(),
		subs:    make(map[int]chan Event),
	}
}

// Emit appends one event. Fire-and-forget: it never returns an error and
// never blocks on observers.
func (b *Bus) Emit(category Category, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	metrics.Events.WithLabelValues(string(category)).Inc()

	b.mu.Lock()
	ev := Event{
		Seq:      int64(len(b.events)) + 1,
		At:       time.Now(),
		Category: category,
		Message:  msg,
	}
	b.events = append(b.events, ev)

	if b.file != nil {
		// Write errors do not propagate; the in-memory log stays whole.
		fmt.Fprintf(b.file, "[%s] [%-8s] %s\n",
			ev.At.Format("15:04:05.000"), ev.Category, ev.Message)
	}

	for _, ch := range b.subs {
		// Don't let slow observers block emitters.
		select {
		case ch <- ev:
		default:
		}
	}
	b.mu.Unlock()
}

// Since returns every event with Seq > afterSeq, oldest first. Each
// observer keeps its own cursor and replays independently; attaching late
// loses nothing.
func (b *Bus) Since(afterSeq int64) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if afterSeq < 0 {
		afterSeq = 0
	}
	if afterSeq >= int64(len(b.events)) {
		return nil
	}
	// Seq is 1-based and dense, so the cursor is an index.
	out := make([]Event, int64(len(b.events))-afterSeq)
	copy(out, b.events[afterSeq:])
	return out
}

// Subscribe attaches a push observer. Pushes are best-effort; a dropped
// push is recovered by calling Since with the last seen sequence number.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextSubID
	b.nextSubID++
	ch := make(chan Event, 128)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
		b.mu.Unlock()
	}

	return ch, cancel
}

// LastSeq returns the sequence number of the newest event, 0 when empty.
func (b *Bus) LastSeq() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.events))
}

// Len returns the number of events emitted so far.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Started returns when the bus was created.
func (b *Bus) Started() time.Time {
	return b.started
}

// Close flushes and closes the session file. Emit after Close keeps
// appending in memory only.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.file == nil {
		return nil
	}
	err := b.file.Sync()
	if cerr := b.file.Close(); err == nil {
		err = cerr
	}
	b.file = nil
	return err
}
