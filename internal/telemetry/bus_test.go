package telemetry

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestEmitOrdering(t *testing.T) {
	t.Parallel()

	b := NewMemory()
	b.Emit(CategorySystem, "first")
	b.Emit(CategoryMatch, "second")
	b.Emit(CategoryDispatch, "third")

	events := b.Since(0)
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	for i, want := range []string{"first", "second", "third"} {
		if events[i].Message != want {
			t.Errorf("events[%d] = %q, want %q", i, events[i].Message, want)
		}
		if events[i].Seq != int64(i)+1 {
			t.Errorf("events[%d].Seq = %d, want %d", i, events[i].Seq, i+1)
		}
	}
}

func TestSinceCursorIndependence(t *testing.T) {
	t.Parallel()

	b := NewMemory()
	b.Emit(CategorySystem, "e1")
	b.Emit(CategorySystem, "e2")

	// Observer A reads everything, observer B attaches late with its own
	// cursor; A's reads must not disturb B's position.
	a := b.Since(0)
	if len(a) != 2 {
		t.Fatalf("observer A got %d events", len(a))
	}

	b.Emit(CategorySystem, "e3")

	a2 := b.Since(a[len(a)-1].Seq)
	if len(a2) != 1 || a2[0].Message != "e3" {
		t.Errorf("observer A tail = %v", a2)
	}

	bEvents := b.Since(0)
	if len(bEvents) != 3 || bEvents[0].Message != "e1" {
		t.Errorf("late observer must replay from its own offset, got %v", bEvents)
	}

	if got := b.Since(99); got != nil {
		t.Errorf("cursor past the end should return nil, got %v", got)
	}
	if got := b.Since(-5); len(got) != 3 {
		t.Errorf("negative cursor should read from start, got %d", len(got))
	}
}

func TestEmitConcurrent(t *testing.T) {
	t.Parallel()

	b := NewMemory()
	var wg sync.WaitGroup
	for g := 0; g < 20; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				b.Emit(CategoryOSC, "msg")
			}
		}()
	}
	wg.Wait()

	events := b.Since(0)
	if len(events) != 1000 {
		t.Fatalf("expected 1000 events, got %d", len(events))
	}
	// Sequence numbers are dense and strictly increasing.
	for i, ev := range events {
		if ev.Seq != int64(i)+1 {
			t.Fatalf("events[%d].Seq = %d", i, ev.Seq)
		}
	}
	if b.LastSeq() != 1000 {
		t.Errorf("LastSeq = %d", b.LastSeq())
	}
}

func TestSubscribe(t *testing.T) {
	t.Parallel()

	b := NewMemory()
	ch, cancel := b.Subscribe()
	defer cancel()

	b.Emit(CategoryFeedback, "pushed")

	select {
	case ev := <-ch:
		if ev.Message != "pushed" || ev.Category != CategoryFeedback {
			t.Errorf("got %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no push received")
	}

	cancel()
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after cancel")
	}
	// Emitting after cancel must not panic.
	b.Emit(CategorySystem, "after cancel")
}

func TestFileSink(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "session.log")
	b, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	b.Emit(CategorySystem, "voxdeck started")
	b.Emit(CategoryError, "something %s", "failed")
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), data)
	}
	if !strings.Contains(lines[0], "[system  ] voxdeck started") {
		t.Errorf("line 0 = %q", lines[0])
	}
	if !strings.Contains(lines[1], "[error   ] something failed") {
		t.Errorf("line 1 = %q", lines[1])
	}

	// Emission after close keeps the in-memory log growing.
	b.Emit(CategorySystem, "late")
	if b.Len() != 3 {
		t.Errorf("Len = %d after post-close emit", b.Len())
	}
}

func TestOpenBadPath(t *testing.T) {
	t.Parallel()

	_, err := Open(filepath.Join(t.TempDir(), "no", "such", "dir", "log"))
	if err == nil {
		t.Fatal("expected error for unwritable telemetry path")
	}
}

func TestWriteReport(t *testing.T) {
	t.Parallel()

	b := NewMemory()
	b.Emit(CategorySystem, "started")
	b.Emit(CategoryMatch, "matched record")
	b.Emit(CategoryMatch, "matched stop")

	var sb strings.Builder
	if err := b.WriteReport(&sb, "sess-42"); err != nil {
		t.Fatalf("WriteReport: %v", err)
	}
	out := sb.String()

	for _, want := range []string{
		"# Voxdeck session report",
		"Session: sess-42",
		"- system: 1",
		"- match: 2",
		"matched record",
		"matched stop",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}
