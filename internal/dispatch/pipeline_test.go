package dispatch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/voxdeck/voxdeck/internal/catalog"
	"github.com/voxdeck/voxdeck/internal/command"
	"github.com/voxdeck/voxdeck/internal/config"
	"github.com/voxdeck/voxdeck/internal/speech"
	"github.com/voxdeck/voxdeck/internal/state"
	"github.com/voxdeck/voxdeck/internal/telemetry"
)

// captureSender records every send in order. Used where the assertion is
// about which commands ran, not about per-call expectations.
type captureSender struct {
	mu    sync.Mutex
	calls []string
}

func (c *captureSender) InvokeAction(id catalog.ActionID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, "action:"+id.String())
	return nil
}

func (c *captureSender) SetTrackParam(track int, param string, value float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, fmt.Sprintf("track:%d/%s=%g", track, param, value))
	return nil
}

func (c *captureSender) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.calls))
	copy(out, c.calls)
	return out
}

const pipelineTable = `
commands:
  record:
    patterns: ["record"]
    effect_ids: [1013]
  record arm:
    patterns: ["record arm"]
    effect_ids: [9, 1013]
  stop:
    patterns: ["stop"]
    effect_ids: [40667]
    available_while_busy: true
  shutdown:
    patterns: ["shutdown voice control"]
    available_while_busy: true
`

func testRuntime(t *testing.T, minConfidence float64) *Runtime {
	t.Helper()
	path := filepath.Join(t.TempDir(), "commands.yaml")
	if err := os.WriteFile(path, []byte(pipelineTable), 0644); err != nil {
		t.Fatalf("write table: %v", err)
	}
	table, err := command.LoadTable(path, "", "shutdown")
	if err != nil {
		t.Fatalf("load table: %v", err)
	}
	return &Runtime{
		Table:    table,
		Matcher:  command.NewMatcher(table, minConfidence, "first"),
		Bindings: command.Bindings{},
	}
}

type pipelineHarness struct {
	p      *Pipeline
	sender *captureSender
	remote *state.Remote
	bus    *telemetry.Bus
	cancel context.CancelFunc
}

func startPipeline(t *testing.T, cfg config.DispatchConfig, onShutdown func()) *pipelineHarness {
	t.Helper()
	h := &pipelineHarness{
		sender: &captureSender{},
		remote: state.NewRemote(),
		bus:    telemetry.NewMemory(),
	}
	exec := NewExecutor(h.sender, h.remote, h.bus, cfg.StepDelay)
	h.p = NewPipeline(exec, h.bus, nil, cfg, onShutdown)
	h.p.SetRuntime(testRuntime(t, 0.5))

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	t.Cleanup(cancel)
	go h.p.Run(ctx)
	return h
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// settled reports whether n utterances have reached a terminal outcome.
// Waiting on Utterances alone races the outcome counters, which are
// bumped later in processing.
func settled(p *Pipeline, n int64) func() bool {
	return func() bool {
		st := p.Stats()
		done := st.LowConfidence + st.NoMatch + st.Debounced + st.Completed + st.Partial + st.Blocked
		return done >= n
	}
}

func TestPipeline_SubmitAssignsSequence(t *testing.T) {
	h := startPipeline(t, config.DispatchConfig{QueueSize: 8}, nil)

	s1, ok1 := h.p.Submit(speech.Utterance{Text: "nothing useful", Confidence: 1})
	s2, ok2 := h.p.Submit(speech.Utterance{Text: "still nothing", Confidence: 1})
	if !ok1 || !ok2 {
		t.Fatal("submits rejected")
	}
	if s1 != 1 || s2 != 2 {
		t.Errorf("seq = %d, %d", s1, s2)
	}
}

func TestPipeline_QueueOverflowDrops(t *testing.T) {
	// No consumer: build the pipeline but never Run it.
	exec := NewExecutor(&captureSender{}, state.NewRemote(), telemetry.NewMemory(), 0)
	p := NewPipeline(exec, telemetry.NewMemory(), nil, config.DispatchConfig{QueueSize: 1}, nil)
	p.SetRuntime(testRuntime(t, 0.5))

	if _, ok := p.Submit(speech.Utterance{Text: "one", Confidence: 1}); !ok {
		t.Fatal("first submit should fit")
	}
	seq, ok := p.Submit(speech.Utterance{Text: "two", Confidence: 1})
	if ok {
		t.Fatal("second submit should overflow")
	}
	if seq != 2 {
		t.Errorf("dropped utterance still gets a sequence number, got %d", seq)
	}
	if got := p.Stats().Dropped; got != 1 {
		t.Errorf("Dropped = %d", got)
	}
	if p.Pending() != 1 {
		t.Errorf("Pending = %d", p.Pending())
	}
}

func TestPipeline_MatchOutcomes(t *testing.T) {
	h := startPipeline(t, config.DispatchConfig{QueueSize: 8}, nil)

	h.p.Submit(speech.Utterance{Text: "you", Confidence: 0.10})          // below threshold
	h.p.Submit(speech.Utterance{Text: "paint it blue", Confidence: 0.9}) // no pattern
	h.p.Submit(speech.Utterance{Text: "record", Confidence: 0.9})        // fires

	waitFor(t, "three utterances processed", settled(h.p, 3))

	st := h.p.Stats()
	if st.LowConfidence != 1 || st.NoMatch != 1 || st.Matched != 1 || st.Completed != 1 {
		t.Errorf("stats = %+v", st)
	}
	// The low-confidence and unmatched utterances caused no sends.
	if calls := h.sender.snapshot(); len(calls) != 1 || calls[0] != "action:1013" {
		t.Errorf("calls = %v", calls)
	}
}

func TestPipeline_ArrivalOrderPreserved(t *testing.T) {
	h := startPipeline(t, config.DispatchConfig{QueueSize: 32}, nil)

	h.p.Submit(speech.Utterance{Text: "record arm", Confidence: 1})
	h.p.Submit(speech.Utterance{Text: "stop", Confidence: 1})
	h.p.Submit(speech.Utterance{Text: "record", Confidence: 1})

	waitFor(t, "all sends", func() bool {
		return len(h.sender.snapshot()) == 4
	})

	want := []string{"action:9", "action:1013", "action:40667", "action:1013"}
	got := h.sender.snapshot()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("calls = %v, want %v", got, want)
		}
	}
}

func TestPipeline_CooldownDebounce(t *testing.T) {
	h := startPipeline(t, config.DispatchConfig{QueueSize: 8, Cooldown: time.Hour}, nil)

	h.p.Submit(speech.Utterance{Text: "record", Confidence: 1})
	h.p.Submit(speech.Utterance{Text: "record", Confidence: 1})

	waitFor(t, "both utterances processed", settled(h.p, 2))

	st := h.p.Stats()
	if st.Completed != 1 || st.Debounced != 1 {
		t.Errorf("stats = %+v", st)
	}
	if calls := h.sender.snapshot(); len(calls) != 1 {
		t.Errorf("calls = %v, want a single send", calls)
	}
}

func TestPipeline_BlockedDoesNotArmCooldown(t *testing.T) {
	h := startPipeline(t, config.DispatchConfig{QueueSize: 8, Cooldown: time.Hour}, nil)
	h.remote.SetRecording(true)

	h.p.Submit(speech.Utterance{Text: "record", Confidence: 1})
	waitFor(t, "blocked execution", func() bool {
		return h.p.Stats().Blocked == 1
	})

	h.remote.SetRecording(false)
	h.p.Submit(speech.Utterance{Text: "record", Confidence: 1})
	waitFor(t, "second attempt", settled(h.p, 2))

	st := h.p.Stats()
	if st.Completed != 1 || st.Debounced != 0 {
		t.Errorf("a blocked run must not debounce the retry, stats = %+v", st)
	}
}

func TestPipeline_ShutdownCommand(t *testing.T) {
	fired := make(chan struct{})
	h := startPipeline(t, config.DispatchConfig{QueueSize: 8, ShutdownCommand: "shutdown"}, func() {
		close(fired)
	})

	h.p.Submit(speech.Utterance{Text: "shutdown voice control", Confidence: 1})

	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown callback never fired")
	}
	if st := h.p.Stats(); st.Completed != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestPipeline_NoRuntimeLoaded(t *testing.T) {
	exec := NewExecutor(&captureSender{}, state.NewRemote(), telemetry.NewMemory(), 0)
	bus := telemetry.NewMemory()
	p := NewPipeline(exec, bus, nil, config.DispatchConfig{QueueSize: 8}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go p.Run(ctx)

	p.Submit(speech.Utterance{Text: "record", Confidence: 1})

	waitFor(t, "error event", func() bool {
		for _, ev := range bus.Since(0) {
			if ev.Category == telemetry.CategoryError {
				return true
			}
		}
		return false
	})
}

func TestPipeline_RecorderReceivesOutcome(t *testing.T) {
	recs := make(chan CommandRecord, 4)
	rec := recorderFunc(func(_ context.Context, r CommandRecord) error {
		recs <- r
		return nil
	})

	sender := &captureSender{}
	bus := telemetry.NewMemory()
	exec := NewExecutor(sender, state.NewRemote(), bus, 0)
	p := NewPipeline(exec, bus, rec, config.DispatchConfig{QueueSize: 8}, nil)
	p.SetRuntime(testRuntime(t, 0.5))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go p.Run(ctx)

	p.Submit(speech.Utterance{Text: "please record arm now", Confidence: 0.8, Source: "stdin"})

	select {
	case r := <-recs:
		if r.Command != "record arm" || r.Result != "completed" || r.StepsSent != 2 {
			t.Errorf("record = %+v", r)
		}
		if r.Heard != "please record arm now" || r.Seq != 1 || r.Pattern != "record arm" {
			t.Errorf("record identity = %+v", r)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no history record written")
	}
}

type recorderFunc func(context.Context, CommandRecord) error

func (f recorderFunc) RecordCommand(ctx context.Context, rec CommandRecord) error {
	return f(ctx, rec)
}
