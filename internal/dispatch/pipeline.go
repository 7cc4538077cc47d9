package dispatch

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/voxdeck/voxdeck/internal/command"
	"github.com/voxdeck/voxdeck/internal/config"
	"github.com/voxdeck/voxdeck/internal/log"
	"github.com/voxdeck/voxdeck/internal/metrics"
	"github.com/voxdeck/voxdeck/internal/speech"
	"github.com/voxdeck/voxdeck/internal/telemetry"
)

// Runtime is the swappable view of loaded configuration: the command
// table, its matcher, and the effect bindings. A reload replaces all
// three in one pointer swap so no utterance ever sees a half-updated
// view.
type Runtime struct {
	Table       *command.Table
	Matcher     *command.Matcher
	Bindings    command.Bindings
	Fingerprint string
}

// Pipeline owns processing order. Utterances enter through Submit from
// any goroutine; a single consumer drains them in arrival order and runs
// at most one command at a time, so effects reach the DAW in the order
// the operator spoke them.
type Pipeline struct {
	exec        *Executor
	bus         *telemetry.Bus
	recorder    Recorder
	logger      *slog.Logger
	cooldown    time.Duration
	shutdownKey string
	onShutdown  func()

	in  chan speech.Utterance
	seq atomic.Int64
	rt  atomic.Pointer[Runtime]

	lastRun map[string]time.Time // consumer goroutine only
	stats   Stats
}

// NewPipeline creates a pipeline. rec may be nil to disable history;
// onShutdown is invoked when the configured shutdown command fires.
func NewPipeline(exec *Executor, bus *telemetry.Bus, rec Recorder, cfg config.DispatchConfig, onShutdown func()) *Pipeline {
	size := cfg.QueueSize
	if size <= 0 {
		size = 64
	}
	return &Pipeline{
		exec:        exec,
		bus:         bus,
		recorder:    rec,
		logger:      log.WithComponent("pipeline"),
		cooldown:    cfg.Cooldown,
		shutdownKey: cfg.ShutdownCommand,
		onShutdown:  onShutdown,
		in:          make(chan speech.Utterance, size),
		lastRun:     make(map[string]time.Time),
	}
}

// SetRuntime swaps in a freshly loaded table, matcher, and bindings.
// Safe to call while the pipeline is running; utterances already dequeued
// finish against the view they started with.
func (p *Pipeline) SetRuntime(rt *Runtime) {
	prev := p.rt.Swap(rt)
	if prev != nil && rt != nil {
		p.bus.Emit(telemetry.CategorySystem, "command table reloaded: %d commands, %d problems",
			rt.Table.Len(), len(rt.Table.Problems()))
	}
}

// Runtime returns the current view, nil before the first SetRuntime.
func (p *Pipeline) Runtime() *Runtime {
	return p.rt.Load()
}

// Submit assigns the utterance its place in the processing order and
// queues it. It never blocks: when the queue is full the utterance is
// dropped and false is returned. The assigned sequence number is
// returned either way.
func (p *Pipeline) Submit(u speech.Utterance) (int64, bool) {
	u.Seq = p.seq.Add(1)
	if u.At.IsZero() {
		u.At = time.Now()
	}
	if u.Source == "" {
		u.Source = "unknown"
	}

	select {
	case p.in <- u:
		return u.Seq, true
	default:
		p.stats.Dropped.Add(1)
		p.bus.Emit(telemetry.CategoryError, "intake queue full, dropped utterance #%d %q", u.Seq, u.Text)
		p.logger.Warn("intake queue full", "seq", u.Seq, "source", u.Source)
		return u.Seq, false
	}
}

// Run drains the queue until ctx is cancelled. This is the only goroutine
// that matches and executes, which is what makes ordering and the
// one-command-at-a-time rule hold.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("dispatch pipeline started")
	defer p.logger.Info("dispatch pipeline stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u := <-p.in:
			p.process(ctx, u)
		}
	}
}

func (p *Pipeline) process(ctx context.Context, u speech.Utterance) {
	p.stats.Utterances.Add(1)
	metrics.Utterances.Inc()
	p.bus.Emit(telemetry.CategorySpeech, "#%d [%s] heard %q (%.2f)", u.Seq, u.Source, u.Text, u.Confidence)

	rt := p.rt.Load()
	if rt == nil {
		p.bus.Emit(telemetry.CategoryError, "#%d dropped: no command table loaded", u.Seq)
		return
	}

	res := rt.Matcher.Match(u.Text, u.Confidence)
	switch res.Outcome {
	case command.LowConfidence:
		p.stats.LowConfidence.Add(1)
		metrics.Matches.WithLabelValues("low_confidence").Inc()
		p.bus.Emit(telemetry.CategoryMatch, "#%d ignored: confidence %.2f below threshold", u.Seq, u.Confidence)
		return
	case command.NoMatch:
		p.stats.NoMatch.Add(1)
		metrics.Matches.WithLabelValues("no_match").Inc()
		p.bus.Emit(telemetry.CategoryMatch, "#%d no command matches %q", u.Seq, u.Text)
		return
	}

	spec := res.Command
	p.stats.Matched.Add(1)
	metrics.Matches.WithLabelValues("matched").Inc()
	p.bus.Emit(telemetry.CategoryMatch, "#%d matched %q via pattern %q", u.Seq, spec.Key, res.Pattern)

	if p.debounced(spec) {
		p.stats.Debounced.Add(1)
		metrics.Debounced.Inc()
		p.bus.Emit(telemetry.CategoryDispatch, "#%d debounced %q", u.Seq, spec.Key)
		return
	}

	result := p.exec.Execute(ctx, spec, rt.Bindings)
	if result.Code != ResultBlocked {
		p.lastRun[spec.Key] = time.Now()
	}

	switch result.Code {
	case ResultCompleted:
		p.stats.Completed.Add(1)
	case ResultPartial:
		p.stats.Partial.Add(1)
	case ResultBlocked:
		p.stats.Blocked.Add(1)
	}
	metrics.Executions.WithLabelValues(string(result.Code)).Inc()

	p.record(ctx, u, res, result)

	if spec.Key == p.shutdownKey && result.Code != ResultBlocked && p.onShutdown != nil {
		p.bus.Emit(telemetry.CategorySystem, "shutdown command %q fired", spec.Key)
		p.logger.Info("shutdown command fired", "command", spec.Key)
		p.onShutdown()
	}
}

// debounced reports whether spec ran too recently. A blocked attempt does
// not arm the cooldown, so a command refused while recording works again
// the moment recording stops.
func (p *Pipeline) debounced(spec *command.Spec) bool {
	cd := spec.Cooldown
	if cd == 0 {
		cd = p.cooldown
	}
	if cd <= 0 {
		return false
	}
	last, ok := p.lastRun[spec.Key]
	return ok && time.Since(last) < cd
}

func (p *Pipeline) record(ctx context.Context, u speech.Utterance, m command.MatchResult, r Result) {
	if p.recorder == nil {
		return
	}
	rec := CommandRecord{
		Seq:        u.Seq,
		At:         u.At,
		Heard:      u.Text,
		Confidence: u.Confidence,
		Command:    m.Command.Key,
		Pattern:    m.Pattern,
		Result:     string(r.Code),
		StepsSent:  r.StepsSent,
		StepsTotal: r.StepsTotal,
		Reason:     r.Reason,
		Duration:   r.Duration,
	}
	if err := p.recorder.RecordCommand(ctx, rec); err != nil {
		p.logger.Error("failed to record command", "command", rec.Command, "error", err)
	}
}

// Stats are the pipeline's running counters. All fields are atomics so
// Snapshot can be taken from any goroutine.
type Stats struct {
	Utterances    atomic.Int64
	Matched       atomic.Int64
	NoMatch       atomic.Int64
	LowConfidence atomic.Int64
	Debounced     atomic.Int64
	Completed     atomic.Int64
	Partial       atomic.Int64
	Blocked       atomic.Int64
	Dropped       atomic.Int64
}

// StatsSnapshot is a point-in-time copy of the counters.
type StatsSnapshot struct {
	Utterances    int64 `json:"utterances"`
	Matched       int64 `json:"matched"`
	NoMatch       int64 `json:"no_match"`
	LowConfidence int64 `json:"low_confidence"`
	Debounced     int64 `json:"debounced"`
	Completed     int64 `json:"completed"`
	Partial       int64 `json:"partial"`
	Blocked       int64 `json:"blocked"`
	Dropped       int64 `json:"dropped"`
}

// Stats returns a snapshot of the counters.
func (p *Pipeline) Stats() StatsSnapshot {
	return StatsSnapshot{
		Utterances:    p.stats.Utterances.Load(),
		Matched:       p.stats.Matched.Load(),
		NoMatch:       p.stats.NoMatch.Load(),
		LowConfidence: p.stats.LowConfidence.Load(),
		Debounced:     p.stats.Debounced.Load(),
		Completed:     p.stats.Completed.Load(),
		Partial:       p.stats.Partial.Load(),
		Blocked:       p.stats.Blocked.Load(),
		Dropped:       p.stats.Dropped.Load(),
	}
}

// Pending returns how many utterances are queued but not yet processed.
func (p *Pipeline) Pending() int {
	return len(p.in)
}
