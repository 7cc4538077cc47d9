package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/voxdeck/voxdeck/internal/command"
	"github.com/voxdeck/voxdeck/internal/log"
	"github.com/voxdeck/voxdeck/internal/state"
	"github.com/voxdeck/voxdeck/internal/telemetry"
)

// ResultCode classifies how one execution ended.
type ResultCode string

const (
	// ResultCompleted means every step was issued.
	ResultCompleted ResultCode = "completed"
	// ResultPartial means execution stopped before the last step.
	ResultPartial ResultCode = "partial"
	// ResultBlocked means the busy gate refused the command before any
	// step was issued.
	ResultBlocked ResultCode = "blocked"
)

// Result describes one execution attempt.
type Result struct {
	Command    string
	Code       ResultCode
	StepsSent  int
	StepsTotal int
	Reason     string // empty when completed
	Duration   time.Duration
}

// Executor runs one command at a time against the sender. Steps are
// issued strictly in order with a pause between consecutive steps; the
// pause is interruptible, an in-flight send is not.
type Executor struct {
	sender    Sender
	remote    *state.Remote
	bus       *telemetry.Bus
	stepDelay time.Duration
	logger    *slog.Logger
}

// NewExecutor creates an executor.
func NewExecutor(sender Sender, remote *state.Remote, bus *telemetry.Bus, stepDelay time.Duration) *Executor {
	return &Executor{
		sender:    sender,
		remote:    remote,
		bus:       bus,
		stepDelay: stepDelay,
		logger:    log.WithComponent("executor"),
	}
}

// Execute issues spec's steps in order. The busy gate is checked here, at
// execution time, not at match time: a command matched while idle still
// blocks if recording started before it reached the front of the line.
//
// A failed send is recorded and the remaining steps still run; datagrams
// carry no acknowledgement, so a send error and a lost packet must be
// treated alike. Only an unresolvable effect or cancellation stops the
// sequence.
func (e *Executor) Execute(ctx context.Context, spec *command.Spec, bindings command.Bindings) Result {
	start := time.Now()
	res := Result{Command: spec.Key, StepsTotal: len(spec.Steps)}

	if e.remote.Busy() && !spec.AvailableWhileBusy {
		res.Code = ResultBlocked
		res.Reason = "transport busy"
		res.Duration = time.Since(start)
		e.bus.Emit(telemetry.CategoryDispatch, "blocked %q: transport busy", spec.Key)
		e.logger.Warn("command blocked", "command", spec.Key, "reason", res.Reason)
		return res
	}

	e.bus.Emit(telemetry.CategoryDispatch, "executing %q (%d steps)", spec.Key, len(spec.Steps))

	for i, step := range spec.Steps {
		if err := ctx.Err(); err != nil {
			return e.partial(res, start, i, "cancelled")
		}

		sendErr := e.sendStep(i, spec, step, bindings)
		if errors.Is(sendErr, errUnresolved) {
			return e.partial(res, start, i, "unresolved effect "+step.Name)
		}
		if sendErr == nil {
			res.StepsSent++
		}

		if i == len(spec.Steps)-1 || e.stepDelay <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return e.partial(res, start, i+1, "cancelled")
		case <-time.After(e.stepDelay):
		}
	}

	res.Code = ResultCompleted
	res.Duration = time.Since(start)
	e.bus.Emit(telemetry.CategoryDispatch, "completed %q: %d/%d steps sent",
		spec.Key, res.StepsSent, res.StepsTotal)
	return res
}

// errUnresolved is an executor-internal sentinel; it never leaves Execute.
var errUnresolved = errors.New("unresolved effect")

func (e *Executor) sendStep(i int, spec *command.Spec, step command.Step, bindings command.Bindings) error {
	var err error
	switch step.Kind {
	case command.KindEffect:
		entry, ok := bindings[step.Name]
		if !ok {
			e.bus.Emit(telemetry.CategoryError, "%q step %d/%d: no action for effect %q",
				spec.Key, i+1, len(spec.Steps), step.Name)
			e.logger.Error("unresolved effect at execution",
				"command", spec.Key, "effect", step.Name)
			return errUnresolved
		}
		err = e.sender.InvokeAction(entry.ID)
		if err == nil {
			e.bus.Emit(telemetry.CategoryOSC, "step %d/%d effect %q -> action %s",
				i+1, len(spec.Steps), step.Name, entry.ID)
		}
	case command.KindAction:
		err = e.sender.InvokeAction(step.ID)
		if err == nil {
			e.bus.Emit(telemetry.CategoryOSC, "step %d/%d action %s",
				i+1, len(spec.Steps), step.ID)
		}
	case command.KindTrack:
		err = e.sender.SetTrackParam(step.Track.Track, step.Track.Param, step.Track.Value)
		if err == nil {
			e.bus.Emit(telemetry.CategoryOSC, "step %d/%d track %d %s=%g",
				i+1, len(spec.Steps), step.Track.Track, step.Track.Param, step.Track.Value)
		}
	}
	if err != nil {
		e.bus.Emit(telemetry.CategoryError, "%q step %d/%d send failed: %v",
			spec.Key, i+1, len(spec.Steps), err)
		e.logger.Warn("send failed", "command", spec.Key, "step", i+1, "error", err)
	}
	return err
}

func (e *Executor) partial(res Result, start time.Time, stepsDone int, reason string) Result {
	res.Code = ResultPartial
	res.Reason = reason
	res.Duration = time.Since(start)
	e.bus.Emit(telemetry.CategoryDispatch, "partial %q after %d/%d steps: %s",
		res.Command, stepsDone, res.StepsTotal, reason)
	return res
}
