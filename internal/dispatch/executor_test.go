package dispatch

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/golang/mock/gomock"

	"github.com/voxdeck/voxdeck/internal/catalog"
	"github.com/voxdeck/voxdeck/internal/command"
	"github.com/voxdeck/voxdeck/internal/dispatch/mocks"
	"github.com/voxdeck/voxdeck/internal/log"
	"github.com/voxdeck/voxdeck/internal/state"
	"github.com/voxdeck/voxdeck/internal/telemetry"
)

func TestMain(m *testing.M) {
	log.Setup("error", "text") // Suppress logs in tests
	os.Exit(m.Run())
}

func effectSpec(key string, effects ...string) *command.Spec {
	s := &command.Spec{Key: key, Patterns: []string{key}}
	for _, name := range effects {
		s.Steps = append(s.Steps, command.Step{Kind: command.KindEffect, Name: name})
	}
	return s
}

func bindingsOf(pairs ...any) command.Bindings {
	b := command.Bindings{}
	for i := 0; i < len(pairs); i += 2 {
		name := pairs[i].(string)
		b[name] = catalog.Entry{ID: pairs[i+1].(catalog.ActionID), Name: name, Context: "Main"}
	}
	return b
}

func TestExecutor_StepsInOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	sender := mocks.NewMockSender(ctrl)

	spec := effectSpec("record arm", "arm toggle", "record toggle", "marker drop")
	bindings := bindingsOf(
		"arm toggle", catalog.NumericID(9),
		"record toggle", catalog.NumericID(1013),
		"marker drop", catalog.NamedID("_SWS_MARKER"),
	)

	gomock.InOrder(
		sender.EXPECT().InvokeAction(catalog.NumericID(9)).Return(nil),
		sender.EXPECT().InvokeAction(catalog.NumericID(1013)).Return(nil),
		sender.EXPECT().InvokeAction(catalog.NamedID("_SWS_MARKER")).Return(nil),
	)

	delay := 10 * time.Millisecond
	exec := NewExecutor(sender, state.NewRemote(), telemetry.NewMemory(), delay)
	start := time.Now()
	res := exec.Execute(context.Background(), spec, bindings)

	if res.Code != ResultCompleted {
		t.Fatalf("Code = %s, want completed (reason %q)", res.Code, res.Reason)
	}
	if res.StepsSent != 3 || res.StepsTotal != 3 {
		t.Errorf("steps = %d/%d", res.StepsSent, res.StepsTotal)
	}
	// Two pauses between three steps.
	if elapsed := time.Since(start); elapsed < 2*delay {
		t.Errorf("elapsed %v, want at least %v of inter-step delay", elapsed, 2*delay)
	}
}

func TestExecutor_NoDelayAfterLastStep(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	sender := mocks.NewMockSender(ctrl)
	sender.EXPECT().InvokeAction(gomock.Any()).Return(nil)

	// With a single step the (huge) delay must never be taken.
	exec := NewExecutor(sender, state.NewRemote(), telemetry.NewMemory(), 5*time.Second)
	start := time.Now()
	res := exec.Execute(context.Background(), effectSpec("stop", "stop all"), bindingsOf("stop all", catalog.NumericID(40667)))

	if res.Code != ResultCompleted {
		t.Fatalf("Code = %s", res.Code)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("single-step execution took %v, delay was not skipped", elapsed)
	}
}

func TestExecutor_BlockedWhileBusy(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	// No EXPECT calls: any send would fail the test.
	sender := mocks.NewMockSender(ctrl)

	remote := state.NewRemote()
	remote.SetRecording(true)
	bus := telemetry.NewMemory()

	exec := NewExecutor(sender, remote, bus, 0)
	res := exec.Execute(context.Background(), effectSpec("record", "record toggle"), bindingsOf("record toggle", catalog.NumericID(1013)))

	if res.Code != ResultBlocked {
		t.Fatalf("Code = %s, want blocked", res.Code)
	}
	if res.StepsSent != 0 {
		t.Errorf("StepsSent = %d, want 0", res.StepsSent)
	}
	if res.Reason != "transport busy" {
		t.Errorf("Reason = %q", res.Reason)
	}
}

func TestExecutor_BusyOverride(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	sender := mocks.NewMockSender(ctrl)
	sender.EXPECT().InvokeAction(catalog.NumericID(40667)).Return(nil)

	remote := state.NewRemote()
	remote.SetRecording(true)

	spec := effectSpec("stop", "stop all")
	spec.AvailableWhileBusy = true

	exec := NewExecutor(sender, remote, telemetry.NewMemory(), 0)
	res := exec.Execute(context.Background(), spec, bindingsOf("stop all", catalog.NumericID(40667)))

	if res.Code != ResultCompleted {
		t.Errorf("Code = %s, want completed while busy", res.Code)
	}
}

func TestExecutor_UnresolvedEffectStopsSequence(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	sender := mocks.NewMockSender(ctrl)

	// First step resolves and is sent; the second does not; the third
	// must never be attempted.
	spec := effectSpec("layered", "arm toggle", "vanished", "record toggle")
	bindings := bindingsOf(
		"arm toggle", catalog.NumericID(9),
		"record toggle", catalog.NumericID(1013),
	)
	sender.EXPECT().InvokeAction(catalog.NumericID(9)).Return(nil)

	bus := telemetry.NewMemory()
	exec := NewExecutor(sender, state.NewRemote(), bus, 0)
	res := exec.Execute(context.Background(), spec, bindings)

	if res.Code != ResultPartial {
		t.Fatalf("Code = %s, want partial", res.Code)
	}
	if res.StepsSent != 1 {
		t.Errorf("StepsSent = %d, want exactly 1", res.StepsSent)
	}
	if want := `unresolved effect vanished`; res.Reason != want {
		t.Errorf("Reason = %q, want %q", res.Reason, want)
	}

	var sawError bool
	for _, ev := range bus.Since(0) {
		if ev.Category == telemetry.CategoryError {
			sawError = true
		}
	}
	if !sawError {
		t.Error("unresolved effect must emit an error event")
	}
}

func TestExecutor_SendErrorDoesNotAbort(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	sender := mocks.NewMockSender(ctrl)

	spec := effectSpec("layered", "one", "two", "three")
	bindings := bindingsOf(
		"one", catalog.NumericID(1),
		"two", catalog.NumericID(2),
		"three", catalog.NumericID(3),
	)
	gomock.InOrder(
		sender.EXPECT().InvokeAction(catalog.NumericID(1)).Return(nil),
		sender.EXPECT().InvokeAction(catalog.NumericID(2)).Return(fmt.Errorf("socket gone")),
		sender.EXPECT().InvokeAction(catalog.NumericID(3)).Return(nil),
	)

	exec := NewExecutor(sender, state.NewRemote(), telemetry.NewMemory(), 0)
	res := exec.Execute(context.Background(), spec, bindings)

	// Sends are unacknowledged datagrams. A local send error is no more
	// final than a packet lost in flight, so the sequence keeps going.
	if res.Code != ResultCompleted {
		t.Fatalf("Code = %s, want completed", res.Code)
	}
	if res.StepsSent != 2 {
		t.Errorf("StepsSent = %d, want 2", res.StepsSent)
	}
}

func TestExecutor_CancelDuringStepDelay(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	sender := mocks.NewMockSender(ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	sender.EXPECT().InvokeAction(catalog.NumericID(1)).DoAndReturn(func(catalog.ActionID) error {
		cancel()
		return nil
	})

	spec := effectSpec("layered", "one", "two")
	bindings := bindingsOf("one", catalog.NumericID(1), "two", catalog.NumericID(2))

	exec := NewExecutor(sender, state.NewRemote(), telemetry.NewMemory(), time.Minute)
	start := time.Now()
	res := exec.Execute(ctx, spec, bindings)

	if res.Code != ResultPartial || res.Reason != "cancelled" {
		t.Fatalf("result = %s (%q)", res.Code, res.Reason)
	}
	if res.StepsSent != 1 {
		t.Errorf("StepsSent = %d, want 1", res.StepsSent)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("cancel took %v, delay not interruptible", elapsed)
	}
}

func TestExecutor_MixedStepKinds(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	sender := mocks.NewMockSender(ctrl)

	spec := &command.Spec{
		Key:      "mix for take",
		Patterns: []string{"mix for take"},
		Steps: []command.Step{
			{Kind: command.KindEffect, Name: "arm toggle"},
			{Kind: command.KindAction, ID: catalog.NamedID("_SWS_SAVEVIEW")},
			{Kind: command.KindTrack, Track: command.TrackParam{Track: 2, Param: "volume", Value: 0.8}},
		},
	}
	gomock.InOrder(
		sender.EXPECT().InvokeAction(catalog.NumericID(9)).Return(nil),
		sender.EXPECT().InvokeAction(catalog.NamedID("_SWS_SAVEVIEW")).Return(nil),
		sender.EXPECT().SetTrackParam(2, "volume", 0.8).Return(nil),
	)

	exec := NewExecutor(sender, state.NewRemote(), telemetry.NewMemory(), 0)
	res := exec.Execute(context.Background(), spec, bindingsOf("arm toggle", catalog.NumericID(9)))

	if res.Code != ResultCompleted || res.StepsSent != 3 {
		t.Errorf("result = %s, %d/%d steps", res.Code, res.StepsSent, res.StepsTotal)
	}
}

func TestExecutor_ZeroSteps(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	sender := mocks.NewMockSender(ctrl)

	exec := NewExecutor(sender, state.NewRemote(), telemetry.NewMemory(), 0)
	res := exec.Execute(context.Background(), &command.Spec{Key: "shutdown"}, nil)

	if res.Code != ResultCompleted || res.StepsSent != 0 || res.StepsTotal != 0 {
		t.Errorf("result = %+v", res)
	}
}
