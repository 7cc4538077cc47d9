package osc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"

	goosc "github.com/hypebeast/go-osc/osc"

	"github.com/voxdeck/voxdeck/internal/metrics"
	"github.com/voxdeck/voxdeck/internal/state"
	"github.com/voxdeck/voxdeck/internal/telemetry"
)

// Listener consumes feedback datagrams from the DAW and applies them to
// the remote snapshot. It is the snapshot's only writer; everything else
// in the process reads.
type Listener struct {
	addr   string
	remote *state.Remote
	bus    *telemetry.Bus
	logger *slog.Logger
}

// NewListener wires a feedback listener to its snapshot and telemetry bus.
func NewListener(host string, port int, remote *state.Remote, bus *telemetry.Bus, logger *slog.Logger) *Listener {
	return &Listener{
		addr:   fmt.Sprintf("%s:%d", host, port),
		remote: remote,
		bus:    bus,
		logger: logger.With("component", "osc-listener"),
	}
}

// Run binds the feedback port and serves until ctx is cancelled. A
// datagram that fails to parse is dropped and serving continues; only a
// dead socket ends the loop.
func (l *Listener) Run(ctx context.Context) error {
	conn, err := net.ListenPacket("udp", l.addr)
	if err != nil {
		return fmt.Errorf("failed to bind feedback listener on %s: %w", l.addr, err)
	}

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	l.logger.Info("feedback listener started", "addr", l.addr)
	srv := &goosc.Server{Addr: l.addr, Dispatcher: l}
	for {
		err := srv.Serve(conn)
		if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
			l.logger.Info("feedback listener stopped")
			return nil
		}
		// Serve returns when a datagram fails to parse. The bad datagram
		// has already been consumed, so re-entering reads the next one.
		metrics.FeedbackDropped.Inc()
		l.logger.Debug("dropped malformed feedback datagram", "error", err)
	}
}

// Dispatch handles one decoded packet, unpacking bundles recursively.
func (l *Listener) Dispatch(packet goosc.Packet) {
	switch p := packet.(type) {
	case *goosc.Message:
		l.handle(p)
	case *goosc.Bundle:
		for _, m := range p.Messages {
			l.handle(m)
		}
		for _, b := range p.Bundles {
			l.Dispatch(b)
		}
	}
}

// handle folds one message into the snapshot. Unknown addresses and
// unusable arguments are ignored, not errors: the DAW emits far more
// feedback than this process models. Only actual value changes produce
// telemetry.
func (l *Listener) handle(msg *goosc.Message) {
	if msg == nil || msg.Address == "" {
		return
	}
	metrics.Feedback.Inc()

	switch msg.Address {
	case "/record":
		on, ok := boolArg(msg)
		if !ok {
			return
		}
		if l.remote.SetRecording(on) {
			metrics.RemoteBusy.Set(gaugeVal(on))
			l.bus.Emit(telemetry.CategoryFeedback, "recording %s", onOff(on))
		}
	case "/play":
		on, ok := boolArg(msg)
		if !ok {
			return
		}
		if l.remote.SetPlaying(on) {
			l.bus.Emit(telemetry.CategoryFeedback, "playback %s", onOff(on))
		}
	case "/pause":
		on, ok := boolArg(msg)
		if !ok {
			return
		}
		if l.remote.SetPaused(on) {
			l.bus.Emit(telemetry.CategoryFeedback, "pause %s", onOff(on))
		}
	case "/stop":
		on, ok := boolArg(msg)
		if !ok || !on {
			return
		}
		stopped := l.remote.SetPlaying(false)
		if l.remote.SetPaused(false) {
			stopped = true
		}
		if stopped {
			l.bus.Emit(telemetry.CategoryFeedback, "transport stopped")
		}
	case "/tempo/raw":
		bpm, ok := floatArg(msg)
		if !ok {
			return
		}
		if l.remote.SetTempo(bpm) {
			l.bus.Emit(telemetry.CategoryFeedback, "tempo %.2f bpm", bpm)
		}
	default:
		l.handleTrack(msg)
	}
}

func (l *Listener) handleTrack(msg *goosc.Message) {
	track, param, ok := splitTrackAddress(msg.Address)
	if !ok {
		return
	}

	if param == "name" {
		name, ok := stringArg(msg)
		if !ok {
			return
		}
		if l.remote.SetTrackName(track, name) {
			l.bus.Emit(telemetry.CategoryFeedback, "track %d name %q", track, name)
		}
		return
	}

	v, ok := floatArg(msg)
	if !ok {
		return
	}
	changed, known := l.remote.SetTrackValue(track, param, v)
	if !known || !changed {
		return
	}
	l.bus.Emit(telemetry.CategoryFeedback, "track %d %s %.3f", track, param, v)
}

// splitTrackAddress parses /track/<n>/<param>. Anything else is not track
// feedback.
func splitTrackAddress(addr string) (int, string, bool) {
	parts := strings.Split(addr, "/")
	if len(parts) != 4 || parts[0] != "" || parts[1] != "track" || parts[3] == "" {
		return 0, "", false
	}
	n, err := strconv.Atoi(parts[2])
	if err != nil || n < 1 {
		return 0, "", false
	}
	return n, parts[3], true
}

// floatArg coerces the first argument to a float. REAPER sends float32
// almost everywhere but some surfaces use ints or bools for toggles.
func floatArg(msg *goosc.Message) (float64, bool) {
	if len(msg.Arguments) == 0 {
		return 0, false
	}
	switch v := msg.Arguments[0].(type) {
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func boolArg(msg *goosc.Message) (bool, bool) {
	v, ok := floatArg(msg)
	return v != 0, ok
}

func stringArg(msg *goosc.Message) (string, bool) {
	if len(msg.Arguments) == 0 {
		return "", false
	}
	s, ok := msg.Arguments[0].(string)
	return s, ok
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func gaugeVal(on bool) float64 {
	if on {
		return 1
	}
	return 0
}
