package osc

import (
	"net"
	"testing"
	"time"

	goosc "github.com/hypebeast/go-osc/osc"

	"github.com/voxdeck/voxdeck/internal/catalog"
)

type messageSink chan *goosc.Message

func (s messageSink) Dispatch(p goosc.Packet) {
	if m, ok := p.(*goosc.Message); ok {
		select {
		case s <- m:
		default:
		}
	}
}

// startSink binds a loopback UDP socket and decodes everything arriving
// on it. Returns the port to aim the client at.
func startSink(t *testing.T) (int, chan *goosc.Message) {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("bind sink: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	ch := make(chan *goosc.Message, 8)
	srv := &goosc.Server{Dispatcher: messageSink(ch)}
	go srv.Serve(conn)

	return conn.LocalAddr().(*net.UDPAddr).Port, ch
}

func recv(t *testing.T, ch chan *goosc.Message) *goosc.Message {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(3 * time.Second):
		t.Fatal("no datagram received")
		return nil
	}
}

func TestInvokeActionNumeric(t *testing.T) {
	t.Parallel()
	port, ch := startSink(t)
	c := NewClient("127.0.0.1", port)

	if err := c.InvokeAction(catalog.NumericID(40157)); err != nil {
		t.Fatalf("InvokeAction: %v", err)
	}
	msg := recv(t, ch)
	if msg.Address != "/action/40157" {
		t.Errorf("address = %q", msg.Address)
	}
	if len(msg.Arguments) != 0 {
		t.Errorf("numeric action must carry no arguments, got %v", msg.Arguments)
	}
}

func TestInvokeActionNamed(t *testing.T) {
	t.Parallel()
	port, ch := startSink(t)
	c := NewClient("127.0.0.1", port)

	if err := c.InvokeAction(catalog.NamedID("_SWS_AWRECORD")); err != nil {
		t.Fatalf("InvokeAction: %v", err)
	}
	msg := recv(t, ch)
	if msg.Address != "/action/str" {
		t.Errorf("address = %q", msg.Address)
	}
	if len(msg.Arguments) != 1 || msg.Arguments[0] != "_SWS_AWRECORD" {
		t.Errorf("arguments = %v", msg.Arguments)
	}
}

func TestSetTrackParamTypes(t *testing.T) {
	t.Parallel()
	port, ch := startSink(t)
	c := NewClient("127.0.0.1", port)

	if err := c.SetTrackParam(2, "volume", 0.75); err != nil {
		t.Fatalf("SetTrackParam: %v", err)
	}
	msg := recv(t, ch)
	if msg.Address != "/track/2/volume" {
		t.Errorf("address = %q", msg.Address)
	}
	if v, ok := msg.Arguments[0].(float32); !ok || v != 0.75 {
		t.Errorf("volume argument = %#v, want float32 0.75", msg.Arguments[0])
	}

	if err := c.SetTrackParam(2, "mute", 1); err != nil {
		t.Fatalf("SetTrackParam: %v", err)
	}
	msg = recv(t, ch)
	if v, ok := msg.Arguments[0].(int32); !ok || v != 1 {
		t.Errorf("mute argument = %#v, want int32 1", msg.Arguments[0])
	}

	if err := c.SetTrackParam(4, "recarm", 0); err != nil {
		t.Fatalf("SetTrackParam: %v", err)
	}
	msg = recv(t, ch)
	if msg.Address != "/track/4/recarm" {
		t.Errorf("address = %q", msg.Address)
	}
	if v, ok := msg.Arguments[0].(int32); !ok || v != 0 {
		t.Errorf("recarm argument = %#v, want int32 0", msg.Arguments[0])
	}
}

func TestClientTarget(t *testing.T) {
	t.Parallel()
	c := NewClient("127.0.0.1", 8000)
	if c.Target() != "127.0.0.1:8000" {
		t.Errorf("Target = %q", c.Target())
	}
}
