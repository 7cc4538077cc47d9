// Package osc is the UDP transport boundary: a fire-and-forget client for
// outbound control messages and a feedback listener that folds inbound
// messages into the remote snapshot.
package osc

import (
	"fmt"

	goosc "github.com/hypebeast/go-osc/osc"

	"github.com/voxdeck/voxdeck/internal/catalog"
	"github.com/voxdeck/voxdeck/internal/metrics"
)

// Client sends control messages to the DAW. Sends are connectionless and
// unacknowledged; an error here means the datagram never left this host.
type Client struct {
	client *goosc.Client
	target string
}

// NewClient creates a client aimed at the DAW's OSC receive port.
func NewClient(host string, port int) *Client {
	return &Client{
		client: goosc.NewClient(host, port),
		target: fmt.Sprintf("%s:%d", host, port),
	}
}

// Target returns the host:port the client sends to.
func (c *Client) Target() string {
	return c.target
}

// InvokeAction triggers one action. Numeric IDs ride in the address
// itself; named IDs go through /action/str with the name as the single
// argument, the form REAPER expects for extension actions.
func (c *Client) InvokeAction(id catalog.ActionID) error {
	var msg *goosc.Message
	if id.Named() {
		msg = goosc.NewMessage("/action/str")
		msg.Append(id.Name())
	} else {
		msg = goosc.NewMessage(fmt.Sprintf("/action/%d", id.Num()))
	}
	return c.send(msg)
}

// SetTrackParam writes one track parameter. Continuous parameters travel
// as float32, toggles as int32 0 or 1.
func (c *Client) SetTrackParam(track int, param string, value float64) error {
	msg := goosc.NewMessage(fmt.Sprintf("/track/%d/%s", track, param))
	switch param {
	case "mute", "solo", "recarm":
		var v int32
		if value != 0 {
			v = 1
		}
		msg.Append(v)
	default:
		msg.Append(float32(value))
	}
	return c.send(msg)
}

func (c *Client) send(msg *goosc.Message) error {
	if err := c.client.Send(msg); err != nil {
		metrics.OSCSendErrors.Inc()
		return fmt.Errorf("failed to send %s: %w", msg.Address, err)
	}
	metrics.OSCSent.Inc()
	return nil
}
