package dispatch

import (
	"context"
	"time"

	"github.com/voxdeck/voxdeck/internal/catalog"
)

//go:generate mockgen -destination=mocks/mock_sender.go -package=mocks github.com/voxdeck/voxdeck/internal/dispatch Sender

// Sender issues outbound control messages. Implemented by the OSC client.
type Sender interface {
	InvokeAction(id catalog.ActionID) error
	SetTrackParam(track int, param string, value float64) error
}

// Recorder persists per-command outcomes. Satisfied by history.Store; a
// nil Recorder disables persistence.
type Recorder interface {
	RecordCommand(ctx context.Context, rec CommandRecord) error
}

// CommandRecord is one executed (or suppressed) command as written to
// history.
type CommandRecord struct {
	Seq        int64
	At         time.Time
	Heard      string
	Confidence float64
	Command    string
	Pattern    string
	Result     string
	StepsSent  int
	StepsTotal int
	Reason     string
	Duration   time.Duration
}
