package speech

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/voxdeck/voxdeck/internal/log"
	"github.com/voxdeck/voxdeck/internal/telemetry"
)

// wireUtterance is the line format recognition engines write: one JSON
// object per line. Confidence is optional and defaults to full confidence
// so hand-typed input works.
type wireUtterance struct {
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence"`
	TS         string   `json:"ts"`
}

// Reader consumes a line-oriented JSON transcript stream and submits each
// usable line. Unusable lines are skipped, never fatal: a flaky
// recognition engine must not take the dispatcher down with it.
type Reader struct {
	src    io.Reader
	source string
	submit func(Utterance) (int64, bool)
	bus    *telemetry.Bus
	logger *slog.Logger
}

// NewReader wires a transcript stream to a submit function. source names
// the stream in telemetry ("stdin", "trigger", "api").
func NewReader(src io.Reader, source string, submit func(Utterance) (int64, bool), bus *telemetry.Bus) *Reader {
	return &Reader{
		src:    src,
		source: source,
		submit: submit,
		bus:    bus,
		logger: log.WithComponent("speech").With("source", source),
	}
}

// Run reads until the stream ends. End of stream ends this source, not
// the process. Cancellation is only observed between lines; a Reader
// blocked on a quiet stream is unblocked by closing the underlying
// source.
func (r *Reader) Run(ctx context.Context) error {
	sc := bufio.NewScanner(r.src)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		u, err := parseLine(line)
		if err != nil {
			r.bus.Emit(telemetry.CategoryError, "unusable transcript line from %s: %v", r.source, err)
			r.logger.Warn("skipping transcript line", "error", err)
			continue
		}
		u.Source = r.source

		if _, ok := r.submit(u); !ok {
			r.logger.Warn("intake queue full, dropped utterance", "text", u.Text)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read transcript stream: %w", err)
	}
	r.logger.Info("transcript stream ended")
	return nil
}

func parseLine(line string) (Utterance, error) {
	var w wireUtterance
	if err := json.Unmarshal([]byte(line), &w); err != nil {
		return Utterance{}, fmt.Errorf("not a transcript object: %w", err)
	}
	if strings.TrimSpace(w.Text) == "" {
		return Utterance{}, fmt.Errorf("empty text field")
	}

	u := Utterance{Text: w.Text, Confidence: 1.0, At: time.Now()}
	if w.Confidence != nil {
		u.Confidence = *w.Confidence
	}
	if w.TS != "" {
		if ts, err := time.Parse(time.RFC3339, w.TS); err == nil {
			u.At = ts
		}
	}
	return u, nil
}
