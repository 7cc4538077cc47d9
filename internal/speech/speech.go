// Package speech is the intake boundary. Transcript events enter the
// process here and nowhere else; everything downstream sees the same
// Utterance regardless of which source produced it.
package speech

import "time"

// Utterance is one transcript event. Seq is assigned at intake and fixes
// the event's place in the global processing order.
type Utterance struct {
	Seq        int64     `json:"seq"`
	At         time.Time `json:"at"`
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	Source     string    `json:"source"`
}
