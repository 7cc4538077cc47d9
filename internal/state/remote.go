// Package state holds the last-known picture of the DAW, fed exclusively
// by inbound OSC feedback.
package state

import (
	"sync"
	"time"
)

// TrackState is the last-known feedback for one channel.
type TrackState struct {
	Name   string  `json:"name,omitempty"`
	Volume float64 `json:"volume"`
	Pan    float64 `json:"pan"`
	Mute   bool    `json:"mute"`
	Solo   bool    `json:"solo"`
	RecArm bool    `json:"recarm"`
}

// Snapshot is a point-in-time copy of the remote state for readers that
// leave the process (API responses, status output).
type Snapshot struct {
	Recording    bool               `json:"recording"`
	Playing      bool               `json:"playing"`
	Paused       bool               `json:"paused"`
	Tempo        float64            `json:"tempo,omitempty"`
	Tracks       map[int]TrackState `json:"tracks,omitempty"`
	LastFeedback time.Time          `json:"last_feedback,omitempty"`
}

// Remote is the single state cell shared across flows. The inbound
// listener is the only writer; the executor's busy gate and the API read
// it. Readers see the latest write; staleness up to one feedback
// round-trip is accepted.
type Remote struct {
	mu           sync.RWMutex
	recording    bool
	playing      bool
	paused       bool
	tempo        float64
	tracks       map[int]*TrackState
	lastFeedback time.Time
}

// NewRemote returns an empty state cell: nothing known, nothing busy.
func NewRemote() *Remote {
	return &Remote{tracks: make(map[int]*TrackState)}
}

// Busy reports whether the DAW is in its protected state. Recording is the
// protected state: commands without the busy flag are blocked while it is
// set.
func (r *Remote) Busy() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.recording
}

// Recording reports the recording flag.
func (r *Remote) Recording() bool {
	return r.Busy()
}

// Playing reports the playback flag.
func (r *Remote) Playing() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.playing
}

// SetRecording updates the recording flag, reporting whether it changed.
func (r *Remote) SetRecording(on bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastFeedback = time.Now()
	if r.recording == on {
		return false
	}
	r.recording = on
	return true
}

// SetPlaying updates the playback flag, reporting whether it changed.
func (r *Remote) SetPlaying(on bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastFeedback = time.Now()
	if r.playing == on {
		return false
	}
	r.playing = on
	return true
}

// SetPaused updates the pause flag, reporting whether it changed.
func (r *Remote) SetPaused(on bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastFeedback = time.Now()
	if r.paused == on {
		return false
	}
	r.paused = on
	return true
}

// SetTempo updates the tempo, reporting whether it changed.
func (r *Remote) SetTempo(bpm float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastFeedback = time.Now()
	if r.tempo == bpm {
		return false
	}
	r.tempo = bpm
	return true
}

// SetTrackValue updates one channel parameter. ok is false for parameters
// outside the feedback vocabulary; changed reports an actual value change.
func (r *Remote) SetTrackValue(track int, param string, v float64) (changed, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastFeedback = time.Now()

	ts := r.track(track)
	on := v != 0
	switch param {
	case "volume":
		changed = ts.Volume != v
		ts.Volume = v
	case "pan":
		changed = ts.Pan != v
		ts.Pan = v
	case "mute":
		changed = ts.Mute != on
		ts.Mute = on
	case "solo":
		changed = ts.Solo != on
		ts.Solo = on
	case "recarm":
		changed = ts.RecArm != on
		ts.RecArm = on
	default:
		return false, false
	}
	return changed, true
}

// SetTrackName updates a channel's name, reporting whether it changed.
func (r *Remote) SetTrackName(track int, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastFeedback = time.Now()

	ts := r.track(track)
	if ts.Name == name {
		return false
	}
	ts.Name = name
	return true
}

func (r *Remote) track(n int) *TrackState {
	ts, ok := r.tracks[n]
	if !ok {
		ts = &TrackState{}
		r.tracks[n] = ts
	}
	return ts
}

// Snapshot returns a copy of the full state.
func (r *Remote) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := Snapshot{
		Recording:    r.recording,
		Playing:      r.playing,
		Paused:       r.paused,
		Tempo:        r.tempo,
		LastFeedback: r.lastFeedback,
	}
	if len(r.tracks) > 0 {
		snap.Tracks = make(map[int]TrackState, len(r.tracks))
		for n, ts := range r.tracks {
			snap.Tracks[n] = *ts
		}
	}
	return snap
}
