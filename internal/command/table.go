// Package command holds the command table, the utterance matcher, and the
// effect-name resolver.
package command

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/voxdeck/voxdeck/internal/catalog"
)

// StepKind discriminates the three ways a command step can address the DAW.
type StepKind int

const (
	// KindEffect is a human-readable action name resolved via the catalog.
	KindEffect StepKind = iota
	// KindAction is an explicit identifier that bypasses the catalog.
	KindAction
	// KindTrack is a channel-scoped parameter write.
	KindTrack
)

func (k StepKind) String() string {
	switch k {
	case KindEffect:
		return "effect"
	case KindAction:
		return "action"
	case KindTrack:
		return "track"
	}
	return "unknown"
}

// TrackParam is one channel-scoped write: /track/<n>/<param> <value>.
type TrackParam struct {
	Track int     `yaml:"track" json:"track"`
	Param string  `yaml:"param" json:"param"`
	Value float64 `yaml:"value" json:"value"`
}

// Step is one ordered unit of a command's execution.
type Step struct {
	Kind  StepKind
	Name  string           // KindEffect
	ID    catalog.ActionID // KindAction
	Track TrackParam       // KindTrack
}

func (s Step) String() string {
	switch s.Kind {
	case KindEffect:
		return s.Name
	case KindAction:
		return s.ID.String()
	case KindTrack:
		return fmt.Sprintf("/track/%d/%s %g", s.Track.Track, s.Track.Param, s.Track.Value)
	}
	return "?"
}

// Spec is one fully loaded command. Immutable after load.
type Spec struct {
	Key                string
	Description        string
	Group              string
	Patterns           []string // normalized at load
	Steps              []Step
	AvailableWhileBusy bool
	Cooldown           time.Duration // 0 means the global dispatch cooldown
}

// Problem records a dropped or degraded command definition.
type Problem struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

// Table is the merged command set, in load order. Load order matters: it
// breaks equal-length pattern ties in the matcher.
type Table struct {
	specs    []*Spec
	byKey    map[string]*Spec
	problems []Problem
}

// specYAML is the on-disk shape of one command entry.
type specYAML struct {
	Description        string             `yaml:"description"`
	Group              string             `yaml:"group"`
	Patterns           []string           `yaml:"patterns"`
	Effects            []string           `yaml:"effects"`
	EffectIDs          []catalog.ActionID `yaml:"effect_ids"`
	TrackEffects       []TrackParam       `yaml:"track_effects"`
	AvailableWhileBusy bool               `yaml:"available_while_busy"`
	Cooldown           time.Duration      `yaml:"cooldown"`
}

var (
	nonAlnumPattern   = regexp.MustCompile(`[^a-z0-9\s]+`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// Normalize maps text into the domain patterns are matched in: lowercase,
// punctuation stripped, whitespace collapsed. Applied to patterns at load
// and to utterances at match time.
func Normalize(text string) string {
	text = strings.ToLower(text)
	text = nonAlnumPattern.ReplaceAllString(text, "")
	text = whitespacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// LoadTable builds the merged table from the base file and the optional
// override file. Override entries with a colliding key replace the base
// entry wholesale, in place, so the base entry's load position (and with it
// the matcher's tie-break order) is retained; new keys append. Malformed
// entries are dropped and recorded as problems, never fatal. A zero-step
// command is invalid except for shutdownKey, whose effect is
// process-internal.
func LoadTable(basePath, overridePath, shutdownKey string) (*Table, error) {
	t := &Table{byKey: make(map[string]*Spec)}

	if err := t.loadFile(basePath, shutdownKey); err != nil {
		return nil, fmt.Errorf("base command table: %w", err)
	}

	if overridePath != "" {
		if _, err := os.Stat(overridePath); err == nil {
			if err := t.loadFile(overridePath, shutdownKey); err != nil {
				// A broken override never takes the base set down.
				t.problems = append(t.problems, Problem{
					Key:    "(override)",
					Reason: err.Error(),
				})
			}
		}
	}

	return t, nil
}

func (t *Table) loadFile(path, shutdownKey string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	// Decoded through yaml.Node: a plain map would randomize entry order,
	// and declaration order is the documented tie-break.
	var doc struct {
		Commands yaml.Node `yaml:"commands"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if doc.Commands.Kind == 0 || doc.Commands.IsZero() {
		return nil
	}
	if doc.Commands.Kind != yaml.MappingNode {
		return fmt.Errorf("%s: commands must be a mapping", path)
	}

	for i := 0; i+1 < len(doc.Commands.Content); i += 2 {
		keyNode, valNode := doc.Commands.Content[i], doc.Commands.Content[i+1]

		var key string
		if err := keyNode.Decode(&key); err != nil || key == "" {
			t.problems = append(t.problems, Problem{
				Key:    fmt.Sprintf("(line %d)", keyNode.Line),
				Reason: "command key must be a non-empty string",
			})
			continue
		}

		var sy specYAML
		if err := valNode.Decode(&sy); err != nil {
			t.problems = append(t.problems, Problem{Key: key, Reason: err.Error()})
			continue
		}

		spec, reason := compile(key, sy, shutdownKey)
		if reason != "" {
			t.problems = append(t.problems, Problem{Key: key, Reason: reason})
			continue
		}
		t.upsert(spec)
	}

	return nil
}

// compile validates one entry and builds its Spec. Returns a non-empty
// reason when the entry must be dropped.
func compile(key string, sy specYAML, shutdownKey string) (*Spec, string) {
	patterns := make([]string, 0, len(sy.Patterns))
	for _, p := range sy.Patterns {
		n := Normalize(p)
		if n == "" {
			continue
		}
		patterns = append(patterns, n)
	}
	if len(patterns) == 0 {
		return nil, "no usable patterns"
	}

	steps := make([]Step, 0, len(sy.Effects)+len(sy.EffectIDs)+len(sy.TrackEffects))
	for _, name := range sy.Effects {
		if strings.TrimSpace(name) == "" {
			return nil, "empty effect name"
		}
		steps = append(steps, Step{Kind: KindEffect, Name: name})
	}
	for _, id := range sy.EffectIDs {
		if id.IsZero() {
			return nil, "empty effect id"
		}
		steps = append(steps, Step{Kind: KindAction, ID: id})
	}
	for _, tp := range sy.TrackEffects {
		if reason := validateTrackParam(tp); reason != "" {
			return nil, reason
		}
		steps = append(steps, Step{Kind: KindTrack, Track: tp})
	}
	if len(steps) == 0 && key != shutdownKey {
		return nil, "no effects configured"
	}

	if sy.Cooldown < 0 {
		return nil, "negative cooldown"
	}

	return &Spec{
		Key:                key,
		Description:        sy.Description,
		Group:              sy.Group,
		Patterns:           patterns,
		Steps:              steps,
		AvailableWhileBusy: sy.AvailableWhileBusy,
		Cooldown:           sy.Cooldown,
	}, ""
}

// Track parameter domains follow the DAW's OSC surface: volume 0..2,
// pan -1..1, the rest are 0/1 toggles.
func validateTrackParam(tp TrackParam) string {
	if tp.Track < 1 {
		return fmt.Sprintf("track index must be >= 1 (got %d)", tp.Track)
	}
	switch tp.Param {
	case "volume":
		if tp.Value < 0 || tp.Value > 2 {
			return fmt.Sprintf("volume must be in [0,2] (got %g)", tp.Value)
		}
	case "pan":
		if tp.Value < -1 || tp.Value > 1 {
			return fmt.Sprintf("pan must be in [-1,1] (got %g)", tp.Value)
		}
	case "mute", "solo", "recarm":
		if tp.Value != 0 && tp.Value != 1 {
			return fmt.Sprintf("%s must be 0 or 1 (got %g)", tp.Param, tp.Value)
		}
	default:
		return fmt.Sprintf("unknown track param %q", tp.Param)
	}
	return ""
}

func (t *Table) upsert(spec *Spec) {
	if existing, ok := t.byKey[spec.Key]; ok {
		for i, s := range t.specs {
			if s == existing {
				t.specs[i] = spec
				break
			}
		}
	} else {
		t.specs = append(t.specs, spec)
	}
	t.byKey[spec.Key] = spec
}

// Specs returns all commands in load order. The slice is shared; callers
// must not mutate it.
func (t *Table) Specs() []*Spec {
	return t.specs
}

// Get returns the command with the given key.
func (t *Table) Get(key string) (*Spec, bool) {
	s, ok := t.byKey[key]
	return s, ok
}

// Len returns the number of loaded commands.
func (t *Table) Len() int {
	return len(t.specs)
}

// Problems returns the entries dropped or degraded during load.
func (t *Table) Problems() []Problem {
	return t.problems
}
