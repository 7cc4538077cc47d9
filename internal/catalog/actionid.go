package catalog

import (
	"encoding/json"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ActionID is a DAW action identifier: most actions carry a numeric ID,
// extension-registered commands carry an opaque string (by convention
// "_"-prefixed). The zero value is no identifier at all.
type ActionID struct {
	num  int64
	name string
}

// NumericID returns the identifier for a native numeric action.
func NumericID(n int64) ActionID {
	return ActionID{num: n}
}

// NamedID returns the identifier for a string-registered command.
func NamedID(s string) ActionID {
	return ActionID{name: s}
}

// ParseActionID reads an identifier from its textual form: all-digit
// strings become numeric IDs, anything else is a named command.
func ParseActionID(s string) ActionID {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return NumericID(n)
	}
	return NamedID(s)
}

// Named reports whether the identifier is a string-registered command.
func (a ActionID) Named() bool {
	return a.name != ""
}

// Num returns the numeric form; only meaningful when !Named().
func (a ActionID) Num() int64 {
	return a.num
}

// Name returns the string form; empty for numeric IDs.
func (a ActionID) Name() string {
	return a.name
}

// IsZero reports whether no identifier is set.
func (a ActionID) IsZero() bool {
	return a.num == 0 && a.name == ""
}

func (a ActionID) String() string {
	if a.Named() {
		return a.name
	}
	return strconv.FormatInt(a.num, 10)
}

// UnmarshalYAML accepts either an integer or a string scalar, so command
// tables can write `effect_ids: [40157, _SWS_AWRECORD]`.
func (a *ActionID) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("action id must be a scalar (line %d)", value.Line)
	}
	var n int64
	if err := value.Decode(&n); err == nil {
		*a = NumericID(n)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("action id must be an integer or string (line %d)", value.Line)
	}
	if s == "" {
		return fmt.Errorf("action id must not be empty (line %d)", value.Line)
	}
	*a = ParseActionID(s)
	return nil
}

// MarshalJSON renders the identifier as a JSON number or string.
func (a ActionID) MarshalJSON() ([]byte, error) {
	if a.Named() {
		return json.Marshal(a.name)
	}
	return json.Marshal(a.num)
}
