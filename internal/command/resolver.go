package command

import "github.com/voxdeck/voxdeck/internal/catalog"

// Bindings maps effect names to their resolved catalog entries.
type Bindings map[string]catalog.Entry

// Unresolved records an effect name the catalog could not supply, with the
// command that first referenced it. The owning command stays loaded but is
// never executable.
type Unresolved struct {
	Effect  string
	Command string
}

// Resolve binds every distinct effect name referenced by the table, one
// catalog lookup per name, in reference order. Failures are recorded and
// returned, never raised: startup proceeds with whatever resolved.
// Runs once at startup and again on reload; never per-utterance.
func Resolve(cat *catalog.Catalog, table *Table) (Bindings, []Unresolved) {
	bindings := make(Bindings)
	var unresolved []Unresolved
	seen := make(map[string]bool)

	for _, spec := range table.Specs() {
		for _, step := range spec.Steps {
			if step.Kind != KindEffect || seen[step.Name] {
				continue
			}
			seen[step.Name] = true

			entry, ok := cat.Resolve(step.Name)
			if !ok {
				unresolved = append(unresolved, Unresolved{
					Effect:  step.Name,
					Command: spec.Key,
				})
				continue
			}
			bindings[step.Name] = entry
		}
	}

	return bindings, unresolved
}

// Executable reports whether every effect-name step of the command has a
// binding. Explicit-ID and track steps need no resolution.
func Executable(spec *Spec, bindings Bindings) bool {
	for _, step := range spec.Steps {
		if step.Kind != KindEffect {
			continue
		}
		if _, ok := bindings[step.Name]; !ok {
			return false
		}
	}
	return true
}

// MissingEffects lists the effect names of the command that have no
// binding, in step order.
func MissingEffects(spec *Spec, bindings Bindings) []string {
	var missing []string
	for _, step := range spec.Steps {
		if step.Kind != KindEffect {
			continue
		}
		if _, ok := bindings[step.Name]; !ok {
			missing = append(missing, step.Name)
		}
	}
	return missing
}
