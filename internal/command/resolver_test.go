package command

import (
	"strings"
	"testing"

	"github.com/voxdeck/voxdeck/internal/catalog"
)

func catalogOf(t *testing.T, dump string) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Parse(strings.NewReader(dump), "Main")
	if err != nil {
		t.Fatalf("catalog.Parse: %v", err)
	}
	return c
}

func TestResolve(t *testing.T) {
	t.Parallel()

	cat := catalogOf(t,
		"Main\t1013\tTransport: Record\n"+
			"Main\t1016\tTransport: Stop\n")

	table := tableOf(
		&Spec{Key: "record", Patterns: []string{"record"}, Steps: []Step{
			{Kind: KindEffect, Name: "Transport: Record"},
		}},
		&Spec{Key: "vanish", Patterns: []string{"vanish"}, Steps: []Step{
			{Kind: KindEffect, Name: "No Such Action"},
		}},
		&Spec{Key: "stop", Patterns: []string{"stop"}, Steps: []Step{
			{Kind: KindEffect, Name: "Transport: Stop"},
		}},
	)

	bindings, unresolved := Resolve(cat, table)

	if len(bindings) != 2 {
		t.Errorf("expected 2 bindings, got %d", len(bindings))
	}
	if bindings["Transport: Record"].ID.Num() != 1013 {
		t.Errorf("wrong binding: %v", bindings["Transport: Record"])
	}

	if len(unresolved) != 1 {
		t.Fatalf("expected 1 unresolved, got %v", unresolved)
	}
	if unresolved[0].Effect != "No Such Action" || unresolved[0].Command != "vanish" {
		t.Errorf("unresolved = %+v", unresolved[0])
	}

	// The broken command stays loaded but is not executable; unrelated
	// commands are unaffected.
	vanish, _ := table.Get("vanish")
	if Executable(vanish, bindings) {
		t.Error("command with unresolved effect must not be executable")
	}
	rec, _ := table.Get("record")
	if !Executable(rec, bindings) {
		t.Error("unrelated command must stay executable")
	}
	if missing := MissingEffects(vanish, bindings); len(missing) != 1 || missing[0] != "No Such Action" {
		t.Errorf("MissingEffects = %v", missing)
	}
}

func TestResolveDistinctNamesOnce(t *testing.T) {
	t.Parallel()

	cat := catalogOf(t, "Main\t1013\tTransport: Record\n")

	// Two commands share the same unresolved effect: one record, first
	// owner wins.
	table := tableOf(
		&Spec{Key: "a", Patterns: []string{"a"}, Steps: []Step{
			{Kind: KindEffect, Name: "Shared Missing"},
		}},
		&Spec{Key: "b", Patterns: []string{"b"}, Steps: []Step{
			{Kind: KindEffect, Name: "Shared Missing"},
		}},
	)

	_, unresolved := Resolve(cat, table)
	if len(unresolved) != 1 {
		t.Fatalf("expected 1 unresolved record, got %v", unresolved)
	}
	if unresolved[0].Command != "a" {
		t.Errorf("owner = %s, want a", unresolved[0].Command)
	}
}

func TestResolvePrimaryContext(t *testing.T) {
	t.Parallel()

	cat := catalogOf(t,
		"MIDI Editor\t40046\tTransport: Record\n"+
			"Main\t1013\tTransport: Record\n")

	table := tableOf(&Spec{Key: "record", Patterns: []string{"record"}, Steps: []Step{
		{Kind: KindEffect, Name: "Transport: Record"},
	}})

	bindings, unresolved := Resolve(cat, table)
	if len(unresolved) != 0 {
		t.Fatalf("unresolved: %v", unresolved)
	}
	e := bindings["Transport: Record"]
	if e.ID.Num() != 1013 || e.Context != "Main" {
		t.Errorf("resolved %v from %s, want 1013 from Main", e.ID, e.Context)
	}
}

func TestResolveNonEffectStepsNeedNoCatalog(t *testing.T) {
	t.Parallel()

	empty := catalog.Empty("Main")

	table := tableOf(&Spec{Key: "combo", Patterns: []string{"combo"}, Steps: []Step{
		{Kind: KindAction, ID: catalog.NumericID(40157)},
		{Kind: KindTrack, Track: TrackParam{Track: 1, Param: "mute", Value: 1}},
	}})

	bindings, unresolved := Resolve(empty, table)
	if len(bindings) != 0 || len(unresolved) != 0 {
		t.Errorf("bindings=%v unresolved=%v", bindings, unresolved)
	}
	combo, _ := table.Get("combo")
	if !Executable(combo, bindings) {
		t.Error("explicit-id command must be executable with an empty catalog")
	}
}
