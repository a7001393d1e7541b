package state

import (
	"testing"

	"threebody/sim/internal/physics"
)

func pairWorld(t *testing.T, cfg physics.Config) *World {
	t.Helper()
	a, err := physics.NewBody("a", physics.DynamicBody, 1, 0.5, physics.Vec3{X: -5}, physics.Vec3{})
	if err != nil {
		t.Fatalf("NewBody: %v", err)
	}
	b, err := physics.NewBody("b", physics.DynamicBody, 1, 0.5, physics.Vec3{X: 5}, physics.Vec3{})
	if err != nil {
		t.Fatalf("NewBody: %v", err)
	}
	light, err := physics.NewBody("light", physics.LightSource, 1, 1, physics.Vec3{Z: 4}, physics.Vec3{})
	if err != nil {
		t.Fatalf("NewBody: %v", err)
	}
	world, err := NewWorld(cfg, []*physics.Body{a, b, light})
	if err != nil {
		t.Fatalf("NewWorld: %v", err)
	}
	return world
}

func TestWorldRejectsDuplicateIDs(t *testing.T) {
	a, _ := physics.NewBody("a", physics.DynamicBody, 1, 0.5, physics.Vec3{}, physics.Vec3{})
	b, _ := physics.NewBody("a", physics.DynamicBody, 1, 0.5, physics.Vec3{X: 3}, physics.Vec3{})
	if _, err := NewWorld(physics.DefaultConfig(), []*physics.Body{a, b}); err == nil {
		t.Fatalf("expected duplicate id to be rejected")
	}
}

func TestStepDiffsOnlyChangedBodies(t *testing.T) {
	cfg := physics.DefaultConfig()
	cfg.GravityConst = 1.0
	world := pairWorld(t, cfg)

	//1.- The first diff includes everything since no baseline exists yet.
	first := world.Step()
	if first.Tick != 1 || len(first.Updated) != 3 {
		t.Fatalf("unexpected first diff: %+v", first)
	}

	//2.- The frozen light source drops out of subsequent diffs.
	second := world.Step()
	if len(second.Updated) != 2 {
		t.Fatalf("expected only the dynamic pair, got %+v", second.Updated)
	}
	for _, update := range second.Updated {
		if update.ID == "light" {
			t.Fatalf("light source appeared in diff: %+v", update)
		}
	}
}

func TestStepCarriesEvents(t *testing.T) {
	cfg := physics.DefaultConfig()
	cfg.GravityConst = 0
	cfg.EscapeRadius = 10
	world := pairWorld(t, cfg)
	if err := world.ApplyImpulse("a", physics.Vec3{X: -600}); err != nil {
		t.Fatalf("ApplyImpulse: %v", err)
	}

	diff := world.Step()
	if len(diff.Events) != 1 || diff.Events[0].Type != physics.EventEscape {
		t.Fatalf("expected an escape event, got %+v", diff.Events)
	}
	if !world.Terminated() {
		t.Fatalf("expected world to report termination")
	}

	//1.- Events never leak into later diffs.
	if next := world.Step(); len(next.Events) != 0 {
		t.Fatalf("stale events in diff: %+v", next.Events)
	}
}

func TestApplyImpulseUnknownBody(t *testing.T) {
	world := pairWorld(t, physics.DefaultConfig())
	if err := world.ApplyImpulse("ghost", physics.Vec3{X: 1}); err == nil {
		t.Fatalf("expected unknown body error")
	}
}

func TestSnapshotReturnsEveryBody(t *testing.T) {
	world := pairWorld(t, physics.DefaultConfig())
	snapshot := world.Snapshot()
	if len(snapshot) != 3 || world.BodyCount() != 3 {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}
	//1.- Snapshots are value copies; mutating them cannot touch the world.
	snapshot[0].Position[0] = 999
	if world.Snapshot()[0].Position[0] == 999 {
		t.Fatalf("snapshot aliases world state")
	}
}
