// Package state owns the authoritative body collection for the process
// lifetime and exposes tick diffs for broadcast and recording. The physics
// engine only ever sees a non-owning view of the slice held here.
package state

import (
	"fmt"
	"sync"

	"threebody/sim/internal/physics"
)

// BodyState is the serialisable snapshot of one body after a tick.
type BodyState struct {
	ID           string     `json:"id"`
	Kind         string     `json:"kind"`
	Mass         float64    `json:"mass"`
	Radius       float64    `json:"radius"`
	Position     [3]float64 `json:"position"`
	Velocity     [3]float64 `json:"velocity"`
	Acceleration [3]float64 `json:"acceleration"`
}

func capture(body *physics.Body) BodyState {
	return BodyState{
		ID:           body.ID,
		Kind:         body.Kind.String(),
		Mass:         body.Mass,
		Radius:       body.Radius,
		Position:     [3]float64{body.Position.X, body.Position.Y, body.Position.Z},
		Velocity:     [3]float64{body.Velocity.X, body.Velocity.Y, body.Velocity.Z},
		Acceleration: [3]float64{body.Acceleration.X, body.Acceleration.Y, body.Acceleration.Z},
	}
}

// TickDiff collates everything worth broadcasting for one completed tick.
type TickDiff struct {
	Tick    uint64          `json:"tick"`
	Updated []BodyState     `json:"updated,omitempty"`
	Events  []physics.Event `json:"events,omitempty"`
}

// HasChanges reports whether the diff contains anything worth sending.
func (d TickDiff) HasChanges() bool {
	return len(d.Updated) > 0 || len(d.Events) > 0
}

// World drives the engine over the bodies it owns and tracks per-body dirty
// state so unchanged bodies (light sources, settled spheres) stop appearing in
// diffs. All methods are safe for concurrent use; a single mutex serialises
// ticks, which also enforces the engine's no-concurrent-advance contract.
type World struct {
	mu     sync.Mutex
	engine *physics.Engine
	bodies []*physics.Body
	byID   map[string]*physics.Body
	last   map[string]BodyState
	events []physics.Event
}

// NewWorld constructs the world around an engine built from cfg. The bodies
// slice is owned by the world from this point on.
func NewWorld(cfg physics.Config, bodies []*physics.Body) (*World, error) {
	world := &World{
		bodies: bodies,
		byID:   make(map[string]*physics.Body, len(bodies)),
		last:   make(map[string]BodyState, len(bodies)),
	}
	for _, body := range bodies {
		if body == nil {
			return nil, fmt.Errorf("world: nil body in scene")
		}
		if _, dup := world.byID[body.ID]; dup {
			return nil, fmt.Errorf("world: duplicate body id %q", body.ID)
		}
		world.byID[body.ID] = body
	}
	//1.- The sink runs inside Step while the lock is held, so plain append is safe.
	world.engine = physics.NewEngine(cfg, physics.WithEventSink(func(evt physics.Event) {
		world.events = append(world.events, evt)
	}))
	return world, nil
}

// Step advances the simulation one tick and returns the resulting diff.
func (w *World) Step() TickDiff {
	if w == nil {
		return TickDiff{}
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	w.events = w.events[:0]
	w.engine.Advance(w.bodies)

	diff := TickDiff{Tick: w.engine.Tick()}
	//1.- Only bodies whose observable state moved since the last diff are included.
	for _, body := range w.bodies {
		current := capture(body)
		if previous, seen := w.last[body.ID]; seen && previous == current {
			continue
		}
		w.last[body.ID] = current
		diff.Updated = append(diff.Updated, current)
	}
	if len(w.events) > 0 {
		diff.Events = append([]physics.Event(nil), w.events...)
	}
	return diff
}

// Snapshot returns the full current state of every body.
func (w *World) Snapshot() []BodyState {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	snapshot := make([]BodyState, 0, len(w.bodies))
	for _, body := range w.bodies {
		snapshot = append(snapshot, capture(body))
	}
	return snapshot
}

// ApplyImpulse resolves the body by id and adds the impulse to its velocity.
func (w *World) ApplyImpulse(bodyID string, impulse physics.Vec3) error {
	if w == nil {
		return fmt.Errorf("world not initialised")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	body, ok := w.byID[bodyID]
	if !ok {
		return fmt.Errorf("world: unknown body %q", bodyID)
	}
	w.engine.ApplyImpulse(body, impulse)
	return nil
}

// Terminated reports whether the engine hit its exit condition.
func (w *World) Terminated() bool {
	if w == nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.engine.Terminated()
}

// Tick reports the number of completed ticks.
func (w *World) Tick() uint64 {
	if w == nil {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.engine.Tick()
}

// BodyCount reports how many bodies the world owns.
func (w *World) BodyCount() int {
	if w == nil {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.bodies)
}
