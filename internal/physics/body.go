package physics

import "fmt"

// Kind distinguishes bodies that participate in the simulation from inert light emitters.
type Kind int

const (
	// DynamicBody participates in gravity, collisions and integration.
	DynamicBody Kind = iota
	// LightSource is invisible to the engine: never integrated, never attracted, never collided.
	LightSource
)

// String renders the kind for logs and serialised snapshots.
func (k Kind) String() string {
	switch k {
	case DynamicBody:
		return "dynamic"
	case LightSource:
		return "light"
	default:
		return "dynamic"
	}
}

// ParseKind maps the serialised form back to a Kind, defaulting to DynamicBody.
func ParseKind(raw string) Kind {
	if raw == "light" {
		return LightSource
	}
	return DynamicBody
}

// Body is the mutable state record for one massive sphere. Construction is the
// only validation point: the engine assumes the invariants hold afterwards.
type Body struct {
	ID     string
	Kind   Kind
	Mass   float64
	Radius float64

	Position     Vec3
	Velocity     Vec3
	Acceleration Vec3

	// force is recomputed from zero every tick and never persists across ticks.
	force Vec3
	// forceAccumulator is the gravity stage scratch vector. The accumulate pass
	// is the only writer; the consume pass folds it into force and clears it.
	forceAccumulator Vec3
}

// NewBody validates the construction invariants and returns a ready body.
func NewBody(id string, kind Kind, mass, radius float64, position, velocity Vec3) (*Body, error) {
	//1.- Reject non-positive mass up front since the integrator divides by it.
	if mass <= 0 {
		return nil, fmt.Errorf("body %q: mass must be positive, got %g", id, mass)
	}
	//2.- Require a radius of at least epsilon so collision tests stay meaningful.
	if radius < DefaultEpsilon {
		return nil, fmt.Errorf("body %q: radius must be at least %g, got %g", id, DefaultEpsilon, radius)
	}
	return &Body{
		ID:       id,
		Kind:     kind,
		Mass:     mass,
		Radius:   radius,
		Position: position,
		Velocity: velocity,
	}, nil
}

// Force exposes the instantaneous force computed for the current tick.
func (b *Body) Force() Vec3 {
	if b == nil {
		return Vec3{}
	}
	return b.force
}

// AccumulatedForce exposes the gravity scratch vector for inspection between passes.
func (b *Body) AccumulatedForce() Vec3 {
	if b == nil {
		return Vec3{}
	}
	return b.forceAccumulator
}
