package physics

import (
	"fmt"
	"math"
)

// Engine defaults. G is deliberately far below the physical constant because the
// scene-level speed multiplier amplifies visible motion; the value is tuned for
// visual stability, not physical fidelity.
const (
	DefaultStep          = 1.0 / 60.0
	DefaultSpeed         = 3.0
	DefaultGravityConst  = 6.6743e-11
	DefaultMinDistanceSq = 1.0
	DefaultRestitution   = 0.8
	DefaultRestThreshold = 0.1
	DefaultSurfaceY      = -2.0
	DefaultEpsilon       = 1e-3
)

// EventType labels the notable occurrences emitted during a tick.
type EventType string

const (
	// EventSurfaceBounce marks a restitutive bounce off the ground plane.
	EventSurfaceBounce EventType = "surface_bounce"
	// EventBodyCollision marks a resolved sphere-sphere collision.
	EventBodyCollision EventType = "body_collision"
	// EventEscape marks a body leaving the bounding radius, terminating the run.
	EventEscape EventType = "escape"
)

// Event describes a single notable occurrence during a tick.
type Event struct {
	Tick      uint64    `json:"tick"`
	Type      EventType `json:"type"`
	Primary   string    `json:"primary"`
	Secondary string    `json:"secondary,omitempty"`
	Magnitude float64   `json:"magnitude,omitempty"`
}

// EventSink receives events as they are emitted; a nil sink disables emission.
type EventSink func(Event)

// Config carries every tunable the engine owns. Multiple engines with distinct
// configs run independently and deterministically.
type Config struct {
	// Step is the fixed integration timestep in seconds, independent of render rate.
	Step float64
	// Speed is the motion amplification multiplier. It is not applied to force or
	// integration math; the scene layer scales scripted impulses with it.
	Speed float64
	// GravityConst scales pairwise attraction.
	GravityConst float64
	// ExternalField is a constant uniform force field; force = field * mass.
	// It is a free parameter, not standard gravity.
	ExternalField Vec3
	// MinDistanceSq is the squared-distance floor below which a pair is skipped,
	// a hard force cutoff rather than a smooth clamp.
	MinDistanceSq float64
	// Restitution is the fraction of vertical velocity retained after a surface bounce.
	Restitution float64
	// RestThreshold is the vertical speed below which a bounced body is snapped to rest.
	RestThreshold float64
	// DecayLambda is the exponential velocity decay rate; zero disables decay.
	DecayLambda float64
	// SurfaceY is the height of the fixed horizontal ground plane.
	SurfaceY float64
	// EscapeRadius terminates the simulation once a dynamic body moves further
	// than this from the origin; zero disables the check.
	EscapeRadius float64
	// Epsilon is the shared near-zero tolerance.
	Epsilon float64
}

// DefaultConfig returns the tuning the original scene was balanced around.
func DefaultConfig() Config {
	return Config{
		Step:          DefaultStep,
		Speed:         DefaultSpeed,
		GravityConst:  DefaultGravityConst,
		MinDistanceSq: DefaultMinDistanceSq,
		Restitution:   DefaultRestitution,
		RestThreshold: DefaultRestThreshold,
		SurfaceY:      DefaultSurfaceY,
		Epsilon:       DefaultEpsilon,
	}
}

// Engine advances body state one fixed timestep at a time. It never owns the
// bodies: Advance operates on a caller-owned slice for the duration of one call.
type Engine struct {
	cfg        Config
	sink       EventSink
	tick       uint64
	terminated bool
}

// Option mutates the engine during construction.
type Option func(*Engine)

// WithEventSink registers a callback invoked for every emitted event.
func WithEventSink(sink EventSink) Option {
	return func(e *Engine) { e.sink = sink }
}

// NewEngine constructs an engine, normalising unusable numeric settings.
func NewEngine(cfg Config, opts ...Option) *Engine {
	//1.- Replace invalid core tunables so a zero-value config still integrates.
	if cfg.Step <= 0 {
		cfg.Step = DefaultStep
	}
	if cfg.Epsilon <= 0 {
		cfg.Epsilon = DefaultEpsilon
	}
	if cfg.MinDistanceSq < 0 {
		cfg.MinDistanceSq = DefaultMinDistanceSq
	}
	engine := &Engine{cfg: cfg}
	for _, opt := range opts {
		opt(engine)
	}
	return engine
}

// Config exposes the effective configuration after normalisation.
func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return e.cfg
}

// Tick reports how many full passes have completed.
func (e *Engine) Tick() uint64 {
	if e == nil {
		return 0
	}
	return e.tick
}

// Terminated reports whether a body escaped the bounding radius.
func (e *Engine) Terminated() bool {
	if e == nil {
		return false
	}
	return e.terminated
}

// ApplyImpulse adds an instantaneous velocity change to the body. Light sources
// are frozen by the engine, so the impulse is discarded for them.
func (e *Engine) ApplyImpulse(body *Body, impulse Vec3) {
	if body == nil || body.Kind == LightSource {
		return
	}
	body.Velocity = body.Velocity.Add(impulse)
}

// Advance runs one full tick over the bodies in index order. Resolution for an
// earlier body can alter state read by a later pairwise test in the same tick;
// that sequential coupling is part of the contract.
func (e *Engine) Advance(bodies []*Body) {
	if e == nil {
		return
	}
	e.tick++
	for i, body := range bodies {
		if body == nil {
			continue
		}
		//1.- Reset the instantaneous force; it never persists across ticks.
		body.force = Vec3{}
		if body.Kind == LightSource {
			continue
		}

		//2.- Accumulate pairwise gravity against every later dynamic body.
		for j := i + 1; j < len(bodies); j++ {
			other := bodies[j]
			if other == nil || other.Kind == LightSource {
				continue
			}
			e.accumulateGravity(body, other)
		}

		//3.- Consume the accumulator into the instantaneous force and integrate.
		e.consumeForce(body)
		e.integrate(body)

		//4.- Resolve ground contact before pairwise collisions, matching tick order.
		if e.onSurface(body) {
			e.resolveSurface(body)
		}

		//5.- Test and resolve overlap against every later dynamic body.
		for j := i + 1; j < len(bodies); j++ {
			other := bodies[j]
			if other == nil || other.Kind == LightSource {
				continue
			}
			if e.colliding(body, other) && !(e.atRest(body) && e.atRest(other)) {
				e.resolveCollision(body, other)
			}
		}

		//6.- Apply exponential velocity decay above the rest tolerance.
		e.decay(body)

		//7.- Check the exit condition and fail loudly on numeric blow-up.
		e.checkEscape(body)
		if !body.Position.IsFinite() || !body.Velocity.IsFinite() {
			panic(fmt.Sprintf("physics: non-finite state for body %q at tick %d", body.ID, e.tick))
		}
	}
}

// accumulateGravity adds the pair's attraction to both scratch accumulators.
// The contributions are exact negations of each other.
func (e *Engine) accumulateGravity(a, b *Body) {
	delta := b.Position.Sub(a.Position)
	distSq := delta.LengthSquared()
	//1.- Hard cutoff below the distance floor prevents force blow-up near contact.
	if distSq < e.cfg.MinDistanceSq+e.cfg.Epsilon {
		return
	}
	direction, ok := delta.Normalize()
	if !ok {
		return
	}
	magnitude := e.cfg.GravityConst * a.Mass * b.Mass / distSq
	a.forceAccumulator = a.forceAccumulator.Add(direction.Scale(magnitude))
	b.forceAccumulator = b.forceAccumulator.Add(direction.Scale(-magnitude))
}

// consumeForce folds the accumulator and the uniform field into the tick force,
// then clears the accumulator. Accumulate and consume never interleave.
func (e *Engine) consumeForce(body *Body) {
	field := e.cfg.ExternalField.Scale(body.Mass)
	body.force = field.Add(body.forceAccumulator)
	body.forceAccumulator = Vec3{}
}

// integrate advances velocity then position with semi-implicit Euler.
func (e *Engine) integrate(body *Body) {
	//1.- Construction guarantees positive mass; no-op defensively if violated.
	if body.Mass <= 0 {
		return
	}
	body.Acceleration = body.force.Scale(1.0 / body.Mass)
	body.Velocity = body.Velocity.Add(body.Acceleration.Scale(e.cfg.Step))
	body.Position = body.Position.Add(body.Velocity.Scale(e.cfg.Step))
}

// onSurface reports whether the body's lowest point crossed the ground plane.
func (e *Engine) onSurface(body *Body) bool {
	return body.Position.Y-body.Radius <= e.cfg.SurfaceY+e.cfg.Epsilon
}

// resolveSurface reflects the vertical velocity, clamps the body onto the plane
// and snaps near-zero bounces to rest to suppress micro-bouncing.
func (e *Engine) resolveSurface(body *Body) {
	body.Velocity.Y *= -e.cfg.Restitution
	body.Position.Y = e.cfg.SurfaceY + body.Radius
	if math.Abs(body.Velocity.Y) < e.cfg.RestThreshold {
		body.Velocity.Y = 0
		return
	}
	e.emit(Event{Tick: e.tick, Type: EventSurfaceBounce, Primary: body.ID, Magnitude: math.Abs(body.Velocity.Y)})
}

// colliding reports sphere-sphere overlap within tolerance.
func (e *Engine) colliding(a, b *Body) bool {
	distSq := a.Position.Sub(b.Position).LengthSquared()
	radiusSum := a.Radius + b.Radius
	return distSq <= radiusSum*radiusSum+e.cfg.Epsilon
}

// atRest reports whether the velocity is component-wise below epsilon.
func (e *Engine) atRest(body *Body) bool {
	return body.Velocity.NearZero(e.cfg.Epsilon)
}

// resolveCollision separates the overlapping pair symmetrically and exchanges
// velocity with the one-dimensional elastic formulas applied to the full
// vectors. Oblique collisions are deliberately not decomposed along the normal.
func (e *Engine) resolveCollision(a, b *Body) {
	delta := b.Position.Sub(a.Position)
	normal, ok := delta.Normalize()
	if !ok {
		//1.- Coincident centers give no usable normal; skip the pair this tick.
		return
	}

	//2.- Positional correction: push each body out by half the overlap.
	distance := delta.Length()
	radiusSum := a.Radius + b.Radius
	overlap := radiusSum - distance
	if overlap > 0 {
		correction := normal.Scale(overlap / 2.0)
		a.Position = a.Position.Sub(correction)
		b.Position = b.Position.Add(correction)
	}

	//3.- Elastic exchange; equal masses swap velocities exactly.
	totalMass := a.Mass + b.Mass
	relativeSpeed := a.Velocity.Sub(b.Velocity).Length()
	newA := a.Velocity.Scale(a.Mass - b.Mass).Add(b.Velocity.Scale(2 * b.Mass)).Scale(1.0 / totalMass)
	newB := b.Velocity.Scale(b.Mass - a.Mass).Add(a.Velocity.Scale(2 * a.Mass)).Scale(1.0 / totalMass)
	a.Velocity = newA
	b.Velocity = newB

	e.emit(Event{Tick: e.tick, Type: EventBodyCollision, Primary: a.ID, Secondary: b.ID, Magnitude: relativeSpeed})
}

// decay applies v *= e^(-lambda*dt) unless the body is already effectively at rest.
func (e *Engine) decay(body *Body) {
	if e.cfg.DecayLambda == 0 || body.Velocity.NearZero(e.cfg.Epsilon) {
		return
	}
	factor := math.Exp(-e.cfg.DecayLambda * e.cfg.Step)
	body.Velocity = body.Velocity.Scale(factor)
}

// checkEscape terminates the run once a body leaves the bounding radius.
func (e *Engine) checkEscape(body *Body) {
	if e.cfg.EscapeRadius <= 0 || e.terminated {
		return
	}
	distance := body.Position.Length()
	if distance > e.cfg.EscapeRadius {
		e.terminated = true
		e.emit(Event{Tick: e.tick, Type: EventEscape, Primary: body.ID, Magnitude: distance})
	}
}

func (e *Engine) emit(event Event) {
	if e.sink != nil {
		e.sink(event)
	}
}
