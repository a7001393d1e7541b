// Package scene describes the initial body setup and the scripted impulse cues
// that drive a simulation run. The engine itself never reads scene files; the
// orchestrator builds the body slice here and hands the core a view of it.
package scene

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"threebody/sim/internal/physics"
)

// BodySpec declares one body in the scene file.
type BodySpec struct {
	ID       string     `json:"id"`
	Kind     string     `json:"kind,omitempty"`
	Mass     float64    `json:"mass"`
	Radius   float64    `json:"radius"`
	Position [3]float64 `json:"position"`
	Velocity [3]float64 `json:"velocity,omitempty"`
	Color    string     `json:"color,omitempty"`
}

// ImpulseCue schedules an instantaneous velocity change at a specific tick.
type ImpulseCue struct {
	Tick    uint64     `json:"tick"`
	Body    string     `json:"body"`
	Impulse [3]float64 `json:"impulse"`
}

// Scene bundles the bodies and the impulse script for one run.
type Scene struct {
	Name   string       `json:"name"`
	Bodies []BodySpec   `json:"bodies"`
	Script []ImpulseCue `json:"script,omitempty"`
}

// Load reads and validates a scene description from disk.
func Load(path string) (*Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scene: %w", err)
	}
	var scene Scene
	if err := json.Unmarshal(data, &scene); err != nil {
		return nil, fmt.Errorf("parse scene: %w", err)
	}
	if err := scene.validate(); err != nil {
		return nil, err
	}
	return &scene, nil
}

func (s *Scene) validate() error {
	//1.- Collect every problem so a broken file reports all issues at once.
	var problems []string
	if len(s.Bodies) == 0 {
		problems = append(problems, "scene declares no bodies")
	}
	seen := make(map[string]struct{}, len(s.Bodies))
	for idx, spec := range s.Bodies {
		if strings.TrimSpace(spec.ID) == "" {
			problems = append(problems, fmt.Sprintf("body %d has no id", idx))
			continue
		}
		if _, dup := seen[spec.ID]; dup {
			problems = append(problems, fmt.Sprintf("duplicate body id %q", spec.ID))
		}
		seen[spec.ID] = struct{}{}
		if spec.Mass <= 0 {
			problems = append(problems, fmt.Sprintf("body %q: mass must be positive", spec.ID))
		}
		if spec.Radius <= 0 {
			problems = append(problems, fmt.Sprintf("body %q: radius must be positive", spec.ID))
		}
	}
	for idx, cue := range s.Script {
		if _, ok := seen[cue.Body]; !ok {
			problems = append(problems, fmt.Sprintf("cue %d targets unknown body %q", idx, cue.Body))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid scene: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Build constructs the caller-owned body slice in declaration order.
func (s *Scene) Build() ([]*physics.Body, error) {
	bodies := make([]*physics.Body, 0, len(s.Bodies))
	for _, spec := range s.Bodies {
		body, err := physics.NewBody(
			spec.ID,
			physics.ParseKind(spec.Kind),
			spec.Mass,
			spec.Radius,
			physics.Vec3{X: spec.Position[0], Y: spec.Position[1], Z: spec.Position[2]},
			physics.Vec3{X: spec.Velocity[0], Y: spec.Velocity[1], Z: spec.Velocity[2]},
		)
		if err != nil {
			return nil, err
		}
		bodies = append(bodies, body)
	}
	return bodies, nil
}

// demoKick sizes the built-in cues so the impulse actually fired under the
// default speed multiplier has magnitude 2 along each unit direction.
const demoKick = 2.0 / physics.DefaultSpeed

// Default returns the built-in demo scene: three spheres resting at the
// vertices of an equilateral triangle above the ground plane, one stationary
// light source, and the impulse cues that set the triangle in motion after the
// warm-up period.
func Default() *Scene {
	return &Scene{
		Name: "three-body-demo",
		Bodies: []BodySpec{
			{ID: "red", Mass: 30e11, Radius: 2.5, Position: [3]float64{0, 36, -2}, Color: "#ff0000"},
			{ID: "green", Mass: 30e11, Radius: 1.5, Position: [3]float64{17.32, 20, -2}, Color: "#00ff00"},
			{ID: "blue", Mass: 30e11, Radius: 0.5, Position: [3]float64{-17.32, 20, -2}, Color: "#0000ff"},
			{ID: "light", Kind: "light", Mass: 1, Radius: 1, Position: [3]float64{0, 0, 4}, Color: "#ffffff"},
		},
		Script: []ImpulseCue{
			{Tick: 363, Body: "red", Impulse: [3]float64{demoKick * 1.0, demoKick * -0.7071, 0}},
			{Tick: 363, Body: "green", Impulse: [3]float64{demoKick * -0.7071, demoKick * -0.7071, 0}},
			{Tick: 363, Body: "blue", Impulse: [3]float64{demoKick * 0.7071, demoKick * 0.7071, 0}},
		},
	}
}

// ImpulseTarget is the subset of the world the director needs to fire a cue.
type ImpulseTarget interface {
	ApplyImpulse(bodyID string, impulse physics.Vec3) error
}

// Director replays the scene script against the world, scaling every impulse by
// the configured speed multiplier. Cues fire once, in tick order.
type Director struct {
	cues  []ImpulseCue
	speed float64
	next  int
}

// NewDirector sorts the script and prepares it for replay. A non-positive speed
// falls back to 1 so a bare scene file behaves predictably.
func NewDirector(script []ImpulseCue, speed float64) *Director {
	if speed <= 0 {
		speed = 1
	}
	cues := make([]ImpulseCue, len(script))
	copy(cues, script)
	sort.SliceStable(cues, func(i, j int) bool { return cues[i].Tick < cues[j].Tick })
	return &Director{cues: cues, speed: speed}
}

// Fire applies every cue scheduled at or before the supplied tick.
func (d *Director) Fire(tick uint64, target ImpulseTarget) error {
	if d == nil || target == nil {
		return nil
	}
	for d.next < len(d.cues) && d.cues[d.next].Tick <= tick {
		cue := d.cues[d.next]
		d.next++
		impulse := physics.Vec3{
			X: cue.Impulse[0] * d.speed,
			Y: cue.Impulse[1] * d.speed,
			Z: cue.Impulse[2] * d.speed,
		}
		if err := target.ApplyImpulse(cue.Body, impulse); err != nil {
			return fmt.Errorf("cue at tick %d: %w", cue.Tick, err)
		}
	}
	return nil
}

// Pending reports how many cues have not fired yet.
func (d *Director) Pending() int {
	if d == nil {
		return 0
	}
	return len(d.cues) - d.next
}
