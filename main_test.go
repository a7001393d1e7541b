package main

import (
	"testing"

	"threebody/sim/internal/config"
)

func TestEngineConfigMapsAllTunables(t *testing.T) {
	p := config.Physics{
		Timestep:      0.02,
		Speed:         2,
		GravityConst:  1e-10,
		ExternalField: [3]float64{0, -10, 0},
		MinDistanceSq: 2,
		Restitution:   0.5,
		RestThreshold: 0.2,
		DecayLambda:   0.1,
		SurfaceY:      -3,
		EscapeRadius:  500,
	}
	cfg := engineConfig(p)
	if cfg.Step != 0.02 || cfg.Speed != 2 || cfg.GravityConst != 1e-10 {
		t.Fatalf("core tunables mismapped: %+v", cfg)
	}
	if cfg.ExternalField.Y != -10 {
		t.Fatalf("external field mismapped: %+v", cfg.ExternalField)
	}
	if cfg.MinDistanceSq != 2 || cfg.Restitution != 0.5 || cfg.RestThreshold != 0.2 {
		t.Fatalf("contact tunables mismapped: %+v", cfg)
	}
	if cfg.DecayLambda != 0.1 || cfg.SurfaceY != -3 || cfg.EscapeRadius != 500 {
		t.Fatalf("environment tunables mismapped: %+v", cfg)
	}
}

func TestPhysicsParamsCoverManifestKeys(t *testing.T) {
	params := physicsParams(config.Physics{Timestep: 1.0 / 60.0, Restitution: 0.8})
	for _, key := range []string{
		"timestep", "speed", "gravity_const",
		"field_x", "field_y", "field_z",
		"min_distance_sq", "restitution", "rest_threshold",
		"decay_lambda", "surface_y", "escape_radius",
	} {
		if _, ok := params[key]; !ok {
			t.Fatalf("manifest params missing %q", key)
		}
	}
	if params["restitution"] != 0.8 {
		t.Fatalf("restitution not carried through: %v", params["restitution"])
	}
}
