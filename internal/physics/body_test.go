package physics

import "testing"

func TestNewBodyValidatesInvariants(t *testing.T) {
	//1.- Non-positive mass is a construction error, not a runtime hazard.
	if _, err := NewBody("a", DynamicBody, 0, 1, Vec3{}, Vec3{}); err == nil {
		t.Fatalf("expected zero mass to be rejected")
	}
	if _, err := NewBody("a", DynamicBody, -3, 1, Vec3{}, Vec3{}); err == nil {
		t.Fatalf("expected negative mass to be rejected")
	}
	//2.- Radii below epsilon make collision tests meaningless.
	if _, err := NewBody("a", DynamicBody, 1, 1e-6, Vec3{}, Vec3{}); err == nil {
		t.Fatalf("expected degenerate radius to be rejected")
	}
	body, err := NewBody("a", DynamicBody, 1, 0.5, Vec3{X: 1}, Vec3{Y: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body.Position.X != 1 || body.Velocity.Y != 2 {
		t.Fatalf("constructor dropped initial state: %+v", body)
	}
}

func TestParseKindRoundTrip(t *testing.T) {
	if ParseKind(DynamicBody.String()) != DynamicBody {
		t.Fatalf("dynamic kind did not round trip")
	}
	if ParseKind(LightSource.String()) != LightSource {
		t.Fatalf("light kind did not round trip")
	}
	if ParseKind("unknown") != DynamicBody {
		t.Fatalf("unknown kinds should default to dynamic")
	}
}
