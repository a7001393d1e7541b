package physics

import "math"

// Vec3 represents a world-space 3D vector used throughout the engine.
type Vec3 struct {
	X float64
	Y float64
	Z float64
}

// Add returns the component wise sum of two vectors.
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{X: v.X + other.X, Y: v.Y + other.Y, Z: v.Z + other.Z}
}

// Sub returns the difference between two vectors.
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Scale multiplies the vector by a scalar.
func (v Vec3) Scale(scalar float64) Vec3 {
	return Vec3{X: v.X * scalar, Y: v.Y * scalar, Z: v.Z * scalar}
}

// Dot returns the scalar dot product of two vectors.
func (v Vec3) Dot(other Vec3) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// LengthSquared returns the squared Euclidean norm, avoiding the sqrt where possible.
func (v Vec3) LengthSquared() float64 {
	return v.Dot(v)
}

// Length computes the Euclidean norm of the vector.
func (v Vec3) Length() float64 {
	return math.Sqrt(v.Dot(v))
}

// Normalize produces a unit length vector. The ok flag is false for a zero vector.
func (v Vec3) Normalize() (Vec3, bool) {
	//1.- Reject degenerate directions so callers can skip the pair instead of dividing by zero.
	length := v.Length()
	if length == 0 {
		return Vec3{}, false
	}
	inv := 1.0 / length
	return Vec3{X: v.X * inv, Y: v.Y * inv, Z: v.Z * inv}, true
}

// NearZero reports whether every component is within epsilon of zero.
func (v Vec3) NearZero(epsilon float64) bool {
	return math.Abs(v.X) < epsilon && math.Abs(v.Y) < epsilon && math.Abs(v.Z) < epsilon
}

// IsFinite reports whether no component is NaN or infinite.
func (v Vec3) IsFinite() bool {
	return !math.IsNaN(v.X) && !math.IsInf(v.X, 0) &&
		!math.IsNaN(v.Y) && !math.IsInf(v.Y, 0) &&
		!math.IsNaN(v.Z) && !math.IsInf(v.Z, 0)
}
