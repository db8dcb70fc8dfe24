// Package vmath provides the small set of vector primitives the BVH builders
// and traversal kernels need: 2/3/4 component float vectors and a 3
// component integer vector, plus the handful of element-wise operations
// used throughout binning, clipping and slab tests.
package vmath

import (
	"math"

	"golang.org/x/image/math/f32"
)

type Vec2 f32.Vec2
type Vec3 f32.Vec3
type Vec4 f32.Vec4

// Int3 is a 3 component integer vector.
type Int3 [3]int32

// XY builds a 2 component vector.
func XY(x, y float32) Vec2 {
	return Vec2{x, y}
}

// XYZ builds a 3 component vector.
func XYZ(x, y, z float32) Vec3 {
	return Vec3{x, y, z}
}

// XYZW builds a 4 component vector.
func XYZW(x, y, z, w float32) Vec4 {
	return Vec4{x, y, z, w}
}

// Splat3 builds a 3 component vector with all lanes set to v.
func Splat3(v float32) Vec3 {
	return Vec3{v, v, v}
}

// Vec3 drops the w lane of a 4 component vector.
func (v Vec4) Vec3() Vec3 {
	return Vec3{v[0], v[1], v[2]}
}

// Vec4 extends a 3 component vector with a w lane.
func (v Vec3) Vec4(w float32) Vec4 {
	return Vec4{v[0], v[1], v[2], w}
}

// Add adds two vectors.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v[0] + o[0], v[1] + o[1], v[2] + o[2]}
}

// Sub subtracts two vectors.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v[0] - o[0], v[1] - o[1], v[2] - o[2]}
}

// Mul multiplies a vector by a scalar.
func (v Vec3) Mul(s float32) Vec3 {
	return Vec3{v[0] * s, v[1] * s, v[2] * s}
}

// MulV multiplies two vectors component-wise.
func (v Vec3) MulV(o Vec3) Vec3 {
	return Vec3{v[0] * o[0], v[1] * o[1], v[2] * o[2]}
}

// Dot returns the dot product of two vectors.
func (v Vec3) Dot(o Vec3) float32 {
	return v[0]*o[0] + v[1]*o[1] + v[2]*o[2]
}

// Cross returns the cross product of two vectors.
func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		v[1]*o[2] - v[2]*o[1],
		v[2]*o[0] - v[0]*o[2],
		v[0]*o[1] - v[1]*o[0],
	}
}

// Len returns the Euclidean length of the vector.
func (v Vec3) Len() float32 {
	return float32(math.Sqrt(float64(v.Dot(v))))
}

// Normalize returns a unit-length copy of v, or the zero vector if v is
// degenerate.
func (v Vec3) Normalize() Vec3 {
	l := v.Len()
	if l < 1e-12 {
		return Vec3{}
	}
	return v.Mul(1.0 / l)
}

// Axis returns the component of v along the given axis (0=x, 1=y, 2=z).
func (v Vec3) Axis(axis int) float32 {
	return v[axis]
}

// SetAxis returns a copy of v with component axis replaced by val.
func (v Vec3) SetAxis(axis int, val float32) Vec3 {
	v[axis] = val
	return v
}

// HalfArea returns half the surface area of the AABB extent described by v
// (i.e. v is aabbMax - aabbMin). Used throughout SAH cost evaluation; the
// leaf-cost constant factor cancels in every comparison that uses it, so
// only the half-area is computed, never the full area.
func (v Vec3) HalfArea() float32 {
	if v[0] < -1e30 {
		return 0
	}
	return v[0]*v[1] + v[1]*v[2] + v[2]*v[0]
}

// MinVec3 returns the component-wise minimum of two vectors.
func MinVec3(a, b Vec3) Vec3 {
	return Vec3{minf(a[0], b[0]), minf(a[1], b[1]), minf(a[2], b[2])}
}

// MaxVec3 returns the component-wise maximum of two vectors.
func MaxVec3(a, b Vec3) Vec3 {
	return Vec3{maxf(a[0], b[0]), maxf(a[1], b[1]), maxf(a[2], b[2])}
}

// ClampVec3 clamps each component of v to the [lo, hi] range.
func ClampVec3(v, lo, hi Vec3) Vec3 {
	return Vec3{
		clampf(v[0], lo[0], hi[0]),
		clampf(v[1], lo[1], hi[1]),
		clampf(v[2], lo[2], hi[2]),
	}
}

// SafeReciprocal returns 1/x, clamped to a +-1e30 sentinel near zero so that
// downstream slab tests never divide by (effectively) zero.
func SafeReciprocal(x float32) float32 {
	switch {
	case x > 1e-12:
		return 1.0 / x
	case x < -1e-12:
		return 1.0 / x
	case x < 0:
		return -1e30
	default:
		return 1e30
	}
}

// SafeReciprocal3 applies SafeReciprocal component-wise.
func SafeReciprocal3(v Vec3) Vec3 {
	return Vec3{SafeReciprocal(v[0]), SafeReciprocal(v[1]), SafeReciprocal(v[2])}
}

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func clampf(x, lo, hi float32) float32 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// BitsToFloat reinterprets a uint32's bit pattern as a float32, used to
// smuggle packed integer words (childInfo, triangle indices) through a
// vec4-typed buffer without a second buffer type.
func BitsToFloat(bits uint32) float32 {
	return math.Float32frombits(bits)
}

// FloatToBits is the inverse of BitsToFloat.
func FloatToBits(f float32) uint32 {
	return math.Float32bits(f)
}

// MinI returns the smaller of two ints.
func MinI(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// MaxI returns the larger of two ints.
func MaxI(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// ClampI clamps x to [lo, hi].
func ClampI(x, lo, hi int) int {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
