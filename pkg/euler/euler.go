// Package euler converts between RELION ZYZ Euler angles and 3x3 rotation matrices.
//
// The matrix built from (rot, tilt, psi) is A = Rz(psi)·Ry(tilt)·Rz(rot), where each
// elemental rotation is passive (it rotates the frame, not the object). This is the
// convention of relion_reconstruct, which consumes the angles we write.
//
// Matrices are always built from radians. Degrees only exist at the table boundary,
// and ToRadians/ToDegrees are the only functions that move between the two.
package euler

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/maozhouhe/localrec/internal/models"
)

// gimbalEpsilon is the |sin(tilt)| below which rot and psi are no longer
// separable. Same threshold as RELION (16 single-precision epsilons).
const gimbalEpsilon = 16 * 1.1920929e-07

const floatEpsilon = 1.1920929e-07

// Matrix returns the rotation matrix for the Euler angles rot, tilt and psi, in radians.
func Matrix(rot, tilt, psi float64) *r3.Mat {
	sa, ca := math.Sincos(rot)
	sb, cb := math.Sincos(tilt)
	sg, cg := math.Sincos(psi)

	cc := cb * ca
	cs := cb * sa
	sc := sb * ca
	ss := sb * sa

	return r3.NewMat([]float64{
		cg*cc - sg*sa, cg*cs + sg*ca, -cg * sb,
		-sg*cc - cg*sa, -sg*cs + cg*ca, sg * sb,
		sc, ss, cb,
	})
}

// Angles returns the Euler angles, in radians, of the rotation matrix m.
//
// For proper rotations tilt is in [0, π]. When tilt is 0 or π only the sum
// (or difference) of rot and psi is defined; rot is then set to 0 and psi
// carries the whole in-plane rotation.
func Angles(m mat.Matrix) (rot, tilt, psi float64) {
	absSinTilt := math.Hypot(m.At(0, 2), m.At(1, 2))
	if absSinTilt > gimbalEpsilon {
		psi = math.Atan2(m.At(1, 2), -m.At(0, 2))
		rot = math.Atan2(m.At(2, 1), m.At(2, 0))

		var sign float64
		if math.Abs(math.Sin(psi)) < floatEpsilon {
			sign = sgn(-m.At(0, 2) / math.Cos(psi))
		} else if math.Sin(psi) > 0 {
			sign = sgn(m.At(1, 2))
		} else {
			sign = -sgn(m.At(1, 2))
		}
		tilt = math.Atan2(sign*absSinTilt, m.At(2, 2))
		return rot, tilt, psi
	}

	if m.At(2, 2) > 0 {
		psi = math.Atan2(-m.At(1, 0), m.At(0, 0))
		tilt = 0
	} else {
		psi = math.Atan2(m.At(1, 0), -m.At(0, 0))
		tilt = math.Pi
	}
	if psi == 0 {
		// drop the sign of a negative zero
		psi = 0
	}
	return 0, tilt, psi
}

// FromOrientation builds the rotation matrix of o, converting to radians if needed.
func FromOrientation(o models.Orientation) *r3.Mat {
	r := ToRadians(o)
	return Matrix(r.Rot, r.Tilt, r.Psi)
}

// ToOrientation returns the orientation of m in the requested unit.
func ToOrientation(m mat.Matrix, unit models.AngleUnit) models.Orientation {
	rot, tilt, psi := Angles(m)
	o := models.Orientation{Rot: rot, Tilt: tilt, Psi: psi, Unit: models.Radians}
	if unit == models.Degrees {
		return ToDegrees(o)
	}
	return o
}

// ToRadians returns o with its angles in radians.
func ToRadians(o models.Orientation) models.Orientation {
	if o.Unit == models.Radians {
		return o
	}
	return models.Orientation{
		Rot:  Deg2Rad(o.Rot),
		Tilt: Deg2Rad(o.Tilt),
		Psi:  Deg2Rad(o.Psi),
		Unit: models.Radians,
	}
}

// ToDegrees returns o with its angles in degrees.
func ToDegrees(o models.Orientation) models.Orientation {
	if o.Unit == models.Degrees {
		return o
	}
	return models.Orientation{
		Rot:  Rad2Deg(o.Rot),
		Tilt: Rad2Deg(o.Tilt),
		Psi:  Rad2Deg(o.Psi),
		Unit: models.Degrees,
	}
}

// Deg2Rad converts degrees to radians.
func Deg2Rad(deg float64) float64 { return deg * math.Pi / 180 }

// Rad2Deg converts radians to degrees.
func Rad2Deg(rad float64) float64 { return rad * 180 / math.Pi }

// Normalize folds an angle in degrees into (-180, 180].
func Normalize(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg > 180 {
		deg -= 360
	} else if deg <= -180 {
		deg += 360
	}
	return deg
}

// AngularDistance returns the angle, in radians, of the rotation that takes a onto b.
func AngularDistance(a, b mat.Matrix) float64 {
	var rel r3.Mat
	rel.Mul(a.T(), b)
	trace := rel.At(0, 0) + rel.At(1, 1) + rel.At(2, 2)
	return math.Acos(clamp((trace-1)/2, -1, 1))
}

// ViewingDirection returns the projection direction of an orientation, the third
// row of its matrix: (sin tilt·cos rot, sin tilt·sin rot, cos tilt). It does not
// depend on psi.
func ViewingDirection(m mat.Matrix) r3.Vec {
	return r3.Vec{X: m.At(2, 0), Y: m.At(2, 1), Z: m.At(2, 2)}
}

// ViewingAngle returns the angle, in radians, between the projection directions of
// a and b. Orientations that differ only by an in-plane rotation are 0 apart.
func ViewingAngle(a, b mat.Matrix) float64 {
	return math.Acos(clamp(r3.Cos(ViewingDirection(a), ViewingDirection(b)), -1, 1))
}

// clamp keeps inverse trig arguments inside their domain when rounding
// pushes them slightly past ±1.
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func sgn(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
