package models

// AngleUnit tells whether the angles of an Orientation are stored in degrees or radians.
type AngleUnit int

const (
	Degrees AngleUnit = iota
	Radians
)

func (u AngleUnit) String() string {
	if u == Radians {
		return "rad"
	}
	return "deg"
}

// Orientation is a particle orientation given as ZYZ Euler angles
// in the RELION convention (rot, tilt, psi)
type Orientation struct {
	// Rot is the first rotation, about Z
	Rot float64

	// Tilt is the second rotation, about the new Y
	Tilt float64

	// Psi is the in-plane rotation, about the final Z
	Psi float64

	// Unit of the three angles. The zero value is Degrees, which is how
	// angles are stored in metadata tables.
	Unit AngleUnit
}

// Metadata labels read and written by the relaxation pipeline.
const (
	LabelAngleRot  = "rlnAngleRot"
	LabelAngleTilt = "rlnAngleTilt"
	LabelAnglePsi  = "rlnAnglePsi"

	LabelAngleRotPrior  = "rlnAngleRotPrior"
	LabelAngleTiltPrior = "rlnAngleTiltPrior"
	LabelAnglePsiPrior  = "rlnAnglePsiPrior"

	LabelImageName            = "rlnImageName"
	LabelParticleName         = "rlnParticleName"
	LabelOriginalParticleName = "rlnOriginalParticleName"
	LabelDefocusU             = "rlnDefocusU"
	LabelRandomSubset         = "rlnRandomSubset"
)

// AngleLabels are the three orientation columns, in rot, tilt, psi order.
var AngleLabels = [3]string{LabelAngleRot, LabelAngleTilt, LabelAnglePsi}

// PriorLabels are the prior columns matching AngleLabels.
var PriorLabels = [3]string{LabelAngleRotPrior, LabelAngleTiltPrior, LabelAnglePsiPrior}

// IdentityLabels no longer identify a single particle once it has been
// expanded into several symmetry copies, so they are dropped from the output.
var IdentityLabels = []string{LabelOriginalParticleName, LabelParticleName}
