// Package symmetry builds the rotation matrices of the proper point groups used in
// single-particle cryo-EM: cyclic (Cn), dihedral (Dn), tetrahedral (T), octahedral (O)
// and icosahedral (I, I1-I4).
//
// Axis placement follows RELION so the expanded orientations agree with
// relion_reconstruct: the principal axis is Z, the dihedral two-fold is X, and the
// T, O and I groups are generated from RELION's fixed generator axes.
package symmetry

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"
	"unicode"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Family is a point-group family.
type Family int

const (
	Cyclic Family = iota
	Dihedral
	Tetrahedral
	Octahedral
	Icosahedral
)

func (f Family) String() string {
	switch f {
	case Cyclic:
		return "C"
	case Dihedral:
		return "D"
	case Tetrahedral:
		return "T"
	case Octahedral:
		return "O"
	case Icosahedral:
		return "I"
	}
	return "?"
}

// maxCyclicOrder bounds n for Cn and Dn.
const maxCyclicOrder = 10000

// matchTolerance is the element-wise tolerance used to decide that two
// group elements are the same rotation.
const matchTolerance = 1e-6

// Spec is a parsed symmetry specification.
type Spec struct {
	Family Family

	// N is the order of the principal axis for C and D groups, 0 otherwise
	N int

	// Setting selects the icosahedral axis convention (1-4), 0 otherwise
	Setting int
}

// String returns the canonical form of the specification, e.g. "C4", "D7", "O" or "I2".
func (s Spec) String() string {
	switch s.Family {
	case Cyclic, Dihedral:
		return s.Family.String() + strconv.Itoa(s.N)
	case Icosahedral:
		return "I" + strconv.Itoa(s.Setting)
	}
	return s.Family.String()
}

// Order returns the number of elements of the group described by s.
func (s Spec) Order() int {
	switch s.Family {
	case Cyclic:
		return s.N
	case Dihedral:
		return 2 * s.N
	case Tetrahedral:
		return 12
	case Octahedral:
		return 24
	case Icosahedral:
		return 60
	}
	return 0
}

// Parse reads a symmetry specification such as "C1", "d7", "O" or "I3".
// A bare "I" selects setting 2, which is RELION's default.
func Parse(spec string) (Spec, error) {
	s := strings.ToUpper(strings.TrimSpace(spec))
	if s == "" {
		return Spec{}, &InvalidSymmetryError{Spec: spec, Reason: "empty specification"}
	}

	family, rest := s[0], s[1:]
	if rest != "" && !isDigits(rest) {
		return Spec{}, &InvalidSymmetryError{Spec: spec, Reason: "improper or unknown point group"}
	}

	switch family {
	case 'C', 'D':
		if rest == "" {
			return Spec{}, &InvalidSymmetryError{Spec: spec, Reason: "missing order"}
		}
		n, err := strconv.Atoi(rest)
		if err != nil || n < 1 || n > maxCyclicOrder {
			return Spec{}, &InvalidSymmetryError{Spec: spec, Reason: fmt.Sprintf("order must be between 1 and %d", maxCyclicOrder)}
		}
		if family == 'C' {
			return Spec{Family: Cyclic, N: n}, nil
		}
		return Spec{Family: Dihedral, N: n}, nil

	case 'T', 'O':
		if rest != "" {
			return Spec{}, &InvalidSymmetryError{Spec: spec, Reason: "T and O take no order"}
		}
		if family == 'T' {
			return Spec{Family: Tetrahedral}, nil
		}
		return Spec{Family: Octahedral}, nil

	case 'I':
		setting := 2
		if rest != "" {
			setting, _ = strconv.Atoi(rest)
		}
		if _, ok := icosahedralAxes[setting]; !ok {
			return Spec{}, &InvalidSymmetryError{Spec: spec, Reason: "icosahedral setting must be 1-4"}
		}
		return Spec{Family: Icosahedral, Setting: setting}, nil
	}

	return Spec{}, &InvalidSymmetryError{Spec: spec, Reason: "unknown point-group family"}
}

// Order returns the group order for spec without building the group.
func Order(spec string) (int, error) {
	s, err := Parse(spec)
	if err != nil {
		return 0, err
	}
	return s.Order(), nil
}

// Group is an ordered, duplicate-free set of proper rotation matrices.
// The identity is always element 0. A Group is never modified after it is built,
// so it can be shared between goroutines.
type Group struct {
	spec     Spec
	elements []*r3.Mat
}

// Spec returns the specification the group was built from.
func (g Group) Spec() Spec { return g.spec }

// Len returns the number of elements.
func (g Group) Len() int { return len(g.elements) }

// At returns a copy of element i.
func (g Group) At(i int) *r3.Mat {
	var m r3.Mat
	m.CloneFrom(g.elements[i])
	return &m
}

// Matrix returns element i without copying. The caller must not modify it.
func (g Group) Matrix(i int) mat.Matrix { return g.elements[i] }

// Shuffled returns a copy of g with elements 1..n-1 in random order.
// The identity stays first.
func (g Group) Shuffled(rng *rand.Rand) Group {
	elements := make([]*r3.Mat, len(g.elements))
	copy(elements, g.elements)
	if len(elements) > 2 {
		rest := elements[1:]
		rng.Shuffle(len(rest), func(i, j int) { rest[i], rest[j] = rest[j], rest[i] })
	}
	return Group{spec: g.spec, elements: elements}
}

// generator builds the elements of one family.
type generator func(Spec) []*r3.Mat

var generators = map[Family]generator{
	Cyclic:      cyclic,
	Dihedral:    dihedral,
	Tetrahedral: func(Spec) []*r3.Mat { return closure(tetrahedralAxes) },
	Octahedral:  func(Spec) []*r3.Mat { return closure(octahedralAxes) },
	Icosahedral: func(s Spec) []*r3.Mat { return closure(icosahedralAxes[s.Setting]) },
}

// MatrixFromSymmetry returns the symmetry group named by spec.
// It fails with *InvalidSymmetryError when spec is not recognised.
func MatrixFromSymmetry(spec string) (Group, error) {
	s, err := Parse(spec)
	if err != nil {
		return Group{}, err
	}
	return New(s)
}

// New builds the group for an already parsed specification.
func New(s Spec) (Group, error) {
	gen, ok := generators[s.Family]
	if !ok {
		return Group{}, &InvalidSymmetryError{Spec: s.String(), Reason: "unknown point-group family"}
	}
	elements := gen(s)
	if len(elements) != s.Order() {
		return Group{}, fmt.Errorf("symmetry %s: generated %d elements, expected %d", s, len(elements), s.Order())
	}
	return Group{spec: s, elements: elements}, nil
}

var (
	axisX = r3.Vec{X: 1}
	axisZ = r3.Vec{Z: 1}
)

func cyclic(s Spec) []*r3.Mat {
	elements := make([]*r3.Mat, 0, s.N)
	for k := 0; k < s.N; k++ {
		elements = append(elements, r3.NewRotation(2*math.Pi*float64(k)/float64(s.N), axisZ).Mat())
	}
	return elements
}

// dihedral returns the n rotations about Z followed by the same rotations
// composed with the two-fold about X.
func dihedral(s Spec) []*r3.Mat {
	rotations := cyclic(s)
	flip := r3.NewRotation(math.Pi, axisX).Mat()
	elements := make([]*r3.Mat, 0, 2*s.N)
	elements = append(elements, rotations...)
	for _, r := range rotations {
		var m r3.Mat
		m.Mul(flip, r)
		elements = append(elements, &m)
	}
	return elements
}

// axis is a generator of a polyhedral group: a rotation by 2π/fold about dir.
type axis struct {
	fold int
	dir  r3.Vec
}

var tetrahedralAxes = []axis{
	{3, r3.Vec{Z: 1}},
	{2, r3.Vec{Y: math.Sqrt(2.0 / 3.0), Z: math.Sqrt(1.0 / 3.0)}},
}

var octahedralAxes = []axis{
	{3, r3.Vec{X: 1, Y: 1, Z: 1}},
	{4, r3.Vec{Z: 1}},
}

var icosahedralAxes = map[int][]axis{
	// Crowther 222
	1: {
		{2, r3.Vec{X: 1}},
		{5, r3.Vec{X: 0.85065080702670, Z: -0.5257311142635}},
		{3, r3.Vec{X: 0.9341723640, Y: 0.3568220765}},
	},
	// Crowther 222 rotated 90° about Z
	2: {
		{2, r3.Vec{Z: 1}},
		{5, r3.Vec{X: 0.525731112119133606, Z: 0.850650808352039932}},
		{3, r3.Vec{Y: 0.356822089773089931, Z: 0.934172358962715696}},
	},
	// five-fold on Z, three-fold in the first quadrant of YZ
	3: {
		{2, r3.Vec{X: -0.5257311143, Z: 0.8506508070}},
		{5, r3.Vec{Z: 1}},
		{3, r3.Vec{X: -0.4911234732, Y: 0.3568220765, Z: 0.7946544723}},
	},
	// five-fold on Z, rotated relative to setting 3
	4: {
		{2, r3.Vec{X: 0.5257311143, Z: 0.8506508070}},
		{5, r3.Vec{X: 0.8944271932, Z: 0.4472135900}},
		{3, r3.Vec{X: 0.4911234732, Y: 0.3568220765, Z: 0.7946544723}},
	},
}

// closure generates the finite group spanned by the given axes, breadth first
// from the identity. The largest proper point group we build has 60 elements,
// so generation stops there.
func closure(axes []axis) []*r3.Mat {
	const maxElements = 60

	gens := make([]*r3.Mat, len(axes))
	for i, a := range axes {
		gens[i] = r3.NewRotation(2*math.Pi/float64(a.fold), a.dir).Mat()
	}

	elements := []*r3.Mat{r3.Eye()}
	for i := 0; i < len(elements); i++ {
		for _, g := range gens {
			var m r3.Mat
			m.Mul(g, elements[i])
			if contains(elements, &m) {
				continue
			}
			elements = append(elements, &m)
			if len(elements) > maxElements {
				return elements
			}
		}
	}
	return elements
}

func contains(elements []*r3.Mat, m *r3.Mat) bool {
	for _, e := range elements {
		if mat.EqualApprox(e, m, matchTolerance) {
			return true
		}
	}
	return false
}

func isDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
