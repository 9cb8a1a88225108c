package symmetry

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
	"pgregory.net/rapid"
)

func TestGroupOrders(t *testing.T) {
	cases := map[string]int{
		"C1": 1, "C2": 2, "C7": 7, "D1": 2, "D2": 4, "D7": 14,
		"T": 12, "O": 24, "I": 60, "I1": 60, "I2": 60, "I3": 60, "I4": 60,
	}
	for spec, want := range cases {
		t.Run(spec, func(t *testing.T) {
			g, err := MatrixFromSymmetry(spec)
			require.NoError(t, err)
			assert.Equal(t, want, g.Len())

			n, err := Order(spec)
			require.NoError(t, err)
			assert.Equal(t, want, n)
		})
	}
}

func TestGroupProperties(t *testing.T) {
	for _, spec := range []string{"C1", "C3", "D5", "T", "O", "I1", "I2", "I3", "I4"} {
		t.Run(spec, func(t *testing.T) {
			g, err := MatrixFromSymmetry(spec)
			require.NoError(t, err)

			assert.True(t, mat.EqualApprox(g.At(0), r3.Eye(), 1e-12), "identity must be first")

			for i := 0; i < g.Len(); i++ {
				m := g.At(i)
				var mtm r3.Mat
				mtm.Mul(m.T(), m)
				assert.True(t, mat.EqualApprox(&mtm, r3.Eye(), 1e-9), "element %d not orthonormal", i)
				assert.InDelta(t, 1, m.Det(), 1e-9, "element %d not proper", i)

				for j := i + 1; j < g.Len(); j++ {
					assert.False(t, mat.EqualApprox(m, g.Matrix(j), matchTolerance), "elements %d and %d coincide", i, j)
				}
			}

			// closed under composition
			for i := 0; i < g.Len(); i++ {
				for j := 0; j < g.Len(); j++ {
					var p r3.Mat
					p.Mul(g.Matrix(i), g.Matrix(j))
					assert.True(t, contains(g.elements, &p), "%d·%d not in group", i, j)
				}
			}
		})
	}
}

func TestCyclicAndDihedralElements(t *testing.T) {
	c2, err := MatrixFromSymmetry("C2")
	require.NoError(t, err)
	half := r3.NewMat([]float64{-1, 0, 0, 0, -1, 0, 0, 0, 1})
	assert.True(t, mat.EqualApprox(c2.At(1), half, 1e-12))

	d2, err := MatrixFromSymmetry("D2")
	require.NoError(t, err)
	flip := r3.NewMat([]float64{1, 0, 0, 0, -1, 0, 0, 0, -1})
	assert.True(t, mat.EqualApprox(d2.At(2), flip, 1e-12))
}

func TestParse(t *testing.T) {
	cases := map[string]Spec{
		"C4":   {Family: Cyclic, N: 4},
		"c4":   {Family: Cyclic, N: 4},
		" d7 ": {Family: Dihedral, N: 7},
		"t":    {Family: Tetrahedral},
		"O":    {Family: Octahedral},
		"I":    {Family: Icosahedral, Setting: 2},
		"i3":   {Family: Icosahedral, Setting: 3},
	}
	for in, want := range cases {
		got, err := Parse(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	s, err := Parse("i")
	require.NoError(t, err)
	assert.Equal(t, "I2", s.String())
}

func TestParseInvalid(t *testing.T) {
	for _, in := range []string{"", "X9", "C", "C0", "D", "D-2", "C2v", "D3h", "T2", "O1", "I5", "I0", "Ci"} {
		t.Run(in, func(t *testing.T) {
			_, err := MatrixFromSymmetry(in)
			require.Error(t, err)

			var symErr *InvalidSymmetryError
			require.True(t, errors.As(err, &symErr))
			assert.Equal(t, in, symErr.Spec)
			assert.NotEmpty(t, symErr.Reason)
		})
	}
}

func TestAtReturnsCopy(t *testing.T) {
	g, err := MatrixFromSymmetry("C4")
	require.NoError(t, err)

	m := g.At(1)
	m.Set(0, 0, 42)
	assert.NotEqual(t, 42.0, g.At(1).At(0, 0))
}

func TestShuffledKeepsIdentityFirst(t *testing.T) {
	g, err := MatrixFromSymmetry("O")
	require.NoError(t, err)

	rapid.Check(t, func(t *rapid.T) {
		seed := rapid.Uint64().Draw(t, "seed")
		s := g.Shuffled(rand.New(rand.NewPCG(seed, seed)))

		assert.Equal(t, g.Len(), s.Len())
		assert.True(t, mat.EqualApprox(s.At(0), r3.Eye(), 1e-12))
		for i := 0; i < s.Len(); i++ {
			assert.True(t, contains(g.elements, s.elements[i]))
		}
	})
}
