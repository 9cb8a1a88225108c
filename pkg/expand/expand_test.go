package expand

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
	"pgregory.net/rapid"

	"github.com/maozhouhe/localrec/internal/models"
	"github.com/maozhouhe/localrec/pkg/euler"
	"github.com/maozhouhe/localrec/pkg/star"
	"github.com/maozhouhe/localrec/pkg/symmetry"
)

func mustGroup(t testing.TB, spec string) symmetry.Group {
	t.Helper()
	g, err := symmetry.MatrixFromSymmetry(spec)
	require.NoError(t, err)
	return g
}

func particles(t testing.TB, rows ...[3]float64) *star.Table {
	t.Helper()
	tbl := star.NewTable("particles",
		models.LabelImageName, models.LabelAngleRot, models.LabelAngleTilt, models.LabelAnglePsi,
		"rlnDefocusU", models.LabelParticleName)
	for i, r := range rows {
		require.NoError(t, tbl.Append(
			fmt.Sprintf("%06d@Particles/mic.mrcs", i+1),
			star.FormatFloat(r[0]), star.FormatFloat(r[1]), star.FormatFloat(r[2]),
			"15000.5", fmt.Sprintf("p%d", i+1)))
	}
	return tbl
}

func angles(t testing.TB, r star.Record) [3]float64 {
	t.Helper()
	var out [3]float64
	for i, l := range models.AngleLabels {
		v, err := r.Float(l)
		require.NoError(t, err)
		out[i] = v
	}
	return out
}

func TestExpandC1IsIdentity(t *testing.T) {
	in := particles(t, [3]float64{10, 20, 30})
	out, err := Expand(in.Records[0], mustGroup(t, "C1"), false)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, in.Records[0].Values(), out[0].Values())
}

func TestExpandC2(t *testing.T) {
	in := particles(t, [3]float64{10, 20, 30})
	out, err := Expand(in.Records[0], mustGroup(t, "C2"), true)
	require.NoError(t, err)
	require.Len(t, out, 2)

	first := angles(t, out[0])
	assert.Equal(t, [3]float64{10, 20, 30}, first)

	second := angles(t, out[1])
	assert.InDelta(t, -170, second[0], 1e-4)
	assert.InDelta(t, 20, second[1], 1e-4)
	assert.InDelta(t, 30, second[2], 1e-4)

	for i, l := range models.PriorLabels {
		v, err := out[1].Float(l)
		require.NoError(t, err)
		assert.InDelta(t, second[i], v, 1e-6)

		v, err = out[0].Float(l)
		require.NoError(t, err)
		assert.Equal(t, first[i], v)
	}

	defocus, _ := out[1].Get("rlnDefocusU")
	assert.Equal(t, "15000.5", defocus)
}

func TestExpandMissingAngles(t *testing.T) {
	tbl := star.NewTable("particles", models.LabelAngleRot, models.LabelAngleTilt)
	require.NoError(t, tbl.Append("1", "2"))

	_, err := Expand(tbl.Records[0], mustGroup(t, "C2"), false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingAngles))

	bad := particles(t, [3]float64{1, 2, 3})
	bad.Records[0].Set(models.LabelAnglePsi, "n/a")
	_, err = Expand(bad.Records[0], mustGroup(t, "C2"), false)
	assert.True(t, errors.Is(err, ErrMissingAngles))

	_, err = Table(bad, mustGroup(t, "C2"), DefaultOptions())
	assert.True(t, errors.Is(err, ErrMissingAngles))
}

// TestExpandEquivalentOrientations checks every copy against E·Sᵀ, and that the
// first copy keeps the input angles.
func TestExpandEquivalentOrientations(t *testing.T) {
	for _, spec := range []string{"C3", "D2", "T", "O", "I"} {
		g := mustGroup(t, spec)
		t.Run(spec, func(t *testing.T) {
			rapid.Check(t, func(rt *rapid.T) {
				in := [3]float64{
					rapid.Float64Range(-180, 180).Draw(rt, "rot"),
					rapid.Float64Range(0, 180).Draw(rt, "tilt"),
					rapid.Float64Range(-180, 180).Draw(rt, "psi"),
				}
				tbl := particles(t, in)
				out, err := Expand(tbl.Records[0], g, true)
				require.NoError(rt, err)
				require.Len(rt, out, g.Len())

				assert.Equal(rt, tbl.Records[0].Values()[:4], out[0].Values()[:4])

				e := euler.Matrix(euler.Deg2Rad(in[0]), euler.Deg2Rad(in[1]), euler.Deg2Rad(in[2]))
				for i, r := range out {
					a := angles(t, r)
					got := euler.Matrix(euler.Deg2Rad(a[0]), euler.Deg2Rad(a[1]), euler.Deg2Rad(a[2]))

					var want r3.Mat
					want.Mul(e, g.Matrix(i).T())
					// angles are written with six decimals
					assert.True(rt, mat.EqualApprox(got, &want, 1e-5), "copy %d", i)
				}
			})
		})
	}
}

func TestTableCardinalityAndLabels(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 20).Draw(rt, "particles")
		spec := rapid.SampledFrom([]string{"C1", "C2", "C5", "D3", "T", "O"}).Draw(rt, "sym")
		workers := rapid.IntRange(0, 8).Draw(rt, "workers")

		rows := make([][3]float64, n)
		for i := range rows {
			rows[i] = [3]float64{float64(i), 45, -float64(i)}
		}
		in := particles(t, rows...)
		g := mustGroup(t, spec)

		opts := DefaultOptions()
		opts.Workers = workers
		out, err := Table(in, g, opts)
		require.NoError(rt, err)

		assert.Equal(rt, n*g.Len(), out.Len())
		assert.False(rt, out.HasLabel(models.LabelParticleName))
		for _, l := range models.PriorLabels {
			assert.True(rt, out.HasLabel(l))
		}

		// blocks are contiguous and in input order
		for i := 0; i < out.Len(); i++ {
			want, _ := in.Records[i/g.Len()].Get(models.LabelImageName)
			got, _ := out.Records[i].Get(models.LabelImageName)
			assert.Equal(rt, want, got)
		}
	})
}

func TestTableWithoutPriors(t *testing.T) {
	in := particles(t, [3]float64{1, 2, 3})
	opts := DefaultOptions()
	opts.MarkAsPrior = false
	out, err := Table(in, mustGroup(t, "C4"), opts)
	require.NoError(t, err)
	assert.Equal(t, 4, out.Len())
	for _, l := range models.PriorLabels {
		assert.False(t, out.HasLabel(l))
	}
	assert.Equal(t, "particles", out.Name)
}

func TestTableKeepOne(t *testing.T) {
	rows := make([][3]float64, 30)
	for i := range rows {
		rows[i] = [3]float64{float64(3 * i), 60, 10}
	}
	in := particles(t, rows...)
	g := mustGroup(t, "O")

	opts := DefaultOptions()
	opts.KeepOne = true
	opts.Seed = 7
	opts.Workers = 4

	a, err := Table(in, g, opts)
	require.NoError(t, err)
	require.Equal(t, in.Len(), a.Len())

	opts.Workers = 1
	b, err := Table(in, g, opts)
	require.NoError(t, err)
	for i := range a.Records {
		assert.Equal(t, a.Records[i].Values(), b.Records[i].Values(), "particle %d", i)
	}

	// with 30 particles and 24 copies each, some choice must differ from the original
	changed := 0
	for i := range a.Records {
		if angles(t, a.Records[i]) != angles(t, in.Records[i]) {
			changed++
		}
	}
	assert.Greater(t, changed, 0)
}

func TestTableRandomize(t *testing.T) {
	in := particles(t, [3]float64{10, 20, 30}, [3]float64{40, 50, 60})
	g := mustGroup(t, "D7")

	opts := DefaultOptions()
	opts.Randomize = true
	opts.Seed = 42

	a, err := Table(in, g, opts)
	require.NoError(t, err)
	b, err := Table(in, g, opts)
	require.NoError(t, err)
	require.Equal(t, 2*g.Len(), a.Len())

	for i := range a.Records {
		assert.Equal(t, a.Records[i].Values(), b.Records[i].Values())
	}
	assert.Equal(t, [3]float64{10, 20, 30}, angles(t, a.Records[0]))
	assert.Equal(t, [3]float64{40, 50, 60}, angles(t, a.Records[g.Len()]))
}

func TestTableUnique(t *testing.T) {
	// seen side on, the C12 copies look along directions 30° apart
	in := particles(t, [3]float64{10, 90, 30})
	g := mustGroup(t, "C12")

	opts := DefaultOptions()
	opts.UniqueDeg = 0
	out, err := Table(in, g, opts)
	require.NoError(t, err)
	assert.Equal(t, 12, out.Len())

	opts.UniqueDeg = 45
	out, err = Table(in, g, opts)
	require.NoError(t, err)
	assert.Equal(t, 6, out.Len())
	assert.Equal(t, [3]float64{10, 90, 30}, angles(t, out.Records[0]))
}

func TestTableUniqueIgnoresInPlaneRotation(t *testing.T) {
	// along the symmetry axis the C2 copy only differs in psi
	in := particles(t, [3]float64{0, 0, 0})
	opts := DefaultOptions()
	opts.UniqueDeg = 10

	out, err := Table(in, mustGroup(t, "C2"), opts)
	require.NoError(t, err)
	require.Equal(t, 1, out.Len())
	assert.Equal(t, [3]float64{0, 0, 0}, angles(t, out.Records[0]))

	opts.UniqueDeg = -1
	out, err = Table(in, mustGroup(t, "C2"), opts)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Len())
}

func TestOutputHeader(t *testing.T) {
	h := star.NewHeader(models.LabelImageName, models.LabelOriginalParticleName, models.LabelAngleRotPrior)
	out := OutputHeader(h, true)
	assert.Equal(t, []string{
		models.LabelImageName, models.LabelAngleRotPrior,
		models.LabelAngleTiltPrior, models.LabelAnglePsiPrior,
	}, out.Labels())
}
