// Package expand replaces every particle of a metadata table by its symmetry-related
// copies, one per element of a point group.
package expand

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"

	"github.com/zeebo/xxh3"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/maozhouhe/localrec/internal/models"
	"github.com/maozhouhe/localrec/pkg/euler"
	"github.com/maozhouhe/localrec/pkg/star"
	"github.com/maozhouhe/localrec/pkg/symmetry"
)

// ErrMissingAngles is wrapped by the errors returned for records without a
// usable rot, tilt or psi value.
var ErrMissingAngles = errors.New("missing orientation angles")

// Options controls Table.
type Options struct {
	// MarkAsPrior copies the new angles into the prior columns
	MarkAsPrior bool

	// Workers is the number of particles expanded concurrently. Values below 1 mean 1.
	Workers int

	// KeepOne keeps a single, randomly chosen copy of each particle
	KeepOne bool

	// Randomize shuffles the order of the copies of each particle. The
	// original orientation stays first.
	Randomize bool

	// UniqueDeg drops copies whose viewing direction is within this many degrees of
	// an earlier copy
	// of the same particle. Negative disables the filter.
	UniqueDeg float64

	// Seed makes the random choices reproducible
	Seed uint64
}

// DefaultOptions returns the options of a plain relaxation run.
func DefaultOptions() Options {
	return Options{
		MarkAsPrior: true,
		Workers:     1,
		UniqueDeg:   -1,
	}
}

// Expand returns one record per element of g, in group order. Each record is a copy
// of p with its orientation replaced by the symmetry-related one; the first record
// keeps the angles of p exactly. With markAsPrior the prior columns are set to the
// new angles, and added to the record when missing.
func Expand(p star.Record, g symmetry.Group, markAsPrior bool) ([]star.Record, error) {
	records, _, err := expandRecord(p, g, markAsPrior)
	return records, err
}

func readOrientation(p star.Record) (models.Orientation, [3]string, error) {
	var o models.Orientation
	var tokens [3]string
	var values [3]float64
	for i, label := range models.AngleLabels {
		v, err := p.Float(label)
		if err != nil {
			return o, tokens, fmt.Errorf("%w: %v", ErrMissingAngles, err)
		}
		values[i] = v
		tokens[i], _ = p.Get(label)
	}
	o = models.Orientation{Rot: values[0], Tilt: values[1], Psi: values[2], Unit: models.Degrees}
	return o, tokens, nil
}

// expandRecord also returns the orientation matrix of every copy.
func expandRecord(p star.Record, g symmetry.Group, markAsPrior bool) ([]star.Record, []*r3.Mat, error) {
	o, tokens, err := readOrientation(p)
	if err != nil {
		return nil, nil, err
	}

	e := euler.FromOrientation(o)
	// particle-to-reference rotation
	r0 := e.T()

	records := make([]star.Record, g.Len())
	matrices := make([]*r3.Mat, g.Len())
	for i := 0; i < g.Len(); i++ {
		rec := p.Clone()

		if i == 0 {
			matrices[i] = e
			if markAsPrior {
				for k, label := range models.PriorLabels {
					rec.Set(label, tokens[k])
				}
			}
			records[i] = rec
			continue
		}

		var ref, m r3.Mat
		ref.Mul(g.Matrix(i), r0)
		m.CloneFrom(ref.T())
		matrices[i] = &m

		n := euler.ToOrientation(&m, models.Degrees)
		angles := [3]float64{n.Rot, n.Tilt, n.Psi}
		for k := range angles {
			rec.SetFloat(models.AngleLabels[k], angles[k])
			if markAsPrior {
				rec.SetFloat(models.PriorLabels[k], angles[k])
			}
		}
		records[i] = rec
	}
	return records, matrices, nil
}

// OutputHeader returns the labels of the expanded table: the input labels plus the
// prior labels when requested, without the labels that name a single particle.
func OutputHeader(in *star.Header, markAsPrior bool) *star.Header {
	h := in
	if markAsPrior {
		h = h.With(models.PriorLabels[:]...)
	}
	return h.Without(models.IdentityLabels...)
}

// Table expands every record of in. The copies of one particle form a contiguous
// block, and blocks follow the input order regardless of Workers.
func Table(in *star.Table, g symmetry.Group, opts Options) (*star.Table, error) {
	if g.Len() == 0 {
		return nil, errors.New("empty symmetry group")
	}
	header := OutputHeader(in.Header, opts.MarkAsPrior)

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	blocks := make([][]star.Record, len(in.Records))

	var eg errgroup.Group
	eg.SetLimit(workers)
	for i := range in.Records {
		eg.Go(func() error {
			block, err := expandParticle(in.Records[i].Project(header), i, g, opts)
			if err != nil {
				return fmt.Errorf("particle %d: %w", i+1, err)
			}
			blocks[i] = block
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, b := range blocks {
		total += len(b)
	}
	out := &star.Table{Name: in.Name, Loop: true, Header: header, Records: make([]star.Record, 0, total)}
	for _, b := range blocks {
		out.Records = append(out.Records, b...)
	}
	return out, nil
}

func expandParticle(rec star.Record, index int, g symmetry.Group, opts Options) ([]star.Record, error) {
	var rng *rand.Rand
	if opts.Randomize || opts.KeepOne {
		rng = particleRand(rec, index, opts.Seed)
	}
	if opts.Randomize {
		g = g.Shuffled(rng)
	}

	records, matrices, err := expandRecord(rec, g, opts.MarkAsPrior)
	if err != nil {
		return nil, err
	}

	if opts.UniqueDeg >= 0 {
		records = unique(records, matrices, euler.Deg2Rad(opts.UniqueDeg))
	}
	if opts.KeepOne {
		return []star.Record{records[rng.IntN(len(records))]}, nil
	}
	return records, nil
}

// particleRand seeds a generator from the image name, or the row number when the
// table has none, so the draws do not depend on which worker handles the particle.
func particleRand(rec star.Record, index int, seed uint64) *rand.Rand {
	key, ok := rec.Get(models.LabelImageName)
	if !ok {
		key = strconv.Itoa(index)
	}
	h := xxh3.HashString(key)
	return rand.New(rand.NewPCG(h^seed, seed))
}

// unique keeps the copies whose projection direction is more than minDist radians
// away from that of every copy kept before it. Copies seen from the same direction
// with a different in-plane rotation count as duplicates.
func unique(records []star.Record, matrices []*r3.Mat, minDist float64) []star.Record {
	kept := records[:0:0]
	var keptMats []*r3.Mat
	for i, m := range matrices {
		dup := false
		for _, k := range keptMats {
			if euler.ViewingAngle(k, m) <= minDist {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		kept = append(kept, records[i])
		keptMats = append(keptMats, m)
	}
	return kept
}
