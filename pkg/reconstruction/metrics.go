package reconstruction

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/maozhouhe/localrec/internal/models"
	"github.com/maozhouhe/localrec/pkg/star"
)

// Coverage summarises how evenly the orientations of a table sample the sphere.
type Coverage struct {
	// Orientations is the number of records with readable angles
	Orientations int

	// Entropy of the (rot, tilt) histogram, in nats
	Entropy float64

	// NormalizedEntropy is Entropy divided by its maximum over the histogram
	// bins. 1 means every bin is equally populated.
	NormalizedEntropy float64

	// TiltMean and TiltStdDev describe the tilt angles, in degrees
	TiltMean   float64
	TiltStdDev float64
}

// histogram size along rot and tilt
const (
	rotBins  = 36
	tiltBins = 18
)

// AngularCoverage computes the coverage of the orientations in t. Tilt bins are
// weighted by the solid angle they cover, so a uniform distribution on the sphere
// scores close to 1.
func AngularCoverage(t *star.Table) Coverage {
	counts := make([]float64, rotBins*tiltBins)
	tilts := make([]float64, 0, t.Len())

	for _, rec := range t.Records {
		rot, err := rec.Float(models.LabelAngleRot)
		if err != nil {
			continue
		}
		tilt, err := rec.Float(models.LabelAngleTilt)
		if err != nil {
			continue
		}
		tilts = append(tilts, tilt)

		i := binIndex(rot+180, 360, rotBins)
		j := binIndex(tilt, 180, tiltBins)
		counts[j*rotBins+i]++
	}

	c := Coverage{Orientations: len(tilts)}
	if c.Orientations == 0 {
		return c
	}
	c.TiltMean, c.TiltStdDev = stat.MeanStdDev(tilts, nil)
	if c.Orientations == 1 {
		c.TiltStdDev = 0
	}

	// Density per unit solid angle, then normalised to a distribution.
	p := make([]float64, len(counts))
	var total float64
	for j := 0; j < tiltBins; j++ {
		lo := math.Pi * float64(j) / tiltBins
		hi := math.Pi * float64(j+1) / tiltBins
		area := math.Cos(lo) - math.Cos(hi)
		for i := 0; i < rotBins; i++ {
			k := j*rotBins + i
			p[k] = counts[k] / area
			total += p[k]
		}
	}
	for k := range p {
		p[k] /= total
	}

	c.Entropy = stat.Entropy(p)
	c.NormalizedEntropy = c.Entropy / math.Log(float64(len(p)))
	return c
}

func binIndex(v, span float64, n int) int {
	i := int(v / span * float64(n))
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
