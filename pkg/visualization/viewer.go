package visualization

import (
	"errors"
	"fmt"
	"image/color"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/maozhouhe/localrec/internal/models"
	"github.com/maozhouhe/localrec/pkg/star"
)

// ErrNoOrientations is returned when a table has no readable angles to plot.
var ErrNoOrientations = errors.New("no orientations to plot")

// Plot size on disk.
var (
	plotWidth  = 8 * vg.Inch
	plotHeight = 4 * vg.Inch
)

// Viewer draws the orientation distribution of a particle table.
type Viewer struct {
	table *star.Table
	title string
}

// NewViewer creates a viewer for t. title is printed above the plot.
func NewViewer(t *star.Table, title string) *Viewer {
	return &Viewer{table: t, title: title}
}

// AngularDistribution returns one (rot, tilt) point per record, in degrees.
// Records whose angles cannot be read are skipped.
func AngularDistribution(t *star.Table) (plotter.XYs, error) {
	pts := make(plotter.XYs, 0, t.Len())
	for _, rec := range t.Records {
		rot, err := rec.Float(models.LabelAngleRot)
		if err != nil {
			continue
		}
		tilt, err := rec.Float(models.LabelAngleTilt)
		if err != nil {
			continue
		}
		pts = append(pts, plotter.XY{X: rot, Y: tilt})
	}
	if len(pts) == 0 {
		return nil, ErrNoOrientations
	}
	return pts, nil
}

// Plot builds the scatter plot of the angular distribution. The axes are fixed to
// the full rot and tilt ranges so plots of different runs can be compared.
func (v *Viewer) Plot() (*plot.Plot, error) {
	pts, err := AngularDistribution(v.table)
	if err != nil {
		return nil, err
	}

	p := plot.New()
	p.Title.Padding = 3 * vg.Millimeter
	p.Title.Text = v.title
	p.X.Label.Text = "Rot (°)"
	p.Y.Label.Text = "Tilt (°)"
	p.X.Min = -180
	p.X.Max = 180
	p.Y.Min = 0
	p.Y.Max = 180
	p.Add(plotter.NewGrid())

	s, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, fmt.Errorf("failed to create scatter: %w", err)
	}
	s.GlyphStyle.Shape = draw.CircleGlyph{}
	s.GlyphStyle.Radius = vg.Points(1)
	s.GlyphStyle.Color = color.RGBA{R: 31, G: 119, B: 180, A: 160}
	p.Add(s)
	return p, nil
}

// Save writes the plot to path. The format follows the extension (png, svg, pdf,
// eps, jpg, tif); anything else is an error.
func (v *Viewer) Save(path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".svg", ".pdf", ".eps", ".jpg", ".jpeg", ".tif", ".tiff":
	default:
		return fmt.Errorf("unsupported plot format %q", filepath.Ext(path))
	}

	p, err := v.Plot()
	if err != nil {
		return err
	}
	if err := p.Save(plotWidth, plotHeight, path); err != nil {
		return fmt.Errorf("failed to save plot %s: %w", path, err)
	}
	return nil
}

// SaveAngularDistribution plots the (rot, tilt) distribution of t to path.
func SaveAngularDistribution(t *star.Table, path, title string) error {
	return NewViewer(t, title).Save(path)
}
