package visualization

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/maozhouhe/localrec/pkg/star"
)

// createTestTable creates a small particle table spread over the sphere
func createTestTable(t *testing.T) *star.Table {
	t.Helper()
	tbl := star.NewTable("particles", "rlnAngleRot", "rlnAngleTilt", "rlnAnglePsi")
	rows := [][]string{
		{"-170.0", "20.0", "30.0"},
		{"10.0", "20.0", "30.0"},
		{"95.5", "90.0", "0.0"},
		{"bad", "45.0", "0.0"},
	}
	for _, r := range rows {
		if err := tbl.Append(r...); err != nil {
			t.Fatalf("Failed to build table: %v", err)
		}
	}
	return tbl
}

func TestAngularDistribution(t *testing.T) {
	pts, err := AngularDistribution(createTestTable(t))
	if err != nil {
		t.Fatalf("AngularDistribution failed: %v", err)
	}
	if len(pts) != 3 {
		t.Fatalf("expected 3 points, got %d", len(pts))
	}
	if pts[0].X != -170 || pts[0].Y != 20 {
		t.Errorf("first point = %v, want (-170, 20)", pts[0])
	}
	if pts[2].X != 95.5 || pts[2].Y != 90 {
		t.Errorf("third point = %v, want (95.5, 90)", pts[2])
	}
}

func TestAngularDistributionEmpty(t *testing.T) {
	_, err := AngularDistribution(star.NewTable("particles", "rlnImageName"))
	if !errors.Is(err, ErrNoOrientations) {
		t.Errorf("expected ErrNoOrientations, got %v", err)
	}
}

func TestPlotAxes(t *testing.T) {
	p, err := NewViewer(createTestTable(t), "C2 relaxed").Plot()
	if err != nil {
		t.Fatalf("Plot failed: %v", err)
	}
	if p.X.Min != -180 || p.X.Max != 180 || p.Y.Min != 0 || p.Y.Max != 180 {
		t.Errorf("unexpected axes: x [%v, %v], y [%v, %v]", p.X.Min, p.X.Max, p.Y.Min, p.Y.Max)
	}
	if p.Title.Text != "C2 relaxed" {
		t.Errorf("title = %q", p.Title.Text)
	}
}

func TestSaveAngularDistribution(t *testing.T) {
	dir := t.TempDir()

	for _, name := range []string{"angles.png", "angles.svg"} {
		path := filepath.Join(dir, name)
		if err := SaveAngularDistribution(createTestTable(t), path, "test"); err != nil {
			t.Fatalf("Failed to save %s: %v", name, err)
		}
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("Plot %s was not created: %v", name, err)
		}
		if info.Size() == 0 {
			t.Errorf("Plot %s is empty", name)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, "angles.png"))
	if err != nil {
		t.Fatalf("Failed to read png: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("\x89PNG")) {
		t.Error("angles.png is not a PNG file")
	}
}

func TestSaveUnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "angles.txt")
	if err := SaveAngularDistribution(createTestTable(t), path, "test"); err == nil {
		t.Error("expected an error for an unsupported extension")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("no file should be created for an unsupported extension")
	}
}
