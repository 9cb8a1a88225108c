// Package reconstruction launches relion_reconstruct on an expanded particle table.
//
// The reconstruction itself is an external program. This package builds its
// command line, optionally splits the table into random halves for half maps, and
// reports a non-zero exit as an *ExternalError. Nothing is retried.
package reconstruction

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/maozhouhe/localrec/internal/models"
	"github.com/maozhouhe/localrec/pkg/star"
)

// DefaultProgram is the reconstruction program looked up on PATH.
const DefaultProgram = "relion_reconstruct"

// CTFMode selects whether --ctf is passed.
type CTFMode int

const (
	// CTFAuto passes --ctf when the table has defocus values
	CTFAuto CTFMode = iota
	CTFOn
	CTFOff
)

// Params holds the reconstruction parameters.
type Params struct {
	// Program is the reconstruction executable, DefaultProgram when empty
	Program string

	// Input is the expanded STAR file given to the program
	Input string

	// Output is the map written by the full reconstruction
	Output string

	// AngPix is the pixel size in Å
	AngPix float64

	// MaxRes limits the resolution of the full map in Å. Zero means Nyquist.
	MaxRes float64

	// Threads is passed as --j
	Threads int

	// Symmetry is C1 for a relaxed reconstruction; the symmetry is already
	// in the expanded orientations
	Symmetry string

	CTF CTFMode

	// HalfMaps also reconstructs the two random halves when the table has
	// rlnRandomSubset
	HalfMaps bool

	// LogFile receives the program output. Empty sends it to the logger at debug level.
	LogFile string

	Logger *log.Logger
	Runner Runner
}

// Runner runs an external program to completion.
type Runner interface {
	Run(ctx context.Context, name string, args []string, stdout io.Writer) error
}

// ExecRunner runs programs with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args []string, stdout io.Writer) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stdout
	return cmd.Run()
}

// ExternalError is returned when the reconstruction program fails.
type ExternalError struct {
	Program string
	Args    []string
	Err     error
}

func (e *ExternalError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Program, strings.Join(e.Args, " "), e.Err)
}

func (e *ExternalError) Unwrap() error { return e.Err }

// CheckProgram verifies that program can be found on PATH.
func CheckProgram(program string) error {
	if program == "" {
		program = DefaultProgram
	}
	if _, err := exec.LookPath(program); err != nil {
		return fmt.Errorf("reconstruction program not available: %w", err)
	}
	return nil
}

// Run is one invocation of the reconstruction program.
type Run struct {
	Input  string
	Output string
	Args   []string
}

// Reconstructor drives the reconstruction of one expanded table.
type Reconstructor struct {
	params *Params
	file   *star.File
	table  *star.Table
	logger *log.Logger

	runs    []Run
	metrics Coverage
}

// NewReconstructor creates a reconstructor for the expanded file. file may be nil,
// in which case Process reads params.Input. The non-particle blocks of file and its
// version are carried into the half-map inputs.
func NewReconstructor(params *Params, file *star.File) *Reconstructor {
	logger := params.Logger
	if logger == nil {
		logger = log.Default()
	}
	r := &Reconstructor{
		params: params,
		file:   file,
		logger: logger,
	}
	if file != nil {
		r.table = file.Particles()
	}
	return r
}

// Process runs the half-map reconstructions, when requested, and then the full one.
func (r *Reconstructor) Process(ctx context.Context) error {
	p := r.params

	// Step 1: Load the expanded table
	if r.file == nil {
		f, err := star.ReadFile(p.Input)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", p.Input, err)
		}
		r.file = f
		r.table = f.Particles()
	}
	if r.table == nil {
		return fmt.Errorf("no particle table in %s", p.Input)
	}

	// Step 2: Summarise angular coverage
	r.metrics = AngularCoverage(r.table)
	r.logger.Info("Angular coverage",
		"orientations", r.metrics.Orientations,
		"entropy", fmt.Sprintf("%.3f", r.metrics.NormalizedEntropy),
		"tilt", fmt.Sprintf("%.1f±%.1f", r.metrics.TiltMean, r.metrics.TiltStdDev))

	ctf := r.useCTF()
	if !ctf && p.CTF == CTFAuto {
		r.logger.Warn("No CTF information found, reconstructing without CTF correction", "input", p.Input)
	}

	out, closeOut, err := r.programOutput()
	if err != nil {
		return err
	}
	defer closeOut()

	// Step 3: Half maps to Nyquist
	if p.HalfMaps {
		if r.table.HasLabel(models.LabelRandomSubset) {
			halves, err := r.writeHalves()
			if err != nil {
				return fmt.Errorf("failed to split random subsets: %w", err)
			}
			for i, input := range halves {
				output := fmt.Sprintf("%s_half%d_class001_unfil.mrc", trimExt(p.Output), i+1)
				r.logger.Info("Step 3: Reconstructing half map", "half", i+1, "output", output)
				if err := r.run(ctx, input, output, false, ctf, out); err != nil {
					return err
				}
			}
		} else {
			r.logger.Warn("No random subsets in the table, skipping half maps")
		}
	}

	// Step 4: Full map
	r.logger.Info("Step 4: Reconstructing map", "output", p.Output)
	return r.run(ctx, p.Input, p.Output, true, ctf, out)
}

// Runs returns the invocations made by Process, in order.
func (r *Reconstructor) Runs() []Run { return r.runs }

// GetMetrics returns the angular coverage of the reconstructed table.
func (r *Reconstructor) GetMetrics() Coverage { return r.metrics }

func (r *Reconstructor) useCTF() bool {
	switch r.params.CTF {
	case CTFOn:
		return true
	case CTFOff:
		return false
	}
	return r.table.HasLabel(models.LabelDefocusU)
}

// Args builds the command line for one reconstruction.
func Args(p *Params, input, output string, withMaxRes, ctf bool) []string {
	sym := p.Symmetry
	if sym == "" {
		sym = "C1"
	}
	threads := p.Threads
	if threads < 1 {
		threads = 1
	}

	args := []string{"--i", input, "--o", output}
	if ctf {
		args = append(args, "--ctf")
	}
	args = append(args, "--sym", sym, "--angpix", formatFloat(p.AngPix))
	if withMaxRes && p.MaxRes > 0 {
		args = append(args, "--maxres", formatFloat(p.MaxRes))
	}
	return append(args, "--j", strconv.Itoa(threads))
}

func (r *Reconstructor) run(ctx context.Context, input, output string, withMaxRes, ctf bool, out io.Writer) error {
	program := r.params.Program
	if program == "" {
		program = DefaultProgram
	}
	runner := r.params.Runner
	if runner == nil {
		runner = ExecRunner{}
	}

	args := Args(r.params, input, output, withMaxRes, ctf)
	r.runs = append(r.runs, Run{Input: input, Output: output, Args: args})
	r.logger.Debug("Running", "cmd", program+" "+strings.Join(args, " "))

	if err := runner.Run(ctx, program, args, out); err != nil {
		return &ExternalError{Program: program, Args: args, Err: err}
	}
	return nil
}

// programOutput returns where the program output goes and a function to release it.
func (r *Reconstructor) programOutput() (io.Writer, func(), error) {
	if r.params.LogFile == "" {
		w := r.logger.StandardLog(log.StandardLogOptions{ForceLevel: log.DebugLevel}).Writer()
		return w, func() {}, nil
	}
	f, err := os.OpenFile(r.params.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, func() { f.Close() }, nil
}

// writeHalves splits the table by rlnRandomSubset, odd subsets to the first half
// and even ones to the second, and writes <input>_half1.star and <input>_half2.star
// with the other blocks of the input file.
func (r *Reconstructor) writeHalves() ([2]string, error) {
	var paths [2]string
	halves := SplitRandomSubsets(r.table)
	root := trimExt(r.params.Input)
	for i, h := range halves {
		paths[i] = fmt.Sprintf("%s_half%d.star", root, i+1)
		if err := star.WriteFile(paths[i], r.file.ReplaceParticles(h)); err != nil {
			return paths, err
		}
		r.logger.Debug("Wrote half", "path", paths[i], "particles", h.Len())
	}
	return paths, nil
}

// SplitRandomSubsets returns the records with odd and even rlnRandomSubset.
// Records without a numeric subset go to neither half.
func SplitRandomSubsets(t *star.Table) [2]*star.Table {
	var halves [2]*star.Table
	for i := range halves {
		halves[i] = &star.Table{Name: t.Name, Loop: true, Header: t.Header}
	}
	for _, rec := range t.Records {
		v, err := rec.Float(models.LabelRandomSubset)
		if err != nil {
			continue
		}
		if int(v)%2 == 1 {
			halves[0].Records = append(halves[0].Records, rec)
		} else {
			halves[1].Records = append(halves[1].Records, rec)
		}
	}
	return halves
}

func trimExt(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
