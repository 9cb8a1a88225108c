// Package pipeline runs a complete symmetry relaxation: read the particles, expand
// them over the point group, write the expanded table and reconstruct it.
package pipeline

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/maozhouhe/localrec/pkg/config"
	"github.com/maozhouhe/localrec/pkg/expand"
	"github.com/maozhouhe/localrec/pkg/reconstruction"
	"github.com/maozhouhe/localrec/pkg/star"
	"github.com/maozhouhe/localrec/pkg/symmetry"
	"github.com/maozhouhe/localrec/pkg/visualization"
)

// Deps are the collaborators of Run. Zero values select the real implementations.
type Deps struct {
	Logger *log.Logger

	// Runner launches the reconstruction program
	Runner reconstruction.Runner

	// CheckProgram verifies the reconstruction program is installed
	CheckProgram func(program string) error
}

// Result summarises a run.
type Result struct {
	// Particles is the number of input particles
	Particles int

	Group symmetry.Group

	// Expanded is the number of records written
	Expanded int

	// Star and Map are the files written; Map is empty when reconstruction was skipped
	Star string
	Map  string

	Coverage reconstruction.Coverage
}

// Run executes the pipeline described by cfg. Validation and program checks happen
// before anything is written, and the expanded table is written before the
// reconstruction starts.
func Run(ctx context.Context, cfg *config.Config, deps Deps) (*Result, error) {
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}
	checkProgram := deps.CheckProgram
	if checkProgram == nil {
		checkProgram = reconstruction.CheckProgram
	}

	// Step 1: Validate and read the particles
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Reconstruction.Skip {
		if err := checkProgram(cfg.Reconstruction.Program); err != nil {
			return nil, err
		}
	}

	logger.Info("Step 1: Reading particles", "input", cfg.Input)
	in, err := star.ReadFile(cfg.Input)
	if err != nil {
		return nil, &config.ValidationError{Field: "input", Msg: err.Error()}
	}
	particles := in.Particles()
	if particles == nil {
		return nil, &config.ValidationError{Field: "input", Msg: "no particle table in " + cfg.Input}
	}

	// Step 2: Build the symmetry group
	group, err := symmetry.MatrixFromSymmetry(cfg.Symmetry.Sym)
	if err != nil {
		return nil, err
	}
	logger.Info("Step 2: Calculating symmetry related orientations", "sym", group.Spec(), "order", group.Len(), "particles", particles.Len())

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Step 3: Expand
	opts := expand.DefaultOptions()
	opts.Workers = cfg.Processing.Workers
	opts.KeepOne = cfg.Symmetry.KeepOne
	opts.Randomize = cfg.Symmetry.Randomize
	opts.UniqueDeg = cfg.Symmetry.Unique
	opts.Seed = cfg.Symmetry.Seed

	expanded, err := expand.Table(particles, group, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to expand particles: %w", err)
	}
	logger.Info("Step 3: Expanded particles", "records", expanded.Len())

	// Step 4: Write the expanded table
	out := in.ReplaceParticles(expanded)
	if err := star.WriteFile(cfg.Output.Star, out); err != nil {
		return nil, err
	}
	logger.Info("Step 4: Wrote expanded table", "output", cfg.Output.Star)

	result := &Result{
		Particles: particles.Len(),
		Group:     group,
		Expanded:  expanded.Len(),
		Star:      cfg.Output.Star,
	}

	// Step 5: Angular distribution plot
	if cfg.Output.Plot != "" {
		title := fmt.Sprintf("%s relaxed from %s", cfg.Input, group.Spec())
		if err := visualization.SaveAngularDistribution(expanded, cfg.Output.Plot, title); err != nil {
			logger.Warn("Failed to save angular distribution plot", "err", err)
		} else {
			logger.Info("Step 5: Saved angular distribution plot", "output", cfg.Output.Plot)
		}
	}

	if cfg.Reconstruction.Skip {
		result.Coverage = reconstruction.AngularCoverage(expanded)
		logger.Info("Reconstruction skipped")
		return result, nil
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}

	// Step 6: Asymmetric reconstruction
	logger.Info("Step 6: Calculating an asymmetric reconstruction")
	params := &reconstruction.Params{
		Program:  cfg.Reconstruction.Program,
		Input:    cfg.Output.Star,
		Output:   cfg.Output.Map,
		AngPix:   cfg.Reconstruction.AngPix,
		MaxRes:   cfg.Reconstruction.MaxRes,
		Threads:  cfg.Reconstruction.Threads,
		Symmetry: "C1",
		CTF:      ctfMode(cfg.Reconstruction.CTF),
		HalfMaps: cfg.Reconstruction.HalfMaps,
		LogFile:  cfg.Output.LogFile,
		Logger:   logger,
		Runner:   deps.Runner,
	}
	r := reconstruction.NewReconstructor(params, out)
	if err := r.Process(ctx); err != nil {
		return result, fmt.Errorf("reconstruction failed: %w", err)
	}
	result.Map = cfg.Output.Map
	result.Coverage = r.GetMetrics()

	logger.Info("All done!", "map", result.Map)
	return result, nil
}

func ctfMode(s string) reconstruction.CTFMode {
	switch s {
	case "on":
		return reconstruction.CTFOn
	case "off":
		return reconstruction.CTFOff
	}
	return reconstruction.CTFAuto
}
