// Package config provides configuration loading and management for localrec.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"

	"github.com/maozhouhe/localrec/pkg/star"
	"github.com/maozhouhe/localrec/pkg/symmetry"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Input is the particle STAR file. It normally comes from the command line.
	Input string `yaml:"input,omitempty"`

	// Symmetry expansion parameters
	Symmetry struct {
		// Sym is the point group to relax, e.g. C2, D7, I2
		Sym string `yaml:"sym"`

		// Randomize shuffles the symmetry copies of each particle
		Randomize bool `yaml:"randomize"`

		// KeepOne keeps a single random copy per particle
		KeepOne bool `yaml:"keepOne"`

		// Unique drops copies whose viewing directions are within this many degrees of
		// each other. Negative disables.
		Unique float64 `yaml:"unique"`

		// Seed for the random choices
		Seed uint64 `yaml:"seed"`
	} `yaml:"symmetry"`

	// Reconstruction parameters
	Reconstruction struct {
		// Program is the reconstruction executable
		Program string `yaml:"program"`

		// AngPix is the pixel size in Å
		AngPix float64 `yaml:"angpix"`

		// MaxRes is the resolution limit in Å, 0 for Nyquist
		MaxRes float64 `yaml:"maxres"`

		// Threads passed to the reconstruction program
		Threads int `yaml:"threads"`

		// CTF is auto, on or off
		CTF string `yaml:"ctf"`

		// HalfMaps also reconstructs the two random halves
		HalfMaps bool `yaml:"halfMaps"`

		// Skip writes the expanded table without reconstructing
		Skip bool `yaml:"skip"`
	} `yaml:"reconstruction"`

	// Processing parameters
	Processing struct {
		// Workers is the number of particles expanded in parallel
		Workers int `yaml:"workers"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		// Star is the expanded particle table
		Star string `yaml:"star"`

		// Map is the reconstructed map
		Map string `yaml:"map"`

		// Plot is an optional angular distribution plot
		Plot string `yaml:"plot"`

		// LogFile collects the output of the reconstruction program
		LogFile string `yaml:"logFile"`
	} `yaml:"output"`

	Logging struct {
		Level      string `yaml:"level"`
		Timestamps bool   `yaml:"timestamps"`
	} `yaml:"logging"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Symmetry.Sym = "C1"
	cfg.Symmetry.Unique = -1

	cfg.Reconstruction.Program = "relion_reconstruct"
	cfg.Reconstruction.Threads = 1
	cfg.Reconstruction.CTF = "auto"

	cfg.Processing.Workers = runtime.NumCPU() // Use all available cores by default

	cfg.Logging.Level = "info"

	return cfg
}

// ValidationError reports a configuration value that cannot be used.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

// Validate checks the configuration before any file is read or written. An invalid
// symmetry is reported as *symmetry.InvalidSymmetryError.
func (c *Config) Validate() error {
	if c.Input == "" {
		return &ValidationError{Field: "input", Msg: "no input file given"}
	}
	if _, err := os.Stat(c.Input); err != nil {
		return &ValidationError{Field: "input", Msg: fmt.Sprintf("input file '%s' not found", c.Input)}
	}

	if _, err := symmetry.Parse(c.Symmetry.Sym); err != nil {
		return err
	}

	if c.Processing.Workers < 0 {
		return &ValidationError{Field: "processing.workers", Msg: "must not be negative"}
	}
	if c.Output.Star == "" {
		return &ValidationError{Field: "output.star", Msg: "no output file given"}
	}
	if _, err := log.ParseLevel(c.Logging.Level); err != nil {
		return &ValidationError{Field: "logging.level", Msg: err.Error()}
	}

	if c.Reconstruction.Skip {
		return nil
	}

	r := c.Reconstruction
	if r.AngPix <= 0 {
		return &ValidationError{Field: "reconstruction.angpix", Msg: "pixel size must be positive"}
	}
	if r.MaxRes < 0 {
		return &ValidationError{Field: "reconstruction.maxres", Msg: "must not be negative"}
	}
	if r.Threads < 1 {
		return &ValidationError{Field: "reconstruction.threads", Msg: "must be at least 1"}
	}
	switch r.CTF {
	case "auto", "on", "off":
	default:
		return &ValidationError{Field: "reconstruction.ctf", Msg: fmt.Sprintf("%q is not one of auto, on, off", r.CTF)}
	}
	if c.Output.Map == "" {
		return &ValidationError{Field: "output.map", Msg: "no map file given"}
	}
	if star.Compressed(c.Output.Star) {
		return &ValidationError{Field: "output.star", Msg: "the reconstruction program cannot read compressed tables"}
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
