// Package config holds the run configuration shared by the solver CLI and
// the worker processes.
//
// Values are layered in this order, later layers winning:
//
//	Default()          built-in values
//	Load(path)         YAML file, only the keys it sets
//	ApplyEnv(lookup)   RELAX_* environment variables
//	command-line flags (cmd/solver only)
//
// Example file:
//
//	size: 100
//	tolerance: 0.0001
//	workers: 4
//	init: random
//	seed: 7
//	verify: true
//	bench:
//	  sizes: [10, 100, 1000]
//	  tolerance: 10
package config

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dreamware/relax/internal/grid"
)

// Initial interior values.
const (
	InitZero   = "zero"   // Interior cells start at 0
	InitRandom = "random" // Interior cells drawn from a seeded generator
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "RELAX_"

// ErrInvalidConfig is returned for values that cannot describe a run.
var ErrInvalidConfig = errors.New("config: invalid")

// Config describes one solve and the benchmark sweep.
type Config struct {
	Init      string  `yaml:"init"`      // InitZero or InitRandom
	Bench     Bench   `yaml:"bench"`     // Size sweep for the bench command
	Size      int     `yaml:"size"`      // Grid rows and columns
	Tolerance float64 `yaml:"tolerance"` // Stop once the global deviation is at most this
	Workers   int     `yaml:"workers"`   // Workers in the group
	Boundary  float64 `yaml:"boundary"`  // Fixed value of the boundary cells
	Seed      int64   `yaml:"seed"`      // Generator seed for InitRandom
	Print     bool    `yaml:"print"`     // Print the resulting grid
	Verify    bool    `yaml:"verify"`    // Cross-check against the serial reference
}

// Bench is the benchmark sweep: one run per size. The default sweep runs
// 10, 100, 1000 and then every thousand up to 10000; running it with a single
// worker gives the serial timings.
type Bench struct {
	Sizes     []int   `yaml:"sizes"`
	Tolerance float64 `yaml:"tolerance"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Size:      10,
		Tolerance: 1e-4,
		Workers:   1,
		Boundary:  grid.DefaultBoundary,
		Init:      InitZero,
		Seed:      1,
		Bench: Bench{
			Sizes:     []int{10, 100, 1000, 2000, 3000, 4000, 5000, 6000, 7000, 8000, 9000, 10000},
			Tolerance: 10,
		},
	}
}

// Load reads a YAML file over the defaults. Unknown keys are an error.
func Load(path string) (Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from RELAX_* variables found through lookup,
// usually os.LookupEnv. Empty values are ignored.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(k string) (string, bool) {
		v, ok := lookup(EnvPrefix + k)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	var errs []error
	setInt := func(k string, dst *int) {
		if v, ok := get(k); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, k, err))
				return
			}
			*dst = n
		}
	}
	setFloat := func(k string, dst *float64) {
		if v, ok := get(k); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, k, err))
				return
			}
			*dst = f
		}
	}
	setBool := func(k string, dst *bool) {
		if v, ok := get(k); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, k, err))
				return
			}
			*dst = b
		}
	}

	setInt("SIZE", &c.Size)
	setFloat("TOLERANCE", &c.Tolerance)
	setInt("WORKERS", &c.Workers)
	setFloat("BOUNDARY", &c.Boundary)
	if v, ok := get("INIT"); ok {
		c.Init = v
	}
	if v, ok := get("SEED"); ok {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sSEED: %w", EnvPrefix, err))
		} else {
			c.Seed = seed
		}
	}
	setBool("PRINT", &c.Print)
	setBool("VERIFY", &c.Verify)
	if v, ok := get("BENCH_SIZES"); ok {
		sizes, err := ParseSizes(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sBENCH_SIZES: %w", EnvPrefix, err))
		} else {
			c.Bench.Sizes = sizes
		}
	}
	setFloat("BENCH_TOLERANCE", &c.Bench.Tolerance)

	return errors.Join(errs...)
}

// ParseSizes parses a comma-separated list of grid sizes.
func ParseSizes(s string) ([]int, error) {
	var sizes []int
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		sizes = append(sizes, n)
	}
	return sizes, nil
}

// Validate reports the first field that cannot describe a run.
// The worker count is checked against the grid size by the solver.
func (c Config) Validate() error {
	switch {
	case c.Size <= 2:
		return fmt.Errorf("%w: size %d must be greater than 2", ErrInvalidConfig, c.Size)
	case c.Tolerance <= 0:
		return fmt.Errorf("%w: tolerance %g must be greater than 0", ErrInvalidConfig, c.Tolerance)
	case c.Workers <= 0:
		return fmt.Errorf("%w: workers %d must be positive", ErrInvalidConfig, c.Workers)
	case c.Init != InitZero && c.Init != InitRandom:
		return fmt.Errorf("%w: init %q must be %q or %q", ErrInvalidConfig, c.Init, InitZero, InitRandom)
	case c.Bench.Tolerance <= 0:
		return fmt.Errorf("%w: bench tolerance %g must be greater than 0", ErrInvalidConfig, c.Bench.Tolerance)
	}
	for _, n := range c.Bench.Sizes {
		if n <= 2 {
			return fmt.Errorf("%w: bench size %d must be greater than 2", ErrInvalidConfig, n)
		}
	}
	return nil
}

// Grid builds the initial n×n grid described by c.
func (c Config) Grid(n int) *grid.Grid {
	if c.Init == InitRandom {
		return grid.NewRandom(n, c.Boundary, rand.New(rand.NewSource(c.Seed)))
	}
	return grid.NewDirichlet(n, c.Boundary, 0)
}
