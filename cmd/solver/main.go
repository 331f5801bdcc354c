// Package main implements the relax command, which solves a Dirichlet grid
// with a group of in-process workers.
//
// Commands:
//
//	relax solve   one run; prints size, workers, time and iterations
//	relax bench   one run per size of the benchmark sweep
//
// Configuration is layered: built-in defaults, then the YAML file named by
// --config or RELAX_CONFIG, then RELAX_* environment variables, then flags.
//
// Example usage:
//
//	# Ten-by-ten grid on five workers, checked against the serial solver
//	relax solve -n 10 -e 0.0001 -p 5 --verify
//
//	# Benchmark sweep with random interiors
//	relax bench -p 4 --sizes 100,1000 --tolerance 10
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/dreamware/relax/internal/config"
	"github.com/dreamware/relax/internal/grid"
	"github.com/dreamware/relax/internal/solver"
)

// logFatal is a variable to allow mocking log.Fatal in tests.
var logFatal = log.Fatalf

// errNotIdentical is returned by solve --verify when a cell differs from the
// serial reference by the tolerance or more.
var errNotIdentical = errors.New("the results of the serial and distributed solvers are not identical")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		logFatal("relax: %v", err)
	}
}

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "relax",
		Short:         "Distributed Gauss–Seidel relaxation of a Dirichlet grid",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "YAML configuration file (default $RELAX_CONFIG)")
	root.PersistentFlags().IntP("workers", "p", 0, "number of workers")
	root.PersistentFlags().String("init", "", "interior initialisation: zero or random")
	root.PersistentFlags().Int64("seed", 0, "generator seed for random initialisation")
	root.PersistentFlags().Float64("boundary", 0, "value of the boundary cells")

	solve := &cobra.Command{
		Use:   "solve",
		Short: "Solve one grid",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Flags(), configPath)
			if err != nil {
				return err
			}
			return runSolve(cmd.Context(), cmd.OutOrStdout(), cfg)
		},
	}
	solve.Flags().IntP("size", "n", 0, "grid size")
	solve.Flags().Float64P("tolerance", "e", 0, "required accuracy")
	solve.Flags().Bool("print", false, "print the resulting grid")
	solve.Flags().Bool("verify", false, "cross-check against the serial solver")

	bench := &cobra.Command{
		Use:   "bench",
		Short: "Run the benchmark sweep, one grid per size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Flags(), configPath)
			if err != nil {
				return err
			}
			return runBench(cmd.Context(), cmd.OutOrStdout(), cfg)
		},
	}
	bench.Flags().IntSlice("sizes", nil, "grid sizes to run")
	bench.Flags().Float64("tolerance", 0, "required accuracy for every size")

	root.AddCommand(solve, bench)
	return root
}

// loadConfig layers the configuration file, the environment and the flags
// that were set on the command line.
func loadConfig(flags *pflag.FlagSet, path string) (config.Config, error) {
	if path == "" {
		path = os.Getenv("RELAX_CONFIG")
	}

	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return cfg, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	if err := applyFlags(flags, &cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// applyFlags copies every changed flag into cfg. The tolerance flag means the
// solve tolerance on solve and the sweep tolerance on bench.
func applyFlags(flags *pflag.FlagSet, cfg *config.Config) error {
	var err error
	set := func(name string, apply func() error) {
		if err == nil && flags.Lookup(name) != nil && flags.Changed(name) {
			err = apply()
		}
	}

	set("size", func() (e error) { cfg.Size, e = flags.GetInt("size"); return })
	set("workers", func() (e error) { cfg.Workers, e = flags.GetInt("workers"); return })
	set("init", func() (e error) { cfg.Init, e = flags.GetString("init"); return })
	set("seed", func() (e error) { cfg.Seed, e = flags.GetInt64("seed"); return })
	set("boundary", func() (e error) { cfg.Boundary, e = flags.GetFloat64("boundary"); return })
	set("print", func() (e error) { cfg.Print, e = flags.GetBool("print"); return })
	set("verify", func() (e error) { cfg.Verify, e = flags.GetBool("verify"); return })
	set("sizes", func() (e error) { cfg.Bench.Sizes, e = flags.GetIntSlice("sizes"); return })
	set("tolerance", func() error {
		v, err := flags.GetFloat64("tolerance")
		if flags.Lookup("sizes") != nil {
			cfg.Bench.Tolerance = v
		} else {
			cfg.Tolerance = v
		}
		return err
	})
	return err
}

// runSolve solves one grid and prints the result line.
func runSolve(ctx context.Context, out io.Writer, cfg config.Config) error {
	initial := cfg.Grid(cfg.Size)
	g := initial.Clone()

	res, err := solver.Run(ctx, cfg.Workers, g, solver.Params{Size: cfg.Size, Tolerance: cfg.Tolerance})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Size: %d, Workers: %d, Time: %f, Iterations: %d\n",
		cfg.Size, cfg.Workers, res.Duration.Seconds(), res.Iterations)

	if cfg.Print {
		if err := res.Grid.Fprint(out); err != nil {
			return err
		}
	}
	if cfg.Verify {
		return verify(out, initial, res.Grid, cfg)
	}
	return nil
}

// verify cross-checks result against the serial solver. One worker must
// match to within the tolerance; several workers to within the agreement
// bound, since they stop at a different sweep.
func verify(out io.Writer, initial, result *grid.Grid, cfg config.Config) error {
	tol := cfg.Tolerance
	if cfg.Workers > 1 {
		tol = solver.AgreementBound(cfg.Size, cfg.Tolerance)
	}

	report, err := solver.Verify(initial, result, cfg.Tolerance, tol)
	if err != nil {
		return err
	}
	if !report.Identical() {
		for _, m := range report.Mismatches {
			fmt.Fprintf(out, "Mismatch at (%d, %d): serial %f, distributed %f, difference %g\n",
				m.Row, m.Col, m.Want, m.Got, m.Diff())
		}
		return fmt.Errorf("%w: %d cells, max difference %g", errNotIdentical, len(report.Mismatches), report.MaxDiff)
	}
	fmt.Fprintf(out, "The results of the serial and distributed solvers are identical (tolerance %g, serial iterations %d)\n",
		tol, report.SerialIterations)
	return nil
}

// runBench runs every size of the sweep once and prints one line per size.
func runBench(ctx context.Context, out io.Writer, cfg config.Config) error {
	for _, n := range cfg.Bench.Sizes {
		g := cfg.Grid(n)
		res, err := solver.Run(ctx, cfg.Workers, g, solver.Params{Size: n, Tolerance: cfg.Bench.Tolerance})
		if err != nil {
			return fmt.Errorf("size %d: %w", n, err)
		}
		fmt.Fprintf(out, "Time: %f, Size: %d, Iterations: %d\n", res.Duration.Seconds(), n, res.Iterations)
	}
	return nil
}
