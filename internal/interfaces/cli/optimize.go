package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/copyleftdev/qmdock/internal/optimization"
	"github.com/copyleftdev/qmdock/internal/optimization/localsearch"
)

type searchFlags struct {
	iterations int
	seed       int64
}

func (f *searchFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.iterations, "iterations", 0, "search iterations (default from ENGINE_ITERATIONS)")
	cmd.Flags().Int64Var(&f.seed, "seed", 0, "random seed (default from ENGINE_SEED; 0 seeds from the clock)")
}

// apply overrides the engine's optimizer config with the flags.
func (f *searchFlags) apply(cfg optimization.Config) optimization.Config {
	if f.iterations != 0 {
		cfg.Iterations = f.iterations
	}
	if f.seed != 0 {
		cfg.Seed = f.seed
	}
	return cfg
}

// optimizeView renders an optimization Result.
type optimizeView struct {
	*optimization.Result
}

func (v optimizeView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Initial energy:    %.6f\n", v.InitialBindingEnergy)
	fmt.Fprintf(&b, "Final energy:      %.6f\n", v.FinalBindingEnergy)
	fmt.Fprintf(&b, "Convergence:       %.6f\n", v.ConvergenceScore)
	fmt.Fprintf(&b, "Optimized:         %s\n", v.OptimizedCoordinates)
	b.WriteString("\nIter  Energy      Improvement\n")
	for _, p := range v.Path {
		fmt.Fprintf(&b, "%4d  %-10.6f  %+.6f\n", p.Iteration, p.Energy, p.Improvement)
	}
	return b.String()
}

// NewOptimizeCmd refines a candidate against a site by local search.
func NewOptimizeCmd() *cobra.Command {
	pair := &pairFlags{}
	search := &searchFlags{}

	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Refine a candidate structure against a binding site",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			site, candidate, err := pair.load()
			if err != nil {
				return err
			}

			cfg := search.apply(cliCtx.Config.Engine.OptimizerConfig())
			opt, err := localsearch.NewOptimizer(cliCtx.Evaluator, cfg, cliCtx.EngineLogger)
			if err != nil {
				return err
			}
			res, err := opt.Optimize(cmd.Context(), site, candidate, cfg.Iterations)
			if err != nil {
				return err
			}
			return PrintResult(cmd, optimizeView{res})
		},
	}
	pair.register(cmd)
	search.register(cmd)
	return cmd
}
