package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/copyleftdev/qmdock/internal/discovery"
	"github.com/copyleftdev/qmdock/internal/errors"
	"github.com/copyleftdev/qmdock/internal/molecule"
)

// reportView renders a breakthrough report, best target first.
type reportView struct {
	*discovery.Report
}

func (v reportView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Panel %s (%s)\n\n", v.Panel, v.Category)
	b.WriteString("Target  Binding    Stability  Resistance  SideEffects  Improvement%  Clinical\n")
	for _, name := range v.Ranking {
		d, m := v.Candidates[name], v.Metrics[name]
		fmt.Fprintf(&b, "%-6s  %-9.4f  %-9.4f  %-10.4f  %-11.4f  %-12.2f  %.4f\n",
			name, d.BindingScore, d.StabilityScore, d.MutationResistance,
			d.SideEffectProfile, m.ImprovementPercentage, m.ClinicalPotential)
	}
	return b.String()
}

// NewAnalyzeCmd runs a candidate across a disease panel and compares the
// results with the category's reference drugs.
func NewAnalyzeCmd() *cobra.Command {
	search := &searchFlags{}
	var (
		candidateSrc string
		targets      []string
		workers      int
	)

	cmd := &cobra.Command{
		Use:   "analyze <panel>",
		Short: "Run a candidate across a disease panel (egfr, spike)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			panel, err := discovery.DefaultCatalog().Panel(args[0])
			if err != nil {
				return err
			}

			candidate := discovery.DefaultScaffold()
			if candidateSrc != "" {
				if candidate, err = molecule.Load(candidateSrc); err != nil {
					return errors.Wrap(err, "loading candidate").WithComponent("cli")
				}
			}

			if workers == 0 {
				workers = cliCtx.Config.Analysis.Workers
			}
			cfg := search.apply(cliCtx.Config.Engine.OptimizerConfig())
			agg, err := discovery.NewAggregator(cliCtx.Evaluator, panel, cfg,
				discovery.WithWorkers(workers),
				discovery.WithAggregatorLogger(cliCtx.EngineLogger),
			)
			if err != nil {
				return err
			}

			comparator := discovery.NewComparator(discovery.DefaultReferences())
			report, err := comparator.Analyze(cmd.Context(), agg, targets, candidate, cfg.Iterations)
			if err != nil {
				return err
			}
			return PrintResult(cmd, reportView{report})
		},
	}

	cmd.Flags().StringVar(&candidateSrc, "candidate", "", "starting structure (default: built-in inhibitor scaffold)")
	cmd.Flags().StringSliceVar(&targets, "targets", nil, "subset of panel targets to run (default: all)")
	cmd.Flags().IntVar(&workers, "workers", 0, "targets refined concurrently (default from ANALYSIS_WORKERS)")
	search.register(cmd)
	return cmd
}
