package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/copyleftdev/qmdock/internal/errors"
	"github.com/copyleftdev/qmdock/internal/molecule"
	"github.com/copyleftdev/qmdock/internal/scoring"
)

type pairFlags struct {
	site      string
	candidate string
}

func (f *pairFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.site, "site", "", "binding site: XYZ/PDB/GRO file or inline \"x,y,z;x,y,z\"")
	cmd.Flags().StringVar(&f.candidate, "candidate", "", "candidate structure: XYZ/PDB/GRO file or inline \"x,y,z;x,y,z\"")
	_ = cmd.MarkFlagRequired("site")
	_ = cmd.MarkFlagRequired("candidate")
}

func (f *pairFlags) load() (site, candidate molecule.Coordinates, err error) {
	site, err = molecule.Load(f.site)
	if err != nil {
		return nil, nil, errors.Wrap(err, "loading site").WithComponent("cli")
	}
	candidate, err = molecule.Load(f.candidate)
	if err != nil {
		return nil, nil, errors.Wrap(err, "loading candidate").WithComponent("cli")
	}
	return site, candidate, nil
}

// energyView renders an EnergyResult.
type energyView struct {
	scoring.EnergyResult
}

func (v energyView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Binding energy:    %.6f\n", v.BindingEnergy)
	fmt.Fprintf(&b, "Confidence:        %.6f\n", v.Confidence)
	fmt.Fprintf(&b, "Electrostatic:     %.6f\n", v.Electrostatic)
	fmt.Fprintf(&b, "Van der Waals:     %.6f\n", v.VanDerWaals)
	return b.String()
}

// NewEvaluateCmd scores a candidate against a site once.
func NewEvaluateCmd() *cobra.Command {
	flags := &pairFlags{}

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score a candidate structure against a binding site",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			site, candidate, err := flags.load()
			if err != nil {
				return err
			}
			return PrintResult(cmd, energyView{cliCtx.Evaluator.Evaluate(site, candidate)})
		},
	}
	flags.register(cmd)
	return cmd
}
