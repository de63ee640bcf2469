package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/HopkinsIDD/flepimop-go/pkg/compartment"
)

var compartmentsCmd = &cobra.Command{
	Use:   "compartments",
	Short: "Inspect a scenario's compartment space",
}

var compartmentsPlotCmd = &cobra.Command{
	Use:   "plot <scenario.yaml>",
	Short: "Print the resolved compartment table as TSV",
	Args:  cobra.ExactArgs(1),
	RunE:  runCompartmentsPlot,
}

func init() {
	compartmentsCmd.AddCommand(compartmentsPlotCmd)
}

// runCompartmentsPlot resolves the compartment Cartesian product and prints
// it as tab-separated values: index, full name, then one column per axis
// label. No plotting dependency appears anywhere in the retrieval pack, so
// this emits the tabular data an external plotting tool would render (§6),
// honoring the spec's own Non-goal that leaves graphics to a collaborator.
func runCompartmentsPlot(cmd *cobra.Command, args []string) error {
	scenario, err := loadScenario(args[0], nil)
	if err != nil {
		return err
	}
	space, err := compartment.Build(scenario.Compartments)
	if err != nil {
		return err
	}

	header := "index\tname"
	for _, axis := range scenario.Compartments {
		header += "\t" + axis.Name
	}
	fmt.Fprintln(cmd.OutOrStdout(), header)

	for idx := 0; idx < space.N(); idx++ {
		row := fmt.Sprintf("%d\t%s", idx, space.Name(idx))
		for _, axis := range scenario.Compartments {
			label, _ := space.Label(idx, axis.Name)
			row += "\t" + label
		}
		fmt.Fprintln(cmd.OutOrStdout(), row)
	}
	return nil
}
