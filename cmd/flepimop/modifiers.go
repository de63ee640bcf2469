package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/HopkinsIDD/flepimop-go/pkg/scenariocfg"
)

var modifiersCmd = &cobra.Command{
	Use:   "modifiers",
	Short: "Inspect a scenario's modifier stacks",
}

var modifiersConfigPlotCmd = &cobra.Command{
	Use:   "config-plot <scenario.yaml>",
	Short: "Print every modifier's activation window as TSV",
	Args:  cobra.ExactArgs(1),
	RunE:  runModifiersConfigPlot,
}

func init() {
	modifiersCmd.AddCommand(modifiersConfigPlotCmd)
}

// runModifiersConfigPlot prints each declared modifier's target parameter,
// method, and activation windows, from both the seir and outcome stacks, as
// TSV (§6 modifiers config-plot; same no-graphics-dependency rationale as
// compartments plot).
func runModifiersConfigPlot(cmd *cobra.Command, args []string) error {
	scenario, err := loadScenario(args[0], nil)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "stack\tmodifier\tparameter\tmethod\tstart\tend")
	printStack(cmd, "seir", scenario.SeirModifiers)
	printStack(cmd, "outcome", scenario.OutcomeModifiers)
	return nil
}

func printStack(cmd *cobra.Command, label string, spec scenariocfg.ModifierStackSpec) {
	names := make([]string, 0, len(spec.Modifiers))
	for name := range spec.Modifiers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		m := spec.Modifiers[name]
		if len(m.Periods) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\t-\t-\n", label, name, m.Parameter, m.Method)
			continue
		}
		for _, p := range m.Periods {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\t%s\t%s\n",
				label, name, m.Parameter, m.Method, p.Start.Format("2006-01-02"), p.End.Format("2006-01-02"))
		}
	}
}
