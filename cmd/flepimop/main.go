// Command flepimop runs and calibrates metapopulation compartmental disease
// models: simulate a single realization, calibrate parameters against
// ground-truth data via hierarchical MCMC, merge config overlays, and
// inspect a scenario's compartment/modifier structure.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
	version = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "flepimop",
	Short: "Metapopulation compartmental disease model pipeline",
	Long: `flepimop simulates compartmental infectious-disease models over a
metapopulation, computes derived outcomes, and calibrates free parameters
against observed data via hierarchical MCMC.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./flepimop.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(calibrateCmd)
	rootCmd.AddCommand(patchCmd)
	rootCmd.AddCommand(compartmentsCmd)
	rootCmd.AddCommand(modifiersCmd)
}

// Commands are defined in separate files:
// - simulateCmd in simulate.go
// - calibrateCmd in calibrate.go
// - patchCmd in patch.go
// - compartmentsCmd in compartments.go
// - modifiersCmd in modifiers.go

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}
