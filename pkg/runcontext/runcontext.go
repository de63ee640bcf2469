// Package runcontext assembles one validated Scenario into the compiled,
// runnable representation every other package operates on: the compartment
// space, transition table, modifier stacks, and outcome DAG. It is an
// explicit value rather than a global singleton (§9 REDESIGN FLAGS: "the
// source treats the configuration as a process-wide singleton ... replace
// with an explicit RunContext value passed to every component; its
// lifecycle is {construct from validated config -> hand to integrator/
// outcomes/likelihood -> drop on controller shutdown}").
package runcontext

import (
	"time"

	"github.com/HopkinsIDD/flepimop-go/pkg/compartment"
	"github.com/HopkinsIDD/flepimop-go/pkg/integrate"
	"github.com/HopkinsIDD/flepimop-go/pkg/modifierstack"
	"github.com/HopkinsIDD/flepimop-go/pkg/outcomes"
	"github.com/HopkinsIDD/flepimop-go/pkg/scenariocfg"
	"github.com/HopkinsIDD/flepimop-go/pkg/seeding"
	"github.com/HopkinsIDD/flepimop-go/pkg/transition"
)

// RunContext holds everything compiled once from a Scenario, shared
// read-only across every chain worker for the life of the run.
type RunContext struct {
	Scenario *scenariocfg.Scenario

	Space          *compartment.Space
	Transitions    *transition.Table
	SeirModifiers  *modifierstack.Stack
	OutcomeMods    *modifierstack.Stack
	Outcomes       *outcomes.DAG

	Subpops    []string
	Population []float64
	Mobility   *integrate.Mobility

	StartDate time.Time
	Days      int

	// TableLoader backs the built-in file-backed initial-conditions/seeding
	// methods (SetInitialConditions, FromFile, FolderDraw); cmd/flepimop sets
	// it to a CSV-reading loader the same way it sets subpops/population
	// (this package has no file-format opinion of its own). Left nil, a
	// scenario selecting one of those methods fails with a ConfigError.
	TableLoader seeding.TableLoader
}

// Build compiles scenario into a RunContext. subpops/population/mobilityW
// come from the subpop_setup tabular inputs (§6), read by the caller (e.g.
// cmd/flepimop) since this package has no file-format opinion of its own.
func Build(scenario *scenariocfg.Scenario, subpops []string, population []float64, mobilityWeights []float64) (*RunContext, error) {
	space, err := compartment.Build(scenario.Compartments)
	if err != nil {
		return nil, err
	}

	table, err := transition.Compile(scenario.Seir.Transitions, space)
	if err != nil {
		return nil, err
	}

	seirMods, err := modifierstack.Build(scenario.SeirModifiers, subpops)
	if err != nil {
		return nil, err
	}
	outcomeMods, err := modifierstack.Build(scenario.OutcomeModifiers, subpops)
	if err != nil {
		return nil, err
	}

	dag, err := outcomes.Compile(scenario.Outcomes, space)
	if err != nil {
		return nil, err
	}

	var mobility *integrate.Mobility
	if len(mobilityWeights) > 0 {
		mobility = &integrate.Mobility{N: len(subpops), Weights: mobilityWeights}
	}

	days := int(scenario.EndDate.Sub(scenario.StartDate).Hours() / 24)

	return &RunContext{
		Scenario:      scenario,
		Space:         space,
		Transitions:   table,
		SeirModifiers: seirMods,
		OutcomeMods:   outcomeMods,
		Outcomes:      dag,
		Subpops:       subpops,
		Population:    population,
		Mobility:      mobility,
		StartDate:     scenario.StartDate,
		Days:          days,
	}, nil
}

// DaysRange returns one Day per date from StartDate through StartDate+Days
// inclusive, each as days since the Unix epoch, used to realize modifier
// tensors over the run horizon.
func (rc *RunContext) DaysRange() []modifierstack.Day {
	days := make([]modifierstack.Day, rc.Days+1)
	for i := range days {
		i64 := rc.StartDate.AddDate(0, 0, i).Unix() / 86400
		days[i] = modifierstack.Day(i64)
	}
	return days
}
