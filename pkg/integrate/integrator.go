// Package integrate advances compartment prevalences and records incidences
// over a time horizon using a fixed-dt numerical method, optionally
// stochastic (§4.F).
package integrate

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/HopkinsIDD/flepimop-go/pkg/paramengine"
	"github.com/HopkinsIDD/flepimop-go/pkg/perr"
	"github.com/HopkinsIDD/flepimop-go/pkg/seeding"
	"github.com/HopkinsIDD/flepimop-go/pkg/transition"
)

// Method selects the numerical integration scheme (§4.F).
type Method string

const (
	MethodEuler Method = "euler"
	MethodRK4   Method = "rk4"
)

// toleranceNegative is the maximum tolerated negative prevalence before a
// step is treated as a numerical failure (§4.F "fails on negative
// prevalence exceeding tolerance").
const toleranceNegative = -1e-6

// Mobility holds the origin->destination commuting-weight matrix (§3
// Subpopulation: "mobility weights are nonnegative and, for each origin, do
// not sum above 1").
type Mobility struct {
	N       int // number of subpops
	Weights []float64 // row-major N x N: Weights[i*N+j] = fraction of subpop i present in subpop j
}

// At returns the weight from origin to dest.
func (m *Mobility) At(origin, dest int) float64 { return m.Weights[origin*m.N+dest] }

// Result is the integrator's output over the run horizon.
type Result struct {
	Days       int
	Compartments int
	Subpops    int
	Prevalence []*paramengine.Tensor // Prevalence[day] is an (N compartments x S) snapshot
	Incidence  []*paramengine.Tensor // Incidence[day] is the cumulative inflow into each (compartment, subpop) during that day
	CappedDraws int                  // diagnostic counter: stochastic draws capped to available population (§4.F failure clause)
}

// Config configures one integrator run.
type Config struct {
	Method     Method
	Dt         float64
	Stochastic bool
	Days       int
	SubDaySteps int // number of dt-sized substeps per recorded day; computed from Dt if zero
}

// Run advances the state from table/params/seeding over cfg.Days daily
// output steps, following the ordering guarantees in §4.F and §5: seeding
// before flows, mobility recomputed once per step, flows computed from
// step-start prevalence (Euler) or RK4 intermediate stages.
func Run(
	cfg Config,
	table *transition.Table,
	rates map[string]*paramengine.Tensor, // parameter name -> (T x S) tensor, already including modifier application
	init *paramengine.Tensor, // (N x S) initial prevalence
	mobility *Mobility,
	events []seeding.Event,
	rng *rand.Rand,
) (*Result, error) {
	if cfg.Dt <= 0 {
		return nil, perr.NewConfigError("integrate.Run", fmt.Errorf("dt must be positive"))
	}
	subSteps := cfg.SubDaySteps
	if subSteps == 0 {
		subSteps = int(math.Round(1.0 / cfg.Dt))
		if subSteps < 1 {
			subSteps = 1
		}
	}

	N, S := init.T, init.S
	result := &Result{Days: cfg.Days, Compartments: N, Subpops: S}
	result.Prevalence = make([]*paramengine.Tensor, cfg.Days+1)
	result.Incidence = make([]*paramengine.Tensor, cfg.Days+1)

	state := cloneTensor(init)
	result.Prevalence[0] = cloneTensor(state)
	result.Incidence[0] = paramengine.NewTensor(N, S)

	for day := 0; day < cfg.Days; day++ {
		dayIncidence := paramengine.NewTensor(N, S)
		dayEvents := seeding.EventsInWindow(events, day, day+1)

		for sub := 0; sub < subSteps; sub++ {
			if sub == 0 {
				if err := applySeeding(state, dayEvents, rng, cfg.Stochastic, &result.CappedDraws); err != nil {
					return nil, err
				}
			}

			eff := mobilityAdjusted(state, mobility)

			var err error
			switch cfg.Method {
			case MethodRK4:
				state, err = stepRK4(state, eff, table, rates, day, cfg.Dt, cfg.Stochastic, rng, dayIncidence, &result.CappedDraws)
			default:
				state, err = stepEuler(state, eff, table, rates, day, cfg.Dt, cfg.Stochastic, rng, dayIncidence, &result.CappedDraws)
			}
			if err != nil {
				return nil, perr.NewIntegrationError(day, err)
			}

			if err := checkFinite(state); err != nil {
				return nil, perr.NewIntegrationError(day, err)
			}
		}

		result.Prevalence[day+1] = cloneTensor(state)
		result.Incidence[day+1] = dayIncidence
	}

	return result, nil
}

func cloneTensor(t *paramengine.Tensor) *paramengine.Tensor {
	out := paramengine.NewTensor(t.T, t.S)
	copy(out.Data, t.Data)
	return out
}

// mobilityAdjusted computes the effective state used for force-of-infection
// calculations: each subpop's prevalence is blended with the prevalence of
// the subpops that commute into it, weighted by the mobility matrix
// (§4.F step 2). This runs once per sub-step, before flow computation.
func mobilityAdjusted(state *paramengine.Tensor, mobility *Mobility) *paramengine.Tensor {
	if mobility == nil {
		return state
	}
	eff := paramengine.NewTensor(state.T, state.S)
	for c := 0; c < state.T; c++ {
		for dest := 0; dest < state.S; dest++ {
			v := state.At(c, dest)
			for origin := 0; origin < state.S; origin++ {
				if origin == dest {
					continue
				}
				w := mobility.At(origin, dest)
				if w <= 0 {
					continue
				}
				v += w * state.At(c, origin)
			}
			eff.Set(c, dest, v)
		}
	}
	return eff
}

func applySeeding(state *paramengine.Tensor, events []seeding.Event, rng *rand.Rand, stochastic bool, capped *int) error {
	for _, e := range events {
		amount := e.Amount
		if stochastic {
			amount = math.Round(amount)
		}
		available := state.At(e.Source, e.Subpop)
		if amount > available {
			amount = available
			*capped++
		}
		state.Set(e.Source, e.Subpop, available-amount)
		state.Set(e.Dest, e.Subpop, state.At(e.Dest, e.Subpop)+amount)
	}
	return nil
}

func checkFinite(state *paramengine.Tensor) error {
	for _, v := range state.Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("non-finite prevalence value")
		}
		if v < toleranceNegative {
			return fmt.Errorf("negative prevalence %v exceeds tolerance", v)
		}
	}
	return nil
}
