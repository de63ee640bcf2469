// Package inference implements the MCMC inference controller (§4.I):
// nslots independent chains, each running iterations_per_slot iterations,
// perturbing a chimeric (per-subpop) parameter block and deciding
// acceptance both per-subpopulation and globally.
package inference

import (
	"math"
	"math/rand"
	"sort"

	"github.com/HopkinsIDD/flepimop-go/pkg/paramengine"
	"github.com/HopkinsIDD/flepimop-go/pkg/scenariocfg"
)

// Vector is one realized parameter/modifier proposal: a scalar center value
// per perturbable SEIR parameter (subpop-invariant, since a plain parameter
// has no per-subpop axis of its own), and a per-subpop scalar center value
// per perturbable modifier (the chimeric axis lives here, since modifiers
// are the mechanism by which §4.C varies a value by subpop).
type Vector struct {
	Params    map[string]float64   // perturbable scenario.Seir.Parameters name -> center value
	Modifiers map[string][]float64 // perturbable modifier name -> per-subpop center value
}

// Clone deep-copies v so perturbation never mutates a caller's copy.
func (v *Vector) Clone() *Vector {
	out := &Vector{
		Params:    make(map[string]float64, len(v.Params)),
		Modifiers: make(map[string][]float64, len(v.Modifiers)),
	}
	for k, val := range v.Params {
		out.Params[k] = val
	}
	for k, vals := range v.Modifiers {
		out.Modifiers[k] = append([]float64(nil), vals...)
	}
	return out
}

// perturbableParams returns the names of scenario.Seir.Parameters entries
// with a Perturbation distribution set (§4.I step 1).
func perturbableParams(scenario *scenariocfg.Scenario) []string {
	var names []string
	for name, p := range scenario.Seir.Parameters {
		if p.Perturbation != nil {
			names = append(names, name)
		}
	}
	sort.Strings(names) // deterministic draw order so (seed, nslots, iterations) reproduces byte-identical results (§5, §8)
	return names
}

// perturbableModifiers returns the names of modifiers (drawn from both the
// seir and outcome modifier stacks) with a Perturbation distribution set.
func perturbableModifiers(scenario *scenariocfg.Scenario) []string {
	var names []string
	for name, m := range scenario.SeirModifiers.Modifiers {
		if m.Perturbation != nil {
			names = append(names, name)
		}
	}
	for name, m := range scenario.OutcomeModifiers.Modifiers {
		if m.Perturbation != nil {
			names = append(names, name)
		}
	}
	sort.Strings(names) // deterministic draw order (§5, §8)
	return names
}

// modifierSpecFor finds a modifier's declaration in whichever stack (seir or
// outcome) declares it.
func modifierSpecFor(scenario *scenariocfg.Scenario, name string) (scenariocfg.ModifierSpec, bool) {
	if m, ok := scenario.SeirModifiers.Modifiers[name]; ok {
		return m, true
	}
	m, ok := scenario.OutcomeModifiers.Modifiers[name]
	return m, ok
}

// InitialVector realizes the starting center values: a perturbable
// parameter's own declared Value (or, lacking one, one draw from its
// Distribution) and one draw from a perturbable modifier's Value
// distribution, replicated across every subpop (Default: no prior chimeric
// divergence).
func InitialVector(scenario *scenariocfg.Scenario, subpops []string, rng *rand.Rand) (*Vector, error) {
	v := &Vector{Params: map[string]float64{}, Modifiers: map[string][]float64{}}

	for _, name := range perturbableParams(scenario) {
		p := scenario.Seir.Parameters[name]
		val, err := centerOf(p, rng)
		if err != nil {
			return nil, err
		}
		v.Params[name] = val
	}

	for _, name := range perturbableModifiers(scenario) {
		m, _ := modifierSpecFor(scenario, name)
		val, err := paramengine.Sample(&m.Value, rng)
		if err != nil {
			return nil, err
		}
		vals := make([]float64, len(subpops))
		for i := range vals {
			vals[i] = val
		}
		v.Modifiers[name] = vals
	}

	return v, nil
}

// centerOf resolves a ParameterSpec's starting scalar center: its fixed
// Value if set, else one draw from its Distribution.
func centerOf(p scenariocfg.ParameterSpec, rng *rand.Rand) (float64, error) {
	if p.Value != nil {
		return *p.Value, nil
	}
	if p.Distribution != nil {
		return paramengine.Sample(p.Distribution, rng)
	}
	return 0, nil
}

// Perturb draws a new proposal by applying each perturbable entry's
// proposal distribution (truncated normal centered on the current value,
// bounded only by the low/high its Perturbation spec declares, if any)
// (§4.I step 1). The bounds of the parameter's own Distribution are not
// applied to the proposal.
func Perturb(scenario *scenariocfg.Scenario, prev *Vector, rng *rand.Rand) (*Vector, error) {
	next := prev.Clone()

	paramNames := make([]string, 0, len(prev.Params))
	for name := range prev.Params {
		paramNames = append(paramNames, name)
	}
	sort.Strings(paramNames) // deterministic draw order (§5, §8)
	for _, name := range paramNames {
		p := scenario.Seir.Parameters[name]
		nv, err := proposeTruncNorm(prev.Params[name], p.Perturbation, rng)
		if err != nil {
			return nil, err
		}
		next.Params[name] = nv
	}

	modifierNames := make([]string, 0, len(prev.Modifiers))
	for name := range prev.Modifiers {
		modifierNames = append(modifierNames, name)
	}
	sort.Strings(modifierNames) // deterministic draw order (§5, §8)
	for _, name := range modifierNames {
		m, _ := modifierSpecFor(scenario, name)
		currentPerSubpop := prev.Modifiers[name]
		for i, current := range currentPerSubpop {
			nv, err := proposeTruncNorm(current, m.Perturbation, rng)
			if err != nil {
				return nil, err
			}
			next.Modifiers[name][i] = nv
		}
	}

	return next, nil
}

func proposeTruncNorm(current float64, perturbation *scenariocfg.DistributionSpec, rng *rand.Rand) (float64, error) {
	params := map[string]float64{"mean": current}
	if perturbation != nil {
		for k, v := range perturbation.Params {
			if k == "mean" {
				continue // the current value always overrides a declared mean
			}
			params[k] = v
		}
	}
	if _, ok := params["sd"]; !ok {
		params["sd"] = 1
	}
	return paramengine.Sample(&scenariocfg.DistributionSpec{Kind: scenariocfg.DistTruncNorm, Params: params}, rng)
}

// priorLogDensity evaluates the log-density of value under p's own declared
// distribution (separate from its perturbation kernel), contributing the
// "+ prior log-density" term in §4.I step 2. Parameters with a Fixed value
// (no declared Distribution) contribute 0, since they carry no prior to
// violate. Distribution kinds without a closed-form density here (poisson,
// binomial, lognormal) also contribute 0 -- a documented simplification,
// since this inference loop only perturbs continuous rate-like parameters
// in practice.
func priorLogDensity(p scenariocfg.ParameterSpec, value float64) float64 {
	if p.Distribution == nil {
		return 0
	}
	switch p.Distribution.Kind {
	case scenariocfg.DistUniform:
		low, hasLow := p.Distribution.Params["low"]
		high, hasHigh := p.Distribution.Params["high"]
		if !hasLow || !hasHigh || high <= low {
			return 0
		}
		if value < low || value > high {
			return math.Inf(-1)
		}
		return -math.Log(high - low)
	case scenariocfg.DistTruncNorm:
		mean := p.Distribution.Params["mean"]
		sd := p.Distribution.Params["sd"]
		if sd <= 0 {
			return 0
		}
		z := (value - mean) / sd
		return -0.5*math.Log(2*math.Pi*sd*sd) - 0.5*z*z
	default:
		return 0
	}
}
