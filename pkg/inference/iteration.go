package inference

import (
	"math/rand"
	"sort"

	"github.com/HopkinsIDD/flepimop-go/pkg/integrate"
	"github.com/HopkinsIDD/flepimop-go/pkg/likelihood"
	"github.com/HopkinsIDD/flepimop-go/pkg/modifierstack"
	"github.com/HopkinsIDD/flepimop-go/pkg/outcomes"
	"github.com/HopkinsIDD/flepimop-go/pkg/paramengine"
	"github.com/HopkinsIDD/flepimop-go/pkg/runcontext"
	"github.com/HopkinsIDD/flepimop-go/pkg/scenariocfg"
	"github.com/HopkinsIDD/flepimop-go/pkg/seeding"
)

// IterationResult is everything one proposal produces: the realized
// tensors worth persisting as artifacts (§6 spar/hpar/snpi/hnpi/seed/init/
// seir/hosp) plus the scored likelihoods the accept steps consume.
type IterationResult struct {
	Rates           map[string]*paramengine.Tensor
	SeirModifiers   map[string]*paramengine.Tensor
	OutcomeModifiers map[string]*paramengine.Tensor
	SeedingEvents   []seeding.Event
	Init            *paramengine.Tensor
	Prevalence      []*paramengine.Tensor
	Outcomes        map[string]outcomes.Series

	PerSubpopLogLik []float64
	TotalLogLik     float64
}

// RunIteration evaluates one proposal end to end: realize parameters and
// modifiers from vector, integrate, evaluate outcomes, and score every
// configured statistic (§4.I step 2).
func RunIteration(rc *runcontext.RunContext, vector *Vector, gt map[string]*likelihood.GroundTruth, chainSeed int64, iteration int, rng *rand.Rand) (*IterationResult, error) {
	scenario := rc.Scenario
	days := rc.DaysRange()

	paramSpecs := overriddenParams(scenario.Seir.Parameters, vector)
	engine := paramengine.New(rc.Days+1, len(rc.Subpops), chainSeed, iteration)
	rates, err := engine.Evaluate(paramSpecs)
	if err != nil {
		return nil, err
	}

	seirModTensors, err := realizeAllModifiers(scenario.SeirModifiers, vector, rc.Subpops, days, rng)
	if err != nil {
		return nil, err
	}
	applyModifiersToRates(rates, scenario.SeirModifiers, scenario.Seir.Parameters, seirModTensors)

	init, err := seeding.BuildInitialConditions(scenario.InitialConditions, rc.Space, rc.Subpops, rc.Population, rc.TableLoader, nil)
	if err != nil {
		return nil, err
	}
	events, err := seeding.BuildSeeding(scenario.Seeding, rc.Space, rc.Subpops, rc.Days, rc.StartDate, rng, rc.TableLoader, nil)
	if err != nil {
		return nil, err
	}

	cfg := integrate.Config{
		Method:     integrate.Method(scenario.Seir.Integration.Method),
		Dt:         scenario.Seir.Integration.Dt,
		Stochastic: scenario.Seir.Integration.Stochastic,
		Days:       rc.Days,
	}
	result, err := integrate.Run(cfg, rc.Transitions, rates, init, rc.Mobility, events, rng)
	if err != nil {
		return nil, err
	}

	outcomeModTensors, err := realizeAllModifiers(scenario.OutcomeModifiers, vector, rc.Subpops, days, rng)
	if err != nil {
		return nil, err
	}

	out := &outcomes.IntegratorOutput{
		Incidence: result.Incidence,
		Prevalence: result.Prevalence,
		Days:      result.Days,
		Subpops:   result.Subpops,
	}
	series, err := rc.Outcomes.Evaluate(out, outcomeModTensors, rng)
	if err != nil {
		return nil, err
	}

	perSubpop := make([]float64, len(rc.Subpops))
	total := 0.0
	for _, stat := range scenario.Inference.Statistics {
		sim, ok := series[stat.SimVar]
		if !ok {
			continue
		}
		scored, err := likelihood.Evaluate(stat, sim, gt[stat.DataVar], rc.StartDate)
		if err != nil {
			return nil, err
		}
		for s := range perSubpop {
			if s < len(scored.PerSubpop) {
				perSubpop[s] += scored.PerSubpop[s]
			}
		}
		total += scored.Total
	}

	prior := 0.0
	for name, v := range vector.Params {
		prior += priorLogDensity(scenario.Seir.Parameters[name], v)
	}
	total += prior

	return &IterationResult{
		Rates:            rates,
		SeirModifiers:    seirModTensors,
		OutcomeModifiers: outcomeModTensors,
		SeedingEvents:    events,
		Init:             init,
		Prevalence:       result.Prevalence,
		Outcomes:         series,
		PerSubpopLogLik:  perSubpop,
		TotalLogLik:      total,
	}, nil
}

// overriddenParams clones specs, replacing every perturbable entry's Value
// with the vector's current center so paramengine evaluates the proposal
// deterministically rather than re-sampling or re-expanding an expression.
func overriddenParams(specs map[string]scenariocfg.ParameterSpec, vector *Vector) map[string]scenariocfg.ParameterSpec {
	out := make(map[string]scenariocfg.ParameterSpec, len(specs))
	for name, p := range specs {
		if v, ok := vector.Params[name]; ok {
			val := v
			p.Value = &val
			p.Distribution = nil
			p.Expression = ""
		}
		out[name] = p
	}
	return out
}

// realizeAllModifiers realizes every active top-level modifier in spec
// (those named by spec.Scenarios, or -- absent an explicit selection --
// every modifier with a non-empty Parameter) into its target tensor,
// keyed by that modifier_parameter knob name so callers can look it up
// without re-deriving which parameter each modifier targets.
func realizeAllModifiers(spec scenariocfg.ModifierStackSpec, vector *Vector, subpops []string, days []modifierstack.Day, rng *rand.Rand) (map[string]*paramengine.Tensor, error) {
	active := spec.Scenarios
	if len(active) == 0 {
		for name, m := range spec.Modifiers {
			if m.Parameter != "" {
				active = append(active, name)
			}
		}
		sort.Strings(active) // deterministic realization order so (seed, nslots, iterations) reproduces byte-identical results (§5, §8)
	}

	out := make(map[string]*paramengine.Tensor, len(active))
	for _, name := range active {
		m, ok := spec.Modifiers[name]
		if !ok || m.Parameter == "" {
			continue
		}
		tn, err := realizeOneModifier(spec, name, vector, subpops, days, rng)
		if err != nil {
			return nil, err
		}
		out[m.Parameter] = tn
	}
	return out, nil
}

// realizeOneModifier realizes a single named modifier, substituting any
// chimeric per-subpop override for a perturbable leaf before handing the
// (possibly still-Stacked) spec to pkg/modifierstack.
func realizeOneModifier(spec scenariocfg.ModifierStackSpec, name string, vector *Vector, subpops []string, days []modifierstack.Day, rng *rand.Rand) (*paramengine.Tensor, error) {
	override, isChimeric := vector.Modifiers[name]
	m := spec.Modifiers[name]
	if !isChimeric || m.Method == scenariocfg.MethodStacked || len(m.SubpopGroups) > 0 {
		overridden := spec
		if isChimeric {
			overridden = cloneModifierStackSpec(spec)
			lm := overridden.Modifiers[name]
			lm.Value = scenariocfg.DistributionSpec{Kind: scenariocfg.DistFixed, Params: map[string]float64{"value": override[0]}}
			overridden.Modifiers[name] = lm
		}
		stack, err := modifierstack.Build(overridden, subpops)
		if err != nil {
			return nil, err
		}
		return stack.Realize(name, days, rng)
	}

	// Per-subpop chimeric divergence: realize one single-subpop modifier per
	// subpop and compose by elementwise product, since each single-subpop
	// realization is the multiplicative identity everywhere outside that
	// subpop's column (§4.C leaf-outside-window convention, reused here for
	// leaf-outside-target-subpop).
	combined := paramengine.Scalar(len(days), len(subpops), 1.0)
	for i, subpop := range subpops {
		leaf := m
		leaf.SubpopGroups = nil
		leaf.Subpops = []string{subpop}
		leaf.Value = scenariocfg.DistributionSpec{Kind: scenariocfg.DistFixed, Params: map[string]float64{"value": override[i]}}
		single := scenariocfg.ModifierStackSpec{Modifiers: map[string]scenariocfg.ModifierSpec{name: leaf}}
		stack, err := modifierstack.Build(single, subpops)
		if err != nil {
			return nil, err
		}
		tn, err := stack.Realize(name, days, rng)
		if err != nil {
			return nil, err
		}
		for idx := range combined.Data {
			combined.Data[idx] *= tn.Data[idx]
		}
	}
	return combined, nil
}

func cloneModifierStackSpec(spec scenariocfg.ModifierStackSpec) scenariocfg.ModifierStackSpec {
	out := scenariocfg.ModifierStackSpec{Scenarios: spec.Scenarios, Modifiers: make(map[string]scenariocfg.ModifierSpec, len(spec.Modifiers))}
	for k, v := range spec.Modifiers {
		out.Modifiers[k] = v
	}
	return out
}

// applyModifiersToRates folds each realized modifier tensor into the rate
// tensor it targets, per parameter's StackedModifierMethod (default
// "product" for a rate-like parameter, §4.C).
func applyModifiersToRates(rates map[string]*paramengine.Tensor, spec scenariocfg.ModifierStackSpec, params map[string]scenariocfg.ParameterSpec, modTensors map[string]*paramengine.Tensor) {
	for target, tn := range modTensors {
		base, ok := rates[target]
		if !ok {
			continue
		}
		method := params[target].StackedModifierMethod
		for i := range base.Data {
			if method == "sum" {
				base.Data[i] += tn.Data[i]
			} else {
				base.Data[i] *= tn.Data[i]
			}
		}
	}
}
