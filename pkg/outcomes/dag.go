// Package outcomes evaluates the outcome DAG (§4.G): leaves read from the
// integrator's incidence/prevalence output, internal nodes apply
// probability/delay/duration operators, and sum nodes combine series.
// Evaluation is topological; the DAG's acyclicity is re-checked here rather
// than trusted from pkg/scenariocfg/validator, matching this codebase's
// defense-in-depth style.
package outcomes

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/HopkinsIDD/flepimop-go/pkg/compartment"
	"github.com/HopkinsIDD/flepimop-go/pkg/paramengine"
	"github.com/HopkinsIDD/flepimop-go/pkg/perr"
	"github.com/HopkinsIDD/flepimop-go/pkg/scenariocfg"
)

// Series is a per-subpop daily time series, one column per subpop, one row
// per day, matching the integrator's output time grid (§4.G invariant:
// "each node's output series has the same daily time grid as the
// integrator output").
type Series = *paramengine.Tensor

// IntegratorOutput is the subset of an integrator Result an outcome DAG
// reads from: cumulative incidence into each (compartment, subpop) per day,
// and the prevalence snapshot per day.
type IntegratorOutput struct {
	Incidence  []Series // Incidence[day] is (N compartments x S)
	Prevalence []Series // Prevalence[day] is (N compartments x S)
	Days       int
	Subpops    int
}

// DAG is a compiled, topologically ordered outcome graph.
type DAG struct {
	specs map[string]scenariocfg.OutcomeSpec
	order []string
	space *compartment.Space
}

// Compile validates and topologically orders spec's outcome nodes against
// space, so source_compartment patterns can be resolved once up front.
func Compile(spec scenariocfg.OutcomesSpec, space *compartment.Space) (*DAG, error) {
	d := &DAG{specs: spec.Outcomes, space: space}
	order, err := d.topoSort()
	if err != nil {
		return nil, err
	}
	d.order = order
	return d, nil
}

func (d *DAG) topoSort() ([]string, error) {
	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(d.specs))
	var order []string

	var visit func(name string) error
	visit = func(name string) error {
		switch color[name] {
		case black:
			return nil
		case gray:
			return perr.NewConfigError("outcomes.Compile", fmt.Errorf("cyclic outcome reference at %q", name))
		}
		o, ok := d.specs[name]
		if !ok {
			return perr.NewConfigError("outcomes.Compile", fmt.Errorf("unknown outcome %q", name))
		}
		color[name] = gray
		deps := append([]string(nil), o.Sum...)
		if o.Source != "" {
			deps = append(deps, o.Source)
		}
		for _, dep := range deps {
			if err := visit(dep); err != nil {
				return err
			}
		}
		color[name] = black
		order = append(order, name)
		return nil
	}

	names := make([]string, 0, len(d.specs))
	for name := range d.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// Evaluate runs every outcome node in topological order and returns every
// node's resulting series keyed by name. modifiers, if non-nil, supplies
// realized outcome-modifier tensors keyed by the modifier_parameter name an
// operator exposes (probability/delay/duration knobs); a nil modifiers
// value means no outcome modifiers are active.
func (d *DAG) Evaluate(out *IntegratorOutput, modifiers map[string]*paramengine.Tensor, rng *rand.Rand) (map[string]Series, error) {
	results := make(map[string]Series, len(d.order))

	for _, name := range d.order {
		spec := d.specs[name]
		var series Series
		var err error

		switch spec.Operator {
		case scenariocfg.OpSource:
			series, err = d.evalSource(spec, out)
		case scenariocfg.OpProbability:
			series, err = evalProbability(name, spec, results[spec.Source], modifiers, rng)
		case scenariocfg.OpDelay:
			series, err = evalDelay(name, spec, results[spec.Source], modifiers, rng)
		case scenariocfg.OpDuration:
			series, err = evalDuration(name, spec, results[spec.Source], modifiers, rng)
		case scenariocfg.OpSum:
			series, err = evalSum(spec, results)
		default:
			err = perr.NewConfigError("outcomes.Evaluate", fmt.Errorf("unknown operator %q for %q", spec.Operator, name))
		}
		if err != nil {
			return nil, err
		}
		results[name] = series
	}

	return results, nil
}

func (d *DAG) evalSource(spec scenariocfg.OutcomeSpec, out *IntegratorOutput) (Series, error) {
	idxs, err := d.space.Resolve(spec.SourceCompartment)
	if err != nil {
		return nil, err
	}

	var frames []Series
	switch spec.SourceKind {
	case "prevalence":
		frames = out.Prevalence
	default:
		frames = out.Incidence
	}

	series := paramengine.NewTensor(out.Days+1, out.Subpops)
	for day := range frames {
		for s := 0; s < out.Subpops; s++ {
			sum := 0.0
			for _, idx := range idxs {
				sum += frames[day].At(idx, s)
			}
			series.Set(day, s, sum)
		}
	}
	return series, nil
}

func evalSum(spec scenariocfg.OutcomeSpec, results map[string]Series) (Series, error) {
	if len(spec.Sum) == 0 {
		return nil, perr.NewConfigError("outcomes.Evaluate", fmt.Errorf("sum node has no operands"))
	}
	first := results[spec.Sum[0]]
	if first == nil {
		return nil, perr.NewConfigError("outcomes.Evaluate", fmt.Errorf("sum operand %q not yet evaluated", spec.Sum[0]))
	}
	out := paramengine.NewTensor(first.T, first.S)
	copy(out.Data, first.Data)
	for _, name := range spec.Sum[1:] {
		operand := results[name]
		if operand == nil {
			return nil, perr.NewConfigError("outcomes.Evaluate", fmt.Errorf("sum operand %q not yet evaluated", name))
		}
		for i := range out.Data {
			out.Data[i] += operand.Data[i]
		}
	}
	return out, nil
}

// modifierFor looks up a realized modifier tensor for the named knob,
// returning nil (meaning "use the declared distribution as-is, unmodified")
// when no modifier targets it.
func modifierFor(modifiers map[string]*paramengine.Tensor, knob string) *paramengine.Tensor {
	if modifiers == nil {
		return nil
	}
	return modifiers[knob]
}

func modifierMultiplier(mod *paramengine.Tensor, day, subpop int) float64 {
	if mod == nil {
		return 1.0
	}
	day = minInt(day, mod.T-1)
	subpop = minInt(subpop, mod.S-1)
	return mod.At(day, subpop)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// modifierKnobName builds the modifier_parameter name an operator exposes
// for outcome modifiers to target: "<node>.<operator>" (e.g.
// "incidCase.probability"), since the same outcome document may define a
// probability and a delay on the same node (§4.G "Each operator exposes
// modifier_parameter names that outcome modifiers can target").
func modifierKnobName(node string, op scenariocfg.OutcomeOperator) string {
	return node + "." + string(op)
}
