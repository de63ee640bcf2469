// Package validator checks a parsed scenariocfg.Scenario for referential and
// structural problems that plain YAML decoding cannot catch: unknown
// compartment labels, dangling parameter references, modifier/outcome
// reference cycles. It mirrors the multi-pass Warnings/Errors validator
// style used elsewhere in this codebase's configuration layer.
package validator

import (
	"fmt"

	"github.com/HopkinsIDD/flepimop-go/pkg/perr"
	"github.com/HopkinsIDD/flepimop-go/pkg/scenariocfg"
)

// Validator accumulates problems found across several independent passes.
type Validator struct {
	Warnings []string
	Errors   []string
}

// New returns an empty Validator.
func New() *Validator {
	return &Validator{}
}

// Validate runs every pass against s and returns a ConfigError summarizing
// all accumulated Errors, or nil if there were none. Warnings never fail
// validation; callers may inspect v.Warnings afterward.
func (v *Validator) Validate(s *scenariocfg.Scenario) error {
	axes := v.checkAxes(s)
	v.checkParameters(s)
	v.checkTransitions(s, axes)
	v.checkModifierStack(s.SeirModifiers, "seir_modifiers")
	v.checkModifierStack(s.OutcomeModifiers, "outcome_modifiers")
	v.checkOutcomes(s, axes)
	v.checkStatistics(s)

	if len(v.Errors) == 0 {
		return nil
	}
	return perr.NewConfigError("validate", fmt.Errorf("%d error(s): %v", len(v.Errors), v.Errors))
}

func (v *Validator) errf(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

func (v *Validator) warnf(format string, args ...interface{}) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}

// checkAxes verifies axis names are unique and labels within an axis are
// unique, and returns axis name -> label set for later passes.
func (v *Validator) checkAxes(s *scenariocfg.Scenario) map[string]map[string]bool {
	axes := make(map[string]map[string]bool, len(s.Compartments))
	seenAxis := make(map[string]bool, len(s.Compartments))
	for _, axis := range s.Compartments {
		if seenAxis[axis.Name] {
			v.errf("compartments: duplicate axis %q", axis.Name)
			continue
		}
		seenAxis[axis.Name] = true

		labels := make(map[string]bool, len(axis.Labels))
		for _, l := range axis.Labels {
			if labels[l] {
				v.errf("compartments: axis %q has duplicate label %q", axis.Name, l)
				continue
			}
			labels[l] = true
		}
		axes[axis.Name] = labels
	}
	return axes
}

// checkPattern verifies every axis name and label in pat is declared.
func (v *Validator) checkPattern(where string, pat scenariocfg.CompartmentPattern, axes map[string]map[string]bool) {
	for axisName, labels := range pat {
		declared, ok := axes[axisName]
		if !ok {
			v.errf("%s: references undeclared axis %q", where, axisName)
			continue
		}
		for _, l := range labels {
			if !declared[l] {
				v.errf("%s: axis %q has no label %q", where, axisName, l)
			}
		}
	}
}

func (v *Validator) checkParameters(s *scenariocfg.Scenario) {
	for name, p := range s.Seir.Parameters {
		set := 0
		if p.Value != nil {
			set++
		}
		if p.Distribution != nil {
			set++
		}
		if p.File != "" {
			set++
		}
		if p.Expression != "" {
			set++
		}
		if set == 0 {
			v.errf("seir.parameters.%s: must set exactly one of value, distribution, file, expression", name)
		} else if set > 1 {
			v.errf("seir.parameters.%s: sets more than one of value, distribution, file, expression", name)
		}
		if p.Distribution != nil && len(p.Distribution.Params) == 0 {
			v.warnf("seir.parameters.%s: distribution has no params", name)
		}
	}
}

func (v *Validator) checkTransitions(s *scenariocfg.Scenario, axes map[string]map[string]bool) {
	for i, t := range s.Seir.Transitions {
		where := fmt.Sprintf("seir.transitions[%d]", i)
		v.checkPattern(where+".source", t.Source, axes)
		v.checkPattern(where+".destination", t.Destination, axes)

		for _, rp := range t.Rate {
			if _, ok := s.Seir.Parameters[rp]; !ok {
				v.errf("%s.rate: unknown parameter %q", where, rp)
			}
		}
		for j, term := range t.ProportionalTo {
			termWhere := fmt.Sprintf("%s.proportional_to[%d]", where, j)
			if !term.SourceOnly {
				v.checkPattern(termWhere+".pattern", term.Pattern, axes)
			}
			if term.Exponent != "" && term.Exponent != "1" {
				if _, ok := s.Seir.Parameters[term.Exponent]; !ok {
					v.errf("%s.exponent: unknown parameter %q", termWhere, term.Exponent)
				}
			}
		}
	}
}

// checkModifierStack validates each modifier's method-specific shape and
// detects cycles in Stacked children references, using depth-first
// traversal with a recursion-stack set (same technique as the outcome DAG
// check below).
func (v *Validator) checkModifierStack(stack scenariocfg.ModifierStackSpec, where string) {
	for name, m := range stack.Modifiers {
		mWhere := fmt.Sprintf("%s.modifiers.%s", where, name)
		switch m.Method {
		case scenariocfg.MethodSinglePeriod:
			if len(m.Periods) != 1 {
				v.errf("%s: SinglePeriod requires exactly one period", mWhere)
			}
		case scenariocfg.MethodMultiPeriod:
			if len(m.Periods) == 0 {
				v.errf("%s: MultiPeriod requires at least one period", mWhere)
			}
		case scenariocfg.MethodStacked:
			if len(m.Children) == 0 {
				v.errf("%s: Stacked requires at least one child", mWhere)
			}
			for _, c := range m.Children {
				if _, ok := stack.Modifiers[c]; !ok {
					v.errf("%s: references unknown child modifier %q", mWhere, c)
				}
			}
		default:
			v.errf("%s: unknown method %q", mWhere, m.Method)
		}
		if len(m.Subpops) > 0 && len(m.SubpopGroups) > 0 {
			v.errf("%s: sets both subpops and subpop_groups", mWhere)
		}
	}

	visiting := make(map[string]bool)
	visited := make(map[string]bool)
	var visit func(name string) bool
	visit = func(name string) bool {
		if visited[name] {
			return true
		}
		if visiting[name] {
			v.errf("%s.modifiers.%s: cyclic Stacked reference", where, name)
			return false
		}
		m, ok := stack.Modifiers[name]
		if !ok {
			return true
		}
		visiting[name] = true
		for _, c := range m.Children {
			if !visit(c) {
				visiting[name] = false
				return false
			}
		}
		visiting[name] = false
		visited[name] = true
		return true
	}
	for name := range stack.Modifiers {
		visit(name)
	}
}

// checkOutcomes validates the outcome DAG: node shape per operator, and no
// reference cycles among non-leaf Source/Sum edges.
func (v *Validator) checkOutcomes(s *scenariocfg.Scenario, axes map[string]map[string]bool) {
	outcomes := s.Outcomes.Outcomes
	for name, o := range outcomes {
		where := fmt.Sprintf("outcomes.outcomes.%s", name)
		switch o.Operator {
		case scenariocfg.OpSource:
			if o.SourceKind != "incidence" && o.SourceKind != "prevalence" {
				v.errf("%s: source_kind must be incidence or prevalence", where)
			}
			v.checkPattern(where+".source_compartment", o.SourceCompartment, axes)
		case scenariocfg.OpProbability:
			if o.Source == "" {
				v.errf("%s: probability requires source", where)
			} else if _, ok := outcomes[o.Source]; !ok {
				v.errf("%s: unknown source %q", where, o.Source)
			}
			if o.Probability == nil {
				v.errf("%s: probability operator missing probability distribution", where)
			}
		case scenariocfg.OpDelay:
			if o.Source == "" {
				v.errf("%s: delay requires source", where)
			} else if _, ok := outcomes[o.Source]; !ok {
				v.errf("%s: unknown source %q", where, o.Source)
			}
			if o.Delay == nil {
				v.errf("%s: delay operator missing delay", where)
			}
		case scenariocfg.OpDuration:
			if o.Source == "" {
				v.errf("%s: duration requires source", where)
			} else if _, ok := outcomes[o.Source]; !ok {
				v.errf("%s: unknown source %q", where, o.Source)
			}
			if o.Duration == nil {
				v.errf("%s: duration operator missing duration", where)
			}
		case scenariocfg.OpSum:
			if len(o.Sum) < 2 {
				v.errf("%s: sum requires at least two operands", where)
			}
			for _, ref := range o.Sum {
				if _, ok := outcomes[ref]; !ok {
					v.errf("%s: unknown sum operand %q", where, ref)
				}
			}
		default:
			v.errf("%s: unknown operator %q", where, o.Operator)
		}
	}

	visiting := make(map[string]bool)
	visited := make(map[string]bool)
	var visit func(name string) bool
	visit = func(name string) bool {
		if visited[name] {
			return true
		}
		if visiting[name] {
			v.errf("outcomes.outcomes.%s: cyclic reference", name)
			return false
		}
		o, ok := outcomes[name]
		if !ok {
			return true
		}
		visiting[name] = true
		deps := o.Sum
		if o.Source != "" {
			deps = append(append([]string{}, deps...), o.Source)
		}
		for _, d := range deps {
			if !visit(d) {
				visiting[name] = false
				return false
			}
		}
		visiting[name] = false
		visited[name] = true
		return true
	}
	for name := range outcomes {
		visit(name)
	}
}

func (v *Validator) checkStatistics(s *scenariocfg.Scenario) {
	if !s.Inference.DoInference {
		return
	}
	if len(s.Inference.Statistics) == 0 {
		v.warnf("inference.do_inference is true but no statistics are declared")
	}
	for name, st := range s.Inference.Statistics {
		where := fmt.Sprintf("inference.statistics.%s", name)
		if _, ok := s.Outcomes.Outcomes[st.SimVar]; !ok {
			v.errf("%s: sim_var references unknown outcome %q", where, st.SimVar)
		}
		if st.DataVar == "" {
			v.errf("%s: data_var is required", where)
		}
		if st.Resample.Aggregator != "sum" && st.Resample.Aggregator != "mean" {
			v.errf("%s: resample.aggregator must be sum or mean", where)
		}
		switch st.Likelihood.Distribution {
		case scenariocfg.LikPois, scenariocfg.LikNorm, scenariocfg.LikNormCov, scenariocfg.LikSqrtNorm, scenariocfg.LikLognorm:
		default:
			v.errf("%s: unknown likelihood distribution %q", where, st.Likelihood.Distribution)
		}
	}
}
