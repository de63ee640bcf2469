// Package modifierstack realizes named modifiers (§4.C) into per-(time,
// subpop) tensors. Modifiers are stored in a flat arena and referenced by
// name-to-index lookup (§9 "store modifiers in an arena and reference them
// by index") so a Stacked modifier's children are resolved once, not
// re-walked as a live graph on every access.
package modifierstack

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/HopkinsIDD/flepimop-go/pkg/paramengine"
	"github.com/HopkinsIDD/flepimop-go/pkg/perr"
	"github.com/HopkinsIDD/flepimop-go/pkg/scenariocfg"
)

// neutral is the identity value a leaf modifier's realized tensor carries
// outside its active window: 1.0, so a consumer that always multiplies a
// target parameter by the modifier's tensor sees no change when inactive.
const neutral = 1.0

// Stack is a compiled, cycle-checked modifier arena plus the subpop list
// tensors are sized against.
type Stack struct {
	specs   map[string]scenariocfg.ModifierSpec
	order   []string // topological order, leaves first
	subpops []string
	subpopIdx map[string]int

	// sumIdentity marks every modifier composed into a parent via the "sum"
	// stacking rule, so its realized tensor carries the additive identity 0
	// outside its active window instead of the multiplicative neutral 1.0.
	sumIdentity map[string]bool
}

// Build compiles spec against the given ordered subpop list, rejecting
// Stacked cycles and dangling child references (§4.C "the modifier DAG is
// acyclic"; this duplicates the validator's check because the compiled
// Stack must never be handed a cyclic graph regardless of caller).
func Build(spec scenariocfg.ModifierStackSpec, subpops []string) (*Stack, error) {
	idx := make(map[string]int, len(subpops))
	for i, s := range subpops {
		idx[s] = i
	}

	s := &Stack{specs: spec.Modifiers, subpops: subpops, subpopIdx: idx}

	order, err := s.topoSort()
	if err != nil {
		return nil, err
	}
	s.order = order
	s.sumIdentity = sumIdentityChildren(spec.Modifiers)
	return s, nil
}

// sumIdentityChildren returns the set of modifier names directly composed by
// a Stacked parent under the "sum" rule.
func sumIdentityChildren(specs map[string]scenariocfg.ModifierSpec) map[string]bool {
	marked := make(map[string]bool)
	for _, m := range specs {
		if m.Method != scenariocfg.MethodStacked {
			continue
		}
		rule := m.StackingRule
		if rule == "" {
			rule = scenariocfg.StackProduct
		}
		if rule != scenariocfg.StackSum {
			continue
		}
		for _, c := range m.Children {
			marked[c] = true
		}
	}
	return marked
}

func (s *Stack) topoSort() ([]string, error) {
	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(s.specs))
	var order []string

	var visit func(name string) error
	visit = func(name string) error {
		switch color[name] {
		case black:
			return nil
		case gray:
			return perr.NewConfigError("modifierstack.Build", fmt.Errorf("cyclic modifier reference at %q", name))
		}
		m, ok := s.specs[name]
		if !ok {
			return perr.NewConfigError("modifierstack.Build", fmt.Errorf("unknown modifier %q", name))
		}
		color[name] = gray
		if m.Method == scenariocfg.MethodStacked {
			for _, c := range m.Children {
				if err := visit(c); err != nil {
					return err
				}
			}
		}
		color[name] = black
		order = append(order, name)
		return nil
	}

	names := make([]string, 0, len(s.specs))
	for name := range s.specs {
		names = append(names, name)
	}
	sort.Strings(names) // deterministic iteration so draw order is stable across runs
	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// Realize returns the (T x len(subpops)) tensor of realized values for the
// named modifier, sampling every leaf modifier's distribution exactly once
// per subpop group and composing Stacked modifiers according to their
// stacking rule.
func (s *Stack) Realize(name string, days []Day, rng *rand.Rand) (*paramengine.Tensor, error) {
	cache := make(map[string]*paramengine.Tensor, len(s.order))
	for _, n := range s.order {
		m := s.specs[n]
		var tn *paramengine.Tensor
		var err error
		if m.Method == scenariocfg.MethodStacked {
			tn, err = s.realizeStacked(m, cache)
		} else {
			tn, err = s.realizeLeaf(n, m, days, rng)
		}
		if err != nil {
			return nil, err
		}
		cache[n] = tn
		if n == name {
			return tn, nil
		}
	}
	return nil, perr.NewConfigError("modifierstack.Realize", fmt.Errorf("unknown modifier %q", name))
}

// Day is one integrator output timestamp, used only to test period
// membership; callers pass the actual calendar dates from the run horizon.
type Day = int // days since the Unix epoch (UTC), the scale activeDays compares period bounds on

func (s *Stack) realizeLeaf(name string, m scenariocfg.ModifierSpec, days []Day, rng *rand.Rand) (*paramengine.Tensor, error) {
	T := len(days)
	S := len(s.subpops)
	identity := neutral
	if s.sumIdentity[name] {
		identity = 0
	}
	tn := paramengine.Scalar(T, S, identity)

	groups := s.groupsFor(m)
	for _, group := range groups {
		v, err := paramengine.Sample(&m.Value, rng)
		if err != nil {
			return nil, err
		}
		active := activeDays(m, days)
		for _, subpop := range group {
			si, ok := s.subpopIdx[subpop]
			if !ok {
				return nil, perr.NewConfigError("modifierstack.Realize", fmt.Errorf("unknown subpop %q", subpop))
			}
			for ti, isActive := range active {
				if isActive {
					tn.Set(ti, si, v)
				}
			}
		}
	}
	return tn, nil
}

// groupsFor partitions the subpops this modifier targets into tied-draw
// groups (§4.C "subpop-groups tie the drawn value within the group ... while
// independent groups draw independently"). With no groups and no explicit
// subpop list, every subpop in the run draws independently.
func (s *Stack) groupsFor(m scenariocfg.ModifierSpec) [][]string {
	if len(m.SubpopGroups) > 0 {
		return m.SubpopGroups
	}
	targets := m.Subpops
	if len(targets) == 0 {
		targets = s.subpops
	}
	groups := make([][]string, len(targets))
	for i, t := range targets {
		groups[i] = []string{t}
	}
	return groups
}

func activeDays(m scenariocfg.ModifierSpec, days []Day) []bool {
	active := make([]bool, len(days))
	for ti, d := range days {
		for _, p := range m.Periods {
			start := int(p.Start.Unix() / 86400)
			end := int(p.End.Unix() / 86400)
			if d >= start && d <= end {
				active[ti] = true
				break
			}
		}
	}
	return active
}

func (s *Stack) realizeStacked(m scenariocfg.ModifierSpec, cache map[string]*paramengine.Tensor) (*paramengine.Tensor, error) {
	if len(m.Children) == 0 {
		return nil, perr.NewConfigError("modifierstack.Realize", fmt.Errorf("Stacked modifier has no children"))
	}
	result := cache[m.Children[0]]
	if result == nil {
		return nil, perr.NewConfigError("modifierstack.Realize", fmt.Errorf("child %q not yet realized", m.Children[0]))
	}
	out := cloneTensor(result)
	rule := m.StackingRule
	if rule == "" {
		rule = scenariocfg.StackProduct
	}

	for _, childName := range m.Children[1:] {
		child := cache[childName]
		if child == nil {
			return nil, perr.NewConfigError("modifierstack.Realize", fmt.Errorf("child %q not yet realized", childName))
		}
		if child.T != out.T || child.S != out.S {
			return nil, perr.NewConfigError("modifierstack.Realize", fmt.Errorf("shape mismatch composing %q", childName))
		}
		for i := range out.Data {
			switch rule {
			case scenariocfg.StackSum:
				out.Data[i] += child.Data[i]
			case scenariocfg.StackReductionProduct, scenariocfg.StackProduct:
				out.Data[i] *= child.Data[i]
			default:
				return nil, perr.NewConfigError("modifierstack.Realize", fmt.Errorf("unknown stacking rule %q", rule))
			}
		}
	}
	return out, nil
}

func cloneTensor(t *paramengine.Tensor) *paramengine.Tensor {
	out := paramengine.NewTensor(t.T, t.S)
	copy(out.Data, t.Data)
	return out
}
